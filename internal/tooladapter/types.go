// Package tooladapter abstracts the four external media tools (introspector,
// metadata editor, remuxer, transcoder) behind a uniform contract, identified
// by capability rather than by name, per the routing policy in routing.go.
package tooladapter

import (
	"context"
	"time"

	"vpo/internal/model"
)

// ContainerProbe is the Introspector's output: the container-level facts
// needed to populate a File row and its Tracks.
type ContainerProbe struct {
	Container string
	Duration  float64
	Tracks    []model.Track
	Warnings  []string
}

// Introspector is a pure, read-only probe of a media file's container and
// track layout.
type Introspector interface {
	Probe(ctx context.Context, path string) (ContainerProbe, error)
	Available(ctx context.Context) bool
	Name() string
}

// MetadataEdit describes the in-place, no-repack edits a MetadataEditor can
// apply.
type MetadataEdit struct {
	SetDefault    []TrackFlagSet
	SetForced     []TrackFlagSet
	SetLanguage   []TrackLanguageSet
	SetTitle      []TrackTitleSet
	SetTrackOrder []int // new track_index order, where supported in-place
}

// TrackFlagSet targets one track by index with a boolean flag value.
type TrackFlagSet struct {
	TrackIndex int
	Value      bool
}

// TrackLanguageSet targets one track by index with a new language tag.
type TrackLanguageSet struct {
	TrackIndex int
	Language   string
}

// TrackTitleSet targets one track by index with a new title.
type TrackTitleSet struct {
	TrackIndex int
	Title      string
}

// IsEmpty reports whether the edit has nothing to apply.
func (m MetadataEdit) IsEmpty() bool {
	return len(m.SetDefault) == 0 && len(m.SetForced) == 0 &&
		len(m.SetLanguage) == 0 && len(m.SetTitle) == 0 && len(m.SetTrackOrder) == 0
}

// MetadataEditor applies flag/language/title/order edits without
// repacking streams.
type MetadataEditor interface {
	Apply(ctx context.Context, path string, edit MetadataEdit) error
	Available(ctx context.Context) bool
	Name() string
}

// RemuxPlan describes the stream-copy transformation a Remuxer performs.
type RemuxPlan struct {
	TargetContainer string   // "" = keep current container
	KeepTrackIndices []int   // nil = keep all
	TrackOrder       []int   // new order of (post-filter) track indices; nil = unchanged
}

// IsEmpty reports whether the plan changes nothing.
func (p RemuxPlan) IsEmpty() bool {
	return p.TargetContainer == "" && p.KeepTrackIndices == nil && p.TrackOrder == nil
}

// Remuxer performs track filtering, reordering, and container change by
// stream copy, with atomic swap-and-backup semantics.
type Remuxer interface {
	Remux(ctx context.Context, path string, plan RemuxPlan) (outputPath string, err error)
	SupportsContainer(container string) bool
	SupportsReorder() bool
	Available(ctx context.Context) bool
	Name() string
}

// TranscodeDecision is the resolved instruction for re-encoding a file's
// video and/or audio tracks.
type TranscodeDecision struct {
	VideoTargetCodec  string // "" = no video transcode
	VideoEncoder      string
	TargetWidth       int
	TargetHeight      int
	AudioTargets      []AudioTranscodeInstruction
}

// AudioTranscodeInstruction targets one audio track for re-encoding.
type AudioTranscodeInstruction struct {
	TrackIndex  int
	TargetCodec string
	BitrateKbps *int
}

// IsEmpty reports whether the decision requires no work.
func (d TranscodeDecision) IsEmpty() bool {
	return d.VideoTargetCodec == "" && len(d.AudioTargets) == 0
}

// ProgressTick is one parsed progress line from a running transcode.
type ProgressTick struct {
	Frame         int64
	FPS           float64
	Bitrate       string
	Speed         float64
	OutTimeSeconds float64
}

// EncoderCapabilities reports what a Transcoder can do, discovered once at
// startup.
type EncoderCapabilities struct {
	VideoEncoders []string
	VideoDecoders []string
	AudioEncoders []string
	Muxers        []string
	Filters       []string
	HasHardware   bool
}

// Transcoder re-encodes video and/or audio and streams progress.
type Transcoder interface {
	Transcode(ctx context.Context, path string, decision TranscodeDecision, onProgress func(ProgressTick)) (outputPath string, err error)
	Capabilities(ctx context.Context) (EncoderCapabilities, error)
	Available(ctx context.Context) bool
	Name() string
}

// Timeout is the default subprocess timeout applied when the caller does
// not override it via context.
const Timeout = 10 * time.Minute
