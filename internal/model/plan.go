package model

// OperationKind enumerates the canonical operation types a Plan can contain.
// The Phase Executor dispatches operations strictly in this declared order
// within a phase (§4.G): container, filters, track_order, default_flags,
// conditional, audio_synthesis, transcode, transcription, file_timestamp,
// audio_actions, subtitle_actions.
type OperationKind int

const (
	OpContainerChange OperationKind = iota
	OpAudioFilter
	OpSubtitleFilter
	OpAttachmentFilter
	OpTrackOrder
	OpDefaultFlags
	OpConditional
	OpAudioSynthesis
	OpVideoTranscode
	OpAudioTranscode
	OpTranscription
	OpFileTimestamp
	OpAudioActions
	OpSubtitleActions
)

// TrackDisposition records the planner's keep/remove decision for one track,
// with a human-readable reason (used by both logs and tests, e.g. S3 in
// §8: "fallback: content language match").
type TrackDisposition struct {
	TrackIndex int
	Keep       bool
	Reason     string
}

// ResolvedSynthesis is a synthesis definition with every parameter
// materialised: chosen source, computed bitrate, resolved title/language,
// resolved target position.
type ResolvedSynthesis struct {
	Name           string
	SourceTrackIdx int
	TargetCodec    string
	TargetChannels int
	BitrateKbps    *int // nil means lossless
	Title          string
	Language       string
	TargetPosition int // resolved absolute 1-based position
}

// SkippedSynthesisReason enumerates why a synthesis definition produced no
// operation.
type SkippedSynthesisReason string

const (
	SkipSynthCreateIfFalse    SkippedSynthesisReason = "create_if_false"
	SkipSynthEncoderMissing   SkippedSynthesisReason = "encoder_unavailable"
	SkipSynthNoSourceTrack    SkippedSynthesisReason = "no_matching_source_track"
	SkipSynthWouldUpmix       SkippedSynthesisReason = "WOULD_UPMIX"
)

// SkippedSynthesis records a synthesis definition that was evaluated but
// produced no plan operation.
type SkippedSynthesis struct {
	Name   string
	Reason SkippedSynthesisReason
}

// Operation is one materialised step of a Plan.
type Operation struct {
	Kind OperationKind

	ContainerTarget string

	AudioDispositions      []TrackDisposition
	SubtitleDispositions   []TrackDisposition
	AttachmentDispositions []TrackDisposition

	TrackOrderPermutation []int // new track-index order, by original index

	DefaultFlagChanges []DefaultFlagChange

	ConditionalResult *ConditionalRuleResult

	Synthesis         []ResolvedSynthesis
	SkippedSynthesis  []SkippedSynthesis

	VideoTranscodeDecision *VideoTranscodeDecision
	AudioTranscodeTargets  []AudioTranscodeTarget

	Transcription *TranscriptionOp

	FileTimestamp *FileTimestampOp

	AudioActions    []ConditionalAction
	SubtitleActions []ConditionalAction
}

// DefaultFlagChange is one track's resolved default-flag mutation.
type DefaultFlagChange struct {
	TrackIndex int
	SetDefault bool
}

// ConditionalRuleResult records which rules fired and which branch.
type ConditionalRuleResult struct {
	RuleName    string
	Matched     bool
	AppliedWarn []string // rendered warning messages
	AppliedFail []string // rendered fail messages (non-empty => phase must fail)
}

// VideoTranscodeDecision is the pure function output of §4.F's video
// transcode decision.
type VideoTranscodeDecision struct {
	NeedsTranscode bool
	NeedsScale     bool
	TargetWidth    int
	TargetHeight   int
	Reasons        []string
	SourceTrackIdx int
	TargetCodec    string // canonical codec name the op requested, e.g. "hevc"
	TargetEncoder  string // "hardware" | "software" | "" (either)
}

// AudioTranscodeTarget is one existing audio track slated for re-encoding
// because it fails a compatibility check (e.g. MP4 container change).
type AudioTranscodeTarget struct {
	TrackIndex  int
	TargetCodec string
	BitrateKbps *int
}

// Plan is the Planner's output for one phase: an ordered, fully resolved
// operation list. A Plan is empty iff the phase is a no-op given the
// current track state.
type Plan struct {
	PhaseName  string
	Operations []Operation
	Skipped    bool
	SkipReason string
}

// IsEmpty reports whether the plan has no operations (including the case
// where the phase was gated out entirely).
func (p Plan) IsEmpty() bool {
	return p.Skipped || len(p.Operations) == 0
}
