package tooladapter

import (
	"context"

	"golang.org/x/sync/errgroup"

	"vpo/internal/model"
)

// Adapters bundles one instance of each of the four tool roles, resolved
// once at worker startup and reused across jobs (capability discovery is
// expensive relative to job frequency).
type Adapters struct {
	Introspector   Introspector
	MetadataEditor MetadataEditor
	MatroskaRemux  Remuxer
	OtherRemux     Remuxer
	Transcoder     Transcoder
}

// NewAdapters wires the default tool set: ffprobe, mkvpropedit, mkvmerge,
// ffmpeg.
func NewAdapters() *Adapters {
	return &Adapters{
		Introspector:   NewIntrospector(""),
		MetadataEditor: NewMetadataEditor(""),
		MatroskaRemux:  NewMatroskaRemuxer(""),
		OtherRemux:     NewFFmpegRemuxer(""),
		Transcoder:     NewTranscoder(""),
	}
}

// RoutePlan describes what one phase's resolved plan needs from the
// remux/metadata layer, independent of the video/audio transcode decision
// (which is always routed to the Transcoder directly).
type RoutePlan struct {
	ChangesContainer bool
	TargetContainer  string
	RemovesTracks    bool
	ReordersTracks   bool
	MetadataEdit     MetadataEdit
	RemuxPlan        RemuxPlan
}

// SelectRemuxOrEditor implements spec.md §4.C's priority-ordered adapter
// selection for one phase's non-transcode operations:
//  1. container change -> Remuxer targeting the new container
//  2. track removal -> Remuxer (Matroska needs the mkvmerge-class tool,
//     non-Matroska needs the ffmpeg-class tool)
//  3. track reorder -> a Remuxer capable of reordering
//  4. else -> MetadataEditor in-place
//
// Each step checks availability before committing to it; if the selected
// tool is unavailable, a ToolUnavailableError names it and its purpose.
func (a *Adapters) SelectRemuxOrEditor(ctx context.Context, currentContainer string, rp RoutePlan) (useRemuxer Remuxer, useEditor MetadataEditor, err error) {
	targetContainer := rp.TargetContainer
	if targetContainer == "" {
		targetContainer = currentContainer
	}

	switch {
	case rp.ChangesContainer:
		r := a.remuxerFor(targetContainer)
		if !r.Available(ctx) {
			return nil, nil, &model.ToolUnavailableError{Tool: r.Name(), Purpose: "container change"}
		}
		return r, nil, nil

	case rp.RemovesTracks:
		r := a.remuxerFor(targetContainer)
		if !r.Available(ctx) {
			return nil, nil, &model.ToolUnavailableError{Tool: r.Name(), Purpose: "track filtering"}
		}
		return r, nil, nil

	case rp.ReordersTracks:
		r := a.remuxerFor(targetContainer)
		if !r.SupportsReorder() {
			r = a.OtherRemux
		}
		if !r.Available(ctx) {
			return nil, nil, &model.ToolUnavailableError{Tool: r.Name(), Purpose: "track reorder"}
		}
		return r, nil, nil

	default:
		if !a.MetadataEditor.Available(ctx) {
			return nil, nil, &model.ToolUnavailableError{Tool: a.MetadataEditor.Name(), Purpose: "in-place metadata edit"}
		}
		return nil, a.MetadataEditor, nil
	}
}

func (a *Adapters) remuxerFor(container string) Remuxer {
	if a.MatroskaRemux.SupportsContainer(container) {
		return a.MatroskaRemux
	}
	return a.OtherRemux
}

// CapabilityReport summarises which of the worker's five external tools
// responded at startup, and what the transcoder reported it can encode.
type CapabilityReport struct {
	IntrospectorAvailable   bool
	MetadataEditorAvailable bool
	MatroskaRemuxAvailable  bool
	OtherRemuxAvailable     bool
	TranscoderAvailable     bool
	Capabilities            EncoderCapabilities
}

// DiscoverCapabilities probes every configured tool concurrently: each
// Available/Capabilities call shells out independently, so running them
// one at a time would serialize five process-spawn round trips for no
// reason. A probe failing or a tool being missing is recorded in the
// report rather than treated as fatal — the worker degrades per-job via
// ToolUnavailableError instead of refusing to start.
func (a *Adapters) DiscoverCapabilities(ctx context.Context) CapabilityReport {
	var report CapabilityReport
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { report.IntrospectorAvailable = a.Introspector.Available(gctx); return nil })
	g.Go(func() error { report.MetadataEditorAvailable = a.MetadataEditor.Available(gctx); return nil })
	g.Go(func() error { report.MatroskaRemuxAvailable = a.MatroskaRemux.Available(gctx); return nil })
	g.Go(func() error { report.OtherRemuxAvailable = a.OtherRemux.Available(gctx); return nil })
	g.Go(func() error {
		report.TranscoderAvailable = a.Transcoder.Available(gctx)
		if report.TranscoderAvailable {
			if caps, err := a.Transcoder.Capabilities(gctx); err == nil {
				report.Capabilities = caps
			}
		}
		return nil
	})

	_ = g.Wait() // every goroutine above only ever returns nil; errors surface as zero-value fields
	return report
}
