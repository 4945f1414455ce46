package tooladapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"vpo/internal/logging"
	"vpo/internal/model"
)

// ffprobeIntrospector implements Introspector over an ffprobe-class binary,
// the read-only probe tool identified by spec.md §4.C.
type ffprobeIntrospector struct {
	binary string
}

// NewIntrospector returns the Introspector backed by the given ffprobe-class
// binary name (resolved on PATH at call time).
func NewIntrospector(binary string) Introspector {
	if binary == "" {
		binary = "ffprobe"
	}
	return &ffprobeIntrospector{binary: binary}
}

func (p *ffprobeIntrospector) Name() string { return p.binary }

func (p *ffprobeIntrospector) Available(ctx context.Context) bool {
	return available(p.binary)
}

type ffprobeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeStream struct {
	Index         int               `json:"index"`
	CodecType     string            `json:"codec_type"`
	CodecName     string            `json:"codec_name"`
	Width         int               `json:"width"`
	Height        int               `json:"height"`
	Channels      int               `json:"channels"`
	ChannelLayout string            `json:"channel_layout"`
	RFrameRate    string            `json:"r_frame_rate"`
	ColorTransfer string            `json:"color_transfer"`
	ColorPrimaries string           `json:"color_primaries"`
	ColorSpace    string            `json:"color_space"`
	ColorRange    string            `json:"color_range"`
	Duration      string            `json:"duration"`
	Disposition   map[string]int    `json:"disposition"`
	Tags          map[string]string `json:"tags"`
}

// Probe invokes the introspector and parses the container/track layout. It
// performs no side effects.
func (p *ffprobeIntrospector) Probe(ctx context.Context, path string) (ContainerProbe, error) {
	if !p.Available(ctx) {
		return ContainerProbe{}, &model.ToolUnavailableError{Tool: p.binary, Purpose: "introspection"}
	}

	stdout, stderr, err := runCapture(ctx, Timeout, p.binary,
		"-v", "error", "-print_format", "json",
		"-show_format", "-show_streams", path)
	if err != nil {
		logging.ToolAdapterDebug("probe failed for %s: %s", path, stderr)
		return ContainerProbe{}, err
	}

	var out ffprobeOutput
	if jsonErr := json.Unmarshal([]byte(stdout), &out); jsonErr != nil {
		return ContainerProbe{}, fmt.Errorf("parse probe output: %w", jsonErr)
	}

	probe := ContainerProbe{Container: firstFormatName(out.Format.FormatName)}
	if d, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil {
		probe.Duration = d
	}

	trackIndex := 0
	for _, s := range out.Streams {
		t, ok := toTrack(s, trackIndex)
		if !ok {
			continue
		}
		trackIndex++
		probe.Tracks = append(probe.Tracks, t)
	}
	return probe, nil
}

func firstFormatName(raw string) string {
	// ffprobe reports comma-separated aliases (e.g. "matroska,webm"); the
	// first is the canonical name.
	for i, c := range raw {
		if c == ',' {
			return raw[:i]
		}
	}
	return raw
}

func toTrack(s ffprobeStream, index int) (model.Track, bool) {
	var t model.Track
	t.TrackIndex = index
	t.Codec = s.CodecName
	t.Title = s.Tags["title"]
	t.Language = s.Tags["language"]
	t.Default = s.Disposition["default"] != 0
	t.Forced = s.Disposition["forced"] != 0
	if d, err := strconv.ParseFloat(s.Duration, 64); err == nil {
		t.Duration = d
	}

	switch s.CodecType {
	case "video":
		t.Type = model.TrackVideo
		t.Width = s.Width
		t.Height = s.Height
		t.ColorTransfer = s.ColorTransfer
		t.ColorPrimaries = s.ColorPrimaries
		t.ColorSpace = s.ColorSpace
		t.ColorRange = s.ColorRange
		t.FrameRate = parseFrameRate(s.RFrameRate)
	case "audio":
		t.Type = model.TrackAudio
		t.Channels = s.Channels
		t.ChannelLayout = s.ChannelLayout
	case "subtitle":
		t.Type = model.TrackSubtitle
	case "attachment":
		t.Type = model.TrackAttachment
	default:
		return model.Track{}, false
	}
	return t, true
}

// parseFrameRate parses ffprobe's "num/den" rational frame rate strings.
func parseFrameRate(raw string) float64 {
	for i, c := range raw {
		if c == '/' {
			num, errNum := strconv.ParseFloat(raw[:i], 64)
			den, errDen := strconv.ParseFloat(raw[i+1:], 64)
			if errNum == nil && errDen == nil && den != 0 {
				return num / den
			}
			return 0
		}
	}
	f, _ := strconv.ParseFloat(raw, 64)
	return f
}
