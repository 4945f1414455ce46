package tooladapter

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"vpo/internal/model"
)

// ffmpegTranscoder implements Transcoder over an ffmpeg-class binary,
// supporting both hardware and software encoders. Capability discovery is
// cached across calls since it is expensive relative to job frequency.
type ffmpegTranscoder struct {
	binary string
	caps   *EncoderCapabilities
}

// NewTranscoder returns the Transcoder backed by the given ffmpeg-class
// binary name.
func NewTranscoder(binary string) Transcoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &ffmpegTranscoder{binary: binary}
}

func (t *ffmpegTranscoder) Name() string              { return t.binary }
func (t *ffmpegTranscoder) Available(ctx context.Context) bool { return available(t.binary) }

// Capabilities enumerates the available video and audio encoders (from
// the binary's encoder list), caching the result for the lifetime of this
// Transcoder instance. Decoders, muxers and filters are not queried, so
// VideoDecoders, Muxers and Filters stay empty.
func (t *ffmpegTranscoder) Capabilities(ctx context.Context) (EncoderCapabilities, error) {
	if t.caps != nil {
		return *t.caps, nil
	}
	if !t.Available(ctx) {
		return EncoderCapabilities{}, &model.ToolUnavailableError{Tool: t.binary, Purpose: "capability discovery"}
	}

	stdout, _, err := runCapture(ctx, Timeout, t.binary, "-hide_banner", "-encoders")
	if err != nil {
		return EncoderCapabilities{}, err
	}

	caps := EncoderCapabilities{}
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		flags, name := fields[0], fields[1]
		if !strings.HasPrefix(flags, "V") && !strings.HasPrefix(flags, "A") {
			continue
		}
		switch {
		case strings.HasPrefix(flags, "V"):
			caps.VideoEncoders = append(caps.VideoEncoders, name)
			if isHardwareEncoder(name) {
				caps.HasHardware = true
			}
		case strings.HasPrefix(flags, "A"):
			caps.AudioEncoders = append(caps.AudioEncoders, name)
		}
	}

	t.caps = &caps
	return caps, nil
}

func isHardwareEncoder(name string) bool {
	for _, suffix := range []string{"_nvenc", "_qsv", "_vaapi", "_videotoolbox", "_amf"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// Transcode re-encodes according to decision, streaming progress ticks,
// and swaps the result into place with the same backup discipline as
// Remux.
func (t *ffmpegTranscoder) Transcode(ctx context.Context, path string, decision TranscodeDecision, onProgress func(ProgressTick)) (string, error) {
	if decision.IsEmpty() {
		return path, nil
	}
	if !t.Available(ctx) {
		return "", &model.ToolUnavailableError{Tool: t.binary, Purpose: "transcode"}
	}

	tmp := tempSibling(path)
	args := []string{"-y", "-i", path, "-progress", "pipe:1", "-nostats"}

	if decision.VideoTargetCodec != "" {
		encoder := decision.VideoEncoder
		if encoder == "" {
			encoder = decision.VideoTargetCodec
		}
		args = append(args, "-c:v", encoder)
		if decision.TargetWidth > 0 && decision.TargetHeight > 0 {
			args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", decision.TargetWidth, decision.TargetHeight))
		}
	} else {
		args = append(args, "-c:v", "copy")
	}

	if len(decision.AudioTargets) == 0 {
		args = append(args, "-c:a", "copy")
	} else {
		for _, a := range decision.AudioTargets {
			streamSel := fmt.Sprintf("a:%d", a.TrackIndex)
			args = append(args, "-c:"+streamSel, a.TargetCodec)
			if a.BitrateKbps != nil {
				args = append(args, "-b:"+streamSel, fmt.Sprintf("%dk", *a.BitrateKbps))
			}
		}
	}
	args = append(args, tmp)

	stderr, err := runWithProgress(ctx, Timeout, onProgress, t.binary, args...)
	if err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("transcode failed: %w (stderr: %.200s)", err, stderr)
	}
	return swapWithBackup(path, tmp)
}
