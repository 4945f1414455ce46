package planner

import (
	"strings"

	"vpo/internal/model"
)

// codecAliases canonicalises codec name spellings that refer to the same
// format (spec.md §4.F): h265/hevc/x265, h264/avc, aac/mp4a.
var codecAliases = map[string]string{
	"h265": "hevc", "x265": "hevc", "hevc": "hevc",
	"h264": "avc", "x264": "avc", "avc": "avc", "avc1": "avc",
	"aac": "aac", "mp4a": "aac",
}

func canonicalCodec(codec string) string {
	c := strings.ToLower(strings.TrimSpace(codec))
	if canon, ok := codecAliases[c]; ok {
		return canon
	}
	return c
}

func codecsEqual(a, b string) bool {
	return canonicalCodec(a) == canonicalCodec(b)
}

// HDRFormat enumerates the HDR signalling a video track can carry.
type HDRFormat string

const (
	HDRNone       HDRFormat = ""
	HDR10         HDRFormat = "HDR10"
	HDRHLG        HDRFormat = "HLG"
	HDRDolbyVision HDRFormat = "DOLBY_VISION"
)

// DetectHDR examines color_transfer first (smpte2084 -> HDR10,
// arib-std-b67 -> HLG), falling back to the track title for Dolby Vision
// signalling the container/tags don't otherwise carry.
func DetectHDR(t model.Track) HDRFormat {
	switch strings.ToLower(t.ColorTransfer) {
	case "smpte2084", "smpte-st-2084", "pq":
		return HDR10
	case "arib-std-b67", "std-b67", "hlg":
		return HDRHLG
	}
	if strings.Contains(strings.ToLower(t.Title), "dolby vision") || strings.Contains(strings.ToLower(t.Title), "dovi") {
		return HDRDolbyVision
	}
	return HDRNone
}

// DecideVideoTranscode is the pure function over (codec, width, height,
// policy) spec.md §4.F describes. Scaling preserves aspect ratio and
// rounds to the nearest even integer (required by most video encoders'
// chroma subsampling).
func DecideVideoTranscode(source model.Track, op model.VideoTranscodeOp) model.VideoTranscodeDecision {
	decision := model.VideoTranscodeDecision{
		SourceTrackIdx: source.TrackIndex,
		TargetCodec:    op.TargetCodec,
		TargetEncoder:  op.TargetEncoder,
	}

	if op.TargetCodec != "" && !codecsEqual(source.Codec, op.TargetCodec) {
		decision.NeedsTranscode = true
		decision.Reasons = append(decision.Reasons, "codec mismatch: have "+canonicalCodec(source.Codec)+" want "+canonicalCodec(op.TargetCodec))
	}

	targetW, targetH := source.Width, source.Height
	needsScale := false
	if op.MaxWidth > 0 && source.Width > op.MaxWidth {
		needsScale = true
	}
	if op.MaxHeight > 0 && source.Height > op.MaxHeight {
		needsScale = true
	}
	if needsScale && source.Width > 0 && source.Height > 0 {
		targetW, targetH = scalePreservingAspect(source.Width, source.Height, op.MaxWidth, op.MaxHeight)
		decision.NeedsScale = true
		decision.NeedsTranscode = true
		decision.Reasons = append(decision.Reasons, "scale down to fit max dimensions")
	}
	decision.TargetWidth = targetW
	decision.TargetHeight = targetH

	if hdr := DetectHDR(source); hdr != HDRNone && op.PreserveHDR {
		decision.Reasons = append(decision.Reasons, "preserving "+string(hdr)+" color metadata (BT.2020 primaries, transfer function); no tone-mapping performed")
	}

	return decision
}

// scalePreservingAspect computes target dimensions that fit within
// (maxW, maxH) while preserving source aspect ratio, rounded to the
// nearest even integer. A zero maxW or maxH means "unconstrained on that
// axis".
func scalePreservingAspect(srcW, srcH, maxW, maxH int) (int, int) {
	w, h := srcW, srcH

	if maxW > 0 && w > maxW {
		h = h * maxW / w
		w = maxW
	}
	if maxH > 0 && h > maxH {
		w = w * maxH / h
		h = maxH
	}

	return roundToEven(w), roundToEven(h)
}

func roundToEven(n int) int {
	if n%2 != 0 {
		n++
	}
	return n
}
