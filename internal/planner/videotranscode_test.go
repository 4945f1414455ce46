package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vpo/internal/model"
)

func TestDecideVideoTranscodeCodecMismatch(t *testing.T) {
	source := model.Track{TrackIndex: 0, Codec: "h264", Width: 1920, Height: 1080}
	decision := DecideVideoTranscode(source, model.VideoTranscodeOp{TargetCodec: "hevc"})

	require.True(t, decision.NeedsTranscode)
	require.False(t, decision.NeedsScale)
	require.Equal(t, 1920, decision.TargetWidth)
	require.Equal(t, 1080, decision.TargetHeight)
}

func TestDecideVideoTranscodeCodecAliasesMatch(t *testing.T) {
	source := model.Track{TrackIndex: 0, Codec: "x265"}
	decision := DecideVideoTranscode(source, model.VideoTranscodeOp{TargetCodec: "hevc"})
	require.False(t, decision.NeedsTranscode)
}

func TestDecideVideoTranscodeScalesDownPreservingAspect(t *testing.T) {
	source := model.Track{TrackIndex: 0, Codec: "hevc", Width: 3840, Height: 2160}
	decision := DecideVideoTranscode(source, model.VideoTranscodeOp{TargetCodec: "hevc", MaxWidth: 1920, MaxHeight: 1080})

	require.True(t, decision.NeedsTranscode)
	require.True(t, decision.NeedsScale)
	require.Equal(t, 1920, decision.TargetWidth)
	require.Equal(t, 1080, decision.TargetHeight)
}

func TestDecideVideoTranscodeNoChangeNeeded(t *testing.T) {
	source := model.Track{TrackIndex: 0, Codec: "hevc", Width: 1280, Height: 720}
	decision := DecideVideoTranscode(source, model.VideoTranscodeOp{TargetCodec: "hevc", MaxWidth: 1920, MaxHeight: 1080})
	require.False(t, decision.NeedsTranscode)
	require.False(t, decision.NeedsScale)
}

func TestDecideVideoTranscodePreservesHDRNote(t *testing.T) {
	source := model.Track{TrackIndex: 0, Codec: "hevc", ColorTransfer: "smpte2084"}
	decision := DecideVideoTranscode(source, model.VideoTranscodeOp{TargetCodec: "hevc", PreserveHDR: true})
	require.NotEmpty(t, decision.Reasons)
}

func TestDetectHDR(t *testing.T) {
	require.Equal(t, HDR10, DetectHDR(model.Track{ColorTransfer: "smpte2084"}))
	require.Equal(t, HDRHLG, DetectHDR(model.Track{ColorTransfer: "arib-std-b67"}))
	require.Equal(t, HDRDolbyVision, DetectHDR(model.Track{Title: "Dolby Vision"}))
	require.Equal(t, HDRNone, DetectHDR(model.Track{}))
}

func TestScalePreservingAspectRoundsToEven(t *testing.T) {
	w, h := scalePreservingAspect(1921, 1081, 1920, 1080)
	require.Zero(t, w%2)
	require.Zero(t, h%2)
}
