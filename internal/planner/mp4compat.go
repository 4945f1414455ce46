package planner

import "strings"

// mp4CompatibleVideoCodecs and mp4CompatibleAudioCodecs are the codec sets
// MP4 can carry without a transcode (spec.md §4.F "MP4 compatibility").
var mp4CompatibleVideoCodecs = map[string]bool{
	"avc": true, "hevc": true, "av1": true,
}

var mp4CompatibleAudioCodecs = map[string]bool{
	"aac": true, "ac3": true, "eac3": true, "alac": true, "flac": true,
}

// mp4AudioTranscodeDefaults maps an incompatible source audio codec to its
// MP4 transcode target codec and bitrate, e.g. TrueHD -> AAC 256k,
// DTS-HD -> AAC 320k.
var mp4AudioTranscodeDefaults = map[string]struct {
	Codec       string
	BitrateKbps int
}{
	"truehd": {Codec: "aac", BitrateKbps: 256},
	"dts-hd": {Codec: "aac", BitrateKbps: 320},
	"dtshd":  {Codec: "aac", BitrateKbps: 320},
	"dts":    {Codec: "aac", BitrateKbps: 256},
	"pcm_s16le": {Codec: "aac", BitrateKbps: 256},
	"pcm_s24le": {Codec: "aac", BitrateKbps: 320},
}

// NeedsVideoTranscodeForMP4 reports whether a video codec must be
// transcoded to move the file into an MP4 container.
func NeedsVideoTranscodeForMP4(codec string) bool {
	return !mp4CompatibleVideoCodecs[canonicalCodec(codec)]
}

// MP4AudioTranscodeTarget reports whether an audio codec must be
// transcoded to move the file into an MP4 container, and if so, to what.
func MP4AudioTranscodeTarget(codec string) (targetCodec string, bitrateKbps int, needed bool) {
	c := strings.ToLower(codec)
	if mp4CompatibleAudioCodecs[c] {
		return "", 0, false
	}
	if def, ok := mp4AudioTranscodeDefaults[c]; ok {
		return def.Codec, def.BitrateKbps, true
	}
	// Unknown codec: conservatively assume it needs a transcode, default
	// to the same fallback MP4 muxers use for "unrecognised lossy".
	return "aac", 256, true
}
