package planner

import (
	"sort"
	"strings"

	"vpo/internal/evaluator"
	"vpo/internal/model"
)

// bitrateDefaults is the codec x channels default bitrate table (kbps),
// consulted when a synthesis definition leaves BitrateKbps unset. Lossless
// flac, codecs absent from the table, and channel counts absent from a
// codec's row get no default bitrate.
var bitrateDefaults = map[string]map[int]int{
	"eac3": {2: 192, 6: 640, 8: 768},
	"ac3":  {2: 192, 6: 448},
	"aac":  {2: 192, 6: 384},
	"opus": {2: 128, 6: 320},
}

// validateSynthesisName rejects '/', '\', or ".." anywhere in the name,
// even in positions that would otherwise be harmless (§9 open question:
// keep the conservative rejection).
func validateSynthesisName(name string) bool {
	if strings.ContainsAny(name, `/\`) {
		return false
	}
	if strings.Contains(name, "..") {
		return false
	}
	return true
}

// SynthesisInput bundles what ResolveSynthesis needs beyond the definition
// itself: the current (post-filter) track set, the evaluator sidecar for
// create_if, which audio encoders the configured Transcoder can produce,
// and the running count of synth tracks already resolved earlier in this
// phase (for "end" position resolution).
type SynthesisInput struct {
	TrackSet        model.TrackSet
	Sidecar         evaluator.Sidecar
	AvailableEncoders []string
	PriorSynthCount int
	CommentaryOf    func(model.Track) bool
}

// ResolveSynthesis runs the seven-step algorithm of spec.md §4.F for one
// AudioSynthesisDef, yielding either a ResolvedSynthesis or a
// SkippedSynthesis explaining why no operation was produced.
func ResolveSynthesis(def model.AudioSynthesisDef, in SynthesisInput) (*model.ResolvedSynthesis, *model.SkippedSynthesis) {
	if !validateSynthesisName(def.Name) {
		return nil, &model.SkippedSynthesis{Name: def.Name, Reason: model.SkipSynthNoSourceTrack}
	}

	// 1. create_if, default true.
	if def.CreateIf != nil {
		ok, _ := evaluator.Evaluate(*def.CreateIf, in.TrackSet, in.Sidecar)
		if !ok {
			return nil, &model.SkippedSynthesis{Name: def.Name, Reason: model.SkipSynthCreateIfFalse}
		}
	}

	// 2. target encoder availability.
	if !encoderAvailable(in.AvailableEncoders, def.TargetCodec) {
		return nil, &model.SkippedSynthesis{Name: def.Name, Reason: model.SkipSynthEncoderMissing}
	}

	// 3. select source track by preference list.
	source, ok := selectSynthesisSource(def.Preferences, in.TrackSet.ByType(model.TrackAudio), in.CommentaryOf)
	if !ok {
		return nil, &model.SkippedSynthesis{Name: def.Name, Reason: model.SkipSynthNoSourceTrack}
	}

	// 4. validate downmix: no upmix.
	if def.TargetChannels > source.Channels {
		return nil, &model.SkippedSynthesis{Name: def.Name, Reason: model.SkipSynthWouldUpmix}
	}

	// 5. compute bitrate.
	bitrate := resolveBitrate(def, source)

	// 6. resolve title/language.
	title := def.Title
	if title == "" || title == "inherit" {
		title = source.Title
	}
	language := def.Language
	if language == "" || language == "inherit" {
		language = source.Language
	}

	// 7. resolve target position.
	position := resolveTargetPosition(def.TargetPosition, source, in.TrackSet, in.PriorSynthCount)

	return &model.ResolvedSynthesis{
		Name:           def.Name,
		SourceTrackIdx: source.TrackIndex,
		TargetCodec:    def.TargetCodec,
		TargetChannels: def.TargetChannels,
		BitrateKbps:    bitrate,
		Title:          title,
		Language:       language,
		TargetPosition: position,
	}, nil
}

func encoderAvailable(available []string, codec string) bool {
	want := strings.ToLower(codec)
	for _, enc := range available {
		if strings.Contains(strings.ToLower(enc), want) {
			return true
		}
	}
	return false
}

// selectSynthesisSource applies each PreferenceCriterion in order. A
// criterion that would eliminate every remaining candidate is skipped
// instead, per spec.md §4.F step 3. The first criterion that imposes an
// ordering (e.g. channels MAX/MIN) ranks the final survivor set; ties
// break by original track index ascending.
func selectSynthesisSource(prefs []model.PreferenceCriterion, candidates []model.Track, commentaryOf func(model.Track) bool) (model.Track, bool) {
	if len(candidates) == 0 {
		return model.Track{}, false
	}

	survivors := append([]model.Track(nil), candidates...)
	var rankingCriterion *model.PreferenceCriterion

	for i := range prefs {
		p := &prefs[i]
		filtered := filterByCriterion(*p, survivors, commentaryOf)
		if len(filtered) == 0 {
			continue // criterion yields none: skip, keep narrowing the prior set
		}
		survivors = filtered
		if p.Kind == model.PrefChannels && rankingCriterion == nil {
			rankingCriterion = p
		}
	}

	if rankingCriterion != nil {
		survivors = rankByChannels(survivors, rankingCriterion.Channels)
	} else {
		sort.SliceStable(survivors, func(i, j int) bool { return survivors[i].TrackIndex < survivors[j].TrackIndex })
	}

	if len(survivors) == 0 {
		return model.Track{}, false
	}
	return survivors[0], true
}

func filterByCriterion(p model.PreferenceCriterion, candidates []model.Track, commentaryOf func(model.Track) bool) []model.Track {
	var out []model.Track
	switch p.Kind {
	case model.PrefLanguage:
		for _, t := range candidates {
			if evaluator.LanguageMatches(p.Language, t.Language) {
				out = append(out, t)
			}
		}
	case model.PrefNotCommentary:
		for _, t := range candidates {
			if commentaryOf == nil || !commentaryOf(t) {
				out = append(out, t)
			}
		}
	case model.PrefCodec:
		for _, t := range candidates {
			if codecMatchesAny(p.Codec, t.Codec) {
				out = append(out, t)
			}
		}
	case model.PrefChannels:
		// Channels is a ranking criterion, not a filter; pass through
		// unchanged here, ranking is applied once at the end.
		out = candidates
	}
	return out
}

func codecMatchesAny(want []string, codec string) bool {
	codec = strings.ToLower(codec)
	for _, w := range want {
		if strings.EqualFold(w, codec) {
			return true
		}
	}
	return false
}

func rankByChannels(candidates []model.Track, pref model.ChannelsPreference) []model.Track {
	sorted := append([]model.Track(nil), candidates...)
	switch {
	case pref.Max:
		sort.SliceStable(sorted, func(i, j int) bool {
			if sorted[i].Channels != sorted[j].Channels {
				return sorted[i].Channels > sorted[j].Channels
			}
			return sorted[i].TrackIndex < sorted[j].TrackIndex
		})
	case pref.Min:
		sort.SliceStable(sorted, func(i, j int) bool {
			if sorted[i].Channels != sorted[j].Channels {
				return sorted[i].Channels < sorted[j].Channels
			}
			return sorted[i].TrackIndex < sorted[j].TrackIndex
		})
	default:
		var exact []model.Track
		for _, t := range sorted {
			if t.Channels == pref.Exact {
				exact = append(exact, t)
			}
		}
		if len(exact) > 0 {
			sorted = exact
		}
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TrackIndex < sorted[j].TrackIndex })
	}
	return sorted
}

func resolveBitrate(def model.AudioSynthesisDef, source model.Track) *int {
	if def.BitrateKbps != nil {
		return def.BitrateKbps
	}
	codec := strings.ToLower(def.TargetCodec)
	if codec == "flac" {
		return nil
	}
	table, ok := bitrateDefaults[codec]
	if !ok {
		return nil
	}
	if kbps, ok := table[def.TargetChannels]; ok {
		v := kbps
		return &v
	}
	return nil
}

func resolveTargetPosition(spec string, source model.Track, ts model.TrackSet, priorSynthCount int) int {
	switch spec {
	case "", "end":
		return len(ts.Tracks) + priorSynthCount + 1
	case "after_source":
		return audioIndexOf(ts, source.TrackIndex) + 1
	default:
		if n, ok := parsePositiveInt(spec); ok {
			return n
		}
		return len(ts.Tracks) + priorSynthCount + 1
	}
}

func audioIndexOf(ts model.TrackSet, trackIndex int) int {
	audio := ts.ByType(model.TrackAudio)
	for i, t := range audio {
		if t.TrackIndex == trackIndex {
			return i + 1
		}
	}
	return len(audio)
}

func parsePositiveInt(s string) (int, bool) {
	n := 0
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}
