package planner

import (
	"bitbucket.org/creachadair/stringset"

	"vpo/internal/evaluator"
	"vpo/internal/model"
)

// FilterAudio applies a phase's audio TrackFilterOp to the current track
// set, returning one TrackDisposition per audio track. Special
// classifications named in PreserveSpecial are exempt from language
// filtering (they are always kept). If fewer than Minimum tracks survive,
// the configured Fallback is applied.
func FilterAudio(op model.TrackFilterOp, ts model.TrackSet, specialOf func(model.Track) string) ([]model.TrackDisposition, error) {
	audio := ts.ByType(model.TrackAudio)
	preserve := stringset.New(op.PreserveSpecial...)

	dispositions := make([]model.TrackDisposition, 0, len(audio))
	keptCount := 0
	for _, t := range audio {
		if cls := specialOf(t); cls != "" && preserve.Contains(cls) {
			dispositions = append(dispositions, model.TrackDisposition{TrackIndex: t.TrackIndex, Keep: true, Reason: "preserved special classification: " + cls})
			keptCount++
			continue
		}
		if len(op.KeepLanguages) == 0 || evaluator.LanguageMatches(op.KeepLanguages, t.Language) {
			dispositions = append(dispositions, model.TrackDisposition{TrackIndex: t.TrackIndex, Keep: true, Reason: "language matches keep-list"})
			keptCount++
			continue
		}
		dispositions = append(dispositions, model.TrackDisposition{TrackIndex: t.TrackIndex, Keep: false, Reason: "language not in keep-list"})
	}

	if keptCount >= op.Minimum {
		return dispositions, nil
	}

	switch op.Fallback {
	case model.FallbackKeepAll, "":
		return keepAllAudio(audio, "fallback: keep_all"), nil
	case model.FallbackKeepFirst:
		return keepFirstAudio(audio), nil
	case model.FallbackContentLanguage:
		return keepContentLanguage(audio), nil
	case model.FallbackError:
		if op.Minimum <= 0 {
			// §9 open question: minimum=0 with fallback=error always
			// succeeds, never raises.
			return dispositions, nil
		}
		return nil, &model.InsufficientTracksError{
			Required:        op.Minimum,
			Available:       keptCount,
			PolicyLanguages: op.KeepLanguages,
			FileLanguages:   fileLanguages(audio),
		}
	default:
		return dispositions, nil
	}
}

func keepAllAudio(audio []model.Track, reason string) []model.TrackDisposition {
	out := make([]model.TrackDisposition, len(audio))
	for i, t := range audio {
		out[i] = model.TrackDisposition{TrackIndex: t.TrackIndex, Keep: true, Reason: reason}
	}
	return out
}

func keepFirstAudio(audio []model.Track) []model.TrackDisposition {
	out := make([]model.TrackDisposition, len(audio))
	for i, t := range audio {
		out[i] = model.TrackDisposition{TrackIndex: t.TrackIndex, Keep: i == 0, Reason: "fallback: keep_first"}
	}
	return out
}

// keepContentLanguage keeps every track matching the language of the
// first audio track (spec.md §4.F).
func keepContentLanguage(audio []model.Track) []model.TrackDisposition {
	out := make([]model.TrackDisposition, len(audio))
	if len(audio) == 0 {
		return out
	}
	want := audio[0].Language
	for i, t := range audio {
		keep := evaluator.LanguageMatches([]string{want}, t.Language)
		out[i] = model.TrackDisposition{TrackIndex: t.TrackIndex, Keep: keep, Reason: "fallback: content language match (" + want + ")"}
	}
	return out
}

func fileLanguages(audio []model.Track) []string {
	seen := stringset.New()
	var out []string
	for _, t := range audio {
		if t.Language == "" || seen.Contains(t.Language) {
			continue
		}
		seen.Add(t.Language)
		out = append(out, t.Language)
	}
	return out
}

// FilterSubtitle applies a phase's subtitle SubtitleFilterOp. willClearForced
// reports whether a later subtitle_actions operation in the same phase will
// clear the forced flag — if so, PreserveForced must not key off the
// current forced state (spec.md §4.F).
func FilterSubtitle(op model.SubtitleFilterOp, ts model.TrackSet, willClearForced bool) []model.TrackDisposition {
	subs := ts.ByType(model.TrackSubtitle)
	out := make([]model.TrackDisposition, 0, len(subs))

	if op.RemoveAll {
		for _, t := range subs {
			out = append(out, model.TrackDisposition{TrackIndex: t.TrackIndex, Keep: false, Reason: "remove_all"})
		}
		return out
	}

	for _, t := range subs {
		if op.PreserveForced && !willClearForced && t.Forced {
			out = append(out, model.TrackDisposition{TrackIndex: t.TrackIndex, Keep: true, Reason: "preserve_forced"})
			continue
		}
		if len(op.KeepLanguages) == 0 || evaluator.LanguageMatches(op.KeepLanguages, t.Language) {
			out = append(out, model.TrackDisposition{TrackIndex: t.TrackIndex, Keep: true, Reason: "language matches keep-list"})
			continue
		}
		out = append(out, model.TrackDisposition{TrackIndex: t.TrackIndex, Keep: false, Reason: "language not in keep-list"})
	}
	return out
}

// FilterAttachment applies a phase's attachment AttachmentFilterOp. If
// remove_all is set and the file carries ASS/SSA subtitles with font
// attachments, a warning is returned alongside the dispositions.
func FilterAttachment(op model.AttachmentFilterOp, ts model.TrackSet) ([]model.TrackDisposition, string) {
	attachments := ts.ByType(model.TrackAttachment)
	out := make([]model.TrackDisposition, 0, len(attachments))

	if !op.RemoveAll {
		for _, t := range attachments {
			out = append(out, model.TrackDisposition{TrackIndex: t.TrackIndex, Keep: true, Reason: "no removal requested"})
		}
		return out, ""
	}

	warning := ""
	if hasFontAttachments(attachments) && hasASSOrSSA(ts) {
		warning = "removing all attachments may affect ASS/SSA subtitle styling (fonts removed)"
	}
	for _, t := range attachments {
		out = append(out, model.TrackDisposition{TrackIndex: t.TrackIndex, Keep: false, Reason: "remove_all"})
	}
	return out, warning
}

func hasFontAttachments(attachments []model.Track) bool {
	for _, t := range attachments {
		if t.Codec == "ttf" || t.Codec == "otf" || t.Codec == "font" {
			return true
		}
	}
	return len(attachments) > 0
}

func hasASSOrSSA(ts model.TrackSet) bool {
	for _, t := range ts.ByType(model.TrackSubtitle) {
		switch t.Codec {
		case "ass", "ssa", "substationalpha":
			return true
		}
	}
	return false
}
