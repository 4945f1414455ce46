package planner

import (
	"regexp"
	"strconv"
	"strings"

	"vpo/internal/evaluator"
	"vpo/internal/logging"
	"vpo/internal/model"
)

// Input bundles everything BuildPlan needs beyond the Phase itself: the
// file's current (classified) track set, the evaluator sidecar, the run
// history of earlier phases (for gating), the policy's global config
// (language preferences / commentary patterns), the target file's name
// and path (for conditional-rule template substitution), the encoders the
// configured Transcoder currently reports as available, and how many
// synth tracks earlier phases of this run have already produced.
type Input struct {
	TrackSet        model.TrackSet
	Sidecar         evaluator.Sidecar
	History         PhaseHistory
	Config          model.PolicyConfig
	Filename        string
	Path            string
	AvailableEncoders []string
	PriorSynthCount int
}

// BuildPlan reduces one Phase to a Plan against the given Input, per
// spec.md §4.F/§4.G's boundary: the Planner decides what to do, the Phase
// Executor (internal/phaseexec) carries it out. Conditional-rule skip
// flags only affect operations later in the canonical dispatch order
// within this same phase.
func BuildPlan(phase model.Phase, in Input) (model.Plan, error) {
	gate := Gate(phase, in.TrackSet, in.Sidecar, in.History)
	if gate.Skip {
		return model.Plan{PhaseName: phase.Name, Skipped: true, SkipReason: gate.Reason}, nil
	}

	plan := model.Plan{PhaseName: phase.Name}
	ts := in.TrackSet
	commentaryOf := commentaryClassifier(in.Config.CommentaryPatterns)
	specialOf := specialClassifier(in.Config.CommentaryPatterns, in.Sidecar)

	if phase.ContainerChange != nil {
		plan.Operations = append(plan.Operations, model.Operation{
			Kind:            model.OpContainerChange,
			ContainerTarget: phase.ContainerChange.TargetContainer,
		})
	}

	var skipFlags SkipFlags

	if phase.AudioFilter != nil {
		dispositions, err := FilterAudio(*phase.AudioFilter, ts, specialOf)
		if err != nil {
			return model.Plan{}, err
		}
		plan.Operations = append(plan.Operations, model.Operation{Kind: model.OpAudioFilter, AudioDispositions: dispositions})
	}

	if phase.SubtitleFilter != nil {
		willClearForced := subtitleActionsWillClearForced(phase.ConditionalRules)
		dispositions := FilterSubtitle(*phase.SubtitleFilter, ts, willClearForced)
		plan.Operations = append(plan.Operations, model.Operation{Kind: model.OpSubtitleFilter, SubtitleDispositions: dispositions})
	}

	if phase.AttachmentFilter != nil {
		dispositions, warning := FilterAttachment(*phase.AttachmentFilter, ts)
		if warning != "" {
			logging.PlannerDebug("phase %q: %s", phase.Name, warning)
		}
		plan.Operations = append(plan.Operations, model.Operation{Kind: model.OpAttachmentFilter, AttachmentDispositions: dispositions})
	}

	if phase.TrackOrder != nil {
		permutation := Reorder(*phase.TrackOrder, ts, DefaultClassifier)
		plan.Operations = append(plan.Operations, model.Operation{Kind: model.OpTrackOrder, TrackOrderPermutation: permutation})
	}

	if phase.DefaultFlags != nil {
		changes := DefaultFlags(*phase.DefaultFlags, ts)
		plan.Operations = append(plan.Operations, model.Operation{Kind: model.OpDefaultFlags, DefaultFlagChanges: changes})
	}

	var audioActionsFromRules, subtitleActionsFromRules []model.ConditionalAction
	if len(phase.ConditionalRules) > 0 {
		results, flags, audioActs, subtitleActs := Apply(phase.ConditionalRules, ts, in.Sidecar, in.Filename, in.Path)
		skipFlags = flags
		audioActionsFromRules = audioActs
		subtitleActionsFromRules = subtitleActs
		for _, r := range results {
			plan.Operations = append(plan.Operations, model.Operation{Kind: model.OpConditional, ConditionalResult: &r})
		}
	}

	if !skipFlags.TrackFilter && len(phase.AudioSynthesis) > 0 {
		var synths []model.ResolvedSynthesis
		var skipped []model.SkippedSynthesis
		priorCount := in.PriorSynthCount
		for _, def := range phase.AudioSynthesis {
			resolved, skip := ResolveSynthesis(def, SynthesisInput{
				TrackSet:          ts,
				Sidecar:           in.Sidecar,
				AvailableEncoders: in.AvailableEncoders,
				PriorSynthCount:   priorCount,
				CommentaryOf:      commentaryOf,
			})
			if resolved != nil {
				synths = append(synths, *resolved)
				priorCount++
			}
			if skip != nil {
				skipped = append(skipped, *skip)
			}
		}
		if len(synths) > 0 || len(skipped) > 0 {
			plan.Operations = append(plan.Operations, model.Operation{Kind: model.OpAudioSynthesis, Synthesis: synths, SkippedSynthesis: skipped})
		}
	}

	if !skipFlags.VideoTranscode && phase.VideoTranscode != nil {
		for _, source := range ts.ByType(model.TrackVideo) {
			decision := DecideVideoTranscode(source, *phase.VideoTranscode)
			if decision.NeedsTranscode {
				plan.Operations = append(plan.Operations, model.Operation{Kind: model.OpVideoTranscode, VideoTranscodeDecision: &decision})
			}
		}
	}

	if !skipFlags.AudioTranscode && phase.AudioTranscode != nil {
		var targets []model.AudioTranscodeTarget
		for _, t := range ts.ByType(model.TrackAudio) {
			if codecsEqual(t.Codec, phase.AudioTranscode.TargetCodec) {
				continue
			}
			targets = append(targets, model.AudioTranscodeTarget{
				TrackIndex:  t.TrackIndex,
				TargetCodec: phase.AudioTranscode.TargetCodec,
				BitrateKbps: phase.AudioTranscode.BitrateKbps,
			})
		}
		if len(targets) > 0 {
			plan.Operations = append(plan.Operations, model.Operation{Kind: model.OpAudioTranscode, AudioTranscodeTargets: targets})
		}
	}

	if phase.Transcription != nil {
		plan.Operations = append(plan.Operations, model.Operation{Kind: model.OpTranscription, Transcription: phase.Transcription})
	}

	if phase.FileTimestamp != nil {
		plan.Operations = append(plan.Operations, model.Operation{Kind: model.OpFileTimestamp, FileTimestamp: phase.FileTimestamp})
	}

	if len(audioActionsFromRules) > 0 {
		plan.Operations = append(plan.Operations, model.Operation{Kind: model.OpAudioActions, AudioActions: audioActionsFromRules})
	}
	if len(subtitleActionsFromRules) > 0 {
		plan.Operations = append(plan.Operations, model.Operation{Kind: model.OpSubtitleActions, SubtitleActions: subtitleActionsFromRules})
	}

	return plan, nil
}

func subtitleActionsWillClearForced(rules []model.ConditionalRule) bool {
	for _, rule := range rules {
		for _, action := range append(append([]model.ConditionalAction{}, rule.ThenActions...), rule.ElseActions...) {
			if action.Kind == model.ActionSetForced && action.TrackType != nil && *action.TrackType == model.TrackSubtitle && !action.BoolValue {
				return true
			}
		}
	}
	return false
}

// commentaryClassifier builds a predicate matching a track's title against
// the policy's commentary regex patterns.
func commentaryClassifier(patterns []string) func(model.Track) bool {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if re, err := regexp.Compile(p); err == nil {
			compiled = append(compiled, re)
		}
	}
	return func(t model.Track) bool {
		for _, re := range compiled {
			if re.MatchString(t.Title) {
				return true
			}
		}
		return false
	}
}

// specialClassifier resolves a track's "special" classification
// (commentary, music, sfx, non_speech) for track-filter preservation.
// Commentary is matched by title regex; the rest come from plugin
// metadata, keyed by track index under the "classifier" plugin.
func specialClassifier(commentaryPatterns []string, sc evaluator.Sidecar) func(model.Track) string {
	isCommentary := commentaryClassifier(commentaryPatterns)
	return func(t model.Track) string {
		if isCommentary(t) {
			return "commentary"
		}
		if plugin, ok := sc.PluginMetadata["classifier"]; ok {
			if v, ok := plugin[trackKey(t.TrackIndex)]; ok {
				v = strings.ToLower(v)
				switch v {
				case "music", "sfx", "non_speech":
					return v
				}
			}
		}
		return ""
	}
}

func trackKey(idx int) string {
	return "track_" + itoa(idx)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
