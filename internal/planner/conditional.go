package planner

import (
	"strings"

	"vpo/internal/evaluator"
	"vpo/internal/model"
)

// SkipFlags records which later operations a firing Skip ConditionalAction
// suppresses for the remainder of the current phase only (spec.md §4.F:
// "can... set skip flags that cause later operations in the phase to be
// no-ops").
type SkipFlags struct {
	VideoTranscode bool
	AudioTranscode bool
	TrackFilter    bool
}

// Apply evaluates every ConditionalRule in declared order, substituting
// {filename}/{path}/{rule_name} into Warn/Fail templates, and partitions
// the fired actions into audio-targeted, subtitle-targeted, skip flags,
// and rule results (one per rule, for logging/testing).
func Apply(rules []model.ConditionalRule, ts model.TrackSet, sc evaluator.Sidecar, filename, path string) (results []model.ConditionalRuleResult, flags SkipFlags, audioActions, subtitleActions []model.ConditionalAction) {
	for _, rule := range rules {
		ok, _ := evaluator.Evaluate(rule.When, ts, sc)
		branch := rule.ThenActions
		if !ok {
			branch = rule.ElseActions
		}

		result := model.ConditionalRuleResult{RuleName: rule.Name, Matched: ok}
		for _, action := range branch {
			switch action.Kind {
			case model.ActionSkip:
				switch action.SkipTarget {
				case model.SkipVideoTranscode:
					flags.VideoTranscode = true
				case model.SkipAudioTranscode:
					flags.AudioTranscode = true
				case model.SkipTrackFilter:
					flags.TrackFilter = true
				}
			case model.ActionWarn:
				result.AppliedWarn = append(result.AppliedWarn, substitute(action.Template, filename, path, rule.Name))
			case model.ActionFail:
				result.AppliedFail = append(result.AppliedFail, substitute(action.Template, filename, path, rule.Name))
			case model.ActionSetForced, model.ActionSetDefault, model.ActionSetLanguage:
				if action.TrackType != nil && *action.TrackType == model.TrackSubtitle {
					subtitleActions = append(subtitleActions, action)
				} else {
					audioActions = append(audioActions, action)
				}
			}
		}
		results = append(results, result)
	}
	return results, flags, audioActions, subtitleActions
}

func substitute(template, filename, path, ruleName string) string {
	r := strings.NewReplacer("{filename}", filename, "{path}", path, "{rule_name}", ruleName)
	return r.Replace(template)
}
