// Package evaluator implements spec.md §4.E's pure Condition evaluator: a
// stateless function from a Condition plus a TrackSet and its sidecar maps
// to (bool, reason). It performs no I/O.
package evaluator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"vpo/internal/model"
)

// Sidecar bundles the auxiliary lookups the evaluator needs beyond the
// TrackSet itself.
type Sidecar struct {
	// LanguageAnalysis is keyed by track ID.
	LanguageAnalysis map[int64]model.LanguageAnalysisResult
	// PluginMetadata is keyed by plugin name, then field name (both
	// compared case-insensitively at lookup time).
	PluginMetadata map[string]map[string]string
	// ContainerMetadata is the container-level tag map.
	ContainerMetadata map[string]string
}

// Evaluate evaluates cond against ts and sc, returning a human-readable
// reason alongside the boolean result.
func Evaluate(cond model.Condition, ts model.TrackSet, sc Sidecar) (bool, string) {
	switch cond.Kind {
	case model.CondExists:
		return evalExists(cond, ts)
	case model.CondCount:
		return evalCount(cond, ts)
	case model.CondAudioMultiLang:
		return evalAudioIsMultiLanguage(cond, ts, sc)
	case model.CondPluginMetadata:
		return evalPluginMetadata(cond, sc)
	case model.CondContainerMetadata:
		return evalContainerMetadata(cond, sc)
	case model.CondIsOriginal:
		return evalClassification(cond, ts, sc, true)
	case model.CondIsDubbed:
		return evalClassification(cond, ts, sc, false)
	case model.CondAnd:
		return evalAnd(cond, ts, sc)
	case model.CondOr:
		return evalOr(cond, ts, sc)
	case model.CondNot:
		return evalNot(cond, ts, sc)
	default:
		return false, fmt.Sprintf("unknown condition kind %q", cond.Kind)
	}
}

func evalExists(cond model.Condition, ts model.TrackSet) (bool, string) {
	if cond.Filter == nil {
		return false, "exists: no filter given"
	}
	for _, t := range ts.Tracks {
		if trackMatches(t, *cond.Filter) {
			return true, fmt.Sprintf("track %d matches filter", t.TrackIndex)
		}
	}
	return false, "no track matches filter"
}

func evalCount(cond model.Condition, ts model.TrackSet) (bool, string) {
	if cond.Count == nil {
		return false, "count: no expression given"
	}
	n := 0
	for _, t := range ts.Tracks {
		if trackMatches(t, cond.Count.Filter) {
			n++
		}
	}
	ok := compareInt(n, cond.Count.Op, cond.Count.N)
	return ok, fmt.Sprintf("count=%d %s %d: %v", n, cond.Count.Op, cond.Count.N, ok)
}

func evalAudioIsMultiLanguage(cond model.Condition, ts model.TrackSet, sc Sidecar) (bool, string) {
	if cond.MultiLang == nil {
		return false, "audio_is_multi_language: no params given"
	}
	threshold := cond.MultiLang.Threshold
	if threshold == 0 {
		threshold = 0.05
	}

	for _, t := range ts.ByType(model.TrackAudio) {
		if cond.MultiLang.TrackIndex != nil && t.TrackIndex != *cond.MultiLang.TrackIndex {
			continue
		}
		analysis, ok := sc.LanguageAnalysis[t.ID]
		if !ok || analysis.Classification != model.ClassificationMultiLanguage {
			continue
		}
		if cond.MultiLang.PrimaryLanguage != "" && !LanguageMatches([]string{cond.MultiLang.PrimaryLanguage}, analysis.PrimaryLanguage) {
			continue
		}
		for _, seg := range analysis.Segments {
			if seg.Language == analysis.PrimaryLanguage {
				continue
			}
			if seg.Confidence >= threshold {
				return true, fmt.Sprintf("track %d has secondary language %s at confidence %.3f", t.TrackIndex, seg.Language, seg.Confidence)
			}
		}
	}
	return false, "no audio track has a qualifying secondary language"
}

func evalPluginMetadata(cond model.Condition, sc Sidecar) (bool, string) {
	if cond.PluginMeta == nil {
		return false, "plugin_metadata: no params given"
	}
	value, found := lookupCaseInsensitive2(sc.PluginMetadata, cond.PluginMeta.Plugin, cond.PluginMeta.Field)
	return evalMetadataOp(cond.PluginMeta.Op, value, found, cond.PluginMeta.Value,
		fmt.Sprintf("plugin %s field %s", cond.PluginMeta.Plugin, cond.PluginMeta.Field))
}

func evalContainerMetadata(cond model.Condition, sc Sidecar) (bool, string) {
	if cond.ContainerMeta == nil {
		return false, "container_metadata: no params given"
	}
	value, found := lookupCaseInsensitive(sc.ContainerMetadata, cond.ContainerMeta.Field)
	return evalMetadataOp(cond.ContainerMeta.Op, value, found, cond.ContainerMeta.Value,
		fmt.Sprintf("container field %s", cond.ContainerMeta.Field))
}

func evalMetadataOp(op model.MetadataOp, value string, found bool, want string, label string) (bool, string) {
	if op == model.MetaExists {
		return found, fmt.Sprintf("%s exists: %v", label, found)
	}
	if !found {
		return false, fmt.Sprintf("%s not present", label)
	}
	switch op {
	case model.MetaEq:
		ok := value == want
		return ok, fmt.Sprintf("%s %q == %q: %v", label, value, want, ok)
	case model.MetaNeq:
		ok := value != want
		return ok, fmt.Sprintf("%s %q != %q: %v", label, value, want, ok)
	case model.MetaContains:
		ok := strings.Contains(strings.ToLower(value), strings.ToLower(want))
		return ok, fmt.Sprintf("%s %q contains %q: %v", label, value, want, ok)
	case model.MetaLt, model.MetaLte, model.MetaGt, model.MetaGte:
		vf, errV := strconv.ParseFloat(value, 64)
		wf, errW := strconv.ParseFloat(want, 64)
		if errV != nil || errW != nil {
			return false, fmt.Sprintf("%s: numeric comparison requires numeric values", label)
		}
		ok := compareFloat(vf, op, wf)
		return ok, fmt.Sprintf("%s %v %s %v: %v", label, vf, op, wf, ok)
	default:
		return false, fmt.Sprintf("%s: unsupported operator %q", label, op)
	}
}

func evalClassification(cond model.Condition, ts model.TrackSet, sc Sidecar, wantOriginal bool) (bool, string) {
	if cond.Classification == nil {
		return false, "classification: no params given"
	}
	minConf := cond.Classification.MinConfidence

	for _, t := range ts.ByType(model.TrackAudio) {
		if cond.Classification.TrackIndex != nil && t.TrackIndex != *cond.Classification.TrackIndex {
			continue
		}
		analysis, ok := sc.LanguageAnalysis[t.ID]
		if !ok {
			continue
		}
		isOriginal := analysis.Classification == model.ClassificationSingleLanguage
		if isOriginal != wantOriginal {
			continue
		}
		if analysis.PrimaryPercentage/100.0 < minConf {
			continue
		}
		if cond.Classification.Language != "" && !LanguageMatches([]string{cond.Classification.Language}, analysis.PrimaryLanguage) {
			continue
		}
		return true, fmt.Sprintf("track %d classification matches", t.TrackIndex)
	}
	return false, "no audio track matches the requested classification"
}

func evalAnd(cond model.Condition, ts model.TrackSet, sc Sidecar) (bool, string) {
	for _, c := range cond.Children {
		ok, reason := Evaluate(c, ts, sc)
		if !ok {
			return false, "and: falsified by " + reason
		}
	}
	return true, "and: all children satisfied"
}

func evalOr(cond model.Condition, ts model.TrackSet, sc Sidecar) (bool, string) {
	for _, c := range cond.Children {
		ok, reason := Evaluate(c, ts, sc)
		if ok {
			return true, "or: satisfied by " + reason
		}
	}
	return false, "or: no child satisfied"
}

func evalNot(cond model.Condition, ts model.TrackSet, sc Sidecar) (bool, string) {
	if cond.Child == nil {
		return false, "not: no child given"
	}
	ok, reason := Evaluate(*cond.Child, ts, sc)
	return !ok, "not: negates " + reason
}

// trackMatches applies every populated filter field of f to t, AND-ed
// together.
func trackMatches(t model.Track, f model.TrackFilter) bool {
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if len(f.Language) > 0 && !LanguageMatches(f.Language, t.Language) {
		return false
	}
	if len(f.Codec) > 0 && !codecMatches(f.Codec, t.Codec) {
		return false
	}
	if f.IsDefault != nil && t.Default != *f.IsDefault {
		return false
	}
	if f.IsForced != nil && t.Forced != *f.IsForced {
		return false
	}
	if f.Channels != nil && !compareFloat(float64(t.Channels), f.Channels.Op, f.Channels.Value) {
		return false
	}
	if f.Width != nil && !compareFloat(float64(t.Width), f.Width.Op, f.Width.Value) {
		return false
	}
	if f.Height != nil && !compareFloat(float64(t.Height), f.Height.Op, f.Height.Value) {
		return false
	}
	if f.TitleSubstring != "" && !strings.Contains(strings.ToLower(t.Title), strings.ToLower(f.TitleSubstring)) {
		return false
	}
	if f.TitleRegex != "" {
		re, err := regexp.Compile(f.TitleRegex)
		if err != nil || !re.MatchString(t.Title) {
			return false
		}
	}
	return true
}

func codecMatches(want []string, codec string) bool {
	codec = strings.ToLower(codec)
	for _, w := range want {
		w = strings.ToLower(w)
		if strings.HasSuffix(w, "*") {
			if strings.HasPrefix(codec, strings.TrimSuffix(w, "*")) {
				return true
			}
			continue
		}
		if codec == w {
			return true
		}
	}
	return false
}

func compareInt(actual int, op model.ComparisonOp, want int) bool {
	return compareFloat(float64(actual), op, float64(want))
}

func compareFloat(actual float64, op model.ComparisonOp, want float64) bool {
	switch op {
	case model.CmpEq:
		return actual == want
	case model.CmpLt:
		return actual < want
	case model.CmpLte:
		return actual <= want
	case model.CmpGt:
		return actual > want
	case model.CmpGte:
		return actual >= want
	default:
		return false
	}
}

func lookupCaseInsensitive(m map[string]string, key string) (string, bool) {
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

func lookupCaseInsensitive2(m map[string]map[string]string, outerKey, innerKey string) (string, bool) {
	for k, inner := range m {
		if strings.EqualFold(k, outerKey) {
			return lookupCaseInsensitive(inner, innerKey)
		}
	}
	return "", false
}
