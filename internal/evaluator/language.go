package evaluator

import (
	"strings"

	"bitbucket.org/creachadair/stringset"
	"golang.org/x/text/language"
)

// canonicalLanguage resolves a language tag to a stable base-language
// string usable as a set key, matching bidirectionally and alias-aware
// across ISO 639-1/2T/2B (e.g. "ger", "deu", "de" all canonicalize to the
// same key) by routing through golang.org/x/text/language's BCP-47 base
// resolution.
func canonicalLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}
	t, err := language.Parse(tag)
	if err != nil {
		return strings.ToLower(tag)
	}
	base, conf := t.Base()
	if conf == language.No {
		return strings.ToLower(tag)
	}
	return base.String()
}

// LanguageMatches reports whether candidate matches any language in want,
// comparing canonicalized forms.
func LanguageMatches(want []string, candidate string) bool {
	if len(want) == 0 {
		return false
	}
	set := CanonicalSet(want)
	return set.Contains(canonicalLanguage(candidate))
}

// CanonicalSet builds a stringset of canonicalized language keys, used by
// the planner for keep-list membership tests.
func CanonicalSet(langs []string) stringset.Set {
	set := stringset.New()
	for _, l := range langs {
		if c := canonicalLanguage(l); c != "" {
			set.Add(c)
		}
	}
	return set
}
