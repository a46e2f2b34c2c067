package workspace

import (
	"regexp"
	"sort"
	"strings"
)

// EpicWork is the text of one epic scanned for shared components.
type EpicWork struct {
	Key    string
	Titles []string
}

// SharedComponent is a component name recurring across epics.
type SharedComponent struct {
	Name     string   `json:"name"`
	EpicKeys []string `json:"epic_keys"`
}

// PatternDetector finds components that recur across at least two epics.
type PatternDetector interface {
	Detect(epics []EpicWork) []SharedComponent
}

// SuffixPatternDetector matches "Create/Implement/Build <Name>Service|Manager|Handler|Client".
// High precision: it only fires on explicit build verbs and well-known
// component suffixes, so it misses components named any other way.
type SuffixPatternDetector struct{}

var suffixPattern = regexp.MustCompile(
	`(?i)\b(?:create|implement|build)\s+(?:an?\s+|the\s+)?([a-z][a-z0-9]*?)\s?(service|manager|handler|client)\b`)

// suffixStopWords are determiners that precede a bare suffix ("build the
// client") and never name a component.
var suffixStopWords = map[string]bool{
	"a": true, "an": true, "the": true, "this": true, "that": true,
	"these": true, "those": true, "new": true, "our": true, "your": true,
	"their": true, "its": true, "each": true, "every": true, "some": true,
	"any": true, "one": true, "another": true,
}

// Detect implements PatternDetector.
func (SuffixPatternDetector) Detect(epics []EpicWork) []SharedComponent {
	return detect(epics, func(text string) []string {
		var names []string
		for _, m := range suffixPattern.FindAllStringSubmatch(text, -1) {
			if suffixStopWords[strings.ToLower(m[1])] {
				continue
			}
			names = append(names, capitalize(m[1])+capitalize(strings.ToLower(m[2])))
		}
		return names
	})
}

// CamelCaseDetector reports any CamelCase identifier (two or more humps)
// shared by two or more epics. Higher recall than SuffixPatternDetector,
// lower precision: product names and acronyms-in-words also match.
type CamelCaseDetector struct{}

var camelPattern = regexp.MustCompile(`\b[A-Z][a-z0-9]+(?:[A-Z][a-z0-9]+)+\b`)

// Detect implements PatternDetector.
func (CamelCaseDetector) Detect(epics []EpicWork) []SharedComponent {
	return detect(epics, func(text string) []string {
		return camelPattern.FindAllString(text, -1)
	})
}

// detect groups extracted names by epic and keeps those seen in >= 2 epics.
func detect(epics []EpicWork, extract func(string) []string) []SharedComponent {
	seen := map[string][]string{}
	for _, e := range epics {
		inEpic := map[string]bool{}
		for _, title := range e.Titles {
			for _, name := range extract(title) {
				if inEpic[name] {
					continue
				}
				inEpic[name] = true
				seen[name] = append(seen[name], e.Key)
			}
		}
	}

	out := []SharedComponent{}
	for name, keys := range seen {
		if len(keys) >= 2 {
			out = append(out, SharedComponent{Name: name, EpicKeys: keys})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
