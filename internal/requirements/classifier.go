package requirements

import (
	"regexp"
	"strings"

	"github.com/lucasnoah/issuesmith/internal/issue"
)

// Classification is a classifier's verdict plus how sure it is.
type Classification struct {
	Type       ChangeType `json:"type"`
	Confidence float64    `json:"confidence"`
	Source     string     `json:"source"` // "label", "keyword", "default"
}

// Classifier infers the change type of an issue. Implementations are
// approximate; callers must not depend on exact results.
type Classifier interface {
	Classify(s *issue.Snapshot) Classification
}

// HeuristicClassifier checks labels first, then title and body keywords,
// and falls back to Other.
type HeuristicClassifier struct{}

// precedence fixes the order in which conflicting signals are resolved.
var precedence = []ChangeType{Docs, BugFix, Refactor, Feature}

var labelTypes = map[string]ChangeType{
	"bug":             BugFix,
	"bugfix":          BugFix,
	"fix":             BugFix,
	"defect":          BugFix,
	"regression":      BugFix,
	"feature":         Feature,
	"enhancement":     Feature,
	"feature-request": Feature,
	"refactor":        Refactor,
	"refactoring":     Refactor,
	"tech-debt":       Refactor,
	"cleanup":         Refactor,
	"docs":            Docs,
	"documentation":   Docs,
}

var keywordTypes = map[ChangeType]*regexp.Regexp{
	Docs:     regexp.MustCompile(`(?i)\b(docs?|documentation|readme|typo|changelog)\b`),
	BugFix:   regexp.MustCompile(`(?i)\b(bug|fix(es|ed)?|crash(es|ed)?|broken|fails?|failing|regression|timeout|incorrect|wrong)\b`),
	Refactor: regexp.MustCompile(`(?i)\b(refactor(ing)?|clean ?up|restructure|simplify|rename|tech debt)\b`),
	Feature:  regexp.MustCompile(`(?i)\b(add|adds|implement|support|new|introduce|allow|enable|feature)\b`),
}

// Classify implements Classifier.
func (HeuristicClassifier) Classify(s *issue.Snapshot) Classification {
	labelHits := make(map[ChangeType]bool)
	for _, l := range s.Labels {
		if ct, ok := labelTypes[strings.ToLower(strings.TrimSpace(l))]; ok {
			labelHits[ct] = true
		}
	}
	for _, ct := range precedence {
		if labelHits[ct] {
			return Classification{Type: ct, Confidence: 0.9, Source: "label"}
		}
	}

	for _, text := range []string{s.Title, s.Body} {
		for _, ct := range precedence {
			if keywordTypes[ct].MatchString(text) {
				return Classification{Type: ct, Confidence: 0.6, Source: "keyword"}
			}
		}
	}

	return Classification{Type: Other, Confidence: 0.2, Source: "default"}
}
