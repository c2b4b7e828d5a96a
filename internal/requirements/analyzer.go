package requirements

import (
	"regexp"
	"strings"

	"github.com/lucasnoah/issuesmith/internal/issue"
)

var (
	headerRe   = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.+?)[ \t]*#*[ \t]*$`)
	itemRe     = regexp.MustCompile(`^[ \t]*(?:[-*+]|\d+[.)])[ \t]+(?:\[[ xX]\][ \t]+)?(.+?)[ \t\r]*$`)
	checkboxRe = regexp.MustCompile(`(?m)^[ \t]*[-*][ \t]+\[[ xX]\][ \t]+(.+?)[ \t\r]*$`)

	expectedRe = regexp.MustCompile(`(?i)(\bexpected\b|\bshould\b|\bmust\b|\bneeds? to\b|\bso that\b)`)
	scopeRe    = regexp.MustCompile(`(?i)(\bin scope\b|\bout of scope\b|\bscope:|\bnon-goals?\b|\blimited to\b|\bonly (affects?|applies|changes?)\b)`)
)

var (
	acceptanceHeaders = []string{"acceptance criteria", "acceptance", "definition of done", "requirements"}
	niceHeaders       = []string{"nice to have", "nice-to-have", "optional", "stretch goals"}
	outOfScopeHeaders = []string{"out of scope", "non-goals", "non goals", "not in scope"}
	expectedHeaders   = []string{"expected behavior", "expected behaviour", "expected result", "expected"}
	scopeHeaders      = []string{"scope", "in scope"}
)

// Analyzer extracts a requirements Summary from an issue snapshot.
type Analyzer struct {
	classifier Classifier
}

// NewAnalyzer creates an Analyzer. A nil classifier selects HeuristicClassifier.
func NewAnalyzer(c Classifier) *Analyzer {
	if c == nil {
		c = HeuristicClassifier{}
	}
	return &Analyzer{classifier: c}
}

// Analyze builds a Summary. The result depends only on the snapshot, so
// repeated calls on the same snapshot yield identical summaries.
func (a *Analyzer) Analyze(s *issue.Snapshot) Summary {
	cls := a.classifier.Classify(s)
	sum := Summary{
		ChangeType:    cls.Type,
		Confidence:    cls.Confidence,
		MustHave:      []string{},
		NiceToHave:    []string{},
		OutOfScope:    []string{},
		OpenQuestions: []Question{},
	}
	if !sum.ChangeType.Valid() {
		sum.ChangeType = Other
	}

	texts := []string{s.Body}
	for _, c := range s.Comments {
		texts = append(texts, c.Body)
	}

	sections := make(map[string]string)
	for _, t := range texts {
		for name, body := range splitSections(t) {
			sections[name] += body + "\n"
		}
	}

	sum.MustHave = dedupe(itemsFrom(sections, acceptanceHeaders))
	if len(sum.MustHave) == 0 {
		for _, t := range texts {
			for _, m := range checkboxRe.FindAllStringSubmatch(t, -1) {
				sum.MustHave = append(sum.MustHave, m[1])
			}
		}
		sum.MustHave = dedupe(sum.MustHave)
	}
	sum.NiceToHave = dedupe(itemsFrom(sections, niceHeaders))
	sum.OutOfScope = dedupe(itemsFrom(sections, outOfScopeHeaders))

	all := strings.Join(texts, "\n")

	if !hasSection(sections, expectedHeaders) && !expectedRe.MatchString(all) {
		sum.OpenQuestions = append(sum.OpenQuestions, Question{
			ID:      string(KindExpectedBehavior),
			Kind:    KindExpectedBehavior,
			Text:    "What is the expected behavior once this issue is resolved?",
			Options: expectedOptions(sum.ChangeType, s.Title),
		})
	}
	if len(sum.OutOfScope) == 0 && !hasSection(sections, scopeHeaders) && !scopeRe.MatchString(all) {
		sum.OpenQuestions = append(sum.OpenQuestions, Question{
			ID:   string(KindScope),
			Kind: KindScope,
			Text: "Which parts of the codebase are in scope for this change?",
			Options: []string{
				"Only the code paths named in the issue",
				"The named code paths and their direct callers",
				"Whatever the implementation requires",
			},
		})
	}
	if len(sum.MustHave) == 0 {
		sum.OpenQuestions = append(sum.OpenQuestions, Question{
			ID:   string(KindAcceptanceCriteria),
			Kind: KindAcceptanceCriteria,
			Text: "How should we decide that this issue is done?",
			Options: []string{
				"Existing tests pass and a new test covers the change",
				"Existing tests pass",
				"Manual verification by the reporter",
			},
		})
	}

	return sum
}

func expectedOptions(ct ChangeType, title string) []string {
	switch ct {
	case BugFix:
		return []string{
			"The previously working behavior is restored",
			"The operation fails with a clear error instead",
		}
	case Refactor, Docs:
		return []string{"No user-visible behavior changes"}
	default:
		if title == "" {
			return nil
		}
		return []string{strings.TrimRight(title, ".!? ") + " works as described in the title"}
	}
}

// splitSections maps lower-cased markdown headers to the text beneath them.
func splitSections(body string) map[string]string {
	out := make(map[string]string)
	locs := headerRe.FindAllStringSubmatchIndex(body, -1)
	for i, loc := range locs {
		name := strings.ToLower(strings.TrimRight(strings.TrimSpace(body[loc[2]:loc[3]]), ":"))
		end := len(body)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		out[name] += body[loc[1]:end]
	}
	return out
}

func itemsFrom(sections map[string]string, names []string) []string {
	var items []string
	for _, n := range names {
		body, ok := sections[n]
		if !ok {
			continue
		}
		for _, line := range strings.Split(body, "\n") {
			if m := itemRe.FindStringSubmatch(line); m != nil {
				items = append(items, m[1])
			}
		}
	}
	return items
}

func hasSection(sections map[string]string, names []string) bool {
	for _, n := range names {
		if body, ok := sections[n]; ok && strings.TrimSpace(body) != "" {
			return true
		}
	}
	return false
}

// dedupe removes duplicates preserving order and always returns non-nil.
func dedupe(items []string) []string {
	seen := make(map[string]bool)
	result := []string{}
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		result = append(result, item)
	}
	return result
}
