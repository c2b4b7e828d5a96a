package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/lucasnoah/issuesmith/internal/review"
)

type payload struct {
	Files       []string `json:"files"`
	Conventions string   `json:"conventions"`
	Summary     string   `json:"summary"`
	Diff        string   `json:"diff"`
	Findings    *[]struct {
		Severity    string `json:"severity"`
		Description string `json:"description"`
		Location    string `json:"location"`
	} `json:"findings"`
}

// Parse extracts the JSON object from a worker's raw reply and converts it
// into a Result for role. Prose or code fences around the object are
// ignored.
func Parse(role Role, raw string) (*Result, error) {
	obj, err := extractObject(raw)
	if err != nil {
		return nil, err
	}
	var p payload
	if err := json.Unmarshal([]byte(obj), &p); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}

	files, err := cleanFiles(p.Files)
	if err != nil {
		return nil, err
	}

	res := &Result{Role: role}
	switch role {
	case Explorer:
		if len(files) == 0 {
			return nil, errors.New("explorer reply lists no files")
		}
		res.Files = files
		res.Conventions = strings.TrimSpace(p.Conventions)
	case Implementer:
		if strings.TrimSpace(p.Summary) == "" {
			return nil, errors.New("implementer reply has no summary")
		}
		res.ChangeSummary = strings.TrimSpace(p.Summary)
		res.Files = files
		res.Diff = p.Diff
	case Reviewer:
		if p.Findings == nil {
			return nil, errors.New("reviewer reply has no findings field")
		}
		res.Findings = []review.Finding{}
		for i, f := range *p.Findings {
			if strings.TrimSpace(f.Description) == "" {
				return nil, fmt.Errorf("finding %d has no description", i+1)
			}
			res.Findings = append(res.Findings, review.Finding{
				Severity:    review.ParseSeverity(f.Severity),
				Description: strings.TrimSpace(f.Description),
				Location:    strings.TrimSpace(f.Location),
			})
		}
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}
	return res, nil
}

// extractObject returns the outermost {...} span of s.
func extractObject(s string) (string, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", errors.New("reply contains no JSON object")
	}
	return s[start : end+1], nil
}

// cleanFiles normalizes paths, drops duplicates and rejects paths that
// leave the project root.
func cleanFiles(in []string) ([]string, error) {
	seen := make(map[string]bool)
	out := []string{}
	for _, f := range in {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		c := path.Clean(strings.ReplaceAll(f, "\\", "/"))
		if path.IsAbs(c) || c == ".." || strings.HasPrefix(c, "../") {
			return nil, fmt.Errorf("file %q is outside the project root", f)
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out, nil
}
