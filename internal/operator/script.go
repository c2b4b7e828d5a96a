package operator

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Script holds pre-recorded operator responses. Loading the same script
// twice replays a run's decisions exactly.
type Script struct {
	// Answers are keyed by question ID.
	Answers map[string]Answer `yaml:"answers"`
	// Confirms are consumed in order.
	Confirms []bool `yaml:"confirms"`
	// Approvals are consumed in order.
	Approvals []Approval `yaml:"approvals"`
	// Choices are keyed by choice ID, or by the ID prefix before ':', and
	// consumed in order per key.
	Choices map[string][]string `yaml:"choices"`
	// CancelAt names the exchange at which the operator cancels: a kind
	// ("ask", "confirm", "approve", "choose") optionally followed by
	// ":<id>".
	CancelAt string `yaml:"cancel_at"`
}

// LoadScript reads a Script from a YAML file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read answers file: %w", err)
	}
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse answers file %s: %w", path, err)
	}
	return &s, nil
}

// Scripted answers every exchange from a Script.
type Scripted struct {
	mu        sync.Mutex
	script    Script
	confirms  int
	approvals int
	choices   map[string]int
}

// NewScripted creates an operator replaying s. A nil script has no
// responses at all.
func NewScripted(s *Script) *Scripted {
	sc := &Scripted{choices: make(map[string]int)}
	if s != nil {
		sc.script = *s
	}
	return sc
}

func (s *Scripted) cancelled(kind, id string) bool {
	at := s.script.CancelAt
	if at == "" {
		return false
	}
	if at == kind {
		return true
	}
	return id != "" && at == kind+":"+id
}

// Ask implements Operator.
func (s *Scripted) Ask(ctx context.Context, q Question) (Answer, error) {
	if err := ctx.Err(); err != nil {
		return Answer{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled("ask", q.ID) {
		return Answer{}, ErrCancelled
	}
	a, ok := s.script.Answers[q.ID]
	if !ok {
		return Answer{}, fmt.Errorf("question %s: %w", q.ID, ErrNoResponse)
	}
	return a, nil
}

// Confirm implements Operator.
func (s *Scripted) Confirm(ctx context.Context, prompt string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled("confirm", "") {
		return false, ErrCancelled
	}
	if s.confirms >= len(s.script.Confirms) {
		return false, fmt.Errorf("confirm %q: %w", prompt, ErrNoResponse)
	}
	ok := s.script.Confirms[s.confirms]
	s.confirms++
	return ok, nil
}

// Approve implements Operator.
func (s *Scripted) Approve(ctx context.Context, r PlanReview) (Approval, error) {
	if err := ctx.Err(); err != nil {
		return Approval{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled("approve", "") {
		return Approval{}, ErrCancelled
	}
	if s.approvals >= len(s.script.Approvals) {
		return Approval{}, fmt.Errorf("plan revision %d: %w", r.Revision, ErrNoResponse)
	}
	a := s.script.Approvals[s.approvals]
	s.approvals++
	return a, nil
}

// Choose implements Operator.
func (s *Scripted) Choose(ctx context.Context, c Choice) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled("choose", c.ID) {
		return "", ErrCancelled
	}
	key := c.ID
	if _, ok := s.script.Choices[key]; !ok {
		key, _, _ = strings.Cut(c.ID, ":")
	}
	queue := s.script.Choices[key]
	n := s.choices[key]
	if n >= len(queue) {
		return "", fmt.Errorf("choice %s: %w", c.ID, ErrNoResponse)
	}
	s.choices[key] = n + 1
	picked := queue[n]
	for _, o := range c.Options {
		if o == picked {
			return picked, nil
		}
	}
	return "", fmt.Errorf("choice %s: scripted %q is not one of %v", c.ID, picked, c.Options)
}
