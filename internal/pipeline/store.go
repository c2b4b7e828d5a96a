package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrRunNotFound is returned when no run is recorded for an id or issue.
var ErrRunNotFound = errors.New("run not found")

// Store manages run state on disk under baseDir/runs/{id}.
type Store struct {
	baseDir string
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// DefaultStore returns a Store at ~/.issuesmith, creating the directory if
// needed.
func DefaultStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".issuesmith")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &Store{baseDir: dir}, nil
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

func (s *Store) runDir(id string) string {
	return filepath.Join(s.baseDir, "runs", id)
}

// RunDir returns the directory holding a run's files.
func (s *Store) RunDir(id string) string {
	return s.runDir(id)
}

func (s *Store) runPath(id string) string {
	return filepath.Join(s.runDir(id), "run.json")
}

func validRunID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("invalid run id %q", id)
	}
	return nil
}

// Save writes the run atomically.
func (s *Store) Save(r *Run) error {
	if err := validRunID(r.ID); err != nil {
		return err
	}
	if err := WriteJSON(s.runPath(r.ID), r); err != nil {
		return fmt.Errorf("write run.json: %w", err)
	}
	return nil
}

// Get reads a run by id.
func (s *Store) Get(id string) (*Run, error) {
	if err := validRunID(id); err != nil {
		return nil, err
	}
	var r Run
	if err := ReadJSON(s.runPath(id), &r); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
		}
		return nil, err
	}
	return &r, nil
}

// List returns all runs, oldest first, optionally filtered by issue. Pass
// "" to return every run.
func (s *Store) List(issueID string) ([]Run, error) {
	dir := filepath.Join(s.baseDir, "runs")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	var runs []Run
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		r, err := s.Get(e.Name())
		if err != nil {
			continue // skip broken entries
		}
		if issueID == "" || r.IssueID == issueID {
			runs = append(runs, *r)
		}
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].CreatedAt.Before(runs[j].CreatedAt)
	})
	return runs, nil
}

// Latest returns the most recent run for an issue.
func (s *Store) Latest(issueID string) (*Run, error) {
	runs, err := s.List(issueID)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("issue %s: %w", issueID, ErrRunNotFound)
	}
	return &runs[len(runs)-1], nil
}

// SaveVerificationLog stores the raw output of verification attempt n.
func (s *Store) SaveVerificationLog(id string, n int, output string) error {
	if err := validRunID(id); err != nil {
		return err
	}
	return WriteAtomic(filepath.Join(s.runDir(id), fmt.Sprintf("verification-%d.log", n)), []byte(output))
}

// GetVerificationLog reads the raw output of verification attempt n.
func (s *Store) GetVerificationLog(id string, n int) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.runDir(id), fmt.Sprintf("verification-%d.log", n)))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SavePrompt stores a rendered worker prompt under prompts/{name}.md.
func (s *Store) SavePrompt(id, name, prompt string) error {
	if err := validRunID(id); err != nil {
		return err
	}
	name = strings.NewReplacer("/", "-", `\`, "-").Replace(name)
	return WriteAtomic(filepath.Join(s.runDir(id), "prompts", name+".md"), []byte(prompt))
}

// SaveTranscript stores the operator transcript as transcript.json.
func (s *Store) SaveTranscript(id string, v any) error {
	if err := validRunID(id); err != nil {
		return err
	}
	return WriteJSON(filepath.Join(s.runDir(id), "transcript.json"), v)
}

// Delete removes all data for a run.
func (s *Store) Delete(id string) error {
	if err := validRunID(id); err != nil {
		return err
	}
	dir := s.runDir(id)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	return os.RemoveAll(dir)
}

// Touch stamps UpdatedAt and saves.
func (s *Store) Touch(r *Run, now time.Time) error {
	r.UpdatedAt = now
	return s.Save(r)
}

// WriteAtomic writes data to a temp file in the same directory and renames
// it over path.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmpName, path, err)
	}
	tmpName = ""
	return nil
}

// WriteJSON writes v as indented JSON to path atomically.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	return WriteAtomic(path, append(data, '\n'))
}

// ReadJSON decodes the JSON file at path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return nil
}
