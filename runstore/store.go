package runstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"chainwork/logging"
)

var (
	// ErrNotFound is returned when no run record exists for the given id or
	// directory.
	ErrNotFound = fmt.Errorf("run record not found")
)

const (
	statusFile = "status.json"
	eventsFile = "events.jsonl"
)

// Store persists run records under a root directory, one subdirectory per
// run. All methods are safe for concurrent use; updates are read-modify-write
// under a single mutex with an atomic temp-file replace, so a crashed writer
// never leaves a half-written status.json behind.
type Store struct {
	root   string
	mu     sync.Mutex
	logger logging.Logger
}

// Options holds configuration overrides passed to New().
type Options struct {
	Logger logging.Logger
}

// New creates a store rooted at dir.
func New(dir string, optFns ...func(o *Options)) *Store {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{root: dir, logger: opts.Logger}
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// RunDir returns the directory of one run.
func (s *Store) RunDir(runID string) string { return filepath.Join(s.root, runID) }

// OutputLogPath returns the raw-capture file for one flattened leaf step.
// Each leaf gets its own file so concurrent parallel tasks cannot interleave
// each other's captured output.
func (s *Store) OutputLogPath(runID string, flatIndex int) string {
	return filepath.Join(s.RunDir(runID), fmt.Sprintf("output-%d.log", flatIndex))
}

// StderrLogPath returns the stderr capture file for one flattened leaf step.
func (s *Store) StderrLogPath(runID string, flatIndex int) string {
	return filepath.Join(s.RunDir(runID), fmt.Sprintf("stderr-%d.log", flatIndex))
}

// Create persists a new run record. The record exists on disk before any of
// the run's tasks start.
func (s *Store) Create(rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := s.RunDir(rec.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	return s.writeStatus(rec)
}

// Update applies mut to the persisted record under the store lock and writes
// the result back atomically.
func (s *Store) Update(runID string, mut func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.readStatus(s.RunDir(runID))
	if err != nil {
		return err
	}
	mut(rec)
	rec.LastUpdate = time.Now().UTC()
	return s.writeStatus(rec)
}

// SetState transitions the run's top-level state.
func (s *Store) SetState(runID string, state RunState) error {
	return s.Update(runID, func(rec *Record) { rec.State = state })
}

// UpdateStep applies mut to one flattened leaf step.
func (s *Store) UpdateStep(runID string, flatIndex int, mut func(*FlatStepStatus)) error {
	return s.Update(runID, func(rec *Record) {
		if flatIndex >= 0 && flatIndex < len(rec.Steps) {
			mut(&rec.Steps[flatIndex])
		}
	})
}

// AppendEvent appends one structured event to the run's events.jsonl.
func (s *Store) AppendEvent(runID string, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(s.RunDir(runID), eventsFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()
	_, err = f.Write(append(data, '\n'))
	return err
}

// Read loads a run record by run id or by run directory path. A missing
// record yields ErrNotFound.
func (s *Store) Read(runIDOrDir string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := runIDOrDir
	if _, err := os.Stat(filepath.Join(dir, statusFile)); err != nil {
		dir = s.RunDir(runIDOrDir)
	}
	return s.readStatus(dir)
}

// Events loads a run's full event log, tolerating a missing file.
func (s *Store) Events(runID string) ([]Event, error) {
	data, err := os.ReadFile(filepath.Join(s.RunDir(runID), eventsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var events []Event
	for _, line := range splitLines(data) {
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue // tolerate torn trailing writes
		}
		events = append(events, ev)
	}
	return events, nil
}

// List returns all persisted run records, newest first.
func (s *Store) List() ([]*Record, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var recs []*Record
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		rec, err := s.readStatus(filepath.Join(s.root, e.Name()))
		if err != nil {
			s.logger.Warn("skipping unreadable run record", "dir", e.Name(), "error", err.Error())
			continue
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].StartedAt.After(recs[j].StartedAt) })
	return recs, nil
}

func (s *Store) readStatus(dir string) (*Record, error) {
	data, err := os.ReadFile(filepath.Join(dir, statusFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", statusFile, err)
	}
	return &rec, nil
}

// writeStatus replaces status.json atomically via temp file + rename.
func (s *Store) writeStatus(rec *Record) error {
	dir := s.RunDir(rec.RunID)
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, statusFile+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, statusFile))
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
