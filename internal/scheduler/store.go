package scheduler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harunnryd/mailtriage/internal/config"
	mtErrors "github.com/harunnryd/mailtriage/internal/errors"
	"github.com/harunnryd/mailtriage/internal/pipeline"

	"github.com/natefinch/atomic"
	"github.com/oklog/ulid/v2"
)

type RunStatus string

const (
	StatusRunning     RunStatus = "RUNNING"
	StatusDone        RunStatus = "DONE"
	StatusSkipped     RunStatus = "SKIPPED"
	StatusFailed      RunStatus = "FAILED"
	StatusInterrupted RunStatus = "INTERRUPTED"
)

// Run is one scheduled tick as persisted in ticks.json.
type Run struct {
	ID         string    `json:"id"`
	TickID     string    `json:"tick_id,omitempty"`
	Status     RunStatus `json:"status"`
	Started    time.Time `json:"started"`
	Finished   time.Time `json:"finished,omitempty"`
	Live       bool      `json:"live"`
	Scanned    int       `json:"scanned"`
	Processed  int       `json:"processed"`
	Skipped    int       `json:"skipped"`
	Errors     int       `json:"errors"`
	SkipReason string    `json:"skip_reason,omitempty"`
	Error      string    `json:"error,omitempty"`
}

func (r Run) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

type storeData struct {
	Runs []*Run `json:"runs"`
}

// Store keeps a bounded history of tick runs, oldest first.
type Store struct {
	path  string
	limit int
	mu    sync.Mutex
	data  storeData
}

func NewStore(path string, limit int) (*Store, error) {
	if limit <= 0 {
		limit = config.DefaultSchedulerHistoryLimit
	}
	s := &Store{
		path:  path,
		limit: limit,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read tick history: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, &s.data); err != nil {
		return mtErrors.Wrap(mtErrors.ErrInvalidInput, fmt.Sprintf("parse tick history %s: %v", s.path, err))
	}
	return nil
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tick history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create tick history dir: %w", err)
	}

	return atomic.WriteFile(s.path, bytes.NewReader(data))
}

// Recover marks runs left RUNNING by a previous process as interrupted.
func (s *Store) Recover(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recovered := 0
	for _, run := range s.data.Runs {
		if run.Status != StatusRunning {
			continue
		}
		run.Status = StatusInterrupted
		run.Finished = now
		recovered++
	}
	if recovered == 0 {
		return 0, nil
	}
	return recovered, s.save()
}

// Begin records a new RUNNING entry and returns its ID.
func (s *Store) Begin(started time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := &Run{
		ID:      ulid.Make().String(),
		Status:  StatusRunning,
		Started: started,
	}
	s.data.Runs = append(s.data.Runs, run)
	if over := len(s.data.Runs) - s.limit; over > 0 {
		s.data.Runs = append([]*Run(nil), s.data.Runs[over:]...)
	}
	if err := s.save(); err != nil {
		return "", err
	}
	return run.ID, nil
}

// Finish closes the run with the tick's counters.
func (s *Store) Finish(id string, report pipeline.TickReport, runErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := s.find(id)
	if run == nil {
		return mtErrors.NotFound(fmt.Sprintf("tick run %s", id))
	}

	run.TickID = report.TickID
	run.Live = report.Live
	run.Scanned = report.Scanned
	run.Processed = report.Processed
	run.Skipped = report.Skipped
	run.Errors = report.Errors
	run.SkipReason = report.SkipReason
	run.Finished = report.Finished
	if run.Finished.IsZero() {
		run.Finished = time.Now()
	}

	switch {
	case report.SkipReason != "":
		run.Status = StatusSkipped
	case runErr != nil:
		run.Status = StatusFailed
	default:
		run.Status = StatusDone
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	return s.save()
}

func (s *Store) find(id string) *Run {
	for _, run := range s.data.Runs {
		if run.ID == id {
			return run
		}
	}
	return nil
}

// Recent returns up to n runs, newest first. n <= 0 returns all of them.
func (s *Store) Recent(n int) []Run {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 || n > len(s.data.Runs) {
		n = len(s.data.Runs)
	}
	out := make([]Run, 0, n)
	for i := len(s.data.Runs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, *s.data.Runs[i])
	}
	return out
}

// LastCompleted returns the newest run that finished, skipped or failed.
func (s *Store) LastCompleted() (Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.data.Runs) - 1; i >= 0; i-- {
		if s.data.Runs[i].Status != StatusRunning {
			return *s.data.Runs[i], true
		}
	}
	return Run{}, false
}
