package safemode

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Record is one suppressed send.
type Record struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Action     string    `json:"action"`
	Reason     string    `json:"reason"`
	Recipients []string  `json:"recipients"`
	Subject    string    `json:"subject"`
	SourceID   string    `json:"source_id,omitempty"`
}

// Audit is an append-only JSONL log of suppressed sends.
type Audit struct {
	mu   sync.Mutex
	path string
}

func NewAudit(path string) (*Audit, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return &Audit{path: path}, nil
}

func (a *Audit) Append(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("audit record cannot be nil")
	}
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	slog.Debug("Suppressed send audited", "id", rec.ID, "action", rec.Action)
	return nil
}

// Records reads the log back, skipping lines that fail to parse.
func (a *Audit) Records(since time.Time) ([]*Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.Open(a.path)
	if os.IsNotExist(err) {
		return []*Record{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []*Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			slog.Warn("Failed to parse audit record", "error", err)
			continue
		}
		if !since.IsZero() && rec.Timestamp.Before(since) {
			continue
		}
		out = append(out, &rec)
	}
	return out, scanner.Err()
}
