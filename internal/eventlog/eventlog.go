package eventlog

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"
)

const (
	EventAssigned             = "ASSIGNED"
	EventCompleted            = "COMPLETED"
	EventHeartbeat            = "HEARTBEAT"
	EventConfigChanged        = "CONFIG_CHANGED"
	EventConfigInvalid        = "CONFIG_INVALID"
	EventJiraFollowUpAssigned = "JIRA_FOLLOWUP_ASSIGNED"
	EventSLABreach            = "SLA_BREACH"
)

// narrowColumns is the legacy header width. Files at or below it get narrow rows.
const narrowColumns = 6

var Header = []string{
	"Date", "Time", "Subject", "Assigned To", "Sender", "Risk Level",
	"Domain Bucket", "Action", "Policy Source", "event_type", "msg_key",
	"status_after", "assigned_to", "assigned_ts", "completed_ts", "duration_sec",
}

// Row is one event. Time is stamped by the log when zero.
type Row struct {
	Time         time.Time
	Subject      string
	AssignedTo   string
	Sender       string
	Risk         string
	DomainBucket string
	Action       string
	PolicySource string
	EventType    string
	MsgKey       string
	StatusAfter  string
	AssignedTS   string
	CompletedTS  string
	DurationSec  string
}

func (r Row) wide() []string {
	return []string{
		r.Time.Format("2006-01-02"), r.Time.Format("15:04:05"),
		r.Subject, r.AssignedTo, r.Sender, r.Risk,
		r.DomainBucket, r.Action, r.PolicySource, r.EventType, r.MsgKey,
		r.StatusAfter, r.AssignedTo, r.AssignedTS, r.CompletedTS, r.DurationSec,
	}
}

func (r Row) narrow() []string {
	return r.wide()[:narrowColumns]
}

// Log appends rows to the CSV event log read by the reporting dashboard.
type Log struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

func New(path string) *Log {
	return &Log{path: path, now: time.Now}
}

func (l *Log) Path() string {
	return l.path
}

// Append writes one row. A missing file starts with the wide header; an
// existing narrow header keeps receiving narrow rows.
func (l *Log) Append(r Row) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if r.Time.IsZero() {
		r.Time = l.now()
	}

	cols, exists, err := headerColumns(l.path)
	if err != nil {
		slog.Warn("Event log header unreadable", "path", l.path, "error", err)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("create event log dir: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	record := r.wide()
	if !exists {
		if err := w.Write(Header); err != nil {
			return fmt.Errorf("write event log header: %w", err)
		}
	} else if cols > 0 && cols <= narrowColumns {
		record = r.narrow()
	}
	if err := w.Write(record); err != nil {
		return fmt.Errorf("write event row: %w", err)
	}
	w.Flush()
	return w.Error()
}

// RotateLegacy archives a narrow-header log to <base>_legacy_N.csv and starts a
// fresh wide header. It returns the archive path, or "" when nothing moved.
func (l *Log) RotateLegacy() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cols, exists, err := headerColumns(l.path)
	if err != nil {
		return "", err
	}
	if !exists || cols == 0 {
		slog.Info("Event log schema check", "status", "no_header")
		return "", nil
	}
	if cols > narrowColumns {
		slog.Info("Event log schema check", "columns", cols, "status", "current")
		return "", nil
	}

	dir := filepath.Dir(l.path)
	base := strings.TrimSuffix(filepath.Base(l.path), ".csv")
	var archive string
	for i := 1; i < 1000; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_legacy_%d.csv", base, i))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			archive = candidate
			break
		}
	}
	if archive == "" {
		return "", fmt.Errorf("no free legacy archive name for %s", filepath.Base(l.path))
	}

	if err := os.Rename(l.path, archive); err != nil {
		return "", fmt.Errorf("archive event log: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(Header)
	w.Flush()
	if err := atomic.WriteFile(l.path, &buf); err != nil {
		return archive, fmt.Errorf("write event log header: %w", err)
	}
	slog.Warn("Event log rotated to current schema", "old_columns", cols, "archived", filepath.Base(archive))
	return archive, nil
}

// headerColumns counts comma-separated fields on the first line. exists is
// false when the file is absent.
func headerColumns(path string) (int, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, true, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return 0, true, sc.Err()
	}
	line := strings.TrimSpace(sc.Text())
	if line == "" {
		return 0, true, nil
	}
	return len(strings.Split(line, ",")), true, nil
}
