package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"
)

// Locker guards the state directory against a second dispatcher.
type Locker interface {
	TryAcquire() (bool, error)
	Release() error
}

// InstanceLock is a PID-stamped exclusive lock file. TryAcquire never waits.
type InstanceLock struct {
	path       string
	fileLock   *flock.Flock
	alive      func(pid int) bool
	acquiredAt time.Time
	held       bool
	mu         sync.Mutex
}

var _ Locker = (*InstanceLock)(nil)

func NewInstanceLock(path string) *InstanceLock {
	return &InstanceLock{
		path:     path,
		fileLock: flock.New(path),
		alive:    ProcessAlive,
	}
}

func (l *InstanceLock) Path() string {
	return l.path
}

func (l *InstanceLock) TryAcquire() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		return true, nil
	}

	stale, pid, err := IsStale(l.path, l.alive)
	if err != nil {
		return false, err
	}
	if stale {
		slog.Warn("Clearing stale lock", "path", l.path, "owner_pid", pid)
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return false, fmt.Errorf("remove stale lock: %w", err)
		}
		l.fileLock = flock.New(l.path)
	}

	locked, err := l.fileLock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to attempt lock: %w", err)
	}
	if !locked {
		owner, _ := readPID(l.path)
		slog.Error("Lock held by another instance", "path", l.path, "owner_pid", owner)
		// The owner removes the file on release; retry against whatever file exists then.
		l.fileLock = flock.New(l.path)
		return false, nil
	}

	// Same inode as the flock, so the advisory lock survives the rewrite.
	if err := os.WriteFile(l.path, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		_ = l.fileLock.Unlock()
		return false, fmt.Errorf("stamp lock pid: %w", err)
	}

	l.held = true
	l.acquiredAt = time.Now()
	slog.Info("Instance lock acquired", "path", l.path, "pid", os.Getpid())
	return true, nil
}

// Release removes the lock file and drops the lock. Safe to call twice.
func (l *InstanceLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return nil
	}

	slog.Info("Instance lock releasing",
		"path", l.path,
		"held_duration_ms", time.Since(l.acquiredAt).Milliseconds(),
	)

	var errs []error
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("remove lock file: %w", err))
	}
	if err := l.fileLock.Unlock(); err != nil {
		errs = append(errs, fmt.Errorf("unlock: %w", err))
	}
	l.held = false
	return errors.Join(errs...)
}

func (l *InstanceLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// IsStale reports whether the lock file names an owner that is no longer running.
// A missing file, an empty file or an unreadable PID is never stale.
func IsStale(path string, alive func(pid int) bool) (bool, int, error) {
	pid, err := readPID(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("read lock file: %w", err)
	}
	if pid <= 0 {
		return false, 0, nil
	}
	if pid == os.Getpid() {
		return false, pid, nil
	}
	return !alive(pid), pid, nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, nil
	}
	return pid, nil
}

// ProcessAlive probes pid with signal 0.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
