package eventlog

import (
	"fmt"
	"sync"
	"time"
)

// Heartbeat emits a liveness row at most once per interval.
type Heartbeat struct {
	log      *Log
	interval time.Duration
	mu       sync.Mutex
	last     time.Time
}

func NewHeartbeat(log *Log, interval time.Duration) *Heartbeat {
	return &Heartbeat{log: log, interval: interval}
}

// Maybe writes a row when the interval has elapsed since the previous one.
func (h *Heartbeat) Maybe(now time.Time, inbox, processed string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.last.IsZero() && now.Sub(h.last) < h.interval {
		return false, nil
	}
	err := h.log.Append(Row{
		Time:       now,
		Subject:    fmt.Sprintf("HEARTBEAT inbox=%s processed=%s", inbox, processed),
		AssignedTo: "bot",
		Sender:     "system",
		Risk:       EventHeartbeat,
		Action:     EventHeartbeat,
		EventType:  EventHeartbeat,
	})
	if err != nil {
		return false, err
	}
	h.last = now
	return true, nil
}
