package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/rendis/leadtap/internal/engine/stream"
)

// LogLine is one timestamped entry of the session log.
type LogLine struct {
	At      time.Time
	Message string
	IsError bool
}

// Progress is the last reported progress state. Last write wins; values
// are assumed non-decreasing by the producer but not enforced here.
type Progress struct {
	Value   int // 0..100
	Label   string
	Subtype string
}

// Aggregator reduces decoded events into the live progress state and an
// append-only log. The log is never truncated during a session. It is
// safe to snapshot from another goroutine while the session reader
// reduces (the TUI polls it on a tick).
type Aggregator struct {
	mu       sync.Mutex
	lines    []LogLine
	progress Progress

	now func() time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{now: time.Now}
}

// Apply reduces one event. log/error append, progress replaces, done
// pins the bar at 100%.
func (a *Aggregator) Apply(ev stream.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch ev.Type {
	case stream.EventLog:
		a.lines = append(a.lines, LogLine{At: a.now(), Message: ev.Message})
	case stream.EventError:
		a.lines = append(a.lines, LogLine{At: a.now(), Message: ev.Message, IsError: true})
	case stream.EventProgress:
		a.progress = Progress{Value: ev.Value, Label: ev.Label, Subtype: ev.Subtype}
	case stream.EventDone:
		a.progress = Progress{Value: 100, Label: "Estrazione completata", Subtype: a.progress.Subtype}
	}
}

// Logf appends a client-side line (transport failures, revert notices)
// to the same log the streamed events feed.
func (a *Aggregator) Logf(format string, args ...any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lines = append(a.lines, LogLine{At: a.now(), Message: fmt.Sprintf(format, args...)})
}

// Errorf is Logf with the error mark.
func (a *Aggregator) Errorf(format string, args ...any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lines = append(a.lines, LogLine{At: a.now(), Message: fmt.Sprintf(format, args...), IsError: true})
}

// Progress returns the current progress state.
func (a *Aggregator) Progress() Progress {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.progress
}

// Log returns a copy of the log lines in append order.
func (a *Aggregator) Log() []LogLine {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := make([]LogLine, len(a.lines))
	copy(cp, a.lines)
	return cp
}
