// Package integrity counts proctoring violations during a running exam.
package integrity

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// EventKind is an integrity-relevant signal from the host environment.
type EventKind string

const (
	VisibilityLost   EventKind = "visibility_lost"
	FullscreenExited EventKind = "fullscreen_exited"
	WindowBlur       EventKind = "window_blur"

	ContextMenu EventKind = "context_menu"
	Copy        EventKind = "copy"
	Paste       EventKind = "paste"
)

// Counted reports whether the event is a violation.
func (k EventKind) Counted() bool {
	switch k {
	case VisibilityLost, FullscreenExited, WindowBlur:
		return true
	}
	return false
}

// Deterrent reports whether the event is an action that is blocked
// without being counted.
func (k EventKind) Deterrent() bool {
	switch k {
	case ContextMenu, Copy, Paste:
		return true
	}
	return false
}

// Event is one observed signal.
type Event struct {
	Kind EventKind `json:"kind"`
	At   time.Time `json:"at"`
}

// Host is the environment presenting the exam.
type Host interface {
	RequestFullscreen(ctx context.Context) error
}

// Source is a host that reports focus and presentation changes.
type Source interface {
	Events() <-chan Event
}

// NopHost accepts every request and never reports events.
type NopHost struct{}

func (NopHost) RequestFullscreen(context.Context) error { return nil }

// Decision tells the host how to react to an observed event.
type Decision struct {
	Counted     bool // the violation counter was incremented
	Prevent     bool // the host should block the default action
	ShowWarning bool // the blocking warning overlay is showing
}

// Monitor tracks violations for one attempt. It is owned by a single
// session and is not safe for concurrent use.
type Monitor struct {
	host   Host
	logger *slog.Logger

	violations int
	warning    bool
	suppressed bool
	history    []Event
}

// NewMonitor returns a monitor reporting to host. A nil host behaves
// like NopHost and a nil logger uses slog.Default.
func NewMonitor(host Host, logger *slog.Logger) *Monitor {
	if host == nil {
		host = NopHost{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{host: host, logger: logger}
}

// Arm asks the host to enter fullscreen at the start of an attempt.
func (m *Monitor) Arm(ctx context.Context) error {
	if err := m.host.RequestFullscreen(ctx); err != nil {
		return fmt.Errorf("request fullscreen: %w", err)
	}
	return nil
}

// Observe applies one event. While the warning overlay is showing further
// violations are not counted again; after Suppress nothing is counted.
func (m *Monitor) Observe(ev Event) Decision {
	switch {
	case ev.Kind.Deterrent():
		return Decision{Prevent: true, ShowWarning: m.warning}
	case !ev.Kind.Counted():
		m.logger.Debug("ignoring unknown integrity event", "kind", ev.Kind)
		return Decision{ShowWarning: m.warning}
	case m.suppressed:
		return Decision{}
	case m.warning:
		return Decision{ShowWarning: true}
	}

	m.violations++
	m.warning = true
	m.history = append(m.history, ev)
	m.logger.Info("integrity violation", "kind", ev.Kind, "violations", m.violations)
	return Decision{Counted: true, ShowWarning: true}
}

// Acknowledge hides the warning overlay and re-requests fullscreen. The
// overlay is hidden even when the host refuses, so the next infraction
// counts again.
func (m *Monitor) Acknowledge(ctx context.Context) error {
	if !m.warning {
		return nil
	}
	m.warning = false
	if err := m.host.RequestFullscreen(ctx); err != nil {
		return fmt.Errorf("re-enter fullscreen: %w", err)
	}
	return nil
}

// Suppress stops violation counting for the rest of the attempt. It is
// called when submission begins and cannot be undone.
func (m *Monitor) Suppress() {
	m.suppressed = true
	m.warning = false
}

// Suppressed reports whether Suppress was called.
func (m *Monitor) Suppressed() bool { return m.suppressed }

// Violations returns the number of counted violations.
func (m *Monitor) Violations() int { return m.violations }

// WarningShowing reports whether the warning overlay is up.
func (m *Monitor) WarningShowing() bool { return m.warning }

// Log returns the counted events in order.
func (m *Monitor) Log() []Event {
	out := make([]Event, len(m.history))
	copy(out, m.history)
	return out
}
