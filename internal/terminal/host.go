// Package terminal presents an exam session on a text terminal.
package terminal

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/pavelanni/quizmaster/internal/integrity"
)

// ErrNotTerminal is returned by RequestFullscreen when output is not a
// terminal.
var ErrNotTerminal = errors.New("output is not a terminal")

const (
	enterAltScreen = "\x1b[?1049h\x1b[H\x1b[2J"
	leaveAltScreen = "\x1b[?1049l"
	clearScreen    = "\x1b[H\x1b[2J"

	// Focus reporting makes the terminal send focusOut when its window
	// loses focus; bracketed paste wraps pasted text in paste markers.
	enableReports  = "\x1b[?1004h\x1b[?2004h"
	disableReports = "\x1b[?1004l\x1b[?2004l"

	focusOut   = "\x1b[O"
	focusIn    = "\x1b[I"
	pasteStart = "\x1b[200~"
	pasteEnd   = "\x1b[201~"
)

// Host is the terminal an exam is shown on. On a real terminal the
// fullscreen request switches to the alternate screen.
type Host struct {
	out io.Writer
	tty bool

	mu  sync.Mutex
	alt bool
}

// NewHost wraps f, detecting whether it is a terminal.
func NewHost(f *os.File) *Host {
	fd := f.Fd()
	return &Host{out: f, tty: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)}
}

// IsTerminal reports whether the host writes to a terminal.
func (h *Host) IsTerminal() bool { return h.tty }

func (h *Host) RequestFullscreen(ctx context.Context) error {
	if !h.tty {
		return ErrNotTerminal
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.alt {
		return nil
	}
	if _, err := io.WriteString(h.out, enterAltScreen+enableReports); err != nil {
		return err
	}
	h.alt = true
	return nil
}

// Restore leaves the alternate screen.
func (h *Host) Restore() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.alt {
		return
	}
	_, _ = io.WriteString(h.out, disableReports+leaveAltScreen)
	h.alt = false
}

func (h *Host) clear() {
	if h == nil || !h.tty {
		return
	}
	_, _ = io.WriteString(h.out, clearScreen)
}

// Watcher reports process suspension (Ctrl+Z) as a window_blur
// violation. The suspension itself is not carried out.
type Watcher struct {
	events chan integrity.Event
	now    func() time.Time
}

// Watch starts watching until ctx is done. On platforms without job
// control the watcher never reports anything.
func Watch(ctx context.Context) *Watcher {
	w := &Watcher{events: make(chan integrity.Event, 8), now: time.Now}
	sigs := make(chan os.Signal, 1)
	if len(suspendSignals) > 0 {
		signal.Notify(sigs, suspendSignals...)
	}
	go func() {
		defer close(w.events)
		defer signal.Stop(sigs)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigs:
				w.emit(integrity.WindowBlur)
			}
		}
	}()
	return w
}

func (w *Watcher) emit(kind integrity.EventKind) {
	select {
	case w.events <- integrity.Event{Kind: kind, At: w.now()}:
	default:
	}
}

func (w *Watcher) Events() <-chan integrity.Event { return w.events }

// scanInput removes terminal reports from an input line and returns the
// integrity events they stand for. A pasted line is rejected.
func scanInput(line string) (clean string, kinds []integrity.EventKind, pasted bool) {
	if n := strings.Count(line, focusOut); n > 0 {
		for range n {
			kinds = append(kinds, integrity.WindowBlur)
		}
		line = strings.ReplaceAll(line, focusOut, "")
	}
	line = strings.ReplaceAll(line, focusIn, "")
	if strings.Contains(line, pasteStart) {
		kinds = append(kinds, integrity.Paste)
		return "", kinds, true
	}
	line = strings.ReplaceAll(line, pasteEnd, "")
	return strings.TrimSpace(line), kinds, false
}
