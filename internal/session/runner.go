package session

import (
	"context"
	"errors"
	"time"

	"github.com/pavelanni/quizmaster/internal/integrity"
)

// ErrStopped is returned by Send and View after Run has returned.
var ErrStopped = errors.New("session runner stopped")

type request struct {
	ev    Event
	view  func(*Session)
	reply chan error
}

// Runner drives a Session from one goroutine: timer ticks, host events
// and caller events are applied in arrival order.
type Runner struct {
	s        *Session
	interval time.Duration
	ticks    <-chan time.Time
	source   integrity.Source
	requests chan request
	done     chan struct{}
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithTickInterval sets the timer period. The default is one second.
func WithTickInterval(d time.Duration) RunnerOption {
	return func(r *Runner) { r.interval = d }
}

// WithTicks replaces the internal ticker with an external tick channel.
func WithTicks(ch <-chan time.Time) RunnerOption {
	return func(r *Runner) { r.ticks = ch }
}

// WithSource forwards host integrity events to the session.
func WithSource(src integrity.Source) RunnerOption {
	return func(r *Runner) { r.source = src }
}

// NewRunner returns a runner for s. Run must be called to start it.
func NewRunner(s *Session, opts ...RunnerOption) *Runner {
	r := &Runner{
		s:        s,
		interval: time.Second,
		requests: make(chan request),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run applies events until the session finishes or ctx is cancelled.
// Cancelling while playing discards the attempt. The error of a
// timer-triggered submission is returned.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.done)

	ticks := r.ticks
	if ticks == nil {
		t := time.NewTicker(r.interval)
		defer t.Stop()
		ticks = t.C
	}
	var hostEvents <-chan integrity.Event
	if r.source != nil {
		hostEvents = r.source.Events()
	}

	for {
		select {
		case <-ctx.Done():
			_ = r.s.Dispatch(context.WithoutCancel(ctx), Exit{})
			return ctx.Err()
		case <-ticks:
			if err := r.s.Dispatch(ctx, Tick{}); err != nil {
				return err
			}
		case ev, ok := <-hostEvents:
			if !ok {
				hostEvents = nil
				continue
			}
			if ev.Kind.Deterrent() {
				_ = r.s.Dispatch(ctx, Deterrent{Kind: ev.Kind})
			} else {
				_ = r.s.Dispatch(ctx, Violation{Event: ev})
			}
		case req := <-r.requests:
			if req.view != nil {
				req.view(r.s)
				req.reply <- nil
			} else {
				req.reply <- r.s.Dispatch(ctx, req.ev)
			}
		}
		if r.s.State() == StateFinished {
			return nil
		}
	}
}

// Send applies ev on the runner goroutine and returns its error.
func (r *Runner) Send(ctx context.Context, ev Event) error {
	return r.do(ctx, request{ev: ev, reply: make(chan error, 1)})
}

// View runs fn on the runner goroutine so it can read the session safely.
func (r *Runner) View(ctx context.Context, fn func(*Session)) error {
	return r.do(ctx, request{view: fn, reply: make(chan error, 1)})
}

// Done is closed when Run returns.
func (r *Runner) Done() <-chan struct{} { return r.done }

func (r *Runner) do(ctx context.Context, req request) error {
	select {
	case r.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrStopped
	}
	return <-req.reply
}
