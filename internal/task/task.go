// Package task runs named actions after a simulated delay. At most one task
// per name is in flight; starting a second one fails with domain.ErrBusy
// until the first has completed. Tasks cannot be cancelled once started.
package task

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/vbonduro/sparx/internal/domain"
)

// Future is the eventual outcome of a started task.
type Future struct {
	name string
	done chan struct{}
	err  error
}

func (f *Future) Name() string {
	return f.name
}

// Done is closed once the task's function has returned.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err returns the task's error. It is only meaningful after Done is closed.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait blocks until the task completes or ctx ends. A ctx ending only stops
// the wait; the task still runs to completion.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Scheduler runs fn once d has elapsed. It must not run fn on the calling
// goroutine, since callers may start tasks while holding locks fn takes.
type Scheduler func(d time.Duration, fn func())

func afterFunc(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}

type Runner struct {
	mu       sync.Mutex
	inFlight map[string]*Future
	schedule Scheduler
	onSettle func(name string)
}

type Option func(*Runner)

// WithScheduler replaces time.AfterFunc, mainly so tests can fire tasks by hand.
func WithScheduler(s Scheduler) Option {
	return func(r *Runner) { r.schedule = s }
}

func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		inFlight: make(map[string]*Future),
		schedule: afterFunc,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnSettle registers fn to be called after every task has completed and its
// name is free again.
func (r *Runner) OnSettle(fn func(name string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onSettle = fn
}

// Start schedules fn to run after delay under name.
func (r *Runner) Start(name string, delay time.Duration, fn func() error) (*Future, error) {
	r.mu.Lock()
	if _, busy := r.inFlight[name]; busy {
		r.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", name, domain.ErrBusy)
	}
	f := &Future{name: name, done: make(chan struct{})}
	r.inFlight[name] = f
	r.mu.Unlock()

	r.schedule(delay, func() { r.complete(f, fn) })
	return f, nil
}

func (r *Runner) complete(f *Future, fn func() error) {
	f.err = fn()

	r.mu.Lock()
	delete(r.inFlight, f.name)
	settle := r.onSettle
	r.mu.Unlock()

	close(f.done)
	if settle != nil {
		settle(f.name)
	}
}

func (r *Runner) Busy(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, busy := r.inFlight[name]
	return busy
}

// InFlight returns the names of running tasks, sorted.
func (r *Runner) InFlight() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.inFlight))
	for name := range r.inFlight {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
