// Package notify delivers reservation lifecycle events to downstream sinks.
// Delivery is best effort: failures are logged and never reach the workflow.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vbonduro/sparx/internal/domain"
)

const (
	ReservationConfirmed = "reservation.confirmed"
	ReservationCancelled = "reservation.cancelled"
)

type Event struct {
	Type         string    `json:"type"`
	ClientID     string    `json:"client_id,omitempty"`
	Reference    string    `json:"reference"`
	SpotID       int64     `json:"spot_id"`
	HolderName   string    `json:"holder_name"`
	VehicleLabel string    `json:"vehicle_label"`
	Date         string    `json:"date"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// NewEvent builds an event of kind for r.
func NewEvent(kind string, r domain.Reservation, at time.Time) Event {
	return Event{
		Type:         kind,
		Reference:    r.Reference,
		SpotID:       r.SpotID,
		HolderName:   r.HolderName,
		VehicleLabel: r.VehicleLabel,
		Date:         r.Date.Format(domain.DateLayout),
		OccurredAt:   at.UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// LogPublisher writes events to a structured logger.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	p.logger.Info("reservation event",
		"type", ev.Type,
		"client_id", ev.ClientID,
		"reference", ev.Reference,
		"spot_id", ev.SpotID,
		"date", ev.Date,
	)
	return nil
}

// Async hands events to a single background goroutine so slow sinks never
// block the caller. Events are delivered in submission order; when the
// buffer is full, or once Close has been called, new events are dropped and
// logged.
type Async struct {
	next    Publisher
	logger  *slog.Logger
	events  chan Event
	timeout time.Duration
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewAsync(next Publisher, buffer int, logger *slog.Logger) *Async {
	a := &Async{
		next:    next,
		logger:  logger,
		events:  make(chan Event, buffer),
		timeout: 5 * time.Second,
	}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Async) run() {
	defer a.wg.Done()
	for ev := range a.events {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.Publish(ctx, ev); err != nil {
			a.logger.Error("failed to publish reservation event", "type", ev.Type, "reference", ev.Reference, "error", err)
		}
		cancel()
	}
}

// Publish enqueues ev. It never blocks and always returns nil.
func (a *Async) Publish(_ context.Context, ev Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		a.logger.Warn("reservation event dropped, publisher closed", "type", ev.Type, "reference", ev.Reference)
		return nil
	}
	select {
	case a.events <- ev:
	default:
		a.logger.Warn("reservation event dropped, queue full", "type", ev.Type, "reference", ev.Reference)
	}
	return nil
}

// Close stops accepting events and waits for queued ones to be delivered.
// It is safe to call more than once and concurrently with Publish.
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.events)
	}
	a.mu.Unlock()
	a.wg.Wait()
}
