package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"loop/internal/middleware"
	"loop/internal/models"
	"loop/internal/observability"
	"loop/internal/repository"

	"github.com/cenkalti/backoff/v5"
)

// Handler performs the side effect for one payload.
type Handler func(ctx context.Context, payload json.RawMessage) error

// ErrNoHandler is returned by Handle for a kind nobody registered.
var ErrNoHandler = errors.New("no handler registered")

// PermanentError marks a handler failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the event is not retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err should stop all further attempts.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.Is(err, ErrNoHandler) || errors.As(err, &pe)
}

// Options tune a Dispatcher. Zero values fall back to defaults.
type Options struct {
	Workers        int
	QueueSize      int
	MaxTries       int
	HandlerTimeout time.Duration
	InitialBackoff time.Duration
	OutboxDelay    time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.MaxTries <= 0 {
		o.MaxTries = 3
	}
	if o.HandlerTimeout <= 0 {
		o.HandlerTimeout = 5 * time.Second
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 100 * time.Millisecond
	}
	if o.OutboxDelay <= 0 {
		o.OutboxDelay = 15 * time.Second
	}
	return o
}

// Dispatcher queues events in memory and runs them on a worker pool.
type Dispatcher struct {
	opts     Options
	outbox   repository.OutboxRepository
	queue    chan Event
	handlers map[Kind]Handler

	mu      sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup

	// runCtx bounds every delivery. Shutdown cancels it when its own
	// deadline passes so workers park what they hold instead of retrying.
	runCtx    context.Context
	cancelRun context.CancelFunc
}

// NewDispatcher creates a dispatcher. outbox may be nil, in which case events
// that exhaust their retries are only logged.
func NewDispatcher(outbox repository.OutboxRepository, opts Options) *Dispatcher {
	opts = opts.withDefaults()
	runCtx, cancelRun := context.WithCancel(context.Background())
	return &Dispatcher{
		opts:      opts,
		outbox:    outbox,
		queue:     make(chan Event, opts.QueueSize),
		handlers:  make(map[Kind]Handler),
		runCtx:    runCtx,
		cancelRun: cancelRun,
	}
}

// Register installs the handler for kind. Call before Start.
func (d *Dispatcher) Register(kind Kind, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = h
}

// Start launches the workers. Calling it twice is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// Publish enqueues an event without blocking. When the queue is full or the
// dispatcher is shut down the event goes straight to the outbox.
func (d *Dispatcher) Publish(ctx context.Context, kind Kind, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		middleware.Logger.ErrorContext(ctx, "failed to encode event payload",
			slog.String("kind", string(kind)), slog.String("error", err.Error()))
		observability.DispatchedEvents.WithLabelValues(string(kind), "dropped").Inc()
		return
	}
	ev := Event{Kind: kind, Payload: raw}

	d.mu.RLock()
	if !d.closed {
		select {
		case d.queue <- ev:
			d.mu.RUnlock()
			observability.DispatchQueueDepth.Inc()
			return
		default:
		}
	}
	d.mu.RUnlock()

	middleware.Logger.WarnContext(ctx, "dispatch queue unavailable, writing event to outbox",
		slog.String("kind", string(kind)))
	d.park(context.WithoutCancel(ctx), ev, 0, errors.New("dispatch queue full or closed"), false)
}

// Handle runs the registered handler once under the handler timeout.
func (d *Dispatcher) Handle(ctx context.Context, kind Kind, payload json.RawMessage) error {
	d.mu.RLock()
	h, ok := d.handlers[kind]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w for %q", ErrNoHandler, kind)
	}

	ctx, cancel := context.WithTimeout(ctx, d.opts.HandlerTimeout)
	defer cancel()
	return h(ctx, payload)
}

// Shutdown stops accepting events and waits for queued ones to drain. When
// ctx expires first, in-flight deliveries are cancelled and every event not
// yet delivered is written to the outbox before Shutdown returns ctx.Err().
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		defer d.cancelRun()
		// Nobody will drain the queue; park what is left.
		for ev := range d.queue {
			observability.DispatchQueueDepth.Dec()
			d.park(context.WithoutCancel(ctx), ev, 0, errStopped, false)
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancelRun()
		return nil
	case <-ctx.Done():
	}

	d.cancelRun()
	middleware.Logger.Warn("dispatcher drain timed out, parking undelivered events")
	select {
	case <-done:
	case <-time.After(d.opts.HandlerTimeout):
		middleware.Logger.Error("dispatcher workers did not stop after cancellation")
	}
	return ctx.Err()
}

var errStopped = errors.New("dispatcher stopped before delivery")

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for ev := range d.queue {
		observability.DispatchQueueDepth.Dec()
		if d.runCtx.Err() != nil {
			d.park(context.Background(), ev, 0, errStopped, false)
			continue
		}
		d.deliver(ev)
	}
}

func (d *Dispatcher) deliver(ev Event) {
	ctx := d.runCtx

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.opts.InitialBackoff

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := d.Handle(ctx, ev.Kind, ev.Payload)
		if IsPermanent(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(d.opts.MaxTries)),
	)
	if err == nil {
		observability.DispatchedEvents.WithLabelValues(string(ev.Kind), "delivered").Inc()
		return
	}
	if ctx.Err() != nil {
		// Cancelled by Shutdown.
		d.park(context.Background(), ev, 0, fmt.Errorf("%w: %v", errStopped, err), false)
		return
	}

	observability.DispatchedEvents.WithLabelValues(string(ev.Kind), "failed").Inc()
	dead := IsPermanent(err)
	middleware.Logger.Warn("side effect failed, parking in outbox",
		slog.String("kind", string(ev.Kind)),
		slog.Int("tries", d.opts.MaxTries),
		slog.Bool("permanent", dead),
		slog.String("error", err.Error()),
	)
	d.park(context.Background(), ev, d.opts.MaxTries, err, dead)
}

// park stores ev in the outbox for later redelivery. Dead events are kept
// for inspection and replay only.
func (d *Dispatcher) park(ctx context.Context, ev Event, attempts int, cause error, dead bool) {
	if d.outbox == nil {
		observability.DispatchedEvents.WithLabelValues(string(ev.Kind), "dropped").Inc()
		middleware.Logger.ErrorContext(ctx, "side effect dropped, no outbox configured",
			slog.String("kind", string(ev.Kind)), slog.String("error", cause.Error()))
		return
	}

	row := &models.OutboxEvent{
		Kind:          string(ev.Kind),
		Payload:       string(ev.Payload),
		Attempts:      attempts,
		LastError:     cause.Error(),
		NextAttemptAt: time.Now().UTC().Add(d.opts.OutboxDelay),
	}
	if dead {
		row.Status = models.OutboxDead
	}
	ctx, cancel := context.WithTimeout(ctx, d.opts.HandlerTimeout)
	defer cancel()
	if err := d.outbox.Enqueue(ctx, row); err != nil {
		observability.DispatchedEvents.WithLabelValues(string(ev.Kind), "dropped").Inc()
		middleware.Logger.ErrorContext(ctx, "failed to write event to outbox",
			slog.String("kind", string(ev.Kind)),
			slog.String("cause", cause.Error()),
			slog.String("error", err.Error()),
		)
		return
	}
	observability.DispatchedEvents.WithLabelValues(string(ev.Kind), "outboxed").Inc()
}
