package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"loop/internal/middleware"
	"loop/internal/observability"
	"loop/internal/repository"
)

// OutboxProcessor redelivers parked events until they succeed or run out of
// attempts.
type OutboxProcessor struct {
	repo        repository.OutboxRepository
	dispatcher  *Dispatcher
	interval    time.Duration
	maxAttempts int
	batchSize   int
	now         func() time.Time
}

// NewOutboxProcessor creates a processor polling every interval.
func NewOutboxProcessor(repo repository.OutboxRepository, d *Dispatcher, interval time.Duration, maxAttempts, batchSize int) *OutboxProcessor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 8
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &OutboxProcessor{
		repo:        repo,
		dispatcher:  d,
		interval:    interval,
		maxAttempts: maxAttempts,
		batchSize:   batchSize,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run polls until ctx is cancelled.
func (p *OutboxProcessor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
				middleware.Logger.Error("outbox poll failed", slog.String("error", err.Error()))
			}
		}
	}
}

// ProcessOnce claims one batch of due events and runs them. It returns how
// many were delivered.
func (p *OutboxProcessor) ProcessOnce(ctx context.Context) (int, error) {
	now := p.now()
	batch, err := p.repo.Claim(ctx, now, p.interval*2, p.batchSize)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, ev := range batch {
		herr := p.dispatcher.Handle(ctx, Kind(ev.Kind), json.RawMessage(ev.Payload))
		if herr == nil {
			if err := p.repo.MarkDelivered(ctx, ev.ID); err != nil {
				return delivered, err
			}
			delivered++
			observability.DispatchedEvents.WithLabelValues(ev.Kind, "redelivered").Inc()
			continue
		}

		attempts := ev.Attempts + 1
		dead := attempts >= p.maxAttempts || IsPermanent(herr)
		if err := p.repo.MarkFailed(ctx, ev.ID, attempts, herr.Error(), now.Add(p.retryDelay(attempts)), dead); err != nil {
			return delivered, err
		}
		if dead {
			observability.DispatchedEvents.WithLabelValues(ev.Kind, "dead").Inc()
			middleware.Logger.Error("outbox event exhausted its attempts",
				slog.String("id", ev.ID.String()),
				slog.String("kind", ev.Kind),
				slog.String("error", herr.Error()),
			)
		}
	}
	return delivered, nil
}

// retryDelay doubles the poll interval per attempt, capped at one hour.
func (p *OutboxProcessor) retryDelay(attempts int) time.Duration {
	d := p.interval
	for i := 1; i < attempts && d < time.Hour; i++ {
		d *= 2
	}
	if d > time.Hour {
		d = time.Hour
	}
	return d
}
