package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"dealroom/internal/domain/booking"
	"dealroom/internal/domain/negotiation"
	"dealroom/internal/domain/outbox"
	"dealroom/internal/events"
	"dealroom/internal/metrics"
	"dealroom/internal/repository"
	"dealroom/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Archiver receives negotiations that reached a terminal state.
type Archiver interface {
	Archive(ctx context.Context, negotiationID uuid.UUID) error
}

// Processor relays committed outbox events: negotiation events go to the
// transaction channel, booking confirmations to the booking collaborator.
// Delivery is at-least-once.
type Processor struct {
	repo       repository.OutboxRepository
	publisher  events.Publisher
	bookings   repository.BookingRepository
	archiver   Archiver
	log        *logger.Logger
	batchSize  int
	interval   time.Duration
	maxRetries int
}

func NewProcessor(repo repository.OutboxRepository, publisher events.Publisher, bookings repository.BookingRepository, archiver Archiver, log *logger.Logger, batchSize int, interval time.Duration, maxRetries int) *Processor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Processor{
		repo:       repo,
		publisher:  publisher,
		bookings:   bookings,
		archiver:   archiver,
		log:        log.Named("outbox"),
		batchSize:  batchSize,
		interval:   interval,
		maxRetries: maxRetries,
	}
}

func (p *Processor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch handles up to batchSize pending events and returns how many
// completed.
func (p *Processor) ProcessBatch(ctx context.Context) int {
	batch, err := p.repo.GetPending(ctx, p.batchSize)
	if err != nil {
		p.log.Logger.Warn("outbox fetch failed", zap.Error(err))
		return 0
	}

	completed := 0
	for _, e := range batch {
		claimed, err := p.repo.MarkProcessing(ctx, e.ID)
		if err != nil || !claimed {
			continue
		}
		if err := p.dispatch(ctx, e); err != nil {
			p.fail(ctx, e, err)
			continue
		}
		if err := p.repo.MarkCompleted(ctx, e.ID); err != nil {
			p.log.Logger.Warn("outbox completion not recorded", zap.String("event_id", e.ID.String()), zap.Error(err))
			continue
		}
		metrics.OutboxEvents.WithLabelValues("completed").Inc()
		completed++
	}
	return completed
}

func (p *Processor) fail(ctx context.Context, e outbox.OutboxEvent, cause error) {
	fields := []zap.Field{
		zap.String("event_id", e.ID.String()),
		zap.String("event_type", e.EventType),
		zap.Int("retry_count", e.RetryCount),
		zap.Error(cause),
	}
	if e.RetryCount+1 >= p.maxRetries {
		_ = p.repo.MarkFailed(ctx, e.ID, cause.Error())
		metrics.OutboxEvents.WithLabelValues("failed").Inc()
		p.log.Logger.Error("outbox event failed permanently", fields...)
		return
	}
	_ = p.repo.Release(ctx, e.ID, cause.Error())
	metrics.OutboxEvents.WithLabelValues("retried").Inc()
	p.log.Logger.Warn("outbox event will be retried", fields...)
}

func (p *Processor) dispatch(ctx context.Context, e outbox.OutboxEvent) error {
	var env events.Envelope
	if err := json.Unmarshal(e.Payload, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}

	switch {
	case e.EventType == events.EventTypeBookingConfirm:
		var c booking.Confirmation
		if err := json.Unmarshal(env.Payload, &c); err != nil {
			return fmt.Errorf("decode confirmation: %w", err)
		}
		return p.bookings.ConfirmBooking(ctx, c)

	case strings.HasPrefix(e.EventType, "negotiation."):
		channel, ok := events.ResolveChannel(env)
		if !ok {
			return fmt.Errorf("event %s has no channel", e.ID)
		}
		if err := p.publisher.Publish(ctx, channel, e.Payload); err != nil {
			return err
		}
		p.archiveIfTerminal(ctx, env)
		return nil
	}
	return fmt.Errorf("unroutable event type %q", e.EventType)
}

// archiveIfTerminal hands closed negotiations to the archiver. Archive
// failures are logged only; the live event was already delivered.
func (p *Processor) archiveIfTerminal(ctx context.Context, env events.Envelope) {
	if p.archiver == nil {
		return
	}
	var v negotiation.View
	if err := json.Unmarshal(env.Payload, &v); err != nil || !v.Status.IsTerminal() {
		return
	}
	if err := p.archiver.Archive(ctx, v.ID); err != nil {
		p.log.Logger.Warn("transcript archive failed", zap.String("negotiation_id", v.ID.String()), zap.Error(err))
	}
}
