package services

import (
	"context"
	"time"

	"dealroom/internal/domain/unread"
	"dealroom/internal/events"
	"dealroom/internal/metrics"
	"dealroom/internal/repository"
	"dealroom/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UnreadUpdate is pushed to every connection of a participant when one of
// their counters changes.
type UnreadUpdate struct {
	TransactionID    uuid.UUID `json:"transaction_id"`
	Count            int64     `json:"count"`
	LastReadSequence int64     `json:"last_read_sequence"`
}

// UnreadTracker maintains per-participant unread counters. Counters are a
// derived view: Rebuild recomputes them from the message store, so callers
// log tracker failures instead of failing delivery.
type UnreadTracker struct {
	repo      repository.UnreadRepository
	messages  *MessageStore
	viewports ViewportTracker
	publisher events.Publisher
	clock     func() time.Time
	log       *logger.Logger
}

func NewUnreadTracker(repo repository.UnreadRepository, messages *MessageStore, viewports ViewportTracker, publisher events.Publisher, log *logger.Logger) *UnreadTracker {
	if log == nil {
		log = logger.NewNop()
	}
	return &UnreadTracker{
		repo:      repo,
		messages:  messages,
		viewports: viewports,
		publisher: publisher,
		clock:     time.Now,
		log:       log.Named("unread"),
	}
}

// OnMessageDelivered counts message sequence as unread for recipient unless
// one of the recipient's connections has the channel open, in which case it
// is read immediately.
func (t *UnreadTracker) OnMessageDelivered(ctx context.Context, transactionID, recipientID uuid.UUID, sequence int64) (unread.Counter, error) {
	viewing, err := t.viewports.IsViewing(ctx, recipientID, transactionID)
	if err != nil {
		t.log.WithContext(ctx).Warn("viewport lookup failed, counting as unread", zap.Error(err))
		viewing = false
	}

	now := t.clock().UTC()
	var c unread.Counter
	if viewing {
		c, err = t.repo.MarkRead(ctx, recipientID, transactionID, sequence, now)
		metrics.UnreadIncrements.WithLabelValues("viewing").Inc()
	} else {
		c, err = t.repo.Increment(ctx, recipientID, transactionID, sequence, now)
		metrics.UnreadIncrements.WithLabelValues("incremented").Inc()
	}
	if err != nil {
		return unread.Counter{}, err
	}
	t.push(ctx, events.EventTypeUnreadUpdated, c)
	return c, nil
}

// MarkRead resets the counter to zero at the latest sequence and tells every
// connection of the participant to adopt the same read state.
func (t *UnreadTracker) MarkRead(ctx context.Context, transactionID, participantID uuid.UUID) (unread.Counter, error) {
	latest, err := t.messages.Latest(ctx, transactionID)
	if err != nil {
		return unread.Counter{}, err
	}
	c, err := t.repo.MarkRead(ctx, participantID, transactionID, latest, t.clock().UTC())
	if err != nil {
		return unread.Counter{}, err
	}
	t.push(ctx, events.EventTypeReadConverged, c)
	return c, nil
}

// GetUnreadSummary maps each transaction with unread messages to its count.
func (t *UnreadTracker) GetUnreadSummary(ctx context.Context, participantID uuid.UUID) (map[uuid.UUID]int64, error) {
	counters, err := t.repo.ListNonZero(ctx, participantID)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]int64, len(counters))
	for _, c := range counters {
		out[c.TransactionID] = c.Count
	}
	return out, nil
}

// Rebuild recomputes the counter from messages addressed to the participant
// after its last read sequence.
func (t *UnreadTracker) Rebuild(ctx context.Context, transactionID, participantID uuid.UUID) (unread.Counter, error) {
	c, err := t.repo.Get(ctx, participantID, transactionID)
	if err != nil {
		return unread.Counter{}, err
	}
	n, err := t.messages.CountForRecipientSince(ctx, transactionID, participantID, c.LastReadSequence)
	if err != nil {
		return unread.Counter{}, err
	}
	if n == c.Count {
		return c, nil
	}
	c.ParticipantID = participantID
	c.TransactionID = transactionID
	c.Count = n
	c.UpdatedAt = t.clock().UTC()
	if err := t.repo.Set(ctx, c); err != nil {
		return unread.Counter{}, err
	}
	t.push(ctx, events.EventTypeUnreadUpdated, c)
	return c, nil
}

func (t *UnreadTracker) push(ctx context.Context, eventType string, c unread.Counter) {
	if t.publisher == nil {
		return
	}
	update := UnreadUpdate{TransactionID: c.TransactionID, Count: c.Count, LastReadSequence: c.LastReadSequence}
	err := publishEvent(ctx, t.publisher, events.ParticipantChannel(c.ParticipantID), eventType,
		events.AggregateTypeUnread, c.ParticipantID.String(), c.TransactionID, update, t.clock())
	if err != nil {
		t.log.WithContext(ctx).Warn("unread push failed", zap.String("event", eventType), zap.Error(err))
	}
}
