package memory

import (
	"context"
	"time"

	"dealroom/internal/domain/outbox"
	dealroom_errors "dealroom/pkg/errors"

	"github.com/google/uuid"
)

type outboxRepo struct{ s *Store }

func (r *outboxRepo) GetPending(_ context.Context, limit int) ([]outbox.OutboxEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []outbox.OutboxEvent
	for _, e := range r.s.outbox {
		if e.Status != outbox.StatusPending {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *outboxRepo) MarkProcessing(_ context.Context, id uuid.UUID) (bool, error) {
	claimed := false
	err := r.update(id, func(e *outbox.OutboxEvent) {
		if e.Status == outbox.StatusPending {
			e.Status = outbox.StatusProcessing
			claimed = true
		}
	})
	return claimed, err
}

func (r *outboxRepo) MarkCompleted(_ context.Context, id uuid.UUID) error {
	return r.update(id, func(e *outbox.OutboxEvent) {
		now := time.Now()
		e.Status = outbox.StatusCompleted
		e.ProcessedAt = &now
	})
}

func (r *outboxRepo) MarkFailed(_ context.Context, id uuid.UUID, errorMsg string) error {
	return r.update(id, func(e *outbox.OutboxEvent) {
		e.Status = outbox.StatusFailed
		e.Error = errorMsg
	})
}

func (r *outboxRepo) Release(_ context.Context, id uuid.UUID, errorMsg string) error {
	return r.update(id, func(e *outbox.OutboxEvent) {
		e.Status = outbox.StatusPending
		e.RetryCount++
		e.Error = errorMsg
	})
}

func (r *outboxRepo) update(id uuid.UUID, fn func(*outbox.OutboxEvent)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.outbox {
		if r.s.outbox[i].ID == id {
			fn(&r.s.outbox[i])
			r.s.outbox[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return dealroom_errors.ErrNotFound
}
