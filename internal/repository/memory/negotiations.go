package memory

import (
	"context"
	"sort"
	"time"

	"dealroom/internal/domain/negotiation"
	"dealroom/internal/domain/outbox"
	dealroom_errors "dealroom/pkg/errors"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type negotiationRepo struct{ s *Store }

func (r *negotiationRepo) Create(_ context.Context, agg *negotiation.Aggregate, events []outbox.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.negotiations {
		n := existing.Negotiation
		if n.TransactionID == agg.Negotiation.TransactionID && !n.Status.IsTerminal() {
			return dealroom_errors.ErrNegotiationExists
		}
	}
	if _, ok := r.s.negotiations[agg.Negotiation.ID]; ok {
		return dealroom_errors.ErrAlreadyExists
	}
	r.s.negotiations[agg.Negotiation.ID] = cloneAggregate(agg)
	r.s.outbox = append(r.s.outbox, events...)
	return nil
}

func (r *negotiationRepo) GetByID(_ context.Context, id uuid.UUID) (*negotiation.Aggregate, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	agg, ok := r.s.negotiations[id]
	if !ok {
		return nil, dealroom_errors.ErrNotFound
	}
	return cloneAggregate(agg), nil
}

func (r *negotiationRepo) GetLatestByTransaction(_ context.Context, transactionID uuid.UUID) (*negotiation.Aggregate, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var latest *negotiation.Aggregate
	for _, agg := range r.s.negotiations {
		if agg.Negotiation.TransactionID != transactionID {
			continue
		}
		if latest == nil || agg.Negotiation.CreatedAt.After(latest.Negotiation.CreatedAt) {
			latest = agg
		}
	}
	if latest == nil {
		return nil, dealroom_errors.ErrNotFound
	}
	return cloneAggregate(latest), nil
}

func (r *negotiationRepo) Update(_ context.Context, agg *negotiation.Aggregate, expectedVersion int64, _ []negotiation.Offer, events []outbox.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.negotiations[agg.Negotiation.ID]
	if !ok {
		return dealroom_errors.ErrNotFound
	}
	if stored.Negotiation.Version != expectedVersion {
		return dealroom_errors.ErrNegotiationConflict
	}
	r.s.negotiations[agg.Negotiation.ID] = cloneAggregate(agg)
	r.s.outbox = append(r.s.outbox, events...)
	return nil
}

func (r *negotiationRepo) ListOverdue(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	overdue := lo.Filter(lo.Values(r.s.negotiations), func(agg *negotiation.Aggregate, _ int) bool {
		return agg.Negotiation.Overdue(now)
	})
	sort.Slice(overdue, func(i, j int) bool {
		return overdue[i].Negotiation.ExpiresAt.Before(overdue[j].Negotiation.ExpiresAt)
	})
	if limit > 0 && len(overdue) > limit {
		overdue = overdue[:limit]
	}
	return lo.Map(overdue, func(agg *negotiation.Aggregate, _ int) uuid.UUID {
		return agg.Negotiation.ID
	}), nil
}
