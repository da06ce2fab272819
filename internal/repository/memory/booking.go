package memory

import (
	"context"

	"dealroom/internal/domain/booking"
	dealroom_errors "dealroom/pkg/errors"

	"github.com/google/uuid"
)

type bookingRepo struct{ s *Store }

func (r *bookingRepo) GetTransaction(_ context.Context, transactionID uuid.UUID) (booking.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.transactions[transactionID]
	if !ok {
		return booking.Transaction{}, dealroom_errors.ErrNotFound
	}
	return t, nil
}

func (r *bookingRepo) GetPartiesForTransaction(ctx context.Context, transactionID uuid.UUID) (booking.Parties, error) {
	t, err := r.GetTransaction(ctx, transactionID)
	if err != nil {
		return booking.Parties{}, err
	}
	return t.Parties(), nil
}

func (r *bookingRepo) ConfirmBooking(_ context.Context, c booking.Confirmation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.transactions[c.TransactionID]; !ok {
		return dealroom_errors.ErrNotFound
	}
	if _, done := r.s.confirmed[c.TransactionID]; !done {
		r.s.confirmed[c.TransactionID] = c
	}
	return nil
}

type identityRepo struct{ s *Store }

func (r *identityRepo) Resolve(_ context.Context, participantID uuid.UUID) (booking.Identity, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.identities[participantID]
	if !ok {
		return booking.Identity{}, dealroom_errors.ErrNotFound
	}
	return id, nil
}
