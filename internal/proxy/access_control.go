package proxy

import (
	"context"

	"dealroom/internal/commands"
	"dealroom/internal/repository"
	dealroom_errors "dealroom/pkg/errors"

	"github.com/google/uuid"
)

// AccessControl admits only the two declared parties of a transaction.
type AccessControl struct {
	bookings repository.BookingRepository
}

func NewAccessControl(bookings repository.BookingRepository) *AccessControl {
	return &AccessControl{bookings: bookings}
}

// Authorize implements commands.Proxy. Commands not scoped to a transaction
// are authorized by their handler instead.
func (a *AccessControl) Authorize(ctx context.Context, cmd commands.Command) error {
	scoped, ok := cmd.(commands.PartyScoped)
	if !ok {
		return nil
	}
	return a.EnsureParty(ctx, scoped.Transaction(), scoped.Actor())
}

func (a *AccessControl) EnsureParty(ctx context.Context, transactionID, participantID uuid.UUID) error {
	parties, err := a.bookings.GetPartiesForTransaction(ctx, transactionID)
	if err != nil {
		return err
	}
	if !parties.Contains(participantID) {
		return dealroom_errors.ErrUnauthorized
	}
	return nil
}
