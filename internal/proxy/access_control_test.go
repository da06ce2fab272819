package proxy

import (
	"context"
	"testing"

	"dealroom/internal/commands"
	"dealroom/internal/domain/booking"
	"dealroom/internal/repository/memory"
	dealroom_errors "dealroom/pkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestAccessControl(t *testing.T) {
	store := memory.NewStore()
	txn := booking.Transaction{
		ID:         uuid.New(),
		ServiceID:  uuid.New(),
		ClientID:   uuid.New(),
		ProviderID: uuid.New(),
		BasePrice:  decimal.NewFromInt(100),
	}
	store.AddTransaction(txn)
	ac := NewAccessControl(store.Bookings())
	ctx := context.Background()

	t.Run("should admit both parties", func(t *testing.T) {
		req := require.New(t)
		req.NoError(ac.EnsureParty(ctx, txn.ID, txn.ClientID))
		req.NoError(ac.EnsureParty(ctx, txn.ID, txn.ProviderID))
	})

	t.Run("should reject outsiders", func(t *testing.T) {
		req := require.New(t)
		err := ac.Authorize(ctx, commands.SendMessageCommand{TransactionID: txn.ID, FromID: uuid.New(), Body: "hi"})
		req.ErrorIs(err, dealroom_errors.ErrUnauthorized)
	})

	t.Run("should surface unknown transactions", func(t *testing.T) {
		err := ac.EnsureParty(ctx, uuid.New(), txn.ClientID)
		require.ErrorIs(t, err, dealroom_errors.ErrNotFound)
	})

	t.Run("should skip commands that are not transaction scoped", func(t *testing.T) {
		err := ac.Authorize(ctx, commands.DecideCommand{NegotiationID: uuid.New(), ActorID: uuid.New(), Decision: "accept"})
		require.NoError(t, err)
	})
}
