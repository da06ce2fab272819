package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"dealroom/internal/commands"
	"dealroom/internal/domain/booking"
	"dealroom/internal/domain/negotiation"
	"dealroom/internal/events"
	"dealroom/internal/repository/memory"
	dealroom_errors "dealroom/pkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type negotiationFixture struct {
	store *memory.Store
	svc   *NegotiationService
	txn   booking.Transaction
	now   time.Time
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newNegotiationFixture(t *testing.T) *negotiationFixture {
	t.Helper()
	policy, err := negotiation.ParsePolicy("0.3", "0.5")
	require.NoError(t, err)

	store := memory.NewStore()
	txn := booking.Transaction{
		ID:         uuid.New(),
		ServiceID:  uuid.New(),
		ClientID:   uuid.New(),
		ProviderID: uuid.New(),
		BasePrice:  dec("100"),
	}
	store.AddTransaction(txn)

	f := &negotiationFixture{
		store: store,
		txn:   txn,
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewNegotiationService(store.Negotiations(), store.Bookings(), policy, 48*time.Hour, nil, nil)
	f.svc.clock = func() time.Time { return f.now }
	return f
}

func (f *negotiationFixture) open(t *testing.T, amount string) *negotiation.Aggregate {
	t.Helper()
	agg, err := f.svc.OpenForTransaction(context.Background(), f.txn.ID, f.txn.ClientID, dec(amount), "")
	require.NoError(t, err)
	return agg
}

func TestNegotiationServiceScenario(t *testing.T) {
	req := require.New(t)
	f := newNegotiationFixture(t)
	ctx := context.Background()

	// Given base 100 with limit 0.3 and hard floor 0.5
	// When the client opens below the floor
	_, err := f.svc.OpenForTransaction(ctx, f.txn.ID, f.txn.ClientID, dec("60"), "")
	// Then the offer is rejected
	req.ErrorIs(err, dealroom_errors.ErrInvalidOfferAmount)

	// When the client opens at 80
	agg, err := f.svc.OpenForTransaction(ctx, f.txn.ID, f.txn.ClientID, dec("80"), "can we do 80?")
	req.NoError(err)
	req.Equal(negotiation.StatusOpen, agg.Negotiation.Status)
	req.True(agg.Negotiation.MinAllowed.Equal(dec("70")))
	req.True(agg.Negotiation.MaxAllowed.Equal(dec("130")))
	req.Equal(f.txn.ProviderID, agg.Negotiation.CounterpartyID)

	// And the provider counters at 120
	agg, err = f.svc.CounterOffer(ctx, agg.Negotiation.ID, f.txn.ProviderID, dec("120"), "")
	req.NoError(err)
	req.Equal(negotiation.StatusCountered, agg.Negotiation.Status)

	// And the client accepts
	agg, err = f.svc.Accept(ctx, agg.Negotiation.ID, f.txn.ClientID)
	req.NoError(err)

	// Then the negotiation is accepted at 120
	req.Equal(negotiation.StatusAccepted, agg.Negotiation.Status)
	req.True(agg.Negotiation.FinalPrice.Decimal.Equal(dec("120")))

	stored, err := f.svc.Get(ctx, agg.Negotiation.ID)
	req.NoError(err)
	req.Equal(int64(3), stored.Negotiation.Version)
	req.Len(stored.Offers, 2)
	req.True(stored.Offers[0].SupersededBy.Valid)

	// And the booking confirmation was queued with the accept event
	types := make([]string, 0)
	for _, e := range f.store.OutboxEvents() {
		types = append(types, e.EventType)
	}
	req.Equal([]string{
		events.EventTypeNegotiationOpened,
		events.EventTypeNegotiationCountered,
		events.EventTypeNegotiationAccepted,
		events.EventTypeBookingConfirm,
	}, types)
}

func TestNegotiationServiceTurns(t *testing.T) {
	t.Run("should refuse a second counter by the same party", func(t *testing.T) {
		req := require.New(t)
		f := newNegotiationFixture(t)
		agg := f.open(t, "80")

		_, err := f.svc.CounterOffer(context.Background(), agg.Negotiation.ID, f.txn.ClientID, dec("85"), "")

		req.ErrorIs(err, dealroom_errors.ErrOutOfTurn)
	})

	t.Run("should refuse a counter equal to the current offer", func(t *testing.T) {
		req := require.New(t)
		f := newNegotiationFixture(t)
		agg := f.open(t, "80")

		_, err := f.svc.CounterOffer(context.Background(), agg.Negotiation.ID, f.txn.ProviderID, dec("80.00"), "")

		req.ErrorIs(err, dealroom_errors.ErrInvalidOfferAmount)
	})

	t.Run("should refuse outsiders", func(t *testing.T) {
		req := require.New(t)
		f := newNegotiationFixture(t)
		agg := f.open(t, "80")

		_, err := f.svc.CounterOffer(context.Background(), agg.Negotiation.ID, uuid.New(), dec("90"), "")
		req.ErrorIs(err, dealroom_errors.ErrUnauthorized)

		_, err = f.svc.OpenForTransaction(context.Background(), f.txn.ID, uuid.New(), dec("90"), "")
		req.ErrorIs(err, dealroom_errors.ErrUnauthorized)
	})

	t.Run("should accept the offer that is current at acceptance time", func(t *testing.T) {
		req := require.New(t)
		f := newNegotiationFixture(t)
		ctx := context.Background()
		agg := f.open(t, "75")
		id := agg.Negotiation.ID

		_, err := f.svc.CounterOffer(ctx, id, f.txn.ProviderID, dec("125"), "")
		req.NoError(err)
		_, err = f.svc.CounterOffer(ctx, id, f.txn.ClientID, dec("95.50"), "")
		req.NoError(err)
		_, err = f.svc.CounterOffer(ctx, id, f.txn.ProviderID, dec("110"), "")
		req.NoError(err)

		agg, err = f.svc.Accept(ctx, id, f.txn.ClientID)

		req.NoError(err)
		req.True(agg.Negotiation.FinalPrice.Decimal.Equal(dec("110")))
		req.Equal(agg.CurrentOffer().ID, agg.Negotiation.CurrentOfferID)
	})
}

func TestNegotiationServiceTerminal(t *testing.T) {
	t.Run("should allow only the initiator to cancel an open negotiation", func(t *testing.T) {
		req := require.New(t)
		f := newNegotiationFixture(t)
		ctx := context.Background()
		agg := f.open(t, "80")

		_, err := f.svc.Cancel(ctx, agg.Negotiation.ID, f.txn.ProviderID)
		req.ErrorIs(err, dealroom_errors.ErrUnauthorized)

		agg, err = f.svc.Cancel(ctx, agg.Negotiation.ID, f.txn.ClientID)
		req.NoError(err)
		req.Equal(negotiation.StatusCancelled, agg.Negotiation.Status)

		_, err = f.svc.Reject(ctx, agg.Negotiation.ID, f.txn.ProviderID)
		req.ErrorIs(err, dealroom_errors.ErrNegotiationClosed)
		req.Equal(dealroom_errors.KindTerminalState, dealroom_errors.KindOf(err))
	})

	t.Run("should let either party reject", func(t *testing.T) {
		req := require.New(t)
		f := newNegotiationFixture(t)
		agg := f.open(t, "80")

		agg, err := f.svc.Reject(context.Background(), agg.Negotiation.ID, f.txn.ProviderID)

		req.NoError(err)
		req.Equal(negotiation.StatusRejected, agg.Negotiation.Status)
	})

	t.Run("should allow a new negotiation once the previous one closed", func(t *testing.T) {
		req := require.New(t)
		f := newNegotiationFixture(t)
		ctx := context.Background()
		agg := f.open(t, "80")

		_, err := f.svc.OpenForTransaction(ctx, f.txn.ID, f.txn.ProviderID, dec("120"), "")
		req.ErrorIs(err, dealroom_errors.ErrNegotiationExists)

		_, err = f.svc.Reject(ctx, agg.Negotiation.ID, f.txn.ProviderID)
		req.NoError(err)

		next, err := f.svc.OpenForTransaction(ctx, f.txn.ID, f.txn.ProviderID, dec("120"), "")
		req.NoError(err)
		req.Equal(f.txn.ClientID, next.Negotiation.CounterpartyID)
	})
}

func TestNegotiationServiceExpiry(t *testing.T) {
	t.Run("should expire overdue negotiations on sweep", func(t *testing.T) {
		req := require.New(t)
		f := newNegotiationFixture(t)
		ctx := context.Background()
		agg := f.open(t, "80")

		// Given the deadline has passed
		f.now = f.now.Add(49 * time.Hour)

		// When the sweep runs
		n, err := f.svc.SweepExpired(ctx)

		// Then the negotiation is expired
		req.NoError(err)
		req.Equal(1, n)
		stored, err := f.svc.Get(ctx, agg.Negotiation.ID)
		req.NoError(err)
		req.Equal(negotiation.StatusExpired, stored.Negotiation.Status)

		// And counter offers fail as terminal
		_, err = f.svc.CounterOffer(ctx, agg.Negotiation.ID, f.txn.ProviderID, dec("120"), "")
		req.ErrorIs(err, dealroom_errors.ErrNegotiationClosed)

		// And a second sweep finds nothing
		n, err = f.svc.SweepExpired(ctx)
		req.NoError(err)
		req.Zero(n)
	})

	t.Run("should expire lazily when a mutation arrives late", func(t *testing.T) {
		req := require.New(t)
		f := newNegotiationFixture(t)
		ctx := context.Background()
		agg := f.open(t, "80")
		f.now = f.now.Add(72 * time.Hour)

		_, err := f.svc.Accept(ctx, agg.Negotiation.ID, f.txn.ProviderID)

		req.ErrorIs(err, dealroom_errors.ErrNegotiationClosed)
		stored, err := f.svc.Get(ctx, agg.Negotiation.ID)
		req.NoError(err)
		req.Equal(negotiation.StatusExpired, stored.Negotiation.Status)
	})

	t.Run("should push the deadline forward on every counter", func(t *testing.T) {
		req := require.New(t)
		f := newNegotiationFixture(t)
		agg := f.open(t, "80")
		f.now = f.now.Add(47 * time.Hour)

		agg, err := f.svc.CounterOffer(context.Background(), agg.Negotiation.ID, f.txn.ProviderID, dec("120"), "")

		req.NoError(err)
		req.Equal(f.now.Add(48*time.Hour), agg.Negotiation.ExpiresAt)
	})

	t.Run("should replace a stale negotiation when opening", func(t *testing.T) {
		req := require.New(t)
		f := newNegotiationFixture(t)
		old := f.open(t, "80")
		f.now = f.now.Add(49 * time.Hour)

		fresh := f.open(t, "90")

		req.NotEqual(old.Negotiation.ID, fresh.Negotiation.ID)
		stored, err := f.svc.Get(context.Background(), old.Negotiation.ID)
		req.NoError(err)
		req.Equal(negotiation.StatusExpired, stored.Negotiation.Status)
	})
}

func TestNegotiationServiceConcurrency(t *testing.T) {
	req := require.New(t)
	f := newNegotiationFixture(t)
	ctx := context.Background()
	agg := f.open(t, "80")

	// When both parties race to close the same version
	var (
		wg      sync.WaitGroup
		results = make(chan error, 2)
	)
	for _, by := range []uuid.UUID{f.txn.ProviderID, f.txn.ClientID} {
		wg.Add(1)
		go func(by uuid.UUID) {
			defer wg.Done()
			_, err := f.svc.Reject(ctx, agg.Negotiation.ID, by)
			results <- err
		}(by)
	}
	wg.Wait()
	close(results)

	// Then exactly one wins and the other sees a conflict or a closed negotiation
	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		k := dealroom_errors.KindOf(err)
		req.True(k == dealroom_errors.KindConflict || k == dealroom_errors.KindTerminalState, err.Error())
	}
	req.Equal(1, wins)
}

func TestNegotiationServiceBus(t *testing.T) {
	req := require.New(t)
	f := newNegotiationFixture(t)
	ctx := context.Background()

	res, err := f.svc.Bus().Execute(ctx, commands.OpenNegotiationCommand{
		TransactionID: f.txn.ID,
		InitiatorID:   f.txn.ClientID,
		Amount:        dec("80"),
	})
	req.NoError(err)
	view, ok := res.Payload.(negotiation.View)
	req.True(ok)
	req.Equal(negotiation.StatusOpen, view.Status)

	res, err = f.svc.Bus().Execute(ctx, commands.DecideCommand{
		NegotiationID: view.ID,
		ActorID:       f.txn.ProviderID,
		Decision:      "accept",
	})
	req.NoError(err)
	view = res.Payload.(negotiation.View)
	req.Equal(negotiation.StatusAccepted, view.Status)
	req.Equal("80", view.FinalPrice.String())

	raw, err := json.Marshal(view)
	req.NoError(err)
	req.Contains(string(raw), `"final_price":"80"`)
}
