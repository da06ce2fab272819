package negotiation

import (
	"testing"
	"time"

	dealroom_errors "dealroom/pkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func defaultPolicy(t *testing.T) Policy {
	p, err := ParsePolicy("0.3", "0.5")
	require.NoError(t, err)
	return p
}

func TestComputeBounds(t *testing.T) {
	t.Run("should use percentage floor when it is above the hard floor", func(t *testing.T) {
		req := require.New(t)

		b, err := ComputeBounds(dec("100"), defaultPolicy(t))

		req.NoError(err)
		req.True(b.Min.Equal(dec("70")))
		req.True(b.Max.Equal(dec("130")))
	})

	t.Run("should raise min to the hard floor", func(t *testing.T) {
		req := require.New(t)
		p, err := ParsePolicy("0.8", "0.5")
		req.NoError(err)

		b, err := ComputeBounds(dec("100"), p)

		req.NoError(err)
		req.True(b.Min.Equal(dec("50")))
		req.True(b.Max.Equal(dec("180")))
	})

	t.Run("should round bounds half even", func(t *testing.T) {
		req := require.New(t)
		p, err := ParsePolicy("0.125", "0")
		req.NoError(err)

		// 0.10 * 0.875 = 0.0875 -> 0.09, 0.10 * 1.125 = 0.1125 -> 0.11
		b, err := ComputeBounds(dec("0.10"), p)

		req.NoError(err)
		req.Equal("0.09", b.Min.StringFixed(2))
		req.Equal("0.11", b.Max.StringFixed(2))
	})

	t.Run("should keep base inside bounds for a range of prices", func(t *testing.T) {
		req := require.New(t)
		policy := defaultPolicy(t)
		for _, base := range []string{"0.01", "0.03", "1", "9.99", "100", "12345.67"} {
			b, err := ComputeBounds(dec(base), policy)
			req.NoError(err)
			req.True(b.Min.LessThanOrEqual(dec(base)), base)
			req.True(b.Max.GreaterThanOrEqual(dec(base)), base)
		}
	})

	t.Run("should reject non positive base and bad fractions", func(t *testing.T) {
		req := require.New(t)

		_, err := ComputeBounds(dec("0"), defaultPolicy(t))
		req.ErrorIs(err, dealroom_errors.ErrInvalidInput)

		_, err = ParsePolicy("1", "0.5")
		req.ErrorIs(err, dealroom_errors.ErrInvalidInput)

		_, err = ParsePolicy("0.3", "-0.1")
		req.ErrorIs(err, dealroom_errors.ErrInvalidInput)

		_, err = ParsePolicy("abc", "0.5")
		req.ErrorIs(err, dealroom_errors.ErrInvalidInput)
	})
}

type fixture struct {
	initiator    uuid.UUID
	counterparty uuid.UUID
	now          time.Time
	ttl          time.Duration
}

func newFixture() fixture {
	return fixture{
		initiator:    uuid.New(),
		counterparty: uuid.New(),
		now:          time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		ttl:          48 * time.Hour,
	}
}

func (f fixture) open(t *testing.T, amount string) (*Aggregate, error) {
	return Open(OpenParams{
		TransactionID:  uuid.New(),
		ServiceID:      uuid.New(),
		BasePrice:      dec("100"),
		Policy:         defaultPolicy(t),
		InitiatorID:    f.initiator,
		CounterpartyID: f.counterparty,
		Amount:         dec(amount),
		Message:        "hello",
	}, f.now, f.ttl)
}

func TestAggregate_Scenario(t *testing.T) {
	req := require.New(t)
	f := newFixture()

	// Given an opening offer below the minimum
	_, err := f.open(t, "60")
	req.ErrorIs(err, dealroom_errors.ErrInvalidOfferAmount)

	// When the opening offer is in bounds
	agg, err := f.open(t, "80")
	req.NoError(err)
	req.Equal(StatusOpen, agg.Negotiation.Status)
	req.True(agg.Negotiation.MinAllowed.Equal(dec("70")))
	req.True(agg.Negotiation.MaxAllowed.Equal(dec("130")))

	// And the counterparty counters
	offer, err := agg.Counter(f.counterparty, dec("120"), "", f.now.Add(time.Minute), f.ttl)
	req.NoError(err)
	req.Equal(StatusCountered, agg.Negotiation.Status)
	req.Equal(offer.ID, agg.Negotiation.CurrentOfferID)

	// Then the initiator accepts at the current amount
	req.NoError(agg.Accept(f.initiator, f.now.Add(2*time.Minute)))
	req.Equal(StatusAccepted, agg.Negotiation.Status)
	req.True(agg.Negotiation.FinalPrice.Valid)
	req.True(agg.Negotiation.FinalPrice.Decimal.Equal(dec("120")))
}

func TestAggregate_Open(t *testing.T) {
	f := newFixture()

	t.Run("should reject amount equal to base price", func(t *testing.T) {
		_, err := f.open(t, "100")
		require.ErrorIs(t, err, dealroom_errors.ErrInvalidOfferAmount)
	})

	t.Run("should accept amounts on the bounds", func(t *testing.T) {
		req := require.New(t)
		_, err := f.open(t, "70")
		req.NoError(err)
		_, err = f.open(t, "130")
		req.NoError(err)
		_, err = f.open(t, "130.01")
		req.ErrorIs(err, dealroom_errors.ErrInvalidOfferAmount)
	})

	t.Run("should round amount before checking bounds", func(t *testing.T) {
		req := require.New(t)
		// 69.995 rounds half even to 70.00
		agg, err := f.open(t, "69.995")
		req.NoError(err)
		req.Equal("70.00", agg.CurrentOffer().Amount.StringFixed(2))
	})

	t.Run("should reject identical parties", func(t *testing.T) {
		_, err := Open(OpenParams{
			BasePrice:      dec("100"),
			Policy:         defaultPolicy(t),
			InitiatorID:    f.initiator,
			CounterpartyID: f.initiator,
			Amount:         dec("80"),
		}, f.now, f.ttl)
		require.ErrorIs(t, err, dealroom_errors.ErrInvalidInput)
	})

	t.Run("should reject an oversized message", func(t *testing.T) {
		long := make([]rune, MaxOfferMessageLength+1)
		for i := range long {
			long[i] = 'é'
		}
		_, err := Open(OpenParams{
			BasePrice:      dec("100"),
			Policy:         defaultPolicy(t),
			InitiatorID:    f.initiator,
			CounterpartyID: f.counterparty,
			Amount:         dec("80"),
			Message:        string(long),
		}, f.now, f.ttl)
		require.ErrorIs(t, err, dealroom_errors.ErrMessageTooLarge)
	})
}

func TestAggregate_Counter(t *testing.T) {
	f := newFixture()

	t.Run("should reject a party countering its own pending offer", func(t *testing.T) {
		req := require.New(t)
		agg, err := f.open(t, "80")
		req.NoError(err)

		_, err = agg.Counter(f.initiator, dec("85"), "", f.now, f.ttl)

		req.ErrorIs(err, dealroom_errors.ErrOutOfTurn)
	})

	t.Run("should reject a non party", func(t *testing.T) {
		agg, err := f.open(t, "80")
		require.NoError(t, err)

		_, err = agg.Counter(uuid.New(), dec("90"), "", f.now, f.ttl)

		require.ErrorIs(t, err, dealroom_errors.ErrUnauthorized)
	})

	t.Run("should reject an amount equal to the current offer", func(t *testing.T) {
		agg, err := f.open(t, "80")
		require.NoError(t, err)

		_, err = agg.Counter(f.counterparty, dec("80.00"), "", f.now, f.ttl)

		require.ErrorIs(t, err, dealroom_errors.ErrInvalidOfferAmount)
	})

	t.Run("should supersede the previous offer and refresh expiry", func(t *testing.T) {
		req := require.New(t)
		agg, err := f.open(t, "80")
		req.NoError(err)
		later := f.now.Add(time.Hour)

		_, err = agg.Counter(f.counterparty, dec("120"), "", later, f.ttl)
		req.NoError(err)
		_, err = agg.Counter(f.initiator, dec("100"), "", later, f.ttl)
		req.NoError(err)

		req.Len(agg.Offers, 3)
		req.Equal(agg.Offers[1].ID, agg.Offers[0].SupersededBy.UUID)
		req.Equal(agg.Offers[2].ID, agg.Offers[1].SupersededBy.UUID)
		req.False(agg.Offers[2].SupersededBy.Valid)
		req.Equal(3, agg.CurrentOffer().Position)
		req.Equal(later.Add(f.ttl), agg.Negotiation.ExpiresAt)
	})
}

func TestAggregate_Accept(t *testing.T) {
	f := newFixture()

	t.Run("should finalize at the current offer after a long chain", func(t *testing.T) {
		req := require.New(t)
		agg, err := f.open(t, "80")
		req.NoError(err)
		amounts := []string{"125", "90", "110", "95", "105"}
		by := f.counterparty
		for _, a := range amounts {
			_, err := agg.Counter(by, dec(a), "", f.now, f.ttl)
			req.NoError(err)
			by = agg.Negotiation.Other(by)
		}

		req.NoError(agg.Accept(by, f.now))

		req.True(agg.Negotiation.FinalPrice.Decimal.Equal(dec("105")))
	})

	t.Run("should not let the proposer accept its own offer", func(t *testing.T) {
		agg, err := f.open(t, "80")
		require.NoError(t, err)

		err = agg.Accept(f.initiator, f.now)

		require.ErrorIs(t, err, dealroom_errors.ErrOutOfTurn)
	})
}

func TestAggregate_TerminalTransitions(t *testing.T) {
	f := newFixture()

	t.Run("should allow either party to reject", func(t *testing.T) {
		req := require.New(t)
		agg, err := f.open(t, "80")
		req.NoError(err)

		req.NoError(agg.Reject(f.initiator, f.now))
		req.Equal(StatusRejected, agg.Negotiation.Status)

		_, err = agg.Counter(f.counterparty, dec("90"), "", f.now, f.ttl)
		req.ErrorIs(err, dealroom_errors.ErrNegotiationClosed)
	})

	t.Run("should restrict cancel to the initiator while open", func(t *testing.T) {
		req := require.New(t)
		agg, err := f.open(t, "80")
		req.NoError(err)

		req.ErrorIs(agg.Cancel(f.counterparty, f.now), dealroom_errors.ErrUnauthorized)

		_, err = agg.Counter(f.counterparty, dec("90"), "", f.now, f.ttl)
		req.NoError(err)
		req.ErrorIs(agg.Cancel(f.initiator, f.now), dealroom_errors.ErrInvalidTransition)
	})

	t.Run("should cancel an open negotiation", func(t *testing.T) {
		req := require.New(t)
		agg, err := f.open(t, "80")
		req.NoError(err)

		req.NoError(agg.Cancel(f.initiator, f.now))

		req.Equal(StatusCancelled, agg.Negotiation.Status)
		req.ErrorIs(agg.Accept(f.counterparty, f.now), dealroom_errors.ErrNegotiationClosed)
	})

	t.Run("should expire only after the deadline", func(t *testing.T) {
		req := require.New(t)
		agg, err := f.open(t, "80")
		req.NoError(err)

		req.False(agg.Expire(f.now.Add(f.ttl)))
		req.True(agg.Expire(f.now.Add(f.ttl + time.Second)))
		req.Equal(StatusExpired, agg.Negotiation.Status)
		req.False(agg.Expire(f.now.Add(2 * f.ttl)))
	})

	t.Run("should refuse mutations on an overdue negotiation", func(t *testing.T) {
		agg, err := f.open(t, "80")
		require.NoError(t, err)

		_, err = agg.Counter(f.counterparty, dec("90"), "", f.now.Add(f.ttl+time.Minute), f.ttl)

		require.ErrorIs(t, err, dealroom_errors.ErrNegotiationClosed)
	})
}
