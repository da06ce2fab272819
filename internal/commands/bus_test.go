package commands

import (
	"context"
	"errors"
	"strings"
	"testing"

	dealroom_errors "dealroom/pkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type denyProxy struct{ calls int }

func (p *denyProxy) Authorize(context.Context, Command) error {
	p.calls++
	return dealroom_errors.ErrUnauthorized
}

func TestBus(t *testing.T) {
	t.Run("should dispatch a valid command to its handler", func(t *testing.T) {
		req := require.New(t)
		bus := NewBus()
		bus.Register(TypeSendMessage, HandlerFunc(func(_ context.Context, cmd Command) (Result, error) {
			return Result{AggregateID: cmd.(SendMessageCommand).Body}, nil
		}))

		res, err := bus.Execute(context.Background(), SendMessageCommand{
			TransactionID: uuid.New(),
			FromID:        uuid.New(),
			Body:          "hello",
		})
		req.NoError(err)
		req.Equal("hello", res.AggregateID)
	})

	t.Run("should reject invalid commands before the proxy runs", func(t *testing.T) {
		req := require.New(t)
		proxy := &denyProxy{}
		bus := NewBus(proxy)
		bus.Register(TypeSendMessage, HandlerFunc(func(context.Context, Command) (Result, error) {
			return Result{}, nil
		}))

		_, err := bus.Execute(context.Background(), SendMessageCommand{FromID: uuid.New(), Body: "x"})
		req.ErrorIs(err, dealroom_errors.ErrInvalidInput)
		req.Zero(proxy.calls)
	})

	t.Run("should stop at a denying proxy", func(t *testing.T) {
		req := require.New(t)
		proxy := &denyProxy{}
		bus := NewBus(proxy)
		called := false
		bus.Register(TypeSendMessage, HandlerFunc(func(context.Context, Command) (Result, error) {
			called = true
			return Result{}, nil
		}))

		_, err := bus.Execute(context.Background(), SendMessageCommand{TransactionID: uuid.New(), FromID: uuid.New(), Body: "x"})
		req.ErrorIs(err, dealroom_errors.ErrUnauthorized)
		req.False(called)
	})

	t.Run("should report unknown command types", func(t *testing.T) {
		_, err := NewBus().Execute(context.Background(), DecideCommand{NegotiationID: uuid.New(), ActorID: uuid.New(), Decision: "accept"})
		require.True(t, errors.Is(err, ErrHandlerNotFound))
	})
}

func TestNegotiationCommandValidation(t *testing.T) {
	req := require.New(t)

	valid := OpenNegotiationCommand{TransactionID: uuid.New(), InitiatorID: uuid.New(), Amount: decimal.RequireFromString("80.00")}
	req.NoError(valid.Validate())

	tooPrecise := valid
	tooPrecise.Amount = decimal.RequireFromString("80.001")
	req.ErrorIs(tooPrecise.Validate(), dealroom_errors.ErrInvalidOfferAmount)

	negative := valid
	negative.Amount = decimal.RequireFromString("-1")
	req.ErrorIs(negative.Validate(), dealroom_errors.ErrInvalidOfferAmount)

	longMessage := valid
	longMessage.Message = strings.Repeat("é", 501)
	req.ErrorIs(longMessage.Validate(), dealroom_errors.ErrInvalidInput)

	bad := DecideCommand{NegotiationID: uuid.New(), ActorID: uuid.New(), Decision: "withdraw"}
	req.ErrorIs(bad.Validate(), dealroom_errors.ErrInvalidInput)
	req.Equal("negotiation.reject", DecideCommand{Decision: "reject"}.CommandType())
}
