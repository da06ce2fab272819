package commands

import (
	"fmt"

	dealroom_errors "dealroom/pkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TypeOpenNegotiation   = "negotiation.open"
	TypeCounterOffer      = "negotiation.counter"
	TypeAcceptNegotiation = "negotiation.accept"
	TypeRejectNegotiation = "negotiation.reject"
	TypeCancelNegotiation = "negotiation.cancel"
)

// OpenNegotiationCommand starts a negotiation on a transaction with the
// initiator's first offer. The counterparty is the other booking party.
type OpenNegotiationCommand struct {
	TransactionID uuid.UUID       `json:"transaction_id" validate:"required"`
	InitiatorID   uuid.UUID       `json:"initiator_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Message       string          `json:"message" validate:"max=500"`
}

func (c OpenNegotiationCommand) CommandType() string    { return TypeOpenNegotiation }
func (c OpenNegotiationCommand) IdempotencyKey() string { return "" }
func (c OpenNegotiationCommand) Actor() uuid.UUID       { return c.InitiatorID }
func (c OpenNegotiationCommand) Transaction() uuid.UUID { return c.TransactionID }

func (c OpenNegotiationCommand) Validate() error {
	if err := validateStruct(c); err != nil {
		return err
	}
	return validateAmount(c.Amount)
}

type CounterOfferCommand struct {
	NegotiationID uuid.UUID       `json:"negotiation_id" validate:"required"`
	ActorID       uuid.UUID       `json:"actor_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Message       string          `json:"message" validate:"max=500"`
}

func (c CounterOfferCommand) CommandType() string    { return TypeCounterOffer }
func (c CounterOfferCommand) IdempotencyKey() string { return "" }

func (c CounterOfferCommand) Validate() error {
	if err := validateStruct(c); err != nil {
		return err
	}
	return validateAmount(c.Amount)
}

// DecideCommand covers accept, reject and cancel.
type DecideCommand struct {
	NegotiationID uuid.UUID `json:"negotiation_id" validate:"required"`
	ActorID       uuid.UUID `json:"actor_id" validate:"required"`
	Decision      string    `json:"decision" validate:"oneof=accept reject cancel"`
}

func (c DecideCommand) CommandType() string    { return "negotiation." + c.Decision }
func (c DecideCommand) IdempotencyKey() string { return "" }
func (c DecideCommand) Validate() error        { return validateStruct(c) }

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", dealroom_errors.ErrInvalidOfferAmount)
	}
	if !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("%w: amount has more than 2 decimal places", dealroom_errors.ErrInvalidOfferAmount)
	}
	return nil
}
