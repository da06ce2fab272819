package negotiation

import (
	"fmt"
	"time"
	"unicode/utf8"

	dealroom_errors "dealroom/pkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Aggregate is a negotiation with its ordered offer chain. All state
// transitions go through it; repositories only persist the result.
type Aggregate struct {
	Negotiation Negotiation
	Offers      []Offer
}

// OpenParams carries everything needed to create a negotiation.
type OpenParams struct {
	TransactionID  uuid.UUID
	ServiceID      uuid.UUID
	BasePrice      decimal.Decimal
	Policy         Policy
	InitiatorID    uuid.UUID
	CounterpartyID uuid.UUID
	Amount         decimal.Decimal
	Message        string
}

// Open validates the first offer and returns a new negotiation in open state.
func Open(p OpenParams, now time.Time, ttl time.Duration) (*Aggregate, error) {
	if p.InitiatorID == uuid.Nil || p.CounterpartyID == uuid.Nil || p.InitiatorID == p.CounterpartyID {
		return nil, fmt.Errorf("%w: initiator and counterparty must be distinct", dealroom_errors.ErrInvalidInput)
	}
	if err := checkMessage(p.Message); err != nil {
		return nil, err
	}
	bounds, err := ComputeBounds(p.BasePrice, p.Policy)
	if err != nil {
		return nil, err
	}
	base := Round(p.BasePrice)
	amount := Round(p.Amount)
	if !bounds.Contains(amount) {
		return nil, fmt.Errorf("%w: %s not in [%s, %s]", dealroom_errors.ErrInvalidOfferAmount, amount, bounds.Min, bounds.Max)
	}
	if amount.Equal(base) {
		return nil, fmt.Errorf("%w: opening offer equals base price %s", dealroom_errors.ErrInvalidOfferAmount, base)
	}

	now = now.UTC()
	n := Negotiation{
		ID:             uuid.New(),
		TransactionID:  p.TransactionID,
		ServiceID:      p.ServiceID,
		InitiatorID:    p.InitiatorID,
		CounterpartyID: p.CounterpartyID,
		BasePrice:      base,
		MinAllowed:     bounds.Min,
		MaxAllowed:     bounds.Max,
		Status:         StatusOpen,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(ttl),
	}
	first := Offer{
		ID:            uuid.New(),
		NegotiationID: n.ID,
		Position:      1,
		ProposedBy:    p.InitiatorID,
		Amount:        amount,
		Message:       p.Message,
		CreatedAt:     now,
	}
	n.CurrentOfferID = first.ID
	return &Aggregate{Negotiation: n, Offers: []Offer{first}}, nil
}

// CurrentOffer returns the non-superseded tail of the chain.
func (a *Aggregate) CurrentOffer() Offer {
	for i := len(a.Offers) - 1; i >= 0; i-- {
		if a.Offers[i].ID == a.Negotiation.CurrentOfferID {
			return a.Offers[i]
		}
	}
	if len(a.Offers) > 0 {
		return a.Offers[len(a.Offers)-1]
	}
	return Offer{}
}

// Counter supersedes the current offer with a new one from by.
func (a *Aggregate) Counter(by uuid.UUID, amount decimal.Decimal, message string, now time.Time, ttl time.Duration) (Offer, error) {
	if err := a.checkMutable(by, now); err != nil {
		return Offer{}, err
	}
	if err := checkMessage(message); err != nil {
		return Offer{}, err
	}
	current := a.CurrentOffer()
	if current.ProposedBy == by {
		return Offer{}, dealroom_errors.ErrOutOfTurn
	}
	amount = Round(amount)
	if !a.Negotiation.Bounds().Contains(amount) {
		return Offer{}, fmt.Errorf("%w: %s not in [%s, %s]", dealroom_errors.ErrInvalidOfferAmount, amount, a.Negotiation.MinAllowed, a.Negotiation.MaxAllowed)
	}
	if amount.Equal(current.Amount) {
		return Offer{}, fmt.Errorf("%w: counter equals current offer %s", dealroom_errors.ErrInvalidOfferAmount, current.Amount)
	}

	now = now.UTC()
	next := Offer{
		ID:            uuid.New(),
		NegotiationID: a.Negotiation.ID,
		Position:      current.Position + 1,
		ProposedBy:    by,
		Amount:        amount,
		Message:       message,
		CreatedAt:     now,
	}
	for i := range a.Offers {
		if a.Offers[i].ID == current.ID {
			a.Offers[i].SupersededBy = uuid.NullUUID{UUID: next.ID, Valid: true}
		}
	}
	a.Offers = append(a.Offers, next)
	a.Negotiation.CurrentOfferID = next.ID
	a.Negotiation.Status = StatusCountered
	a.Negotiation.UpdatedAt = now
	a.Negotiation.ExpiresAt = now.Add(ttl)
	return next, nil
}

// Accept finalizes the negotiation at the current offer's amount. The
// proposer of that offer cannot accept it themselves.
func (a *Aggregate) Accept(by uuid.UUID, now time.Time) error {
	if err := a.checkMutable(by, now); err != nil {
		return err
	}
	current := a.CurrentOffer()
	if current.ProposedBy == by {
		return dealroom_errors.ErrOutOfTurn
	}
	a.Negotiation.FinalPrice = decimal.NullDecimal{Decimal: current.Amount, Valid: true}
	a.transition(StatusAccepted, now)
	return nil
}

// Reject closes the negotiation on behalf of either party.
func (a *Aggregate) Reject(by uuid.UUID, now time.Time) error {
	if err := a.checkMutable(by, now); err != nil {
		return err
	}
	a.transition(StatusRejected, now)
	return nil
}

// Cancel is only available to the initiator before any counter offer.
func (a *Aggregate) Cancel(by uuid.UUID, now time.Time) error {
	if err := a.checkMutable(by, now); err != nil {
		return err
	}
	if by != a.Negotiation.InitiatorID {
		return dealroom_errors.ErrUnauthorized
	}
	if a.Negotiation.Status != StatusOpen {
		return fmt.Errorf("%w: cancel requires status open, got %s", dealroom_errors.ErrInvalidTransition, a.Negotiation.Status)
	}
	a.transition(StatusCancelled, now)
	return nil
}

// Expire moves an overdue negotiation to expired. It returns false when the
// negotiation is terminal or not yet due.
func (a *Aggregate) Expire(now time.Time) bool {
	if !a.Negotiation.Overdue(now) {
		return false
	}
	a.transition(StatusExpired, now)
	return true
}

func (a *Aggregate) checkMutable(by uuid.UUID, now time.Time) error {
	if a.Negotiation.Status.IsTerminal() {
		return dealroom_errors.ErrNegotiationClosed
	}
	if a.Negotiation.Overdue(now) {
		return dealroom_errors.ErrNegotiationClosed
	}
	if !a.Negotiation.IsParty(by) {
		return dealroom_errors.ErrUnauthorized
	}
	return nil
}

func (a *Aggregate) transition(to Status, now time.Time) {
	a.Negotiation.Status = to
	a.Negotiation.UpdatedAt = now.UTC()
}

func checkMessage(message string) error {
	if utf8.RuneCountInString(message) > MaxOfferMessageLength {
		return fmt.Errorf("%w: offer message exceeds %d characters", dealroom_errors.ErrMessageTooLarge, MaxOfferMessageLength)
	}
	return nil
}
