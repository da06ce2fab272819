package negotiation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusOpen      Status = "open"
	StatusCountered Status = "countered"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusOpen, StatusCountered:
		return false
	default:
		return true
	}
}

// MaxOfferMessageLength is counted in characters, not bytes.
const MaxOfferMessageLength = 500

// Negotiation is the price negotiation attached to one transaction.
type Negotiation struct {
	ID             uuid.UUID
	TransactionID  uuid.UUID
	ServiceID      uuid.UUID
	InitiatorID    uuid.UUID
	CounterpartyID uuid.UUID
	BasePrice      decimal.Decimal
	MinAllowed     decimal.Decimal
	MaxAllowed     decimal.Decimal
	Status         Status
	CurrentOfferID uuid.UUID
	FinalPrice     decimal.NullDecimal
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ExpiresAt      time.Time
}

// Offer is one proposed price. The offer with no SupersededBy is current.
type Offer struct {
	ID            uuid.UUID
	NegotiationID uuid.UUID
	Position      int
	ProposedBy    uuid.UUID
	Amount        decimal.Decimal
	Message       string
	CreatedAt     time.Time
	SupersededBy  uuid.NullUUID
}

// IsParty reports whether participantID is the initiator or the counterparty.
func (n Negotiation) IsParty(participantID uuid.UUID) bool {
	return participantID == n.InitiatorID || participantID == n.CounterpartyID
}

// Overdue reports whether a non-terminal negotiation has passed its deadline.
func (n Negotiation) Overdue(now time.Time) bool {
	return !n.Status.IsTerminal() && now.After(n.ExpiresAt)
}

// Other returns the party that is not participantID.
func (n Negotiation) Other(participantID uuid.UUID) uuid.UUID {
	if participantID == n.InitiatorID {
		return n.CounterpartyID
	}
	return n.InitiatorID
}

func (n Negotiation) Bounds() Bounds {
	return Bounds{Min: n.MinAllowed, Max: n.MaxAllowed}
}
