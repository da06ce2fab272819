package booking

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction is the booking view consumed from the marketplace.
type Transaction struct {
	ID         uuid.UUID
	ServiceID  uuid.UUID
	ClientID   uuid.UUID
	ProviderID uuid.UUID
	BasePrice  decimal.Decimal
}

// Parties are the two declared participants of a transaction.
type Parties struct {
	ParticipantA uuid.UUID `json:"participant_a"`
	ParticipantB uuid.UUID `json:"participant_b"`
}

func (p Parties) Contains(id uuid.UUID) bool {
	return id != uuid.Nil && (id == p.ParticipantA || id == p.ParticipantB)
}

// Other returns the opposite party, or uuid.Nil when id is not a party.
func (p Parties) Other(id uuid.UUID) uuid.UUID {
	switch id {
	case p.ParticipantA:
		return p.ParticipantB
	case p.ParticipantB:
		return p.ParticipantA
	}
	return uuid.Nil
}

func (t Transaction) Parties() Parties {
	return Parties{ParticipantA: t.ClientID, ParticipantB: t.ProviderID}
}

// Identity is display-only participant information.
type Identity struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Role string    `json:"role"`
}

// Confirmation is the payload sent to the booking collaborator on accept.
type Confirmation struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	NegotiationID uuid.UUID       `json:"negotiation_id"`
	FinalPrice    decimal.Decimal `json:"final_price"`
}
