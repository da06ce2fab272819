package negotiation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OfferView struct {
	ID         uuid.UUID       `json:"id"`
	ProposedBy uuid.UUID       `json:"proposed_by"`
	Amount     decimal.Decimal `json:"amount"`
	Message    string          `json:"message,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	Superseded bool            `json:"superseded"`
}

// View is the response shape for every negotiation operation and the
// payload of negotiation events.
type View struct {
	ID             uuid.UUID        `json:"id"`
	TransactionID  uuid.UUID        `json:"transaction_id"`
	ServiceID      uuid.UUID        `json:"service_id"`
	InitiatorID    uuid.UUID        `json:"initiator_id"`
	CounterpartyID uuid.UUID        `json:"counterparty_id"`
	Status         Status           `json:"status"`
	BasePrice      decimal.Decimal  `json:"base_price"`
	MinAllowed     decimal.Decimal  `json:"min_allowed"`
	MaxAllowed     decimal.Decimal  `json:"max_allowed"`
	CurrentOffer   OfferView        `json:"current_offer"`
	History        []OfferView      `json:"history"`
	FinalPrice     *decimal.Decimal `json:"final_price,omitempty"`
	Version        int64            `json:"version"`
	ExpiresAt      time.Time        `json:"expires_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func (a *Aggregate) View() View {
	n := a.Negotiation
	v := View{
		ID:             n.ID,
		TransactionID:  n.TransactionID,
		ServiceID:      n.ServiceID,
		InitiatorID:    n.InitiatorID,
		CounterpartyID: n.CounterpartyID,
		Status:         n.Status,
		BasePrice:      n.BasePrice,
		MinAllowed:     n.MinAllowed,
		MaxAllowed:     n.MaxAllowed,
		Version:        n.Version,
		ExpiresAt:      n.ExpiresAt,
		UpdatedAt:      n.UpdatedAt,
		History:        make([]OfferView, 0, len(a.Offers)),
	}
	for _, o := range a.Offers {
		ov := OfferView{
			ID:         o.ID,
			ProposedBy: o.ProposedBy,
			Amount:     o.Amount,
			Message:    o.Message,
			CreatedAt:  o.CreatedAt,
			Superseded: o.SupersededBy.Valid,
		}
		v.History = append(v.History, ov)
		if o.ID == n.CurrentOfferID {
			v.CurrentOffer = ov
		}
	}
	if n.FinalPrice.Valid {
		fp := n.FinalPrice.Decimal
		v.FinalPrice = &fp
	}
	return v
}
