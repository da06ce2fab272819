package httpdto

import "github.com/shopspring/decimal"

// OfferRequest opens a negotiation or counters the current offer.
type OfferRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Message string          `json:"message" binding:"max=500"`
}

type TranscriptResponse struct {
	URL string `json:"url"`
}
