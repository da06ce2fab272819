package websocket

import (
	"encoding/json"

	"dealroom/internal/services"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Inbound frame types
const (
	FrameJoin     = "join"
	FrameLeave    = "leave"
	FrameMessage  = "message"
	FrameHistory  = "history"
	FrameViewport = "viewport"
	FrameRead     = "read"
	FrameUnread   = "unread"
	FrameOffer    = "offer"
	FrameAccept   = "accept"
	FrameReject   = "reject"
	FrameCancel   = "cancel"
	FramePing     = "ping"
)

// Reply frame types. Channel events fan out as events.Envelope instead.
const (
	ReplyConnected   = "connected"
	ReplyJoined      = "joined"
	ReplyLeft        = "left"
	ReplyHistory     = "history"
	ReplyMessageAck  = "message.ack"
	ReplyViewport    = "viewport"
	ReplyRead        = "read"
	ReplyUnread      = "unread"
	ReplyNegotiation = "negotiation"
	ReplyPong        = "pong"
	ReplyError       = "error"
)

// InboundFrame is the union of every client request. Fields not used by a
// frame type are ignored.
type InboundFrame struct {
	Type            string          `json:"type"`
	RequestID       string          `json:"request_id,omitempty"`
	TransactionID   uuid.UUID       `json:"transaction_id"`
	NegotiationID   uuid.UUID       `json:"negotiation_id"`
	Body            string          `json:"body,omitempty"`
	ClientMessageID string          `json:"client_message_id,omitempty"`
	Since           int64           `json:"since,omitempty"`
	Open            bool            `json:"open,omitempty"`
	Viewing         bool            `json:"viewing,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Message         string          `json:"message,omitempty"`
}

// ReplyFrame answers one inbound frame. RequestID echoes the request.
type ReplyFrame struct {
	Type          string                 `json:"type"`
	RequestID     string                 `json:"request_id,omitempty"`
	TransactionID *uuid.UUID             `json:"transaction_id,omitempty"`
	Data          any                    `json:"data,omitempty"`
	Error         *services.ErrorPayload `json:"error,omitempty"`
}

type ConnectedData struct {
	ConnectionID string      `json:"connection_id"`
	Transactions []uuid.UUID `json:"transactions"`
}

func encodeReply(f ReplyFrame) []byte {
	raw, err := json.Marshal(f)
	if err != nil {
		raw, _ = json.Marshal(ReplyFrame{Type: ReplyError, RequestID: f.RequestID, Error: &services.ErrorPayload{Code: "TRANSIENT", Message: "encode failed"}})
	}
	return raw
}

func errorReply(requestID string, err error) []byte {
	p := services.TranslateError(err)
	return encodeReply(ReplyFrame{Type: ReplyError, RequestID: requestID, Error: &p})
}
