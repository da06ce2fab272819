package httpdto

import (
	"dealroom/internal/domain/message"

	"github.com/google/uuid"
)

type SendMessageRequest struct {
	Body            string `json:"body" binding:"required"`
	ClientMessageID string `json:"client_message_id" binding:"omitempty,max=64"`
}

type HistoryResponse struct {
	TransactionID uuid.UUID               `json:"transaction_id"`
	Messages      []message.HistoryRecord `json:"messages"`
}
