package commands

import (
	"github.com/google/uuid"
)

const TypeSendMessage = "message.send"

// SendMessageCommand appends a chat message to a transaction channel. The
// recipient is always the other party of the booking.
type SendMessageCommand struct {
	TransactionID   uuid.UUID `json:"transaction_id" validate:"required"`
	FromID          uuid.UUID `json:"from_id" validate:"required"`
	Body            string    `json:"body" validate:"required"`
	ClientMessageID string    `json:"client_message_id,omitempty" validate:"omitempty,max=64"`
}

func (c SendMessageCommand) CommandType() string    { return TypeSendMessage }
func (c SendMessageCommand) IdempotencyKey() string { return c.ClientMessageID }
func (c SendMessageCommand) Actor() uuid.UUID       { return c.FromID }
func (c SendMessageCommand) Transaction() uuid.UUID { return c.TransactionID }
func (c SendMessageCommand) Validate() error        { return validateStruct(c) }
