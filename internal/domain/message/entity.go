package message

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// MaxBodyLength is the default body limit in characters.
const MaxBodyLength = 2000

// Message represents the messages table. Messages are append-only and keyed
// by (TransactionID, SequenceNumber).
type Message struct {
	ID              string // ULID
	TransactionID   uuid.UUID
	FromID          uuid.UUID
	ToID            uuid.UUID
	Body            string
	ClientMessageID sql.NullString
	SequenceNumber  int64
	CreatedAt       time.Time
}

// HistoryRecord is the shape returned by history requests.
type HistoryRecord struct {
	ID             string    `json:"id"`
	From           uuid.UUID `json:"from"`
	To             uuid.UUID `json:"to"`
	Body           string    `json:"body"`
	SequenceNumber int64     `json:"sequence_number"`
	Timestamp      time.Time `json:"timestamp"`
}

func (m Message) Record() HistoryRecord {
	return HistoryRecord{
		ID:             m.ID,
		From:           m.FromID,
		To:             m.ToID,
		Body:           m.Body,
		SequenceNumber: m.SequenceNumber,
		Timestamp:      m.CreatedAt,
	}
}
