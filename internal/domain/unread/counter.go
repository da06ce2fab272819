package unread

import (
	"time"

	"github.com/google/uuid"
)

// Counter represents the unread_counters table. It is a derived view and can
// always be recomputed from messages and LastReadSequence.
type Counter struct {
	ParticipantID    uuid.UUID
	TransactionID    uuid.UUID
	Count            int64
	LastReadSequence int64
	UpdatedAt        time.Time
}
