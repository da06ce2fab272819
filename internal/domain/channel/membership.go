package channel

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Membership is keyed by (ParticipantID, TransactionID). ConnectionID only
// records the connection that joined last.
type Membership struct {
	ParticipantID uuid.UUID
	TransactionID uuid.UUID
	ConnectionID  string
	JoinedAt      time.Time
	LeftAt        sql.NullTime
	LastSeenAt    time.Time
}

// Active reports whether the membership has not been left.
func (m Membership) Active() bool {
	return !m.LeftAt.Valid
}
