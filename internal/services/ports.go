package services

import (
	"context"

	"github.com/google/uuid"
)

// Connection is a live handle able to receive encoded frames. Send must not
// block; it reports false when the frame was dropped.
type Connection interface {
	ID() string
	ParticipantID() uuid.UUID
	Send(payload []byte) bool
}

// Registry is the process-local map of transaction channels to the live
// connections attached to them. It is rebuilt from durable memberships on
// reconnect and never persisted.
type Registry interface {
	Register(conn Connection)
	// Unregister drops the connection and returns the transactions it was
	// attached to.
	Unregister(connectionID string) []uuid.UUID
	Attach(transactionID uuid.UUID, connectionID string) bool
	// AttachParticipant attaches every registered connection of the
	// participant and returns their ids.
	AttachParticipant(transactionID, participantID uuid.UUID) []string
	// DetachParticipant removes every connection of the participant from
	// the transaction and returns their ids.
	DetachParticipant(transactionID, participantID uuid.UUID) []string
	IsAttached(transactionID uuid.UUID, connectionID string) bool
	ParticipantAttached(transactionID, participantID uuid.UUID) bool
}

// ViewportTracker records which connections have a transaction channel open
// on screen.
type ViewportTracker interface {
	SetViewing(ctx context.Context, participantID, transactionID uuid.UUID, connectionID string, open bool) error
	IsViewing(ctx context.Context, participantID, transactionID uuid.UUID) (bool, error)
	ClearConnection(ctx context.Context, connectionID string) error
	// Refresh extends the lifetime of every viewport held by a live
	// connection. Called from the connection heartbeat.
	Refresh(ctx context.Context, connectionID string) error
}

// Archiver stores the transcript of a closed negotiation.
type Archiver interface {
	Archive(ctx context.Context, negotiationID uuid.UUID) error
}
