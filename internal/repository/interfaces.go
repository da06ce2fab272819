package repository

import (
	"context"
	"time"

	"dealroom/internal/domain/booking"
	"dealroom/internal/domain/channel"
	"dealroom/internal/domain/message"
	"dealroom/internal/domain/negotiation"
	"dealroom/internal/domain/outbox"
	"dealroom/internal/domain/unread"

	"github.com/google/uuid"
)

type NegotiationRepository interface {
	// Create stores a new aggregate and its events in one atomic write.
	// Returns ErrNegotiationExists when the transaction already has a
	// non-terminal negotiation.
	Create(ctx context.Context, agg *negotiation.Aggregate, events []outbox.OutboxEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*negotiation.Aggregate, error)
	GetLatestByTransaction(ctx context.Context, transactionID uuid.UUID) (*negotiation.Aggregate, error)

	// Update persists agg only if the stored version still equals
	// expectedVersion, otherwise ErrNegotiationConflict. newOffers are
	// appended and each supersedes the offer at the previous position.
	Update(ctx context.Context, agg *negotiation.Aggregate, expectedVersion int64, newOffers []negotiation.Offer, events []outbox.OutboxEvent) error
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

type MessageRepository interface {
	// Append assigns the next sequence number for m.TransactionID. When
	// m.ClientMessageID repeats an earlier send, the stored message is
	// written back into m and created is false.
	Append(ctx context.Context, m *message.Message) (created bool, err error)
	ListSince(ctx context.Context, transactionID uuid.UUID, sinceSequence int64, limit int) ([]message.Message, error)
	Latest(ctx context.Context, transactionID uuid.UUID) (message.Message, error)
	CountForRecipientSince(ctx context.Context, transactionID, recipientID uuid.UUID, sinceSequence int64) (int64, error)
}

type MembershipRepository interface {
	// Upsert records an active membership, clearing any earlier leftAt.
	Upsert(ctx context.Context, m channel.Membership) error
	Get(ctx context.Context, participantID, transactionID uuid.UUID) (channel.Membership, error)
	// MarkLeft reports whether an active membership was closed.
	MarkLeft(ctx context.Context, participantID, transactionID uuid.UUID, at time.Time) (bool, error)
	Touch(ctx context.Context, participantID, transactionID uuid.UUID, at time.Time) error
	ListActiveByParticipant(ctx context.Context, participantID uuid.UUID) ([]channel.Membership, error)
	ListIdle(ctx context.Context, before time.Time, limit int) ([]channel.Membership, error)
	Delete(ctx context.Context, participantID, transactionID uuid.UUID) error
}

type UnreadRepository interface {
	// Get returns a zero counter when none is stored.
	Get(ctx context.Context, participantID, transactionID uuid.UUID) (unread.Counter, error)
	// Increment adds one unless sequence is already covered by lastReadSequence.
	Increment(ctx context.Context, participantID, transactionID uuid.UUID, sequence int64, at time.Time) (unread.Counter, error)
	// MarkRead zeroes the count and raises lastReadSequence to at least sequence.
	MarkRead(ctx context.Context, participantID, transactionID uuid.UUID, sequence int64, at time.Time) (unread.Counter, error)
	Set(ctx context.Context, c unread.Counter) error
	ListNonZero(ctx context.Context, participantID uuid.UUID) ([]unread.Counter, error)
}

type OutboxRepository interface {
	GetPending(ctx context.Context, limit int) ([]outbox.OutboxEvent, error)
	// MarkProcessing claims a pending event; false means another worker won.
	MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error)
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, errorMsg string) error
	// Release returns a claimed event to pending with its retry count raised.
	Release(ctx context.Context, id uuid.UUID, errorMsg string) error
}

// BookingRepository is the booking collaborator owned by the marketplace.
type BookingRepository interface {
	GetTransaction(ctx context.Context, transactionID uuid.UUID) (booking.Transaction, error)
	GetPartiesForTransaction(ctx context.Context, transactionID uuid.UUID) (booking.Parties, error)
	// ConfirmBooking must tolerate repeated delivery of the same confirmation.
	ConfirmBooking(ctx context.Context, c booking.Confirmation) error
}

// IdentityRepository resolves display information for participants.
type IdentityRepository interface {
	Resolve(ctx context.Context, participantID uuid.UUID) (booking.Identity, error)
}
