package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dealroom/internal/commands"
	"dealroom/internal/domain/booking"
	"dealroom/internal/domain/channel"
	"dealroom/internal/domain/message"
	"dealroom/internal/events"
	"dealroom/internal/repository"
	dealroom_errors "dealroom/pkg/errors"
	"dealroom/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const idleBatchSize = 500

// MemberEvent is the payload of member.joined and member.left.
type MemberEvent struct {
	ParticipantID uuid.UUID `json:"participant_id"`
	Name          string    `json:"name,omitempty"`
	Role          string    `json:"role,omitempty"`
}

// MessageEvent is the payload of message.created.
type MessageEvent struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	message.HistoryRecord
}

// ChannelService owns durable channel membership and fans channel events
// out through the publisher. Live connection handles stay in the Registry.
type ChannelService struct {
	bookings    repository.BookingRepository
	memberships repository.MembershipRepository
	identities  repository.IdentityRepository
	messages    *MessageStore
	unread      *UnreadTracker
	registry    Registry
	viewports   ViewportTracker
	publisher   events.Publisher
	clock       func() time.Time
	log         *logger.Logger
	bus         *commands.Bus
}

type ChannelDeps struct {
	Bookings    repository.BookingRepository
	Memberships repository.MembershipRepository
	Identities  repository.IdentityRepository
	Messages    *MessageStore
	Unread      *UnreadTracker
	Registry    Registry
	Viewports   ViewportTracker
	Publisher   events.Publisher
}

func NewChannelService(deps ChannelDeps, log *logger.Logger, bus *commands.Bus) *ChannelService {
	if bus == nil {
		bus = commands.NewBus()
	}
	if log == nil {
		log = logger.NewNop()
	}
	svc := &ChannelService{
		bookings:    deps.Bookings,
		memberships: deps.Memberships,
		identities:  deps.Identities,
		messages:    deps.Messages,
		unread:      deps.Unread,
		registry:    deps.Registry,
		viewports:   deps.Viewports,
		publisher:   deps.Publisher,
		clock:       time.Now,
		log:         log.Named("channel"),
		bus:         bus,
	}
	svc.RegisterHandlers()
	return svc
}

func (s *ChannelService) RegisterHandlers() {
	s.bus.Register(commands.TypeSendMessage, commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		c, ok := cmd.(commands.SendMessageCommand)
		if !ok {
			return commands.Result{}, dealroom_errors.ErrInvalidInput
		}
		m, err := s.SendMessage(ctx, c.TransactionID, c.FromID, c.Body, c.IdempotencyKey())
		if err != nil {
			return commands.Result{}, err
		}
		return commands.Result{AggregateID: m.ID, Payload: m}, nil
	}))
}

func (s *ChannelService) parties(ctx context.Context, transactionID, participantID uuid.UUID) (booking.Parties, error) {
	parties, err := s.bookings.GetPartiesForTransaction(ctx, transactionID)
	if err != nil {
		return booking.Parties{}, err
	}
	if !parties.Contains(participantID) {
		return booking.Parties{}, dealroom_errors.ErrUnauthorized
	}
	return parties, nil
}

// Join authorizes the participant, records the membership and returns the
// full history. Membership belongs to the participant, so every live
// connection they hold is attached, mirroring Leave.
func (s *ChannelService) Join(ctx context.Context, transactionID, participantID uuid.UUID, connectionID string) ([]message.Message, error) {
	if _, err := s.parties(ctx, transactionID, participantID); err != nil {
		s.log.WithContext(ctx).Warn("join rejected",
			zap.String("transaction_id", transactionID.String()),
			zap.String("participant_id", participantID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	now := s.clock().UTC()
	if err := s.memberships.Upsert(ctx, channel.Membership{
		ParticipantID: participantID,
		TransactionID: transactionID,
		ConnectionID:  connectionID,
		JoinedAt:      now,
		LastSeenAt:    now,
	}); err != nil {
		return nil, err
	}
	s.registry.AttachParticipant(transactionID, participantID)
	s.publishMember(ctx, events.EventTypeMemberJoined, transactionID, participantID)

	return s.messages.History(ctx, transactionID, 0)
}

// Leave closes the membership and detaches every live connection of the
// participant from the channel. Leaving twice is a no-op.
func (s *ChannelService) Leave(ctx context.Context, transactionID, participantID uuid.UUID, connectionID string) error {
	changed, err := s.memberships.MarkLeft(ctx, participantID, transactionID, s.clock().UTC())
	if err != nil {
		return err
	}
	for _, id := range s.registry.DetachParticipant(transactionID, participantID) {
		if err := s.viewports.SetViewing(ctx, participantID, transactionID, id, false); err != nil {
			s.log.WithContext(ctx).Warn("viewport clear failed", zap.String("connection_id", id), zap.Error(err))
		}
	}
	if changed {
		s.publishMember(ctx, events.EventTypeMemberLeft, transactionID, participantID)
		s.log.WithContext(ctx).Info("participant left",
			zap.String("transaction_id", transactionID.String()),
			zap.String("participant_id", participantID.String()),
			zap.String("connection_id", connectionID),
		)
	}
	return nil
}

// Publish fans an envelope out to every connection joined to the
// transaction. Delivery is best-effort and no subscribers is not an error.
func (s *ChannelService) Publish(ctx context.Context, transactionID uuid.UUID, eventType, aggregateType, aggregateID string, payload any) error {
	return publishEvent(ctx, s.publisher, events.TransactionChannel(transactionID), eventType, aggregateType, aggregateID, transactionID, payload, s.clock())
}

// HistoryReplay returns the ordered message log of the transaction. It is
// read-only and may be called any number of times.
func (s *ChannelService) HistoryReplay(ctx context.Context, transactionID, participantID uuid.UUID) ([]message.Message, error) {
	return s.HistorySince(ctx, transactionID, participantID, 0)
}

func (s *ChannelService) HistorySince(ctx context.Context, transactionID, participantID uuid.UUID, since int64) ([]message.Message, error) {
	if _, err := s.parties(ctx, transactionID, participantID); err != nil {
		return nil, err
	}
	return s.messages.History(ctx, transactionID, since)
}

// SendMessage appends a chat message addressed to the other party, fans it
// out while the transaction's append lock is still held and updates the
// recipient's unread counter. A repeated client message id returns the
// stored message without side effects.
func (s *ChannelService) SendMessage(ctx context.Context, transactionID, fromID uuid.UUID, body, clientMessageID string) (message.Message, error) {
	parties, err := s.parties(ctx, transactionID, fromID)
	if err != nil {
		return message.Message{}, err
	}
	recipient := parties.Other(fromID)

	m, created, err := s.messages.Append(ctx, AppendParams{
		TransactionID:   transactionID,
		FromID:          fromID,
		ToID:            recipient,
		Body:            body,
		ClientMessageID: clientMessageID,
		OnAppended: func(m message.Message) {
			if err := s.Publish(ctx, transactionID, events.EventTypeMessageCreated, events.AggregateTypeMessage, m.ID,
				MessageEvent{TransactionID: transactionID, HistoryRecord: m.Record()}); err != nil {
				s.log.WithContext(ctx).Warn("message fan-out failed", zap.String("message_id", m.ID), zap.Error(err))
			}
		},
	})
	if err != nil {
		return message.Message{}, err
	}
	if !created {
		return m, nil
	}

	if _, err := s.unread.OnMessageDelivered(ctx, transactionID, recipient, m.SequenceNumber); err != nil {
		s.log.WithContext(ctx).Warn("unread update failed", zap.String("message_id", m.ID), zap.Error(err))
	}
	if err := s.memberships.Touch(ctx, fromID, transactionID, m.CreatedAt); err != nil {
		s.log.WithContext(ctx).Debug("membership touch failed", zap.Error(err))
	}
	return m, nil
}

// Reattach binds a fresh connection to every channel the participant is
// still a member of. Viewports start closed and unread counters are
// reconciled against the message store.
func (s *ChannelService) Reattach(ctx context.Context, participantID uuid.UUID, connectionID string) ([]uuid.UUID, error) {
	memberships, err := s.memberships.ListActiveByParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	now := s.clock().UTC()
	out := make([]uuid.UUID, 0, len(memberships))
	for _, m := range memberships {
		s.registry.Attach(m.TransactionID, connectionID)
		out = append(out, m.TransactionID)
		if err := s.memberships.Touch(ctx, participantID, m.TransactionID, now); err != nil {
			s.log.WithContext(ctx).Debug("membership touch failed", zap.Error(err))
		}
		if _, err := s.unread.Rebuild(ctx, m.TransactionID, participantID); err != nil {
			s.log.WithContext(ctx).Warn("unread rebuild failed",
				zap.String("transaction_id", m.TransactionID.String()), zap.Error(err))
		}
	}
	return out, nil
}

// SetViewport records whether the connection displays the channel. Opening
// it also marks the channel read.
func (s *ChannelService) SetViewport(ctx context.Context, transactionID, participantID uuid.UUID, connectionID string, open bool) error {
	if !s.registry.IsAttached(transactionID, connectionID) {
		return fmt.Errorf("%w: connection has not joined the channel", dealroom_errors.ErrInvalidInput)
	}
	if err := s.viewports.SetViewing(ctx, participantID, transactionID, connectionID, open); err != nil {
		return err
	}
	if open {
		if _, err := s.unread.MarkRead(ctx, transactionID, participantID); err != nil {
			s.log.WithContext(ctx).Warn("mark read on viewport open failed", zap.Error(err))
		}
	}
	return nil
}

// Connect registers a live connection and re-attaches its memberships.
func (s *ChannelService) Connect(ctx context.Context, conn Connection) ([]uuid.UUID, error) {
	s.registry.Register(conn)
	return s.Reattach(ctx, conn.ParticipantID(), conn.ID())
}

// Disconnect drops a live connection. Memberships are kept.
func (s *ChannelService) Disconnect(ctx context.Context, participantID uuid.UUID, connectionID string) {
	now := s.clock().UTC()
	for _, txn := range s.registry.Unregister(connectionID) {
		if err := s.memberships.Touch(ctx, participantID, txn, now); err != nil {
			s.log.WithContext(ctx).Debug("membership touch failed", zap.Error(err))
		}
	}
	if err := s.viewports.ClearConnection(ctx, connectionID); err != nil {
		s.log.WithContext(ctx).Warn("viewport cleanup failed", zap.String("connection_id", connectionID), zap.Error(err))
	}
}

// Heartbeat keeps the connection's open viewports alive while it stays
// connected.
func (s *ChannelService) Heartbeat(ctx context.Context, connectionID string) {
	if err := s.viewports.Refresh(ctx, connectionID); err != nil {
		s.log.WithContext(ctx).Warn("viewport refresh failed", zap.String("connection_id", connectionID), zap.Error(err))
	}
}

// CollectIdle deletes memberships not seen since before whose participant
// has no live connection on the channel.
func (s *ChannelService) CollectIdle(ctx context.Context, before time.Time) (int, error) {
	idle, err := s.memberships.ListIdle(ctx, before, idleBatchSize)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, m := range idle {
		if s.registry.ParticipantAttached(m.TransactionID, m.ParticipantID) {
			continue
		}
		if err := s.memberships.Delete(ctx, m.ParticipantID, m.TransactionID); err != nil {
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		s.log.WithContext(ctx).Info("idle memberships collected", zap.Int("count", removed))
	}
	return removed, nil
}

func (s *ChannelService) publishMember(ctx context.Context, eventType string, transactionID, participantID uuid.UUID) {
	payload := MemberEvent{ParticipantID: participantID}
	if s.identities != nil {
		id, err := s.identities.Resolve(ctx, participantID)
		switch {
		case err == nil:
			payload.Name, payload.Role = id.Name, id.Role
		case !errors.Is(err, dealroom_errors.ErrNotFound):
			s.log.WithContext(ctx).Debug("identity lookup failed", zap.Error(err))
		}
	}
	if err := s.Publish(ctx, transactionID, eventType, events.AggregateTypeMembership, participantID.String(), payload); err != nil {
		s.log.WithContext(ctx).Warn("member event fan-out failed", zap.String("event", eventType), zap.Error(err))
	}
}
