// Package memory keeps every repository in process. It backs STORE_DRIVER=memory
// and the service tests, and mirrors the constraints the Postgres schema
// enforces.
package memory

import (
	"sync"

	"dealroom/internal/domain/booking"
	"dealroom/internal/domain/channel"
	"dealroom/internal/domain/message"
	"dealroom/internal/domain/negotiation"
	"dealroom/internal/domain/outbox"
	"dealroom/internal/domain/unread"
	"dealroom/internal/repository"

	"github.com/google/uuid"
)

type pairKey struct {
	participant uuid.UUID
	transaction uuid.UUID
}

type Store struct {
	mu sync.RWMutex

	negotiations map[uuid.UUID]*negotiation.Aggregate
	messages     map[uuid.UUID][]message.Message
	memberships  map[pairKey]channel.Membership
	counters     map[pairKey]unread.Counter
	outbox       []outbox.OutboxEvent
	transactions map[uuid.UUID]booking.Transaction
	confirmed    map[uuid.UUID]booking.Confirmation
	identities   map[uuid.UUID]booking.Identity
}

func NewStore() *Store {
	return &Store{
		negotiations: make(map[uuid.UUID]*negotiation.Aggregate),
		messages:     make(map[uuid.UUID][]message.Message),
		memberships:  make(map[pairKey]channel.Membership),
		counters:     make(map[pairKey]unread.Counter),
		transactions: make(map[uuid.UUID]booking.Transaction),
		confirmed:    make(map[uuid.UUID]booking.Confirmation),
		identities:   make(map[uuid.UUID]booking.Identity),
	}
}

func (s *Store) Negotiations() repository.NegotiationRepository { return &negotiationRepo{s} }
func (s *Store) Messages() repository.MessageRepository         { return &messageRepo{s} }
func (s *Store) Memberships() repository.MembershipRepository   { return &membershipRepo{s} }
func (s *Store) Unread() repository.UnreadRepository            { return &unreadRepo{s} }
func (s *Store) Outbox() repository.OutboxRepository            { return &outboxRepo{s} }
func (s *Store) Bookings() repository.BookingRepository         { return &bookingRepo{s} }
func (s *Store) Identities() repository.IdentityRepository      { return &identityRepo{s} }

// AddTransaction registers a booking so that parties and base price resolve.
func (s *Store) AddTransaction(t booking.Transaction) {
	s.mu.Lock()
	s.transactions[t.ID] = t
	s.mu.Unlock()
}

func (s *Store) AddIdentity(id booking.Identity) {
	s.mu.Lock()
	s.identities[id.ID] = id
	s.mu.Unlock()
}

// Confirmation returns the confirmation recorded for a transaction, if any.
func (s *Store) Confirmation(transactionID uuid.UUID) (booking.Confirmation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.confirmed[transactionID]
	return c, ok
}

// OutboxEvents returns a copy of every stored outbox event.
func (s *Store) OutboxEvents() []outbox.OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]outbox.OutboxEvent, len(s.outbox))
	copy(out, s.outbox)
	return out
}

func cloneAggregate(a *negotiation.Aggregate) *negotiation.Aggregate {
	offers := make([]negotiation.Offer, len(a.Offers))
	copy(offers, a.Offers)
	return &negotiation.Aggregate{Negotiation: a.Negotiation, Offers: offers}
}
