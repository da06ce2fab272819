package websocket

import (
	"context"
	"sync"

	"dealroom/internal/events"
	"dealroom/internal/services"
	dealroom_errors "dealroom/pkg/errors"

	"github.com/google/uuid"
)

type attachment struct {
	conn    services.Connection
	viewing bool
}

// Hub is the process-local channel registry: transaction id to the live
// connections attached to it. It implements services.Registry and, when no
// Redis is configured, services.ViewportTracker.
type Hub struct {
	mu sync.RWMutex

	// clients maps connection id to its handle
	clients map[string]services.Connection

	// channels maps transaction id to attached connections by id
	channels map[uuid.UUID]map[string]*attachment

	// joined maps connection id to the transactions it is attached to
	joined map[string]map[uuid.UUID]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:  make(map[string]services.Connection),
		channels: make(map[uuid.UUID]map[string]*attachment),
		joined:   make(map[string]map[uuid.UUID]struct{}),
	}
}

func (h *Hub) Register(conn services.Connection) {
	h.mu.Lock()
	h.clients[conn.ID()] = conn
	if _, ok := h.joined[conn.ID()]; !ok {
		h.joined[conn.ID()] = make(map[uuid.UUID]struct{})
	}
	h.mu.Unlock()
}

// Unregister removes the connection and all its attachments, returning the
// transactions it was attached to.
func (h *Hub) Unregister(connectionID string) []uuid.UUID {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []uuid.UUID
	for txn := range h.joined[connectionID] {
		h.detachLocked(txn, connectionID)
		out = append(out, txn)
	}
	delete(h.joined, connectionID)
	delete(h.clients, connectionID)
	return out
}

// Attach adds a registered connection to a transaction channel. The
// viewport starts closed. Attaching twice keeps the existing state.
func (h *Hub) Attach(transactionID uuid.UUID, connectionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attachLocked(transactionID, connectionID)
}

// AttachParticipant attaches every registered connection of the participant.
func (h *Hub) AttachParticipant(transactionID, participantID uuid.UUID) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var ids []string
	for id, conn := range h.clients {
		if conn.ParticipantID() == participantID && h.attachLocked(transactionID, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (h *Hub) attachLocked(transactionID uuid.UUID, connectionID string) bool {
	conn, ok := h.clients[connectionID]
	if !ok {
		return false
	}
	subs, ok := h.channels[transactionID]
	if !ok {
		subs = make(map[string]*attachment)
		h.channels[transactionID] = subs
	}
	if _, ok := subs[connectionID]; !ok {
		subs[connectionID] = &attachment{conn: conn}
	}
	h.joined[connectionID][transactionID] = struct{}{}
	return true
}

func (h *Hub) DetachParticipant(transactionID, participantID uuid.UUID) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var ids []string
	for id, a := range h.channels[transactionID] {
		if a.conn.ParticipantID() == participantID {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		h.detachLocked(transactionID, id)
	}
	return ids
}

func (h *Hub) detachLocked(transactionID uuid.UUID, connectionID string) bool {
	subs, ok := h.channels[transactionID]
	if !ok {
		return false
	}
	if _, ok := subs[connectionID]; !ok {
		return false
	}
	delete(subs, connectionID)
	if len(subs) == 0 {
		delete(h.channels, transactionID)
	}
	if joined, ok := h.joined[connectionID]; ok {
		delete(joined, transactionID)
	}
	return true
}

func (h *Hub) IsAttached(transactionID uuid.UUID, connectionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.channels[transactionID][connectionID]
	return ok
}

func (h *Hub) ParticipantAttached(transactionID, participantID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, a := range h.channels[transactionID] {
		if a.conn.ParticipantID() == participantID {
			return true
		}
	}
	return false
}

// SetViewing flips the viewport flag of an attached connection.
func (h *Hub) SetViewing(_ context.Context, _, transactionID uuid.UUID, connectionID string, open bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.channels[transactionID][connectionID]
	if !ok {
		if !open {
			return nil
		}
		return dealroom_errors.ErrNotFound
	}
	a.viewing = open
	return nil
}

// IsViewing reports whether any attached connection of the participant has
// the channel open.
func (h *Hub) IsViewing(_ context.Context, participantID, transactionID uuid.UUID) (bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, a := range h.channels[transactionID] {
		if a.viewing && a.conn.ParticipantID() == participantID {
			return true, nil
		}
	}
	return false, nil
}

// ClearConnection is a no-op locally; Unregister already dropped the flags.
func (h *Hub) ClearConnection(context.Context, string) error {
	return nil
}

// Refresh is a no-op locally; flags live as long as the attachment.
func (h *Hub) Refresh(context.Context, string) error {
	return nil
}

// Broadcast sends payload to every connection attached to the transaction
// and returns how many accepted it.
func (h *Hub) Broadcast(transactionID uuid.UUID, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for _, a := range h.channels[transactionID] {
		if a.conn.Send(payload) {
			sent++
		}
	}
	return sent
}

// BroadcastToParticipant sends payload to every connection of a participant.
func (h *Hub) BroadcastToParticipant(participantID uuid.UUID, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for _, conn := range h.clients {
		if conn.ParticipantID() == participantID && conn.Send(payload) {
			sent++
		}
	}
	return sent
}

// Route delivers a pub/sub message to the local connections it addresses.
func (h *Hub) Route(channel string, payload []byte) int {
	kind, id, ok := events.ParseChannel(channel)
	if !ok {
		return 0
	}
	switch kind {
	case events.ChannelTransaction:
		return h.Broadcast(id, payload)
	case events.ChannelParticipant:
		return h.BroadcastToParticipant(id, payload)
	}
	return 0
}

// Snapshot returns the attached connection ids per transaction.
func (h *Hub) Snapshot() map[uuid.UUID][]string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[uuid.UUID][]string, len(h.channels))
	for txn, subs := range h.channels {
		for id := range subs {
			out[txn] = append(out[txn], id)
		}
	}
	return out
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) GetChannelSubscriberCount(transactionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[transactionID])
}
