package websocket

import (
	"context"
	"sync"
	"testing"

	"dealroom/internal/events"
	dealroom_errors "dealroom/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id          string
	participant uuid.UUID
	mu          sync.Mutex
	frames      [][]byte
}

func newFakeConn(participant uuid.UUID) *fakeConn {
	return &fakeConn{id: uuid.NewString(), participant: participant}
}

func (c *fakeConn) ID() string               { return c.id }
func (c *fakeConn) ParticipantID() uuid.UUID { return c.participant }

func (c *fakeConn) Send(payload []byte) bool {
	c.mu.Lock()
	c.frames = append(c.frames, payload)
	c.mu.Unlock()
	return true
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func TestHub_Attach(t *testing.T) {
	t.Run("should only attach registered connections", func(t *testing.T) {
		req := require.New(t)
		hub := NewHub()
		txn := uuid.New()
		conn := newFakeConn(uuid.New())

		req.False(hub.Attach(txn, conn.id))

		hub.Register(conn)
		req.True(hub.Attach(txn, conn.id))
		req.True(hub.Attach(txn, conn.id))
		req.Equal(1, hub.GetChannelSubscriberCount(txn))
	})

	t.Run("should drop attachments on unregister", func(t *testing.T) {
		req := require.New(t)
		hub := NewHub()
		a, b := uuid.New(), uuid.New()
		conn := newFakeConn(uuid.New())
		hub.Register(conn)
		hub.Attach(a, conn.id)
		hub.Attach(b, conn.id)

		txns := hub.Unregister(conn.id)

		req.ElementsMatch([]uuid.UUID{a, b}, txns)
		req.Zero(hub.GetClientCount())
		req.Empty(hub.Snapshot())
	})
}

func TestHub_AttachParticipant(t *testing.T) {
	req := require.New(t)
	hub := NewHub()
	txn := uuid.New()
	alice, bob := uuid.New(), uuid.New()
	phone, laptop, other := newFakeConn(alice), newFakeConn(alice), newFakeConn(bob)
	for _, c := range []*fakeConn{phone, laptop, other} {
		hub.Register(c)
	}

	ids := hub.AttachParticipant(txn, alice)

	req.ElementsMatch([]string{phone.id, laptop.id}, ids)
	req.True(hub.IsAttached(txn, phone.id))
	req.True(hub.IsAttached(txn, laptop.id))
	req.False(hub.ParticipantAttached(txn, bob))
	req.Empty(hub.AttachParticipant(uuid.New(), uuid.New()))
}

func TestHub_DetachParticipant(t *testing.T) {
	req := require.New(t)
	hub := NewHub()
	txn := uuid.New()
	alice, bob := uuid.New(), uuid.New()
	phone, laptop, other := newFakeConn(alice), newFakeConn(alice), newFakeConn(bob)
	for _, c := range []*fakeConn{phone, laptop, other} {
		hub.Register(c)
		hub.Attach(txn, c.id)
	}

	ids := hub.DetachParticipant(txn, alice)

	req.ElementsMatch([]string{phone.id, laptop.id}, ids)
	req.False(hub.ParticipantAttached(txn, alice))
	req.True(hub.ParticipantAttached(txn, bob))
	req.Empty(hub.DetachParticipant(txn, alice))
}

func TestHub_Viewing(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	hub := NewHub()
	txn := uuid.New()
	alice := uuid.New()
	phone, laptop := newFakeConn(alice), newFakeConn(alice)
	hub.Register(phone)
	hub.Register(laptop)
	hub.Attach(txn, phone.id)

	// Opening a viewport needs an attached connection
	req.ErrorIs(hub.SetViewing(ctx, alice, txn, laptop.id, true), dealroom_errors.ErrNotFound)
	req.NoError(hub.SetViewing(ctx, alice, txn, laptop.id, false))

	req.NoError(hub.SetViewing(ctx, alice, txn, phone.id, true))
	viewing, err := hub.IsViewing(ctx, alice, txn)
	req.NoError(err)
	req.True(viewing)

	// Any open viewport counts
	hub.Attach(txn, laptop.id)
	req.NoError(hub.SetViewing(ctx, alice, txn, laptop.id, false))
	viewing, _ = hub.IsViewing(ctx, alice, txn)
	req.True(viewing)

	hub.Unregister(phone.id)
	viewing, _ = hub.IsViewing(ctx, alice, txn)
	req.False(viewing)
}

func TestHub_Route(t *testing.T) {
	req := require.New(t)
	hub := NewHub()
	txn := uuid.New()
	alice, bob := uuid.New(), uuid.New()
	joined, idle, other := newFakeConn(alice), newFakeConn(alice), newFakeConn(bob)
	for _, c := range []*fakeConn{joined, idle, other} {
		hub.Register(c)
	}
	hub.Attach(txn, joined.id)
	hub.Attach(txn, other.id)

	req.Equal(2, hub.Route(events.TransactionChannel(txn), []byte("{}")))
	req.Equal(2, hub.Route(events.ParticipantChannel(alice), []byte("{}")))
	req.Zero(hub.Route("channel:unknown:x", []byte("{}")))

	req.Equal(2, joined.count())
	req.Equal(1, idle.count())
	req.Equal(1, other.count())

	pub := NewLocalPublisher(hub)
	req.NoError(pub.Publish(context.Background(), events.TransactionChannel(uuid.New()), []byte("{}")))
}
