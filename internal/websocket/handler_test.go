package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"dealroom/internal/commands"
	"dealroom/internal/domain/booking"
	"dealroom/internal/domain/negotiation"
	"dealroom/internal/events"
	"dealroom/internal/proxy"
	"dealroom/internal/repository/memory"
	"dealroom/internal/services"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newDispatchHandler(t *testing.T) (*Handler, *Hub, booking.Transaction) {
	t.Helper()
	store := memory.NewStore()
	txn := booking.Transaction{
		ID:         uuid.New(),
		ServiceID:  uuid.New(),
		ClientID:   uuid.New(),
		ProviderID: uuid.New(),
		BasePrice:  decimal.NewFromInt(100),
	}
	store.AddTransaction(txn)

	hub := NewHub()
	pub := NewLocalPublisher(hub)
	bus := commands.NewBus(proxy.NewAccessControl(store.Bookings()))
	policy, err := negotiation.ParsePolicy("0.3", "0.5")
	require.NoError(t, err)

	messages := services.NewMessageStore(store.Messages(), 2000)
	unread := services.NewUnreadTracker(store.Unread(), messages, hub, pub, nil)
	negotiations := services.NewNegotiationService(store.Negotiations(), store.Bookings(), policy, time.Hour, nil, bus)
	channels := services.NewChannelService(services.ChannelDeps{
		Bookings:    store.Bookings(),
		Memberships: store.Memberships(),
		Identities:  store.Identities(),
		Messages:    messages,
		Unread:      unread,
		Registry:    hub,
		Viewports:   hub,
		Publisher:   pub,
	}, nil, bus)
	gateway := services.NewGateway(bus, negotiations, channels, unread, nil, nil)

	return NewHandler(services.NewAuthService("secret"), gateway, NewConnLogger(nil)), hub, txn
}

// lastReply decodes the most recent frame sent to conn.
func lastReply(t *testing.T, conn *fakeConn) ReplyFrame {
	t.Helper()
	conn.mu.Lock()
	defer conn.mu.Unlock()
	require.NotEmpty(t, conn.frames)
	var f ReplyFrame
	require.NoError(t, json.Unmarshal(conn.frames[len(conn.frames)-1], &f))
	return f
}

func frame(t *testing.T, v map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("should answer malformed and unknown frames without closing", func(t *testing.T) {
		req := require.New(t)
		h, hub, _ := newDispatchHandler(t)
		conn := newFakeConn(uuid.New())
		hub.Register(conn)

		h.Dispatch(ctx, conn, []byte("{not json"))
		reply := lastReply(t, conn)
		req.Equal(ReplyError, reply.Type)
		req.Equal("VALIDATION", reply.Error.Code)

		h.Dispatch(ctx, conn, frame(t, map[string]any{"type": "dance", "request_id": "r1"}))
		reply = lastReply(t, conn)
		req.Equal(ReplyError, reply.Type)
		req.Equal("r1", reply.RequestID)

		h.Dispatch(ctx, conn, frame(t, map[string]any{"type": FramePing}))
		req.Equal(ReplyPong, lastReply(t, conn).Type)
	})

	t.Run("should join, chat and negotiate over frames", func(t *testing.T) {
		req := require.New(t)
		h, hub, txn := newDispatchHandler(t)
		client, provider := newFakeConn(txn.ClientID), newFakeConn(txn.ProviderID)
		hub.Register(client)
		hub.Register(provider)

		// Given both parties joined, the provider with the channel on screen
		h.Dispatch(ctx, client, frame(t, map[string]any{"type": FrameJoin, "transaction_id": txn.ID}))
		req.Equal(ReplyJoined, lastReply(t, client).Type)
		h.Dispatch(ctx, provider, frame(t, map[string]any{"type": FrameJoin, "transaction_id": txn.ID, "viewing": true}))
		req.Equal(ReplyJoined, lastReply(t, provider).Type)

		// When the client sends a message
		h.Dispatch(ctx, client, frame(t, map[string]any{"type": FrameMessage, "transaction_id": txn.ID, "body": "hi", "request_id": "m1"}))

		// Then the sender gets an ack and the viewing provider stays at zero unread
		reply := lastReply(t, client)
		req.Equal(ReplyMessageAck, reply.Type)
		req.Equal("m1", reply.RequestID)
		h.Dispatch(ctx, provider, frame(t, map[string]any{"type": FrameUnread}))
		reply = lastReply(t, provider)
		req.Equal(ReplyUnread, reply.Type)
		req.Empty(reply.Data)

		// And an offer without a negotiation id opens one
		h.Dispatch(ctx, client, frame(t, map[string]any{"type": FrameOffer, "transaction_id": txn.ID, "amount": "90"}))
		reply = lastReply(t, client)
		req.Equal(ReplyNegotiation, reply.Type)
		raw, err := json.Marshal(reply.Data)
		req.NoError(err)
		var view negotiation.View
		req.NoError(json.Unmarshal(raw, &view))
		req.Equal(negotiation.StatusOpen, view.Status)

		// And the provider may not cancel it
		h.Dispatch(ctx, provider, frame(t, map[string]any{"type": FrameCancel, "negotiation_id": view.ID}))
		reply = lastReply(t, provider)
		req.Equal(ReplyError, reply.Type)
		req.Equal("UNAUTHORIZED", reply.Error.Code)
		req.False(reply.Error.Retryable)
	})

	t.Run("should reject joins by outsiders", func(t *testing.T) {
		req := require.New(t)
		h, hub, txn := newDispatchHandler(t)
		outsider := newFakeConn(uuid.New())
		hub.Register(outsider)

		h.Dispatch(ctx, outsider, frame(t, map[string]any{"type": FrameJoin, "transaction_id": txn.ID}))

		reply := lastReply(t, outsider)
		req.Equal(ReplyError, reply.Type)
		req.Equal("UNAUTHORIZED", reply.Error.Code)
		req.Zero(hub.Route(events.TransactionChannel(txn.ID), []byte("{}")))
	})
}
