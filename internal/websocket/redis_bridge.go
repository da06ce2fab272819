package websocket

import (
	"context"

	"dealroom/internal/events"
)

// RedisBridge feeds pub/sub traffic from every node into the local hub.
type RedisBridge struct {
	subscriber events.Subscriber
	hub        *Hub
}

func NewRedisBridge(subscriber events.Subscriber, hub *Hub) *RedisBridge {
	return &RedisBridge{subscriber: subscriber, hub: hub}
}

func (b *RedisBridge) Run(ctx context.Context) error {
	return b.subscriber.Subscribe(ctx, []string{events.ChannelPattern}, func(channel string, payload []byte) {
		b.hub.Route(channel, payload)
	})
}

// LocalPublisher routes published envelopes straight into the hub. It is
// used when the service runs as a single node without Redis.
type LocalPublisher struct {
	hub *Hub
}

func NewLocalPublisher(hub *Hub) *LocalPublisher {
	return &LocalPublisher{hub: hub}
}

func (p *LocalPublisher) Publish(_ context.Context, channel string, payload []byte) error {
	p.hub.Route(channel, payload)
	return nil
}
