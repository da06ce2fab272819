package events

import "context"

// Publisher sends an encoded envelope to a channel. Delivery is best-effort.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, channels []string, handler func(channel string, payload []byte)) error
}
