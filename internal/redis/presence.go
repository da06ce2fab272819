package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Viewport key patterns:
// - viewport:{participant_id}:{transaction_id} - SET of connection ids with the channel open
// - viewport:conn:{connection_id} - SET of viewport keys held by a connection

const DefaultViewportTTL = 10 * time.Minute

// ViewportStore records which connections currently display a channel, so
// that unread counters are only bumped for participants who are not looking.
// Live connections renew their entries through Refresh on every heartbeat;
// entries of a node that died without closing its sockets expire after ttl.
type ViewportStore struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewViewportStore(client *goredis.Client, ttl time.Duration) *ViewportStore {
	if ttl <= 0 {
		ttl = DefaultViewportTTL
	}
	return &ViewportStore{client: client, ttl: ttl}
}

func viewportKey(participantID, transactionID uuid.UUID) string {
	return fmt.Sprintf("viewport:%s:%s", participantID, transactionID)
}

func connectionKey(connectionID string) string {
	return fmt.Sprintf("viewport:conn:%s", connectionID)
}

// SetViewing marks the connection as viewing (or no longer viewing) the
// transaction channel.
func (v *ViewportStore) SetViewing(ctx context.Context, participantID, transactionID uuid.UUID, connectionID string, open bool) error {
	key := viewportKey(participantID, transactionID)
	connKey := connectionKey(connectionID)

	pipe := v.client.TxPipeline()
	if open {
		pipe.SAdd(ctx, key, connectionID)
		pipe.Expire(ctx, key, v.ttl)
		pipe.SAdd(ctx, connKey, key)
		pipe.Expire(ctx, connKey, v.ttl)
	} else {
		pipe.SRem(ctx, key, connectionID)
		pipe.SRem(ctx, connKey, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update viewport: %w", err)
	}
	return nil
}

// IsViewing reports whether any connection of the participant has the
// channel open.
func (v *ViewportStore) IsViewing(ctx context.Context, participantID, transactionID uuid.UUID) (bool, error) {
	n, err := v.client.SCard(ctx, viewportKey(participantID, transactionID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read viewport: %w", err)
	}
	return n > 0, nil
}

// Refresh renews the TTL of the connection's viewport entries. The ttl must
// stay well above the heartbeat period.
func (v *ViewportStore) Refresh(ctx context.Context, connectionID string) error {
	connKey := connectionKey(connectionID)
	keys, err := v.client.SMembers(ctx, connKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list viewports: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	pipe := v.client.TxPipeline()
	for _, key := range keys {
		pipe.Expire(ctx, key, v.ttl)
	}
	pipe.Expire(ctx, connKey, v.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to refresh viewports: %w", err)
	}
	return nil
}

// ClearConnection removes every viewport entry held by a connection.
func (v *ViewportStore) ClearConnection(ctx context.Context, connectionID string) error {
	connKey := connectionKey(connectionID)
	keys, err := v.client.SMembers(ctx, connKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list viewports: %w", err)
	}

	pipe := v.client.TxPipeline()
	for _, key := range keys {
		pipe.SRem(ctx, key, connectionID)
	}
	pipe.Del(ctx, connKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear viewports: %w", err)
	}
	return nil
}
