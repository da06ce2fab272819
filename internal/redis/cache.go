package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dealroom/internal/domain/booking"
	"dealroom/internal/repository"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Cache key patterns:
// - transaction:{transaction_id}:parties - parties of a booking, read-through

// DefaultPartiesTTL is used when no TTL is configured.
const DefaultPartiesTTL = 5 * time.Minute

// PartiesCache decorates a BookingRepository with a read-through Redis cache
// for GetPartiesForTransaction, which every Join and offer hits.
type PartiesCache struct {
	repository.BookingRepository
	client *goredis.Client
	ttl    time.Duration
}

func NewPartiesCache(next repository.BookingRepository, client *goredis.Client, ttl time.Duration) *PartiesCache {
	if ttl <= 0 {
		ttl = DefaultPartiesTTL
	}
	return &PartiesCache{BookingRepository: next, client: client, ttl: ttl}
}

func partiesKey(transactionID uuid.UUID) string {
	return fmt.Sprintf("transaction:%s:parties", transactionID.String())
}

func (c *PartiesCache) GetPartiesForTransaction(ctx context.Context, transactionID uuid.UUID) (booking.Parties, error) {
	key := partiesKey(transactionID)
	data, err := c.client.Get(ctx, key).Result()
	if err == nil {
		var p booking.Parties
		if jsonErr := json.Unmarshal([]byte(data), &p); jsonErr == nil {
			return p, nil
		}
	}
	// A cache failure falls through to the source of truth.

	p, err := c.BookingRepository.GetPartiesForTransaction(ctx, transactionID)
	if err != nil {
		return booking.Parties{}, err
	}
	if raw, err := json.Marshal(p); err == nil {
		_ = c.client.Set(ctx, key, raw, c.ttl).Err()
	}
	return p, nil
}

// Invalidate drops the cached parties of a transaction.
func (c *PartiesCache) Invalidate(ctx context.Context, transactionID uuid.UUID) error {
	return c.client.Del(ctx, partiesKey(transactionID)).Err()
}

// ConfirmBooking forwards the confirmation and evicts the cached parties of
// the transaction.
func (c *PartiesCache) ConfirmBooking(ctx context.Context, conf booking.Confirmation) error {
	if err := c.BookingRepository.ConfirmBooking(ctx, conf); err != nil {
		return err
	}
	_ = c.Invalidate(ctx, conf.TransactionID)
	return nil
}
