package services

import (
	"context"
	"encoding/json"
	"time"

	"dealroom/internal/events"

	"github.com/google/uuid"
)

// publishEvent wraps payload in an envelope and sends it to channel.
func publishEvent(ctx context.Context, pub events.Publisher, channel, eventType, aggregateType, aggregateID string, transactionID uuid.UUID, payload any, now time.Time) error {
	env, err := events.NewEnvelope(eventType, aggregateType, aggregateID, transactionID.String(), payload, now)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return pub.Publish(ctx, channel, raw)
}
