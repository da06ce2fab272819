package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Rate limiting key patterns:
// - ratelimit:{participant_id}:messages - per-window chat message limit
// - ratelimit:{participant_id}:offers - per-window negotiation mutation limit
// - ratelimit:{client_ip}:connects - per-window WebSocket upgrade limit

type RateLimitConfig struct {
	MessageLimit  int
	MessageWindow time.Duration
	OfferLimit    int
	OfferWindow   time.Duration
	ConnectLimit  int
	ConnectWindow time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MessageLimit:  60,
		MessageWindow: 60 * time.Second,
		OfferLimit:    20,
		OfferWindow:   60 * time.Second,
		ConnectLimit:  30,
		ConnectWindow: 60 * time.Second,
	}
}

type RateLimiter struct {
	client *goredis.Client
	config RateLimitConfig
}

type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
	Limit     int
}

// Fixed-window counter. The key gets its expiry on first increment only.
var checkLimitScript = goredis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])

	local current = redis.call('GET', key)
	if current == false then
		current = 0
	else
		current = tonumber(current)
	end

	local ttl = redis.call('TTL', key)
	if ttl < 0 then
		ttl = window
	end

	if current < limit then
		redis.call('INCR', key)
		if ttl == window then
			redis.call('EXPIRE', key, window)
		end
		return {1, limit - current - 1, ttl}
	else
		return {0, 0, ttl}
	end
`)

func NewRateLimiter(client *goredis.Client, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{client: client, config: config}
}

// AllowMessage checks if a participant may send another chat message.
func (r *RateLimiter) AllowMessage(ctx context.Context, participantID string) (*RateLimitResult, error) {
	return r.checkLimit(ctx, fmt.Sprintf("ratelimit:%s:messages", participantID), r.config.MessageLimit, r.config.MessageWindow)
}

// AllowOffer checks if a participant may mutate a negotiation again.
func (r *RateLimiter) AllowOffer(ctx context.Context, participantID string) (*RateLimitResult, error) {
	return r.checkLimit(ctx, fmt.Sprintf("ratelimit:%s:offers", participantID), r.config.OfferLimit, r.config.OfferWindow)
}

// AllowConnect limits WebSocket upgrades per client address.
func (r *RateLimiter) AllowConnect(ctx context.Context, clientIP string) (*RateLimitResult, error) {
	return r.checkLimit(ctx, fmt.Sprintf("ratelimit:%s:connects", clientIP), r.config.ConnectLimit, r.config.ConnectWindow)
}

// Allow checks the counter for action ("message" or "offer").
func (r *RateLimiter) Allow(ctx context.Context, action, participantID string) (bool, error) {
	var (
		res *RateLimitResult
		err error
	)
	switch action {
	case "message":
		res, err = r.AllowMessage(ctx, participantID)
	case "offer":
		res, err = r.AllowOffer(ctx, participantID)
	default:
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}

func (r *RateLimiter) checkLimit(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error) {
	if limit <= 0 {
		return &RateLimitResult{Allowed: true, Remaining: -1}, nil
	}

	result, err := checkLimitScript.Run(ctx, r.client, []string{key}, limit, int(window.Seconds())).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) < 3 {
		return nil, fmt.Errorf("unexpected rate limit result format")
	}
	allowed, _ := resultSlice[0].(int64)
	remaining, _ := resultSlice[1].(int64)
	ttl, _ := resultSlice[2].(int64)

	return &RateLimitResult{
		Allowed:   allowed == 1,
		Remaining: int(remaining),
		ResetIn:   time.Duration(ttl) * time.Second,
		Limit:     limit,
	}, nil
}
