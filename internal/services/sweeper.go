package services

import (
	"context"
	"time"

	"dealroom/pkg/logger"

	"go.uber.org/zap"
)

// Sweeper drives the only timeout-based transitions: negotiation expiry and
// garbage collection of long idle memberships.
type Sweeper struct {
	negotiations *NegotiationService
	channels     *ChannelService
	interval     time.Duration
	idleTTL      time.Duration
	clock        func() time.Time
	log          *logger.Logger
}

func NewSweeper(negotiations *NegotiationService, channels *ChannelService, interval, idleTTL time.Duration, log *logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Sweeper{
		negotiations: negotiations,
		channels:     channels,
		interval:     interval,
		idleTTL:      idleTTL,
		clock:        time.Now,
		log:          log.Named("sweeper"),
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one expiry sweep and one idle collection. Failures are
// logged and retried on the next tick.
func (s *Sweeper) RunOnce(ctx context.Context) (expired, collected int) {
	expired, err := s.negotiations.SweepExpired(ctx)
	if err != nil {
		s.log.Logger.Warn("expiry sweep failed", zap.Error(err))
	}
	if s.idleTTL > 0 && s.channels != nil {
		collected, err = s.channels.CollectIdle(ctx, s.clock().Add(-s.idleTTL))
		if err != nil {
			s.log.Logger.Warn("membership gc failed", zap.Error(err))
		}
	}
	if expired > 0 || collected > 0 {
		s.log.Logger.Info("sweep finished", zap.Int("expired", expired), zap.Int("collected", collected))
	}
	return expired, collected
}
