package outbox

import (
	"context"

	"dealroom/config"
	"dealroom/internal/events"
	"dealroom/internal/repository"
	"dealroom/pkg/logger"
)

type Runner struct {
	processor *Processor
}

func NewRunner(processor *Processor) *Runner {
	return &Runner{processor: processor}
}

func (r *Runner) Start(ctx context.Context) {
	go r.processor.Run(ctx)
}

// DefaultProcessor builds a processor from the outbox settings in cfg.
func DefaultProcessor(cfg *config.Config, repo repository.OutboxRepository, publisher events.Publisher, bookings repository.BookingRepository, archiver Archiver, log *logger.Logger) *Processor {
	return NewProcessor(repo, publisher, bookings, archiver, log, cfg.OutboxBatchSize, cfg.OutboxInterval, cfg.OutboxMaxRetries)
}
