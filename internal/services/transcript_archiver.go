package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dealroom/internal/domain/message"
	"dealroom/internal/domain/negotiation"
	"dealroom/internal/repository"
	"dealroom/pkg/logger"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// ObjectPutter writes one object to blob storage.
type ObjectPutter interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
}

// Transcript is the archived record of a closed negotiation and the chat
// that accompanied it.
type Transcript struct {
	Negotiation negotiation.View        `json:"negotiation"`
	Messages    []message.HistoryRecord `json:"messages"`
	ArchivedAt  time.Time               `json:"archived_at"`
}

type TranscriptArchiver struct {
	negotiations repository.NegotiationRepository
	messages     *MessageStore
	store        ObjectPutter
	clock        func() time.Time
	log          *logger.Logger
}

func NewTranscriptArchiver(negotiations repository.NegotiationRepository, messages *MessageStore, store ObjectPutter, log *logger.Logger) *TranscriptArchiver {
	if log == nil {
		log = logger.NewNop()
	}
	return &TranscriptArchiver{
		negotiations: negotiations,
		messages:     messages,
		store:        store,
		clock:        time.Now,
		log:          log.Named("archiver"),
	}
}

func TranscriptKey(transactionID, negotiationID uuid.UUID) string {
	return fmt.Sprintf("transcripts/%s/%s.json", transactionID, negotiationID)
}

// Archive uploads the transcript of a terminal negotiation. Open
// negotiations are skipped. Re-archiving overwrites the same key.
func (a *TranscriptArchiver) Archive(ctx context.Context, negotiationID uuid.UUID) error {
	agg, err := a.negotiations.GetByID(ctx, negotiationID)
	if err != nil {
		return err
	}
	if !agg.Negotiation.Status.IsTerminal() {
		return nil
	}
	msgs, err := a.messages.History(ctx, agg.Negotiation.TransactionID, 0)
	if err != nil {
		return err
	}
	t := Transcript{
		Negotiation: agg.View(),
		Messages:    lo.Map(msgs, func(m message.Message, _ int) message.HistoryRecord { return m.Record() }),
		ArchivedAt:  a.clock().UTC(),
	}
	body, err := json.Marshal(t)
	if err != nil {
		return err
	}
	key := TranscriptKey(agg.Negotiation.TransactionID, negotiationID)
	if err := a.store.PutObject(ctx, key, body, "application/json"); err != nil {
		return fmt.Errorf("upload transcript: %w", err)
	}
	a.log.WithContext(ctx).Info("transcript archived", zap.String("key", key), zap.Int("messages", len(msgs)))
	return nil
}
