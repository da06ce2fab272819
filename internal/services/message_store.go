package services

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"
	"time"
	"unicode/utf8"

	"dealroom/internal/domain/message"
	"dealroom/internal/metrics"
	"dealroom/internal/repository"
	dealroom_errors "dealroom/pkg/errors"
	"dealroom/pkg/keylock"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const defaultPageSize = 200

// MessageStore is the per-transaction append log. Appends on one
// transaction are serialized in process; the repository guarantees the
// same across processes.
type MessageStore struct {
	repo     repository.MessageRepository
	locks    *keylock.Locker
	maxBody  int
	pageSize int
	clock    func() time.Time
}

func NewMessageStore(repo repository.MessageRepository, maxBody int) *MessageStore {
	if maxBody <= 0 {
		maxBody = message.MaxBodyLength
	}
	return &MessageStore{
		repo:     repo,
		locks:    keylock.New(),
		maxBody:  maxBody,
		pageSize: defaultPageSize,
		clock:    time.Now,
	}
}

type AppendParams struct {
	TransactionID   uuid.UUID
	FromID          uuid.UUID
	ToID            uuid.UUID
	Body            string
	ClientMessageID string
	// OnAppended runs before the transaction lock is released, only for
	// newly stored messages. Fan-out placed here follows sequence order.
	OnAppended func(message.Message)
}

// Append stores a message and assigns its sequence number. created is false
// when ClientMessageID matched an earlier send; the stored message is
// returned unchanged in that case.
func (s *MessageStore) Append(ctx context.Context, p AppendParams) (message.Message, bool, error) {
	if strings.TrimSpace(p.Body) == "" {
		return message.Message{}, false, fmt.Errorf("%w: empty message body", dealroom_errors.ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(p.Body); n > s.maxBody {
		return message.Message{}, false, fmt.Errorf("%w: %d characters, limit %d", dealroom_errors.ErrMessageTooLarge, n, s.maxBody)
	}

	unlock := s.locks.Lock(p.TransactionID.String())
	defer unlock()

	m := message.Message{
		ID:            ulid.Make().String(),
		TransactionID: p.TransactionID,
		FromID:        p.FromID,
		ToID:          p.ToID,
		Body:          p.Body,
		CreatedAt:     s.clock().UTC(),
	}
	if p.ClientMessageID != "" {
		m.ClientMessageID = sql.NullString{String: p.ClientMessageID, Valid: true}
	}
	created, err := s.repo.Append(ctx, &m)
	if err != nil {
		return message.Message{}, false, err
	}
	if created {
		metrics.MessagesAppended.Inc()
		if p.OnAppended != nil {
			p.OnAppended(m)
		}
	}
	return m, created, nil
}

// ListSince yields messages with a sequence number above sinceSequence in
// ascending order, fetching one page at a time. The sequence ends at the
// newest message present when the last page was read. Ranging over it again
// starts a fresh read.
func (s *MessageStore) ListSince(ctx context.Context, transactionID uuid.UUID, sinceSequence int64) iter.Seq2[message.Message, error] {
	return func(yield func(message.Message, error) bool) {
		cursor := sinceSequence
		for {
			page, err := s.repo.ListSince(ctx, transactionID, cursor, s.pageSize)
			if err != nil {
				yield(message.Message{}, err)
				return
			}
			for _, m := range page {
				if !yield(m, nil) {
					return
				}
				cursor = m.SequenceNumber
			}
			if len(page) < s.pageSize {
				return
			}
		}
	}
}

// History collects ListSince into a slice.
func (s *MessageStore) History(ctx context.Context, transactionID uuid.UUID, sinceSequence int64) ([]message.Message, error) {
	var out []message.Message
	for m, err := range s.ListSince(ctx, transactionID, sinceSequence) {
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Latest returns the newest sequence number of the transaction, 0 when the
// log is empty.
func (s *MessageStore) Latest(ctx context.Context, transactionID uuid.UUID) (int64, error) {
	m, err := s.repo.Latest(ctx, transactionID)
	if err != nil {
		if dealroom_errors.KindOf(err) == dealroom_errors.KindNotFound {
			return 0, nil
		}
		return 0, err
	}
	return m.SequenceNumber, nil
}

func (s *MessageStore) CountForRecipientSince(ctx context.Context, transactionID, recipientID uuid.UUID, sinceSequence int64) (int64, error) {
	return s.repo.CountForRecipientSince(ctx, transactionID, recipientID, sinceSequence)
}
