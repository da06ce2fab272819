package memory

import (
	"context"
	"sort"

	"dealroom/internal/domain/message"
	dealroom_errors "dealroom/pkg/errors"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type messageRepo struct{ s *Store }

func (r *messageRepo) Append(_ context.Context, m *message.Message) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	log := r.s.messages[m.TransactionID]
	if m.ClientMessageID.Valid {
		if existing, ok := lo.Find(log, func(item message.Message) bool {
			return item.ClientMessageID.Valid && item.ClientMessageID.String == m.ClientMessageID.String
		}); ok {
			*m = existing
			return false, nil
		}
	}
	m.SequenceNumber = int64(len(log)) + 1
	r.s.messages[m.TransactionID] = append(log, *m)
	return true, nil
}

func (r *messageRepo) ListSince(_ context.Context, transactionID uuid.UUID, sinceSequence int64, limit int) ([]message.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	log := r.s.messages[transactionID]
	// Sequence numbers are dense and start at 1, so the slice index is seq-1.
	start := sort.Search(len(log), func(i int) bool { return log[i].SequenceNumber > sinceSequence })
	end := len(log)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	out := make([]message.Message, end-start)
	copy(out, log[start:end])
	return out, nil
}

func (r *messageRepo) Latest(_ context.Context, transactionID uuid.UUID) (message.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	log := r.s.messages[transactionID]
	if len(log) == 0 {
		return message.Message{}, dealroom_errors.ErrNotFound
	}
	return log[len(log)-1], nil
}

func (r *messageRepo) CountForRecipientSince(_ context.Context, transactionID, recipientID uuid.UUID, sinceSequence int64) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := lo.CountBy(r.s.messages[transactionID], func(m message.Message) bool {
		return m.ToID == recipientID && m.SequenceNumber > sinceSequence
	})
	return int64(n), nil
}
