package memory

import (
	"context"
	"sort"
	"time"

	"dealroom/internal/domain/unread"

	"github.com/google/uuid"
)

type unreadRepo struct{ s *Store }

func (r *unreadRepo) Get(_ context.Context, participantID, transactionID uuid.UUID) (unread.Counter, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if c, ok := r.s.counters[pairKey{participantID, transactionID}]; ok {
		return c, nil
	}
	return unread.Counter{ParticipantID: participantID, TransactionID: transactionID}, nil
}

func (r *unreadRepo) Increment(_ context.Context, participantID, transactionID uuid.UUID, sequence int64, at time.Time) (unread.Counter, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := pairKey{participantID, transactionID}
	c, ok := r.s.counters[key]
	if !ok {
		c = unread.Counter{ParticipantID: participantID, TransactionID: transactionID}
	}
	if !ok || sequence > c.LastReadSequence {
		c.Count++
	}
	c.UpdatedAt = at
	r.s.counters[key] = c
	return c, nil
}

func (r *unreadRepo) MarkRead(_ context.Context, participantID, transactionID uuid.UUID, sequence int64, at time.Time) (unread.Counter, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := pairKey{participantID, transactionID}
	c := r.s.counters[key]
	c.ParticipantID = participantID
	c.TransactionID = transactionID
	c.Count = 0
	if sequence > c.LastReadSequence {
		c.LastReadSequence = sequence
	}
	c.UpdatedAt = at
	r.s.counters[key] = c
	return c, nil
}

func (r *unreadRepo) Set(_ context.Context, c unread.Counter) error {
	r.s.mu.Lock()
	r.s.counters[pairKey{c.ParticipantID, c.TransactionID}] = c
	r.s.mu.Unlock()
	return nil
}

func (r *unreadRepo) ListNonZero(_ context.Context, participantID uuid.UUID) ([]unread.Counter, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []unread.Counter
	for key, c := range r.s.counters {
		if key.participant == participantID && c.Count > 0 {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}
