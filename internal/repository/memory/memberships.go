package memory

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"dealroom/internal/domain/channel"
	dealroom_errors "dealroom/pkg/errors"

	"github.com/google/uuid"
)

type membershipRepo struct{ s *Store }

func (r *membershipRepo) Upsert(_ context.Context, m channel.Membership) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := pairKey{m.ParticipantID, m.TransactionID}
	if existing, ok := r.s.memberships[key]; ok && existing.Active() {
		m.JoinedAt = existing.JoinedAt
	}
	m.LeftAt = sql.NullTime{}
	r.s.memberships[key] = m
	return nil
}

func (r *membershipRepo) Get(_ context.Context, participantID, transactionID uuid.UUID) (channel.Membership, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.memberships[pairKey{participantID, transactionID}]
	if !ok {
		return channel.Membership{}, dealroom_errors.ErrNotFound
	}
	return m, nil
}

func (r *membershipRepo) MarkLeft(_ context.Context, participantID, transactionID uuid.UUID, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := pairKey{participantID, transactionID}
	m, ok := r.s.memberships[key]
	if !ok || !m.Active() {
		return false, nil
	}
	m.LeftAt = sql.NullTime{Time: at, Valid: true}
	m.LastSeenAt = at
	r.s.memberships[key] = m
	return true, nil
}

func (r *membershipRepo) Touch(_ context.Context, participantID, transactionID uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := pairKey{participantID, transactionID}
	if m, ok := r.s.memberships[key]; ok {
		m.LastSeenAt = at
		r.s.memberships[key] = m
	}
	return nil
}

func (r *membershipRepo) ListActiveByParticipant(_ context.Context, participantID uuid.UUID) ([]channel.Membership, error) {
	return r.filter(func(m channel.Membership) bool {
		return m.ParticipantID == participantID && m.Active()
	}), nil
}

func (r *membershipRepo) ListIdle(_ context.Context, before time.Time, limit int) ([]channel.Membership, error) {
	items := r.filter(func(m channel.Membership) bool {
		return m.LastSeenAt.Before(before)
	})
	sort.Slice(items, func(i, j int) bool { return items[i].LastSeenAt.Before(items[j].LastSeenAt) })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (r *membershipRepo) Delete(_ context.Context, participantID, transactionID uuid.UUID) error {
	r.s.mu.Lock()
	delete(r.s.memberships, pairKey{participantID, transactionID})
	r.s.mu.Unlock()
	return nil
}

func (r *membershipRepo) filter(keep func(channel.Membership) bool) []channel.Membership {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []channel.Membership
	for _, m := range r.s.memberships {
		if keep(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out
}
