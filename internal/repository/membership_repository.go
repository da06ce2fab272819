package repository

import (
	"context"
	"time"

	"dealroom/internal/domain/channel"

	"github.com/google/uuid"
)

type PostgresMembershipRepository struct {
	db DBTX
}

func NewMembershipRepository(db DBTX) MembershipRepository {
	return &PostgresMembershipRepository{db: db}
}

const membershipColumns = `participant_id, transaction_id, connection_id, joined_at, left_at, last_seen_at`

func (r *PostgresMembershipRepository) Upsert(ctx context.Context, m channel.Membership) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO channel_memberships (`+membershipColumns+`)
        VALUES ($1,$2,$3,$4,NULL,$5)
        ON CONFLICT (participant_id, transaction_id) DO UPDATE
        SET connection_id = EXCLUDED.connection_id,
            joined_at = CASE WHEN channel_memberships.left_at IS NULL THEN channel_memberships.joined_at ELSE EXCLUDED.joined_at END,
            left_at = NULL,
            last_seen_at = EXCLUDED.last_seen_at
    `, m.ParticipantID, m.TransactionID, m.ConnectionID, m.JoinedAt, m.LastSeenAt)
	return err
}

func (r *PostgresMembershipRepository) Get(ctx context.Context, participantID, transactionID uuid.UUID) (channel.Membership, error) {
	row := r.db.QueryRowContext(ctx, `
        SELECT `+membershipColumns+`
        FROM channel_memberships
        WHERE participant_id = $1 AND transaction_id = $2
    `, participantID, transactionID)
	m, err := scanMembership(row)
	return m, mapNoRows(err)
}

func (r *PostgresMembershipRepository) MarkLeft(ctx context.Context, participantID, transactionID uuid.UUID, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
        UPDATE channel_memberships
        SET left_at = $1, last_seen_at = $1
        WHERE participant_id = $2 AND transaction_id = $3 AND left_at IS NULL
    `, at, participantID, transactionID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *PostgresMembershipRepository) Touch(ctx context.Context, participantID, transactionID uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
        UPDATE channel_memberships SET last_seen_at = $1
        WHERE participant_id = $2 AND transaction_id = $3
    `, at, participantID, transactionID)
	return err
}

func (r *PostgresMembershipRepository) ListActiveByParticipant(ctx context.Context, participantID uuid.UUID) ([]channel.Membership, error) {
	return r.list(ctx, `
        SELECT `+membershipColumns+`
        FROM channel_memberships
        WHERE participant_id = $1 AND left_at IS NULL
        ORDER BY joined_at ASC
    `, participantID)
}

func (r *PostgresMembershipRepository) ListIdle(ctx context.Context, before time.Time, limit int) ([]channel.Membership, error) {
	return r.list(ctx, `
        SELECT `+membershipColumns+`
        FROM channel_memberships
        WHERE last_seen_at < $1
        ORDER BY last_seen_at ASC
        LIMIT $2
    `, before, limit)
}

func (r *PostgresMembershipRepository) Delete(ctx context.Context, participantID, transactionID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
        DELETE FROM channel_memberships WHERE participant_id = $1 AND transaction_id = $2
    `, participantID, transactionID)
	return err
}

func (r *PostgresMembershipRepository) list(ctx context.Context, query string, args ...interface{}) ([]channel.Membership, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []channel.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func scanMembership(row rowScanner) (channel.Membership, error) {
	var m channel.Membership
	err := row.Scan(&m.ParticipantID, &m.TransactionID, &m.ConnectionID, &m.JoinedAt, &m.LeftAt, &m.LastSeenAt)
	return m, err
}
