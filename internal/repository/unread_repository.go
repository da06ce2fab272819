package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"dealroom/internal/domain/unread"

	"github.com/google/uuid"
)

type PostgresUnreadRepository struct {
	db DBTX
}

func NewUnreadRepository(db DBTX) UnreadRepository {
	return &PostgresUnreadRepository{db: db}
}

const unreadColumns = `participant_id, transaction_id, count, last_read_sequence, updated_at`

func (r *PostgresUnreadRepository) Get(ctx context.Context, participantID, transactionID uuid.UUID) (unread.Counter, error) {
	row := r.db.QueryRowContext(ctx, `
        SELECT `+unreadColumns+`
        FROM unread_counters
        WHERE participant_id = $1 AND transaction_id = $2
    `, participantID, transactionID)
	c, err := scanCounter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return unread.Counter{ParticipantID: participantID, TransactionID: transactionID}, nil
	}
	return c, err
}

func (r *PostgresUnreadRepository) Increment(ctx context.Context, participantID, transactionID uuid.UUID, sequence int64, at time.Time) (unread.Counter, error) {
	row := r.db.QueryRowContext(ctx, `
        INSERT INTO unread_counters (`+unreadColumns+`)
        VALUES ($1, $2, 1, 0, $3)
        ON CONFLICT (participant_id, transaction_id) DO UPDATE
        SET count = unread_counters.count + CASE WHEN $4 > unread_counters.last_read_sequence THEN 1 ELSE 0 END,
            updated_at = EXCLUDED.updated_at
        RETURNING `+unreadColumns+`
    `, participantID, transactionID, at, sequence)
	return scanCounter(row)
}

func (r *PostgresUnreadRepository) MarkRead(ctx context.Context, participantID, transactionID uuid.UUID, sequence int64, at time.Time) (unread.Counter, error) {
	row := r.db.QueryRowContext(ctx, `
        INSERT INTO unread_counters (`+unreadColumns+`)
        VALUES ($1, $2, 0, $3, $4)
        ON CONFLICT (participant_id, transaction_id) DO UPDATE
        SET count = 0,
            last_read_sequence = GREATEST(unread_counters.last_read_sequence, EXCLUDED.last_read_sequence),
            updated_at = EXCLUDED.updated_at
        RETURNING `+unreadColumns+`
    `, participantID, transactionID, sequence, at)
	return scanCounter(row)
}

func (r *PostgresUnreadRepository) Set(ctx context.Context, c unread.Counter) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO unread_counters (`+unreadColumns+`)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (participant_id, transaction_id) DO UPDATE
        SET count = EXCLUDED.count,
            last_read_sequence = EXCLUDED.last_read_sequence,
            updated_at = EXCLUDED.updated_at
    `, c.ParticipantID, c.TransactionID, c.Count, c.LastReadSequence, c.UpdatedAt)
	return err
}

func (r *PostgresUnreadRepository) ListNonZero(ctx context.Context, participantID uuid.UUID) ([]unread.Counter, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT `+unreadColumns+`
        FROM unread_counters
        WHERE participant_id = $1 AND count > 0
        ORDER BY updated_at DESC
    `, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []unread.Counter
	for rows.Next() {
		c, err := scanCounter(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func scanCounter(row rowScanner) (unread.Counter, error) {
	var c unread.Counter
	err := row.Scan(&c.ParticipantID, &c.TransactionID, &c.Count, &c.LastReadSequence, &c.UpdatedAt)
	return c, err
}
