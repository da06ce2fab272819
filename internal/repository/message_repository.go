package repository

import (
	"context"

	"dealroom/internal/domain/message"

	"github.com/google/uuid"
)

type PostgresMessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) MessageRepository {
	return &PostgresMessageRepository{db: db}
}

const messageColumns = `id, transaction_id, from_id, to_id, body, client_message_id, sequence_number, created_at`

// Append bumps transaction_sequences and inserts the message in one
// transaction. The sequence row lock serializes appends per transaction
// across instances, and a rollback releases the number so no gap appears.
func (r *PostgresMessageRepository) Append(ctx context.Context, m *message.Message) (bool, error) {
	if m.ClientMessageID.Valid {
		existing, err := r.getByClientMessageID(ctx, r.db, m.TransactionID, m.ClientMessageID.String)
		if err == nil {
			*m = existing
			return false, nil
		}
	}

	err := WithTx(ctx, r.db, func(tx DBTX) error {
		var seq int64
		if err := tx.QueryRowContext(ctx, `
        INSERT INTO transaction_sequences (transaction_id, last_sequence)
        VALUES ($1, 1)
        ON CONFLICT (transaction_id) DO UPDATE SET last_sequence = transaction_sequences.last_sequence + 1
        RETURNING last_sequence
    `, m.TransactionID).Scan(&seq); err != nil {
			return err
		}
		m.SequenceNumber = seq
		_, err := tx.ExecContext(ctx, `
        INSERT INTO messages (`+messageColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
    `, m.ID, m.TransactionID, m.FromID, m.ToID, m.Body, m.ClientMessageID, m.SequenceNumber, m.CreatedAt)
		return err
	})
	if err != nil {
		// Lost a race with a concurrent resend of the same client id.
		if isUniqueViolation(err) && m.ClientMessageID.Valid {
			existing, getErr := r.getByClientMessageID(ctx, r.db, m.TransactionID, m.ClientMessageID.String)
			if getErr != nil {
				return false, getErr
			}
			*m = existing
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *PostgresMessageRepository) ListSince(ctx context.Context, transactionID uuid.UUID, sinceSequence int64, limit int) ([]message.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT `+messageColumns+`
        FROM messages
        WHERE transaction_id = $1 AND sequence_number > $2
        ORDER BY sequence_number ASC
        LIMIT $3
    `, transactionID, sinceSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []message.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (r *PostgresMessageRepository) Latest(ctx context.Context, transactionID uuid.UUID) (message.Message, error) {
	row := r.db.QueryRowContext(ctx, `
        SELECT `+messageColumns+`
        FROM messages
        WHERE transaction_id = $1
        ORDER BY sequence_number DESC
        LIMIT 1
    `, transactionID)
	m, err := scanMessage(row)
	return m, mapNoRows(err)
}

func (r *PostgresMessageRepository) CountForRecipientSince(ctx context.Context, transactionID, recipientID uuid.UUID, sinceSequence int64) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM messages
        WHERE transaction_id = $1 AND to_id = $2 AND sequence_number > $3
    `, transactionID, recipientID, sinceSequence).Scan(&count)
	return count, err
}

func (r *PostgresMessageRepository) getByClientMessageID(ctx context.Context, db DBTX, transactionID uuid.UUID, clientMessageID string) (message.Message, error) {
	row := db.QueryRowContext(ctx, `
        SELECT `+messageColumns+`
        FROM messages
        WHERE transaction_id = $1 AND client_message_id = $2
    `, transactionID, clientMessageID)
	m, err := scanMessage(row)
	return m, mapNoRows(err)
}

func scanMessage(row rowScanner) (message.Message, error) {
	var m message.Message
	err := row.Scan(&m.ID, &m.TransactionID, &m.FromID, &m.ToID, &m.Body, &m.ClientMessageID, &m.SequenceNumber, &m.CreatedAt)
	return m, err
}
