package repository

import (
	"context"

	"dealroom/internal/domain/booking"
	dealroom_errors "dealroom/pkg/errors"

	"github.com/google/uuid"
)

// PostgresBookingRepository reads and confirms bookings in the marketplace
// transactions table.
type PostgresBookingRepository struct {
	db DBTX
}

func NewBookingRepository(db DBTX) BookingRepository {
	return &PostgresBookingRepository{db: db}
}

func (r *PostgresBookingRepository) GetTransaction(ctx context.Context, transactionID uuid.UUID) (booking.Transaction, error) {
	var t booking.Transaction
	err := r.db.QueryRowContext(ctx, `
        SELECT id, service_id, client_id, provider_id, base_price
        FROM transactions
        WHERE id = $1
    `, transactionID).Scan(&t.ID, &t.ServiceID, &t.ClientID, &t.ProviderID, &t.BasePrice)
	return t, mapNoRows(err)
}

func (r *PostgresBookingRepository) GetPartiesForTransaction(ctx context.Context, transactionID uuid.UUID) (booking.Parties, error) {
	var p booking.Parties
	err := r.db.QueryRowContext(ctx, `
        SELECT client_id, provider_id FROM transactions WHERE id = $1
    `, transactionID).Scan(&p.ParticipantA, &p.ParticipantB)
	return p, mapNoRows(err)
}

// ConfirmBooking keeps the first confirmation time so a redelivered event
// leaves the row unchanged.
func (r *PostgresBookingRepository) ConfirmBooking(ctx context.Context, c booking.Confirmation) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE transactions
        SET status = 'CONFIRMED',
            agreed_price = $1,
            confirmed_at = COALESCE(confirmed_at, NOW())
        WHERE id = $2
    `, c.FinalPrice, c.TransactionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return dealroom_errors.ErrNotFound
	}
	return nil
}
