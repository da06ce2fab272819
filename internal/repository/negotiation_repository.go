package repository

import (
	"context"
	"time"

	"dealroom/internal/domain/negotiation"
	"dealroom/internal/domain/outbox"
	dealroom_errors "dealroom/pkg/errors"

	"github.com/google/uuid"
)

const activeNegotiationIndex = "negotiations_active_per_transaction"

type PostgresNegotiationRepository struct {
	db DBTX
}

func NewNegotiationRepository(db DBTX) NegotiationRepository {
	return &PostgresNegotiationRepository{db: db}
}

const negotiationColumns = `id, transaction_id, service_id, initiator_id, counterparty_id, base_price, min_allowed, max_allowed,
        status, current_offer_id, final_price, version, created_at, updated_at, expires_at`

func (r *PostgresNegotiationRepository) Create(ctx context.Context, agg *negotiation.Aggregate, events []outbox.OutboxEvent) error {
	n := agg.Negotiation
	err := WithTx(ctx, r.db, func(tx DBTX) error {
		_, err := tx.ExecContext(ctx, `
        INSERT INTO negotiations (`+negotiationColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
    `,
			n.ID, n.TransactionID, n.ServiceID, n.InitiatorID, n.CounterpartyID,
			n.BasePrice, n.MinAllowed, n.MaxAllowed, n.Status, n.CurrentOfferID,
			n.FinalPrice, n.Version, n.CreatedAt, n.UpdatedAt, n.ExpiresAt,
		)
		if err != nil {
			return err
		}
		for _, o := range agg.Offers {
			if err := insertOffer(ctx, tx, o); err != nil {
				return err
			}
		}
		return insertOutboxEvents(ctx, tx, events)
	})
	if isUniqueViolation(err) && constraintName(err) == activeNegotiationIndex {
		return dealroom_errors.ErrNegotiationExists
	}
	return err
}

func (r *PostgresNegotiationRepository) GetByID(ctx context.Context, id uuid.UUID) (*negotiation.Aggregate, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+negotiationColumns+` FROM negotiations WHERE id = $1`, id)
	return r.load(ctx, row)
}

func (r *PostgresNegotiationRepository) GetLatestByTransaction(ctx context.Context, transactionID uuid.UUID) (*negotiation.Aggregate, error) {
	row := r.db.QueryRowContext(ctx, `
        SELECT `+negotiationColumns+`
        FROM negotiations
        WHERE transaction_id = $1
        ORDER BY created_at DESC
        LIMIT 1
    `, transactionID)
	return r.load(ctx, row)
}

func (r *PostgresNegotiationRepository) Update(ctx context.Context, agg *negotiation.Aggregate, expectedVersion int64, newOffers []negotiation.Offer, events []outbox.OutboxEvent) error {
	n := agg.Negotiation
	return WithTx(ctx, r.db, func(tx DBTX) error {
		res, err := tx.ExecContext(ctx, `
        UPDATE negotiations
        SET status = $1, current_offer_id = $2, final_price = $3, version = $4, updated_at = $5, expires_at = $6
        WHERE id = $7 AND version = $8
    `, n.Status, n.CurrentOfferID, n.FinalPrice, n.Version, n.UpdatedAt, n.ExpiresAt, n.ID, expectedVersion)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return dealroom_errors.ErrNegotiationConflict
		}

		for _, o := range newOffers {
			if _, err := tx.ExecContext(ctx, `
        UPDATE offers SET superseded_by = $1
        WHERE negotiation_id = $2 AND position = $3 AND superseded_by IS NULL
    `, o.ID, o.NegotiationID, o.Position-1); err != nil {
				return err
			}
			if err := insertOffer(ctx, tx, o); err != nil {
				if isUniqueViolation(err) {
					return dealroom_errors.ErrNegotiationConflict
				}
				return err
			}
		}
		return insertOutboxEvents(ctx, tx, events)
	})
}

func (r *PostgresNegotiationRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT id FROM negotiations
        WHERE status IN ('open', 'countered') AND expires_at < $1
        ORDER BY expires_at ASC
        LIMIT $2
    `, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *PostgresNegotiationRepository) load(ctx context.Context, row rowScanner) (*negotiation.Aggregate, error) {
	var n negotiation.Negotiation
	if err := row.Scan(
		&n.ID, &n.TransactionID, &n.ServiceID, &n.InitiatorID, &n.CounterpartyID,
		&n.BasePrice, &n.MinAllowed, &n.MaxAllowed, &n.Status, &n.CurrentOfferID,
		&n.FinalPrice, &n.Version, &n.CreatedAt, &n.UpdatedAt, &n.ExpiresAt,
	); err != nil {
		return nil, mapNoRows(err)
	}

	rows, err := r.db.QueryContext(ctx, `
        SELECT id, negotiation_id, position, proposed_by, amount, message, created_at, superseded_by
        FROM offers
        WHERE negotiation_id = $1
        ORDER BY position ASC
    `, n.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	agg := &negotiation.Aggregate{Negotiation: n}
	for rows.Next() {
		var o negotiation.Offer
		if err := rows.Scan(&o.ID, &o.NegotiationID, &o.Position, &o.ProposedBy, &o.Amount, &o.Message, &o.CreatedAt, &o.SupersededBy); err != nil {
			return nil, err
		}
		agg.Offers = append(agg.Offers, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return agg, nil
}

func insertOffer(ctx context.Context, tx DBTX, o negotiation.Offer) error {
	_, err := tx.ExecContext(ctx, `
        INSERT INTO offers (id, negotiation_id, position, proposed_by, amount, message, created_at, superseded_by)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
    `, o.ID, o.NegotiationID, o.Position, o.ProposedBy, o.Amount, o.Message, o.CreatedAt, o.SupersededBy)
	return err
}
