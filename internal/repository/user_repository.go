package repository

import (
	"context"

	"dealroom/internal/domain/booking"

	"github.com/google/uuid"
)

type PostgresUserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) IdentityRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) Resolve(ctx context.Context, participantID uuid.UUID) (booking.Identity, error) {
	var id booking.Identity
	err := r.db.QueryRowContext(ctx, `
        SELECT id, display_name, role FROM users WHERE id = $1
    `, participantID).Scan(&id.ID, &id.Name, &id.Role)
	return id, mapNoRows(err)
}
