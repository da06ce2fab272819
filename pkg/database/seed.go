package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SeedConfig holds configuration for seeding the database
type SeedConfig struct {
	ClientName   string
	ProviderName string
	BasePrice    decimal.Decimal
	Transactions int
}

// DefaultSeedConfig returns default seed configuration
func DefaultSeedConfig() *SeedConfig {
	return &SeedConfig{
		ClientName:   "Dev Client",
		ProviderName: "Dev Provider",
		BasePrice:    decimal.NewFromInt(100),
		Transactions: 2,
	}
}

// SeedResult contains the ids created by a seed run.
type SeedResult struct {
	ClientID       uuid.UUID
	ProviderID     uuid.UUID
	TransactionIDs []uuid.UUID
}

// SeedDevelopment creates a client, a provider and bookings between them
// so the service can be exercised end to end. Each run adds new rows.
func SeedDevelopment(ctx context.Context, db *sql.DB, cfg *SeedConfig) (*SeedResult, error) {
	if cfg == nil {
		cfg = DefaultSeedConfig()
	}
	if !cfg.BasePrice.IsPositive() {
		return nil, fmt.Errorf("seed base price must be positive, got %s", cfg.BasePrice)
	}

	result := &SeedResult{ClientID: uuid.New(), ProviderID: uuid.New()}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	users := []struct {
		id   uuid.UUID
		name string
		role string
	}{
		{result.ClientID, cfg.ClientName, "CLIENT"},
		{result.ProviderID, cfg.ProviderName, "PROVIDER"},
	}
	for _, u := range users {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, display_name, role) VALUES ($1, $2, $3)`,
			u.id, u.name, u.role); err != nil {
			return nil, fmt.Errorf("failed to seed user %s: %w", u.name, err)
		}
	}

	for i := 0; i < cfg.Transactions; i++ {
		id := uuid.New()
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO transactions (id, service_id, client_id, provider_id, base_price)
            VALUES ($1, $2, $3, $4, $5)`,
			id, uuid.New(), result.ClientID, result.ProviderID, cfg.BasePrice.StringFixed(2)); err != nil {
			return nil, fmt.Errorf("failed to seed transaction: %w", err)
		}
		result.TransactionIDs = append(result.TransactionIDs, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	log.Printf("Seeded %d transactions between %s and %s", len(result.TransactionIDs), result.ClientID, result.ProviderID)
	return result, nil
}

// SeededTables lists the tables reported by the status command.
var SeededTables = []string{
	"users",
	"transactions",
	"negotiations",
	"offers",
	"messages",
	"channel_memberships",
	"unread_counters",
	"outbox_events",
}
