package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"dealroom/config"
	"dealroom/internal/services"
	"dealroom/pkg/database"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "migrate",
		Short: "Dealroom database tool",
		Long:  "Applies the embedded schema, reports table status and seeds development data.",
	}

	root.AddCommand(upCmd())
	root.AddCommand(downCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(seedDevCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// withDB connects using the environment configuration and runs fn.
func withDB(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, db *sql.DB) error) error {
	cfg := config.LoadConfig()
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(ctx, cfg, db)
}

func upCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, func(ctx context.Context, _ *config.Config, db *sql.DB) error {
				if err := database.ApplyMigrations(ctx, db); err != nil {
					return err
				}
				fmt.Println("✓ Migrations applied")
				return nil
			})
		},
	}
}

func downCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations (drops every table)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("refusing to drop tables without --force")
			}
			return withDB(cmd, func(ctx context.Context, _ *config.Config, db *sql.DB) error {
				if err := database.RollbackMigrations(ctx, db); err != nil {
					return err
				}
				fmt.Println("✓ Migrations rolled back")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "confirm dropping all tables")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connection status and table row counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, func(ctx context.Context, _ *config.Config, db *sql.DB) error {
				if err := database.HealthCheck(ctx, db); err != nil {
					return err
				}
				fmt.Println("✓ Database connection is healthy")
				for _, table := range database.SeededTables {
					exists, err := database.TableExists(ctx, db, table)
					if err != nil {
						return err
					}
					if !exists {
						fmt.Printf("  %-22s missing\n", table)
						continue
					}
					count, err := database.GetTableCount(ctx, db, table)
					if err != nil {
						return err
					}
					fmt.Printf("  %-22s %d rows\n", table, count)
				}
				return nil
			})
		},
	}
}

func seedDevCmd() *cobra.Command {
	var (
		basePrice    string
		transactions int
		tokenTTL     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "seed-dev",
		Short: "Seed two participants with bookings and print their tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			price, err := decimal.NewFromString(basePrice)
			if err != nil {
				return fmt.Errorf("invalid --base-price: %w", err)
			}
			return withDB(cmd, func(ctx context.Context, cfg *config.Config, db *sql.DB) error {
				seedCfg := database.DefaultSeedConfig()
				seedCfg.BasePrice = price
				seedCfg.Transactions = transactions

				result, err := database.SeedDevelopment(ctx, db, seedCfg)
				if err != nil {
					return err
				}

				auth := services.NewAuthService(cfg.JWTSecret)
				clientToken, err := auth.IssueToken(result.ClientID, "CLIENT", tokenTTL)
				if err != nil {
					return err
				}
				providerToken, err := auth.IssueToken(result.ProviderID, "PROVIDER", tokenTTL)
				if err != nil {
					return err
				}

				fmt.Println("✓ Development data seeded")
				fmt.Printf("  client    %s\n  token     %s\n", result.ClientID, clientToken)
				fmt.Printf("  provider  %s\n  token     %s\n", result.ProviderID, providerToken)
				for _, id := range result.TransactionIDs {
					fmt.Printf("  transaction %s (base price %s)\n", id, price.StringFixed(2))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&basePrice, "base-price", "100.00", "base price of each seeded booking")
	cmd.Flags().IntVar(&transactions, "transactions", 2, "number of bookings to create")
	cmd.Flags().DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "lifetime of the printed tokens")
	return cmd
}
