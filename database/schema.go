package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureAdvisorSchema creates the tables the advisor reads and writes: the
// user-scoped profile document index and the structured profile rows the
// fact provider derives claims from. The embedding column is nullable so the
// index keeps working when no embedding model is configured.
func EnsureAdvisorSchema(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}

	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS profile_documents (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			category TEXT,
			title TEXT,
			kb_id TEXT,
			content TEXT NOT NULL,
			embedding VECTOR(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, dimension),
		"CREATE INDEX IF NOT EXISTS idx_profile_documents_user ON profile_documents(user_id)",
		"CREATE INDEX IF NOT EXISTS idx_profile_documents_embedding ON profile_documents USING ivfflat (embedding vector_l2_ops)",
		`CREATE TABLE IF NOT EXISTS profile_accounts (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			category TEXT NOT NULL,
			balance NUMERIC NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		"CREATE INDEX IF NOT EXISTS idx_profile_accounts_user ON profile_accounts(user_id)",
		`CREATE TABLE IF NOT EXISTS profile_debts (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			balance NUMERIC NOT NULL,
			annual_rate DOUBLE PRECISION NOT NULL,
			min_payment NUMERIC NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		"CREATE INDEX IF NOT EXISTS idx_profile_debts_user ON profile_debts(user_id)",
		`CREATE TABLE IF NOT EXISTS profile_cashflow (
			user_id TEXT PRIMARY KEY,
			monthly_income NUMERIC NOT NULL DEFAULT 0,
			monthly_expenses NUMERIC NOT NULL DEFAULT 0,
			retirement_goal NUMERIC NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}

	return nil
}
