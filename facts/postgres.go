package facts

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSource reads profile rows from the advisor schema. Claims stay
// derived-on-read; nothing here caches balances.
type PostgresSource struct {
	pool *pgxpool.Pool
}

func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

func (s *PostgresSource) Profile(ctx context.Context, userID string) (Snapshot, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	uid := normalize(userID)
	var snap Snapshot

	rows, err := conn.Query(ctx,
		`SELECT name, category, balance FROM profile_accounts WHERE user_id = $1 ORDER BY name`, uid)
	if err != nil {
		return Snapshot{}, fmt.Errorf("query accounts: %w", err)
	}
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.Name, &a.Category, &a.Balance); err != nil {
			rows.Close()
			return Snapshot{}, fmt.Errorf("scan account row: %w", err)
		}
		snap.Accounts = append(snap.Accounts, a)
	}
	rows.Close()
	if rows.Err() != nil {
		return Snapshot{}, fmt.Errorf("iterate account rows: %w", rows.Err())
	}

	rows, err = conn.Query(ctx,
		`SELECT name, balance, annual_rate, min_payment FROM profile_debts WHERE user_id = $1 ORDER BY name`, uid)
	if err != nil {
		return Snapshot{}, fmt.Errorf("query debts: %w", err)
	}
	for rows.Next() {
		var d Debt
		if err := rows.Scan(&d.Name, &d.Balance, &d.AnnualRate, &d.MinPayment); err != nil {
			rows.Close()
			return Snapshot{}, fmt.Errorf("scan debt row: %w", err)
		}
		snap.Debts = append(snap.Debts, d)
	}
	rows.Close()
	if rows.Err() != nil {
		return Snapshot{}, fmt.Errorf("iterate debt rows: %w", rows.Err())
	}

	err = conn.QueryRow(ctx,
		`SELECT monthly_income, monthly_expenses, retirement_goal FROM profile_cashflow WHERE user_id = $1`, uid).
		Scan(&snap.MonthlyIncome, &snap.MonthlyExpenses, &snap.RetirementGoal)
	if err != nil && err != pgx.ErrNoRows {
		return Snapshot{}, fmt.Errorf("query cashflow: %w", err)
	}

	if len(snap.Accounts) == 0 && len(snap.Debts) == 0 && err == pgx.ErrNoRows {
		return Snapshot{}, fmt.Errorf("no profile for user %s", userID)
	}
	return snap, nil
}

// SeedProfile replaces the stored rows for one user with the given snapshot.
// The CLI uses it to load the demo profile for end-to-end runs against a real
// database.
func SeedProfile(ctx context.Context, pool *pgxpool.Pool, userID string, snap Snapshot) error {
	uid := normalize(userID)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin seed transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"profile_accounts", "profile_debts", "profile_cashflow"} {
		if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE user_id = $1", table), uid); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, a := range snap.Accounts {
		if _, err := tx.Exec(ctx,
			`INSERT INTO profile_accounts (id, user_id, name, category, balance) VALUES ($1, $2, $3, $4, $5)`,
			uuid.NewString(), uid, a.Name, a.Category, a.Balance); err != nil {
			return fmt.Errorf("insert account %s: %w", a.Name, err)
		}
	}
	for _, d := range snap.Debts {
		if _, err := tx.Exec(ctx,
			`INSERT INTO profile_debts (id, user_id, name, balance, annual_rate, min_payment) VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.NewString(), uid, d.Name, d.Balance, d.AnnualRate, d.MinPayment); err != nil {
			return fmt.Errorf("insert debt %s: %w", d.Name, err)
		}
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO profile_cashflow (user_id, monthly_income, monthly_expenses, retirement_goal) VALUES ($1, $2, $3, $4)`,
		uid, snap.MonthlyIncome, snap.MonthlyExpenses, snap.RetirementGoal); err != nil {
		return fmt.Errorf("insert cashflow: %w", err)
	}

	return tx.Commit(ctx)
}

var _ Source = (*PostgresSource)(nil)
