package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/arboretum/alert-engine/internal/model"
)

// PostgresDirectory implements Directory against the users table. Monetary
// limits are NUMERIC columns scanned as TEXT into decimals.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory creates a PostgreSQL-backed directory.
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

func (d *PostgresDirectory) User(ctx context.Context, userID string) (*model.RiskProfile, error) {
	var p model.RiskProfile
	var maxRisk, dailyLimit, minBalance, profitThreshold string

	err := d.pool.QueryRow(ctx,
		`SELECT user_id, email, wallet_address,
		        max_risk_per_trade::TEXT, daily_risk_limit::TEXT,
		        min_account_balance::TEXT, profit_threshold::TEXT,
		        auto_execution_enabled, is_active, created_at
		 FROM users WHERE user_id = $1 AND is_active`, userID).
		Scan(&p.UserID, &p.Email, &p.WalletAddress,
			&maxRisk, &dailyLimit,
			&minBalance, &profitThreshold,
			&p.AutoExecutionEnabled, &p.IsActive, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}

	p.MaxRiskPerTrade, _ = decimal.NewFromString(maxRisk)
	p.DailyRiskLimit, _ = decimal.NewFromString(dailyLimit)
	p.MinAccountBalance, _ = decimal.NewFromString(minBalance)
	p.ProfitThreshold, _ = decimal.NewFromString(profitThreshold)

	return &p, nil
}
