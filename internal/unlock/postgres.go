package unlock

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/arboretum/alert-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Payment amounts are stored as NUMERIC for exact decimal precision, and the
// (opportunity_id, user_wallet) pair carries a unique constraint so Record
// stays idempotent under concurrent writers.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed unlock store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Record(ctx context.Context, rec model.UnlockRecord) (*model.UnlockRecord, error) {
	rec.UserWallet = normalizeWallet(rec.UserWallet)

	// ON CONFLICT DO NOTHING, then read back: the stored row (original
	// timestamp included) wins over the attempted insert.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO unlock_records (opportunity_id, user_wallet, payment_hash, unlocked_at, payment_amount)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC)
		 ON CONFLICT (opportunity_id, user_wallet) DO NOTHING`,
		rec.OpportunityID, rec.UserWallet, rec.PaymentHash, rec.UnlockedAt, rec.PaymentAmount.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("record unlock %s/%s: %w", rec.OpportunityID, rec.UserWallet, err)
	}
	return s.Get(ctx, rec.OpportunityID, rec.UserWallet)
}

func (s *PostgresStore) Get(ctx context.Context, opportunityID, wallet string) (*model.UnlockRecord, error) {
	var rec model.UnlockRecord
	var amount string

	err := s.pool.QueryRow(ctx,
		`SELECT opportunity_id, user_wallet, payment_hash, unlocked_at, payment_amount::TEXT
		 FROM unlock_records WHERE opportunity_id = $1 AND user_wallet = $2`,
		opportunityID, normalizeWallet(wallet)).
		Scan(&rec.OpportunityID, &rec.UserWallet, &rec.PaymentHash, &rec.UnlockedAt, &amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get unlock %s/%s: %w", opportunityID, wallet, err)
	}

	rec.PaymentAmount, _ = decimal.NewFromString(amount)
	return &rec, nil
}

func (s *PostgresStore) Exists(ctx context.Context, opportunityID, wallet string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM unlock_records WHERE opportunity_id = $1 AND user_wallet = $2)`,
		opportunityID, normalizeWallet(wallet)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check unlock %s/%s: %w", opportunityID, wallet, err)
	}
	return exists, nil
}

func (s *PostgresStore) ByWallet(ctx context.Context, wallet string) ([]model.UnlockRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT opportunity_id, user_wallet, payment_hash, unlocked_at, payment_amount::TEXT
		 FROM unlock_records WHERE user_wallet = $1 ORDER BY unlocked_at`,
		normalizeWallet(wallet))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.UnlockRecord
	for rows.Next() {
		var rec model.UnlockRecord
		var amount string
		if err := rows.Scan(&rec.OpportunityID, &rec.UserWallet, &rec.PaymentHash, &rec.UnlockedAt, &amount); err != nil {
			return nil, err
		}
		rec.PaymentAmount, _ = decimal.NewFromString(amount)
		records = append(records, rec)
	}
	return records, rows.Err()
}
