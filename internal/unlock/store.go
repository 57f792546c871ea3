// Package unlock persists which opportunities a wallet has unlocked.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package unlock

import (
	"context"
	"errors"
	"strings"

	"github.com/arboretum/alert-engine/internal/model"
)

// ErrNotFound is returned when no record exists for an (opportunity, wallet)
// pair.
var ErrNotFound = errors.New("unlock: record not found")

// Store is the unlock-record persistence interface. Record is idempotent:
// at most one record exists per (opportunity, wallet) pair, and recording an
// existing pair returns the original record with its original timestamp.
type Store interface {
	Record(ctx context.Context, rec model.UnlockRecord) (*model.UnlockRecord, error)
	Get(ctx context.Context, opportunityID, wallet string) (*model.UnlockRecord, error)
	Exists(ctx context.Context, opportunityID, wallet string) (bool, error)
	ByWallet(ctx context.Context, wallet string) ([]model.UnlockRecord, error)
}

// normalizeWallet lowercases wallet addresses so lookups are case-insensitive.
func normalizeWallet(wallet string) string {
	return strings.ToLower(wallet)
}
