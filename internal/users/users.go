// Package users provides read access to user risk profiles, the settings
// consulted on every broadcast. Implementations include PostgreSQL and
// in-memory (for testing and demo mode).
package users

import (
	"context"
	"errors"

	"github.com/arboretum/alert-engine/internal/model"
)

// ErrNotFound is returned when no profile exists for a user identity.
var ErrNotFound = errors.New("users: not found")

// Directory resolves user identities to risk profiles.
type Directory interface {
	User(ctx context.Context, userID string) (*model.RiskProfile, error)
}
