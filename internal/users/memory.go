package users

import (
	"context"
	"sync"

	"github.com/arboretum/alert-engine/internal/model"
)

// MemoryDirectory implements Directory with an in-memory map.
type MemoryDirectory struct {
	mu       sync.RWMutex
	profiles map[string]*model.RiskProfile
}

// NewMemoryDirectory creates an empty in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{profiles: make(map[string]*model.RiskProfile)}
}

// Put adds or replaces a profile.
func (d *MemoryDirectory) Put(profile *model.RiskProfile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy := *profile
	d.profiles[profile.UserID] = &copy
}

func (d *MemoryDirectory) User(_ context.Context, userID string) (*model.RiskProfile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *p
	return &copy, nil
}
