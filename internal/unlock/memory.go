package unlock

import (
	"context"
	"sync"

	"github.com/arboretum/alert-engine/internal/model"
)

// MemoryStore implements Store with an in-memory map. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]model.UnlockRecord // key: opportunityID + "|" + wallet
}

// NewMemoryStore creates a new in-memory unlock store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]model.UnlockRecord)}
}

func recordKey(opportunityID, wallet string) string {
	return opportunityID + "|" + normalizeWallet(wallet)
}

func (s *MemoryStore) Record(_ context.Context, rec model.UnlockRecord) (*model.UnlockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.UserWallet = normalizeWallet(rec.UserWallet)
	key := recordKey(rec.OpportunityID, rec.UserWallet)
	if existing, ok := s.records[key]; ok {
		out := existing
		return &out, nil
	}
	s.records[key] = rec
	out := rec
	return &out, nil
}

func (s *MemoryStore) Get(_ context.Context, opportunityID, wallet string) (*model.UnlockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[recordKey(opportunityID, wallet)]
	if !ok {
		return nil, ErrNotFound
	}
	out := rec
	return &out, nil
}

func (s *MemoryStore) Exists(ctx context.Context, opportunityID, wallet string) (bool, error) {
	_, err := s.Get(ctx, opportunityID, wallet)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *MemoryStore) ByWallet(_ context.Context, wallet string) ([]model.UnlockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wallet = normalizeWallet(wallet)
	var out []model.UnlockRecord
	for _, rec := range s.records {
		if rec.UserWallet == wallet {
			out = append(out, rec)
		}
	}
	return out, nil
}
