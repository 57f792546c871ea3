package unlock

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arboretum/alert-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{primary: primary, rdb: rdb, ttl: ttl}
}

func (s *CachedStore) Record(ctx context.Context, rec model.UnlockRecord) (*model.UnlockRecord, error) {
	stored, err := s.primary.Record(ctx, rec)
	if err != nil {
		return nil, err
	}
	s.cacheRecord(ctx, stored)
	// Invalidate the per-wallet listing; next read re-populates.
	s.rdb.Del(ctx, walletKey(stored.UserWallet))
	return stored, nil
}

func (s *CachedStore) Get(ctx context.Context, opportunityID, wallet string) (*model.UnlockRecord, error) {
	data, err := s.rdb.Get(ctx, pairKey(opportunityID, wallet)).Bytes()
	if err == nil {
		var rec model.UnlockRecord
		if json.Unmarshal(data, &rec) == nil {
			return &rec, nil
		}
	}

	rec, err := s.primary.Get(ctx, opportunityID, wallet)
	if err != nil {
		return nil, err
	}
	s.cacheRecord(ctx, rec)
	return rec, nil
}

func (s *CachedStore) Exists(ctx context.Context, opportunityID, wallet string) (bool, error) {
	if s.rdb.Exists(ctx, pairKey(opportunityID, wallet)).Val() > 0 {
		return true, nil
	}
	return s.primary.Exists(ctx, opportunityID, wallet)
}

func (s *CachedStore) ByWallet(ctx context.Context, wallet string) ([]model.UnlockRecord, error) {
	data, err := s.rdb.Get(ctx, walletKey(normalizeWallet(wallet))).Bytes()
	if err == nil {
		var records []model.UnlockRecord
		if json.Unmarshal(data, &records) == nil {
			return records, nil
		}
	}

	records, err := s.primary.ByWallet(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(records); err == nil {
		s.rdb.Set(ctx, walletKey(normalizeWallet(wallet)), data, s.ttl)
	}
	return records, nil
}

func (s *CachedStore) cacheRecord(ctx context.Context, rec *model.UnlockRecord) {
	if data, err := json.Marshal(rec); err == nil {
		s.rdb.Set(ctx, pairKey(rec.OpportunityID, rec.UserWallet), data, s.ttl)
	}
}

func pairKey(opportunityID, wallet string) string {
	return fmt.Sprintf("unlock:%s:%s", opportunityID, normalizeWallet(wallet))
}

func walletKey(wallet string) string { return fmt.Sprintf("unlocks:%s", wallet) }
