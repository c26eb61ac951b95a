package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultCacheTTL applies when NewCachedStore is given a non-positive ttl.
const DefaultCacheTTL = 5 * time.Minute

// CachedStore wraps a Store with read-through Redis caching for services,
// medicines and lab tests. Patients and doctors are always read from the
// underlying store. Redis failures degrade to uncached reads.
type CachedStore struct {
	next   Store
	rdb    redis.Cmdable
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachedStore(next Store, rdb redis.Cmdable, ttl time.Duration, logger zerolog.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedStore{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func serviceKey(id uuid.UUID) string  { return "catalog:service:" + id.String() }
func medicineKey(id uuid.UUID) string { return "catalog:medicine:" + id.String() }
func labTestKey(id uuid.UUID) string  { return "catalog:lab_test:" + id.String() }

func (s *CachedStore) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.next.GetPatient(ctx, id)
}

func (s *CachedStore) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.next.GetDoctor(ctx, id)
}

func (s *CachedStore) GetService(ctx context.Context, id uuid.UUID) (*ClinicService, error) {
	key := serviceKey(id)
	var cached ClinicService
	if s.load(ctx, key, &cached) {
		return &cached, nil
	}

	svc, err := s.next.GetService(ctx, id)
	if err != nil {
		return nil, err
	}
	s.store(ctx, map[string]interface{}{key: svc})
	return svc, nil
}

func (s *CachedStore) GetMedicines(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Medicine, error) {
	return getMany(ctx, s, ids, medicineKey, s.next.GetMedicines)
}

func (s *CachedStore) GetLabTests(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*LabTest, error) {
	return getMany(ctx, s, ids, labTestKey, s.next.GetLabTests)
}

// getMany serves ids from a single MGET and fetches only the misses.
func getMany[T any](
	ctx context.Context,
	s *CachedStore,
	ids []uuid.UUID,
	keyFn func(uuid.UUID) string,
	fetch func(context.Context, []uuid.UUID) (map[uuid.UUID]*T, error),
) (map[uuid.UUID]*T, error) {
	out := make(map[uuid.UUID]*T, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyFn(id)
	}

	var missing []uuid.UUID
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		s.logger.Warn().Err(err).Msg("catalog cache read failed")
		missing = ids
	} else {
		for i, v := range vals {
			str, ok := v.(string)
			if !ok {
				missing = append(missing, ids[i])
				continue
			}
			var item T
			if err := json.Unmarshal([]byte(str), &item); err != nil {
				missing = append(missing, ids[i])
				continue
			}
			out[ids[i]] = &item
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := fetch(ctx, missing)
	if err != nil {
		return nil, err
	}
	entries := make(map[string]interface{}, len(fetched))
	for id, item := range fetched {
		out[id] = item
		entries[keyFn(id)] = item
	}
	s.store(ctx, entries)
	return out, nil
}

func (s *CachedStore) load(ctx context.Context, key string, dst interface{}) bool {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("catalog cache read failed")
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("discarding malformed cache entry")
		return false
	}
	return true
}

func (s *CachedStore) store(ctx context.Context, entries map[string]interface{}) {
	if len(entries) == 0 {
		return
	}
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for key, v := range entries {
			data, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("marshal %s: %w", key, err)
			}
			p.Set(ctx, key, data, s.ttl)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Int("entries", len(entries)).Msg("catalog cache write failed")
	}
}
