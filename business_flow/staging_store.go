package businessflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/amirphl/specialist-referral/repository"
	"github.com/amirphl/specialist-referral/utils"
	"github.com/redis/go-redis/v9"
)

// Staging is a provisional increment waiting for the operator to confirm it
type Staging struct {
	ID               string            `json:"id"`
	Period           repository.Period `json:"period"`
	SpecialistName   string            `json:"specialist_name"`
	CurrentTotal     int64             `json:"current_total"`
	ProvisionalTotal int64             `json:"provisional_total"` // display only
	State            WorkflowState     `json:"state"`
	OperatorID       uint              `json:"operator_id,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	ExpiresAt        time.Time         `json:"expires_at"`
}

// StagingStore keeps stagings between the stage and confirm requests
type StagingStore interface {
	Put(ctx context.Context, staging *Staging, ttl time.Duration) error
	Get(ctx context.Context, id string) (*Staging, error)
	// Take reads and removes a staging in one step. Only one caller gets it.
	Take(ctx context.Context, id string) (*Staging, error)
}

// StagingCache is the part of the Redis client the staging store needs
type StagingCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisStagingStore stores stagings as JSON with a TTL
type RedisStagingStore struct {
	rc     StagingCache
	prefix string
}

func NewRedisStagingStore(rc StagingCache, prefix string) *RedisStagingStore {
	return &RedisStagingStore{rc: rc, prefix: prefix}
}

func (s *RedisStagingStore) key(id string) string {
	return s.prefix + "staging:" + id
}

func (s *RedisStagingStore) Put(ctx context.Context, staging *Staging, ttl time.Duration) error {
	bs, err := json.Marshal(staging)
	if err != nil {
		return fmt.Errorf("failed to marshal staging: %w", err)
	}
	if err := s.rc.Set(ctx, s.key(staging.ID), bs, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStagingStoreFailed, err)
	}
	return nil
}

func (s *RedisStagingStore) Get(ctx context.Context, id string) (*Staging, error) {
	return s.decode(id, s.rc.Get(ctx, s.key(id)))
}

func (s *RedisStagingStore) Take(ctx context.Context, id string) (*Staging, error) {
	return s.decode(id, s.rc.GetDel(ctx, s.key(id)))
}

func (s *RedisStagingStore) decode(id string, cmd *redis.StringCmd) (*Staging, error) {
	bs, err := cmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrStagingNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStagingStoreFailed, err)
	}

	var staging Staging
	if err := json.Unmarshal(bs, &staging); err != nil {
		return nil, fmt.Errorf("failed to decode staging %s: %w", id, err)
	}
	return &staging, nil
}

// MemoryStagingStore is used when the cache is disabled. Stagings live only in
// this process, so it suits a single replica.
type MemoryStagingStore struct {
	mu    sync.Mutex
	items map[string]Staging
}

func NewMemoryStagingStore() *MemoryStagingStore {
	return &MemoryStagingStore{items: make(map[string]Staging)}
}

func (s *MemoryStagingStore) Put(_ context.Context, staging *Staging, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()
	copied := *staging
	if ttl > 0 {
		copied.ExpiresAt = utils.UTCNowAdd(ttl)
	}
	s.items[staging.ID] = copied
	return nil
}

func (s *MemoryStagingStore) Get(_ context.Context, id string) (*Staging, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(id)
}

func (s *MemoryStagingStore) Take(_ context.Context, id string) (*Staging, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	staging, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	delete(s.items, id)
	return staging, nil
}

// lookup returns a live staging; callers hold mu
func (s *MemoryStagingStore) lookup(id string) (*Staging, error) {
	staging, ok := s.items[id]
	if !ok {
		return nil, ErrStagingNotFound
	}
	if !staging.ExpiresAt.IsZero() && utils.IsExpired(staging.ExpiresAt) {
		delete(s.items, id)
		return nil, ErrStagingNotFound
	}
	return &staging, nil
}

// sweep drops expired entries; callers hold mu
func (s *MemoryStagingStore) sweep() {
	for id, staging := range s.items {
		if !staging.ExpiresAt.IsZero() && utils.IsExpired(staging.ExpiresAt) {
			delete(s.items, id)
		}
	}
}
