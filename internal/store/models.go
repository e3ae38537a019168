// Package store persists model snapshots and analysis audit records.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"fraudshield/pkg/fraud"
)

// ModelStore persists exported model snapshots keyed by node id.
type ModelStore interface {
	Save(ctx context.Context, state fraud.ModelState) error
	Load(ctx context.Context, nodeID string) (fraud.ModelState, error)
	List(ctx context.Context) ([]string, error)
}

// ErrModelNotFound is returned when no snapshot exists for a node.
var ErrModelNotFound = fmt.Errorf("store: model not found")

// MemoryModelStore keeps snapshots in memory (for development and tests).
type MemoryModelStore struct {
	mu     sync.RWMutex
	states map[string]fraud.ModelState
}

func NewMemoryModelStore() *MemoryModelStore {
	return &MemoryModelStore{states: make(map[string]fraud.ModelState)}
}

func (s *MemoryModelStore) Save(_ context.Context, state fraud.ModelState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.NodeID] = state
	return nil
}

func (s *MemoryModelStore) Load(_ context.Context, nodeID string) (fraud.ModelState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[nodeID]
	if !ok {
		return fraud.ModelState{}, ErrModelNotFound
	}
	return state, nil
}

func (s *MemoryModelStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.states))
	for id := range s.states {
		ids = append(ids, id)
	}
	return ids, nil
}

// RedisModelStore keeps snapshots in Redis (production).
type RedisModelStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration // zero means no expiry
}

func NewRedisModelStore(config RedisConfig) *RedisModelStore {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	return &RedisModelStore{
		client:    client,
		keyPrefix: "fraudshield:model:",
		ttl:       config.TTL,
	}
}

func (s *RedisModelStore) Save(ctx context.Context, state fraud.ModelState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode model state: %w", err)
	}
	if err := s.client.Set(ctx, s.keyPrefix+state.NodeID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store model state: %w", err)
	}
	return nil
}

func (s *RedisModelStore) Load(ctx context.Context, nodeID string) (fraud.ModelState, error) {
	data, err := s.client.Get(ctx, s.keyPrefix+nodeID).Bytes()
	if err == redis.Nil {
		return fraud.ModelState{}, ErrModelNotFound
	}
	if err != nil {
		return fraud.ModelState{}, fmt.Errorf("failed to load model state: %w", err)
	}
	var state fraud.ModelState
	if err := json.Unmarshal(data, &state); err != nil {
		return fraud.ModelState{}, fmt.Errorf("failed to decode model state: %w", err)
	}
	return state, nil
}

func (s *RedisModelStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	iter := s.client.Scan(ctx, 0, s.keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, iter.Val()[len(s.keyPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan model keys: %w", err)
	}
	return ids, nil
}

func (s *RedisModelStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisModelStore) Close() error {
	return s.client.Close()
}
