package redis

// Package redis provides Redis-based adapters for hrportal.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/peopleops/hrportal/internal/adapters/tokenstore"
)

// DefaultSlotTTL bounds how long an idle browser session keeps its credentials.
const DefaultSlotTTL = 12 * time.Hour

// SlotStore keeps credential slots in Redis under prefix+sid+":"+slot.
// Every write refreshes the key's TTL.
type SlotStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ tokenstore.SlotBackend = (*SlotStore)(nil)

// SlotStoreOptions configures a SlotStore.
type SlotStoreOptions struct {
	Prefix string
	TTL    time.Duration
}

// NewSlotStore creates a Redis-backed slot store.
func NewSlotStore(client redis.UniversalClient, opts SlotStoreOptions) *SlotStore {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "hrportal:slot:"
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultSlotTTL
	}
	return &SlotStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *SlotStore) key(sid, slot string) string {
	return s.prefix + sid + ":" + slot
}

// GetSlot implements tokenstore.SlotBackend.
func (s *SlotStore) GetSlot(ctx context.Context, sid, slot string) (string, bool, error) {
	if sid == "" {
		return "", false, nil
	}
	v, err := s.client.Get(ctx, s.key(sid, slot)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get slot: %w", err)
	}
	return v, true, nil
}

// SetSlot implements tokenstore.SlotBackend.
func (s *SlotStore) SetSlot(ctx context.Context, sid, slot, value string) error {
	if sid == "" {
		return errors.New("session id cannot be empty")
	}
	if err := s.client.Set(ctx, s.key(sid, slot), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set slot: %w", err)
	}
	return nil
}

// ClearSlot implements tokenstore.SlotBackend.
func (s *SlotStore) ClearSlot(ctx context.Context, sid, slot string) error {
	if sid == "" {
		return nil // Nothing to delete
	}
	if err := s.client.Del(ctx, s.key(sid, slot)).Err(); err != nil {
		return fmt.Errorf("redis del slot: %w", err)
	}
	return nil
}
