package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/appendix/internal/domain"
)

// SavePayload stores a factor payload under the response cache key.
func (s *Store) SavePayload(ctx context.Context, cacheKey string, p *domain.Payload, ttl time.Duration) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	if err := s.client.Set(ctx, FactorsKey(cacheKey), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache payload: %w", err)
	}
	return nil
}

// GetPayload retrieves a cached payload. A miss returns nil, nil.
func (s *Store) GetPayload(ctx context.Context, cacheKey string) (*domain.Payload, error) {
	data, err := s.client.Get(ctx, FactorsKey(cacheKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get cached payload: %w", err)
	}

	var p domain.Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return &p, nil
}

// FlushPayloads removes all cached payloads and returns how many were dropped.
// Keys under the prefix that are not payload keys are left alone.
func (s *Store) FlushPayloads(ctx context.Context) (int, error) {
	deleted := 0
	iter := s.client.Scan(ctx, 0, KeyPrefixFactors+"*", 0).Iterator()
	for iter.Next(ctx) {
		if !IsFactorsKey(iter.Val()) {
			continue
		}
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, fmt.Errorf("failed to delete cache key: %w", err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("failed to flush cache: %w", err)
	}
	return deleted, nil
}
