package screenstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"pdfchat/internal/model"
)

// RedisStore keeps screens as JSON values so several shell instances can
// serve the same viewer.
type RedisStore struct {
	client *redisv9.Client
	ttl    time.Duration
	prefix string
}

func NewRedisStore(client *redisv9.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		prefix: "pdfchat:screen:",
	}
}

func (s *RedisStore) Get(ctx context.Context, viewerID string) (*model.Screen, bool, error) {
	raw, err := s.client.Get(ctx, s.key(viewerID)).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get screen failed: %w", err)
	}

	screen, err := decodeScreen([]byte(raw))
	if err != nil {
		return nil, false, err
	}
	return screen, true, nil
}

func (s *RedisStore) Save(ctx context.Context, viewerID string, screen *model.Screen) error {
	payload, err := encodeScreen(screen)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(viewerID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set screen failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, viewerID string) error {
	if err := s.client.Del(ctx, s.key(viewerID)).Err(); err != nil {
		return fmt.Errorf("redis delete screen failed: %w", err)
	}
	return nil
}

func (s *RedisStore) key(viewerID string) string {
	return s.prefix + viewerID
}

func encodeScreen(screen *model.Screen) ([]byte, error) {
	payload, err := json.Marshal(screen)
	if err != nil {
		return nil, fmt.Errorf("marshal screen failed: %w", err)
	}
	return payload, nil
}

func decodeScreen(raw []byte) (*model.Screen, error) {
	var screen model.Screen
	if err := json.Unmarshal(raw, &screen); err != nil {
		return nil, fmt.Errorf("unmarshal cached screen failed: %w", err)
	}
	return &screen, nil
}
