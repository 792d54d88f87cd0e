package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"dealdesk/internal/domain"
)

const maxPerUser = 200

type RedisStore struct {
	c *redis.Client
}

func NewRedisStore(addr, pass string, db int) *RedisStore {
	return &RedisStore{c: redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})}
}

func NewRedisStoreFromClient(c *redis.Client) *RedisStore {
	return &RedisStore{c: c}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.c.Ping(ctx).Err()
}

func key(userID int64) string {
	return fmt.Sprintf("notifications:%d", userID)
}

func (s *RedisStore) Publish(ctx context.Context, n domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	pipe := s.c.TxPipeline()
	pipe.LPush(ctx, key(n.UserID), b)
	pipe.LTrim(ctx, key(n.UserID), 0, maxPerUser-1)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) List(ctx context.Context, userID int64) ([]domain.Notification, error) {
	raw, err := s.c.LRange(ctx, key(userID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Notification, 0, len(raw))
	for _, item := range raw {
		var n domain.Notification
		if err := json.Unmarshal([]byte(item), &n); err != nil {
			return nil, fmt.Errorf("decode notification: %w", err)
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *RedisStore) MarkRead(ctx context.Context, userID int64, notificationID string) error {
	raw, err := s.c.LRange(ctx, key(userID), 0, -1).Result()
	if err != nil {
		return err
	}
	for i, item := range raw {
		var n domain.Notification
		if err := json.Unmarshal([]byte(item), &n); err != nil {
			continue
		}
		if n.ID != notificationID {
			continue
		}
		n.Read = true
		b, err := json.Marshal(n)
		if err != nil {
			return err
		}
		return s.c.LSet(ctx, key(userID), int64(i), b).Err()
	}
	return ErrNotificationNotFound
}

func (s *RedisStore) MarkAllRead(ctx context.Context, userID int64) error {
	raw, err := s.c.LRange(ctx, key(userID), 0, -1).Result()
	if err != nil {
		return err
	}
	for i, item := range raw {
		var n domain.Notification
		if err := json.Unmarshal([]byte(item), &n); err != nil {
			continue
		}
		if n.Read {
			continue
		}
		n.Read = true
		b, err := json.Marshal(n)
		if err != nil {
			return err
		}
		if err := s.c.LSet(ctx, key(userID), int64(i), b).Err(); err != nil {
			return err
		}
	}
	return nil
}
