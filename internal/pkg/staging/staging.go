package staging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrNotFound 暂存数据不存在或已过期
var ErrNotFound = errors.New("staged data not found or expired")

// Store 带过期时间的 Redis 暂存区，注册信息在付款完成前保存在这里
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewStore(client *redis.Client, prefix string, ttl time.Duration) *Store {
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

// NewID 生成暂存 ID
func NewID() string {
	return uuid.NewString()
}

// TTL 暂存有效期
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Put 写入暂存数据，返回过期时间
func (s *Store) Put(ctx context.Context, id string, v interface{}) (time.Time, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to marshal staged data: %w", err)
	}
	if err := s.client.Set(ctx, s.key(id), data, s.ttl).Err(); err != nil {
		return time.Time{}, fmt.Errorf("failed to stage data: %w", err)
	}
	return time.Now().UTC().Add(s.ttl), nil
}

// Get 读取暂存数据
func (s *Store) Get(ctx context.Context, id string, v interface{}) error {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	return s.decode(data, err, v)
}

// Take 读取并删除，保证同一份暂存只被消费一次
func (s *Store) Take(ctx context.Context, id string, v interface{}) error {
	data, err := s.client.GetDel(ctx, s.key(id)).Bytes()
	return s.decode(data, err, v)
}

// Delete 删除暂存数据
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

func (s *Store) decode(data []byte, err error, v interface{}) error {
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load staged data: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal staged data: %w", err)
	}
	return nil
}

func (s *Store) key(id string) string {
	return s.prefix + id
}
