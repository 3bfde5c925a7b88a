// Package redisstore persists tasks in Redis.
//
// Each task is a JSON string under <prefix><id>. A sorted set scored by
// expiry time indexes the tasks for DeleteExpired.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tjfontaine/formflow/internal/taskstore"
)

const defaultPrefix = "formflow:task:"

// Store is a Redis implementation of taskstore.Store.
type Store struct {
	client *redis.Client
	prefix string
	// grace keeps keys alive past expiry so Get can still report "expired".
	grace time.Duration
}

var _ taskstore.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithGrace sets how long keys outlive task expiry.
func WithGrace(d time.Duration) Option {
	return func(s *Store) { s.grace = d }
}

// New connects to addr.
func New(addr, password string, db int, opts ...Option) *Store {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	return NewFromClient(client, opts...)
}

// NewFromClient wraps an existing client.
func NewFromClient(client *redis.Client, opts ...Option) *Store {
	s := &Store{client: client, prefix: defaultPrefix, grace: time.Hour}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(id string) string { return s.prefix + id }
func (s *Store) index() string        { return s.prefix + "expiry" }

func (s *Store) ttl(task *taskstore.Task) time.Duration {
	if task.ExpiresAt.IsZero() {
		return 0
	}
	d := time.Until(task.ExpiresAt) + s.grace
	if d <= 0 {
		return time.Second
	}
	return d
}

func (s *Store) Create(ctx context.Context, task *taskstore.Task) error {
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.key(task.ID), data, s.ttl(task)).Result()
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	if !ok {
		return fmt.Errorf("task %s: %w", task.ID, taskstore.ErrExists)
	}

	score := float64(task.ExpiresAt.UnixMilli())
	if err := s.client.ZAdd(ctx, s.index(), redis.Z{Score: score, Member: task.ID}).Err(); err != nil {
		return fmt.Errorf("failed to index task: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*taskstore.Task, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("task %s: %w", id, taskstore.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	var task taskstore.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

func (s *Store) Update(ctx context.Context, task *taskstore.Task) error {
	task.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	ok, err := s.client.SetXX(ctx, s.key(task.ID), data, s.ttl(task)).Result()
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if !ok {
		return fmt.Errorf("task %s: %w", task.ID, taskstore.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	max := "(" + strconv.FormatInt(before.UnixMilli(), 10)
	ids, err := s.client.ZRangeByScore(ctx, s.index(), &redis.ZRangeBy{Min: "-inf", Max: max}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list expired tasks: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	members := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
		members[i] = id
	}

	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, s.index(), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to delete expired tasks: %w", err)
	}
	return int(del.Val()), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
