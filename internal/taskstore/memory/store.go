// Package memory is an in-process task store.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tjfontaine/formflow/internal/taskstore"
)

// Store keeps tasks in a map. Tasks are copied in and out so callers never
// share memory with the store.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*taskstore.Task
}

var _ taskstore.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{tasks: make(map[string]*taskstore.Task)}
}

func (s *Store) Create(ctx context.Context, task *taskstore.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("task %s: %w", task.ID, taskstore.ErrExists)
	}
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	c := *task
	s.tasks[task.ID] = &c
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*taskstore.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, exists := s.tasks[id]
	if !exists {
		return nil, fmt.Errorf("task %s: %w", id, taskstore.ErrNotFound)
	}
	c := *task
	return &c, nil
}

func (s *Store) Update(ctx context.Context, task *taskstore.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; !exists {
		return fmt.Errorf("task %s: %w", task.ID, taskstore.ErrNotFound)
	}
	task.UpdatedAt = time.Now().UTC()

	c := *task
	s.tasks[task.ID] = &c
	return nil
}

func (s *Store) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, task := range s.tasks {
		if task.ExpiresAt.Before(before) {
			delete(s.tasks, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) Close() error {
	return nil
}
