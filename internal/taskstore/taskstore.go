// Package taskstore persists asynchronous extraction tasks.
package taskstore

import (
	"context"
	"errors"
	"time"

	"github.com/tjfontaine/formflow/internal/domain"
)

var (
	// ErrNotFound is returned when no task has the requested id.
	ErrNotFound = errors.New("task not found")

	// ErrExists is returned when creating a task whose id is taken.
	ErrExists = errors.New("task already exists")
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
)

// Terminal reports whether no further transitions happen.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusExpired
}

// Task is one asynchronous extraction.
type Task struct {
	ID          string         `json:"task_id"`
	FormID      string         `json:"form_code"`
	Utterance   string         `json:"utterance"`
	Status      Status         `json:"status"`
	Result      *domain.Result `json:"result,omitempty"`
	CallbackURL string         `json:"callback_url,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	ExpiresAt   time.Time      `json:"expires_at"`
}

// Expired reports whether the task is past its expiry at now.
func (t *Task) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// View returns a copy as clients should see it at now.
func (t *Task) View(now time.Time) *Task {
	v := *t
	if t.Expired(now) {
		v.Status = StatusExpired
	}
	return &v
}

// Store persists tasks. Implementations must be safe for concurrent use.
type Store interface {
	Create(ctx context.Context, task *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	Update(ctx context.Context, task *Task) error
	// DeleteExpired removes tasks whose expiry is before the given time and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
	Close() error
}
