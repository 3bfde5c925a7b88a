// Package storetest holds the behavior every taskstore.Store must share.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tjfontaine/formflow/internal/domain"
	"github.com/tjfontaine/formflow/internal/taskstore"
)

func newTask(expires time.Time) *taskstore.Task {
	return &taskstore.Task{
		ID:          uuid.NewString(),
		FormID:      "expense_claim",
		Utterance:   "taxi to the airport, 45 dollars",
		Status:      taskstore.StatusPending,
		CallbackURL: "https://hooks.example.com/formflow",
		ExpiresAt:   expires.UTC().Truncate(time.Millisecond),
	}
}

// RunContract exercises store against the taskstore.Store contract.
func RunContract(t *testing.T, store taskstore.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		task := newTask(time.Now().Add(24 * time.Hour))
		require.NoError(t, store.Create(ctx, task))
		assert.False(t, task.CreatedAt.IsZero())

		got, err := store.Get(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, task.ID, got.ID)
		assert.Equal(t, task.FormID, got.FormID)
		assert.Equal(t, task.Utterance, got.Utterance)
		assert.Equal(t, taskstore.StatusPending, got.Status)
		assert.Equal(t, task.CallbackURL, got.CallbackURL)
		assert.True(t, task.ExpiresAt.Equal(got.ExpiresAt), "expires_at %v != %v", got.ExpiresAt, task.ExpiresAt)
		assert.Nil(t, got.Result)
	})

	t.Run("duplicate create", func(t *testing.T) {
		task := newTask(time.Now().Add(time.Hour))
		require.NoError(t, store.Create(ctx, task))
		err := store.Create(ctx, task)
		assert.True(t, errors.Is(err, taskstore.ErrExists), "got %v", err)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := store.Get(ctx, uuid.NewString())
		assert.True(t, errors.Is(err, taskstore.ErrNotFound), "got %v", err)
	})

	t.Run("update result", func(t *testing.T) {
		task := newTask(time.Now().Add(time.Hour))
		require.NoError(t, store.Create(ctx, task))

		res := domain.Succeeded(domain.Record{"amount": 45.0, "category": 1.0, "merchant": nil})
		task.Status = taskstore.StatusSucceeded
		task.Result = &res
		require.NoError(t, store.Update(ctx, task))

		got, err := store.Get(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, taskstore.StatusSucceeded, got.Status)
		require.NotNil(t, got.Result)
		assert.Equal(t, domain.StatusSucceeded, got.Result.Status)
		assert.Equal(t, 45.0, got.Result.Record["amount"])
		assert.Contains(t, got.Result.Record, "merchant")
	})

	t.Run("update failed result", func(t *testing.T) {
		task := newTask(time.Now().Add(time.Hour))
		require.NoError(t, store.Create(ctx, task))

		res := domain.Failed(domain.Validation("approver", "required"))
		task.Status = taskstore.StatusFailed
		task.Result = &res
		require.NoError(t, store.Update(ctx, task))

		got, err := store.Get(ctx, task.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Result)
		assert.Equal(t, domain.KindValidation, got.Result.ErrorCode)
		assert.Equal(t, "approver", got.Result.Field)
	})

	t.Run("update missing", func(t *testing.T) {
		err := store.Update(ctx, newTask(time.Now()))
		assert.True(t, errors.Is(err, taskstore.ErrNotFound), "got %v", err)
	})

	t.Run("delete expired", func(t *testing.T) {
		now := time.Now()
		old := newTask(now.Add(-time.Hour))
		fresh := newTask(now.Add(time.Hour))
		require.NoError(t, store.Create(ctx, old))
		require.NoError(t, store.Create(ctx, fresh))

		n, err := store.DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 1)

		_, err = store.Get(ctx, old.ID)
		assert.True(t, errors.Is(err, taskstore.ErrNotFound), "got %v", err)
		_, err = store.Get(ctx, fresh.ID)
		assert.NoError(t, err)
	})
}
