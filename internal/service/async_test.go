package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tjfontaine/formflow/internal/domain"
	"github.com/tjfontaine/formflow/internal/forms"
	"github.com/tjfontaine/formflow/internal/llm/llmtest"
	"github.com/tjfontaine/formflow/internal/taskstore"
	"github.com/tjfontaine/formflow/internal/taskstore/memory"
)

func newAsync(t *testing.T, fake *llmtest.Fake, opts ...AsyncOption) (*Async, taskstore.Store) {
	t.Helper()
	store := memory.New()
	opts = append([]AsyncOption{WithAsyncLogger(discard), WithPurgeSchedule("")}, opts...)
	a := NewAsync(newService(t, fake), store, opts...)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() { a.Close() })
	return a, store
}

func waitTerminal(t *testing.T, a *Async, id string) *taskstore.Task {
	t.Helper()
	var task *taskstore.Task
	require.Eventually(t, func() bool {
		var err error
		task, err = a.Get(context.Background(), id)
		return err == nil && task.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return task
}

func TestAsync_SubmitAndComplete(t *testing.T) {
	a, _ := newAsync(t, &llmtest.Fake{Reply: `{"amount": 12.5, "category": 2}`})

	task, err := a.Submit(context.Background(), SubmitRequest{Utterance: "lunch 12.50", FormID: forms.ExpenseClaimID})
	require.NoError(t, err)
	_, err = uuid.Parse(task.ID)
	require.NoError(t, err)
	assert.Equal(t, taskstore.StatusPending, task.Status)
	assert.WithinDuration(t, time.Now().Add(DefaultTaskTTL), task.ExpiresAt, time.Minute)

	done := waitTerminal(t, a, task.ID)
	assert.Equal(t, taskstore.StatusSucceeded, done.Status)
	require.NotNil(t, done.Result)
	assert.Equal(t, 12.5, done.Result.Record["amount"])
}

func TestAsync_FailedRun(t *testing.T) {
	a, _ := newAsync(t, &llmtest.Fake{Reply: "not json"})

	task, err := a.Submit(context.Background(), SubmitRequest{Utterance: "lunch", FormID: forms.ExpenseClaimID})
	require.NoError(t, err)

	done := waitTerminal(t, a, task.ID)
	assert.Equal(t, taskstore.StatusFailed, done.Status)
	require.NotNil(t, done.Result)
	assert.Equal(t, domain.KindInvalidModelResponse, done.Result.ErrorCode)
}

func TestAsync_SubmitUnknownForm(t *testing.T) {
	a, _ := newAsync(t, &llmtest.Fake{})

	_, err := a.Submit(context.Background(), SubmitRequest{Utterance: "x", FormID: "nope"})
	assert.True(t, domain.IsKind(err, domain.KindUnknownFormIdentifier), "got %v", err)
}

func TestAsync_Callback(t *testing.T) {
	var (
		mu       sync.Mutex
		received []taskstore.Task
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var task taskstore.Task
		if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		received = append(received, task)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	notifier := NewCallbackNotifier(CallbackConfig{AllowPrivate: true, Timeout: time.Second})
	a, _ := newAsync(t, &llmtest.Fake{Reply: `{"category": 1}`}, WithNotifier(notifier))

	task, err := a.Submit(context.Background(), SubmitRequest{
		Utterance: "train ticket", FormID: forms.ExpenseClaimID, CallbackURL: hook.URL,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, task.ID, received[0].ID)
	assert.Equal(t, taskstore.StatusSucceeded, received[0].Status)
}

func TestAsync_CallbackFailureKeepsOutcome(t *testing.T) {
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer hook.Close()

	notifier := NewCallbackNotifier(CallbackConfig{AllowPrivate: true, Retries: 1, Timeout: time.Second})
	a, _ := newAsync(t, &llmtest.Fake{Reply: `{"category": 1}`}, WithNotifier(notifier))

	task, err := a.Submit(context.Background(), SubmitRequest{
		Utterance: "train ticket", FormID: forms.ExpenseClaimID, CallbackURL: hook.URL,
	})
	require.NoError(t, err)
	assert.Equal(t, taskstore.StatusSucceeded, waitTerminal(t, a, task.ID).Status)
}

func TestAsync_ExpiryAndPurge(t *testing.T) {
	var (
		mu  sync.Mutex
		now = time.Now()
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	a, store := newAsync(t, &llmtest.Fake{Reply: `{"category": 1}`}, WithClock(clock), WithTaskTTL(time.Hour))

	task, err := a.Submit(context.Background(), SubmitRequest{Utterance: "taxi", FormID: forms.ExpenseClaimID})
	require.NoError(t, err)
	waitTerminal(t, a, task.ID)

	mu.Lock()
	now = now.Add(2 * time.Hour)
	mu.Unlock()

	got, err := a.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, taskstore.StatusExpired, got.Status)

	n, err := a.Purge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.Get(context.Background(), task.ID)
	assert.True(t, errors.Is(err, taskstore.ErrNotFound))
}

func TestAsync_Closed(t *testing.T) {
	a, _ := newAsync(t, &llmtest.Fake{})
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	_, err := a.Submit(context.Background(), SubmitRequest{Utterance: "x", FormID: forms.ExpenseClaimID})
	assert.ErrorIs(t, err, ErrAsyncClosed)
}

func TestAsync_InvalidPurgeSchedule(t *testing.T) {
	a := NewAsync(newService(t, &llmtest.Fake{}), memory.New(), WithAsyncLogger(discard), WithPurgeSchedule("not a cron"))
	defer a.Close()
	assert.Error(t, a.Start(context.Background()))
}
