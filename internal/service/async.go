package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/tjfontaine/formflow/internal/domain"
	"github.com/tjfontaine/formflow/internal/taskstore"
)

const (
	// DefaultTaskTTL is how long a task is retrievable after submission.
	DefaultTaskTTL = 24 * time.Hour

	// DefaultPurgeSchedule runs the expired-task purge every ten minutes.
	DefaultPurgeSchedule = "*/10 * * * *"

	taskTopic = "formflow.tasks"
)

// ErrAsyncClosed is returned by Submit after Close.
var ErrAsyncClosed = errors.New("async runner is closed")

// SubmitRequest is one asynchronous extraction.
type SubmitRequest struct {
	Utterance   string
	FormID      string
	CallbackURL string
}

// Async queues extractions as tasks and runs them on a bounded worker pool.
type Async struct {
	svc      *Service
	store    taskstore.Store
	pubsub   *gochannel.GoChannel
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time

	ttl           time.Duration
	workers       int
	purgeSchedule string
	cron          *cron.Cron

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
}

// AsyncOption configures Async.
type AsyncOption func(*Async)

// WithTaskTTL sets the task expiry.
func WithTaskTTL(d time.Duration) AsyncOption {
	return func(a *Async) {
		if d > 0 {
			a.ttl = d
		}
	}
}

// WithWorkers sets how many tasks run at once.
func WithWorkers(n int) AsyncOption {
	return func(a *Async) {
		if n > 0 {
			a.workers = n
		}
	}
}

// WithPurgeSchedule sets the cron expression for the expired-task purge.
// An empty schedule disables it.
func WithPurgeSchedule(schedule string) AsyncOption {
	return func(a *Async) { a.purgeSchedule = schedule }
}

// WithNotifier sets the callback notifier.
func WithNotifier(n Notifier) AsyncOption {
	return func(a *Async) { a.notifier = n }
}

// WithAsyncLogger sets the logger.
func WithAsyncLogger(logger *slog.Logger) AsyncOption {
	return func(a *Async) { a.logger = logger }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) AsyncOption {
	return func(a *Async) { a.now = now }
}

// NewAsync creates the runner. Call Start before submitting.
func NewAsync(svc *Service, store taskstore.Store, opts ...AsyncOption) *Async {
	a := &Async{
		svc:           svc,
		store:         store,
		logger:        slog.Default(),
		now:           time.Now,
		ttl:           DefaultTaskTTL,
		workers:       4,
		purgeSchedule: DefaultPurgeSchedule,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.notifier == nil {
		a.notifier = NewCallbackNotifier(CallbackConfig{})
	}
	a.pubsub = gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 1024},
		watermill.NewSlogLogger(a.logger),
	)
	return a
}

// Start subscribes the worker pool and schedules the purge job.
func (a *Async) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrAsyncClosed
	}
	if a.started {
		return nil
	}

	ctx, a.cancel = context.WithCancel(ctx)
	messages, err := a.pubsub.Subscribe(ctx, taskTopic)
	if err != nil {
		a.cancel()
		return fmt.Errorf("subscribe %s: %w", taskTopic, err)
	}

	if a.purgeSchedule != "" {
		cronLogger := cron.PrintfLogger(slog.NewLogLogger(a.logger.Handler(), slog.LevelWarn))
		c := cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cronLogger),
			cron.Recover(cronLogger),
		))
		if _, err := c.AddFunc(a.purgeSchedule, func() { a.purge(ctx) }); err != nil {
			a.cancel()
			return fmt.Errorf("invalid purge schedule %q: %w", a.purgeSchedule, err)
		}
		a.cron = c
		a.cron.Start()
	}

	a.wg.Add(1)
	go a.dispatch(ctx, messages)
	a.started = true

	a.logger.Info("async runner started", "workers", a.workers, "ttl", a.ttl, "purge_schedule", a.purgeSchedule)
	return nil
}

// dispatch hands messages to at most a.workers concurrent runs.
func (a *Async) dispatch(ctx context.Context, messages <-chan *message.Message) {
	defer a.wg.Done()
	slots := make(chan struct{}, a.workers)

	for msg := range messages {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			msg.Nack()
			continue
		}
		id := string(msg.Payload)
		msg.Ack()

		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			defer func() { <-slots }()
			a.process(ctx, id)
		}()
	}
}

// Submit records a pending task and queues it.
func (a *Async) Submit(ctx context.Context, req SubmitRequest) (*taskstore.Task, error) {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return nil, ErrAsyncClosed
	}

	if _, err := a.svc.Executor(req.FormID); err != nil {
		return nil, domain.AsError(err)
	}

	task := &taskstore.Task{
		ID:          uuid.NewString(),
		FormID:      req.FormID,
		Utterance:   req.Utterance,
		Status:      taskstore.StatusPending,
		CallbackURL: req.CallbackURL,
		ExpiresAt:   a.now().Add(a.ttl).UTC(),
	}
	if err := a.store.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), []byte(task.ID))
	if err := a.pubsub.Publish(taskTopic, msg); err != nil {
		res := domain.Failed(domain.Internal(fmt.Errorf("enqueue task: %w", err)))
		task.Status = taskstore.StatusFailed
		task.Result = &res
		if uerr := a.store.Update(ctx, task); uerr != nil {
			a.logger.Error("failed to record enqueue failure", "task_id", task.ID, "error", uerr)
		}
		return nil, fmt.Errorf("enqueue task: %w", err)
	}

	a.logger.Debug("task submitted", "task_id", task.ID, "form_code", task.FormID)
	return task, nil
}

// Get returns a task as the client should see it. Tasks past expiry report
// status expired.
func (a *Async) Get(ctx context.Context, id string) (*taskstore.Task, error) {
	task, err := a.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return task.View(a.now()), nil
}

func (a *Async) process(ctx context.Context, id string) {
	logger := a.logger.With("task_id", id)

	task, err := a.store.Get(ctx, id)
	if err != nil {
		logger.Error("failed to load task", "error", err)
		return
	}
	if task.Expired(a.now()) {
		task.Status = taskstore.StatusExpired
		if err := a.store.Update(ctx, task); err != nil {
			logger.Error("failed to expire task", "error", err)
		}
		return
	}

	task.Status = taskstore.StatusRunning
	if err := a.store.Update(ctx, task); err != nil {
		logger.Error("failed to mark task running", "error", err)
		return
	}

	res := a.svc.Execute(ctx, task.Utterance, task.FormID)
	task.Result = &res
	if res.OK() {
		task.Status = taskstore.StatusSucceeded
	} else {
		task.Status = taskstore.StatusFailed
	}
	// The run may have been cut short by shutdown; still persist the outcome.
	if err := a.store.Update(context.WithoutCancel(ctx), task); err != nil {
		logger.Error("failed to store task result", "error", err)
		return
	}
	logger.Info("task finished", "form_code", task.FormID, "status", task.Status, "error_code", res.ErrorCode)

	if task.CallbackURL != "" {
		a.deliver(context.WithoutCancel(ctx), task)
	}
}

func (a *Async) deliver(ctx context.Context, task *taskstore.Task) {
	if err := a.notifier.Notify(ctx, task.CallbackURL, task); err != nil {
		a.logger.Warn("callback delivery failed", "task_id", task.ID, "callback_url", task.CallbackURL, "error", err)
		return
	}
	a.logger.Debug("callback delivered", "task_id", task.ID)
}

// Purge removes tasks that expired before now.
func (a *Async) Purge(ctx context.Context) (int, error) {
	return a.store.DeleteExpired(ctx, a.now())
}

func (a *Async) purge(ctx context.Context) {
	n, err := a.Purge(ctx)
	if err != nil {
		a.logger.Error("expired task purge failed", "error", err)
		return
	}
	if n > 0 {
		a.logger.Info("purged expired tasks", "count", n)
	}
}

// Close stops the purge job and the queue, then waits for running tasks.
// Queued tasks that never started stay pending until they expire.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
	err := a.pubsub.Close()
	a.wg.Wait()
	if a.cancel != nil {
		a.cancel()
	}
	return err
}
