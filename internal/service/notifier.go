package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tjfontaine/formflow/internal/pkg/safehttp"
	"github.com/tjfontaine/formflow/internal/taskstore"
)

// Notifier delivers a finished task to its callback URL.
type Notifier interface {
	Notify(ctx context.Context, url string, task *taskstore.Task) error
}

// CallbackNotifier POSTs the task as JSON.
type CallbackNotifier struct {
	client  *http.Client
	retries int
	headers map[string]string
}

// CallbackConfig configures a CallbackNotifier.
type CallbackConfig struct {
	Timeout time.Duration
	Retries int
	Headers map[string]string
	// AllowPrivate permits loopback and private network targets.
	AllowPrivate bool
	// Client overrides the SSRF-guarded default client.
	Client *http.Client
}

// NewCallbackNotifier creates a notifier.
func NewCallbackNotifier(cfg CallbackConfig) *CallbackNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = safehttp.NewClient(cfg.Timeout, cfg.AllowPrivate)
	}
	return &CallbackNotifier{client: client, retries: cfg.Retries, headers: cfg.Headers}
}

// Notify delivers task, retrying on failure. Context cancellation stops
// retries.
func (n *CallbackNotifier) Notify(ctx context.Context, url string, task *taskstore.Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= n.retries; attempt++ {
		if lastErr = n.post(ctx, url, body); lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	return lastErr
}

func (n *CallbackNotifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range n.headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("callback request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("callback returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
