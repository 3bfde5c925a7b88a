// Package llm is the boundary to the language model. The pipeline only needs
// Complete: a prompt goes in, raw text comes out. The deadline and
// cancellation travel on the context.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Client completes a prompt.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, prompt string) (string, error)

// Complete calls f.
func (f ClientFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ErrEmptyCompletion is returned when the provider answers without content.
var ErrEmptyCompletion = errors.New("llm: completion has no content")

// StatusError is a non-success HTTP answer from the provider.
type StatusError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("llm: provider returned %d (%s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("llm: provider returned %d: %s", e.StatusCode, e.Message)
}
