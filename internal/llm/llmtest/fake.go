// Package llmtest provides scripted language model clients for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"
)

// Fake answers every prompt with Reply, or fails with Err. It records the
// prompts it receives.
type Fake struct {
	Reply string
	Err   error
	// Respond, when set, computes the reply from the prompt.
	Respond func(prompt string) (string, error)
	// Block makes Complete wait for ctx to finish before returning its error.
	Block bool

	mu      sync.Mutex
	prompts []string
}

// Complete implements llm.Client.
func (f *Fake) Complete(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	if f.Block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.Respond != nil {
		return f.Respond(prompt)
	}
	return f.Reply, f.Err
}

// Calls returns how many times Complete ran.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

// Prompts returns a copy of the received prompts.
func (f *Fake) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.prompts))
	copy(out, f.prompts)
	return out
}

// LastPrompt returns the most recent prompt, or "".
func (f *Fake) LastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

// Echo returns a Respond func that replies with the text after marker in
// the prompt, up to the end of that line.
func Echo(marker string) func(string) (string, error) {
	return func(prompt string) (string, error) {
		i := strings.LastIndex(prompt, marker)
		if i < 0 {
			return "", nil
		}
		rest := prompt[i+len(marker):]
		if j := strings.IndexByte(rest, '\n'); j >= 0 {
			rest = rest[:j]
		}
		return strings.TrimSpace(rest), nil
	}
}
