package llm

import (
	"fmt"
	"strings"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter counts prompt tokens with the tiktoken encoding of a model.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter picks the encoding for model, falling back to o200k_base
// for unknown and OpenAI-compatible model names.
func NewTokenCounter(model string) (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.Model(strings.ToLower(model)))
	if err == nil {
		return &TokenCounter{codec: codec}, nil
	}
	codec, err = tokenizer.Get(tokenizer.O200kBase)
	if err != nil {
		return nil, fmt.Errorf("failed to get tokenizer encoding: %w", err)
	}
	return &TokenCounter{codec: codec}, nil
}

// Count returns the number of tokens in text.
func (c *TokenCounter) Count(text string) int {
	ids, _, _ := c.codec.Encode(text)
	return len(ids)
}
