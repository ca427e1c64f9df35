// Package llm abstracts the generative model that phrases the final answer.
//
// The assistant treats the generator as a black-box text completer: it hands
// over a fully assembled instruction block plus a token budget and uses
// whatever prose comes back. Generator failures are recoverable by design;
// callers fall back to a localized message and still return structured
// facts.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrGeneration is returned when the underlying model call fails.
var ErrGeneration = errors.New("text generation failed")

// TextGenerator produces a natural-language answer from an instruction block.
type TextGenerator interface {
	// Generate runs one completion. maxTokens caps the response length,
	// temperature controls sampling (factual intents use low values).
	Generate(ctx context.Context, instruction string, maxTokens int, temperature float32) (string, error)
}

// GenerationError wraps a model failure with call context.
type GenerationError struct {
	Op      string
	Model   string
	Err     error
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	return fmt.Sprintf("llm: %s failed (model: %s): %v", e.Op, e.Model, e.Err)
}

// Unwrap returns the underlying error.
func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Is matches the generic generation sentinel.
func (e *GenerationError) Is(target error) bool {
	return target == ErrGeneration || errors.Is(e.Err, target)
}
