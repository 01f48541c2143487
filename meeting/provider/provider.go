// Package provider wraps the language-model backends used by the meeting pipeline
// behind a single Completer interface, plus the retry and pacing layers shared by
// every call site.
package provider

import (
	"context"
	"errors"
)

// Request is one structured-output model call.
type Request struct {
	// Name identifies the output schema (e.g. "SegmentAnalysis"); also used in logs.
	Name string

	// Instructions is the system/developer prompt.
	Instructions string

	// Input is the user-turn payload (transcript excerpt, aggregated context, ...).
	Input string

	// Schema is an optional JSON schema the output must satisfy. Backends without native
	// structured output embed it in the prompt instead.
	Schema map[string]any

	// MaxOutputTokens caps the response size (0 = backend default).
	MaxOutputTokens int64
}

// Completer returns the raw text output of a model call.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

var errNilCompleter = errors.New("provider: completer is nil")
