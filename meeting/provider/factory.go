package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Kind names a model backend.
type Kind string

const (
	KindOpenAI           Kind = "openai"
	KindGemini           Kind = "gemini"
	KindOllama           Kind = "ollama"
	KindOpenAICompatible Kind = "openai-compatible"
)

// ParseKind normalizes a provider name from flags or config.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindOpenAI, KindGemini, KindOllama, KindOpenAICompatible:
		return k, nil
	case "":
		return KindOpenAI, nil
	default:
		return "", fmt.Errorf("unknown provider %q (want openai, gemini, ollama or openai-compatible)", s)
	}
}

// Options configures New.
type Options struct {
	Kind              Kind
	Model             string
	APIKey            string
	BaseURL           string
	FlexTier          bool
	RequestsPerMinute int
	Retry             RetryPolicy
	Logger            zerolog.Logger
}

// New builds the backend for opts.Kind and layers pacing and retries on top:
// Retrying -> RateLimited -> backend.
func New(ctx context.Context, opts Options) (Completer, error) {
	var base Completer
	switch opts.Kind {
	case KindOpenAI, "":
		base = NewOpenAI(opts.APIKey, opts.BaseURL, opts.Model, opts.FlexTier)
	case KindGemini, KindOllama, KindOpenAICompatible:
		lc, err := NewLangChain(ctx, opts.Kind, opts.APIKey, opts.BaseURL, opts.Model)
		if err != nil {
			return nil, err
		}
		base = lc
	default:
		return nil, fmt.Errorf("provider: unsupported kind %q", opts.Kind)
	}

	opts.Logger.Debug().
		Str("provider", string(opts.Kind)).
		Str("model", opts.Model).
		Int("requests_per_minute", opts.RequestsPerMinute).
		Msg("model provider ready")

	return Retrying{
		Next:   NewRateLimited(base, opts.RequestsPerMinute, 2),
		Policy: opts.Retry,
		Logger: opts.Logger,
	}, nil
}
