package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

// LangChain drives any langchaingo model. Backends here have no strict schema mode, so the
// schema is embedded in the prompt and the caller's tolerant decoder does the rest.
type LangChain struct {
	llm         llms.Model
	model       string
	temperature float64
}

// NewLangChain creates a langchaingo-backed completer for gemini, ollama or an
// OpenAI-compatible endpoint.
func NewLangChain(ctx context.Context, kind Kind, apiKey, baseURL, model string) (*LangChain, error) {
	var (
		llm llms.Model
		err error
	)
	switch kind {
	case KindGemini:
		opts := []googleai.Option{googleai.WithAPIKey(apiKey)}
		if model != "" {
			opts = append(opts, googleai.WithDefaultModel(model))
		}
		llm, err = googleai.New(ctx, opts...)
	case KindOllama:
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		llm, err = ollama.New(ollama.WithServerURL(baseURL), ollama.WithModel(model))
	case KindOpenAICompatible:
		opts := []lcopenai.Option{lcopenai.WithModel(model), lcopenai.WithToken(apiKey)}
		if baseURL != "" {
			opts = append(opts, lcopenai.WithBaseURL(baseURL))
		}
		llm, err = lcopenai.New(opts...)
	default:
		return nil, fmt.Errorf("langchain: unsupported provider %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("langchain: create %s model: %w", kind, err)
	}
	return &LangChain{llm: llm, model: model, temperature: 0.2}, nil
}

func (l *LangChain) Complete(ctx context.Context, req Request) (string, error) {
	if l == nil || l.llm == nil {
		return "", errors.New("langchain: model is nil")
	}

	opts := []llms.CallOption{llms.WithTemperature(l.temperature)}
	if req.MaxOutputTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(int(req.MaxOutputTokens)))
	}
	if l.model != "" {
		opts = append(opts, llms.WithModel(l.model))
	}
	return llms.GenerateFromSinglePrompt(ctx, l.llm, composePrompt(req), opts...)
}

func composePrompt(req Request) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(req.Instructions))
	if req.Schema != nil {
		if schema, err := json.Marshal(req.Schema); err == nil {
			b.WriteString("\n\nOUTPUT SCHEMA (return exactly one JSON object that validates against it, no prose, no code fences):\n")
			b.Write(schema)
		}
	}
	b.WriteString("\n\nINPUT:\n")
	b.WriteString(req.Input)
	return b.String()
}
