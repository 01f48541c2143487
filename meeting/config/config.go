// Package config loads layered settings: built-in defaults, then an optional TOML file,
// then EOS_-prefixed environment variables (EOS_MODEL__API_KEY -> model.api_key).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"

	"github.com/theimaginaryfoundation/eos-tracker/meeting"
	"github.com/theimaginaryfoundation/eos-tracker/meeting/provider"
)

const EnvPrefix = "EOS_"

// DefaultPaths are tried in order when no explicit path is given.
var DefaultPaths = []string{"./eos.toml", "$HOME/.eos.toml"}

type Settings struct {
	Model     ModelSettings     `koanf:"model"`
	Retry     RetrySettings     `koanf:"retry"`
	Pipeline  PipelineSettings  `koanf:"pipeline"`
	Optimizer OptimizerSettings `koanf:"optimizer"`
	Store     StoreSettings     `koanf:"store"`
	Log       LogSettings       `koanf:"log"`
}

type ModelSettings struct {
	Provider          string `koanf:"provider"`
	Name              string `koanf:"name"`
	APIKey            string `koanf:"api_key"`
	BaseURL           string `koanf:"base_url"`
	FlexTier          bool   `koanf:"flex_tier"`
	RequestsPerMinute int    `koanf:"requests_per_minute"`
	MaxOutputTokens   int64  `koanf:"max_output_tokens"`
}

type RetrySettings struct {
	MaxAttempts           int `koanf:"max_attempts"`
	AttemptTimeoutSeconds int `koanf:"attempt_timeout_seconds"`
}

type PipelineSettings struct {
	Concurrency int `koanf:"concurrency"`
	MaxSegments int `koanf:"max_segments"`
	NumWeeks    int `koanf:"num_weeks"`
	MinTodoDays int `koanf:"min_todo_days"`
	MaxTodoDays int `koanf:"max_todo_days"`
	WeekSoftCap int `koanf:"week_soft_cap"`
}

type OptimizerSettings struct {
	OverloadThreshold int `koanf:"overload_threshold"`
}

type StoreSettings struct {
	Path string `koanf:"path"`
}

type LogSettings struct {
	Level string `koanf:"level"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"model.provider":                string(provider.KindOpenAI),
		"model.name":                    "gpt-5-mini",
		"model.requests_per_minute":     0,
		"retry.max_attempts":            3,
		"retry.attempt_timeout_seconds": 45,
		"pipeline.concurrency":          meeting.DefaultConcurrency,
		"pipeline.max_segments":         meeting.DefaultMaxSegments,
		"pipeline.num_weeks":            12,
		"pipeline.min_todo_days":        1,
		"pipeline.max_todo_days":        14,
		"pipeline.week_soft_cap":        5,
		"optimizer.overload_threshold":  meeting.DefaultOverloadThreshold,
		"log.level":                     "info",
	}
}

// Load reads settings. An explicit path must exist; otherwise DefaultPaths are tried and
// silently skipped when absent.
func Load(path string) (Settings, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Settings{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return Settings{}, fmt.Errorf("load config %s: %w", path, err)
		}
	} else {
		for _, p := range DefaultPaths {
			p = os.ExpandEnv(p)
			if _, err := os.Stat(p); err != nil {
				continue
			}
			if err := k.Load(file.Provider(p), toml.Parser()); err != nil {
				return Settings{}, fmt.Errorf("load config %s: %w", p, err)
			}
			break
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Settings{}, fmt.Errorf("load env: %w", err)
	}

	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return Settings{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return s, nil
}

// envKey maps EOS_PIPELINE__MAX_SEGMENTS to pipeline.max_segments.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// RetryPolicy overlays the configured attempts and timeout on the default wait tables.
func (s Settings) RetryPolicy() provider.RetryPolicy {
	p := provider.DefaultRetryPolicy()
	if s.Retry.MaxAttempts > 0 {
		p.MaxAttempts = s.Retry.MaxAttempts
	}
	if s.Retry.AttemptTimeoutSeconds > 0 {
		p.AttemptTimeout = time.Duration(s.Retry.AttemptTimeoutSeconds) * time.Second
	}
	return p
}

// ProviderOptions builds provider.New options. The API key falls back to the backend's
// conventional environment variable.
func (s Settings) ProviderOptions(logger zerolog.Logger) (provider.Options, error) {
	kind, err := provider.ParseKind(s.Model.Provider)
	if err != nil {
		return provider.Options{}, err
	}
	key := s.Model.APIKey
	if key == "" {
		key = os.Getenv(apiKeyEnv(kind))
	}
	return provider.Options{
		Kind:              kind,
		Model:             s.Model.Name,
		APIKey:            key,
		BaseURL:           s.Model.BaseURL,
		FlexTier:          s.Model.FlexTier,
		RequestsPerMinute: s.Model.RequestsPerMinute,
		Retry:             s.RetryPolicy(),
		Logger:            logger,
	}, nil
}

func apiKeyEnv(kind provider.Kind) string {
	switch kind {
	case provider.KindGemini:
		return "GEMINI_API_KEY"
	case provider.KindOllama:
		return "OLLAMA_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}

// ExtractionPolicy returns the validation bounds for the extractor.
func (s Settings) ExtractionPolicy() meeting.ExtractionPolicy {
	return meeting.ExtractionPolicy{
		MinTodoDays: s.Pipeline.MinTodoDays,
		MaxTodoDays: s.Pipeline.MaxTodoDays,
		WeekSoftCap: s.Pipeline.WeekSoftCap,
	}
}

// OptimizerPolicy returns the optimizer policy with the default intensity formula.
func (s Settings) OptimizerPolicy() meeting.OptimizerPolicy {
	p := meeting.DefaultOptimizerPolicy()
	if s.Optimizer.OverloadThreshold > 0 {
		p.OverloadThreshold = s.Optimizer.OverloadThreshold
	}
	return p
}

// Logger returns a logger at the configured level; unknown levels fall back to info.
func (s Settings) Logger(base zerolog.Logger) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s.Log.Level)))
	if err != nil || s.Log.Level == "" {
		lvl = zerolog.InfoLevel
	}
	return base.Level(lvl)
}
