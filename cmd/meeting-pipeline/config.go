package main

import (
	"errors"
	"flag"
	"os"
	"path/filepath"

	"github.com/theimaginaryfoundation/eos-tracker/meeting/config"
)

type Config struct {
	TranscriptPath   string
	ParticipantsPath string
	OutPath          string
	IndexPath        string
	ConfigPath       string
	Pretty           bool

	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	FlexTier    bool
	Weeks       int
	Concurrency int
	MaxSegments int

	DBPath    string
	MeetingID string
	Actor     string

	IndexSummaryMaxChars int

	// Settings holds the file/env layer with flag overrides applied.
	Settings config.Settings
}

func (c Config) Validate() error {
	if c.TranscriptPath == "" {
		return errors.New("missing -transcript")
	}
	if c.ParticipantsPath == "" {
		return errors.New("missing -participants")
	}
	if c.OutPath == "" {
		return errors.New("missing -out")
	}
	if c.Model == "" {
		return errors.New("missing -model")
	}
	if c.Weeks <= 0 {
		return errors.New("weeks must be > 0")
	}
	if c.Concurrency < 0 {
		return errors.New("concurrency must be >= 0")
	}
	if c.MaxSegments < 0 {
		return errors.New("max-segments must be >= 0")
	}
	if c.IndexSummaryMaxChars < 0 {
		return errors.New("index-summary-max-chars must be >= 0")
	}
	if c.DBPath != "" && c.Actor == "" {
		return errors.New("missing -actor (required with -db)")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		OutPath:              filepath.FromSlash("out/extraction.json"),
		IndexSummaryMaxChars: 600,
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.TranscriptPath, "transcript", "", "Transcript JSON ({segments:[...]} or {text:...}) or a plain .txt file")
	fs.StringVar(&cfg.ParticipantsPath, "participants", "", "Participants JSON array [{id,name,designation}]")
	fs.StringVar(&cfg.OutPath, "out", cfg.OutPath, "Output path for the extraction result JSON")
	fs.StringVar(&cfg.IndexPath, "index", "", "Optional path for index.jsonl (default: <out dir>/index.jsonl)")
	fs.IntVar(&cfg.IndexSummaryMaxChars, "index-summary-max-chars", cfg.IndexSummaryMaxChars, "Max chars to keep in index summary fields (0 disables truncation)")
	fs.StringVar(&cfg.ConfigPath, "config", "", "Optional TOML settings file (default: ./eos.toml or ~/.eos.toml when present)")
	fs.BoolVar(&cfg.Pretty, "pretty", false, "Pretty-print the output JSON")
	fs.StringVar(&cfg.Provider, "provider", "", "Model provider: openai|gemini|ollama|openai-compatible")
	fs.StringVar(&cfg.Model, "model", "", "Model name (e.g. gpt-5-mini)")
	fs.StringVar(&cfg.APIKey, "api-key", "", "API key (overrides the provider's env var)")
	fs.StringVar(&cfg.BaseURL, "base-url", "", "Optional API base URL")
	fs.BoolVar(&cfg.FlexTier, "flex", false, "Use OpenAI flex service tier")
	fs.IntVar(&cfg.Weeks, "weeks", 0, "Number of weeks for rock milestones")
	fs.IntVar(&cfg.Concurrency, "concurrency", 0, "Max concurrent segment analyses")
	fs.IntVar(&cfg.MaxSegments, "max-segments", 0, "Max analysis units per transcript")
	fs.StringVar(&cfg.DBPath, "db", "", "Optional SQLite path; when set the result is persisted")
	fs.StringVar(&cfg.MeetingID, "meeting-id", "", "Meeting id used when persisting (default: random)")
	fs.StringVar(&cfg.Actor, "actor", "", "Actor recorded on persisted writes")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	settings, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return Config{}, err
	}
	cfg.merge(fs, settings)

	cfg.OutPath = filepath.Clean(cfg.OutPath)
	if cfg.IndexPath == "" {
		cfg.IndexPath = filepath.Join(filepath.Dir(cfg.OutPath), "index.jsonl")
	}
	cfg.IndexPath = filepath.Clean(cfg.IndexPath)
	if cfg.TranscriptPath != "" {
		cfg.TranscriptPath = filepath.Clean(cfg.TranscriptPath)
	}
	if cfg.ParticipantsPath != "" {
		cfg.ParticipantsPath = filepath.Clean(cfg.ParticipantsPath)
	}
	return cfg, nil
}

// merge lets explicitly set flags win over settings and fills the rest from settings.
func (c *Config) merge(fs *flag.FlagSet, s config.Settings) {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	pick(set["provider"], &c.Provider, &s.Model.Provider)
	pick(set["model"], &c.Model, &s.Model.Name)
	pick(set["api-key"], &c.APIKey, &s.Model.APIKey)
	pick(set["base-url"], &c.BaseURL, &s.Model.BaseURL)
	pick(set["flex"], &c.FlexTier, &s.Model.FlexTier)
	pick(set["weeks"], &c.Weeks, &s.Pipeline.NumWeeks)
	pick(set["concurrency"], &c.Concurrency, &s.Pipeline.Concurrency)
	pick(set["max-segments"], &c.MaxSegments, &s.Pipeline.MaxSegments)
	pick(set["db"], &c.DBPath, &s.Store.Path)
	c.Settings = s
}

func pick[T any](flagSet bool, flagVal, setting *T) {
	if flagSet {
		*setting = *flagVal
		return
	}
	*flagVal = *setting
}
