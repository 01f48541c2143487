package main

import (
	"errors"
	"flag"
	"os"
	"path/filepath"

	"github.com/theimaginaryfoundation/eos-tracker/meeting/config"
)

type Config struct {
	InPath     string
	DBPath     string
	RockID     string
	OutPath    string
	ConfigPath string
	Pretty     bool

	OriginalWeeks     int
	TargetWeeks       int
	TargetCount       int
	OverloadThreshold int

	NoModel  bool
	Provider string
	Model    string
	APIKey   string
	BaseURL  string

	Commit bool
	Actor  string

	Settings config.Settings
}

func (c Config) Validate() error {
	if c.InPath == "" && (c.DBPath == "" || c.RockID == "") {
		return errors.New("missing -in (or -db with -rock-id)")
	}
	if c.OutPath == "" {
		return errors.New("missing -out")
	}
	if c.OriginalWeeks < 0 {
		return errors.New("original-weeks must be >= 0")
	}
	if c.TargetWeeks <= 0 {
		return errors.New("target-weeks must be > 0")
	}
	if c.TargetCount <= 0 {
		return errors.New("target-count must be > 0")
	}
	if !c.NoModel && c.Model == "" {
		return errors.New("missing -model (or pass -no-model)")
	}
	if c.Commit {
		if c.DBPath == "" || c.RockID == "" {
			return errors.New("-commit requires -db and -rock-id")
		}
		if c.Actor == "" {
			return errors.New("-commit requires -actor")
		}
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		OutPath: filepath.FromSlash("out/optimized_milestones.json"),
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InPath, "in", "", "Milestones JSON: an array of milestones or a rock with weekly_milestones")
	fs.StringVar(&cfg.DBPath, "db", "", "SQLite path to load the rock from (with -rock-id)")
	fs.StringVar(&cfg.RockID, "rock-id", "", "Rock id to load from -db")
	fs.StringVar(&cfg.OutPath, "out", cfg.OutPath, "Output path for the optimization result JSON")
	fs.StringVar(&cfg.ConfigPath, "config", "", "Optional TOML settings file")
	fs.BoolVar(&cfg.Pretty, "pretty", false, "Pretty-print the output JSON")
	fs.IntVar(&cfg.OriginalWeeks, "original-weeks", 0, "Original timeline length in weeks (0 = latest milestone week)")
	fs.IntVar(&cfg.TargetWeeks, "target-weeks", 0, "Target timeline length in weeks")
	fs.IntVar(&cfg.TargetCount, "target-count", 0, "Target milestone count")
	fs.IntVar(&cfg.OverloadThreshold, "overload-threshold", 0, "Flag weeks holding more milestones than this")
	fs.BoolVar(&cfg.NoModel, "no-model", false, "Skip the model and combine milestones deterministically")
	fs.StringVar(&cfg.Provider, "provider", "", "Model provider: openai|gemini|ollama|openai-compatible")
	fs.StringVar(&cfg.Model, "model", "", "Model name")
	fs.StringVar(&cfg.APIKey, "api-key", "", "API key (overrides the provider's env var)")
	fs.StringVar(&cfg.BaseURL, "base-url", "", "Optional API base URL")
	fs.BoolVar(&cfg.Commit, "commit", false, "Replace the rock's milestones in -db with the result")
	fs.StringVar(&cfg.Actor, "actor", "", "Actor recorded on committed writes")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	settings, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return Config{}, err
	}
	cfg.merge(fs, settings)

	cfg.OutPath = filepath.Clean(cfg.OutPath)
	if cfg.InPath != "" {
		cfg.InPath = filepath.Clean(cfg.InPath)
	}
	return cfg, nil
}

// merge lets explicitly set flags win over settings and fills the rest from settings.
// -db is not filled from settings so that -in stays usable with a configured store.
func (c *Config) merge(fs *flag.FlagSet, s config.Settings) {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	pick(set["provider"], &c.Provider, &s.Model.Provider)
	pick(set["model"], &c.Model, &s.Model.Name)
	pick(set["api-key"], &c.APIKey, &s.Model.APIKey)
	pick(set["base-url"], &c.BaseURL, &s.Model.BaseURL)
	pick(set["overload-threshold"], &c.OverloadThreshold, &s.Optimizer.OverloadThreshold)
	if c.DBPath != "" {
		s.Store.Path = c.DBPath
	}
	c.Settings = s
}

func pick[T any](flagSet bool, flagVal, setting *T) {
	if flagSet {
		*setting = *flagVal
		return
	}
	*flagVal = *setting
}
