package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/theimaginaryfoundation/eos-tracker/meeting"
	"github.com/theimaginaryfoundation/eos-tracker/meeting/fileutils"
	"github.com/theimaginaryfoundation/eos-tracker/meeting/provider"
	"github.com/theimaginaryfoundation/eos-tracker/meeting/store"
)

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	logger := cfg.Settings.Logger(zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var combiner meeting.MilestoneCombiner
	if !cfg.NoModel {
		opts, err := cfg.Settings.ProviderOptions(logger)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(2)
		}
		if opts.APIKey == "" && opts.Kind != provider.KindOllama {
			fmt.Fprintf(os.Stderr, "missing API key for provider %s (pass -api-key, set it in the environment, or use -no-model)\n", opts.Kind)
			os.Exit(2)
		}
		model, err := provider.New(ctx, opts)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(2)
		}
		combiner = &meeting.ModelCombiner{Model: model, Logger: logger, MaxOutputTokens: cfg.Settings.Model.MaxOutputTokens}
	}

	res, err := run(ctx, cfg, combiner, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "milestones_out=%d target_weeks=%d combination=%s compression_ratio=%.2f intensity_increase=%.1f flags=%d committed=%v out=%s\n",
		len(res.Milestones), cfg.TargetWeeks, res.CombinationMethod, res.CompressionMetrics.CompressionRatio,
		res.CompressionMetrics.IntensityIncrease, len(res.Flags), cfg.Commit, cfg.OutPath)
}

// run loads the milestones, optimizes them, writes the result and commits it when asked.
func run(ctx context.Context, cfg Config, combiner meeting.MilestoneCombiner, logger zerolog.Logger) (meeting.OptimizationResult, error) {
	var (
		st  *store.Store
		req meeting.OptimizeRequest
		err error
	)
	if cfg.InPath != "" {
		req.RockID, req.Milestones, err = readMilestones(cfg.InPath)
		if err != nil {
			return meeting.OptimizationResult{}, err
		}
	}
	if cfg.DBPath != "" {
		st, err = store.Open(ctx, cfg.DBPath)
		if err != nil {
			return meeting.OptimizationResult{}, err
		}
		defer st.Close()
		st.Logger = logger
	}
	if cfg.InPath == "" {
		rock, err := st.LoadRock(ctx, cfg.RockID)
		if err != nil {
			return meeting.OptimizationResult{}, err
		}
		req.RockID, req.Milestones = rock.ID, rock.WeeklyMilestones
	}
	if cfg.RockID != "" {
		req.RockID = cfg.RockID
	}

	req.OriginalWeeks = cfg.OriginalWeeks
	if req.OriginalWeeks == 0 {
		req.OriginalWeeks = latestWeek(req.Milestones)
	}
	req.TargetWeeks = cfg.TargetWeeks
	req.TargetMilestoneCount = cfg.TargetCount

	opt := meeting.Optimizer{Combiner: combiner, Policy: cfg.Settings.OptimizerPolicy(), Logger: logger}
	res, err := opt.Optimize(ctx, req)
	if err != nil {
		return meeting.OptimizationResult{}, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.OutPath), 0o755); err != nil {
		return meeting.OptimizationResult{}, fmt.Errorf("mkdir -out: %w", err)
	}
	if err := fileutils.WriteJSONFileAtomic(cfg.OutPath, res, cfg.Pretty); err != nil {
		return meeting.OptimizationResult{}, err
	}

	if cfg.Commit {
		if err := st.ReplaceMilestones(ctx, cfg.Actor, cfg.RockID, res.Milestones); err != nil {
			return meeting.OptimizationResult{}, fmt.Errorf("commit milestones for rock %s: %w", cfg.RockID, err)
		}
	}
	return res, nil
}

// readMilestones accepts either a bare milestone array or a rock object.
func readMilestones(path string) (string, []meeting.Milestone, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read %s: %w", path, err)
	}
	b = bytes.TrimSpace(b)
	if bytes.HasPrefix(b, []byte("[")) {
		var ms []meeting.Milestone
		if err := json.Unmarshal(b, &ms); err != nil {
			return "", nil, fmt.Errorf("unmarshal %s: %w", path, err)
		}
		return "", ms, nil
	}
	var rock meeting.Rock
	if err := json.Unmarshal(b, &rock); err != nil {
		return "", nil, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return rock.ID, rock.WeeklyMilestones, nil
}

func latestWeek(ms []meeting.Milestone) int {
	latest := 0
	for _, m := range ms {
		latest = max(latest, m.WeekNumber)
	}
	return latest
}
