package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
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

	opts, err := cfg.Settings.ProviderOptions(logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if opts.APIKey == "" && opts.Kind != provider.KindOllama {
		fmt.Fprintf(os.Stderr, "missing API key for provider %s (pass -api-key or set it in the environment)\n", opts.Kind)
		os.Exit(2)
	}
	model, err := provider.New(ctx, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	res, err := run(ctx, cfg, model, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, failureReport(err))
		if raw := rawOutput(err); raw != "" {
			rawPath := cfg.OutPath + ".raw.txt"
			if werr := fileutils.WriteFileAtomicSameDir(rawPath, []byte(raw), 0o644); werr == nil {
				fmt.Fprintf(os.Stderr, "raw_output=%s\n", rawPath)
			}
		}
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "segments=%d analyzed=%d issues=%d open_issues=%d runtime_solutions=%d todos=%d rocks=%d rejections=%d flags=%d out=%s index=%s\n",
		res.Coverage.Total, res.Coverage.Analyzed, len(res.Issues), len(res.OpenIssues), len(res.RuntimeSolutions),
		len(res.Todos), len(res.Rocks), len(res.Rejections), len(res.Flags), cfg.OutPath, cfg.IndexPath)
}

// run executes the pipeline, writes the result and persists it when a store is configured.
func run(ctx context.Context, cfg Config, model provider.Completer, logger zerolog.Logger) (meeting.ExtractionResult, error) {
	transcript, err := readTranscript(cfg.TranscriptPath)
	if err != nil {
		return meeting.ExtractionResult{}, err
	}
	var participants []meeting.Participant
	if err := fileutils.ReadJSONFile(cfg.ParticipantsPath, &participants); err != nil {
		return meeting.ExtractionResult{}, err
	}

	maxTokens := cfg.Settings.Model.MaxOutputTokens
	p := meeting.Pipeline{
		Analyzer:    &meeting.SegmentAnalyzer{Model: model, Logger: logger, MaxOutputTokens: maxTokens},
		Extractor:   &meeting.Extractor{Model: model, Logger: logger, Policy: cfg.Settings.ExtractionPolicy(), MaxOutputTokens: maxTokens},
		Concurrency: cfg.Concurrency,
		MaxSegments: cfg.MaxSegments,
		Logger:      logger,
	}
	res, err := p.Run(ctx, transcript, participants, cfg.Weeks)
	if err != nil {
		return meeting.ExtractionResult{}, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.OutPath), 0o755); err != nil {
		return meeting.ExtractionResult{}, fmt.Errorf("mkdir -out: %w", err)
	}
	if err := fileutils.WriteJSONFileAtomic(cfg.OutPath, res, cfg.Pretty); err != nil {
		return meeting.ExtractionResult{}, err
	}

	meetingID := cfg.MeetingID
	if meetingID == "" {
		meetingID = uuid.NewString()
	}
	if cfg.IndexPath != "" {
		rec := meeting.BuildIndexRecord(meetingID, cfg.OutPath, res, cfg.IndexSummaryMaxChars)
		if err := fileutils.AppendJSONLine(cfg.IndexPath, rec); err != nil {
			return meeting.ExtractionResult{}, fmt.Errorf("append index: %w", err)
		}
	}

	if cfg.DBPath != "" {
		st, err := store.Open(ctx, cfg.DBPath)
		if err != nil {
			return meeting.ExtractionResult{}, err
		}
		defer st.Close()
		st.Logger = logger

		if err := st.SaveExtraction(ctx, cfg.Actor, meetingID, res); err != nil {
			return meeting.ExtractionResult{}, fmt.Errorf("persist meeting %s: %w", meetingID, err)
		}
	}
	return res, nil
}

// readTranscript accepts transcript JSON or, for non-.json files, plain text.
func readTranscript(path string) (meeting.Transcript, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		var t meeting.Transcript
		if err := fileutils.ReadJSONFile(path, &t); err != nil {
			return meeting.Transcript{}, err
		}
		return t, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return meeting.Transcript{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return meeting.Transcript{}, fmt.Errorf("read %s: %w", path, err)
	}
	return meeting.Transcript{Text: string(b)}, nil
}

func failureReport(err error) string {
	var se *meeting.StageError
	if errors.As(err, &se) {
		return fmt.Sprintf("status=failed stage=%s segments_analyzed=%d error=%q", se.Stage, se.SegmentsAnalyzed, err.Error())
	}
	if errors.Is(err, meeting.ErrRunCancelled) {
		return fmt.Sprintf("status=cancelled error=%q", err.Error())
	}
	return fmt.Sprintf("status=failed error=%q", err.Error())
}

func rawOutput(err error) string {
	var se *meeting.StageError
	if errors.As(err, &se) {
		return se.Raw
	}
	return ""
}
