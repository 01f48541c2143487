package meeting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultConcurrency bounds in-flight segment analyses.
const DefaultConcurrency = 6

// Pipeline runs normalize -> segment fan-out -> aggregate -> extract for one transcript.
type Pipeline struct {
	Analyzer    *SegmentAnalyzer
	Extractor   *Extractor
	Concurrency int
	MaxSegments int
	Logger      zerolog.Logger
}

// Run returns a fully validated result or an error, never both. Failed segments reduce
// coverage but do not fail the run. If ctx is cancelled, segment calls already in flight
// finish, nothing new starts, and ErrRunCancelled is returned.
func (p *Pipeline) Run(ctx context.Context, transcript Transcript, participants []Participant, numWeeks int) (ExtractionResult, error) {
	if p.Analyzer == nil || p.Extractor == nil {
		return ExtractionResult{}, errors.New("pipeline: analyzer and extractor are required")
	}
	if numWeeks <= 0 {
		return ExtractionResult{}, fmt.Errorf("%w: num_weeks must be positive, got %d", ErrInvalidRequest, numWeeks)
	}

	segments := transcript.Normalize(p.MaxSegments)
	if len(segments) == 0 {
		return ExtractionResult{}, ErrEmptyTranscript
	}

	start := time.Now()
	p.Logger.Info().
		Int("segments", len(segments)).
		Int("participants", len(participants)).
		Int("num_weeks", numWeeks).
		Msg("pipeline started")

	analyses, err := p.analyzeSegments(ctx, segments, participants)
	if err != nil {
		return ExtractionResult{}, err
	}

	agg := Aggregate(analyses)
	if agg.Coverage.Partial() {
		p.Logger.Warn().
			Int("analyzed", agg.Coverage.Analyzed).
			Int("total", agg.Coverage.Total).
			Ints("failed_segments", agg.Coverage.FailedSegments).
			Msg("partial segment coverage")
	}

	out, err := p.Extractor.Extract(ctx, agg, analyses, participants, numWeeks)
	if err != nil {
		if ctx.Err() != nil {
			return ExtractionResult{}, fmt.Errorf("%w: %w", ErrRunCancelled, ctx.Err())
		}
		return ExtractionResult{}, err
	}

	p.Logger.Info().
		Dur("elapsed", time.Since(start)).
		Int("segments_analyzed", agg.Coverage.Analyzed).
		Msg("pipeline finished")
	return out, nil
}

// analyzeSegments is the only join point: it returns once every started segment has a
// result or a failure placeholder.
func (p *Pipeline) analyzeSegments(ctx context.Context, segments []TranscriptSegment, participants []Participant) ([]SegmentAnalysis, error) {
	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	resolver := NewResolver(participants)
	// In-flight calls run detached so a cancellation does not tear them down mid-request.
	callCtx := context.WithoutCancel(ctx)

	results := make([]SegmentAnalysis, len(segments))
	sem := make(chan struct{}, concurrency)

	var wg sync.WaitGroup
	for i, seg := range segments {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = p.Analyzer.analyze(callCtx, seg, participants, resolver)
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		p.Logger.Warn().Err(err).Msg("pipeline cancelled; discarding segment results")
		return nil, fmt.Errorf("%w: %w", ErrRunCancelled, err)
	}
	return results, nil
}
