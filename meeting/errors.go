package meeting

import (
	"errors"
	"fmt"
)

var (
	// ErrRunCancelled is returned when a pipeline run is cancelled; no output is produced.
	ErrRunCancelled = errors.New("pipeline run cancelled")

	// ErrMalformedOutput marks model output that could not be decoded even after repair
	// and a stricter retry.
	ErrMalformedOutput = errors.New("malformed model output")

	// ErrInvalidRequest marks caller input that cannot be processed.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrEmptyTranscript is returned when a transcript has no usable text.
	ErrEmptyTranscript = errors.New("transcript has no text")
)

// StageError is a terminal failure of one pipeline stage. Raw holds the last model output
// (if any) for manual review.
type StageError struct {
	Stage            string
	Raw              string
	SegmentsAnalyzed int
	Err              error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed (segments analyzed: %d): %v", e.Stage, e.SegmentsAnalyzed, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
