package meeting

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/theimaginaryfoundation/eos-tracker/meeting/provider"
)

var scenarioParticipants = []Participant{
	{ID: "1", Name: "Emily Davis"},
	{ID: "2", Name: "Michael Chen"},
	{ID: "3", Name: "Sarah Johnson"},
}

const scenarioSegmentJSON = `{
  "speaker_context": "Sarah assigning security work",
  "topics": ["Encryption", "Coordination"],
  "entities": [{"category": "Projects", "values": ["encryption"]}],
  "people": [{"name": "Emily", "role": "owner"}, {"name": "Mike", "role": "coordinator"}],
  "candidate_actions": [
    {"text": "Take ownership of encryption", "mentioned_by": "Sarah", "assignee": "Emily", "scope": "strategic", "context": ""},
    {"text": "Coordinate with Emily", "mentioned_by": "Sarah", "assignee": "Mike", "scope": "short-term", "context": ""}
  ],
  "synthesis": "Encryption ownership assigned."
}`

const scenarioExtractionJSON = `{
  "session_summary": "Sarah assigned encryption work.",
  "issues": [],
  "runtime_solutions": [],
  "todos": [
    {"title": "Take ownership of encryption", "description": "", "owner": "Emily", "due_in_days": 7, "rock_title": "", "issue_title": "", "summary": "Emily owns encryption."},
    {"title": "Coordinate with Emily", "description": "", "owner": "Mike", "due_in_days": 7, "rock_title": "", "issue_title": "", "summary": "Mike coordinates."}
  ],
  "rocks": []
}`

func TestSegmentAnalyzer_ResolvesActionNames(t *testing.T) {
	t.Parallel()

	model := newScriptedModel().on("SegmentAnalysis", func(n int, req provider.Request) (string, error) {
		return scenarioSegmentJSON, nil
	})
	a := &SegmentAnalyzer{Model: model}
	got := a.Analyze(context.Background(), TranscriptSegment{Index: 4, Text: "Sarah: Emily, take ownership of encryption. Mike, coordinate with Emily."}, scenarioParticipants)

	if got.Failed() {
		t.Fatalf("unexpected failure: %s", got.Error)
	}
	if got.SegmentIndex != 4 || len(got.CandidateActions) != 2 {
		t.Fatalf("analysis=%+v", got)
	}
	emily, mike := got.CandidateActions[0], got.CandidateActions[1]
	if emily.Assignee == nil || *emily.Assignee.ID != "1" || emily.Assignee.Name != "Emily Davis" {
		t.Fatalf("emily assignee=%+v", emily.Assignee)
	}
	if mike.Assignee == nil || *mike.Assignee.ID != "2" || mike.Assignee.Name != "Michael Chen" {
		t.Fatalf("mike assignee=%+v", mike.Assignee)
	}
	if emily.MentionedBy == nil || *emily.MentionedBy.ID != "3" {
		t.Fatalf("mentioned_by=%+v", emily.MentionedBy)
	}
	if emily.Scope != ScopeStrategic || mike.Scope != ScopeShortTerm {
		t.Fatalf("scopes=%q,%q", emily.Scope, mike.Scope)
	}
	people := got.Entities[PeopleCategory]
	if len(people) != 2 || people[1].Fields["name"] != "Michael Chen" || people[1].Fields["role"] != "coordinator" {
		t.Fatalf("people=%v", people)
	}
	if len(got.Entities["projects"]) != 1 {
		t.Fatalf("entities=%v", got.Entities)
	}
}

func TestSegmentAnalyzer_FailureReturnsPlaceholder(t *testing.T) {
	t.Parallel()

	model := newScriptedModel().on("SegmentAnalysis", func(n int, req provider.Request) (string, error) {
		return "", errors.New("invalid api key")
	})
	got := (&SegmentAnalyzer{Model: model}).Analyze(context.Background(), TranscriptSegment{Index: 2, Text: "x"}, nil)
	if !got.Failed() || got.SegmentIndex != 2 {
		t.Fatalf("analysis=%+v", got)
	}
	if len(got.Topics) != 0 || len(got.Entities) != 0 || len(got.CandidateActions) != 0 {
		t.Fatalf("placeholder should be empty: %+v", got)
	}
}

func TestPipeline_ScenarioEncryptionOwnership(t *testing.T) {
	t.Parallel()

	model := newScriptedModel().
		on("SegmentAnalysis", func(n int, req provider.Request) (string, error) { return scenarioSegmentJSON, nil }).
		on("MeetingExtraction", func(n int, req provider.Request) (string, error) {
			if !strings.Contains(req.Input, "references work owned by Emily Davis") {
				return "", errors.New("dependency hint missing from extraction input")
			}
			return scenarioExtractionJSON, nil
		})

	p := &Pipeline{
		Analyzer:  &SegmentAnalyzer{Model: model},
		Extractor: &Extractor{Model: model, Now: fixedNow, NewID: seqIDs("id")},
	}
	got, err := p.Run(context.Background(), Transcript{Text: "Sarah: Emily, take ownership of encryption. Mike, coordinate with Emily."}, scenarioParticipants, 12)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got.Todos) != 2 {
		t.Fatalf("todos=%+v", got.Todos)
	}
	if got.Todos[0].Owner.Name != "Emily Davis" || *got.Todos[0].Owner.ID != "1" {
		t.Fatalf("todo[0].owner=%+v", got.Todos[0].Owner)
	}
	if got.Todos[1].Owner.Name != "Michael Chen" || *got.Todos[1].Owner.ID != "2" {
		t.Fatalf("todo[1].owner=%+v", got.Todos[1].Owner)
	}
	if got.Coverage.Total != 2 || got.Coverage.Analyzed != 2 {
		t.Fatalf("coverage=%+v", got.Coverage)
	}
}

func TestPipeline_TimedOutSegmentDegrades(t *testing.T) {
	t.Parallel()

	var slowCalls int32
	segments := newScriptedModel().on("SegmentAnalysis", func(n int, req provider.Request) (string, error) {
		if strings.Contains(req.Input, "index=2") {
			atomic.AddInt32(&slowCalls, 1)
			time.Sleep(50 * time.Millisecond)
			return "", context.DeadlineExceeded
		}
		return `{"speaker_context":"","topics":["Budget"],"entities":[],"people":[],"candidate_actions":[],"synthesis":""}`, nil
	})
	retrying := provider.Retrying{
		Next: segments,
		Policy: provider.RetryPolicy{
			MaxAttempts:    3,
			TransientWaits: []time.Duration{time.Millisecond},
		},
		Logger: zerolog.Nop(),
	}

	var extractionInput string
	extraction := newScriptedModel().on("MeetingExtraction", func(n int, req provider.Request) (string, error) {
		extractionInput = req.Input
		return `{"session_summary":"partial","issues":[],"runtime_solutions":[],"todos":[],"rocks":[]}`, nil
	})

	p := &Pipeline{
		Analyzer:    &SegmentAnalyzer{Model: retrying},
		Extractor:   &Extractor{Model: extraction, Now: fixedNow},
		Concurrency: 2,
	}
	tr := Transcript{Text: "One. Two. Three. Four."}
	got, err := p.Run(context.Background(), tr, scenarioParticipants, 4)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if slowCalls != 3 {
		t.Fatalf("slow segment attempts=%d, want 3", slowCalls)
	}
	if got.Coverage.Total != 4 || got.Coverage.Analyzed != 3 || len(got.Coverage.FailedSegments) != 1 || got.Coverage.FailedSegments[0] != 2 {
		t.Fatalf("coverage=%+v", got.Coverage)
	}
	if !strings.Contains(extractionInput, "segments_missing=[3]") {
		t.Fatalf("extraction input missing coverage note:\n%s", extractionInput)
	}
}

func TestPipeline_CancelledRunDiscardsResults(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{}, 8)
	var finished int32
	model := newScriptedModel().
		on("SegmentAnalysis", func(n int, req provider.Request) (string, error) {
			started <- struct{}{}
			time.Sleep(30 * time.Millisecond)
			atomic.AddInt32(&finished, 1)
			return `{"speaker_context":"","topics":[],"entities":[],"people":[],"candidate_actions":[],"synthesis":""}`, nil
		}).
		on("MeetingExtraction", func(n int, req provider.Request) (string, error) {
			return "", errors.New("extraction must not run")
		})

	p := &Pipeline{
		Analyzer:    &SegmentAnalyzer{Model: model},
		Extractor:   &Extractor{Model: model},
		Concurrency: 1,
	}
	go func() {
		<-started
		cancel()
	}()

	got, err := p.Run(ctx, Transcript{Text: "One. Two. Three. Four. Five. Six."}, scenarioParticipants, 4)
	if !errors.Is(err, ErrRunCancelled) {
		t.Fatalf("err=%v, want ErrRunCancelled", err)
	}
	if len(got.Todos) != 0 || got.SessionSummary != "" {
		t.Fatalf("cancelled run returned output: %+v", got)
	}
	if finished != 1 {
		t.Fatalf("finished=%d, want only the in-flight segment to complete", finished)
	}
	if model.count("MeetingExtraction") != 0 {
		t.Fatalf("extraction ran after cancellation")
	}
}

func TestPipeline_InputErrors(t *testing.T) {
	t.Parallel()

	p := &Pipeline{Analyzer: &SegmentAnalyzer{}, Extractor: &Extractor{}}
	if _, err := p.Run(context.Background(), Transcript{Text: "  "}, nil, 4); !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("err=%v, want ErrEmptyTranscript", err)
	}
	if _, err := p.Run(context.Background(), Transcript{Text: "Hi."}, nil, 0); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err=%v, want ErrInvalidRequest", err)
	}
}
