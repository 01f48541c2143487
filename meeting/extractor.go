package meeting

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/theimaginaryfoundation/eos-tracker/meeting/fileutils"
	"github.com/theimaginaryfoundation/eos-tracker/meeting/provider"
)

type extractionResponse struct {
	SessionSummary   string                 `json:"session_summary"`
	Issues           []issueDraft           `json:"issues"`
	RuntimeSolutions []runtimeSolutionDraft `json:"runtime_solutions"`
	Todos            []todoDraft            `json:"todos"`
	Rocks            []rockDraft            `json:"rocks"`
}

type issueDraft struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	RaisedBy    string `json:"raised_by"`
	Timestamp   string `json:"timestamp"`
	Status      string `json:"status"`
	Summary     string `json:"summary"`
}

type runtimeSolutionDraft struct {
	IssueTitle  string `json:"issue_title"`
	Description string `json:"description"`
	ResolvedBy  string `json:"resolved_by"`
	Summary     string `json:"summary"`
}

type todoDraft struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Owner       string `json:"owner"`
	DueInDays   int    `json:"due_in_days"`
	RockTitle   string `json:"rock_title"`
	IssueTitle  string `json:"issue_title"`
	Summary     string `json:"summary"`

	// Milestones is not part of the schema; models that attach them anyway get them
	// rejected during validation.
	Milestones []milestoneDraft `json:"milestones,omitempty" jsonschema:"-"`
}

type rockDraft struct {
	RockType          string      `json:"rock_type"`
	Title             string      `json:"title"`
	MeasurableSuccess string      `json:"measurable_success"`
	Owner             string      `json:"owner"`
	IssueTitle        string      `json:"issue_title"`
	Summary           string      `json:"summary"`
	WeeklyMilestones  []weekDraft `json:"weekly_milestones"`
}

type weekDraft struct {
	Week       int              `json:"week"`
	Milestones []milestoneDraft `json:"milestones"`
}

type milestoneDraft struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Summary     string `json:"summary"`
}

var extractionSchema = provider.GenerateSchema[extractionResponse]()

// ExtractionPolicy holds the validation bounds applied to model output.
type ExtractionPolicy struct {
	MinTodoDays int
	MaxTodoDays int

	// WeekSoftCap is the per-week milestone count above which a week is flagged overloaded.
	WeekSoftCap int
}

func DefaultExtractionPolicy() ExtractionPolicy {
	return ExtractionPolicy{MinTodoDays: 1, MaxTodoDays: 14, WeekSoftCap: 5}
}

// Extractor produces the final structured records from aggregated context.
type Extractor struct {
	Model           provider.Completer
	Logger          zerolog.Logger
	Policy          ExtractionPolicy
	MaxOutputTokens int64

	// Now and NewID default to time.Now and random UUIDs.
	Now   func() time.Time
	NewID func() string
}

// Extract runs one model pass over the aggregated context and every segment analysis,
// then validates the result. Any failure is a *StageError and no partial result is
// returned.
func (e *Extractor) Extract(ctx context.Context, agg AggregatedContext, analyses []SegmentAnalysis, participants []Participant, numWeeks int) (ExtractionResult, error) {
	if numWeeks <= 0 {
		return ExtractionResult{}, fmt.Errorf("%w: num_weeks must be positive, got %d", ErrInvalidRequest, numWeeks)
	}

	req := provider.Request{
		Name:            "MeetingExtraction",
		Instructions:    extractionInstructions,
		Input:           buildExtractionInput(agg, analyses, participants, numWeeks),
		Schema:          extractionSchema,
		MaxOutputTokens: e.MaxOutputTokens,
	}

	var resp extractionResponse
	raw, err := completeJSON(ctx, e.Model, req, &resp, e.Logger)
	if err != nil {
		return ExtractionResult{}, &StageError{
			Stage:            "extraction",
			Raw:              raw,
			SegmentsAnalyzed: agg.Coverage.Analyzed,
			Err:              err,
		}
	}

	v := e.newValidator(participants, numWeeks)
	out := v.build(resp)
	out.Coverage = agg.Coverage

	e.Logger.Info().
		Int("issues", len(out.Issues)).
		Int("runtime_solutions", len(out.RuntimeSolutions)).
		Int("todos", len(out.Todos)).
		Int("rocks", len(out.Rocks)).
		Int("rejections", len(out.Rejections)).
		Int("flags", len(out.Flags)).
		Msg("extraction validated")
	return out, nil
}

func (e *Extractor) newValidator(participants []Participant, numWeeks int) *validator {
	policy := e.Policy
	def := DefaultExtractionPolicy()
	if policy.MinTodoDays <= 0 {
		policy.MinTodoDays = def.MinTodoDays
	}
	if policy.MaxTodoDays < policy.MinTodoDays {
		policy.MaxTodoDays = max(def.MaxTodoDays, policy.MinTodoDays)
	}
	if policy.WeekSoftCap <= 0 {
		policy.WeekSoftCap = def.WeekSoftCap
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	newID := uuid.NewString
	if e.NewID != nil {
		newID = e.NewID
	}
	return &validator{
		resolver: NewResolver(participants),
		policy:   policy,
		numWeeks: numWeeks,
		now:      now(),
		newID:    newID,
	}
}

func buildExtractionInput(agg AggregatedContext, analyses []SegmentAnalysis, participants []Participant, numWeeks int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "meeting_context:\nsegments_total=%d\nsegments_analyzed=%d\nnum_weeks=%d\n",
		agg.Coverage.Total, agg.Coverage.Analyzed, numWeeks)
	if len(agg.Coverage.FailedSegments) > 0 {
		fmt.Fprintf(&b, "segments_missing=%v\n", oneBased(agg.Coverage.FailedSegments))
	}

	b.WriteString("\nparticipants_csv:\n")
	b.WriteString(participantsCSV(participants))
	b.WriteString("\n")

	if len(agg.TopicsRanked) > 0 {
		b.WriteString("\ntopics_ranked:\n")
		for _, t := range agg.TopicsRanked {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	}
	if len(agg.EntitiesMerged) > 0 {
		b.WriteString("\nentities:\n")
		for _, cat := range slices.Sorted(maps.Keys(agg.EntitiesMerged)) {
			vals := agg.EntitiesMerged[cat]
			parts := make([]string, 0, len(vals))
			for _, v := range vals {
				parts = append(parts, v.String())
			}
			fmt.Fprintf(&b, "- %s: %s\n", cat, strings.Join(parts, "; "))
		}
	}
	if len(agg.DependencyHints) > 0 {
		b.WriteString("\ndependency_hints:\n")
		for _, h := range agg.DependencyHints {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}

	for _, a := range analyses {
		if a.Failed() {
			continue
		}
		fmt.Fprintf(&b, "\nSEGMENT %d ANALYSIS:\n", a.SegmentIndex+1)
		if a.Speaker != "" {
			fmt.Fprintf(&b, "speaker_context: %s\n", a.Speaker)
		}
		if a.Synthesis != "" {
			fmt.Fprintf(&b, "synthesis: %s\n", fileutils.FlattenNewlines(a.Synthesis))
		}
		if len(a.Topics) > 0 {
			fmt.Fprintf(&b, "topics: %s\n", strings.Join(a.Topics, "; "))
		}
		for _, c := range a.CandidateActions {
			fmt.Fprintf(&b, "- action: %s", fileutils.Truncate(fileutils.FlattenNewlines(c.Text), 400))
			if c.Assignee != nil {
				fmt.Fprintf(&b, " | assignee: %s", c.Assignee.Name)
			}
			if c.MentionedBy != nil {
				fmt.Fprintf(&b, " | mentioned_by: %s", c.MentionedBy.Name)
			}
			if c.Scope != "" {
				fmt.Fprintf(&b, " | scope: %s", c.Scope)
			}
			if c.Context != "" {
				fmt.Fprintf(&b, " | context: %s", fileutils.Truncate(fileutils.FlattenNewlines(c.Context), 400))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func oneBased(idx []int) []int {
	out := make([]int, len(idx))
	for i, v := range idx {
		out[i] = v + 1
	}
	return out
}
