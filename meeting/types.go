// Package meeting turns meeting transcripts into EOS records (issues, runtime solutions,
// todos and rocks with weekly milestones) and redistributes rock milestones when a
// timeline changes.
package meeting

import "time"

// Participant is one entry of the directory a run resolves names against.
type Participant struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Designation string `json:"designation,omitempty"`
}

// TranscriptSegment is one time-ordered piece of a transcript.
type TranscriptSegment struct {
	Index     int     `json:"index"`
	Text      string  `json:"text"`
	Speaker   *string `json:"speaker,omitempty"`
	StartTime *string `json:"start_time,omitempty"`
	EndTime   *string `json:"end_time,omitempty"`
}

// Transcript is the pipeline input. Either Segments or Text is set; Text is split into
// sentence windows by Normalize.
type Transcript struct {
	Segments []TranscriptSegment `json:"segments,omitempty"`
	Text     string              `json:"text,omitempty"`
}

// ParticipantRef points at a directory participant. A nil ID is the explicit unresolved
// marker; Name then carries "UNASSIGNED: <original>".
type ParticipantRef struct {
	ID           *string `json:"id"`
	Name         string  `json:"name"`
	Matched      bool    `json:"matched"`
	OriginalName string  `json:"original_name,omitempty"`
}

type ActionScope string

const (
	ScopeImmediate ActionScope = "immediate"
	ScopeShortTerm ActionScope = "short_term"
	ScopeStrategic ActionScope = "strategic"
)

// CandidateAction is a task surfaced by segment analysis, with names already resolved.
type CandidateAction struct {
	Text        string          `json:"text"`
	MentionedBy *ParticipantRef `json:"mentioned_by,omitempty"`
	Assignee    *ParticipantRef `json:"assignee,omitempty"`
	Scope       ActionScope     `json:"scope,omitempty"`
	Context     string          `json:"context,omitempty"`
}

// SegmentAnalysis is the per-segment extraction. Error is set when the segment could not
// be analyzed; the other fields are then empty.
type SegmentAnalysis struct {
	SegmentIndex     int                      `json:"segment_index"`
	Speaker          string                   `json:"speaker,omitempty"`
	Topics           []string                 `json:"topics"`
	Entities         map[string][]EntityValue `json:"entities"`
	CandidateActions []CandidateAction        `json:"candidate_actions"`
	Synthesis        string                   `json:"synthesis,omitempty"`
	Error            string                   `json:"error,omitempty"`
}

// Failed reports whether the segment fell back to an empty placeholder.
func (a SegmentAnalysis) Failed() bool { return a.Error != "" }

// Coverage reports how many segments contributed to an aggregate.
type Coverage struct {
	Total          int   `json:"total"`
	Analyzed       int   `json:"analyzed"`
	FailedSegments []int `json:"failed_segments,omitempty"`
}

// Partial reports whether at least one segment failed.
func (c Coverage) Partial() bool { return len(c.FailedSegments) > 0 }

// AggregatedContext is the whole-transcript view handed to extraction.
type AggregatedContext struct {
	TopicsRanked    []string                 `json:"topics_ranked"`
	EntitiesMerged  map[string][]EntityValue `json:"entities_merged"`
	DependencyHints []string                 `json:"dependency_hints"`
	Coverage        Coverage                 `json:"coverage"`
}

type IssueStatus string

const (
	IssueOpen     IssueStatus = "open"
	IssueResolved IssueStatus = "resolved"
)

type SolutionKind string

const (
	SolutionRuntime SolutionKind = "runtime"
	SolutionTodo    SolutionKind = "todo"
	SolutionRock    SolutionKind = "rock"
)

// SolutionLink is the issue-side half of an issue/solution reference.
type SolutionLink struct {
	Kind SolutionKind `json:"kind"`
	ID   string       `json:"id"`
}

// Issue carries no category or priority fields.
type Issue struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	MentionedBy *ParticipantRef `json:"mentioned_by,omitempty"`
	Timestamp   *string         `json:"timestamp,omitempty"`
	Status      IssueStatus     `json:"status"`
	Summary     string          `json:"summary"`
	Solutions   []SolutionLink  `json:"solutions,omitempty"`
}

// RuntimeSolution is an issue resolved during the meeting itself.
type RuntimeSolution struct {
	ID          string         `json:"id"`
	IssueRef    *string        `json:"issue_ref,omitempty"`
	Description string         `json:"description"`
	ResolvedBy  ParticipantRef `json:"resolved_by"`
	Status      string         `json:"status"`
	Summary     string         `json:"summary"`
}

const RuntimeSolutionCompleted = "completed"

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
)

// Todo is a short-horizon action item. It never carries milestones.
type Todo struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	ParentRockRef *string        `json:"parent_rock_ref,omitempty"`
	IssueRef      *string        `json:"issue_ref,omitempty"`
	Owner         ParticipantRef `json:"owner"`
	CreatedAt     time.Time      `json:"created_at"`
	Deadline      time.Time      `json:"deadline"`
	Status        TaskStatus     `json:"status"`
	Summary       string         `json:"summary"`
}

type RockType string

const (
	RockAnnual     RockType = "annual"
	RockCompany    RockType = "company"
	RockIndividual RockType = "individual"
)

type RockStatus string

const (
	RockDraft     RockStatus = "draft"
	RockActive    RockStatus = "active"
	RockCompleted RockStatus = "completed"
	RockBlocked   RockStatus = "blocked"
	RockDeferred  RockStatus = "deferred"
	RockCancelled RockStatus = "cancelled"
)

// Rock is a strategic goal broken into weekly milestones.
type Rock struct {
	ID                string         `json:"id"`
	RockType          RockType       `json:"rock_type"`
	Title             string         `json:"title"`
	MeasurableSuccess string         `json:"measurable_success"`
	Owner             ParticipantRef `json:"owner"`
	IssueRef          *string        `json:"issue_ref,omitempty"`
	StartDate         time.Time      `json:"start_date"`
	EndDate           time.Time      `json:"end_date"`
	WeeklyMilestones  []Milestone    `json:"weekly_milestones"`
	Status            RockStatus     `json:"status"`
	Summary           string         `json:"summary"`
}

// PercentageCompletion is derived from milestone statuses on every read.
func (r Rock) PercentageCompletion() float64 {
	return CompletionPercentage(r.WeeklyMilestones)
}

// CompletionPercentage returns completed/total as a percentage rounded to one decimal.
func CompletionPercentage(ms []Milestone) float64 {
	if len(ms) == 0 {
		return 0
	}
	done := 0
	for _, m := range ms {
		if m.Status == StatusCompleted {
			done++
		}
	}
	return round(float64(done)/float64(len(ms))*100, 1)
}

// Milestone belongs to exactly one rock.
type Milestone struct {
	ID           string     `json:"id"`
	ParentRockID string     `json:"parent_rock_id"`
	WeekNumber   int        `json:"week_number"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Status       TaskStatus `json:"status"`
	Summary      string     `json:"summary"`

	// SourceIDs lists the milestones an optimizer output replaced.
	SourceIDs []string `json:"source_ids,omitempty"`
}

// Rejection records an entity excluded from the output and why.
type Rejection struct {
	Kind   string `json:"kind"`
	Title  string `json:"title"`
	Reason string `json:"reason"`
	Raw    string `json:"raw,omitempty"`
}

// ValidationFlag records an auto-correction or advisory finding on a kept entity.
type ValidationFlag struct {
	Kind     string `json:"kind"`
	EntityID string `json:"entity_id,omitempty"`
	Field    string `json:"field,omitempty"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// ExtractionResult is the all-or-nothing output of one pipeline run.
type ExtractionResult struct {
	SessionSummary   string            `json:"session_summary"`
	Issues           []Issue           `json:"issues"`
	RuntimeSolutions []RuntimeSolution `json:"runtime_solutions"`
	Todos            []Todo            `json:"todos"`
	Rocks            []Rock            `json:"rocks"`
	OpenIssues       []Issue           `json:"open_issues"`
	Rejections       []Rejection       `json:"rejections,omitempty"`
	Flags            []ValidationFlag  `json:"flags,omitempty"`
	Coverage         Coverage          `json:"coverage"`
	GeneratedAt      time.Time         `json:"generated_at"`
}
