package meeting

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/theimaginaryfoundation/eos-tracker/meeting/fileutils"
)

const (
	FlagSummaryBackfilled = "summary_backfilled"
	FlagDeadlineClamped   = "deadline_clamped"
	FlagWeekClamped       = "week_clamped"
	FlagEmptyWeek         = "empty_week"
	FlagOverloadedWeek    = "overloaded_week"
	FlagRockTypeDefaulted = "rock_type_defaulted"
	FlagUnknownIssueRef   = "unknown_issue_ref"
	FlagUnknownRockRef    = "unknown_rock_ref"
	FlagTitleBackfilled   = "title_backfilled"

	maxSummaryLen = 240
)

// validator turns a decoded model response into records, applying every rule that does
// not depend on model quality. It is single-use.
type validator struct {
	resolver *Resolver
	policy   ExtractionPolicy
	numWeeks int
	now      time.Time
	newID    func() string

	issues     []Issue
	issueByKey map[string]int
	rockByKey  map[string]string
	rejections []Rejection
	flags      []ValidationFlag
}

func (v *validator) build(resp extractionResponse) ExtractionResult {
	v.issueByKey = map[string]int{}
	v.rockByKey = map[string]string{}
	v.issues = []Issue{}

	for _, d := range resp.Issues {
		v.addIssue(d)
	}
	runtime := []RuntimeSolution{}
	for _, d := range resp.RuntimeSolutions {
		if s, ok := v.runtimeSolution(d); ok {
			runtime = append(runtime, s)
		}
	}
	rocks := []Rock{}
	for _, d := range resp.Rocks {
		if r, ok := v.rock(d); ok {
			rocks = append(rocks, r)
		}
	}
	todos := []Todo{}
	for _, d := range resp.Todos {
		if t, ok := v.todo(d); ok {
			todos = append(todos, t)
		}
	}

	open := []Issue{}
	for _, is := range v.issues {
		if is.Status == IssueOpen {
			open = append(open, is)
		}
	}

	summary := strings.TrimSpace(resp.SessionSummary)
	if summary == "" {
		summary = fmt.Sprintf("Meeting produced %d issues (%d open), %d runtime solutions, %d todos and %d rocks.",
			len(v.issues), len(open), len(runtime), len(todos), len(rocks))
		v.flag("session", "", "session_summary", FlagSummaryBackfilled, "session summary was empty; generated from record counts")
	}

	return ExtractionResult{
		SessionSummary:   summary,
		Issues:           v.issues,
		RuntimeSolutions: runtime,
		Todos:            todos,
		Rocks:            rocks,
		OpenIssues:       open,
		Rejections:       v.rejections,
		Flags:            v.flags,
		GeneratedAt:      v.now,
	}
}

func (v *validator) addIssue(d issueDraft) {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		v.reject("issue", "", "missing title", d)
		return
	}
	key := normalizeKey(title)
	if _, dup := v.issueByKey[key]; dup {
		v.reject("issue", title, "duplicate issue title", d)
		return
	}

	is := Issue{
		ID:          v.newID(),
		Title:       title,
		Description: strings.TrimSpace(d.Description),
		MentionedBy: v.resolver.Ref(d.RaisedBy),
		Timestamp:   optional(d.Timestamp),
		Status:      IssueOpen,
	}
	if strings.EqualFold(strings.TrimSpace(d.Status), string(IssueResolved)) {
		is.Status = IssueResolved
	}
	is.Summary = v.summary("issue", is.ID, d.Summary, is.Description, title)

	v.issueByKey[key] = len(v.issues)
	v.issues = append(v.issues, is)
}

// linkIssue connects a solution to the issue with the given title. Runtime solutions
// resolve the issue.
func (v *validator) linkIssue(kind SolutionKind, id, issueTitle string) *string {
	issueTitle = strings.TrimSpace(issueTitle)
	if issueTitle == "" {
		return nil
	}
	i, ok := v.issueByKey[normalizeKey(issueTitle)]
	if !ok {
		v.flag(string(kind), id, "issue_title", FlagUnknownIssueRef, fmt.Sprintf("no issue titled %q", issueTitle))
		return nil
	}
	is := &v.issues[i]
	is.Solutions = append(is.Solutions, SolutionLink{Kind: kind, ID: id})
	if kind == SolutionRuntime {
		is.Status = IssueResolved
	}
	ref := is.ID
	return &ref
}

func (v *validator) runtimeSolution(d runtimeSolutionDraft) (RuntimeSolution, bool) {
	desc := strings.TrimSpace(d.Description)
	if desc == "" {
		v.reject("runtime_solution", d.IssueTitle, "missing description", d)
		return RuntimeSolution{}, false
	}
	s := RuntimeSolution{
		ID:          v.newID(),
		Description: desc,
		ResolvedBy:  v.resolver.MustRef(d.ResolvedBy),
		Status:      RuntimeSolutionCompleted,
	}
	s.IssueRef = v.linkIssue(SolutionRuntime, s.ID, d.IssueTitle)
	s.Summary = v.summary("runtime_solution", s.ID, d.Summary, desc)
	return s, true
}

func (v *validator) rock(d rockDraft) (Rock, bool) {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		v.reject("rock", "", "missing title", d)
		return Rock{}, false
	}
	if strings.TrimSpace(d.MeasurableSuccess) == "" {
		v.reject("rock", title, "missing measurable_success", d)
		return Rock{}, false
	}
	key := normalizeKey(title)
	if _, dup := v.rockByKey[key]; dup {
		v.reject("rock", title, "duplicate rock title", d)
		return Rock{}, false
	}

	start := startOfDay(v.now)
	r := Rock{
		ID:                v.newID(),
		Title:             title,
		MeasurableSuccess: strings.TrimSpace(d.MeasurableSuccess),
		Owner:             v.resolver.MustRef(d.Owner),
		StartDate:         start,
		EndDate:           addWeeks(start, v.numWeeks),
		Status:            RockDraft,
	}
	r.RockType = v.rockType(r.ID, d.RockType)
	r.IssueRef = v.linkIssue(SolutionRock, r.ID, d.IssueTitle)
	r.Summary = v.summary("rock", r.ID, d.Summary, r.MeasurableSuccess, title)
	r.WeeklyMilestones = v.milestones(r.ID, d.WeeklyMilestones)
	v.checkWeeks(r.ID, r.WeeklyMilestones)

	v.rockByKey[key] = r.ID
	return r, true
}

func (v *validator) rockType(id, s string) RockType {
	switch t := RockType(strings.ToLower(strings.TrimSpace(s))); t {
	case RockAnnual, RockCompany, RockIndividual:
		return t
	default:
		v.flag("rock", id, "rock_type", FlagRockTypeDefaulted, fmt.Sprintf("rock_type %q is not annual, company or individual; using company", s))
		return RockCompany
	}
}

func (v *validator) milestones(rockID string, weeks []weekDraft) []Milestone {
	out := []Milestone{}
	for _, w := range weeks {
		week := clampInt(w.Week, 1, v.numWeeks)
		for _, d := range w.Milestones {
			title := strings.TrimSpace(d.Title)
			desc := strings.TrimSpace(d.Description)
			if title == "" && desc == "" {
				v.reject("milestone", "", "empty milestone", d)
				continue
			}
			m := Milestone{
				ID:           v.newID(),
				ParentRockID: rockID,
				WeekNumber:   week,
				Title:        title,
				Description:  desc,
				Status:       StatusPending,
			}
			if week != w.Week {
				v.flag("milestone", m.ID, "week_number", FlagWeekClamped, fmt.Sprintf("week %d outside 1..%d; moved to week %d", w.Week, v.numWeeks, week))
			}
			if m.Title == "" {
				m.Title = fileutils.Truncate(oneLine(desc), 80)
				v.flag("milestone", m.ID, "title", FlagTitleBackfilled, "title was empty; derived from description")
			}
			m.Summary = v.summary("milestone", m.ID, d.Summary, desc, m.Title)
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].WeekNumber < out[j].WeekNumber })
	return out
}

// checkWeeks flags empty and overloaded weeks. Both are advisory.
func (v *validator) checkWeeks(rockID string, ms []Milestone) {
	counts := make([]int, v.numWeeks+1)
	for _, m := range ms {
		counts[m.WeekNumber]++
	}
	for week := 1; week <= v.numWeeks; week++ {
		switch c := counts[week]; {
		case c == 0:
			v.flag("rock", rockID, "weekly_milestones", FlagEmptyWeek, fmt.Sprintf("week %d has no milestones", week))
		case c > v.policy.WeekSoftCap:
			v.flag("rock", rockID, "weekly_milestones", FlagOverloadedWeek, fmt.Sprintf("week %d has %d milestones (soft cap %d)", week, c, v.policy.WeekSoftCap))
		}
	}
}

func (v *validator) todo(d todoDraft) (Todo, bool) {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		v.reject("todo", "", "missing title", d)
		return Todo{}, false
	}
	for _, m := range d.Milestones {
		v.reject("milestone", strings.TrimSpace(m.Title), fmt.Sprintf("milestones belong to rocks; found under todo %q", title), m)
	}

	t := Todo{
		ID:          v.newID(),
		Title:       title,
		Description: strings.TrimSpace(d.Description),
		Owner:       v.resolver.MustRef(d.Owner),
		CreatedAt:   v.now,
		Status:      StatusPending,
	}

	days := clampInt(d.DueInDays, v.policy.MinTodoDays, v.policy.MaxTodoDays)
	if days != d.DueInDays {
		v.flag("todo", t.ID, "deadline", FlagDeadlineClamped, fmt.Sprintf("due_in_days %d outside %d..%d; clamped to %d", d.DueInDays, v.policy.MinTodoDays, v.policy.MaxTodoDays, days))
	}
	t.Deadline = v.now.Add(time.Duration(days) * day)

	if rt := strings.TrimSpace(d.RockTitle); rt != "" {
		if id, ok := v.rockByKey[normalizeKey(rt)]; ok {
			t.ParentRockRef = &id
		} else {
			v.flag("todo", t.ID, "rock_title", FlagUnknownRockRef, fmt.Sprintf("no accepted rock titled %q", rt))
		}
	}
	t.IssueRef = v.linkIssue(SolutionTodo, t.ID, d.IssueTitle)
	t.Summary = v.summary("todo", t.ID, d.Summary, t.Description, title)
	return t, true
}

// summary returns given, or the first non-empty fallback (flagged).
func (v *validator) summary(kind, id, given string, fallbacks ...string) string {
	if s := strings.TrimSpace(given); s != "" {
		return s
	}
	for _, f := range fallbacks {
		if s := oneLine(f); s != "" {
			v.flag(kind, id, "summary", FlagSummaryBackfilled, "summary was empty; derived from record text")
			return fileutils.Truncate(s, maxSummaryLen)
		}
	}
	return ""
}

func (v *validator) reject(kind, title, reason string, draft any) {
	raw := ""
	if b, err := json.Marshal(draft); err == nil {
		raw = string(b)
	}
	v.rejections = append(v.rejections, Rejection{Kind: kind, Title: title, Reason: reason, Raw: raw})
}

func (v *validator) flag(kind, id, field, code, msg string) {
	v.flags = append(v.flags, ValidationFlag{Kind: kind, EntityID: id, Field: field, Code: code, Message: msg})
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
