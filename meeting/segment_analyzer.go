package meeting

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/theimaginaryfoundation/eos-tracker/meeting/provider"
)

type segmentResponse struct {
	SpeakerContext   string           `json:"speaker_context"`
	Topics           []string         `json:"topics"`
	Entities         []entityGroup    `json:"entities"`
	People           []personMention  `json:"people"`
	CandidateActions []candidateDraft `json:"candidate_actions"`
	Synthesis        string           `json:"synthesis"`
}

type entityGroup struct {
	Category string   `json:"category"`
	Values   []string `json:"values"`
}

type personMention struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

type candidateDraft struct {
	Text        string `json:"text"`
	MentionedBy string `json:"mentioned_by"`
	Assignee    string `json:"assignee"`
	Scope       string `json:"scope"`
	Context     string `json:"context"`
}

var segmentSchema = provider.GenerateSchema[segmentResponse]()

// PeopleCategory holds composite {name, role} entities.
const PeopleCategory = "people"

// SegmentAnalyzer runs one model pass per transcript segment.
type SegmentAnalyzer struct {
	Model           provider.Completer
	Logger          zerolog.Logger
	MaxOutputTokens int64
}

// Analyze never fails: a segment whose model call or decode fails comes back as an
// empty analysis with Error set.
func (a *SegmentAnalyzer) Analyze(ctx context.Context, seg TranscriptSegment, participants []Participant) SegmentAnalysis {
	return a.analyze(ctx, seg, participants, NewResolver(participants))
}

func (a *SegmentAnalyzer) analyze(ctx context.Context, seg TranscriptSegment, participants []Participant, resolver *Resolver) SegmentAnalysis {
	req := provider.Request{
		Name:            "SegmentAnalysis",
		Instructions:    segmentInstructions,
		Input:           buildSegmentInput(seg, participants),
		Schema:          segmentSchema,
		MaxOutputTokens: a.MaxOutputTokens,
	}

	var resp segmentResponse
	if _, err := completeJSON(ctx, a.Model, req, &resp, a.Logger); err != nil {
		a.Logger.Warn().Err(err).Int("segment", seg.Index).Msg("segment analysis failed")
		return failedAnalysis(seg.Index, err)
	}

	out := convertSegment(seg, resp, resolver)
	a.Logger.Debug().
		Int("segment", seg.Index).
		Int("topics", len(out.Topics)).
		Int("actions", len(out.CandidateActions)).
		Msg("segment analyzed")
	return out
}

func failedAnalysis(index int, err error) SegmentAnalysis {
	return SegmentAnalysis{
		SegmentIndex:     index,
		Topics:           []string{},
		Entities:         map[string][]EntityValue{},
		CandidateActions: []CandidateAction{},
		Error:            err.Error(),
	}
}

func convertSegment(seg TranscriptSegment, resp segmentResponse, resolver *Resolver) SegmentAnalysis {
	out := SegmentAnalysis{
		SegmentIndex:     seg.Index,
		Speaker:          strings.TrimSpace(resp.SpeakerContext),
		Topics:           dedupStrings(resp.Topics),
		Entities:         map[string][]EntityValue{},
		CandidateActions: []CandidateAction{},
		Synthesis:        strings.TrimSpace(resp.Synthesis),
	}
	if out.Speaker == "" {
		out.Speaker = speakerOf(seg)
	}

	for _, g := range resp.Entities {
		cat := normalizeCategory(g.Category)
		if cat == "" {
			continue
		}
		for _, v := range g.Values {
			if ev := Scalar(v); !ev.IsZero() {
				out.Entities[cat] = append(out.Entities[cat], ev)
			}
		}
	}
	for _, p := range resp.People {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			continue
		}
		if res := resolver.Resolve(name); res.Matched {
			name = res.CanonicalName
		}
		out.Entities[PeopleCategory] = append(out.Entities[PeopleCategory], Composite(map[string]string{
			"name": name,
			"role": p.Role,
		}))
	}

	for _, c := range resp.CandidateActions {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		out.CandidateActions = append(out.CandidateActions, CandidateAction{
			Text:        text,
			MentionedBy: resolver.Ref(c.MentionedBy),
			Assignee:    resolver.Ref(c.Assignee),
			Scope:       normalizeScope(c.Scope),
			Context:     strings.TrimSpace(c.Context),
		})
	}
	return out
}

func buildSegmentInput(seg TranscriptSegment, participants []Participant) string {
	var b strings.Builder
	fmt.Fprintf(&b, "segment_metadata:\nindex=%d\n", seg.Index)
	if sp := speakerOf(seg); sp != "" {
		fmt.Fprintf(&b, "speaker=%s\n", sp)
	}
	if seg.StartTime != nil || seg.EndTime != nil {
		fmt.Fprintf(&b, "time_range=%s..%s\n", deref(seg.StartTime), deref(seg.EndTime))
	}
	b.WriteString("\nparticipants:\n")
	b.WriteString(participantsCSV(participants))
	b.WriteString("\n\ntranscript:\n")
	b.WriteString(seg.Text)
	return b.String()
}

// participantsCSV renders the directory as "Full Name,Job Role" rows.
func participantsCSV(participants []Participant) string {
	var b strings.Builder
	b.WriteString("Full Name,Job Role")
	for _, p := range participants {
		fmt.Fprintf(&b, "\n%s,%s", csvField(p.Name), csvField(p.Designation))
	}
	return b.String()
}

func csvField(s string) string {
	s = strings.TrimSpace(s)
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

func normalizeScope(s string) ActionScope {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "immediate":
		return ScopeImmediate
	case "short_term", "short term", "shortterm":
		return ScopeShortTerm
	case "strategic":
		return ScopeStrategic
	default:
		return ""
	}
}

func normalizeCategory(s string) string {
	return strings.ReplaceAll(normalizeKey(s), " ", "_")
}

// dedupStrings trims, drops blanks and removes case-insensitive duplicates, keeping the
// first spelling.
func dedupStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		k := normalizeKey(s)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
