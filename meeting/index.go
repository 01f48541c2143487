package meeting

import (
	"strings"
	"time"

	"github.com/theimaginaryfoundation/eos-tracker/meeting/fileutils"
)

// IndexRecord is one JSONL row describing a processed meeting and where its result lives.
type IndexRecord struct {
	MeetingID   string    `json:"meeting_id"`
	GeneratedAt time.Time `json:"generated_at"`
	ResultPath  string    `json:"result_path"`
	Summary     string    `json:"summary"`
	Issues      []string  `json:"issues,omitempty"`
	Rocks       []string  `json:"rocks,omitempty"`
	Owners      []string  `json:"owners,omitempty"`
	OpenIssues  int       `json:"open_issues"`
	Todos       int       `json:"todos"`
	Partial     bool      `json:"partial,omitempty"`
}

// BuildIndexRecord creates a stable index row for an extraction result. Owners lists
// resolved participants only; summaryMax <= 0 keeps the full summary.
func BuildIndexRecord(meetingID, resultPath string, res ExtractionResult, summaryMax int) IndexRecord {
	rec := IndexRecord{
		MeetingID:   meetingID,
		GeneratedAt: res.GeneratedAt,
		ResultPath:  resultPath,
		Summary:     fileutils.Truncate(fileutils.FlattenNewlines(res.SessionSummary), summaryMax),
		OpenIssues:  len(res.OpenIssues),
		Todos:       len(res.Todos),
		Partial:     res.Coverage.Partial(),
	}

	var issues, rocks, owners []string
	for _, is := range res.Issues {
		issues = append(issues, is.Title)
	}
	for _, r := range res.Rocks {
		rocks = append(rocks, r.Title)
		owners = append(owners, resolvedName(r.Owner))
	}
	for _, td := range res.Todos {
		owners = append(owners, resolvedName(td.Owner))
	}
	rec.Issues = nilIfEmpty(dedupStrings(issues))
	rec.Rocks = nilIfEmpty(dedupStrings(rocks))
	rec.Owners = nilIfEmpty(dedupStrings(owners))
	return rec
}

func resolvedName(ref ParticipantRef) string {
	if ref.ID == nil {
		return ""
	}
	return strings.TrimSpace(ref.Name)
}

func nilIfEmpty(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	return in
}
