package meeting

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/theimaginaryfoundation/eos-tracker/meeting/fileutils"
)

func TestBuildIndexRecord(t *testing.T) {
	t.Parallel()

	sarah := ParticipantRef{ID: strPtr("emp_001"), Name: "Sarah Johnson", Matched: true}
	res := ExtractionResult{
		SessionSummary: " Reviewed\nonboarding. ",
		Issues:         []Issue{{Title: "Slow onboarding"}, {Title: "slow onboarding"}, {Title: "VPN"}},
		OpenIssues:     []Issue{{Title: "VPN"}},
		Rocks:          []Rock{{Title: "Revamp", Owner: sarah}},
		Todos: []Todo{
			{Title: "a", Owner: sarah},
			{Title: "b", Owner: ParticipantRef{Name: "UNASSIGNED: Zed"}},
		},
		Coverage: Coverage{Total: 3, Analyzed: 2, FailedSegments: []int{1}},
	}

	rec := BuildIndexRecord("mtg-1", "out/r.json", res, 0)
	if rec.Summary != "Reviewed onboarding." {
		t.Fatalf("Summary=%q", rec.Summary)
	}
	if len(rec.Issues) != 2 {
		t.Fatalf("Issues=%v, want 2", rec.Issues)
	}
	if len(rec.Owners) != 1 || rec.Owners[0] != "Sarah Johnson" {
		t.Fatalf("Owners=%v, want [Sarah Johnson]", rec.Owners)
	}
	if rec.OpenIssues != 1 || rec.Todos != 2 || !rec.Partial {
		t.Fatalf("open=%d todos=%d partial=%v", rec.OpenIssues, rec.Todos, rec.Partial)
	}

	short := BuildIndexRecord("mtg-1", "out/r.json", res, 8)
	if !strings.HasSuffix(short.Summary, "…") {
		t.Fatalf("Summary=%q, want truncated", short.Summary)
	}
}

func TestAppendIndexRecords(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "idx", "index.jsonl")
	for _, id := range []string{"m1", "m2"} {
		if err := fileutils.AppendJSONLine(path, BuildIndexRecord(id, id+".json", ExtractionResult{SessionSummary: "s"}, 0)); err != nil {
			t.Fatalf("AppendJSONLine: %v", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if len(lines) != 2 || !strings.Contains(lines[1], `"meeting_id":"m2"`) {
		t.Fatalf("lines=%v", lines)
	}
}
