package meeting

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDistribute_EvenWithRemainderFirst(t *testing.T) {
	t.Parallel()

	if diff := cmp.Diff([]int{3, 3, 2, 2, 2, 2, 2, 2, 2}, Distribute(20, 9)); diff != "" {
		t.Fatalf("Distribute(20,9) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 1, 0, 0}, Distribute(2, 4)); diff != "" {
		t.Fatalf("Distribute(2,4) mismatch (-want +got):\n%s", diff)
	}
	if Distribute(5, 0) != nil {
		t.Fatalf("Distribute(5,0) should be nil")
	}
}

func TestDistribute_Invariants(t *testing.T) {
	t.Parallel()

	for n := 0; n <= 40; n++ {
		for weeks := 1; weeks <= 16; weeks++ {
			got := Distribute(n, weeks)
			if len(got) != weeks {
				t.Fatalf("len(Distribute(%d,%d))=%d", n, weeks, len(got))
			}
			sum, lo, hi := 0, got[0], got[0]
			for _, c := range got {
				sum += c
				lo = min(lo, c)
				hi = max(hi, c)
			}
			if sum != n || hi-lo > 1 {
				t.Fatalf("Distribute(%d,%d)=%v sum=%d spread=%d", n, weeks, got, sum, hi-lo)
			}
		}
	}
}

func TestSplitSentences(t *testing.T) {
	t.Parallel()

	got := SplitSentences("Revenue is up 4.5% this quarter.  Emily, take encryption!\nReady? Yes")
	want := []string{"Revenue is up 4.5% this quarter.", "Emily, take encryption!", "Ready?", "Yes"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("SplitSentences mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize_TextIntoWindows(t *testing.T) {
	t.Parallel()

	tr := Transcript{Text: "One. Two. Three. Four. Five. Six. Seven. Eight."}
	got := tr.Normalize(6)
	if len(got) != 6 {
		t.Fatalf("len=%d, want 6", len(got))
	}
	if got[0].Text != "One. Two." || got[1].Text != "Three. Four." || got[5].Text != "Eight." {
		t.Fatalf("windows=%+v", got)
	}
	for i, s := range got {
		if s.Index != i {
			t.Fatalf("segment %d has index %d", i, s.Index)
		}
	}

	short := Transcript{Text: "Only one sentence here"}.Normalize(6)
	if len(short) != 1 || short[0].Text != "Only one sentence here" {
		t.Fatalf("short=%+v", short)
	}
}

func TestNormalize_MergesUtterances(t *testing.T) {
	t.Parallel()

	sarah, mike := "Sarah", "Mike"
	start, end := "00:00", "00:30"
	tr := Transcript{Segments: []TranscriptSegment{
		{Index: 7, Text: "Emily, take ownership of encryption.", Speaker: &sarah, StartTime: &start},
		{Index: 8, Text: "   "},
		{Index: 9, Text: "Mike, coordinate with Emily.", Speaker: &sarah},
		{Index: 10, Text: "Will do.", Speaker: &mike, EndTime: &end},
	}}

	got := tr.Normalize(2)
	if len(got) != 2 {
		t.Fatalf("len=%d, want 2", len(got))
	}
	if got[0].Speaker == nil || *got[0].Speaker != "Sarah" {
		t.Fatalf("segment 0 speaker=%v", got[0].Speaker)
	}
	if got[0].Text != "Sarah: Emily, take ownership of encryption.\nSarah: Mike, coordinate with Emily." {
		t.Fatalf("segment 0 text=%q", got[0].Text)
	}
	if got[1].Index != 1 || *got[1].EndTime != "00:30" || *got[0].StartTime != "00:00" {
		t.Fatalf("segments=%+v", got)
	}

	kept := tr.Normalize(6)
	if len(kept) != 3 || kept[1].Text != "Mike, coordinate with Emily." || kept[2].Index != 2 {
		t.Fatalf("kept=%+v", kept)
	}
}
