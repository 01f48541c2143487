package meeting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theimaginaryfoundation/eos-tracker/meeting/provider"
)

func planMilestones(n, weeks int) []Milestone {
	perWeek := Distribute(n, weeks)
	out := make([]Milestone, 0, n)
	for w, c := range perWeek {
		for k := 0; k < c; k++ {
			i := len(out) + 1
			out = append(out, Milestone{
				ID:           fmt.Sprintf("m%d", i),
				ParentRockID: "rock-1",
				WeekNumber:   w + 1,
				Title:        fmt.Sprintf("Milestone %02d", i),
				Description:  fmt.Sprintf("Deliverable number %02d", i),
				Status:       StatusPending,
				Summary:      fmt.Sprintf("Summary %02d", i),
			})
		}
	}
	return out
}

func TestOptimize_ScenarioCompressTwelveToNineWeeks(t *testing.T) {
	t.Parallel()

	in := planMilestones(24, 12)
	snapshot := append([]Milestone(nil), in...)
	o := &Optimizer{NewID: seqIDs("new")}

	got, err := o.Optimize(context.Background(), OptimizeRequest{
		RockID:               "rock-1",
		Milestones:           in,
		OriginalWeeks:        12,
		TargetWeeks:          9,
		TargetMilestoneCount: 20,
	})
	require.NoError(t, err)

	assert.Equal(t, 0.75, got.CompressionMetrics.CompressionRatio)
	assert.Equal(t, 3, got.CompressionMetrics.TimeSaved)
	assert.Equal(t, 11.1, got.CompressionMetrics.IntensityIncrease)
	assert.Equal(t, 2.0, got.Analysis.AveragePerWeek)
	assert.Equal(t, CombinationFallback, got.CombinationMethod)

	require.Len(t, got.WeeklyDistribution, 9)
	counts := make([]int, 0, 9)
	total := 0
	for i, w := range got.WeeklyDistribution {
		assert.Equal(t, i+1, w.Week)
		assert.Len(t, w.Milestones, w.MilestoneCount)
		for _, m := range w.Milestones {
			assert.Equal(t, w.Week, m.WeekNumber)
		}
		counts = append(counts, w.MilestoneCount)
		total += w.MilestoneCount
	}
	assert.Equal(t, []int{3, 3, 2, 2, 2, 2, 2, 2, 2}, counts)
	assert.Equal(t, 20, total)
	assert.Len(t, got.Milestones, 20)
	assert.Empty(t, got.Flags)

	assert.Equal(t, snapshot, in, "input milestones must not be mutated")
	assertTraceable(t, in, got.Milestones)
	for _, m := range got.Milestones {
		assert.True(t, strings.HasPrefix(m.ID, "new-"))
		assert.Equal(t, "rock-1", m.ParentRockID)
		assert.NotEmpty(t, m.Summary)
	}
}

func TestOptimize_ModelCombination(t *testing.T) {
	t.Parallel()

	model := newScriptedModel().on("MilestoneCombination", func(n int, req provider.Request) (string, error) {
		return `{"milestones":[
		  {"title":"Milestone 01 and 02","description":"Deliverable number 01 and deliverable number 02","summary":"first half","source_indices":[1,2]},
		  {"title":"Milestone 03","description":"Shortened","summary":"","source_indices":[3]},
		  {"title":"Milestone 04","description":"Deliverable number 04","summary":"last","source_indices":[4]}
		]}`, nil
	})
	in := planMilestones(4, 4)
	in[2].Status = StatusCompleted
	in[1].Status = StatusInProgress

	got, err := (&Optimizer{Combiner: &ModelCombiner{Model: model}}).Optimize(context.Background(), OptimizeRequest{
		Milestones: in, OriginalWeeks: 4, TargetWeeks: 2, TargetMilestoneCount: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, CombinationModel, got.CombinationMethod)
	require.Len(t, got.Milestones, 3)

	assert.Equal(t, []string{"m1", "m2"}, got.Milestones[0].SourceIDs)
	assert.Equal(t, StatusInProgress, got.Milestones[0].Status)
	assert.Equal(t, StatusCompleted, got.Milestones[1].Status)
	assert.Contains(t, got.Milestones[1].Description, "Includes:\n- Milestone 03: Deliverable number 03")
	assert.Equal(t, "rock-1", got.Milestones[0].ParentRockID)
	assertTraceable(t, in, got.Milestones)

	assert.Equal(t, 2, got.WeeklyDistribution[0].MilestoneCount)
	assert.Equal(t, 1, got.WeeklyDistribution[1].MilestoneCount)
}

func TestOptimize_InvalidModelCombinationFallsBack(t *testing.T) {
	t.Parallel()

	for name, answer := range map[string]string{
		"wrong count":   `{"milestones":[{"title":"All","description":"","summary":"","source_indices":[1,2,3,4]}]}`,
		"missing index": `{"milestones":[{"title":"A","description":"","summary":"","source_indices":[1]},{"title":"B","description":"","summary":"","source_indices":[2]},{"title":"C","description":"","summary":"","source_indices":[3]}]}`,
		"out of range":  `{"milestones":[{"title":"A","description":"","summary":"","source_indices":[1,2]},{"title":"B","description":"","summary":"","source_indices":[3]},{"title":"C","description":"","summary":"","source_indices":[9]}]}`,
	} {
		model := newScriptedModel().on("MilestoneCombination", func(n int, req provider.Request) (string, error) { return answer, nil })
		got, err := (&Optimizer{Combiner: &ModelCombiner{Model: model}}).Optimize(context.Background(), OptimizeRequest{
			Milestones: planMilestones(4, 4), OriginalWeeks: 4, TargetWeeks: 3, TargetMilestoneCount: 3,
		})
		require.NoError(t, err, name)
		assert.Equal(t, CombinationFallback, got.CombinationMethod, name)
		assert.Len(t, got.Milestones, 3, name)
	}

	failing := newScriptedModel().on("MilestoneCombination", func(n int, req provider.Request) (string, error) {
		return "", errors.New("503 service unavailable")
	})
	got, err := (&Optimizer{Combiner: &ModelCombiner{Model: failing}}).Optimize(context.Background(), OptimizeRequest{
		Milestones: planMilestones(6, 3), OriginalWeeks: 3, TargetWeeks: 2, TargetMilestoneCount: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, CombinationFallback, got.CombinationMethod)
	assert.Len(t, got.Milestones, 2)
}

func TestOptimize_PassThroughKeepsEveryDescription(t *testing.T) {
	t.Parallel()

	in := planMilestones(5, 5)
	got, err := (&Optimizer{}).Optimize(context.Background(), OptimizeRequest{
		Milestones: in, OriginalWeeks: 5, TargetWeeks: 8, TargetMilestoneCount: 7,
	})
	require.NoError(t, err)
	assert.Equal(t, CombinationNone, got.CombinationMethod)
	require.Len(t, got.Milestones, 5)
	require.Len(t, got.Notes, 1)
	assert.Equal(t, -3, got.CompressionMetrics.TimeSaved)

	descs := map[string]bool{}
	for _, m := range got.Milestones {
		descs[m.Description] = true
	}
	for _, m := range in {
		assert.True(t, descs[m.Description], "lost %q", m.Description)
	}

	var empty []int
	for _, f := range got.Flags {
		assert.Equal(t, WeekEmpty, f.Kind)
		empty = append(empty, f.Week)
	}
	assert.Equal(t, []int{6, 7, 8}, empty)
}

func TestOptimize_OverloadFlagUsesPolicy(t *testing.T) {
	t.Parallel()

	got, err := (&Optimizer{Policy: OptimizerPolicy{OverloadThreshold: 2}}).Optimize(context.Background(), OptimizeRequest{
		Milestones: planMilestones(7, 7), OriginalWeeks: 7, TargetWeeks: 2, TargetMilestoneCount: 7,
	})
	require.NoError(t, err)
	assert.Equal(t, []WeekFlag{
		{Week: 1, Kind: WeekOverloaded, Count: 4},
		{Week: 2, Kind: WeekOverloaded, Count: 3},
	}, got.Flags)
}

func TestOptimize_CustomIntensity(t *testing.T) {
	t.Parallel()

	o := &Optimizer{Policy: OptimizerPolicy{Intensity: func(oc, ow, tc, tw int) float64 { return 42 }}}
	got, err := o.Optimize(context.Background(), OptimizeRequest{
		Milestones: planMilestones(2, 2), OriginalWeeks: 2, TargetWeeks: 1, TargetMilestoneCount: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 42.0, got.CompressionMetrics.IntensityIncrease)
}

func TestOptimize_InvalidRequests(t *testing.T) {
	t.Parallel()

	ms := planMilestones(3, 3)
	for name, req := range map[string]OptimizeRequest{
		"no milestones":  {OriginalWeeks: 3, TargetWeeks: 2, TargetMilestoneCount: 2},
		"zero original":  {Milestones: ms, OriginalWeeks: 0, TargetWeeks: 2, TargetMilestoneCount: 2},
		"negative weeks": {Milestones: ms, OriginalWeeks: 3, TargetWeeks: -1, TargetMilestoneCount: 2},
		"zero target":    {Milestones: ms, OriginalWeeks: 3, TargetWeeks: 2, TargetMilestoneCount: 0},
	} {
		_, err := (&Optimizer{}).Optimize(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidRequest, name)
	}
}

func TestFallbackCombine_ConservesContent(t *testing.T) {
	t.Parallel()

	for n := 2; n <= 30; n++ {
		in := planMilestones(n, 6)
		for target := 1; target < n; target++ {
			groups := fallbackCombine(in, target)
			require.NoError(t, validateCombination(groups, n, target), "n=%d target=%d", n, target)
			for _, g := range groups {
				for _, s := range g.Sources {
					assert.Contains(t, g.Description, in[s].Description)
				}
			}
		}
	}
}

// assertTraceable checks that every source title and description appears in at least one
// output milestone.
func assertTraceable(t *testing.T, in, out []Milestone) {
	t.Helper()
	var all strings.Builder
	for _, m := range out {
		all.WriteString(strings.ToLower(m.Title + "\n" + m.Description + "\n"))
	}
	text := all.String()
	for _, m := range in {
		assert.Contains(t, text, strings.ToLower(m.Title))
		assert.Contains(t, text, strings.ToLower(m.Description))
	}
}
