package meeting

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/theimaginaryfoundation/eos-tracker/meeting/fileutils"
	"github.com/theimaginaryfoundation/eos-tracker/meeting/provider"
)

// CombinedMilestone is one merged milestone. Sources holds 0-based indices into the
// input slice.
type CombinedMilestone struct {
	Title       string
	Description string
	Summary     string
	Sources     []int
}

// MilestoneCombiner merges milestones into exactly target groups.
type MilestoneCombiner interface {
	Combine(ctx context.Context, milestones []Milestone, target int, originalWeeks, targetWeeks int) ([]CombinedMilestone, error)
}

type combineResponse struct {
	Milestones []combinedDraft `json:"milestones"`
}

type combinedDraft struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	Summary       string `json:"summary"`
	SourceIndices []int  `json:"source_indices"`
}

var combineSchema = provider.GenerateSchema[combineResponse]()

// ModelCombiner asks the model which milestones belong together.
type ModelCombiner struct {
	Model           provider.Completer
	Logger          zerolog.Logger
	MaxOutputTokens int64
}

func (c *ModelCombiner) Combine(ctx context.Context, milestones []Milestone, target int, originalWeeks, targetWeeks int) ([]CombinedMilestone, error) {
	req := provider.Request{
		Name:            "MilestoneCombination",
		Instructions:    combineInstructions,
		Input:           buildCombineInput(milestones, target, originalWeeks, targetWeeks),
		Schema:          combineSchema,
		MaxOutputTokens: c.MaxOutputTokens,
	}
	var resp combineResponse
	if _, err := completeJSON(ctx, c.Model, req, &resp, c.Logger); err != nil {
		return nil, err
	}

	out := make([]CombinedMilestone, 0, len(resp.Milestones))
	for _, d := range resp.Milestones {
		sources := make([]int, 0, len(d.SourceIndices))
		for _, idx := range d.SourceIndices {
			sources = append(sources, idx-1)
		}
		out = append(out, CombinedMilestone{
			Title:       strings.TrimSpace(d.Title),
			Description: strings.TrimSpace(d.Description),
			Summary:     strings.TrimSpace(d.Summary),
			Sources:     sources,
		})
	}
	return out, nil
}

func buildCombineInput(milestones []Milestone, target, originalWeeks, targetWeeks int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "original_weeks=%d\ntarget_weeks=%d\ntarget_milestones=%d\n\nmilestones:\n",
		originalWeeks, targetWeeks, target)
	for i, m := range milestones {
		fmt.Fprintf(&b, "%d. [week %d] %s", i+1, m.WeekNumber, fileutils.FlattenNewlines(m.Title))
		if m.Description != "" {
			fmt.Fprintf(&b, " :: %s", fileutils.FlattenNewlines(m.Description))
		}
		b.WriteString("\n")
	}
	return b.String()
}

var errCombination = errors.New("invalid milestone combination")

// validateCombination requires exactly target groups, non-empty titles, in-range sources
// and every source used exactly once.
func validateCombination(groups []CombinedMilestone, n, target int) error {
	if len(groups) != target {
		return fmt.Errorf("%w: got %d milestones, want %d", errCombination, len(groups), target)
	}
	used := make([]bool, n)
	for gi, g := range groups {
		if g.Title == "" {
			return fmt.Errorf("%w: milestone %d has no title", errCombination, gi+1)
		}
		if len(g.Sources) == 0 {
			return fmt.Errorf("%w: milestone %d has no sources", errCombination, gi+1)
		}
		for _, s := range g.Sources {
			if s < 0 || s >= n {
				return fmt.Errorf("%w: source %d out of range", errCombination, s+1)
			}
			if used[s] {
				return fmt.Errorf("%w: source %d used twice", errCombination, s+1)
			}
			used[s] = true
		}
	}
	for i, ok := range used {
		if !ok {
			return fmt.Errorf("%w: source %d not covered", errCombination, i+1)
		}
	}
	return nil
}

// fallbackCombine merges adjacent pairs from the end of the list, walking backwards and
// wrapping around, until target groups remain.
func fallbackCombine(milestones []Milestone, target int) []CombinedMilestone {
	groups := make([][]int, len(milestones))
	for i := range milestones {
		groups[i] = []int{i}
	}
	i := len(groups) - 2
	for len(groups) > target && len(groups) > 1 {
		if i < 0 {
			i = len(groups) - 2
		}
		groups[i] = append(groups[i], groups[i+1]...)
		groups = append(groups[:i+1], groups[i+2:]...)
		i -= 2
	}

	out := make([]CombinedMilestone, 0, len(groups))
	for _, g := range groups {
		out = append(out, mergeGroup(milestones, g))
	}
	return out
}

func mergeGroup(milestones []Milestone, sources []int) CombinedMilestone {
	if len(sources) == 1 {
		m := milestones[sources[0]]
		return CombinedMilestone{Title: m.Title, Description: m.Description, Summary: m.Summary, Sources: sources}
	}
	titles := make([]string, 0, len(sources))
	lines := make([]string, 0, len(sources))
	summaries := make([]string, 0, len(sources))
	for _, s := range sources {
		m := milestones[s]
		titles = append(titles, m.Title)
		lines = append(lines, constituentLine(m))
		if m.Summary != "" {
			summaries = append(summaries, m.Summary)
		}
	}
	return CombinedMilestone{
		Title:       strings.Join(titles, " + "),
		Description: strings.Join(lines, "\n"),
		Summary:     strings.Join(summaries, " "),
		Sources:     sources,
	}
}

func constituentLine(m Milestone) string {
	if m.Description == "" {
		return "- " + m.Title
	}
	return "- " + m.Title + ": " + m.Description
}

// preserveConstituents appends any source title or description the combined text no
// longer mentions, so no work item is lost in a merge.
func preserveConstituents(g CombinedMilestone, milestones []Milestone) CombinedMilestone {
	text := strings.ToLower(g.Title + "\n" + g.Description)
	var missing []string
	for _, s := range g.Sources {
		m := milestones[s]
		titleOK := m.Title == "" || strings.Contains(text, strings.ToLower(m.Title))
		descOK := m.Description == "" || strings.Contains(text, strings.ToLower(m.Description))
		if !titleOK || !descOK {
			missing = append(missing, constituentLine(m))
		}
	}
	if len(missing) == 0 {
		return g
	}
	if g.Description != "" {
		g.Description += "\n"
	}
	g.Description += "Includes:\n" + strings.Join(missing, "\n")
	return g
}
