package meeting

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultOverloadThreshold is the per-week milestone soft cap.
const DefaultOverloadThreshold = 5

// OptimizeRequest describes a timeline change for one rock's milestones.
type OptimizeRequest struct {
	RockID               string      `json:"rock_id,omitempty"`
	Milestones           []Milestone `json:"milestones"`
	OriginalWeeks        int         `json:"original_weeks"`
	TargetWeeks          int         `json:"target_weeks"`
	TargetMilestoneCount int         `json:"target_milestone_count"`
}

// IntensityFunc returns the workload change in percent.
type IntensityFunc func(originalCount, originalWeeks, targetCount, targetWeeks int) float64

// OptimizerPolicy holds the tunable constants of the redistribution.
type OptimizerPolicy struct {
	OverloadThreshold int
	Intensity         IntensityFunc
}

func DefaultOptimizerPolicy() OptimizerPolicy {
	return OptimizerPolicy{OverloadThreshold: DefaultOverloadThreshold, Intensity: RateIntensity}
}

// RateIntensity compares milestones-per-week before and after: (target rate / original
// rate - 1) as a percentage rounded to one decimal.
func RateIntensity(originalCount, originalWeeks, targetCount, targetWeeks int) float64 {
	if originalCount <= 0 || originalWeeks <= 0 || targetWeeks <= 0 {
		return 0
	}
	before := float64(originalCount) / float64(originalWeeks)
	after := float64(targetCount) / float64(targetWeeks)
	return round((after/before-1)*100, 1)
}

type CombinationMethod string

const (
	CombinationNone     CombinationMethod = "none"
	CombinationModel    CombinationMethod = "model"
	CombinationFallback CombinationMethod = "fallback"
)

type CompressionMetrics struct {
	CompressionRatio          float64 `json:"compression_ratio"`
	TimeSaved                 int     `json:"time_saved"`
	IntensityIncrease         float64 `json:"intensity_increase"`
	OriginalMilestonesPerWeek float64 `json:"original_milestones_per_week"`
	TargetMilestonesPerWeek   float64 `json:"target_milestones_per_week"`
}

// DistributionAnalysis describes the input plan. PerWeek[i] counts week i+1; milestones
// whose week falls outside the original plan are counted in Unscheduled.
type DistributionAnalysis struct {
	AveragePerWeek float64 `json:"average_per_week"`
	PerWeek        []int   `json:"per_week"`
	MaxPerWeek     int     `json:"max_per_week"`
	EmptyWeeks     int     `json:"empty_weeks"`
	Unscheduled    int     `json:"unscheduled,omitempty"`
}

type WeekAllocation struct {
	Week           int         `json:"week"`
	Milestones     []Milestone `json:"milestones"`
	MilestoneCount int         `json:"milestone_count"`
}

const (
	WeekOverloaded = "overloaded"
	WeekEmpty      = "empty"
)

// WeekFlag is advisory; it never blocks a result.
type WeekFlag struct {
	Week  int    `json:"week"`
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

type OptimizationResult struct {
	Milestones         []Milestone          `json:"milestones"`
	WeeklyDistribution []WeekAllocation     `json:"weekly_distribution"`
	CompressionMetrics CompressionMetrics   `json:"compression_metrics"`
	Analysis           DistributionAnalysis `json:"distribution_analysis"`
	Flags              []WeekFlag           `json:"flags,omitempty"`
	CombinationMethod  CombinationMethod    `json:"combination_method"`
	Notes              []string             `json:"notes,omitempty"`
}

// Optimizer redistributes a rock's milestones over a new timeline. Only the optional
// combination step calls a model; everything else is deterministic.
type Optimizer struct {
	Combiner MilestoneCombiner
	Policy   OptimizerPolicy
	Logger   zerolog.Logger
	NewID    func() string
}

// Optimize returns a fresh replacement milestone set. req.Milestones is not modified.
func (o *Optimizer) Optimize(ctx context.Context, req OptimizeRequest) (OptimizationResult, error) {
	if err := req.validate(); err != nil {
		return OptimizationResult{}, err
	}
	policy := o.policy()
	newID := uuid.NewString
	if o.NewID != nil {
		newID = o.NewID
	}

	source := append([]Milestone(nil), req.Milestones...)
	sort.SliceStable(source, func(i, j int) bool { return source[i].WeekNumber < source[j].WeekNumber })

	out := OptimizationResult{
		Analysis:          analyzeDistribution(source, req.OriginalWeeks),
		CombinationMethod: CombinationNone,
	}

	target := req.TargetMilestoneCount
	if target > len(source) {
		out.Notes = append(out.Notes, fmt.Sprintf("target_milestone_count %d exceeds the %d available milestones; distributing %d", target, len(source), len(source)))
		target = len(source)
	}

	var groups []CombinedMilestone
	if target < len(source) {
		groups, out.CombinationMethod = o.combine(ctx, source, target, req)
	} else {
		for i := range source {
			groups = append(groups, mergeGroup(source, []int{i}))
		}
	}

	out.CompressionMetrics = compressionMetrics(len(source), req.OriginalWeeks, target, req.TargetWeeks, policy.Intensity)
	out.Milestones = buildReplacement(groups, source, req.RockID, newID)
	out.WeeklyDistribution = allocateWeeks(out.Milestones, req.TargetWeeks)
	for _, w := range out.WeeklyDistribution {
		switch {
		case w.MilestoneCount == 0:
			out.Flags = append(out.Flags, WeekFlag{Week: w.Week, Kind: WeekEmpty})
		case w.MilestoneCount > policy.OverloadThreshold:
			out.Flags = append(out.Flags, WeekFlag{Week: w.Week, Kind: WeekOverloaded, Count: w.MilestoneCount})
		}
	}

	o.Logger.Info().
		Str("rock_id", req.RockID).
		Int("milestones_in", len(source)).
		Int("milestones_out", len(out.Milestones)).
		Int("target_weeks", req.TargetWeeks).
		Str("combination", string(out.CombinationMethod)).
		Float64("compression_ratio", out.CompressionMetrics.CompressionRatio).
		Msg("milestones optimized")
	return out, nil
}

func (req OptimizeRequest) validate() error {
	switch {
	case len(req.Milestones) == 0:
		return fmt.Errorf("%w: no milestones to optimize", ErrInvalidRequest)
	case req.OriginalWeeks <= 0:
		return fmt.Errorf("%w: original_weeks must be positive, got %d", ErrInvalidRequest, req.OriginalWeeks)
	case req.TargetWeeks <= 0:
		return fmt.Errorf("%w: target_weeks must be positive, got %d", ErrInvalidRequest, req.TargetWeeks)
	case req.TargetMilestoneCount <= 0:
		return fmt.Errorf("%w: target_milestone_count must be positive, got %d", ErrInvalidRequest, req.TargetMilestoneCount)
	}
	return nil
}

func (o *Optimizer) policy() OptimizerPolicy {
	p := o.Policy
	if p.OverloadThreshold <= 0 {
		p.OverloadThreshold = DefaultOverloadThreshold
	}
	if p.Intensity == nil {
		p.Intensity = RateIntensity
	}
	return p
}

// combine uses the configured combiner and falls back to pairwise merging on any error
// or invalid answer.
func (o *Optimizer) combine(ctx context.Context, source []Milestone, target int, req OptimizeRequest) ([]CombinedMilestone, CombinationMethod) {
	if o.Combiner != nil {
		groups, err := o.Combiner.Combine(ctx, source, target, req.OriginalWeeks, req.TargetWeeks)
		if err == nil {
			err = validateCombination(groups, len(source), target)
		}
		if err == nil {
			for i := range groups {
				groups[i] = preserveConstituents(groups[i], source)
			}
			return groups, CombinationModel
		}
		o.Logger.Warn().Err(err).Str("rock_id", req.RockID).Msg("milestone combination failed, using fallback")
	}
	return fallbackCombine(source, target), CombinationFallback
}

func analyzeDistribution(ms []Milestone, weeks int) DistributionAnalysis {
	a := DistributionAnalysis{
		AveragePerWeek: round(float64(len(ms))/float64(weeks), 2),
		PerWeek:        make([]int, weeks),
	}
	for _, m := range ms {
		if m.WeekNumber < 1 || m.WeekNumber > weeks {
			a.Unscheduled++
			continue
		}
		a.PerWeek[m.WeekNumber-1]++
	}
	for _, c := range a.PerWeek {
		a.MaxPerWeek = max(a.MaxPerWeek, c)
		if c == 0 {
			a.EmptyWeeks++
		}
	}
	return a
}

func compressionMetrics(originalCount, originalWeeks, targetCount, targetWeeks int, intensity IntensityFunc) CompressionMetrics {
	return CompressionMetrics{
		CompressionRatio:          round(float64(targetWeeks)/float64(originalWeeks), 2),
		TimeSaved:                 originalWeeks - targetWeeks,
		IntensityIncrease:         intensity(originalCount, originalWeeks, targetCount, targetWeeks),
		OriginalMilestonesPerWeek: round(float64(originalCount)/float64(originalWeeks), 2),
		TargetMilestonesPerWeek:   round(float64(targetCount)/float64(targetWeeks), 2),
	}
}

// buildReplacement orders groups by their earliest source and assigns new ids. Status
// is completed when every source was, in progress when any source had started.
func buildReplacement(groups []CombinedMilestone, source []Milestone, rockID string, newID func() string) []Milestone {
	ordered := append([]CombinedMilestone(nil), groups...)
	sort.SliceStable(ordered, func(i, j int) bool { return minIndex(ordered[i].Sources) < minIndex(ordered[j].Sources) })

	out := make([]Milestone, 0, len(ordered))
	for _, g := range ordered {
		parent := rockID
		ids := make([]string, 0, len(g.Sources))
		completed, started := 0, false
		for _, s := range g.Sources {
			m := source[s]
			if parent == "" {
				parent = m.ParentRockID
			}
			if m.ID != "" {
				ids = append(ids, m.ID)
			}
			switch m.Status {
			case StatusCompleted:
				completed++
				started = true
			case StatusInProgress:
				started = true
			}
		}
		status := StatusPending
		switch {
		case completed == len(g.Sources):
			status = StatusCompleted
		case started:
			status = StatusInProgress
		}

		summary := g.Summary
		if summary == "" {
			summary = firstNonEmpty(oneLine(g.Description), g.Title)
		}
		out = append(out, Milestone{
			ID:           newID(),
			ParentRockID: parent,
			Title:        g.Title,
			Description:  g.Description,
			Status:       status,
			Summary:      summary,
			SourceIDs:    ids,
		})
	}
	return out
}

// allocateWeeks assigns milestones to weeks in order using Distribute.
func allocateWeeks(ms []Milestone, weeks int) []WeekAllocation {
	out := make([]WeekAllocation, 0, weeks)
	next := 0
	for w, n := range Distribute(len(ms), weeks) {
		alloc := WeekAllocation{Week: w + 1, Milestones: []Milestone{}, MilestoneCount: n}
		for k := 0; k < n; k++ {
			ms[next].WeekNumber = w + 1
			alloc.Milestones = append(alloc.Milestones, ms[next])
			next++
		}
		out = append(out, alloc)
	}
	return out
}

func minIndex(xs []int) int {
	m := int(^uint(0) >> 1)
	for _, x := range xs {
		m = min(m, x)
	}
	return m
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}
