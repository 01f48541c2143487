package meeting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func directory() []Participant {
	return []Participant{
		{ID: "emp_001", Name: "Sarah Johnson", Designation: "Senior Developer"},
		{ID: "emp_002", Name: "Michael Chen", Designation: "UX Designer"},
		{ID: "emp_003", Name: "Emily Davis", Designation: "Security Lead"},
		{ID: "emp_004", Name: "Robert Williams", Designation: "Operations"},
		{ID: "emp_005", Name: "Christopher Lee", Designation: "Engineer"},
		{ID: "emp_006", Name: "David Thompson", Designation: "Finance"},
	}
}

func TestResolve_Strategies(t *testing.T) {
	t.Parallel()

	r := NewResolver(directory())
	cases := []struct {
		name     string
		wantID   string
		strategy Strategy
	}{
		{"Sarah Johnson", "emp_001", StrategyExact},
		{"  sarah   JOHNSON ", "emp_001", StrategyExact},
		{"Dr. Sarah Johnson", "emp_001", StrategyCleaned},
		{"Mr. David Thompson", "emp_006", StrategyCleaned},
		{"Emily Davies", "emp_003", StrategyFuzzy},
		{"Emily R", "emp_003", StrategyNamePart},
		{"Johnson", "emp_001", StrategyNamePart},
		{"Mike Chen", "emp_002", StrategyNamePart},
		{"Chris Lee", "emp_005", StrategyNamePart},
		{"Mike", "emp_002", StrategyNickname},
		{"Bob", "emp_004", StrategyNickname},
		{"UNASSIGNED: Sarah Johnson", "emp_001", StrategyExact},
	}
	for _, tc := range cases {
		got := r.Resolve(tc.name)
		require.True(t, got.Matched, "name=%q", tc.name)
		require.NotNil(t, got.ParticipantID, "name=%q", tc.name)
		assert.Equal(t, tc.wantID, *got.ParticipantID, "name=%q", tc.name)
		assert.Equal(t, tc.strategy, got.Strategy, "name=%q", tc.name)
	}
}

func TestResolve_Unmatched(t *testing.T) {
	t.Parallel()

	r := NewResolver(directory())
	for _, name := range []string{"John Doe", "Unknown Manager", "UNASSIGNED: Unknown Person", "Mike Smith"} {
		got := r.Resolve(name)
		assert.False(t, got.Matched, "name=%q", name)
		assert.Nil(t, got.ParticipantID, "name=%q", name)
		assert.Equal(t, StrategyUnresolved, got.Strategy)
	}

	empty := r.Resolve("   ")
	assert.False(t, empty.Matched)
	assert.Equal(t, UnassignedLabel, empty.CanonicalName)
}

func TestResolve_UnassignedPrefixRoundTrip(t *testing.T) {
	t.Parallel()

	got := Resolve("UNASSIGNED: Alex Thompson", directory())
	assert.False(t, got.Matched)
	assert.Nil(t, got.ParticipantID)
	assert.Equal(t, "UNASSIGNED: Alex Thompson", got.CanonicalName)

	r := NewResolver(directory())
	for _, name := range []string{"Alex Thompson", "Mike", "Emily R", "Dr. Sarah Johnson", ""} {
		assert.Equal(t, r.Resolve(name), r.Resolve("UNASSIGNED: "+name), "name=%q", name)
	}
}

func TestResolve_Idempotent(t *testing.T) {
	t.Parallel()

	r := NewResolver(directory())
	for _, name := range []string{"Mike", "Emily R", "Dr. Sarah Johnson", "Bob Williams", "Chris", "Emily Davies"} {
		first := r.Resolve(name)
		require.True(t, first.Matched, "name=%q", name)
		again := r.Resolve(first.CanonicalName)
		require.True(t, again.Matched)
		assert.Equal(t, *first.ParticipantID, *again.ParticipantID, "name=%q", name)
	}
}

func TestResolve_FuzzyTiesPreferListOrder(t *testing.T) {
	t.Parallel()

	people := []Participant{
		{ID: "a", Name: "Jon Smith"},
		{ID: "b", Name: "Jan Smith"},
	}
	got := NewResolver(people).Resolve("Jen Smith")
	require.True(t, got.Matched)
	assert.Equal(t, StrategyFuzzy, got.Strategy)
	assert.Equal(t, "a", *got.ParticipantID)
}

func TestResolve_BelowFuzzyThresholdWithoutSharedTokens(t *testing.T) {
	t.Parallel()

	people := []Participant{{ID: "a", Name: "Karen Lopez"}}
	assert.Less(t, similarity("kara lope", "karen lopez"), DefaultFuzzyThreshold)
	assert.False(t, NewResolver(people).Resolve("Kara Lope").Matched)
}

func TestResolve_NamePartPrefersFirstAndLast(t *testing.T) {
	t.Parallel()

	people := []Participant{
		{ID: "a", Name: "Elena Maria Lopez Ruiz"},
		{ID: "b", Name: "Maria Lopez"},
	}
	got := NewResolver(people).Resolve("Maria Elena Lopez")
	require.True(t, got.Matched)
	assert.Equal(t, StrategyNamePart, got.Strategy)
	assert.Equal(t, "b", *got.ParticipantID)
}

func TestResolution_Ref(t *testing.T) {
	t.Parallel()

	r := NewResolver(directory())
	ref := r.Ref("Mike")
	require.NotNil(t, ref)
	assert.Equal(t, "Michael Chen", ref.Name)
	assert.Equal(t, "Mike", ref.OriginalName)

	assert.Nil(t, r.Ref(""))

	missing := r.MustRef("")
	assert.Nil(t, missing.ID)
	assert.Equal(t, UnassignedLabel, missing.Name)
}
