package meeting

import (
	"fmt"
	"sort"
	"strings"
)

// maxDependencyHints bounds the hints passed to extraction.
const maxDependencyHints = 24

var dependencyPhrases = []string{
	"after", "before", "once", "depends on", "dependent on", "blocked by", "waiting on",
	"waiting for", "coordinate with", "requires", "prerequisite", "follow up on",
}

var hintStopwords = map[string]struct{}{
	"about": {}, "after": {}, "again": {}, "before": {}, "being": {}, "could": {},
	"every": {}, "first": {}, "going": {}, "might": {}, "other": {}, "should": {},
	"their": {}, "there": {}, "these": {}, "thing": {}, "things": {}, "think": {},
	"those": {}, "until": {}, "where": {}, "which": {}, "while": {}, "would": {},
	"make": {}, "sure": {}, "needs": {}, "start": {}, "together": {}, "coordinate": {},
	"ownership": {}, "take": {}, "please": {}, "right": {}, "week": {}, "weeks": {},
}

// Aggregate merges per-segment analyses into one view. Failed segments count toward
// coverage and contribute nothing else.
func Aggregate(analyses []SegmentAnalysis) AggregatedContext {
	ordered := append([]SegmentAnalysis(nil), analyses...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].SegmentIndex < ordered[j].SegmentIndex })

	out := AggregatedContext{
		TopicsRanked:    []string{},
		EntitiesMerged:  map[string][]EntityValue{},
		DependencyHints: []string{},
		Coverage:        Coverage{Total: len(ordered)},
	}

	topics := newTopicCounter()
	entities := newEntityMerger()
	var actions []indexedAction
	for _, a := range ordered {
		if a.Failed() {
			out.Coverage.FailedSegments = append(out.Coverage.FailedSegments, a.SegmentIndex)
			continue
		}
		out.Coverage.Analyzed++
		topics.addSegment(a.Topics)
		for cat, vals := range a.Entities {
			entities.add(cat, vals)
		}
		for _, c := range a.CandidateActions {
			actions = append(actions, indexedAction{segment: a.SegmentIndex, action: c})
		}
	}

	out.TopicsRanked = topics.ranked()
	out.EntitiesMerged = entities.merged()
	out.DependencyHints = dependencyHints(actions)
	return out
}

type topicCounter struct {
	order   []string
	display map[string]string
	count   map[string]int
}

func newTopicCounter() *topicCounter {
	return &topicCounter{display: map[string]string{}, count: map[string]int{}}
}

// addSegment counts each topic at most once per segment.
func (t *topicCounter) addSegment(topics []string) {
	seen := map[string]struct{}{}
	for _, s := range topics {
		k := normalizeKey(s)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		if _, ok := t.count[k]; !ok {
			t.order = append(t.order, k)
			t.display[k] = strings.TrimSpace(s)
		}
		t.count[k]++
	}
}

// ranked orders by segment frequency, ties by first appearance.
func (t *topicCounter) ranked() []string {
	keys := append([]string(nil), t.order...)
	sort.SliceStable(keys, func(i, j int) bool { return t.count[keys[i]] > t.count[keys[j]] })
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, t.display[k])
	}
	return out
}

type entityMerger struct {
	values map[string][]EntityValue
	index  map[string]map[string]int
}

func newEntityMerger() *entityMerger {
	return &entityMerger{values: map[string][]EntityValue{}, index: map[string]map[string]int{}}
}

// add dedups by identity key in first-seen order. A repeated composite fills in fields
// the first sighting lacked.
func (m *entityMerger) add(category string, vals []EntityValue) {
	cat := normalizeCategory(category)
	if cat == "" {
		return
	}
	idx, ok := m.index[cat]
	if !ok {
		idx = map[string]int{}
		m.index[cat] = idx
	}
	for _, v := range vals {
		if v.IsZero() {
			continue
		}
		key := v.IdentityKey()
		if i, ok := idx[key]; ok {
			if existing := m.values[cat][i]; existing.IsComposite() && v.IsComposite() {
				for f, x := range v.Fields {
					if existing.Fields[f] == "" {
						existing.Fields[f] = x
					}
				}
			}
			continue
		}
		if v.IsComposite() {
			v = Composite(v.Fields)
		}
		idx[key] = len(m.values[cat])
		m.values[cat] = append(m.values[cat], v)
	}
}

func (m *entityMerger) merged() map[string][]EntityValue {
	return m.values
}

type indexedAction struct {
	segment int
	action  CandidateAction
}

// dependencyHints links actions that share significant keywords, that reference each
// other through a dependency phrase, or that name another action's owner.
func dependencyHints(actions []indexedAction) []string {
	hints := []string{}
	seen := map[string]struct{}{}
	add := func(h string) {
		if len(hints) >= maxDependencyHints {
			return
		}
		if _, ok := seen[h]; ok {
			return
		}
		seen[h] = struct{}{}
		hints = append(hints, h)
	}

	keywords := make([]map[string]struct{}, len(actions))
	for i, a := range actions {
		keywords[i] = significantKeywords(a.action.Text + " " + a.action.Context)
	}

	for j := range actions {
		later := actions[j]
		lowered := strings.ToLower(later.action.Text + " " + later.action.Context)
		phrase := firstDependencyPhrase(lowered)
		for i := 0; i < len(actions); i++ {
			if i == j {
				continue
			}
			earlier := actions[i]

			if owner := ownerFirstName(earlier.action); owner != "" && i < j && containsWord(lowered, owner) &&
				!sameOwner(earlier.action, later.action) {
				add(fmt.Sprintf("%q (segment %d) references work owned by %s: %q (segment %d)",
					later.action.Text, later.segment+1, earlier.action.Assignee.Name, earlier.action.Text, earlier.segment+1))
				continue
			}

			if i > j {
				continue
			}
			shared := sharedKeywords(keywords[i], keywords[j])
			if len(shared) == 0 {
				continue
			}
			if phrase != "" {
				add(fmt.Sprintf("%q (segment %d) %s %q (segment %d) [%s]",
					later.action.Text, later.segment+1, phrase, earlier.action.Text, earlier.segment+1, strings.Join(shared, ", ")))
				continue
			}
			add(fmt.Sprintf("%q (segment %d) and %q (segment %d) share: %s",
				earlier.action.Text, earlier.segment+1, later.action.Text, later.segment+1, strings.Join(shared, ", ")))
		}
	}
	return hints
}

func significantKeywords(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if len(w) < 5 {
			continue
		}
		if _, stop := hintStopwords[w]; stop {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

func sharedKeywords(a, b map[string]struct{}) []string {
	var out []string
	for k := range a {
		if _, ok := b[k]; ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func firstDependencyPhrase(lowered string) string {
	for _, p := range dependencyPhrases {
		if containsWord(lowered, p) {
			return p
		}
	}
	return ""
}

func ownerFirstName(a CandidateAction) string {
	if a.Assignee == nil || !a.Assignee.Matched {
		return ""
	}
	tokens := nameTokens(a.Assignee.Name)
	if len(tokens) == 0 || len(tokens[0]) < minSignificantToken {
		return ""
	}
	return tokens[0]
}

func sameOwner(a, b CandidateAction) bool {
	if a.Assignee == nil || b.Assignee == nil || a.Assignee.ID == nil || b.Assignee.ID == nil {
		return false
	}
	return *a.Assignee.ID == *b.Assignee.ID
}

// containsWord reports whether phrase occurs in s on word boundaries.
func containsWord(s, phrase string) bool {
	for start := 0; ; {
		i := strings.Index(s[start:], phrase)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(phrase)
		if (i == 0 || !isWordByte(s[i-1])) && (end == len(s) || !isWordByte(s[end])) {
			return true
		}
		start = i + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
