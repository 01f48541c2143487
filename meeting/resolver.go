package meeting

import (
	"strings"
	"unicode"

	"github.com/xrash/smetrics"
)

const (
	// UnassignedLabel marks a name that did not resolve to a participant.
	UnassignedLabel = "UNASSIGNED"

	unassignedPrefix = UnassignedLabel + ":"

	// DefaultFuzzyThreshold is the minimum normalized edit-distance similarity for a fuzzy hit.
	DefaultFuzzyThreshold = 0.8

	minSignificantToken = 3
)

type Strategy string

const (
	StrategyExact      Strategy = "exact"
	StrategyCleaned    Strategy = "cleaned"
	StrategyFuzzy      Strategy = "fuzzy"
	StrategyNamePart   Strategy = "name_part"
	StrategyNickname   Strategy = "nickname"
	StrategyUnresolved Strategy = "unresolved"
)

// Resolution is the result of resolving one free-text name.
type Resolution struct {
	ParticipantID *string  `json:"participant_id"`
	CanonicalName string   `json:"canonical_name"`
	Matched       bool     `json:"matched"`
	Strategy      Strategy `json:"strategy"`
}

// Ref converts the resolution into the reference stored on extracted records.
func (r Resolution) Ref(original string) ParticipantRef {
	ref := ParticipantRef{ID: r.ParticipantID, Name: r.CanonicalName, Matched: r.Matched}
	if original = strings.TrimSpace(original); original != "" && original != r.CanonicalName {
		ref.OriginalName = original
	}
	return ref
}

// nameForm is a participant name (or query) broken into comparable forms.
type nameForm struct {
	full    string
	cleaned string
	tokens  []string
}

var titleTokens = map[string]struct{}{
	"dr": {}, "mr": {}, "mrs": {}, "ms": {}, "miss": {}, "mx": {}, "prof": {}, "sir": {},
}

func newNameForm(name string) nameForm {
	full := strings.Join(nameTokens(name), " ")
	tokens := nameTokens(name)
	for len(tokens) > 1 {
		if _, ok := titleTokens[tokens[0]]; !ok {
			break
		}
		tokens = tokens[1:]
	}
	return nameForm{full: full, cleaned: strings.Join(tokens, " "), tokens: tokens}
}

// nameTokens lowercases s and splits it on anything that is not a letter, digit,
// apostrophe or hyphen.
func nameTokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '-')
	})
}

func (f nameForm) first() string {
	if len(f.tokens) == 0 {
		return ""
	}
	return f.tokens[0]
}

func (f nameForm) last() string {
	if len(f.tokens) < 2 {
		return ""
	}
	return f.tokens[len(f.tokens)-1]
}

// matcher returns the index of the matching candidate, or -1.
type matcher struct {
	strategy Strategy
	match    func(q nameForm, cands []nameForm) int
}

// Resolver maps free-text names onto a fixed participant list. It is safe for concurrent
// use; nothing is mutated after construction.
type Resolver struct {
	participants []Participant
	forms        []nameForm
	chain        []matcher
}

// NewResolver prepares the matcher chain for participants. Earlier participants win ties.
func NewResolver(participants []Participant) *Resolver {
	return NewResolverWithThreshold(participants, DefaultFuzzyThreshold)
}

// NewResolverWithThreshold is NewResolver with a custom fuzzy similarity threshold.
func NewResolverWithThreshold(participants []Participant, threshold float64) *Resolver {
	r := &Resolver{
		participants: append([]Participant(nil), participants...),
		forms:        make([]nameForm, len(participants)),
	}
	for i, p := range participants {
		r.forms[i] = newNameForm(p.Name)
	}
	r.chain = []matcher{
		{StrategyExact, matchExact},
		{StrategyCleaned, matchCleaned},
		{StrategyFuzzy, fuzzyMatcher(threshold)},
		{StrategyNamePart, matchNamePart},
		{StrategyNickname, matchNickname},
	}
	return r
}

// Resolve is a convenience wrapper for one-off lookups.
func Resolve(name string, participants []Participant) Resolution {
	return NewResolver(participants).Resolve(name)
}

// Resolve runs the matcher chain; the first hit wins. Unresolved names are not errors.
func (r *Resolver) Resolve(name string) Resolution {
	original := stripUnassigned(name)
	q := newNameForm(original)
	if q.full != "" {
		for _, m := range r.chain {
			if i := m.match(q, r.forms); i >= 0 {
				p := r.participants[i]
				id := p.ID
				return Resolution{ParticipantID: &id, CanonicalName: p.Name, Matched: true, Strategy: m.strategy}
			}
		}
	}
	return unresolved(original)
}

// Ref resolves name and returns the record reference. Blank names yield nil.
func (r *Resolver) Ref(name string) *ParticipantRef {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	ref := r.Resolve(name).Ref(stripUnassigned(name))
	return &ref
}

// MustRef is Ref for required fields; a blank name becomes an unresolved marker.
func (r *Resolver) MustRef(name string) ParticipantRef {
	if ref := r.Ref(name); ref != nil {
		return *ref
	}
	return unresolved("").Ref("")
}

func unresolved(original string) Resolution {
	label := UnassignedLabel
	if original != "" {
		label = unassignedPrefix + " " + original
	}
	return Resolution{CanonicalName: label, Strategy: StrategyUnresolved}
}

// stripUnassigned removes any number of leading "UNASSIGNED:" markers.
func stripUnassigned(name string) string {
	name = strings.TrimSpace(name)
	for len(name) >= len(unassignedPrefix) && strings.EqualFold(name[:len(unassignedPrefix)], unassignedPrefix) {
		name = strings.TrimSpace(name[len(unassignedPrefix):])
	}
	if strings.EqualFold(name, UnassignedLabel) {
		return ""
	}
	return strings.Join(strings.Fields(name), " ")
}

func matchExact(q nameForm, cands []nameForm) int {
	for i, c := range cands {
		if c.full != "" && c.full == q.full {
			return i
		}
	}
	return -1
}

func matchCleaned(q nameForm, cands []nameForm) int {
	if q.cleaned == "" {
		return -1
	}
	for i, c := range cands {
		if c.cleaned == q.cleaned {
			return i
		}
	}
	return -1
}

func fuzzyMatcher(threshold float64) func(nameForm, []nameForm) int {
	return func(q nameForm, cands []nameForm) int {
		best, bestScore := -1, 0.0
		for i, c := range cands {
			s := similarity(q.cleaned, c.cleaned)
			if s > bestScore {
				best, bestScore = i, s
			}
		}
		if best < 0 || bestScore < threshold {
			return -1
		}
		return best
	}
}

// similarity is 1 - levenshtein(a,b)/max(len(a),len(b)).
func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	d := smetrics.WagnerFischer(a, b, 1, 1, 1)
	s := 1 - float64(d)/float64(maxLen)
	if s < 0 {
		return 0
	}
	return s
}

func significant(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if len([]rune(t)) >= minSignificantToken {
			out = append(out, t)
		}
	}
	return out
}

// matchNamePart prefers an exact first+last pairing, then the most shared significant
// tokens, then list order.
func matchNamePart(q nameForm, cands []nameForm) int {
	qs := significant(q.tokens)
	if len(qs) == 0 {
		return -1
	}
	if q.last() != "" {
		for i, c := range cands {
			if c.first() == q.first() && c.last() == q.last() {
				return i
			}
		}
	}
	best, bestShared := -1, 0
	for i, c := range cands {
		shared := 0
		for _, t := range qs {
			if containsToken(c.tokens, t) {
				shared++
			}
		}
		if shared > bestShared {
			best, bestShared = i, shared
		}
	}
	return best
}

// matchNickname maps the query's first name through the nickname table. A query surname,
// when present, must agree with the candidate's.
func matchNickname(q nameForm, cands []nameForm) int {
	variants := nicknameVariants(q.first())
	if len(variants) == 0 {
		return -1
	}
	for i, c := range cands {
		if _, ok := variants[c.first()]; !ok {
			continue
		}
		if q.last() == "" || q.last() == c.last() {
			return i
		}
	}
	return -1
}

func containsToken(tokens []string, t string) bool {
	for _, x := range tokens {
		if x == t {
			return true
		}
	}
	return false
}
