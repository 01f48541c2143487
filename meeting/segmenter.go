package meeting

import (
	"regexp"
	"strings"
)

// DefaultMaxSegments is the number of windows a transcript is analyzed in.
const DefaultMaxSegments = 6

var sentenceEnd = regexp.MustCompile(`([.!?]+)(\s+|$)`)

// Normalize returns the segments to analyze, renumbered in chronological order.
// Raw text is split into sentences grouped into at most maxSegments windows; utterance
// lists longer than maxSegments are merged into even windows with inline speaker
// attribution. Blank segments are dropped.
func (t Transcript) Normalize(maxSegments int) []TranscriptSegment {
	if maxSegments <= 0 {
		maxSegments = DefaultMaxSegments
	}

	segs := make([]TranscriptSegment, 0, len(t.Segments))
	for _, s := range t.Segments {
		s.Text = strings.TrimSpace(s.Text)
		if s.Text == "" {
			continue
		}
		segs = append(segs, s)
	}
	if len(segs) == 0 {
		return windowsFromText(t.Text, maxSegments)
	}
	if len(segs) > maxSegments {
		segs = mergeUtterances(segs, maxSegments)
	}
	for i := range segs {
		segs[i].Index = i
	}
	return segs
}

// SplitSentences breaks text on terminal punctuation, keeping the punctuation.
func SplitSentences(text string) []string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil
	}
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringSubmatchIndex(text, -1) {
		end := loc[3]
		if s := strings.TrimSpace(text[start:end]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func windowsFromText(text string, maxSegments int) []TranscriptSegment {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}
	var out []TranscriptSegment
	start := 0
	for _, size := range Distribute(len(sentences), maxSegments) {
		if size == 0 {
			break
		}
		out = append(out, TranscriptSegment{
			Index: len(out),
			Text:  strings.Join(sentences[start:start+size], " "),
		})
		start += size
	}
	return out
}

func mergeUtterances(segs []TranscriptSegment, maxSegments int) []TranscriptSegment {
	out := make([]TranscriptSegment, 0, maxSegments)
	start := 0
	for _, size := range Distribute(len(segs), maxSegments) {
		window := segs[start : start+size]
		start += size

		lines := make([]string, 0, len(window))
		speaker := speakerOf(window[0])
		for _, s := range window {
			if speakerOf(s) != speaker {
				speaker = ""
			}
			if sp := speakerOf(s); sp != "" {
				lines = append(lines, sp+": "+s.Text)
			} else {
				lines = append(lines, s.Text)
			}
		}

		merged := TranscriptSegment{
			Text:      strings.Join(lines, "\n"),
			StartTime: window[0].StartTime,
			EndTime:   window[len(window)-1].EndTime,
		}
		if speaker != "" {
			merged.Speaker = &speaker
		}
		out = append(out, merged)
	}
	return out
}

func speakerOf(s TranscriptSegment) string {
	if s.Speaker == nil {
		return ""
	}
	return strings.TrimSpace(*s.Speaker)
}
