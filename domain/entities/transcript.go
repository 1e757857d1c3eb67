package entities

import (
	"math"
	"sort"
	"strings"
)

// MaxLanguageCandidates caps how many detected-language candidates a transcript keeps
const MaxLanguageCandidates = 10

// Segment is one timestamped phrase of a transcript, times in seconds
type Segment struct {
	ID    int     `json:"id" bson:"id"`
	Start float64 `json:"start" bson:"start"`
	End   float64 `json:"end" bson:"end"`
	Text  string  `json:"text" bson:"text"`
}

// LanguageCandidate is one (language, probability) pair from language detection
type LanguageCandidate struct {
	Language    string  `json:"language" bson:"language"`
	Probability float64 `json:"probability" bson:"probability"`
}

// Transcript is the output of a speech-to-text backend
type Transcript struct {
	Text                string              `json:"transcript" bson:"transcript"`
	Language            string              `json:"language" bson:"language"`
	LanguageProbability float64             `json:"language_probability" bson:"language_probability"`
	LanguageCandidates  []LanguageCandidate `json:"all_language_candidates,omitempty" bson:"all_language_candidates,omitempty"`
	Segments            []Segment           `json:"segments" bson:"segments"`
}

// Normalize returns a copy with contiguous segment ids, rounded probabilities,
// candidates sorted and truncated, and Text filled from the segments when empty.
func (t Transcript) Normalize() Transcript {
	out := t.Clone()
	out.Segments = NormalizeSegments(out.Segments)
	out.LanguageProbability = RoundProbability(out.LanguageProbability)

	sort.SliceStable(out.LanguageCandidates, func(i, j int) bool {
		return out.LanguageCandidates[i].Probability > out.LanguageCandidates[j].Probability
	})
	if len(out.LanguageCandidates) > MaxLanguageCandidates {
		out.LanguageCandidates = out.LanguageCandidates[:MaxLanguageCandidates]
	}
	for i := range out.LanguageCandidates {
		out.LanguageCandidates[i].Probability = RoundProbability(out.LanguageCandidates[i].Probability)
	}

	if strings.TrimSpace(out.Text) == "" {
		parts := make([]string, 0, len(out.Segments))
		for _, seg := range out.Segments {
			if seg.Text != "" {
				parts = append(parts, seg.Text)
			}
		}
		out.Text = strings.Join(parts, " ")
	} else {
		out.Text = strings.TrimSpace(out.Text)
	}
	return out
}

// TopCandidates returns at most n candidates in their current order
func (t Transcript) TopCandidates(n int) []LanguageCandidate {
	if n > len(t.LanguageCandidates) {
		n = len(t.LanguageCandidates)
	}
	return t.LanguageCandidates[:n]
}

// Clone returns a deep copy so callers never share slices with the registry
func (t Transcript) Clone() Transcript {
	out := t
	if t.LanguageCandidates != nil {
		out.LanguageCandidates = append([]LanguageCandidate(nil), t.LanguageCandidates...)
	}
	if t.Segments != nil {
		out.Segments = append([]Segment(nil), t.Segments...)
	}
	return out
}

// NormalizeSegments renumbers segments 0..n-1, trims their text and clamps end >= start.
func NormalizeSegments(segments []Segment) []Segment {
	out := make([]Segment, 0, len(segments))
	for i, seg := range segments {
		seg.ID = i
		seg.Text = strings.TrimSpace(seg.Text)
		if seg.Start < 0 {
			seg.Start = 0
		}
		if seg.End < seg.Start {
			seg.End = seg.Start
		}
		out = append(out, seg)
	}
	return out
}

// RoundProbability rounds to 4 decimal places
func RoundProbability(p float64) float64 {
	return math.Round(p*10000) / 10000
}
