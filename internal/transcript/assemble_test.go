package transcript

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestAggregate(t *testing.T) {
	segments := []AlignedSegment{
		{SpeechConfidence: 0.9},
		{SpeechConfidence: 0.8},
		{SpeechConfidence: 1.0},
	}
	if got := Aggregate(segments); !almostEqual(got, 0.9) {
		t.Errorf("Expected 0.9, got %f", got)
	}
	if got := Aggregate(nil); got != NeutralConfidence {
		t.Errorf("Expected neutral %f for empty input, got %f", NeutralConfidence, got)
	}
}

func TestSpeechConfidence(t *testing.T) {
	tests := []struct {
		noSpeech float64
		expected float64
	}{
		{0.0, 1.0},
		{0.04, 0.96},
		{1.0, 0.0},
		{1.5, 0.0},
		{-0.2, 1.0},
		{math.NaN(), 0.0},
	}
	for _, tt := range tests {
		if got := SpeechConfidence(tt.noSpeech); !almostEqual(got, tt.expected) {
			t.Errorf("SpeechConfidence(%v): expected %f, got %f", tt.noSpeech, tt.expected, got)
		}
	}
}

func TestAssemble(t *testing.T) {
	segments := []AlignedSegment{
		{Start: 0, End: 1, Text: "  Hola, ", Speaker: "A", SpeechConfidence: 1.0},
		{Start: 1, End: 2, Text: "", Speaker: "A", SpeechConfidence: 0.5},
		{Start: 2, End: 3, Text: "buenos días\n", Speaker: "B", SpeechConfidence: 0.6},
	}

	tr := Assemble(segments, "es", 3.5, ModeDiarization)

	if tr.FullText != "Hola, buenos días" {
		t.Errorf("Expected joined text, got %q", tr.FullText)
	}
	if tr.NumSpeakers != 2 {
		t.Errorf("Expected 2 speakers, got %d", tr.NumSpeakers)
	}
	if !almostEqual(tr.Confidence, 0.7) {
		t.Errorf("Expected confidence 0.7, got %f", tr.Confidence)
	}
	if tr.Language != "es" || tr.DurationSeconds != 3.5 || tr.Mode != ModeDiarization {
		t.Errorf("Expected passthrough fields, got %+v", tr)
	}
	if len(tr.Segments) != 3 {
		t.Errorf("Expected 3 segments, got %d", len(tr.Segments))
	}
}

func TestAssemble_Empty(t *testing.T) {
	tr := Assemble(nil, "en", 0, ModeDiarization)
	if tr.FullText != "" || tr.NumSpeakers != 0 {
		t.Errorf("Expected empty transcript, got %+v", tr)
	}
	if tr.Confidence != NeutralConfidence {
		t.Errorf("Expected neutral confidence, got %f", tr.Confidence)
	}
}

func TestSimple(t *testing.T) {
	segments := []Segment{
		{Start: 0, End: 1, Text: " one", SpeechConfidence: 0.8},
		{Start: 1, End: 2, Text: "two ", SpeechConfidence: 0.6},
	}

	tr := Simple(segments, "", "en", 2)
	if tr.FullText != "one two" {
		t.Errorf("Expected joined text, got %q", tr.FullText)
	}
	if !almostEqual(tr.Confidence, 0.7) {
		t.Errorf("Expected confidence 0.7, got %f", tr.Confidence)
	}
	if tr.Mode != ModeSimple || tr.Segments != nil || tr.NumSpeakers != 0 {
		t.Errorf("Expected simple transcript without segments, got %+v", tr)
	}

	tr = Simple(segments, "  One, two.  ", "en", 2)
	if tr.FullText != "One, two." {
		t.Errorf("Expected engine text to win, got %q", tr.FullText)
	}

	tr = Simple(nil, "", "en", 0)
	if tr.Confidence != SimpleDefaultConfidence {
		t.Errorf("Expected default simple confidence, got %f", tr.Confidence)
	}
}
