package transcript

import "math"

// NeutralConfidence is reported for a diarized transcript with no segments.
// It is a policy value, not an estimate.
const NeutralConfidence = 0.5

// SimpleDefaultConfidence is reported in simple mode when the engine returns
// no segments to average over.
const SimpleDefaultConfidence = 0.9

// Aggregate returns the mean speech confidence of segments, or
// NeutralConfidence when there are none.
func Aggregate(segments []AlignedSegment) float64 {
	if len(segments) == 0 {
		return NeutralConfidence
	}
	sum := 0.0
	for _, s := range segments {
		sum += s.SpeechConfidence
	}
	return sum / float64(len(segments))
}

// SpeechConfidence converts an engine no-speech probability into a speech
// confidence clamped to [0,1].
func SpeechConfidence(noSpeechProb float64) float64 {
	c := 1 - noSpeechProb
	switch {
	case math.IsNaN(c), c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
