package transcript

import (
	"math"

	"github.com/lexiqai/speech-gateway/internal/apperror"
)

// Align assigns every segment the speaker of the diarization interval it
// overlaps most. Ties go to the interval that appears first in intervals.
// Segments that overlap nothing get UnknownSpeaker.
//
// Timestamps are copied through untouched; the result has exactly one entry
// per input segment, in input order.
func Align(segments []Segment, intervals []Interval) ([]Attribution, error) {
	if len(intervals) == 0 {
		return nil, apperror.Validation("no speakers detected")
	}
	for i, d := range intervals {
		if !validSpan(d.Start, d.End) {
			return nil, apperror.Newf(apperror.KindAlignment,
				"malformed diarization interval %d: [%g, %g]", i, d.Start, d.End).
				WithDetail("interval_index", i)
		}
	}

	aligned := make([]Attribution, len(segments))
	for i, w := range segments {
		if !validSpan(w.Start, w.End) {
			return nil, apperror.Newf(apperror.KindAlignment,
				"malformed transcript segment %d: [%g, %g]", i, w.Start, w.End).
				WithDetail("segment_index", i)
		}
		aligned[i] = Attribution{Segment: w, Speaker: bestSpeaker(w, intervals)}
	}
	return aligned, nil
}

func bestSpeaker(w Segment, intervals []Interval) SpeakerID {
	best := 0.0
	speaker := UnknownSpeaker
	for _, d := range intervals {
		// strict > keeps the earliest interval on ties
		if o := overlap(w.Start, w.End, d.Start, d.End); o > best {
			best = o
			speaker = d.Speaker
		}
	}
	return speaker
}

func overlap(aStart, aEnd, bStart, bEnd float64) float64 {
	return math.Max(0, math.Min(aEnd, bEnd)-math.Max(aStart, bStart))
}

func validSpan(start, end float64) bool {
	if math.IsNaN(start) || math.IsNaN(end) || math.IsInf(start, 0) || math.IsInf(end, 0) {
		return false
	}
	return start >= 0 && end >= start
}
