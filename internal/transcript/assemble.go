package transcript

import "strings"

// Assemble builds the final Transcript from role-labelled segments.
func Assemble(segments []AlignedSegment, language string, durationSeconds float64, mode Mode) *Transcript {
	texts := make([]string, 0, len(segments))
	speakers := make(map[SpeakerID]struct{})
	for _, s := range segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			texts = append(texts, t)
		}
		speakers[s.Speaker] = struct{}{}
	}

	return &Transcript{
		FullText:        strings.Join(texts, " "),
		Language:        language,
		Confidence:      Aggregate(segments),
		DurationSeconds: durationSeconds,
		Mode:            mode,
		Segments:        segments,
		NumSpeakers:     len(speakers),
	}
}

// Simple builds a transcript without speaker attribution. text is the
// engine's own full text; when empty the segment texts are joined instead.
func Simple(segments []Segment, text, language string, durationSeconds float64) *Transcript {
	confidence := SimpleDefaultConfidence
	parts := make([]string, 0, len(segments))
	if len(segments) > 0 {
		sum := 0.0
		for _, s := range segments {
			sum += s.SpeechConfidence
			if t := strings.TrimSpace(s.Text); t != "" {
				parts = append(parts, t)
			}
		}
		confidence = sum / float64(len(segments))
	}

	text = strings.TrimSpace(text)
	if text == "" {
		text = strings.Join(parts, " ")
	}

	return &Transcript{
		FullText:        text,
		Language:        language,
		Confidence:      confidence,
		DurationSeconds: durationSeconds,
		Mode:            ModeSimple,
	}
}
