// Package engine holds the contracts for transcription and diarization
// backends and the machinery that loads them once and shares them between
// requests.
package engine

import (
	"context"

	"github.com/lexiqai/speech-gateway/internal/transcript"
)

// Engine kinds, used as gate names, metric labels and gRPC health services.
const (
	KindTranscription = "transcription"
	KindDiarization   = "diarization"
)

// TranscriptionRequest asks a Transcriber to transcribe one audio file.
type TranscriptionRequest struct {
	AudioPath string
	Language  string // empty means auto-detect
}

// TranscriptionSegment is a segment as reported by the engine.
type TranscriptionSegment struct {
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Text         string  `json:"text"`
	NoSpeechProb float64 `json:"no_speech_prob"`
}

// TranscriptionResult is the raw engine output for one clip.
type TranscriptionResult struct {
	Text     string                 `json:"text"`
	Language string                 `json:"language"`
	Duration float64                `json:"duration"`
	Segments []TranscriptionSegment `json:"segments"`
}

// TranscriptSegments converts engine segments into core segments.
func (r *TranscriptionResult) TranscriptSegments() []transcript.Segment {
	out := make([]transcript.Segment, len(r.Segments))
	for i, s := range r.Segments {
		out[i] = transcript.Segment{
			Start:            s.Start,
			End:              s.End,
			Text:             s.Text,
			SpeechConfidence: transcript.SpeechConfidence(s.NoSpeechProb),
		}
	}
	return out
}

// DiarizationRequest asks a Diarizer to find speaker turns in one audio file.
type DiarizationRequest struct {
	AudioPath   string
	NumSpeakers int // 0 lets the engine decide
}

// Turn is one speaker turn as reported by the engine.
type Turn struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// DiarizationResult is the raw engine output for one clip.
type DiarizationResult struct {
	Turns []Turn
}

// Intervals converts engine turns into core intervals.
func (r *DiarizationResult) Intervals() []transcript.Interval {
	out := make([]transcript.Interval, len(r.Turns))
	for i, t := range r.Turns {
		out[i] = transcript.Interval{Start: t.Start, End: t.End, Speaker: transcript.SpeakerID(t.Speaker)}
	}
	return out
}

// Transcriber turns audio into timestamped text.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, req TranscriptionRequest) (*TranscriptionResult, error)
}

// Diarizer turns audio into speaker turns.
type Diarizer interface {
	Name() string
	Diarize(ctx context.Context, req DiarizationRequest) (*DiarizationResult, error)
}

// Initializer is implemented by engines that need an expensive one-time
// load (model download, weights into memory) before first use.
type Initializer interface {
	Init(ctx context.Context) error
}

// Checker is implemented by engines that can report liveness cheaply.
type Checker interface {
	IsAvailable(ctx context.Context) bool
}
