// Package store persists finished transcripts. Persistence is best effort
// from the request's point of view: callers log failures and still answer.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lexiqai/speech-gateway/internal/transcript"
)

// Backend names accepted by STORE_BACKEND.
const (
	BackendNone     = "none"
	BackendSQLite   = "sqlite"
	BackendSupabase = "supabase"
)

// Segment is a stored aligned segment. Times are whole milliseconds.
type Segment struct {
	Index      int     `json:"index"`
	Speaker    string  `json:"speaker"`
	Role       string  `json:"role"`
	StartMs    int64   `json:"start_ms"`
	EndMs      int64   `json:"end_ms"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Record is one persisted transcription.
type Record struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	ClipID           string    `json:"clip_id"`
	OriginalFilename string    `json:"original_filename"`
	Transcription    string    `json:"transcription"`
	Language         string    `json:"language"`
	Confidence       float64   `json:"confidence"`
	DurationSeconds  float64   `json:"duration_seconds"`
	Mode             string    `json:"mode"`
	NumSpeakers      int       `json:"num_speakers"`
	ClientHint       string    `json:"cliente_id,omitempty"`
	ExecutiveHint    string    `json:"ejecutivo_id,omitempty"`
	Segments         []Segment `json:"segments"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewRecord builds a Record for t with a fresh id.
func NewRecord(userID, filename, clipID string, t *transcript.Transcript, rc *transcript.RoleContext, now time.Time) *Record {
	r := &Record{
		ID:               uuid.NewString(),
		UserID:           userID,
		ClipID:           clipID,
		OriginalFilename: filename,
		Transcription:    t.FullText,
		Language:         t.Language,
		Confidence:       t.Confidence,
		DurationSeconds:  t.DurationSeconds,
		Mode:             string(t.Mode),
		NumSpeakers:      t.NumSpeakers,
		Segments:         make([]Segment, 0, len(t.Segments)),
		CreatedAt:        now.UTC(),
	}
	if !rc.IsZero() {
		r.ClientHint = rc.ClientHint
		r.ExecutiveHint = rc.ExecutiveHint
	}
	for i, s := range t.Segments {
		r.Segments = append(r.Segments, Segment{
			Index:      i,
			Speaker:    string(s.Speaker),
			Role:       string(s.Role),
			StartMs:    Millis(s.Start),
			EndMs:      Millis(s.End),
			Text:       s.Text,
			Confidence: s.SpeechConfidence,
		})
	}
	return r
}

var thousand = decimal.NewFromInt(1000)

// Millis converts seconds to whole milliseconds, rounding half away from zero.
func Millis(seconds float64) int64 {
	return decimal.NewFromFloat(seconds).Mul(thousand).Round(0).IntPart()
}

// Store persists records.
type Store interface {
	Name() string
	Save(ctx context.Context, r *Record) error
	Ping(ctx context.Context) error
	Close() error
}

// Nop discards records. Used when STORE_BACKEND=none.
type Nop struct{}

func (Nop) Name() string { return BackendNone }

func (Nop) Save(context.Context, *Record) error { return nil }

func (Nop) Ping(context.Context) error { return nil }

func (Nop) Close() error { return nil }
