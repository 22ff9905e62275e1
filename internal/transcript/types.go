// Package transcript reconciles the output of a transcription engine and a
// diarization engine into a single speaker-attributed, role-labelled
// transcript.
//
// Everything here is pure: no I/O, no shared state. Independent clips can be
// processed concurrently without coordination.
package transcript

// SpeakerID is an opaque speaker label. It is only meaningful within the
// diarization run that produced it and must never be compared across clips.
type SpeakerID string

// UnknownSpeaker is assigned to segments that overlap no diarization interval.
const UnknownSpeaker SpeakerID = "SPEAKER_UNKNOWN"

// Role is the conversational role assigned to a speaker.
type Role string

const (
	RoleExecutive Role = "executive"
	RoleClient    Role = "client"
	RoleUnknown   Role = "unknown"
)

// Mode selects how a transcript was produced.
type Mode string

const (
	ModeSimple      Mode = "simple"
	ModeDiarization Mode = "diarization"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeSimple || m == ModeDiarization
}

// Segment is one timestamped piece of text from the transcription engine.
type Segment struct {
	Start            float64
	End              float64
	Text             string
	SpeechConfidence float64 // 1 - no_speech_prob
}

// Interval is one speaker turn from the diarization engine.
type Interval struct {
	Start   float64
	End     float64
	Speaker SpeakerID
}

// RoleContext carries caller-supplied hints about who is in the conversation.
// The hints are never matched against speaker ids; they only travel with
// the segments as metadata.
type RoleContext struct {
	ClientHint    string `json:"cliente_id,omitempty"`
	ExecutiveHint string `json:"ejecutivo_id,omitempty"`
}

// IsZero reports whether no hint is set.
func (c *RoleContext) IsZero() bool {
	return c == nil || (c.ClientHint == "" && c.ExecutiveHint == "")
}

// Attribution pairs a transcript segment with the speaker it was aligned to.
type Attribution struct {
	Segment Segment
	Speaker SpeakerID
}

// AlignedSegment is a transcript segment annotated with speaker and role.
type AlignedSegment struct {
	Start            float64
	End              float64
	Text             string
	Speaker          SpeakerID
	SpeechConfidence float64
	Role             Role
	Context          *RoleContext
}

// Transcript is the final reconciled result for one clip.
type Transcript struct {
	FullText        string
	Language        string
	Confidence      float64
	DurationSeconds float64
	Mode            Mode
	Segments        []AlignedSegment
	NumSpeakers     int
}
