package transcript

import (
	"github.com/rs/zerolog"

	"github.com/lexiqai/speech-gateway/internal/apperror"
)

// Input is everything the builder needs for one clip.
type Input struct {
	ClipID          string
	Segments        []Segment
	Intervals       []Interval
	Context         *RoleContext
	Language        string
	DurationSeconds float64
}

// Builder runs align → roles → aggregate → assemble for one clip at a time.
// A Builder holds no per-clip state and may be shared between goroutines.
type Builder struct {
	Policy RolePolicy
	Logger zerolog.Logger
}

// NewBuilder returns a Builder using FirstSpeakerExecutive.
func NewBuilder(logger zerolog.Logger) *Builder {
	return &Builder{Policy: FirstSpeakerExecutive, Logger: logger}
}

// Build produces the diarized transcript for in. Errors carry the clip id
// and the stage that failed.
func (b *Builder) Build(in Input) (*Transcript, error) {
	log := b.Logger.With().Str("clip_id", in.ClipID).Logger()

	aligned, err := Align(in.Segments, in.Intervals)
	if err != nil {
		return nil, annotate(err, in.ClipID, "align")
	}

	if in.Context.IsZero() {
		log.Debug().Msg("No role context provided, roles follow speaker order")
	} else {
		log.Debug().
			Str("cliente_id", in.Context.ClientHint).
			Str("ejecutivo_id", in.Context.ExecutiveHint).
			Msg("Role context provided, attaching as segment metadata; roles follow speaker order")
	}

	segments := AssignRoles(aligned, in.Context, b.Policy)
	t := Assemble(segments, in.Language, in.DurationSeconds, ModeDiarization)

	log.Info().
		Int("segments", len(t.Segments)).
		Int("num_speakers", t.NumSpeakers).
		Int("diarization_intervals", len(in.Intervals)).
		Float64("confidence", t.Confidence).
		Msg("Transcript aligned")
	return t, nil
}

func annotate(err error, clipID, stage string) error {
	apperror.Annotate(err, "clip_id", clipID)
	return apperror.Annotate(err, "stage", stage)
}
