// Package service runs one transcription request end to end: scratch file,
// engines, reconciliation and persistence.
package service

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lexiqai/speech-gateway/internal/apperror"
	"github.com/lexiqai/speech-gateway/internal/audio"
	"github.com/lexiqai/speech-gateway/internal/engine"
	"github.com/lexiqai/speech-gateway/internal/observability"
	"github.com/lexiqai/speech-gateway/internal/store"
	"github.com/lexiqai/speech-gateway/internal/transcript"
)

const persistTimeout = 10 * time.Second

// Engines hands out shared engine handles. *engine.Pool satisfies it.
type Engines interface {
	Transcriber(ctx context.Context, params engine.TranscriberParams) (engine.Transcriber, error)
	Diarizer(ctx context.Context, params engine.DiarizerParams) (engine.Diarizer, error)
}

// WAVConverter normalizes audio for the diarization engine. *audio.Converter satisfies it.
type WAVConverter interface {
	ToWAV(ctx context.Context, src string) (dst string, cleanup func(), err error)
}

// Options selects engines and limits.
type Options struct {
	TranscriptionBackend string
	TranscriptionModel   string
	DiarizationBackend   string
	DiarizationModel     string
	DiarizationEnabled   bool
	MaxUploadBytes       int64
}

// Request is one upload to transcribe.
type Request struct {
	RequestID   string
	UserID      string
	Filename    string
	Audio       io.Reader
	Language    string // empty means auto-detect
	Mode        transcript.Mode
	NumSpeakers int // 0 lets the diarization engine decide
	Context     *transcript.RoleContext
}

// Result is a finished transcript plus bookkeeping.
type Result struct {
	*transcript.Transcript
	ClipID    string
	CreatedAt time.Time
}

// Service orchestrates transcription requests. It is safe for concurrent use.
type Service struct {
	engines   Engines
	converter WAVConverter
	scratch   *audio.Scratch
	store     store.Store
	builder   *transcript.Builder
	opts      Options
	logger    zerolog.Logger
	now       func() time.Time
}

// New creates a Service. A nil store discards results.
func New(engines Engines, converter WAVConverter, scratch *audio.Scratch, st store.Store, opts Options, logger zerolog.Logger) *Service {
	if st == nil {
		st = store.Nop{}
	}
	if opts.DiarizationBackend == "" {
		opts.DiarizationBackend = "pyannote"
	}
	return &Service{
		engines:   engines,
		converter: converter,
		scratch:   scratch,
		store:     st,
		builder:   transcript.NewBuilder(logger),
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// Transcribe runs req to completion. The uploaded audio and any derived
// files are removed before it returns, whatever the outcome.
func (s *Service) Transcribe(ctx context.Context, req Request) (res *Result, err error) {
	if req.Mode == "" {
		req.Mode = transcript.ModeSimple
	}
	log := s.logger.With().
		Str("request_id", req.RequestID).
		Str("user_id", req.UserID).
		Str("mode", string(req.Mode)).
		Logger()

	metrics := observability.NewRequestMetrics(req.RequestID, string(req.Mode))
	defer func() {
		if err != nil {
			stage := "request"
			if appErr, ok := apperror.As(err); ok {
				if st, ok := appErr.Details["stage"].(string); ok {
					stage = st
				}
			}
			metrics.RecordError(string(apperror.KindOf(err)), stage)
			log.Error().Err(err).Str("stage", stage).Msg("Transcription failed")
		}
		metrics.Finish(err == nil)
	}()

	if err := s.validate(req); err != nil {
		return nil, err
	}

	metrics.StageStart(observability.StageUpload)
	clip, err := s.scratch.Save(req.Audio, req.Filename, s.opts.MaxUploadBytes)
	metrics.StageEnd(observability.StageUpload)
	if err != nil {
		return nil, apperror.Annotate(err, "stage", observability.StageUpload)
	}
	defer func() {
		if rmErr := clip.Remove(); rmErr != nil {
			log.Warn().Err(rmErr).Str("path", clip.Path).Msg("Failed to remove scratch file")
		}
	}()
	metrics.RecordAudioBytes(clip.Size)

	log = log.With().Str("clip_id", clip.ID).Logger()
	log.Info().
		Str("filename", clip.Filename).
		Int64("bytes", clip.Size).
		Msg("Audio saved to scratch")

	var t *transcript.Transcript
	if req.Mode == transcript.ModeDiarization {
		t, err = s.diarized(ctx, req, clip, metrics)
	} else {
		t, err = s.simple(ctx, req, clip, metrics)
	}
	if err != nil {
		return nil, apperror.Annotate(err, "clip_id", clip.ID)
	}
	if t.Mode == transcript.ModeDiarization {
		metrics.RecordSpeakers(t.NumSpeakers)
	}

	createdAt := s.now().UTC()
	s.persist(ctx, log, metrics, store.NewRecord(req.UserID, req.Filename, clip.ID, t, req.Context, createdAt))

	log.Info().
		Int("chars", len(t.FullText)).
		Str("language", t.Language).
		Float64("confidence", t.Confidence).
		Float64("duration_seconds", t.DurationSeconds).
		Msg("Transcription completed")

	return &Result{Transcript: t, ClipID: clip.ID, CreatedAt: createdAt}, nil
}

func (s *Service) validate(req Request) error {
	if !req.Mode.Valid() {
		return apperror.Newf(apperror.KindValidation, "unknown mode %q", req.Mode).WithDetail("stage", "request")
	}
	if req.NumSpeakers < 0 {
		return apperror.Validation("num_speakers must not be negative").WithDetail("stage", "request")
	}
	if req.Mode == transcript.ModeDiarization && !s.opts.DiarizationEnabled {
		return apperror.Config("HF_TOKEN environment variable required for diarization mode").
			WithDetail("stage", "request")
	}
	return apperror.Annotate(audio.CheckFormat(req.Filename), "stage", "request")
}

func (s *Service) simple(ctx context.Context, req Request, clip *audio.Clip, metrics *observability.RequestMetrics) (*transcript.Transcript, error) {
	metrics.StageStart(observability.StageTranscribe)
	res, err := s.transcribe(ctx, clip.Path, req.Language)
	metrics.StageEnd(observability.StageTranscribe)
	if err != nil {
		return nil, err
	}

	segments := res.TranscriptSegments()
	duration := firstPositive(res.Duration, lastEnd(segments))
	return transcript.Simple(segments, res.Text, languageOf(res, req.Language), duration), nil
}

func (s *Service) diarized(ctx context.Context, req Request, clip *audio.Clip, metrics *observability.RequestMetrics) (*transcript.Transcript, error) {
	var (
		tres        *engine.TranscriptionResult
		dres        *engine.DiarizationResult
		wavDuration float64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		metrics.StageStart(observability.StageTranscribe)
		defer metrics.StageEnd(observability.StageTranscribe)
		var err error
		tres, err = s.transcribe(gctx, clip.Path, req.Language)
		return err
	})
	g.Go(func() error {
		metrics.StageStart(observability.StageConvert)
		wav, cleanup, err := s.converter.ToWAV(gctx, clip.Path)
		metrics.StageEnd(observability.StageConvert)
		if err != nil {
			return stageError(apperror.Engine("ffmpeg", err), observability.StageConvert)
		}
		defer cleanup()

		if info, err := audio.InspectWAV(wav); err == nil {
			wavDuration = info.Duration
		} else {
			s.logger.Debug().Err(err).Str("clip_id", clip.ID).Msg("Could not read converted WAV header")
		}

		metrics.StageStart(observability.StageDiarize)
		defer metrics.StageEnd(observability.StageDiarize)
		dres, err = s.diarize(gctx, wav, req.NumSpeakers)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	segments := tres.TranscriptSegments()
	metrics.StageStart(observability.StageAlign)
	t, err := s.builder.Build(transcript.Input{
		ClipID:          clip.ID,
		Segments:        segments,
		Intervals:       dres.Intervals(),
		Context:         req.Context,
		Language:        languageOf(tres, req.Language),
		DurationSeconds: firstPositive(tres.Duration, wavDuration, lastEnd(segments)),
	})
	metrics.StageEnd(observability.StageAlign)
	return t, err
}

func (s *Service) transcribe(ctx context.Context, path, language string) (*engine.TranscriptionResult, error) {
	name := s.opts.TranscriptionBackend
	t, err := s.engines.Transcriber(ctx, engine.TranscriberParams{
		Backend: s.opts.TranscriptionBackend,
		Model:   s.opts.TranscriptionModel,
	})
	if err != nil {
		return nil, stageError(engineError(name, err), observability.StageTranscribe)
	}

	res, err := t.Transcribe(ctx, engine.TranscriptionRequest{AudioPath: path, Language: language})
	if err != nil {
		return nil, stageError(engineError(t.Name(), err), observability.StageTranscribe)
	}
	return res, nil
}

func (s *Service) diarize(ctx context.Context, path string, numSpeakers int) (*engine.DiarizationResult, error) {
	name := s.opts.DiarizationBackend
	d, err := s.engines.Diarizer(ctx, engine.DiarizerParams{Model: s.opts.DiarizationModel})
	if err != nil {
		return nil, stageError(engineError(name, err), observability.StageDiarize)
	}

	res, err := d.Diarize(ctx, engine.DiarizationRequest{AudioPath: path, NumSpeakers: numSpeakers})
	if err != nil {
		return nil, stageError(engineError(d.Name(), err), observability.StageDiarize)
	}
	return res, nil
}

func (s *Service) persist(ctx context.Context, log zerolog.Logger, metrics *observability.RequestMetrics, r *store.Record) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	metrics.StageStart(observability.StagePersist)
	err := s.store.Save(ctx, r)
	metrics.StageEnd(observability.StagePersist)
	if err != nil {
		metrics.RecordError(string(apperror.KindInternal), observability.StagePersist)
		log.Warn().Err(err).Str("store", s.store.Name()).Msg("Failed to persist transcription")
		return
	}
	log.Debug().Str("record_id", r.ID).Str("store", s.store.Name()).Msg("Transcription persisted")
}

// engineError keeps typed errors from the engines and wraps everything else as ENGINE.
func engineError(name string, err error) error {
	if _, ok := apperror.As(err); ok {
		return err
	}
	return apperror.Engine(name, err)
}

func stageError(err error, stage string) error {
	return apperror.Annotate(err, "stage", stage)
}

func languageOf(res *engine.TranscriptionResult, requested string) string {
	if res.Language != "" {
		return res.Language
	}
	return requested
}

func lastEnd(segments []transcript.Segment) float64 {
	if len(segments) == 0 {
		return 0
	}
	return segments[len(segments)-1].End
}

func firstPositive(values ...float64) float64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
