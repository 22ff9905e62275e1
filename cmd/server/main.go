package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/lexiqai/speech-gateway/internal/api"
	"github.com/lexiqai/speech-gateway/internal/audio"
	"github.com/lexiqai/speech-gateway/internal/config"
	"github.com/lexiqai/speech-gateway/internal/engine"
	"github.com/lexiqai/speech-gateway/internal/engine/deepgram"
	"github.com/lexiqai/speech-gateway/internal/engine/pyannote"
	"github.com/lexiqai/speech-gateway/internal/engine/whisper"
	"github.com/lexiqai/speech-gateway/internal/observability"
	"github.com/lexiqai/speech-gateway/internal/resilience"
	"github.com/lexiqai/speech-gateway/internal/service"
	"github.com/lexiqai/speech-gateway/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("addr", cfg.Addr()).
		Str("environment", cfg.Environment).
		Str("transcription_backend", cfg.TranscriptionBackend).
		Str("transcription_model", cfg.TranscriptionModel()).
		Bool("diarization_enabled", cfg.DiarizationEnabled()).
		Str("store", cfg.StoreBackend).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Speech Gateway Service starting")

	scratch, err := audio.NewScratch(cfg.ScratchDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to prepare scratch directory")
	}

	st, err := openStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("store", cfg.StoreBackend).Msg("Failed to open store")
	}
	defer st.Close()

	// gRPC health server, fed by engine loads
	var healthServer *observability.HealthServer
	poolOpts := []engine.PoolOption{
		engine.WithLoadTimeout(cfg.EngineTimeoutDuration()),
		engine.WithGuard(guardFunc(cfg, logger)),
		engine.WithObserver(observability.ObserveEngineLoad),
	}
	if cfg.GRPCHealthEnabled {
		healthServer = observability.NewHealthServer(logger, engine.KindTranscription, engine.KindDiarization)
		poolOpts = append(poolOpts, engine.WithObserver(healthServer.ObserveEngineLoad))
	}

	pool := engine.NewPool(transcriberFactory(cfg, logger), diarizerFactory(cfg, logger), logger, poolOpts...)

	svc := service.New(pool, audio.NewConverter(cfg.FFmpegPath, scratch), scratch, st, service.Options{
		TranscriptionBackend: cfg.TranscriptionBackend,
		TranscriptionModel:   cfg.TranscriptionModel(),
		DiarizationModel:     cfg.DiarizationModel,
		DiarizationEnabled:   cfg.DiarizationEnabled(),
		MaxUploadBytes:       cfg.MaxUploadBytes(),
	}, logger)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.RouterConfig{
		APIKey:         cfg.APIKey,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		MetricsEnabled: cfg.MetricsEnabled,
		Health: observability.HealthInfo{
			WhisperModel:       cfg.WhisperModel,
			Environment:        cfg.Environment,
			DiarizationEnabled: cfg.DiarizationEnabled(),
		},
		ReadyChecks: readyChecks(cfg, pool, st),
		Logger:      logger,
	}, api.NewHandler(svc, logger))
	if cfg.MetricsEnabled {
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.EngineWarmup {
		go warmup(ctx, cfg, pool, logger)
	}

	// Create HTTP server with timeouts. Writes may wait on a full engine call.
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: cfg.EngineTimeoutDuration() + 60*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	if healthServer != nil {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCHealthPort)
		if err != nil {
			logger.Fatal().Err(err).Str("port", cfg.GRPCHealthPort).Msg("Failed to listen for gRPC health")
		}
		go func() {
			if err := healthServer.Serve(lis); err != nil {
				logger.Error().Err(err).Msg("gRPC health server stopped")
			}
		}()
	}

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if healthServer != nil {
		healthServer.Stop()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}

func openStore(cfg *config.Config) (store.Store, error) {
	retry := &resilience.RetryConfig{
		MaxAttempts:       cfg.RetryMaxAttempts,
		InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
	switch cfg.StoreBackend {
	case store.BackendSQLite:
		return store.OpenSQLite(cfg.SQLitePath, retry)
	case store.BackendSupabase:
		return store.NewSupabase(cfg.SupabaseURL, cfg.SupabaseKey, retry)
	default:
		return store.Nop{}, nil
	}
}

func waitConfig(cfg *config.Config) *resilience.WaitConfig {
	wait := resilience.DefaultWaitConfig()
	wait.MaxAttempts = cfg.EngineReadyAttempts
	wait.Backoff = time.Duration(cfg.EngineReadyBackoff) * time.Millisecond
	return wait
}

func transcriberFactory(cfg *config.Config, logger zerolog.Logger) engine.TranscriberFactory {
	if cfg.TranscriptionBackend == deepgram.BackendName {
		return deepgram.Factory(deepgram.Config{
			APIKey: cfg.DeepgramAPIKey,
			Model:  cfg.DeepgramModel,
		}, logger)
	}
	return whisper.Factory(whisper.Config{
		URL:     cfg.WhisperURL,
		Model:   cfg.WhisperModel,
		Timeout: cfg.EngineTimeoutDuration(),
		Wait:    waitConfig(cfg),
	}, logger)
}

func diarizerFactory(cfg *config.Config, logger zerolog.Logger) engine.DiarizerFactory {
	if !cfg.DiarizationEnabled() {
		return nil
	}
	return pyannote.Factory(pyannote.Config{
		URL:      cfg.PyannoteURL,
		Pipeline: cfg.DiarizationModel,
		Token:    cfg.HFToken,
		Timeout:  cfg.EngineTimeoutDuration(),
		Wait:     waitConfig(cfg),
	}, logger)
}

// guardFunc gives every loaded engine its own inference limit and circuit breaker.
func guardFunc(cfg *config.Config, logger zerolog.Logger) engine.GuardFunc {
	resetTimeout := time.Duration(cfg.CircuitBreakerResetTimeout) * time.Second
	return func(kind, key string) engine.Guard {
		breaker := resilience.NewCircuitBreaker(kind, cfg.CircuitBreakerMaxFailures, resetTimeout).
			OnStateChange(func(name string, from, to resilience.CircuitState) {
				observability.RecordCircuitBreakerTransition(name, int(to), to.String())
				logger.Warn().
					Str("engine", name).
					Str("key", key).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("Circuit breaker state changed")
			})
		observability.UpdateCircuitBreakerState(kind, int(resilience.StateClosed))
		return engine.Guard{
			Limit:   engine.NewLimit(cfg.EngineMaxConcurrency),
			Breaker: breaker,
		}
	}
}

// readyChecks reports engines that are not loaded yet as ready unless warmup
// was requested, since lazy loading happens on the first request.
func readyChecks(cfg *config.Config, pool *engine.Pool, st store.Store) []observability.Check {
	engineCheck := func(kind string) observability.HealthCheckFunc {
		return func(ctx context.Context) (bool, error) {
			if len(pool.Loaded()[kind]) == 0 {
				if cfg.EngineWarmup {
					return false, fmt.Errorf("%s engine not loaded yet", kind)
				}
				return true, nil
			}
			if !pool.Check(ctx, kind) {
				return false, fmt.Errorf("%s engine unavailable", kind)
			}
			return true, nil
		}
	}

	checks := []observability.Check{
		{Name: engine.KindTranscription, Fn: engineCheck(engine.KindTranscription)},
	}
	if cfg.DiarizationEnabled() {
		checks = append(checks, observability.Check{Name: engine.KindDiarization, Fn: engineCheck(engine.KindDiarization)})
	}
	checks = append(checks, observability.Check{Name: "store", Fn: func(ctx context.Context) (bool, error) {
		if err := st.Ping(ctx); err != nil {
			return false, err
		}
		return true, nil
	}})
	return checks
}

// warmup loads the configured engines before the first request needs them.
func warmup(ctx context.Context, cfg *config.Config, pool *engine.Pool, logger zerolog.Logger) {
	if _, err := pool.Transcriber(ctx, engine.TranscriberParams{
		Backend: cfg.TranscriptionBackend,
		Model:   cfg.TranscriptionModel(),
	}); err != nil {
		logger.Error().Err(err).Msg("Transcription engine warmup failed")
	}
	if cfg.DiarizationEnabled() {
		if _, err := pool.Diarizer(ctx, engine.DiarizerParams{Model: cfg.DiarizationModel}); err != nil {
			logger.Error().Err(err).Msg("Diarization engine warmup failed")
		}
	}
}
