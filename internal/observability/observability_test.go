package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in       string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestNewLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", false)

	logger.Debug().Msg("hidden")
	logger.Info().Str("clip_id", "abc").Msg("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("Expected debug line to be filtered at info level")
	}

	var line map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &line); err != nil {
		t.Fatalf("Expected one JSON line, got %q: %v", out, err)
	}
	if line["service"] != ServiceName {
		t.Errorf("Expected service field %q, got %v", ServiceName, line["service"])
	}
	if line["clip_id"] != "abc" {
		t.Errorf("Expected clip_id field, got %v", line["clip_id"])
	}
}

func TestNewRequestID_Unique(t *testing.T) {
	a, b := NewRequestID(), NewRequestID()
	if a == "" || a == b {
		t.Errorf("Expected distinct non-empty ids, got %q and %q", a, b)
	}
}

func TestInfoHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	InfoHandler()(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var info ServiceInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if info.Name != "Speech-to-Text API" || info.Status != "online" || info.Health != "/health" {
		t.Errorf("Unexpected info payload: %+v", info)
	}
}

func TestHealthCheckHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthCheckHandler(HealthInfo{
		WhisperModel:       "base",
		Environment:        "development",
		DiarizationEnabled: false,
	})(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("Expected healthy, got %v", body["status"])
	}
	if body["whisper_model"] != "base" {
		t.Errorf("Expected whisper_model base, got %v", body["whisper_model"])
	}
	enabled, ok := body["diarization_enabled"].(bool)
	if !ok || enabled {
		t.Errorf("Expected diarization_enabled false to be present, got %v", body["diarization_enabled"])
	}
}

func TestReadinessHandler(t *testing.T) {
	ok := func(context.Context) (bool, error) { return true, nil }
	down := func(context.Context) (bool, error) { return false, errors.New("sidecar unreachable") }
	notLoaded := func(context.Context) (bool, error) { return false, nil }

	tests := []struct {
		name         string
		checks       []Check
		expectedCode int
		expected     string
	}{
		{"no checks", nil, http.StatusOK, "ready"},
		{"all healthy", []Check{{"transcription", ok}, {"store", ok}}, http.StatusOK, "ready"},
		{"one failing", []Check{{"transcription", ok}, {"diarization", down}}, http.StatusServiceUnavailable, "not_ready"},
		{"unhealthy without error", []Check{{"transcription", notLoaded}}, http.StatusServiceUnavailable, "not_ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ReadinessHandler(time.Second, tt.checks...)(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if rec.Code != tt.expectedCode {
				t.Errorf("Expected %d, got %d", tt.expectedCode, rec.Code)
			}
			var status HealthStatus
			if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
				t.Fatalf("Failed to decode body: %v", err)
			}
			if status.Status != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, status.Status)
			}
			if len(status.Dependencies) != len(tt.checks) {
				t.Errorf("Expected %d dependencies, got %d", len(tt.checks), len(status.Dependencies))
			}
		})
	}
}

func TestReadinessHandler_ReportsMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	ReadinessHandler(time.Second, Check{"diarization", func(context.Context) (bool, error) {
		return false, errors.New("pipeline not loaded")
	}})(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	var status HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	dep := status.Dependencies["diarization"]
	if dep.Status != "unhealthy" || dep.Message != "pipeline not loaded" {
		t.Errorf("Unexpected dependency status: %+v", dep)
	}
}

func TestRequestMetrics(t *testing.T) {
	before := testutil.ToFloat64(requestsTotal.WithLabelValues("simple", "success"))
	active := testutil.ToFloat64(activeRequests)

	m := NewRequestMetrics("req-1", "simple")
	if got := testutil.ToFloat64(activeRequests); got != active+1 {
		t.Errorf("Expected active requests %v, got %v", active+1, got)
	}

	m.StageStart(StageTranscribe)
	m.StageEnd(StageTranscribe)
	m.StageEnd(StageAlign)
	m.Finish(true)
	m.Finish(false)

	if got := testutil.ToFloat64(requestsTotal.WithLabelValues("simple", "success")); got != before+1 {
		t.Errorf("Expected one success recorded, got %v", got-before)
	}
	if got := testutil.ToFloat64(activeRequests); got != active {
		t.Errorf("Expected active requests back to %v, got %v", active, got)
	}
}

func TestObserveEngineLoad(t *testing.T) {
	okBefore := testutil.ToFloat64(engineInitializations.WithLabelValues("diarization", "success"))
	errBefore := testutil.ToFloat64(engineInitializations.WithLabelValues("diarization", "error"))

	ObserveEngineLoad("diarization", "pyannote/speaker-diarization-3.1", time.Second, nil)
	ObserveEngineLoad("diarization", "pyannote/speaker-diarization-3.1", time.Second, errors.New("boom"))

	if got := testutil.ToFloat64(engineInitializations.WithLabelValues("diarization", "success")); got != okBefore+1 {
		t.Errorf("Expected one successful load, got %v", got-okBefore)
	}
	if got := testutil.ToFloat64(engineInitializations.WithLabelValues("diarization", "error")); got != errBefore+1 {
		t.Errorf("Expected one failed load, got %v", got-errBefore)
	}
}

func TestRecordCircuitBreakerTransition(t *testing.T) {
	RecordCircuitBreakerTransition("transcription", 1, "open")
	if got := testutil.ToFloat64(circuitBreakerState.WithLabelValues("transcription")); got != 1 {
		t.Errorf("Expected state gauge 1, got %v", got)
	}
	RecordCircuitBreakerTransition("transcription", 0, "closed")
	if got := testutil.ToFloat64(circuitBreakerState.WithLabelValues("transcription")); got != 0 {
		t.Errorf("Expected state gauge 0, got %v", got)
	}
}

func TestHealthServer(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	hs := NewHealthServer(zerolog.Nop(), "transcription", "diarization")
	go hs.Serve(lis)
	defer hs.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(ctx, "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("Check(%q) failed: %v", service, err)
		}
		return resp.GetStatus()
	}

	if got := check(""); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Expected overall SERVING, got %s", got)
	}
	if got := check("transcription"); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Expected transcription NOT_SERVING before load, got %s", got)
	}

	hs.ObserveEngineLoad("transcription", "whisper:base", time.Second, errors.New("failed"))
	if got := check("transcription"); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Expected failed load to leave NOT_SERVING, got %s", got)
	}

	hs.ObserveEngineLoad("transcription", "whisper:base", time.Second, nil)
	if got := check("transcription"); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Expected transcription SERVING after load, got %s", got)
	}
	if got := check("diarization"); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Expected diarization untouched, got %s", got)
	}
}
