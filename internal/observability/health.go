package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Version is reported by the info and readiness endpoints.
const Version = "1.0.0"

// ServiceInfo is the payload of the root endpoint.
type ServiceInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Status  string `json:"status"`
	Health  string `json:"health"`
	Ready   string `json:"ready"`
}

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Status             string                      `json:"status"`
	Service            string                      `json:"service"`
	Version            string                      `json:"version"`
	Timestamp          string                      `json:"timestamp"`
	WhisperModel       string                      `json:"whisper_model,omitempty"`
	Environment        string                      `json:"environment,omitempty"`
	DiarizationEnabled *bool                       `json:"diarization_enabled,omitempty"`
	Dependencies       map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the status of a dependency
type DependencyStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// HealthCheckFunc probes one dependency. Kept as a plain func to avoid import cycles.
type HealthCheckFunc func(ctx context.Context) (bool, error)

// Check is a named readiness probe.
type Check struct {
	Name string
	Fn   HealthCheckFunc
}

// HealthInfo is the static part of the /health payload.
type HealthInfo struct {
	WhisperModel       string
	Environment        string
	DiarizationEnabled bool
}

// InfoHandler serves the root endpoint.
func InfoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ServiceInfo{
			Name:    "Speech-to-Text API",
			Version: Version,
			Status:  "online",
			Health:  "/health",
			Ready:   "/ready",
		})
	}
}

// HealthCheckHandler handles liveness requests. It never touches the engines.
func HealthCheckHandler(info HealthInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		diarization := info.DiarizationEnabled
		writeJSON(w, http.StatusOK, HealthStatus{
			Status:             "healthy",
			Service:            ServiceName,
			Version:            Version,
			Timestamp:          time.Now().UTC().Format(time.RFC3339),
			WhisperModel:       info.WhisperModel,
			Environment:        info.Environment,
			DiarizationEnabled: &diarization,
		})
	}
}

// ReadinessHandler runs every check and answers 503 if any fails.
func ReadinessHandler(timeout time.Duration, checks ...Check) http.HandlerFunc {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		dependencies := make(map[string]DependencyStatus, len(checks))
		allHealthy := true
		for _, c := range checks {
			dep := runCheck(ctx, c.Fn)
			if dep.Status != "healthy" {
				allHealthy = false
			}
			dependencies[c.Name] = dep
		}

		status := HealthStatus{
			Status:       "ready",
			Service:      ServiceName,
			Version:      Version,
			Timestamp:    time.Now().UTC().Format(time.RFC3339),
			Dependencies: dependencies,
		}
		code := http.StatusOK
		if !allHealthy {
			status.Status = "not_ready"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
	}
}

func runCheck(ctx context.Context, fn HealthCheckFunc) DependencyStatus {
	start := time.Now()
	healthy, err := fn(ctx)
	dep := DependencyStatus{
		Status:    "healthy",
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil || !healthy {
		dep.Status = "unhealthy"
		if err != nil {
			dep.Message = err.Error()
		}
	}
	return dep
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
