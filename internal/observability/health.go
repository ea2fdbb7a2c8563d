package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Status       string                      `json:"status"`
	Service      string                      `json:"service"`
	Version      string                      `json:"version"`
	Timestamp    string                      `json:"timestamp"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the status of a dependency
type DependencyStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

// HealthCheckHandler handles health check requests
func HealthCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := HealthStatus{
			Status:    "healthy",
			Service:   "interview-gateway",
			Version:   "1.0.0",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(status)
	}
}

// HealthCheckFunc probes one dependency. Injected to avoid import cycles.
type HealthCheckFunc func(ctx context.Context) (bool, error)

func checkDependency(ctx context.Context, check HealthCheckFunc) DependencyStatus {
	start := time.Now()
	healthy, err := check(ctx)
	latency := time.Since(start).Milliseconds()

	status := "healthy"
	message := ""
	if err != nil || !healthy {
		status = "unhealthy"
		if err != nil {
			message = err.Error()
		}
	}

	return DependencyStatus{
		Status:    status,
		Message:   message,
		LatencyMs: latency,
	}
}

// ReadinessHandler handles readiness check requests
func ReadinessHandler(
	modelCheck HealthCheckFunc,
	storeCheck HealthCheckFunc,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dependencies := make(map[string]DependencyStatus)
		allHealthy := true
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if modelCheck != nil {
			dep := checkDependency(ctx, modelCheck)
			if dep.Status != "healthy" {
				allHealthy = false
			}
			dependencies["model"] = dep
		}

		if storeCheck != nil {
			dep := checkDependency(ctx, storeCheck)
			if dep.Status != "healthy" {
				allHealthy = false
			}
			dependencies["store"] = dep
		}

		status := HealthStatus{
			Status:       "ready",
			Service:      "interview-gateway",
			Version:      "1.0.0",
			Timestamp:    time.Now().UTC().Format(time.RFC3339),
			Dependencies: dependencies,
		}

		w.Header().Set("Content-Type", "application/json")
		if !allHealthy {
			status.Status = "not_ready"
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		json.NewEncoder(w).Encode(status)
	}
}
