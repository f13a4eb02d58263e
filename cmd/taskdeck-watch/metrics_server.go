package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"taskdeck-client/internal/realtime"
	pkgconfig "taskdeck-client/pkg/config"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthResponse represents a simple health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ChannelHealthResponse reports the push channel condition.
type ChannelHealthResponse struct {
	Healthy          bool   `json:"healthy"`
	State            string `json:"state"`
	HeartbeatLatency string `json:"heartbeat_latency,omitempty"`
}

// startMetricsServer exposes Prometheus metrics and health probes.
//
// Endpoints:
//   - GET /metrics - Prometheus metrics
//   - GET /health - liveness probe, always 200
//   - GET /health/channel - readiness probe; 503 unless the channel is Open
//
// The port comes from TASKDECK_METRICS_PORT (default 9090). When ctx is
// canceled the server shuts down within 5 seconds.
func startMetricsServer(ctx context.Context, logger *slog.Logger, manager *realtime.Manager) *http.Server {
	port := pkgconfig.GetEnvInt("TASKDECK_METRICS_PORT", 9090)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/health/channel", channelHealthHandler(manager))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("metrics server starting", slog.Int("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", slog.Any("error", err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", slog.Any("error", err))
		} else {
			logger.Info("metrics server stopped")
		}
	}()

	return server
}

// healthHandler handles GET /health requests (liveness probe).
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(HealthResponse{Status: "healthy"})
}

// channelHealthHandler creates a handler for GET /health/channel.
// Open reports healthy; every other state reports 503 so orchestrators
// can restart a watcher whose channel never recovers.
func channelHealthHandler(manager *realtime.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := manager.State()
		resp := ChannelHealthResponse{
			Healthy: state == realtime.StateOpen,
			State:   state.String(),
		}
		if sample, ok := manager.LastHeartbeat(); ok {
			resp.HeartbeatLatency = sample.Latency.String()
		}

		statusCode := http.StatusOK
		if !resp.Healthy {
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
