package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/c360/tidewatch/health"
	"github.com/c360/tidewatch/ingest"
	"github.com/c360/tidewatch/metric"
)

// opsServer serves the operational surface: health, stats, Prometheus
// metrics, and per-stream restart.
type opsServer struct {
	pipeline *ingest.Pipeline
	monitor  *health.Monitor
	logger   *slog.Logger
	srv      *http.Server
}

func newOpsServer(addr string, pipeline *ingest.Pipeline, monitor *health.Monitor, registry *metric.Registry, logger *slog.Logger) *opsServer {
	o := &opsServer{
		pipeline: pipeline,
		monitor:  monitor,
		logger:   logger.With("component", "ops"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", o.handleHealth)
	mux.HandleFunc("GET /stats", o.handleStats)
	mux.Handle("GET /metrics", registry.Handler())
	mux.HandleFunc("POST /streams/{name}/restart", o.handleRestart)

	o.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return o
}

// start serves until shutdown. Listen errors other than a clean close are
// fatal for the endpoint only, never for ingestion.
func (o *opsServer) start() {
	go func() {
		if err := o.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			o.logger.Error("ops server failed", "error", err)
		}
	}()
	o.logger.Info("ops server listening", "addr", o.srv.Addr)
}

func (o *opsServer) stop(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return o.srv.Shutdown(ctx)
}

func (o *opsServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := o.monitor.AggregateHealth("tidewatch")
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (o *opsServer) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, o.pipeline.Stats())
}

func (o *opsServer) handleRestart(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PathValue("name"))
	if err := o.pipeline.Restart(name); err != nil {
		o.logger.Warn("stream restart rejected", "stream", name, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	o.logger.Info("stream restart requested", "stream", name)
	writeJSON(w, http.StatusAccepted, map[string]string{"stream": name, "status": "restarting"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
