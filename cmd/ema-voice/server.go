package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Status is a snapshot of the pipeline served by the ops endpoint.
type Status struct {
	State         string `json:"state"`
	Turn          int64  `json:"turn"`
	SessionID     string `json:"session_id"`
	Speaking      bool   `json:"speaking"`
	Transcription string `json:"transcription"`
}

type statusSource interface {
	Status() Status
}

func (p *pipeline) Status() Status {
	status := Status{
		State:     p.orchestrator.State().String(),
		Turn:      p.orchestrator.CurrentTurn(),
		SessionID: p.orchestrator.SessionID(),
		Speaking:  p.orchestrator.IsSpeaking(),
	}
	if p.transcriber != nil {
		status.Transcription = p.transcriber.State().String()
	}
	return status
}

// newRouter serves health, pipeline state and Prometheus metrics.
func newRouter(source statusSource, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/state", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, source.Status())
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return otelhttp.NewHandler(r, "ema-voice")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("failed to write response", "error", err)
	}
}
