package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/koscakluka/ema-voice/core/metrics"
)

type statusStub Status

func (s statusStub) Status() Status { return Status(s) }

func TestStateEndpointReportsPipeline(t *testing.T) {
	source := statusStub{State: "speaking", Turn: 3, SessionID: "abc", Speaking: true, Transcription: "connected"}
	server := httptest.NewServer(newRouter(source, prometheus.NewRegistry()))
	defer server.Close()

	resp, err := http.Get(server.URL + "/state")
	if err != nil {
		t.Fatalf("expected request to succeed, got %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got Status
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("expected JSON body, got %v", err)
	}
	if got != Status(source) {
		t.Fatalf("expected %+v, got %+v", source, got)
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics.New(registry).TurnFinished("completed")

	server := httptest.NewServer(newRouter(statusStub{}, registry))
	defer server.Close()

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("expected request to succeed, got %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from healthz, got %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("expected request to succeed, got %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "turns_total") {
		t.Fatalf("expected turn counter in metrics output, got:\n%s", body)
	}
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	server := httptest.NewServer(newRouter(statusStub{}, prometheus.NewRegistry()))
	defer server.Close()

	resp, err := http.Get(server.URL + "/nope")
	if err != nil {
		t.Fatalf("expected request to succeed, got %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
