package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/brandspark/api/internal/domain"
)

type stubHealthRepo struct {
	report domain.SystemHealthReport
	err    error
}

func (s *stubHealthRepo) Collect(context.Context) (domain.SystemHealthReport, error) {
	return s.report, s.err
}

func TestHealthzReportsBuildInfo(t *testing.T) {
	start := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(90 * time.Second)
	handlers := NewHealthHandlers(
		WithHealthBuildInfo(BuildInfo{
			Version:     "1.4.0",
			CommitSHA:   "deadbee",
			Environment: "prod",
			StartedAt:   start,
		}),
		WithHealthClock(func() time.Time { return now }),
	)

	rr := httptest.NewRecorder()
	handlers.Healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if body["status"] != string(domain.HealthStatusOK) {
		t.Fatalf("expected status ok, got %v", body["status"])
	}
	if body["version"] != "1.4.0" {
		t.Fatalf("expected version, got %v", body["version"])
	}
	if body["uptime"] != "1m30s" {
		t.Fatalf("expected uptime, got %v", body["uptime"])
	}
}

func TestReadyzHealthyReport(t *testing.T) {
	now := time.Date(2026, time.February, 1, 0, 1, 0, 0, time.UTC)
	repo := &stubHealthRepo{
		report: domain.SystemHealthReport{
			Status: domain.HealthStatusOK,
			Checks: map[string]domain.SystemHealthCheck{
				"firestore": {Status: domain.HealthStatusOK, Detail: "ok", Latency: 12 * time.Millisecond, CheckedAt: now},
				"pubsub":    {Status: domain.HealthStatusOK, Detail: "ok", Latency: 8 * time.Millisecond, CheckedAt: now},
			},
			GeneratedAt: now,
		},
	}

	handlers := NewHealthHandlers(WithHealthRepository(repo))

	rr := httptest.NewRecorder()
	handlers.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body readyzResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if body.Status != string(domain.HealthStatusOK) {
		t.Fatalf("expected ok, got %s", body.Status)
	}
	if len(body.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(body.Checks))
	}
	if len(body.Details) != 0 {
		t.Fatalf("expected no details, got %v", body.Details)
	}
}

func TestReadyzErrorAnswers503(t *testing.T) {
	repo := &stubHealthRepo{
		report: domain.SystemHealthReport{
			Status: domain.HealthStatusError,
			Checks: map[string]domain.SystemHealthCheck{
				"firestore": {Status: domain.HealthStatusError, Detail: "timeout", Error: "context deadline exceeded"},
			},
		},
	}

	handlers := NewHealthHandlers(WithHealthRepository(repo))

	rr := httptest.NewRecorder()
	handlers.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}

	var body readyzResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(body.Details) != 1 || body.Details[0] != "firestore: timeout" {
		t.Fatalf("unexpected details: %v", body.Details)
	}
}

func TestReadyzDegradedStaysAvailable(t *testing.T) {
	repo := &stubHealthRepo{
		report: domain.SystemHealthReport{
			Status: domain.HealthStatusDegraded,
			Checks: map[string]domain.SystemHealthCheck{
				"pubsub": {Status: domain.HealthStatusDegraded, Detail: "slow"},
			},
		},
	}

	handlers := NewHealthHandlers(WithHealthRepository(repo))

	rr := httptest.NewRecorder()
	handlers.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for degraded, got %d", rr.Code)
	}
}
