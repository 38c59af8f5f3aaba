package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/renewtech/api/internal/domain"
)

func TestHealthHandlersHealthz(t *testing.T) {
	started := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	now := started.Add(90 * time.Minute)

	handler := NewHealthHandlers(
		WithHealthBuildInfo(BuildInfo{
			Version:     "1.4.0",
			Environment: "production",
			StartedAt:   started,
		}),
		WithHealthClock(func() time.Time { return now }),
	)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	handler.Healthz(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp healthzResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != domain.HealthStatusOK {
		t.Fatalf("expected status ok, got %q", resp.Status)
	}
	if resp.Version != "1.4.0" || resp.Environment != "production" {
		t.Fatalf("unexpected build info %#v", resp)
	}
	if resp.Uptime != "1h30m0s" {
		t.Fatalf("expected uptime 1h30m0s, got %q", resp.Uptime)
	}
}

func TestHealthHandlersReadyzHealthy(t *testing.T) {
	generated := time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)
	svc := &stubSystemService{
		healthFunc: func(ctx context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{
				Status: domain.HealthStatusOK,
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusOK, Latency: 12 * time.Millisecond},
					"pubsub":    {Status: domain.HealthStatusOK, Latency: 4 * time.Millisecond},
				},
				GeneratedAt: generated,
			}, nil
		},
	}

	handler := NewHealthHandlers(WithHealthSystemService(svc))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp readyzResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != domain.HealthStatusOK {
		t.Fatalf("expected status ok, got %q", resp.Status)
	}
	if len(resp.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(resp.Checks))
	}
	if len(resp.Details) != 0 {
		t.Fatalf("expected no details, got %v", resp.Details)
	}
}

func TestHealthHandlersReadyzDegraded(t *testing.T) {
	svc := &stubSystemService{
		healthFunc: func(ctx context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{
				Status: domain.HealthStatusDegraded,
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusOK},
					"pubsub":    {Status: domain.HealthStatusError, Error: "publish failed"},
				},
			}, nil
		},
	}

	handler := NewHealthHandlers(WithHealthSystemService(svc))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}

	var resp readyzResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded, got %q", resp.Status)
	}
	if len(resp.Details) != 1 || resp.Details[0] != "pubsub: publish failed" {
		t.Fatalf("unexpected details %v", resp.Details)
	}
}

func TestHealthHandlersReadyzReportError(t *testing.T) {
	svc := &stubSystemService{
		healthFunc: func(ctx context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{}, errors.New("collector offline")
		},
	}

	handler := NewHealthHandlers(WithHealthSystemService(svc))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestHealthHandlersReadyzWithoutSystemService(t *testing.T) {
	handler := NewHealthHandlers()

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

type stubSystemService struct {
	healthFunc func(ctx context.Context) (domain.SystemHealthReport, error)
}

func (s *stubSystemService) HealthReport(ctx context.Context) (domain.SystemHealthReport, error) {
	if s.healthFunc != nil {
		return s.healthFunc(ctx)
	}
	return domain.SystemHealthReport{}, errors.New("not implemented")
}
