package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/renewtech/api/internal/domain"
)

type stubHealthRepository struct {
	collectFunc func(ctx context.Context) (domain.SystemHealthReport, error)
}

func (s *stubHealthRepository) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	if s.collectFunc != nil {
		return s.collectFunc(ctx)
	}
	return domain.SystemHealthReport{}, errors.New("not implemented")
}

func TestSystemServiceHealthReportStampsMetadata(t *testing.T) {
	started := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	now := started.Add(90 * time.Minute)

	health := &stubHealthRepository{
		collectFunc: func(ctx context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{
				Status: domain.HealthStatusOK,
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusOK},
				},
			}, nil
		},
	}

	service, err := NewSystemService(SystemServiceDeps{
		Health:      health,
		Clock:       func() time.Time { return now },
		Version:     "1.4.2",
		Environment: "production",
		StartedAt:   started,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing system service: %v", err)
	}

	report, err := service.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Version != "1.4.2" {
		t.Fatalf("expected version stamped, got %q", report.Version)
	}
	if report.Environment != "production" {
		t.Fatalf("expected environment stamped, got %q", report.Environment)
	}
	if report.Uptime != 90*time.Minute {
		t.Fatalf("expected uptime 90m, got %v", report.Uptime)
	}
	if !report.GeneratedAt.Equal(now) {
		t.Fatalf("expected generatedAt %v, got %v", now, report.GeneratedAt)
	}
}

func TestSystemServiceHealthReportCollectorFailure(t *testing.T) {
	health := &stubHealthRepository{
		collectFunc: func(ctx context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{}, errors.New("backend check failed")
		},
	}

	service, err := NewSystemService(SystemServiceDeps{
		Health: health,
		Clock:  time.Now,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing system service: %v", err)
	}

	_, err = service.HealthReport(context.Background())
	if !errors.Is(err, ErrSystemUnavailable) {
		t.Fatalf("expected ErrSystemUnavailable, got %v", err)
	}
}
