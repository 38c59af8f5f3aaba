package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/renewtech/api/internal/domain"
)

func TestBackendHealthRepositoryAllHealthy(t *testing.T) {
	now := time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)

	checks := []BackendCheck{
		{
			Name: "firestore",
			Check: func(ctx context.Context) error {
				select {
				case <-time.After(10 * time.Millisecond):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		},
		{
			Name:  "pubsub",
			Check: func(context.Context) error { return nil },
		},
	}

	repo, err := NewBackendHealthRepository(checks,
		WithHealthClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("NewBackendHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected status ok, got %s", report.Status)
	}
	if len(report.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(report.Checks))
	}
	for name, check := range report.Checks {
		if check.Status != domain.HealthStatusOK {
			t.Fatalf("expected backend %s to be ok, got %s", name, check.Status)
		}
		if !check.CheckedAt.Equal(now) {
			t.Fatalf("expected backend %s checked at %s, got %s", name, now, check.CheckedAt)
		}
	}
	if !report.GeneratedAt.Equal(now) {
		t.Fatalf("expected generatedAt %s, got %s", now, report.GeneratedAt)
	}
}

func TestBackendHealthRepositoryFailingBackendDegradesReport(t *testing.T) {
	backendErr := errors.New("firestore: connection reset")
	checks := []BackendCheck{
		{
			Name:  "firestore",
			Check: func(context.Context) error { return backendErr },
		},
		{
			Name:  "secrets",
			Check: func(context.Context) error { return nil },
		},
	}

	repo, err := NewBackendHealthRepository(checks)
	if err != nil {
		t.Fatalf("NewBackendHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected status degraded, got %s", report.Status)
	}
	check := report.Checks["firestore"]
	if check.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected firestore degraded, got %s", check.Status)
	}
	if check.Error != backendErr.Error() {
		t.Fatalf("expected error %q, got %q", backendErr.Error(), check.Error)
	}
	if report.Checks["secrets"].Status != domain.HealthStatusOK {
		t.Fatalf("expected secrets ok, got %s", report.Checks["secrets"].Status)
	}
}

func TestBackendHealthRepositorySlowBackendIsAnError(t *testing.T) {
	checks := []BackendCheck{
		{
			Name:    "pubsub",
			Timeout: 5 * time.Millisecond,
			Check: func(ctx context.Context) error {
				select {
				case <-time.After(50 * time.Millisecond):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		},
	}

	repo, err := NewBackendHealthRepository(checks)
	if err != nil {
		t.Fatalf("NewBackendHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if report.Status != domain.HealthStatusError {
		t.Fatalf("expected status error, got %s", report.Status)
	}
	check := report.Checks["pubsub"]
	if check.Status != domain.HealthStatusError {
		t.Fatalf("expected pubsub status error, got %s", check.Status)
	}
	if check.Detail != "timeout" {
		t.Fatalf("expected detail timeout, got %s", check.Detail)
	}
}

func TestBackendHealthRepositoryRejectsMalformedChecks(t *testing.T) {
	if _, err := NewBackendHealthRepository(nil); err == nil {
		t.Fatalf("expected error for empty check set")
	}
	if _, err := NewBackendHealthRepository([]BackendCheck{{Name: " "}}); err == nil {
		t.Fatalf("expected error for unnamed check")
	}
	if _, err := NewBackendHealthRepository([]BackendCheck{{Name: "firestore"}}); err == nil {
		t.Fatalf("expected error for check without function")
	}
}
