package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/renewtech/api/internal/domain"
)

// Storefront backends (Firestore, Pub/Sub, Secret Manager) are expected to
// answer well under this bound; anything slower counts against readiness.
const defaultCheckTimeout = 1500 * time.Millisecond

// BackendCheck names one storefront backend and the function that verifies it
// is reachable. A zero Timeout falls back to the repository default.
type BackendCheck struct {
	Name    string
	Timeout time.Duration
	Check   func(context.Context) error
}

// BackendHealthOption customises the backend health repository.
type BackendHealthOption func(*backendHealthRepository)

// WithCheckTimeout overrides the default per-check timeout.
func WithCheckTimeout(timeout time.Duration) BackendHealthOption {
	return func(repo *backendHealthRepository) {
		if timeout > 0 {
			repo.defaultTimeout = timeout
		}
	}
}

// WithHealthClock injects a clock for tests.
func WithHealthClock(clock func() time.Time) BackendHealthOption {
	return func(repo *backendHealthRepository) {
		if clock != nil {
			repo.now = clock
		}
	}
}

type backendHealthRepository struct {
	checks         []BackendCheck
	defaultTimeout time.Duration
	now            func() time.Time
}

var _ HealthRepository = (*backendHealthRepository)(nil)

// NewBackendHealthRepository builds a HealthRepository that runs every
// registered backend check concurrently and folds the results into a single
// report.
func NewBackendHealthRepository(checks []BackendCheck, opts ...BackendHealthOption) (HealthRepository, error) {
	if len(checks) == 0 {
		return nil, errors.New("health repository: at least one backend check is required")
	}
	for _, check := range checks {
		if strings.TrimSpace(check.Name) == "" {
			return nil, errors.New("health repository: backend check missing name")
		}
		if check.Check == nil {
			return nil, fmt.Errorf("health repository: backend %s missing check function", check.Name)
		}
	}

	repo := &backendHealthRepository{
		checks:         append([]BackendCheck(nil), checks...),
		defaultTimeout: defaultCheckTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

func (r *backendHealthRepository) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	if ctx == nil {
		return domain.SystemHealthReport{}, errors.New("health repository: context is required")
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]domain.SystemHealthCheck, len(r.checks))
	)
	for _, check := range r.checks {
		check := check
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome := r.run(ctx, check)
			mu.Lock()
			results[check.Name] = outcome
			mu.Unlock()
		}()
	}
	wg.Wait()

	return domain.SystemHealthReport{
		Status:      overallStatus(results),
		Checks:      results,
		GeneratedAt: r.now(),
	}, nil
}

// run executes a single backend check under its timeout and translates the
// outcome into a health entry. Context expiry is an error state even when the
// check itself returned nil.
func (r *backendHealthRepository) run(ctx context.Context, check BackendCheck) domain.SystemHealthCheck {
	timeout := check.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := r.now()
	err := check.Check(checkCtx)
	end := r.now()

	entry := domain.SystemHealthCheck{
		Status:    domain.HealthStatusOK,
		Detail:    "ok",
		Latency:   end.Sub(start),
		CheckedAt: end,
	}

	if err == nil {
		// A check that ignored its context still fails when the deadline hit.
		err = checkCtx.Err()
	}
	if err == nil {
		return entry
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		entry.Status = domain.HealthStatusError
		entry.Detail = "timeout"
	case errors.Is(err, context.Canceled):
		entry.Status = domain.HealthStatusError
		entry.Detail = "cancelled"
	default:
		entry.Status = domain.HealthStatusDegraded
		entry.Detail = err.Error()
	}
	entry.Error = err.Error()
	return entry
}

// overallStatus folds per-backend outcomes into the report status. Any error
// dominates; otherwise any degraded backend degrades the whole report.
func overallStatus(results map[string]domain.SystemHealthCheck) string {
	status := domain.HealthStatusOK
	for _, result := range results {
		switch result.Status {
		case domain.HealthStatusError:
			return domain.HealthStatusError
		case domain.HealthStatusDegraded:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}
