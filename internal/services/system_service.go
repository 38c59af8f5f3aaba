package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/renewtech/api/internal/domain"
	"github.com/renewtech/api/internal/repositories"
)

var (
	errSystemHealthRequired = errors.New("system service: health repository is required")
	errSystemClockRequired  = errors.New("system service: clock is required")
)

// ErrSystemUnavailable indicates the health backend cannot be reached.
var ErrSystemUnavailable = errors.New("system service: unavailable")

// SystemServiceDeps wires the health repository and build metadata.
type SystemServiceDeps struct {
	Health      repositories.HealthRepository
	Clock       func() time.Time
	Version     string
	Environment string
	StartedAt   time.Time
}

type systemService struct {
	health      repositories.HealthRepository
	now         func() time.Time
	version     string
	environment string
	startedAt   time.Time
}

// NewSystemService constructs a SystemService enforcing dependency validation.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.Health == nil {
		return nil, errSystemHealthRequired
	}
	if deps.Clock == nil {
		return nil, errSystemClockRequired
	}

	startedAt := deps.StartedAt
	if startedAt.IsZero() {
		startedAt = deps.Clock().UTC()
	}

	return &systemService{
		health:      deps.Health,
		now:         func() time.Time { return deps.Clock().UTC() },
		version:     deps.Version,
		environment: deps.Environment,
		startedAt:   startedAt.UTC(),
	}, nil
}

// HealthReport collects backend checks and stamps the report with build
// metadata and process uptime.
func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	if s == nil || s.health == nil {
		return SystemHealthReport{}, ErrSystemUnavailable
	}

	report, err := s.health.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, ErrSystemUnavailable
	}

	now := s.now()
	report.Version = s.version
	report.Environment = s.environment
	report.Uptime = now.Sub(s.startedAt)
	report.GeneratedAt = now
	if report.Status == "" {
		report.Status = domain.HealthStatusOK
	}
	return report, nil
}
