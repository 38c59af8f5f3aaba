package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/renewtech/api/internal/domain"
	"github.com/renewtech/api/internal/platform/auth"
	"github.com/renewtech/api/internal/repositories"
)

var (
	errRequestServicesRequired = errors.New("request service: service repository is required")
	errRequestRepoRequired     = errors.New("request service: request repository is required")
	errRequestClockRequired    = errors.New("request service: clock is required")
)

// ErrRequestInvalidInput indicates the caller supplied invalid input.
var ErrRequestInvalidInput = errors.New("request service: invalid input")

// ErrRequestNotFound indicates the requested service or request does not exist.
var ErrRequestNotFound = errors.New("request service: not found")

// ErrRequestForbidden indicates the actor may not see or mutate the request.
var ErrRequestForbidden = errors.New("request service: forbidden")

// ErrRequestInvalidTransition indicates the requested workflow move is not allowed.
var ErrRequestInvalidTransition = errors.New("request service: invalid status transition")

// ErrRequestUnavailable indicates the request backend cannot be reached.
var ErrRequestUnavailable = errors.New("request service: unavailable")

// requestStatusRank orders the request workflow. Transitions only move
// forward one step at a time.
var requestStatusRank = map[ServiceRequestStatus]int{
	domain.ServiceRequestStatusPending:    0,
	domain.ServiceRequestStatusAssigned:   1,
	domain.ServiceRequestStatusInProgress: 2,
	domain.ServiceRequestStatusCompleted:  3,
}

// RequestServiceDeps wires the repositories for the technical service workflow.
type RequestServiceDeps struct {
	Services    repositories.ServiceRepository
	Requests    repositories.ServiceRequestRepository
	Users       repositories.UserRepository
	Events      EventPublisher
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
}

type requestService struct {
	services repositories.ServiceRepository
	requests repositories.ServiceRequestRepository
	users    repositories.UserRepository
	events   EventPublisher
	newID    func() string
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewRequestService constructs a RequestService enforcing dependency validation.
func NewRequestService(deps RequestServiceDeps) (RequestService, error) {
	if deps.Services == nil {
		return nil, errRequestServicesRequired
	}
	if deps.Requests == nil {
		return nil, errRequestRepoRequired
	}
	if deps.Clock == nil {
		return nil, errRequestClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &requestService{
		services: deps.Services,
		requests: deps.Requests,
		users:    deps.Users,
		events:   deps.Events,
		newID:    idGen,
		now:      func() time.Time { return deps.Clock().UTC() },
		logger:   logger,
	}, nil
}

// ListServices returns the technical service catalog, optionally narrowed by
// category.
func (s *requestService) ListServices(ctx context.Context, category string) ([]Service, error) {
	if s == nil || s.services == nil {
		return nil, ErrRequestUnavailable
	}

	services, err := s.services.List(ctx, strings.TrimSpace(category))
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return services, nil
}

// GetService loads a single service offering.
func (s *requestService) GetService(ctx context.Context, serviceID string) (Service, error) {
	if s == nil || s.services == nil {
		return Service{}, ErrRequestUnavailable
	}
	id := strings.TrimSpace(serviceID)
	if id == "" {
		return Service{}, ErrRequestInvalidInput
	}

	service, err := s.services.Get(ctx, id)
	if err != nil {
		return Service{}, s.translateRepoError(err)
	}
	return service, nil
}

// CreateRequest submits a new request against an existing service offering.
// Every request starts pending and unassigned.
func (s *requestService) CreateRequest(ctx context.Context, cmd CreateServiceRequestCommand) (ServiceRequest, error) {
	if s == nil || s.requests == nil {
		return ServiceRequest{}, ErrRequestUnavailable
	}
	uid := strings.TrimSpace(cmd.UserID)
	serviceID := strings.TrimSpace(cmd.ServiceID)
	description := strings.TrimSpace(cmd.Description)
	if uid == "" || serviceID == "" || description == "" {
		return ServiceRequest{}, ErrRequestInvalidInput
	}

	if _, err := s.services.Get(ctx, serviceID); err != nil {
		return ServiceRequest{}, s.translateRepoError(err)
	}

	now := s.now()
	request := ServiceRequest{
		ID:          s.newID(),
		UserID:      uid,
		ServiceID:   serviceID,
		Description: description,
		Status:      domain.ServiceRequestStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	saved, err := s.requests.Insert(ctx, request)
	if err != nil {
		return ServiceRequest{}, s.translateRepoError(err)
	}

	s.notify(ctx, EventServiceRequestCreated, saved)
	s.logger(ctx, "requests.created", map[string]any{
		"requestID": saved.ID,
		"serviceID": serviceID,
		"userID":    uid,
	})
	return saved, nil
}

// GetRequest loads a request subject to visibility rules: owners and the
// assigned technician see it, managers and admins see everything.
func (s *requestService) GetRequest(ctx context.Context, cmd GetServiceRequestCommand) (ServiceRequest, error) {
	if s == nil || s.requests == nil {
		return ServiceRequest{}, ErrRequestUnavailable
	}
	requestID := strings.TrimSpace(cmd.RequestID)
	actorID := strings.TrimSpace(cmd.ActorID)
	if requestID == "" || actorID == "" {
		return ServiceRequest{}, ErrRequestInvalidInput
	}

	request, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return ServiceRequest{}, s.translateRepoError(err)
	}
	if !canSeeRequest(request, actorID, cmd.Roles) {
		return ServiceRequest{}, ErrRequestNotFound
	}
	return request, nil
}

// ListRequests returns the requests visible to the actor. Clients see their
// own submissions, technicians their assignments, managers and admins the
// full dispatch queue.
func (s *requestService) ListRequests(ctx context.Context, cmd ListServiceRequestsCommand) (domain.CursorPage[ServiceRequest], error) {
	if s == nil || s.requests == nil {
		return domain.CursorPage[ServiceRequest]{}, ErrRequestUnavailable
	}
	actorID := strings.TrimSpace(cmd.ActorID)
	if actorID == "" {
		return domain.CursorPage[ServiceRequest]{}, ErrRequestInvalidInput
	}

	var (
		page domain.CursorPage[ServiceRequest]
		err  error
	)
	switch {
	case hasRole(cmd.Roles, auth.RoleManager) || hasRole(cmd.Roles, auth.RoleAdmin):
		page, err = s.requests.List(ctx, repositories.ServiceRequestListFilter{
			Status:     cmd.Status,
			Pagination: cmd.Pagination,
		})
	case hasRole(cmd.Roles, auth.RoleTechnician):
		page, err = s.requests.ListByTechnician(ctx, actorID, cmd.Pagination)
	default:
		page, err = s.requests.ListByUser(ctx, actorID, cmd.Pagination)
	}
	if err != nil {
		return domain.CursorPage[ServiceRequest]{}, s.translateRepoError(err)
	}
	return page, nil
}

// AssignTechnician attaches a technician and optional appointment to a
// pending request, moving it to assigned. Dispatch is a manager or admin
// operation; the handler layer enforces the role.
func (s *requestService) AssignTechnician(ctx context.Context, cmd AssignTechnicianCommand) (ServiceRequest, error) {
	if s == nil || s.requests == nil {
		return ServiceRequest{}, ErrRequestUnavailable
	}
	requestID := strings.TrimSpace(cmd.RequestID)
	technicianID := strings.TrimSpace(cmd.TechnicianID)
	if requestID == "" || technicianID == "" {
		return ServiceRequest{}, ErrRequestInvalidInput
	}

	request, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return ServiceRequest{}, s.translateRepoError(err)
	}
	if request.Status != domain.ServiceRequestStatusPending && request.Status != domain.ServiceRequestStatusAssigned {
		return ServiceRequest{}, ErrRequestInvalidTransition
	}

	if s.users != nil {
		profile, err := s.users.FindByID(ctx, technicianID)
		if err != nil {
			if isRepoNotFound(err) {
				return ServiceRequest{}, ErrRequestInvalidInput
			}
			return ServiceRequest{}, s.translateRepoError(err)
		}
		if !strings.EqualFold(profile.Role, auth.RoleTechnician) {
			return ServiceRequest{}, ErrRequestInvalidInput
		}
	}

	request.TechnicianID = &technicianID
	request.Status = domain.ServiceRequestStatusAssigned
	if cmd.AppointmentDate != nil {
		appt := cmd.AppointmentDate.UTC()
		request.AppointmentDate = &appt
	}
	request.UpdatedAt = s.now()

	saved, err := s.requests.Update(ctx, request)
	if err != nil {
		return ServiceRequest{}, s.translateRepoError(err)
	}

	s.notify(ctx, EventServiceRequestUpdated, saved)
	s.logger(ctx, "requests.assigned", map[string]any{
		"requestID":    saved.ID,
		"technicianID": technicianID,
		"actorID":      strings.TrimSpace(cmd.ActorID),
	})
	return saved, nil
}

// TransitionStatus advances a request through the workflow. Technicians move
// their own assignments, managers and admins move anything. Assignment
// itself goes through AssignTechnician.
func (s *requestService) TransitionStatus(ctx context.Context, cmd RequestStatusTransitionCommand) (ServiceRequest, error) {
	if s == nil || s.requests == nil {
		return ServiceRequest{}, ErrRequestUnavailable
	}
	requestID := strings.TrimSpace(cmd.RequestID)
	actorID := strings.TrimSpace(cmd.ActorID)
	if requestID == "" || actorID == "" {
		return ServiceRequest{}, ErrRequestInvalidInput
	}
	targetRank, ok := requestStatusRank[cmd.TargetStatus]
	if !ok || cmd.TargetStatus == domain.ServiceRequestStatusAssigned {
		return ServiceRequest{}, ErrRequestInvalidInput
	}

	request, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return ServiceRequest{}, s.translateRepoError(err)
	}

	elevated := hasRole(cmd.Roles, auth.RoleManager) || hasRole(cmd.Roles, auth.RoleAdmin)
	assigned := request.TechnicianID != nil && *request.TechnicianID == actorID
	if !elevated && !assigned {
		return ServiceRequest{}, ErrRequestForbidden
	}

	currentRank, ok := requestStatusRank[request.Status]
	if !ok || targetRank != currentRank+1 {
		return ServiceRequest{}, ErrRequestInvalidTransition
	}

	previous := request.Status
	request.Status = cmd.TargetStatus
	request.UpdatedAt = s.now()

	saved, err := s.requests.Update(ctx, request)
	if err != nil {
		return ServiceRequest{}, s.translateRepoError(err)
	}

	s.notify(ctx, EventServiceRequestUpdated, saved)
	s.logger(ctx, "requests.status_changed", map[string]any{
		"requestID": saved.ID,
		"from":      string(previous),
		"to":        string(saved.Status),
		"actorID":   actorID,
	})
	return saved, nil
}

func (s *requestService) notify(ctx context.Context, eventType string, request ServiceRequest) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(ctx, StorefrontEvent{
		Type:       eventType,
		UserID:     request.UserID,
		EntityID:   request.ID,
		OccurredAt: s.now(),
		Attributes: map[string]string{
			"status":    string(request.Status),
			"serviceID": request.ServiceID,
		},
	})
	if err != nil {
		s.logger(ctx, "requests.event_publish_failed", map[string]any{
			"requestID": request.ID,
			"error":     err.Error(),
		})
	}
}

func canSeeRequest(request ServiceRequest, actorID string, roles []string) bool {
	if hasRole(roles, auth.RoleManager) || hasRole(roles, auth.RoleAdmin) {
		return true
	}
	if request.UserID == actorID {
		return true
	}
	return request.TechnicianID != nil && *request.TechnicianID == actorID
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if strings.EqualFold(strings.TrimSpace(r), role) {
			return true
		}
	}
	return false
}

func (s *requestService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		if repoErr.IsNotFound() {
			return ErrRequestNotFound
		}
		return ErrRequestUnavailable
	}
	return ErrRequestUnavailable
}
