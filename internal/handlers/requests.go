package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/renewtech/api/internal/domain"
	"github.com/renewtech/api/internal/platform/auth"
	"github.com/renewtech/api/internal/platform/httpx"
	"github.com/renewtech/api/internal/services"
)

// ServiceRequestHandlers exposes the technical service request workflow.
type ServiceRequestHandlers struct {
	authn    *auth.Authenticator
	requests services.RequestService
}

const (
	maxRequestBodySize = 16 * 1024
	defaultRequestPage = 20
	maxRequestPage     = 100
)

// NewServiceRequestHandlers constructs handlers for the /service-requests surface.
func NewServiceRequestHandlers(authn *auth.Authenticator, requests services.RequestService) *ServiceRequestHandlers {
	return &ServiceRequestHandlers{
		authn:    authn,
		requests: requests,
	}
}

// Routes wires the /service-requests endpoints onto the provided router.
func (h *ServiceRequestHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.createRequest)
	r.Get("/", h.listRequests)
	r.Get("/{requestID}", h.getRequest)
	r.Patch("/{requestID}", h.transitionStatus)
}

func (h *ServiceRequestHandlers) createRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.requests == nil {
		httpx.WriteError(ctx, w, httpx.NewError("request_service_unavailable", "service requests are unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req createServiceRequestRequest
	if err := decodeJSONBody(r, maxRequestBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	request, err := h.requests.CreateRequest(ctx, services.CreateServiceRequestCommand{
		UserID:      identity.UID,
		ServiceID:   strings.TrimSpace(req.ServiceID),
		Description: req.Description,
	})
	if err != nil {
		h.writeRequestError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, serviceRequestResponse{Request: buildServiceRequestPayload(request)})
}

func (h *ServiceRequestHandlers) listRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.requests == nil {
		httpx.WriteError(ctx, w, httpx.NewError("request_service_unavailable", "service requests are unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	cmd := services.ListServiceRequestsCommand{
		ActorID:    identity.UID,
		Roles:      identity.Roles,
		Pagination: parsePageRequest(r, defaultRequestPage, maxRequestPage),
	}
	for _, raw := range r.URL.Query()["status"] {
		if status := strings.TrimSpace(raw); status != "" {
			cmd.Status = append(cmd.Status, domain.ServiceRequestStatus(status))
		}
	}

	page, err := h.requests.ListRequests(ctx, cmd)
	if err != nil {
		h.writeRequestError(ctx, w, err)
		return
	}

	payload := serviceRequestListResponse{
		Requests:      make([]serviceRequestPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, request := range page.Items {
		payload.Requests = append(payload.Requests, buildServiceRequestPayload(request))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *ServiceRequestHandlers) getRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.requests == nil {
		httpx.WriteError(ctx, w, httpx.NewError("request_service_unavailable", "service requests are unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	request, err := h.requests.GetRequest(ctx, services.GetServiceRequestCommand{
		RequestID: strings.TrimSpace(chi.URLParam(r, "requestID")),
		ActorID:   identity.UID,
		Roles:     identity.Roles,
	})
	if err != nil {
		h.writeRequestError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, serviceRequestResponse{Request: buildServiceRequestPayload(request)})
}

func (h *ServiceRequestHandlers) transitionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.requests == nil {
		httpx.WriteError(ctx, w, httpx.NewError("request_service_unavailable", "service requests are unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req transitionServiceRequestRequest
	if err := decodeJSONBody(r, maxRequestBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	request, err := h.requests.TransitionStatus(ctx, services.RequestStatusTransitionCommand{
		RequestID:    strings.TrimSpace(chi.URLParam(r, "requestID")),
		TargetStatus: domain.ServiceRequestStatus(strings.TrimSpace(req.Status)),
		ActorID:      identity.UID,
		Roles:        identity.Roles,
	})
	if err != nil {
		h.writeRequestError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, serviceRequestResponse{Request: buildServiceRequestPayload(request)})
}

func (h *ServiceRequestHandlers) writeRequestError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrRequestInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid service request payload", http.StatusBadRequest))
	case errors.Is(err, services.ErrRequestNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("request_not_found", "service request not found", http.StatusNotFound))
	case errors.Is(err, services.ErrRequestForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "caller may not modify this request", http.StatusForbidden))
	case errors.Is(err, services.ErrRequestInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", "status transition not allowed", http.StatusConflict))
	case errors.Is(err, services.ErrRequestUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("request_unavailable", "service requests temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process service request", http.StatusInternalServerError))
	}
}

type createServiceRequestRequest struct {
	ServiceID   string `json:"service_id"`
	Description string `json:"description"`
}

type transitionServiceRequestRequest struct {
	Status string `json:"status"`
}

type serviceRequestPayload struct {
	ID              string `json:"id"`
	UserID          string `json:"user_id"`
	ServiceID       string `json:"service_id"`
	Description     string `json:"description,omitempty"`
	Status          string `json:"status"`
	TechnicianID    string `json:"technician_id,omitempty"`
	AppointmentDate string `json:"appointment_date,omitempty"`
	CreatedAt       string `json:"created_at,omitempty"`
	UpdatedAt       string `json:"updated_at,omitempty"`
}

type serviceRequestResponse struct {
	Request serviceRequestPayload `json:"request"`
}

type serviceRequestListResponse struct {
	Requests      []serviceRequestPayload `json:"requests"`
	NextPageToken string                  `json:"next_page_token,omitempty"`
}

func buildServiceRequestPayload(request services.ServiceRequest) serviceRequestPayload {
	payload := serviceRequestPayload{
		ID:              request.ID,
		UserID:          request.UserID,
		ServiceID:       request.ServiceID,
		Description:     request.Description,
		Status:          string(request.Status),
		AppointmentDate: formatTimePtr(request.AppointmentDate),
		CreatedAt:       formatTime(request.CreatedAt),
		UpdatedAt:       formatTime(request.UpdatedAt),
	}
	if request.TechnicianID != nil {
		payload.TechnicianID = *request.TechnicianID
	}
	return payload
}
