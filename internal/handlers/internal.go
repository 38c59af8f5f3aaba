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

// InternalHandlers exposes back-office operations invoked by trusted
// services. The router guards the group with OIDC middleware, so these
// handlers only check for the verified service identity.
type InternalHandlers struct {
	requests services.RequestService
	orders   services.OrderService
}

const maxInternalBodySize = 16 * 1024

// NewInternalHandlers constructs handlers for the /internal surface.
func NewInternalHandlers(requests services.RequestService, orders services.OrderService) *InternalHandlers {
	return &InternalHandlers{
		requests: requests,
		orders:   orders,
	}
}

// Routes wires the internal endpoints onto the provided router.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/service-requests/{requestID}:assign", h.assignTechnician)
	r.Post("/orders/{orderID}:status", h.transitionOrderStatus)
}

func (h *InternalHandlers) assignTechnician(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.requests == nil {
		httpx.WriteError(ctx, w, httpx.NewError("request_service_unavailable", "service requests are unavailable", http.StatusServiceUnavailable))
		return
	}

	caller, ok := auth.ServiceIdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "service authentication required", http.StatusUnauthorized))
		return
	}

	var req assignTechnicianRequest
	if err := decodeJSONBody(r, maxInternalBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd := services.AssignTechnicianCommand{
		RequestID:    strings.TrimSpace(chi.URLParam(r, "requestID")),
		TechnicianID: strings.TrimSpace(req.TechnicianID),
		ActorID:      caller.Subject,
	}
	if raw := strings.TrimSpace(req.AppointmentDate); raw != "" {
		appointment, err := parseRFC3339(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "appointment_date must be RFC 3339", http.StatusBadRequest))
			return
		}
		cmd.AppointmentDate = &appointment
	}

	request, err := h.requests.AssignTechnician(ctx, cmd)
	if err != nil {
		h.writeRequestError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, serviceRequestResponse{Request: buildServiceRequestPayload(request)})
}

func (h *InternalHandlers) transitionOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	caller, ok := auth.ServiceIdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "service authentication required", http.StatusUnauthorized))
		return
	}

	var req transitionOrderRequest
	if err := decodeJSONBody(r, maxInternalBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.OrderStatusTransitionCommand{
		OrderID:      strings.TrimSpace(chi.URLParam(r, "orderID")),
		TargetStatus: domain.OrderStatus(strings.TrimSpace(req.Status)),
		ActorID:      caller.Subject,
	})
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *InternalHandlers) writeRequestError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrRequestInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid assignment payload", http.StatusBadRequest))
	case errors.Is(err, services.ErrRequestNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("request_not_found", "service request not found", http.StatusNotFound))
	case errors.Is(err, services.ErrRequestForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "caller may not modify this request", http.StatusForbidden))
	case errors.Is(err, services.ErrRequestInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", "status transition not allowed", http.StatusConflict))
	case errors.Is(err, services.ErrRequestUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("request_unavailable", "service requests temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process assignment", http.StatusInternalServerError))
	}
}

func (h *InternalHandlers) writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid order status payload", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", "order status transition not allowed", http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_unavailable", "orders temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process order status change", http.StatusInternalServerError))
	}
}

type assignTechnicianRequest struct {
	TechnicianID    string `json:"technician_id"`
	AppointmentDate string `json:"appointment_date,omitempty"`
}

type transitionOrderRequest struct {
	Status string `json:"status"`
}
