package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/renewtech/api/internal/domain"
	"github.com/renewtech/api/internal/platform/auth"
	"github.com/renewtech/api/internal/services"
)

func newRequestRouter(h *ServiceRequestHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/service-requests", h.Routes)
	return router
}

func TestServiceRequestHandlersCreate(t *testing.T) {
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

	var captured services.CreateServiceRequestCommand
	requests := &stubRequestService{
		createFunc: func(ctx context.Context, cmd services.CreateServiceRequestCommand) (services.ServiceRequest, error) {
			captured = cmd
			return services.ServiceRequest{
				ID:        "req-1",
				UserID:    cmd.UserID,
				ServiceID: cmd.ServiceID,
				Status:    domain.ServiceRequestStatusPending,
				CreatedAt: now,
			}, nil
		},
	}

	handler := NewServiceRequestHandlers(nil, requests)
	router := newRequestRouter(handler)

	body := strings.NewReader(`{"service_id":"svc-1","description":"Screen flickers after boot"}`)
	req := httptest.NewRequest(http.MethodPost, "/service-requests", body)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-8"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}
	if captured.UserID != "user-8" || captured.ServiceID != "svc-1" {
		t.Fatalf("unexpected command %#v", captured)
	}

	var resp serviceRequestResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Request.ID != "req-1" || resp.Request.Status != "pending" {
		t.Fatalf("unexpected request %#v", resp.Request)
	}
}

func TestServiceRequestHandlersCreateUnknownService(t *testing.T) {
	requests := &stubRequestService{
		createFunc: func(ctx context.Context, cmd services.CreateServiceRequestCommand) (services.ServiceRequest, error) {
			return services.ServiceRequest{}, services.ErrRequestNotFound
		},
	}

	handler := NewServiceRequestHandlers(nil, requests)
	router := newRequestRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/service-requests", strings.NewReader(`{"service_id":"ghost"}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-8"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestServiceRequestHandlersListForwardsRoles(t *testing.T) {
	var captured services.ListServiceRequestsCommand
	requests := &stubRequestService{
		listFunc: func(ctx context.Context, cmd services.ListServiceRequestsCommand) (domain.CursorPage[services.ServiceRequest], error) {
			captured = cmd
			return domain.CursorPage[services.ServiceRequest]{
				Items: []services.ServiceRequest{{ID: "req-1", Status: domain.ServiceRequestStatusAssigned}},
			}, nil
		},
	}

	handler := NewServiceRequestHandlers(nil, requests)
	router := newRequestRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/service-requests?status=pending", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "tech-1", Roles: []string{auth.RoleTechnician}}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.ActorID != "tech-1" {
		t.Fatalf("unexpected actor %q", captured.ActorID)
	}
	if len(captured.Roles) != 1 || captured.Roles[0] != auth.RoleTechnician {
		t.Fatalf("unexpected roles %#v", captured.Roles)
	}
	if len(captured.Status) != 1 || captured.Status[0] != domain.ServiceRequestStatusPending {
		t.Fatalf("unexpected status filter %#v", captured.Status)
	}
}

func TestServiceRequestHandlersGetNotVisible(t *testing.T) {
	requests := &stubRequestService{
		getFunc: func(ctx context.Context, cmd services.GetServiceRequestCommand) (services.ServiceRequest, error) {
			return services.ServiceRequest{}, services.ErrRequestNotFound
		},
	}

	handler := NewServiceRequestHandlers(nil, requests)
	router := newRequestRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/service-requests/req-1", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "stranger"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestServiceRequestHandlersTransitionStatus(t *testing.T) {
	var captured services.RequestStatusTransitionCommand
	requests := &stubRequestService{
		transitionFunc: func(ctx context.Context, cmd services.RequestStatusTransitionCommand) (services.ServiceRequest, error) {
			captured = cmd
			return services.ServiceRequest{ID: cmd.RequestID, Status: cmd.TargetStatus}, nil
		},
	}

	handler := NewServiceRequestHandlers(nil, requests)
	router := newRequestRouter(handler)

	body := strings.NewReader(`{"status":"in_progress"}`)
	req := httptest.NewRequest(http.MethodPatch, "/service-requests/req-1", body)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "tech-1", Roles: []string{auth.RoleTechnician}}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.RequestID != "req-1" || captured.TargetStatus != domain.ServiceRequestStatusInProgress {
		t.Fatalf("unexpected command %#v", captured)
	}
}

func TestServiceRequestHandlersTransitionErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "forbidden", err: services.ErrRequestForbidden, want: http.StatusForbidden},
		{name: "invalid transition", err: services.ErrRequestInvalidTransition, want: http.StatusConflict},
		{name: "unavailable", err: services.ErrRequestUnavailable, want: http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			requests := &stubRequestService{
				transitionFunc: func(ctx context.Context, cmd services.RequestStatusTransitionCommand) (services.ServiceRequest, error) {
					return services.ServiceRequest{}, tc.err
				},
			}

			handler := NewServiceRequestHandlers(nil, requests)
			router := newRequestRouter(handler)

			req := httptest.NewRequest(http.MethodPatch, "/service-requests/req-1", strings.NewReader(`{"status":"completed"}`))
			req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "tech-2"}))

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.want {
				t.Fatalf("expected status %d, got %d", tc.want, rr.Code)
			}
		})
	}
}
