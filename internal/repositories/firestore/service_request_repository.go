package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/renewtech/api/internal/domain"
	pfirestore "github.com/renewtech/api/internal/platform/firestore"
	"github.com/renewtech/api/internal/repositories"
)

const serviceRequestCollection = "serviceRequests"

// ServiceRequestRepository persists technical service requests.
type ServiceRequestRepository struct {
	base     *pfirestore.Collection[serviceRequestDocument]
	provider *pfirestore.Provider
}

// NewServiceRequestRepository constructs a Firestore-backed request repository.
func NewServiceRequestRepository(provider *pfirestore.Provider) (*ServiceRequestRepository, error) {
	if provider == nil {
		return nil, errors.New("service request repository requires firestore provider")
	}
	return &ServiceRequestRepository{
		base:     pfirestore.NewCollection[serviceRequestDocument](provider, serviceRequestCollection),
		provider: provider,
	}, nil
}

// Insert persists a new request under its pre-assigned ID.
func (r *ServiceRequestRepository) Insert(ctx context.Context, request domain.ServiceRequest) (domain.ServiceRequest, error) {
	if r == nil || r.base == nil {
		return domain.ServiceRequest{}, errors.New("service request repository not initialised")
	}
	id := strings.TrimSpace(request.ID)
	if id == "" {
		return domain.ServiceRequest{}, errors.New("service request repository: request id is required")
	}

	doc := encodeServiceRequestDocument(request)
	result, err := r.base.Set(ctx, id, doc)
	if err != nil {
		return domain.ServiceRequest{}, err
	}
	return decodeServiceRequestDocument(id, doc, result.UpdateTime), nil
}

// FindByID loads a single request.
func (r *ServiceRequestRepository) FindByID(ctx context.Context, requestID string) (domain.ServiceRequest, error) {
	if r == nil || r.base == nil {
		return domain.ServiceRequest{}, errors.New("service request repository not initialised")
	}
	id := strings.TrimSpace(requestID)
	if id == "" {
		return domain.ServiceRequest{}, errors.New("service request repository: request id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.ServiceRequest{}, err
	}
	return decodeServiceRequestDocument(doc.ID, doc.Data, doc.UpdateTime), nil
}

// ListByUser returns the requests created by the given user, newest first.
func (r *ServiceRequestRepository) ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.ServiceRequest], error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.CursorPage[domain.ServiceRequest]{}, errors.New("service request repository: user id is required")
	}
	return r.list(ctx, pager, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", uid)
	})
}

// ListByTechnician returns requests assigned to the given technician, newest
// first.
func (r *ServiceRequestRepository) ListByTechnician(ctx context.Context, technicianID string, pager domain.Pagination) (domain.CursorPage[domain.ServiceRequest], error) {
	tid := strings.TrimSpace(technicianID)
	if tid == "" {
		return domain.CursorPage[domain.ServiceRequest]{}, errors.New("service request repository: technician id is required")
	}
	return r.list(ctx, pager, func(q firestore.Query) firestore.Query {
		return q.Where("technicianId", "==", tid)
	})
}

// List returns requests matching the dispatch filter.
func (r *ServiceRequestRepository) List(ctx context.Context, filter repositories.ServiceRequestListFilter) (domain.CursorPage[domain.ServiceRequest], error) {
	statuses := normaliseRequestStatuses(filter.Status)
	return r.list(ctx, filter.Pagination, func(q firestore.Query) firestore.Query {
		if len(statuses) == 1 {
			q = q.Where("status", "==", statuses[0])
		} else if len(statuses) > 1 {
			if len(statuses) > 10 {
				statuses = statuses[:10]
			}
			q = q.Where("status", "in", statuses)
		}
		return q
	})
}

// Update rewrites the full request document.
func (r *ServiceRequestRepository) Update(ctx context.Context, request domain.ServiceRequest) (domain.ServiceRequest, error) {
	if r == nil || r.base == nil {
		return domain.ServiceRequest{}, errors.New("service request repository not initialised")
	}
	id := strings.TrimSpace(request.ID)
	if id == "" {
		return domain.ServiceRequest{}, errors.New("service request repository: request id is required")
	}

	doc := encodeServiceRequestDocument(request)
	result, err := r.base.Set(ctx, id, doc)
	if err != nil {
		return domain.ServiceRequest{}, err
	}
	return decodeServiceRequestDocument(id, doc, result.UpdateTime), nil
}

func (r *ServiceRequestRepository) list(ctx context.Context, pager domain.Pagination, narrow func(firestore.Query) firestore.Query) (domain.CursorPage[domain.ServiceRequest], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.ServiceRequest]{}, errors.New("service request repository not initialised")
	}

	limit := pager.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(pager.PageToken); token != "" {
		tokenTime, tokenID, err := decodeCreatedAtToken(token)
		if err != nil {
			return domain.CursorPage[domain.ServiceRequest]{}, fmt.Errorf("service request repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if narrow != nil {
			q = narrow(q)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.ServiceRequest]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		tokenTime := last.Data.CreatedAt
		if tokenTime.IsZero() {
			tokenTime = last.CreateTime
		}
		nextToken = encodeCreatedAtToken(tokenTime, last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.ServiceRequest, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeServiceRequestDocument(doc.ID, doc.Data, doc.UpdateTime))
	}

	return domain.CursorPage[domain.ServiceRequest]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

func normaliseRequestStatuses(statuses []domain.ServiceRequestStatus) []string {
	if len(statuses) == 0 {
		return nil
	}
	out := make([]string, 0, len(statuses))
	seen := make(map[string]struct{}, len(statuses))
	for _, status := range statuses {
		value := strings.ToLower(strings.TrimSpace(string(status)))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func encodeServiceRequestDocument(request domain.ServiceRequest) serviceRequestDocument {
	now := time.Now().UTC()
	createdAt := request.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := request.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	doc := serviceRequestDocument{
		UserID:      strings.TrimSpace(request.UserID),
		ServiceID:   strings.TrimSpace(request.ServiceID),
		Description: strings.TrimSpace(request.Description),
		Status:      strings.ToLower(strings.TrimSpace(string(request.Status))),
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}
	if request.TechnicianID != nil && strings.TrimSpace(*request.TechnicianID) != "" {
		tid := strings.TrimSpace(*request.TechnicianID)
		doc.TechnicianID = &tid
	}
	if request.AppointmentDate != nil && !request.AppointmentDate.IsZero() {
		appt := request.AppointmentDate.UTC()
		doc.AppointmentDate = &appt
	}
	return doc
}

func decodeServiceRequestDocument(id string, doc serviceRequestDocument, updateTime time.Time) domain.ServiceRequest {
	request := domain.ServiceRequest{
		ID:          id,
		UserID:      doc.UserID,
		ServiceID:   doc.ServiceID,
		Description: doc.Description,
		Status:      domain.ServiceRequestStatus(doc.Status),
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
	if doc.TechnicianID != nil {
		tid := *doc.TechnicianID
		request.TechnicianID = &tid
	}
	if doc.AppointmentDate != nil {
		appt := *doc.AppointmentDate
		request.AppointmentDate = &appt
	}
	if !updateTime.IsZero() {
		request.UpdatedAt = updateTime
	}
	return request
}

type serviceRequestDocument struct {
	UserID          string     `firestore:"userId"`
	ServiceID       string     `firestore:"serviceId"`
	Description     string     `firestore:"description"`
	Status          string     `firestore:"status"`
	TechnicianID    *string    `firestore:"technicianId,omitempty"`
	AppointmentDate *time.Time `firestore:"appointmentDate,omitempty"`
	CreatedAt       time.Time  `firestore:"createdAt"`
	UpdatedAt       time.Time  `firestore:"updatedAt"`
}

var _ repositories.ServiceRequestRepository = (*ServiceRequestRepository)(nil)
