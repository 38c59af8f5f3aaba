package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/renewtech/api/internal/domain"
	pfirestore "github.com/renewtech/api/internal/platform/firestore"
	"github.com/renewtech/api/internal/repositories"
)

const serviceCollection = "services"

// ServiceRepository loads the technical service catalog.
type ServiceRepository struct {
	base *pfirestore.Collection[serviceDocument]
}

// NewServiceRepository constructs a Firestore-backed service catalog repository.
func NewServiceRepository(provider *pfirestore.Provider) (*ServiceRepository, error) {
	if provider == nil {
		return nil, errors.New("service repository requires firestore provider")
	}
	return &ServiceRepository{
		base: pfirestore.NewCollection[serviceDocument](provider, serviceCollection),
	}, nil
}

// List returns services, optionally narrowed to a single category.
func (r *ServiceRepository) List(ctx context.Context, category string) ([]domain.Service, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("service repository not initialised")
	}

	filter := strings.TrimSpace(category)
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter != "" {
			q = q.Where("category", "==", filter)
		}
		return q.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	items := make([]domain.Service, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeServiceDocument(doc.ID, doc.Data))
	}
	return items, nil
}

// Get loads a single service offering.
func (r *ServiceRepository) Get(ctx context.Context, serviceID string) (domain.Service, error) {
	if r == nil || r.base == nil {
		return domain.Service{}, errors.New("service repository not initialised")
	}
	id := strings.TrimSpace(serviceID)
	if id == "" {
		return domain.Service{}, errors.New("service repository: service id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Service{}, err
	}
	return decodeServiceDocument(doc.ID, doc.Data), nil
}

func decodeServiceDocument(id string, doc serviceDocument) domain.Service {
	return domain.Service{
		ID:          id,
		Name:        doc.Name,
		Category:    doc.Category,
		Description: doc.Description,
		Features:    cloneStringSlice(doc.Features),
		Image:       doc.Image,
		Price:       doc.Price,
	}
}

type serviceDocument struct {
	Name        string   `firestore:"name"`
	Category    string   `firestore:"category"`
	Description string   `firestore:"description,omitempty"`
	Features    []string `firestore:"features,omitempty"`
	Image       string   `firestore:"image,omitempty"`
	Price       string   `firestore:"price,omitempty"`
}

var _ repositories.ServiceRepository = (*ServiceRepository)(nil)
