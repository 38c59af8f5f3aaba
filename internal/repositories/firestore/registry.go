package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	pfirestore "github.com/renewtech/api/internal/platform/firestore"
	"github.com/renewtech/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the typed
// accessor interface consumed by the service layer.
type Registry struct {
	provider *pfirestore.Provider

	catalog         *CatalogRepository
	carts           *CartRepository
	orders          *OrderRepository
	addresses       *AddressRepository
	reviews         *ReviewRepository
	services        *ServiceRepository
	serviceRequests *ServiceRequestRepository
	users           *UserRepository
	health          repositories.HealthRepository
}

// NewRegistry wires every repository against the shared provider. The health
// repository verifies Firestore connectivity through a cheap collection listing.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	catalog, err := NewCatalogRepository(provider)
	if err != nil {
		return nil, err
	}
	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	addresses, err := NewAddressRepository(provider)
	if err != nil {
		return nil, err
	}
	reviews, err := NewReviewRepository(provider)
	if err != nil {
		return nil, err
	}
	services, err := NewServiceRepository(provider)
	if err != nil {
		return nil, err
	}
	serviceRequests, err := NewServiceRequestRepository(provider)
	if err != nil {
		return nil, err
	}
	users, err := NewUserRepository(provider)
	if err != nil {
		return nil, err
	}

	health, err := repositories.NewBackendHealthRepository([]repositories.BackendCheck{
		{
			Name: "firestore",
			Check: func(ctx context.Context) error {
				client, err := provider.Client(ctx)
				if err != nil {
					return err
				}
				iter := client.Collections(ctx)
				_, err = iter.Next()
				if err != nil && !isIteratorDone(err) {
					return err
				}
				return nil
			},
		},
	})
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:        provider,
		catalog:         catalog,
		carts:           carts,
		orders:          orders,
		addresses:       addresses,
		reviews:         reviews,
		services:        services,
		serviceRequests: serviceRequests,
		users:           users,
		health:          health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// RunInTx executes fn inside a Firestore transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry not initialised")
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		return fn(ctx)
	})
}

func (r *Registry) Catalog() repositories.CatalogRepository { return r.catalog }
func (r *Registry) Carts() repositories.CartRepository { return r.carts }
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }
func (r *Registry) Addresses() repositories.AddressRepository { return r.addresses }
func (r *Registry) Reviews() repositories.ReviewRepository { return r.reviews }
func (r *Registry) Services() repositories.ServiceRepository { return r.services }
func (r *Registry) ServiceRequests() repositories.ServiceRequestRepository { return r.serviceRequests }
func (r *Registry) Users() repositories.UserRepository { return r.users }
func (r *Registry) Health() repositories.HealthRepository { return r.health }

func isIteratorDone(err error) bool {
	return errors.Is(err, iterator.Done)
}

var _ repositories.Registry = (*Registry)(nil)
