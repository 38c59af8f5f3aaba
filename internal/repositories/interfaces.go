package repositories

import (
	"context"
	"time"

	domain "github.com/renewtech/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Catalog() CatalogRepository
	Carts() CartRepository
	Orders() OrderRepository
	Addresses() AddressRepository
	Reviews() ReviewRepository
	Services() ServiceRepository
	ServiceRequests() ServiceRequestRepository
	Users() UserRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CatalogRepository loads product and category reference data. The catalog is
// read-mostly; admin writes go through Upsert/Delete.
type CatalogRepository interface {
	ListProducts(ctx context.Context, filter ProductListFilter) ([]domain.Product, error)
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	UpsertProduct(ctx context.Context, product domain.Product) (domain.Product, error)
	DeleteProduct(ctx context.Context, productID string) error

	ListCategories(ctx context.Context) ([]domain.Category, error)
}

// ProductListFilter narrows the catalog scan server-side before the in-memory
// query engine applies the remaining predicates.
type ProductListFilter struct {
	Category    string
	SubCategory string
	Limit       int
}

// CartRepository persists the single active cart per user, keyed by user ID.
type CartRepository interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	Delete(ctx context.Context, userID string) error
}

// OrderRepository persists order documents and provides user-scoped listings.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, updatedAt time.Time) (domain.Order, error)
}

// OrderListFilter narrows order listings by status and date range.
type OrderListFilter struct {
	Status        []domain.OrderStatus
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Pagination    domain.Pagination
}

// AddressRepository stores postal addresses per user.
type AddressRepository interface {
	List(ctx context.Context, userID string) ([]domain.Address, error)
	Get(ctx context.Context, userID string, addressID string) (domain.Address, error)
	Upsert(ctx context.Context, userID string, addr domain.Address) (domain.Address, error)
	Delete(ctx context.Context, userID string, addressID string) error
	SetDefault(ctx context.Context, userID string, addressID string) (domain.Address, error)
}

// ReviewRepository stores product reviews.
type ReviewRepository interface {
	Insert(ctx context.Context, review domain.Review) (domain.Review, error)
	ListByProduct(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error)
	ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error)
	Delete(ctx context.Context, reviewID string) error
	FindByID(ctx context.Context, reviewID string) (domain.Review, error)
}

// ServiceRepository loads the technical service catalog.
type ServiceRepository interface {
	List(ctx context.Context, category string) ([]domain.Service, error)
	Get(ctx context.Context, serviceID string) (domain.Service, error)
}

// ServiceRequestRepository persists technical service requests and their
// workflow transitions.
type ServiceRequestRepository interface {
	Insert(ctx context.Context, request domain.ServiceRequest) (domain.ServiceRequest, error)
	FindByID(ctx context.Context, requestID string) (domain.ServiceRequest, error)
	ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.ServiceRequest], error)
	ListByTechnician(ctx context.Context, technicianID string, pager domain.Pagination) (domain.CursorPage[domain.ServiceRequest], error)
	List(ctx context.Context, filter ServiceRequestListFilter) (domain.CursorPage[domain.ServiceRequest], error)
	Update(ctx context.Context, request domain.ServiceRequest) (domain.ServiceRequest, error)
}

// ServiceRequestListFilter narrows request listings for dispatch views.
type ServiceRequestListFilter struct {
	Status     []domain.ServiceRequestStatus
	Pagination domain.Pagination
}

// UserRepository stores denormalised user profiles alongside Firebase Auth.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.UserProfile, error)
	Upsert(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
