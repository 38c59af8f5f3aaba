package services

import (
	"context"
	"time"

	domain "github.com/renewtech/api/internal/domain"
	"github.com/renewtech/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination           = domain.Pagination
	SortOrder            = domain.SortOrder
	Product              = domain.Product
	Category             = domain.Category
	FilterSpec           = domain.FilterSpec
	SortKey              = domain.SortKey
	Cart                 = domain.Cart
	CartLine             = domain.CartLine
	Order                = domain.Order
	OrderItem            = domain.OrderItem
	OrderStatus          = domain.OrderStatus
	Address              = domain.Address
	Review               = domain.Review
	Service              = domain.Service
	ServiceRequest       = domain.ServiceRequest
	ServiceRequestStatus = domain.ServiceRequestStatus
	UserProfile          = domain.UserProfile
	SystemHealthReport   = domain.SystemHealthReport
)

// CatalogService answers product and category queries, delegating filter and
// sort semantics to the in-memory query engine.
type CatalogService interface {
	ListProducts(ctx context.Context, query ProductQuery) ([]Product, error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	ListCategories(ctx context.Context) ([]Category, error)
	UpsertProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, cmd DeleteProductCommand) error
}

// CartService manages the single active cart per user. Every mutation
// recomputes the derived total and writes the cart through to storage before
// returning it.
type CartService interface {
	GetCart(ctx context.Context, userID string) (Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	UpdateQuantity(ctx context.Context, cmd UpdateCartQuantityCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	Clear(ctx context.Context, userID string) (Cart, error)
}

// CheckoutService turns the user's cart into an order.
type CheckoutService interface {
	Checkout(ctx context.Context, cmd CheckoutCommand) (Order, error)
}

// OrderService exposes order history reads and status transitions.
type OrderService interface {
	ListOrders(ctx context.Context, cmd ListOrdersCommand) (domain.CursorPage[Order], error)
	GetOrder(ctx context.Context, cmd GetOrderCommand) (Order, error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
}

// UserService manages profile and address surfaces.
type UserService interface {
	GetProfile(ctx context.Context, userID string) (UserProfile, error)
	EnsureProfile(ctx context.Context, cmd EnsureProfileCommand) (UserProfile, error)
	UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (UserProfile, error)
	ListAddresses(ctx context.Context, userID string) ([]Address, error)
	UpsertAddress(ctx context.Context, cmd UpsertAddressCommand) (Address, error)
	DeleteAddress(ctx context.Context, cmd DeleteAddressCommand) error
	SetDefaultAddress(ctx context.Context, cmd SetDefaultAddressCommand) (Address, error)
}

// ReviewService coordinates product review reads and writes.
type ReviewService interface {
	Create(ctx context.Context, cmd CreateReviewCommand) (Review, error)
	ListByProduct(ctx context.Context, cmd ListProductReviewsCommand) (domain.CursorPage[Review], error)
	ListByUser(ctx context.Context, cmd ListUserReviewsCommand) (domain.CursorPage[Review], error)
	Delete(ctx context.Context, cmd DeleteReviewCommand) error
}

// RequestService manages the technical service catalog and the request
// workflow from submission through completion.
type RequestService interface {
	ListServices(ctx context.Context, category string) ([]Service, error)
	GetService(ctx context.Context, serviceID string) (Service, error)
	CreateRequest(ctx context.Context, cmd CreateServiceRequestCommand) (ServiceRequest, error)
	GetRequest(ctx context.Context, cmd GetServiceRequestCommand) (ServiceRequest, error)
	ListRequests(ctx context.Context, cmd ListServiceRequestsCommand) (domain.CursorPage[ServiceRequest], error)
	AssignTechnician(ctx context.Context, cmd AssignTechnicianCommand) (ServiceRequest, error)
	TransitionStatus(ctx context.Context, cmd RequestStatusTransitionCommand) (ServiceRequest, error)
}

// SystemService aggregates utility endpoints such as health checks.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// EventPublisher forwards storefront lifecycle events to downstream
// consumers. Implementations must tolerate best-effort delivery; callers
// treat publish failures as non-fatal.
type EventPublisher interface {
	Publish(ctx context.Context, event StorefrontEvent) error
}

// StorefrontEvent is the envelope delivered to the event transport.
type StorefrontEvent struct {
	Type       string
	UserID     string
	EntityID   string
	OccurredAt time.Time
	Attributes map[string]string
}

// Event types emitted by the services layer.
const (
	EventCartUpdated           = "cart.updated"
	EventCartCleared           = "cart.cleared"
	EventOrderPlaced           = "order.placed"
	EventOrderStatusChanged    = "order.status_changed"
	EventServiceRequestCreated = "service_request.created"
	EventServiceRequestUpdated = "service_request.updated"
)

// Command and DTO definitions ------------------------------------------------

// ProductQuery bundles filter and sort inputs for catalog listings.
type ProductQuery struct {
	Filter FilterSpec
	Sort   SortKey
	Limit  int
}

type UpsertProductCommand struct {
	Product Product
	ActorID string
}

type DeleteProductCommand struct {
	ProductID string
	ActorID   string
}

type AddCartItemCommand struct {
	UserID    string
	ProductID string
	Quantity  int
}

type UpdateCartQuantityCommand struct {
	UserID    string
	ProductID string
	Quantity  int
}

type RemoveCartItemCommand struct {
	UserID    string
	ProductID string
}

type CheckoutCommand struct {
	UserID    string
	AddressID string
	// PaymentMethodID carries the PSP payment method reference when card
	// payments are enabled. Empty means pay on delivery.
	PaymentMethodID string
}

type ListOrdersCommand struct {
	UserID     string
	Status     []OrderStatus
	Pagination Pagination
}

type GetOrderCommand struct {
	OrderID string
	// UserID scopes the read to the owner. Admin callers leave it empty.
	UserID string
}

type OrderStatusTransitionCommand struct {
	OrderID      string
	TargetStatus OrderStatus
	ActorID      string
}

type EnsureProfileCommand struct {
	UserID    string
	Email     string
	FirstName string
	LastName  string
	Role      string
	Locale    string
}

type UpdateProfileCommand struct {
	UserID    string
	FirstName *string
	LastName  *string
	Locale    *string
}

type UpsertAddressCommand struct {
	UserID    string
	AddressID *string
	Address   Address
}

type DeleteAddressCommand struct {
	UserID    string
	AddressID string
}

type SetDefaultAddressCommand struct {
	UserID    string
	AddressID string
}

type CreateReviewCommand struct {
	ProductID   string
	UserID      string
	DisplayName string
	Rating      int
	Comment     string
}

type ListProductReviewsCommand struct {
	ProductID  string
	Pagination Pagination
}

type ListUserReviewsCommand struct {
	UserID     string
	Pagination Pagination
}

type DeleteReviewCommand struct {
	ReviewID string
	ActorID  string
	IsAdmin  bool
}

type CreateServiceRequestCommand struct {
	UserID      string
	ServiceID   string
	Description string
}

type GetServiceRequestCommand struct {
	RequestID string
	// ActorID and Roles scope visibility: owners and assigned technicians
	// see their own requests, managers and admins see everything.
	ActorID string
	Roles   []string
}

type ListServiceRequestsCommand struct {
	ActorID    string
	Roles      []string
	Status     []ServiceRequestStatus
	Pagination Pagination
}

type AssignTechnicianCommand struct {
	RequestID       string
	TechnicianID    string
	AppointmentDate *time.Time
	ActorID         string
}

type RequestStatusTransitionCommand struct {
	RequestID    string
	TargetStatus ServiceRequestStatus
	ActorID      string
	Roles        []string
}

// OrderListFilter re-exports the repository filter for handler use.
type OrderListFilter = repositories.OrderListFilter
