package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// Product is catalog reference data. Prices are integer minor currency units.
// The catalog engine never mutates products; they are loaded externally.
type Product struct {
	ID               string
	Name             string
	Category         string
	SubCategory      string
	Price            int64
	Description      string
	TechnicalDetails string
	Features         []string
	Images           []string
	Stock            int
	Rating           *float64
	CreatedAt        *time.Time
	UpdatedAt        *time.Time
}

// Category groups products for catalog navigation.
type Category struct {
	ID            string
	Name          string
	Slug          string
	ParentID      *string
	SubCategories []Category
}

// CartLine is a single product entry in a cart. UnitPrice is the price
// captured when the line was first added, decoupled from the live product
// price.
type CartLine struct {
	ID        string
	ProductID string
	// Name is the product name captured when the line was first added,
	// denormalised so checkout never has to read the catalog again.
	Name      string
	Quantity  int
	UnitPrice int64
	AddedAt   time.Time
	UpdatedAt *time.Time
}

// Cart aggregates the mutable shopping state for a user. Total is derived
// from Lines and recomputed on every mutation, never written independently.
type Cart struct {
	ID        string
	UserID    string
	Currency  string
	Lines     []CartLine
	Total     int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderStatus enumerates the order fulfilment lifecycle.
type OrderStatus string

const (
	// OrderStatusPending indicates the order awaits confirmation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates the order has been confirmed.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusPreparing indicates the order is being prepared.
	OrderStatusPreparing OrderStatus = "preparing"
	// OrderStatusShipped indicates the order has been handed to the carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the order reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
)

// OrderItem mirrors a cart line at the time of checkout (price-at-time).
type OrderItem struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice int64
	Total     int64
}

// Order captures a submitted purchase.
type Order struct {
	ID              string
	UserID          string
	Status          OrderStatus
	Currency        string
	Items           []OrderItem
	TotalPrice      int64
	ShippingAddress Address
	PaymentRef      *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Address is a postal address owned by a user. At most one address per user
// carries IsDefault.
type Address struct {
	ID         string
	UserID     string
	Street     string
	City       string
	PostalCode string
	Country    string
	IsDefault  bool
	CreatedAt  time.Time
}

// Review captures user feedback for a product.
type Review struct {
	ID          string
	ProductID   string
	UserID      string
	DisplayName string
	Rating      int
	Comment     string
	CreatedAt   time.Time
}

// Service describes a technical service offering (repair, installation,
// maintenance). Reference data like Product.
type Service struct {
	ID          string
	Name        string
	Category    string
	Description string
	Features    []string
	Image       string
	Price       string
}

// ServiceRequestStatus enumerates the technical request workflow states.
type ServiceRequestStatus string

const (
	// ServiceRequestStatusPending indicates the request awaits triage.
	ServiceRequestStatusPending ServiceRequestStatus = "pending"
	// ServiceRequestStatusAssigned indicates a technician has been assigned.
	ServiceRequestStatusAssigned ServiceRequestStatus = "assigned"
	// ServiceRequestStatusInProgress indicates work is underway.
	ServiceRequestStatusInProgress ServiceRequestStatus = "in_progress"
	// ServiceRequestStatusCompleted indicates the request has been resolved.
	ServiceRequestStatusCompleted ServiceRequestStatus = "completed"
)

// ServiceRequest tracks a technical service engagement for a user.
type ServiceRequest struct {
	ID              string
	UserID          string
	ServiceID       string
	Description     string
	Status          ServiceRequestStatus
	TechnicianID    *string
	AppointmentDate *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// UserProfile mirrors the Firebase Auth user for denormalised display data.
type UserProfile struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Role      string
	Locale    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of a single backend check.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
