package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	cartops "github.com/renewtech/api/internal/cart"
	domain "github.com/renewtech/api/internal/domain"
	"github.com/renewtech/api/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: cart repository is required")
	errCartCatalogRequired    = errors.New("cart service: catalog repository is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart service cannot fulfil the request due to missing dependencies or backend issues.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartNotFound indicates the requested cart line does not exist.
var ErrCartNotFound = errors.New("cart service: not found")

// ErrCartProductNotFound indicates the referenced catalog product does not exist.
var ErrCartProductNotFound = errors.New("cart service: product not found")

// CartServiceDeps wires the repositories and event sink for cart operations.
type CartServiceDeps struct {
	Carts           repositories.CartRepository
	Catalog         repositories.CatalogRepository
	Events          EventPublisher
	Clock           func() time.Time
	DefaultCurrency string
	Logger          func(context.Context, string, map[string]any)
	IDGenerator     func() string
}

type cartService struct {
	carts    repositories.CartRepository
	catalog  repositories.CatalogRepository
	events   EventPublisher
	newID    func() string
	now      func() time.Time
	currency string
	logger   func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Catalog == nil {
		return nil, errCartCatalogRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if currency == "" {
		currency = "EUR"
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &cartService{
		carts:    deps.Carts,
		catalog:  deps.Catalog,
		events:   deps.Events,
		newID:    idGen,
		now:      func() time.Time { return deps.Clock().UTC() },
		currency: currency,
		logger:   logger,
	}, nil
}

// GetCart loads the user's cart, returning an empty cart when none exists
// yet. Corrupt state is repaired on read rather than surfaced as an error.
func (s *cartService) GetCart(ctx context.Context, userID string) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Cart{}, ErrCartInvalidInput
	}

	cart, err := s.carts.Get(ctx, uid)
	if err != nil {
		if isRepoNotFound(err) {
			return s.emptyCart(uid), nil
		}
		return Cart{}, s.translateRepoError(err)
	}
	return cartops.Normalise(cart, uid, s.currency, s.now()), nil
}

// AddItem merges the product into the cart. When a line for the product
// already exists its quantity grows and the unit price captured at first add
// is retained; otherwise a new line is appended at the current catalog price.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}
	uid := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	if uid == "" || productID == "" || cmd.Quantity <= 0 {
		return Cart{}, ErrCartInvalidInput
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, ErrCartProductNotFound
		}
		return Cart{}, s.translateRepoError(err)
	}

	cart, err := s.loadOrEmpty(ctx, uid)
	if err != nil {
		return Cart{}, err
	}

	now := s.now()
	cart.Lines = cartops.Add(cart.Lines, domain.CartLine{
		ID:        s.newID(),
		ProductID: product.ID,
		Name:      product.Name,
		Quantity:  cmd.Quantity,
		UnitPrice: product.Price,
	}, now)

	return s.persist(ctx, cart, now, EventCartUpdated)
}

// UpdateQuantity overwrites the quantity on an existing line. The engine does
// not clamp against stock.
func (s *cartService) UpdateQuantity(ctx context.Context, cmd UpdateCartQuantityCommand) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}
	uid := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	if uid == "" || productID == "" || cmd.Quantity <= 0 {
		return Cart{}, ErrCartInvalidInput
	}

	cart, err := s.loadOrEmpty(ctx, uid)
	if err != nil {
		return Cart{}, err
	}
	if !hasLine(cart.Lines, productID) {
		return Cart{}, ErrCartNotFound
	}

	now := s.now()
	cart.Lines = cartops.SetQuantity(cart.Lines, productID, cmd.Quantity, now)
	return s.persist(ctx, cart, now, EventCartUpdated)
}

// RemoveItem deletes the line for the product. Removing an absent product is
// a no-op, the cart is returned unchanged.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}
	uid := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	if uid == "" || productID == "" {
		return Cart{}, ErrCartInvalidInput
	}

	cart, err := s.loadOrEmpty(ctx, uid)
	if err != nil {
		return Cart{}, err
	}

	now := s.now()
	cart.Lines = cartops.Remove(cart.Lines, productID)
	return s.persist(ctx, cart, now, EventCartUpdated)
}

// Clear drops every line from the cart. Used after a successful checkout and
// exposed directly for the storefront's clear action.
func (s *cartService) Clear(ctx context.Context, userID string) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Cart{}, ErrCartInvalidInput
	}

	cart, err := s.loadOrEmpty(ctx, uid)
	if err != nil {
		return Cart{}, err
	}

	now := s.now()
	cart.Lines = []domain.CartLine{}
	return s.persist(ctx, cart, now, EventCartCleared)
}

func (s *cartService) loadOrEmpty(ctx context.Context, userID string) (Cart, error) {
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return s.emptyCart(userID), nil
		}
		return Cart{}, s.translateRepoError(err)
	}
	return cartops.Normalise(cart, userID, s.currency, s.now()), nil
}

func (s *cartService) persist(ctx context.Context, cart Cart, now time.Time, eventType string) (Cart, error) {
	cart = cartops.Normalise(cart, cart.UserID, s.currency, now)
	cart.UpdatedAt = now

	saved, err := s.carts.Save(ctx, cart)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	saved = cartops.Normalise(saved, cart.UserID, s.currency, now)

	s.notify(ctx, eventType, saved)
	return saved, nil
}

func (s *cartService) notify(ctx context.Context, eventType string, cart Cart) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(ctx, StorefrontEvent{
		Type:       eventType,
		UserID:     cart.UserID,
		EntityID:   cart.ID,
		OccurredAt: s.now(),
		Attributes: map[string]string{
			"lines": strconv.Itoa(len(cart.Lines)),
		},
	})
	if err != nil {
		s.logger(ctx, "cart.event_publish_failed", map[string]any{
			"userID": cart.UserID,
			"type":   eventType,
			"error":  err.Error(),
		})
	}
}

func (s *cartService) emptyCart(userID string) Cart {
	now := s.now()
	return Cart{
		ID:        userID,
		UserID:    userID,
		Currency:  s.currency,
		Lines:     []domain.CartLine{},
		Total:     0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		if repoErr.IsNotFound() {
			return ErrCartNotFound
		}
		return ErrCartUnavailable
	}
	return ErrCartUnavailable
}

func hasLine(lines []domain.CartLine, productID string) bool {
	target := strings.TrimSpace(productID)
	for _, line := range lines {
		if strings.TrimSpace(line.ProductID) == target {
			return true
		}
	}
	return false
}
