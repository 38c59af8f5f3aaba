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
	"github.com/renewtech/api/internal/payments"
	"github.com/renewtech/api/internal/repositories"
)

var (
	errCheckoutCartsRequired     = errors.New("checkout service: cart repository is required")
	errCheckoutOrdersRequired    = errors.New("checkout service: order repository is required")
	errCheckoutAddressesRequired = errors.New("checkout service: address repository is required")
	errCheckoutCatalogRequired   = errors.New("checkout service: catalog repository is required")
	errCheckoutClockRequired     = errors.New("checkout service: clock is required")
)

// ErrCheckoutInvalidInput indicates the caller supplied invalid input.
var ErrCheckoutInvalidInput = errors.New("checkout service: invalid input")

// ErrCheckoutEmptyCart indicates the cart holds no lines and cannot be checked out.
var ErrCheckoutEmptyCart = errors.New("checkout service: cart is empty")

// ErrCheckoutAddressNotFound indicates the shipping address does not exist for the user.
var ErrCheckoutAddressNotFound = errors.New("checkout service: address not found")

// ErrCheckoutPaymentDeclined indicates the PSP rejected the payment.
var ErrCheckoutPaymentDeclined = errors.New("checkout service: payment declined")

// ErrCheckoutUnavailable indicates the checkout backend cannot be reached.
var ErrCheckoutUnavailable = errors.New("checkout service: unavailable")

// CheckoutServiceDeps wires the collaborators for order placement.
type CheckoutServiceDeps struct {
	Carts     repositories.CartRepository
	Orders    repositories.OrderRepository
	Addresses repositories.AddressRepository
	Catalog   repositories.CatalogRepository
	Users     repositories.UserRepository
	// Charger is optional. When nil every order is placed as pay on
	// delivery and card payment requests are rejected.
	Charger         payments.Charger
	Events          EventPublisher
	Clock           func() time.Time
	DefaultCurrency string
	Logger          func(context.Context, string, map[string]any)
	IDGenerator     func() string
}

type checkoutService struct {
	carts     repositories.CartRepository
	orders    repositories.OrderRepository
	addresses repositories.AddressRepository
	catalog   repositories.CatalogRepository
	users     repositories.UserRepository
	charger   payments.Charger
	events    EventPublisher
	newID     func() string
	now       func() time.Time
	currency  string
	logger    func(context.Context, string, map[string]any)
}

// NewCheckoutService constructs a CheckoutService enforcing dependency validation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errCheckoutCartsRequired
	}
	if deps.Orders == nil {
		return nil, errCheckoutOrdersRequired
	}
	if deps.Addresses == nil {
		return nil, errCheckoutAddressesRequired
	}
	if deps.Catalog == nil {
		return nil, errCheckoutCatalogRequired
	}
	if deps.Clock == nil {
		return nil, errCheckoutClockRequired
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

	return &checkoutService{
		carts:     deps.Carts,
		orders:    deps.Orders,
		addresses: deps.Addresses,
		catalog:   deps.Catalog,
		users:     deps.Users,
		charger:   deps.Charger,
		events:    deps.Events,
		newID:     idGen,
		now:       func() time.Time { return deps.Clock().UTC() },
		currency:  currency,
		logger:    logger,
	}, nil
}

// Checkout converts the user's cart into a pending order. Item prices come
// from the cart lines, not the live catalog, so the amount the customer saw
// is the amount they pay. The cart is cleared only after the order has been
// stored.
func (s *checkoutService) Checkout(ctx context.Context, cmd CheckoutCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrCheckoutUnavailable
	}
	uid := strings.TrimSpace(cmd.UserID)
	addressID := strings.TrimSpace(cmd.AddressID)
	if uid == "" || addressID == "" {
		return Order{}, ErrCheckoutInvalidInput
	}

	cart, err := s.loadCart(ctx, uid)
	if err != nil {
		return Order{}, err
	}
	if len(cart.Lines) == 0 {
		return Order{}, ErrCheckoutEmptyCart
	}

	address, err := s.addresses.Get(ctx, uid, addressID)
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, ErrCheckoutAddressNotFound
		}
		return Order{}, s.translateRepoError(err)
	}

	now := s.now()
	order := Order{
		ID:              s.newID(),
		UserID:          uid,
		Status:          domain.OrderStatusPending,
		Currency:        cart.Currency,
		Items:           s.buildItems(ctx, cart.Lines),
		TotalPrice:      cartops.Total(cart.Lines),
		ShippingAddress: address,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if methodID := strings.TrimSpace(cmd.PaymentMethodID); methodID != "" {
		ref, err := s.charge(ctx, order, methodID)
		if err != nil {
			return Order{}, err
		}
		order.PaymentRef = &ref
		order.Status = domain.OrderStatusConfirmed
	}

	saved, err := s.orders.Insert(ctx, order)
	if err != nil {
		s.refund(ctx, order)
		return Order{}, s.translateRepoError(err)
	}

	s.clearCart(ctx, uid)
	s.notify(ctx, saved)

	s.logger(ctx, "checkout.order_placed", map[string]any{
		"orderID": saved.ID,
		"userID":  uid,
		"total":   saved.TotalPrice,
		"status":  string(saved.Status),
	})
	return saved, nil
}

func (s *checkoutService) loadCart(ctx context.Context, userID string) (Cart, error) {
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, ErrCheckoutEmptyCart
		}
		return Cart{}, s.translateRepoError(err)
	}
	return cartops.Normalise(cart, userID, s.currency, s.now()), nil
}

// buildItems snapshots cart lines into order items. Display names were
// captured on the line when the product was added, so checkout issues no
// catalog reads; a legacy line without a stored name is fetched once and
// falls back to the product ID if the product has vanished since.
func (s *checkoutService) buildItems(ctx context.Context, lines []CartLine) []OrderItem {
	items := make([]OrderItem, 0, len(lines))
	for _, line := range lines {
		name := strings.TrimSpace(line.Name)
		if name == "" {
			name = line.ProductID
			if product, err := s.catalog.GetProduct(ctx, line.ProductID); err == nil {
				name = product.Name
			}
		}
		items = append(items, OrderItem{
			ProductID: line.ProductID,
			Name:      name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Total:     line.UnitPrice * int64(line.Quantity),
		})
	}
	return items
}

func (s *checkoutService) charge(ctx context.Context, order Order, methodID string) (string, error) {
	if s.charger == nil {
		return "", ErrCheckoutInvalidInput
	}

	email := ""
	if s.users != nil {
		if profile, err := s.users.FindByID(ctx, order.UserID); err == nil {
			email = profile.Email
		}
	}

	charge, err := s.charger.Charge(ctx, payments.ChargeRequest{
		Amount:          order.TotalPrice,
		Currency:        order.Currency,
		PaymentMethodID: methodID,
		CustomerEmail:   email,
		IdempotencyKey:  "order-" + order.ID,
		Metadata: map[string]string{
			"orderID": order.ID,
			"userID":  order.UserID,
		},
	})
	if err != nil {
		if errors.Is(err, payments.ErrPaymentDeclined) {
			return "", ErrCheckoutPaymentDeclined
		}
		s.logger(ctx, "checkout.payment_failed", map[string]any{
			"orderID": order.ID,
			"error":   err.Error(),
		})
		return "", ErrCheckoutUnavailable
	}
	return charge.IntentID, nil
}

// refund reverses a captured charge when the order could not be stored, so a
// failed checkout never keeps the customer's money. A refund failure is
// logged for manual reconciliation; the checkout error already reported to
// the caller stands either way.
func (s *checkoutService) refund(ctx context.Context, order Order) {
	if s.charger == nil || order.PaymentRef == nil || *order.PaymentRef == "" {
		return
	}
	_, err := s.charger.Refund(ctx, payments.RefundRequest{
		IntentID:       *order.PaymentRef,
		Reason:         "order_persist_failed",
		IdempotencyKey: "refund-" + order.ID,
	})
	if err != nil {
		s.logger(ctx, "checkout.refund_failed", map[string]any{
			"orderID":  order.ID,
			"intentID": *order.PaymentRef,
			"error":    err.Error(),
		})
		return
	}
	s.logger(ctx, "checkout.charge_refunded", map[string]any{
		"orderID":  order.ID,
		"intentID": *order.PaymentRef,
	})
}

// clearCart removes the cart after a stored order. Failure here leaves a
// stale cart behind, which the next mutation repairs, so it is only logged.
func (s *checkoutService) clearCart(ctx context.Context, userID string) {
	if err := s.carts.Delete(ctx, userID); err != nil && !isRepoNotFound(err) {
		s.logger(ctx, "checkout.cart_clear_failed", map[string]any{
			"userID": userID,
			"error":  err.Error(),
		})
	}
}

func (s *checkoutService) notify(ctx context.Context, order Order) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(ctx, StorefrontEvent{
		Type:       EventOrderPlaced,
		UserID:     order.UserID,
		EntityID:   order.ID,
		OccurredAt: s.now(),
		Attributes: map[string]string{
			"status": string(order.Status),
			"total":  strconv.FormatInt(order.TotalPrice, 10),
		},
	})
	if err != nil {
		s.logger(ctx, "checkout.event_publish_failed", map[string]any{
			"orderID": order.ID,
			"error":   err.Error(),
		})
	}
}

func (s *checkoutService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrCheckoutAddressNotFound
	}
	return ErrCheckoutUnavailable
}
