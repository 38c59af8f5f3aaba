package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/renewtech/api/internal/domain"
	"github.com/renewtech/api/internal/repositories"
)

var (
	errOrderRepositoryRequired = errors.New("order service: repository is required")
	errOrderClockRequired      = errors.New("order service: clock is required")
)

// ErrOrderInvalidInput indicates the caller supplied invalid input.
var ErrOrderInvalidInput = errors.New("order service: invalid input")

// ErrOrderNotFound indicates the requested order does not exist or belongs to another user.
var ErrOrderNotFound = errors.New("order service: not found")

// ErrOrderInvalidTransition indicates the requested status change is not allowed from the current state.
var ErrOrderInvalidTransition = errors.New("order service: invalid status transition")

// ErrOrderUnavailable indicates the order backend cannot be reached.
var ErrOrderUnavailable = errors.New("order service: unavailable")

// orderStatusRank orders the fulfilment lifecycle. Transitions only move
// forward and only one step at a time.
var orderStatusRank = map[OrderStatus]int{
	domain.OrderStatusPending:   0,
	domain.OrderStatusConfirmed: 1,
	domain.OrderStatusPreparing: 2,
	domain.OrderStatusShipped:   3,
	domain.OrderStatusDelivered: 4,
}

// OrderServiceDeps wires the repository and event sink for order reads and transitions.
type OrderServiceDeps struct {
	Orders repositories.OrderRepository
	Events EventPublisher
	Clock  func() time.Time
	Logger func(context.Context, string, map[string]any)
}

type orderService struct {
	orders repositories.OrderRepository
	events EventPublisher
	now    func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewOrderService constructs an OrderService enforcing dependency validation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errOrderRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errOrderClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders: deps.Orders,
		events: deps.Events,
		now:    func() time.Time { return deps.Clock().UTC() },
		logger: logger,
	}, nil
}

// ListOrders returns the user's order history, newest first.
func (s *orderService) ListOrders(ctx context.Context, cmd ListOrdersCommand) (domain.CursorPage[Order], error) {
	if s == nil || s.orders == nil {
		return domain.CursorPage[Order]{}, ErrOrderUnavailable
	}
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return domain.CursorPage[Order]{}, ErrOrderInvalidInput
	}

	page, err := s.orders.ListByUser(ctx, uid, repositories.OrderListFilter{
		Status:     cmd.Status,
		Pagination: cmd.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Order]{}, s.translateRepoError(err)
	}
	return page, nil
}

// GetOrder loads a single order. When UserID is set the read is scoped to
// the owner and an order belonging to someone else reads as not found.
func (s *orderService) GetOrder(ctx context.Context, cmd GetOrderCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, ErrOrderInvalidInput
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	if uid := strings.TrimSpace(cmd.UserID); uid != "" && order.UserID != uid {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

// TransitionStatus advances an order one step along the fulfilment
// lifecycle. Backward moves and skips are rejected.
func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, ErrOrderInvalidInput
	}
	targetRank, ok := orderStatusRank[cmd.TargetStatus]
	if !ok {
		return Order{}, ErrOrderInvalidInput
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}

	currentRank, ok := orderStatusRank[order.Status]
	if !ok || targetRank != currentRank+1 {
		return Order{}, ErrOrderInvalidTransition
	}

	updated, err := s.orders.UpdateStatus(ctx, orderID, cmd.TargetStatus, s.now())
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}

	s.notify(ctx, updated, string(order.Status))
	s.logger(ctx, "orders.status_changed", map[string]any{
		"orderID": updated.ID,
		"from":    string(order.Status),
		"to":      string(updated.Status),
		"actorID": strings.TrimSpace(cmd.ActorID),
	})
	return updated, nil
}

func (s *orderService) notify(ctx context.Context, order Order, previous string) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(ctx, StorefrontEvent{
		Type:       EventOrderStatusChanged,
		UserID:     order.UserID,
		EntityID:   order.ID,
		OccurredAt: s.now(),
		Attributes: map[string]string{
			"from": previous,
			"to":   string(order.Status),
		},
	})
	if err != nil {
		s.logger(ctx, "orders.event_publish_failed", map[string]any{
			"orderID": order.ID,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		if repoErr.IsNotFound() {
			return ErrOrderNotFound
		}
		return ErrOrderUnavailable
	}
	return ErrOrderUnavailable
}
