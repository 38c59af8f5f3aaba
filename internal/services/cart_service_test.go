package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/renewtech/api/internal/domain"
	"github.com/renewtech/api/internal/repositories"
)

func strPtr(v string) *string {
	return &v
}

func TestCartServiceGetCartReturnsEmptyWhenMissing(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	repo := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{}, &repositoryErrorStub{notFound: true}
		},
	}

	service, err := NewCartService(CartServiceDeps{
		Carts:   repo,
		Catalog: &stubCatalogRepository{},
		Clock:   func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	cart, err := service.GetCart(context.Background(), " user-1 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cart.UserID != "user-1" {
		t.Fatalf("expected user-1, got %q", cart.UserID)
	}
	if len(cart.Lines) != 0 {
		t.Fatalf("expected empty lines, got %d", len(cart.Lines))
	}
	if cart.Currency != "EUR" {
		t.Fatalf("expected default currency EUR, got %q", cart.Currency)
	}
	if cart.Total != 0 {
		t.Fatalf("expected zero total, got %d", cart.Total)
	}
}

func TestCartServiceAddItemMergesAndRetainsFirstPrice(t *testing.T) {
	now := time.Date(2026, 3, 11, 9, 30, 0, 0, time.UTC)
	addedAt := now.Add(-24 * time.Hour)

	var saved domain.Cart
	repo := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{
				ID:       "user-1",
				UserID:   "user-1",
				Currency: "EUR",
				Lines: []domain.CartLine{
					{ID: "line-1", ProductID: "prod-1", Quantity: 1, UnitPrice: 1000, AddedAt: addedAt},
				},
				CreatedAt: addedAt,
				UpdatedAt: addedAt,
			}, nil
		},
		saveFunc: func(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
			saved = cart
			return cart, nil
		},
	}
	catalog := &stubCatalogRepository{
		getFunc: func(ctx context.Context, productID string) (domain.Product, error) {
			// Live price differs from the captured line price.
			return domain.Product{ID: productID, Name: "Laptop", Category: "computers", Price: 1200}, nil
		},
	}

	service, err := NewCartService(CartServiceDeps{
		Carts:   repo,
		Catalog: catalog,
		Clock:   func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	cart, err := service.AddItem(context.Background(), AddCartItemCommand{
		UserID:    "user-1",
		ProductID: "prod-1",
		Quantity:  2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cart.Lines) != 1 {
		t.Fatalf("expected merged single line, got %d", len(cart.Lines))
	}
	line := cart.Lines[0]
	if line.Quantity != 3 {
		t.Fatalf("expected quantity 3, got %d", line.Quantity)
	}
	if line.UnitPrice != 1000 {
		t.Fatalf("expected first captured price 1000, got %d", line.UnitPrice)
	}
	if cart.Total != 3000 {
		t.Fatalf("expected total 3000, got %d", cart.Total)
	}
	if saved.Total != 3000 {
		t.Fatalf("expected persisted total 3000, got %d", saved.Total)
	}
}

func TestCartServiceAddItemAppendsNewLineAtCurrentPrice(t *testing.T) {
	now := time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)

	repo := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{}, &repositoryErrorStub{notFound: true}
		},
		saveFunc: func(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
			return cart, nil
		},
	}
	catalog := &stubCatalogRepository{
		getFunc: func(ctx context.Context, productID string) (domain.Product, error) {
			return domain.Product{ID: productID, Name: "Phone", Category: "phones", Price: 45000}, nil
		},
	}

	service, err := NewCartService(CartServiceDeps{
		Carts:   repo,
		Catalog: catalog,
		Clock:   func() time.Time { return now },
		IDGenerator: func() string {
			return "line-new"
		},
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	cart, err := service.AddItem(context.Background(), AddCartItemCommand{
		UserID:    "user-2",
		ProductID: "prod-9",
		Quantity:  1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cart.Lines) != 1 {
		t.Fatalf("expected one line, got %d", len(cart.Lines))
	}
	if cart.Lines[0].ID != "line-new" {
		t.Fatalf("expected generated line id, got %q", cart.Lines[0].ID)
	}
	if cart.Lines[0].UnitPrice != 45000 {
		t.Fatalf("expected current catalog price captured, got %d", cart.Lines[0].UnitPrice)
	}
	if cart.Lines[0].Name != "Phone" {
		t.Fatalf("expected product name captured on the line, got %q", cart.Lines[0].Name)
	}
	if !cart.Lines[0].AddedAt.Equal(now) {
		t.Fatalf("expected addedAt %v, got %v", now, cart.Lines[0].AddedAt)
	}
}

func TestCartServiceAddItemUnknownProduct(t *testing.T) {
	now := time.Date(2026, 3, 11, 11, 0, 0, 0, time.UTC)

	catalog := &stubCatalogRepository{
		getFunc: func(ctx context.Context, productID string) (domain.Product, error) {
			return domain.Product{}, &repositoryErrorStub{notFound: true}
		},
	}

	service, err := NewCartService(CartServiceDeps{
		Carts:   &stubCartRepository{},
		Catalog: catalog,
		Clock:   func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	_, err = service.AddItem(context.Background(), AddCartItemCommand{
		UserID:    "user-1",
		ProductID: "missing",
		Quantity:  1,
	})
	if !errors.Is(err, ErrCartProductNotFound) {
		t.Fatalf("expected ErrCartProductNotFound, got %v", err)
	}
}

func TestCartServiceAddItemRejectsInvalidQuantity(t *testing.T) {
	service, err := NewCartService(CartServiceDeps{
		Carts:   &stubCartRepository{},
		Catalog: &stubCatalogRepository{},
		Clock:   time.Now,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	_, err = service.AddItem(context.Background(), AddCartItemCommand{
		UserID:    "user-1",
		ProductID: "prod-1",
		Quantity:  0,
	})
	if !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput, got %v", err)
	}
}

func TestCartServiceUpdateQuantityMissingLine(t *testing.T) {
	now := time.Date(2026, 3, 12, 8, 0, 0, 0, time.UTC)

	repo := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{ID: userID, UserID: userID, Currency: "EUR"}, nil
		},
	}

	service, err := NewCartService(CartServiceDeps{
		Carts:   repo,
		Catalog: &stubCatalogRepository{},
		Clock:   func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	_, err = service.UpdateQuantity(context.Background(), UpdateCartQuantityCommand{
		UserID:    "user-1",
		ProductID: "prod-1",
		Quantity:  2,
	})
	if !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound, got %v", err)
	}
}

func TestCartServiceRemoveItemIsIdempotent(t *testing.T) {
	now := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)

	repo := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{
				ID:       userID,
				UserID:   userID,
				Currency: "EUR",
				Lines: []domain.CartLine{
					{ID: "line-1", ProductID: "prod-1", Quantity: 1, UnitPrice: 500, AddedAt: now},
				},
			}, nil
		},
		saveFunc: func(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
			return cart, nil
		},
	}

	service, err := NewCartService(CartServiceDeps{
		Carts:   repo,
		Catalog: &stubCatalogRepository{},
		Clock:   func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	cart, err := service.RemoveItem(context.Background(), RemoveCartItemCommand{
		UserID:    "user-1",
		ProductID: "absent",
	})
	if err != nil {
		t.Fatalf("unexpected error removing absent product: %v", err)
	}
	if len(cart.Lines) != 1 {
		t.Fatalf("expected cart unchanged, got %d lines", len(cart.Lines))
	}
}

func TestCartServiceClearPublishesEvent(t *testing.T) {
	now := time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)

	repo := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{
				ID:       userID,
				UserID:   userID,
				Currency: "EUR",
				Lines: []domain.CartLine{
					{ID: "line-1", ProductID: "prod-1", Quantity: 2, UnitPrice: 300, AddedAt: now},
				},
			}, nil
		},
		saveFunc: func(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
			return cart, nil
		},
	}

	events := &stubEventPublisher{}
	service, err := NewCartService(CartServiceDeps{
		Carts:   repo,
		Catalog: &stubCatalogRepository{},
		Events:  events,
		Clock:   func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	cart, err := service.Clear(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cart.Lines) != 0 {
		t.Fatalf("expected empty cart, got %d lines", len(cart.Lines))
	}
	if cart.Total != 0 {
		t.Fatalf("expected zero total, got %d", cart.Total)
	}
	if len(events.published) != 1 {
		t.Fatalf("expected one event, got %d", len(events.published))
	}
	if events.published[0].Type != EventCartCleared {
		t.Fatalf("expected %s event, got %s", EventCartCleared, events.published[0].Type)
	}
}

func TestCartServicePublishFailureIsNonFatal(t *testing.T) {
	now := time.Date(2026, 3, 12, 11, 0, 0, 0, time.UTC)

	repo := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{}, &repositoryErrorStub{notFound: true}
		},
		saveFunc: func(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
			return cart, nil
		},
	}
	catalog := &stubCatalogRepository{
		getFunc: func(ctx context.Context, productID string) (domain.Product, error) {
			return domain.Product{ID: productID, Name: "Tablet", Category: "tablets", Price: 20000}, nil
		},
	}
	events := &stubEventPublisher{
		publishFunc: func(ctx context.Context, event StorefrontEvent) error {
			return errors.New("transport down")
		},
	}

	service, err := NewCartService(CartServiceDeps{
		Carts:   repo,
		Catalog: catalog,
		Events:  events,
		Clock:   func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	_, err = service.AddItem(context.Background(), AddCartItemCommand{
		UserID:    "user-1",
		ProductID: "prod-1",
		Quantity:  1,
	})
	if err != nil {
		t.Fatalf("expected publish failure to be swallowed, got %v", err)
	}
}

type stubCartRepository struct {
	getFunc    func(ctx context.Context, userID string) (domain.Cart, error)
	saveFunc   func(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	deleteFunc func(ctx context.Context, userID string) error
}

func (s *stubCartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, userID)
	}
	return domain.Cart{}, errors.New("not implemented")
}

func (s *stubCartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if s.saveFunc != nil {
		return s.saveFunc(ctx, cart)
	}
	return cart, nil
}

func (s *stubCartRepository) Delete(ctx context.Context, userID string) error {
	if s.deleteFunc != nil {
		return s.deleteFunc(ctx, userID)
	}
	return nil
}

type stubCatalogRepository struct {
	listFunc       func(ctx context.Context, filter repositories.ProductListFilter) ([]domain.Product, error)
	getFunc        func(ctx context.Context, productID string) (domain.Product, error)
	upsertFunc     func(ctx context.Context, product domain.Product) (domain.Product, error)
	deleteFunc     func(ctx context.Context, productID string) error
	categoriesFunc func(ctx context.Context) ([]domain.Category, error)
}

func (s *stubCatalogRepository) ListProducts(ctx context.Context, filter repositories.ProductListFilter) ([]domain.Product, error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, filter)
	}
	return nil, errors.New("not implemented")
}

func (s *stubCatalogRepository) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, productID)
	}
	return domain.Product{}, errors.New("not implemented")
}

func (s *stubCatalogRepository) UpsertProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	if s.upsertFunc != nil {
		return s.upsertFunc(ctx, product)
	}
	return product, nil
}

func (s *stubCatalogRepository) DeleteProduct(ctx context.Context, productID string) error {
	if s.deleteFunc != nil {
		return s.deleteFunc(ctx, productID)
	}
	return nil
}

func (s *stubCatalogRepository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	if s.categoriesFunc != nil {
		return s.categoriesFunc(ctx)
	}
	return nil, errors.New("not implemented")
}

type stubEventPublisher struct {
	publishFunc func(ctx context.Context, event StorefrontEvent) error
	published   []StorefrontEvent
}

func (s *stubEventPublisher) Publish(ctx context.Context, event StorefrontEvent) error {
	s.published = append(s.published, event)
	if s.publishFunc != nil {
		return s.publishFunc(ctx, event)
	}
	return nil
}

type repositoryErrorStub struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *repositoryErrorStub) Error() string {
	return "repository error"
}

func (e *repositoryErrorStub) IsNotFound() bool {
	return e.notFound
}

func (e *repositoryErrorStub) IsConflict() bool {
	return e.conflict
}

func (e *repositoryErrorStub) IsUnavailable() bool {
	return e.unavailable
}
