package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/renewtech/api/internal/domain"
	"github.com/renewtech/api/internal/repositories"
)

func int64Ptr(v int64) *int64 {
	return &v
}

func float64Ptr(v float64) *float64 {
	return &v
}

func TestCatalogServiceListProductsPushesCategoryDown(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	var captured repositories.ProductListFilter
	repo := &stubCatalogRepository{
		listFunc: func(ctx context.Context, filter repositories.ProductListFilter) ([]domain.Product, error) {
			captured = filter
			return []domain.Product{
				{ID: "p1", Name: "Budget phone", Category: "phones", Price: 15000, Stock: 3},
				{ID: "p2", Name: "Flagship phone", Category: "phones", Price: 90000, Stock: 0},
				{ID: "p3", Name: "Mid phone", Category: "phones", Price: 45000, Stock: 8},
			}, nil
		},
	}

	service, err := NewCatalogService(CatalogServiceDeps{
		Repository: repo,
		Clock:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing catalog service: %v", err)
	}

	products, err := service.ListProducts(context.Background(), ProductQuery{
		Filter: FilterSpec{Category: " phones ", InStock: true, MaxPrice: int64Ptr(50000)},
		Sort:   domain.SortKeyPriceAsc,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if captured.Category != "phones" {
		t.Fatalf("expected category pushed to repo, got %q", captured.Category)
	}
	if len(products) != 2 {
		t.Fatalf("expected 2 products after in-stock and price filters, got %d", len(products))
	}
	if products[0].ID != "p1" || products[1].ID != "p3" {
		t.Fatalf("expected price ascending order p1,p3, got %s,%s", products[0].ID, products[1].ID)
	}
}

func TestCatalogServiceListProductsAppliesLimit(t *testing.T) {
	repo := &stubCatalogRepository{
		listFunc: func(ctx context.Context, filter repositories.ProductListFilter) ([]domain.Product, error) {
			return []domain.Product{
				{ID: "p1", Name: "A", Category: "c", Price: 100},
				{ID: "p2", Name: "B", Category: "c", Price: 200},
				{ID: "p3", Name: "C", Category: "c", Price: 300},
			}, nil
		},
	}

	service, err := NewCatalogService(CatalogServiceDeps{
		Repository: repo,
		Clock:      time.Now,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing catalog service: %v", err)
	}

	products, err := service.ListProducts(context.Background(), ProductQuery{Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("expected 2 products, got %d", len(products))
	}
}

func TestCatalogServiceGetProductNotFound(t *testing.T) {
	repo := &stubCatalogRepository{
		getFunc: func(ctx context.Context, productID string) (domain.Product, error) {
			return domain.Product{}, &repositoryErrorStub{notFound: true}
		},
	}

	service, err := NewCatalogService(CatalogServiceDeps{
		Repository: repo,
		Clock:      time.Now,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing catalog service: %v", err)
	}

	_, err = service.GetProduct(context.Background(), "missing")
	if !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected ErrCatalogNotFound, got %v", err)
	}
}

func TestCatalogServiceGetProductRejectsEmptyID(t *testing.T) {
	service, err := NewCatalogService(CatalogServiceDeps{
		Repository: &stubCatalogRepository{},
		Clock:      time.Now,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing catalog service: %v", err)
	}

	_, err = service.GetProduct(context.Background(), "  ")
	if !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected ErrCatalogInvalidInput, got %v", err)
	}
}

func TestCatalogServiceUpsertProductValidates(t *testing.T) {
	service, err := NewCatalogService(CatalogServiceDeps{
		Repository: &stubCatalogRepository{},
		Clock:      time.Now,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing catalog service: %v", err)
	}

	cases := []struct {
		name    string
		product Product
	}{
		{name: "missing id", product: Product{Name: "X", Category: "c", Price: 100}},
		{name: "missing name", product: Product{ID: "p1", Category: "c", Price: 100}},
		{name: "negative price", product: Product{ID: "p1", Name: "X", Category: "c", Price: -1}},
		{name: "rating out of range", product: Product{ID: "p1", Name: "X", Category: "c", Price: 100, Rating: float64Ptr(5.5)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.UpsertProduct(context.Background(), UpsertProductCommand{Product: tc.product})
			if !errors.Is(err, ErrCatalogInvalidInput) {
				t.Fatalf("expected ErrCatalogInvalidInput, got %v", err)
			}
		})
	}
}

func TestCatalogServiceUpsertProductPersists(t *testing.T) {
	var stored domain.Product
	repo := &stubCatalogRepository{
		upsertFunc: func(ctx context.Context, product domain.Product) (domain.Product, error) {
			stored = product
			return product, nil
		},
	}

	service, err := NewCatalogService(CatalogServiceDeps{
		Repository: repo,
		Clock:      time.Now,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing catalog service: %v", err)
	}

	saved, err := service.UpsertProduct(context.Background(), UpsertProductCommand{
		Product: Product{ID: " p1 ", Name: " Laptop ", Category: " computers ", Price: 120000, Stock: 4},
		ActorID: "admin-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.ID != "p1" || stored.Name != "Laptop" || stored.Category != "computers" {
		t.Fatalf("expected trimmed fields, got %+v", stored)
	}
	if saved.ID != "p1" {
		t.Fatalf("expected saved product p1, got %q", saved.ID)
	}
}

func TestCatalogServiceListCategories(t *testing.T) {
	repo := &stubCatalogRepository{
		categoriesFunc: func(ctx context.Context) ([]domain.Category, error) {
			return []domain.Category{
				{ID: "c1", Name: "Computers", Slug: "computers", SubCategories: []domain.Category{
					{ID: "c2", Name: "Laptops", Slug: "laptops"},
				}},
			}, nil
		},
	}

	service, err := NewCatalogService(CatalogServiceDeps{
		Repository: repo,
		Clock:      time.Now,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing catalog service: %v", err)
	}

	categories, err := service.ListCategories(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(categories) != 1 || len(categories[0].SubCategories) != 1 {
		t.Fatalf("expected nested category tree, got %+v", categories)
	}
}
