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
	errCatalogRepositoryRequired = errors.New("catalog service: repository is required")
	errCatalogClockRequired      = errors.New("catalog service: clock is required")
)

// ErrCatalogInvalidInput indicates the caller supplied invalid input.
var ErrCatalogInvalidInput = errors.New("catalog service: invalid input")

// ErrCatalogNotFound indicates the requested product does not exist.
var ErrCatalogNotFound = errors.New("catalog service: not found")

// ErrCatalogUnavailable indicates the catalog backend cannot be reached.
var ErrCatalogUnavailable = errors.New("catalog service: unavailable")

// CatalogServiceDeps wires the repository dependencies for catalog queries.
type CatalogServiceDeps struct {
	Repository repositories.CatalogRepository
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
}

type catalogService struct {
	repo   repositories.CatalogRepository
	now    func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewCatalogService constructs a CatalogService enforcing dependency validation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Repository == nil {
		return nil, errCatalogRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errCatalogClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &catalogService{
		repo:   deps.Repository,
		now:    func() time.Time { return deps.Clock().UTC() },
		logger: logger,
	}, nil
}

// ListProducts loads the candidate set from storage and applies the filter
// and sort semantics in memory. Category narrowing is pushed down to the
// scan; everything else runs through the query engine.
func (s *catalogService) ListProducts(ctx context.Context, query ProductQuery) ([]Product, error) {
	if s == nil || s.repo == nil {
		return nil, ErrCatalogUnavailable
	}

	products, err := s.repo.ListProducts(ctx, repositories.ProductListFilter{
		Category:    strings.TrimSpace(query.Filter.Category),
		SubCategory: strings.TrimSpace(query.Filter.SubCategory),
	})
	if err != nil {
		return nil, s.translateRepoError(err)
	}

	result := domain.QueryProducts(products, query.Filter, query.Sort)
	if query.Limit > 0 && len(result) > query.Limit {
		result = result[:query.Limit]
	}
	return result, nil
}

// GetProduct loads a single product by ID.
func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	if s == nil || s.repo == nil {
		return Product{}, ErrCatalogUnavailable
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return Product{}, ErrCatalogInvalidInput
	}

	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return Product{}, s.translateRepoError(err)
	}
	return product, nil
}

// ListCategories returns the category tree for storefront navigation.
func (s *catalogService) ListCategories(ctx context.Context) ([]Category, error) {
	if s == nil || s.repo == nil {
		return nil, ErrCatalogUnavailable
	}

	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return categories, nil
}

// UpsertProduct creates or updates a catalog product. Admin only; the handler
// layer enforces the role.
func (s *catalogService) UpsertProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	if s == nil || s.repo == nil {
		return Product{}, ErrCatalogUnavailable
	}

	product := cmd.Product
	product.ID = strings.TrimSpace(product.ID)
	product.Name = strings.TrimSpace(product.Name)
	product.Category = strings.TrimSpace(product.Category)
	if product.ID == "" || product.Name == "" || product.Category == "" {
		return Product{}, ErrCatalogInvalidInput
	}
	if product.Price < 0 || product.Stock < 0 {
		return Product{}, ErrCatalogInvalidInput
	}
	if product.Rating != nil && (*product.Rating < 0 || *product.Rating > 5) {
		return Product{}, ErrCatalogInvalidInput
	}

	saved, err := s.repo.UpsertProduct(ctx, product)
	if err != nil {
		return Product{}, s.translateRepoError(err)
	}

	s.logger(ctx, "catalog.product_upserted", map[string]any{
		"productID": saved.ID,
		"actorID":   strings.TrimSpace(cmd.ActorID),
	})
	return saved, nil
}

// DeleteProduct removes a catalog product.
func (s *catalogService) DeleteProduct(ctx context.Context, cmd DeleteProductCommand) error {
	if s == nil || s.repo == nil {
		return ErrCatalogUnavailable
	}
	id := strings.TrimSpace(cmd.ProductID)
	if id == "" {
		return ErrCatalogInvalidInput
	}

	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return s.translateRepoError(err)
	}

	s.logger(ctx, "catalog.product_deleted", map[string]any{
		"productID": id,
		"actorID":   strings.TrimSpace(cmd.ActorID),
	})
	return nil
}

func (s *catalogService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		if repoErr.IsNotFound() {
			return ErrCatalogNotFound
		}
		return ErrCatalogUnavailable
	}
	return ErrCatalogUnavailable
}
