package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/renewtech/api/internal/domain"
	pfirestore "github.com/renewtech/api/internal/platform/firestore"
	"github.com/renewtech/api/internal/repositories"
)

const (
	productCollection  = "products"
	categoryCollection = "categories"
)

// CatalogRepository loads product and category documents from Firestore.
type CatalogRepository struct {
	products   *pfirestore.Collection[productDocument]
	categories *pfirestore.Collection[categoryDocument]
	provider   *pfirestore.Provider
}

// NewCatalogRepository constructs a Firestore-backed catalog repository.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{
		products:   pfirestore.NewCollection[productDocument](provider, productCollection),
		categories: pfirestore.NewCollection[categoryDocument](provider, categoryCollection),
		provider:   provider,
	}, nil
}

// ListProducts returns catalog products narrowed by the optional category
// filters. Remaining predicates are applied in memory by the query engine,
// so the scan stays a simple single-field query.
func (r *CatalogRepository) ListProducts(ctx context.Context, filter repositories.ProductListFilter) ([]domain.Product, error) {
	if r == nil || r.products == nil {
		return nil, errors.New("catalog repository not initialised")
	}

	category := strings.TrimSpace(filter.Category)
	subCategory := strings.TrimSpace(filter.SubCategory)

	docs, err := r.products.Query(ctx, func(q firestore.Query) firestore.Query {
		if category != "" {
			q = q.Where("category", "==", category)
		}
		if subCategory != "" {
			q = q.Where("subCategory", "==", subCategory)
		}
		q = q.OrderBy("createdAt", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}

	items := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeProductDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime))
	}
	return items, nil
}

// GetProduct loads a single product by ID.
func (r *CatalogRepository) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.products == nil {
		return domain.Product{}, errors.New("catalog repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, errors.New("catalog repository: product id is required")
	}

	doc, err := r.products.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return decodeProductDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// UpsertProduct persists the product document keyed by its ID.
func (r *CatalogRepository) UpsertProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	if r == nil || r.products == nil {
		return domain.Product{}, errors.New("catalog repository not initialised")
	}
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return domain.Product{}, errors.New("catalog repository: product id is required")
	}

	doc := encodeProductDocument(product)
	result, err := r.products.Set(ctx, id, doc)
	if err != nil {
		return domain.Product{}, err
	}

	saved := product
	saved.ID = id
	updated := result.UpdateTime
	saved.UpdatedAt = &updated
	if saved.CreatedAt == nil {
		saved.CreatedAt = doc.CreatedAt
	}
	return saved, nil
}

// DeleteProduct removes the product document.
func (r *CatalogRepository) DeleteProduct(ctx context.Context, productID string) error {
	if r == nil || r.products == nil {
		return errors.New("catalog repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return errors.New("catalog repository: product id is required")
	}
	ref, err := r.products.Doc(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("products.delete", err)
	}
	return nil
}

// ListCategories returns the category tree ordered by name, with
// subcategories nested under their parent.
func (r *CatalogRepository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	if r == nil || r.categories == nil {
		return nil, errors.New("catalog repository not initialised")
	}

	docs, err := r.categories.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	roots := make([]domain.Category, 0, len(docs))
	children := make(map[string][]domain.Category)
	for _, doc := range docs {
		cat := domain.Category{
			ID:   doc.ID,
			Name: doc.Data.Name,
			Slug: doc.Data.Slug,
		}
		parent := strings.TrimSpace(doc.Data.ParentID)
		if parent == "" {
			roots = append(roots, cat)
			continue
		}
		cat.ParentID = &parent
		children[parent] = append(children[parent], cat)
	}

	for i := range roots {
		subs := children[roots[i].ID]
		sort.SliceStable(subs, func(a, b int) bool { return subs[a].Name < subs[b].Name })
		roots[i].SubCategories = subs
	}
	return roots, nil
}

func encodeProductDocument(product domain.Product) productDocument {
	doc := productDocument{
		Name:             strings.TrimSpace(product.Name),
		Category:         strings.TrimSpace(product.Category),
		SubCategory:      strings.TrimSpace(product.SubCategory),
		Price:            product.Price,
		Description:      strings.TrimSpace(product.Description),
		TechnicalDetails: strings.TrimSpace(product.TechnicalDetails),
		Features:         cloneStringSlice(product.Features),
		Images:           cloneStringSlice(product.Images),
		Stock:            product.Stock,
	}
	if product.Rating != nil {
		rating := *product.Rating
		doc.Rating = &rating
	}
	if product.CreatedAt != nil && !product.CreatedAt.IsZero() {
		created := product.CreatedAt.UTC()
		doc.CreatedAt = &created
	} else {
		now := time.Now().UTC()
		doc.CreatedAt = &now
	}
	return doc
}

func decodeProductDocument(id string, doc productDocument, createTime, updateTime time.Time) domain.Product {
	product := domain.Product{
		ID:               id,
		Name:             doc.Name,
		Category:         doc.Category,
		SubCategory:      doc.SubCategory,
		Price:            doc.Price,
		Description:      doc.Description,
		TechnicalDetails: doc.TechnicalDetails,
		Features:         cloneStringSlice(doc.Features),
		Images:           cloneStringSlice(doc.Images),
		Stock:            doc.Stock,
	}
	if doc.Rating != nil {
		rating := *doc.Rating
		product.Rating = &rating
	}
	created := createTime
	if doc.CreatedAt != nil && !doc.CreatedAt.IsZero() {
		created = *doc.CreatedAt
	}
	if !created.IsZero() {
		product.CreatedAt = &created
	}
	if !updateTime.IsZero() {
		product.UpdatedAt = &updateTime
	}
	return product
}

func cloneStringSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

type productDocument struct {
	Name             string     `firestore:"name"`
	Category         string     `firestore:"category"`
	SubCategory      string     `firestore:"subCategory,omitempty"`
	Price            int64      `firestore:"price"`
	Description      string     `firestore:"description,omitempty"`
	TechnicalDetails string     `firestore:"technicalDetails,omitempty"`
	Features         []string   `firestore:"features,omitempty"`
	Images           []string   `firestore:"images,omitempty"`
	Stock            int        `firestore:"stock"`
	Rating           *float64   `firestore:"rating,omitempty"`
	CreatedAt        *time.Time `firestore:"createdAt,omitempty"`
}

type categoryDocument struct {
	Name     string `firestore:"name"`
	Slug     string `firestore:"slug"`
	ParentID string `firestore:"parentId,omitempty"`
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)
