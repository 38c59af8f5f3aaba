package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/renewtech/api/internal/domain"
	"github.com/renewtech/api/internal/platform/auth"
	"github.com/renewtech/api/internal/platform/httpx"
	"github.com/renewtech/api/internal/services"
)

// CatalogHandlers exposes the public storefront catalog: products,
// categories, technical services and product reviews.
type CatalogHandlers struct {
	authn    *auth.Authenticator
	catalog  services.CatalogService
	requests services.RequestService
	reviews  services.ReviewService
	users    services.UserService
	limiter  rateLimiter
}

const (
	maxReviewBodySize   = 16 * 1024
	defaultReviewPage   = 20
	maxReviewPage       = 100
	maxCatalogListLimit = 200
)

// CatalogOption customises the catalog handlers.
type CatalogOption func(*CatalogHandlers)

// WithReviewRateLimiter throttles review creation per user.
func WithReviewRateLimiter(limiter rateLimiter) CatalogOption {
	return func(h *CatalogHandlers) {
		h.limiter = limiter
	}
}

// WithReviewRateLimit throttles review creation to limit requests per window
// for each authenticated user.
func WithReviewRateLimit(limit int, window time.Duration) CatalogOption {
	return func(h *CatalogHandlers) {
		h.limiter = newReviewThrottle(limit, window, nil)
	}
}

// NewCatalogHandlers constructs the catalog endpoints. Listings are public;
// review creation requires Firebase authentication.
func NewCatalogHandlers(authn *auth.Authenticator, catalog services.CatalogService, requests services.RequestService, reviews services.ReviewService, users services.UserService, opts ...CatalogOption) *CatalogHandlers {
	h := &CatalogHandlers{
		authn:    authn,
		catalog:  catalog,
		requests: requests,
		reviews:  reviews,
		users:    users,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes wires the /catalog endpoints onto the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Get("/products/{productID}", h.getProduct)
	r.Get("/products/{productID}/reviews", h.listReviews)
	r.Get("/categories", h.listCategories)
	r.Get("/services", h.listServices)
	r.Get("/services/{serviceID}", h.getService)

	if h.authn != nil {
		r.With(h.authn.RequireFirebaseAuth()).Post("/products/{productID}/reviews", h.createReview)
	} else {
		r.Post("/products/{productID}/reviews", h.createReview)
	}
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	query, err := parseProductQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	products, err := h.catalog.ListProducts(ctx, query)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	payload := productListResponse{Products: make([]productPayload, 0, len(products))}
	for _, product := range products {
		payload.Products = append(payload.Products, buildProductPayload(product))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	product, err := h.catalog.GetProduct(ctx, productID)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	categories, err := h.catalog.ListCategories(ctx)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	payload := categoryListResponse{Categories: make([]categoryPayload, 0, len(categories))}
	for _, category := range categories {
		payload.Categories = append(payload.Categories, buildCategoryPayload(category))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *CatalogHandlers) listServices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.requests == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_catalog_unavailable", "service catalog is unavailable", http.StatusServiceUnavailable))
		return
	}

	category := strings.TrimSpace(r.URL.Query().Get("category"))
	items, err := h.requests.ListServices(ctx, category)
	if err != nil {
		h.writeServiceCatalogError(ctx, w, err)
		return
	}

	payload := serviceListResponse{Services: make([]servicePayload, 0, len(items))}
	for _, svc := range items {
		payload.Services = append(payload.Services, buildServicePayload(svc))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *CatalogHandlers) getService(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.requests == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_catalog_unavailable", "service catalog is unavailable", http.StatusServiceUnavailable))
		return
	}

	serviceID := strings.TrimSpace(chi.URLParam(r, "serviceID"))
	svc, err := h.requests.GetService(ctx, serviceID)
	if err != nil {
		h.writeServiceCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, serviceResponse{Service: buildServicePayload(svc)})
}

func (h *CatalogHandlers) listReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		httpx.WriteError(ctx, w, httpx.NewError("review_service_unavailable", "review service is unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	page, err := h.reviews.ListByProduct(ctx, services.ListProductReviewsCommand{
		ProductID:  productID,
		Pagination: parsePageRequest(r, defaultReviewPage, maxReviewPage),
	})
	if err != nil {
		h.writeReviewError(ctx, w, err)
		return
	}

	payload := reviewListResponse{
		Reviews:       make([]reviewPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, review := range page.Items {
		payload.Reviews = append(payload.Reviews, buildReviewPayload(review))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *CatalogHandlers) createReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		httpx.WriteError(ctx, w, httpx.NewError("review_service_unavailable", "review service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	if h.limiter != nil && !h.limiter.Allow(identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many reviews, retry later", http.StatusTooManyRequests))
		return
	}

	var req createReviewRequest
	if err := decodeJSONBody(r, maxReviewBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	review, err := h.reviews.Create(ctx, services.CreateReviewCommand{
		ProductID:   strings.TrimSpace(chi.URLParam(r, "productID")),
		UserID:      identity.UID,
		DisplayName: h.resolveDisplayName(ctx, identity),
		Rating:      req.Rating,
		Comment:     req.Comment,
	})
	if err != nil {
		h.writeReviewError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, reviewResponse{Review: buildReviewPayload(review)})
}

// resolveDisplayName prefers the stored profile name and falls back to the
// local part of the authenticated email.
func (h *CatalogHandlers) resolveDisplayName(ctx context.Context, identity *auth.Identity) string {
	if h.users != nil {
		if profile, err := h.users.GetProfile(ctx, identity.UID); err == nil {
			name := strings.TrimSpace(strings.TrimSpace(profile.FirstName) + " " + strings.TrimSpace(profile.LastName))
			if name != "" {
				return name
			}
		}
	}
	if at := strings.IndexByte(identity.Email, '@'); at > 0 {
		return identity.Email[:at]
	}
	return "client"
}

func (h *CatalogHandlers) writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid catalog query", http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process catalog request", http.StatusInternalServerError))
	}
}

func (h *CatalogHandlers) writeServiceCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrRequestInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid service query", http.StatusBadRequest))
	case errors.Is(err, services.ErrRequestNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("service_not_found", "service not found", http.StatusNotFound))
	case errors.Is(err, services.ErrRequestUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_catalog_unavailable", "service catalog temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process service request", http.StatusInternalServerError))
	}
}

func (h *CatalogHandlers) writeReviewError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrReviewInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid review payload", http.StatusBadRequest))
	case errors.Is(err, services.ErrReviewProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrReviewNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("review_not_found", "review not found", http.StatusNotFound))
	case errors.Is(err, services.ErrReviewForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "review does not belong to the caller", http.StatusForbidden))
	case errors.Is(err, services.ErrReviewUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("review_unavailable", "review service temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process review request", http.StatusInternalServerError))
	}
}

func parseProductQuery(r *http.Request) (services.ProductQuery, error) {
	q := r.URL.Query()
	query := services.ProductQuery{
		Filter: domain.FilterSpec{
			Category:    strings.TrimSpace(q.Get("category")),
			SubCategory: strings.TrimSpace(q.Get("subCategory")),
			Search:      strings.TrimSpace(q.Get("search")),
		},
		Sort: domain.ParseSortKey(q.Get("sort")),
	}

	if raw := strings.TrimSpace(q.Get("minPrice")); raw != "" {
		price, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || price < 0 {
			return services.ProductQuery{}, errors.New("minPrice must be a non-negative integer")
		}
		query.Filter.MinPrice = &price
	}
	if raw := strings.TrimSpace(q.Get("maxPrice")); raw != "" {
		price, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || price < 0 {
			return services.ProductQuery{}, errors.New("maxPrice must be a non-negative integer")
		}
		query.Filter.MaxPrice = &price
	}
	if raw := strings.TrimSpace(q.Get("inStock")); raw != "" {
		inStock, err := strconv.ParseBool(raw)
		if err != nil {
			return services.ProductQuery{}, errors.New("inStock must be a boolean")
		}
		query.Filter.InStock = inStock
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return services.ProductQuery{}, errors.New("limit must be a non-negative integer")
		}
		if limit > maxCatalogListLimit {
			limit = maxCatalogListLimit
		}
		query.Limit = limit
	}

	return query, nil
}

type productPayload struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Category         string   `json:"category"`
	SubCategory      string   `json:"sub_category,omitempty"`
	Price            int64    `json:"price"`
	Description      string   `json:"description,omitempty"`
	TechnicalDetails string   `json:"technical_details,omitempty"`
	Features         []string `json:"features,omitempty"`
	Images           []string `json:"images,omitempty"`
	Stock            int      `json:"stock"`
	Rating           *float64 `json:"rating,omitempty"`
	CreatedAt        string   `json:"created_at,omitempty"`
	UpdatedAt        string   `json:"updated_at,omitempty"`
}

type productResponse struct {
	Product productPayload `json:"product"`
}

type productListResponse struct {
	Products []productPayload `json:"products"`
}

func buildProductPayload(product services.Product) productPayload {
	return productPayload{
		ID:               product.ID,
		Name:             product.Name,
		Category:         product.Category,
		SubCategory:      product.SubCategory,
		Price:            product.Price,
		Description:      product.Description,
		TechnicalDetails: product.TechnicalDetails,
		Features:         product.Features,
		Images:           product.Images,
		Stock:            product.Stock,
		Rating:           product.Rating,
		CreatedAt:        formatTimePtr(product.CreatedAt),
		UpdatedAt:        formatTimePtr(product.UpdatedAt),
	}
}

type categoryPayload struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Slug          string            `json:"slug,omitempty"`
	SubCategories []categoryPayload `json:"sub_categories,omitempty"`
}

type categoryListResponse struct {
	Categories []categoryPayload `json:"categories"`
}

func buildCategoryPayload(category services.Category) categoryPayload {
	payload := categoryPayload{
		ID:   category.ID,
		Name: category.Name,
		Slug: category.Slug,
	}
	for _, child := range category.SubCategories {
		payload.SubCategories = append(payload.SubCategories, buildCategoryPayload(child))
	}
	return payload
}

type servicePayload struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Description string   `json:"description,omitempty"`
	Features    []string `json:"features,omitempty"`
	Image       string   `json:"image,omitempty"`
	Price       string   `json:"price,omitempty"`
}

type serviceResponse struct {
	Service servicePayload `json:"service"`
}

type serviceListResponse struct {
	Services []servicePayload `json:"services"`
}

func buildServicePayload(svc services.Service) servicePayload {
	return servicePayload{
		ID:          svc.ID,
		Name:        svc.Name,
		Category:    svc.Category,
		Description: svc.Description,
		Features:    svc.Features,
		Image:       svc.Image,
		Price:       svc.Price,
	}
}

type reviewPayload struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	Rating      int    `json:"rating"`
	Comment     string `json:"comment,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

type reviewResponse struct {
	Review reviewPayload `json:"review"`
}

type reviewListResponse struct {
	Reviews       []reviewPayload `json:"reviews"`
	NextPageToken string          `json:"next_page_token,omitempty"`
}

type createReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func buildReviewPayload(review services.Review) reviewPayload {
	return reviewPayload{
		ID:          review.ID,
		ProductID:   review.ProductID,
		UserID:      review.UserID,
		DisplayName: review.DisplayName,
		Rating:      review.Rating,
		Comment:     review.Comment,
		CreatedAt:   formatTime(review.CreatedAt),
	}
}
