package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/renewtech/api/internal/domain"
	pfirestore "github.com/renewtech/api/internal/platform/firestore"
	"github.com/renewtech/api/internal/repositories"
)

const reviewCollection = "reviews"

// ReviewRepository persists product reviews in a flat collection.
type ReviewRepository struct {
	base     *pfirestore.Collection[reviewDocument]
	provider *pfirestore.Provider
}

// NewReviewRepository constructs a Firestore-backed review repository.
func NewReviewRepository(provider *pfirestore.Provider) (*ReviewRepository, error) {
	if provider == nil {
		return nil, errors.New("review repository requires firestore provider")
	}
	return &ReviewRepository{
		base:     pfirestore.NewCollection[reviewDocument](provider, reviewCollection),
		provider: provider,
	}, nil
}

// Insert persists a new review under its pre-assigned ID.
func (r *ReviewRepository) Insert(ctx context.Context, review domain.Review) (domain.Review, error) {
	if r == nil || r.base == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}
	id := strings.TrimSpace(review.ID)
	if id == "" {
		return domain.Review{}, errors.New("review repository: review id is required")
	}

	doc := encodeReviewDocument(review)
	if _, err := r.base.Set(ctx, id, doc); err != nil {
		return domain.Review{}, err
	}
	return decodeReviewDocument(id, doc), nil
}

// FindByID loads a single review.
func (r *ReviewRepository) FindByID(ctx context.Context, reviewID string) (domain.Review, error) {
	if r == nil || r.base == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}
	id := strings.TrimSpace(reviewID)
	if id == "" {
		return domain.Review{}, errors.New("review repository: review id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Review{}, err
	}
	return decodeReviewDocument(doc.ID, doc.Data), nil
}

// ListByProduct returns reviews for a product, newest first.
func (r *ReviewRepository) ListByProduct(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	return r.list(ctx, "productId", productID, pager)
}

// ListByUser returns reviews authored by the user, newest first.
func (r *ReviewRepository) ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	return r.list(ctx, "userId", userID, pager)
}

// Delete removes a review document.
func (r *ReviewRepository) Delete(ctx context.Context, reviewID string) error {
	if r == nil || r.base == nil {
		return errors.New("review repository not initialised")
	}
	id := strings.TrimSpace(reviewID)
	if id == "" {
		return errors.New("review repository: review id is required")
	}
	ref, err := r.base.Doc(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("reviews.delete", err)
	}
	return nil
}

func (r *ReviewRepository) list(ctx context.Context, field, value string, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Review]{}, errors.New("review repository not initialised")
	}
	key := strings.TrimSpace(value)
	if key == "" {
		return domain.CursorPage[domain.Review]{}, fmt.Errorf("review repository: %s is required", field)
	}

	limit := pager.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(pager.PageToken); token != "" {
		tokenTime, tokenID, err := decodeCreatedAtToken(token)
		if err != nil {
			return domain.CursorPage[domain.Review]{}, fmt.Errorf("review repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where(field, "==", key)
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Review]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		tokenTime := last.Data.CreatedAt
		if tokenTime.IsZero() {
			tokenTime = last.CreateTime
		}
		nextToken = encodeCreatedAtToken(tokenTime, last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.Review, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeReviewDocument(doc.ID, doc.Data))
	}

	return domain.CursorPage[domain.Review]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

func encodeReviewDocument(review domain.Review) reviewDocument {
	createdAt := review.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return reviewDocument{
		ProductID:   strings.TrimSpace(review.ProductID),
		UserID:      strings.TrimSpace(review.UserID),
		DisplayName: strings.TrimSpace(review.DisplayName),
		Rating:      review.Rating,
		Comment:     strings.TrimSpace(review.Comment),
		CreatedAt:   createdAt,
	}
}

func decodeReviewDocument(id string, doc reviewDocument) domain.Review {
	return domain.Review{
		ID:          id,
		ProductID:   doc.ProductID,
		UserID:      doc.UserID,
		DisplayName: doc.DisplayName,
		Rating:      doc.Rating,
		Comment:     doc.Comment,
		CreatedAt:   doc.CreatedAt,
	}
}

type reviewDocument struct {
	ProductID   string    `firestore:"productId"`
	UserID      string    `firestore:"userId"`
	DisplayName string    `firestore:"displayName,omitempty"`
	Rating      int       `firestore:"rating"`
	Comment     string    `firestore:"comment,omitempty"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

var _ repositories.ReviewRepository = (*ReviewRepository)(nil)
