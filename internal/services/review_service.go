package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/renewtech/api/internal/domain"
	"github.com/renewtech/api/internal/repositories"
)

const reviewCommentMaxLength = 2000

var (
	errReviewRepositoryRequired = errors.New("review service: repository is required")
	errReviewCatalogRequired    = errors.New("review service: catalog repository is required")
	errReviewClockRequired      = errors.New("review service: clock is required")
)

// ErrReviewInvalidInput indicates the caller supplied invalid input.
var ErrReviewInvalidInput = errors.New("review service: invalid input")

// ErrReviewNotFound indicates the requested review does not exist.
var ErrReviewNotFound = errors.New("review service: not found")

// ErrReviewProductNotFound indicates the reviewed product does not exist.
var ErrReviewProductNotFound = errors.New("review service: product not found")

// ErrReviewForbidden indicates the actor may not delete the review.
var ErrReviewForbidden = errors.New("review service: forbidden")

// ErrReviewUnavailable indicates the review backend cannot be reached.
var ErrReviewUnavailable = errors.New("review service: unavailable")

// ReviewServiceDeps wires the repositories for product reviews.
type ReviewServiceDeps struct {
	Reviews     repositories.ReviewRepository
	Catalog     repositories.CatalogRepository
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
}

type reviewService struct {
	reviews   repositories.ReviewRepository
	catalog   repositories.CatalogRepository
	sanitizer *bluemonday.Policy
	newID     func() string
	now       func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// NewReviewService constructs a ReviewService enforcing dependency validation.
func NewReviewService(deps ReviewServiceDeps) (ReviewService, error) {
	if deps.Reviews == nil {
		return nil, errReviewRepositoryRequired
	}
	if deps.Catalog == nil {
		return nil, errReviewCatalogRequired
	}
	if deps.Clock == nil {
		return nil, errReviewClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &reviewService{
		reviews:   deps.Reviews,
		catalog:   deps.Catalog,
		sanitizer: bluemonday.StrictPolicy(),
		newID:     idGen,
		now:       func() time.Time { return deps.Clock().UTC() },
		logger:    logger,
	}, nil
}

// Create stores a review after validating the rating, sanitising the comment
// and confirming the product exists. The display name is denormalised onto
// the review so listings render without a join.
func (s *reviewService) Create(ctx context.Context, cmd CreateReviewCommand) (Review, error) {
	if s == nil || s.reviews == nil {
		return Review{}, ErrReviewUnavailable
	}
	productID := strings.TrimSpace(cmd.ProductID)
	uid := strings.TrimSpace(cmd.UserID)
	if productID == "" || uid == "" {
		return Review{}, ErrReviewInvalidInput
	}
	if cmd.Rating < 1 || cmd.Rating > 5 {
		return Review{}, ErrReviewInvalidInput
	}

	comment := strings.TrimSpace(s.sanitizer.Sanitize(cmd.Comment))
	if utf8.RuneCountInString(comment) > reviewCommentMaxLength {
		return Review{}, ErrReviewInvalidInput
	}

	if _, err := s.catalog.GetProduct(ctx, productID); err != nil {
		if isRepoNotFound(err) {
			return Review{}, ErrReviewProductNotFound
		}
		return Review{}, s.translateRepoError(err)
	}

	review := Review{
		ID:          s.newID(),
		ProductID:   productID,
		UserID:      uid,
		DisplayName: strings.TrimSpace(cmd.DisplayName),
		Rating:      cmd.Rating,
		Comment:     comment,
		CreatedAt:   s.now(),
	}

	saved, err := s.reviews.Insert(ctx, review)
	if err != nil {
		return Review{}, s.translateRepoError(err)
	}

	s.logger(ctx, "reviews.created", map[string]any{
		"reviewID":  saved.ID,
		"productID": productID,
		"rating":    cmd.Rating,
	})
	return saved, nil
}

// ListByProduct returns the reviews for a product, newest first.
func (s *reviewService) ListByProduct(ctx context.Context, cmd ListProductReviewsCommand) (domain.CursorPage[Review], error) {
	if s == nil || s.reviews == nil {
		return domain.CursorPage[Review]{}, ErrReviewUnavailable
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return domain.CursorPage[Review]{}, ErrReviewInvalidInput
	}

	page, err := s.reviews.ListByProduct(ctx, productID, cmd.Pagination)
	if err != nil {
		return domain.CursorPage[Review]{}, s.translateRepoError(err)
	}
	return page, nil
}

// ListByUser returns the reviews a user has written, newest first.
func (s *reviewService) ListByUser(ctx context.Context, cmd ListUserReviewsCommand) (domain.CursorPage[Review], error) {
	if s == nil || s.reviews == nil {
		return domain.CursorPage[Review]{}, ErrReviewUnavailable
	}
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return domain.CursorPage[Review]{}, ErrReviewInvalidInput
	}

	page, err := s.reviews.ListByUser(ctx, uid, cmd.Pagination)
	if err != nil {
		return domain.CursorPage[Review]{}, s.translateRepoError(err)
	}
	return page, nil
}

// Delete removes a review. Owners delete their own reviews; admins delete
// anyone's.
func (s *reviewService) Delete(ctx context.Context, cmd DeleteReviewCommand) error {
	if s == nil || s.reviews == nil {
		return ErrReviewUnavailable
	}
	reviewID := strings.TrimSpace(cmd.ReviewID)
	actorID := strings.TrimSpace(cmd.ActorID)
	if reviewID == "" || actorID == "" {
		return ErrReviewInvalidInput
	}

	review, err := s.reviews.FindByID(ctx, reviewID)
	if err != nil {
		return s.translateRepoError(err)
	}
	if !cmd.IsAdmin && review.UserID != actorID {
		return ErrReviewForbidden
	}

	if err := s.reviews.Delete(ctx, reviewID); err != nil {
		return s.translateRepoError(err)
	}

	s.logger(ctx, "reviews.deleted", map[string]any{
		"reviewID": reviewID,
		"actorID":  actorID,
	})
	return nil
}

func (s *reviewService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		if repoErr.IsNotFound() {
			return ErrReviewNotFound
		}
		return ErrReviewUnavailable
	}
	return ErrReviewUnavailable
}
