package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/renewtech/api/internal/domain"
)

func TestReviewServiceCreateSanitisesComment(t *testing.T) {
	now := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)

	var stored domain.Review
	reviews := &stubReviewRepository{
		insertFunc: func(ctx context.Context, review domain.Review) (domain.Review, error) {
			stored = review
			return review, nil
		},
	}
	catalog := &stubCatalogRepository{
		getFunc: func(ctx context.Context, productID string) (domain.Product, error) {
			return domain.Product{ID: productID, Name: "P", Category: "c", Price: 100}, nil
		},
	}

	service, err := NewReviewService(ReviewServiceDeps{
		Reviews:     reviews,
		Catalog:     catalog,
		Clock:       func() time.Time { return now },
		IDGenerator: func() string { return "rev-1" },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing review service: %v", err)
	}

	review, err := service.Create(context.Background(), CreateReviewCommand{
		ProductID:   "prod-1",
		UserID:      "user-1",
		DisplayName: "Jean D.",
		Rating:      4,
		Comment:     `Great <script>alert("x")</script> laptop`,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(stored.Comment, "<script>") {
		t.Fatalf("expected script stripped, got %q", stored.Comment)
	}
	if !strings.Contains(stored.Comment, "Great") || !strings.Contains(stored.Comment, "laptop") {
		t.Fatalf("expected text preserved, got %q", stored.Comment)
	}
	if review.ID != "rev-1" {
		t.Fatalf("expected generated id, got %q", review.ID)
	}
	if !stored.CreatedAt.Equal(now) {
		t.Fatalf("expected createdAt %v, got %v", now, stored.CreatedAt)
	}
}

func TestReviewServiceCreateValidatesRating(t *testing.T) {
	service, err := NewReviewService(ReviewServiceDeps{
		Reviews: &stubReviewRepository{},
		Catalog: &stubCatalogRepository{},
		Clock:   time.Now,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing review service: %v", err)
	}

	for _, rating := range []int{0, 6, -1} {
		_, err := service.Create(context.Background(), CreateReviewCommand{
			ProductID: "prod-1",
			UserID:    "user-1",
			Rating:    rating,
		})
		if !errors.Is(err, ErrReviewInvalidInput) {
			t.Fatalf("expected ErrReviewInvalidInput for rating %d, got %v", rating, err)
		}
	}
}

func TestReviewServiceCreateUnknownProduct(t *testing.T) {
	catalog := &stubCatalogRepository{
		getFunc: func(ctx context.Context, productID string) (domain.Product, error) {
			return domain.Product{}, &repositoryErrorStub{notFound: true}
		},
	}

	service, err := NewReviewService(ReviewServiceDeps{
		Reviews: &stubReviewRepository{},
		Catalog: catalog,
		Clock:   time.Now,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing review service: %v", err)
	}

	_, err = service.Create(context.Background(), CreateReviewCommand{
		ProductID: "ghost",
		UserID:    "user-1",
		Rating:    5,
	})
	if !errors.Is(err, ErrReviewProductNotFound) {
		t.Fatalf("expected ErrReviewProductNotFound, got %v", err)
	}
}

func TestReviewServiceDeleteOwnerOnly(t *testing.T) {
	deleted := false
	reviews := &stubReviewRepository{
		findFunc: func(ctx context.Context, reviewID string) (domain.Review, error) {
			return domain.Review{ID: reviewID, UserID: "owner"}, nil
		},
		deleteFunc: func(ctx context.Context, reviewID string) error {
			deleted = true
			return nil
		},
	}

	service, err := NewReviewService(ReviewServiceDeps{
		Reviews: reviews,
		Catalog: &stubCatalogRepository{},
		Clock:   time.Now,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing review service: %v", err)
	}

	err = service.Delete(context.Background(), DeleteReviewCommand{ReviewID: "rev-1", ActorID: "intruder"})
	if !errors.Is(err, ErrReviewForbidden) {
		t.Fatalf("expected ErrReviewForbidden, got %v", err)
	}
	if deleted {
		t.Fatalf("expected no delete for foreign actor")
	}

	if err := service.Delete(context.Background(), DeleteReviewCommand{ReviewID: "rev-1", ActorID: "owner"}); err != nil {
		t.Fatalf("unexpected error for owner delete: %v", err)
	}
	if !deleted {
		t.Fatalf("expected review deleted")
	}
}

func TestReviewServiceDeleteAdminBypass(t *testing.T) {
	reviews := &stubReviewRepository{
		findFunc: func(ctx context.Context, reviewID string) (domain.Review, error) {
			return domain.Review{ID: reviewID, UserID: "owner"}, nil
		},
		deleteFunc: func(ctx context.Context, reviewID string) error {
			return nil
		},
	}

	service, err := NewReviewService(ReviewServiceDeps{
		Reviews: reviews,
		Catalog: &stubCatalogRepository{},
		Clock:   time.Now,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing review service: %v", err)
	}

	if err := service.Delete(context.Background(), DeleteReviewCommand{ReviewID: "rev-1", ActorID: "admin-1", IsAdmin: true}); err != nil {
		t.Fatalf("unexpected error for admin delete: %v", err)
	}
}

func TestReviewServiceListByProductRequiresID(t *testing.T) {
	service, err := NewReviewService(ReviewServiceDeps{
		Reviews: &stubReviewRepository{},
		Catalog: &stubCatalogRepository{},
		Clock:   time.Now,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing review service: %v", err)
	}

	_, err = service.ListByProduct(context.Background(), ListProductReviewsCommand{})
	if !errors.Is(err, ErrReviewInvalidInput) {
		t.Fatalf("expected ErrReviewInvalidInput, got %v", err)
	}
}

type stubReviewRepository struct {
	insertFunc        func(ctx context.Context, review domain.Review) (domain.Review, error)
	listByProductFunc func(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error)
	listByUserFunc    func(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error)
	deleteFunc        func(ctx context.Context, reviewID string) error
	findFunc          func(ctx context.Context, reviewID string) (domain.Review, error)
}

func (s *stubReviewRepository) Insert(ctx context.Context, review domain.Review) (domain.Review, error) {
	if s.insertFunc != nil {
		return s.insertFunc(ctx, review)
	}
	return review, nil
}

func (s *stubReviewRepository) ListByProduct(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	if s.listByProductFunc != nil {
		return s.listByProductFunc(ctx, productID, pager)
	}
	return domain.CursorPage[domain.Review]{}, errors.New("not implemented")
}

func (s *stubReviewRepository) ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	if s.listByUserFunc != nil {
		return s.listByUserFunc(ctx, userID, pager)
	}
	return domain.CursorPage[domain.Review]{}, errors.New("not implemented")
}

func (s *stubReviewRepository) Delete(ctx context.Context, reviewID string) error {
	if s.deleteFunc != nil {
		return s.deleteFunc(ctx, reviewID)
	}
	return nil
}

func (s *stubReviewRepository) FindByID(ctx context.Context, reviewID string) (domain.Review, error) {
	if s.findFunc != nil {
		return s.findFunc(ctx, reviewID)
	}
	return domain.Review{}, errors.New("not implemented")
}
