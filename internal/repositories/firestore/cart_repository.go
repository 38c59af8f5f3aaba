package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/renewtech/api/internal/domain"
	pfirestore "github.com/renewtech/api/internal/platform/firestore"
	"github.com/renewtech/api/internal/repositories"
)

const cartCollection = "carts"

// CartRepository persists the single active cart per user. The document is
// keyed by the user ID and carries the full line set, so every mutation is a
// whole-document write.
type CartRepository struct {
	base     *pfirestore.Collection[cartDocument]
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{
		base:     pfirestore.NewCollection[cartDocument](provider, cartCollection),
		provider: provider,
	}, nil
}

// Get loads the cart for the given user ID.
func (r *CartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}
	return decodeCartDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// Save writes the full cart state under the user's document.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(cart.UserID)
	if uid == "" {
		uid = strings.TrimSpace(cart.ID)
	}
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc := encodeCartDocument(cart)
	result, err := r.base.Set(ctx, uid, doc)
	if err != nil {
		return domain.Cart{}, err
	}

	saved := decodeCartDocument(uid, doc, doc.CreatedAt, result.UpdateTime)
	return saved, nil
}

// Delete removes the user's cart document. Deleting an absent cart is not an
// error.
func (r *CartRepository) Delete(ctx context.Context, userID string) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return errors.New("cart repository: user id is required")
	}
	ref, err := r.base.Doc(ctx, uid)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("carts.delete", err)
	}
	return nil
}

func encodeCartDocument(cart domain.Cart) cartDocument {
	now := time.Now().UTC()
	updatedAt := cart.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = now
	}
	createdAt := cart.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = updatedAt
	}

	doc := cartDocument{
		Currency:  strings.ToUpper(strings.TrimSpace(cart.Currency)),
		Total:     cart.Total,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	doc.Lines = make([]cartLineDocument, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		entry := cartLineDocument{
			ID:        strings.TrimSpace(line.ID),
			ProductID: strings.TrimSpace(line.ProductID),
			Name:      strings.TrimSpace(line.Name),
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			AddedAt:   line.AddedAt.UTC(),
		}
		if line.UpdatedAt != nil && !line.UpdatedAt.IsZero() {
			updated := line.UpdatedAt.UTC()
			entry.UpdatedAt = &updated
		}
		doc.Lines = append(doc.Lines, entry)
	}
	return doc
}

func decodeCartDocument(id string, doc cartDocument, createTime, updateTime time.Time) domain.Cart {
	cart := domain.Cart{
		ID:       id,
		UserID:   id,
		Currency: strings.ToUpper(strings.TrimSpace(doc.Currency)),
		Total:    doc.Total,
		Lines:    make([]domain.CartLine, 0, len(doc.Lines)),
	}
	for _, entry := range doc.Lines {
		line := domain.CartLine{
			ID:        entry.ID,
			ProductID: entry.ProductID,
			Name:      entry.Name,
			Quantity:  entry.Quantity,
			UnitPrice: entry.UnitPrice,
			AddedAt:   entry.AddedAt,
		}
		if entry.UpdatedAt != nil {
			updated := *entry.UpdatedAt
			line.UpdatedAt = &updated
		}
		cart.Lines = append(cart.Lines, line)
	}

	cart.CreatedAt = doc.CreatedAt
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = createTime
	}
	cart.UpdatedAt = updateTime
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = doc.UpdatedAt
	}
	return cart
}

type cartDocument struct {
	Currency  string             `firestore:"currency"`
	Lines     []cartLineDocument `firestore:"lines"`
	Total     int64              `firestore:"total"`
	CreatedAt time.Time          `firestore:"createdAt"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartLineDocument struct {
	ID        string     `firestore:"id"`
	ProductID string     `firestore:"productId"`
	Name      string     `firestore:"name,omitempty"`
	Quantity  int        `firestore:"quantity"`
	UnitPrice int64      `firestore:"unitPrice"`
	AddedAt   time.Time  `firestore:"addedAt"`
	UpdatedAt *time.Time `firestore:"updatedAt,omitempty"`
}

var _ repositories.CartRepository = (*CartRepository)(nil)
