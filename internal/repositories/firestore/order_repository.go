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

const orderCollection = "orders"

// OrderRepository persists order documents in Firestore.
type OrderRepository struct {
	base     *pfirestore.Collection[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		base:     pfirestore.NewCollection[orderDocument](provider, orderCollection),
		provider: provider,
	}, nil
}

// Insert persists a new order document under its pre-assigned ID.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc := encodeOrderDocument(order)
	result, err := r.base.Set(ctx, id, doc)
	if err != nil {
		return domain.Order{}, err
	}

	saved := decodeOrderDocument(id, doc, doc.CreatedAt, result.UpdateTime)
	return saved, nil
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrderDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// ListByUser returns the user's orders newest first with cursor pagination.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository: user id is required")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeCreatedAtToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("order repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	statuses := normaliseOrderStatuses(filter.Status)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("userId", "==", uid)
		if len(statuses) == 1 {
			q = q.Where("status", "==", statuses[0])
		} else if len(statuses) > 1 {
			if len(statuses) > 10 {
				statuses = statuses[:10]
			}
			q = q.Where("status", "in", statuses)
		}
		if filter.CreatedAfter != nil {
			q = q.Where("createdAt", ">", filter.CreatedAfter.UTC())
		}
		if filter.CreatedBefore != nil {
			q = q.Where("createdAt", "<", filter.CreatedBefore.UTC())
		}
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
		return domain.CursorPage[domain.Order]{}, err
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

	items := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeOrderDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime))
	}

	return domain.CursorPage[domain.Order]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

// UpdateStatus transitions the order to the given status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, updatedAt time.Time) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	if _, err := r.base.Update(ctx, id, []firestore.Update{
		{Path: "status", Value: string(status)},
		{Path: "updatedAt", Value: updatedAt.UTC()},
	}); err != nil {
		return domain.Order{}, err
	}

	return r.FindByID(ctx, id)
}

func normaliseOrderStatuses(statuses []domain.OrderStatus) []string {
	if len(statuses) == 0 {
		return nil
	}
	out := make([]string, 0, len(statuses))
	seen := make(map[string]struct{}, len(statuses))
	for _, status := range statuses {
		value := strings.ToLower(strings.TrimSpace(string(status)))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func encodeOrderDocument(order domain.Order) orderDocument {
	now := time.Now().UTC()
	createdAt := order.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := order.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	doc := orderDocument{
		UserID:     strings.TrimSpace(order.UserID),
		Status:     strings.ToLower(strings.TrimSpace(string(order.Status))),
		Currency:   strings.ToUpper(strings.TrimSpace(order.Currency)),
		TotalPrice: order.TotalPrice,
		Shipping: orderAddressDocument{
			Street:     strings.TrimSpace(order.ShippingAddress.Street),
			City:       strings.TrimSpace(order.ShippingAddress.City),
			PostalCode: strings.TrimSpace(order.ShippingAddress.PostalCode),
			Country:    strings.TrimSpace(order.ShippingAddress.Country),
		},
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	if order.PaymentRef != nil && strings.TrimSpace(*order.PaymentRef) != "" {
		ref := strings.TrimSpace(*order.PaymentRef)
		doc.PaymentRef = &ref
	}
	doc.Items = make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ProductID: strings.TrimSpace(item.ProductID),
			Name:      strings.TrimSpace(item.Name),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Total:     item.Total,
		})
	}
	return doc
}

func decodeOrderDocument(id string, doc orderDocument, createTime, updateTime time.Time) domain.Order {
	order := domain.Order{
		ID:         id,
		UserID:     doc.UserID,
		Status:     domain.OrderStatus(doc.Status),
		Currency:   doc.Currency,
		TotalPrice: doc.TotalPrice,
		ShippingAddress: domain.Address{
			Street:     doc.Shipping.Street,
			City:       doc.Shipping.City,
			PostalCode: doc.Shipping.PostalCode,
			Country:    doc.Shipping.Country,
		},
	}
	if doc.PaymentRef != nil {
		ref := *doc.PaymentRef
		order.PaymentRef = &ref
	}
	order.Items = make([]domain.OrderItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Total:     item.Total,
		})
	}

	order.CreatedAt = doc.CreatedAt
	if order.CreatedAt.IsZero() {
		order.CreatedAt = createTime
	}
	order.UpdatedAt = doc.UpdatedAt
	if !updateTime.IsZero() {
		order.UpdatedAt = updateTime
	}
	return order
}

type orderDocument struct {
	UserID     string               `firestore:"userId"`
	Status     string               `firestore:"status"`
	Currency   string               `firestore:"currency"`
	Items      []orderItemDocument  `firestore:"items"`
	TotalPrice int64                `firestore:"totalPrice"`
	Shipping   orderAddressDocument `firestore:"shippingAddress"`
	PaymentRef *string              `firestore:"paymentRef,omitempty"`
	CreatedAt  time.Time            `firestore:"createdAt"`
	UpdatedAt  time.Time            `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	Quantity  int    `firestore:"quantity"`
	UnitPrice int64  `firestore:"unitPrice"`
	Total     int64  `firestore:"total"`
}

type orderAddressDocument struct {
	Street     string `firestore:"street"`
	City       string `firestore:"city"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
