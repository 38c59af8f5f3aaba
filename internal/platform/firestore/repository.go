package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Document pairs a decoded storefront document with the server timestamps
// Firestore stamped on it.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
}

// WriteResult carries the commit timestamp of a mutation.
type WriteResult struct {
	UpdateTime time.Time
}

// Collection wraps one Firestore collection with typed access. All storefront
// repositories (products, carts, orders, reviews) build on it; document
// structs carry firestore tags and are encoded natively.
type Collection[T any] struct {
	provider *Provider
	name     string
}

// NewCollection binds a typed collection handle to the shared provider.
func NewCollection[T any](provider *Provider, name string) *Collection[T] {
	return &Collection[T]{
		provider: provider,
		name:     strings.TrimSpace(name),
	}
}

// Get loads and decodes a single document.
func (c *Collection[T]) Get(ctx context.Context, id string) (Document[T], error) {
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}
	snapshot, err := ref.Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(c.op("get"), err)
	}
	return decodeSnapshot[T](snapshot)
}

// Set writes the full document under the given ID, creating or replacing it.
func (c *Collection[T]) Set(ctx context.Context, id string, value T) (WriteResult, error) {
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return WriteResult{}, err
	}
	result, err := ref.Set(ctx, value)
	if err != nil {
		return WriteResult{}, WrapError(c.op("set"), err)
	}
	return WriteResult{UpdateTime: result.UpdateTime}, nil
}

// Update applies a partial field update to an existing document.
func (c *Collection[T]) Update(ctx context.Context, id string, updates []firestore.Update) (WriteResult, error) {
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return WriteResult{}, err
	}
	result, err := ref.Update(ctx, updates)
	if err != nil {
		return WriteResult{}, WrapError(c.op("update"), err)
	}
	return WriteResult{UpdateTime: result.UpdateTime}, nil
}

// Query runs the shaped query against the collection and decodes every
// matching document. A nil shape returns the whole collection.
func (c *Collection[T]) Query(ctx context.Context, shape func(firestore.Query) firestore.Query) ([]Document[T], error) {
	ref, err := c.ref(ctx)
	if err != nil {
		return nil, err
	}

	query := ref.Query
	if shape != nil {
		query = shape(query)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var docs []Document[T]
	for {
		snapshot, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, WrapError(c.op("query"), err)
		}
		decoded, err := decodeSnapshot[T](snapshot)
		if err != nil {
			return nil, fmt.Errorf("firestore: decode document %s: %w", snapshot.Ref.ID, err)
		}
		docs = append(docs, decoded)
	}
	return docs, nil
}

// Doc resolves the raw document reference, for deletes and transactional
// reads the typed helpers do not cover.
func (c *Collection[T]) Doc(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(c.op("document"), errors.New("firestore: document id is required"))
	}
	ref, err := c.ref(ctx)
	if err != nil {
		return nil, err
	}
	return ref.Doc(id), nil
}

func (c *Collection[T]) ref(ctx context.Context) (*firestore.CollectionRef, error) {
	if c == nil || c.provider == nil {
		return nil, WrapError(c.op("collection"), errors.New("firestore: provider is nil"))
	}
	if c.name == "" {
		return nil, WrapError(c.op("collection"), errors.New("firestore: collection name is required"))
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.name), nil
}

func (c *Collection[T]) op(action string) string {
	name := "firestore"
	if c != nil && c.name != "" {
		name = c.name
	}
	return name + "." + action
}

func decodeSnapshot[T any](snapshot *firestore.DocumentSnapshot) (Document[T], error) {
	var data T
	if err := snapshot.DataTo(&data); err != nil {
		return Document[T]{}, err
	}
	return Document[T]{
		ID:         snapshot.Ref.ID,
		Data:       data,
		CreateTime: snapshot.CreateTime,
		UpdateTime: snapshot.UpdateTime,
	}, nil
}
