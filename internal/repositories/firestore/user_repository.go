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

const userCollection = "users"

// UserRepository stores denormalised user profile documents keyed by the
// Firebase UID.
type UserRepository struct {
	base *pfirestore.Collection[userDocument]
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{
		base: pfirestore.NewCollection[userDocument](provider, userCollection),
	}, nil
}

// FindByID loads the profile for the given UID.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	if r == nil || r.base == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.UserProfile{}, errors.New("user repository: user id is required")
	}

	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return decodeUserDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// Upsert writes the profile document under the user's UID.
func (r *UserRepository) Upsert(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	if r == nil || r.base == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	uid := strings.TrimSpace(profile.ID)
	if uid == "" {
		return domain.UserProfile{}, errors.New("user repository: user id is required")
	}

	doc := encodeUserDocument(profile)
	result, err := r.base.Set(ctx, uid, doc)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return decodeUserDocument(uid, doc, doc.CreatedAt, result.UpdateTime), nil
}

func encodeUserDocument(profile domain.UserProfile) userDocument {
	now := time.Now().UTC()
	createdAt := profile.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	return userDocument{
		Email:     strings.ToLower(strings.TrimSpace(profile.Email)),
		FirstName: strings.TrimSpace(profile.FirstName),
		LastName:  strings.TrimSpace(profile.LastName),
		Role:      strings.ToLower(strings.TrimSpace(profile.Role)),
		Locale:    strings.TrimSpace(profile.Locale),
		CreatedAt: createdAt,
		UpdatedAt: now,
	}
}

func decodeUserDocument(id string, doc userDocument, createTime, updateTime time.Time) domain.UserProfile {
	profile := domain.UserProfile{
		ID:        id,
		Email:     doc.Email,
		FirstName: doc.FirstName,
		LastName:  doc.LastName,
		Role:      doc.Role,
		Locale:    doc.Locale,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = createTime
	}
	if !updateTime.IsZero() {
		profile.UpdatedAt = updateTime
	}
	return profile
}

type userDocument struct {
	Email     string    `firestore:"email"`
	FirstName string    `firestore:"firstName,omitempty"`
	LastName  string    `firestore:"lastName,omitempty"`
	Role      string    `firestore:"role"`
	Locale    string    `firestore:"locale,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

var _ repositories.UserRepository = (*UserRepository)(nil)
