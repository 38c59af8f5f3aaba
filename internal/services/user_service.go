package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/renewtech/api/internal/platform/auth"
	"github.com/renewtech/api/internal/repositories"
)

var (
	errUserRepositoryRequired   = errors.New("user service: user repository is required")
	errUserAddressesRequired    = errors.New("user service: address repository is required")
	errUserServiceClockRequired = errors.New("user service: clock is required")
)

// ErrUserInvalidInput indicates the caller supplied invalid input.
var ErrUserInvalidInput = errors.New("user service: invalid input")

// ErrUserNotFound indicates the requested profile or address does not exist.
var ErrUserNotFound = errors.New("user service: not found")

// ErrUserUnavailable indicates the user backend cannot be reached.
var ErrUserUnavailable = errors.New("user service: unavailable")

// UserServiceDeps wires the repositories for profile and address management.
type UserServiceDeps struct {
	Users     repositories.UserRepository
	Addresses repositories.AddressRepository
	Clock     func() time.Time
	Logger    func(context.Context, string, map[string]any)
	// IDGenerator assigns IDs to new addresses.
	IDGenerator func() string
}

type userService struct {
	users     repositories.UserRepository
	addresses repositories.AddressRepository
	newID     func() string
	now       func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// NewUserService constructs a UserService enforcing dependency validation.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errUserRepositoryRequired
	}
	if deps.Addresses == nil {
		return nil, errUserAddressesRequired
	}
	if deps.Clock == nil {
		return nil, errUserServiceClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &userService{
		users:     deps.Users,
		addresses: deps.Addresses,
		newID:     idGen,
		now:       func() time.Time { return deps.Clock().UTC() },
		logger:    logger,
	}, nil
}

// GetProfile loads the stored profile for the user.
func (s *userService) GetProfile(ctx context.Context, userID string) (UserProfile, error) {
	if s == nil || s.users == nil {
		return UserProfile{}, ErrUserUnavailable
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return UserProfile{}, ErrUserInvalidInput
	}

	profile, err := s.users.FindByID(ctx, uid)
	if err != nil {
		return UserProfile{}, s.translateRepoError(err)
	}
	return profile, nil
}

// EnsureProfile creates the profile on first sign-in and refreshes the
// denormalised identity fields on subsequent calls. Role changes never flow
// through here; the identity provider's custom claims stay authoritative.
func (s *userService) EnsureProfile(ctx context.Context, cmd EnsureProfileCommand) (UserProfile, error) {
	if s == nil || s.users == nil {
		return UserProfile{}, ErrUserUnavailable
	}
	uid := strings.TrimSpace(cmd.UserID)
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if uid == "" || email == "" {
		return UserProfile{}, ErrUserInvalidInput
	}

	now := s.now()
	profile := UserProfile{
		ID:        uid,
		Email:     email,
		FirstName: strings.TrimSpace(cmd.FirstName),
		LastName:  strings.TrimSpace(cmd.LastName),
		Role:      normaliseRole(cmd.Role),
		Locale:    strings.TrimSpace(cmd.Locale),
		CreatedAt: now,
		UpdatedAt: now,
	}

	existing, err := s.users.FindByID(ctx, uid)
	switch {
	case err == nil:
		profile.CreatedAt = existing.CreatedAt
		profile.Role = existing.Role
		if profile.FirstName == "" {
			profile.FirstName = existing.FirstName
		}
		if profile.LastName == "" {
			profile.LastName = existing.LastName
		}
		if profile.Locale == "" {
			profile.Locale = existing.Locale
		}
	case isRepoNotFound(err):
		s.logger(ctx, "users.profile_created", map[string]any{"userID": uid})
	default:
		return UserProfile{}, s.translateRepoError(err)
	}

	saved, err := s.users.Upsert(ctx, profile)
	if err != nil {
		return UserProfile{}, s.translateRepoError(err)
	}
	return saved, nil
}

// UpdateProfile applies a partial update to the mutable profile fields.
func (s *userService) UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (UserProfile, error) {
	if s == nil || s.users == nil {
		return UserProfile{}, ErrUserUnavailable
	}
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return UserProfile{}, ErrUserInvalidInput
	}
	if cmd.FirstName == nil && cmd.LastName == nil && cmd.Locale == nil {
		return UserProfile{}, ErrUserInvalidInput
	}

	profile, err := s.users.FindByID(ctx, uid)
	if err != nil {
		return UserProfile{}, s.translateRepoError(err)
	}

	if cmd.FirstName != nil {
		profile.FirstName = strings.TrimSpace(*cmd.FirstName)
	}
	if cmd.LastName != nil {
		profile.LastName = strings.TrimSpace(*cmd.LastName)
	}
	if cmd.Locale != nil {
		profile.Locale = strings.TrimSpace(*cmd.Locale)
	}
	profile.UpdatedAt = s.now()

	saved, err := s.users.Upsert(ctx, profile)
	if err != nil {
		return UserProfile{}, s.translateRepoError(err)
	}
	return saved, nil
}

// ListAddresses returns the user's addresses with the default first.
func (s *userService) ListAddresses(ctx context.Context, userID string) ([]Address, error) {
	if s == nil || s.addresses == nil {
		return nil, ErrUserUnavailable
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, ErrUserInvalidInput
	}

	addresses, err := s.addresses.List(ctx, uid)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return addresses, nil
}

// UpsertAddress creates a new address or updates an existing one. The first
// address a user stores becomes their default.
func (s *userService) UpsertAddress(ctx context.Context, cmd UpsertAddressCommand) (Address, error) {
	if s == nil || s.addresses == nil {
		return Address{}, ErrUserUnavailable
	}
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return Address{}, ErrUserInvalidInput
	}

	addr := cmd.Address
	addr.UserID = uid
	addr.Street = strings.TrimSpace(addr.Street)
	addr.City = strings.TrimSpace(addr.City)
	addr.PostalCode = strings.TrimSpace(addr.PostalCode)
	addr.Country = strings.TrimSpace(addr.Country)
	if addr.Street == "" || addr.City == "" || addr.PostalCode == "" || addr.Country == "" {
		return Address{}, ErrUserInvalidInput
	}

	if cmd.AddressID != nil {
		id := strings.TrimSpace(*cmd.AddressID)
		if id == "" {
			return Address{}, ErrUserInvalidInput
		}
		if _, err := s.addresses.Get(ctx, uid, id); err != nil {
			return Address{}, s.translateRepoError(err)
		}
		addr.ID = id
	} else {
		addr.ID = s.newID()
		existing, err := s.addresses.List(ctx, uid)
		if err != nil {
			return Address{}, s.translateRepoError(err)
		}
		if len(existing) == 0 {
			addr.IsDefault = true
		}
	}

	saved, err := s.addresses.Upsert(ctx, uid, addr)
	if err != nil {
		return Address{}, s.translateRepoError(err)
	}
	return saved, nil
}

// DeleteAddress removes an address owned by the user.
func (s *userService) DeleteAddress(ctx context.Context, cmd DeleteAddressCommand) error {
	if s == nil || s.addresses == nil {
		return ErrUserUnavailable
	}
	uid := strings.TrimSpace(cmd.UserID)
	addressID := strings.TrimSpace(cmd.AddressID)
	if uid == "" || addressID == "" {
		return ErrUserInvalidInput
	}

	if err := s.addresses.Delete(ctx, uid, addressID); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

// SetDefaultAddress marks the address as the user's default, clearing the
// flag on every other address.
func (s *userService) SetDefaultAddress(ctx context.Context, cmd SetDefaultAddressCommand) (Address, error) {
	if s == nil || s.addresses == nil {
		return Address{}, ErrUserUnavailable
	}
	uid := strings.TrimSpace(cmd.UserID)
	addressID := strings.TrimSpace(cmd.AddressID)
	if uid == "" || addressID == "" {
		return Address{}, ErrUserInvalidInput
	}

	addr, err := s.addresses.SetDefault(ctx, uid, addressID)
	if err != nil {
		return Address{}, s.translateRepoError(err)
	}
	return addr, nil
}

func normaliseRole(role string) string {
	r := strings.ToLower(strings.TrimSpace(role))
	switch r {
	case auth.RoleClient, auth.RoleTechnician, auth.RoleManager, auth.RoleAdmin:
		return r
	default:
		return auth.RoleClient
	}
}

func (s *userService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		if repoErr.IsNotFound() {
			return ErrUserNotFound
		}
		return ErrUserUnavailable
	}
	return ErrUserUnavailable
}
