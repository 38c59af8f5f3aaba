package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
)

var (
	// ErrJWKSKeyNotFound is returned when the requested key ID is absent from the key set.
	ErrJWKSKeyNotFound = errors.New("auth: jwks key not found")
	// ErrJWKSFetchFailed wraps transport or decoding errors while loading the key set.
	ErrJWKSFetchFailed = errors.New("auth: jwks fetch failed")
)

// Logger captures the minimal logging contract used by the auth package.
type Logger interface {
	Printf(format string, args ...any)
}

// VerifyObserver receives the outcome of each OIDC verification attempt.
type VerifyObserver func(ctx context.Context, ok bool, reason string, elapsed time.Duration)

const (
	jwksDefaultValidity = 15 * time.Minute
	jwksFetchTimeout    = 5 * time.Second
	iapAssertionHeader  = "X-Goog-Iap-Jwt-Assertion"
)

// JWKSCache caches the Google signing keys used to verify tokens on the
// internal surface. The key set is reloaded on demand once it goes stale and
// prefetched in the background after half of its validity window, so a
// scheduler call rarely pays for the fetch.
type JWKSCache struct {
	url              string
	client           *http.Client
	logger           Logger
	clock            func() time.Time
	validity         time.Duration
	timeout          time.Duration
	prefetchDisabled bool

	mu         sync.RWMutex
	keys       map[string]any
	staleAt    time.Time
	prefetchAt time.Time

	fetchMu     sync.Mutex
	prefetching atomic.Bool
}

// JWKSOption customises JWKSCache behaviour.
type JWKSOption func(*JWKSCache)

// NewJWKSCache constructs a key cache for the given JWKS URL.
func NewJWKSCache(url string, opts ...JWKSOption) *JWKSCache {
	cache := &JWKSCache{
		url:      url,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   log.Default(),
		clock:    time.Now,
		validity: jwksDefaultValidity,
		timeout:  jwksFetchTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cache)
		}
	}
	return cache
}

// WithJWKSHTTPClient overrides the HTTP client used to fetch the key set.
func WithJWKSHTTPClient(client *http.Client) JWKSOption {
	return func(c *JWKSCache) {
		if client != nil {
			c.client = client
		}
	}
}

// WithJWKSLogger sets the logger for key set operations.
func WithJWKSLogger(logger Logger) JWKSOption {
	return func(c *JWKSCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithJWKSValidity sets how long a fetched key set is trusted when the
// response carries no cache headers.
func WithJWKSValidity(d time.Duration) JWKSOption {
	return func(c *JWKSCache) {
		if d > 0 {
			c.validity = d
		}
	}
}

// WithJWKSFetchTimeout bounds each key set fetch.
func WithJWKSFetchTimeout(d time.Duration) JWKSOption {
	return func(c *JWKSCache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithJWKSClock injects the time source used for staleness checks.
func WithJWKSClock(clock func() time.Time) JWKSOption {
	return func(c *JWKSCache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithoutJWKSPrefetch disables the background half-life refresh.
func WithoutJWKSPrefetch() JWKSOption {
	return func(c *JWKSCache) {
		c.prefetchDisabled = true
	}
}

// Keyfunc adapts the cache to the jwt parser. Only RS256 tokens carrying a
// kid header are accepted.
func (c *JWKSCache) Keyfunc(ctx context.Context) jwt.Keyfunc {
	if ctx == nil {
		ctx = context.Background()
	}
	return func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("auth: token missing kid header")
		}
		if token.Method == nil || token.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, fmt.Errorf("auth: unexpected signing method %v", token.Method)
		}
		return c.Key(ctx, kid)
	}
}

// Key resolves the public key for kid, fetching the key set when the cache is
// empty, stale, or does not know the kid yet. The second fetch on a cache
// miss covers key rotation at the issuer.
func (c *JWKSCache) Key(ctx context.Context, kid string) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if key, ok := c.lookup(kid); ok {
		if c.shouldPrefetch() {
			c.prefetch()
		}
		return key, nil
	}

	if err := c.fetch(ctx); err != nil {
		return nil, err
	}
	if key, ok := c.lookup(kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrJWKSKeyNotFound, kid)
}

func (c *JWKSCache) lookup(kid string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.keys) == 0 {
		return nil, false
	}
	if !c.staleAt.IsZero() && !c.clock().Before(c.staleAt) {
		return nil, false
	}
	key, ok := c.keys[kid]
	return key, ok
}

func (c *JWKSCache) shouldPrefetch() bool {
	if c.prefetchDisabled {
		return false
	}
	c.mu.RLock()
	prefetchAt := c.prefetchAt
	staleAt := c.staleAt
	c.mu.RUnlock()
	if prefetchAt.IsZero() || staleAt.IsZero() {
		return false
	}
	now := c.clock()
	return !now.Before(prefetchAt) && now.Before(staleAt)
}

func (c *JWKSCache) prefetch() {
	if !c.prefetching.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer c.prefetching.Store(false)
		if err := c.fetch(context.Background()); err != nil && c.logger != nil {
			c.logger.Printf("auth: jwks prefetch failed: %v", err)
		}
	}()
}

func (c *JWKSCache) fetch(ctx context.Context) error {
	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", ErrJWKSFetchFailed, resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("%w: decode jwks: %v", ErrJWKSFetchFailed, err)
	}

	keys := make(map[string]any, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.KeyID == "" || !jwk.Valid() {
			continue
		}
		keys[jwk.KeyID] = jwk.Key
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: empty key set", ErrJWKSFetchFailed)
	}

	validity := c.documentValidity(resp.Header)
	now := c.clock()

	c.mu.Lock()
	c.keys = keys
	c.staleAt = now.Add(validity)
	c.prefetchAt = now.Add(validity / 2)
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Printf("auth: loaded %d signing keys, valid for %s", len(keys), validity)
	}
	return nil
}

// documentValidity derives how long the fetched key set stays fresh from the
// response cache headers, falling back to the configured default.
func (c *JWKSCache) documentValidity(header http.Header) time.Duration {
	if directive := header.Get("Cache-Control"); directive != "" {
		for _, part := range strings.Split(directive, ",") {
			name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
			if !ok || !strings.EqualFold(name, "max-age") {
				continue
			}
			if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}
	if expires := header.Get("Expires"); expires != "" {
		if ts, err := http.ParseTime(expires); err == nil {
			if remaining := ts.Sub(c.clock()); remaining > 0 {
				return remaining
			}
		}
	}
	return c.validity
}

// OIDCValidator verifies Google-signed OIDC and IAP tokens on the internal
// surface, where the order scheduler and other services call in.
type OIDCValidator struct {
	keys    *JWKSCache
	logger  Logger
	observe VerifyObserver
	clock   func() time.Time
}

// OIDCOption customises the validator.
type OIDCOption func(*OIDCValidator)

// NewOIDCValidator constructs a validator on top of the key cache.
func NewOIDCValidator(keys *JWKSCache, opts ...OIDCOption) *OIDCValidator {
	validator := &OIDCValidator{
		keys:   keys,
		logger: log.Default(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(validator)
		}
	}
	return validator
}

// WithOIDCLogger overrides the validator logger.
func WithOIDCLogger(logger Logger) OIDCOption {
	return func(v *OIDCValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithOIDCObserver registers a callback for verification outcomes.
func WithOIDCObserver(observe VerifyObserver) OIDCOption {
	return func(v *OIDCValidator) {
		v.observe = observe
	}
}

// WithOIDCClock injects the time source used for duration measurement.
func WithOIDCClock(clock func() time.Time) OIDCOption {
	return func(v *OIDCValidator) {
		if clock != nil {
			v.clock = clock
		}
	}
}

// ServiceIdentity describes the authenticated service principal.
type ServiceIdentity struct {
	Subject  string
	Email    string
	Issuer   string
	Audience string

	Token  *jwt.Token
	Claims map[string]any
}

type serviceIdentityContextKey struct{}

// WithServiceIdentity attaches the verified service identity to the context.
func WithServiceIdentity(ctx context.Context, identity *ServiceIdentity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, serviceIdentityContextKey{}, identity)
}

// ServiceIdentityFromContext retrieves the identity stored by RequireOIDC.
func ServiceIdentityFromContext(ctx context.Context) (*ServiceIdentity, bool) {
	identity, ok := ctx.Value(serviceIdentityContextKey{}).(*ServiceIdentity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// RequireOIDC rejects requests that do not carry a valid Google-signed token
// for the given audience from one of the trusted issuers.
func (v *OIDCValidator) RequireOIDC(audience string, issuers []string) func(http.Handler) http.Handler {
	audience = strings.TrimSpace(audience)
	trusted := make(map[string]struct{}, len(issuers))
	for _, issuer := range issuers {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			trusted[issuer] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := v.clock()
			ctx := r.Context()

			if audience == "" || v.keys == nil {
				v.report(ctx, false, "not_configured", started)
				respondAuthError(w, http.StatusServiceUnavailable, "verification_unavailable", "oidc verification not configured")
				return
			}

			raw := serviceToken(r)
			if raw == "" {
				v.report(ctx, false, "token_missing", started)
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "oidc token missing")
				return
			}

			identity, reason, err := v.verify(ctx, raw, audience, trusted)
			if err != nil {
				if v.logger != nil {
					v.logger.Printf("auth: oidc verification failed (%s): %v", reason, err)
				}
				v.report(ctx, false, reason, started)
				if reason == "jwks_unavailable" {
					respondAuthError(w, http.StatusServiceUnavailable, "verification_unavailable", "oidc verification unavailable")
					return
				}
				respondAuthError(w, http.StatusUnauthorized, "invalid_token", "oidc token verification failed")
				return
			}

			v.report(ctx, true, "ok", started)
			next.ServeHTTP(w, r.WithContext(WithServiceIdentity(ctx, identity)))
		})
	}
}

func (v *OIDCValidator) verify(ctx context.Context, raw, audience string, trusted map[string]struct{}) (*ServiceIdentity, string, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	claims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(raw, claims, v.keys.Keyfunc(ctx))
	if err != nil {
		if errors.Is(err, ErrJWKSFetchFailed) {
			return nil, "jwks_unavailable", err
		}
		return nil, "token_invalid", err
	}

	issuer, _ := claims["iss"].(string)
	if len(trusted) > 0 {
		if _, ok := trusted[issuer]; !ok {
			return nil, "issuer_mismatch", fmt.Errorf("auth: issuer %q not trusted", issuer)
		}
	}
	if !claimsHaveAudience(claims, audience) {
		return nil, "audience_mismatch", fmt.Errorf("auth: token not issued for %q", audience)
	}

	email, _ := claims["email"].(string)
	subject, _ := claims["sub"].(string)
	copied := make(map[string]any, len(claims))
	for name, value := range claims {
		copied[name] = value
	}

	return &ServiceIdentity{
		Subject:  subject,
		Email:    email,
		Issuer:   issuer,
		Audience: audience,
		Token:    token,
		Claims:   copied,
	}, "", nil
}

func (v *OIDCValidator) report(ctx context.Context, ok bool, reason string, started time.Time) {
	if v == nil || v.observe == nil {
		return
	}
	v.observe(ctx, ok, reason, v.clock().Sub(started))
}

// serviceToken pulls the caller token from the Authorization header, or from
// the assertion header IAP sets when it fronts the service.
func serviceToken(r *http.Request) string {
	if bearer, ok := extractBearerToken(r.Header.Get("Authorization")); ok {
		return bearer
	}
	return strings.TrimSpace(r.Header.Get(iapAssertionHeader))
}

func claimsHaveAudience(claims jwt.MapClaims, audience string) bool {
	switch aud := claims["aud"].(type) {
	case string:
		return strings.TrimSpace(aud) == audience
	case []string:
		for _, item := range aud {
			if strings.TrimSpace(item) == audience {
				return true
			}
		}
	case []any:
		for _, item := range aud {
			if str, ok := item.(string); ok && strings.TrimSpace(str) == audience {
				return true
			}
		}
	}
	return false
}
