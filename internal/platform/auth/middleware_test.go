package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
)

type verifierStub struct {
	token    *firebaseauth.Token
	err      error
	received string
}

func (s *verifierStub) VerifyIDToken(_ context.Context, idToken string) (*firebaseauth.Token, error) {
	s.received = idToken
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

type userGetterStub struct {
	record  *firebaseauth.UserRecord
	calls   int
	lastUID string
}

func (s *userGetterStub) GetUser(_ context.Context, uid string) (*firebaseauth.UserRecord, error) {
	s.calls++
	s.lastUID = uid
	return s.record, nil
}

func customerToken(uid string, claims map[string]any) *firebaseauth.Token {
	if claims == nil {
		claims = map[string]any{}
	}
	return &firebaseauth.Token{UID: uid, Claims: claims}
}

func TestRequireFirebaseAuthAttachesIdentity(t *testing.T) {
	verifier := &verifierStub{token: customerToken("uid-123", map[string]any{
		"role":   []any{"manager", "admin"},
		"locale": "fr-FR",
		"email":  "marie@example.com",
	})}
	users := &userGetterStub{record: &firebaseauth.UserRecord{
		UserInfo: &firebaseauth.UserInfo{UID: "uid-123", Email: "marie@example.com"},
	}}

	authn := NewAuthenticator(verifier, WithUserGetter(users))

	var handlerRan bool
	handler := authn.RequireFirebaseAuth(RoleManager)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerRan = true

		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatal("expected identity in context")
		}
		if identity.UID != "uid-123" || identity.Email != "marie@example.com" || identity.Locale != "fr-FR" {
			t.Fatalf("unexpected identity: %+v", identity)
		}
		if !identity.HasRole(RoleManager) || !identity.HasRole(RoleAdmin) {
			t.Fatalf("expected manager and admin roles, got %v", identity.Roles)
		}

		// The user record loads once and is memoised on the identity.
		first, err := identity.User(r.Context())
		if err != nil {
			t.Fatalf("user load: %v", err)
		}
		second, err := identity.User(r.Context())
		if err != nil {
			t.Fatalf("second user load: %v", err)
		}
		if first != second {
			t.Fatal("expected cached user record")
		}

		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer id-token-value")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent || !handlerRan {
		t.Fatalf("expected handler to run with 204, got %d", rr.Code)
	}
	if verifier.received != "id-token-value" {
		t.Fatalf("verifier received %q", verifier.received)
	}
	if users.calls != 1 || users.lastUID != "uid-123" {
		t.Fatalf("expected one user fetch for uid-123, got %d for %q", users.calls, users.lastUID)
	}
}

func TestRequireFirebaseAuthRejectsExpiredToken(t *testing.T) {
	authn := NewAuthenticator(&verifierStub{err: ErrTokenExpired})

	handler := authn.RequireFirebaseAuth(RoleClient)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run for an expired token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer expired-token")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON error body: %v", err)
	}
	if body["error"] != "token_expired" {
		t.Fatalf("expected token_expired, got %v", body["error"])
	}
}

func TestRequireFirebaseAuthRejectsMissingBearer(t *testing.T) {
	authn := NewAuthenticator(&verifierStub{token: customerToken("uid-1", nil)})

	handler := authn.RequireFirebaseAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run without a bearer token")
	}))

	for _, header := range []string{"", "Basic abc", "Bearer", "Bearer   "} {
		req := httptest.NewRequest(http.MethodGet, "/cart", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rr.Code)
		}
	}
}

func TestRequireFirebaseAuthDefaultsNewCustomersToClient(t *testing.T) {
	authn := NewAuthenticator(&verifierStub{token: customerToken("uid-456", nil)})

	handler := authn.RequireFirebaseAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatal("expected identity in context")
		}
		if len(identity.Roles) != 1 || identity.Roles[0] != RoleClient {
			t.Fatalf("expected fallback role %q, got %v", RoleClient, identity.Roles)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set("Authorization", "Bearer no-role-token")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}

func TestRequireFirebaseAuthEnforcesRoleRestriction(t *testing.T) {
	authn := NewAuthenticator(&verifierStub{token: customerToken("uid-789", map[string]any{
		"role": RoleClient,
	})})

	handler := authn.RequireFirebaseAuth(RoleTechnician, RoleAdmin)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run for a plain customer")
	}))

	req := httptest.NewRequest(http.MethodGet, "/internal-tools", nil)
	req.Header.Set("Authorization", "Bearer client-token")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON error body: %v", err)
	}
	if body["error"] != "insufficient_role" {
		t.Fatalf("expected insufficient_role, got %v", body["error"])
	}
}
