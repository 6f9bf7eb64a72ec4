package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
)

type stubTokenVerifier struct {
	token    *firebaseauth.Token
	err      error
	received string
}

func (s *stubTokenVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	s.received = idToken
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

type stubUserGetter struct {
	record  *firebaseauth.UserRecord
	calls   int
	lastUID string
}

func (s *stubUserGetter) GetUser(ctx context.Context, uid string) (*firebaseauth.UserRecord, error) {
	s.calls++
	s.lastUID = uid
	return s.record, nil
}

func TestRequireFirebaseAuth_AllowsValidToken(t *testing.T) {
	verifier := &stubTokenVerifier{
		token: &firebaseauth.Token{
			UID: "uid-123",
			Claims: map[string]interface{}{
				"role":  []interface{}{"ops", "admin"},
				"email": "ops@brandspark.example",
			},
		},
	}
	userGetter := &stubUserGetter{record: &firebaseauth.UserRecord{UserInfo: &firebaseauth.UserInfo{UID: "uid-123", Email: "ops@brandspark.example"}}}

	authn := NewAuthenticator(verifier, WithUserGetter(userGetter))

	handlerCalled := false
	handler := authn.RequireFirebaseAuth(RoleOps)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true

		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if identity.UID != "uid-123" {
			t.Fatalf("unexpected uid %s", identity.UID)
		}
		if identity.Email != "ops@brandspark.example" {
			t.Fatalf("unexpected email %s", identity.Email)
		}
		if !identity.HasRole(RoleAdmin) || !identity.HasRole(RoleOps) {
			t.Fatalf("expected staff and admin roles, got %v", identity.Roles)
		}

		record, err := identity.User(r.Context())
		if err != nil {
			t.Fatalf("User returned error: %v", err)
		}
		if record == nil || record.UID != "uid-123" {
			t.Fatalf("unexpected user record %+v", record)
		}

		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer token-abc")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if !handlerCalled {
		t.Fatal("expected handler to be called")
	}
	if rr.Code != http.StatusNoContent {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	if verifier.received != "token-abc" {
		t.Fatalf("verifier received token %q", verifier.received)
	}
	if userGetter.calls != 1 {
		t.Fatalf("expected single user lookup, got %d", userGetter.calls)
	}
}

func TestRequireFirebaseAuth_MissingHeader(t *testing.T) {
	authn := NewAuthenticator(&stubTokenVerifier{})

	handler := authn.RequireFirebaseAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run without authorization header")
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	var payload map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed decoding error payload: %v", err)
	}
	if payload["error"] != "unauthenticated" {
		t.Fatalf("unexpected error code %v", payload["error"])
	}
}

func TestRequireFirebaseAuth_VerificationError(t *testing.T) {
	authn := NewAuthenticator(&stubTokenVerifier{err: errors.New("bad token")})

	handler := authn.RequireFirebaseAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run when verification fails")
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer broken")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRequireFirebaseAuth_InsufficientRole(t *testing.T) {
	verifier := &stubTokenVerifier{
		token: &firebaseauth.Token{
			UID:    "uid-55",
			Claims: map[string]interface{}{"role": "support"},
		},
	}
	authn := NewAuthenticator(verifier)

	handler := authn.RequireFirebaseAuth(RoleAdmin)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run for insufficient role")
	}))

	req := httptest.NewRequest(http.MethodPost, "/orders/bulk-status", nil)
	req.Header.Set("Authorization", "Bearer token")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRequireFirebaseAuth_FallbackRole(t *testing.T) {
	verifier := &stubTokenVerifier{
		token: &firebaseauth.Token{UID: "uid-77", Claims: map[string]interface{}{}},
	}
	authn := NewAuthenticator(verifier)

	handler := authn.RequireFirebaseAuth(RoleSupport)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := IdentityFromContext(r.Context())
		if !identity.HasRole(RoleSupport) {
			t.Fatalf("expected fallback seller role, got %v", identity.Roles)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer token")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}
