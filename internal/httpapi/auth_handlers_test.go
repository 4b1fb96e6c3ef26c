package httpapi

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/florianweber/lena/internal/store"
)

func TestHashToken(t *testing.T) {
	token := "test-token-123"

	hash1 := hashToken(token)
	hash2 := hashToken(token)

	// Same token should produce same hash
	if hash1 != hash2 {
		t.Error("same token should produce same hash")
	}

	// Hash should be hex-encoded SHA256 (64 characters)
	if len(hash1) != 64 {
		t.Errorf("hash length = %d, want 64", len(hash1))
	}

	// Different tokens should produce different hashes
	hash3 := hashToken("different-token")
	if hash1 == hash3 {
		t.Error("different tokens should produce different hashes")
	}
}

func TestJWTGeneration(t *testing.T) {
	r := &Router{
		cfg: RouterConfig{
			JWTSecret: "test-secret-key",
			JWTExpiry: 1 * time.Hour,
		},
	}

	user := &store.StaffUser{
		ID:    "user-123",
		Email: "staff@example.com",
		Role:  "staff",
	}

	tokenString, expiresAt, err := r.generateJWT(user)
	if err != nil {
		t.Fatalf("generateJWT failed: %v", err)
	}
	if tokenString == "" {
		t.Fatal("token should not be empty")
	}
	if time.Until(expiresAt) > time.Hour || time.Until(expiresAt) < 55*time.Minute {
		t.Errorf("expiry = %v, want ~1h from now", expiresAt)
	}

	// Parse it back and verify claims
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte("test-secret-key"), nil
	})
	if err != nil || !token.Valid {
		t.Fatalf("token should parse and validate: %v", err)
	}
	claims := token.Claims.(*JWTClaims)
	if claims.UserID != "user-123" || claims.Email != "staff@example.com" || claims.Role != "staff" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestWithAuthMiddleware(t *testing.T) {
	r := &Router{
		cfg: RouterConfig{
			JWTSecret: "test-secret-key",
			JWTExpiry: 1 * time.Hour,
		},
		logger: log.New(io.Discard, "", 0),
	}

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		user := getAuthUser(req.Context())
		if user == nil {
			t.Error("auth user should be in context")
			http.Error(w, "no user", http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(user.ID))
	})

	protected := r.withAuth(testHandler)

	t.Run("missing authorization header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		rec := httptest.NewRecorder()

		protected(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("invalid authorization format", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "InvalidFormat")
		rec := httptest.NewRecorder()

		protected(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer invalid-token")
		rec := httptest.NewRecorder()

		protected(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("valid token passes through", func(t *testing.T) {
		// Without a store the revocation check is skipped
		token, _, err := r.generateJWT(&store.StaffUser{ID: "user-1", Email: "s@example.com", Role: "staff"})
		if err != nil {
			t.Fatalf("generateJWT failed: %v", err)
		}

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		protected(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		if rec.Body.String() != "user-1" {
			t.Errorf("body = %q, want user ID", rec.Body.String())
		}
	})

	t.Run("token signed with wrong secret", func(t *testing.T) {
		other := &Router{
			cfg:    RouterConfig{JWTSecret: "other-secret", JWTExpiry: time.Hour},
			logger: log.New(io.Discard, "", 0),
		}
		token, _, err := other.generateJWT(&store.StaffUser{ID: "user-1", Email: "s@example.com"})
		if err != nil {
			t.Fatalf("generateJWT failed: %v", err)
		}

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		protected(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})
}

func TestLoginValidation(t *testing.T) {
	r := &Router{
		cfg:    RouterConfig{JWTSecret: "test-secret", JWTExpiry: time.Hour},
		logger: log.New(io.Discard, "", 0),
	}

	t.Run("missing credentials", func(t *testing.T) {
		body := `{"email": "", "password": ""}`
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
		rec := httptest.NewRecorder()

		r.handleLogin(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("invalid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("not json"))
		rec := httptest.NewRecorder()

		r.handleLogin(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("no store configured", func(t *testing.T) {
		body := `{"email": "staff@example.com", "password": "secret"}`
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
		rec := httptest.NewRecorder()

		r.handleLogin(rec, req)

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
		}
	})
}

func TestGetAuthUser(t *testing.T) {
	t.Run("no user in context", func(t *testing.T) {
		if getAuthUser(context.Background()) != nil {
			t.Error("expected nil user for empty context")
		}
	})

	t.Run("user in context", func(t *testing.T) {
		user := &AuthUser{ID: "u1", Email: "s@example.com"}
		ctx := context.WithValue(context.Background(), userContextKey, user)
		if got := getAuthUser(ctx); got != user {
			t.Error("expected stored user")
		}
	})
}
