package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-auth-service/internal/model"
)

type stubResolver struct {
	user model.PublicUser
	err  error
	got  string
}

func (s *stubResolver) ResolveAccessToken(_ context.Context, accessToken string) (model.PublicUser, error) {
	s.got = accessToken
	if s.err != nil {
		return model.PublicUser{}, s.err
	}
	return s.user, nil
}

func TestRequireAuth(t *testing.T) {
	alice := model.PublicUser{ID: "user-1", Username: "alice", Name: "Alice"}

	t.Run("valid bearer token passes user downstream", func(t *testing.T) {
		resolver := &stubResolver{user: alice}
		mw := NewAuthMiddleware(resolver)

		var seen model.PublicUser
		handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			require.True(t, ok)
			seen = user
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		req.Header.Set("Authorization", "Bearer some-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, alice, seen)
		assert.Equal(t, "some-token", resolver.got)
	})

	t.Run("missing header", func(t *testing.T) {
		mw := NewAuthMiddleware(&stubResolver{user: alice})
		handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be reached")
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
	})

	t.Run("non bearer scheme", func(t *testing.T) {
		mw := NewAuthMiddleware(&stubResolver{user: alice})
		handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be reached")
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		req.Header.Set("Authorization", "Basic YWxpY2U6czNjcmV0")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("resolver rejection", func(t *testing.T) {
		mw := NewAuthMiddleware(&stubResolver{err: errors.New("bad token")})
		handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be reached")
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		req.Header.Set("Authorization", "Bearer expired-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestUserFromContextMissing(t *testing.T) {
	_, ok := UserFromContext(context.Background())
	assert.False(t, ok)
}
