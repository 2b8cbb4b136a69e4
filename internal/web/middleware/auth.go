package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/diogotoporcov/Finder2/internal/database"
	"github.com/diogotoporcov/Finder2/internal/database/postgres"
)

type contextKey string

const ownerContextKey contextKey = "owner"

// OwnerResolver maps an API key to the account that owns it.
type OwnerResolver interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*database.User, error)
}

// RequireAPIKey is middleware that resolves the X-API-Key header to an owner
// and stores it in the request context.
func RequireAPIKey(resolver OwnerResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				http.Error(w, `{"error": "missing API key"}`, http.StatusUnauthorized)
				return
			}

			owner, err := resolver.GetByAPIKey(r.Context(), apiKey)
			if err != nil {
				if errors.Is(err, postgres.ErrUserNotFound) {
					http.Error(w, `{"error": "invalid API key"}`, http.StatusUnauthorized)
					return
				}
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), ownerContextKey, owner)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OwnerFromContext retrieves the authenticated owner from the request context.
func OwnerFromContext(ctx context.Context) *database.User {
	owner, ok := ctx.Value(ownerContextKey).(*database.User)
	if !ok {
		return nil
	}
	return owner
}

// SetOwnerInContext adds an owner to the context.
// This is primarily for testing - use RequireAPIKey middleware in production.
func SetOwnerInContext(ctx context.Context, owner *database.User) context.Context {
	return context.WithValue(ctx, ownerContextKey, owner)
}
