package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/pairbox-app/pairbox/internal/apperrors"
	"github.com/pairbox-app/pairbox/internal/handlers/render"
	"github.com/pairbox-app/pairbox/internal/handlers/userctx"
	"github.com/pairbox-app/pairbox/internal/models"
)

type sessionService interface {
	// Validate the raw access token and return its user
	GetUser(ctx context.Context, rawAccess string) (models.User, error)
}

// AuthMiddleware rejects requests without a live access token and puts
// the authenticated user into the request context
func AuthMiddleware(s sessionService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := s.GetUser(r.Context(), BearerToken(r))
			if err != nil {
				if errors.Is(err, apperrors.ErrUpstreamUnavailable) {
					render.ServiceError(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
					return
				}
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := userctx.New(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from the Authorization header.
// Returns empty string if the header is absent or not a bearer scheme.
func BearerToken(r *http.Request) string {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
