package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/pairbox-app/pairbox/internal/apperrors"
	"github.com/pairbox-app/pairbox/internal/handlers/middleware"
	"github.com/pairbox-app/pairbox/internal/handlers/render"
	"github.com/pairbox-app/pairbox/internal/handlers/userctx"
	"github.com/pairbox-app/pairbox/internal/logger"
	"github.com/pairbox-app/pairbox/internal/models"
)

type tokenPairResponse struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func pairToResponse(pair models.TokenPair) tokenPairResponse {
	return tokenPairResponse{
		AccessToken:      pair.Access.Value,
		AccessExpiresAt:  pair.Access.ExpiresAt,
		RefreshToken:     pair.Refresh.Value,
		RefreshExpiresAt: pair.Refresh.ExpiresAt,
	}
}

// renderAuthError maps the credential error taxonomy to status codes.
// Anything unrecognized is a 500: the taxonomy is closed, so an unknown
// error means a bug, not a client problem.
func renderAuthError(w http.ResponseWriter, l logger.Logger, err error) {
	switch {
	case errors.Is(err, apperrors.ErrMissingCredential):
		render.ServiceError(w, "Credential is missing", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrInvalidToken),
		errors.Is(err, apperrors.ErrExpiredToken),
		errors.Is(err, apperrors.ErrTokenRevoked),
		errors.Is(err, apperrors.ErrInvalidCredentials):
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrCredentialsConflict):
		render.ServiceError(w, "Conflict", http.StatusConflict)
	case errors.Is(err, apperrors.ErrUpstreamUnavailable):
		l.Error("upstream unavailable", "error", err.Error())
		render.ServiceError(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
	default:
		l.Error("unexpected error", "error", err.Error())
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func handleRegister(s authService, l logger.Logger) http.Handler {
	type registerRequest struct {
		Username string `json:"username" validate:"required,min=2,max=50"`
		Password string `json:"password" validate:"required,min=8,max=128"`
	}
	type registerResponse struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[registerRequest](w, r)
		if err != nil {
			return
		}

		_, err = s.Register(r.Context(), data.Username, data.Password)
		if err != nil {
			if errors.Is(err, apperrors.ErrCredentialsConflict) {
				render.ServiceError(w, "Username already taken", http.StatusConflict)
				return
			}
			renderAuthError(w, l, err)
			return
		}

		render.JSONWithStatus(w, registerResponse{Message: "User registered successfully"}, http.StatusCreated)
	})
}

func handleLogin(s authService, l logger.Logger) http.Handler {
	type loginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[loginRequest](w, r)
		if err != nil {
			return
		}

		pair, err := s.Login(r.Context(), data.Username, data.Password)
		if err != nil {
			// Never tell which half of the credentials failed
			if errors.Is(err, apperrors.ErrInvalidCredentials) {
				render.ServiceError(w, "Invalid username or password", http.StatusUnauthorized)
				return
			}
			renderAuthError(w, l, err)
			return
		}

		render.JSON(w, pairToResponse(pair))
	})
}

func handleTokenRefresh(s authService, l logger.Logger) http.Handler {
	type refreshRequest struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[refreshRequest](w, r)
		if err != nil {
			return
		}

		pair, err := s.Refresh(r.Context(), data.RefreshToken)
		if err != nil {
			renderAuthError(w, l, err)
			return
		}

		render.JSON(w, pairToResponse(pair))
	})
}

func handleLogout(s authService, l logger.Logger) http.Handler {
	type logoutResponse struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := s.Logout(r.Context(), middleware.BearerToken(r))
		if err != nil {
			renderAuthError(w, l, err)
			return
		}

		render.JSON(w, logoutResponse{Message: "Logged out successfully"})
	})
}

func handleUserMe() http.Handler {
	type meResponse struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		render.JSON(w, meResponse{ID: user.ID.String(), Username: user.Username})
	})
}
