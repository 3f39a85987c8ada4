package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/pairbox-app/pairbox/internal/handlers/middleware"
	"github.com/pairbox-app/pairbox/internal/logger"
	"github.com/pairbox-app/pairbox/internal/models"
	"github.com/pairbox-app/pairbox/internal/service/media"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authService authService,
	mediaService mediaService,
	logger logger.Logger,
) http.Handler {
	authMiddleware := middleware.AuthMiddleware(authService)
	withAuth := func(h http.Handler) http.Handler {
		return authMiddleware(h)
	}

	api := http.NewServeMux()

	api.Handle("POST /auth/register", handleRegister(authService, logger))
	api.Handle("POST /auth/login", handleLogin(authService, logger))
	api.Handle("POST /auth/refresh", handleTokenRefresh(authService, logger))
	api.Handle("POST /auth/logout", handleLogout(authService, logger))
	api.Handle("GET /auth/me", withAuth(handleUserMe()))

	api.Handle("POST /media/uploads", withAuth(handleRegisterUpload(mediaService, logger)))

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))

	return chain(root,
		middleware.LoggerMiddleware(logger),
	)
}

type authService interface {
	// Register user with username and password
	// Has to return apperrors.ErrCredentialsConflict if the username is taken
	Register(ctx context.Context, username string, password string) (models.User, error)

	// Login user with username and password
	// Has to return apperrors.ErrInvalidCredentials both for an unknown
	// username and a wrong password
	Login(ctx context.Context, username string, password string) (models.TokenPair, error)

	// Rotate tokens using a raw refresh token
	Refresh(ctx context.Context, rawRefresh string) (models.TokenPair, error)

	// Revoke the access token and end the session
	Logout(ctx context.Context, rawAccess string) error

	// Validate the access token and return its user
	GetUser(ctx context.Context, rawAccess string) (models.User, error)
}

type mediaService interface {
	RegisterUpload(ctx context.Context, userID uuid.UUID, idemKey uuid.UUID, params media.RegisterUploadParams) (media.Registration, error)
}
