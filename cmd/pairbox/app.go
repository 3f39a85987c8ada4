package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pairbox-app/pairbox/internal/db"
	"github.com/pairbox-app/pairbox/internal/handlers"
	"github.com/pairbox-app/pairbox/internal/keyval"
	"github.com/pairbox-app/pairbox/internal/logger"
	"github.com/pairbox-app/pairbox/internal/repository/postgres"
	"github.com/pairbox-app/pairbox/internal/service/auth"
	"github.com/pairbox-app/pairbox/internal/service/auth/tokencodec"
	"github.com/pairbox-app/pairbox/internal/service/idempotency"
	"github.com/pairbox-app/pairbox/internal/service/media"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	if c.SecretKey == "" {
		return nil, errors.New("secret key must be configured, generate one with cmd/gensecret")
	}

	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Connect to the coordination store
	store, err := keyval.NewRedisStore(ctx, keyval.RedisConfig{Addr: c.RedisAddr})
	if err != nil {
		return nil, fmt.Errorf("error while connecting to redis. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Initialize services
	codec, err := tokencodec.New(tokencodec.Config{
		SecretKey:  c.SecretKey,
		AccessTTL:  c.AccessTokenTTL,
		RefreshTTL: c.RefreshTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("error while creating token codec. Err: %w", err)
	}

	authService, err := auth.NewSessionService(auth.Config{}, codec, storage.User(), store)
	if err != nil {
		return nil, fmt.Errorf("error while creating session service. Err: %w", err)
	}

	gate, err := idempotency.NewGate(idempotency.Config{}, store)
	if err != nil {
		return nil, fmt.Errorf("error while creating idempotency gate. Err: %w", err)
	}

	mediaService, err := media.NewService(gate, storage.Upload())
	if err != nil {
		return nil, fmt.Errorf("error while creating media service. Err: %w", err)
	}

	mux := handlers.NewRouter(authService, mediaService, logger)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
	}, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			slog.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		slog.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	slog.Info("Starting server", "addr", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
