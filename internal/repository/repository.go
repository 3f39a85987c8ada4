package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/pairbox-app/pairbox/internal/models"
)

// User repository interface
type UserRepo interface {
	// Create user
	// If user with username exists already has to return apperrors.ErrCredentialsConflict
	CreateUser(ctx context.Context, username string, hashedPassword string) (models.User, error)

	// Get user by it's id or username
	// If user not found must return apperrors.ErrCredentialsConflict
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)

	// Set or clear (hash == nil) the user's refresh token hash.
	// The column is the single session slot: the last write wins and
	// whatever raw token hashed to the previous value stops working.
	SetRefreshHash(ctx context.Context, userID uuid.UUID, hash *string) error
}

// Upload registration repository interface
type UploadRepo interface {
	CreateUpload(ctx context.Context, upload models.Upload) (models.Upload, error)
	GetUpload(ctx context.Context, uploadID uuid.UUID) (models.Upload, error)
}

// Storage aggregates all repositories over a single connection or transaction
type Storage interface {
	User() UserRepo
	Upload() UploadRepo
}
