package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	Username       string
	HashedPassword string

	// Digest of the currently valid raw refresh token.
	// nil means the user has no active session.
	RefreshHash *string
}
