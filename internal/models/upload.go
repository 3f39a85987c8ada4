package models

import (
	"time"

	"github.com/google/uuid"
)

// Upload is the persisted registration of a media file. The bytes
// themselves live in object storage and are out of scope here.
type Upload struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	AlbumID     uuid.UUID
	CreatedAt   time.Time
	Filename    string
	ContentType string
	SizeBytes   int64
}
