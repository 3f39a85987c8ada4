// Package media registers file uploads. Registration is the one
// mutating operation clients retry aggressively (mobile uploads over
// flaky links), so it runs behind the idempotency gate.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pairbox-app/pairbox/internal/models"
	"github.com/pairbox-app/pairbox/internal/repository"
	"github.com/pairbox-app/pairbox/internal/service/idempotency"
)

type RegisterUploadParams struct {
	AlbumID     uuid.UUID
	Filename    string
	ContentType string
	SizeBytes   int64
}

// Registration is the caller-visible outcome. It is what gets cached by
// the gate, so a replayed request returns exactly these bytes.
type Registration struct {
	UploadID  uuid.UUID `json:"upload_id"`
	AlbumID   uuid.UUID `json:"album_id"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`

	// Replayed reports whether this response was served from the
	// idempotency cache instead of performing the registration again
	Replayed bool `json:"-"`
}

type MediaService struct {
	gate    *idempotency.Gate
	uploads repository.UploadRepo
}

func NewService(gate *idempotency.Gate, uploads repository.UploadRepo) (*MediaService, error) {
	if gate == nil || uploads == nil {
		return nil, errors.New("gate and upload repo must not be nil")
	}

	return &MediaService{gate: gate, uploads: uploads}, nil
}

// RegisterUpload creates the upload record at most once per
// (user, idempotency key). A retry with the same key gets the original
// registration back; a concurrent duplicate gets
// apperrors.ErrRequestInProgress.
func (s *MediaService) RegisterUpload(ctx context.Context, userID uuid.UUID, idemKey uuid.UUID, params RegisterUploadParams) (Registration, error) {
	admission, err := s.gate.Admit(ctx, idempotency.ScopeUpload, userID, idemKey)
	if err != nil {
		return Registration{}, err
	}

	if !admission.Admitted {
		var cached Registration
		if err := json.Unmarshal(admission.Response, &cached); err != nil {
			return Registration{}, fmt.Errorf("error while decoding cached registration. Err: %w", err)
		}
		cached.Replayed = true
		return cached, nil
	}

	upload, err := s.uploads.CreateUpload(ctx, models.Upload{
		UserID:      userID,
		AlbumID:     params.AlbumID,
		Filename:    params.Filename,
		ContentType: params.ContentType,
		SizeBytes:   params.SizeBytes,
	})
	if err != nil {
		// Free the slot so the client may retry right away instead of
		// waiting out the record TTL
		_ = s.gate.Release(ctx, idempotency.ScopeUpload, userID, idemKey)
		return Registration{}, err
	}

	registration := Registration{
		UploadID:  upload.ID,
		AlbumID:   upload.AlbumID,
		Filename:  upload.Filename,
		CreatedAt: upload.CreatedAt,
	}

	response, err := json.Marshal(registration)
	if err != nil {
		return Registration{}, fmt.Errorf("error while encoding registration. Err: %w", err)
	}

	if err := s.gate.Finalize(ctx, idempotency.ScopeUpload, userID, idemKey, response); err != nil {
		// The upload is committed; the record stays PROCESSING until
		// its TTL frees the slot. Surface the store failure anyway.
		return Registration{}, err
	}

	return registration, nil
}
