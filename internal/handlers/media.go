package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/pairbox-app/pairbox/internal/apperrors"
	"github.com/pairbox-app/pairbox/internal/handlers/render"
	"github.com/pairbox-app/pairbox/internal/handlers/userctx"
	"github.com/pairbox-app/pairbox/internal/logger"
	"github.com/pairbox-app/pairbox/internal/service/media"
)

// Clients send the idempotency key in this header, a v4 UUID they
// generate once per logical request and keep across retries
const idempotencyKeyHeader = "Idempotency-Key"

func handleRegisterUpload(s mediaService, l logger.Logger) http.Handler {
	type uploadRequest struct {
		AlbumID     uuid.UUID `json:"album_id" validate:"required"`
		Filename    string    `json:"filename" validate:"required,max=255"`
		ContentType string    `json:"content_type" validate:"required,max=100"`
		SizeBytes   int64     `json:"size_bytes" validate:"required,gt=0"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		idemKey, err := uuid.Parse(r.Header.Get(idempotencyKeyHeader))
		if err != nil || idemKey.Version() != 4 {
			render.ServiceError(w, "Idempotency-Key header must be a v4 UUID", http.StatusBadRequest)
			return
		}

		data, err := render.BindAndValidate[uploadRequest](w, r)
		if err != nil {
			return
		}

		registration, err := s.RegisterUpload(r.Context(), user.ID, idemKey, media.RegisterUploadParams{
			AlbumID:     data.AlbumID,
			Filename:    data.Filename,
			ContentType: data.ContentType,
			SizeBytes:   data.SizeBytes,
		})
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrRequestInProgress):
				// Signal to back off or poll, never to re-execute
				render.ServiceError(w, "Request is already in progress", http.StatusConflict)
			case errors.Is(err, apperrors.ErrUpstreamUnavailable):
				l.Error("upstream unavailable", "error", err.Error())
				render.ServiceError(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
			default:
				l.Error("upload registration failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		status := http.StatusCreated
		if registration.Replayed {
			status = http.StatusOK
		}
		render.JSONWithStatus(w, registration, status)
	})
}
