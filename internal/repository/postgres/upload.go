package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pairbox-app/pairbox/internal/apperrors"
	"github.com/pairbox-app/pairbox/internal/models"
)

type UploadRepo struct {
	DB DBTX
}

const createUpload = `-- name: CreateUpload
INSERT INTO uploads (id, user_id, album_id, filename, content_type, size_bytes)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, user_id, album_id, created_at, filename, content_type, size_bytes
`

func (r *UploadRepo) CreateUpload(ctx context.Context, upload models.Upload) (models.Upload, error) {
	id := upload.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, createUpload,
		id, upload.UserID, upload.AlbumID, upload.Filename, upload.ContentType, upload.SizeBytes)
	created, err := pgx.CollectOneRow(rows, rowToUpload)
	if err != nil {
		return created, dbError(err)
	}

	return created, nil
}

const getUpload = `-- name: GetUpload
SELECT id, user_id, album_id, created_at, filename, content_type, size_bytes FROM uploads
WHERE id = $1
`

func (r *UploadRepo) GetUpload(ctx context.Context, uploadID uuid.UUID) (models.Upload, error) {
	rows, _ := r.DB.Query(ctx, getUpload, uploadID)
	upload, err := pgx.CollectOneRow(rows, rowToUpload)

	switch {
	case err == nil:
		return upload, nil
	case errors.Is(err, pgx.ErrNoRows):
		return upload, apperrors.ErrUploadNotFound
	default:
		return upload, dbError(err)
	}
}

func rowToUpload(row pgx.CollectableRow) (models.Upload, error) {
	var u models.Upload
	err := row.Scan(&u.ID, &u.UserID, &u.AlbumID, &u.CreatedAt, &u.Filename, &u.ContentType, &u.SizeBytes)
	return u, err
}
