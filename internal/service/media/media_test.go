package media

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/pairbox-app/pairbox/internal/apperrors"
	"github.com/pairbox-app/pairbox/internal/keyval"
	"github.com/pairbox-app/pairbox/internal/models"
	"github.com/pairbox-app/pairbox/internal/repository/postgres"
	"github.com/pairbox-app/pairbox/internal/service/idempotency"
	"github.com/pairbox-app/pairbox/internal/testutil"
)

func Test_RegisterUpload(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Begin new db transaction and create a new MediaService over it
	// Rollback transaction when test stops
	withService := func(t *testing.T, fn func(s *MediaService, store *keyval.MemoryStore, user models.User)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			store := keyval.NewMemoryStore()
			gate, err := idempotency.NewGate(idempotency.Config{RecordTTL: time.Minute}, store)
			require.NoError(t, err)

			s, err := NewService(gate, &postgres.UploadRepo{DB: tx})
			require.NoError(t, err, "media service should be created without errors")

			userRepo := &postgres.UserRepo{DB: tx}
			user, err := userRepo.CreateUser(t.Context(), "alice", "digest")
			require.NoError(t, err)

			fn(s, store, user)
		})
	}

	params := RegisterUploadParams{
		AlbumID:     uuid.New(),
		Filename:    "beach.jpg",
		ContentType: "image/jpeg",
		SizeBytes:   1 << 20,
	}

	t.Run("first registration creates the upload", func(t *testing.T) {
		withService(t, func(s *MediaService, _ *keyval.MemoryStore, user models.User) {
			registration, err := s.RegisterUpload(t.Context(), user.ID, uuid.New(), params)

			require.NoError(t, err)
			require.NotEqual(t, uuid.Nil, registration.UploadID)
			require.Equal(t, params.AlbumID, registration.AlbumID)
			require.False(t, registration.Replayed)
		})
	})

	t.Run("retry with same key replays the response", func(t *testing.T) {
		withService(t, func(s *MediaService, _ *keyval.MemoryStore, user models.User) {
			idemKey := uuid.New()

			first, err := s.RegisterUpload(t.Context(), user.ID, idemKey, params)
			require.NoError(t, err)

			second, err := s.RegisterUpload(t.Context(), user.ID, idemKey, params)
			require.NoError(t, err)
			require.True(t, second.Replayed, "retry should be served from the cache")
			require.Equal(t, first.UploadID, second.UploadID, "no second upload should be created")
		})
	})

	t.Run("different keys register different uploads", func(t *testing.T) {
		withService(t, func(s *MediaService, _ *keyval.MemoryStore, user models.User) {
			first, err := s.RegisterUpload(t.Context(), user.ID, uuid.New(), params)
			require.NoError(t, err)

			second, err := s.RegisterUpload(t.Context(), user.ID, uuid.New(), params)
			require.NoError(t, err)
			require.NotEqual(t, first.UploadID, second.UploadID)
		})
	})

	t.Run("concurrent duplicates register exactly once", func(t *testing.T) {
		withService(t, func(s *MediaService, _ *keyval.MemoryStore, user models.User) {
			idemKey := uuid.New()

			const workers = 8
			var wg sync.WaitGroup
			var mu sync.Mutex
			uploadIDs := make(map[uuid.UUID]int)
			inProgress := 0

			for range workers {
				wg.Add(1)
				go func() {
					defer wg.Done()

					registration, err := s.RegisterUpload(t.Context(), user.ID, idemKey, params)

					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						uploadIDs[registration.UploadID]++
					default:
						require.ErrorIs(t, err, apperrors.ErrRequestInProgress)
						inProgress++
					}
				}()
			}
			wg.Wait()

			require.Len(t, uploadIDs, 1, "all successful responses should reference the same upload")
			require.Equal(t, workers, uploadIDs[firstKey(uploadIDs)]+inProgress)
		})
	})

	// Runs on the pool, not a tx: the failing insert would abort a
	// shared transaction and poison the retry
	t.Run("failed side effect frees the slot", func(t *testing.T) {
		store := keyval.NewMemoryStore()
		gate, err := idempotency.NewGate(idempotency.Config{RecordTTL: time.Minute}, store)
		require.NoError(t, err)

		s, err := NewService(gate, &postgres.UploadRepo{DB: pg.Pool})
		require.NoError(t, err)

		userRepo := &postgres.UserRepo{DB: pg.Pool}
		user, err := userRepo.CreateUser(t.Context(), "media-release-"+uuid.NewString(), "digest")
		require.NoError(t, err)

		idemKey := uuid.New()

		// unknown user violates the foreign key, so the insert fails
		_, err = s.RegisterUpload(t.Context(), uuid.New(), idemKey, params)
		require.Error(t, err)
		require.NotErrorIs(t, err, apperrors.ErrRequestInProgress)

		// a retry is admitted immediately, not blocked until TTL
		registration, err := s.RegisterUpload(t.Context(), user.ID, idemKey, params)
		require.NoError(t, err)
		require.False(t, registration.Replayed)
	})
}

func firstKey(m map[uuid.UUID]int) uuid.UUID {
	for k := range m {
		return k
	}
	return uuid.Nil
}
