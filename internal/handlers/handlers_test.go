package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pairbox-app/pairbox/internal/apperrors"
	"github.com/pairbox-app/pairbox/internal/handlers"
	"github.com/pairbox-app/pairbox/internal/keyval"
	"github.com/pairbox-app/pairbox/internal/logger"
	"github.com/pairbox-app/pairbox/internal/models"
	"github.com/pairbox-app/pairbox/internal/service/auth"
	"github.com/pairbox-app/pairbox/internal/service/auth/tokencodec"
	"github.com/pairbox-app/pairbox/internal/service/idempotency"
	"github.com/pairbox-app/pairbox/internal/service/media"
)

// fastHasher keeps the suite quick; production parameters live in
// auth.DefaultHasher
var fastHasher = auth.Argon2idHasher{
	MemoryKiB:   8 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// In-memory user repo so handler tests need no database
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]models.User)}
}

func (r *fakeUserRepo) CreateUser(_ context.Context, username string, hashedPassword string) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Username == username {
			return models.User{}, apperrors.ErrCredentialsConflict
		}
	}

	user := models.User{
		ID:             uuid.New(),
		CreatedAt:      time.Now(),
		Username:       username,
		HashedPassword: hashedPassword,
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) GetUserByID(_ context.Context, userID uuid.UUID) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return models.User{}, apperrors.ErrCredentialsConflict
	}
	return user, nil
}

func (r *fakeUserRepo) GetUserByUsername(_ context.Context, username string) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Username == username {
			return u, nil
		}
	}
	return models.User{}, apperrors.ErrCredentialsConflict
}

func (r *fakeUserRepo) SetRefreshHash(_ context.Context, userID uuid.UUID, hash *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return apperrors.ErrCredentialsConflict
	}
	user.RefreshHash = hash
	r.users[userID] = user
	return nil
}

type fakeUploadRepo struct {
	mu      sync.Mutex
	uploads map[uuid.UUID]models.Upload
}

func newFakeUploadRepo() *fakeUploadRepo {
	return &fakeUploadRepo{uploads: make(map[uuid.UUID]models.Upload)}
}

func (r *fakeUploadRepo) CreateUpload(_ context.Context, upload models.Upload) (models.Upload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	upload.ID = uuid.New()
	upload.CreatedAt = time.Now()
	r.uploads[upload.ID] = upload
	return upload, nil
}

func (r *fakeUploadRepo) GetUpload(_ context.Context, uploadID uuid.UUID) (models.Upload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	upload, ok := r.uploads[uploadID]
	if !ok {
		return models.Upload{}, apperrors.ErrUploadNotFound
	}
	return upload, nil
}

type testServer struct {
	URL     string
	Uploads *fakeUploadRepo
}

func startTestServer(t *testing.T) testServer {
	t.Helper()

	codec, err := tokencodec.New(tokencodec.Config{SecretKey: "test-secret-key"})
	require.NoError(t, err)

	store := keyval.NewMemoryStore()
	userRepo := newFakeUserRepo()
	uploadRepo := newFakeUploadRepo()

	authService, err := auth.NewSessionService(auth.Config{Hasher: fastHasher}, codec, userRepo, store)
	require.NoError(t, err)

	gate, err := idempotency.NewGate(idempotency.Config{}, store)
	require.NoError(t, err)
	mediaService, err := media.NewService(gate, uploadRepo)
	require.NoError(t, err)

	mux := handlers.NewRouter(authService, mediaService, logger.NewNoOpLogger())

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return testServer{URL: srv.URL, Uploads: uploadRepo}
}

func doJSON(t *testing.T, method string, url string, body string, header http.Header) (int, string) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() // nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(respBody)
}

// registerAndLogin is a helper that returns a live token pair
func registerAndLogin(t *testing.T, srv testServer, username string) (access string, refresh string) {
	t.Helper()

	creds := `{"username":"` + username + `","password":"P@ssw0rd1234"}`

	code, body := doJSON(t, http.MethodPost, srv.URL+"/api/auth/register", creds, nil)
	require.Equalf(t, http.StatusCreated, code, "register failed. Body: %s", body)

	code, body = doJSON(t, http.MethodPost, srv.URL+"/api/auth/login", creds, nil)
	require.Equalf(t, http.StatusOK, code, "login failed. Body: %s", body)

	var pair struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &pair))
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	return pair.AccessToken, pair.RefreshToken
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func Test_AuthEndpoints(t *testing.T) {
	t.Parallel()

	t.Run("register login me", func(t *testing.T) {
		srv := startTestServer(t)
		access, _ := registerAndLogin(t, srv, "alice")

		code, body := doJSON(t, http.MethodGet, srv.URL+"/api/auth/me", "", bearer(access))
		require.Equal(t, http.StatusOK, code)
		require.Contains(t, body, `"alice"`)
	})

	t.Run("register conflict", func(t *testing.T) {
		srv := startTestServer(t)
		creds := `{"username":"alice","password":"P@ssw0rd1234"}`

		code, _ := doJSON(t, http.MethodPost, srv.URL+"/api/auth/register", creds, nil)
		require.Equal(t, http.StatusCreated, code)

		code, body := doJSON(t, http.MethodPost, srv.URL+"/api/auth/register", creds, nil)
		require.Equal(t, http.StatusConflict, code)
		require.JSONEq(t, `{"error":"service_error","message":"Username already taken"}`, body)
	})

	t.Run("register validation", func(t *testing.T) {
		srv := startTestServer(t)

		code, body := doJSON(t, http.MethodPost, srv.URL+"/api/auth/register", `{"username":"a","password":"short"}`, nil)
		require.Equal(t, http.StatusBadRequest, code)
		require.Contains(t, body, "validation_failed")
	})

	t.Run("login failures are indistinguishable", func(t *testing.T) {
		srv := startTestServer(t)
		registerAndLogin(t, srv, "bob")

		codeWrong, bodyWrong := doJSON(t, http.MethodPost, srv.URL+"/api/auth/login",
			`{"username":"bob","password":"wrong-password"}`, nil)
		codeGhost, bodyGhost := doJSON(t, http.MethodPost, srv.URL+"/api/auth/login",
			`{"username":"ghost","password":"whatever"}`, nil)

		require.Equal(t, http.StatusUnauthorized, codeWrong)
		require.Equal(t, http.StatusUnauthorized, codeGhost)
		require.JSONEq(t, bodyWrong, bodyGhost, "responses should not reveal which half failed")
	})

	t.Run("refresh rotates and rejects replay", func(t *testing.T) {
		srv := startTestServer(t)
		_, refresh := registerAndLogin(t, srv, "alice")

		code, body := doJSON(t, http.MethodPost, srv.URL+"/api/auth/refresh",
			`{"refresh_token":"`+refresh+`"}`, nil)
		require.Equalf(t, http.StatusOK, code, "refresh failed. Body: %s", body)

		var rotated struct {
			RefreshToken string `json:"refresh_token"`
		}
		require.NoError(t, json.Unmarshal([]byte(body), &rotated))
		require.NotEqual(t, refresh, rotated.RefreshToken, "refresh token should rotate")

		// replay of the pre-rotation token
		code, _ = doJSON(t, http.MethodPost, srv.URL+"/api/auth/refresh",
			`{"refresh_token":"`+refresh+`"}`, nil)
		require.Equal(t, http.StatusUnauthorized, code)
	})

	t.Run("logout revokes the access token", func(t *testing.T) {
		srv := startTestServer(t)
		access, _ := registerAndLogin(t, srv, "alice")

		code, _ := doJSON(t, http.MethodPost, srv.URL+"/api/auth/logout", "", bearer(access))
		require.Equal(t, http.StatusOK, code)

		// token has not expired, but it is revoked now
		code, _ = doJSON(t, http.MethodGet, srv.URL+"/api/auth/me", "", bearer(access))
		require.Equal(t, http.StatusUnauthorized, code)

		// a brand new login still works
		code, _ = doJSON(t, http.MethodPost, srv.URL+"/api/auth/login",
			`{"username":"alice","password":"P@ssw0rd1234"}`, nil)
		require.Equal(t, http.StatusOK, code)
	})

	t.Run("protected endpoint without token", func(t *testing.T) {
		srv := startTestServer(t)

		code, _ := doJSON(t, http.MethodGet, srv.URL+"/api/auth/me", "", nil)
		require.Equal(t, http.StatusUnauthorized, code)
	})
}

func Test_UploadEndpoint(t *testing.T) {
	t.Parallel()

	uploadBody := `{
		"album_id": "` + uuid.NewString() + `",
		"filename": "beach.jpg",
		"content_type": "image/jpeg",
		"size_bytes": 1048576
	}`

	withKey := func(access string, key string) http.Header {
		h := bearer(access)
		h.Set("Idempotency-Key", key)
		return h
	}

	t.Run("register upload created", func(t *testing.T) {
		srv := startTestServer(t)
		access, _ := registerAndLogin(t, srv, "alice")

		code, body := doJSON(t, http.MethodPost, srv.URL+"/api/media/uploads",
			uploadBody, withKey(access, uuid.NewString()))
		require.Equalf(t, http.StatusCreated, code, "upload failed. Body: %s", body)
		require.Contains(t, body, `"upload_id"`)
	})

	t.Run("retry with same key replays", func(t *testing.T) {
		srv := startTestServer(t)
		access, _ := registerAndLogin(t, srv, "alice")
		idemKey := uuid.NewString()

		code, first := doJSON(t, http.MethodPost, srv.URL+"/api/media/uploads",
			uploadBody, withKey(access, idemKey))
		require.Equal(t, http.StatusCreated, code)

		code, second := doJSON(t, http.MethodPost, srv.URL+"/api/media/uploads",
			uploadBody, withKey(access, idemKey))
		require.Equal(t, http.StatusOK, code, "replay should be 200, not a second 201")
		require.JSONEq(t, first, second, "replay must return the identical stored response")

		require.Len(t, srv.Uploads.uploads, 1, "exactly one upload should be registered")
	})

	t.Run("missing idempotency key", func(t *testing.T) {
		srv := startTestServer(t)
		access, _ := registerAndLogin(t, srv, "alice")

		code, body := doJSON(t, http.MethodPost, srv.URL+"/api/media/uploads", uploadBody, bearer(access))
		require.Equal(t, http.StatusBadRequest, code)
		require.Contains(t, body, "Idempotency-Key")
	})

	t.Run("unauthenticated", func(t *testing.T) {
		srv := startTestServer(t)

		code, _ := doJSON(t, http.MethodPost, srv.URL+"/api/media/uploads",
			uploadBody, http.Header{"Idempotency-Key": []string{uuid.NewString()}})
		require.Equal(t, http.StatusUnauthorized, code)
	})
}
