// Package auth is the session control plane: it issues, rotates and
// revokes the access/refresh token pairs the rest of pairbox trusts.
//
// The session state machine is tracked through two places only: the
// user's refresh_hash column (single session slot) and the coordination
// store (revocation set). Handlers stay stateless; every validation
// re-reads current state, which is what makes rotation and revocation
// observable immediately.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pairbox-app/pairbox/internal/apperrors"
	"github.com/pairbox-app/pairbox/internal/keyval"
	"github.com/pairbox-app/pairbox/internal/models"
	"github.com/pairbox-app/pairbox/internal/repository"
	"github.com/pairbox-app/pairbox/internal/service/auth/tokencodec"
)

// Coordination store key for a revoked access token:
// revocation:<token_id>. The layout is a compatibility surface, changing
// it reopens every in-flight revocation.
const revocationKeyPrefix = "revocation:"

type Config struct {
	// Hasher used for passwords and stored refresh token digests
	// If not set then DefaultHasher is used
	Hasher PasswordHasher
}

type SessionService struct {
	codec  *tokencodec.Codec
	hasher PasswordHasher
	users  repository.UserRepo
	store  keyval.Store

	// digest compared against when the username does not exist, so a
	// failed lookup costs the same as a failed password
	dummyDigest string
}

func NewSessionService(cfg Config, codec *tokencodec.Codec, users repository.UserRepo, store keyval.Store) (*SessionService, error) {
	if codec == nil || users == nil || store == nil {
		return nil, errors.New("codec, user repo and keyval store must not be nil")
	}

	hasher := cfg.Hasher
	if hasher == nil {
		hasher = DefaultHasher
	}

	dummyDigest, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("error while preparing hasher. Err: %w", err)
	}

	return &SessionService{
		codec:       codec,
		hasher:      hasher,
		users:       users,
		store:       store,
		dummyDigest: dummyDigest,
	}, nil
}

// Register creates the user with a hashed password. No tokens are
// issued: the client is expected to log in afterwards.
func (s *SessionService) Register(ctx context.Context, username string, password string) (models.User, error) {
	digest, err := s.hasher.Hash(password)
	if err != nil {
		return models.User{}, fmt.Errorf("can't use this as password. Err: %w", err)
	}

	user, err := s.users.CreateUser(ctx, username, digest)
	if err != nil {
		return models.User{}, err
	}

	return user, nil
}

// Login verifies the password and issues a fresh token pair. Storing the
// new refresh digest overwrites whatever session the user had elsewhere.
// An unknown username and a wrong password are indistinguishable.
func (s *SessionService) Login(ctx context.Context, username string, password string) (models.TokenPair, error) {
	user, err := s.users.GetUserByUsername(ctx, username)

	switch {
	case errors.Is(err, apperrors.ErrCredentialsConflict):
		// Burn the same hashing time as a real comparison would
		_ = s.hasher.Compare(s.dummyDigest, password)
		return models.TokenPair{}, apperrors.ErrInvalidCredentials
	case err != nil:
		return models.TokenPair{}, err
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return models.TokenPair{}, apperrors.ErrInvalidCredentials
	}

	return s.issuePair(ctx, user.ID)
}

// Refresh rotates the token pair. The presented raw refresh token must
// hash to the stored digest; after rotation it never matches again, so a
// replayed old token (reuse after rotation) is rejected here.
func (s *SessionService) Refresh(ctx context.Context, rawRefresh string) (models.TokenPair, error) {
	if rawRefresh == "" {
		return models.TokenPair{}, apperrors.ErrMissingCredential
	}

	claims, err := s.codec.Verify(rawRefresh, tokencodec.KindRefresh)
	if err != nil {
		return models.TokenPair{}, err
	}

	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return models.TokenPair{}, err
	}

	if user.RefreshHash == nil {
		return models.TokenPair{}, apperrors.ErrInvalidCredentials
	}
	if err := s.hasher.Compare(*user.RefreshHash, rawRefresh); err != nil {
		return models.TokenPair{}, apperrors.ErrInvalidCredentials
	}

	return s.issuePair(ctx, user.ID)
}

// Logout ends the whole session: the access token's jti goes into the
// revocation set for exactly its remaining validity, and the refresh
// slot is cleared so the paired refresh token dies with it.
func (s *SessionService) Logout(ctx context.Context, rawAccess string) error {
	if rawAccess == "" {
		return apperrors.ErrMissingCredential
	}

	claims, err := s.codec.Verify(rawAccess, tokencodec.KindAccess)
	if err != nil {
		return err
	}

	// TTL never exceeds the token's own remaining validity: the entry
	// expires from the store the moment the token would expire anyway
	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining > 0 {
		if err := s.store.Set(ctx, revocationKeyPrefix+claims.ID, "revoked", remaining); err != nil {
			return err
		}
	}

	return s.users.SetRefreshHash(ctx, claims.UserID, nil)
}

// ValidateAccess returns the verified claims of a live access token.
// Cryptographic validity is established first; only then is the jti
// trusted for the revocation lookup.
func (s *SessionService) ValidateAccess(ctx context.Context, rawAccess string) (tokencodec.Claims, error) {
	if rawAccess == "" {
		return tokencodec.Claims{}, apperrors.ErrMissingCredential
	}

	claims, err := s.codec.Verify(rawAccess, tokencodec.KindAccess)
	if err != nil {
		return tokencodec.Claims{}, err
	}

	revoked, err := s.store.Exists(ctx, revocationKeyPrefix+claims.ID)
	if err != nil {
		return tokencodec.Claims{}, err
	}
	if revoked {
		return tokencodec.Claims{}, apperrors.ErrTokenRevoked
	}

	return claims, nil
}

// GetUser loads the user an access token belongs to, validating the
// token on the way. Convenience for the auth middleware.
func (s *SessionService) GetUser(ctx context.Context, rawAccess string) (models.User, error) {
	claims, err := s.ValidateAccess(ctx, rawAccess)
	if err != nil {
		return models.User{}, err
	}

	return s.users.GetUserByID(ctx, claims.UserID)
}

// issuePair signs a fresh access/refresh pair and persists the new
// refresh digest before returning. A pair is never handed out without
// its digest landing first, and a digest is never written for a pair
// that is not returned to the caller that earned it.
func (s *SessionService) issuePair(ctx context.Context, userID uuid.UUID) (models.TokenPair, error) {
	access, accessClaims, err := s.codec.Issue(userID, tokencodec.KindAccess)
	if err != nil {
		return models.TokenPair{}, err
	}

	refresh, refreshClaims, err := s.codec.Issue(userID, tokencodec.KindRefresh)
	if err != nil {
		return models.TokenPair{}, err
	}

	digest, err := s.hasher.Hash(refresh)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("error while hashing refresh token. Err: %w", err)
	}

	if err := s.users.SetRefreshHash(ctx, userID, &digest); err != nil {
		return models.TokenPair{}, err
	}

	return models.TokenPair{
		Access:  models.IssuedToken{Value: access, ExpiresAt: accessClaims.ExpiresAt.Time},
		Refresh: models.IssuedToken{Value: refresh, ExpiresAt: refreshClaims.ExpiresAt.Time},
	}, nil
}
