// Package tokencodec signs and verifies the bearer tokens the session
// service issues. It is stateless: it holds key material only and never
// touches storage, which lets "signature valid", "not revoked" and
// "subject still exists" stay independent checks upstream.
package tokencodec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pairbox-app/pairbox/internal/apperrors"
)

const (
	defaultSigningMethod   = "HS256"
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 30 * 24 * time.Hour
)

// Kind tags what a token may be used for
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

type Claims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID `json:"uid"`
	Kind   Kind      `json:"kind"`
}

// Codec config with sensible defaults
type Config struct {
	// Secret key to sign token payloads
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set then default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set then default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type Codec struct {
	key string
	alg jwt.SigningMethod

	accessTTL  time.Duration
	refreshTTL time.Duration

	// now is the clock used for issue timestamps, replaceable in tests
	now func() time.Time
}

func New(cfg Config) (*Codec, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg := jwt.GetSigningMethod(cfg.Alg)
	if alg == nil {
		return nil, fmt.Errorf("unknown signing method: %q", cfg.Alg)
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	return &Codec{
		key:        cfg.SecretKey,
		alg:        alg,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}, nil
}

// TTL returns the lifetime tokens of the kind are issued with
func (c *Codec) TTL(kind Kind) time.Duration {
	if kind == KindRefresh {
		return c.refreshTTL
	}
	return c.accessTTL
}

// Issue signs a fresh token of the given kind for the user. Expiry is
// always issue time plus the kind lifetime; the jti is unique per call.
func (c *Codec) Issue(userID uuid.UUID, kind Kind) (value string, claims Claims, err error) {
	now := c.now().Truncate(time.Second)

	claims = Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.TTL(kind))),
		},
		UserID: userID,
		Kind:   kind,
	}

	value, err = jwt.NewWithClaims(c.alg, claims).SignedString([]byte(c.key))
	if err != nil {
		return "", claims, fmt.Errorf("error while signing %s token. Err: %w", kind, err)
	}

	return value, claims, nil
}

// Verify checks signature, structure and expiry, and that the token is
// of the expected kind. Failures map to the caller-facing taxonomy:
// apperrors.ErrExpiredToken for a lapsed timestamp, apperrors.ErrInvalidToken
// for everything else.
func (c *Codec) Verify(value string, kind Kind) (Claims, error) {
	claims := Claims{}

	_, err := jwt.ParseWithClaims(
		value,
		&claims,
		func(t *jwt.Token) (any, error) { return []byte(c.key), nil },
		jwt.WithValidMethods([]string{c.alg.Alg()}),
		jwt.WithExpirationRequired(),
	)

	switch {
	// An unverifiable token is invalid even if its exp also lapsed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenMalformed):
		return Claims{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidToken, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return Claims{}, fmt.Errorf("%w: %v", apperrors.ErrExpiredToken, err)
	case err != nil:
		return Claims{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidToken, err)
	}

	if claims.Kind != kind {
		return Claims{}, fmt.Errorf("%w: expected %s token, got %s", apperrors.ErrInvalidToken, kind, claims.Kind)
	}

	return claims, nil
}
