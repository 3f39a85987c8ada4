package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Interface to create or compare secret hashes. Used for both login
// passwords and stored refresh token digests.
type PasswordHasher interface {
	// Generate hash from secret. Two calls on the same secret must
	// produce different digests (fresh salt per call).
	Hash(secret string) (string, error)

	// Compare known digest and user provided secret
	// Must be protected against timing attacks
	Compare(digest string, secret string) error
}

var (
	ErrHashMismatch  = errors.New("secret does not match digest")
	ErrMalformedHash = errors.New("malformed digest")
)

const argon2Version = argon2.Version

// Argon2idHasher produces PHC encoded digests:
// $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<key_b64>
// Parameters are embedded in the digest, so they can be tuned without
// invalidating stored hashes.
type Argon2idHasher struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultHasher follows the OWASP recommended argon2id baseline
var DefaultHasher = Argon2idHasher{
	MemoryKiB:   64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

func (h Argon2idHasher) Hash(secret string) (string, error) {
	salt := make([]byte, h.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("error while generating salt. Err: %w", err)
	}

	key := argon2.IDKey([]byte(secret), salt, h.Iterations, h.MemoryKiB, h.Parallelism, h.KeyLength)

	b64 := base64.RawStdEncoding
	digest := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version, h.MemoryKiB, h.Iterations, h.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key),
	)

	return digest, nil
}

func (h Argon2idHasher) Compare(digest string, secret string) error {
	memory, iterations, parallelism, salt, expected, err := decodeDigest(digest)
	if err != nil {
		return err
	}

	key := argon2.IDKey([]byte(secret), salt, iterations, memory, parallelism, uint32(len(expected)))

	if subtle.ConstantTimeCompare(key, expected) != 1 {
		return ErrHashMismatch
	}
	return nil
}

// decodeDigest parses a PHC encoded argon2id digest. Any structural
// problem is reported as ErrMalformedHash, never a panic.
func decodeDigest(digest string) (memory uint32, iterations uint32, parallelism uint8, salt []byte, key []byte, err error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return 0, 0, 0, nil, nil, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2Version {
		return 0, 0, 0, nil, nil, ErrMalformedHash
	}

	var par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &par); err != nil {
		return 0, 0, 0, nil, nil, ErrMalformedHash
	}
	if memory == 0 || iterations == 0 || par == 0 || par > 255 {
		return 0, 0, 0, nil, nil, ErrMalformedHash
	}

	b64 := base64.RawStdEncoding
	salt, err = b64.DecodeString(parts[4])
	if err != nil || len(salt) < 8 {
		return 0, 0, 0, nil, nil, ErrMalformedHash
	}
	key, err = b64.DecodeString(parts[5])
	if err != nil || len(key) < 16 {
		return 0, 0, 0, nil, nil, ErrMalformedHash
	}

	return memory, iterations, uint8(par), salt, key, nil
}
