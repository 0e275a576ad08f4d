package utils

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher produces and checks salted, adaptive password verifiers.
// The work factor comes from configuration, never from user input.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	// Verify returns false for a mismatch and an error only when the
	// stored verifier cannot be parsed.
	Verify(hash, plain string) (bool, error)
}

// NewPasswordHasher returns the hasher named by PASSWORD_HASHER.
func NewPasswordHasher(name string, bcryptCost int) (PasswordHasher, error) {
	switch name {
	case "", "bcrypt":
		if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
			return nil, fmt.Errorf("bcrypt cost %d out of range", bcryptCost)
		}
		return BcryptHasher{Cost: bcryptCost}, nil
	case "argon2id":
		return DefaultArgon2Hasher(), nil
	default:
		return nil, fmt.Errorf("unknown password hasher %q", name)
	}
}

// BcryptHasher hashes with bcrypt at a fixed cost.
type BcryptHasher struct{ Cost int }

// Hash returns bcrypt hash using the configured cost.
func (h BcryptHasher) Hash(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify safely compares bcrypt hash and plain password.
func (h BcryptHasher) Verify(hash, plain string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

// Argon2Hasher hashes with Argon2id and encodes the result in PHC format:
// $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
type Argon2Hasher struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
	SaltLen int
}

// DefaultArgon2Hasher uses the OWASP recommended parameters.
func DefaultArgon2Hasher() Argon2Hasher {
	return Argon2Hasher{Time: 3, Memory: 64 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}
}

func (h Argon2Hasher) Hash(plain string) (string, error) {
	salt := make([]byte, h.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	key := argon2.IDKey([]byte(plain), salt, h.Time, h.Memory, h.Threads, h.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.Memory, h.Time, h.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify re-derives the key with the parameters stored in the hash, so
// verifiers written under older parameters keep working.
func (h Argon2Hasher) Verify(encoded, plain string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, errors.New("invalid argon2id hash format")
	}
	var (
		memory, iterations uint32
		threads            uint8
	)
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false, fmt.Errorf("parsing parameters: %w", err)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("decoding salt: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("decoding hash: %w", err)
	}
	got := argon2.IDKey([]byte(plain), salt, iterations, memory, threads, uint32(len(want))) //nolint:gosec // key length always fits
	return subtle.ConstantTimeCompare(want, got) == 1, nil
}
