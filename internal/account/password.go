package account

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	dErrors "custodian/pkg/domain-errors"
)

// minPasswordLength is the minimum accepted password length.
const minPasswordLength = 6

// CheckPasswordQuality rejects passwords below the minimum length.
func CheckPasswordQuality(password string) error {
	if len(password) < minPasswordLength {
		return dErrors.Newf(dErrors.CodeInvalidInput, "password shorter than %d characters", minPasswordLength)
	}
	return nil
}

// HashPassword creates a bcrypt hash of the password. bcrypt embeds its own
// per-hash salt, so the stored value is a salted hash and nothing else.
func HashPassword(password string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "password is too long")
		}
		return "", fmt.Errorf("could not hash password: %w", err)
	}
	return string(hashed), nil
}

// VerifyPassword checks a plaintext password against a stored hash.
func VerifyPassword(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeInvalidInput, "invalid password")
		}
		return fmt.Errorf("could not verify password: %w", err)
	}
	return nil
}

// GenerateCode returns an opaque random token for activation codes and
// throwaway reset passwords. No format guarantees beyond uniqueness and
// unguessability.
func GenerateCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
