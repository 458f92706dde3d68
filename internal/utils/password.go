package utils

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// ResetToken is a single-use password reset token.
type ResetToken struct {
	Token string
	Exp   time.Time
}

// NewResetToken returns a random UUID token that expires ttl after now.
func NewResetToken(now time.Time, ttl time.Duration) ResetToken {
	return ResetToken{Token: uuid.NewString(), Exp: now.UTC().Add(ttl)}
}
