package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/scythianladder/scythian-ladder-backend/internal/apperror"
)

// PasswordHasher is the credential collaborator: hash on registration,
// verify on login. The rest of the code treats digests as opaque strings.
type PasswordHasher struct {
	cost int
}

func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{cost: bcrypt.DefaultCost}
}

func (that *PasswordHasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), that.cost)
	if err != nil {
		return "", fmt.Errorf("can't hash password: %w", err)
	}

	return string(digest), nil
}

func (that *PasswordHasher) Verify(digest, plaintext string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)); err != nil {
		return apperror.ErrInvalidCredentials
	}

	return nil
}
