package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// PasswordVerifier checks a login password against a user's stored hash.
type PasswordVerifier interface {
	// Compare returns nil when password matches hashedPassword and
	// ErrPasswordMismatch when it does not. An empty hashedPassword never
	// matches but still costs one hash comparison, so logins for unknown
	// accounts take as long as logins with a wrong password.
	Compare(hashedPassword, password string) error
}

// BcryptVerifier verifies passwords hashed by the user store.
type BcryptVerifier struct {
	cost      int
	dummyOnce sync.Once
	dummy     []byte
}

// NewBcryptVerifier returns a verifier whose decoy hash uses cost, which
// should match the cost the user store hashes with. Zero means
// bcrypt.DefaultCost.
func NewBcryptVerifier(cost int) *BcryptVerifier {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptVerifier{cost: cost}
}

func (v *BcryptVerifier) Compare(hashedPassword, password string) error {
	if hashedPassword == "" {
		_ = bcrypt.CompareHashAndPassword(v.decoy(), []byte(password))
		return ErrPasswordMismatch
	}

	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrPasswordMismatch
	default:
		return fmt.Errorf("invalid stored password hash: %w", err)
	}
}

func (v *BcryptVerifier) decoy() []byte {
	v.dummyOnce.Do(func() {
		secret := make([]byte, 32)
		_, _ = rand.Read(secret)
		v.dummy, _ = bcrypt.GenerateFromPassword(secret, v.cost)
	})
	return v.dummy
}
