package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the longest password bcrypt reads in full. Longer
// inputs would be truncated, so both Hash and Verify refuse them.
const MaxPasswordBytes = 72

// PasswordHasher derives and checks stored password hashes.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, stored string) bool
}

// BcryptHasher stores passwords as bcrypt strings ($2a$<cost>$<salt+digest>),
// so the algorithm, cost and salt travel with the hash.
type BcryptHasher struct {
	Cost int
}

func NewBcryptHasher(cost int) BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return BcryptHasher{Cost: cost}
}

// Hash returns the bcrypt hash of plain.
func (h BcryptHasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", ErrEmptyPassword
	}
	if len(plain) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify compares plain against stored. Malformed hashes and passwords
// longer than MaxPasswordBytes simply fail.
func (h BcryptHasher) Verify(plain, stored string) bool {
	if stored == "" || len(plain) > MaxPasswordBytes {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(plain)) == nil
}
