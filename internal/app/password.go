package app

import (
	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost keeps a single hash in the tens of milliseconds.
const DefaultBcryptCost = bcrypt.DefaultCost

// HashPassword returns a salted bcrypt hash of plaintext at the given cost.
// Costs outside bcrypt's accepted range fall back to DefaultBcryptCost.
func HashPassword(plaintext string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether plaintext matches hash. A malformed hash
// never matches.
func VerifyPassword(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
