// Password hashing.
//
// Every account has a bcrypt hash in encrypted_password, including accounts
// created by an OAuth login: those get a hash of a random placeholder secret
// (see friendly.go) that nobody knows, so the password form can never open
// them until the user sets a password of their own.
//
// HASH FORMAT (the whole output of bcrypt.GenerateFromPassword):
//
//	$2a$12$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost (12 → 2^12 = 4096 rounds of the key schedule)
//	 version
//
// The salt is random per call, so two users with the same password store
// different strings. Salt and cost travel inside the hash, which is why the
// users table has one column for it and no salt column.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost is the bcrypt work factor for stored passwords, roughly 250ms
// per hash on current hardware.
//
// COST TUNING RULE OF THUMB:
// Each step up doubles the time per hash. Pick the highest cost that keeps a
// sign-in under about 300ms on the production box; sign-up, sign-in and
// every OAuth account creation pay it once.
//
// Raising the cost later needs no migration: old hashes keep their own cost
// in the prefix and still verify.
const defaultCost = 12

// MaxPasswordBytes is the bcrypt input limit. Longer input would be silently
// truncated by bcrypt, so Hash rejects it.
const MaxPasswordBytes = 72

// ErrPasswordMismatch is returned by Verify when the plaintext does not match.
var ErrPasswordMismatch = errors.New("auth: invalid password")

// PasswordService hashes and verifies passwords with bcrypt. The cost is a
// field so tests can drop it to bcrypt.MinCost.
type PasswordService struct {
	cost int
}

// NewPasswordService returns a PasswordService using the default cost.
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceForTest returns a PasswordService with the given cost.
// Tests in other packages pass bcrypt.MinCost (4). Never use it in production.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash returns the bcrypt hash of plaintext, e.g.
//
//	$2a$12$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy
//
// The salt and cost are embedded, so the string is all that needs storing.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", fmt.Errorf("auth: password must be %d bytes or fewer", MaxPasswordBytes)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify returns nil when plaintext matches hash and ErrPasswordMismatch when
// it does not. A malformed hash is reported as a separate error.
//
// TIMING SAFETY:
// bcrypt.CompareHashAndPassword compares the derived keys in constant time,
// so the response time says nothing about how many leading bytes matched.
// It does not hide whether the account exists: an unknown email never
// reaches Verify and returns faster. The sign-in endpoints are rate limited
// per IP, which bounds that enumeration.
//
// Usage:
//
//	if err := passwords.Verify(user.EncryptedPassword, input); err != nil {
//	    if errors.Is(err, auth.ErrPasswordMismatch) { /* 401 */ }
//	    return err
//	}
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
