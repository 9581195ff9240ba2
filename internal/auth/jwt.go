// Package auth is the authentication subsystem around the identity resolver:
// session tokens, password hashing, placeholder secrets and the OAuth provider
// registry.
//
// SESSION FLOW:
//  1. A user signs in (password or OAuth callback)
//  2. The server issues a JWT with sub = user ID and sets it as the HttpOnly
//     "token" cookie
//  3. RequireAuth reads the cookie on every protected request and puts the
//     user ID into the request context
//
// No session row is stored. Everything the server needs to trust the request
// is inside the signed token.
//
// JWT STRUCTURE (three base64url parts joined by dots):
//
//	xxxxxxxx.yyyyyyyyyyyyyyyy.zzzzzzzzzzzz
//	 header       claims        signature
//
//	header:    {"alg":"HS256","typ":"JWT"}
//	claims:    {"iss":"accountlink","sub":"<user id>","iat":...,"exp":...}
//	signature: HMAC-SHA256(header + "." + claims, JWT_SECRET)
//
// The claims are encoded, not encrypted. Anyone holding the cookie can read
// the user ID; only the holder of JWT_SECRET can produce a valid signature.
//
// SESSION LENGTH:
//
//	password sign-up                  DefaultTokenTTL (15 minutes)
//	password sign-in                  DefaultTokenTTL
//	password sign-in, rememberMe      RememberFor (two weeks)
//	OAuth callback                    RememberFor
//
// The cookie Max-Age always equals the token lifetime, so the browser drops
// the cookie at the moment the server would start rejecting it.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer = "accountlink"

	// DefaultTokenTTL is the lifetime of a session token issued by Generate.
	DefaultTokenTTL = 15 * time.Minute

	// RememberFor is the lifetime of a "remember me" session: sign-ins that
	// ask for it and every OAuth login.
	RememberFor = 14 * 24 * time.Hour
)

// TokenService signs and verifies HS256 session tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the given secret.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret), ttl: DefaultTokenTTL}, nil
}

// TTL reports how long tokens from Generate stay valid, which is the length
// of a session that did not ask to be remembered.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Generate issues a token for userID with the default lifetime.
func (s *TokenService) Generate(userID string) (string, error) {
	return s.GenerateWithDuration(userID, s.ttl)
}

// GenerateWithDuration issues a token that expires d from now. A negative d
// yields an already-expired token, which the tests use.
func (s *TokenService) GenerateWithDuration(userID string, d time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("auth: cannot issue a token without a subject")
	}

	now := time.Now()
	c := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(d)),
		Issuer:    issuer,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate verifies signature, algorithm, issuer and expiry, and returns the
// user ID stored in "sub".
//
// jwt.WithValidMethods pins HS256 so a token claiming alg "none" (or an RSA
// key used as an HMAC secret) is rejected before the signature check.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	var c jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&c,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", errors.New("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}
	if !token.Valid {
		return "", errors.New("auth: invalid token claims")
	}
	if c.Subject == "" {
		return "", errors.New("auth: token has no subject")
	}
	return c.Subject, nil
}
