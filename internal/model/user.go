// Package model defines the data structures used throughout the application.
package model

import (
	"strings"
	"time"
)

// Known OAuth providers. A password-only account has an empty Provider.
const (
	ProviderFacebook = "facebook"
	ProviderSpotify  = "spotify"
)

// User represents one account.
//
// An account is created either by password sign-up or by the first OAuth
// callback for an identity nobody has seen before. Email is the durable
// cross-provider key: a password user who later signs in with Facebook or
// Spotify using the same address keeps a single record, which then carries
// the provider identity as well.
//
// Provider/UID are stored as NULL when empty so that the unique
// (provider, uid) index only applies to OAuth-linked rows.
//
// Password is the transient plaintext, present only between assignment and
// insert. It is never persisted and never serialized; the store only sees
// EncryptedPassword.
type User struct {
	ID                string     `json:"id"`
	Email             string     `json:"email"                validate:"required,email,max=255"`
	Nickname          string     `json:"nickname,omitempty"   validate:"max=50"`
	Provider          string     `json:"provider,omitempty"   validate:"omitempty,oneof=facebook spotify"`
	UID               string     `json:"uid,omitempty"        validate:"required_with=Provider,max=255"`
	FirstName         string     `json:"firstName,omitempty"  validate:"max=255"`
	LastName          string     `json:"lastName,omitempty"   validate:"max=255"`
	PictureURL        string     `json:"pictureUrl,omitempty"`
	Token             string     `json:"-"`
	TokenExpiry       *time.Time `json:"tokenExpiry,omitempty"`
	Password          string     `json:"-"                    validate:"omitempty,min=6,max=72"`
	EncryptedPassword string     `json:"-"                    validate:"required"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// NormalizeEmail trims and lower-cases an address so lookups and the unique
// index agree on what "the same email" means.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HasOAuthIdentity reports whether the account is linked to a provider.
func (u *User) HasOAuthIdentity() bool {
	return u.Provider != "" && u.UID != ""
}
