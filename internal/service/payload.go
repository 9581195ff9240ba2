package service

import (
	"time"

	"github.com/sakif/accountlink/internal/apperror"
)

// AuthPayload is the normalized OAuth callback payload handed to the
// IdentityResolver. The HTTP layer builds it from whatever the OAuth library
// returns; the resolver never sees library types.
type AuthPayload struct {
	Provider    string
	UID         string
	Info        *AuthInfo
	Credentials *AuthCredentials
}

// AuthInfo is the profile part of the payload.
type AuthInfo struct {
	Email     string
	FirstName string
	LastName  string
	Image     string
}

// AuthCredentials is the token part of the payload. ExpiresAt is an absolute
// instant in Unix seconds, not a lifetime.
type AuthCredentials struct {
	Token     string
	ExpiresAt int64
}

// identityFields is the flat set of columns an OAuth login writes.
type identityFields struct {
	provider    string
	uid         string
	email       string
	firstName   string
	lastName    string
	pictureURL  string
	token       string
	tokenExpiry time.Time
}

func (p AuthPayload) fields() (identityFields, error) {
	if p.Info == nil {
		return identityFields{}, apperror.MalformedPayload("info")
	}
	if p.Credentials == nil {
		return identityFields{}, apperror.MalformedPayload("credentials")
	}

	return identityFields{
		provider:    p.Provider,
		uid:         p.UID,
		email:       p.Info.Email,
		firstName:   p.Info.FirstName,
		lastName:    p.Info.LastName,
		pictureURL:  p.Info.Image,
		token:       p.Credentials.Token,
		tokenExpiry: time.Unix(p.Credentials.ExpiresAt, 0).UTC(),
	}, nil
}
