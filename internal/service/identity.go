package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sakif/accountlink/internal/apperror"
	"github.com/sakif/accountlink/internal/auth"
	"github.com/sakif/accountlink/internal/model"
	"github.com/sakif/accountlink/internal/repository"
)

// placeholderLength is the length of the random password given to accounts
// created by an OAuth login.
const placeholderLength = 20

// PasswordHasher is the one thing the resolver needs from the password
// subsystem. *auth.PasswordService satisfies it.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
}

// IdentityResolver finds or creates the local user for an OAuth login and
// keeps it in sync with the latest provider data.
//
// Lookup order is fixed: (provider, uid) first, then email. The email path is
// the account merge: a user who signed up with a password and later signs in
// through Facebook or Spotify with the same address ends up as one record
// carrying the provider identity.
//
// The resolver holds no locks and does not retry. Two concurrent first logins
// for the same identity race on the store's unique indexes and the loser gets
// an apperror.ErrConflict.
type IdentityResolver struct {
	users     repository.UserRepository
	passwords PasswordHasher
	newSecret func() (string, error)
}

// NewIdentityResolver wires the resolver to a user store and a hasher.
func NewIdentityResolver(users repository.UserRepository, passwords PasswordHasher) *IdentityResolver {
	return &IdentityResolver{
		users:     users,
		passwords: passwords,
		newSecret: func() (string, error) { return auth.FriendlyToken(placeholderLength) },
	}
}

// Resolve returns the user for payload, updating or creating it. Exactly one
// store write happens per successful call.
//
// Errors are returned wrapped; errors.Is still finds apperror.ErrMalformedPayload
// for a payload without info or credentials, and ErrValidation or ErrConflict
// when the store rejects the write. No partially built user is returned on
// failure.
func (r *IdentityResolver) Resolve(ctx context.Context, payload AuthPayload) (*model.User, error) {
	f, err := payload.fields()
	if err != nil {
		return nil, fmt.Errorf("service/identity: %w", err)
	}

	user, err := r.lookup(ctx, f)
	if err != nil {
		return nil, err
	}

	if user != nil {
		f.applyTo(user)
		if err := r.users.Update(ctx, user); err != nil {
			return nil, fmt.Errorf("service/identity: updating user %s: %w", user.ID, err)
		}
		return user, nil
	}

	user = &model.User{}
	f.applyTo(user)

	secret, err := r.newSecret()
	if err != nil {
		return nil, fmt.Errorf("service/identity: generating placeholder password: %w", err)
	}
	hash, err := r.passwords.Hash(secret)
	if err != nil {
		return nil, fmt.Errorf("service/identity: hashing placeholder password: %w", err)
	}
	user.Password = secret
	user.EncryptedPassword = hash

	if err := r.users.Insert(ctx, user); err != nil {
		return nil, fmt.Errorf("service/identity: creating user for %s uid %s: %w", f.provider, f.uid, err)
	}
	return user, nil
}

// lookup returns (nil, nil) when neither key matches.
func (r *IdentityResolver) lookup(ctx context.Context, f identityFields) (*model.User, error) {
	user, err := r.users.FindByProviderAndUID(ctx, f.provider, f.uid)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/identity: finding user by %s uid %s: %w", f.provider, f.uid, err)
	}

	// A missing email is "no match"; querying with it could hit any row
	// stored without one.
	if strings.TrimSpace(f.email) == "" {
		return nil, nil
	}

	user, err = r.users.FindByEmail(ctx, f.email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/identity: finding user by email: %w", err)
	}
	return nil, nil
}

func (f identityFields) applyTo(u *model.User) {
	expiry := f.tokenExpiry
	u.Provider = f.provider
	u.UID = f.uid
	u.Email = f.email
	u.FirstName = f.firstName
	u.LastName = f.lastName
	u.PictureURL = f.pictureURL
	u.Token = f.token
	u.TokenExpiry = &expiry
}
