// Package service holds the business rules of the identity layer.
//
//	Handler (HTTP) → IdentityResolver / AccountService → UserRepository (DB)
//	                                                   ↘ auth (bcrypt, JWT)
//
// Services take and return plain Go values and domain errors from apperror.
// They know nothing about HTTP: the handler package maps errors to status
// codes and owns cookies.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/accountlink/internal/apperror"
	"github.com/sakif/accountlink/internal/auth"
	"github.com/sakif/accountlink/internal/model"
	"github.com/sakif/accountlink/internal/repository"
)

const (
	MinPasswordLength = 6
	MaxPasswordLength = auth.MaxPasswordBytes
)

// invalidCredentials is deliberately the same for an unknown email and a
// wrong password so sign-in does not reveal which accounts exist.
const invalidCredentials = "invalid email or password"

// PasswordManager is what AccountService needs from the password subsystem.
type PasswordManager interface {
	PasswordHasher
	Verify(hash, plaintext string) error
}

// SignUpInput is a password registration. Nickname is optional.
type SignUpInput struct {
	Email                string
	Password             string
	PasswordConfirmation string
	Nickname             string
}

// AccountUpdateInput changes an existing account. Nil fields are left as they
// are. CurrentPassword is always required.
type AccountUpdateInput struct {
	Email                *string
	Nickname             *string
	Password             *string
	PasswordConfirmation *string
	CurrentPassword      string
}

// AuthResult bundles a user with a freshly issued session token so the
// handler can set the cookie and respond in one step. TTL is the token's
// lifetime and doubles as the cookie Max-Age.
type AuthResult struct {
	User  *model.User
	Token string
	TTL   time.Duration
}

// AccountService covers password registration, sign-in, account update and
// session issuing for OAuth logins.
type AccountService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords PasswordManager
	logger    *slog.Logger
}

func NewAccountService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords PasswordManager,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// SignUp registers a password account and signs it in.
func (s *AccountService) SignUp(ctx context.Context, in SignUpInput) (*AuthResult, error) {
	if err := checkNewPassword(in.Password, in.PasswordConfirmation); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/account: hashing password: %w", err)
	}

	user := &model.User{
		Email:             in.Email,
		Nickname:          strings.TrimSpace(in.Nickname),
		Password:          in.Password,
		EncryptedPassword: hash,
	}
	if err := s.users.Insert(ctx, user); err != nil {
		return nil, fmt.Errorf("service/account: signing up: %w", err)
	}

	s.logger.Info("user signed up", slog.String("userID", user.ID))

	return s.Login(user, false)
}

// SignIn checks email and password. Any mismatch is apperror.ErrUnauthorized.
// remember asks for a long-lived session (auth.RememberFor).
func (s *AccountService) SignIn(ctx context.Context, email, password string, remember bool) (*AuthResult, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized(invalidCredentials)
		}
		return nil, fmt.Errorf("service/account: signing in: %w", err)
	}

	if err := s.passwords.Verify(user.EncryptedPassword, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Info("sign-in rejected", slog.String("userID", user.ID))
			return nil, apperror.Unauthorized(invalidCredentials)
		}
		return nil, fmt.Errorf("service/account: verifying password for user %s: %w", user.ID, err)
	}

	return s.Login(user, remember)
}

// Login issues a session token for a user that has already been
// authenticated, by password or by OAuth.
//
// SESSION LENGTH:
//   - remember=false → the token service default (15 minutes)
//   - remember=true  → auth.RememberFor (two weeks)
//
// There is no refresh endpoint. A short session ends when the token expires
// and the user signs in again.
func (s *AccountService) Login(user *model.User, remember bool) (*AuthResult, error) {
	if user == nil || user.ID == "" {
		return nil, errors.New("service/account: cannot start a session without a persisted user")
	}

	ttl := s.tokens.TTL()
	if remember {
		ttl = auth.RememberFor
	}

	token, err := s.tokens.GenerateWithDuration(user.ID, ttl)
	if err != nil {
		return nil, fmt.Errorf("service/account: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token, TTL: ttl}, nil
}

// UpdateAccount applies in to the user identified by userID. The current
// password must be correct even when only the nickname changes.
func (s *AccountService) UpdateAccount(ctx context.Context, userID string, in AccountUpdateInput) (*model.User, error) {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.CurrentPassword == "" {
		return nil, apperror.ValidationFailed("currentPassword", "current password can't be blank")
	}
	if err := s.passwords.Verify(user.EncryptedPassword, in.CurrentPassword); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperror.ValidationFailed("currentPassword", "current password is invalid")
		}
		return nil, fmt.Errorf("service/account: verifying password for user %s: %w", userID, err)
	}

	var newHash string
	if in.Password != nil && *in.Password != "" {
		confirmation := ""
		if in.PasswordConfirmation != nil {
			confirmation = *in.PasswordConfirmation
		}
		if err := checkNewPassword(*in.Password, confirmation); err != nil {
			return nil, err
		}
		if newHash, err = s.passwords.Hash(*in.Password); err != nil {
			return nil, fmt.Errorf("service/account: hashing password: %w", err)
		}
	}

	if in.Email != nil {
		user.Email = *in.Email
	}
	if in.Nickname != nil {
		user.Nickname = strings.TrimSpace(*in.Nickname)
	}

	// One write either way: a password change goes out in the same statement
	// as the profile fields.
	if newHash == "" {
		if err := s.users.Update(ctx, user); err != nil {
			return nil, fmt.Errorf("service/account: updating user %s: %w", userID, err)
		}
		return user, nil
	}

	if err := s.users.UpdateWithPassword(ctx, user, newHash); err != nil {
		return nil, fmt.Errorf("service/account: updating user %s with new password: %w", userID, err)
	}
	s.logger.Info("password changed", slog.String("userID", userID))

	return user, nil
}

// GetUserByID backs GET /api/me.
func (s *AccountService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user ID must not be empty")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/account: fetching user %s: %w", id, err)
	}
	return user, nil
}

func checkNewPassword(password, confirmation string) error {
	switch {
	case password == "":
		return apperror.ValidationFailed("password", "password can't be blank")
	case len(password) < MinPasswordLength:
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password is too short (minimum is %d characters)", MinPasswordLength))
	case len(password) > MaxPasswordLength:
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password is too long (maximum is %d characters)", MaxPasswordLength))
	case password != confirmation:
		return apperror.ValidationFailed("passwordConfirmation", "password confirmation doesn't match password")
	}
	return nil
}
