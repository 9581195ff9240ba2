package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/accountlink/internal/apperror"
	"github.com/sakif/accountlink/internal/model"
	"github.com/sakif/accountlink/internal/repository"
	"github.com/sakif/accountlink/internal/validation"
)

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB is the SQLite user store. Obtain one with DB.Users().
type UserDB struct {
	conn *sql.DB
}

const userColumns = `id, email, nickname, COALESCE(provider, ''), COALESCE(uid, ''),
	first_name, last_name, picture_url, token, token_expiry,
	encrypted_password, created_at, updated_at`

// FindByProviderAndUID returns the user linked to the given OAuth identity.
func (u *UserDB) FindByProviderAndUID(ctx context.Context, provider, uid string) (*model.User, error) {
	row := u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE provider = ? AND uid = ?`,
		provider, uid,
	)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", provider+":"+uid)
		}
		return nil, fmt.Errorf("sqlite: finding user by %s uid %s: %w", provider, uid, err)
	}
	return user, nil
}

// FindByEmail returns the user owning email. The key is normalized the same
// way Insert and Update normalize stored addresses.
func (u *UserDB) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	email = model.NormalizeEmail(email)

	row := u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`,
		email,
	)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: finding user by email: %w", err)
	}
	return user, nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (u *UserDB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`,
		id,
	)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return user, nil
}

// Insert validates and stores a new user, filling in ID and timestamps on
// the caller's struct.
func (u *UserDB) Insert(ctx context.Context, user *model.User) error {
	user.Email = model.NormalizeEmail(user.Email)
	if err := validation.Struct(user); err != nil {
		return fmt.Errorf("sqlite: inserting user: %w", err)
	}

	now := time.Now().UTC()
	id := xid.New().String()

	_, err := u.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, nickname, provider, uid, first_name, last_name,
			picture_url, token, token_expiry, encrypted_password, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		user.Email,
		user.Nickname,
		nullString(user.Provider),
		nullString(user.UID),
		user.FirstName,
		user.LastName,
		user.PictureURL,
		user.Token,
		nullTime(user.TokenExpiry),
		user.EncryptedPassword,
		now,
		now,
	)
	if err != nil {
		if conflict := uniqueViolation(err); conflict != nil {
			return fmt.Errorf("sqlite: inserting user: %w", conflict)
		}
		return fmt.Errorf("sqlite: inserting user: %w", err)
	}

	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	user.Password = ""
	return nil
}

// Update writes the identity and profile columns of an existing user.
//
// encrypted_password keeps its stored value. The record was read before this
// call and the password may have been changed since.
func (u *UserDB) Update(ctx context.Context, user *model.User) error {
	return u.update(ctx, user, "")
}

// UpdateWithPassword writes the same columns as Update plus the new password
// hash, in one statement, so a failed write leaves both unchanged.
func (u *UserDB) UpdateWithPassword(ctx context.Context, user *model.User, encryptedPassword string) error {
	if encryptedPassword == "" {
		return apperror.ValidationFailed("encryptedPassword", "encrypted password is required")
	}
	if err := u.update(ctx, user, encryptedPassword); err != nil {
		return err
	}
	user.EncryptedPassword = encryptedPassword
	return nil
}

// update runs the single UPDATE behind Update and UpdateWithPassword. An
// empty encryptedPassword keeps the stored hash (NULLIF turns it into NULL,
// COALESCE falls back to the column).
func (u *UserDB) update(ctx context.Context, user *model.User, encryptedPassword string) error {
	user.Email = model.NormalizeEmail(user.Email)
	if err := validation.StructExcept(user, "EncryptedPassword", "Password"); err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	now := time.Now().UTC()

	result, err := u.conn.ExecContext(ctx,
		`UPDATE users
		 SET email = ?, nickname = ?, provider = ?, uid = ?, first_name = ?, last_name = ?,
		     picture_url = ?, token = ?, token_expiry = ?,
		     encrypted_password = COALESCE(NULLIF(?, ''), encrypted_password),
		     updated_at = ?
		 WHERE id = ?`,
		user.Email,
		user.Nickname,
		nullString(user.Provider),
		nullString(user.UID),
		user.FirstName,
		user.LastName,
		user.PictureURL,
		user.Token,
		nullTime(user.TokenExpiry),
		encryptedPassword,
		now,
		user.ID,
	)
	if err != nil {
		if conflict := uniqueViolation(err); conflict != nil {
			return fmt.Errorf("sqlite: updating user %s: %w", user.ID, conflict)
		}
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", user.ID)
	}

	user.UpdatedAt = now
	return nil
}

func scanUser(row *sql.Row) (*model.User, error) {
	var (
		user   model.User
		expiry sql.NullTime
	)
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Nickname,
		&user.Provider,
		&user.UID,
		&user.FirstName,
		&user.LastName,
		&user.PictureURL,
		&user.Token,
		&expiry,
		&user.EncryptedPassword,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if expiry.Valid {
		t := expiry.Time.UTC()
		user.TokenExpiry = &t
	}
	return &user, nil
}

// uniqueViolation maps SQLite's "UNIQUE constraint failed: users.<col>"
// message onto a conflict error naming the field. It returns nil for any
// other error.
func uniqueViolation(err error) error {
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return nil
	}
	switch {
	case strings.Contains(msg, "users.email"):
		return apperror.Conflict("user", "email")
	case strings.Contains(msg, "users.uid"):
		return apperror.Conflict("user", "uid")
	default:
		return apperror.Conflict("user", "id")
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
