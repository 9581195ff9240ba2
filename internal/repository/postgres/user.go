package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/xid"

	"github.com/sakif/accountlink/internal/apperror"
	"github.com/sakif/accountlink/internal/model"
	"github.com/sakif/accountlink/internal/repository"
	"github.com/sakif/accountlink/internal/validation"
)

var _ repository.UserRepository = (*UserDB)(nil)

// querier is the subset of *pgxpool.Pool the store uses. pgx.Tx satisfies it
// too.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserDB is the PostgreSQL user store.
type UserDB struct {
	q querier
}

const userColumns = `id, email, nickname, COALESCE(provider, ''), COALESCE(uid, ''),
	first_name, last_name, picture_url, token, token_expiry,
	encrypted_password, created_at, updated_at`

func (u *UserDB) FindByProviderAndUID(ctx context.Context, provider, uid string) (*model.User, error) {
	row := u.q.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE provider = $1 AND uid = $2`,
		provider, uid,
	)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user", provider+":"+uid)
		}
		return nil, fmt.Errorf("postgres: finding user by %s uid %s: %w", provider, uid, err)
	}
	return user, nil
}

func (u *UserDB) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	email = model.NormalizeEmail(email)

	row := u.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("postgres: finding user by email: %w", err)
	}
	return user, nil
}

func (u *UserDB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := u.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("postgres: getting user %s: %w", id, err)
	}
	return user, nil
}

func (u *UserDB) Insert(ctx context.Context, user *model.User) error {
	user.Email = model.NormalizeEmail(user.Email)
	if err := validation.Struct(user); err != nil {
		return fmt.Errorf("postgres: inserting user: %w", err)
	}

	now := time.Now().UTC()
	id := xid.New().String()

	_, err := u.q.Exec(ctx,
		`INSERT INTO users (id, email, nickname, provider, uid, first_name, last_name,
			picture_url, token, token_expiry, encrypted_password, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		id,
		user.Email,
		user.Nickname,
		nullString(user.Provider),
		nullString(user.UID),
		user.FirstName,
		user.LastName,
		user.PictureURL,
		user.Token,
		user.TokenExpiry,
		user.EncryptedPassword,
		now,
		now,
	)
	if err != nil {
		if conflict := uniqueViolation(err); conflict != nil {
			return fmt.Errorf("postgres: inserting user: %w", conflict)
		}
		return fmt.Errorf("postgres: inserting user: %w", err)
	}

	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	user.Password = ""
	return nil
}

// Update writes identity and profile columns; the stored password hash is
// kept.
func (u *UserDB) Update(ctx context.Context, user *model.User) error {
	return u.update(ctx, user, "")
}

// UpdateWithPassword is Update plus a new password hash in the same statement.
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

func (u *UserDB) update(ctx context.Context, user *model.User, encryptedPassword string) error {
	user.Email = model.NormalizeEmail(user.Email)
	if err := validation.StructExcept(user, "EncryptedPassword", "Password"); err != nil {
		return fmt.Errorf("postgres: updating user %s: %w", user.ID, err)
	}

	now := time.Now().UTC()

	tag, err := u.q.Exec(ctx,
		`UPDATE users
		 SET email = $1, nickname = $2, provider = $3, uid = $4, first_name = $5, last_name = $6,
		     picture_url = $7, token = $8, token_expiry = $9,
		     encrypted_password = COALESCE(NULLIF($10::text, ''), encrypted_password),
		     updated_at = $11
		 WHERE id = $12`,
		user.Email,
		user.Nickname,
		nullString(user.Provider),
		nullString(user.UID),
		user.FirstName,
		user.LastName,
		user.PictureURL,
		user.Token,
		user.TokenExpiry,
		encryptedPassword,
		now,
		user.ID,
	)
	if err != nil {
		if conflict := uniqueViolation(err); conflict != nil {
			return fmt.Errorf("postgres: updating user %s: %w", user.ID, conflict)
		}
		return fmt.Errorf("postgres: updating user %s: %w", user.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("user", user.ID)
	}

	user.UpdatedAt = now
	return nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		user   model.User
		expiry *time.Time
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
	if expiry != nil {
		t := expiry.UTC()
		user.TokenExpiry = &t
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return &user, nil
}

// uniqueViolationCode is SQLSTATE unique_violation.
const uniqueViolationCode = "23505"

// uniqueViolation turns a 23505 into a conflict naming the field behind the
// violated index. Any other error yields nil.
func uniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationCode {
		return nil
	}
	switch pgErr.ConstraintName {
	case "idx_users_email":
		return apperror.Conflict("user", "email")
	case "idx_users_provider_uid":
		return apperror.Conflict("user", "uid")
	default:
		return apperror.Conflict("user", "id")
	}
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
