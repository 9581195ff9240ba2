// Package repository declares the storage contracts used by the service layer.
// Implementations live in the sqlite and postgres sub-packages.
package repository

import (
	"context"

	"github.com/sakif/accountlink/internal/model"
)

// UserRepository is the narrow user-store interface the identity resolver and
// the account service depend on.
//
// Lookups return an error wrapping apperror.ErrNotFound when no row matches.
// Insert and Update validate the record first (apperror.ErrValidation) and
// report unique-index violations as apperror.ErrConflict.
type UserRepository interface {
	FindByProviderAndUID(ctx context.Context, provider, uid string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)

	// Insert assigns ID and timestamps on the caller's struct.
	Insert(ctx context.Context, user *model.User) error

	// Update writes identity and profile columns. It never writes
	// encrypted_password: that column may be changed concurrently by
	// account management and is only touched by UpdateWithPassword.
	Update(ctx context.Context, user *model.User) error

	// UpdateWithPassword writes what Update writes plus a new password hash
	// as one statement. Either everything is stored or nothing is.
	UpdateWithPassword(ctx context.Context, user *model.User, encryptedPassword string) error
}
