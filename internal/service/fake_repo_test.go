package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/accountlink/internal/apperror"
	"github.com/sakif/accountlink/internal/model"
	"github.com/sakif/accountlink/internal/validation"
)

// fakeUserRepo is an in-memory repository.UserRepository. It enforces the
// same rules as the SQL stores (validation, unique email, unique provider/uid,
// Update never touching the password) so the services see realistic errors.
type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]*model.User
	nextID int

	// call log, e.g. "FindByProviderAndUID", "Insert"
	calls []string

	// set to a non-nil error to simulate a database failure
	findByProviderErr error
	findByEmailErr    error
	insertErr         error
	updateErr         error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeUserRepo) writes() int {
	n := 0
	for _, c := range f.calls {
		if c == "Insert" || c == "Update" || c == "UpdateWithPassword" {
			n++
		}
	}
	return n
}

func (f *fakeUserRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

func (f *fakeUserRepo) FindByProviderAndUID(_ context.Context, provider, uid string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("FindByProviderAndUID")

	if f.findByProviderErr != nil {
		return nil, f.findByProviderErr
	}
	for _, u := range f.users {
		if u.Provider != "" && u.Provider == provider && u.UID == uid {
			c := *u
			return &c, nil
		}
	}
	return nil, apperror.NotFound("user", provider+":"+uid)
}

func (f *fakeUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("FindByEmail")

	if f.findByEmailErr != nil {
		return nil, f.findByEmailErr
	}
	email = model.NormalizeEmail(email)
	for _, u := range f.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetUserByID")

	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	c := *u
	return &c, nil
}

func (f *fakeUserRepo) Insert(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Insert")

	if f.insertErr != nil {
		return f.insertErr
	}
	user.Email = model.NormalizeEmail(user.Email)
	if err := validation.Struct(user); err != nil {
		return err
	}
	if err := f.checkUnique(user); err != nil {
		return err
	}

	f.nextID++
	now := time.Now().UTC()
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	user.CreatedAt = now
	user.UpdatedAt = now
	user.Password = ""

	c := *user
	f.users[user.ID] = &c
	return nil
}

func (f *fakeUserRepo) Update(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Update")
	return f.update(user, "")
}

func (f *fakeUserRepo) UpdateWithPassword(_ context.Context, user *model.User, encryptedPassword string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpdateWithPassword")

	if encryptedPassword == "" {
		return apperror.ValidationFailed("encryptedPassword", "encrypted password is required")
	}
	if err := f.update(user, encryptedPassword); err != nil {
		return err
	}
	user.EncryptedPassword = encryptedPassword
	return nil
}

// update stores nothing unless every check passes, like the single UPDATE
// statement in the SQL stores.
func (f *fakeUserRepo) update(user *model.User, encryptedPassword string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	stored, ok := f.users[user.ID]
	if !ok {
		return apperror.NotFound("user", user.ID)
	}
	user.Email = model.NormalizeEmail(user.Email)
	if err := validation.StructExcept(user, "EncryptedPassword", "Password"); err != nil {
		return err
	}
	if err := f.checkUnique(user); err != nil {
		return err
	}

	c := *user
	c.EncryptedPassword = stored.EncryptedPassword
	if encryptedPassword != "" {
		c.EncryptedPassword = encryptedPassword
	}
	c.CreatedAt = stored.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	f.users[user.ID] = &c
	return nil
}

func (f *fakeUserRepo) checkUnique(user *model.User) error {
	for id, u := range f.users {
		if id == user.ID {
			continue
		}
		if u.Email == user.Email {
			return apperror.Conflict("user", "email")
		}
		if user.Provider != "" && u.Provider == user.Provider && u.UID == user.UID {
			return apperror.Conflict("user", "uid")
		}
	}
	return nil
}

// seed stores a user directly, bypassing validation.
func (f *fakeUserRepo) seed(u model.User) *model.User {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	u.ID = fmt.Sprintf("user-%d", f.nextID)
	u.Email = model.NormalizeEmail(u.Email)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.UpdatedAt = u.CreatedAt
	c := u
	f.users[u.ID] = &c
	return &u
}

var errDatabaseDown = errors.New("database is down")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
