// Package auth manages user accounts and the optional client token check
// on the subscribe channel.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/rtconf/rtconf/internal/id"
	"github.com/rtconf/rtconf/internal/store"
	"github.com/rtconf/rtconf/internal/util/timefmt"
)

// TokenHeader carries the client token on subscribe requests.
const TokenHeader = "authorization_token"

// Default account created on first start.
const (
	DefaultAdminUser     = "admin"
	DefaultAdminPassword = "admin"
)

// ErrInvalidCredentials covers unknown users, wrong passwords, and unknown
// tokens alike, so callers cannot probe which part failed.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Users is the slice of the backend the manager needs.
type Users interface {
	GetUser(ctx context.Context, username string) (store.UserRecord, error)
	GetUserByToken(ctx context.Context, token string) (store.UserRecord, error)
	SetUser(ctx context.Context, u store.UserRecord) error
}

// Manager wraps the user store with password hashing and token issuing.
type Manager struct {
	users Users
}

func New(users Users) *Manager {
	return &Manager{users: users}
}

// Verify checks a username and password pair.
func (m *Manager) Verify(ctx context.Context, username, password string) (store.UserRecord, error) {
	u, err := m.users.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return store.UserRecord{}, ErrInvalidCredentials
		}
		return store.UserRecord{}, fmt.Errorf("auth: load user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		return store.UserRecord{}, ErrInvalidCredentials
	}
	return u, nil
}

// VerifyToken resolves a client token to its user.
func (m *Manager) VerifyToken(ctx context.Context, token string) (store.UserRecord, error) {
	if token == "" {
		return store.UserRecord{}, ErrInvalidCredentials
	}
	u, err := m.users.GetUserByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return store.UserRecord{}, ErrInvalidCredentials
		}
		return store.UserRecord{}, fmt.Errorf("auth: load user by token: %w", err)
	}
	return u, nil
}

// UpdateUser creates the account or resets its password. The client token
// rotates on every password change; clients holding the old token must be
// reissued.
func (m *Manager) UpdateUser(ctx context.Context, username, password string) (store.UserRecord, error) {
	if username == "" || password == "" {
		return store.UserRecord{}, fmt.Errorf("auth: username and password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return store.UserRecord{}, fmt.Errorf("auth: hash password: %w", err)
	}

	now := timefmt.Now()
	u, err := m.users.GetUser(ctx, username)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrUserNotFound):
		u = store.UserRecord{ID: id.Generate(), Username: username, Created: now}
	default:
		return store.UserRecord{}, fmt.Errorf("auth: load user: %w", err)
	}

	u.Password = string(hash)
	u.Token = id.Token()
	u.LUT = now
	if err := m.users.SetUser(ctx, u); err != nil {
		return store.UserRecord{}, fmt.Errorf("auth: save user: %w", err)
	}
	return u, nil
}

// EnsureDefaultAdmin creates the admin/admin account when no admin exists
// yet, so a fresh install is reachable.
func (m *Manager) EnsureDefaultAdmin(ctx context.Context) error {
	_, err := m.users.GetUser(ctx, DefaultAdminUser)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrUserNotFound) {
		return fmt.Errorf("auth: load admin: %w", err)
	}
	if _, err := m.UpdateUser(ctx, DefaultAdminUser, DefaultAdminPassword); err != nil {
		return err
	}
	slog.Info("created default admin user", "username", DefaultAdminUser)
	return nil
}
