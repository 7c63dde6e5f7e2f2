// Package session owns the bearer token and the signed-in user.
//
// A Session is created empty, started with Begin after a successful login
// and torn down with End on logout or when the server rejects the token.
// The token is persisted through a TokenStore so a later process can
// Restore it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"koperasi/internal/api"
	"koperasi/internal/core"
	applog "koperasi/internal/log"
)

// TokenStore persists the single bearer token.
type TokenStore interface {
	LoadToken(ctx context.Context) (string, error)
	SaveToken(ctx context.Context, token string) error
	DeleteToken(ctx context.Context) error
}

// Session is safe for concurrent use and satisfies api.Authenticator.
type Session struct {
	mu    sync.RWMutex
	token string
	user  *core.User

	store  TokenStore
	logger *applog.Logger
}

var _ api.Authenticator = (*Session)(nil)

// New returns an empty session backed by store. A nil store keeps the
// token in memory only.
func New(store TokenStore, logger *applog.Logger) *Session {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Session{store: store, logger: logger.WithComponent(applog.ComponentSession)}
}

// Token returns the bearer token, or "" when signed out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns the user recorded at Begin or by the guard.
func (s *Session) User() (core.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return core.User{}, false
	}
	return *s.user, true
}

// Active reports whether a token is held.
func (s *Session) Active() bool {
	return s.Token() != ""
}

// Begin starts the session after a successful login.
func (s *Session) Begin(ctx context.Context, token string, user core.User) error {
	if token == "" {
		return fmt.Errorf("begin session: %w", api.ErrUnauthenticated)
	}
	if err := s.store.SaveToken(ctx, token); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	s.mu.Lock()
	s.token = token
	u := user
	s.user = &u
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Session started",
		applog.FieldOperation, applog.OpLogin,
		"user_id", user.ID.String(),
		"role", string(user.Role))
	return nil
}

// End clears the session and the persisted token.
func (s *Session) End(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.mu.Unlock()

	if err := s.store.DeleteToken(ctx); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	s.logger.InfoContext(ctx, "Session ended", applog.FieldOperation, applog.OpLogout)
	return nil
}

// Restore loads a persisted token. It reports whether one was found; the
// user stays unknown until the guard asks the server.
func (s *Session) Restore(ctx context.Context) (bool, error) {
	token, err := s.store.LoadToken(ctx)
	if err != nil {
		return false, fmt.Errorf("load token: %w", err)
	}
	s.mu.Lock()
	s.token = token
	s.user = nil
	s.mu.Unlock()
	return token != "", nil
}

// Invalidate ends the session after the server rejected the token.
func (s *Session) Invalidate(ctx context.Context) {
	if !s.Active() {
		return
	}
	s.logger.WarnContext(ctx, "Token rejected by server, ending session",
		applog.FieldErrorType, applog.ErrorTypeAuth)
	if err := s.End(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Failed to clear rejected token", applog.FieldError, err)
	}
}

func (s *Session) setUser(u core.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = &u
}

// MemoryStore is a TokenStore that forgets on exit.
type MemoryStore struct {
	mu    sync.Mutex
	token string
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) LoadToken(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *MemoryStore) SaveToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *MemoryStore) DeleteToken(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}

// IsRedirect reports whether err asks the caller to leave for another area.
func IsRedirect(err error) (*RedirectError, bool) {
	var r *RedirectError
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
