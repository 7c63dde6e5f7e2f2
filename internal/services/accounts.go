package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"koperasi/internal/api"
	"koperasi/internal/core"
	applog "koperasi/internal/log"
)

type AccountsAPI interface {
	Login(ctx context.Context, email, password string) (api.LoginResult, error)
	Logout(ctx context.Context) error
	RegisterAdmin(ctx context.Context, r api.Registration) error
}

// SessionStarter is the part of *session.Session accounts drive.
type SessionStarter interface {
	Begin(ctx context.Context, token string, user core.User) error
	End(ctx context.Context) error
}

type Accounts struct {
	api     AccountsAPI
	session SessionStarter
	logger  *applog.Logger
}

func NewAccounts(a AccountsAPI, s SessionStarter, logger *applog.Logger) *Accounts {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Accounts{api: a, session: s, logger: logger.WithComponent(applog.ComponentSession)}
}

// Login signs in and starts the session. When area is set the user must
// have that role.
func (a *Accounts) Login(ctx context.Context, email, password string, area core.Role) (core.User, error) {
	res, err := a.api.Login(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return core.User{}, fmt.Errorf("login: %w", err)
	}
	if area != "" && res.User.Role != area {
		return core.User{}, fmt.Errorf("login as %s: %w", res.User.Role, ErrWrongArea)
	}
	if err := a.session.Begin(ctx, res.Token, res.User); err != nil {
		return core.User{}, err
	}
	return res.User, nil
}

// ErrWrongArea means valid credentials for a role other than the one the
// sign-in page belongs to.
var ErrWrongArea = errors.New("account belongs to another area")

// Logout tells the server and always clears the local session.
func (a *Accounts) Logout(ctx context.Context) error {
	if err := a.api.Logout(ctx); err != nil {
		a.logger.WarnContext(ctx, "Server logout failed, clearing local session anyway",
			applog.FieldError, err)
	}
	return a.session.End(ctx)
}

// RegisterAdmin creates an admin account. Validation failures come back as
// a map of field to first message next to the error.
func (a *Accounts) RegisterAdmin(ctx context.Context, r api.Registration) (map[string]string, error) {
	err := a.api.RegisterAdmin(ctx, r)
	if err == nil {
		a.logger.InfoContext(ctx, "Admin registered", "email", r.Email)
		return nil, nil
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Kind() == api.KindValidation {
		return apiErr.FieldMessages(), fmt.Errorf("register admin: %w", err)
	}
	return nil, fmt.Errorf("register admin: %w", err)
}
