package session

import (
	"context"
	"fmt"
	"slices"

	"koperasi/internal/api"
	"koperasi/internal/core"
	applog "koperasi/internal/log"
)

// Identity resolves the user behind the current token.
type Identity interface {
	Me(ctx context.Context) (core.User, error)
}

// RedirectError means the user is signed in but belongs to another area.
type RedirectError struct {
	Role core.Role
	To   string
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("role %q not allowed here, go to %s", e.Role, e.To)
}

// Guard gates role-restricted operations.
type Guard struct {
	session  *Session
	identity Identity
}

func NewGuard(s *Session, id Identity) *Guard {
	return &Guard{session: s, identity: id}
}

// Require checks the token against /me and the user's role against
// allowed. Without a token, or when /me fails, the session is ended and
// api.ErrUnauthenticated returned. A role outside allowed yields a
// *RedirectError pointing at that role's home.
func (g *Guard) Require(ctx context.Context, allowed ...core.Role) (core.User, error) {
	if !g.session.Active() {
		return core.User{}, fmt.Errorf("no session: %w", api.ErrUnauthenticated)
	}

	u, err := g.identity.Me(ctx)
	if err != nil {
		g.session.logger.WarnContext(ctx, "Session check failed",
			applog.FieldError, err,
			applog.FieldErrorType, applog.ErrorTypeAuth)
		if endErr := g.session.End(ctx); endErr != nil {
			g.session.logger.ErrorContext(ctx, "Failed to end session", applog.FieldError, endErr)
		}
		return core.User{}, fmt.Errorf("verify session: %w: %w", api.ErrUnauthenticated, err)
	}
	g.session.setUser(u)

	if len(allowed) > 0 && !slices.Contains(allowed, u.Role) {
		return u, &RedirectError{Role: u.Role, To: core.HomePath(u.Role)}
	}
	return u, nil
}
