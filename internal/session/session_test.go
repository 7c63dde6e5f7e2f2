package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"koperasi/internal/api"
	"koperasi/internal/core"
	"koperasi/internal/kopkartest"
	applog "koperasi/internal/log"
)

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	s := New(store, applog.Discard())

	assert.False(t, s.Active())
	require.Error(t, s.Begin(ctx, "", core.User{}))

	require.NoError(t, s.Begin(ctx, "abc", core.User{ID: "1", Role: core.RoleAdmin}))
	assert.Equal(t, "abc", s.Token())
	u, ok := s.User()
	require.True(t, ok)
	assert.Equal(t, core.RoleAdmin, u.Role)

	persisted, _ := store.LoadToken(ctx)
	assert.Equal(t, "abc", persisted)

	// a second process restores the token but not the user
	other := New(store, applog.Discard())
	found, err := other.Restore(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "abc", other.Token())
	_, ok = other.User()
	assert.False(t, ok)

	require.NoError(t, s.End(ctx))
	assert.False(t, s.Active())
	persisted, _ = store.LoadToken(ctx)
	assert.Empty(t, persisted)
}

type failingStore struct{ MemoryStore }

func (f *failingStore) SaveToken(context.Context, string) error { return errors.New("disk full") }

func TestBegin_StoreFailureKeepsSignedOut(t *testing.T) {
	s := New(&failingStore{}, applog.Discard())
	err := s.Begin(context.Background(), "abc", core.User{ID: "1"})
	require.Error(t, err)
	assert.False(t, s.Active())
}

func TestGuard(t *testing.T) {
	srv := kopkartest.New()
	defer srv.Close()

	newGuard := func(token string) (*Guard, *Session) {
		s := New(nil, applog.Discard())
		if token != "" {
			require.NoError(t, s.Begin(context.Background(), token, core.User{}))
		}
		c, err := api.New(srv.URL, 5*time.Second, api.WithAuthenticator(s), api.WithLogger(applog.Discard()))
		require.NoError(t, err)
		return NewGuard(s, c), s
	}

	t.Run("no token", func(t *testing.T) {
		g, _ := newGuard("")
		_, err := g.Require(context.Background(), core.RoleKaryawan)
		assert.ErrorIs(t, err, api.ErrUnauthenticated)
		assert.Equal(t, 0, srv.Calls("GET /me"))
	})

	t.Run("allowed role", func(t *testing.T) {
		g, s := newGuard(kopkartest.DefaultToken)
		u, err := g.Require(context.Background(), core.RoleKaryawan)
		require.NoError(t, err)
		assert.Equal(t, core.ID("42"), u.ID)
		cached, ok := s.User()
		require.True(t, ok)
		assert.Equal(t, "Budi Santoso", cached.Name)
	})

	t.Run("wrong area redirects home", func(t *testing.T) {
		g, s := newGuard(kopkartest.DefaultToken)
		_, err := g.Require(context.Background(), core.RoleAdmin)
		r, ok := IsRedirect(err)
		require.True(t, ok)
		assert.Equal(t, "/karyawan", r.To)
		assert.True(t, s.Active(), "a redirect keeps the session")
	})

	t.Run("rejected token ends session", func(t *testing.T) {
		g, s := newGuard("stale")
		_, err := g.Require(context.Background())
		assert.ErrorIs(t, err, api.ErrUnauthenticated)
		assert.False(t, s.Active())
	})
}
