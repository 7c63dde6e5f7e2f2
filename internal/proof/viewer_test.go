package proof

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"koperasi/internal/api"
	"koperasi/internal/core"
	"koperasi/internal/handle"
	"koperasi/internal/kopkartest"
	applog "koperasi/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

type fetchFunc func(ctx context.Context, id core.ID) (api.Attachment, error)

func (f fetchFunc) SettlementProof(ctx context.Context, id core.ID) (api.Attachment, error) {
	return f(ctx, id)
}

type tokenAuth string

func (t tokenAuth) Token() string              { return string(t) }
func (t tokenAuth) Invalidate(context.Context) {}

func newAPIViewer(t *testing.T) (*Viewer, *handle.Registry, *kopkartest.Server) {
	t.Helper()
	srv := kopkartest.New()
	t.Cleanup(srv.Close)
	srv.Proofs["1"] = kopkartest.Proof{Data: []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, ContentType: "image/png"}
	srv.Proofs["2"] = kopkartest.Proof{Data: []byte("%PDF-1.4\n"), ContentType: "application/pdf"}

	c, err := api.New(srv.URL, 5*time.Second,
		api.WithLogger(applog.Discard()),
		api.WithAuthenticator(tokenAuth(kopkartest.DefaultToken)))
	require.NoError(t, err)
	reg := handle.NewRegistry(t.TempDir(), applog.Discard())
	return NewViewer(c, reg, applog.Discard()), reg, srv
}

func TestOpenReleasesPreviousHandle(t *testing.T) {
	v, reg, _ := newAPIViewer(t)
	ctx := context.Background()

	snap, err := v.Open(ctx, core.Settlement{ID: "1"})
	require.NoError(t, err)
	assert.Equal(t, Displaying, snap.State)
	require.NotNil(t, snap.Preview)
	assert.Equal(t, KindImage, snap.Preview.Kind)
	assert.False(t, snap.Preview.External)
	first := snap.Preview.Path
	assert.Equal(t, 1, reg.Live())

	snap, err = v.Open(ctx, core.Settlement{ID: "2"})
	require.NoError(t, err)
	assert.Equal(t, KindPDF, snap.Preview.Kind)
	assert.True(t, snap.Preview.External, "PDFs open in a separate viewer")
	assert.Equal(t, core.ID("2"), snap.Selected.ID)
	assert.Equal(t, 1, reg.Live(), "never more than one live handle")
	_, statErr := os.Stat(first)
	assert.True(t, os.IsNotExist(statErr), "first preview removed")

	dst := filepath.Join(t.TempDir(), "bukti.pdf")
	require.NoError(t, v.SaveAs(dst))
	saved, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4\n", string(saved))

	v.Close()
	snap = v.Snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.Nil(t, snap.Selected)
	assert.Nil(t, snap.Preview)
	assert.Equal(t, 0, reg.Live())
	assert.ErrorIs(t, v.SaveAs(dst), ErrNoPreview)
}

func TestOpenFailure(t *testing.T) {
	v, reg, srv := newAPIViewer(t)
	srv.Fail("GET", "/settlements/9/proof", 404, `{"message":"Bukti tidak ditemukan."}`)

	snap, err := v.Open(context.Background(), core.Settlement{ID: "9"})
	require.Error(t, err)
	assert.Equal(t, Failed, snap.State)
	assert.Equal(t, "Bukti tidak ditemukan.", snap.Err)
	assert.Nil(t, snap.Preview)
	assert.Equal(t, 0, reg.Live())

	// a later successful open clears the error
	snap, err = v.Open(context.Background(), core.Settlement{ID: "1"})
	require.NoError(t, err)
	assert.Empty(t, snap.Err)

	v.Close()
	assert.Equal(t, 0, reg.Live())
}

func TestStaleCompletionReleasesItsHandle(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := fetchFunc(func(_ context.Context, id core.ID) (api.Attachment, error) {
		if id == "slow" {
			close(started)
			<-release
		}
		return api.Attachment{Data: []byte("img-" + id.String()), ContentType: "image/jpeg"}, nil
	})
	reg := handle.NewRegistry(t.TempDir(), applog.Discard())
	v := NewViewer(fetch, reg, applog.Discard())

	errCh := make(chan error, 1)
	go func() {
		_, err := v.Open(context.Background(), core.Settlement{ID: "slow"})
		errCh <- err
	}()
	<-started

	snap, err := v.Open(context.Background(), core.Settlement{ID: "fast"})
	require.NoError(t, err)
	assert.Equal(t, Displaying, snap.State)

	close(release)
	assert.ErrorIs(t, <-errCh, ErrSuperseded)

	assert.Equal(t, 1, reg.Live())
	snap = v.Snapshot()
	assert.Equal(t, core.ID("fast"), snap.Selected.ID)

	v.Shutdown()
	assert.Equal(t, 0, reg.Live())
	_, err = v.Open(context.Background(), core.Settlement{ID: "fast"})
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestCloseWhileLoading(t *testing.T) {
	started := make(chan struct{})
	fetch := fetchFunc(func(ctx context.Context, _ core.ID) (api.Attachment, error) {
		close(started)
		<-ctx.Done()
		return api.Attachment{Data: []byte("late"), ContentType: "image/png"}, nil
	})
	reg := handle.NewRegistry(t.TempDir(), applog.Discard())
	v := NewViewer(fetch, reg, applog.Discard())

	errCh := make(chan error, 1)
	go func() {
		_, err := v.Open(context.Background(), core.Settlement{ID: "1"})
		errCh <- err
	}()
	<-started
	v.Close()

	assert.ErrorIs(t, <-errCh, ErrSuperseded)
	assert.Equal(t, Idle, v.Snapshot().State)
	assert.Equal(t, 0, reg.Live())
}

func TestKindOf(t *testing.T) {
	tests := map[string]Kind{
		"image/png":                 KindImage,
		"image/jpeg; charset=utf-8": KindImage,
		"application/pdf":           KindPDF,
		"APPLICATION/PDF":           KindPDF,
		"application/octet-stream":  KindOther,
		"":                          KindOther,
	}
	for ct, want := range tests {
		assert.Equal(t, want, KindOf(ct), ct)
	}
	assert.Equal(t, "displaying", Displaying.String())
}
