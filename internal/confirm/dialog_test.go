package confirm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"koperasi/internal/api"
	"koperasi/internal/core"
	"koperasi/internal/kopkartest"
	"koperasi/internal/listing"
	applog "koperasi/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

type tokenAuth string

func (t tokenAuth) Token() string              { return string(t) }
func (t tokenAuth) Invalidate(context.Context) {}

func newClient(t *testing.T, srv *kopkartest.Server) *api.Client {
	t.Helper()
	c, err := api.New(srv.URL, 5*time.Second,
		api.WithLogger(applog.Discard()),
		api.WithAuthenticator(tokenAuth(kopkartest.DefaultToken)))
	require.NoError(t, err)
	return c
}

func moderateLoan(c *api.Client) Mutation[core.Loan] {
	return func(ctx context.Context, l core.Loan, a Action) error {
		if a == ActionReject {
			return c.RejectLoan(ctx, l.ID)
		}
		return c.ApproveLoan(ctx, l.ID)
	}
}

func TestSubmitSuccessReloadsList(t *testing.T) {
	srv := kopkartest.New()
	defer srv.Close()
	srv.SeedLoans(3, "2024-05", core.LoanApplied)
	c := newClient(t, srv)

	ctrl := listing.Loans(c, applog.Discard())
	defer ctrl.Close()
	require.NoError(t, ctrl.Load(context.Background(), 1))
	rows := ctrl.Displayed()

	d := New(moderateLoan(c), ctrl, applog.Discard())
	require.NoError(t, d.Open(rows[1], ActionApprove))
	snap := d.Snapshot()
	assert.Equal(t, Pending, snap.State)
	assert.Equal(t, core.ID("2"), snap.Row.ID)

	require.NoError(t, d.Submit(context.Background()))
	assert.Equal(t, Closed, d.Snapshot().State)
	assert.Equal(t, 2, srv.Calls("GET /loans"), "authoritative page re-fetched")
	assert.Equal(t, core.LoanApproved, ctrl.Displayed()[1].Status)

	assert.ErrorIs(t, d.Submit(context.Background()), ErrNotOpen)
}

func TestSubmitFailureKeepsDialogOpen(t *testing.T) {
	srv := kopkartest.New()
	defer srv.Close()
	srv.SeedLoans(1, "2024-05", core.LoanApproved)
	c := newClient(t, srv)
	ctrl := listing.Loans(c, applog.Discard())
	defer ctrl.Close()

	d := New(moderateLoan(c), ctrl, applog.Discard())
	require.NoError(t, d.Open(core.Loan{ID: "1"}, ActionReject))
	err := d.Submit(context.Background())
	require.Error(t, err)

	snap := d.Snapshot()
	assert.Equal(t, Pending, snap.State)
	assert.Equal(t, "Pinjaman sudah diproses.", snap.Err)
	assert.Equal(t, ActionReject, snap.Action)
	assert.Equal(t, 0, srv.Calls("GET /loans"), "no reload after a failure")

	require.NoError(t, d.Cancel())
	assert.Equal(t, Closed, d.Snapshot().State)
	assert.Empty(t, d.Snapshot().Err)
}

func TestFallbackMessage(t *testing.T) {
	d := New(func(context.Context, core.Saving, Action) error {
		return errors.New("")
	}, nil, applog.Discard())
	require.NoError(t, d.Open(core.Saving{ID: "1"}, ActionDelete))
	require.Error(t, d.Submit(context.Background()))
	assert.Equal(t, "Gagal menghapus.", d.Snapshot().Err)

	assert.Equal(t, "Gagal mengubah data.", Fallback(ActionEdit))
	assert.Equal(t, "Gagal memperbarui status", Fallback(ActionApprove))
}

func TestNoDoubleSubmit(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	calls := 0
	d := New(func(context.Context, core.Loan, Action) error {
		calls++
		close(started)
		<-release
		return nil
	}, nil, applog.Discard())
	require.NoError(t, d.Open(core.Loan{ID: "1"}, ActionApprove))

	done := make(chan error, 1)
	go func() { done <- d.Submit(context.Background()) }()
	<-started

	assert.Equal(t, Submitting, d.Snapshot().State)
	assert.ErrorIs(t, d.Submit(context.Background()), ErrSubmitting)
	assert.ErrorIs(t, d.Open(core.Loan{ID: "2"}, ActionReject), ErrSubmitting)
	assert.ErrorIs(t, d.Cancel(), ErrSubmitting)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, calls)
}

func TestOpenCapturesRowCopy(t *testing.T) {
	var got core.Saving
	d := New(func(_ context.Context, s core.Saving, _ Action) error {
		got = s
		return nil
	}, nil, applog.Discard())

	rows := []core.Saving{{ID: "5", Amount: core.NewMoney(100000)}}
	require.NoError(t, d.Open(rows[0], ActionEdit))
	rows[0] = core.Saving{ID: "6"}

	assert.Equal(t, core.ID("5"), d.Snapshot().Row.ID)
	require.NoError(t, d.Submit(context.Background()))
	assert.Equal(t, core.ID("5"), got.ID)
}

func TestDeleteReloadsInsteadOfPatching(t *testing.T) {
	srv := kopkartest.New()
	defer srv.Close()
	srv.Savings = []core.Saving{
		{ID: "1", UserID: "42", Type: core.SavingWajib, Month: "2024-01-01", Amount: core.NewMoney(100000)},
		{ID: "2", UserID: "42", Type: core.SavingPokok, Month: "2024-01-01", Amount: core.NewMoney(50000)},
	}
	c := newClient(t, srv)
	ctrl := listing.Savings(c, applog.Discard())
	defer ctrl.Close()
	require.NoError(t, ctrl.Load(context.Background(), 1))
	require.Equal(t, 2, ctrl.View().Meta.Total)

	d := New(func(ctx context.Context, s core.Saving, _ Action) error {
		return c.DeleteSaving(ctx, s.ID)
	}, ctrl, applog.Discard())
	require.NoError(t, d.Open(ctrl.Displayed()[0], ActionDelete))
	require.NoError(t, d.Submit(context.Background()))

	v := ctrl.View()
	assert.Equal(t, 1, v.Meta.Total, "total comes from the server")
	require.Len(t, v.Items, 1)
	assert.Equal(t, core.ID("2"), v.Items[0].ID)
	assert.Equal(t, 2, srv.Calls("GET /savings"))
}
