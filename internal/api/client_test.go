package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"koperasi/internal/core"
	"koperasi/internal/kopkartest"
	applog "koperasi/internal/log"
)

type staticAuth struct {
	token       string
	invalidated atomic.Int32
}

func (a *staticAuth) Token() string { return a.token }

func (a *staticAuth) Invalidate(context.Context) { a.invalidated.Add(1) }

func newTestClient(t *testing.T, srv *kopkartest.Server, token string) (*Client, *staticAuth) {
	t.Helper()
	auth := &staticAuth{token: token}
	c, err := New(srv.URL, 5*time.Second, WithAuthenticator(auth), WithLogger(applog.Discard()))
	require.NoError(t, err)
	return c, auth
}

func TestNew_RejectsBadScheme(t *testing.T) {
	_, err := New("ftp://example.test", time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be http or https")
}

func TestLogin(t *testing.T) {
	srv := kopkartest.New()
	defer srv.Close()
	c, _ := newTestClient(t, srv, "")

	res, err := c.Login(context.Background(), "budi@koperasi.test", kopkartest.DefaultPassword)
	require.NoError(t, err)
	assert.Equal(t, kopkartest.DefaultToken, res.Token)
	assert.Equal(t, core.RoleKaryawan, res.User.Role)

	_, err = c.Login(context.Background(), "budi@koperasi.test", "salah")
	require.Error(t, err)
	assert.Equal(t, "Email atau password salah", UserMessage(err, "fallback"))

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, KindValidation, apiErr.Kind())
}

func TestUnauthorizedInvalidatesSession(t *testing.T) {
	srv := kopkartest.New()
	defer srv.Close()
	c, auth := newTestClient(t, srv, "expired")

	_, err := c.Me(context.Background())
	require.Error(t, err)
	assert.True(t, IsUnauthenticated(err))
	assert.EqualValues(t, 1, auth.invalidated.Load())
}

func TestListLoans_BothShapes(t *testing.T) {
	for _, wrapped := range []bool{false, true} {
		srv := kopkartest.New()
		srv.Wrapped = wrapped
		srv.SeedLoans(25, "2024-05", core.LoanApproved)
		c, _ := newTestClient(t, srv, kopkartest.DefaultToken)

		page, err := c.ListLoans(context.Background(), core.Filter{Status: "approved"}, 2)
		require.NoError(t, err)
		assert.Len(t, page.Items, 10)
		assert.Equal(t, 2, page.Meta.CurrentPage)
		assert.Equal(t, 3, page.Meta.LastPage)
		assert.Equal(t, 25, page.Meta.Total)
		assert.Equal(t, 11, page.Meta.From)
		assert.Equal(t, 20, page.Meta.To)
		require.NotNil(t, page.Meta.NextPageURL)
		assert.Contains(t, *page.Meta.NextPageURL, "page=3")
		assert.Equal(t, "Budi Santoso", page.Items[0].EmployeeName())

		assert.Equal(t, 1, srv.Calls("GET /loans?page=2&status=approved"))
		srv.Close()
	}
}

func TestSavingsCRUD(t *testing.T) {
	srv := kopkartest.New()
	defer srv.Close()
	srv.Users = []core.User{{ID: "7", Name: "Siti", Role: core.RoleKaryawan}}
	c, _ := newTestClient(t, srv, kopkartest.DefaultToken)
	ctx := context.Background()

	require.NoError(t, c.CreateSaving(ctx, NewSaving{UserID: "7", Type: core.SavingWajib, Month: "2024-05-01", Amount: core.NewMoney(100000)}))

	page, err := c.ListSavings(ctx, core.Filter{EmployeeID: "7"}, 1)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	id := page.Items[0].ID
	assert.Equal(t, "Siti", page.Items[0].User.Name)

	require.NoError(t, c.UpdateSaving(ctx, id, SavingUpdate{Amount: core.NewMoney(150000), Type: core.SavingPokok}))
	sum, err := c.SavingsSummary(ctx, 2024, "7")
	require.NoError(t, err)
	assert.True(t, sum.TotalPokok.Equal(decimal.NewFromInt(150000)), sum.TotalPokok.String())
	assert.True(t, sum.TotalWajib.IsZero())

	require.NoError(t, c.DeleteSaving(ctx, id))
	page, err = c.ListSavings(ctx, core.Filter{}, 1)
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	err = c.DeleteSaving(ctx, id)
	require.Error(t, err)
	assert.Equal(t, "Simpanan tidak ditemukan.", UserMessage(err, "fallback"))
}

func TestCreateSaving_FieldError(t *testing.T) {
	srv := kopkartest.New()
	defer srv.Close()
	c, _ := newTestClient(t, srv, kopkartest.DefaultToken)

	err := c.CreateSaving(context.Background(), NewSaving{UserID: "7", Type: core.SavingWajib, Month: "2024-05", Amount: core.NewMoney(0)})
	require.Error(t, err)
	assert.Equal(t, "Jumlah harus lebih dari 0.", UserMessage(err, "fallback"))
}

func TestSubmitSettlementAndProof(t *testing.T) {
	srv := kopkartest.New()
	defer srv.Close()
	c, _ := newTestClient(t, srv, kopkartest.DefaultToken)
	ctx := context.Background()

	pdf := "%PDF-1.4\n%fake\n"
	err := c.SubmitSettlement(ctx, SettlementSubmission{
		LoanID:    "5",
		Amount:    "500000",
		Proof:     strings.NewReader(pdf),
		ProofName: "bukti.pdf",
	})
	require.NoError(t, err)

	uploads := srv.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, "5", uploads[0].LoanID)
	assert.Equal(t, "bukti.pdf", uploads[0].Filename)
	assert.Equal(t, len(pdf), uploads[0].Size)

	page, err := c.ListSettlements(ctx, core.Filter{}, 1)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	st := page.Items[0]
	assert.True(t, st.HasProof())

	att, err := c.SettlementProof(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", att.ContentType)
	assert.Equal(t, pdf, string(att.Data))

	require.NoError(t, c.ApproveSettlement(ctx, st.ID))
	err = c.RejectSettlement(ctx, st.ID)
	require.Error(t, err)
	assert.Equal(t, "Pelunasan sudah diproses.", UserMessage(err, "Gagal memperbarui status"))
}

func TestSubmitSettlement_MissingProof(t *testing.T) {
	srv := kopkartest.New()
	defer srv.Close()
	c, _ := newTestClient(t, srv, kopkartest.DefaultToken)

	err := c.SubmitSettlement(context.Background(), SettlementSubmission{LoanID: "5"})
	require.Error(t, err)
	assert.Equal(t, "Bukti pembayaran wajib diunggah.", UserMessage(err, "fallback"))
}

func TestLoanModeration(t *testing.T) {
	srv := kopkartest.New()
	defer srv.Close()
	srv.SeedLoans(2, "2024-05", core.LoanApplied)
	c, _ := newTestClient(t, srv, kopkartest.DefaultToken)
	ctx := context.Background()

	require.NoError(t, c.ApproveLoan(ctx, "1"))
	require.NoError(t, c.RejectLoan(ctx, "2"))

	page, err := c.ListLoans(ctx, core.Filter{Status: string(core.LoanApproved)}, 1)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, core.ID("1"), page.Items[0].ID)
}

func TestApplyLoan(t *testing.T) {
	srv := kopkartest.New()
	defer srv.Close()
	c, _ := newTestClient(t, srv, kopkartest.DefaultToken)

	loan, err := c.ApplyLoan(context.Background(), LoanApplication{
		Amount:      "2500000",
		SubmittedAt: "2024-06-01 00:00:00",
		Phone:       "08123",
		Address:     "Jl. Kenanga 1",
	})
	require.NoError(t, err)
	assert.Equal(t, core.LoanApplied, loan.Status)
	assert.Equal(t, "Rp 2.500.000", loan.Amount.FormatIDR())
}

func TestDividendAndSummaries(t *testing.T) {
	srv := kopkartest.New()
	defer srv.Close()
	srv.Dividends["42-2024"] = decimal.NewFromInt(125000)
	srv.Users = []core.User{
		{ID: "1", Name: "Admin", Role: core.RoleAdmin},
		{ID: "42", Name: "Budi", Role: core.RoleKaryawan},
		{ID: "7", Name: "Siti", Role: core.RoleKaryawan},
	}
	c, _ := newTestClient(t, srv, kopkartest.DefaultToken)
	ctx := context.Background()

	d, err := c.Dividend(ctx, 2024, "42")
	require.NoError(t, err)
	assert.Equal(t, "Rp 125.000", d.FormatIDR())

	d, err = c.Dividend(ctx, 2023, "")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	users, err := c.Users(ctx, core.RoleKaryawan)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Budi", users[0].Name)

	sum, err := c.UsersSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Roles.Admin)
	assert.Equal(t, 2, sum.Roles.Karyawan)
}

func TestRegisterAdmin_FieldOrder(t *testing.T) {
	srv := kopkartest.New()
	defer srv.Close()
	srv.Fail(http.MethodPost, "/admin/register", http.StatusUnprocessableEntity,
		`{"message":"The given data was invalid.","errors":{"name":["Nama wajib diisi."],"email":["Email tidak valid."]}}`)
	c, _ := newTestClient(t, srv, kopkartest.DefaultToken)

	err := c.RegisterAdmin(context.Background(), Registration{})
	require.Error(t, err)
	assert.Equal(t, "Nama wajib diisi.", UserMessage(err, "fallback"))

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, []string{"name", "email"}, []string{apiErr.Fields[0].Field, apiErr.Fields[1].Field})
	assert.Equal(t, map[string]string{"name": "Nama wajib diisi.", "email": "Email tidak valid."}, apiErr.FieldMessages())
}

func TestTransportFailure(t *testing.T) {
	srv := kopkartest.New()
	c, _ := newTestClient(t, srv, kopkartest.DefaultToken)
	srv.Close()

	_, err := c.ListLoans(context.Background(), core.Filter{}, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.NotEmpty(t, UserMessage(err, "Gagal memuat data pinjaman"))
}

func TestCancelledContext(t *testing.T) {
	srv := kopkartest.New()
	defer srv.Close()
	c, _ := newTestClient(t, srv, kopkartest.DefaultToken)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Me(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
