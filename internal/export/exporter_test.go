package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/goleak"

	"koperasi/internal/api"
	"koperasi/internal/core"
	"koperasi/internal/handle"
	"koperasi/internal/kopkartest"
	"koperasi/internal/listing"
	applog "koperasi/internal/log"
	"koperasi/internal/pagination"
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

// seedScenario stores 25 loans on 3 pages; page 2 holds one rejected loan
// (ID 11) among approved ones.
func seedScenario(t *testing.T) (*kopkartest.Server, *api.Client) {
	t.Helper()
	srv := kopkartest.New()
	t.Cleanup(srv.Close)
	srv.SeedLoans(10, "2024-05", core.LoanApproved)
	srv.SeedLoans(1, "2024-05", core.LoanRejected)
	srv.SeedLoans(14, "2024-05", core.LoanApproved)
	srv.IgnoreFilters = true

	c, err := api.New(srv.URL, 5*time.Second,
		api.WithLogger(applog.Discard()),
		api.WithAuthenticator(tokenAuth(kopkartest.DefaultToken)))
	require.NoError(t, err)
	return srv, c
}

type memRecorder struct {
	mu   sync.Mutex
	recs []core.ExportRecord
}

func (m *memRecorder) RecordExport(_ context.Context, r core.ExportRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, r)
	return nil
}

func TestExportAll_ReappliesFilter(t *testing.T) {
	for _, mode := range []Mode{ModeSequential, ModeParallel} {
		t.Run(string(mode), func(t *testing.T) {
			srv, c := seedScenario(t)
			dir := t.TempDir()
			handles := handle.NewRegistry(t.TempDir(), applog.Discard())
			rec := &memRecorder{}
			exp := New(LoanTable(), c.ListLoans, listing.MatchLoan, NewFileSink(dir, handles),
				Options{Mode: mode, Concurrency: 2, Recorder: rec, Logger: applog.Discard()})

			res, err := exp.ExportAll(context.Background(), core.Filter{Status: "approved"})
			require.NoError(t, err)

			assert.Equal(t, "pinjaman_semua_approved", res.Filename)
			assert.Equal(t, filepath.Join(dir, "pinjaman_semua_approved.csv"), res.Location)
			assert.Equal(t, 24, res.Rows)
			assert.Equal(t, 0, handles.Live(), "transient handle released")

			data, err := os.ReadFile(res.Location)
			require.NoError(t, err)
			lines := strings.Split(string(data), "\n")
			require.Len(t, lines, 25)
			assert.Equal(t, strings.Join(LoanTable().Header, ","), lines[0])
			for _, l := range lines[1:] {
				assert.NotContains(t, l, "rejected")
				assert.False(t, strings.HasPrefix(l, "11,"), "rejected loan 11 is excluded")
			}

			for p := 1; p <= 3; p++ {
				assert.Equal(t, 1, srv.Calls("GET /loans?page="+strconv.Itoa(p)+"&status=approved"))
			}
			require.Len(t, rec.recs, 1)
			assert.Equal(t, "semua", rec.recs[0].Scope)
			assert.Equal(t, "file", rec.recs[0].Sink)
			assert.Equal(t, 24, rec.recs[0].Rows)
		})
	}
}

func TestExportAll_PageFailureAborts(t *testing.T) {
	fetch := func(_ context.Context, _ core.Filter, page int) (pagination.Page[core.Loan], error) {
		if page == 2 {
			return pagination.Page[core.Loan]{}, errors.New("boom")
		}
		p := pagination.Empty[core.Loan]()
		p.Items = []core.Loan{{ID: "1"}}
		p.Meta.CurrentPage, p.Meta.LastPage = page, 3
		return p, nil
	}
	dir := t.TempDir()
	handles := handle.NewRegistry(t.TempDir(), applog.Discard())

	for _, mode := range []Mode{ModeSequential, ModeParallel} {
		exp := New(LoanTable(), fetch, listing.MatchLoan, NewFileSink(dir, handles), Options{Mode: mode, Logger: applog.Discard()})
		_, err := exp.ExportAll(context.Background(), core.Filter{})
		require.Error(t, err, mode)
		assert.Contains(t, err.Error(), "fetch page 2")
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing is written on failure")
	assert.Equal(t, 0, handles.Live())
}

func TestCollectSequential_AdvancesPastStaleCurrentPage(t *testing.T) {
	calls := 0
	fetch := func(_ context.Context, _ core.Filter, page int) (pagination.Page[core.Loan], error) {
		calls++
		p := pagination.Empty[core.Loan]()
		p.Items = []core.Loan{{ID: core.ID(strconv.Itoa(page))}}
		// server keeps answering current_page 1
		p.Meta.LastPage = 2
		return p, nil
	}
	items, err := CollectAll[core.Loan](context.Background(), fetch, nil, core.Filter{}, ModeSequential, 0)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 2, calls)
}

func TestExportCurrent(t *testing.T) {
	_, c := seedScenario(t)
	ctrl := listing.Loans(c, applog.Discard())
	defer ctrl.Close()
	require.NoError(t, ctrl.SetFilter(context.Background(), core.Filter{Status: "approved"}))
	require.NoError(t, ctrl.SetPage(context.Background(), 2))

	dir := t.TempDir()
	handles := handle.NewRegistry(t.TempDir(), applog.Discard())
	exp := New(LoanTable(), c.ListLoans, listing.MatchLoan, NewFileSink(dir, handles), Options{Logger: applog.Discard()})

	res, err := exp.ExportDisplayed(context.Background(), ctrl)
	require.NoError(t, err)
	assert.Equal(t, "pinjaman_page2_approved", res.Filename)
	assert.Equal(t, 9, res.Rows, "the displayed rows after the client-side filter")
	assert.Equal(t, 0, handles.Live())
}

func TestXLSXSink(t *testing.T) {
	dir := t.TempDir()
	handles := handle.NewRegistry(t.TempDir(), applog.Discard())
	sink := NewXLSXSink(dir, handles)

	loc, err := sink.Write(context.Background(), Document{
		Resource: "savings",
		Title:    "simpanan",
		Name:     "simpanan_page1_2024-01",
		Header:   []string{"No", "Bulan"},
		Rows:     [][]string{{"1", "2024-01"}, {"2", "2024-01"}},
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "simpanan_page1_2024-01.xlsx"), loc)
	assert.Equal(t, 0, handles.Live())

	f, err := excelize.OpenFile(loc)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"simpanan"}, f.GetSheetList())
	rows, err := f.GetRows("simpanan")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"No", "Bulan"}, {"1", "2024-01"}, {"2", "2024-01"}}, rows)
}

func TestFactory(t *testing.T) {
	handles := handle.NewRegistry(t.TempDir(), applog.Discard())
	f := NewFactory(handles, applog.Discard())

	s, err := f.CreateSink(context.Background(), SinkConfig{Format: FormatCSV, Dir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "file", s.Name())

	s, err = f.CreateSink(context.Background(), SinkConfig{Format: FormatXLSX, Dir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "xlsx", s.Name())

	_, err = f.CreateSink(context.Background(), SinkConfig{Format: FormatSheets})
	assert.ErrorContains(t, err, "Spreadsheet ID is required")

	_, err = f.CreateSink(context.Background(), SinkConfig{Format: "pdf"})
	assert.ErrorContains(t, err, "invalid export format")

	_, err = f.CreateSink(context.Background(), SinkConfig{Format: FormatCSV})
	assert.ErrorContains(t, err, "export directory is required")
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "pelunasan_page3", FileName("pelunasan", PageScope(3), core.Filter{}))
	assert.Equal(t, "pelunasan_semua_2024-05_approved",
		FileName("pelunasan", ScopeAll, core.Filter{Month: "2024-05", Status: "approved"}))
	assert.Equal(t, "simpanan_semua_user---------escaped",
		FileName("simpanan", ScopeAll, core.Filter{EmployeeID: "../../../escaped"}))
	assert.Equal(t, "pinjaman_page1_a-b",
		FileName("pinjaman", PageScope(1), core.Filter{Status: "a/b"}))
}

func TestFileSink_StaysInExportDir(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "exports")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	sink := NewFileSink(dir, handle.NewRegistry(t.TempDir(), applog.Discard()))
	ctx := context.Background()

	name := FileName("simpanan", ScopeAll, core.Filter{EmployeeID: "../../../escaped"})
	loc, err := sink.Write(ctx, Document{Name: name, Header: []string{"No"}})
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(loc))
	assert.Equal(t, name+".csv", filepath.Base(loc))
	_, err = os.Stat(filepath.Join(root, "escaped.csv"))
	assert.True(t, os.IsNotExist(err))

	_, err = sink.Write(ctx, Document{Name: "../escaped", Header: []string{"No"}})
	assert.ErrorIs(t, err, ErrUnsafeFileName)
	_, err = NewXLSXSink(dir, handle.NewRegistry(t.TempDir(), applog.Discard())).Write(ctx, Document{Name: "a/../../b"})
	assert.ErrorIs(t, err, ErrUnsafeFileName)
}
