package google

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	applog "koperasi/internal/log"
	ports "koperasi/internal/sheets"
)

// fakeSheets serves the subset of the Sheets v4 API the client uses.
type fakeSheets struct {
	mu      sync.Mutex
	tabs    []string
	values  map[string][][]any
	cleared []string
	calls   []string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := strings.TrimPrefix(r.URL.Path, "/v4/spreadsheets/sid")
	f.calls = append(f.calls, r.Method+" "+path)
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && path == "":
		ss := gsheet.Spreadsheet{SpreadsheetId: "sid"}
		for _, t := range f.tabs {
			ss.Sheets = append(ss.Sheets, &gsheet.Sheet{Properties: &gsheet.SheetProperties{Title: t}})
		}
		_ = json.NewEncoder(w).Encode(ss)
	case r.Method == http.MethodPost && path == ":batchUpdate":
		var req gsheet.BatchUpdateSpreadsheetRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, rq := range req.Requests {
			if rq.AddSheet != nil {
				f.tabs = append(f.tabs, rq.AddSheet.Properties.Title)
			}
		}
		_ = json.NewEncoder(w).Encode(gsheet.BatchUpdateSpreadsheetResponse{SpreadsheetId: "sid"})
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":clear"):
		rng := strings.TrimSuffix(strings.TrimPrefix(path, "/values/"), ":clear")
		f.cleared = append(f.cleared, rng)
		_ = json.NewEncoder(w).Encode(gsheet.ClearValuesResponse{ClearedRange: rng})
	case r.Method == http.MethodPut && strings.HasPrefix(path, "/values/"):
		rng := strings.TrimPrefix(path, "/values/")
		var vr gsheet.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		if f.values == nil {
			f.values = map[string][][]any{}
		}
		f.values[rng] = vr.Values
		_ = json.NewEncoder(w).Encode(gsheet.UpdateValuesResponse{UpdatedRange: rng, UpdatedRows: int64(len(vr.Values))})
	default:
		http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	c, err := NewWithOptions(context.Background(), "sid", applog.Discard(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), "  ", Credentials{}, applog.Discard())
	require.Error(t, err)
	assert.Equal(t, "missing GOOGLE_SPREADSHEET_ID", err.Error())
}

func TestNew_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err := New(context.Background(), "sid", Credentials{}, applog.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing service account credentials")
}

func TestNew_UnreadableCredentialsFile(t *testing.T) {
	_, err := New(context.Background(), "sid", Credentials{File: t.TempDir() + "/missing.json"}, applog.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read service account file")
}

func TestWrite_CreatesTab(t *testing.T) {
	fake := &fakeSheets{tabs: []string{"Sheet1"}}
	c := newTestClient(t, fake)

	loc, err := c.Write(context.Background(), ports.Document{
		Resource: "loans",
		Title:    "pinjaman",
		Name:     "pinjaman_semua_approved",
		Header:   []string{"ID", "Status"},
		Rows:     [][]string{{"1", "approved"}, {"2", "approved"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "'pinjaman_semua_approved'!A1", loc)
	assert.Contains(t, fake.tabs, "pinjaman_semua_approved")
	assert.Empty(t, fake.cleared, "a new tab needs no clearing")

	got := fake.values["'pinjaman_semua_approved'!A1"]
	require.Len(t, got, 3)
	assert.Equal(t, []any{"ID", "Status"}, got[0])
	assert.Equal(t, []any{"2", "approved"}, got[2])
}

func TestWrite_ExistingTabIsCleared(t *testing.T) {
	fake := &fakeSheets{tabs: []string{"pelunasan_page1"}}
	c := newTestClient(t, fake)

	_, err := c.Write(context.Background(), ports.Document{
		Title:  "pelunasan",
		Name:   "pelunasan_page1",
		Header: []string{"Settlement ID"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"'pelunasan_page1'"}, fake.cleared)
	assert.Equal(t, []string{"pelunasan_page1"}, fake.tabs)
}

func TestWrite_APIErrorIsWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"The caller does not have permission"}}`))
	}))
	defer srv.Close()
	c, err := NewWithOptions(context.Background(), "sid", applog.Discard(),
		goption.WithEndpoint(srv.URL+"/"), goption.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = c.Write(context.Background(), ports.Document{Name: "x", Header: []string{"a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read spreadsheet sid")
}

func TestTabTitle(t *testing.T) {
	assert.Equal(t, "pinjaman", tabTitle(ports.Document{Title: "pinjaman"}))
	long := strings.Repeat("x", 150)
	assert.Len(t, tabTitle(ports.Document{Name: long}), maxTitleLen)
	assert.Equal(t, "'it''s'", quote("it's"))
}
