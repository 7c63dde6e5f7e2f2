package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"koperasi/internal/core"
	applog "koperasi/internal/log"
	"koperasi/internal/session"
)

var _ session.TokenStore = (*SQLiteRepository)(nil)

func newRepo(t *testing.T) (*SQLiteRepository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "koperasi.db")
	repo, err := NewSQLiteRepository(path, applog.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo, path
}

func TestTokenStore(t *testing.T) {
	repo, path := newRepo(t)
	ctx := context.Background()

	token, err := repo.LoadToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, repo.SaveToken(ctx, "first"))
	require.NoError(t, repo.SaveToken(ctx, "second"))
	token, err = repo.LoadToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", token, "single key, latest wins")

	// a second process sees the same token
	require.NoError(t, repo.Close())
	reopened, err := NewSQLiteRepository(path, applog.Discard())
	require.NoError(t, err)
	defer reopened.Close()
	token, err = reopened.LoadToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", token)

	require.NoError(t, reopened.DeleteToken(ctx))
	token, err = reopened.LoadToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.NoError(t, reopened.DeleteToken(ctx), "deleting twice is fine")
}

func TestExportLog(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

	first := core.ExportRecord{Resource: "pinjaman", Scope: "semua", Sink: "file", Location: "/tmp/pinjaman_semua.csv", Rows: 24, CreatedAt: at}
	second := core.ExportRecord{Resource: "simpanan", Scope: "page2", Sink: "xlsx", Location: "/tmp/simpanan_page2.xlsx", Rows: 20, CreatedAt: at.Add(time.Minute)}
	require.NoError(t, repo.RecordExport(ctx, first))
	require.NoError(t, repo.RecordExport(ctx, second))

	got, err := repo.ListExports(ctx, 0)
	require.NoError(t, err)
	if diff := cmp.Diff([]core.ExportRecord{second, first}, got); diff != "" {
		t.Errorf("ListExports mismatch (-want +got):\n%s", diff)
	}

	got, err = repo.ListExports(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "simpanan", got[0].Resource)
}

func TestRecordExport_StampsTime(t *testing.T) {
	repo, _ := newRepo(t)
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	require.NoError(t, repo.RecordExport(context.Background(), core.ExportRecord{Resource: "pelunasan", Scope: "page1", Sink: "file", Location: "x"}))
	got, err := repo.ListExports(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].CreatedAt.Equal(fixed))
}

func TestRecordAudit_Idempotent(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	ev := core.AuditEvent{
		EventID:    "8d3e1a52-0b7c-4d4e-9d0f-3a2b1c0d9e8f",
		Resource:   "loans",
		ResourceID: "11",
		Action:     "reject",
		ActorID:    "1",
		OccurredAt: time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC),
	}

	inserted, err := repo.RecordAudit(ctx, ev)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.RecordAudit(ctx, ev)
	require.NoError(t, err)
	assert.False(t, inserted, "redelivery is ignored")

	events, err := repo.ListAuditEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "reject", events[0].Action)
	assert.True(t, events[0].OccurredAt.Equal(ev.OccurredAt))
	assert.False(t, events[0].RecordedAt.IsZero())

	_, err = repo.RecordAudit(ctx, core.AuditEvent{Resource: "loans"})
	assert.Error(t, err)
}

func TestRunMigrations_Idempotent(t *testing.T) {
	_, path := newRepo(t)
	version, err := RunMigrations(path, applog.Discard())
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
}
