// Package storage keeps the local state of the client in SQLite: the
// session token, the export log and the audit trail written by the
// worker.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"koperasi/internal/core"
	applog "koperasi/internal/log"

	_ "modernc.org/sqlite"
)

// tokenKey is the single row of session_tokens.
const tokenKey = "token"

// DefaultListLimit bounds ListExports and ListAuditEvents when limit <= 0.
const DefaultListLimit = 50

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	logger  *applog.Logger
	now     func() time.Time
}

// NewSQLiteRepository opens (creating when needed) the database at dbPath
// and migrates it to the latest schema.
func NewSQLiteRepository(dbPath string, logger *applog.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentStorage)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := RunMigrations(dsn, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		logger:  logger,
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// LoadToken returns the persisted token, or "" when there is none.
func (r *SQLiteRepository) LoadToken(ctx context.Context) (string, error) {
	token, err := r.queries.GetToken(ctx, tokenKey)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}
	return token, nil
}

func (r *SQLiteRepository) SaveToken(ctx context.Context, token string) error {
	if err := r.queries.UpsertToken(ctx, tokenKey, token, r.now()); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteToken(ctx context.Context) error {
	if err := r.queries.DeleteToken(ctx, tokenKey); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

// RecordExport appends rec to the export log. A zero CreatedAt is stamped
// with the current time.
func (r *SQLiteRepository) RecordExport(ctx context.Context, rec core.ExportRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now()
	}
	id, err := r.queries.CreateExportLog(ctx, CreateExportLogParams{
		Resource:  rec.Resource,
		Scope:     rec.Scope,
		Sink:      rec.Sink,
		Location:  rec.Location,
		RowCount:  int64(rec.Rows),
		CreatedAt: rec.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("record export: %w", err)
	}
	r.logger.DebugContext(ctx, "Export recorded",
		"id", id,
		applog.FieldResource, rec.Resource,
		applog.FieldLocation, rec.Location)
	return nil
}

// ListExports returns the most recent exports first.
func (r *SQLiteRepository) ListExports(ctx context.Context, limit int) ([]core.ExportRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := r.queries.ListExportLog(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	out := make([]core.ExportRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, core.ExportRecord{
			Resource:  row.Resource,
			Scope:     row.Scope,
			Sink:      row.Sink,
			Location:  row.Location,
			Rows:      int(row.RowCount),
			CreatedAt: row.CreatedAt,
		})
	}
	return out, nil
}

// RecordAudit stores ev once. It reports false when an event with the same
// id was already recorded, which makes redelivered messages harmless.
func (r *SQLiteRepository) RecordAudit(ctx context.Context, ev core.AuditEvent) (bool, error) {
	if ev.EventID == "" {
		return false, errors.New("record audit: missing event id")
	}
	if ev.RecordedAt.IsZero() {
		ev.RecordedAt = r.now()
	}
	n, err := r.queries.InsertAuditEvent(ctx, InsertAuditEventParams{
		EventID:    ev.EventID,
		Resource:   ev.Resource,
		ResourceID: ev.ResourceID,
		Action:     ev.Action,
		ActorID:    ev.ActorID,
		Detail:     ev.Detail,
		OccurredAt: ev.OccurredAt,
		RecordedAt: ev.RecordedAt,
	})
	if err != nil {
		return false, fmt.Errorf("record audit %s: %w", ev.EventID, err)
	}
	return n > 0, nil
}

// ListAuditEvents returns the most recent audit events first.
func (r *SQLiteRepository) ListAuditEvents(ctx context.Context, limit int) ([]core.AuditEvent, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := r.queries.ListAuditEvents(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	out := make([]core.AuditEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, core.AuditEvent{
			EventID:    row.EventID,
			Resource:   row.Resource,
			ResourceID: row.ResourceID,
			Action:     row.Action,
			ActorID:    row.ActorID,
			Detail:     row.Detail,
			OccurredAt: row.OccurredAt,
			RecordedAt: row.RecordedAt,
		})
	}
	return out, nil
}
