package storage

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

const getToken = `SELECT token FROM session_tokens WHERE key = ?`

func (q *Queries) GetToken(ctx context.Context, key string) (string, error) {
	var token string
	err := q.db.QueryRowContext(ctx, getToken, key).Scan(&token)
	return token, err
}

const upsertToken = `
INSERT INTO session_tokens (key, token, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at`

func (q *Queries) UpsertToken(ctx context.Context, key, token string, at time.Time) error {
	_, err := q.db.ExecContext(ctx, upsertToken, key, token, formatTime(at))
	return err
}

const deleteToken = `DELETE FROM session_tokens WHERE key = ?`

func (q *Queries) DeleteToken(ctx context.Context, key string) error {
	_, err := q.db.ExecContext(ctx, deleteToken, key)
	return err
}

type ExportLogRow struct {
	ID        int64
	Resource  string
	Scope     string
	Sink      string
	Location  string
	RowCount  int64
	CreatedAt time.Time
}

type CreateExportLogParams struct {
	Resource  string
	Scope     string
	Sink      string
	Location  string
	RowCount  int64
	CreatedAt time.Time
}

const createExportLog = `
INSERT INTO export_log (resource, scope, sink, location, row_count, created_at)
VALUES (?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateExportLog(ctx context.Context, arg CreateExportLogParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, createExportLog,
		arg.Resource, arg.Scope, arg.Sink, arg.Location, arg.RowCount, formatTime(arg.CreatedAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const listExportLog = `
SELECT id, resource, scope, sink, location, row_count, created_at
FROM export_log ORDER BY id DESC LIMIT ?`

func (q *Queries) ListExportLog(ctx context.Context, limit int64) ([]ExportLogRow, error) {
	rows, err := q.db.QueryContext(ctx, listExportLog, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ExportLogRow
	for rows.Next() {
		var (
			i       ExportLogRow
			created string
		)
		if err := rows.Scan(&i.ID, &i.Resource, &i.Scope, &i.Sink, &i.Location, &i.RowCount, &created); err != nil {
			return nil, err
		}
		i.CreatedAt = parseTime(created)
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type AuditEventRow struct {
	ID         int64
	EventID    string
	Resource   string
	ResourceID string
	Action     string
	ActorID    string
	Detail     string
	OccurredAt time.Time
	RecordedAt time.Time
}

type InsertAuditEventParams struct {
	EventID    string
	Resource   string
	ResourceID string
	Action     string
	ActorID    string
	Detail     string
	OccurredAt time.Time
	RecordedAt time.Time
}

const insertAuditEvent = `
INSERT INTO audit_events (event_id, resource, resource_id, action, actor_id, detail, occurred_at, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(event_id) DO NOTHING`

// InsertAuditEvent reports how many rows were inserted: 0 for a duplicate
// event id.
func (q *Queries) InsertAuditEvent(ctx context.Context, arg InsertAuditEventParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertAuditEvent,
		arg.EventID, arg.Resource, arg.ResourceID, arg.Action, arg.ActorID, arg.Detail,
		formatTime(arg.OccurredAt), formatTime(arg.RecordedAt))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listAuditEvents = `
SELECT id, event_id, resource, resource_id, action, actor_id, detail, occurred_at, recorded_at
FROM audit_events ORDER BY id DESC LIMIT ?`

func (q *Queries) ListAuditEvents(ctx context.Context, limit int64) ([]AuditEventRow, error) {
	rows, err := q.db.QueryContext(ctx, listAuditEvents, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []AuditEventRow
	for rows.Next() {
		var (
			i                  AuditEventRow
			occurred, recorded string
		)
		if err := rows.Scan(&i.ID, &i.EventID, &i.Resource, &i.ResourceID, &i.Action,
			&i.ActorID, &i.Detail, &occurred, &recorded); err != nil {
			return nil, err
		}
		i.OccurredAt = parseTime(occurred)
		i.RecordedAt = parseTime(recorded)
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
