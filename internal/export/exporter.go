// Package export serializes resource rows and hands them to a sink: CSV
// or XLSX files in the export directory, or a Google Sheets tab.
//
// A current-page export writes exactly the rows on display. An all-pages
// export refetches pages 1..last_page, re-applies the filter predicate in
// case the server ignored a parameter, and writes the union.
package export

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"koperasi/internal/core"
	"koperasi/internal/listing"
	applog "koperasi/internal/log"
)

// ScopeAll is the file name scope of an all-pages export.
const ScopeAll = "semua"

// Recorder keeps a log of completed exports.
type Recorder interface {
	RecordExport(ctx context.Context, rec core.ExportRecord) error
}

type Options struct {
	Mode        Mode
	Concurrency int
	// Recorder is optional.
	Recorder Recorder
	Logger   *applog.Logger
}

// Result describes a written export.
type Result struct {
	Filename string
	Location string
	Rows     int
}

type Exporter[T any] struct {
	table      Table[T]
	fetch      listing.Fetcher[T]
	match      listing.Predicate[T]
	sink       Sink
	opts       Options
	logger     *applog.Logger
	structured *applog.StructuredLogger
}

func New[T any](table Table[T], fetch listing.Fetcher[T], match listing.Predicate[T], sink Sink, opts Options) *Exporter[T] {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if !opts.Mode.Valid() {
		opts.Mode = ModeSequential
	}
	logger := opts.Logger.WithComponent(applog.ComponentExport)
	return &Exporter[T]{
		table:      table,
		fetch:      fetch,
		match:      match,
		sink:       sink,
		opts:       opts,
		logger:     logger,
		structured: applog.NewStructuredLogger(logger),
	}
}

// PageScope is the file name scope of a single page export.
func PageScope(page int) string {
	return "page" + strconv.Itoa(page)
}

// FileName returns "<prefix>_<scope><filter suffix>", without extension.
func FileName(prefix, scope string, f core.Filter) string {
	return prefix + "_" + scope + f.Suffix()
}

// ExportCurrent writes rows, the displayed rows of page.
func (e *Exporter[T]) ExportCurrent(ctx context.Context, rows []T, f core.Filter, page int) (Result, error) {
	if page < 1 {
		page = 1
	}
	scope := PageScope(page)
	doc := Document{
		Resource: e.table.Resource,
		Title:    e.table.Prefix,
		Name:     FileName(e.table.Prefix, scope, f),
		Header:   e.table.Header,
		Rows:     e.table.Rows(rows, e.table.Offset(page)),
	}
	return e.write(ctx, doc, scope)
}

// ExportDisplayed writes the rows a controller currently displays.
func (e *Exporter[T]) ExportDisplayed(ctx context.Context, c *listing.Controller[T]) (Result, error) {
	v := c.View()
	page := v.Meta.CurrentPage
	if page < 1 {
		page = v.Page
	}
	return e.ExportCurrent(ctx, c.Displayed(), v.Filter, page)
}

// ExportAll fetches every page matching f and writes the rows that pass the
// predicate. A failed page aborts the export and nothing is written.
func (e *Exporter[T]) ExportAll(ctx context.Context, f core.Filter) (Result, error) {
	start := time.Now()
	items, err := CollectAll(ctx, e.fetch, e.match, f, e.opts.Mode, e.opts.Concurrency)
	if err != nil {
		e.structured.LogError(ctx, "Export aborted", err, applog.ComponentExport, applog.OpExport,
			applog.NewFields().WithResource(e.table.Resource, ""))
		return Result{}, fmt.Errorf("export all %s: %w", e.table.Resource, err)
	}
	e.logger.DebugContext(ctx, "Pages collected",
		applog.FieldResource, e.table.Resource,
		applog.FieldRows, len(items),
		"mode", string(e.opts.Mode),
		applog.FieldDuration, time.Since(start).Milliseconds())

	doc := Document{
		Resource: e.table.Resource,
		Title:    e.table.Prefix,
		Name:     FileName(e.table.Prefix, ScopeAll, f),
		Header:   e.table.Header,
		Rows:     e.table.Rows(items, 0),
	}
	return e.write(ctx, doc, ScopeAll)
}

func (e *Exporter[T]) write(ctx context.Context, doc Document, scope string) (Result, error) {
	location, err := e.sink.Write(ctx, doc)
	if err != nil {
		return Result{}, fmt.Errorf("write %s: %w", doc.Name, err)
	}

	res := Result{Filename: doc.Name, Location: location, Rows: len(doc.Rows)}
	e.structured.LogExport(ctx, doc.Resource, scope, e.sink.Name(), location, res.Rows)

	if e.opts.Recorder != nil {
		rec := core.ExportRecord{
			Resource:  doc.Resource,
			Scope:     scope,
			Sink:      e.sink.Name(),
			Location:  location,
			Rows:      res.Rows,
			CreatedAt: time.Now().UTC(),
		}
		if err := e.opts.Recorder.RecordExport(ctx, rec); err != nil {
			e.logger.WarnContext(ctx, "Failed to record export", applog.FieldLocation, location, applog.FieldError, err)
		}
	}
	return res, nil
}
