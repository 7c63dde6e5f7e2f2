package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"koperasi/internal/confirm"
	"koperasi/internal/core"
	"koperasi/internal/export"
	"koperasi/internal/listing"
)

// listFlags are the filter and page flags shared by list and export
// commands.
type listFlags struct {
	month    string
	status   string
	typ      string
	employee string
	page     int
}

func (f *listFlags) bind(cmd *cobra.Command, status, typ, employee bool) {
	cmd.Flags().StringVar(&f.month, "month", "", "Filter by month (YYYY-MM)")
	if status {
		cmd.Flags().StringVar(&f.status, "status", "", "Filter by status")
	}
	if typ {
		cmd.Flags().StringVar(&f.typ, "type", "", "Filter by saving type (wajib, pokok, sukarela)")
	}
	if employee {
		cmd.Flags().StringVar(&f.employee, "employee", "", "Filter by employee ID")
	}
	cmd.Flags().IntVar(&f.page, "page", 1, "Page number")
}

func (f *listFlags) filter() core.Filter {
	return core.Filter{Month: f.month, Status: f.status, Type: f.typ, EmployeeID: f.employee}
}

// exportFlags select the scope and sink of an export.
type exportFlags struct {
	all    bool
	format string
	mode   string
}

func (f *exportFlags) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.all, "all", false, "Export every page instead of the current one")
	cmd.Flags().StringVar(&f.format, "format", "", "Export format: csv, xlsx or sheets (default from EXPORT_FORMAT)")
	cmd.Flags().StringVar(&f.mode, "mode", "", "Page fetching for --all: sequential or parallel (default from EXPORT_MODE)")
}

// loadList applies f to c and loads page. A filter always starts on page
// 1, so a later page costs a second request.
func loadList[T any](ctx context.Context, c *listing.Controller[T], f core.Filter, page int) error {
	if err := c.SetFilter(ctx, f); err != nil {
		return err
	}
	if page > 1 {
		return c.SetPage(ctx, page)
	}
	return nil
}

// listFailure prefers the message the controller stored for display.
func listFailure[T any](c *listing.Controller[T], err error, fallback string) error {
	if msg := c.View().Err; msg != "" {
		return &userError{msg: msg, err: err}
	}
	return friendly(err, fallback)
}

// runExport writes the current page of c, or every page with --all, to the
// configured sink. prepare, when set, sees the loaded page before it is
// written.
func runExport[T any](cmd *cobra.Command, a *application, ef *exportFlags, lf *listFlags,
	table export.Table[T], fetch listing.Fetcher[T], match listing.Predicate[T], c *listing.Controller[T],
	prepare func(ctx context.Context, rows []T), fallback string) error {
	ctx := cmd.Context()

	sinkCfg := a.cfg.SinkConfig()
	if ef.format != "" {
		sinkCfg.Format = export.Format(ef.format)
		if !sinkCfg.Format.IsValid() {
			return fmt.Errorf("format ekspor tidak dikenal %q, pilih salah satu dari %v", ef.format, export.Formats())
		}
	}
	mode := a.cfg.ExportMode
	if ef.mode != "" {
		mode = export.Mode(ef.mode)
		if !mode.Valid() {
			return fmt.Errorf("mode ekspor tidak dikenal %q, pilih sequential atau parallel", ef.mode)
		}
	}

	sink, err := a.sinks.CreateSink(ctx, sinkCfg)
	if err != nil {
		return fmt.Errorf("create export sink: %w", err)
	}
	exp := export.New(table, fetch, match, sink, export.Options{
		Mode:        mode,
		Concurrency: a.cfg.ExportConcurrency,
		Recorder:    a.repo,
		Logger:      a.logger,
	})

	var res export.Result
	if ef.all {
		f := lf.filter()
		if err := f.Validate(); err != nil {
			return friendly(err, fallback)
		}
		res, err = exp.ExportAll(ctx, f)
		if err != nil {
			return friendly(err, "Gagal mengekspor semua data")
		}
	} else {
		if err := loadList(ctx, c, lf.filter(), lf.page); err != nil {
			return listFailure(c, err, fallback)
		}
		if prepare != nil {
			prepare(ctx, c.Displayed())
		}
		res, err = exp.ExportDisplayed(ctx, c)
		if err != nil {
			return friendly(err, "Gagal mengekspor data")
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d baris diekspor ke %s\n", res.Rows, res.Location)
	return nil
}

// find returns the displayed row whose id matches.
func find[T any](rows []T, id core.ID, idOf func(T) core.ID) (T, bool) {
	for _, r := range rows {
		if idOf(r) == id {
			return r, true
		}
	}
	var zero T
	return zero, false
}

// moderation describes one confirmed action on a listed row.
type moderation[T any] struct {
	id       core.ID
	idOf     func(T) core.ID
	blank    func(core.ID) T
	edit     func(T) T
	action   confirm.Action
	question string
	page     int
	fallback string
}

// outcome is the result of moderate. Row is the reloaded row when Found.
type outcome[T any] struct {
	Done  bool
	Found bool
	Row   T
}

// moderate loads the page holding m.id, runs the action through a confirm
// dialog and reports the row as it looks after the reload.
func moderate[T any](cmd *cobra.Command, a *application, c *listing.Controller[T], mutation confirm.Mutation[T], m moderation[T], yes bool) (outcome[T], error) {
	ctx := cmd.Context()
	var res outcome[T]

	if err := c.Load(ctx, m.page); err != nil {
		return res, listFailure(c, err, m.fallback)
	}
	row, ok := find(c.Displayed(), m.id, m.idOf)
	if !ok {
		row = m.blank(m.id)
	}
	if m.edit != nil {
		row = m.edit(row)
	}

	d := confirm.New(mutation, c, a.logger)
	if err := d.Open(row, m.action); err != nil {
		return res, err
	}
	if !yes {
		ok, err := confirmPrompt(cmd, m.question)
		if err != nil {
			return res, err
		}
		if !ok {
			_ = d.Cancel()
			fmt.Fprintln(cmd.OutOrStdout(), "Dibatalkan.")
			return res, nil
		}
	}
	if err := d.Submit(ctx); err != nil {
		return res, &userError{msg: d.Snapshot().Err, err: err}
	}

	res.Done = true
	res.Row, res.Found = find(c.Displayed(), m.id, m.idOf)
	return res, nil
}

// checkYear rejects years that are not four digits.
func checkYear(year int) error {
	if year < 1000 || year > 9999 {
		return friendly(core.ErrInvalidYear, "")
	}
	return nil
}
