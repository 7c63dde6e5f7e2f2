package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"koperasi/internal/confirm"
	"koperasi/internal/core"
	"koperasi/internal/dividend"
	"koperasi/internal/export"
	"koperasi/internal/listing"
	"koperasi/internal/services"
)

func newSavingsCmd(a *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "savings",
		Short: "List, export and record member savings",
		Long: `Savings (simpanan) are wajib, pokok or sukarela deposits per month.

Employees see their own savings next to the yearly dividend (bagi hasil).
Admins see every member, record monthly savings and correct or delete
entries.`,
	}
	cmd.AddCommand(
		newSavingsListCmd(a),
		newSavingsExportCmd(a),
		newSavingsAddCmd(a),
		newSavingsUpdateCmd(a),
		newSavingsDeleteCmd(a),
		newSavingsSummaryCmd(a),
	)
	return cmd
}

func newSavingsListCmd(a *application) *cobra.Command {
	var lf listFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show one page of savings with the yearly dividend",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			u, err := a.require(ctx)
			if err != nil {
				return err
			}
			admin := u.Role == core.RoleAdmin

			c := listing.Savings(a.client, a.logger)
			defer c.Close()
			if err := loadList(ctx, c, lf.filter(), lf.page); err != nil {
				return listFailure(c, err, listing.FallbackSavings)
			}
			v := c.View()

			div := dividend.New(a.client, a.logger)
			refs := dividend.SavingRefs(v.Items, admin)
			div.Enrich(ctx, refs)

			headers := []string{"No", "Bulan", "Jenis", "Jumlah", "Bagi Hasil Tahunan"}
			if admin {
				headers = []string{"No", "ID", "Nama Karyawan", "Bulan", "Jenis", "Jumlah", "Bagi Hasil Tahunan"}
			}
			t := newTable("Simpanan", headers...)
			offset := (max(v.Meta.CurrentPage, 1) - 1) * export.SavingsPerPage
			for i, s := range v.Items {
				n := strconv.Itoa(offset + i + 1)
				month := core.MonthKey(s.Month)
				if admin {
					t.addRow(n, s.ID.String(), savingOwner(s), month, string(s.Type), s.Amount.FormatIDR(), div.DisplayRef(refs[i]))
					continue
				}
				t.addRow(n, month, string(s.Type), s.Amount.FormatIDR(), div.DisplayRef(refs[i]))
			}
			out := cmd.OutOrStdout()
			t.print(out)
			fmt.Fprintln(out, pageFooter(v))
			return nil
		},
	}
	lf.bind(cmd, false, true, true)
	return cmd
}

func savingOwner(s core.Saving) string {
	if s.User != nil {
		return s.User.Name
	}
	return s.UserID.String()
}

func newSavingsExportCmd(a *application) *cobra.Command {
	var (
		lf listFlags
		ef exportFlags
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export savings to CSV, XLSX or Google Sheets",
		Long: `Export the savings on the selected page, or with --all every page that
matches the filters. The employee layout carries the yearly dividend of
each row; years not looked up yet export as 0.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.require(cmd.Context())
			if err != nil {
				return err
			}
			c := listing.Savings(a.client, a.logger)
			defer c.Close()

			if u.Role == core.RoleAdmin {
				return runExport(cmd, a, &ef, &lf, export.AdminSavingTable(), a.client.ListSavings, listing.MatchSaving, c, nil, listing.FallbackSavings)
			}
			div := dividend.New(a.client, a.logger)
			prepare := func(ctx context.Context, rows []core.Saving) {
				div.Enrich(ctx, dividend.SavingRefs(rows, false))
			}
			return runExport(cmd, a, &ef, &lf, export.SavingTable(div), a.client.ListSavings, listing.MatchSaving, c, prepare, listing.FallbackSavings)
		},
	}
	lf.bind(cmd, false, true, true)
	ef.bind(cmd)
	return cmd
}

func newSavingsAddCmd(a *application) *cobra.Command {
	var (
		entry    services.MonthlyEntry
		employee string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record the monthly wajib and pokok savings of an employee (admin)",
		Example: `  koperasi savings add --employee 42 --date 2024-05-01 --wajib 100.000 --pokok 50.000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := a.require(ctx, core.RoleAdmin); err != nil {
				return err
			}
			if employee != "" {
				employees, err := a.directory.Employees(ctx)
				if err != nil {
					return friendly(err, "Gagal memuat daftar karyawan")
				}
				if !slices.ContainsFunc(employees, func(u core.User) bool { return u.ID.String() == employee }) {
					return fmt.Errorf("karyawan dengan ID %s tidak ditemukan", employee)
				}
			}
			entry.UserID = core.ID(employee)

			n, err := services.NewSavings(a.client, a.logger).AddMonthly(ctx, entry)
			var partial *services.PartialSaveError
			if errors.As(err, &partial) {
				saved := make([]string, len(partial.Saved))
				for i, typ := range partial.Saved {
					saved[i] = string(typ)
				}
				return &userError{
					msg: fmt.Sprintf("%s Simpanan %s sudah tersimpan; periksa daftar simpanan sebelum mengulang.",
						services.Message(partial.Err, "Gagal menambahkan simpanan."), strings.Join(saved, ", ")),
					err: err,
				}
			}
			if err != nil {
				return friendly(err, "Gagal menambahkan simpanan")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d simpanan ditambahkan untuk karyawan %s.\n", n, employee)
			return nil
		},
	}
	cmd.Flags().StringVar(&employee, "employee", "", "Employee ID")
	cmd.Flags().StringVar(&entry.Date, "date", "", "Saving date YYYY-MM-DD")
	cmd.Flags().StringVar(&entry.Wajib, "wajib", "", "Simpanan wajib amount")
	cmd.Flags().StringVar(&entry.Pokok, "pokok", "", "Simpanan pokok amount")
	return cmd
}

func savingModeration(id core.ID, action confirm.Action, question string, page int, edit func(core.Saving) core.Saving) moderation[core.Saving] {
	return moderation[core.Saving]{
		id:       id,
		idOf:     func(s core.Saving) core.ID { return s.ID },
		blank:    func(id core.ID) core.Saving { return core.Saving{ID: id} },
		edit:     edit,
		action:   action,
		question: question,
		page:     page,
		fallback: listing.FallbackSavings,
	}
}

func newSavingsUpdateCmd(a *application) *cobra.Command {
	var (
		amount string
		typ    string
		yes    bool
		page   int
	)
	cmd := &cobra.Command{
		Use:   "update <saving-id>",
		Short: "Change the amount or type of a saving (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.require(cmd.Context(), core.RoleAdmin); err != nil {
				return err
			}
			m, err := core.ParsePositiveMoney(amount)
			if err != nil {
				return friendly(err, "Nominal tidak valid.")
			}
			id := core.ID(args[0])
			edit := func(s core.Saving) core.Saving {
				s.Amount = m
				if typ != "" {
					s.Type = core.SavingType(typ)
				}
				return s
			}
			c := listing.Savings(a.client, a.logger)
			defer c.Close()

			res, err := moderate(cmd, a, c, a.moderation.SavingMutation(),
				savingModeration(id, confirm.ActionEdit, fmt.Sprintf("Ubah simpanan #%s menjadi %s?", id, m.FormatIDR()), page, edit), yes)
			if err != nil || !res.Done {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Simpanan #%s diperbarui.\n", id)
			if res.Found {
				fmt.Fprintf(out, "Sekarang: %s %s\n", res.Row.Type, res.Row.Amount.FormatIDR())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "New amount")
	cmd.Flags().StringVar(&typ, "type", "", "New type (wajib, pokok, sukarela); default keeps the current one")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	cmd.Flags().IntVar(&page, "page", 1, "Page that lists the saving")
	return cmd
}

func newSavingsDeleteCmd(a *application) *cobra.Command {
	var (
		yes  bool
		page int
	)
	cmd := &cobra.Command{
		Use:   "delete <saving-id>",
		Short: "Delete a saving (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.require(cmd.Context(), core.RoleAdmin); err != nil {
				return err
			}
			id := core.ID(args[0])
			c := listing.Savings(a.client, a.logger)
			defer c.Close()

			res, err := moderate(cmd, a, c, a.moderation.SavingMutation(),
				savingModeration(id, confirm.ActionDelete, fmt.Sprintf("Hapus simpanan #%s?", id), page, nil), yes)
			if err != nil || !res.Done {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Simpanan #%s dihapus.\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	cmd.Flags().IntVar(&page, "page", 1, "Page that lists the saving")
	return cmd
}

func newSavingsSummaryCmd(a *application) *cobra.Command {
	var (
		year     int
		employee string
	)
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show savings totals per month for one year",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			u, err := a.require(ctx)
			if err != nil {
				return err
			}
			if err := checkYear(year); err != nil {
				return err
			}
			f := core.Filter{}
			if u.Role == core.RoleAdmin {
				f.EmployeeID = employee
			}
			rows, err := export.CollectAll(ctx, a.client.ListSavings, listing.MatchSaving, f, a.cfg.ExportMode, a.cfg.ExportConcurrency)
			if err != nil {
				return friendly(err, listing.FallbackSavings)
			}
			want := strconv.Itoa(year)
			rows = slices.DeleteFunc(rows, func(s core.Saving) bool {
				y, ok := core.YearOf(s.Month)
				return !ok || y != want
			})

			t := newTable(fmt.Sprintf("Simpanan per bulan %d", year), "Bulan", "Total")
			total := core.Money{}
			for _, mt := range services.MonthlyTotals(rows) {
				t.addRow(mt.Month, mt.Total.FormatIDR())
				total = core.MoneyFromDecimal(total.Add(mt.Total.Decimal))
			}
			out := cmd.OutOrStdout()
			t.print(out)
			fmt.Fprintf(out, "Total %d: %s\n", year, total.FormatIDR())
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", time.Now().Year(), "Year")
	cmd.Flags().StringVar(&employee, "employee", "", "Employee ID (admin)")
	return cmd
}
