package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"koperasi/internal/confirm"
	"koperasi/internal/core"
	"koperasi/internal/export"
	"koperasi/internal/listing"
	"koperasi/internal/services"
)

var loanHeaders = []string{"ID", "Tanggal", "Nama Karyawan", "Besar Pinjaman", "Telepon", "Alamat", "Status"}

func loanRow(l core.Loan) []string {
	return []string{
		l.ID.String(),
		core.ISODate(l.SubmittedAt),
		l.EmployeeName(),
		l.Amount.FormatIDR(),
		l.PhoneSnapshot,
		l.AddressSnapshot,
		string(l.Status),
	}
}

func newLoansCmd(a *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loans",
		Short: "List, export, moderate and apply for loans",
		Long: `Loans (pinjaman) of the cooperative.

Admins see every application and approve or reject the ones still
"applied". Employees see their own loans and submit new applications.`,
	}
	cmd.AddCommand(
		newLoansListCmd(a),
		newLoansExportCmd(a),
		newLoanModerateCmd(a, confirm.ActionApprove),
		newLoanModerateCmd(a, confirm.ActionReject),
		newLoansApplyCmd(a),
	)
	return cmd
}

func newLoansListCmd(a *application) *cobra.Command {
	var lf listFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show one page of loans",
		Example: `  koperasi loans list --status applied
  koperasi loans list --month 2024-05 --page 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := a.require(ctx); err != nil {
				return err
			}
			c := listing.Loans(a.client, a.logger)
			defer c.Close()
			if err := loadList(ctx, c, lf.filter(), lf.page); err != nil {
				return listFailure(c, err, listing.FallbackLoans)
			}

			v := c.View()
			t := newTable("Pinjaman", loanHeaders...)
			for _, l := range v.Items {
				t.addRow(loanRow(l)...)
			}
			out := cmd.OutOrStdout()
			t.print(out)
			fmt.Fprintln(out, pageFooter(v))
			return nil
		},
	}
	lf.bind(cmd, true, false, true)
	return cmd
}

func newLoansExportCmd(a *application) *cobra.Command {
	var (
		lf listFlags
		ef exportFlags
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export loans to CSV, XLSX or Google Sheets",
		Long: `Export the loans on the selected page, or with --all every page that
matches the filters. Files are named pinjaman_page<N> or pinjaman_semua
followed by the active filters.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.require(cmd.Context()); err != nil {
				return err
			}
			c := listing.Loans(a.client, a.logger)
			defer c.Close()
			return runExport(cmd, a, &ef, &lf, export.LoanTable(), a.client.ListLoans, listing.MatchLoan, c, nil, listing.FallbackLoans)
		},
	}
	lf.bind(cmd, true, false, true)
	ef.bind(cmd)
	return cmd
}

func newLoanModerateCmd(a *application, action confirm.Action) *cobra.Command {
	var (
		yes  bool
		page int
	)
	verb, done := "Setujui", "disetujui"
	if action == confirm.ActionReject {
		verb, done = "Tolak", "ditolak"
	}
	cmd := &cobra.Command{
		Use:   string(action) + " <loan-id>",
		Short: verb + " a loan application (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.require(cmd.Context(), core.RoleAdmin); err != nil {
				return err
			}
			id := core.ID(args[0])
			c := listing.Loans(a.client, a.logger)
			defer c.Close()

			res, err := moderate(cmd, a, c, a.moderation.LoanMutation(), moderation[core.Loan]{
				id:       id,
				idOf:     func(l core.Loan) core.ID { return l.ID },
				blank:    func(id core.ID) core.Loan { return core.Loan{ID: id} },
				action:   action,
				question: fmt.Sprintf("%s pinjaman #%s?", verb, id),
				page:     page,
				fallback: listing.FallbackLoans,
			}, yes)
			if err != nil || !res.Done {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Pinjaman #%s %s.\n", id, done)
			if res.Found {
				fmt.Fprintf(out, "Status sekarang: %s\n", res.Row.Status)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	cmd.Flags().IntVar(&page, "page", 1, "Page that lists the loan")
	return cmd
}

func newLoansApplyCmd(a *application) *cobra.Command {
	var form services.LoanForm
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply for a loan (employee)",
		Example: `  koperasi loans apply --amount 5.000.000 --phone 08123456789 --address "Jl. Merdeka 1"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := a.require(ctx, core.RoleKaryawan); err != nil {
				return err
			}
			l, err := services.NewLoans(a.client, a.logger).Apply(ctx, form)
			if err != nil {
				return friendly(err, "Gagal mengajukan pinjaman")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pengajuan pinjaman #%s sebesar %s terkirim (status: %s).\n",
				l.ID, l.Amount.FormatIDR(), l.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&form.Amount, "amount", "", "Loan amount, e.g. 5.000.000")
	cmd.Flags().StringVar(&form.Date, "date", "", "Application date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&form.Phone, "phone", "", "Phone number")
	cmd.Flags().StringVar(&form.Address, "address", "", "Address")
	return cmd
}
