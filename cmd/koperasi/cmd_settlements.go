package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"koperasi/internal/confirm"
	"koperasi/internal/core"
	"koperasi/internal/export"
	"koperasi/internal/listing"
	"koperasi/internal/proof"
	"koperasi/internal/services"
)

var settlementHeaders = []string{"ID", "Tanggal Bayar", "Status", "Pinjaman", "Nama Karyawan", "Jumlah Pinjaman", "Bukti"}

func settlementRow(s core.Settlement) []string {
	loanID := s.LoanID.String()
	if s.Loan != nil {
		loanID = s.Loan.ID.String()
	}
	hasProof := "tidak"
	if s.HasProof() {
		hasProof = "ya"
	}
	return []string{
		s.ID.String(),
		core.ISODate(s.PaidAt),
		string(s.Status),
		loanID,
		s.EmployeeName(),
		s.LoanAmount().FormatIDR(),
		hasProof,
	}
}

func newSettlementsCmd(a *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settlements",
		Short: "List, export and moderate loan settlements",
		Long: `Settlements (pelunasan) are payments against a loan, each with a proof of
payment. Employees upload proofs; admins review them and approve or reject
the settlement.`,
	}
	cmd.AddCommand(
		newSettlementsListCmd(a),
		newSettlementsExportCmd(a),
		newSettlementModerateCmd(a, confirm.ActionApprove),
		newSettlementModerateCmd(a, confirm.ActionReject),
		newSettlementsProofCmd(a),
		newSettlementsSubmitCmd(a),
	)
	return cmd
}

func newSettlementsListCmd(a *application) *cobra.Command {
	var lf listFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show one page of settlements",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := a.require(ctx); err != nil {
				return err
			}
			c := listing.Settlements(a.client, a.logger)
			defer c.Close()
			if err := loadList(ctx, c, lf.filter(), lf.page); err != nil {
				return listFailure(c, err, listing.FallbackSettlements)
			}

			v := c.View()
			t := newTable("Pelunasan", settlementHeaders...)
			for _, s := range v.Items {
				t.addRow(settlementRow(s)...)
			}
			out := cmd.OutOrStdout()
			t.print(out)
			fmt.Fprintln(out, pageFooter(v))
			return nil
		},
	}
	lf.bind(cmd, true, false, false)
	return cmd
}

func newSettlementsExportCmd(a *application) *cobra.Command {
	var (
		lf listFlags
		ef exportFlags
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export settlements to CSV, XLSX or Google Sheets",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.require(cmd.Context()); err != nil {
				return err
			}
			c := listing.Settlements(a.client, a.logger)
			defer c.Close()
			return runExport(cmd, a, &ef, &lf, export.SettlementTable(), a.client.ListSettlements, listing.MatchSettlement, c, nil, listing.FallbackSettlements)
		},
	}
	lf.bind(cmd, true, false, false)
	ef.bind(cmd)
	return cmd
}

func newSettlementModerateCmd(a *application, action confirm.Action) *cobra.Command {
	var (
		yes  bool
		page int
	)
	verb, done := "Setujui", "disetujui"
	if action == confirm.ActionReject {
		verb, done = "Tolak", "ditolak"
	}
	cmd := &cobra.Command{
		Use:   string(action) + " <settlement-id>",
		Short: verb + " a settlement (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.require(cmd.Context(), core.RoleAdmin); err != nil {
				return err
			}
			id := core.ID(args[0])
			c := listing.Settlements(a.client, a.logger)
			defer c.Close()

			res, err := moderate(cmd, a, c, a.moderation.SettlementMutation(), moderation[core.Settlement]{
				id:       id,
				idOf:     func(s core.Settlement) core.ID { return s.ID },
				blank:    func(id core.ID) core.Settlement { return core.Settlement{ID: id} },
				action:   action,
				question: fmt.Sprintf("%s pelunasan #%s?", verb, id),
				page:     page,
				fallback: listing.FallbackSettlements,
			}, yes)
			if err != nil || !res.Done {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Pelunasan #%s %s.\n", id, done)
			if res.Found {
				fmt.Fprintf(out, "Status sekarang: %s\n", res.Row.Status)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	cmd.Flags().IntVar(&page, "page", 1, "Page that lists the settlement")
	return cmd
}

func newSettlementsProofCmd(a *application) *cobra.Command {
	var (
		save string
		page int
	)
	cmd := &cobra.Command{
		Use:   "proof <settlement-id>",
		Short: "Download the proof of payment of a settlement",
		Long: `Download the proof attached to a settlement and save it. Images and PDFs
are recognised from the content type; PDFs are meant for an external
viewer. Without --save the file goes to EXPORT_DIR as bukti_<id>.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := a.require(ctx); err != nil {
				return err
			}
			id := core.ID(args[0])
			c := listing.Settlements(a.client, a.logger)
			defer c.Close()
			if err := c.Load(ctx, page); err != nil {
				return listFailure(c, err, listing.FallbackSettlements)
			}
			s, ok := find(c.Displayed(), id, func(s core.Settlement) core.ID { return s.ID })
			if !ok {
				s = core.Settlement{ID: id}
			}

			viewer := proof.NewViewer(a.client, a.handles, a.logger)
			defer viewer.Shutdown()

			snap, err := viewer.Open(ctx, s)
			if err != nil {
				if snap.Err != "" {
					return &userError{msg: snap.Err, err: err}
				}
				return friendly(err, "Gagal memuat bukti pembayaran")
			}
			p := snap.Preview
			if p == nil {
				return fmt.Errorf("bukti pembayaran #%s tidak tersedia", id)
			}

			dst := save
			if dst == "" {
				dst = filepath.Join(a.cfg.ExportDir, "bukti_"+id.String()+filepath.Ext(p.Path))
			}
			if err := viewer.SaveAs(dst); err != nil {
				return fmt.Errorf("save proof: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Bukti pelunasan #%s (%s, %s, %d byte) disimpan ke %s\n", id, p.Kind, p.ContentType, p.Size, dst)
			if p.External {
				fmt.Fprintln(out, "Buka berkas PDF ini dengan penampil PDF.")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&save, "save", "", "Destination file")
	cmd.Flags().IntVar(&page, "page", 1, "Page that lists the settlement")
	return cmd
}

func newSettlementsSubmitCmd(a *application) *cobra.Command {
	var (
		form   services.SettlementForm
		loanID string
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Upload a proof of payment for a loan (employee)",
		Example: `  koperasi settlements submit --loan 7 --proof ./transfer.jpg`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := a.require(ctx, core.RoleKaryawan); err != nil {
				return err
			}
			form.LoanID = core.ID(loanID)
			if err := services.NewSettlements(a.client, a.logger).Submit(ctx, form); err != nil {
				return friendly(err, "Gagal mengunggah bukti pelunasan")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Bukti pelunasan untuk pinjaman #%s terkirim.\n", loanID)
			return nil
		},
	}
	cmd.Flags().StringVar(&loanID, "loan", "", "Loan ID")
	cmd.Flags().StringVar(&form.Amount, "amount", "", "Amount paid (optional)")
	cmd.Flags().StringVar(&form.ProofPath, "proof", "", "Proof of payment file")
	return cmd
}
