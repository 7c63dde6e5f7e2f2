package main

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"koperasi/internal/api"
	"koperasi/internal/core"
	"koperasi/internal/dividend"
	"koperasi/internal/services"
)

func newLoginCmd(a *application) *cobra.Command {
	var (
		email    string
		password string
		area     string
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and keep the session token",
		Long: `Sign in with email and password. The token is stored in the local
database and reused by later commands until logout or until the server
rejects it. Without --password the password is read from standard input.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if password == "" {
				var err error
				if password, err = readSecret(cmd, "Password: "); err != nil {
					return err
				}
			}
			role := core.Role(area)
			if role != "" && !role.Valid() {
				return fmt.Errorf("area tidak dikenal %q, pilih admin atau karyawan", area)
			}

			u, err := services.NewAccounts(a.client, a.session, a.logger).Login(ctx, email, password, role)
			if err != nil {
				return friendly(err, "Login gagal")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Berhasil masuk sebagai %s (%s).\n", u.Name, u.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	cmd.Flags().StringVar(&area, "area", "", "Require the account to be admin or karyawan")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd(a *application) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.session.Active() {
				fmt.Fprintln(cmd.OutOrStdout(), "Tidak ada sesi aktif.")
				return nil
			}
			if err := services.NewAccounts(a.client, a.session, a.logger).Logout(cmd.Context()); err != nil {
				return fmt.Errorf("logout: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Anda telah keluar.")
			return nil
		},
	}
}

func newMeCmd(a *application) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the signed-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.require(cmd.Context())
			if err != nil {
				return err
			}
			t := newTable("", "ID", "Nama", "Email", "Peran")
			t.addRow(u.ID.String(), u.Name, u.Email, string(u.Role))
			t.print(cmd.OutOrStdout())
			return nil
		},
	}
}

func newDividendCmd(a *application) *cobra.Command {
	var (
		year     int
		employee string
	)
	cmd := &cobra.Command{
		Use:   "dividend",
		Short: "Show the yearly dividend (bagi hasil)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			u, err := a.require(ctx)
			if err != nil {
				return err
			}
			if err := checkYear(year); err != nil {
				return err
			}
			ref := dividend.Ref{Date: strconv.Itoa(year)}
			if u.Role == core.RoleAdmin {
				ref.Subject = core.ID(employee)
			}
			key, ok := dividend.KeyOf(ref)
			if !ok {
				return friendly(core.ErrInvalidYear, "")
			}

			div := dividend.New(a.client, a.logger)
			div.Enrich(ctx, []dividend.Ref{ref})
			who := u.Name
			if ref.Subject != "" {
				who = "karyawan " + ref.Subject.String()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Bagi hasil %d untuk %s: %s\n", year, who, div.Display(key))
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", time.Now().Year(), "Year")
	cmd.Flags().StringVar(&employee, "employee", "", "Employee ID (admin)")
	return cmd
}

func newDashboardCmd(a *application) *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show the overview cards of the signed-in role",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			u, err := a.require(ctx)
			if err != nil {
				return err
			}
			dash := services.NewDashboard(a.client, a.logger)
			out := cmd.OutOrStdout()

			if u.Role == core.RoleAdmin {
				sum, err := dash.Admin(ctx)
				if err != nil {
					return friendly(err, "Gagal memuat ringkasan")
				}
				t := newTable("Ringkasan Koperasi", "Keterangan", "Nilai")
				t.addRow("Admin", strconv.Itoa(sum.Roles.Admin))
				t.addRow("Karyawan", strconv.Itoa(sum.Roles.Karyawan))
				t.addRow("Total Simpanan", sum.TotalSavings.FormatIDR())
				t.addRow("Total Pinjaman", sum.TotalLoans.FormatIDR())
				t.print(out)
				return nil
			}

			ov, err := dash.Employee(ctx, year, "")
			if err != nil {
				return friendly(err, "Gagal memuat ringkasan simpanan")
			}
			bagiHasil := "-"
			if ov.HasDividend {
				bagiHasil = ov.Dividend.FormatIDR()
			}
			t := newTable(fmt.Sprintf("Ringkasan %s %d", u.Name, ov.Year), "Keterangan", "Nilai")
			t.addRow("Simpanan Wajib", ov.Summary.TotalWajib.FormatIDR())
			t.addRow("Simpanan Pokok", ov.Summary.TotalPokok.FormatIDR())
			t.addRow("Total Simpanan", ov.Total().FormatIDR())
			t.addRow("Bagi Hasil", bagiHasil)
			t.print(out)
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", time.Now().Year(), "Year of the employee overview")
	return cmd
}

func newAdminCmd(a *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Admin account and employee directory",
	}
	cmd.AddCommand(newAdminRegisterCmd(a), newAdminEmployeesCmd(a))
	return cmd
}

func newAdminRegisterCmd(a *application) *cobra.Command {
	var reg api.Registration
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create another admin account (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := a.require(ctx, core.RoleAdmin); err != nil {
				return err
			}
			if reg.PasswordConfirmation == "" {
				reg.PasswordConfirmation = reg.Password
			}
			fields, err := services.NewAccounts(a.client, a.session, a.logger).RegisterAdmin(ctx, reg)
			if err != nil {
				if len(fields) == 0 {
					return friendly(err, "Pendaftaran admin gagal")
				}
				out := cmd.OutOrStdout()
				names := make([]string, 0, len(fields))
				for name := range fields {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Fprintf(out, "- %s: %s\n", name, fields[name])
				}
				return &userError{msg: "Pendaftaran admin gagal, periksa isian di atas.", err: err}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Admin %s <%s> terdaftar.\n", reg.Name, reg.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&reg.Name, "name", "", "Full name")
	cmd.Flags().StringVar(&reg.Email, "email", "", "Email")
	cmd.Flags().StringVar(&reg.Password, "password", "", "Password")
	cmd.Flags().StringVar(&reg.PasswordConfirmation, "password-confirmation", "", "Password confirmation (default: same as --password)")
	return cmd
}

func newAdminEmployeesCmd(a *application) *cobra.Command {
	return &cobra.Command{
		Use:   "employees",
		Short: "List employees (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := a.require(ctx, core.RoleAdmin); err != nil {
				return err
			}
			users, err := a.directory.Employees(ctx)
			if err != nil {
				return friendly(err, "Gagal memuat daftar karyawan")
			}
			t := newTable("Karyawan", "ID", "Nama", "Email")
			for _, u := range users {
				t.addRow(u.ID.String(), u.Name, u.Email)
			}
			t.print(cmd.OutOrStdout())
			return nil
		},
	}
}

func newExportsCmd(a *application) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "exports",
		Short: "Show the log of completed exports",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := a.repo.ListExports(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list exports: %w", err)
			}
			t := newTable("Riwayat Ekspor", "Waktu", "Data", "Cakupan", "Tujuan", "Baris", "Lokasi")
			for _, r := range records {
				t.addRow(r.CreatedAt.Local().Format(time.DateTime), r.Resource, r.Scope, r.Sink, strconv.Itoa(r.Rows), r.Location)
			}
			t.print(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of entries")
	return cmd
}
