package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"koperasi/internal/amqp"
	"koperasi/internal/api"
	"koperasi/internal/cache"
	"koperasi/internal/cli"
	"koperasi/internal/config"
	"koperasi/internal/core"
	"koperasi/internal/export"
	"koperasi/internal/handle"
	applog "koperasi/internal/log"
	"koperasi/internal/services"
	"koperasi/internal/session"
	"koperasi/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

// execute runs one command line against a fresh command tree.
func execute(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	a := &application{}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	return root.ExecuteContext(ctx)
}

func newRootCmd(a *application) *cobra.Command {
	root := &cobra.Command{
		Use:   "koperasi",
		Short: "Client for the koperasi savings and loan API",
		Long: `koperasi talks to the cooperative's REST API.

Employees (karyawan) apply for loans, upload settlement proofs and follow
their savings and yearly dividend. Admins moderate loans and settlements,
record monthly savings and export every list as CSV, XLSX or Google Sheets.

Configuration comes from the environment or a .env file in the working
directory (API_BASE_URL, SQLITE_DB_PATH, EXPORT_DIR, EXPORT_FORMAT, ...).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd)
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newMeCmd(a),
		newLoansCmd(a),
		newSavingsCmd(a),
		newSettlementsCmd(a),
		newDividendCmd(a),
		newDashboardCmd(a),
		newAdminCmd(a),
		newExportsCmd(a),
	)
	return root
}

// application holds what every command needs. It is filled by open and
// released by close.
type application struct {
	verbose bool

	cfg        *config.Config
	logger     *applog.Logger
	repo       *storage.SQLiteRepository
	session    *session.Session
	client     *api.Client
	guard      *session.Guard
	handles    *handle.Registry
	sinks      *export.Factory
	audit      *amqp.Client
	moderation *services.Moderation
	directory  *services.Directory
	caches     *cache.Manager
}

func (a *application) open(cmd *cobra.Command) error {
	ctx := cmd.Context()

	cli.LoadEnvFile()
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := cfg.LogLevel
	if a.verbose {
		level = "debug"
	}
	a.logger = cli.SetupLogger(cmd.ErrOrStderr(), level)

	a.repo, err = cli.InitSQLite(a.logger, cfg.SQLiteDBPath)
	if err != nil {
		return err
	}

	a.session = session.New(a.repo, a.logger)
	if _, err := a.session.Restore(ctx); err != nil {
		return fmt.Errorf("restore session: %w", err)
	}

	a.client, err = api.New(cfg.APIBaseURL, cfg.HTTPTimeout,
		api.WithLogger(a.logger),
		api.WithAuthenticator(a.session))
	if err != nil {
		return fmt.Errorf("create API client: %w", err)
	}
	a.guard = session.NewGuard(a.session, a.client)

	a.handles = handle.NewRegistry("", a.logger)
	a.sinks = export.NewFactory(a.handles, a.logger)

	// Audit events are optional; a broker outage must not block moderation.
	var publisher services.Publisher
	if client, err := cli.InitAMQP(a.logger, cfg); err != nil {
		a.logger.Warn("Audit events disabled", applog.FieldError, err)
	} else if client != nil {
		a.audit = client
		publisher = client
	}
	a.moderation = services.NewModeration(a.client, publisher, a.session, a.logger)

	users := cache.NewLRUCache[[]core.User](8, cfg.UsersCacheTTL)
	a.directory = services.NewDirectory(a.client, users, a.logger)
	a.caches = cache.NewManager(a.logger)
	a.caches.Register(users)
	if cfg.UsersCacheTTL > 0 {
		a.caches.StartCleanup(cfg.UsersCacheTTL)
	}
	return nil
}

func (a *application) close() {
	if a.caches != nil {
		a.caches.Stop()
	}
	if a.handles != nil {
		a.handles.ReleaseAll()
	}
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			a.logger.Warn("Failed to close AMQP client", applog.FieldError, err)
		}
	}
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			a.logger.Warn("Failed to close database", applog.FieldError, err)
		}
	}
}

// require checks the session and the caller's role and turns the guard's
// outcome into a message for the terminal.
func (a *application) require(ctx context.Context, roles ...core.Role) (core.User, error) {
	u, err := a.guard.Require(ctx, roles...)
	if err == nil {
		return u, nil
	}
	if r, ok := session.IsRedirect(err); ok {
		return u, &userError{
			msg: fmt.Sprintf("Akun %s tidak dapat menjalankan perintah ini (halaman Anda: %s).", r.Role, r.To),
			err: err,
		}
	}
	if errors.Is(err, api.ErrUnauthenticated) {
		return u, &userError{msg: "Sesi tidak aktif. Jalankan 'koperasi login' terlebih dahulu.", err: err}
	}
	return u, friendly(err, "Gagal memeriksa sesi")
}

// userError is shown as msg; the cause stays reachable for errors.Is.
type userError struct {
	msg string
	err error
}

func (e *userError) Error() string { return e.msg }
func (e *userError) Unwrap() error { return e.err }

func friendly(err error, fallback string) error {
	if err == nil {
		return nil
	}
	var ue *userError
	if errors.As(err, &ue) {
		return err
	}
	return &userError{msg: services.Message(err, fallback), err: err}
}
