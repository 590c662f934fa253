// Package daemon provides the machine-hub server commands.
package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/machine-hub/server/internal/api"
	"github.com/machine-hub/server/internal/config"
	"github.com/machine-hub/server/internal/dashboard"
	"github.com/machine-hub/server/internal/entity"
	"github.com/machine-hub/server/internal/imaging"
	"github.com/machine-hub/server/internal/logging"
	"github.com/machine-hub/server/internal/metrics"
	"github.com/machine-hub/server/internal/mock"
	"github.com/machine-hub/server/internal/server"
	"github.com/machine-hub/server/internal/ws"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// CmdName is the binary name and the environment variable prefix.
const CmdName = "machinehub"

// Version is set at build time.
var Version = "dev"

// App represents the application.
type App struct {
	cmd   *cobra.Command
	viper *viper.Viper

	verbosity int
	cfg       *config.Config
	logs      io.Closer

	mu       sync.Mutex
	cancel   context.CancelFunc
	quitting bool

	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a new App instance with default values.
func New() (*App, error) {
	a := App{ready: make(chan struct{})}

	a.cmd = &cobra.Command{
		Use:           CmdName,
		Short:         "machine-hub backend",
		Long:          "machine-hub backend serving the customer and machine registry and the live dispenser dashboard.",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			a.setupLogging(nil) // Set verbosity before loading config
			return a.loadConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve()
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	installRootFlags(&a)
	if err := a.viper.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return nil, err
	}
	a.viper.SetEnvPrefix(CmdName)
	a.viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.viper.AutomaticEnv()

	a.installServe()
	a.installMigrate()
	a.installVersion()

	return &a, nil
}

func installRootFlags(a *App) {
	flags := a.cmd.PersistentFlags()

	flags.CountVarP(&a.verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	flags.Bool("log-json", false, "enable JSON formatted logs")
	flags.String("log-file", "", "also write logs to this rotating file")
	flags.StringP("config", "c", "", "path to the yaml configuration file")

	flags.String("host", "", "host to listen on")
	flags.Int("port", 0, "port to listen on")
	flags.String("database-url", "", "PostgreSQL URL; entities are kept in memory when empty")
	flags.Bool("auto-migrate", false, "apply database migrations before serving")
	flags.String("static-dir", "", "directory served under /static")
	flags.Bool("mock", false, "feed the dashboard with generated telemetry")

	if err := a.cmd.MarkPersistentFlagFilename("config", "yaml", "yml"); err != nil {
		// This should never happen.
		panic(fmt.Sprintf("failed to mark config flag as filename: %v", err))
	}
}

func (a *App) installServe() {
	a.cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server (default)",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, args []string) error { return a.serve() },
	})
}

// loadConfig reads the yaml file and applies flag and MACHINEHUB_* env
// overrides on top of it.
func (a *App) loadConfig() error {
	cfg, err := config.Load(a.viper.GetString("config"))
	if err != nil {
		return err
	}

	v := a.viper
	if v.IsSet("host") {
		cfg.Server.Host = v.GetString("host")
	}
	if v.IsSet("port") {
		cfg.Server.Port = v.GetInt("port")
	}
	if v.IsSet("database-url") {
		cfg.Database.DSN = v.GetString("database-url")
	}
	if v.IsSet("auto-migrate") {
		cfg.Database.AutoMigrate = v.GetBool("auto-migrate")
	}
	if v.IsSet("static-dir") {
		cfg.Static.Dir = v.GetString("static-dir")
	}
	if v.IsSet("mock") {
		cfg.Mock.Enabled = v.GetBool("mock")
	}
	if v.IsSet("log-file") {
		cfg.Log.File = v.GetString("log-file")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.setupLogging(cfg)
	slog.Info("Configuration loaded", "addr", cfg.Addr(), "database", cfg.Database.DSN != "", "mock", cfg.Mock.Enabled)
	return nil
}

func (a *App) setupLogging(cfg *config.Config) {
	lc := logging.Config{
		Verbosity: a.verbosity,
		JSON:      a.viper.GetBool("log-json"),
	}
	if v := a.viper.GetInt("verbose"); v > lc.Verbosity {
		lc.Verbosity = v
	}
	if cfg != nil {
		lc.File = cfg.Log.File
		lc.MaxSizeMB = cfg.Log.MaxSizeMB
		lc.MaxBackups = cfg.Log.MaxBackups
		lc.MaxAgeDays = cfg.Log.MaxAgeDays
	}

	if a.logs != nil {
		_ = a.logs.Close()
	}
	a.logs = logging.Setup(lc)
}

// Run executes the command and associated process, returning an error if any.
func (a *App) Run() error {
	defer func() {
		if a.logs != nil {
			_ = a.logs.Close()
		}
	}()
	return a.cmd.Execute()
}

// UsageError returns if the error is a command parsing or runtime one.
func (a *App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// Hup prints all goroutine stack traces and return false to signal you shouldn't quit.
func (a *App) Hup() (shouldQuit bool) {
	buf := make([]byte, 1<<16)
	runtime.Stack(buf, true)
	fmt.Printf("%s", buf)
	return false
}

// Quit gracefully shuts down the server. Calling it before the server
// started makes serve return right away.
func (a *App) Quit() {
	a.mu.Lock()
	a.quitting = true
	cancel := a.cancel
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// WaitReady waits for the server to be wired and about to listen.
func (a *App) WaitReady() {
	<-a.ready
}

// RootCmd returns the root command.
func (a *App) RootCmd() *cobra.Command {
	return a.cmd
}

func (a *App) markReady() {
	a.readyOnce.Do(func() { close(a.ready) })
}

func (a *App) serve() error {
	defer a.markReady()
	cfg := a.cfg

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.mu.Lock()
	a.cancel = cancel
	if a.quitting {
		cancel()
	}
	a.mu.Unlock()

	svc, err := dashboard.NewService(cfg.Categories())
	if err != nil {
		return fmt.Errorf("failed to create dashboard: %v", err)
	}

	repo, err := a.openRepository(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer repo.Close()

	m := metrics.New()
	hub := ws.NewHub(svc.Notifier(),
		ws.WithMaxConnections(cfg.WebSocket.MaxConnections),
		ws.WithWriteTimeout(cfg.WebSocket.WriteTimeout),
		ws.WithPingInterval(cfg.WebSocket.PingInterval),
		ws.WithRecorder(m),
	)
	images := imaging.NewCompressor(filepath.Join(cfg.Static.Dir, "images"), cfg.Static.MaxImageSize, cfg.Static.JPEGQuality)
	rest := api.New(svc, repo, images, m, hub, api.Config{
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		StaticDir:    cfg.Static.Dir,
	})

	srv := server.New(server.Config{
		Addr:           cfg.Addr(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}, server.NewHandler(rest, ws.NewServer(ctx, hub, svc, cfg.WebSocket.AllowedOrigins)), hub)

	if cfg.Mock.Enabled {
		slog.Info("Starting in mock mode", "interval", cfg.Mock.Interval)
		mock.NewGenerator(svc, cfg.Mock.Interval).Start(ctx)
	}

	a.markReady()
	return srv.Run(ctx)
}

func (a *App) openRepository(ctx context.Context, db config.DatabaseConfig) (*entity.Repository, error) {
	if db.DSN == "" {
		slog.Info("No database configured, entities are kept in memory")
		return entity.NewMemory(), nil
	}

	if db.AutoMigrate {
		if err := entity.MigrateUp(db.DSN); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %v", err)
		}
	}
	repo, err := entity.NewPostgres(ctx, db.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}
	return repo, nil
}
