package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"mapsync/internal/audit"
	"mapsync/internal/config"
	"mapsync/internal/server"
)

var (
	serveBind      string
	servePort      int
	serveHTTP      string
	serveAudit     bool
	serveAuditPath string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a mapping server",
	Long: `Run the authoritative mapping server.

Clients connect over TCP. With --http the server also accepts WebSocket
clients on /ws and exposes Prometheus metrics on /metrics.

Examples:
  mapsync serve
  mapsync serve --port 34712 --http :8080
  mapsync serve --audit --audit-path /var/lib/mapsync/audit.db`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveBind, "bind", "", "Address to bind (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "TCP port (default from config)")
	serveCmd.Flags().StringVar(&serveHTTP, "http", "", "Address for WebSocket and metrics, e.g. :8080")
	serveCmd.Flags().BoolVar(&serveAudit, "audit", false, "Journal accepted changes to SQLite")
	serveCmd.Flags().StringVar(&serveAuditPath, "audit-path", "", "Journal database path")
	rootCmd.AddCommand(serveCmd)
}

// applyServeFlags copies explicitly set flags over the loaded config.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("bind") {
		cfg.Server.Bind = serveBind
	}
	if flags.Changed("port") {
		cfg.Server.Port = servePort
	}
	if flags.Changed("http") {
		cfg.Server.HTTPAddr = serveHTTP
	}
	if flags.Changed("audit") {
		cfg.Audit.Enabled = serveAudit
	}
	if flags.Changed("audit-path") {
		cfg.Audit.Path = serveAuditPath
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyServeFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	factory := newLoggerFactory(cmd, cfg)
	defer factory.Close()
	logger, err := factory.Logger("server")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := server.Options{
		Logger:    logger,
		QueueSize: cfg.Server.QueueSize,
		ChatRate:  rate.Limit(cfg.Server.ChatRate),
		ChatBurst: cfg.Server.ChatBurst,
	}
	if cfg.Server.ChatRate == 0 {
		opts.ChatRate = rate.Inf
	}

	if cfg.Audit.Enabled {
		auditLogger, err := factory.Logger("audit")
		if err != nil {
			return err
		}
		store, err := audit.Open(cfg.Audit.Path, auditLogger)
		if err != nil {
			return err
		}
		defer store.Close()

		if cfg.Audit.RetentionDays > 0 {
			n, err := store.Prune(time.Duration(cfg.Audit.RetentionDays) * 24 * time.Hour)
			if err != nil {
				return err
			}
			auditLogger.Info("pruned journal", "removed", n, "retention_days", cfg.Audit.RetentionDays)
		}

		recorder := audit.NewRecorder(store, auditLogger, cfg.Audit.BufferSize)
		defer recorder.Close()
		opts.Journal = recorder
		logger.Info("journaling changes", "path", store.Path())
	}

	srv := server.New(opts)
	fmt.Fprintf(cmd.OutOrStdout(), "mapsync server listening on %s\n", cfg.ListenAddr())
	if cfg.Server.HTTPAddr != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "WebSocket and metrics on %s\n", cfg.Server.HTTPAddr)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")

	return srv.Run(ctx, server.RunConfig{
		TCPAddr:  cfg.ListenAddr(),
		HTTPAddr: cfg.Server.HTTPAddr,
	})
}
