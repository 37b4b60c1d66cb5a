package cmd

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	app "gadify-server/internal"
	"gadify-server/internal/access"
	"gadify-server/internal/config"
	"gadify-server/internal/identity"
	"gadify-server/internal/lifecycle"
	"gadify-server/internal/nonce"
	"gadify-server/internal/reporting"
	"gadify-server/internal/routes"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the device registry server",
	Run: func(cmd *cobra.Command, args []string) {
		initLogger(cfg)
		ServerMain()
	},
}

// Initialize logger
func initLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
		println("Invalid log level in config, defaulting to INFO")
	}
	handlerOpts := &slog.HandlerOptions{
		Level: level,
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, handlerOpts))
	slog.SetDefault(logger)

	slog.Debug("Logger initialized", "level", level.String())
	return logger
}

func ServerMain() {
	if cfg == nil {
		panic("Config not initialized.")
	}
	if provider == nil {
		slog.Error("Storage provider is nil")
		os.Exit(1)
	}

	if version, err := provider.GetSchemaVersion(context.Background()); err != nil {
		slog.Warn("Could not read storage schema version", "error", err)
	} else {
		slog.Info("Storage ready", "schema_version", version)
	}

	nonces, err := nonce.NewStore(cfg.NonceStore, provider)
	if err != nil {
		slog.Error("Failed to initialize nonce store", "error", err, "kind", cfg.NonceStore)
		os.Exit(1)
	}
	defer nonces.Close()

	rbac, err := access.Load(cfg.RBAC.PolicyFile)
	if err != nil {
		slog.Error("Failed to load RBAC policy", "error", err, "file", cfg.RBAC.PolicyFile)
		os.Exit(1)
	}

	sessions := identity.NewManager(cfg.Secret, time.Duration(cfg.SessionTTL)*time.Hour, provider, nonces)
	registry := lifecycle.NewCoordinator(provider, rbac)
	reports := reporting.NewService(provider)

	api := routes.NewAPI(sessions, registry, reports)
	server := app.HTTPServer(cfg, api)

	slog.Info("Starting server", "addr", cfg.ListenAddr)
	if err := server.Run(cfg.ListenAddr); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
