package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/PromptPanel/internal/api"
	"github.com/BTreeMap/PromptPanel/internal/auth"
	"github.com/BTreeMap/PromptPanel/internal/lockfile"
	"github.com/BTreeMap/PromptPanel/internal/store"
	"github.com/BTreeMap/PromptPanel/internal/util"
)

// serveFlags override the environment configuration of the server.
type serveFlags struct {
	addr      string
	dbDSN     string
	backend   string
	qrOutput  string
	numeric   bool
	redisAddr string
}

func newServeCmd(root *rootOptions) *cobra.Command {
	flags := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the panel API server",
		Long: `Serves the panel REST API until interrupted. Records are kept in SQLite under the
state directory unless DATABASE_URL points at PostgreSQL; conversation sessions are read
from Redis when REDIS_ADDR is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("numeric-code") {
				flags.numeric = util.ParseBoolEnv("WHATSAPP_NUMERIC_CODE", false)
			}
			config := applyServeFlags(loadEnvironmentConfig(), root, flags).withDefaults()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, config, flags)
		},
	}
	cmd.Flags().StringVar(&flags.addr, "addr", "", "API listen address (overrides $API_ADDR)")
	cmd.Flags().StringVar(&flags.dbDSN, "db-dsn", "", "panel database DSN, SQLite path or Postgres URL (overrides $DATABASE_URL)")
	cmd.Flags().StringVar(&flags.backend, "messaging-backend", "", "bulk send backend: whatsapp, twilio or dryrun (overrides $MESSAGING_BACKEND)")
	cmd.Flags().StringVar(&flags.redisAddr, "redis-addr", "", "Redis address of the conversation session store (overrides $REDIS_ADDR)")
	cmd.Flags().StringVar(&flags.qrOutput, "qr-output", "", "path to write the WhatsApp login QR code")
	cmd.Flags().BoolVar(&flags.numeric, "numeric-code", false, "print the WhatsApp pairing code instead of a QR code (default $WHATSAPP_NUMERIC_CODE)")
	return cmd
}

// applyServeFlags lets explicit flags win over the environment.
func applyServeFlags(config Config, root *rootOptions, flags *serveFlags) Config {
	if root != nil && root.stateDir != "" {
		config.StateDir = root.stateDir
	}
	if flags.addr != "" {
		config.APIAddr = flags.addr
	}
	if flags.dbDSN != "" {
		config.DatabaseURL = flags.dbDSN
	}
	if flags.backend != "" {
		config.MessagingBackend = flags.backend
	}
	if flags.redisAddr != "" {
		config.RedisAddr = flags.redisAddr
	}
	slog.Debug("flags applied",
		"stateDir", config.StateDir,
		"apiAddr", config.APIAddr,
		"dbDSN_set", config.DatabaseURL != "",
		"messagingBackend", config.MessagingBackend,
		"qrOutput", flags.qrOutput,
		"numeric", flags.numeric)
	return config
}

// runServer wires the stores, messaging backend and token issuer and serves until ctx ends.
func runServer(ctx context.Context, config Config, flags *serveFlags) error {
	if config.JWTSecret == "" {
		return fmt.Errorf("PANEL_JWT_SECRET must be set")
	}
	issuer, err := auth.NewTokenIssuer(config.JWTSecret, auth.WithTTL(config.TokenTTL))
	if err != nil {
		return fmt.Errorf("invalid PANEL_JWT_SECRET: %w", err)
	}
	apiOpts, err := buildAPIOptions(config)
	if err != nil {
		return err
	}

	lock, err := lockfile.AcquireLock(config.StateDir, config.APIAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			slog.Warn("Failed to release state directory lock", "error", err)
		}
	}()

	st, err := store.Open(config.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open panel store: %w", err)
	}
	defer st.Close()

	sess, err := openSessionStore(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer sess.Close()

	msgService, err := openMessagingService(ctx, config, flags.qrOutput, flags.numeric)
	if err != nil {
		return fmt.Errorf("failed to start messaging backend: %w", err)
	}
	defer func() {
		if err := msgService.Stop(); err != nil {
			slog.Warn("Failed to stop messaging backend", "error", err)
		}
	}()

	srv := api.NewServer(st, sess, msgService, issuer, apiOpts...)
	if err := srv.BootstrapAdmin(ctx, config.BootstrapEmail, config.BootstrapPassword); err != nil {
		return fmt.Errorf("failed to bootstrap panel owner: %w", err)
	}

	slog.Info("Bootstrapping PromptPanel with configured modules",
		"addr", config.APIAddr, "messaging_backend", msgService.Name(), "state_dir", config.StateDir)
	if err := srv.Run(ctx); err != nil {
		return err
	}
	slog.Info("PromptPanel exited successfully")
	return nil
}
