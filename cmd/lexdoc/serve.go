package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/lexdoc/api"
	"github.com/hazyhaar/lexdoc/audit"
	"github.com/hazyhaar/lexdoc/dbopen"
	"github.com/hazyhaar/lexdoc/docpipe"
	"github.com/hazyhaar/lexdoc/horosafe"
	"github.com/hazyhaar/lexdoc/metrics"
)

const auditCleanupInterval = time.Hour

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *api.Config) error {
	logger := setupLogger(os.Stdout, cfg.Level())

	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	verifier := cfg.Verifier()
	if verifier.UsesDefaultSecret() {
		logger.Warn("AUTH_SECRET not set, tokens use the built-in default secret")
	} else if err := horosafe.ValidateSecret([]byte(cfg.Auth.Secret)); err != nil {
		logger.Warn("weak token secret", "error", err)
	}

	// Audit journal (optional).
	var auditLogger *audit.Logger
	if cfg.AuditDB != "" {
		db, err := dbopen.Open(cfg.AuditDB, dbopen.WithMkdirAll(), dbopen.WithSchema(audit.Schema))
		if err != nil {
			return fmt.Errorf("open audit db: %w", err)
		}
		defer db.Close()
		auditLogger = audit.New(db, 1000, audit.WithLogger(logger))
		defer auditLogger.Close()
		go auditCleanupLoop(ctx, auditLogger, cfg.AuditRetentionDays, logger)
		logger.Info("audit journal enabled", "path", cfg.AuditDB)
	}

	m := metrics.New(version)
	pipe := docpipe.New(cfg.Pipeline(logger))

	deps := api.Deps{
		Pipeline: pipe,
		Verifier: verifier,
		Audit:    auditLogger,
		Metrics:  m,
		Logger:   logger,
	}
	if cfg.MCPEnabled {
		mcpSrv := newMCPServer(pipe, logger, auditLogger)
		deps.MCP = mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil)
		logger.Info("MCP endpoint enabled", "path", "/mcp")
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.NewRouter(cfg, deps),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("lexdoc starting", "addr", cfg.Listen, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// auditCleanupLoop purges entries older than retentionDays until ctx ends.
// Zero retention keeps everything.
func auditCleanupLoop(ctx context.Context, l *audit.Logger, retentionDays int, logger *slog.Logger) {
	if retentionDays <= 0 {
		return
	}
	retention := time.Duration(retentionDays) * 24 * time.Hour
	ticker := time.NewTicker(auditCleanupInterval)
	defer ticker.Stop()
	for {
		if n, err := l.Cleanup(ctx, retention); err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("audit cleanup", "error", err)
			}
		} else if n > 0 {
			logger.Info("audit cleanup", "deleted", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
