package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/qpac/internal/auth"
	"github.com/jmerrifield20/qpac/internal/coalescer"
	"github.com/jmerrifield20/qpac/internal/handler"
	"github.com/jmerrifield20/qpac/internal/storage"
	"github.com/jmerrifield20/qpac/internal/webhooks"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the PAC server.

Storage is chosen by --database: empty keeps everything in memory, a
postgres:// URL uses PostgreSQL, anything else is a SQLite file path.

  qpac serve --bind 127.0.0.1:8080 --database qpac.db --token '$argon2id$...'

Every flag can also be set through the environment (QPAC_BIND, QPAC_TOKEN,
QPAC_DATABASE, QPAC_DEBOUNCE, ...) or qpac.yaml.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringP("bind", "b", "0.0.0.0:8080", "listen address")
	f.StringP("token", "t", "", "argon2 PHC string, bcrypt hash or plain token guarding /add and /remove")
	f.StringP("database", "d", "", "SQLite path or postgres:// URL; empty for in-memory storage")
	f.Duration("debounce", coalescer.DefaultWindow, "quiet period before regenerating the PAC file")
	f.StringSlice("cors-origins", nil, "allowed CORS origins; \"*\" allows any")
	f.Int("rate-limit-rps", 10, "per-IP requests per second on /add and /remove; 0 disables")
	f.Bool("generate-on-start", true, "generate the PAC file from the stored whitelist at startup")
	f.Bool("metrics", true, "expose Prometheus metrics on /metrics")
	f.Duration("shutdown-timeout", 15*time.Second, "graceful shutdown deadline")
	f.StringSlice("webhook-urls", nil, "URLs notified with a pac.published event when the latest PAC file changes")
	f.String("webhook-secret", "", "HMAC-SHA256 key signing webhook bodies (X-QPAC-Signature)")

	for _, name := range []string{
		"bind", "token", "database", "debounce", "cors-origins", "rate-limit-rps",
		"generate-on-start", "metrics", "shutdown-timeout", "webhook-urls", "webhook-secret",
	} {
		_ = viper.BindPFlag(name, f.Lookup(name))
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if err := serve(cmd.Context(), logger); err != nil {
		logger.Error("qpac exited with error", zap.Error(err))
		return err
	}
	return nil
}

func serve(parent context.Context, logger *zap.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Storage ──────────────────────────────────────────────────────────────
	backend, err := storage.Open(ctx, viper.GetString("database"), logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer backend.Close() //nolint:errcheck
	logger.Info("storage ready", zap.String("backend", string(backend.Kind)))

	// ── Coalescer ────────────────────────────────────────────────────────────
	co := coalescer.New(backend.Whitelist, backend.Artifacts, coalescer.Config{
		Window: viper.GetDuration("debounce"),
	}, logger)

	var notifier *webhooks.Notifier
	if urls := viper.GetStringSlice("webhook-urls"); len(urls) > 0 {
		notifier = webhooks.NewNotifier(ctx, webhooks.Config{
			URLs:   urls,
			Secret: viper.GetString("webhook-secret"),
		}, logger)
		co.SetOnRegenerate(notifier.Published)
		logger.Info("webhooks enabled", zap.Int("targets", len(urls)))
	}

	if viper.GetBool("generate-on-start") {
		if _, err := co.Regenerate(ctx); err != nil {
			logger.Warn("startup generation failed; serving previous PAC file if any", zap.Error(err))
		}
	}

	coDone := make(chan struct{})
	go func() {
		defer close(coDone)
		co.Run(ctx)
	}()

	// ── HTTP ─────────────────────────────────────────────────────────────────
	h := handler.NewPACHandler(backend.Whitelist, backend.Artifacts, co, logger)
	if rps := viper.GetInt("rate-limit-rps"); rps > 0 {
		h.SetRateLimit(ctx, rps, rps*2)
	}
	if secret := viper.GetString("token"); secret != "" {
		v, err := auth.NewVerifier(secret, logger)
		if err != nil {
			return fmt.Errorf("configure auth: %w", err)
		}
		h.SetVerifier(v)
	} else {
		logger.Warn("no token configured; /add and /remove are open to anyone")
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handler.NewRouter(h, backend, handler.RouterConfig{
		CORSOrigins: viper.GetStringSlice("cors-origins"),
		Metrics:     viper.GetBool("metrics"),
	}, logger)

	srv := &http.Server{
		Addr:              viper.GetString("bind"),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("qpac HTTP listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down qpac...")
	case serveErr = <-errCh:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), viper.GetDuration("shutdown-timeout"))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	<-coDone
	if notifier != nil {
		notifier.Wait()
	}

	if serveErr != nil {
		return fmt.Errorf("listen on %s: %w", srv.Addr, serveErr)
	}
	logger.Info("qpac stopped")
	return nil
}

// ── migrate ──────────────────────────────────────────────────────────────────

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations and exit",
	Long: `Apply the embedded schema migrations to a SQLite file or PostgreSQL
database without starting the server. serve applies them too; this command
is for provisioning ahead of a deploy.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		location, _ := cmd.Flags().GetString("database")
		if location == "" {
			location = viper.GetString("database")
		}
		if storage.KindOf(location) == storage.KindMemory {
			return errors.New("--database is required")
		}
		backend, err := storage.Open(cmd.Context(), location, logger)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", backend.Kind)
		return backend.Close()
	},
}

func init() {
	migrateCmd.Flags().StringP("database", "d", "", "SQLite path or postgres:// URL (env QPAC_DATABASE)")
}
