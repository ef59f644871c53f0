package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"inkwell/api/internal/app"
	"inkwell/api/internal/config"
	"inkwell/api/internal/editor"
	"inkwell/api/internal/email"
	"inkwell/api/internal/export"
	"inkwell/api/internal/generation"
	"inkwell/api/internal/gitrepo"
	"inkwell/api/internal/observe"
	"inkwell/api/internal/search"
	"inkwell/api/internal/session"
	"inkwell/api/internal/store"
)

const tokenPurgeInterval = time.Hour

type serveOptions struct {
	host              string
	port              int
	initDB            bool
	dbURL             string
	disableCustomEnv  bool
	listenAddrChanged bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.listenAddrChanged = cmd.Flags().Changed("host") || cmd.Flags().Changed("port")
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.host, "host", "0.0.0.0", "interface to listen on")
	cmd.Flags().IntVar(&opts.port, "port", 8001, "port to listen on")
	cmd.Flags().BoolVar(&opts.initDB, "init-db", false, "apply database migrations before serving")
	cmd.Flags().StringVar(&opts.dbURL, "db-url", "", "database URL, overrides DATABASE_URL")
	cmd.Flags().BoolVar(&opts.disableCustomEnv, "disable-custom-env-vars", false, "ignore per-request provider environment overrides")
	return cmd
}

func runServe(parent context.Context, opts serveOptions) error {
	logger := newLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, db, err := openStore(ctx, opts.dbURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if opts.listenAddrChanged {
		cfg.Addr = net.JoinHostPort(opts.host, strconv.Itoa(opts.port))
	}
	if opts.disableCustomEnv {
		cfg.Generation.AllowCustomEnv = false
	}
	if opts.initDB || cfg.InitDB {
		applied, err := migrate(ctx, cfg, db, logger)
		if err != nil {
			return err
		}
		logger.Info("database schema up to date", "applied", len(applied))
	}
	if err := os.MkdirAll(cfg.HistoryDir, 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "inkwell"})
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			logger.Warn("metrics shutdown", "err", err)
		}
	}()

	dataStore := store.NewPostgresStore(db)
	deps := app.Deps{
		Store:   dataStore,
		History: gitrepo.New(cfg.HistoryDir),
		Metrics: observe.DefaultMetrics(),
		Logger:  logger,
		Pingers: map[string]func(context.Context) error{},
	}

	var meili *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meili.Close()
	}
	deps.Search = search.NewService(meili, search.NewPgFTS(db), logger)

	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisStore.Close()
		logger.Info("using redis for refresh tokens and generation leases")
		deps.Refresh = redisStore
		deps.Busy = session.NewBusyLease(redisStore.Client(), cfg.Editor.LeaseTTL)
		deps.Pingers["redis"] = redisStore.Ping
	} else {
		logger.Info("using postgres for refresh tokens, generation leases are process local")
		deps.Busy = editor.NewLocalBusy()
	}

	var bucket *export.Bucket
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		bucket, err = export.NewBucket(ctx, export.BucketConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			logger.Warn("export storage unavailable, publishing disabled", "err", err)
			bucket = nil
		}
	}
	deps.Export = export.NewService(bucket)

	if cfg.SMTPConfigured() {
		deps.Mailer = email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		})
	}

	router, err := newRouter(cfg, logger)
	if err != nil {
		return err
	}
	deps.Router = router

	service := app.New(cfg, deps)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.NewHTTPServer(service, cfg.CORSOrigin).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: websocket connections are long lived.
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("inkwell api listening", "addr", cfg.Addr, "sources", router.Sources())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return service.Editor().Run(gctx, cfg.Editor.SessionTTL, cfg.Editor.ReapInterval)
	})
	g.Go(func() error {
		purgeTokens(gctx, dataStore, logger)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		service.Editor().CloseAll()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown error", "err", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("inkwell api stopped")
	return nil
}

// newRouter registers every configured backend. A backend that fails to
// build is logged and skipped so the others stay usable.
func newRouter(cfg config.Config, logger *slog.Logger) (*generation.Router, error) {
	router := generation.NewRouter(cfg.Generation.DefaultSource,
		generation.WithCustomEnv(cfg.Generation.AllowCustomEnv),
		generation.WithRouterLogger(logger),
	)
	for _, b := range cfg.Generation.Backends {
		if b.Timeout == 0 {
			b.Timeout = cfg.Generation.Timeout
		}
		if err := router.Register(b); err != nil {
			logger.Warn("skipping generation backend", "source", b.Source, "err", err)
		}
	}
	if len(router.Sources()) == 0 && !cfg.Generation.AllowCustomEnv {
		return nil, errors.New("no generation backend configured and custom env vars are disabled")
	}
	return router, nil
}

func purgeTokens(ctx context.Context, s *store.PostgresStore, logger *slog.Logger) {
	ticker := time.NewTicker(tokenPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpiredTokens(ctx)
			if err != nil {
				logger.Warn("purge expired tokens", "err", err)
				continue
			}
			if n > 0 {
				logger.Info("purged expired tokens", "count", n)
			}
		}
	}
}
