package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/faultline/internal/config"
	"github.com/telhawk-systems/faultline/internal/envelope"
	"github.com/telhawk-systems/faultline/internal/handlers"
	"github.com/telhawk-systems/faultline/internal/logging"
	"github.com/telhawk-systems/faultline/internal/messaging"
	"github.com/telhawk-systems/faultline/internal/notification"
	"github.com/telhawk-systems/faultline/internal/ratelimit"
	"github.com/telhawk-systems/faultline/internal/repository"
	"github.com/telhawk-systems/faultline/internal/search"
	"github.com/telhawk-systems/faultline/internal/server"
	"github.com/telhawk-systems/faultline/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the intake HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// application holds the wired server and everything that must be closed with it.
type application struct {
	server  *http.Server
	closers []func() error
}

func (a *application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func serve(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	logger.Info("Starting faultline",
		slog.Int("port", cfg.Server.Port),
		slog.String("database", cfg.Database.Type),
		slog.String("fanout_policy", cfg.Notifications.FanoutPolicy),
		slog.String("log_level", cfg.Logging.Level),
	)

	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("Failed to release resources", logging.Error(err))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("faultline listening", slog.String("addr", app.server.Addr))
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := app.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server stopped gracefully")
	return nil
}

func buildApplication(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*application, error) {
	app := &application{}

	repo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, repo.Close)

	limiter := newRateLimiter(cfg, logger)
	app.closers = append(app.closers, limiter.Close)

	publisher := newPublisher(cfg, logger)
	app.closers = append(app.closers, publisher.Close)

	indexer := newIndexer(ctx, cfg, logger)

	policy, err := notification.ParsePolicy(cfg.Notifications.FanoutPolicy)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	transport := notification.NewTransport(notification.TransportConfig{
		Method:    cfg.Notifications.Method,
		Headers:   cfg.Notifications.Headers,
		UserAgent: cfg.Notifications.UserAgent,
		Timeout:   cfg.Notifications.Timeout,
	})
	dispatcher := notification.NewDispatcher(repo, transport, notification.DispatcherConfig{
		Policy:         policy,
		MaxConcurrency: cfg.Notifications.MaxConcurrency,
		Format:         notification.FormatOptions{IssuesURL: cfg.Notifications.IssuesURL},
	}, logger)

	svc := service.NewIngestService(repo, dispatcher,
		service.WithDecoder(envelope.NewDecoder(cfg.Ingestion.MaxDecompressedBytes)),
		service.WithPublisher(publisher),
		service.WithIndexer(indexer),
		service.WithLogger(logger),
	)

	handler := handlers.NewEnvelopeHandler(svc, limiter, repo, handlers.Config{
		MaxBodyBytes: cfg.Ingestion.MaxBodyBytes,
		Link: handlers.LinkConfig{
			Protocol: cfg.Public.Protocol,
			Host:     cfg.Public.Host,
			Port:     cfg.Public.Port,
		},
	}, logger)

	app.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(handler, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return app, nil
}

func openRepository(ctx context.Context, cfg *config.Config, logger *logging.Logger) (repository.Repository, error) {
	if cfg.Database.Type == "memory" {
		logger.Warn("Using in-memory repository (development only)")
		repo := repository.NewInMemoryRepository()
		if cfg.Notifications.ChannelsFile != "" {
			n, err := repo.LoadChannelsFile(cfg.Notifications.ChannelsFile)
			if err != nil {
				return nil, err
			}
			logger.Info("Loaded notification channels",
				slog.String("path", cfg.Notifications.ChannelsFile),
				slog.Int("count", n))
		}
		return repo, nil
	}

	pg := cfg.Database.Postgres
	connString := pg.ConnString()
	logger.Info("Connecting to PostgreSQL",
		slog.String("host", pg.Host),
		slog.Int("port", pg.Port),
		slog.String("database", pg.Database),
	)

	if cfg.Database.RunMigrations {
		if err := runMigrations(connString, logger); err != nil {
			return nil, err
		}
	}

	repo, err := repository.NewPostgresRepository(ctx, connString, repository.PoolConfig{
		MaxConns:        pg.MaxConns,
		MinConns:        pg.MinConns,
		MaxConnLifetime: pg.MaxConnLifetime,
		MaxConnIdleTime: pg.MaxConnIdleTime,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Notifications.ChannelsFile != "" {
		logger.Warn("notifications.channels_file is ignored with the postgres repository")
	}
	logger.Info("Connected to PostgreSQL")
	return repo, nil
}

func runMigrations(connString string, logger *logging.Logger) error {
	m, err := repository.NewMigrator(connString)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		return err
	}
	version, dirty, err := m.Version()
	if err != nil {
		logger.Warn("Could not get migration version", logging.Error(err))
		return nil
	}
	logger.Info("Database migration complete",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

func newRateLimiter(cfg *config.Config, logger *logging.Logger) ratelimit.RateLimiter {
	if !cfg.Redis.Enabled || !cfg.Ingestion.RateLimitEnabled {
		logger.Info("Rate limiting disabled")
		return &ratelimit.NoOpRateLimiter{}
	}

	limiter, err := ratelimit.NewRedisRateLimiter(
		cfg.Redis.URL,
		cfg.Ingestion.RateLimitRequests,
		cfg.Ingestion.RateLimitWindow,
		false,
	)
	if err != nil {
		logger.Warn("Failed to initialize Redis rate limiter, continuing without rate limiting", logging.Error(err))
		return &ratelimit.NoOpRateLimiter{}
	}
	logger.Info("Rate limiting enabled",
		slog.Int("requests", cfg.Ingestion.RateLimitRequests),
		slog.Duration("window", cfg.Ingestion.RateLimitWindow))
	return limiter
}

func newPublisher(cfg *config.Config, logger *logging.Logger) messaging.Publisher {
	if !cfg.NATS.Enabled {
		return messaging.NoOpPublisher{}
	}

	natsCfg := messaging.DefaultConfig()
	natsCfg.URL = cfg.NATS.URL
	natsCfg.Subject = cfg.NATS.Subject
	natsCfg.PerProject = cfg.NATS.PerProject
	natsCfg.MaxReconnects = cfg.NATS.MaxReconnects
	natsCfg.ReconnectWait = cfg.NATS.ReconnectWait

	publisher, err := messaging.NewNATSPublisher(natsCfg, logger)
	if err != nil {
		logger.Warn("Failed to connect to NATS, events will not be published", logging.Error(err))
		return messaging.NoOpPublisher{}
	}
	logger.Info("Publishing ingested events", slog.String("nats_url", cfg.NATS.URL), slog.String("subject", natsCfg.Subject))
	return publisher
}

func newIndexer(ctx context.Context, cfg *config.Config, logger *logging.Logger) search.Indexer {
	if !cfg.OpenSearch.Enabled {
		return search.NoOpIndexer{}
	}

	osCfg := search.DefaultConfig()
	osCfg.URL = cfg.OpenSearch.URL
	osCfg.Username = cfg.OpenSearch.Username
	osCfg.Password = cfg.OpenSearch.Password
	osCfg.TLSSkipVerify = cfg.OpenSearch.TLSSkipVerify
	osCfg.IndexPrefix = cfg.OpenSearch.IndexPrefix

	indexer, err := search.NewOpenSearchIndexer(osCfg)
	if err != nil {
		logger.Warn("Failed to create OpenSearch client, events will not be indexed", logging.Error(err))
		return search.NoOpIndexer{}
	}
	if err := indexer.Initialize(ctx); err != nil {
		logger.Warn("OpenSearch initialization failed, indexing may fail", logging.Error(err))
	}
	logger.Info("Indexing events", slog.String("opensearch_url", cfg.OpenSearch.URL), slog.String("index_prefix", osCfg.IndexPrefix))
	return indexer
}
