package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/skatepedia/internal/broker"
	"github.com/fyrsmithlabs/skatepedia/internal/catalog"
	"github.com/fyrsmithlabs/skatepedia/internal/config"
	skhttp "github.com/fyrsmithlabs/skatepedia/internal/http"
	"github.com/fyrsmithlabs/skatepedia/internal/logging"
	"github.com/fyrsmithlabs/skatepedia/internal/media"
	"github.com/fyrsmithlabs/skatepedia/internal/posts"
	"github.com/fyrsmithlabs/skatepedia/internal/pros"
	"github.com/fyrsmithlabs/skatepedia/internal/screens"
	"github.com/fyrsmithlabs/skatepedia/internal/telemetry"
	"github.com/fyrsmithlabs/skatepedia/internal/tricks"
	"github.com/fyrsmithlabs/skatepedia/internal/users"
	"github.com/fyrsmithlabs/skatepedia/pkg/auth"
	"github.com/fyrsmithlabs/skatepedia/pkg/docstore"
	"github.com/fyrsmithlabs/skatepedia/pkg/feed"
)

func newServeCmd() *cobra.Command {
	var embedded bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the skatepedia API server.

Examples:
  # Development: in-process broker, header auth
  SKATEPEDIA_AUTH_DISABLED=true skatepedia serve --embedded-nats

  # Production
  skatepedia serve --config /etc/skatepedia/config.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if embedded {
				// Applied before loading so validation sees it.
				if err := os.Setenv(config.EnvPrefix+"NATS_EMBEDDED", "true"); err != nil {
					return err
				}
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx)
		},
	}
	cmd.Flags().BoolVar(&embedded, "embedded-nats", false, "run an in-process NATS server with JetStream")
	return cmd
}

// run starts skatepedia and blocks until ctx is cancelled.
//
//  1. Loads and validates configuration
//  2. Initializes telemetry and the logger
//  3. Connects to storage (NATS JetStream or memory)
//  4. Builds the domain services and the screen registry
//  5. Serves HTTP until ctx is cancelled, then shuts down gracefully
func run(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	log, err := logging.NewLogger(logging.FromSettings(cfg.Logging), tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = log.Sync() // Best-effort sync on shutdown
	}()
	logger := log.Underlying()

	if degraded, terr := tel.Degraded(); degraded {
		logger.Warn("telemetry export unavailable", zap.Error(terr))
	}

	logger.Info("Starting skatepedia",
		zap.String("version", version),
		zap.String("addr", cfg.Addr()),
		zap.String("storage", cfg.Storage.Driver))

	deps, err := initDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	svc, err := initServices(cfg, deps, tel, prometheus.DefaultRegisterer, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	authCfg := auth.Config{TrustHeader: cfg.Auth.Disabled}
	if cfg.Auth.Disabled {
		logger.Warn("authentication disabled, trusting the " + auth.UserIDHeader + " header")
	} else {
		tokens, err := auth.NewTokens(cfg.Auth.Secret.Value(), cfg.Auth.Issuer, cfg.Auth.TokenTTL.Duration())
		if err != nil {
			return err
		}
		authCfg.Verifier = tokens
	}

	srv, err := skhttp.NewServer(svc, logger, &skhttp.Config{
		Host:      cfg.Server.Host,
		Port:      cfg.Server.Port,
		Heartbeat: cfg.Server.Heartbeat.Duration(),
		Auth:      authCfg,
		Health:    deps.health,
		Metrics:   promhttp.Handler(),
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := svc.Screens.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if serr := svc.Screens.Shutdown(); serr != nil {
			logger.Warn("closing screens", zap.Error(serr))
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server shutdown complete")
	return nil
}

// dependencies holds the storage backends.
type dependencies struct {
	broker  *broker.Broker
	docs    docstore.Client
	objects docstore.Objects
}

// initDependencies connects the document and object stores selected by
// storage.driver.
func initDependencies(cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	if cfg.Storage.Driver == "memory" {
		logger.Warn("using in-memory storage, data is lost on exit")
		return &dependencies{
			docs:    docstore.NewMemoryClient(logger),
			objects: docstore.NewMemoryObjects(cfg.Media.BaseURL),
		}, nil
	}

	b, err := broker.Connect(cfg.NATS, logger)
	if err != nil {
		return nil, err
	}
	deps := &dependencies{broker: b}

	deps.docs, err = docstore.NewNATSClient(b.JetStream(), cfg.Storage.Bucket, logger)
	if err != nil {
		b.Close()
		return nil, err
	}
	deps.objects, err = docstore.NewNATSObjects(b.JetStream(), cfg.Storage.ObjectBucket, cfg.Media.BaseURL, logger)
	if err != nil {
		b.Close()
		return nil, err
	}
	return deps, nil
}

// health fails while the broker connection is down.
func (d *dependencies) health() error {
	if d.broker != nil && !d.broker.Healthy() {
		return errors.New("nats disconnected")
	}
	return nil
}

// Close releases the broker, if any.
func (d *dependencies) Close() {
	if d.broker != nil {
		d.broker.Close()
	}
}

// initServices builds the domain services on top of deps.
func initServices(cfg *config.Config, deps *dependencies, tel *telemetry.Telemetry, reg prometheus.Registerer, logger *zap.Logger) (skhttp.Services, error) {
	cat, err := catalog.Load(catalogPath)
	if err != nil {
		return skhttp.Services{}, err
	}
	policy, err := feed.ParseMergePolicy(cfg.Feed.MergePolicy)
	if err != nil {
		return skhttp.Services{}, err
	}

	store := media.NewStore(deps.objects, media.Config{
		MaxBytes:    int64(cfg.Media.MaxUploadMB) << 20,
		ContentType: cfg.Media.ContentType,
	}, logger)

	postSvc, err := posts.NewService(deps.docs, store, posts.Config{
		LikesPerMinute: cfg.Likes.PerMinute,
		LikeBurst:      cfg.Likes.Burst,
	}, tel, logger)
	if err != nil {
		return skhttp.Services{}, err
	}
	trickSvc := tricks.NewService(deps.docs, store, cat, tel, logger)

	registry := screens.NewRegistry(screens.Config{
		IdleTimeout:   cfg.Screens.IdleTimeout.Duration(),
		SweepInterval: cfg.Screens.SweepInterval.Duration(),
		MaxPerUser:    cfg.Screens.MaxPerUser,
		PageSize:      cfg.Feed.PageSize,
		Window:        cfg.Feed.Window,
		Policy:        policy,
	}, postSvc, trickSvc, screens.NewMetrics(reg), logger)

	logger.Info("Services initialized",
		zap.Int("catalog_tricks", cat.Len()),
		zap.String("merge_policy", cfg.Feed.MergePolicy),
		zap.Int("page_size", cfg.Feed.PageSize))

	return skhttp.Services{
		Posts:   postSvc,
		Tricks:  trickSvc,
		Users:   users.NewService(deps.docs, postSvc, trickSvc, tel, logger),
		Pros:    pros.NewService(deps.docs, store, cat, trickSvc, tel, logger),
		Catalog: cat,
		Screens: registry,
		Media:   store,
	}, nil
}
