// Package app wires configuration, storage, the registry and the HTTP
// server together and runs the service until its context is canceled.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/httplog/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/vadimbarashkov/shortlink/internal/adapter/repository/memory"
	"github.com/vadimbarashkov/shortlink/internal/config"
	"github.com/vadimbarashkov/shortlink/internal/metrics"
	"github.com/vadimbarashkov/shortlink/internal/usecase"
	"github.com/vadimbarashkov/shortlink/pkg/postgres"
	"golang.org/x/sync/errgroup"

	delivery "github.com/vadimbarashkov/shortlink/internal/adapter/delivery/http"
	repository "github.com/vadimbarashkov/shortlink/internal/adapter/repository/postgres"
)

const migrationsSource = "file://migrations"

func Run(ctx context.Context, cfg *config.Config) error {
	const op = "app.Run"

	logger := newLogger(cfg.Env)

	repo, closer, err := openStorage(ctx, cfg, logger.Logger)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		if err := closer.Close(); err != nil {
			logger.Error("failed to close storage", slog.String("op", op), slog.Any("err", err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	registry := usecase.New(repo,
		usecase.WithBaseCodeLength(cfg.Registry.BaseCodeLength),
		usecase.WithMaxRetries(cfg.Registry.MaxRetries),
		usecase.WithLogger(logger.Logger),
		usecase.WithMetrics(m),
	)

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        delivery.NewRouter(logger, registry, m),
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server",
			slog.String("addr", server.Addr),
			slog.String("env", cfg.Env),
			slog.String("storage", cfg.Storage.Driver),
		)

		var err error

		switch cfg.Env {
		case config.EnvProd:
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		default:
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server error occurred: %w", op, err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		logger.Info("shutting down http server")

		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("%s: failed to shutdown server: %w", op, err)
		}

		return nil
	})

	return g.Wait()
}

func newLogger(env string) *httplog.Logger {
	opts := httplog.Options{
		LogLevel:         slog.LevelInfo,
		Concise:          true,
		RequestHeaders:   true,
		MessageFieldName: "message",
	}

	switch env {
	case config.EnvDev:
		opts.LogLevel = slog.LevelDebug
	case config.EnvProd:
		opts.JSON = true
		opts.Concise = false
	default:
		opts.JSON = true
	}

	return httplog.NewLogger("shortlink", opts)
}

// openStorage returns the configured record repository together with the
// closer that releases it.
func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (usecase.RecordRepository, io.Closer, error) {
	const op = "app.openStorage"

	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		if cfg.Storage.LogPath == "" {
			logger.Warn("memory storage has no log path, records will not survive a restart")
			repo := memory.New()
			return repo, repo, nil
		}

		repo, err := memory.Open(cfg.Storage.LogPath)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: failed to open memory storage: %w", op, err)
		}

		logger.Info("memory storage opened",
			slog.String("log_path", cfg.Storage.LogPath),
			slog.Int("records", repo.Len()),
		)

		return repo, repo, nil
	default:
		db, err := postgres.New(
			ctx,
			cfg.Postgres.Driver,
			cfg.Postgres.DSN(),
			postgres.WithConnMaxIdleTime(cfg.Postgres.ConnMaxIdleTime),
			postgres.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
			postgres.WithMaxIdleConns(cfg.Postgres.MaxIdleConns),
			postgres.WithMaxOpenConns(cfg.Postgres.MaxOpenConns),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: failed to connect to database: %w", op, err)
		}

		version, err := postgres.RunMigrations(migrationsSource, cfg.Postgres.DSN())
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("%s: failed to run migrations: %w", op, err)
		}

		logger.Info("postgres storage opened",
			slog.String("driver", cfg.Postgres.Driver),
			slog.Uint64("schema_version", uint64(version)),
		)

		return repository.NewRecordRepository(db), db, nil
	}
}
