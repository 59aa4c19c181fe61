package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/tabledock/internal/blob"
	"github.com/JonMunkholm/tabledock/internal/config"
	"github.com/JonMunkholm/tabledock/internal/core"
	_ "github.com/JonMunkholm/tabledock/internal/core/formats" // Register csv and xlsx
	"github.com/JonMunkholm/tabledock/internal/database"
	"github.com/JonMunkholm/tabledock/internal/index"
	"github.com/JonMunkholm/tabledock/internal/logging"
	"github.com/JonMunkholm/tabledock/internal/web"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	closeLog, err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	if err != nil {
		return err
	}
	defer closeLog()

	slog.Info("configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := database.EnsureSchema(ctx, pool); err != nil {
		return err
	}
	store := database.NewStore(pool)

	idx, closeIndex, err := openIndex(cfg.Index)
	if err != nil {
		return err
	}
	defer closeIndex()

	files, err := blob.NewDir(cfg.Storage.MediaRoot)
	if err != nil {
		return fmt.Errorf("media root: %w", err)
	}
	exports, err := blob.NewDir(cfg.Storage.ExportRoot)
	if err != nil {
		return fmt.Errorf("export root: %w", err)
	}

	service, err := core.NewService(core.Deps{
		Datasets: store,
		Uploads:  store,
		Tasks:    store,
		Index:    idx,
		Files:    files,
		Exports:  exports,
	}, serviceOptions(cfg))
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	if cfg.Worker.RecoverOnStart {
		failed, unlocked, err := service.RecoverInterrupted(ctx)
		if err != nil {
			return fmt.Errorf("recover interrupted tasks: %w", err)
		}
		if failed > 0 || unlocked > 0 {
			slog.Warn("recovered from unclean shutdown", "failed_tasks", failed, "unlocked_datasets", unlocked)
		}
	}

	var formats []string
	for _, f := range core.Formats() {
		formats = append(formats, f.Key)
	}
	slog.Info("file formats registered", "formats", formats)

	server := web.NewServer(service, cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown error", "error", err)
		}

		// Running pipelines finish or are failed by the scheduler.
		if active := service.ActiveTasks(); active > 0 {
			slog.Info("waiting for tasks to complete", "active", active)
		}
		if err := service.Shutdown(shutdownCtx); err != nil {
			slog.Warn("tasks did not complete in time", "error", err)
		}
		return nil
	})

	return g.Wait()
}

func connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	}
	return pool, nil
}

// openIndex builds the configured row index. The returned func releases it.
func openIndex(cfg config.IndexConfig) (core.Index, func(), error) {
	switch strings.ToLower(cfg.Backend) {
	case "solr":
		slog.Info("using solr index", "url", cfg.SolrURL)
		return index.NewSolr(cfg.SolrURL, cfg.RequestTimeout), func() {}, nil
	case "memory":
		slog.Warn("using in-memory index; rows are lost on restart")
		return index.NewMemory(), func() {}, nil
	default:
		idx, err := index.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite index: %w", err)
		}
		slog.Info("using sqlite index", "path", cfg.SQLitePath)
		return idx, func() {
			if err := idx.Close(); err != nil {
				slog.Warn("close sqlite index", "error", err)
			}
		}, nil
	}
}

func serviceOptions(cfg *config.Config) core.Options {
	return core.Options{
		DataCore:          cfg.Index.DataCore,
		DatasetsCore:      cfg.Index.DatasetsCore,
		BatchSize:         cfg.Import.BatchSize,
		PageSize:          cfg.Export.PageSize,
		SnifferSampleSize: cfg.Import.SnifferSampleSize,
		TypeInferenceRows: cfg.Import.TypeInferenceRows,
		SampleRows:        cfg.Import.SampleRows,
		MaxFileSize:       cfg.Import.MaxFileSize,
		DefaultEncoding:   cfg.Import.DefaultEncoding,
		Throttle:          cfg.Worker.Throttle,
		MaxConcurrent:     cfg.Worker.MaxConcurrent,
		MaxWaitTime:       cfg.Worker.MaxWaitTime,
	}
}
