package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jaennil/guide_helper/backend/wmscache/internal/backend"
	v1 "github.com/jaennil/guide_helper/backend/wmscache/internal/infrastructure/http/v1"
	"github.com/jaennil/guide_helper/backend/wmscache/internal/infrastructure/http/v1/handler"
	"github.com/jaennil/guide_helper/backend/wmscache/internal/layer"
	"github.com/jaennil/guide_helper/backend/wmscache/internal/metatile"
	"github.com/jaennil/guide_helper/backend/wmscache/internal/repository/cache"
	"github.com/jaennil/guide_helper/backend/wmscache/internal/usecase"
	"github.com/jaennil/guide_helper/backend/wmscache/pkg/config"
	"github.com/jaennil/guide_helper/backend/wmscache/pkg/http_server"
	"github.com/jaennil/guide_helper/backend/wmscache/pkg/logger"
	"github.com/jaennil/guide_helper/backend/wmscache/pkg/telemetry"
)

const purgeInterval = 10 * time.Minute

func Run(cfg *config.Config) {
	l := logger.NewZapLogger(cfg.Logger)
	defer l.Sync()

	l.Info("app config", "cfg", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx = logger.WithLogger(ctx, l)

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.InitTracer(telemetry.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			Environment:    cfg.Telemetry.Environment,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		}, l)
		if err != nil {
			l.Fatal("failed to initialize telemetry", "error", err)
		}
		defer func() {
			if err := shutdownTelemetry(context.Background()); err != nil {
				l.Error("failed to shutdown telemetry", "error", err)
			}
		}()
		l.Info("telemetry initialized", "service", cfg.Telemetry.ServiceName)
	}

	layerFile, err := config.LoadLayers(cfg.Layers.File)
	if err != nil {
		l.Fatal("failed to load layers", "file", cfg.Layers.File, "error", err)
	}
	layers, err := layer.NewSet(layerFile.Layers, layer.Defaults{
		Fallback:  cfg.Cache.DefaultExpiration,
		MaxPixels: cfg.Backend.MaxPixels,
	})
	if err != nil {
		l.Fatal("invalid layer configuration", "error", err)
	}
	l.Info("layers loaded", "count", len(layers.All()))

	tileCache, err := newTileCache(cfg, l)
	if err != nil {
		l.Fatal("failed to initialize tile cache", "backend", cfg.Cache.Backend, "error", err)
	}
	if closer, ok := tileCache.(io.Closer); ok {
		defer closer.Close()
	}
	if p, ok := tileCache.(purger); ok {
		go purgeLoop(ctx, p, purgeInterval, l)
	}

	dispatcher := backend.NewDispatcher(backend.Config{
		Timeout:             cfg.Backend.Timeout,
		UserAgent:           cfg.Backend.UserAgent,
		MaxIdleConnsPerHost: cfg.Backend.MaxConns,
	}, l)

	tileUseCase := usecase.NewTileUseCase(
		layers,
		dispatcher,
		metatile.NewRegistry(),
		usecase.NewTileCacheUseCase(tileCache, l),
		l,
	)

	validate := validator.New()
	h := handler.NewHandler(validate, tileUseCase)
	router := v1.NewRouter(h, l, cfg.Telemetry.Enabled)

	httpServer := http_server.NewServer(cfg.HTTP.Server, router)

	go func() {
		l.Info("starting http server...", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	l.Info("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	l.Info("shutting down http server...", "address", httpServer.Addr)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		l.Error("http server shutdown failed", "error", err)
	} else {
		l.Info("http_server shutdown completed")
	}

	l.Info("application shutdown completed")
}

func newTileCache(cfg *config.Config, l logger.Logger) (cache.TileCache, error) {
	switch cfg.Cache.Backend {
	case "memory":
		return cache.NewMemoryCache(cfg.Cache.MemoryMaxSize), nil
	case "map":
		return cache.NewMapCache(), nil
	case "redis":
		return cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	case "sqlite":
		return cache.NewSQLiteCache(cfg.SQLite.Path, l)
	case "filesystem":
		return cache.NewFilesystemCache(cfg.Cache.Dir)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

type purger interface {
	Purge(ctx context.Context) (int64, error)
}

// purgeLoop drops expired tiles from stores that keep them after expiry.
func purgeLoop(ctx context.Context, p purger, every time.Duration, l logger.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.Purge(ctx)
			if err != nil {
				l.Error("failed to purge expired tiles", "error", err)
				continue
			}
			if n > 0 {
				l.Info("purged expired tiles", "count", n)
			}
		}
	}
}
