package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hookbin/hookbin/internal/cleanup"
	"github.com/hookbin/hookbin/internal/config"
	"github.com/hookbin/hookbin/internal/handler"
	"github.com/hookbin/hookbin/internal/hub"
	"github.com/hookbin/hookbin/internal/limiter"
	"github.com/hookbin/hookbin/internal/logging"
	"github.com/hookbin/hookbin/internal/pipeline"
	"github.com/hookbin/hookbin/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("HOOKBIN_CONFIG")
	if cfgPath == "" {
		cfgPath = "hookbin.toml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	st, err := store.NewSQLiteStore(cfg.Database.Path, cfg.Database.MaxConnections, cfg.Limits.MaxRequestsPerBin)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer st.Close()

	limit := limiter.Limit{Rate: cfg.RateLimiting.RequestsPerSecond, Burst: cfg.RateLimiting.BurstSize}
	var (
		lim limiter.SourceLimiter
		mem *limiter.Memory
	)
	switch cfg.RateLimiting.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RateLimiting.RedisAddr})
		lim, err = limiter.NewRedis(client, limit)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
	default:
		mem = limiter.NewMemory(limit, cfg.RateLimiting.PruneInterval, cfg.RateLimiting.BucketIdleTTL, logger)
		lim = mem
	}

	broadcast := hub.New(hub.DefaultBuffer, logger)
	pipe := pipeline.New(st, lim, broadcast, pipeline.Limits{
		MaxBodySize:    cfg.Limits.MaxBodySize,
		MaxHeadersSize: cfg.Limits.MaxHeadersSize,
	}, logger)

	h := handler.NewHandler(st, pipe, cfg.Limits.MaxBodySize, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	reaper := cleanup.New(st, broadcast, cfg.Cleanup.BinExpiry, cfg.Cleanup.Interval, logger)
	g.Go(func() error {
		reaper.Run(ctx)
		return nil
	})

	if mem != nil {
		g.Go(func() error {
			mem.Run(ctx)
			return nil
		})
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: h.Routes()}

	g.Go(func() error {
		logger.Info("starting server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("server stopped")
}
