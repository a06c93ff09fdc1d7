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

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/d60-Lab/tutorlink/config"
	"github.com/d60-Lab/tutorlink/internal/api"
	"github.com/d60-Lab/tutorlink/internal/api/handler"
	"github.com/d60-Lab/tutorlink/internal/cache"
	"github.com/d60-Lab/tutorlink/internal/repository"
	"github.com/d60-Lab/tutorlink/internal/service"
	"github.com/d60-Lab/tutorlink/pkg/database"
	"github.com/d60-Lab/tutorlink/pkg/logger"
	"github.com/d60-Lab/tutorlink/pkg/tracing"
)

// @title Tutorlink Connection API
// @version 1.0
// @description 学生与老师之间的连接请求生命周期
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Sentry.Environment,
			EnableTracing:    cfg.Sentry.TracesSampleRate > 0,
			TracesSampleRate: cfg.Sentry.TracesSampleRate,
		}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	conns := repository.NewConnectionRepository(db)
	index := repository.NewUserConnectionRepository(db)
	outbox := repository.NewOutboxRepository(db)

	profiles, closeProfiles, err := newProfileSource(ctx, cfg, repository.NewUserRepository(db))
	if err != nil {
		return err
	}
	defer closeProfiles()

	var (
		writer        service.IndexWriter
		stopReplicate = func(context.Context) error { return nil }
	)
	switch cfg.Index.Mode {
	case "async":
		rep := service.NewIndexReplicator(index, outbox, cfg.Index.Workers, cfg.Index.QueueSize, cfg.Index.JobTimeout)
		stopReplicate = rep.Start()
		writer = rep
	default:
		writer = service.NewSyncIndexWriter(index, outbox, cfg.Index.JobTimeout)
	}

	stopRepair := func(context.Context) error { return nil }
	if cfg.Index.RepairEnabled {
		worker := service.NewIndexRepairWorker(outbox, conns, index, 1, cfg.Index.RepairBatch, cfg.Index.MaxAttempts, cfg.Index.RepairInterval)
		stopRepair = worker.Start()
	}

	svc := service.NewConnectionService(conns, writer,
		service.NewQueryResolver(conns, index, cfg.Profile.BatchSize),
		service.NewProfileEnricher(profiles, cfg.Profile.BatchSize))

	router, err := api.NewRouter(cfg, handler.NewHandler(svc))
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("index_mode", cfg.Index.Mode),
			zap.String("profile_source", cfg.Profile.Source))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	if err := stopReplicate(shutdownCtx); err != nil {
		logger.Error("index replicator did not drain", zap.Error(err))
	}
	_ = stopRepair(shutdownCtx)
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
	return nil
}

// newProfileSource 按 profile.source 选择资料来源，redis 可用且 cache_ttl > 0 时加一层缓存
func newProfileSource(ctx context.Context, cfg *config.Config, users repository.UserRepository) (service.ProfileSource, func(), error) {
	var (
		source  service.ProfileSource
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Profile.Source {
	case "dynamodb":
		client, err := repository.NewDynamoClient(ctx, cfg.Profile.DynamoRegion)
		if err != nil {
			return nil, nil, err
		}
		source = repository.NewDynamoProfileRepository(client, cfg.Profile.DynamoTable)
	case "mongo":
		mc, err := repository.ConnectMongo(ctx, cfg.Profile.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { _ = mc.Disconnect(context.Background()) })
		coll := mc.Database(cfg.Profile.MongoDatabase).Collection(cfg.Profile.MongoCollection)
		source = repository.NewMongoProfileRepository(coll)
	default:
		source = users
	}

	if cfg.Profile.CacheTTL > 0 {
		rdb, err := database.InitRedis(ctx, cfg)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		if rdb != nil {
			closers = append(closers, func() { _ = rdb.Close() })
			source = cache.NewProfileCache(source, rdb, cfg.Profile.CacheTTL)
		} else {
			logger.Warn("profile.cache_ttl set but redis.addr is empty, profile cache disabled")
		}
	}
	return source, closeAll, nil
}
