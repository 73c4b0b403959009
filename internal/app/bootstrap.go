// Package app is the composition root: bootstrap stays orchestration-only.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"floodgate.io/floodgate/internal/api/handlers"
	"floodgate.io/floodgate/internal/batcher"
	"floodgate.io/floodgate/internal/config"
	"floodgate.io/floodgate/internal/consumer"
	"floodgate.io/floodgate/internal/hub"
	"floodgate.io/floodgate/internal/infrastructure"
	"floodgate.io/floodgate/internal/pkg/logger"
	"floodgate.io/floodgate/internal/pkg/worker"
	"floodgate.io/floodgate/internal/ratelimit"
	"floodgate.io/floodgate/internal/repository"
	"floodgate.io/floodgate/internal/stats"
	"floodgate.io/floodgate/internal/stream"
)

// Application holds composed application dependencies.
type Application struct {
	Config *config.Config
	Router *gin.Engine

	pool       *pgxpool.Pool
	redis      *redis.Client
	pools      *worker.Pools
	batcher    *batcher.Batcher
	worker     *consumer.Worker
	aggregator *stats.Aggregator
	rejections *ratelimit.RejectionCounter
	hub        *hub.Hub
	bgWG       sync.WaitGroup
}

// Bootstrap initializes all dependencies using manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize:   cfg.Worker.GeneralPoolSize,
		BroadcastPoolSize: cfg.Worker.BroadcastPoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	pool, err := infrastructure.NewPGXPool(ctx, cfg.Database)
	if err != nil {
		pools.Shutdown()
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := infrastructure.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		pool.Close()
		pools.Shutdown()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	store := repository.NewEventStore(pool)
	if cfg.Database.AutoMigrate {
		if err := store.InitSchema(ctx); err != nil {
			closeInfra(pool, redisClient, pools)
			return nil, fmt.Errorf("init schema: %w", err)
		}
	}

	log := stream.NewLog(redisClient, cfg.Stream.Name, cfg.Stream.Group, cfg.Stream.MaxLen)
	if err := log.EnsureGroup(ctx); err != nil {
		closeInfra(pool, redisClient, pools)
		return nil, fmt.Errorf("ensure consumer group: %w", err)
	}

	limiter := ratelimit.NewLimiter(redisClient, cfg.RateLimit.Window, cfg.RateLimit.LimitPerWindow)
	rejections := ratelimit.NewRejectionCounter(redisClient)
	queue := batcher.New(log, pools.General, cfg.Batcher.BatchSize, cfg.Batcher.FlushInterval)
	liveHub := hub.New(pools)
	aggregator := stats.NewAggregator(cfg.Stats.TickInterval, cfg.Stats.HistorySize)

	// Seed the monotonic total from storage. The active-user set is not
	// rehydrated: it starts empty at every restart.
	total, err := store.CountEvents(ctx)
	if err != nil {
		closeInfra(pool, redisClient, pools)
		return nil, fmt.Errorf("seed aggregate: %w", err)
	}
	aggregator.Seed(total)
	logger.Info("Aggregate seeded from store", zap.Int64("total_events", total))

	streamWorker := consumer.New(log, store, aggregator, liveHub, consumer.Options{
		ReadCount:  cfg.Consumer.ReadCount,
		BlockWait:  cfg.Consumer.BlockWait,
		RetryPause: cfg.Consumer.RetryPause,
	})

	server := handlers.NewServer(handlers.ServerDeps{
		Limiter:     limiter,
		Queue:       queue,
		Rejections:  rejections,
		Stats:       aggregator,
		Store:       store,
		Hub:         liveHub,
		Pools:       pools,
		RecentLimit: cfg.Stats.RecentLimit,
	})

	return &Application{
		Config:     cfg,
		Router:     newRouter(server),
		pool:       pool,
		redis:      redisClient,
		pools:      pools,
		batcher:    queue,
		worker:     streamWorker,
		aggregator: aggregator,
		rejections: rejections,
		hub:        liveHub,
	}, nil
}

func closeInfra(pool *pgxpool.Pool, redisClient *redis.Client, pools *worker.Pools) {
	_ = redisClient.Close()
	pool.Close()
	pools.Shutdown()
}
