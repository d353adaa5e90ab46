package commands

import (
	"context"
	"fmt"

	"github.com/wonny/dva-forecast/internal/forecast"
	"github.com/wonny/dva-forecast/internal/metrics"
	"github.com/wonny/dva-forecast/internal/pipeline"
	"github.com/wonny/dva-forecast/pkg/config"
	"github.com/wonny/dva-forecast/pkg/database"
	"github.com/wonny/dva-forecast/pkg/httputil"
	"github.com/wonny/dva-forecast/pkg/logger"
	"github.com/wonny/dva-forecast/pkg/redis"
)

// deps 커맨드 공통 의존성
type deps struct {
	cfg    *config.Config
	log    *logger.Logger
	db     *database.DB  // nil when DB_ENABLED=false
	redis  *redis.Client // disabled client when REDIS_ENABLED=false
	runner *pipeline.Runner
}

func (d *deps) Close() {
	if d.db != nil {
		d.db.Close()
	}
	if d.redis != nil {
		_ = d.redis.Close()
	}
}

// loadConfig config.Load + 전역 플래그 반영
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if env != "" {
		cfg.Env = env
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// initDeps config → logger → (database) → (redis) → runner
func initDeps(ctx context.Context) (*deps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	d := &deps{cfg: cfg, log: logger.New(cfg)}

	opts := []pipeline.Option{}

	if cfg.Database.Enabled {
		db, err := database.New(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := database.EnsureSchema(ctx, db.Pool); err != nil {
			db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		d.db = db
		opts = append(opts, pipeline.WithHistory(forecast.NewRepository(db.Pool)))
		d.log.Info("Connected to database")
	}

	rc, err := redis.New(ctx, cfg)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	d.redis = rc
	if rc.Enabled() {
		opts = append(opts, pipeline.WithLocker(redis.NewStageLocker(rc, "dva", cfg.Redis.LockTTL)))
		d.log.Info("Stage lock enabled")
	}

	if cfg.Metrics.Gateway != "" {
		httpClient := httputil.New(d.log, cfg.Metrics.Timeout)
		opts = append(opts, pipeline.WithPublisher(
			metrics.NewPublisher(cfg.Metrics.Gateway, cfg.Metrics.Job, httpClient, d.log.Zerolog()),
		))
	}

	d.runner = pipeline.NewRunner(cfg, d.log, opts...)
	return d, nil
}
