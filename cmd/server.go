package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"price-radar/internal/api"
	"price-radar/internal/cache"
	"price-radar/internal/catalog"
	"price-radar/internal/fetcher"
	"price-radar/internal/queue"
	"price-radar/internal/storage"
	"price-radar/internal/worker"
)

// AppConfig 应用配置。
type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Queue    QueueConfig    `yaml:"queue"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig 为空 Addr 时退化为进程内缓存与队列，适合本地开发。
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type QueueConfig struct {
	MaxAttempts    int `yaml:"max_attempts"`
	WorkersPerType int `yaml:"workers_per_type"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}

	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = "price-radar.db"
	}
	store, err := storage.NewStore(dbPath)
	if err != nil {
		logger.Fatalf("init store: %v", err)
	}
	defer store.Close()

	var (
		cacheStore cache.Store
		broker     queue.Broker
		locker     catalog.Locker
	)
	redisAddr := cfg.Redis.Addr
	if env := os.Getenv("REDIS_ADDR"); env != "" {
		redisAddr = env
	}
	if redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cacheStore = cache.NewRedisStore(rdb)
		broker = queue.NewRedisBroker(rdb)
		locker = catalog.NewRedisLocker(redislock.New(rdb))
		logger.WithField("addr", redisAddr).Info("using redis cache and queue")
	} else {
		cacheStore = cache.NewMemoryStore()
		broker = queue.NewMemoryBroker()
		logger.Info("redis not configured, using in-memory cache and queue")
	}

	q := queue.New(broker, cacheStore, logger, cfg.Queue.MaxAttempts)
	fetch := fetcher.New(nil, logger)
	resolver := catalog.NewResolver(store, nil, cacheStore, locker, logger)
	pool := worker.NewPool(q, fetch, resolver, store, cacheStore, logger, cfg.Queue.WorkersPerType)
	handler := api.NewHandler(q, resolver, store, cacheStore)

	addr := cfg.Server.Addr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{Addr: addr, Handler: handler}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pool.Run(ctx)
	})
	g.Go(func() error {
		logger.WithField("addr", addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("shutdown: %v", err)
	}
}

func loadConfig() (AppConfig, error) {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config.yaml"
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		// 无配置文件时全部走默认值。
		return AppConfig{}, nil
	}
	if err != nil {
		return AppConfig{}, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}
