package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"log/slog"

	"github.com/gospotdev/gospot/internal/config"
	"github.com/gospotdev/gospot/internal/events"
	"github.com/gospotdev/gospot/internal/handlers"
	"github.com/gospotdev/gospot/internal/health"
	"github.com/gospotdev/gospot/internal/logging"
	"github.com/gospotdev/gospot/internal/metrics"
	"github.com/gospotdev/gospot/internal/service"
	"github.com/gospotdev/gospot/internal/storage"
	"github.com/gospotdev/gospot/internal/trace"
	"github.com/gospotdev/gospot/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.App.LogLevel, cfg.App.ServiceName, cfg.App.Env)

	shutdownTracer, err := trace.InitTracer(cfg.App.ServiceName, cfg.App.Env, cfg.Trace.OTLPEndpoint)
	if err != nil {
		logger.Error("tracer init failed", "error", err)
	} else {
		defer func() {
			_ = shutdownTracer(context.Background())
		}()
	}

	if cfg.App.Env == "dev" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)
	domainMetrics := service.NewMetrics(registry)

	ready := health.NewManager(false)

	pool, err := connectDB(cfg)
	if err != nil {
		logger.Error("db connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	defer redisClient.Close()

	publisher := events.NewRedisPublisher(redisClient)

	var feed service.TradeFeedPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		tradeFeed, err := events.NewTradeFeed(cfg.Kafka.Brokers, cfg.Kafka.TradesTopic)
		if err != nil {
			logger.Error("kafka trade feed init failed", "error", err)
			os.Exit(1)
		}
		defer tradeFeed.Close()
		feed = tradeFeed
	}

	store := storage.New(pool, cfg.DB.LockTimeout)
	ready.AddCheck("postgres", store.Ping)
	ready.AddCheck("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})

	balances := service.NewBalanceService(logger)
	assets := service.NewAssetService(logger)
	engine := service.NewEngine(balances, assets, logger, domainMetrics)
	orders := service.NewOrderService(store, balances, assets, engine, publisher, feed, logger, domainMetrics)
	accounts := service.NewAccountService(store, assets, []byte(cfg.JWT.Secret), cfg.JWT.TTL, logger)

	hub := ws.NewHub(redisClient, logger)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go hub.Run(hubCtx)

	router := handlers.NewRouter(handlers.RouterConfig{
		Handler:     handlers.New(accounts, orders, logger),
		JWTSecret:   []byte(cfg.JWT.Secret),
		Logger:      logger,
		Health:      ready,
		ServiceName: cfg.App.ServiceName,
		WSHandler:   hub.Handler(),
	})

	apiServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.App.HTTP.Host, cfg.App.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.App.HTTP.ReadTimeout,
		WriteTimeout: cfg.App.HTTP.WriteTimeout,
		IdleTimeout:  cfg.App.HTTP.IdleTimeout,
	}
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.App.HTTP.Host, cfg.App.MetricsPort),
		Handler: metricsMux(registry),
	}

	ready.SetReady(true)

	go func() {
		logger.Info("api server starting", "addr", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server error", "error", err)
		}
	}()
	go func() {
		logger.Info("metrics server starting", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	waitForShutdown(apiServer, metricsServer, ready, hubCancel, logger)
}

func connectDB(cfg *config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DB.DSN())
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func metricsMux(registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(registry))
	return mux
}

func waitForShutdown(apiServer, metricsServer *http.Server, ready *health.Manager, cancelHub context.CancelFunc, logger *slog.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutdown started")
	ready.SetReady(false)
	cancelHub()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Error("api shutdown error", "error", err)
	}
	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Error("metrics shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}
