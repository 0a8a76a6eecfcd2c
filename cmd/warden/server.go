package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aegis-bot/warden/automod/behavior"
	automodconfig "github.com/aegis-bot/warden/automod/config"
	"github.com/aegis-bot/warden/automod/consumer"
	"github.com/aegis-bot/warden/automod/effects"
	"github.com/aegis-bot/warden/automod/engine"
	"github.com/aegis-bot/warden/automod/filter"
	"github.com/aegis-bot/warden/automod/ledger"
	"github.com/aegis-bot/warden/automod/sanctionstore"
	"github.com/aegis-bot/warden/automod/sink"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Server struct {
	logger   *slog.Logger
	engine   *engine.Engine
	configs  *automodconfig.GormStore
	ledger   ledger.Store
	consumer *consumer.KafkaConsumer
	echo     *echo.Echo
	httpd    *http.Server
	rdb      *redis.Client
}

type Config struct {
	Logger *slog.Logger
	Bind   string
	// optional; without it all state is kept in process
	RedisClient *redis.Client
	// "sql" or "redis"
	LedgerBackend   string
	LedgerRetention time.Duration
	ConfigCacheTTL  time.Duration

	BridgeHost      string
	BridgeToken     string
	BridgeRateLimit float64
	// log actions instead of calling the bridge
	ReadOnly bool

	SlackWebhookURL   string
	SanctionQuotaHour int

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string

	// bearer token for the admin API; empty disables auth
	AdminToken string
	// for HTTP metrics; defaults to the global prometheus registry
	Registerer prometheus.Registerer
}

func NewServer(db *gorm.DB, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	rdb := config.RedisClient

	configs, err := automodconfig.NewGormStore(db, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing config store: %w", err)
	}
	cacheTTL := config.ConfigCacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	var cache automodconfig.Cache
	if rdb != nil {
		cache = automodconfig.NewRedisCache(rdb, cacheTTL)
	} else {
		cache = automodconfig.NewMemCache(10_000, cacheTTL)
	}
	provider := automodconfig.NewCachedProvider(configs, cache, logger)

	var store ledger.Store
	switch config.LedgerBackend {
	case "", "sql":
		gs, err := ledger.NewGormStore(db)
		if err != nil {
			return nil, fmt.Errorf("initializing violation ledger: %w", err)
		}
		store = gs
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("redis ledger backend requires a redis URL")
		}
		store = ledger.NewRedisStore(rdb, config.LedgerRetention)
	default:
		return nil, fmt.Errorf("unknown ledger backend: %q", config.LedgerBackend)
	}

	var sanctions sanctionstore.Store
	if rdb != nil {
		sanctions = sanctionstore.NewRedisStore(rdb)
	} else {
		sanctions = sanctionstore.NewMemStore(100_000, 7*24*time.Hour)
	}

	var actionSink effects.ActionSink
	if config.ReadOnly || config.BridgeHost == "" {
		logger.Info("platform bridge not configured or read-only mode; actions will only be logged")
		actionSink = sink.NewLogSink(logger)
	} else {
		hs, err := sink.NewHTTPSink(sink.HTTPSinkConfig{
			Host:      config.BridgeHost,
			Token:     config.BridgeToken,
			RateLimit: config.BridgeRateLimit,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		actionSink = hs
	}

	ex := effects.NewExecutor(actionSink, store, sanctions, logger)
	if config.SanctionQuotaHour != 0 {
		ex.SanctionQuotaHour = int64(config.SanctionQuotaHour)
	}
	if config.SlackWebhookURL != "" {
		logger.Info("sending violation notifications to slack")
		ex.Notifier = sink.NewSlackNotifier(config.SlackWebhookURL)
	}

	eng := engine.NewEngine(provider, filter.DefaultSet(), behavior.NewTracker(behavior.DefaultIdleTTL, logger), ex, logger)
	configs.OnChange(func(ctx context.Context, groupID string) {
		if err := eng.OnConfigChanged(ctx, groupID); err != nil {
			logger.Error("failed to invalidate config cache", "group", groupID, "err", err)
		}
	})

	srv := &Server{
		logger:  logger,
		engine:  eng,
		configs: configs,
		ledger:  store,
		rdb:     rdb,
	}

	if len(config.KafkaBrokers) > 0 {
		srv.consumer = &consumer.KafkaConsumer{
			Brokers: config.KafkaBrokers,
			Topic:   config.KafkaTopic,
			Group:   config.KafkaGroup,
			Handler: eng,
			Logger:  logger,
		}
	}

	srv.echo = newEcho(srv, logger, config.AdminToken, config.Registerer)
	srv.httpd = &http.Server{
		Handler:        srv.echo,
		Addr:           config.Bind,
		WriteTimeout:   time.Minute,
		ReadTimeout:    time.Minute,
		MaxHeaderBytes: 1 * (1024 * 1024),
	}
	return srv, nil
}

// Runs the engine, the HTTP API and (if configured) the kafka consumer, until ctx is done or one of them fails.
func (srv *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.engine.Run(ctx)
	})

	if srv.consumer != nil {
		g.Go(func() error {
			if err := srv.consumer.Run(ctx); err != nil {
				return fmt.Errorf("kafka consumer: %w", err)
			}
			return nil
		})
	}

	if srv.httpd.Addr != "" {
		g.Go(func() error {
			srv.logger.Info("starting api server", "bind", srv.httpd.Addr)
			if err := srv.httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("api server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.httpd.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	srv.logger.Info("draining queued messages")
	srv.engine.Close()
	return err
}
