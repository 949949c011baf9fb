package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/numbers-lottery/internal/config"
	"github.com/iliyamo/numbers-lottery/internal/database"
	"github.com/iliyamo/numbers-lottery/internal/game"
	"github.com/iliyamo/numbers-lottery/internal/handler"
	"github.com/iliyamo/numbers-lottery/internal/logger"
	"github.com/iliyamo/numbers-lottery/internal/middleware"
	"github.com/iliyamo/numbers-lottery/internal/queue"
	"github.com/iliyamo/numbers-lottery/internal/repository"
	"github.com/iliyamo/numbers-lottery/internal/router"
	queue_publisher "github.com/iliyamo/numbers-lottery/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional
	cfg := config.Load()
	gcfg := config.LoadGameConfig()
	logger.Setup(cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg)
	if err != nil {
		logger.Log.Fatalf("db open: %v", err)
	}
	defer db.Close()
	if gcfg.Migrate {
		if err := database.Migrate(ctx, db); err != nil {
			logger.Log.Fatalf("db migrate: %v", err)
		}
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warnf("redis unavailable; rate limiting and result cache disabled")
	} else {
		defer rdb.Close()
	}

	store := repository.NewGameStore(db)
	svc := game.NewService(store, store, repository.NewSubscriptionRepo(db),
		queue_publisher.New(gcfg.AMQPURL, gcfg.NotifyQueue),
		game.Options{
			OpTimeout:       gcfg.OpTimeout,
			PublishAttempts: gcfg.PublishAttempts,
			PublishBackoff:  gcfg.PublishBackoff,
			Metrics:         game.MustNewMetrics(prometheus.DefaultRegisterer),
		})
	notifications := repository.NewNotificationRepo(db)

	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e, db, promhttp.Handler())
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, repository.NewUserRepo(db), repository.NewTokenRepo(db)), cfg.JWTSecret)
	gh := handler.NewGameHandler(svc, gcfg.DefaultDigits)
	router.RegisterPlayer(e, gh, cfg.JWTSecret, middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	router.RegisterRounds(e, gh, middleware.NewRedisCache(config.LoadCacheConfig(), rdb))
	router.RegisterOperator(e, handler.NewOperatorHandler(svc), cfg.JWTSecret)
	router.RegisterInbox(e, handler.NewInboxHandler(notifications), cfg.JWTSecret)

	consumer := &queue.Consumer{URL: gcfg.AMQPURL, Queue: gcfg.NotifyQueue, Inbox: notifications}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := consumer.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Infof("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Errorf("server stopped: %v", err)
	}
}
