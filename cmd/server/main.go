package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/ticket-booking/internal/config"
	"github.com/iliyamo/ticket-booking/internal/database"
	"github.com/iliyamo/ticket-booking/internal/handler"
	"github.com/iliyamo/ticket-booking/internal/middleware"
	"github.com/iliyamo/ticket-booking/internal/queue"
	"github.com/iliyamo/ticket-booking/internal/repository"
	"github.com/iliyamo/ticket-booking/internal/router"
	"github.com/iliyamo/ticket-booking/internal/service"
)

const scanLockKey = "reminder:scan:lock"

func main() {
	config.LoadDotEnv()
	cfg := config.Load()
	rlCfg := config.LoadRateLimitConfig()
	cacheCfg := config.LoadCacheConfig()
	remCfg := config.LoadReminderConfig()
	brokerCfg := config.LoadBrokerConfig()

	logger := log.New("ticket-booking")
	logger.SetLevel(parseLevel(cfg.LogLevel))
	logger.SetHeader("${time_rfc3339} ${level} ${prefix}")

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer db.Close()
	if cfg.DBMigrate {
		applied, err := database.Migrate(context.Background(), db)
		if err != nil {
			logger.Fatalf("migrate: %v", err)
		}
		if len(applied) > 0 {
			logger.Infof("migrations applied: %s", strings.Join(applied, ", "))
		}
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warnf("redis unavailable: rate limiting is per process, response cache and scan lease are off")
	} else {
		defer rdb.Close()
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	events := repository.NewEventRepo(db)
	seats := repository.NewSeatRepo(db)
	tickets := repository.NewTicketRepo(db)
	txm := repository.NewTxManager(db)

	publisher := service.NewAMQPPublisher(brokerCfg.URL, brokerCfg.BookingQueue, logger)
	defer publisher.Close()

	clock := service.SystemClock()
	var sender service.Sender = service.LogSender{Log: logger}
	if brokerCfg.PushEnabled {
		sender = service.NewQueueSender(publisher, brokerCfg.PushQueue, clock)
	}

	eventSvc := service.NewEventService(txm, events, seats, logger)
	availability := service.NewAvailabilityIndex(events, seats, tickets, logger)
	booking := service.NewBookingCoordinator(txm, events, seats, tickets, users, sender, clock, logger,
		service.WithInstantReminderHorizon(remCfg.InstantHorizon),
		service.WithPublisher(publisher),
	)

	var purge func(ctx context.Context) error
	if rdb != nil && cacheCfg.Enabled {
		purge = func(ctx context.Context) error {
			_, err := middleware.PurgeCache(ctx, rdb, cacheCfg.Prefix)
			return err
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Logger = logger
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			if v.Error != nil {
				logger.Errorf("%s %s -> %d (%s): %v", v.Method, v.URI, v.Status, v.Latency, v.Error)
				return nil
			}
			logger.Infof("%s %s -> %d (%s)", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))
	e.Use(middleware.NewTokenBucket(rlCfg, rdb))

	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), cfg.JWTSecret)
	router.RegisterPublic(e, handler.NewPublicHandler(eventSvc, availability), middleware.NewRedisCache(cacheCfg, rdb))
	router.RegisterBooking(e, handler.NewBookingHandler(booking, tickets), cfg.JWTSecret)
	router.RegisterAdmin(e, handler.NewAdminHandler(eventSvc, users, cfg.BcryptCost, purge), cfg.JWTSecret)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var workers sync.WaitGroup
	if remCfg.Enabled {
		scanner := service.NewReminderScanner(tickets, sender, clock, logger, reminderOptions(remCfg, rdb)...)
		workers.Add(1)
		go func() {
			defer workers.Done()
			scanner.Run(ctx)
		}()
	}
	if brokerCfg.ConsumerEnabled {
		consumer := &queue.BookingConsumer{
			URL:     brokerCfg.URL,
			Queue:   brokerCfg.BookingQueue,
			LogPath: brokerCfg.BookingLogPath,
			Log:     logger,
		}
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("booking consumer stopped: %v", err)
			}
		}()
	}

	addr := ":" + cfg.Port
	go func() {
		logger.Infof("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
	workers.Wait()
}

func reminderOptions(c config.ReminderConfig, rdb *redis.Client) []service.ReminderOption {
	opts := []service.ReminderOption{
		service.WithScanInterval(c.Interval),
		service.WithReminderWindow(c.WindowStart, c.WindowEnd),
	}
	if rdb != nil {
		opts = append(opts, service.WithScanLock(service.NewRedisScanLock(rdb, scanLockKey, c.LockTTL)))
	}
	return opts
}

func parseLevel(s string) log.Lvl {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return log.DEBUG
	case "WARN":
		return log.WARN
	case "ERROR":
		return log.ERROR
	case "OFF":
		return log.OFF
	}
	return log.INFO
}
