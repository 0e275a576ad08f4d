package main // Entry point package

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/autoshop-identity/internal/config"
	"github.com/iliyamo/autoshop-identity/internal/database"
	"github.com/iliyamo/autoshop-identity/internal/handler"
	"github.com/iliyamo/autoshop-identity/internal/logging"
	"github.com/iliyamo/autoshop-identity/internal/middleware"
	"github.com/iliyamo/autoshop-identity/internal/queue"
	"github.com/iliyamo/autoshop-identity/internal/repository"
	"github.com/iliyamo/autoshop-identity/internal/router"
	"github.com/iliyamo/autoshop-identity/internal/service"
	"github.com/iliyamo/autoshop-identity/internal/token"
	"github.com/iliyamo/autoshop-identity/internal/utils"
	"github.com/iliyamo/autoshop-identity/internal/worker"
)

var version = "dev"

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log, version)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.DB.Driver == "sqlite" {
		// MySQL schema is managed out of band.
		if err := database.EnsureSchema(ctx, db, cfg.DB.Driver); err != nil {
			return err
		}
	}

	// Redis only backs rate limiting; a nil client disables it.
	var limiterStore redis.Scripter
	if rdb := config.NewRedisClient(config.LoadRedisConfig()); rdb != nil {
		defer rdb.Close()
		limiterStore = rdb
	} else {
		log.Warn("redis unreachable; rate limiting disabled")
	}

	pub := queue.NewPublisher(newTransport(cfg.Events), queue.PublisherOptions{
		QueueSize:      cfg.Events.QueueSize,
		Workers:        cfg.Events.Workers,
		PublishTimeout: cfg.Events.PublishTimeout,
	}, log)

	issuer, err := token.NewIssuer(cfg.Auth.JWTSecret, time.Now)
	if err != nil {
		return err
	}
	hasher, err := utils.NewPasswordHasher(cfg.Auth.PasswordHasher, cfg.Auth.BcryptCost)
	if err != nil {
		return err
	}
	sessions := repository.NewSessionRepo(db)
	svc, err := service.NewAuthService(repository.NewPrincipalRepo(db), sessions, issuer, hasher, pub, service.Options{
		AccessTTL:   cfg.Auth.AccessTTL,
		RefreshTTL:  cfg.Auth.RefreshTTL,
		EventsTopic: cfg.Events.Topic,
		Now:         time.Now,
	})
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(requestLogger(log))
	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(svc), svc,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), limiterStore, log))

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		worker.NewSweeper(sessions, cfg.SessionSweepInterval, log).Start(sweepCtx)
	}()

	addr := ":" + cfg.Port
	srvErr := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", addr, "env", cfg.Env, "event_bus", cfg.Events.Bus)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-srvErr:
		if err != nil {
			stopSweep()
			<-sweepDone
			_ = pub.Close(context.Background())
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	stopSweep()
	<-sweepDone
	if err := pub.Close(shutdownCtx); err != nil {
		log.Warn("event queue not drained", "error", err)
	}
	return nil
}

func newTransport(cfg config.EventsConfig) queue.Transport {
	switch cfg.Bus {
	case "kafka":
		return queue.NewKafkaTransport(cfg.KafkaBrokers)
	case "mqtt":
		return queue.NewMQTTTransport(cfg.MQTTBroker, cfg.MQTTClientID)
	case "none":
		return queue.NopTransport{}
	default:
		return queue.NewRabbitMQTransport(cfg.RabbitMQURL)
	}
}

func requestLogger(log *slog.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			log.LogAttrs(c.Request().Context(), slog.LevelInfo, "request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", v.RemoteIP),
			)
			return nil
		},
	})
}
