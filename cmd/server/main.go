package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Gopher0727/SecretSanta/config"
	"github.com/Gopher0727/SecretSanta/internal/bot"
	"github.com/Gopher0727/SecretSanta/internal/consumer"
	"github.com/Gopher0727/SecretSanta/internal/draw"
	"github.com/Gopher0727/SecretSanta/internal/handlers"
	"github.com/Gopher0727/SecretSanta/internal/notify"
	"github.com/Gopher0727/SecretSanta/internal/routers"
	"github.com/Gopher0727/SecretSanta/internal/services"
	"github.com/Gopher0727/SecretSanta/internal/session"
	"github.com/Gopher0727/SecretSanta/internal/storage"
	"github.com/Gopher0727/SecretSanta/internal/utils"
	"github.com/Gopher0727/SecretSanta/internal/ws"
	"github.com/Gopher0727/SecretSanta/middleware/jwt"
	logger "github.com/Gopher0727/SecretSanta/middleware/log"
	"github.com/Gopher0727/SecretSanta/utils/ratelimit"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "./config.toml", "path to the config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	appLog, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer appLog.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, appLog); err != nil {
		appLog.Fatal("server stopped with error", zap.Error(err))
	}
	appLog.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, appLog *logger.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	db, err := storage.InitDatabase(&cfg.Database)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	// Left nil when disabled; a typed nil client would look configured.
	var rdb redis.UniversalClient
	if cfg.Redis.Enabled {
		client, err := storage.InitRedis(&cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		rdb = client
	}

	pool := utils.NewKeyedPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, appLog)
	pool.Start()
	defer pool.Stop()

	// The hub hands inbound websocket events to the router, which is built
	// after the services that need the hub as their sink.
	var router *bot.Router
	hub := ws.NewHub(ws.HandlerFunc(func(ctx context.Context, ev bot.Event) ([]notify.Message, error) {
		return router.Handle(ctx, ev)
	}), rdb, appLog)

	var sink notify.Notifier = hub
	if cfg.Notify.Sink == "kafka" {
		kafkaSink, err := notify.DialKafkaNotifier(&cfg.Kafka)
		if err != nil {
			return err
		}
		defer kafkaSink.Close()
		sink = kafkaSink
	}
	broadcaster := notify.NewBroadcaster(sink, notify.Options{
		Timeout:     cfg.Notify.Timeout,
		Retries:     cfg.Notify.Retries,
		Backoff:     cfg.Notify.Backoff,
		Concurrency: cfg.Notify.Concurrency,
	}, appLog)

	stores := services.NewStores(db)
	identity := services.NewIdentityService(stores.Users, appLog)
	groups := services.NewGroupService(stores, draw.NewRandomEngine(), broadcaster, appLog)
	gifts := services.NewGiftService(stores, appLog)

	var store session.Store
	switch cfg.Session.Store {
	case "redis":
		store = session.NewRedisStore(rdb, cfg.Session.TTL)
	default:
		mem := session.NewMemoryStore(cfg.Session.TTL)
		go mem.Janitor(ctx, time.Minute)
		store = mem
	}
	sessions := session.NewManager(store, groups, gifts, appLog)
	router = bot.NewRouter(identity, groups, sessions, pool, appLog)

	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(ctx, nil)
	}()

	if cfg.Kafka.Enabled {
		consumed, err := consumer.Run(ctx, &cfg.Kafka, consumer.NewEventConsumer(router, broadcaster, appLog), appLog)
		if err != nil {
			return err
		}
		defer func() { <-consumed }()
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewLimiter(rdb, appLog, cfg.RateLimit.FailOpen)
	}

	tokens := jwt.NewTokenManager(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	clients := make([]jwt.Client, 0, len(cfg.Auth.Clients))
	for _, c := range cfg.Auth.Clients {
		clients = append(clients, jwt.Client{Name: c.Name, Role: c.Role, SecretHash: c.SecretHash})
	}

	gin.SetMode(cfg.Server.Mode)
	engine := gin.New()
	routers.SetupRoutes(engine, routers.Deps{
		Tokens:        tokens,
		Auth:          handlers.NewAuthHandler(jwt.NewClientRegistry(clients), tokens, appLog),
		Events:        handlers.NewEventHandler(router, limiter, ratelimit.RuleFor(ratelimit.ScopeEvents, &cfg.RateLimit)),
		Admin:         handlers.NewAdminHandler(groups),
		WS:            handlers.NewWSHandler(hub),
		Limiter:       limiter,
		TokenRule:     ratelimit.RuleFor(ratelimit.ScopeToken, &cfg.RateLimit),
		MaxConcurrent: cfg.Server.MaxConcurrent,
		Logger:        appLog,
	})

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Server.Port),
		Handler: engine,
	}
	serveErr := make(chan error, 1)
	go func() {
		appLog.Info("starting server", zap.Int("port", cfg.Server.Port), zap.String("sink", cfg.Notify.Sink))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			cancel()
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Warn("graceful shutdown failed", zap.Error(err))
	}
	<-hubDone
	return nil
}
