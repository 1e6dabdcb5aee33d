// Command closeall closes every group that is not closed yet and sends the
// closing notifications. It is meant to run from an external scheduler after
// the season ends.
//
// Exit codes: 0 = success, 1 = error.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Gopher0727/SecretSanta/config"
	"github.com/Gopher0727/SecretSanta/internal/draw"
	"github.com/Gopher0727/SecretSanta/internal/notify"
	"github.com/Gopher0727/SecretSanta/internal/services"
	"github.com/Gopher0727/SecretSanta/internal/storage"
	"github.com/Gopher0727/SecretSanta/internal/ws"
	logger "github.com/Gopher0727/SecretSanta/middleware/log"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the config file")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall deadline of the sweep")
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

	ctx, cancel := context.WithTimeout(logger.WithTraceID(context.Background(), ""), *timeout)
	defer cancel()

	res, err := sweep(ctx, cfg, appLog)
	if err != nil {
		appLog.ErrorContext(ctx, "close-all failed", zap.Error(err))
		os.Exit(1)
	}

	appLog.InfoContext(ctx, "close-all completed",
		zap.Int("closed", len(res.Groups)),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
		zap.String("delivery", res.Delivery.Summary()),
	)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(res)
	if res.Failed > 0 {
		os.Exit(1)
	}
}

func sweep(ctx context.Context, cfg *config.Config, appLog *logger.Logger) (*services.SweepResult, error) {
	db, err := storage.InitDatabase(&cfg.Database)
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	var sink notify.Notifier
	switch cfg.Notify.Sink {
	case "kafka":
		kafkaSink, err := notify.DialKafkaNotifier(&cfg.Kafka)
		if err != nil {
			return nil, err
		}
		defer kafkaSink.Close()
		sink = kafkaSink
	default:
		// Without a long-lived process there is no local bridge; closings
		// reach bridges only through the Redis channel of running servers.
		var rdb redis.UniversalClient
		if cfg.Redis.Enabled {
			client, err := storage.InitRedis(&cfg.Redis)
			if err != nil {
				return nil, err
			}
			defer client.Close()
			rdb = client
		}
		sink = ws.NewHub(nil, rdb, appLog)
	}

	broadcaster := notify.NewBroadcaster(sink, notify.Options{
		Timeout:     cfg.Notify.Timeout,
		Retries:     cfg.Notify.Retries,
		Backoff:     cfg.Notify.Backoff,
		Concurrency: cfg.Notify.Concurrency,
	}, appLog)
	groups := services.NewGroupService(services.NewStores(db), draw.NewRandomEngine(), broadcaster, appLog)
	return groups.CloseAll(ctx)
}
