package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	syncengine "github.com/eventualhq/syncengine"
	"github.com/eventualhq/syncengine/pkg/dispatch"
	"github.com/eventualhq/syncengine/pkg/transport"
)

func main() {
	var (
		transportURL = flag.String("transport", "", "realtime websocket endpoint, e.g. wss://host/realtime")
		pollURL      = flag.String("poll", "", "poll endpoint base URL, e.g. https://host/api/sync")
		redisAddr    = flag.String("redis", "", "redis address for the durable tier, empty for memory-only")
		mgmtAddr     = flag.String("mgmt", "127.0.0.1:8484", "management HTTP listen address")
		channels     = flag.String("channels", "events,connections", "comma-separated channels to subscribe")
	)

	flag.Parse()

	logger := log.New(os.Stderr, "syncd ", log.LstdFlags)

	cfg := syncengine.NewConfig()
	cfg.TransportURL = *transportURL
	cfg.PollBaseURL = *pollURL
	cfg.ManagementAddr = *mgmtAddr
	cfg.ClientIdentity = fmt.Sprintf("syncd-%d", os.Getpid())
	cfg.Logger = logger

	if *redisAddr != "" {
		cfg.RedisClient = redis.NewClient(&redis.Options{Addr: *redisAddr})
	}

	engine, err := syncengine.New(cfg)
	if err != nil {
		logger.Fatalf("assembling engine: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = engine.Start(ctx)
	if err != nil {
		logger.Fatalf("starting engine: %v", err)
	}

	engine.On(dispatch.EventConnectionStateChanged, func(payload any) {
		if state, ok := payload.(transport.State); ok {
			logger.Printf("connection state: %s", state)
		}
	})

	for _, channel := range splitChannels(*channels) {
		channel := channel
		engine.Subscribe(channel, func(update transport.UpdatePayload) {
			logger.Printf("update on %s: %d bytes at %s", channel, len(update.Items), update.UpdatedAt.Format(time.RFC3339))
		})
	}

	logger.Printf("running, management on %s", *mgmtAddr)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = engine.Stop(shutdownCtx)
	if err != nil {
		logger.Printf("shutdown: %v", err)
	}

	stats := engine.GetStats()
	for tier, ts := range stats.Tiers {
		fmt.Printf("%s: %d hits, %d misses, %d writes\n", tier, ts.Hits, ts.Misses, ts.Writes)
	}

	fmt.Printf("network misses: %d, promotions: %d, poll cycles: %d\n",
		stats.NetworkMisses, stats.Promotions, stats.PollCycles)
}

func splitChannels(raw string) []string {
	var out []string

	for _, channel := range strings.Split(raw, ",") {
		channel = strings.TrimSpace(channel)
		if channel != "" {
			out = append(out, channel)
		}
	}

	return out
}
