package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/healtheasy/booking-engine/internal/config"
	"github.com/healtheasy/booking-engine/internal/store"
	"github.com/healtheasy/booking-engine/internal/store/memory"
	"github.com/healtheasy/booking-engine/internal/store/postgres"
	"github.com/healtheasy/booking-engine/pkg/logger"
	"github.com/healtheasy/booking-engine/pkg/messaging/redis"
	"github.com/healtheasy/booking-engine/pkg/metrics"
	"github.com/healtheasy/booking-engine/pkg/worker"
)

func main() {
	log := logger.NewLogger(nil)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err, "failed to load config")
	}

	st, err := openStore(cfg, log)
	if err != nil {
		log.Fatal(err, "failed to open store")
	}
	defer st.Close()

	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, nil)
	if err != nil {
		log.Fatal(err, "failed to create redis broker")
	}
	defer broker.Close()

	relay := worker.NewRelay(st, broker, worker.RelayConfig{
		BatchSize:     cfg.Relay.BatchSize,
		PollInterval:  cfg.Relay.PollInterval,
		RetryAttempts: cfg.Relay.RetryAttempts,
		RetryDelay:    cfg.Relay.RetryDelay,
		PublishRate:   rate.Limit(cfg.Relay.PublishRate),
		PublishBurst:  cfg.Relay.PublishBurst,
	}, log, metrics.New("healtheasy_relay", nil))

	serveHealth(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down")
		cancel()
	}()

	relay.Start(ctx)
}

func openStore(cfg *config.Config, log *logger.Logger) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.StorePostgres:
		return postgres.New(cfg.Database.DSN(), log)
	default:
		log.Warn("using in-memory store; relayed events will not survive restarts")
		return memory.New(), nil
	}
}

func serveHealth(log *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(":8081", mux); err != nil {
			log.Error(err, "health server failed")
			os.Exit(1)
		}
	}()
}
