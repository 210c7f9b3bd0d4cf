package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auction-settlement/internal/api/handlers"
	"auction-settlement/internal/api/middleware"
	"auction-settlement/internal/config"
	"auction-settlement/internal/events"
	"auction-settlement/internal/infrastructure/redis"
	"auction-settlement/internal/infrastructure/websocket"
	"auction-settlement/internal/services"
	"auction-settlement/pkg/logger"

	redisClient "github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/spf13/pflag"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("notification-gateway", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to a YAML config file")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logger.New()
		bootLog.Error("Failed to load config", "error", err)
		bootLog.Sync()
		return 1
	}

	log := logger.NewWithLevel(cfg.Log.Level)
	defer log.Sync()

	// Initialize Redis
	rdb := redisClient.NewClient(&redisClient.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		return 1
	}
	log.Info("Connected to Redis", "address", cfg.Redis.Address)

	codec, err := events.NewCodec(cfg.Bus.Codec)
	if err != nil {
		log.Error("Failed to initialize codec", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gateway := services.NewGateway(
		ctx,
		redis.NewRedisEventSubscriber(rdb, cfg.Bus.ReconnectBaseWait, cfg.Bus.ReconnectMaxWait, log),
		redis.NewEventPublisher(rdb),
		websocket.NewConnectionManager(log),
		events.NewDecoder(codec),
		events.NewEncoder(codec),
		cfg.Bus.NotificationPrefix,
		cfg.Bus.SettlementChannel,
		log,
	)
	defer gateway.Wait()

	router := mux.NewRouter()
	router.Use(middleware.CORS)
	router.Use(middleware.RequestLogging(log))
	handlers.NewWebSocketHandlers(gateway, log).Register(router)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Starting notification gateway", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	code := 0
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		log.Error("Server failed", "error", err)
		code = 1
		stop()
	}
	log.Info("Shutting down notification gateway...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Notification gateway stopped")
	return code
}
