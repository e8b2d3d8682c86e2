package main

import (
	"context"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/licode-labs/facilitator/internal/authz"
	"github.com/licode-labs/facilitator/internal/chain"
	"github.com/licode-labs/facilitator/internal/config"
	"github.com/licode-labs/facilitator/internal/distribute"
	"github.com/licode-labs/facilitator/internal/facilitator"
	"github.com/licode-labs/facilitator/internal/metrics"
	"github.com/licode-labs/facilitator/internal/replay"
	"github.com/licode-labs/facilitator/internal/server"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}

	metrics.Register()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	client, err := chain.Dial(ctx, cfg.RPCURL, cfg.DistributorKey, cfg.ChainID)
	cancel()
	if err != nil {
		log.Fatal("failed to connect to rpc", zap.Error(err))
	}
	log.Info("distributor signer", zap.String("address", client.SignerAddress()))

	var store replay.Store
	var pinger server.Pinger
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		redisStore := replay.NewRedisStore(redis.NewClient(opts))
		store = redisStore
		pinger = redisStore
		log.Info("replay protection backed by redis")
	} else {
		store = replay.NewMemoryStore()
		log.Warn("REDIS_URL not set; replay protection is in-process only and not safe across instances")
	}

	verifier := authz.NewVerifier(authz.Domain{
		Name:              cfg.StablecoinName,
		Version:           cfg.StablecoinVersion,
		ChainID:           big.NewInt(cfg.ChainID),
		VerifyingContract: cfg.StablecoinAddress,
	}, cfg.MintUnit, cfg.AuthWindow, cfg.ClockDrift)

	executor := distribute.NewExecutor(client, cfg.TokenAddress, log)
	svc := facilitator.New(cfg, client, store, verifier, executor, log)

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.New(cfg, svc, client, pinger, client.SignerAddress(), log).Router(),
	}

	go func() {
		log.Info("facilitator listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", zap.Error(err))
	}
}
