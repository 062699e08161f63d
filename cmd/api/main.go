package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"startuphub-comms/internal/auth"
	"startuphub-comms/internal/config"
	"startuphub-comms/internal/httpapi"
	"startuphub-comms/internal/hub"
	"startuphub-comms/internal/presence"
	"startuphub-comms/internal/service"
	"startuphub-comms/internal/store"
	"startuphub-comms/internal/ws"
	"startuphub-comms/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.Server.Environment)
	defer log.Sync()

	if cfg.Server.Environment == logger.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()

	st := store.NewPostgres(pool, store.Limits{
		MaxRoomParticipants: cfg.Limits.MaxRoomParticipants,
		MaxCallParticipants: cfg.Limits.MaxCallParticipants,
	})

	h := hub.New(log, hub.Options{
		QueueDepth:   cfg.Limits.SubscriberQueueDepth,
		PublishGrace: cfg.Limits.PublishGrace,
	})

	if cfg.Redis.BridgeEnabled {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("redis connection failed", zap.Error(err))
		}
		defer rdb.Close()

		bridge := hub.NewBridge(rdb, h, log)
		go func() {
			if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("hub bridge stopped", zap.Error(err))
			}
		}()
		defer bridge.Stop()
		log.Info("hub bridge enabled", zap.String("redis", cfg.Redis.Addr))
	}

	tracker := presence.NewTracker(cfg.Limits.PresenceWindow)
	gateway := auth.NewJWTGateway(cfg.Auth.JWTSecret)

	chatSvc := service.NewChatService(st, h, tracker, log, service.ChatOptions{
		StoreTimeout:    cfg.Limits.StoreTimeout,
		MaxContentBytes: cfg.Limits.MaxContentBytes,
	})
	callSvc := service.NewCallService(st, h, tracker, log, cfg.Limits.StoreTimeout)

	sockets := ws.NewServer(chatSvc, callSvc, h, tracker, gateway, log, ws.Limits{
		WriteTimeout:       cfg.Limits.WriteTimeout,
		MaxFrameBytes:      cfg.Limits.MaxFrameBytes,
		RateBurst:          cfg.Limits.FrameRateBurst,
		RateSustained:      cfg.Limits.FrameRateSustained,
		MaxSessionsPerUser: cfg.Limits.MaxSessionsPerUser,
	})

	api := httpapi.New(chatSvc, callSvc, log)
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: api.Router(gateway, sockets),
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown incomplete", zap.Error(err))
	}
}
