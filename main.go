package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coinrush/config"
	"coinrush/handlers"
	"coinrush/logger"
	"coinrush/middleware"
	"coinrush/routes"
	"coinrush/services"
	"coinrush/store"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.Load()
	logger.Setup(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := config.InitRedis(cfg)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	docs := store.NewRedisStore(redisClient, cfg.RoomTTL)

	// The archive is optional: without postgres the gateway still serves rooms.
	var archive *services.ArchiveService
	if cfg.ArchiveEnabled {
		db, err := config.InitDB(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("round archive disabled")
		} else {
			archive = services.NewArchiveService(db)
			if err := archive.Migrate(); err != nil {
				log.Fatal().Err(err).Msg("failed to migrate database")
			}
		}
	}

	sessions := services.NewSessionService(cfg.JWTSecret)
	gateway := services.NewGatewayService(docs, archive)

	hub := services.NewHub(gateway)
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	sessionHandler := handlers.NewSessionHandler(sessions)
	docHandler := handlers.NewDocHandler(gateway, hub, upgrader)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(cfg.AllowedOrigins))

	routes.SetupRoutes(router, sessionHandler, docHandler, sessions)

	srv := &http.Server{
		Addr:    net.JoinHostPort(cfg.BindAddress, cfg.Port),
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("gateway starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := redisClient.Close(); err != nil {
		log.Warn().Err(err).Msg("closing redis")
	}
}
