package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"

	"chatroom-service/internal/auth"
	"chatroom-service/internal/config"
	"chatroom-service/internal/db"
	"chatroom-service/internal/handlers"
	"chatroom-service/internal/livequery"
	"chatroom-service/internal/middleware"
	"chatroom-service/internal/observability"
	"chatroom-service/internal/rabbitmq"
	"chatroom-service/internal/repositories"
	"chatroom-service/internal/roomsync"
	"chatroom-service/internal/telemetry"
	"chatroom-service/internal/ws"
)

const serviceName = "chatroom-service"

func main() {
	if err := run(); err != nil {
		slog.Error("chatroom-service stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})).
		With("service", serviceName, "env", cfg.Environment)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, serviceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("tracer shutdown", "error", err)
		}
	}()

	database, err := db.Connect(ctx, cfg.DatabaseDSN, log)
	if err != nil {
		return err
	}
	defer database.Close()

	listener, err := livequery.Listen(cfg.DatabaseDSN, cfg.ListenerMinReconnect, cfg.ListenerMaxReconnect, log)
	if err != nil {
		return err
	}
	defer listener.Close()

	feed := livequery.NewFeed(log)
	go func() {
		if err := feed.Run(ctx, listener.Notify); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("change feed stopped", "error", err)
		}
	}()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	log.Info("event publisher ready", "mode", rabbitmq.PublisherMode(publisher), "noop_reason", rabbitmq.PublisherNoopReason(publisher))
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, serviceName, cfg.Environment, log)

	roomRepo := repositories.NewRoomRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	store := livequery.NewStore(roomRepo, messageRepo, feed, publisher, log)

	verifier := auth.NewVerifier(cfg.JWTSecret)
	hub := ws.NewHub()

	roomHandler := handlers.NewRoomHandler(roomRepo, messageRepo, store, audit)
	roomWS := ws.NewRoomHandler(hub, verifier, store, store, log,
		roomsync.WithScrollDelay(cfg.ScrollDebounce),
		roomsync.WithSendTimeout(cfg.SendTimeout),
		roomsync.WithMetrics(observability.EngineMetrics{}),
		roomsync.WithTracer(otel.Tracer(serviceName+"/roomsync")),
	)

	if cfg.Environment != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "visits": hub.Len(), "watchers": feed.Watchers()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutes)

	authMiddleware := middleware.AuthMiddleware(verifier)
	rooms := router.Group("/rooms", authMiddleware)
	rooms.POST("", roomHandler.CreateRoom)
	rooms.GET("/:room_id", roomHandler.GetRoom)
	rooms.POST("/:room_id/invitees", roomHandler.AddInvitee)
	rooms.DELETE("/:room_id", roomHandler.DeleteRoom)
	rooms.GET("/:room_id/messages", roomHandler.ListRoomMessages)

	router.GET("/ws/rooms/:room_id", roomWS.Handle)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	// hijacked websocket connections are not drained by Shutdown
	hub.CloseAll()
	return err
}
