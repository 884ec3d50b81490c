package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/utsavbhardwaj/secretroom/internal/cleanup"
	"github.com/utsavbhardwaj/secretroom/internal/config"
	"github.com/utsavbhardwaj/secretroom/internal/database"
	"github.com/utsavbhardwaj/secretroom/internal/handlers"
	"github.com/utsavbhardwaj/secretroom/internal/middleware"
	"github.com/utsavbhardwaj/secretroom/internal/services"
	"github.com/utsavbhardwaj/secretroom/internal/ws"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	setupLogger()
	cfg := config.Load()

	db := database.Connect(cfg)
	database.AutoMigrate(db)
	redisClient := database.ConnectRedis(cfg)

	userService := services.NewUserService(db)
	roomService := services.NewRoomService(db)

	hub := ws.NewHub(roomService)
	sweeper := cleanup.NewSweeper(
		roomService, userService, hub,
		time.Duration(cfg.CleanupIntervalMin)*time.Minute,
		time.Duration(cfg.MessageRetentionDays)*24*time.Hour,
		time.Duration(cfg.UserRetentionDays)*24*time.Hour,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.RunHeartbeat(ctx)
	go sweeper.Run(ctx)

	roomHandler := handlers.NewRoomHandler(roomService, userService, hub)
	messageHandler := handlers.NewMessageHandler(roomService, hub)
	wsHandler := handlers.NewWSHandler(hub)

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Session-ID"},
		AllowCredentials: true,
	}))

	r.GET("/ws", wsHandler.HandleWebSocket)

	api := r.Group("/api")
	api.Use(middleware.RateLimit(redisClient, 20))
	{
		api.GET("/health", roomHandler.Health)
		api.GET("/stats", roomHandler.Stats)

		rooms := api.Group("/rooms")
		{
			rooms.POST("", roomHandler.CreateRoom)
			rooms.GET("/:code", roomHandler.GetRoom)
			rooms.POST("/:code/join", roomHandler.JoinRoom)
			rooms.POST("/:code/leave", roomHandler.LeaveRoom)
			rooms.GET("/:code/members", roomHandler.GetMembers)
			rooms.POST("/:code/members/:targetSessionId/kick", roomHandler.KickMember)
			rooms.POST("/:code/extend", roomHandler.ExtendRoom)
			rooms.DELETE("/:code/close", roomHandler.CloseRoom)
			rooms.GET("/:code/messages", middleware.RequireSession(), messageHandler.GetMessages)
			rooms.POST("/:code/messages", messageHandler.PostMessage)
		}
	}

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	go func() {
		logrus.Infof("server starting on :%s", cfg.ServerPort)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("server shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("shutdown error: %v", err)
	}
}

func setupLogger() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "warn":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}
