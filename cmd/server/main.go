// Package main is the application entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"neuroscreen-go/internal/config"
	"neuroscreen-go/internal/dataset"
	"neuroscreen-go/internal/handler"
	"neuroscreen-go/internal/middleware"
	"neuroscreen-go/internal/model"
	"neuroscreen-go/internal/pipeline"
	"neuroscreen-go/internal/repository"
	"neuroscreen-go/internal/service"
	"neuroscreen-go/pkg/database"
	"neuroscreen-go/pkg/kafka"
	"neuroscreen-go/pkg/log"
	"neuroscreen-go/pkg/storage"
	"neuroscreen-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. Configuration and logging
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("logger initialized successfully")

	// 2. Infrastructure clients
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	kafka.InitProducer(cfg.Kafka)

	if err := database.DB.AutoMigrate(
		&model.User{},
		&model.ChunkedUpload{},
		&model.UploadChunk{},
		&model.ReferenceProfile{},
		&model.ComputedThreshold{},
	); err != nil {
		log.Fatal("failed to migrate database schema", err)
	}

	// 3. Repositories
	userRepo := repository.NewUserRepository(database.DB)
	uploadRepo := repository.NewUploadRepository(database.DB, database.RDB)
	profileRepo := repository.NewProfileRepository(database.DB)

	// 4. Services (dependency injection)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	objectStore := storage.NewObjectStore(cfg.MinIO.BucketName)
	registry := dataset.NewRegistry(cfg.Datasets.Metrics)

	userService := service.NewUserService(userRepo, jwtManager)
	uploadService := service.NewUploadService(uploadRepo, objectStore, kafka.ProduceDatasetTask)

	// 5. Processing pipeline, shared by the HTTP endpoint and the Kafka
	// consumer.
	processor := pipeline.NewProcessor(uploadRepo, profileRepo, objectStore, registry, cfg.Upload.ProfileBatchSize)
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 6. Router
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	apiV1 := r.Group("/api/v1")
	{
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", handler.NewAuthHandler(userService).RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			users.POST("/register", handler.NewUserHandler(userService).Register)
			users.POST("/login", handler.NewUserHandler(userService).Login)

			authed := users.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authed.GET("/me", handler.NewUserHandler(userService).GetProfile)
			}
		}

		upload := apiV1.Group("/upload")
		upload.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			uploadHandler := handler.NewUploadHandler(uploadService)
			upload.POST("/init", uploadHandler.InitUpload)
			upload.POST("/chunk", uploadHandler.UploadChunk)
			upload.GET("/status", uploadHandler.GetStatus)
			upload.GET("/retrieve", uploadHandler.Retrieve)
			upload.DELETE("/:uploadId", uploadHandler.DeleteUpload)
		}

		datasets := apiV1.Group("/datasets")
		datasets.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			datasetHandler := handler.NewDatasetHandler(processor, profileRepo, registry)
			datasets.POST("/process", datasetHandler.Process)
			datasets.GET("/types", datasetHandler.ListTypes)
			datasets.GET("/thresholds", datasetHandler.GetThresholds)
		}
	}

	// 7. HTTP server with graceful shutdown
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutdown signal received, stopping server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP server shutdown failed: %v", err)
	}

	log.Info("server stopped gracefully")
}
