package http

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appsvc "pcbrecon/internal/app"
	"pcbrecon/internal/bootstrap"
	rabbitmqClient "pcbrecon/internal/platform/rabbitmq"
	redisClient "pcbrecon/internal/platform/redis"
	"pcbrecon/internal/repository"
	"pcbrecon/internal/transport/http/handler"
	"pcbrecon/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := middleware.NewMetrics(registry)

	router.Use(gin.Recovery(), middleware.RequestID(), metrics.Handler(), cors.New(corsConfig(app.Config.HTTP.CORSOrigins)))

	healthHandler := handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt, readinessChecks(app))
	router.GET("/health", healthHandler.Live)
	router.GET("/ready", healthHandler.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	projectRepo := repository.NewProjectRepository(app.DB)
	messageRepo := repository.NewChatMessageRepository(app.DB)

	// typed nil pointers must not leak into the service interfaces
	var historyCache appsvc.HistoryCache
	if app.HistoryCache != nil {
		historyCache = app.HistoryCache
	}
	var analysisCache appsvc.AnalysisCache
	if app.AnalysisCache != nil {
		analysisCache = app.AnalysisCache
	}
	publisher := app.Publisher
	if publisher == nil {
		publisher = appsvc.NewDirectPublisher(messageRepo)
	}

	llmCfg := app.Config.LLM
	projectService := appsvc.NewProjectService(projectRepo, messageRepo, analysisCache, historyCache, app.LLM, appsvc.Models{
		Analysis: llmCfg.AnalysisModel,
		Chat:     llmCfg.ChatModel,
		Text:     llmCfg.TextModel,
	})
	chatService := appsvc.NewChatService(projectRepo, messageRepo, publisher, historyCache, app.LLM, llmCfg.ChatModel, llmCfg.MaxContextMessage)

	projectHandler := handler.NewProjectHandler(projectService, app.Config.HTTP.MaxImageBytes)
	chatHandler := handler.NewChatHandler(chatService)

	v1 := router.Group("/api/v1")
	projects := v1.Group("/projects")
	projects.POST("", projectHandler.Create)
	projects.GET("", projectHandler.List)
	projects.GET("/:id", projectHandler.Get)
	projects.DELETE("/:id", projectHandler.Delete)
	projects.POST("/:id/chat", chatHandler.SendMessage)
	projects.POST("/:id/chat/stream", chatHandler.StreamMessage)
	projects.GET("/:id/chat", chatHandler.ListMessages)

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderRequestID},
		ExposeHeaders:    []string{middleware.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

func readinessChecks(app *bootstrap.App) map[string]handler.Check {
	checks := map[string]handler.Check{
		"database": func(ctx context.Context) error {
			sqlDB, err := app.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if app.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx, app.Redis)
		}
	}
	if app.MQConn != nil {
		checks["rabbitmq"] = func(context.Context) error {
			return rabbitmqClient.Check(app.MQConn)
		}
	}
	return checks
}
