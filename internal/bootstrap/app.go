package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"pcbrecon/internal/ai"
	appsvc "pcbrecon/internal/app"
	"pcbrecon/internal/cache"
	"pcbrecon/internal/config"
	"pcbrecon/internal/model"
	"pcbrecon/internal/platform/database"
	rabbitmqClient "pcbrecon/internal/platform/rabbitmq"
	redisClient "pcbrecon/internal/platform/redis"
	"pcbrecon/internal/repository"
	"pcbrecon/internal/worker"
)

// App holds the process-wide resources. Redis, RabbitMQ and their
// dependants are nil when not configured.
type App struct {
	Config        *config.Config
	DB            *gorm.DB
	Redis         *redis.Client
	MQConn        *amqp.Connection
	LLM           ai.Client
	HistoryCache  *cache.HistoryCache
	AnalysisCache *cache.AnalysisCache
	Publisher     appsvc.MessagePublisher
	MessageWorker *worker.MessagePersistWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

func NewWithConfig(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg, StartedAt: time.Now()}

	db, err := database.New(ctx, cfg.Database.Driver, cfg.DSN())
	if err != nil {
		return nil, err
	}
	app.DB = db
	if err := Migrate(db); err != nil {
		_ = app.Close()
		return nil, err
	}

	llm, err := ai.New(ai.Config{
		Provider: cfg.LLM.Provider,
		BaseURL:  cfg.LLM.BaseURL,
		APIKey:   cfg.LLM.APIKey,
		Timeout:  time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.LLM = llm
	if cfg.LLM.APIKey == "" {
		log.Printf("llm api key is empty; analysis and chat calls will fail")
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	if redisCli != nil {
		app.Redis = redisCli
		app.HistoryCache = cache.NewHistoryCache(
			redisCli,
			cfg.LLM.MaxContextMessage,
			time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
			time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
		)
		app.AnalysisCache = cache.NewAnalysisCache(redisCli, time.Duration(cfg.Redis.AnalysisTTLSeconds)*time.Second)
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.MessagePersistQueue)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	if mqConn != nil {
		app.MQConn = mqConn
		app.Publisher = rabbitmqClient.NewMessagePublisher(mqConn, cfg.RabbitMQ.MessagePersistQueue)

		var history worker.HistoryInvalidator
		if app.HistoryCache != nil {
			history = app.HistoryCache
		}
		messageWorker := worker.NewMessagePersistWorker(mqConn, repository.NewChatMessageRepository(db), history, cfg.RabbitMQ.MessagePersistQueue)
		if err := messageWorker.Start(ctx); err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("start message worker failed: %w", err)
		}
		app.MessageWorker = messageWorker
	}

	return app, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.Project{}, &model.ChatMessage{}); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}
	return nil
}

func (a *App) Close() error {
	var closeErr error
	if a.MessageWorker != nil {
		a.MessageWorker.Close()
	}
	if closer, ok := a.Publisher.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
