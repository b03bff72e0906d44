package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"pressroom/internal/adapter/ai"
	"pressroom/internal/adapter/cms"
	"pressroom/internal/handler"
	"pressroom/internal/httpserver"
	"pressroom/internal/ingest"
	"pressroom/internal/repository"
	authsvc "pressroom/internal/service/auth"
	"pressroom/internal/workflow"
	"pressroom/pkg/config"
	"pressroom/pkg/db"
	"pressroom/pkg/logger"
	"pressroom/pkg/mq"
	"pressroom/pkg/outbox"
)

func main() {
	log := logger.New()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	version, err := repository.RunMigrations(cfg.DB.DSN())
	if err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}
	log.Info("Database schema up to date", zap.Uint("version", version))

	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to connect to rabbitmq", zap.Error(err))
	}
	defer publisher.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outboxRepo := outbox.NewRepository(pool)
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log)
	go dispatcher.Start(ctx)

	emailRepo := repository.NewEmailRepository(pool)
	transitionRepo := repository.NewTransitionRepository(pool)
	userRepo := repository.NewUserRepository(pool)

	aiClient := ai.NewClient(cfg.AI, log)
	cmsClient := cms.NewClient(cfg.WordPress, log)

	engine := workflow.NewEngine(emailRepo, transitionRepo, aiClient, cmsClient, log)
	ingestSvc := ingest.NewService(emailRepo, outboxRepo, log)
	authService := authsvc.NewService(userRepo, cfg.JWT.Secret)

	router := httpserver.NewRouter(httpserver.Deps{
		Emails:    handler.NewEmailHandler(engine, ingestSvc, log),
		Auth:      handler.NewAuthHandler(authService, log),
		JWTSecret: cfg.JWT.Secret,
		Pool:      pool,
	})

	log.Info("Server listening", zap.String("port", cfg.Server.Port))
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		log.Fatal("Server exited", zap.Error(err))
	}
}
