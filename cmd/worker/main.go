package main

import (
	"time"

	"go.uber.org/zap"

	"pressroom/internal/adapter/ai"
	"pressroom/internal/adapter/cms"
	intmq "pressroom/internal/mq"
	"pressroom/internal/mqhandler"
	"pressroom/internal/repository"
	"pressroom/internal/workflow"
	"pressroom/pkg/config"
	"pressroom/pkg/db"
	"pressroom/pkg/logger"
	"pressroom/pkg/mq"
	"pressroom/pkg/redisclient"
	"pressroom/pkg/util"
)

func main() {
	log := logger.New()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	rdb := redisclient.New(cfg.Redis)
	defer rdb.Close()
	deduper := util.NewDeduper(rdb, 24*time.Hour, log)

	emailRepo := repository.NewEmailRepository(pool)
	transitionRepo := repository.NewTransitionRepository(pool)
	aiClient := ai.NewClient(cfg.AI, log)
	cmsClient := cms.NewClient(cfg.WordPress, log)
	engine := workflow.NewEngine(emailRepo, transitionRepo, aiClient, cmsClient, log)

	consumer, err := mq.NewConsumer(cfg.MQ.URL, "pressroom.auto_analyze", intmq.RoutingKeyEmailReceived, log)
	if err != nil {
		log.Fatal("Failed to start consumer", zap.Error(err))
	}
	defer consumer.Close()

	h := mqhandler.NewEmailReceivedHandler(engine, deduper, log)
	consumer.SetHandler(h.Handle)

	if err := consumer.StartConsuming(); err != nil {
		log.Fatal("Consumer exited", zap.Error(err))
	}
}
