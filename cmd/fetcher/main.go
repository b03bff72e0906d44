package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"pressroom/internal/adapter/mailsource"
	"pressroom/internal/ingest"
	"pressroom/internal/repository"
	"pressroom/pkg/config"
	"pressroom/pkg/db"
	"pressroom/pkg/logger"
	"pressroom/pkg/outbox"
)

const defaultSchedule = "@every 5m"

// initialLookback bounds the first fetch after a cold start; dedup makes
// re-fetching old messages harmless.
const initialLookback = 7 * 24 * time.Hour

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

	emailRepo := repository.NewEmailRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	ingestSvc := ingest.NewService(emailRepo, outboxRepo, log)
	source := mailsource.NewClient(cfg.MailSource)

	schedule := cfg.Fetcher.Schedule
	if schedule == "" {
		schedule = defaultSchedule
	}

	var mu sync.Mutex
	lastFetch := time.Now().Add(-initialLookback)

	c := cron.New()
	_, err = c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		mu.Lock()
		since := lastFetch
		mu.Unlock()
		started := time.Now()

		messages, err := source.FetchSince(ctx, since)
		if err != nil {
			log.Error("Fetch from mail source failed", zap.Error(err))
			return
		}

		var created, duplicates, failed int
		for _, m := range messages {
			_, isNew, err := ingestSvc.Ingest(ctx, ingest.InboundEmail{
				Sender:      m.Sender,
				Subject:     m.Subject,
				Body:        m.Body,
				ReceivedAt:  m.ReceivedAt,
				AutoProcess: cfg.Fetcher.AutoProcess,
			})
			if err != nil {
				failed++
				log.Error("Failed to ingest message", zap.String("sender", m.Sender), zap.Error(err))
				continue
			}
			if isNew {
				created++
			} else {
				duplicates++
			}
		}

		// Only advance the watermark when the whole batch landed, so a
		// transient failure gets retried on the next run.
		if failed == 0 {
			mu.Lock()
			lastFetch = started
			mu.Unlock()
		}

		log.Info("Fetch cycle finished",
			zap.Int("fetched", len(messages)),
			zap.Int("created", created),
			zap.Int("duplicates", duplicates),
			zap.Int("failed", failed),
		)
	})
	if err != nil {
		log.Fatal("Invalid fetcher schedule", zap.String("schedule", schedule), zap.Error(err))
	}

	log.Info("Fetcher started", zap.String("schedule", schedule))
	c.Start()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	<-c.Stop().Done()
	log.Info("Fetcher stopped")
}
