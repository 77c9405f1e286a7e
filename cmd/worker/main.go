package main

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	mqcontract "mailminder/contracts/mq"
	"mailminder/internal/config"
	"mailminder/internal/httpserver"
	"mailminder/internal/mqhandler"
	"mailminder/internal/notifier"
	"mailminder/internal/repository"
	"mailminder/internal/service/reminder"
	pkgconfig "mailminder/pkg/config"
	"mailminder/pkg/db"
	"mailminder/pkg/logger"
	"mailminder/pkg/mq"
	"mailminder/pkg/otel"
	"mailminder/pkg/outbox"
	redisclient "mailminder/pkg/redis"
	"mailminder/pkg/util"
)

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Config load failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTel.ServiceName != "" {
		cfg.OTel.ServiceName += "-worker"
	}
	shutdownOTel, err := otel.Init(cfg.OTel, log)
	if err != nil {
		log.Warn("OpenTelemetry init failed, continuing without tracing", zap.Error(err))
	} else {
		defer shutdownOTel()
	}

	log.Info("Starting MailMinder worker...")

	// Init DB
	dbConn, err := db.NewConnection(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	// Init Redis；不可用时退化为只依赖数据库标记
	rdb, err := redisclient.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Warn("Redis unavailable, running without send guard", zap.Error(err))
	}
	if rdb != nil {
		defer rdb.Close()
	}
	lockTTL := time.Duration(cfg.Scheduler.LockSeconds) * time.Second
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}

	// Init Repositories
	outboxRepo := outbox.NewRepository(dbConn)
	metadataRepo := repository.NewMetadataRepository(dbConn, outboxRepo, log)
	historyRepo := repository.NewNotificationLogRepository(dbConn)

	sender, err := notifier.New(cfg.Notifier, log)
	if err != nil {
		log.Fatal("Notifier init failed", zap.Error(err))
	}

	scanner := reminder.NewScanner(metadataRepo, sender, log,
		reminder.WithSendGuard(util.NewDeduper(rdb, lockTTL, log)),
		reminder.WithFailureCounter(util.NewRetryCounter(rdb, 24*time.Hour)),
	)
	scheduler := reminder.NewScheduler(scanner, cfg.Scheduler.Interval(), log)

	// Init MQ
	publisher, err := mq.NewPublisher(cfg.MQ.URL, cfg.MQ.Exchange)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log)
	if cfg.Outbox.BatchSize > 0 {
		dispatcher.WithBatchSize(cfg.Outbox.BatchSize)
	}
	if cfg.Outbox.MaxRetries > 0 {
		dispatcher.WithMaxRetries(cfg.Outbox.MaxRetries)
	}
	if cfg.Outbox.IntervalSeconds > 0 {
		dispatcher.WithInterval(time.Duration(cfg.Outbox.IntervalSeconds) * time.Second)
	}

	historyHandler := mqhandler.NewReminderDeliveredHandler(historyRepo, util.NewDeduper(rdb, 24*time.Hour, log), log)
	consumer, err := mq.NewConsumer(cfg.MQ.URL, cfg.MQ.Exchange,
		mqhandler.QueueReminderDeliveredLog, mqcontract.RoutingKeyReminderDelivered, log)
	if err != nil {
		log.Fatal("Failed to init delivery history consumer", zap.Error(err))
	}
	defer consumer.Close()
	consumer.SetHandler(historyHandler.HandleReminderDelivered)

	deps := map[string]httpserver.Pinger{
		"db": dbConn,
		"mq": httpserver.PingFunc(func(context.Context) error {
			if !publisher.IsConnected() {
				return errors.New("mq connection closed")
			}
			return nil
		}),
	}
	health := httpserver.NewServer(pkgconfig.GetEnv("HEALTH_PORT", "8081"), httpserver.NewHealthRouter(deps), log)

	var wg sync.WaitGroup
	run := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
			log.Info("Worker component stopped", zap.String("component", name))
		}()
	}

	run("scheduler", func() { scheduler.Run(ctx) })
	run("outbox_dispatcher", func() { dispatcher.Start(ctx) })
	run("history_consumer", func() {
		if err := consumer.StartConsuming(ctx); err != nil {
			log.Error("Delivery history consumer failed", zap.Error(err))
			stop()
		}
	})
	run("health", func() {
		if err := health.Run(ctx, cfg.Server.ShutdownTimeout()); err != nil {
			log.Error("Health server failed", zap.Error(err))
		}
	})

	log.Info("Worker is ready",
		zap.Duration("scan_interval", cfg.Scheduler.Interval()),
		zap.Bool("redis", rdb != nil),
	)

	<-ctx.Done()
	log.Info("Shutdown signal received, waiting for components")
	wg.Wait()
	log.Info("MailMinder worker stopped")
}
