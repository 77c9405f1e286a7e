package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"mailminder/internal/config"
	"mailminder/internal/handler"
	"mailminder/internal/httpserver"
	"mailminder/internal/provider"
	"mailminder/internal/repository"
	"mailminder/internal/service/metadata"
	"mailminder/internal/service/user"
	"mailminder/pkg/db"
	"mailminder/pkg/logger"
	"mailminder/pkg/mq"
	"mailminder/pkg/otel"
	"mailminder/pkg/outbox"
	redisclient "mailminder/pkg/redis"
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
		cfg.OTel.ServiceName += "-api"
	}
	shutdownOTel, err := otel.Init(cfg.OTel, log)
	if err != nil {
		log.Warn("OpenTelemetry init failed, continuing without tracing", zap.Error(err))
	} else {
		defer shutdownOTel()
	}

	// Init DB
	dbConn, err := db.NewConnection(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	if err := repository.Migrate(ctx, db.DSN(cfg.DB), log); err != nil {
		log.Fatal("Schema migration failed", zap.Error(err))
	}

	deps := map[string]httpserver.Pinger{"db": dbConn}
	rdb, err := redisclient.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Warn("Redis unavailable", zap.Error(err))
	}
	if rdb != nil {
		defer rdb.Close()
		deps["redis"] = httpserver.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}

	// Init MQ publisher for outbox replay
	publisher, err := mq.NewPublisher(cfg.MQ.URL, cfg.MQ.Exchange)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()
	deps["mq"] = httpserver.PingFunc(func(context.Context) error {
		if !publisher.IsConnected() {
			return errors.New("mq connection closed")
		}
		return nil
	})

	// Init Repositories
	outboxRepo := outbox.NewRepository(dbConn)
	userRepo := repository.NewUserRepository(dbConn, log)
	metadataRepo := repository.NewMetadataRepository(dbConn, outboxRepo, log)
	historyRepo := repository.NewNotificationLogRepository(dbConn)

	mailProvider, err := provider.New(cfg.Provider, log)
	if err != nil {
		log.Fatal("Mail provider init failed", zap.Error(err))
	}

	// Init Services
	metadataService := metadata.NewService(userRepo, metadataRepo, mailProvider, log)
	userService := user.NewService(userRepo, log)
	replayService := outbox.NewReplayService(outboxRepo, publisher, log)

	router := httpserver.NewRouter(httpserver.Handlers{
		Email:    handler.NewEmailHandler(metadataService, log),
		Reminder: handler.NewReminderHandler(metadataService, historyRepo, log),
		User:     handler.NewUserHandler(userService, log),
		Admin:    handler.NewAdminHandler(replayService, log),
	}, cfg.JWT.Secret, deps)

	log.Info("Starting MailMinder API",
		zap.String("port", cfg.Server.Port),
		zap.String("provider", mailProvider.Name()),
	)
	if err := httpserver.NewServer(cfg.Server.Port, router, log).Run(ctx, cfg.Server.ShutdownTimeout()); err != nil {
		log.Fatal("HTTP server failed", zap.Error(err))
	}
	log.Info("MailMinder API stopped")
}
