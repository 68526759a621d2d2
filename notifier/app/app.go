package app

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bookwise/circulation-service/notifier/config"
	"github.com/bookwise/circulation-service/notifier/internal/handler"
	"github.com/bookwise/circulation-service/notifier/internal/repository"
	"github.com/bookwise/circulation-service/notifier/internal/server"
	"github.com/bookwise/circulation-service/notifier/migrations"
	"github.com/bookwise/circulation-service/pkg/kafka"
	"github.com/bookwise/circulation-service/pkg/logger"
	"github.com/bookwise/circulation-service/pkg/postgres"
)

func Run(cfg *config.Config) {
	log := logger.NewLogger(cfg.Log, "notifier")
	db, err := postgres.NewPgxPool(context.Background(), &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		log.Fatal("db init", zap.Error(err))
	}
	repo, err := repository.NewRepository(db, log)
	if err != nil {
		log.Fatal("repo", zap.Error(err))
	}

	consumer, err := kafka.NewConsumer(cfg.Kafka, kafka.NotifierConsumerGroup)
	if err != nil {
		log.Fatal("kafka.NewConsumer", zap.Error(err))
	}
	consumeCtx, consumeCancel := context.WithCancel(context.Background())
	defer consumeCancel()
	go func() {
		if err := kafka.Consume(consumeCtx, consumer, handler.NewConsumer(repo.Record, log), kafka.ReminderTopic); err != nil && consumeCtx.Err() == nil {
			log.Error("kafka.Consume", zap.Error(err))
		}
	}()

	h := handler.New(repo, log)
	srv := server.NewServer(cfg.Server, h.NewRouter())
	log.Info("http server start ON: ",
		zap.String("addr",
			net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)))
	go func() {
		if err := srv.Run(); err != nil {
			log.Error("server run", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	termSig := <-sig

	log.Debug("Graceful shutdown", zap.Any("signal", termSig))

	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	consumeCancel()
	if err = srv.Stop(closeCtx); err != nil {
		log.Error("srv.Stop", zap.Error(err))
	}
	db.Close()
	log.Info("Graceful shutdown finished")
}
