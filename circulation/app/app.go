package app

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bookwise/circulation-service/circulation/config"
	"github.com/bookwise/circulation-service/circulation/internal/handler"
	"github.com/bookwise/circulation-service/circulation/internal/notify"
	"github.com/bookwise/circulation-service/circulation/internal/recommend"
	"github.com/bookwise/circulation-service/circulation/internal/repository"
	"github.com/bookwise/circulation-service/circulation/internal/scheduler"
	"github.com/bookwise/circulation-service/circulation/internal/server"
	"github.com/bookwise/circulation-service/circulation/internal/service"
	"github.com/bookwise/circulation-service/circulation/migrations"
	"github.com/bookwise/circulation-service/pkg/kafka"
	"github.com/bookwise/circulation-service/pkg/logger"
	"github.com/bookwise/circulation-service/pkg/postgres"
)

func Run(cfg *config.Config) error {
	log := logger.NewLogger(cfg.Log, "circulation")
	db, err := postgres.NewPostgresDB(context.Background(), &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		return fmt.Errorf("db init %v", err)
	}
	repo, err := repository.NewRepository(db, log)
	if err != nil {
		return fmt.Errorf("repo init %v", err)
	}

	sink := notify.NewNopSink(log)
	if cfg.Circulation.KafkaEnabled {
		producer, err := kafka.NewProducer(cfg.Kafka)
		if err != nil {
			return fmt.Errorf("kafka producer %v", err)
		}
		defer producer.Close()
		sink = notify.NewKafkaSink(producer, log)
	}

	svcCfg := service.DefaultConfig()
	svcCfg.LoanTerm = cfg.Circulation.LoanTerm
	svcCfg.StageRequiresOptIn = cfg.Circulation.StageRequiresOptIn
	svcCfg.SweepInterval = cfg.Sweep.Interval
	svcCfg.ReturnDueWindow = cfg.Sweep.ReturnDueWindow

	clock := service.NewClock()
	svc := service.NewService(repo, sink, clock, svcCfg, log)
	engine := recommend.NewEngine(repo, log)
	h := handler.New(svc, engine, log)

	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()
	go scheduler.New(svc.RunSweep, cfg.Sweep.Hour, clock, log).Run(schedCtx)

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

	schedCancel()
	if err = srv.Stop(closeCtx); err != nil {
		log.Error("srv.Stop", zap.Error(err))
	}
	db.Close()
	log.Info("Graceful shutdown finished")
	return nil
}
