package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/bookwise/circulation-service/pkg/breaker"
	"github.com/bookwise/circulation-service/pkg/kafka"
)

// Sink receives reminder events. Delivery is fire and forget: the
// state machine and the sweep never fail an operation on a sink error.
type Sink interface {
	Emit(ctx context.Context, event kafka.ReminderEvent) error
}

type kafkaSink struct {
	producer sarama.SyncProducer
	cb       *breaker.Breaker
	log      *zap.Logger
}

func NewKafkaSink(producer sarama.SyncProducer, log *zap.Logger) Sink {
	return &kafkaSink{
		producer: producer,
		cb:       breaker.New(20, time.Second*30, 0.5, 5),
		log:      log.Named("notify"),
	}
}

func (s *kafkaSink) Emit(_ context.Context, event kafka.ReminderEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.cb.Call(func() error {
		msg := &sarama.ProducerMessage{Topic: kafka.ReminderTopic, Value: sarama.StringEncoder(data)}
		if _, _, err := s.producer.SendMessage(msg); err != nil {
			return err
		}
		return nil
	})
}

type nopSink struct {
	log *zap.Logger
}

// NewNopSink logs events instead of publishing them. Used when the
// broker is not configured and in tests.
func NewNopSink(log *zap.Logger) Sink {
	return &nopSink{log: log.Named("notify")}
}

func (s *nopSink) Emit(_ context.Context, event kafka.ReminderEvent) error {
	s.log.Info("reminder",
		zap.Int("userId", event.UserID),
		zap.Int("copyId", event.CopyID),
		zap.String("type", event.Type))
	return nil
}
