package kafka

import (
	"context"
	"time"

	"github.com/IBM/sarama"
)

const (
	ReminderTopic = "reminders"

	NotifierConsumerGroup = "notifier"
)

// ReminderEvent is the wire format published for every reminder
// the circulation service records. Consumers pattern-match on Type,
// so the values are stable storage constants.
type ReminderEvent struct {
	UserID int       `json:"userId"`
	CopyID int       `json:"copyId"`
	Type   string    `json:"type"`
	SentAt time.Time `json:"sentAt"`
}

type Config struct {
	Addrs []string `envconfig:"KAFKA_ADDRS" default:"localhost:9092"`
}

func NewProducer(cfg Config) (sarama.SyncProducer, error) {
	defaultCfg := sarama.NewConfig()

	defaultCfg.Producer.RequiredAcks = sarama.WaitForAll
	defaultCfg.Producer.Return.Successes = true

	return sarama.NewSyncProducer(cfg.Addrs, defaultCfg)
}

func NewConsumer(cfg Config, group string) (sarama.ConsumerGroup, error) {
	defaultCfg := sarama.NewConfig()
	defaultCfg.Consumer.Offsets.Initial = sarama.OffsetOldest

	return sarama.NewConsumerGroup(cfg.Addrs, group, defaultCfg)
}

// Consume runs the consumer group loop until ctx is cancelled.
// sarama re-enters Consume on every rebalance.
func Consume(ctx context.Context, consumer sarama.ConsumerGroup, handler sarama.ConsumerGroupHandler, topic string) error {
	for {
		if err := consumer.Consume(ctx, []string{topic}, handler); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
