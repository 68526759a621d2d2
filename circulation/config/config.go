package config

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"

	"github.com/bookwise/circulation-service/pkg/kafka"
	"github.com/bookwise/circulation-service/pkg/logger"
	"github.com/bookwise/circulation-service/pkg/postgres"
)

type HTTPServer struct {
	Host         string        `envconfig:"CIRCULATION_HTTP_HOST" default:"0.0.0.0"`
	Port         string        `envconfig:"CIRCULATION_HTTP_PORT" default:"8080"`
	ReadTimeout  time.Duration `envconfig:"HTTP_READ" default:"15s"`
	WriteTimeout time.Duration
}

type Sweep struct {
	// Hour is the local hour of day the billing sweep fires at.
	Hour int `envconfig:"SWEEP_HOUR" default:"3"`
	// Interval bounds the payment-reminder and dedup windows.
	Interval time.Duration `envconfig:"SWEEP_INTERVAL" default:"24h"`
	// ReturnDueWindow is the lookahead for return reminders.
	ReturnDueWindow time.Duration `envconfig:"SWEEP_RETURN_DUE_WINDOW" default:"120h"`
}

type Circulation struct {
	// LoanTerm is the fixed checkout term added to the checkout time.
	LoanTerm time.Duration `envconfig:"LOAN_TERM" default:"2160h"`
	// StageRequiresOptIn keeps a copy reserved when its holder disabled
	// notifications instead of staging it for pickup.
	StageRequiresOptIn bool `envconfig:"STAGE_REQUIRES_OPT_IN" default:"true"`
	// KafkaEnabled switches the reminder sink between the broker and a
	// log-only sink.
	KafkaEnabled bool `envconfig:"KAFKA_ENABLED" default:"false"`
}

type Config struct {
	Server      HTTPServer
	Database    postgres.Database
	Kafka       kafka.Config
	Sweep       Sweep
	Circulation Circulation
	Log         logger.Log
}

var (
	once sync.Once
	cfg  Config
)

type Option func(*Config)

func WithLogLevel(level zapcore.Level) Option {
	return func(c *Config) {
		c.Log.LogLevel = level
	}
}

func WithWriteTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Server.WriteTimeout = timeout
	}
}

// NewConfig reads config from environment.
func NewConfig(ops ...Option) *Config {
	once.Do(func() {
		var config Config
		for _, op := range ops {
			op(&config)
		}
		err := envconfig.Process("", &config)
		if err != nil {
			log.Fatal("NewConfig ", err)
		}
		cfg = config
		printConfig(cfg)
	})

	return &cfg
}

func printConfig(cfg Config) {
	jscfg, _ := json.MarshalIndent(cfg, "", "	") //nolint:errcheck
	fmt.Println(string(jscfg))
}
