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
	Host         string        `envconfig:"NOTIFIER_HTTP_HOST" default:"0.0.0.0"`
	Port         string        `envconfig:"NOTIFIER_HTTP_PORT" default:"8081"`
	ReadTimeout  time.Duration `envconfig:"HTTP_READ" default:"15s"`
	WriteTimeout time.Duration
}

type Config struct {
	Server   HTTPServer
	Database postgres.Database
	Kafka    kafka.Config
	Log      logger.Log
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
