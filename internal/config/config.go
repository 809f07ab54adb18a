package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. REGIONPULSE_SERVER_ADDR.
const EnvPrefix = "REGIONPULSE"

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

type DatasetConfig struct {
	Path string `mapstructure:"path"`
}

type AggregatorConfig struct {
	DefaultThresholdMs float64 `mapstructure:"default_threshold_ms"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type HTTPSinkConfig struct {
	URL                string        `mapstructure:"url"`
	TokenEnv           string        `mapstructure:"token_env"` // e.g. REGIONPULSE_SINK_TOKEN
	Timeout            time.Duration `mapstructure:"timeout"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

// PublisherConfig controls the optional export of computed reports.
type PublisherConfig struct {
	Enabled       bool           `mapstructure:"enabled"`
	Sink          string         `mapstructure:"sink"` // kafka or http
	QueueSize     int            `mapstructure:"queue_size"`
	BatchSize     int            `mapstructure:"batch_size"`
	FlushInterval time.Duration  `mapstructure:"flush_interval"`
	MaxAttempts   int            `mapstructure:"max_attempts"`
	BaseDelay     time.Duration  `mapstructure:"base_delay"`
	Kafka         KafkaConfig    `mapstructure:"kafka"`
	HTTP          HTTPSinkConfig `mapstructure:"http"`
}

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Dataset    DatasetConfig    `mapstructure:"dataset"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Publisher  PublisherConfig  `mapstructure:"publisher"`
}

const (
	SinkKafka = "kafka"
	SinkHTTP  = "http"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("dataset.path", "telemetry.json")
	v.SetDefault("aggregator.default_threshold_ms", 180.0)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("publisher.enabled", false)
	v.SetDefault("publisher.sink", SinkKafka)
	v.SetDefault("publisher.queue_size", 1000)
	v.SetDefault("publisher.batch_size", 100)
	v.SetDefault("publisher.flush_interval", "30s")
	v.SetDefault("publisher.max_attempts", 6)
	v.SetDefault("publisher.base_delay", "500ms")
	v.SetDefault("publisher.kafka.brokers", []string{})
	v.SetDefault("publisher.kafka.topic", "regionpulse.reports")
	v.SetDefault("publisher.http.url", "")
	v.SetDefault("publisher.http.token_env", "")
	v.SetDefault("publisher.http.timeout", "5s")
	v.SetDefault("publisher.http.insecure_skip_verify", false)
}

// LoadConfig reads the YAML file at path on top of the defaults. An empty
// path skips the file and uses defaults plus environment overrides.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// env overrides: REGIONPULSE_SERVER_ADDR, REGIONPULSE_DATASET_PATH, ...
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize clamps nonsensical values back to defaults and rejects settings
// that cannot be served.
func (c *Config) normalize() error {
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = 1 << 20
	}
	if c.Dataset.Path == "" {
		return fmt.Errorf("dataset.path must be set")
	}

	p := &c.Publisher
	if p.QueueSize <= 0 {
		p.QueueSize = 1000
	}
	if p.BatchSize < 1 {
		p.BatchSize = 100
	}
	if p.FlushInterval <= 0 {
		p.FlushInterval = 30 * time.Second
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.HTTP.Timeout <= 0 {
		p.HTTP.Timeout = 5 * time.Second
	}
	p.Sink = strings.ToLower(p.Sink)
	if p.Enabled {
		switch p.Sink {
		case SinkKafka:
			if len(p.Kafka.Brokers) == 0 {
				return fmt.Errorf("publisher.kafka.brokers must be set for the kafka sink")
			}
		case SinkHTTP:
			if p.HTTP.URL == "" {
				return fmt.Errorf("publisher.http.url must be set for the http sink")
			}
		default:
			return fmt.Errorf("unknown publisher.sink %q", p.Sink)
		}
	}
	return nil
}
