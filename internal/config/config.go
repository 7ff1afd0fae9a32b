package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds runtime configuration for the pipeline.
type Config struct {
	LogLevel string

	HTTP     HTTPConfig
	Dispatch DispatchConfig
	Hub      HubConfig
	Notify   NotifyConfig
	Kafka    KafkaConfig
	MQTT     MQTTConfig
	Postgres PostgresConfig
	Redis    RedisConfig
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr      string
	AuthToken string
}

// DispatchConfig configures the sharded dispatch workers.
type DispatchConfig struct {
	Shards        int
	ShardBuffer   int
	LedgerTimeout time.Duration
}

// HubConfig configures the broadcast hub.
type HubConfig struct {
	SendBuffer int
}

// NotifyConfig configures the notification queue and workers.
type NotifyConfig struct {
	QueueSize    int
	Workers      int
	MaxAttempts  int
	RetryBackoff time.Duration
	DrainTimeout time.Duration
	SMTPAddr     string
	SMTPFrom     string
	SMSEndpoint  string
	SMSAPIKey    string
}

// KafkaConfig configures the optional alert-event exporter.
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	Topic        string
	MaxRetries   int
	RetryBackoff time.Duration
	WriteTimeout time.Duration
}

// MQTTConfig configures the optional MQTT reading source.
type MQTTConfig struct {
	Enabled   bool
	BrokerURL string
	ClientID  string
	Topic     string
	QoS       byte
	Username  string
	Password  string
}

// PostgresConfig configures the optional Postgres alert ledger.
type PostgresConfig struct {
	Enabled bool
	DSN     string
}

// RedisConfig configures the optional threshold cache.
type RedisConfig struct {
	Enabled bool
	Addr    string
	DB      int
	TTL     time.Duration
}

// Default returns a sensible default config for local dev.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Dispatch: DispatchConfig{
			Shards:        8,
			ShardBuffer:   256,
			LedgerTimeout: 2 * time.Second,
		},
		Hub: HubConfig{
			SendBuffer: 64,
		},
		Notify: NotifyConfig{
			QueueSize:    1000,
			Workers:      2,
			MaxAttempts:  3,
			RetryBackoff: 500 * time.Millisecond,
			DrainTimeout: 10 * time.Second,
			SMTPAddr:     "localhost:25",
			SMTPFrom:     "alerts@fleetwatch.local",
		},
		Kafka: KafkaConfig{
			Brokers:      []string{"localhost:9092"},
			Topic:        "fleetwatch.alerts",
			MaxRetries:   3,
			RetryBackoff: 250 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
		},
		MQTT: MQTTConfig{
			BrokerURL: "tcp://localhost:1883",
			ClientID:  "fleetwatch",
			Topic:     "devices/+/readings",
			QoS:       1,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			TTL:  30 * time.Second,
		},
	}
}

// Load builds a Config from environment variables on top of defaults.
func Load() *Config {
	cfg := Default()

	cfg.LogLevel = envStr("FLEETWATCH_LOG_LEVEL", cfg.LogLevel)

	cfg.HTTP.Addr = envStr("FLEETWATCH_HTTP_ADDR", cfg.HTTP.Addr)
	cfg.HTTP.AuthToken = envStr("FLEETWATCH_AUTH_TOKEN", cfg.HTTP.AuthToken)

	cfg.Dispatch.Shards = envInt("FLEETWATCH_DISPATCH_SHARDS", cfg.Dispatch.Shards)
	cfg.Dispatch.ShardBuffer = envInt("FLEETWATCH_DISPATCH_BUFFER", cfg.Dispatch.ShardBuffer)
	cfg.Dispatch.LedgerTimeout = envDur("FLEETWATCH_LEDGER_TIMEOUT", cfg.Dispatch.LedgerTimeout)

	cfg.Hub.SendBuffer = envInt("FLEETWATCH_HUB_SEND_BUFFER", cfg.Hub.SendBuffer)

	cfg.Notify.QueueSize = envInt("FLEETWATCH_NOTIFY_QUEUE_SIZE", cfg.Notify.QueueSize)
	cfg.Notify.Workers = envInt("FLEETWATCH_NOTIFY_WORKERS", cfg.Notify.Workers)
	cfg.Notify.MaxAttempts = envInt("FLEETWATCH_NOTIFY_MAX_ATTEMPTS", cfg.Notify.MaxAttempts)
	cfg.Notify.RetryBackoff = envDur("FLEETWATCH_NOTIFY_RETRY_BACKOFF", cfg.Notify.RetryBackoff)
	cfg.Notify.DrainTimeout = envDur("FLEETWATCH_NOTIFY_DRAIN_TIMEOUT", cfg.Notify.DrainTimeout)
	cfg.Notify.SMTPAddr = envStr("FLEETWATCH_SMTP_ADDR", cfg.Notify.SMTPAddr)
	cfg.Notify.SMTPFrom = envStr("FLEETWATCH_SMTP_FROM", cfg.Notify.SMTPFrom)
	cfg.Notify.SMSEndpoint = envStr("FLEETWATCH_SMS_ENDPOINT", cfg.Notify.SMSEndpoint)
	cfg.Notify.SMSAPIKey = envStr("FLEETWATCH_SMS_API_KEY", cfg.Notify.SMSAPIKey)

	cfg.Kafka.Enabled = envBool("FLEETWATCH_KAFKA_ENABLED", cfg.Kafka.Enabled)
	if brokers := envStr("FLEETWATCH_KAFKA_BROKERS", ""); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	cfg.Kafka.Topic = envStr("FLEETWATCH_KAFKA_TOPIC", cfg.Kafka.Topic)

	cfg.MQTT.Enabled = envBool("FLEETWATCH_MQTT_ENABLED", cfg.MQTT.Enabled)
	cfg.MQTT.BrokerURL = envStr("FLEETWATCH_MQTT_BROKER", cfg.MQTT.BrokerURL)
	cfg.MQTT.ClientID = envStr("FLEETWATCH_MQTT_CLIENT_ID", cfg.MQTT.ClientID)
	cfg.MQTT.Topic = envStr("FLEETWATCH_MQTT_TOPIC", cfg.MQTT.Topic)
	cfg.MQTT.Username = envStr("FLEETWATCH_MQTT_USERNAME", cfg.MQTT.Username)
	cfg.MQTT.Password = envStr("FLEETWATCH_MQTT_PASSWORD", cfg.MQTT.Password)

	cfg.Postgres.Enabled = envBool("FLEETWATCH_POSTGRES_ENABLED", cfg.Postgres.Enabled)
	cfg.Postgres.DSN = envStr("FLEETWATCH_POSTGRES_DSN", cfg.Postgres.DSN)

	cfg.Redis.Enabled = envBool("FLEETWATCH_REDIS_ENABLED", cfg.Redis.Enabled)
	cfg.Redis.Addr = envStr("FLEETWATCH_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.DB = envInt("FLEETWATCH_REDIS_DB", cfg.Redis.DB)
	cfg.Redis.TTL = envDur("FLEETWATCH_REDIS_TTL", cfg.Redis.TTL)

	return cfg
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
