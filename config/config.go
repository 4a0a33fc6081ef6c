package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Portal   PortalConfig   `yaml:"portal"`
	Gateway  GatewayConfig  `yaml:"gateway"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	ChangesTopicName  string `yaml:"changes_topic_name"`
	VerifiedTopicName string `yaml:"verified_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type PortalConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	CurrentStatusTTLSeconds int `yaml:"current_status_ttl_seconds"`

	// Тариф: минорные единицы за килограмм. 1000 => 10.5 кг = 10500.
	FeePerKgMinor int64 `yaml:"fee_per_kg_minor"`

	WorkerPollIntervalSeconds int `yaml:"worker_poll_interval_seconds"`
	WorkerBatchSize           int `yaml:"worker_batch_size"`
	WorkerConcurrency         int `yaml:"worker_concurrency"`
	WorkerLeaseSeconds        int `yaml:"worker_lease_seconds"`
	WorkerRateLimitPerMinute  int `yaml:"worker_rate_limit_per_minute"`
	WorkerAbandonAfterHours   int `yaml:"worker_abandon_after_hours"`

	WorkerHTTPAddr string `yaml:"worker_http_addr"`

	// Verify scheduling (optional). Defaults: retry in 1 minute while
	// the gateway still reports pending, backoff 5/15/30/60 minutes on
	// gateway errors.
	WorkerNextVerifyPendingSeconds int `yaml:"worker_next_verify_pending_seconds"`
	WorkerBackoff1Seconds          int `yaml:"worker_backoff_1_seconds"`
	WorkerBackoff2Seconds          int `yaml:"worker_backoff_2_seconds"`
	WorkerBackoff3Seconds          int `yaml:"worker_backoff_3_seconds"`
	WorkerBackoff4Seconds          int `yaml:"worker_backoff_4_seconds"`
}

type GatewayConfig struct {
	BaseURL   string `yaml:"base_url"`
	SecretKey string `yaml:"secret_key"`
	Mode      string `yaml:"mode"` // "paystack" | "fake"
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
