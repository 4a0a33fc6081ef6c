package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  changes_topic_name: "portal.changes"
  verified_topic_name: "payments.verified"
redis:
  host: "localhost"
  port: 6379
portal:
  http_addr: ":8080"
  kafka_consumer_group: "portal-api"
  current_status_ttl_seconds: 600
  fee_per_kg_minor: 1000
gateway:
  base_url: "http://localhost:9000"
  secret_key: "sk_test"
  mode: "paystack"
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "portal.changes", cfg.Kafka.ChangesTopicName)
	require.Equal(t, "payments.verified", cfg.Kafka.VerifiedTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, ":8080", cfg.Portal.HTTPAddr)
	require.Equal(t, int64(1000), cfg.Portal.FeePerKgMinor)
	require.Equal(t, "paystack", cfg.Gateway.Mode)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig("/does/not/exist.yaml")
	require.Error(t, err)
}
