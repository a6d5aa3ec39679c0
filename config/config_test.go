package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  bag_events_topic_name: "sorting.bag-events"
  shipment_updates_topic_name: "sorting.shipment-updates"
  consumer_group: "sorting-api"
redis:
  host: "localhost"
  port: 6379
sorting:
  http_addr: ":8080"
  separator_socket_id: "SEP"
  wizard_draft_ttl_seconds: 3600
  log_level: "debug"
`

func writeConfig(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(sampleConfig), 0o600))
	return p
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t))
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "sorting.bag-events", cfg.Kafka.BagEventsTopicName)
	require.False(t, cfg.Kafka.ConsumeShipmentUpdates)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, ":8080", cfg.Sorting.HTTPAddr)
	require.Equal(t, "SEP", cfg.Sorting.SeparatorSocketID)
	require.Equal(t, 3600, cfg.Sorting.WizardDraftTTLSeconds)
	require.Equal(t, "postgres://u:p@localhost:5432/db?sslmode=disable", cfg.Database.ConnString())
	require.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers())
	require.Equal(t, "localhost:6379", cfg.Redis.Addr())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SORTING_DB_HOST", "pg.internal")
	t.Setenv("SORTING_REDIS_PORT", "6380")
	t.Setenv("SORTING_SORTING_SEPARATOR_SOCKET_ID", "SEP-2")
	t.Setenv("SORTING_KAFKA_CONSUME_SHIPMENT_UPDATES", "true")

	cfg, err := LoadConfig(writeConfig(t))
	require.NoError(t, err)
	require.Equal(t, "pg.internal", cfg.Database.Host)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, 6380, cfg.Redis.Port)
	require.Equal(t, "SEP-2", cfg.Sorting.SeparatorSocketID)
	require.True(t, cfg.Kafka.ConsumeShipmentUpdates)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
