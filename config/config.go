package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"go.yaml.in/yaml/v4"
)

// EnvPrefix is the prefix of environment overrides, e.g. SORTING_DB_HOST.
const EnvPrefix = "SORTING"

type Config struct {
	Database DatabaseConfig `yaml:"database" envconfig:"DB"`
	Kafka    KafkaConfig    `yaml:"kafka" envconfig:"KAFKA"`
	Redis    RedisConfig    `yaml:"redis" envconfig:"REDIS"`
	Sorting  SortingConfig  `yaml:"sorting" envconfig:"SORTING"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host" envconfig:"HOST"`
	Port     int    `yaml:"port" envconfig:"PORT"`
	Username string `yaml:"username" envconfig:"USERNAME"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
	DBName   string `yaml:"name" envconfig:"NAME"`
	SSLMode  string `yaml:"ssl_mode" envconfig:"SSL_MODE"`
}

func (c DatabaseConfig) ConnString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Username, c.Password, c.Host, c.Port, c.DBName, sslMode)
}

type KafkaConfig struct {
	Host                     string `yaml:"host" envconfig:"HOST"`
	Port                     int    `yaml:"port" envconfig:"PORT"`
	BagEventsTopicName       string `yaml:"bag_events_topic_name" envconfig:"BAG_EVENTS_TOPIC"`
	ShipmentUpdatesTopicName string `yaml:"shipment_updates_topic_name" envconfig:"SHIPMENT_UPDATES_TOPIC"`
	ConsumerGroup            string `yaml:"consumer_group" envconfig:"CONSUMER_GROUP"`
	ConsumeShipmentUpdates   bool   `yaml:"consume_shipment_updates" envconfig:"CONSUME_SHIPMENT_UPDATES"`
}

func (c KafkaConfig) Brokers() []string {
	if c.Host == "" {
		return nil
	}
	return []string{fmt.Sprintf("%s:%d", c.Host, c.Port)}
}

type RedisConfig struct {
	Host string `yaml:"host" envconfig:"HOST"`
	Port int    `yaml:"port" envconfig:"PORT"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type SortingConfig struct {
	HTTPAddr string `yaml:"http_addr" envconfig:"HTTP_ADDR"`
	// SeparatorSocketID is the socket code where IN arrivals close the previous pending bag.
	SeparatorSocketID string `yaml:"separator_socket_id" envconfig:"SEPARATOR_SOCKET_ID"`

	WizardDraftTTLSeconds  int `yaml:"wizard_draft_ttl_seconds" envconfig:"WIZARD_DRAFT_TTL_SECONDS"`
	CatalogCacheTTLSeconds int `yaml:"catalog_cache_ttl_seconds" envconfig:"CATALOG_CACHE_TTL_SECONDS"`
	CommitGuardSeconds     int `yaml:"commit_guard_seconds" envconfig:"COMMIT_GUARD_SECONDS"`

	LogLevel  string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" envconfig:"LOG_FORMAT"` // "json" | "console"
}

// LoadConfig reads the YAML file and then applies SORTING_* environment overrides.
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

	if err := envconfig.Process(EnvPrefix, &config); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}

	return &config, nil
}
