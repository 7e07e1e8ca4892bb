// Package config loads media pipeline settings from the environment and
// builds every long-lived client once per process.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/tendant/simple-media/pkg/mediaingest"
)

// Metadata store kinds
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreDynamoDB = "dynamodb"
)

// Event bus kinds
const (
	BusNone        = "none"
	BusLog         = "log"
	BusKafka       = "kafka"
	BusEventBridge = "eventbridge"
)

// Config holds all settings for the API, the workers and mediactl.
type Config struct {
	Bucket          string `env:"MEDIA_BUCKET"`
	Region          string `env:"AWS_REGION" env-default:"us-east-1"`
	Endpoint        string `env:"AWS_S3_ENDPOINT"`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `env:"AWS_S3_USE_PATH_STYLE" env-default:"false"`
	CreateBucket    bool   `env:"AWS_S3_CREATE_BUCKET" env-default:"false"`
	CacheControl    string `env:"PUBLIC_CACHE_CONTROL" env-default:"public, max-age=31536000, immutable"`

	VariantSpecs       string        `env:"VARIANT_SPECS"`
	MaxUploadSizeBytes int64         `env:"UPLOAD_MAX_SIZE_BYTES" env-default:"52428800"`
	UploadURLExpiry    time.Duration `env:"UPLOAD_URL_EXPIRY" env-default:"300s"`

	MetadataStore string `env:"METADATA_STORE" env-default:"memory"`
	DatabaseURL   string `env:"DATABASE_URL"`
	DBSchema      string `env:"CONTENT_DB_SCHEMA" env-default:"media"`
	MetadataTable string `env:"METADATA_TABLE" env-default:"media-images"`
	AlbumTable    string `env:"ALBUM_TABLE" env-default:"media-albums"`

	EventBus                string   `env:"EVENT_BUS" env-default:"log"`
	EventBusName            string   `env:"EVENT_BUS_NAME" env-default:"default"`
	EventSource             string   `env:"EVENT_SOURCE" env-default:"simple-media"`
	KafkaBrokers            []string `env:"KAFKA_BROKERS" env-default:"localhost:9092" env-separator:","`
	KafkaEventsTopic        string   `env:"KAFKA_EVENTS_TOPIC" env-default:"media-events"`
	KafkaNotificationsTopic string   `env:"KAFKA_NOTIFICATIONS_TOPIC" env-default:"media-notifications"`
	KafkaGroupID            string   `env:"KAFKA_GROUP_ID" env-default:"media-ingest"`
	KafkaMaxAttempts        int      `env:"KAFKA_MAX_ATTEMPTS" env-default:"5"`

	WorkDir            string `env:"WORK_DIR"`
	VariantConcurrency int    `env:"VARIANT_CONCURRENCY" env-default:"1"`
	JPEGQuality        int    `env:"JPEG_QUALITY" env-default:"85"`
	RetentionDays      int32  `env:"RETENTION_DAYS" env-default:"3"`

	WebhookAuthToken string `env:"WEBHOOK_AUTH_TOKEN"`

	Port      string `env:"PORT" env-default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" env-default:"info"`
	LogFormat string `env:"LOG_FORMAT" env-default:"text"`
}

// Load reads an optional .env file and then the process environment
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	return &cfg, nil
}

// Variants returns the active variant list. Malformed or empty VARIANT_SPECS
// yields the defaults.
func (c *Config) Variants() []mediaingest.VariantSpec {
	return mediaingest.ParseVariantSpecsJSON(c.VariantSpecs)
}

// Validate checks the configuration for missing or contradictory settings
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Bucket) == "" {
		errs = append(errs, errors.New("MEDIA_BUCKET is required"))
	}
	if c.MaxUploadSizeBytes <= 0 {
		errs = append(errs, errors.New("UPLOAD_MAX_SIZE_BYTES must be positive"))
	}
	if c.UploadURLExpiry <= 0 {
		errs = append(errs, errors.New("UPLOAD_URL_EXPIRY must be positive"))
	}
	if c.VariantConcurrency <= 0 {
		errs = append(errs, errors.New("VARIANT_CONCURRENCY must be positive"))
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errs = append(errs, errors.New("JPEG_QUALITY must be between 1 and 100"))
	}
	if c.RetentionDays <= 0 {
		errs = append(errs, errors.New("RETENTION_DAYS must be positive"))
	}

	switch c.MetadataStore {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres metadata store"))
		}
	case StoreDynamoDB:
		if c.MetadataTable == "" {
			errs = append(errs, errors.New("METADATA_TABLE is required for the dynamodb metadata store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported METADATA_STORE: %s", c.MetadataStore))
	}

	switch c.EventBus {
	case BusNone, BusLog:
	case BusKafka:
		if len(c.KafkaBrokers) == 0 || c.KafkaEventsTopic == "" {
			errs = append(errs, errors.New("KAFKA_BROKERS and KAFKA_EVENTS_TOPIC are required for the kafka event bus"))
		}
	case BusEventBridge:
		if c.EventSource == "" {
			errs = append(errs, errors.New("EVENT_SOURCE is required for the eventbridge event bus"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported EVENT_BUS: %s", c.EventBus))
	}

	return errors.Join(errs...)
}
