package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-media/pkg/mediaingest"
)

func validConfig() *Config {
	return &Config{
		Bucket:             "media",
		Region:             "us-east-1",
		AccessKeyID:        "test-key",
		SecretAccessKey:    "test-secret",
		MaxUploadSizeBytes: 50 << 20,
		UploadURLExpiry:    5 * time.Minute,
		MetadataStore:      StoreMemory,
		EventBus:           BusLog,
		EventSource:        "simple-media",
		VariantConcurrency: 1,
		JPEGQuality:        85,
		RetentionDays:      3,
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("MEDIA_BUCKET", "media")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("UPLOAD_URL_EXPIRY", "10m")
	t.Setenv("VARIANT_CONCURRENCY", "3")
	t.Setenv("WEBHOOK_AUTH_TOKEN", "webhook-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "media", cfg.Bucket)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 10*time.Minute, cfg.UploadURLExpiry)
	assert.Equal(t, 3, cfg.VariantConcurrency)
	assert.Equal(t, int64(52428800), cfg.MaxUploadSizeBytes)
	assert.Equal(t, 85, cfg.JPEGQuality)
	assert.Equal(t, int32(3), cfg.RetentionDays)
	assert.Equal(t, 5, cfg.KafkaMaxAttempts)
	assert.Equal(t, "webhook-secret", cfg.WebhookAuthToken)
	assert.Equal(t, "public, max-age=31536000, immutable", cfg.CacheControl)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Variants(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, mediaingest.DefaultVariants(), cfg.Variants())

	cfg.VariantSpecs = `[{"label":"thumb","longEdge":200}]`
	assert.Equal(t, []mediaingest.VariantSpec{{Label: "thumb", LongEdge: 200}}, cfg.Variants())

	cfg.VariantSpecs = `not json`
	assert.Equal(t, mediaingest.DefaultVariants(), cfg.Variants())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing bucket", func(c *Config) { c.Bucket = " " }, "MEDIA_BUCKET"},
		{"zero upload size", func(c *Config) { c.MaxUploadSizeBytes = 0 }, "UPLOAD_MAX_SIZE_BYTES"},
		{"zero expiry", func(c *Config) { c.UploadURLExpiry = 0 }, "UPLOAD_URL_EXPIRY"},
		{"zero concurrency", func(c *Config) { c.VariantConcurrency = 0 }, "VARIANT_CONCURRENCY"},
		{"quality out of range", func(c *Config) { c.JPEGQuality = 101 }, "JPEG_QUALITY"},
		{"zero retention", func(c *Config) { c.RetentionDays = 0 }, "RETENTION_DAYS"},
		{"postgres without url", func(c *Config) { c.MetadataStore = StorePostgres }, "DATABASE_URL"},
		{"dynamodb without table", func(c *Config) { c.MetadataStore = StoreDynamoDB; c.MetadataTable = "" }, "METADATA_TABLE"},
		{"unknown store", func(c *Config) { c.MetadataStore = "redis" }, "METADATA_STORE"},
		{"kafka without brokers", func(c *Config) { c.EventBus = BusKafka; c.KafkaEventsTopic = "t" }, "KAFKA_BROKERS"},
		{"eventbridge without source", func(c *Config) { c.EventBus = BusEventBridge; c.EventSource = "" }, "EVENT_SOURCE"},
		{"unknown bus", func(c *Config) { c.EventBus = "nats" }, "EVENT_BUS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	require.NoError(t, validConfig().Validate())
}

func TestConfig_ValidateReportsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.Bucket = ""
	cfg.JPEGQuality = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MEDIA_BUCKET")
	assert.Contains(t, err.Error(), "JPEG_QUALITY")
}

func TestConfig_Build(t *testing.T) {
	cfg := validConfig()

	rt, err := cfg.Build(context.Background(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	assert.NotNil(t, rt.Storage)
	assert.Equal(t, "media", rt.Storage.Bucket())
	assert.NotNil(t, rt.Metadata)
	assert.NotNil(t, rt.Publisher)
	assert.NotNil(t, rt.Metrics)
	assert.NotNil(t, rt.Issuer)
	assert.NotNil(t, rt.Notifier)
	assert.NotNil(t, rt.Worker)
	assert.NotNil(t, rt.Listener)

	families, err := rt.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestConfig_BuildWithoutEventBus(t *testing.T) {
	cfg := validConfig()
	cfg.EventBus = BusNone

	rt, err := cfg.Build(context.Background(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	assert.IsType(t, &mediaingest.NoopEventPublisher{}, rt.Publisher)
}

func TestConfig_BuildRejectsInvalid(t *testing.T) {
	cfg := validConfig()
	cfg.Bucket = ""

	_, err := cfg.Build(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestNewDbPool_RequiresURL(t *testing.T) {
	_, err := NewDbPool(context.Background(), "", "media")
	require.Error(t, err)
}

func TestRuntime_CloseRunsInReverse(t *testing.T) {
	var order []int
	rt := &Runtime{}
	rt.closers = append(rt.closers,
		func() error { order = append(order, 1); return nil },
		func() error { order = append(order, 2); return nil },
	)

	require.NoError(t, rt.Close())
	assert.Equal(t, []int{2, 1}, order)
	require.NoError(t, rt.Close())
	assert.Equal(t, []int{2, 1}, order)
}
