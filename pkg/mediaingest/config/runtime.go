package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/tendant/simple-media/pkg/mediaingest"
	"github.com/tendant/simple-media/pkg/mediaingest/eventbus/eventbridge"
	"github.com/tendant/simple-media/pkg/mediaingest/eventbus/kafka"
	"github.com/tendant/simple-media/pkg/mediaingest/imageproc"
	repodynamo "github.com/tendant/simple-media/pkg/mediaingest/repo/dynamodb"
	"github.com/tendant/simple-media/pkg/mediaingest/repo/memory"
	repopg "github.com/tendant/simple-media/pkg/mediaingest/repo/postgres"
	s3store "github.com/tendant/simple-media/pkg/mediaingest/storage/s3"
)

// MetadataBackend is what every metadata store implementation provides
type MetadataBackend interface {
	mediaingest.ImageMetadataStore
	mediaingest.AlbumLookup
}

// Runtime is the set of clients built once per process and shared by every
// invocation. Build it with Config.Build and release it with Close.
type Runtime struct {
	Config    *Config
	Logger    *slog.Logger
	AWS       aws.Config
	Storage   *s3store.Backend
	Metadata  MetadataBackend
	Publisher mediaingest.EventPublisher
	Registry  *prometheus.Registry
	Metrics   *mediaingest.Metrics

	Issuer   *mediaingest.UploadURLIssuer
	Notifier *mediaingest.UploadCompletionNotifier
	Worker   *mediaingest.Worker
	Listener *mediaingest.StorageEventListener

	closers []func() error
}

// Build validates the configuration and constructs the runtime
func (c *Config) Build(ctx context.Context, logger *slog.Logger) (*Runtime, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	rt := &Runtime{Config: c, Logger: logger}
	if err := rt.build(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) build(ctx context.Context) error {
	c := rt.Config

	awsCfg, err := s3store.LoadAWSConfig(ctx, c.Region, c.AccessKeyID, c.SecretAccessKey)
	if err != nil {
		return err
	}
	rt.AWS = awsCfg

	rt.Storage, err = s3store.New(ctx, s3store.Config{
		Region:                 c.Region,
		Bucket:                 c.Bucket,
		AccessKeyID:            c.AccessKeyID,
		SecretAccessKey:        c.SecretAccessKey,
		Endpoint:               c.Endpoint,
		UsePathStyle:           c.UsePathStyle,
		CacheControl:           c.CacheControl,
		CreateBucketIfNotExist: c.CreateBucket,
	})
	if err != nil {
		return fmt.Errorf("failed to build storage backend: %w", err)
	}

	if rt.Metadata, err = rt.buildMetadata(ctx); err != nil {
		return fmt.Errorf("failed to build metadata store: %w", err)
	}
	if rt.Publisher, err = rt.buildPublisher(ctx); err != nil {
		return fmt.Errorf("failed to build event publisher: %w", err)
	}

	rt.Registry = prometheus.NewRegistry()
	rt.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if rt.Metrics, err = mediaingest.NewMetrics(rt.Registry); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	return rt.wire()
}

// wire assembles the pipeline components from already built clients
func (rt *Runtime) wire() error {
	c := rt.Config
	var err error

	rt.Issuer, err = mediaingest.NewUploadURLIssuer(rt.Metadata, rt.Storage,
		mediaingest.WithMaxUploadSize(c.MaxUploadSizeBytes),
		mediaingest.WithUploadExpiry(c.UploadURLExpiry),
		mediaingest.WithIssuerLogger(rt.Logger),
	)
	if err != nil {
		return err
	}

	rt.Notifier, err = mediaingest.NewUploadCompletionNotifier(rt.Metadata, rt.Publisher, rt.Logger)
	if err != nil {
		return err
	}

	rt.Worker, err = mediaingest.NewWorker(
		mediaingest.WithBlobStore(rt.Storage),
		mediaingest.WithMetadataStore(rt.Metadata),
		mediaingest.WithEventPublisher(rt.Publisher),
		mediaingest.WithVariantGenerator(imageproc.New(imageproc.WithJPEGQuality(c.JPEGQuality))),
		mediaingest.WithVariantSpecs(c.Variants()),
		mediaingest.WithWorkDir(c.WorkDir),
		mediaingest.WithVariantConcurrency(c.VariantConcurrency),
		mediaingest.WithMetrics(rt.Metrics),
		mediaingest.WithLogger(rt.Logger),
	)
	if err != nil {
		return err
	}

	rt.Listener = mediaingest.NewStorageEventListener(c.Bucket, rt.Worker, rt.Logger)
	return nil
}

func (rt *Runtime) buildMetadata(ctx context.Context) (MetadataBackend, error) {
	c := rt.Config
	switch c.MetadataStore {
	case StoreMemory:
		return memory.New(), nil
	case StorePostgres:
		pool, err := NewDbPool(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() error {
			pool.Close()
			return nil
		})
		return repopg.NewWithPool(pool), nil
	case StoreDynamoDB:
		return repodynamo.New(awsdynamodb.NewFromConfig(rt.AWS), c.MetadataTable, c.AlbumTable)
	default:
		return nil, fmt.Errorf("unsupported metadata store: %s", c.MetadataStore)
	}
}

func (rt *Runtime) buildPublisher(ctx context.Context) (mediaingest.EventPublisher, error) {
	c := rt.Config
	switch c.EventBus {
	case BusNone:
		return mediaingest.NewNoopEventPublisher(), nil
	case BusLog:
		return mediaingest.NewLoggingEventPublisher(rt.Logger), nil
	case BusKafka:
		publisher, err := kafka.NewPublisher(ctx, c.KafkaBrokers, c.KafkaEventsTopic,
			kafka.WithLogger(rt.Logger),
			kafka.WithSource(c.EventSource),
		)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, publisher.Close)
		return publisher, nil
	case BusEventBridge:
		return eventbridge.New(awseventbridge.NewFromConfig(rt.AWS), c.EventBusName, c.EventSource)
	default:
		return nil, fmt.Errorf("unsupported event bus: %s", c.EventBus)
	}
}

// NewDbPool opens a pgx pool with search_path set to schema and pings it
func NewDbPool(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errors.New("database_url is required")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", pgx.Identifier{schema}.Sanitize()))
			return err
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// Close releases clients in reverse order of construction
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
