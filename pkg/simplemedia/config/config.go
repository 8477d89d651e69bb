package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/reconcile"
	"github.com/tendant/simple-media/pkg/simplemedia/repo/memory"
	repopg "github.com/tendant/simple-media/pkg/simplemedia/repo/postgres"
	fsstorage "github.com/tendant/simple-media/pkg/simplemedia/storage/fs"
	memorystorage "github.com/tendant/simple-media/pkg/simplemedia/storage/memory"
	s3storage "github.com/tendant/simple-media/pkg/simplemedia/storage/s3"
)

// ServerConfig represents configuration for the media service, read from the environment
type ServerConfig struct {
	// Database configuration. Empty or "memory" selects the in-memory repository.
	DatabaseURL string `env:"DATABASE_URL" env-default:"memory"`
	DBSchema    string `env:"MEDIA_DB_SCHEMA" env-default:""`
	// OwnerTable enables owner existence checks against this table (postgres only)
	OwnerTable string `env:"OWNER_TABLE" env-default:""`

	// Storage configuration
	StorageType string `env:"STORAGE_TYPE" env-default:"memory"` // memory, fs, s3
	FS          FSConfig
	S3          S3Config

	// Sweep configuration
	SweepEnabled bool   `env:"SWEEP_ENABLED" env-default:"true"`
	SweepCron    string `env:"SWEEP_CRON" env-default:"0 0 * * 1"`

	// HTTP options
	AdminAPIKeySHA256 string `env:"ADMIN_API_KEY_SHA256" env-default:""`
	MaxUploadBytes    int64  `env:"MAX_UPLOAD_BYTES" env-default:"10485760"`
}

type FSConfig struct {
	BaseDir   string `env:"FS_BASE_DIR" env-default:"./data/media"`
	URLPrefix string `env:"FS_URL_PREFIX" env-default:""`
}

type S3Config struct {
	Bucket                 string `env:"S3_BUCKET" env-default:""`
	Region                 string `env:"S3_REGION" env-default:"us-east-1"`
	Endpoint               string `env:"S3_ENDPOINT" env-default:""`
	AccessKeyID            string `env:"S3_ACCESS_KEY_ID" env-default:""`
	SecretAccessKey        string `env:"S3_SECRET_ACCESS_KEY" env-default:""`
	UsePathStyle           bool   `env:"S3_USE_PATH_STYLE" env-default:"false"`
	PublicRead             bool   `env:"S3_PUBLIC_READ" env-default:"true"`
	PublicBaseURL          string `env:"S3_PUBLIC_BASE_URL" env-default:""`
	CreateBucketIfNotExist bool   `env:"S3_CREATE_BUCKET_IF_NOT_EXIST" env-default:"false"`
}

// Load reads the configuration from the environment and validates it.
func Load() (*ServerConfig, error) {
	var cfg ServerConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DatabaseType returns "memory" or "postgres" based on DatabaseURL
func (c *ServerConfig) DatabaseType() string {
	if c.DatabaseURL == "" || c.DatabaseURL == "memory" {
		return "memory"
	}
	if strings.HasPrefix(c.DatabaseURL, "postgresql://") || strings.HasPrefix(c.DatabaseURL, "postgres://") {
		return "postgres"
	}
	return ""
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.DatabaseType() == "" {
		return errors.New("unsupported DATABASE_URL format (use 'memory' or 'postgresql://...')")
	}

	switch c.StorageType {
	case "memory":
	case "fs":
		if c.FS.BaseDir == "" {
			return errors.New("FS_BASE_DIR is required when STORAGE_TYPE=fs")
		}
	case "s3":
		if c.S3.Bucket == "" {
			return errors.New("S3_BUCKET is required when STORAGE_TYPE=s3")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_TYPE: %s (use memory, fs or s3)", c.StorageType)
	}

	if c.SweepEnabled && strings.TrimSpace(c.SweepCron) == "" {
		return errors.New("SWEEP_CRON is required when SWEEP_ENABLED=true")
	}

	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be positive")
	}

	return nil
}

// Resources are the wired components built from a ServerConfig
type Resources struct {
	Service    simplemedia.Service
	Reconciler *reconcile.Reconciler

	closers []func()
}

// Close releases database pools
func (r *Resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// Build creates the repository, object store, service and reconciler.
// PostgreSQL migrations are applied before the service is returned.
func (c *ServerConfig) Build(ctx context.Context, logger *slog.Logger) (*Resources, error) {
	if logger == nil {
		logger = slog.Default()
	}
	res := &Resources{}

	options := []simplemedia.Option{simplemedia.WithLogger(logger)}

	switch c.DatabaseType() {
	case "memory":
		options = append(options, simplemedia.WithRepository(memory.New()))
	case "postgres":
		pool, err := c.newPool(ctx)
		if err != nil {
			return nil, err
		}
		res.closers = append(res.closers, pool.Close)

		if err := repopg.Migrate(ctx, pool); err != nil {
			res.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}

		repo := repopg.NewWithPool(pool, repopg.WithOwnerTable(c.OwnerTable))
		options = append(options, simplemedia.WithRepository(repo))
		if c.OwnerTable != "" {
			options = append(options, simplemedia.WithOwnerDirectory(repo))
		}
	default:
		return nil, fmt.Errorf("unsupported database type for %q", c.DatabaseURL)
	}

	store, err := c.BuildObjectStore()
	if err != nil {
		res.Close()
		return nil, fmt.Errorf("failed to build object store: %w", err)
	}
	options = append(options, simplemedia.WithObjectStore(store))

	if c.StorageType == "s3" {
		options = append(options, simplemedia.WithPublicRead(c.S3.PublicRead))
	}

	svc, err := simplemedia.New(options...)
	if err != nil {
		res.Close()
		return nil, err
	}

	res.Service = svc
	res.Reconciler = reconcile.New(svc, reconcile.WithLogger(logger))
	return res, nil
}

// BuildObjectStore creates the ObjectStore selected by StorageType
func (c *ServerConfig) BuildObjectStore() (simplemedia.ObjectStore, error) {
	switch c.StorageType {
	case "memory":
		return memorystorage.New(), nil
	case "fs":
		backend, err := fsstorage.New(fsstorage.Config{
			BaseDir:   c.FS.BaseDir,
			URLPrefix: c.FS.URLPrefix,
		})
		if err != nil {
			return nil, err
		}
		return backend, nil
	case "s3":
		backend, err := s3storage.New(s3storage.Config{
			Region:                 c.S3.Region,
			Bucket:                 c.S3.Bucket,
			AccessKeyID:            c.S3.AccessKeyID,
			SecretAccessKey:        c.S3.SecretAccessKey,
			Endpoint:               c.S3.Endpoint,
			UsePathStyle:           c.S3.UsePathStyle,
			PublicBaseURL:          c.S3.PublicBaseURL,
			CreateBucketIfNotExist: c.S3.CreateBucketIfNotExist,
		})
		if err != nil {
			return nil, err
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", c.StorageType)
	}
}

// newPool opens a pgx pool and pins search_path to DBSchema when set
func (c *ServerConfig) newPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}

	if schema := c.DBSchema; schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
