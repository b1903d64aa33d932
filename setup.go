package nodekit

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gobeaver/beaver-kit/config"
	"github.com/gobeaver/nodekit/internal/logger"
	"go.uber.org/multierr"
)

// Global instance
var (
	defaultSvc  *Service
	defaultOnce sync.Once
	defaultErr  error
)

// Builder creates services from environment variables with a custom prefix
type Builder struct {
	prefix string
}

// WithPrefix creates a new Builder with the specified prefix
func WithPrefix(prefix string) *Builder {
	return &Builder{prefix: prefix}
}

// Init initializes the global Service using the builder's prefix
func (b *Builder) Init(opts ...Option) error {
	cfg := &Config{}
	if err := config.Load(cfg, config.LoadOptions{Prefix: b.prefix}); err != nil {
		return err
	}
	return Init(cfg, opts...)
}

// New creates a new Service using the builder's prefix
func (b *Builder) New(opts ...Option) (*Service, error) {
	cfg := &Config{}
	if err := config.Load(cfg, config.LoadOptions{Prefix: b.prefix}); err != nil {
		return nil, err
	}
	return NewFromConfig(cfg, opts...)
}

// Init initializes the global Service. Without cfg the config is read from
// the environment.
func Init(cfg *Config, opts ...Option) error {
	defaultOnce.Do(func() {
		if cfg == nil {
			cfg, defaultErr = GetConfig()
			if defaultErr != nil {
				return
			}
		}
		defaultSvc, defaultErr = NewFromConfig(cfg, opts...)
	})
	return defaultErr
}

// NewFromConfig creates the configured backend and a Service over it. The
// logger and archive limits come from cfg unless opts override them.
func NewFromConfig(cfg *Config, opts ...Option) (*Service, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.New(cfg.LogDevelopment, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	backend, err := CreateBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}

	base := []Option{
		WithLogger(log),
		WithDefaultArchiveLimits(cfg.ArchiveLimits()),
	}
	svc, err := New(backend, append(base, opts...)...)
	if err != nil {
		if c, ok := backend.(Closer); ok {
			err = multierr.Append(err, c.Close())
		}
		return nil, err
	}
	return svc, nil
}

// validateConfig checks the settings each driver cannot work without
func validateConfig(cfg *Config) error {
	if cfg.Driver == "" {
		return errors.New("driver is required")
	}

	switch cfg.Driver {
	case "local":
		if cfg.LocalBasePath == "" {
			return errors.New("local base path is required for local driver")
		}
	case "s3":
		if cfg.S3Bucket == "" {
			return errors.New("S3 bucket is required for S3 driver")
		}
	case "gcs":
		if cfg.GCSBucket == "" {
			return errors.New("GCS bucket is required for GCS driver")
		}
	case "azure":
		if cfg.AzureAccountName == "" || cfg.AzureContainerName == "" {
			return errors.New("Azure account name and container are required for Azure driver")
		}
	case "minio":
		if cfg.MinIOEndpoint == "" || cfg.MinIOBucket == "" {
			return errors.New("MinIO endpoint and bucket are required for MinIO driver")
		}
	case "nats":
		if cfg.NATSBucket == "" {
			return errors.New("NATS bucket is required for NATS driver")
		}
	case "sftp":
		if cfg.SFTPHost == "" || cfg.SFTPUsername == "" {
			return errors.New("SFTP host and username are required for SFTP driver")
		}
	case "webdav":
		if cfg.WebDAVURL == "" {
			return errors.New("WebDAV URL is required for WebDAV driver")
		}
	case "zip":
		if cfg.ZipPath == "" {
			return errors.New("archive path is required for zip driver")
		}
	case "memory", "memory-flat":
	default:
		return fmt.Errorf("unknown driver: %s", cfg.Driver)
	}

	if cfg.ListPageSize < 0 {
		return errors.New("list page size must not be negative")
	}
	return nil
}

// Default returns the global Service, initializing it from the environment
// when needed.
func Default() (*Service, error) {
	if err := Init(nil); err != nil {
		return nil, err
	}
	return defaultSvc, nil
}

// NewFromEnv creates a Service from environment variables
func NewFromEnv(opts ...Option) (*Service, error) {
	cfg, err := GetConfig()
	if err != nil {
		return nil, err
	}
	return NewFromConfig(cfg, opts...)
}

// Reset clears the global instance (for testing)
func Reset() {
	defaultSvc = nil
	defaultOnce = sync.Once{}
	defaultErr = nil
}
