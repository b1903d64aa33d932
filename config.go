package nodekit

import (
	"github.com/gobeaver/beaver-kit/config"
)

type Config struct {
	// Backend driver to use (local, memory, s3, gcs, azure, minio, nats, sftp, webdav, zip)
	Driver string `env:"NODEKIT_DRIVER,default:local"`

	// Flat stores
	MarkerName        string `env:"NODEKIT_MARKER_NAME,default:.directory"`
	MarkerOnlyIsEmpty bool   `env:"NODEKIT_MARKER_ONLY_IS_EMPTY,default:true"`
	ListPageSize      int    `env:"NODEKIT_LIST_PAGE_SIZE,default:1000"`

	// Archive limits applied to every unzip (0 = unlimited)
	ArchiveMaxEntries int   `env:"NODEKIT_ARCHIVE_MAX_ENTRIES,default:10000"`
	ArchiveMaxSize    int64 `env:"NODEKIT_ARCHIVE_MAX_SIZE,default:1073741824"` // 1GB

	// Logging
	LogLevel       string `env:"NODEKIT_LOG_LEVEL,default:info"`
	LogDevelopment bool   `env:"NODEKIT_LOG_DEVELOPMENT,default:false"`

	// Local driver configuration
	LocalBasePath string `env:"NODEKIT_LOCAL_BASE_PATH,default:./storage"`

	// S3 driver configuration
	S3Region          string `env:"NODEKIT_S3_REGION,default:us-east-1"`
	S3Bucket          string `env:"NODEKIT_S3_BUCKET"`
	S3Prefix          string `env:"NODEKIT_S3_PREFIX"`
	S3Endpoint        string `env:"NODEKIT_S3_ENDPOINT"`
	S3AccessKeyID     string `env:"NODEKIT_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"NODEKIT_S3_SECRET_ACCESS_KEY"`
	S3ForcePathStyle  bool   `env:"NODEKIT_S3_FORCE_PATH_STYLE,default:false"`

	// GCS (Google Cloud Storage) driver configuration
	GCSBucket          string `env:"NODEKIT_GCS_BUCKET"`
	GCSPrefix          string `env:"NODEKIT_GCS_PREFIX"`
	GCSCredentialsFile string `env:"NODEKIT_GCS_CREDENTIALS_FILE"` // Path to service account JSON

	// Azure Blob Storage driver configuration
	AzureAccountName   string `env:"NODEKIT_AZURE_ACCOUNT_NAME"`
	AzureAccountKey    string `env:"NODEKIT_AZURE_ACCOUNT_KEY"`
	AzureContainerName string `env:"NODEKIT_AZURE_CONTAINER_NAME"`
	AzurePrefix        string `env:"NODEKIT_AZURE_PREFIX"`
	AzureEndpoint      string `env:"NODEKIT_AZURE_ENDPOINT"` // Optional custom endpoint

	// MinIO driver configuration
	MinIOEndpoint  string `env:"NODEKIT_MINIO_ENDPOINT"`
	MinIOAccessKey string `env:"NODEKIT_MINIO_ACCESS_KEY"`
	MinIOSecretKey string `env:"NODEKIT_MINIO_SECRET_KEY"`
	MinIOBucket    string `env:"NODEKIT_MINIO_BUCKET"`
	MinIOPrefix    string `env:"NODEKIT_MINIO_PREFIX"`
	MinIOSecure    bool   `env:"NODEKIT_MINIO_SECURE,default:true"`

	// NATS JetStream object store configuration
	NATSURL    string `env:"NODEKIT_NATS_URL,default:nats://127.0.0.1:4222"`
	NATSBucket string `env:"NODEKIT_NATS_BUCKET"`

	// SFTP driver configuration
	SFTPHost       string `env:"NODEKIT_SFTP_HOST"`
	SFTPPort       int    `env:"NODEKIT_SFTP_PORT,default:22"`
	SFTPUsername   string `env:"NODEKIT_SFTP_USERNAME"`
	SFTPPassword   string `env:"NODEKIT_SFTP_PASSWORD"`
	SFTPPrivateKey string `env:"NODEKIT_SFTP_PRIVATE_KEY"` // Path to private key file
	SFTPBasePath   string `env:"NODEKIT_SFTP_BASE_PATH"`

	// WebDAV (Nextcloud) driver configuration
	WebDAVURL      string `env:"NODEKIT_WEBDAV_URL"`
	WebDAVUsername string `env:"NODEKIT_WEBDAV_USERNAME"`
	WebDAVPassword string `env:"NODEKIT_WEBDAV_PASSWORD"`

	// ZIP archive driver configuration (read-only)
	ZipPath string `env:"NODEKIT_ZIP_PATH"`
}

// GetConfig returns config loaded from environment
func GetConfig() (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ArchiveLimits returns the configured unzip limits.
func (c *Config) ArchiveLimits() ArchiveLimits {
	return ArchiveLimits{
		MaxEntries:          c.ArchiveMaxEntries,
		MaxUncompressedSize: c.ArchiveMaxSize,
	}
}

// ObjectOptions returns the flat-store options implied by the config.
func (c *Config) ObjectOptions() []ObjectOption {
	return []ObjectOption{
		WithMarkerName(c.MarkerName),
		WithMarkerOnlyEmpty(c.MarkerOnlyIsEmpty),
	}
}
