package minio

import (
	"fmt"

	"github.com/gobeaver/nodekit"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

func init() {
	nodekit.RegisterDriver("minio", func(cfg *nodekit.Config) (nodekit.Backend, error) {
		core, err := minio.NewCore(cfg.MinIOEndpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIOAccessKey, cfg.MinIOSecretKey, ""),
			Secure: cfg.MinIOSecure,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create minio client: %w", err)
		}

		storeOpts := []StoreOption{WithPageSize(cfg.ListPageSize)}
		if cfg.MinIOPrefix != "" {
			storeOpts = append(storeOpts, WithPrefix(cfg.MinIOPrefix))
		}
		return New(core, cfg.MinIOBucket, storeOpts, cfg.ObjectOptions()...), nil
	})
}
