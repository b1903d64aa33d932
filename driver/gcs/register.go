package gcs

import (
	"context"

	"cloud.google.com/go/storage"
	"github.com/gobeaver/nodekit"
	"google.golang.org/api/option"
)

func init() {
	nodekit.RegisterDriver("gcs", func(cfg *nodekit.Config) (nodekit.Backend, error) {
		ctx := context.Background()

		// Without a credentials file the client uses GOOGLE_APPLICATION_CREDENTIALS
		// or the default credentials
		var clientOpts []option.ClientOption
		if cfg.GCSCredentialsFile != "" {
			clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.GCSCredentialsFile))
		}
		client, err := storage.NewClient(ctx, clientOpts...)
		if err != nil {
			return nil, err
		}

		storeOpts := []StoreOption{WithPageSize(cfg.ListPageSize)}
		if cfg.GCSPrefix != "" {
			storeOpts = append(storeOpts, WithPrefix(cfg.GCSPrefix))
		}
		return New(client, cfg.GCSBucket, storeOpts, cfg.ObjectOptions()...), nil
	})
}
