package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gobeaver/nodekit"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// backend closes the NATS connection with the service
type backend struct {
	*nodekit.ObjectBackend
	conn *nats.Conn
}

func (b *backend) Close() error {
	b.conn.Close()
	return nil
}

func init() {
	nodekit.RegisterDriver("nats", func(cfg *nodekit.Config) (nodekit.Backend, error) {
		conn, err := nats.Connect(cfg.NATSURL,
			nats.Name("nodekit"),
			nats.Timeout(10*time.Second),
			nats.MaxReconnects(5),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to nats: %w", err)
		}

		js, err := jetstream.New(conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create jetstream context: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		os, err := js.ObjectStore(ctx, cfg.NATSBucket)
		if errors.Is(err, jetstream.ErrBucketNotFound) {
			os, err = js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{Bucket: cfg.NATSBucket})
		}
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to open object store %s: %w", cfg.NATSBucket, err)
		}

		return &backend{ObjectBackend: New(os, cfg.ObjectOptions()...), conn: conn}, nil
	})
}
