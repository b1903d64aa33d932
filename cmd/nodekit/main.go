package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gobeaver/nodekit/internal/cli"

	_ "github.com/gobeaver/nodekit/driver/azure"
	_ "github.com/gobeaver/nodekit/driver/gcs"
	_ "github.com/gobeaver/nodekit/driver/local"
	_ "github.com/gobeaver/nodekit/driver/memory"
	_ "github.com/gobeaver/nodekit/driver/minio"
	_ "github.com/gobeaver/nodekit/driver/nats"
	_ "github.com/gobeaver/nodekit/driver/s3"
	_ "github.com/gobeaver/nodekit/driver/sftp"
	_ "github.com/gobeaver/nodekit/driver/webdav"
	_ "github.com/gobeaver/nodekit/driver/zip"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRoot(nil).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "nodekit:", err)
		stop()
		os.Exit(1)
	}
}
