package cli

import (
	"fmt"

	"github.com/gobeaver/nodekit"
	"github.com/spf13/cobra"
)

// ServiceFactory builds the service a command runs against.
type ServiceFactory func(cfg *nodekit.Config) (*nodekit.Service, error)

type rootFlags struct {
	driver    string
	localPath string
	zipPath   string
	logLevel  string
}

// NewRoot returns the nodekit command tree. Without a factory the service is
// built from the environment with nodekit.NewFromConfig; flags override the
// matching BEAVER_NODEKIT_* variables.
func NewRoot(factory ServiceFactory) *cobra.Command {
	if factory == nil {
		factory = func(cfg *nodekit.Config) (*nodekit.Service, error) {
			return nodekit.NewFromConfig(cfg)
		}
	}
	flags := &rootFlags{}
	var svc *nodekit.Service

	cmd := &cobra.Command{
		Use:           "nodekit",
		Short:         "nodekit browses and edits files on any configured storage backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := nodekit.GetConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			flags.apply(cmd, cfg)
			svc, err = factory(cfg)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if svc == nil {
				return nil
			}
			return svc.Close()
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.driver, "driver", "d", "", "storage driver (local, s3, gcs, azure, minio, nats, sftp, webdav, zip, memory)")
	pf.StringVar(&flags.localPath, "local-path", "", "base directory of the local driver")
	pf.StringVar(&flags.zipPath, "zip-path", "", "archive opened by the zip driver")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	get := func() *nodekit.Service { return svc }
	cmd.AddCommand(
		newLsCmd(get),
		newTreeCmd(get),
		newStatCmd(get),
		newCatCmd(get),
		newPutCmd(get),
		newMkdirCmd(get),
		newCpCmd(get),
		newMvCmd(get),
		newRmCmd(get),
		newDuCmd(get),
		newCountCmd(get),
		newFindCmd(get),
		newSumCmd(get),
		newZipCmd(get),
		newUnzipCmd(get),
		newDriversCmd(),
	)
	return cmd
}

func (f *rootFlags) apply(cmd *cobra.Command, cfg *nodekit.Config) {
	pf := cmd.Flags()
	if pf.Changed("driver") {
		cfg.Driver = f.driver
	}
	if pf.Changed("local-path") {
		cfg.LocalBasePath = f.localPath
	}
	if pf.Changed("zip-path") {
		cfg.ZipPath = f.zipPath
	}
	if pf.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
}
