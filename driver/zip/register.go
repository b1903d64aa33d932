package zip

import (
	"fmt"

	"github.com/gobeaver/nodekit"
)

func init() {
	nodekit.RegisterDriver("zip", func(cfg *nodekit.Config) (nodekit.Backend, error) {
		if cfg.ZipPath == "" {
			return nil, fmt.Errorf("zip driver requires ZipPath to be set to the archive path")
		}
		return Open(cfg.ZipPath)
	})
}
