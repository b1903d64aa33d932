package local

import "github.com/gobeaver/nodekit"

func init() {
	nodekit.RegisterDriver("local", func(cfg *nodekit.Config) (nodekit.Backend, error) {
		return New(cfg.LocalBasePath)
	})
}
