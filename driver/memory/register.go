package memory

import "github.com/gobeaver/nodekit"

func init() {
	nodekit.RegisterDriver("memory", func(cfg *nodekit.Config) (nodekit.Backend, error) {
		return New(), nil
	})
	nodekit.RegisterDriver("memory-flat", func(cfg *nodekit.Config) (nodekit.Backend, error) {
		return NewFlat([]ObjectStoreOption{WithPageSize(cfg.ListPageSize)}, cfg.ObjectOptions()...), nil
	})
}
