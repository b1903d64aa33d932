package webdav

import (
	"fmt"

	"github.com/gobeaver/nodekit"
)

func init() {
	nodekit.RegisterDriver("webdav", func(cfg *nodekit.Config) (nodekit.Backend, error) {
		if cfg.WebDAVURL == "" {
			return nil, fmt.Errorf("WebDAV URL is required")
		}
		return New(cfg.WebDAVURL, WithBasicAuth(cfg.WebDAVUsername, cfg.WebDAVPassword))
	})
}
