package azure

import (
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/gobeaver/nodekit"
)

func init() {
	nodekit.RegisterDriver("azure", func(cfg *nodekit.Config) (nodekit.Backend, error) {
		if cfg.AzureAccountName == "" || cfg.AzureAccountKey == "" {
			return nil, fmt.Errorf("azure account name and key are required")
		}

		if cfg.AzureContainerName == "" {
			return nil, fmt.Errorf("azure container name is required")
		}

		// Build service URL
		serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AzureAccountName)
		if cfg.AzureEndpoint != "" {
			serviceURL = cfg.AzureEndpoint
		}

		cred, err := azblob.NewSharedKeyCredential(cfg.AzureAccountName, cfg.AzureAccountKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure credential: %w", err)
		}

		client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure client: %w", err)
		}

		storeOpts := []StoreOption{WithPageSize(cfg.ListPageSize)}
		if cfg.AzurePrefix != "" {
			storeOpts = append(storeOpts, WithPrefix(cfg.AzurePrefix))
		}
		containerClient := client.ServiceClient().NewContainerClient(cfg.AzureContainerName)
		return New(containerClient, storeOpts, cfg.ObjectOptions()...), nil
	})
}
