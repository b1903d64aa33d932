package azure

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/gobeaver/nodekit"
)

// Container is the set of blob calls the store makes. A *container.Client is
// adapted to it by NewContainer.
type Container interface {
	Properties(ctx context.Context, blob string) (size int64, modified time.Time, err error)
	Download(ctx context.Context, blob string) (io.ReadCloser, error)
	Upload(ctx context.Context, blob string, r io.Reader) error
	Delete(ctx context.Context, blob string) error
	List(ctx context.Context, prefix, marker string, maxResults int32) (items []*container.BlobItem, next string, err error)
}

type containerClient struct {
	c *container.Client
}

// NewContainer adapts an azblob container client
func NewContainer(c *container.Client) Container {
	return &containerClient{c: c}
}

func (c *containerClient) Properties(ctx context.Context, blob string) (int64, time.Time, error) {
	props, err := c.c.NewBlobClient(blob).GetProperties(ctx, nil)
	if err != nil {
		return 0, time.Time{}, err
	}
	var modified time.Time
	if props.LastModified != nil {
		modified = *props.LastModified
	}
	var size int64
	if props.ContentLength != nil {
		size = *props.ContentLength
	}
	return size, modified, nil
}

func (c *containerClient) Download(ctx context.Context, blob string) (io.ReadCloser, error) {
	resp, err := c.c.NewBlobClient(blob).DownloadStream(ctx, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *containerClient) Upload(ctx context.Context, blob string, r io.Reader) error {
	_, err := c.c.NewBlockBlobClient(blob).UploadStream(ctx, r, nil)
	return err
}

func (c *containerClient) Delete(ctx context.Context, blob string) error {
	_, err := c.c.NewBlobClient(blob).Delete(ctx, nil)
	return err
}

func (c *containerClient) List(ctx context.Context, prefix, marker string, maxResults int32) ([]*container.BlobItem, string, error) {
	opts := &container.ListBlobsFlatOptions{Prefix: to.Ptr(prefix)}
	if marker != "" {
		opts.Marker = to.Ptr(marker)
	}
	if maxResults > 0 {
		opts.MaxResults = to.Ptr(maxResults)
	}
	resp, err := c.c.NewListBlobsFlatPager(opts).NextPage(ctx)
	if err != nil {
		return nil, "", err
	}
	var items []*container.BlobItem
	if resp.Segment != nil {
		items = resp.Segment.BlobItems
	}
	var next string
	if resp.NextMarker != nil {
		next = *resp.NextMarker
	}
	return items, next, nil
}

// Store is a nodekit.ObjectStore over an Azure Blob Storage container.
//
// Server-side copies in Azure complete asynchronously, so the store does not
// implement nodekit.ObjectCopier and copies stream through the client.
type Store struct {
	container Container
	prefix    string
	pageSize  int32
}

// StoreOption is a function that configures a Store
type StoreOption func(*Store)

// WithPrefix keeps every blob of the store below prefix
func WithPrefix(prefix string) StoreOption {
	return func(s *Store) {
		prefix = nodekit.Strip(prefix)
		if prefix != "" {
			prefix += "/"
		}
		s.prefix = prefix
	}
}

// WithPageSize sets MaxResults for listings
func WithPageSize(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = int32(n)
		}
	}
}

// NewStore creates an Azure object store
func NewStore(c Container, options ...StoreOption) *Store {
	s := &Store{container: c}
	for _, option := range options {
		option(s)
	}
	return s
}

// New creates a flat nodekit backend over a blob container
func New(c *container.Client, storeOpts []StoreOption, opts ...nodekit.ObjectOption) *nodekit.ObjectBackend {
	return nodekit.NewObjectBackend(NewStore(NewContainer(c), storeOpts...), opts...)
}

func (s *Store) blob(key string) string {
	return s.prefix + key
}

// HeadObject implements nodekit.ObjectStore
func (s *Store) HeadObject(ctx context.Context, key string) (nodekit.ObjectSummary, error) {
	size, modified, err := s.container.Properties(ctx, s.blob(key))
	if err != nil {
		return nodekit.ObjectSummary{}, mapAzureError("head", key, err)
	}
	return nodekit.ObjectSummary{Key: key, Size: size, LastModified: modified}, nil
}

// GetObject implements nodekit.ObjectStore
func (s *Store) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := s.container.Download(ctx, s.blob(key))
	if err != nil {
		return nil, mapAzureError("get", key, err)
	}
	return rc, nil
}

// PutObject implements nodekit.ObjectStore. Block uploads stream, so size
// is not needed.
func (s *Store) PutObject(ctx context.Context, key string, r io.Reader, size int64) error {
	if err := s.container.Upload(ctx, s.blob(key), r); err != nil {
		return mapAzureError("put", key, err)
	}
	return nil
}

// DeleteObject implements nodekit.ObjectStore
func (s *Store) DeleteObject(ctx context.Context, key string) error {
	err := s.container.Delete(ctx, s.blob(key))
	if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return mapAzureError("delete", key, err)
	}
	return nil
}

// ListObjects implements nodekit.ObjectStore
func (s *Store) ListObjects(ctx context.Context, prefix, token string) (nodekit.ObjectPage, error) {
	items, next, err := s.container.List(ctx, s.blob(prefix), token, s.pageSize)
	if err != nil {
		return nodekit.ObjectPage{}, mapAzureError("list", prefix, err)
	}

	page := nodekit.ObjectPage{
		Objects:   make([]nodekit.ObjectSummary, 0, len(items)),
		NextToken: next,
		Truncated: next != "",
	}
	for _, item := range items {
		if item.Name == nil {
			continue
		}
		summary := nodekit.ObjectSummary{Key: strings.TrimPrefix(*item.Name, s.prefix)}
		if item.Properties != nil {
			if item.Properties.ContentLength != nil {
				summary.Size = *item.Properties.ContentLength
			}
			if item.Properties.LastModified != nil {
				summary.LastModified = *item.Properties.LastModified
			}
		}
		page.Objects = append(page.Objects, summary)
	}
	return page, nil
}

// mapAzureError maps Azure errors to nodekit errors
func mapAzureError(op, path string, err error) error {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return nodekit.NewPathError(op, path, nodekit.ErrNotExist)
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return nodekit.NewPathError(op, path, nodekit.ErrNotExist)
		case http.StatusForbidden:
			return nodekit.NewPathError(op, path, nodekit.ErrPermission)
		}
	}
	return nodekit.BackendError(op, path, err)
}

var _ nodekit.ObjectStore = (*Store)(nil)
