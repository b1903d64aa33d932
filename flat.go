package nodekit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// DefaultMarkerName is the object that keeps an empty emulated directory
// visible in a flat store.
const DefaultMarkerName = ".directory"

// ============================================================================
// TreeBuilder
// ============================================================================

// TreeBuilder derives directories from the flat listing of a FlatBackend.
// Nothing is cached: every call lists the store again.
type TreeBuilder struct {
	backend FlatBackend
}

// NewTreeBuilder returns a builder over b.
func NewTreeBuilder(b FlatBackend) *TreeBuilder {
	return &TreeBuilder{backend: b}
}

// listPrefix returns the key prefix of everything below dir.
func listPrefix(dir string) string {
	if dir == "" {
		return ""
	}
	return dir + Separator
}

// Summaries returns every object below dir, following continuation tokens
// until the listing is exhausted.
func (tb *TreeBuilder) Summaries(ctx context.Context, dir string) ([]ObjectSummary, error) {
	prefix := listPrefix(Strip(dir))
	var (
		result []ObjectSummary
		token  string
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := tb.backend.ListPage(ctx, prefix, token)
		if err != nil {
			return nil, BackendError("list", prefix, err)
		}
		result = append(result, page.Objects...)
		if !page.Truncated {
			return result, nil
		}
		if page.NextToken == "" || page.NextToken == token {
			return nil, NewPathError("list", prefix, fmt.Errorf("%w: truncated listing without continuation token", ErrBackend))
		}
		token = page.NextToken
	}
}

// ListLevel returns the direct children of dir, sorted by name. Marker
// objects are only included when includeMarkers is set.
func (tb *TreeBuilder) ListLevel(ctx context.Context, dir string, includeMarkers bool) ([]Node, error) {
	dir = Strip(dir)
	summaries, err := tb.Summaries(ctx, dir)
	if err != nil {
		return nil, err
	}
	return listLevel(dir, summaries, tb.backend.MarkerName(), includeMarkers), nil
}

// BuildTree returns the full hierarchy below root. Marker objects never
// appear as leaves.
func (tb *TreeBuilder) BuildTree(ctx context.Context, root Node) (*Tree[Node], error) {
	summaries, err := tb.Summaries(ctx, root.Path)
	if err != nil {
		return nil, err
	}
	return buildTree(root, summaries, tb.backend.MarkerName()), nil
}

func listLevel(dir string, summaries []ObjectSummary, marker string, includeMarkers bool) []Node {
	prefix := listPrefix(dir)
	var result []Node
	subDirs := make(map[string]struct{})
	for _, summary := range summaries {
		if !strings.HasPrefix(summary.Key, prefix) {
			continue
		}
		rest := summary.Key[len(prefix):]
		if rest == "" {
			continue
		}
		slash := strings.Index(rest, Separator)
		if slash < 0 {
			if includeMarkers || rest != marker {
				result = append(result, newNode(summary.Key, false, summary.Size, summary.LastModified))
			}
			continue
		}
		if slash == 0 {
			continue
		}
		name := rest[:slash]
		if _, seen := subDirs[name]; seen {
			continue
		}
		subDirs[name] = struct{}{}
		result = append(result, newNode(Combine(dir, name), true, 0, summary.LastModified))
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

func buildTree(root Node, summaries []ObjectSummary, marker string) *Tree[Node] {
	prefix := listPrefix(root.Path)
	tree := NewTree(root)
	for _, summary := range summaries {
		if !strings.HasPrefix(summary.Key, prefix) {
			continue
		}
		insert(tree, root.Path, summary.Key[len(prefix):], summary, marker)
	}
	return tree
}

// insert peels the leading segment off rest until a leaf remains.
func insert(tree *Tree[Node], dir, rest string, summary ObjectSummary, marker string) {
	for {
		slash := strings.Index(rest, Separator)
		if slash < 0 {
			if rest != "" && rest != marker {
				tree.AddChild(rest, newNode(summary.Key, false, summary.Size, summary.LastModified))
			}
			return
		}
		name := rest[:slash]
		rest = rest[slash+1:]
		if name == "" {
			continue
		}
		dir = Combine(dir, name)
		path := dir
		tree = tree.Add(name, func() Node {
			return newNode(path, true, 0, summary.LastModified)
		})
	}
}

// ============================================================================
// ObjectBackend
// ============================================================================

// ObjectStore is the minimal surface of a flat object store. Keys are
// relative to whatever bucket and prefix the store was configured with.
type ObjectStore interface {
	// HeadObject returns the summary of key, or an error matching
	// ErrNotExist when the key is missing.
	HeadObject(ctx context.Context, key string) (ObjectSummary, error)
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
	PutObject(ctx context.Context, key string, r io.Reader, size int64) error
	DeleteObject(ctx context.Context, key string) error
	ListObjects(ctx context.Context, prefix, token string) (ObjectPage, error)
}

// ObjectCopier is implemented by stores with a server-side copy.
type ObjectCopier interface {
	CopyObject(ctx context.Context, from, to string) error
}

// ObjectBackend turns an ObjectStore into a FlatBackend by emulating
// directories with marker objects.
type ObjectBackend struct {
	store           ObjectStore
	marker          string
	markerOnlyEmpty bool
	logger          *zap.Logger
}

// ObjectOption configures an ObjectBackend
type ObjectOption func(*ObjectBackend)

// WithMarkerName overrides the directory marker object name.
func WithMarkerName(name string) ObjectOption {
	return func(b *ObjectBackend) {
		if name = Strip(name); name != "" {
			b.marker = name
		}
	}
}

// WithMarkerOnlyEmpty sets whether a directory holding only its marker is
// empty for a non-recursive delete.
func WithMarkerOnlyEmpty(empty bool) ObjectOption {
	return func(b *ObjectBackend) {
		b.markerOnlyEmpty = empty
	}
}

// WithObjectLogger sets the logger for primitive calls.
func WithObjectLogger(logger *zap.Logger) ObjectOption {
	return func(b *ObjectBackend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewObjectBackend wraps store.
func NewObjectBackend(store ObjectStore, opts ...ObjectOption) *ObjectBackend {
	b := &ObjectBackend{
		store:           store,
		marker:          DefaultMarkerName,
		markerOnlyEmpty: true,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Store returns the wrapped object store.
func (b *ObjectBackend) Store() ObjectStore {
	return b.store
}

// MarkerName implements FlatBackend
func (b *ObjectBackend) MarkerName() string {
	return b.marker
}

// MarkerOnlyIsEmpty implements MarkerPolicy
func (b *ObjectBackend) MarkerOnlyIsEmpty() bool {
	return b.markerOnlyEmpty
}

// ListPage implements FlatBackend
func (b *ObjectBackend) ListPage(ctx context.Context, prefix, token string) (ObjectPage, error) {
	b.logger.Debug("listing objects", zap.String("prefix", prefix), zap.Bool("continued", token != ""))
	return b.store.ListObjects(ctx, prefix, token)
}

// Probe implements Backend. A key is a file when the object exists and a
// directory when anything is stored below it.
func (b *ObjectBackend) Probe(ctx context.Context, path string) (Metadata, error) {
	path = Strip(path)
	if path == "" {
		return Metadata{Kind: KindDirectory}, nil
	}
	summary, err := b.store.HeadObject(ctx, path)
	if err == nil {
		return Metadata{Kind: KindFile, Size: summary.Size, LastModified: summary.LastModified}, nil
	}
	if !IsNotExist(err) {
		return Metadata{}, BackendError("probe", path, err)
	}
	page, err := b.store.ListObjects(ctx, listPrefix(path), "")
	if err != nil {
		return Metadata{}, BackendError("probe", path, err)
	}
	if len(page.Objects) == 0 {
		return Metadata{Kind: KindAbsent}, nil
	}
	return Metadata{Kind: KindDirectory}, nil
}

// Open implements Backend
func (b *ObjectBackend) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	b.logger.Debug("getting object", zap.String("key", path))
	rc, err := b.store.GetObject(ctx, path)
	if err != nil {
		return nil, BackendError("open", path, err)
	}
	return rc, nil
}

// Write implements Backend
func (b *ObjectBackend) Write(ctx context.Context, path string, r io.Reader, size int64) error {
	b.logger.Debug("putting object", zap.String("key", path), zap.Int64("size", size))
	return BackendError("write", path, b.store.PutObject(ctx, path, r, size))
}

// DeleteOne implements Backend. Deleting a directory removes its marker
// object, if any.
func (b *ObjectBackend) DeleteOne(ctx context.Context, path string, dir bool) error {
	key := path
	if dir {
		key = Combine(path, b.marker)
	}
	b.logger.Debug("deleting object", zap.String("key", key))
	err := b.store.DeleteObject(ctx, key)
	if dir && IsNotExist(err) {
		return nil
	}
	return BackendError("delete", key, err)
}

// CreateDirectoryMarker implements Backend
func (b *ObjectBackend) CreateDirectoryMarker(ctx context.Context, path string) error {
	path = Strip(path)
	if path == "" {
		return nil
	}
	key := Combine(path, b.marker)
	b.logger.Debug("putting marker", zap.String("key", key))
	return BackendError("mkdirs", path, b.store.PutObject(ctx, key, bytes.NewReader([]byte{1}), 1))
}

// CopyContent implements Copier, using the store's native copy when it has
// one.
func (b *ObjectBackend) CopyContent(ctx context.Context, from, to string) error {
	if copier, ok := b.store.(ObjectCopier); ok {
		b.logger.Debug("copying object", zap.String("from", from), zap.String("to", to))
		return BackendError("copy", from, copier.CopyObject(ctx, from, to))
	}
	summary, err := b.store.HeadObject(ctx, from)
	if err != nil {
		return BackendError("copy", from, err)
	}
	rc, err := b.store.GetObject(ctx, from)
	if err != nil {
		return BackendError("copy", from, err)
	}
	defer rc.Close()
	return BackendError("copy", to, b.store.PutObject(ctx, to, rc, summary.Size))
}

var (
	_ FlatBackend  = (*ObjectBackend)(nil)
	_ Copier       = (*ObjectBackend)(nil)
	_ MarkerPolicy = (*ObjectBackend)(nil)
)
