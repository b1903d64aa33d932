package nodekit

import (
	"context"
	"io"
	"time"
)

// ============================================================================
// Backend contract
// ============================================================================

// Backend is the primitive surface every storage driver provides. Paths are
// always stripped and separator-joined; "" is the root.
//
// The core never asks a backend to walk, copy a tree or pack an archive; it
// only composes these primitives. A backend additionally implements exactly
// one listing interface: HierarchicalBackend or FlatBackend.
type Backend interface {
	// Probe reports what exists at path. A missing path is reported as
	// KindAbsent with a nil error.
	Probe(ctx context.Context, path string) (Metadata, error)

	// Open returns the content of the file at path.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Write stores r at path, replacing any existing file and creating
	// intermediate directories. size is -1 when unknown.
	Write(ctx context.Context, path string, r io.Reader, size int64) error

	// DeleteOne removes a single file, or a single directory entry when dir
	// is true. It never recurses.
	DeleteOne(ctx context.Context, path string, dir bool) error

	// CreateDirectoryMarker makes path exist as a directory, including its
	// parents.
	CreateDirectoryMarker(ctx context.Context, path string) error
}

// HierarchicalBackend is a backend with native directories.
type HierarchicalBackend interface {
	Backend

	// ListImmediate returns the direct children of the directory at path.
	ListImmediate(ctx context.Context, path string) ([]Entry, error)
}

// FlatBackend is a backend that stores keys without directories. Directory
// structure is rebuilt from prefix listings by TreeBuilder.
type FlatBackend interface {
	Backend

	// ListPage returns one page of objects whose key starts with prefix.
	// token is "" for the first page.
	ListPage(ctx context.Context, prefix, token string) (ObjectPage, error)

	// MarkerName is the reserved object name that keeps an otherwise empty
	// directory visible.
	MarkerName() string
}

// ObjectSummary is one key of a flat listing, relative to the backend root.
type ObjectSummary struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectPage is a single page of a flat listing.
type ObjectPage struct {
	Objects   []ObjectSummary
	NextToken string
	Truncated bool
}

// ============================================================================
// Optional capabilities
// ============================================================================

// Copier is implemented by backends with a native copy. Without it the core
// streams the content through Open and Write.
type Copier interface {
	CopyContent(ctx context.Context, from, to string) error
}

// CreationTimer is implemented by backends that track creation times.
type CreationTimer interface {
	CreationTime(ctx context.Context, path string) (time.Time, error)
}

// MarkerPolicy decides whether a directory holding nothing but its marker
// object counts as empty for a non-recursive delete. Flat backends without
// a policy are treated as if MarkerOnlyIsEmpty returned true.
type MarkerPolicy interface {
	MarkerOnlyIsEmpty() bool
}

// Closer is implemented by backends holding connections.
type Closer interface {
	Close() error
}

func markerOnlyIsEmpty(b Backend) bool {
	if p, ok := b.(MarkerPolicy); ok {
		return p.MarkerOnlyIsEmpty()
	}
	return true
}
