package nodekit

import (
	"context"
	"errors"
	"io"
	"time"
)

// ============================================================================
// Read-only Backend Decorator
// ============================================================================

// ReadOnlyOptions configures a read-only backend.
type ReadOnlyOptions struct {
	// AllowCreateDir permits directory creation even in read-only mode.
	AllowCreateDir bool

	// AllowDelete permits deletion in read-only mode.
	AllowDelete bool

	// OnWriteAttempt is called for every blocked mutation. Returning nil
	// lets the mutation through.
	OnWriteAttempt func(op, path string) error
}

// ReadOnlyOption is a functional option for NewReadOnly.
type ReadOnlyOption func(*ReadOnlyOptions)

// WithAllowCreateDir allows directory creation in read-only mode.
func WithAllowCreateDir(allow bool) ReadOnlyOption {
	return func(o *ReadOnlyOptions) {
		o.AllowCreateDir = allow
	}
}

// WithAllowDelete allows deletion in read-only mode.
func WithAllowDelete(allow bool) ReadOnlyOption {
	return func(o *ReadOnlyOptions) {
		o.AllowDelete = allow
	}
}

// WithWriteAttemptHandler sets a custom handler for write attempts.
func WithWriteAttemptHandler(handler func(op, path string) error) ReadOnlyOption {
	return func(o *ReadOnlyOptions) {
		o.OnWriteAttempt = handler
	}
}

// NewReadOnly wraps b so that every mutation fails with ErrReadOnly. The
// result keeps b's listing kind, so it can be passed to New.
//
//	svc, _ := nodekit.New(nodekit.NewReadOnly(backend))
//	err := svc.SaveText(ctx, "x", "a.txt") // wraps ErrReadOnly
func NewReadOnly(b Backend, opts ...ReadOnlyOption) Backend {
	options := ReadOnlyOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	ro := readOnly{b: b, opts: options}
	switch lb := b.(type) {
	case FlatBackend:
		return &readOnlyFlat{readOnly: ro, flat: lb}
	case HierarchicalBackend:
		return &readOnlyHierarchical{readOnly: ro, hier: lb}
	default:
		return &ro
	}
}

type readOnly struct {
	b    Backend
	opts ReadOnlyOptions
}

func (r *readOnly) blocked(op, path string) error {
	if r.opts.OnWriteAttempt != nil {
		if err := r.opts.OnWriteAttempt(op, path); err != nil {
			return &PathError{Op: op, Path: path, Err: err}
		}
		return nil
	}
	return &PathError{Op: op, Path: path, Err: ErrReadOnly}
}

// Unwrap returns the wrapped backend.
func (r *readOnly) Unwrap() Backend { return r.b }

func (r *readOnly) Probe(ctx context.Context, path string) (Metadata, error) {
	return r.b.Probe(ctx, path)
}

func (r *readOnly) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	return r.b.Open(ctx, path)
}

func (r *readOnly) Write(ctx context.Context, path string, rd io.Reader, size int64) error {
	if err := r.blocked("write", path); err != nil {
		return err
	}
	return r.b.Write(ctx, path, rd, size)
}

func (r *readOnly) DeleteOne(ctx context.Context, path string, dir bool) error {
	if !r.opts.AllowDelete {
		if err := r.blocked("delete", path); err != nil {
			return err
		}
	}
	return r.b.DeleteOne(ctx, path, dir)
}

func (r *readOnly) CreateDirectoryMarker(ctx context.Context, path string) error {
	if !r.opts.AllowCreateDir {
		if err := r.blocked("mkdirs", path); err != nil {
			return err
		}
	}
	return r.b.CreateDirectoryMarker(ctx, path)
}

// CreationTime delegates when the wrapped backend tracks creation times.
func (r *readOnly) CreationTime(ctx context.Context, path string) (time.Time, error) {
	if ct, ok := r.b.(CreationTimer); ok {
		return ct.CreationTime(ctx, path)
	}
	return time.Time{}, &PathError{Op: "creationtime", Path: path, Err: ErrNotSupported}
}

type readOnlyFlat struct {
	readOnly
	flat FlatBackend
}

func (r *readOnlyFlat) ListPage(ctx context.Context, prefix, token string) (ObjectPage, error) {
	return r.flat.ListPage(ctx, prefix, token)
}

func (r *readOnlyFlat) MarkerName() string { return r.flat.MarkerName() }

func (r *readOnlyFlat) MarkerOnlyIsEmpty() bool { return markerOnlyIsEmpty(r.flat) }

type readOnlyHierarchical struct {
	readOnly
	hier HierarchicalBackend
}

func (r *readOnlyHierarchical) ListImmediate(ctx context.Context, path string) ([]Entry, error) {
	return r.hier.ListImmediate(ctx, path)
}

var (
	_ FlatBackend         = (*readOnlyFlat)(nil)
	_ MarkerPolicy        = (*readOnlyFlat)(nil)
	_ HierarchicalBackend = (*readOnlyHierarchical)(nil)
	_ CreationTimer       = (*readOnly)(nil)
)

// IsReadOnlyError checks if an error is due to read-only restrictions.
func IsReadOnlyError(err error) bool {
	return errors.Is(err, ErrReadOnly)
}
