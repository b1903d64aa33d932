package nodekit

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"go.uber.org/multierr"
)

// ArchiveEntry is one entry of an inbound archive.
type ArchiveEntry struct {
	Name     string
	IsDir    bool
	Size     int64
	Modified time.Time
}

// EntryPredicate decides whether an archive entry is extracted.
type EntryPredicate func(ArchiveEntry) bool

// EntryConsumer observes every accepted entry before it is extracted.
type EntryConsumer func(ArchiveEntry) error

// AcceptAll accepts every entry.
func AcceptAll(ArchiveEntry) bool { return true }

// VisibleEntries rejects entries with any path segment starting with ".".
func VisibleEntries(e ArchiveEntry) bool {
	return !strings.HasPrefix(e.Name, ".") && !strings.Contains(e.Name, "/.")
}

// ArchiveLimits bounds what an unzip may extract. Zero means unlimited.
type ArchiveLimits struct {
	MaxEntries          int
	MaxUncompressedSize int64
}

// UnzipOptions configures reading an archive.
type UnzipOptions struct {
	Predicate EntryPredicate
	Consumer  EntryConsumer
	Limits    ArchiveLimits
}

// UnzipOption configures UnzipOptions
type UnzipOption func(*UnzipOptions)

// WithEntryPredicate only extracts entries accepted by p.
func WithEntryPredicate(p EntryPredicate) UnzipOption {
	return func(o *UnzipOptions) {
		if p != nil {
			o.Predicate = p
		}
	}
}

// WithEntryConsumer calls c for every accepted entry.
func WithEntryConsumer(c EntryConsumer) UnzipOption {
	return func(o *UnzipOptions) {
		o.Consumer = c
	}
}

// WithArchiveLimits bounds entry count and extracted bytes.
func WithArchiveLimits(l ArchiveLimits) UnzipOption {
	return func(o *UnzipOptions) {
		o.Limits = l
	}
}

func newUnzipOptions(opts ...UnzipOption) UnzipOptions {
	o := UnzipOptions{Predicate: AcceptAll}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ============================================================================
// Writing
// ============================================================================

// ArchiveWriter packs entries into a zip stream.
type ArchiveWriter struct {
	zw *zip.Writer
}

// NewArchiveWriter starts an archive on w. Close must be called to write
// the central directory; it does not close w.
func NewArchiveWriter(w io.Writer) *ArchiveWriter {
	return &ArchiveWriter{zw: zip.NewWriter(w)}
}

// AddDir writes a directory entry. The name gets a trailing separator.
func (a *ArchiveWriter) AddDir(name string, modified time.Time) error {
	hdr := &zip.FileHeader{
		Name:     AppendSeparator(name),
		Method:   zip.Store,
		Modified: modified,
	}
	hdr.SetMode(os.ModeDir | 0o755)
	_, err := a.zw.CreateHeader(hdr)
	return err
}

// AddFile writes a file entry with the content of r.
func (a *ArchiveWriter) AddFile(name string, modified time.Time, r io.Reader) error {
	hdr := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	}
	hdr.SetMode(0o644)
	w, err := a.zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, r)
	return err
}

// Close finishes the archive.
func (a *ArchiveWriter) Close() error {
	return a.zw.Close()
}

// ============================================================================
// Reading
// ============================================================================

// ArchiveHandler receives the entries that pass integrity checks, the
// predicate and the consumer.
type ArchiveHandler struct {
	Dir  func(ArchiveEntry) error
	File func(ArchiveEntry, io.Reader) error
}

// ReadArchive reads the archive in r entry by entry. A blank name, a
// repeated file name or a name escaping its target with ".." is reported
// as ErrCorruptArchive. Repeated directory entries are skipped.
func ReadArchive(r io.ReaderAt, size int64, h ArchiveHandler, opts ...UnzipOption) error {
	o := newUnzipOptions(opts...)
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptArchive, err)
	}
	if o.Limits.MaxEntries > 0 && len(zr.File) > o.Limits.MaxEntries {
		return fmt.Errorf("%w: %d entries, at most %d allowed", ErrArchiveLimit, len(zr.File), o.Limits.MaxEntries)
	}

	limited := o.Limits.MaxUncompressedSize > 0
	remaining := o.Limits.MaxUncompressedSize
	seen := make(map[string]struct{}, len(zr.File))
	for _, f := range zr.File {
		entry, err := checkEntry(f, seen)
		if err != nil {
			return err
		}
		if entry == nil || !o.Predicate(*entry) {
			continue
		}
		if o.Consumer != nil {
			if err := o.Consumer(*entry); err != nil {
				return err
			}
		}
		if entry.IsDir {
			if h.Dir != nil {
				if err := h.Dir(*entry); err != nil {
					return err
				}
			}
			continue
		}
		if limited && entry.Size > remaining {
			return NewPathError("unzip", entry.Name, fmt.Errorf("%w: uncompressed size above limit", ErrArchiveLimit))
		}
		written, err := extract(f, *entry, h, limited, remaining)
		if err != nil {
			return err
		}
		if limited {
			remaining -= written
		}
	}
	return nil
}

// checkEntry validates f and returns nil for a repeated directory.
func checkEntry(f *zip.File, seen map[string]struct{}) (*ArchiveEntry, error) {
	name := f.Name
	if isBlank(name) {
		return nil, fmt.Errorf("%w: contains entry with empty name", ErrCorruptArchive)
	}
	isDir := strings.HasSuffix(name, Separator)
	_, dup := seen[name]
	if dup && !isDir {
		return nil, fmt.Errorf("%w: entry '%s' is not unique", ErrCorruptArchive, name)
	}
	if dup {
		return nil, nil
	}
	seen[name] = struct{}{}
	for _, segment := range strings.Split(Strip(name), Separator) {
		if segment == ".." {
			return nil, fmt.Errorf("%w: entry '%s' escapes the target", ErrCorruptArchive, name)
		}
	}
	return &ArchiveEntry{
		Name:     name,
		IsDir:    isDir,
		Size:     int64(f.UncompressedSize64),
		Modified: f.Modified,
	}, nil
}

func extract(f *zip.File, entry ArchiveEntry, h ArchiveHandler, limited bool, remaining int64) (written int64, err error) {
	if h.File == nil {
		return 0, nil
	}
	rc, err := f.Open()
	if err != nil {
		return 0, NewPathError("unzip", entry.Name, fmt.Errorf("%w: %w", ErrCorruptArchive, err))
	}
	defer func() {
		err = multierr.Append(err, rc.Close())
	}()
	counter := &countingReader{r: rc, limited: limited, limit: remaining}
	if err := h.File(entry, counter); err != nil {
		return counter.n, err
	}
	return counter.n, nil
}

var errOverBudget = errors.New("extracted bytes above limit")

// countingReader counts bytes and, when limited, fails once limit is
// crossed. A zero limit admits no bytes.
type countingReader struct {
	r       io.Reader
	n       int64
	limited bool
	limit   int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.limited && c.n > c.limit {
		return n, fmt.Errorf("%w: %w", ErrArchiveLimit, errOverBudget)
	}
	return n, err
}

// spool copies r into a temporary file so it can be read at random
// offsets. The returned cleanup closes and removes the file.
func spool(r io.Reader) (*os.File, int64, func() error, error) {
	f, err := os.CreateTemp("", "nodekit-unzip-*.zip")
	if err != nil {
		return nil, 0, nil, err
	}
	cleanup := func() error {
		return multierr.Combine(f.Close(), os.Remove(f.Name()))
	}
	n, err := io.Copy(f, r)
	if err != nil {
		return nil, 0, nil, multierr.Append(err, cleanup())
	}
	return f, n, cleanup, nil
}
