package nodekit

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zip"
)

type rawEntry struct {
	name    string
	content string
}

// rawArchive writes entries verbatim, including names a well-behaved
// writer would never produce
func rawArchive(t *testing.T, entries ...rawEntry) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: zip.Deflate})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(w, e.content); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return bytes.NewReader(buf.Bytes())
}

// collect reads r and returns "d:name" and "f:name=content" events
func collect(t *testing.T, r *bytes.Reader, opts ...UnzipOption) ([]string, error) {
	t.Helper()
	var events []string
	err := ReadArchive(r, r.Size(), ArchiveHandler{
		Dir: func(e ArchiveEntry) error {
			events = append(events, "d:"+e.Name)
			return nil
		},
		File: func(e ArchiveEntry, content io.Reader) error {
			data, err := io.ReadAll(content)
			if err != nil {
				return err
			}
			events = append(events, "f:"+e.Name+"="+string(data))
			return nil
		},
	}, opts...)
	return events, err
}

func TestReadArchive(t *testing.T) {
	r := rawArchive(t,
		rawEntry{name: "d/"},
		rawEntry{name: "d/f", content: "one"},
		rawEntry{name: "g", content: "two"},
	)
	events, err := collect(t, r)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"d:d/", "f:d/f=one", "f:g=two"}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestReadArchiveIntegrity(t *testing.T) {
	tests := []struct {
		name    string
		entries []rawEntry
		wantErr error
	}{
		{"blank name", []rawEntry{{name: ""}}, ErrCorruptArchive},
		{"whitespace name", []rawEntry{{name: "  "}}, ErrCorruptArchive},
		{"duplicate file", []rawEntry{{name: "a", content: "1"}, {name: "a", content: "2"}}, ErrCorruptArchive},
		{"escaping name", []rawEntry{{name: "a/../../etc/passwd"}}, ErrCorruptArchive},
		{"duplicate directory", []rawEntry{{name: "d/"}, {name: "d/"}, {name: "d/f"}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := collect(t, rawArchive(t, tt.entries...))
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestReadArchiveDuplicateDirectorySkipped(t *testing.T) {
	events, err := collect(t, rawArchive(t, rawEntry{name: "d/"}, rawEntry{name: "d/"}))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"d:d/"}, events); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestReadArchiveNotAZip(t *testing.T) {
	r := bytes.NewReader([]byte("definitely not a zip"))
	_, err := collect(t, r)
	if !IsCorruptArchive(err) {
		t.Errorf("expected ErrCorruptArchive, got %v", err)
	}
}

func TestVisibleEntries(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"a/b/c.txt", true},
		{"a.b/c", true},
		{".hidden", false},
		{"a/.git/config", false},
		{".git/", false},
		{"a/b/.env", false},
	}
	for _, tt := range tests {
		if got := VisibleEntries(ArchiveEntry{Name: tt.name}); got != tt.want {
			t.Errorf("VisibleEntries(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestReadArchivePredicateAndConsumer(t *testing.T) {
	r := rawArchive(t,
		rawEntry{name: "keep", content: "k"},
		rawEntry{name: ".skip", content: "s"},
		rawEntry{name: "dir/.cache/x", content: "s"},
	)
	var consumed []string
	events, err := collect(t, r,
		WithEntryPredicate(VisibleEntries),
		WithEntryConsumer(func(e ArchiveEntry) error {
			consumed = append(consumed, e.Name)
			return nil
		}),
	)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"f:keep=k"}, events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"keep"}, consumed); diff != "" {
		t.Errorf("consumer mismatch (-want +got):\n%s", diff)
	}
}

func TestReadArchiveConsumerError(t *testing.T) {
	stop := errors.New("stop")
	_, err := collect(t, rawArchive(t, rawEntry{name: "a", content: "1"}),
		WithEntryConsumer(func(ArchiveEntry) error { return stop }))
	if !errors.Is(err, stop) {
		t.Errorf("expected consumer error, got %v", err)
	}
}

func TestReadArchiveLimits(t *testing.T) {
	entries := []rawEntry{
		{name: "a", content: strings.Repeat("x", 100)},
		{name: "b", content: strings.Repeat("y", 100)},
	}

	_, err := collect(t, rawArchive(t, entries...), WithArchiveLimits(ArchiveLimits{MaxEntries: 1}))
	if !errors.Is(err, ErrArchiveLimit) {
		t.Errorf("expected ErrArchiveLimit for entries, got %v", err)
	}

	_, err = collect(t, rawArchive(t, entries...), WithArchiveLimits(ArchiveLimits{MaxUncompressedSize: 150}))
	if !errors.Is(err, ErrArchiveLimit) {
		t.Errorf("expected ErrArchiveLimit for size, got %v", err)
	}

	_, err = collect(t, rawArchive(t, entries...), WithArchiveLimits(ArchiveLimits{MaxEntries: 2, MaxUncompressedSize: 200}))
	if err != nil {
		t.Errorf("unexpected error within limits: %v", err)
	}
}

func TestReadArchiveExhaustedSizeLimit(t *testing.T) {
	// the first entry uses the whole allowance, nothing more may follow
	r := rawArchive(t,
		rawEntry{name: "fits", content: strings.Repeat("x", 100)},
		rawEntry{name: "bomb", content: strings.Repeat("y", 5000)},
	)
	events, err := collect(t, r, WithArchiveLimits(ArchiveLimits{MaxUncompressedSize: 100}))
	if !errors.Is(err, ErrArchiveLimit) {
		t.Fatalf("expected ErrArchiveLimit, got %v", err)
	}
	if len(events) != 1 {
		t.Errorf("extracted %d entries, want only the first", len(events))
	}

	r = rawArchive(t,
		rawEntry{name: "fits", content: strings.Repeat("x", 100)},
		rawEntry{name: "empty"},
	)
	if _, err := collect(t, r, WithArchiveLimits(ArchiveLimits{MaxUncompressedSize: 100})); err != nil {
		t.Errorf("an empty entry after an exhausted limit should pass: %v", err)
	}
}

func TestArchiveWriter(t *testing.T) {
	var buf bytes.Buffer
	aw := NewArchiveWriter(&buf)
	if err := aw.AddDir("d", testTime); err != nil {
		t.Fatal(err)
	}
	if err := aw.AddFile("d/f", testTime, strings.NewReader("payload")); err != nil {
		t.Fatal(err)
	}
	if err := aw.Close(); err != nil {
		t.Fatal(err)
	}

	events, err := collect(t, bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"d:d/", "f:d/f=payload"}, events); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSpool(t *testing.T) {
	f, size, cleanup, err := spool(strings.NewReader("spooled"))
	if err != nil {
		t.Fatal(err)
	}
	if size != 7 {
		t.Errorf("size = %d, want 7", size)
	}
	data := make([]byte, size)
	if _, err := f.ReadAt(data, 0); err != nil {
		t.Fatal(err)
	}
	if string(data) != "spooled" {
		t.Errorf("content = %q", data)
	}
	if err := cleanup(); err != nil {
		t.Errorf("cleanup: %v", err)
	}
}
