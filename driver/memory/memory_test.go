package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gobeaver/nodekit"
)

func readAll(t *testing.T, a *Adapter, path string) string {
	t.Helper()
	rc, err := a.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func entryNames(entries []nodekit.Entry) []string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	return names
}

func TestNew(t *testing.T) {
	t.Run("creates adapter with default config", func(t *testing.T) {
		a := New()
		if a.maxSize != 0 {
			t.Errorf("expected maxSize=0, got %d", a.maxSize)
		}
		md, err := a.Probe(context.Background(), "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !md.IsDir() {
			t.Error("expected root to be a directory")
		}
	})

	t.Run("creates adapter with max size", func(t *testing.T) {
		a := New(Config{MaxSize: 1024})
		if a.maxSize != 1024 {
			t.Errorf("expected maxSize=1024, got %d", a.maxSize)
		}
	})
}

func TestWrite(t *testing.T) {
	ctx := context.Background()

	t.Run("writes file and creates parents", func(t *testing.T) {
		a := New()
		if err := a.Write(ctx, "a/b/test.txt", strings.NewReader("hello world"), -1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, dir := range []string{"a", "a/b"} {
			md, _ := a.Probe(ctx, dir)
			if !md.IsDir() {
				t.Errorf("expected %s to be a directory, got %v", dir, md.Kind)
			}
		}
		if got := readAll(t, a, "a/b/test.txt"); got != "hello world" {
			t.Errorf("expected content %q, got %q", "hello world", got)
		}
		if a.Size() != 11 {
			t.Errorf("expected size=11, got %d", a.Size())
		}
	})

	t.Run("rejects path traversal", func(t *testing.T) {
		a := New()
		err := a.Write(ctx, "../etc/passwd", strings.NewReader("x"), -1)
		if !errors.Is(err, nodekit.ErrInvalidPath) {
			t.Errorf("expected ErrInvalidPath, got %v", err)
		}
	})

	t.Run("respects max size limit", func(t *testing.T) {
		a := New(Config{MaxSize: 10})
		err := a.Write(ctx, "large.txt", strings.NewReader("this is too large"), -1)
		if !errors.Is(err, nodekit.ErrBackend) {
			t.Errorf("expected ErrBackend, got %v", err)
		}
	})

	t.Run("overwrite adjusts size and keeps creation time", func(t *testing.T) {
		a := New()
		first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		a.now = func() time.Time { return first }
		_ = a.Write(ctx, "f", strings.NewReader("12345"), -1)

		a.now = func() time.Time { return first.Add(time.Hour) }
		_ = a.Write(ctx, "f", strings.NewReader("12"), -1)

		if a.Size() != 2 {
			t.Errorf("expected size=2, got %d", a.Size())
		}
		created, err := a.CreationTime(ctx, "f")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !created.Equal(first) {
			t.Errorf("expected creation time %v, got %v", first, created)
		}
		md, _ := a.Probe(ctx, "f")
		if !md.LastModified.Equal(first.Add(time.Hour)) {
			t.Errorf("expected modification time to advance, got %v", md.LastModified)
		}
	})

	t.Run("cannot write over a directory", func(t *testing.T) {
		a := New()
		_ = a.CreateDirectoryMarker(ctx, "dir")
		err := a.Write(ctx, "dir", strings.NewReader("x"), -1)
		if !errors.Is(err, nodekit.ErrIsDir) {
			t.Errorf("expected ErrIsDir, got %v", err)
		}
	})

	t.Run("cannot nest under a file", func(t *testing.T) {
		a := New()
		_ = a.Write(ctx, "file", strings.NewReader("x"), -1)
		err := a.Write(ctx, "file/child", strings.NewReader("y"), -1)
		if !errors.Is(err, nodekit.ErrNotDir) {
			t.Errorf("expected ErrNotDir, got %v", err)
		}
	})
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	a := New()
	_ = a.Write(ctx, "f.txt", strings.NewReader("data"), -1)
	_ = a.CreateDirectoryMarker(ctx, "d")

	if _, err := a.Open(ctx, "missing"); !errors.Is(err, nodekit.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
	if _, err := a.Open(ctx, "d"); !errors.Is(err, nodekit.ErrIsDir) {
		t.Errorf("expected ErrIsDir, got %v", err)
	}

	// Readers are isolated from later writes
	rc, _ := a.Open(ctx, "f.txt")
	_ = a.Write(ctx, "f.txt", strings.NewReader("changed"), -1)
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "data" {
		t.Errorf("expected snapshot %q, got %q", "data", data)
	}
}

func TestDeleteOne(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes file", func(t *testing.T) {
		a := New()
		_ = a.Write(ctx, "f", strings.NewReader("abc"), -1)
		if err := a.DeleteOne(ctx, "f", false); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a.FileCount() != 0 || a.Size() != 0 {
			t.Errorf("expected empty adapter, got %d files, %d bytes", a.FileCount(), a.Size())
		}
	})

	t.Run("missing file", func(t *testing.T) {
		a := New()
		if err := a.DeleteOne(ctx, "f", false); !errors.Is(err, nodekit.ErrNotExist) {
			t.Errorf("expected ErrNotExist, got %v", err)
		}
	})

	t.Run("directory must be empty", func(t *testing.T) {
		a := New()
		_ = a.Write(ctx, "d/f", strings.NewReader("abc"), -1)
		if err := a.DeleteOne(ctx, "d", true); !errors.Is(err, nodekit.ErrNotEmpty) {
			t.Errorf("expected ErrNotEmpty, got %v", err)
		}
		_ = a.DeleteOne(ctx, "d/f", false)
		if err := a.DeleteOne(ctx, "d", true); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		md, _ := a.Probe(ctx, "d")
		if md.Exists() {
			t.Error("expected directory to be gone")
		}
	})

	t.Run("root cannot be deleted", func(t *testing.T) {
		a := New()
		if err := a.DeleteOne(ctx, "", true); !errors.Is(err, nodekit.ErrInvalidPath) {
			t.Errorf("expected ErrInvalidPath, got %v", err)
		}
	})
}

func TestListImmediate(t *testing.T) {
	ctx := context.Background()
	a := New()
	_ = a.Write(ctx, "x/a", strings.NewReader("1"), -1)
	_ = a.Write(ctx, "x/b/a", strings.NewReader("22"), -1)
	_ = a.Write(ctx, "x/z", strings.NewReader("333"), -1)
	_ = a.Write(ctx, "xy", strings.NewReader("4"), -1)

	entries, err := a.ListImmediate(ctx, "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := entryNames(entries)
	want := []string{"a", "b", "z"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	for _, e := range entries {
		if e.Name == "b" && !e.IsDir() {
			t.Error("expected b to be a directory")
		}
		if e.Name == "z" && e.Size != 3 {
			t.Errorf("expected z size 3, got %d", e.Size)
		}
	}

	root, _ := a.ListImmediate(ctx, "")
	if fmt.Sprint(entryNames(root)) != "[x xy]" {
		t.Errorf("unexpected root listing %v", entryNames(root))
	}

	if _, err := a.ListImmediate(ctx, "xy"); !errors.Is(err, nodekit.ErrNotDir) {
		t.Errorf("expected ErrNotDir, got %v", err)
	}
	if _, err := a.ListImmediate(ctx, "nope"); !errors.Is(err, nodekit.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestCopyContent(t *testing.T) {
	ctx := context.Background()
	a := New()
	_ = a.Write(ctx, "src", strings.NewReader("payload"), -1)

	if err := a.CopyContent(ctx, "src", "deep/dst"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := readAll(t, a, "deep/dst"); got != "payload" {
		t.Errorf("expected %q, got %q", "payload", got)
	}
	if a.Size() != 14 {
		t.Errorf("expected size=14, got %d", a.Size())
	}
	if err := a.CopyContent(ctx, "missing", "x"); !errors.Is(err, nodekit.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	a := New()
	_ = a.Write(ctx, "a/b", strings.NewReader("x"), -1)
	a.Clear()
	if a.FileCount() != 0 || a.Size() != 0 {
		t.Error("expected adapter to be empty")
	}
	md, _ := a.Probe(ctx, "a")
	if md.Exists() {
		t.Error("expected directories to be cleared")
	}
}

func TestConcurrency(t *testing.T) {
	ctx := context.Background()
	a := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := fmt.Sprintf("dir%d/file.txt", i%5)
			_ = a.Write(ctx, path, strings.NewReader("content"), -1)
			_, _ = a.Probe(ctx, path)
			_, _ = a.ListImmediate(ctx, "")
		}(i)
	}
	wg.Wait()

	if a.FileCount() != 5 {
		t.Errorf("expected 5 files, got %d", a.FileCount())
	}
}

func TestChildName(t *testing.T) {
	tests := []struct {
		dir, path string
		want      string
		ok        bool
	}{
		{"", "a", "a", true},
		{"", "a/b", "", false},
		{"a", "a/b", "b", true},
		{"a", "ab/c", "", false},
		{"a", "a", "", false},
		{"a", "a/b/c", "", false},
	}
	for _, tt := range tests {
		got, ok := childName(tt.dir, tt.path)
		if got != tt.want || ok != tt.ok {
			t.Errorf("childName(%q, %q) = %q, %v; want %q, %v", tt.dir, tt.path, got, ok, tt.want, tt.ok)
		}
	}
}

func TestObjectStoreListing(t *testing.T) {
	tests := []struct {
		name      string
		keys      []string
		wantKeys  string
		wantPages int
	}{
		{
			name:      "last page full",
			keys:      []string{"p/c", "p/a", "p/b", "q/a", "p/d"},
			wantKeys:  "[p/a p/b p/c p/d]",
			wantPages: 2,
		},
		{
			name:      "last page partial",
			keys:      []string{"p/c", "p/a", "p/e", "p/b", "q/a", "p/d"},
			wantKeys:  "[p/a p/b p/c p/d p/e]",
			wantPages: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := NewObjectStore(WithPageSize(2))
			for _, k := range tt.keys {
				if err := s.PutObject(ctx, k, strings.NewReader(k), -1); err != nil {
					t.Fatalf("put %s: %v", k, err)
				}
			}

			var keys []string
			token := ""
			pages := 0
			for {
				page, err := s.ListObjects(ctx, "p/", token)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				pages++
				for _, o := range page.Objects {
					keys = append(keys, o.Key)
				}
				if !page.Truncated {
					if page.NextToken != "" {
						t.Errorf("expected empty token on last page, got %q", page.NextToken)
					}
					break
				}
				token = page.NextToken
			}

			if fmt.Sprint(keys) != tt.wantKeys {
				t.Errorf("unexpected keys %v", keys)
			}
			if pages != tt.wantPages || s.ListCalls() != tt.wantPages {
				t.Errorf("expected %d pages, got %d (calls %d)", tt.wantPages, pages, s.ListCalls())
			}
		})
	}
}

func TestObjectStoreObjects(t *testing.T) {
	ctx := context.Background()
	s := NewObjectStore()

	if _, err := s.HeadObject(ctx, "k"); !errors.Is(err, nodekit.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
	if err := s.DeleteObject(ctx, "k"); err != nil {
		t.Errorf("deleting a missing key should succeed, got %v", err)
	}

	_ = s.PutObject(ctx, "k", strings.NewReader("value"), 5)
	sum, err := s.HeadObject(ctx, "k")
	if err != nil || sum.Size != 5 {
		t.Fatalf("unexpected head result %+v, %v", sum, err)
	}
	if err := s.CopyObject(ctx, "k", "k2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rc, err := s.GetObject(ctx, "k2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "value" {
		t.Errorf("expected %q, got %q", "value", data)
	}
	if fmt.Sprint(s.Keys()) != "[k k2]" {
		t.Errorf("unexpected keys %v", s.Keys())
	}
}

func TestNewFlat(t *testing.T) {
	ctx := context.Background()
	b := NewFlat([]ObjectStoreOption{WithPageSize(1)}, nodekit.WithMarkerName(".keep"))
	if b.MarkerName() != ".keep" {
		t.Errorf("expected marker .keep, got %s", b.MarkerName())
	}
	if err := b.CreateDirectoryMarker(ctx, "d"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	md, err := b.Probe(ctx, "d")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !md.IsDir() {
		t.Errorf("expected directory, got %v", md.Kind)
	}
}

func TestRegisteredDrivers(t *testing.T) {
	for _, name := range []string{"memory", "memory-flat"} {
		b, err := nodekit.CreateBackend(&nodekit.Config{Driver: name, MarkerName: ".directory", MarkerOnlyIsEmpty: true, ListPageSize: 10})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if _, err := nodekit.New(b); err != nil {
			t.Errorf("%s: unexpected error: %v", name, err)
		}
	}
}

func TestImplementsInterface(t *testing.T) {
	var _ nodekit.HierarchicalBackend = New()
	var _ nodekit.FlatBackend = NewFlat(nil)
}
