package nodekit

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func summaries(keys ...string) []ObjectSummary {
	out := make([]ObjectSummary, 0, len(keys))
	for _, k := range keys {
		out = append(out, ObjectSummary{Key: k, Size: int64(len(k)), LastModified: testTime})
	}
	return out
}

func nodeNames(nodes []Node) []string {
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		name := n.Name
		if n.IsDir {
			name += Separator
		}
		names = append(names, name)
	}
	return names
}

func TestListLevel(t *testing.T) {
	objects := summaries(
		"p/z.txt",
		"p/a.txt",
		"p/sub/one",
		"p/sub/two",
		"p/deep/er/file",
		"p/.directory",
		"p/empty/.directory",
		"other/x",
	)

	tests := []struct {
		name           string
		dir            string
		includeMarkers bool
		want           []string
	}{
		{"direct children sorted", "p", false, []string{"a.txt", "deep/", "empty/", "sub/", "z.txt"}},
		{"markers on request", "p", true, []string{".directory", "a.txt", "deep/", "empty/", "sub/", "z.txt"}},
		{"marker only dir is empty", "p/empty", false, []string{}},
		{"root", "", false, []string{"other/", "p/"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nodeNames(listLevel(tt.dir, objects, DefaultMarkerName, tt.includeMarkers))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("listLevel mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestListLevelNodes(t *testing.T) {
	nodes := listLevel("p", summaries("p/f", "p/d/x", "p/d/y"), DefaultMarkerName, false)
	if len(nodes) != 2 {
		t.Fatalf("got %d nodes, want 2", len(nodes))
	}
	d, f := nodes[0], nodes[1]
	if !d.IsDir || d.Path != "p/d" || d.ParentPath != "p" || d.Size != 0 {
		t.Errorf("unexpected directory node %+v", d)
	}
	if f.IsDir || f.Path != "p/f" || f.Size != 3 || !f.HasParent {
		t.Errorf("unexpected file node %+v", f)
	}
}

func TestBuildTree(t *testing.T) {
	root := newNode("x", true, 0, testTime)
	tree := buildTree(root, summaries("x/a", "x/z", "x/b/a", "x/b/.directory", "x/e/.directory"), DefaultMarkerName)

	var paths []string
	var walk func(*Tree[Node])
	walk = func(tr *Tree[Node]) {
		for _, c := range tr.SortedChildren(walkLess) {
			n := c.Payload()
			p := n.Path
			if n.IsDir {
				p += Separator
			}
			paths = append(paths, p)
			walk(c)
		}
	}
	walk(tree)

	want := []string{"x/a", "x/z", "x/b/", "x/b/a", "x/e/"}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildTreeFirstSummaryWins(t *testing.T) {
	root := Root()
	objs := []ObjectSummary{
		{Key: "a", Size: 1},
		{Key: "a", Size: 2},
	}
	tree := buildTree(root, objs, DefaultMarkerName)
	child, ok := tree.Child("a")
	if !ok || child.Payload().Size != 1 {
		t.Errorf("expected first summary to win, got %+v", child.Payload())
	}
}

func TestSummariesPaginates(t *testing.T) {
	store := newFakeStore(2)
	for _, k := range []string{"d/1", "d/2", "d/3", "d/4", "d/5", "e/1"} {
		store.objects[k] = []byte("x")
	}
	tb := NewTreeBuilder(NewObjectBackend(store))

	got, err := tb.Summaries(context.Background(), "d")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 5 {
		t.Errorf("got %d summaries, want 5", len(got))
	}
	if store.listCalls != 3 {
		t.Errorf("listed %d pages, want 3", store.listCalls)
	}
}

type stuckStore struct{ *fakeStore }

func (s stuckStore) ListObjects(ctx context.Context, prefix, token string) (ObjectPage, error) {
	return ObjectPage{Objects: summaries("k"), Truncated: true}, nil
}

func TestSummariesTruncatedWithoutToken(t *testing.T) {
	tb := NewTreeBuilder(NewObjectBackend(stuckStore{newFakeStore(0)}))
	_, err := tb.Summaries(context.Background(), "")
	if !errors.Is(err, ErrBackend) {
		t.Errorf("expected ErrBackend, got %v", err)
	}
}

func TestSummariesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tb := NewTreeBuilder(NewObjectBackend(newFakeStore(0)))
	if _, err := tb.Summaries(ctx, ""); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestObjectBackendProbe(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(0)
	store.objects["dir/file"] = []byte("abc")
	b := NewObjectBackend(store)

	tests := []struct {
		path string
		kind Kind
		size int64
	}{
		{"", KindDirectory, 0},
		{"dir", KindDirectory, 0},
		{"dir/file", KindFile, 3},
		{"di", KindAbsent, 0},
		{"dir/file/x", KindAbsent, 0},
	}
	for _, tt := range tests {
		md, err := b.Probe(ctx, tt.path)
		if err != nil {
			t.Fatalf("Probe(%q): %v", tt.path, err)
		}
		if md.Kind != tt.kind || md.Size != tt.size {
			t.Errorf("Probe(%q) = %+v, want kind %v size %d", tt.path, md, tt.kind, tt.size)
		}
	}
}

func TestObjectBackendMarkers(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(0)
	b := NewObjectBackend(store, WithMarkerName("/.keep/"), WithMarkerOnlyEmpty(false))

	if b.MarkerName() != ".keep" {
		t.Errorf("MarkerName = %q", b.MarkerName())
	}
	if b.MarkerOnlyIsEmpty() {
		t.Error("expected MarkerOnlyIsEmpty to be false")
	}

	if err := b.CreateDirectoryMarker(ctx, "a/b"); err != nil {
		t.Fatal(err)
	}
	if err := b.CreateDirectoryMarker(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a/b/.keep"}, store.keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}

	if err := b.DeleteOne(ctx, "a/b", true); err != nil {
		t.Fatal(err)
	}
	// a directory without marker deletes cleanly
	if err := b.DeleteOne(ctx, "a", true); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := b.DeleteOne(ctx, "missing", false); !IsNotExist(err) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestObjectBackendCopy(t *testing.T) {
	ctx := context.Background()

	plain := newFakeStore(0)
	plain.objects["src"] = []byte("data")
	if err := NewObjectBackend(plain).CopyContent(ctx, "src", "dst"); err != nil {
		t.Fatal(err)
	}
	if string(plain.objects["dst"]) != "data" {
		t.Errorf("streamed copy = %q", plain.objects["dst"])
	}

	native := &copyingStore{fakeStore: newFakeStore(0)}
	native.objects["src"] = []byte("data")
	if err := NewObjectBackend(native).CopyContent(ctx, "src", "dst"); err != nil {
		t.Fatal(err)
	}
	if native.copies != 1 {
		t.Errorf("expected the native copy to be used")
	}

	err := NewObjectBackend(plain).CopyContent(ctx, "missing", "x")
	if !IsNotExist(err) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestObjectBackendWrapsStoreErrors(t *testing.T) {
	b := NewObjectBackend(failingStore{newFakeStore(0)})
	_, err := b.Probe(context.Background(), "k")
	if !errors.Is(err, ErrBackend) {
		t.Fatalf("expected ErrBackend, got %v", err)
	}
	var pe *PathError
	if !errors.As(err, &pe) || pe.Path != "k" {
		t.Errorf("expected the path in the error, got %v", err)
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("expected the cause in the message, got %q", err.Error())
	}
}

type failingStore struct{ *fakeStore }

func (failingStore) HeadObject(ctx context.Context, key string) (ObjectSummary, error) {
	return ObjectSummary{}, errors.New("connection refused")
}
