package nodekit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
)

func benchServices(b *testing.B) map[string]*Service {
	b.Helper()
	flat, err := New(NewObjectBackend(newFakeStore(1000)))
	if err != nil {
		b.Fatal(err)
	}
	hier, err := New(newFakeFS())
	if err != nil {
		b.Fatal(err)
	}
	return map[string]*Service{"flat": flat, "hierarchical": hier}
}

// seedWide stores dirs*files small files below root
func seedWide(b *testing.B, svc *Service, root string, dirs, files int) {
	b.Helper()
	ctx := context.Background()
	for d := 0; d < dirs; d++ {
		for f := 0; f < files; f++ {
			if err := svc.SaveText(ctx, "content", root, fmt.Sprintf("d%03d", d), fmt.Sprintf("f%03d.txt", f)); err != nil {
				b.Fatal(err)
			}
		}
	}
}

func BenchmarkService(b *testing.B) {
	content := strings.Repeat("Hello, World! ", 100)

	for name, svc := range benchServices(b) {
		b.Run(name, func(b *testing.B) {
			ctx := context.Background()

			b.Run("save", func(b *testing.B) {
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					if err := svc.SaveText(ctx, content, "bench", fmt.Sprintf("file-%d.txt", i%100)); err != nil {
						b.Fatal(err)
					}
				}
			})

			b.Run("read", func(b *testing.B) {
				_ = svc.SaveText(ctx, content, "bench", "read.txt")
				n, err := svc.Resolve(ctx, "bench", "read.txt")
				if err != nil {
					b.Fatal(err)
				}
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					rc, err := svc.OpenNode(ctx, n)
					if err != nil {
						b.Fatal(err)
					}
					_, _ = io.Copy(io.Discard, rc)
					rc.Close()
				}
			})

			b.Run("resolve", func(b *testing.B) {
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					if _, err := svc.Resolve(ctx, "bench", "read.txt"); err != nil {
						b.Fatal(err)
					}
				}
			})
		})
	}
}

func BenchmarkWalk(b *testing.B) {
	for name, svc := range benchServices(b) {
		b.Run(name, func(b *testing.B) {
			ctx := context.Background()
			seedWide(b, svc, "w", 20, 50)
			root, err := svc.Resolve(ctx, "w")
			if err != nil {
				b.Fatal(err)
			}
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				count, err := svc.CountFiles(ctx, root)
				if err != nil || count != 1000 {
					b.Fatalf("CountFiles = %d, %v", count, err)
				}
			}
		})
	}
}

func BenchmarkZip(b *testing.B) {
	for name, svc := range benchServices(b) {
		b.Run(name, func(b *testing.B) {
			ctx := context.Background()
			seedWide(b, svc, "z", 10, 20)
			var buf bytes.Buffer
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				buf.Reset()
				if err := svc.Zip(ctx, "z", &buf, ""); err != nil {
					b.Fatal(err)
				}
			}
			b.SetBytes(int64(buf.Len()))
		})
	}
}

func BenchmarkCombine(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = Combine("/a/", "b", "", "c/d/", "e.txt")
	}
}
