package nodekit

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
		errMsg  string
	}{
		{"empty driver", Config{}, true, "driver is required"},
		{"invalid driver", Config{Driver: "invalid"}, true, "unknown driver: invalid"},
		{"local without base path", Config{Driver: "local"}, true, "local base path is required"},
		{"local with base path", Config{Driver: "local", LocalBasePath: "/tmp"}, false, ""},
		{"s3 without bucket", Config{Driver: "s3"}, true, "S3 bucket is required"},
		{"s3 with bucket", Config{Driver: "s3", S3Bucket: "b"}, false, ""},
		{"gcs without bucket", Config{Driver: "gcs"}, true, "GCS bucket is required"},
		{"azure without container", Config{Driver: "azure", AzureAccountName: "a"}, true, "Azure account name and container"},
		{"minio without bucket", Config{Driver: "minio", MinIOEndpoint: "localhost:9000"}, true, "MinIO endpoint and bucket"},
		{"nats without bucket", Config{Driver: "nats"}, true, "NATS bucket is required"},
		{"sftp without user", Config{Driver: "sftp", SFTPHost: "h"}, true, "SFTP host and username"},
		{"webdav without url", Config{Driver: "webdav"}, true, "WebDAV URL is required"},
		{"zip without path", Config{Driver: "zip"}, true, "archive path is required"},
		{"memory", Config{Driver: "memory"}, false, ""},
		{"negative page size", Config{Driver: "memory-flat", ListPageSize: -1}, true, "list page size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfig(&tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateConfig() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("validateConfig() error = %v, want error containing %v", err, tt.errMsg)
			}
		})
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := &Config{
		Driver:            "memory-flat",
		MarkerName:        DefaultMarkerName,
		MarkerOnlyIsEmpty: true,
		ListPageSize:      2,
		ArchiveMaxEntries: 1,
		LogLevel:          "error",
	}
	svc, err := NewFromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for _, p := range []string{"d/1", "d/2", "d/3"} {
		if err := svc.SaveText(ctx, "x", p); err != nil {
			t.Fatal(err)
		}
	}
	nodes, err := svc.List(ctx, "d")
	if err != nil || len(nodes) != 3 {
		t.Errorf("List(d) = %d nodes, %v", len(nodes), err)
	}

	// archive limits come from the config
	r := rawArchive(t, rawEntry{name: "a"}, rawEntry{name: "b"})
	if err := svc.Unzip(ctx, r, r.Size(), "u"); !errors.Is(err, ErrArchiveLimit) {
		t.Errorf("expected the configured entry limit to apply, got %v", err)
	}

	if _, err := NewFromConfig(&Config{Driver: "memory", LogLevel: "loud"}); err == nil {
		t.Error("expected an invalid log level to fail")
	}
	if _, err := NewFromConfig(&Config{Driver: "s3"}); err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Errorf("expected invalid config, got %v", err)
	}
}

// closingBackend records Close; it offers no listing so New rejects it
type closingBackend struct {
	Backend
	closed bool
}

func (c *closingBackend) Close() error {
	c.closed = true
	return nil
}

func TestNewFromConfigReleasesBackend(t *testing.T) {
	t.Cleanup(func() { RegisterDriver("memory", newFakeFSDriver) })

	var created []*closingBackend
	RegisterDriver("memory", func(cfg *Config) (Backend, error) {
		b := &closingBackend{Backend: newFakeFS()}
		created = append(created, b)
		return b, nil
	})

	if _, err := NewFromConfig(&Config{Driver: "memory", LogLevel: "loud"}); err == nil {
		t.Fatal("expected an invalid log level to fail")
	}
	if len(created) != 0 {
		t.Errorf("backend created before the log level was checked")
	}

	_, err := NewFromConfig(&Config{Driver: "memory", LogLevel: "error"})
	if !errors.Is(err, ErrNotSupported) {
		t.Fatalf("expected ErrNotSupported, got %v", err)
	}
	if len(created) != 1 || !created[0].closed {
		t.Errorf("rejected backend was not closed")
	}
}

func TestCreateBackend(t *testing.T) {
	if _, err := CreateBackend(&Config{Driver: "nope"}); err == nil || !strings.Contains(err.Error(), "driver nope not registered") {
		t.Errorf("CreateBackend(nope) = %v", err)
	}
	b, err := CreateBackend(&Config{Driver: "memory"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := b.(HierarchicalBackend); !ok {
		t.Errorf("memory backend is %T", b)
	}
}

func TestDrivers(t *testing.T) {
	names := Drivers()
	var memory, flat bool
	for i, n := range names {
		if i > 0 && names[i-1] > n {
			t.Errorf("Drivers() not sorted: %v", names)
		}
		memory = memory || n == "memory"
		flat = flat || n == "memory-flat"
	}
	if !memory || !flat {
		t.Errorf("Drivers() = %v, missing the registered test drivers", names)
	}
}

func TestInitAndDefault(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	if err := Init(&Config{Driver: "memory", LogLevel: "info"}); err != nil {
		t.Fatal(err)
	}
	first, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	// later calls keep the first service
	if err := Init(&Config{Driver: "invalid"}); err != nil {
		t.Errorf("second Init returned %v", err)
	}
	second, _ := Default()
	if first != second {
		t.Error("Default returned a different service")
	}
}
