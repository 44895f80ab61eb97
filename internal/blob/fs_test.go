package blob

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFSStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewFSStore(root)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	src := filepath.Join(t.TempDir(), "take.wav")
	if err := os.WriteFile(src, []byte("RIFFdata"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	uri, err := store.Upload(ctx, src, "recordings/default/abc.wav")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(uri, "file://") {
		t.Fatalf("unexpected uri %q", uri)
	}

	data, err := store.Download(ctx, uri)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if string(data) != "RIFFdata" {
		t.Fatalf("round trip mismatch: %q", data)
	}

	if err := store.Delete(ctx, uri); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Download(ctx, uri); err == nil {
		t.Fatal("expected download failure after delete")
	}
}

func TestFSStoreRejectsForeignURI(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.Download(ctx, "nats://bucket/key"); err == nil {
		t.Fatal("expected error for non-file uri")
	}
	if _, err := store.Download(ctx, "file:///etc/passwd"); err == nil {
		t.Fatal("expected error for uri outside root")
	}
}
