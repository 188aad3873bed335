package store

import (
	"context"
	"testing"
)

func TestLocalBackend_PutGetExists(t *testing.T) {
	ctx := context.Background()
	b, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	ok, err := b.Exists(ctx, "deadbeef")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Fatal("expected artifact to be absent before Put")
	}

	if err := b.Put(ctx, "deadbeef", []byte("bundle-bytes")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	ok, err = b.Exists(ctx, "deadbeef")
	if err != nil {
		t.Fatalf("Exists after Put: %v", err)
	}
	if !ok {
		t.Fatal("expected artifact to exist after Put")
	}

	got, err := b.Get(ctx, "deadbeef")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "bundle-bytes" {
		t.Errorf("got %q, want bundle-bytes", got)
	}
}

func TestLocalBackend_GetMissing(t *testing.T) {
	ctx := context.Background()
	b, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	if _, err := b.Get(ctx, "nope"); err == nil {
		t.Fatal("expected error fetching a missing key")
	}
}

func TestLocalBackend_KeyWithSlashesNested(t *testing.T) {
	ctx := context.Background()
	b, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	if err := b.Put(ctx, "chains/demo/x86_64-linux", []byte("data")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := b.Get(ctx, "chains/demo/x86_64-linux")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "data" {
		t.Errorf("got %q, want data", got)
	}
}

func TestNew_UnsupportedType(t *testing.T) {
	if _, err := New(context.Background(), Config{Type: "ftp"}); err == nil {
		t.Fatal("expected error for unsupported store type")
	}
}

func TestNew_DefaultsToLocal(t *testing.T) {
	b, err := New(context.Background(), Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := b.(*LocalBackend); !ok {
		t.Fatalf("expected *LocalBackend for empty Type, got %T", b)
	}
}
