package fs

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

func TestFSBackend_BasicOps(t *testing.T) {
	tmp := t.TempDir()
	backend, err := New(Config{BaseDir: tmp})
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}

	ctx := context.Background()
	key := "product/abc.png"

	data := []byte("hello fs")
	err = backend.Put(ctx, simplemedia.PutParams{Key: key, Body: bytes.NewReader(data), Size: int64(len(data))})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(tmp, "product", "abc.png"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("content mismatch: %q", string(got))
	}

	// Missing keys are ignored
	if err := backend.BatchDelete(ctx, []string{key, "product/missing.png"}); err != nil {
		t.Fatalf("batch delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmp, "product", "abc.png")); !os.IsNotExist(err) {
		t.Fatalf("expected file removed, stat err=%v", err)
	}
	// Empty prefix directory is cleaned up, base dir kept
	if _, err := os.Stat(filepath.Join(tmp, "product")); !os.IsNotExist(err) {
		t.Fatalf("expected empty directory removed, stat err=%v", err)
	}
	if _, err := os.Stat(tmp); err != nil {
		t.Fatalf("base dir removed: %v", err)
	}
}

func TestFSBackend_RejectsEscapingKeys(t *testing.T) {
	backend, err := New(Config{BaseDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}

	err = backend.Put(context.Background(), simplemedia.PutParams{Key: "../evil.png", Body: bytes.NewReader([]byte("x"))})
	if err == nil {
		t.Fatalf("expected error for escaping key")
	}
	if err := backend.BatchDelete(context.Background(), []string{"../../etc/passwd"}); err == nil {
		t.Fatalf("expected error for escaping key")
	}
}

func TestFSBackend_URL(t *testing.T) {
	tmp := t.TempDir()

	withPrefix, err := New(Config{BaseDir: tmp, URLPrefix: "http://localhost:8080/media/"})
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}
	if got := withPrefix.URL("product/a.png"); got != "http://localhost:8080/media/product/a.png" {
		t.Fatalf("unexpected url: %s", got)
	}

	noPrefix, err := New(Config{BaseDir: tmp})
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}
	want := "file://" + filepath.ToSlash(filepath.Join(tmp, "product/a.png"))
	if got := noPrefix.URL("product/a.png"); got != want {
		t.Fatalf("unexpected url: %s want %s", got, want)
	}
}

func TestFSBackend_RequiresBaseDir(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for empty base dir")
	}
}
