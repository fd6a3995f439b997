package layerwriter

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kaito-project/chunkah/pkg/entry"
	"github.com/kaito-project/chunkah/pkg/layerwriter/compress"
)

func TestWriteBucket_StagesContentAddressedBlob(t *testing.T) {
	rootfs := t.TempDir()
	if err := os.WriteFile(filepath.Join(rootfs, "hello"), []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	staging := t.TempDir()
	w := &Writer{StagingDir: staging, Codec: compress.NewGzip()}

	entries := []entry.Entry{
		{Path: "/hello", Kind: entry.Regular, Mode: 0o644, Size: 11},
	}

	layer, err := w.WriteBucket(rootfs, entries, time.Unix(1700000000, 0))
	if err != nil {
		t.Fatal(err)
	}

	if layer.DiffID == "" || layer.BlobDigest == "" {
		t.Fatal("expected non-empty digests")
	}
	if _, err := os.Stat(layer.StagedPath); err != nil {
		t.Fatalf("expected staged blob to exist: %v", err)
	}
	if filepath.Base(layer.StagedPath) != layer.BlobDigest.Encoded() {
		t.Fatalf("staged path %s does not match digest %s", layer.StagedPath, layer.BlobDigest.Encoded())
	}
	if layer.Size <= 0 {
		t.Fatal("expected positive compressed size")
	}
}

func TestWriteBucket_DeterministicAcrossRuns(t *testing.T) {
	rootfs := t.TempDir()
	if err := os.WriteFile(filepath.Join(rootfs, "hello"), []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}
	entries := []entry.Entry{{Path: "/hello", Kind: entry.Regular, Mode: 0o644, Size: 11}}
	epoch := time.Unix(1700000000, 0)

	w1 := &Writer{StagingDir: t.TempDir(), Codec: compress.NewGzip()}
	w2 := &Writer{StagingDir: t.TempDir(), Codec: compress.NewGzip()}

	l1, err := w1.WriteBucket(rootfs, entries, epoch)
	if err != nil {
		t.Fatal(err)
	}
	l2, err := w2.WriteBucket(rootfs, entries, epoch)
	if err != nil {
		t.Fatal(err)
	}
	if l1.DiffID != l2.DiffID {
		t.Fatalf("diff ids differ across runs: %s vs %s", l1.DiffID, l2.DiffID)
	}
}
