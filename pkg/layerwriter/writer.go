// Package layerwriter implements the layer writer: it wraps one
// bucket's tar stream in a compressor, computes both the uncompressed
// (diff_id) and compressed (blob) sha256 digests, and stages the result
// under a content-addressed name so the image assembler can fold it
// into the final archive (spec §4.6).
package layerwriter

import (
	"io"
	"os"
	"path/filepath"
	"time"

	digest "github.com/opencontainers/go-digest"

	"github.com/google/uuid"

	"github.com/kaito-project/chunkah/pkg/chunkerr"
	"github.com/kaito-project/chunkah/pkg/entry"
	"github.com/kaito-project/chunkah/pkg/layerwriter/compress"
	"github.com/kaito-project/chunkah/pkg/tarstream"
)

// Layer is the result of staging one bucket's tar stream.
type Layer struct {
	DiffID          digest.Digest // uncompressed tar digest
	BlobDigest      digest.Digest // compressed digest, also the staged file's basename
	Size            int64         // compressed size in bytes
	StagedPath      string        // absolute path to the staged, content-addressed blob
	MediaTypeSuffix string        // "zstd" or "gzip"
}

// Writer stages compressed, digested layer blobs under StagingDir.
type Writer struct {
	StagingDir string
	Codec      compress.Codec
}

// WriteBucket tars entries (rooted at rootfsPath on the host) and stages
// the compressed result. The staging file is first written under a
// random name and renamed to its content-addressed name only once the
// digest is known and the write has fully succeeded, per spec §4.6.
func (w *Writer) WriteBucket(rootfsPath string, entries []entry.Entry, epoch time.Time) (Layer, error) {
	blobDir := filepath.Join(w.StagingDir, "blobs", "sha256")
	if err := os.MkdirAll(blobDir, 0o755); err != nil {
		return Layer{}, chunkerr.Wrap(chunkerr.IO, blobDir, err)
	}

	tmpPath := filepath.Join(w.StagingDir, uuid.NewString()+".tmp")
	f, err := os.Create(tmpPath)
	if err != nil {
		return Layer{}, chunkerr.Wrap(chunkerr.IO, tmpPath, err)
	}

	blobDigester := digest.Canonical.Digester()
	compressedCounter := &countingWriter{}
	compOut := io.MultiWriter(f, blobDigester.Hash(), compressedCounter)

	cw, err := w.Codec.NewWriter(compOut)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return Layer{}, chunkerr.Wrap(chunkerr.Internal, "open compressor", err)
	}

	diffDigester := digest.Canonical.Digester()
	tarOut := io.MultiWriter(cw, diffDigester.Hash())

	if err := tarstream.Emit(tarOut, rootfsPath, entries, epoch); err != nil {
		cw.Close()
		f.Close()
		os.Remove(tmpPath)
		return Layer{}, chunkerr.Wrap(chunkerr.IO, "emit tar", err)
	}
	if err := cw.Close(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return Layer{}, chunkerr.Wrap(chunkerr.IO, "close compressor", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return Layer{}, chunkerr.Wrap(chunkerr.IO, tmpPath, err)
	}

	blobDigest := blobDigester.Digest()
	finalPath := filepath.Join(blobDir, blobDigest.Encoded())
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return Layer{}, chunkerr.Wrap(chunkerr.IO, finalPath, err)
	}

	return Layer{
		DiffID:          diffDigester.Digest(),
		BlobDigest:      blobDigest,
		Size:            compressedCounter.n,
		StagedPath:      finalPath,
		MediaTypeSuffix: w.Codec.MediaTypeSuffix(),
	}, nil
}

type countingWriter struct{ n int64 }

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
