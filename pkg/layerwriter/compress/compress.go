// Package compress defines the streaming compressor interface the layer
// writer wraps every tar stream in, and the two built-in codecs: zstd
// (default) and gzip, both from klauspost/compress rather than the
// standard library's compress/gzip so that both codecs share the same
// high-throughput implementation family.
package compress

import (
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Codec wraps a raw byte stream with a compression format and names the
// OCI media type suffix it corresponds to (e.g. "zstd", "gzip").
type Codec interface {
	NewWriter(w io.Writer) (io.WriteCloser, error)
	MediaTypeSuffix() string
}

// Zstd is the default codec: a fixed encoder level for reproducibility
// across runs and machines (the encoder's concurrency does not affect
// its output for a given level).
type Zstd struct {
	Level zstd.EncoderLevel
}

// NewZstd returns the default Zstd codec at a fixed, deterministic level.
func NewZstd() Zstd {
	return Zstd{Level: zstd.SpeedDefault}
}

func (z Zstd) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w, zstd.WithEncoderLevel(z.Level), zstd.WithEncoderConcurrency(1))
}

func (Zstd) MediaTypeSuffix() string { return "zstd" }

// Gzip is the alternative, selectable codec.
type Gzip struct {
	Level int
}

// NewGzip returns the Gzip codec at a fixed compression level.
func NewGzip() Gzip {
	return Gzip{Level: gzip.DefaultCompression}
}

func (g Gzip) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriterLevel(w, g.Level)
}

func (Gzip) MediaTypeSuffix() string { return "gzip" }

// ByName resolves a codec by its CLI/config name ("zstd" or "gzip").
func ByName(name string) (Codec, bool) {
	switch name {
	case "", "zstd":
		return NewZstd(), true
	case "gzip":
		return NewGzip(), true
	default:
		return nil, false
	}
}
