// Package chunkah wires the walker, attributor, stability oracle,
// packer, layer writer and image assembler into the single build
// pipeline described in spec §5. It is the only package that knows the
// full shape of the pipeline; every stage above is independently
// testable without it.
package chunkah

import (
	"context"
	"io"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kaito-project/chunkah/internal/logging"
	"github.com/kaito-project/chunkah/pkg/assembler"
	"github.com/kaito-project/chunkah/pkg/attributor"
	"github.com/kaito-project/chunkah/pkg/chunkerr"
	"github.com/kaito-project/chunkah/pkg/component"
	"github.com/kaito-project/chunkah/pkg/entry"
	"github.com/kaito-project/chunkah/pkg/imageconfig"
	"github.com/kaito-project/chunkah/pkg/layerwriter"
	"github.com/kaito-project/chunkah/pkg/layerwriter/compress"
	"github.com/kaito-project/chunkah/pkg/ledger"
	"github.com/kaito-project/chunkah/pkg/pack"
	"github.com/kaito-project/chunkah/pkg/stability"
	"github.com/kaito-project/chunkah/pkg/walk"
)

// Options configures one build end to end.
type Options struct {
	// RootfsPath is the host directory mounted as the container rootfs.
	RootfsPath string

	// Layers is the target layer count N; the packer may emit fewer.
	Layers int

	// PruneTmp and Prune are forwarded to the walker unchanged.
	PruneTmp bool
	Prune    []string

	// ConfigJSON is the verbatim CHUNKAH_CONFIG_STR payload.
	ConfigJSON []byte

	// Epoch is SOURCE_DATE_EPOCH: the fixed timestamp written into every
	// tar header and the image config's created field.
	Epoch time.Time

	// Attributor resolves rootfs paths to component claims. Defaults to
	// an always-empty attributor (every path is component.Unattributed)
	// when nil.
	Attributor attributor.Attributor

	// Oracle scores a component's stability. Defaults to
	// stability.Reference{} when nil.
	Oracle stability.Oracle

	// Codec names the layer compression codec ("zstd" or "gzip"); empty
	// selects the default (zstd).
	Codec string

	// HashWorkers bounds the walker's content-hashing pool; zero defaults
	// to runtime.NumCPU() inside the walker.
	HashWorkers int

	// LayerWorkers bounds how many buckets are tarred/compressed
	// concurrently. Defaults to 4 when zero.
	LayerWorkers int
}

// Build runs the full pipeline and writes the resulting OCI image layout
// as a single tar stream to out. It is pure with respect to the host
// filesystem beyond RootfsPath and a scratch staging directory it
// creates and removes itself; every failure is a *chunkerr.Error.
func Build(ctx context.Context, opts Options, out io.Writer) error {
	if opts.Layers <= 0 {
		opts.Layers = 1
	}
	if opts.Attributor == nil {
		opts.Attributor = attributor.Static{}
	}
	if opts.Oracle == nil {
		opts.Oracle = stability.Reference{}
	}
	if opts.LayerWorkers <= 0 {
		opts.LayerWorkers = 4
	}
	codec, ok := compress.ByName(opts.Codec)
	if !ok {
		return chunkerr.Wrap(chunkerr.InvalidArgument, "codec", errUnknownCodec(opts.Codec))
	}

	img, err := imageconfig.Derive(opts.ConfigJSON, opts.Epoch)
	if err != nil {
		return err
	}

	entries, err := walkRootfs(ctx, opts)
	if err != nil {
		return err
	}
	logging.Stage("walker").WithField("entries", len(entries)).Debug("walked rootfs")

	led := ledger.New(entries)
	for _, e := range entries {
		claims, err := opts.Attributor.Resolve(e.Path)
		if err != nil {
			return chunkerr.Wrap(chunkerr.Attribution, e.Path, err)
		}
		led.Claims[e.Path] = claims
	}

	components, directPaths := summarize(led, entries, opts.Oracle)
	buckets := pack.Pack(components, opts.Layers)
	logging.Stage("packer").WithField("components", len(components)).WithField("buckets", len(buckets)).Debug("packed components")

	stagingDir, err := os.MkdirTemp("", "chunkah-staging-*")
	if err != nil {
		return chunkerr.Wrap(chunkerr.IO, "staging dir", err)
	}
	defer os.RemoveAll(stagingDir)

	layers, err := stageLayers(ctx, opts, led, directPaths, buckets, stagingDir, codec)
	if err != nil {
		return err
	}
	logging.Stage("layerwriter").WithField("layers", len(layers)).Debug("staged layers")

	return assembler.Assemble(out, img, buckets, layers, opts.Epoch)
}

func walkRootfs(ctx context.Context, opts Options) ([]entry.Entry, error) {
	var entries []entry.Entry
	walkOpts := walk.Options{
		Root:        opts.RootfsPath,
		PruneTmp:    opts.PruneTmp,
		Prune:       opts.Prune,
		HashWorkers: opts.HashWorkers,
	}
	err := walk.Walk(ctx, walkOpts, func(e entry.Entry) error {
		entries = append(entries, e)
		return nil
	})
	return entries, err
}

// summarize aggregates the ledger's claims into the packer's per-component
// view (total size, stability score) and records which direct paths
// belong to each component, per spec §4.4's description of a component's
// "total byte size".
func summarize(led *ledger.Ledger, entries []entry.Entry, oracle stability.Oracle) ([]pack.Component, map[component.ID][]string) {
	size := map[component.ID]int64{}
	paths := map[component.ID][]string{}

	for _, e := range entries {
		if e.Path == "/" {
			continue
		}
		id := led.PrimaryComponent(e.Path)
		size[id] += e.Size
		paths[id] = append(paths[id], e.Path)
	}

	components := make([]pack.Component, 0, len(size))
	for id, total := range size {
		components = append(components, pack.Component{ID: id, Size: total, Stability: oracle.Score(id)})
	}
	return components, paths
}

func stageLayers(ctx context.Context, opts Options, led *ledger.Ledger, directPaths map[component.ID][]string, buckets []pack.Bucket, stagingDir string, codec compress.Codec) ([]layerwriter.Layer, error) {
	layers := make([]layerwriter.Layer, len(buckets))
	writer := &layerwriter.Writer{StagingDir: stagingDir, Codec: codec}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.LayerWorkers)

	for i, b := range buckets {
		i, b := i, b
		g.Go(func() error {
			if gctx.Err() != nil {
				return chunkerr.Wrap(chunkerr.Internal, "build cancelled", gctx.Err())
			}
			var paths []string
			for _, c := range b.Components {
				paths = append(paths, directPaths[c.ID]...)
			}
			bucketEntries := led.ResolveBucket(paths)
			layer, err := writer.WriteBucket(opts.RootfsPath, bucketEntries, opts.Epoch)
			if err != nil {
				return err
			}
			layers[i] = layer
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return layers, nil
}

type errUnknownCodec string

func (e errUnknownCodec) Error() string { return "unknown codec: " + string(e) }
