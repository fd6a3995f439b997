// Package assembler implements the image assembler: it builds the
// manifest, config and index from the staged layers, then packages
// everything as an OCI image layout tarball per spec §4.7.
package assembler

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	digest "github.com/opencontainers/go-digest"
	imagespec "github.com/opencontainers/image-spec/specs-go"
	specs "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/kaito-project/chunkah/pkg/chunkerr"
	"github.com/kaito-project/chunkah/pkg/layerwriter"
	"github.com/kaito-project/chunkah/pkg/pack"
)

const layoutVersion = "1.0.0"

func layerMediaType(suffix string) string {
	switch suffix {
	case "zstd":
		return specs.MediaTypeImageLayerZstd
	case "gzip":
		return specs.MediaTypeImageLayerGzip
	default:
		return specs.MediaTypeImageLayer
	}
}

// Assemble finalizes img (whose RootFS/History are still zeroed) with
// one descriptor per (bucket, layer) pair — layers and buckets must be
// the same length and in the same emission order — then writes the
// complete OCI image layout as a single deterministic tar stream to w.
func Assemble(w io.Writer, img *specs.Image, buckets []pack.Bucket, layers []layerwriter.Layer, epoch time.Time) error {
	if len(buckets) != len(layers) {
		return chunkerr.Wrap(chunkerr.Internal, "assemble", errBucketLayerMismatch)
	}

	diffIDs := make([]digest.Digest, len(layers))
	history := make([]specs.History, len(layers))
	layerDescs := make([]specs.Descriptor, len(layers))

	for i, l := range layers {
		diffIDs[i] = l.DiffID
		history[i] = specs.History{
			Created:   &epoch,
			CreatedBy: "chunkah",
			Comment:   strings.Join(componentIDsByName(buckets[i]), ","),
		}
		layerDescs[i] = specs.Descriptor{
			MediaType: layerMediaType(l.MediaTypeSuffix),
			Digest:    l.BlobDigest,
			Size:      l.Size,
			Annotations: map[string]string{
				"org.chunkah.component": strings.Join(componentIDsBySize(buckets[i]), ","),
				"org.chunkah.stability": buckets[i].StabilityLabel,
			},
		}
	}

	img.RootFS.DiffIDs = diffIDs
	img.History = history

	configBytes, err := json.Marshal(img)
	if err != nil {
		return chunkerr.Wrap(chunkerr.Internal, "marshal image config", err)
	}
	configDigest := digest.Canonical.FromBytes(configBytes)

	manifest := specs.Manifest{
		Versioned: imagespec.Versioned{SchemaVersion: 2},
		MediaType: specs.MediaTypeImageManifest,
		Config: specs.Descriptor{
			MediaType: specs.MediaTypeImageConfig,
			Digest:    configDigest,
			Size:      int64(len(configBytes)),
		},
		Layers: layerDescs,
	}
	manifestBytes, err := json.Marshal(manifest)
	if err != nil {
		return chunkerr.Wrap(chunkerr.Internal, "marshal manifest", err)
	}
	manifestDigest := digest.Canonical.FromBytes(manifestBytes)

	index := specs.Index{
		Versioned: imagespec.Versioned{SchemaVersion: 2},
		MediaType: specs.MediaTypeImageIndex,
		Manifests: []specs.Descriptor{
			{
				MediaType: specs.MediaTypeImageManifest,
				Digest:    manifestDigest,
				Size:      int64(len(manifestBytes)),
				Platform:  &img.Platform,
			},
		},
	}
	indexBytes, err := json.Marshal(index)
	if err != nil {
		return chunkerr.Wrap(chunkerr.Internal, "marshal index", err)
	}

	files := []archiveFile{
		{path: "oci-layout", content: []byte(`{"imageLayoutVersion":"` + layoutVersion + `"}`)},
		{path: "index.json", content: indexBytes},
		{path: "blobs/sha256/" + configDigest.Encoded(), content: configBytes},
		{path: "blobs/sha256/" + manifestDigest.Encoded(), content: manifestBytes},
	}
	for _, l := range layers {
		files = append(files, archiveFile{path: "blobs/sha256/" + l.BlobDigest.Encoded(), sourcePath: l.StagedPath, size: l.Size})
	}

	return writeArchive(w, files, epoch)
}

type assembleError string

func (e assembleError) Error() string { return string(e) }

var errBucketLayerMismatch = assembleError("buckets and layers must be the same length and in the same order")

// archiveFile is one entry of the final OCI layout tar: either inline
// content (manifest/config/index/oci-layout) or a reference to an
// already-staged blob file on disk (layer blobs, potentially large).
type archiveFile struct {
	path       string
	content    []byte
	sourcePath string
	size       int64
}

func writeArchive(w io.Writer, files []archiveFile, epoch time.Time) error {
	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })

	tw := tar.NewWriter(w)
	for _, f := range files {
		size := f.size
		if f.content != nil {
			size = int64(len(f.content))
		}
		hdr := &tar.Header{
			Name:       f.path,
			Typeflag:   tar.TypeReg,
			Mode:       0o644,
			Size:       size,
			ModTime:    epoch,
			AccessTime: epoch,
			ChangeTime: epoch,
			Format:     tar.FormatPAX,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return chunkerr.Wrap(chunkerr.IO, f.path, err)
		}
		if f.content != nil {
			if _, err := io.Copy(tw, bytes.NewReader(f.content)); err != nil {
				return chunkerr.Wrap(chunkerr.IO, f.path, err)
			}
			continue
		}
		if err := copyStagedBlob(tw, f.sourcePath); err != nil {
			return chunkerr.Wrap(chunkerr.IO, f.sourcePath, err)
		}
	}
	if err := tw.Close(); err != nil {
		return chunkerr.Wrap(chunkerr.IO, "close archive", err)
	}
	return nil
}

func copyStagedBlob(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// componentIDsBySize returns b's component ids sorted by descending
// byte size, per spec §6's annotation ordering.
func componentIDsBySize(b pack.Bucket) []string {
	comps := append([]pack.Component(nil), b.Components...)
	sort.Slice(comps, func(i, j int) bool {
		if comps[i].Size != comps[j].Size {
			return comps[i].Size > comps[j].Size
		}
		return comps[i].ID < comps[j].ID
	})
	ids := make([]string, len(comps))
	for i, c := range comps {
		ids[i] = c.ID
	}
	return ids
}

// componentIDsByName returns b's component ids sorted lexicographically,
// used for the history comment (spec §4.7 does not mandate an order).
func componentIDsByName(b pack.Bucket) []string {
	comps := append([]pack.Component(nil), b.Components...)
	sort.Slice(comps, func(i, j int) bool { return comps[i].ID < comps[j].ID })
	ids := make([]string, len(comps))
	for i, c := range comps {
		ids[i] = c.ID
	}
	return ids
}
