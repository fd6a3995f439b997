package assembler

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	digest "github.com/opencontainers/go-digest"
	specs "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/kaito-project/chunkah/pkg/layerwriter"
	"github.com/kaito-project/chunkah/pkg/pack"
)

func stageBlob(t *testing.T, dir, content string) (string, digest.Digest, int64) {
	t.Helper()
	path := filepath.Join(dir, "blob")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	d := digest.Canonical.FromBytes([]byte(content))
	return path, d, int64(len(content))
}

func readArchive(t *testing.T, r io.Reader) map[string][]byte {
	t.Helper()
	out := map[string][]byte{}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		buf, err := io.ReadAll(tr)
		if err != nil {
			t.Fatal(err)
		}
		out[hdr.Name] = buf
	}
	return out
}

func TestAssemble_ProducesValidLayout(t *testing.T) {
	dir := t.TempDir()
	path, d, size := stageBlob(t, dir, "layer-one-bytes")

	img := &specs.Image{
		Platform: specs.Platform{OS: "linux", Architecture: "amd64"},
	}

	buckets := []pack.Bucket{
		{Index: 0, Components: []pack.Component{{ID: "rpm/glibc", Size: 100, Stability: 0.99}}, StabilityLabel: "0.990"},
	}
	layers := []layerwriter.Layer{
		{DiffID: d, BlobDigest: d, Size: size, StagedPath: path, MediaTypeSuffix: "gzip"},
	}

	var buf bytes.Buffer
	epoch := time.Unix(1700000000, 0)
	if err := Assemble(&buf, img, buckets, layers, epoch); err != nil {
		t.Fatal(err)
	}

	files := readArchive(t, &buf)

	if _, ok := files["oci-layout"]; !ok {
		t.Fatal("missing oci-layout")
	}
	if string(files["oci-layout"]) != `{"imageLayoutVersion":"1.0.0"}` {
		t.Errorf("unexpected oci-layout contents: %s", files["oci-layout"])
	}

	var index specs.Index
	if err := json.Unmarshal(files["index.json"], &index); err != nil {
		t.Fatal(err)
	}
	if len(index.Manifests) != 1 {
		t.Fatalf("expected 1 manifest, got %d", len(index.Manifests))
	}

	manifestPath := "blobs/sha256/" + index.Manifests[0].Digest.Encoded()
	manifestBytes, ok := files[manifestPath]
	if !ok {
		t.Fatalf("manifest blob %s not found in archive", manifestPath)
	}
	var manifest specs.Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		t.Fatal(err)
	}
	if len(manifest.Layers) != 1 {
		t.Fatalf("expected 1 layer descriptor, got %d", len(manifest.Layers))
	}
	if manifest.Layers[0].MediaType != specs.MediaTypeImageLayerGzip {
		t.Errorf("media type = %s, want gzip layer type", manifest.Layers[0].MediaType)
	}
	if manifest.Layers[0].Annotations["org.chunkah.component"] != "rpm/glibc" {
		t.Errorf("component annotation = %s", manifest.Layers[0].Annotations["org.chunkah.component"])
	}
	if manifest.Layers[0].Annotations["org.chunkah.stability"] != "0.990" {
		t.Errorf("stability annotation = %s", manifest.Layers[0].Annotations["org.chunkah.stability"])
	}

	configPath := "blobs/sha256/" + manifest.Config.Digest.Encoded()
	configBytes, ok := files[configPath]
	if !ok {
		t.Fatalf("config blob %s not found in archive", configPath)
	}
	var outImg specs.Image
	if err := json.Unmarshal(configBytes, &outImg); err != nil {
		t.Fatal(err)
	}
	if len(outImg.RootFS.DiffIDs) != 1 || outImg.RootFS.DiffIDs[0] != d {
		t.Errorf("diff ids = %v, want [%s]", outImg.RootFS.DiffIDs, d)
	}
	if len(outImg.History) != 1 || outImg.History[0].CreatedBy != "chunkah" {
		t.Errorf("unexpected history: %+v", outImg.History)
	}

	blobPath := "blobs/sha256/" + d.Encoded()
	if string(files[blobPath]) != "layer-one-bytes" {
		t.Errorf("layer blob contents = %q", files[blobPath])
	}
}

func TestAssemble_MismatchedLengthsIsError(t *testing.T) {
	img := &specs.Image{}
	var buf bytes.Buffer
	err := Assemble(&buf, img, []pack.Bucket{{}}, nil, time.Unix(0, 0))
	if err == nil {
		t.Fatal("expected an error for mismatched buckets/layers")
	}
}

func TestAssemble_DeterministicAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	path, d, size := stageBlob(t, dir, "deterministic-bytes")
	img := &specs.Image{Platform: specs.Platform{OS: "linux", Architecture: "amd64"}}
	buckets := []pack.Bucket{{Components: []pack.Component{{ID: "a", Size: 1}}, StabilityLabel: "0.500"}}
	layers := []layerwriter.Layer{{DiffID: d, BlobDigest: d, Size: size, StagedPath: path, MediaTypeSuffix: "gzip"}}
	epoch := time.Unix(1700000000, 0)

	var buf1, buf2 bytes.Buffer
	if err := Assemble(&buf1, img, buckets, layers, epoch); err != nil {
		t.Fatal(err)
	}
	img2 := &specs.Image{Platform: specs.Platform{OS: "linux", Architecture: "amd64"}}
	if err := Assemble(&buf2, img2, buckets, layers, epoch); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf1.Bytes(), buf2.Bytes()) {
		t.Fatal("expected byte-identical archives across runs")
	}
}
