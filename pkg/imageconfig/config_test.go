package imageconfig

import (
	"testing"
	"time"

	"github.com/kaito-project/chunkah/pkg/chunkerr"
)

func TestDerive_MissingConfigIsFatalConfigError(t *testing.T) {
	_, err := Derive(nil, time.Unix(0, 0))
	if err == nil {
		t.Fatal("expected an error for empty config")
	}
	if !chunkerr.Is(err, chunkerr.Config) {
		t.Fatalf("expected Config-kind error, got %v", err)
	}
}

func TestDerive_MalformedJSONIsFatalConfigError(t *testing.T) {
	_, err := Derive([]byte("not json"), time.Unix(0, 0))
	if !chunkerr.Is(err, chunkerr.Config) {
		t.Fatalf("expected Config-kind error, got %v", err)
	}
}

func TestDerive_CarriesSourcePlatformAndFields(t *testing.T) {
	in := []byte(`{
		"Os": "linux",
		"Architecture": "arm64",
		"Config": {
			"Env": ["PATH=/usr/bin"],
			"Entrypoint": ["/bin/sh"],
			"Cmd": ["-c", "true"],
			"WorkingDir": "/app",
			"User": "1000:1000",
			"Labels": {"org.example": "1"}
		}
	}`)
	img, err := Derive(in, time.Unix(1700000000, 0))
	if err != nil {
		t.Fatal(err)
	}
	if img.Architecture != "arm64" {
		t.Errorf("architecture = %s, want arm64", img.Architecture)
	}
	if img.OS != "linux" {
		t.Errorf("os = %s, want linux", img.OS)
	}
	if img.Config.WorkingDir != "/app" {
		t.Errorf("workingdir = %s, want /app", img.Config.WorkingDir)
	}
	if len(img.RootFS.DiffIDs) != 0 {
		t.Errorf("expected empty DiffIDs before assembly, got %v", img.RootFS.DiffIDs)
	}
}
