// Package imageconfig derives the output OCI image configuration from
// the source image's "docker inspect"-shaped JSON, per spec §4.4 (Config
// row) and §6 (CHUNKAH_CONFIG_STR). Parsing this JSON is the only
// required external input besides the rootfs itself; a missing or
// malformed value is always a fatal Config-kind error.
package imageconfig

import (
	"encoding/json"
	"time"

	"github.com/containerd/platforms"
	digest "github.com/opencontainers/go-digest"
	specs "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/kaito-project/chunkah/pkg/chunkerr"
)

// inspectConfig mirrors the subset of `docker image inspect --format
// '{{json .}}'` output chunkah depends on.
type inspectConfig struct {
	Os           string `json:"Os"`
	Architecture string `json:"Architecture"`
	Variant      string `json:"Variant,omitempty"`
	Config       struct {
		Env          []string            `json:"Env"`
		Entrypoint   []string            `json:"Entrypoint"`
		Cmd          []string            `json:"Cmd"`
		WorkingDir   string              `json:"WorkingDir"`
		User         string              `json:"User"`
		Labels       map[string]string   `json:"Labels"`
		ExposedPorts map[string]struct{} `json:"ExposedPorts"`
		Volumes      map[string]struct{} `json:"Volumes"`
	} `json:"Config"`
}

// Derive parses inspectJSON (the verbatim value of CHUNKAH_CONFIG_STR)
// into an OCI image config. RootFS and History are left zeroed; the
// image assembler overwrites both once every layer has been staged.
//
// The source platform (os/architecture/variant) is normalized with
// containerd/platforms and carried through verbatim to the output,
// resolving spec §9's open question (a): chunkah never substitutes the
// host platform for the source's.
func Derive(inspectJSON []byte, created time.Time) (*specs.Image, error) {
	if len(inspectJSON) == 0 {
		return nil, chunkerr.Wrap(chunkerr.Config, "CHUNKAH_CONFIG_STR", errEmptyConfig)
	}

	var in inspectConfig
	if err := json.Unmarshal(inspectJSON, &in); err != nil {
		return nil, chunkerr.Wrap(chunkerr.Config, "CHUNKAH_CONFIG_STR", err)
	}

	rawPlatform := specs.Platform{OS: in.Os, Architecture: in.Architecture, Variant: in.Variant}
	platform := platforms.Normalize(rawPlatform)

	img := &specs.Image{
		Created:  &created,
		Platform: platform,
		RootFS:   specs.RootFS{Type: "layers", DiffIDs: []digest.Digest{}},
	}
	img.Config.Env = in.Config.Env
	img.Config.Entrypoint = in.Config.Entrypoint
	img.Config.Cmd = in.Config.Cmd
	img.Config.WorkingDir = in.Config.WorkingDir
	img.Config.User = in.Config.User
	img.Config.Labels = in.Config.Labels
	img.Config.ExposedPorts = in.Config.ExposedPorts
	img.Config.Volumes = in.Config.Volumes

	return img, nil
}

var errEmptyConfig = configError("CHUNKAH_CONFIG_STR is required and must not be empty")

type configError string

func (e configError) Error() string { return string(e) }
