package main

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kaito-project/chunkah/internal/logging"
	"github.com/kaito-project/chunkah/pkg/attributor"
	"github.com/kaito-project/chunkah/pkg/chunkah"
	"github.com/kaito-project/chunkah/pkg/chunkerr"
)

var buildFlags struct {
	rootfs       string
	layers       int
	pruneTmp     bool
	prune        []string
	codec        string
	verbose      bool
	packageIndex string
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Split the configured rootfs into layers and emit an OCI image layout on stdout",
	RunE:  runBuild,
}

func init() {
	flags := buildCmd.Flags()
	flags.StringVar(&buildFlags.rootfs, "rootfs", "", "root to enumerate (default: $CHUNKAH_ROOTFS or /chunkah)")
	flags.IntVar(&buildFlags.layers, "layers", 64, "target layer count")
	flags.BoolVar(&buildFlags.pruneTmp, "prune-tmp", false, "empty /run, /tmp, /var/tmp while keeping the directories")
	flags.StringArrayVar(&buildFlags.prune, "prune", nil, "additional exact-path prune (repeatable)")
	flags.StringVar(&buildFlags.codec, "codec", "zstd", "layer compression codec: zstd or gzip")
	flags.BoolVarP(&buildFlags.verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&buildFlags.packageIndex, "package-index", "", "path to a JSON-encoded attributor.PackageIndex (package name -> owned paths); drives the RPM attributor when set")
}

func runBuild(cmd *cobra.Command, args []string) error {
	logging.SetVerbose(buildFlags.verbose)

	rootfs := buildFlags.rootfs
	if rootfs == "" {
		rootfs = os.Getenv("CHUNKAH_ROOTFS")
	}
	if rootfs == "" {
		rootfs = "/chunkah"
	}

	epoch, err := parseSourceDateEpoch(os.Getenv("SOURCE_DATE_EPOCH"))
	if err != nil {
		return err
	}

	configStr := os.Getenv("CHUNKAH_CONFIG_STR")
	if configStr == "" {
		return chunkerr.Wrap(chunkerr.Config, "CHUNKAH_CONFIG_STR", errMissingConfig)
	}

	attr, err := loadAttributor(buildFlags.packageIndex)
	if err != nil {
		return err
	}

	opts := chunkah.Options{
		RootfsPath: rootfs,
		Layers:     buildFlags.layers,
		PruneTmp:   buildFlags.pruneTmp,
		Prune:      buildFlags.prune,
		ConfigJSON: []byte(configStr),
		Epoch:      epoch,
		Attributor: attr,
		Codec:      buildFlags.codec,
	}

	logging.Stage("build").WithField("rootfs", rootfs).WithField("layers", opts.Layers).Info("starting")
	if err := chunkah.Build(rootContext(), opts, cmd.OutOrStdout()); err != nil {
		return err
	}
	logging.Stage("build").Info("done")
	return nil
}

// loadAttributor reads path as a JSON-encoded attributor.PackageIndex and
// builds the reference RPM attributor from it. Parsing the actual RPM
// database (BerkeleyDB/NDB/SQLite) is out of scope per spec §1; this is
// the hook a caller uses once that parsing has happened elsewhere. An
// empty path leaves every path unattributed (a single output layer).
func loadAttributor(path string) (attributor.Attributor, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, chunkerr.Wrap(chunkerr.Attribution, path, err)
	}
	var idx attributor.PackageIndex
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, chunkerr.Wrap(chunkerr.Attribution, path, err)
	}
	return attributor.NewRPM(idx), nil
}

// parseSourceDateEpoch parses SOURCE_DATE_EPOCH per spec §6: an empty
// value defaults to the Unix epoch, a present-but-malformed value is a
// fatal InvalidArgument error.
func parseSourceDateEpoch(raw string) (time.Time, error) {
	if raw == "" {
		return time.Unix(0, 0).UTC(), nil
	}
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, chunkerr.Wrap(chunkerr.InvalidArgument, "SOURCE_DATE_EPOCH", err)
	}
	return time.Unix(seconds, 0).UTC(), nil
}

type missingConfigError string

func (e missingConfigError) Error() string { return string(e) }

var errMissingConfig = missingConfigError("CHUNKAH_CONFIG_STR is required and must not be empty")
