// Command chunkah splits a container rootfs into a fixed number of
// deterministic, component-grouped OCI image layers.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kaito-project/chunkah/pkg/chunkerr"
)

var rootCmd = &cobra.Command{
	Use:           "chunkah",
	Short:         "Split a container rootfs into deterministic, component-grouped OCI layers",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(exitCode(err))
	}
}

// exitCode maps the engine's error taxonomy to a process exit status so
// callers (CI pipelines, build orchestrators) can branch on failure kind
// without parsing stderr.
func exitCode(err error) int {
	switch {
	case chunkerr.Is(err, chunkerr.IO):
		return 10
	case chunkerr.Is(err, chunkerr.Attribution):
		return 11
	case chunkerr.Is(err, chunkerr.Config):
		return 12
	case chunkerr.Is(err, chunkerr.InvalidArgument):
		return 13
	case chunkerr.Is(err, chunkerr.Internal):
		return 14
	default:
		return 1
	}
}

// rootContext returns a context cancelled on SIGINT/SIGTERM, so the
// walker and the per-bucket tar+compress fan-out observe cancellation
// between entries and between buckets respectively, per spec §4.8.
func rootContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return ctx
}

func init() {
	rootCmd.AddCommand(buildCmd)
}
