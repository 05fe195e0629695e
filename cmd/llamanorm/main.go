// Command llamanorm inspects and runs the RMSNorm layers of a Llama model.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	// Fused kernels register themselves on import.
	_ "github.com/born-ml/llama-parallel/internal/backend/webgpu"
	_ "github.com/born-ml/llama-parallel/internal/fused/cpufused"
)

var version = "v0.1.0-dev"

func newApp() *cli.Command {
	var logOpts loggingOptions

	return &cli.Command{
		Name:   "llamanorm",
		Usage:  "Llama RMSNorm layers for model-parallel training",
		Flags:  loggingFlags(&logOpts),
		Before: logOpts.before,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			probeCmd(),
			forwardCmd(),
			serveCmd(),
			versionCmd(),
		},
	}
}

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			_, err := fmt.Fprintf(cmd.Root().Writer, "llamanorm %s\n", version)
			return err
		},
	}
}

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
