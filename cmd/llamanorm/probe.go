package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/llama-parallel/internal/fused"
	"github.com/born-ml/llama-parallel/internal/logger"
	"github.com/born-ml/llama-parallel/internal/nn"
)

func probeCmd() *cli.Command {
	return &cli.Command{
		Name:  "probe",
		Usage: "List fused kernels and show which execution path would be used",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			w := cmd.Root().Writer

			providers := fused.Providers()
			if _, err := fmt.Fprintf(w, "registered kernels: %s\n", strings.Join(providers, ", ")); err != nil {
				return err
			}

			path, kernel := nn.PathFallback, "none"
			if k := fused.Probe(logger.FromContext(ctx)); k != nil {
				path, kernel = nn.PathAccelerated, k.Name()
			}
			_, err := fmt.Fprintf(w, "selected kernel: %s\npath: %s\n", kernel, path)
			return err
		},
	}
}
