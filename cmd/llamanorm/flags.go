package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/llama-parallel/internal/backend/cpu"
	"github.com/born-ml/llama-parallel/internal/config"
	"github.com/born-ml/llama-parallel/internal/fused"
	"github.com/born-ml/llama-parallel/internal/llama"
	"github.com/born-ml/llama-parallel/internal/loader"
	"github.com/born-ml/llama-parallel/internal/logger"
	"github.com/born-ml/llama-parallel/internal/nn"
)

type loggingOptions struct {
	level  string
	format string
}

func loggingFlags(o *loggingOptions) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &o.level,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (text, json)",
			Value:       "text",
			Destination: &o.format,
		},
	}
}

// before installs the logger in the context handed to every subcommand.
func (o *loggingOptions) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	errWriter := cmd.Root().ErrWriter
	if errWriter == nil {
		errWriter = os.Stderr
	}
	log := logger.ForFormat(errWriter, o.format, logger.ParseLevel(o.level))
	return logger.WithContext(ctx, log), nil
}

// modelOptions are the flags shared by commands that build the norm stack.
type modelOptions struct {
	configPath     string
	parallelPath   string
	weightsPath    string
	kernel         string
	fallback       bool
	seqParallel    bool
	tensorParallel int64
}

func modelFlags(o *modelOptions) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "path to the model config.json",
			Required:    true,
			Destination: &o.configPath,
		},
		&cli.StringFlag{
			Name:        "parallel",
			Aliases:     []string{"p"},
			Usage:       "path to the model-parallel YAML config",
			Destination: &o.parallelPath,
		},
		&cli.StringFlag{
			Name:        "weights",
			Aliases:     []string{"w"},
			Usage:       "safetensors file to load norm weights from",
			Destination: &o.weightsPath,
		},
		&cli.StringFlag{
			Name:        "kernel",
			Usage:       "use the named fused kernel instead of probing",
			Destination: &o.kernel,
		},
		&cli.BoolFlag{
			Name:        "fallback",
			Usage:       "force the generic RMSNorm path",
			Destination: &o.fallback,
		},
		&cli.BoolFlag{
			Name:        "sequence-parallel",
			Usage:       "tag norm weights as sequence-parallel (overrides the YAML config)",
			Destination: &o.seqParallel,
		},
		&cli.Int64Flag{
			Name:        "tensor-parallel-size",
			Usage:       "tensor model parallel size (overrides the YAML config)",
			Value:       1,
			Destination: &o.tensorParallel,
		},
	}
}

// parallelConfig reads the YAML file when given and applies explicitly set flags on top.
func (o *modelOptions) parallelConfig(cmd *cli.Command) (*config.ModelParallelConfig, error) {
	mp := config.DefaultModelParallelConfig()
	if o.parallelPath != "" {
		var err error
		if mp, err = config.LoadModelParallelConfig(o.parallelPath); err != nil {
			return nil, err
		}
	}
	if cmd.IsSet("sequence-parallel") {
		mp.SequenceParallel = o.seqParallel
	}
	if cmd.IsSet("tensor-parallel-size") {
		mp.TensorModelParallelSize = int(o.tensorParallel)
	}
	if err := mp.Validate(); err != nil {
		return nil, err
	}
	return mp, nil
}

// buildNorms assembles the norm stack described by the flags.
func (o *modelOptions) buildNorms(ctx context.Context, cmd *cli.Command, backend *cpu.CPUBackend) (*llama.Norms[*cpu.CPUBackend], error) {
	log := logger.FromContext(ctx)

	cfg, err := config.LoadLlamaConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	mp, err := o.parallelConfig(cmd)
	if err != nil {
		return nil, err
	}

	opts := []nn.Option{nn.WithLogger(log)}
	switch {
	case o.fallback && o.kernel != "":
		return nil, fmt.Errorf("--fallback and --kernel are mutually exclusive")
	case o.fallback:
		opts = append(opts, nn.WithFallback())
	case o.kernel != "":
		k, err := fused.Lookup(o.kernel)
		if err != nil {
			return nil, err
		}
		opts = append(opts, nn.WithKernel(k))
	}

	norms, err := llama.NewNorms(cfg, mp, backend, opts...)
	if err != nil {
		return nil, err
	}

	if o.weightsPath != "" {
		r, err := loader.Open(o.weightsPath)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		if err := norms.LoadWeights(r); err != nil {
			return nil, err
		}
		log.Info("loaded norm weights", "path", o.weightsPath, "norms", norms.Len())
	}

	log.Debug("norm stack ready", "norms", norms.Len(), "path", norms.Path().String(),
		"sequence_parallel", mp.SequenceParallel)
	return norms, nil
}
