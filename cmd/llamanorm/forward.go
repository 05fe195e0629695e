package main

import (
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/born-ml/llama-parallel/internal/backend/cpu"
	"github.com/born-ml/llama-parallel/internal/tensor"
)

func forwardCmd() *cli.Command {
	var (
		model modelOptions
		norm  string
		input string
	)

	return &cli.Command{
		Name:  "forward",
		Usage: "Normalize input rows with one norm of the model",
		Flags: append(modelFlags(&model),
			&cli.StringFlag{
				Name:        "norm",
				Usage:       "norm to run",
				Value:       "model.norm",
				Destination: &norm,
			},
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       `JSON rows, e.g. [[1,2,3,4]]; read from stdin when empty`,
				Destination: &input,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			backend := cpu.New()
			norms, err := model.buildNorms(ctx, cmd, backend)
			if err != nil {
				return err
			}
			layer, err := norms.Get(norm)
			if err != nil {
				return err
			}

			raw := []byte(input)
			if input == "" {
				if raw, err = io.ReadAll(cmd.Root().Reader); err != nil {
					return fmt.Errorf("read input: %w", err)
				}
			}
			var rows [][]float32
			if err := json.Unmarshal(raw, &rows); err != nil {
				return fmt.Errorf("parse input: %w", err)
			}

			dim := layer.Shape().Last()
			if len(rows) == 0 {
				return fmt.Errorf("input has no rows")
			}
			flat := make([]float32, 0, len(rows)*dim)
			for i, row := range rows {
				if len(row) != dim {
					return fmt.Errorf("input row %d has %d values, want %d", i, len(row), dim)
				}
				flat = append(flat, row...)
			}

			x, err := tensor.FromSlice(flat, tensor.Shape{len(rows), dim}, backend)
			if err != nil {
				return err
			}
			y := layer.Forward(x).Data()

			out := make([][]float32, len(rows))
			for i := range out {
				out[i] = y[i*dim : (i+1)*dim]
			}
			return json.NewEncoder(cmd.Root().Writer).Encode(map[string]any{
				"norm":   norm,
				"path":   layer.Path().String(),
				"output": out,
			})
		},
	}
}
