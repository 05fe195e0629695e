// Package cpufused provides a row-parallel fused RMSNorm kernel for the CPU.
// Importing it registers the "cpu-fused" provider with package fused.
package cpufused

import (
	"fmt"
	"sync"

	"github.com/born-ml/llama-parallel/internal/fused"
	"github.com/born-ml/llama-parallel/internal/parallel"
	"github.com/born-ml/llama-parallel/internal/tensor"
)

// ProviderName is the name the kernel registers under.
const ProviderName = "cpu-fused"

func init() {
	fused.Register(ProviderName, provide)
}

func provide() (fused.RMSNormAffine, error) {
	if !hasVector {
		return nil, fmt.Errorf("%s: no %s vector unit: %w", ProviderName, vectorISA, fused.ErrUnavailable)
	}
	return New(parallel.DefaultConfig()), nil
}

// Kernel normalizes rows in a single pass, splitting rows across goroutines.
type Kernel struct {
	cfg parallel.Config
}

// New creates a kernel with the given parallel configuration. It does not
// check for vector support; the registered provider does.
func New(cfg parallel.Config) *Kernel {
	return &Kernel{cfg: cfg}
}

// Name implements fused.RMSNormAffine.
func (k *Kernel) Name() string {
	return ProviderName
}

// Forward implements fused.RMSNormAffine.
func (k *Kernel) Forward(input, weight *tensor.RawTensor, normalizedShape tensor.Shape, eps float32, memoryEfficient bool) (*tensor.RawTensor, *fused.Saved, error) {
	rows, dim, err := fused.Validate(input, weight, normalizedShape)
	if err != nil {
		return nil, nil, err
	}

	output, err := tensor.NewRaw(input.Shape(), tensor.Float32, input.Device())
	if err != nil {
		return nil, nil, err
	}
	invRMS := make([]float32, rows)

	y, x, w := output.AsFloat32(), input.AsFloat32(), weight.AsFloat32()
	parallel.Rows(rows, func(start, end int) {
		fused.ForwardRows(y, invRMS, x, w, dim, eps, start, end)
	}, k.cfg)

	return output, fused.NewSaved(input, output, invRMS, normalizedShape, eps, memoryEfficient), nil
}

// Backward implements fused.RMSNormAffine. Each row range accumulates its
// own weight gradient, and the partial sums are added under a lock.
func (k *Kernel) Backward(gradOutput, weight *tensor.RawTensor, saved *fused.Saved) (*tensor.RawTensor, *tensor.RawTensor, error) {
	src, rows, dim, err := fused.CheckSaved(gradOutput, weight, saved)
	if err != nil {
		return nil, nil, err
	}
	gradInput, gradWeight, err := fused.NewGrads(gradOutput, weight)
	if err != nil {
		return nil, nil, err
	}

	dx, dw := gradInput.AsFloat32(), gradWeight.AsFloat32()
	g, s, w := gradOutput.AsFloat32(), src.AsFloat32(), weight.AsFloat32()

	var mu sync.Mutex
	parallel.Rows(rows, func(start, end int) {
		partial := make([]float32, dim)
		fused.BackwardRows(dx, partial, g, s, w, saved.InvRMS, dim, saved.MemoryEfficient, start, end)

		mu.Lock()
		for i, v := range partial {
			dw[i] += v
		}
		mu.Unlock()
	}, k.cfg)

	return gradInput, gradWeight, nil
}
