package fused

import (
	"fmt"
	"math"

	"github.com/born-ml/llama-parallel/internal/tensor"
)

// Validate checks the operands of an RMSNormAffine call and returns the
// number of normalized rows and the row width.
func Validate(input, weight *tensor.RawTensor, normalizedShape tensor.Shape) (rows, dim int, err error) {
	if len(normalizedShape) == 0 {
		return 0, 0, fmt.Errorf("fused: empty normalized shape")
	}
	if input.DType() != tensor.Float32 || weight.DType() != tensor.Float32 {
		return 0, 0, fmt.Errorf("fused: only float32 is supported, got input %s weight %s", input.DType(), weight.DType())
	}
	if !weight.Shape().Equal(normalizedShape) {
		return 0, 0, fmt.Errorf("fused: weight shape %v does not match normalized shape %v", weight.Shape(), normalizedShape)
	}
	if !input.Shape().HasSuffix(normalizedShape) {
		return 0, 0, fmt.Errorf("fused: input shape %v does not end with normalized shape %v", input.Shape(), normalizedShape)
	}

	return input.Shape().Leading(len(normalizedShape)), normalizedShape.NumElements(), nil
}

// ForwardRows normalizes rows [start, end) of x into y and records the
// inverse RMS of each row.
func ForwardRows(y, invRMS, x, w []float32, dim int, eps float32, start, end int) {
	for r := start; r < end; r++ {
		row := x[r*dim : (r+1)*dim]
		out := y[r*dim : (r+1)*dim]

		// Accumulate in float64 so long rows do not drift from the
		// composed fallback by more than rounding.
		var sumSq float64
		for _, v := range row {
			sumSq += float64(v) * float64(v)
		}
		inv := float32(1.0 / math.Sqrt(sumSq/float64(dim)+float64(eps)))
		invRMS[r] = inv

		for i, v := range row {
			out[i] = v * inv * w[i]
		}
	}
}

// BackwardRows computes the input gradient for rows [start, end) into dx and
// adds the weight gradient of those rows into dw.
//
// src is the saved input, or the saved output when memoryEfficient is set;
// in that mode the normalized value is recovered as y/w, and features whose
// weight is exactly zero contribute no weight gradient.
func BackwardRows(dx, dw, g, src, w, invRMS []float32, dim int, memoryEfficient bool, start, end int) {
	xhat := make([]float32, dim)

	for r := start; r < end; r++ {
		inv := invRMS[r]
		gRow := g[r*dim : (r+1)*dim]
		sRow := src[r*dim : (r+1)*dim]

		for i, v := range sRow {
			switch {
			case !memoryEfficient:
				xhat[i] = v * inv
			case w[i] != 0:
				xhat[i] = v / w[i]
			default:
				xhat[i] = 0
			}
		}

		var dot float64
		for i := range gRow {
			dot += float64(gRow[i]) * float64(w[i]) * float64(xhat[i])
		}
		c := float32(dot / float64(dim))

		out := dx[r*dim : (r+1)*dim]
		for i := range gRow {
			out[i] = inv * (gRow[i]*w[i] - xhat[i]*c)
			dw[i] += gRow[i] * xhat[i]
		}
	}
}

// ReferenceForward is the single-threaded RMSNormAffine forward pass.
func ReferenceForward(input, weight *tensor.RawTensor, normalizedShape tensor.Shape, eps float32, memoryEfficient bool) (*tensor.RawTensor, *Saved, error) {
	rows, dim, err := Validate(input, weight, normalizedShape)
	if err != nil {
		return nil, nil, err
	}

	output, err := tensor.NewRaw(input.Shape(), tensor.Float32, input.Device())
	if err != nil {
		return nil, nil, err
	}
	invRMS := make([]float32, rows)
	ForwardRows(output.AsFloat32(), invRMS, input.AsFloat32(), weight.AsFloat32(), dim, eps, 0, rows)

	return output, NewSaved(input, output, invRMS, normalizedShape, eps, memoryEfficient), nil
}

// ReferenceBackward is the single-threaded RMSNormAffine backward pass.
func ReferenceBackward(gradOutput, weight *tensor.RawTensor, saved *Saved) (gradInput, gradWeight *tensor.RawTensor, err error) {
	src, rows, dim, err := CheckSaved(gradOutput, weight, saved)
	if err != nil {
		return nil, nil, err
	}

	gradInput, gradWeight, err = NewGrads(gradOutput, weight)
	if err != nil {
		return nil, nil, err
	}
	BackwardRows(gradInput.AsFloat32(), gradWeight.AsFloat32(), gradOutput.AsFloat32(), src.AsFloat32(),
		weight.AsFloat32(), saved.InvRMS, dim, saved.MemoryEfficient, 0, rows)

	return gradInput, gradWeight, nil
}

// NewSaved keeps the tensor the backward pass needs for the chosen mode.
func NewSaved(input, output *tensor.RawTensor, invRMS []float32, normalizedShape tensor.Shape, eps float32, memoryEfficient bool) *Saved {
	s := &Saved{
		InvRMS:          invRMS,
		NormalizedShape: normalizedShape.Clone(),
		Eps:             eps,
		MemoryEfficient: memoryEfficient,
	}
	if memoryEfficient {
		s.Output = output
	} else {
		s.Input = input
	}
	return s
}

// CheckSaved validates a backward call and returns the saved source tensor.
func CheckSaved(gradOutput, weight *tensor.RawTensor, saved *Saved) (src *tensor.RawTensor, rows, dim int, err error) {
	if saved == nil {
		return nil, 0, 0, fmt.Errorf("fused: backward called before forward")
	}
	src = saved.Input
	if saved.MemoryEfficient {
		src = saved.Output
	}
	if src == nil {
		return nil, 0, 0, fmt.Errorf("fused: saved state has no tensor (memory efficient: %t)", saved.MemoryEfficient)
	}
	if !gradOutput.Shape().Equal(src.Shape()) {
		return nil, 0, 0, fmt.Errorf("fused: gradient shape %v does not match forward shape %v", gradOutput.Shape(), src.Shape())
	}

	rows, dim, err = Validate(gradOutput, weight, saved.NormalizedShape)
	if err != nil {
		return nil, 0, 0, err
	}
	if len(saved.InvRMS) != rows {
		return nil, 0, 0, fmt.Errorf("fused: saved %d rows, gradient has %d", len(saved.InvRMS), rows)
	}
	return src, rows, dim, nil
}

// NewGrads allocates zeroed input and weight gradients.
func NewGrads(gradOutput, weight *tensor.RawTensor) (gradInput, gradWeight *tensor.RawTensor, err error) {
	gradInput, err = tensor.NewRaw(gradOutput.Shape(), tensor.Float32, gradOutput.Device())
	if err != nil {
		return nil, nil, err
	}
	gradWeight, err = tensor.NewRaw(weight.Shape(), tensor.Float32, weight.Device())
	if err != nil {
		return nil, nil, err
	}
	return gradInput, gradWeight, nil
}

type reference struct{}

// Reference returns the single-threaded kernel. It is never registered; it
// serves as the oracle for kernel tests.
func Reference() RMSNormAffine {
	return &reference{}
}

func (*reference) Name() string { return "reference" }

func (*reference) Forward(input, weight *tensor.RawTensor, normalizedShape tensor.Shape, eps float32, memoryEfficient bool) (*tensor.RawTensor, *Saved, error) {
	return ReferenceForward(input, weight, normalizedShape, eps, memoryEfficient)
}

func (*reference) Backward(gradOutput, weight *tensor.RawTensor, saved *Saved) (*tensor.RawTensor, *tensor.RawTensor, error) {
	return ReferenceBackward(gradOutput, weight, saved)
}
