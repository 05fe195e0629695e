package cpu

import (
	"fmt"

	"github.com/born-ml/llama-parallel/internal/tensor"
)

// SumDim sums along dim. Negative dims count from the end.
//
// Shapes (keepDim=true):  [a, b, c] -> [a, 1, c]
// Shapes (keepDim=false): [a, b, c] -> [a, c]
func (cpu *CPUBackend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	shape := x.Shape()
	dim = normalizeDim("sumdim", dim, len(shape))

	result, err := tensor.NewRaw(reducedShape(shape, dim, keepDim), x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("sumdim: %v", err))
	}

	switch x.DType() {
	case tensor.Float32:
		sumDim(x.AsFloat32(), result.AsFloat32(), shape, dim)
	case tensor.Float64:
		sumDim(x.AsFloat64(), result.AsFloat64(), shape, dim)
	default:
		panic(fmt.Sprintf("sumdim: unsupported dtype %s", x.DType()))
	}

	return result
}

// MeanDim averages along dim. Negative dims count from the end.
func (cpu *CPUBackend) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	result := cpu.SumDim(x, dim, keepDim)
	n := x.Shape()[normalizeDim("meandim", dim, len(x.Shape()))]

	switch result.DType() {
	case tensor.Float32:
		scale(result.AsFloat32(), float32(n))
	case tensor.Float64:
		scale(result.AsFloat64(), float64(n))
	}
	return result
}

func scale[T tensor.DType](data []T, divisor T) {
	for i := range data {
		data[i] /= divisor
	}
}

// sumDim reduces data viewed as [outer, size, inner] along the middle axis.
func sumDim[T tensor.DType](data, result []T, shape tensor.Shape, dim int) {
	outer := 1
	for i := 0; i < dim; i++ {
		outer *= shape[i]
	}
	inner := 1
	for i := dim + 1; i < len(shape); i++ {
		inner *= shape[i]
	}
	size := shape[dim]

	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			var sum T
			base := o*size*inner + in
			for k := 0; k < size; k++ {
				sum += data[base+k*inner]
			}
			result[o*inner+in] = sum
		}
	}
}

func normalizeDim(op string, dim, ndim int) int {
	if dim < 0 {
		dim += ndim
	}
	if dim < 0 || dim >= ndim {
		panic(fmt.Sprintf("%s: dimension %d out of range for %dD tensor", op, dim, ndim))
	}
	return dim
}

func reducedShape(shape tensor.Shape, dim int, keepDim bool) tensor.Shape {
	if keepDim {
		out := shape.Clone()
		out[dim] = 1
		return out
	}
	out := make(tensor.Shape, 0, len(shape)-1)
	out = append(out, shape[:dim]...)
	return append(out, shape[dim+1:]...)
}
