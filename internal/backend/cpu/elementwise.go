package cpu

import "github.com/born-ml/llama-parallel/internal/tensor"

type binaryOp int

const (
	opAdd binaryOp = iota
	opSub
	opMul
	opDiv
)

func apply[T tensor.DType](op binaryOp, x, y T) T {
	switch op {
	case opAdd:
		return x + y
	case opSub:
		return x - y
	case opMul:
		return x * y
	case opDiv:
		return x / y
	default:
		panic("unknown binary op")
	}
}

// applyBinary writes op(a, b) into out, walking broadcast strides when the
// operand shapes differ.
func applyBinary[T tensor.DType](op binaryOp, out, a, b []T, aShape, bShape, outShape tensor.Shape, needsBroadcast bool) {
	if !needsBroadcast {
		for i := range out {
			out[i] = apply(op, a[i], b[i])
		}
		return
	}

	outStrides := outShape.ComputeStrides()
	aStrides := broadcastStrides(aShape, outShape)
	bStrides := broadcastStrides(bShape, outShape)

	for i := range out {
		out[i] = apply(op, a[flatIndex(i, outStrides, aStrides)], b[flatIndex(i, outStrides, bStrides)])
	}
}

// broadcastStrides returns strides of inShape aligned to outShape, with 0 for
// every dimension that is padded or has size 1.
func broadcastStrides(inShape, outShape tensor.Shape) []int {
	strides := make([]int, len(outShape))
	offset := len(outShape) - len(inShape)
	orig := inShape.ComputeStrides()

	for i := range outShape {
		j := i - offset
		if j < 0 || inShape[j] == 1 {
			continue
		}
		strides[i] = orig[j]
	}
	return strides
}

// flatIndex maps a flat output index to the operand index given broadcast strides.
func flatIndex(outIdx int, outStrides, inStrides []int) int {
	idx := 0
	for i, s := range outStrides {
		coord := outIdx / s
		outIdx %= s
		idx += coord * inStrides[i]
	}
	return idx
}
