package tensor

// Backend defines the operations a compute backend provides to Tensor.
//
// Backends receive RawTensors and return freshly allocated results. Operand
// errors (incompatible shapes, unsupported dtypes) panic with the operation
// name; there is no recovery a caller could perform for them.
type Backend interface {
	// Element-wise binary operations with broadcasting.
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// Scalar operations.
	MulScalar(x *RawTensor, scalar any) *RawTensor
	AddScalar(x *RawTensor, scalar any) *RawTensor

	// Element-wise math.
	Sqrt(x *RawTensor) *RawTensor
	Rsqrt(x *RawTensor) *RawTensor

	// Reductions along one dimension (negative dims count from the end).
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor
	MeanDim(x *RawTensor, dim int, keepDim bool) *RawTensor

	// Reshape returns a tensor with the same elements and a new shape.
	Reshape(t *RawTensor, newShape Shape) *RawTensor

	Name() string
	Device() Device
}
