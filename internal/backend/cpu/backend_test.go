package cpu

import (
	"math"
	"testing"

	"github.com/born-ml/llama-parallel/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawFloat32(t *testing.T, shape tensor.Shape, values ...float32) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(raw.AsFloat32(), values)
	return raw
}

func TestCPUBackend_New(t *testing.T) {
	backend := New()
	require.NotNil(t, backend)
	assert.Equal(t, "CPU", backend.Name())
	assert.Equal(t, tensor.CPU, backend.Device())
}

func TestCPUBackend_Binary(t *testing.T) {
	backend := New()
	a := rawFloat32(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)
	b := rawFloat32(t, tensor.Shape{2, 3}, 10, 11, 12, 13, 14, 15)

	assert.Equal(t, []float32{11, 13, 15, 17, 19, 21}, backend.Add(a, b).AsFloat32())
	assert.Equal(t, []float32{-9, -9, -9, -9, -9, -9}, backend.Sub(a, b).AsFloat32())
	assert.Equal(t, []float32{10, 22, 36, 52, 70, 90}, backend.Mul(a, b).AsFloat32())
	assert.InDeltaSlice(t, []float32{0.1, 2.0 / 11, 0.25, 4.0 / 13, 5.0 / 14, 0.4}, backend.Div(a, b).AsFloat32(), 1e-6)

	// Operands are not modified.
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, a.AsFloat32())
}

func TestCPUBackend_Broadcast(t *testing.T) {
	backend := New()

	t.Run("TrailingVector", func(t *testing.T) {
		x := rawFloat32(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)
		w := rawFloat32(t, tensor.Shape{3}, 1, 10, 100)

		result := backend.Mul(x, w)
		assert.Equal(t, tensor.Shape{2, 3}, result.Shape())
		assert.Equal(t, []float32{1, 20, 300, 4, 50, 600}, result.AsFloat32())
	})

	t.Run("KeepDimColumn", func(t *testing.T) {
		x := rawFloat32(t, tensor.Shape{2, 2}, 1, 2, 3, 4)
		col := rawFloat32(t, tensor.Shape{2, 1}, 10, 100)

		assert.Equal(t, []float32{10, 20, 300, 400}, backend.Mul(x, col).AsFloat32())
	})

	t.Run("Incompatible", func(t *testing.T) {
		x := rawFloat32(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)
		w := rawFloat32(t, tensor.Shape{4}, 1, 1, 1, 1)

		assert.PanicsWithValue(t,
			"mul: shapes not compatible for broadcasting: [2 3] vs [4] (dimension 1: 3 vs 4)",
			func() { backend.Mul(x, w) })
	})
}

func TestCPUBackend_DTypeMismatch(t *testing.T) {
	backend := New()
	a := rawFloat32(t, tensor.Shape{2}, 1, 2)
	b, err := tensor.NewRaw(tensor.Shape{2}, tensor.Float64, tensor.CPU)
	require.NoError(t, err)

	assert.Panics(t, func() { backend.Add(a, b) })
}

func TestCPUBackend_Math(t *testing.T) {
	backend := New()
	x := rawFloat32(t, tensor.Shape{3}, 1, 4, 16)

	assert.InDeltaSlice(t, []float32{1, 2, 4}, backend.Sqrt(x).AsFloat32(), 1e-6)
	assert.InDeltaSlice(t, []float32{1, 0.5, 0.25}, backend.Rsqrt(x).AsFloat32(), 1e-6)
	assert.Equal(t, []float32{2, 8, 32}, backend.MulScalar(x, float32(2)).AsFloat32())
	assert.Equal(t, []float32{1.5, 4.5, 16.5}, backend.AddScalar(x, float32(0.5)).AsFloat32())

	edge := backend.Rsqrt(rawFloat32(t, tensor.Shape{2}, 0, -1)).AsFloat32()
	assert.True(t, math.IsInf(float64(edge[0]), 1))
	assert.True(t, math.IsNaN(float64(edge[1])))
}

func TestCPUBackend_Reshape(t *testing.T) {
	backend := New()
	x := rawFloat32(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)

	y := backend.Reshape(x, tensor.Shape{3, 2})
	assert.Equal(t, tensor.Shape{3, 2}, y.Shape())
	assert.Equal(t, x.AsFloat32(), y.AsFloat32())

	assert.Panics(t, func() { backend.Reshape(x, tensor.Shape{4}) })
}
