package loader

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/llama-parallel/internal/tensor"
)

func writeRaw(t *testing.T, header map[string]any, data []byte) string {
	t.Helper()
	headerJSON, err := json.Marshal(header)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(len(headerJSON))))
	buf.Write(headerJSON)
	buf.Write(data)

	path := filepath.Join(t.TempDir(), "model.safetensors")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestWriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.safetensors")
	require.NoError(t, WriteSafeTensorsFile(path, map[string]Float32Tensor{
		"model.norm.weight":                     {Shape: []int{4}, Data: []float32{1, 2, 3, 4}},
		"model.layers.0.input_layernorm.weight": {Shape: []int{2, 2}, Data: []float32{-1, 0.5, 0, 8}},
	}, map[string]string{"format": "pt"}))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, map[string]string{"format": "pt"}, r.Metadata())
	assert.Equal(t, []string{"model.layers.0.input_layernorm.weight", "model.norm.weight"}, r.TensorNames())

	values, shape, err := r.Tensor("model.norm.weight")
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{4}, shape)
	assert.Equal(t, []float32{1, 2, 3, 4}, values)

	values, shape, err = r.Tensor("model.layers.0.input_layernorm.weight")
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 2}, shape)
	assert.Equal(t, []float32{-1, 0.5, 0, 8}, values)

	_, _, err = r.Tensor("lm_head.weight")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
}

func TestReadHalfPrecision(t *testing.T) {
	// bf16: 1.0 = 0x3f80, -2.0 = 0xc000; f16: 1.0 = 0x3c00, 0.5 = 0x3800,
	// smallest subnormal = 0x0001, -inf = 0xfc00.
	data := []byte{}
	for _, v := range []uint16{0x3f80, 0xc000, 0x3c00, 0x3800, 0x0001, 0xfc00} {
		data = binary.LittleEndian.AppendUint16(data, v)
	}
	path := writeRaw(t, map[string]any{
		"bf": SafeTensorInfo{DType: SafeTensorsBF16, Shape: []int{2}, DataOffsets: [2]int64{0, 4}},
		"hf": SafeTensorInfo{DType: SafeTensorsF16, Shape: []int{4}, DataOffsets: [2]int64{4, 12}},
	}, data)

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	bf, _, err := r.Tensor("bf")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, -2}, bf)

	hf, _, err := r.Tensor("hf")
	require.NoError(t, err)
	assert.Equal(t, float32(1), hf[0])
	assert.Equal(t, float32(0.5), hf[1])
	assert.Equal(t, float32(math.Ldexp(1, -24)), hf[2])
	assert.True(t, math.IsInf(float64(hf[3]), -1))
}

func TestReadF64(t *testing.T) {
	data := binary.LittleEndian.AppendUint64(nil, math.Float64bits(0.25))
	path := writeRaw(t, map[string]any{
		"w": SafeTensorInfo{DType: SafeTensorsF64, Shape: []int{1}, DataOffsets: [2]int64{0, 8}},
	}, data)

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	w, _, err := r.Tensor("w")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25}, w)
}

func TestReadErrors(t *testing.T) {
	t.Run("unsupported dtype", func(t *testing.T) {
		path := writeRaw(t, map[string]any{
			"ids": SafeTensorInfo{DType: "I64", Shape: []int{1}, DataOffsets: [2]int64{0, 8}},
		}, make([]byte, 8))
		r, err := Open(path)
		require.NoError(t, err)
		defer r.Close()

		_, _, err = r.Tensor("ids")
		assert.ErrorContains(t, err, "unsupported dtype I64")
	})

	t.Run("offsets past end", func(t *testing.T) {
		path := writeRaw(t, map[string]any{
			"w": SafeTensorInfo{DType: SafeTensorsF32, Shape: []int{4}, DataOffsets: [2]int64{0, 16}},
		}, make([]byte, 8))
		r, err := Open(path)
		require.NoError(t, err)
		defer r.Close()

		_, _, err = r.Tensor("w")
		assert.ErrorContains(t, err, "invalid data offsets")
	})

	t.Run("size mismatch", func(t *testing.T) {
		path := writeRaw(t, map[string]any{
			"w": SafeTensorInfo{DType: SafeTensorsF32, Shape: []int{3}, DataOffsets: [2]int64{0, 8}},
		}, make([]byte, 8))
		r, err := Open(path)
		require.NoError(t, err)
		defer r.Close()

		_, _, err = r.Tensor("w")
		assert.ErrorContains(t, err, "8 bytes for shape [3]")
	})

	t.Run("header too large", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.safetensors")
		require.NoError(t, os.WriteFile(path, binary.LittleEndian.AppendUint64(nil, 1<<40), 0o600))
		_, err := Open(path)
		assert.ErrorContains(t, err, "invalid header size")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Open(filepath.Join(t.TempDir(), "missing.safetensors"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestWriteShapeMismatch(t *testing.T) {
	var buf bytes.Buffer
	err := WriteSafeTensors(&buf, map[string]Float32Tensor{"w": {Shape: []int{3}, Data: []float32{1}}}, nil)
	assert.ErrorContains(t, err, "needs 3 values, got 1")
}
