// Package loader reads model weights from SafeTensors files.
//
// Files are memory-mapped read-only, so opening a multi-gigabyte checkpoint
// to pull a few normalization weights does not read the whole file.
//
//	r, err := loader.Open("model.safetensors")
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//	values, shape, err := r.Tensor("model.norm.weight")
package loader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/goccy/go-json"
	"golang.org/x/exp/mmap"

	"github.com/born-ml/llama-parallel/internal/tensor"
)

// SafeTensors format:
// [8 bytes: header_size (uint64 LE)]
// [header_size bytes: JSON header]
// [tensor data: raw bytes]

// ErrNotFound is returned for tensor names absent from the file.
var ErrNotFound = errors.New("loader: tensor not found")

// maxHeaderSize bounds the JSON header (100MB).
const maxHeaderSize = 100 * 1024 * 1024

// SafeTensorsDType represents SafeTensors data types.
type SafeTensorsDType string

// SafeTensors dtypes convertible to float32.
const (
	SafeTensorsF16  SafeTensorsDType = "F16"
	SafeTensorsBF16 SafeTensorsDType = "BF16"
	SafeTensorsF32  SafeTensorsDType = "F32"
	SafeTensorsF64  SafeTensorsDType = "F64"
)

// Size returns the element size in bytes, or 0 for unsupported dtypes.
func (d SafeTensorsDType) Size() int {
	switch d {
	case SafeTensorsF16, SafeTensorsBF16:
		return 2
	case SafeTensorsF32:
		return 4
	case SafeTensorsF64:
		return 8
	default:
		return 0
	}
}

// SafeTensorInfo describes a tensor in SafeTensors format.
type SafeTensorInfo struct {
	DType       SafeTensorsDType `json:"dtype"`
	Shape       []int            `json:"shape"`
	DataOffsets [2]int64         `json:"data_offsets"` // [start, end) relative to the data section
}

// SafeTensorsHeader is the JSON header in SafeTensors format.
type SafeTensorsHeader struct {
	Metadata map[string]string
	Tensors  map[string]SafeTensorInfo
}

// UnmarshalJSON separates __metadata__ from the tensor entries.
func (h *SafeTensorsHeader) UnmarshalJSON(data []byte) error {
	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(data, &rawMap); err != nil {
		return err
	}

	if metadataRaw, ok := rawMap["__metadata__"]; ok {
		if err := json.Unmarshal(metadataRaw, &h.Metadata); err != nil {
			return fmt.Errorf("metadata: %w", err)
		}
		delete(rawMap, "__metadata__")
	}

	h.Tensors = make(map[string]SafeTensorInfo, len(rawMap))
	for key, value := range rawMap {
		var info SafeTensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return fmt.Errorf("tensor %s: %w", key, err)
		}
		h.Tensors[key] = info
	}
	return nil
}

// SafeTensorsReader reads tensors from a memory-mapped SafeTensors file.
type SafeTensorsReader struct {
	data       *mmap.ReaderAt
	header     SafeTensorsHeader
	dataOffset int64
}

// Open maps path and parses its header.
func Open(path string) (*SafeTensorsReader, error) {
	data, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: open %s: %w", path, err)
	}

	r, err := newReader(data)
	if err != nil {
		_ = data.Close() // Best effort close on error
		return nil, fmt.Errorf("loader: %s: %w", path, err)
	}
	return r, nil
}

func newReader(data *mmap.ReaderAt) (*SafeTensorsReader, error) {
	var sizeBuf [8]byte
	if _, err := data.ReadAt(sizeBuf[:], 0); err != nil {
		return nil, fmt.Errorf("read header size: %w", err)
	}
	headerSize := binary.LittleEndian.Uint64(sizeBuf[:])
	if headerSize > maxHeaderSize || int64(headerSize) > int64(data.Len())-8 { //nolint:gosec // G115: bounded by maxHeaderSize
		return nil, fmt.Errorf("invalid header size: %d", headerSize)
	}

	headerBytes := make([]byte, headerSize)
	if _, err := data.ReadAt(headerBytes, 8); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var header SafeTensorsHeader
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("parse header JSON: %w", err)
	}

	return &SafeTensorsReader{
		data:       data,
		header:     header,
		dataOffset: int64(8 + headerSize), //nolint:gosec // G115: bounded by maxHeaderSize
	}, nil
}

// Close unmaps the file.
func (r *SafeTensorsReader) Close() error {
	if r.data != nil {
		err := r.data.Close()
		r.data = nil
		return err
	}
	return nil
}

// Metadata returns the metadata map from the header.
func (r *SafeTensorsReader) Metadata() map[string]string {
	return r.header.Metadata
}

// TensorNames returns the tensor names in sorted order.
func (r *SafeTensorsReader) TensorNames() []string {
	names := make([]string, 0, len(r.header.Tensors))
	for name := range r.header.Tensors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// TensorInfo returns information about a specific tensor.
func (r *SafeTensorsReader) TensorInfo(name string) (*SafeTensorInfo, error) {
	info, ok := r.header.Tensors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return &info, nil
}

// ReadTensorData returns a copy of the raw bytes of a tensor.
func (r *SafeTensorsReader) ReadTensorData(name string) ([]byte, error) {
	info, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}

	start := r.dataOffset + info.DataOffsets[0]
	end := r.dataOffset + info.DataOffsets[1]
	if info.DataOffsets[0] < 0 || end < start || end > int64(r.data.Len()) {
		return nil, fmt.Errorf("loader: invalid data offsets for tensor %s: [%d, %d]",
			name, info.DataOffsets[0], info.DataOffsets[1])
	}

	buf := make([]byte, end-start)
	if _, err := r.data.ReadAt(buf, start); err != nil {
		return nil, fmt.Errorf("loader: read tensor %s: %w", name, err)
	}
	return buf, nil
}

// Tensor reads a tensor and converts it to float32.
func (r *SafeTensorsReader) Tensor(name string) ([]float32, tensor.Shape, error) {
	info, err := r.TensorInfo(name)
	if err != nil {
		return nil, nil, err
	}

	shape := tensor.Shape(info.Shape)
	if err := shape.Validate(); err != nil {
		return nil, nil, fmt.Errorf("loader: invalid shape for tensor %s: %w", name, err)
	}

	size := info.DType.Size()
	if size == 0 {
		return nil, nil, fmt.Errorf("loader: tensor %s: unsupported dtype %s", name, info.DType)
	}

	data, err := r.ReadTensorData(name)
	if err != nil {
		return nil, nil, err
	}
	if len(data) != shape.NumElements()*size {
		return nil, nil, fmt.Errorf("loader: tensor %s: %d bytes for shape %v of %s", name, len(data), shape, info.DType)
	}

	return decode(info.DType, data), shape.Clone(), nil
}

func decode(dtype SafeTensorsDType, data []byte) []float32 {
	n := len(data) / dtype.Size()
	out := make([]float32, n)
	for i := range out {
		switch dtype {
		case SafeTensorsF32:
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		case SafeTensorsF64:
			out[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:])))
		case SafeTensorsBF16:
			out[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(data[i*2:])) << 16)
		case SafeTensorsF16:
			out[i] = float16ToFloat32(binary.LittleEndian.Uint16(data[i*2:]))
		}
	}
	return out
}

// float16ToFloat32 converts IEEE 754 half precision to single precision.
func float16ToFloat32(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := int32(h>>10) & 0x1f
	mant := uint32(h) & 0x3ff

	switch {
	case exp == 0 && mant == 0:
		return math.Float32frombits(sign)
	case exp == 0:
		// Subnormal: shift until the implicit bit appears.
		exp = 1
		for mant&0x400 == 0 {
			mant <<= 1
			exp--
		}
		mant &= 0x3ff
	case exp == 0x1f:
		return math.Float32frombits(sign | 0xff<<23 | mant<<13)
	}
	return math.Float32frombits(sign | uint32(exp+127-15)<<23 | mant<<13) //nolint:gosec // G115: exp+112 is positive
}
