package loader

import (
	"encoding/binary"
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"slices"

	"github.com/goccy/go-json"
)

// Float32Tensor is a tensor to be written in F32.
type Float32Tensor struct {
	Shape []int
	Data  []float32
}

// WriteSafeTensors writes tensors in F32 with optional metadata. Tensors are
// laid out in name order.
func WriteSafeTensors(w io.Writer, tensors map[string]Float32Tensor, metadata map[string]string) error {
	names := slices.Sorted(maps.Keys(tensors))

	header := make(map[string]any, len(tensors)+1)
	if len(metadata) > 0 {
		header["__metadata__"] = metadata
	}

	var offset int64
	for _, name := range names {
		t := tensors[name]
		n := 1
		for _, d := range t.Shape {
			n *= d
		}
		if n != len(t.Data) {
			return fmt.Errorf("loader: tensor %s: shape %v needs %d values, got %d", name, t.Shape, n, len(t.Data))
		}
		size := int64(len(t.Data) * 4)
		header[name] = SafeTensorInfo{DType: SafeTensorsF32, Shape: t.Shape, DataOffsets: [2]int64{offset, offset + size}}
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("loader: marshal header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("loader: write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("loader: write header: %w", err)
	}

	for _, name := range names {
		data := tensors[name].Data
		buf := make([]byte, len(data)*4)
		for i, v := range data {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
		}
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("loader: write tensor %s: %w", name, err)
		}
	}
	return nil
}

// WriteSafeTensorsFile writes tensors to path.
func WriteSafeTensorsFile(path string, tensors map[string]Float32Tensor, metadata map[string]string) error {
	//nolint:gosec // G304: File path comes from user input
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("loader: create %s: %w", path, err)
	}
	if err := WriteSafeTensors(f, tensors, metadata); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
