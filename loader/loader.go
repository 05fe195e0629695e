// Package loader reads normalization weights from SafeTensors files.
//
// Example usage:
//
//	import (
//	    "github.com/born-ml/llama-parallel/loader"
//	)
//
//	r, err := loader.Open("model.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	values, shape, err := r.Tensor("model.norm.weight")
package loader

import (
	"io"

	"github.com/born-ml/llama-parallel/internal/loader"
)

// ErrNotFound is returned when a tensor name is not in the file.
var ErrNotFound = loader.ErrNotFound

// Reader is a memory-mapped SafeTensors file.
type Reader = loader.SafeTensorsReader

// DType is the element type recorded in a SafeTensors header.
type DType = loader.SafeTensorsDType

// TensorInfo describes one tensor in a SafeTensors header.
type TensorInfo = loader.SafeTensorInfo

// Float32Tensor is a tensor to be written by WriteSafeTensors.
type Float32Tensor = loader.Float32Tensor

// Open memory-maps a SafeTensors file and parses its header.
func Open(path string) (*Reader, error) {
	return loader.Open(path)
}

// WriteSafeTensors encodes tensors as float32 SafeTensors.
func WriteSafeTensors(w io.Writer, tensors map[string]Float32Tensor, metadata map[string]string) error {
	return loader.WriteSafeTensors(w, tensors, metadata)
}

// WriteSafeTensorsFile writes tensors to path.
func WriteSafeTensorsFile(path string, tensors map[string]Float32Tensor, metadata map[string]string) error {
	return loader.WriteSafeTensorsFile(path, tensors, metadata)
}
