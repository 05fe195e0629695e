// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public tensor API used by the normalization layers.
//
// # Overview
//
// Tensors are the data structure every layer and backend in this module works on:
//   - Generic type-safe tensors (Tensor[T, B])
//   - NumPy-style broadcasting for binary operations
//   - Device abstraction (CPU, WebGPU)
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/llama-parallel/backend/cpu"
//	    "github.com/born-ml/llama-parallel/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//
//	    x, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{1, 4}, backend)
//	    ms := x.Mul(x).MeanDim(-1, true)
//	    y := x.Mul(ms.AddScalar(1e-6).Rsqrt())
//	}
//
// # Supported Data Types
//
// The DType constraint admits float32 and float64. Normalization layers
// operate on float32.
package tensor
