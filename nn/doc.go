// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the normalization layers of a Llama decoder.
//
// # Overview
//
// This package contains:
//   - Module and Parameter, the building blocks shared by every layer
//   - RMSNorm, the generic RMS normalization composed from tensor operations
//   - ParallelRMSNorm, RMSNorm for model-parallel training that dispatches to
//     a fused kernel when one is linked in and available
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/llama-parallel/backend/cpu"
//	    "github.com/born-ml/llama-parallel/config"
//	    "github.com/born-ml/llama-parallel/nn"
//
//	    _ "github.com/born-ml/llama-parallel/backend/cpufused"
//	)
//
//	func main() {
//	    cfg, _ := config.LoadLlamaConfig("config.json")
//	    norm, err := nn.NewParallelRMSNorm(cfg, config.DefaultModelParallelConfig(), cpu.New())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    y := norm.Forward(x)
//	}
//
// # Sequence Parallelism
//
// When the parallel configuration enables sequence parallelism, the scale
// parameter carries the attribute "sequence_parallel" set to true. The
// training framework uses SequenceParallelParameters to find the gradients it
// must all-reduce across the tensor-parallel group.
package nn
