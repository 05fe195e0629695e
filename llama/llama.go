// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package llama builds every RMSNorm of a Llama model at once.
//
// Example:
//
//	norms, err := llama.NewNorms(cfg, mp, cpu.New())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	r, _ := loader.Open("model.safetensors")
//	defer r.Close()
//	if err := norms.LoadWeights(r); err != nil {
//	    log.Fatal(err)
//	}
package llama

import (
	"github.com/born-ml/llama-parallel/internal/config"
	"github.com/born-ml/llama-parallel/internal/llama"
	"github.com/born-ml/llama-parallel/internal/nn"
	"github.com/born-ml/llama-parallel/internal/tensor"
)

// FinalNorm is the name of the norm after the last decoder layer.
const FinalNorm = llama.FinalNorm

// ErrUnknownNorm is returned by Get for names the model does not have.
var ErrUnknownNorm = llama.ErrUnknownNorm

// WeightSource supplies checkpoint tensors by name.
type WeightSource = llama.WeightSource

// Norms holds the RMSNorms of a Llama model.
type Norms[B tensor.Backend] = llama.Norms[B]

// NewNorms builds two norms per decoder layer plus the final norm.
func NewNorms[B tensor.Backend](cfg *config.LlamaConfig, mp *config.ModelParallelConfig, backend B, opts ...nn.Option) (*Norms[B], error) {
	return llama.NewNorms(cfg, mp, backend, opts...)
}

// InputNorm returns the name of the norm before attention in decoder layer i.
func InputNorm(i int) string {
	return llama.InputNorm(i)
}

// PostAttentionNorm returns the name of the norm before the MLP in decoder layer i.
func PostAttentionNorm(i int) string {
	return llama.PostAttentionNorm(i)
}
