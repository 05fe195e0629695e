package webgpu

import (
	"fmt"

	"github.com/born-ml/llama-parallel/internal/fused"
)

// ProviderName is the name the WebGPU kernel registers under.
const ProviderName = "webgpu"

// ErrUnavailable reports that no usable WebGPU adapter or native library was found.
var ErrUnavailable = fmt.Errorf("webgpu: %w", fused.ErrUnavailable)
