//go:build !windows

package webgpu

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/born-ml/llama-parallel/internal/fused"
)

func TestStubUnavailable(t *testing.T) {
	assert.False(t, IsAvailable())

	b, err := New()
	assert.Nil(t, b)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, fused.ErrUnavailable)

	// Nothing is registered when the kernel is not built.
	assert.NotContains(t, fused.Providers(), ProviderName)
}
