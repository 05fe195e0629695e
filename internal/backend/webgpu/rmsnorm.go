//go:build windows

package webgpu

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/born-ml/llama-parallel/internal/fused"
	"github.com/born-ml/llama-parallel/internal/tensor"
	"github.com/go-webgpu/webgpu/wgpu"
)

// Kernel is the WebGPU implementation of fused.RMSNormAffine. The forward
// pass runs on the device; the backward pass runs on the host copies it keeps.
type Kernel struct {
	backend *Backend
}

// NewKernel wraps an initialized backend.
func NewKernel(b *Backend) *Kernel {
	return &Kernel{backend: b}
}

// Name implements fused.RMSNormAffine.
func (k *Kernel) Name() string {
	return ProviderName
}

// Forward implements fused.RMSNormAffine.
func (k *Kernel) Forward(input, weight *tensor.RawTensor, normalizedShape tensor.Shape, eps float32, memoryEfficient bool) (*tensor.RawTensor, *fused.Saved, error) {
	rows, dim, err := fused.Validate(input, weight, normalizedShape)
	if err != nil {
		return nil, nil, err
	}
	if rows == 0 || dim == 0 {
		return fused.ReferenceForward(input, weight, normalizedShape, eps, memoryEfficient)
	}

	b := k.backend
	shader := b.compileShader("rmsnorm", rmsNormShader)
	pipeline := b.getOrCreatePipeline("rmsnorm", shader)

	bufferInput := b.createBuffer(input.Data(), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	defer bufferInput.Release()

	bufferWeight := b.createBuffer(weight.Data(), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	defer bufferWeight.Release()

	//nolint:gosec // G115: ByteSize() is non-negative
	resultSize := uint64(input.ByteSize())
	bufferResult := b.createOutputBuffer(resultSize)
	defer bufferResult.Release()

	//nolint:gosec // G115: rows is non-negative
	invSize := uint64(rows * 4)
	bufferInv := b.createOutputBuffer(invSize)
	defer bufferInv.Release()

	params := make([]byte, 16)
	binary.LittleEndian.PutUint32(params[0:4], uint32(rows)) //nolint:gosec // G115: shape dims fit in u32
	binary.LittleEndian.PutUint32(params[4:8], uint32(dim))  //nolint:gosec // G115: shape dims fit in u32
	binary.LittleEndian.PutUint32(params[8:12], math.Float32bits(eps))
	bufferParams := b.createUniformBuffer(params)
	defer bufferParams.Release()

	//nolint:gosec // G115: ByteSize() is non-negative
	weightSize := uint64(weight.ByteSize())
	bindGroupLayout := pipeline.GetBindGroupLayout(0)
	bindGroup := b.device.CreateBindGroupSimple(bindGroupLayout, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, bufferInput, 0, resultSize),
		wgpu.BufferBindingEntry(1, bufferWeight, 0, weightSize),
		wgpu.BufferBindingEntry(2, bufferResult, 0, resultSize),
		wgpu.BufferBindingEntry(3, bufferInv, 0, invSize),
		wgpu.BufferBindingEntry(4, bufferParams, 0, 16),
	})
	defer bindGroup.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	defer encoder.Release()
	computePass := encoder.BeginComputePass(nil)
	defer computePass.Release()
	computePass.SetPipeline(pipeline)
	computePass.SetBindGroup(0, bindGroup, nil)

	// One workgroup per row.
	x, y := dispatchSize(rows)
	computePass.DispatchWorkgroups(x, y, 1)
	computePass.End()

	cmdBuffer := encoder.Finish(nil)
	defer cmdBuffer.Release()
	b.queue.Submit(cmdBuffer)

	// Results are copied back to the host so the caller's backend can keep using them.
	output, err := tensor.NewRaw(input.Shape(), tensor.Float32, input.Device())
	if err != nil {
		return nil, nil, err
	}
	if err := b.readBuffer(bufferResult, output.Data()); err != nil {
		return nil, nil, err
	}

	invRMS := make([]float32, rows)
	//nolint:gosec // unsafe.Slice to read float32s as bytes
	if err := b.readBuffer(bufferInv, unsafe.Slice((*byte)(unsafe.Pointer(&invRMS[0])), invSize)); err != nil {
		return nil, nil, err
	}

	return output, fused.NewSaved(input, output, invRMS, normalizedShape, eps, memoryEfficient), nil
}

// Backward implements fused.RMSNormAffine on the host.
func (k *Kernel) Backward(gradOutput, weight *tensor.RawTensor, saved *fused.Saved) (*tensor.RawTensor, *tensor.RawTensor, error) {
	return fused.ReferenceBackward(gradOutput, weight, saved)
}

// dispatchSize spreads rows over the x and y dispatch dimensions.
func dispatchSize(rows int) (x, y uint32) {
	if rows <= maxWorkgroupsPerDim {
		return uint32(rows), 1 //nolint:gosec // G115: bounded above
	}
	//nolint:gosec // G115: rows is non-negative
	return maxWorkgroupsPerDim, uint32((rows + maxWorkgroupsPerDim - 1) / maxWorkgroupsPerDim)
}
