//go:build windows

package webgpu

// workgroupSize is the number of threads reducing one row.
const workgroupSize = 256

// maxWorkgroupsPerDim is the WebGPU limit on workgroups along one dispatch axis.
const maxWorkgroupsPerDim = 65535

// rmsNormShader normalizes one row per workgroup:
// result = input / sqrt(mean(input^2) + eps) * weight.
// Threads stride over the row, reduce their partial sums of squares in
// workgroup memory, then write the scaled row and its inverse RMS.
// Rows beyond 65535 spill into the y dimension of the dispatch.
const rmsNormShader = `
@group(0) @binding(0) var<storage, read> input: array<f32>;
@group(0) @binding(1) var<storage, read> weight: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;
@group(0) @binding(3) var<storage, read_write> inv_rms: array<f32>;

struct Params {
    rows: u32,
    dim: u32,
    eps: f32,
}
@group(0) @binding(4) var<uniform> params: Params;

var<workgroup> partial: array<f32, 256>;

@compute @workgroup_size(256)
fn main(@builtin(workgroup_id) wg: vec3<u32>, @builtin(local_invocation_id) lid: vec3<u32>) {
    let row = wg.y * 65535u + wg.x;
    if (row >= params.rows) {
        return;
    }

    let offset = row * params.dim;

    var sum: f32 = 0.0;
    for (var i: u32 = lid.x; i < params.dim; i = i + 256u) {
        let v = input[offset + i];
        sum = sum + v * v;
    }
    partial[lid.x] = sum;
    workgroupBarrier();

    for (var stride: u32 = 128u; stride > 0u; stride = stride / 2u) {
        if (lid.x < stride) {
            partial[lid.x] = partial[lid.x] + partial[lid.x + stride];
        }
        workgroupBarrier();
    }

    let inv = inverseSqrt(partial[0] / f32(params.dim) + params.eps);
    if (lid.x == 0u) {
        inv_rms[row] = inv;
    }

    for (var i: u32 = lid.x; i < params.dim; i = i + 256u) {
        result[offset + i] = input[offset + i] * inv * weight[i];
    }
}
`
