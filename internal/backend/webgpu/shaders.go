// Embedded WGSL compute shaders for the tensor kernels.
//
// Every kernel receives its tensor shapes through TensorDesc uniforms (the
// handles produced by TensorDescriptor) rather than baked-in constants, so
// one compiled pipeline serves every shape.

package webgpu

// descStruct is the WGSL mirror of a TensorDescriptor handle.
const descStruct = `
struct TensorDesc {
    n: u32,
    k: u32,
    nr: u32,
    nc: u32,
}
`

// convStruct mirrors the convolution descriptor owned by a Conv engine.
const convStruct = `
struct ConvDesc {
    stride_y: u32,
    stride_x: u32,
    pad_y: u32,
    pad_x: u32,
    out_nr: u32,
    out_nc: u32,
}
`

// poolStruct mirrors the pooling descriptor owned by a MaxPool engine.
const poolStruct = `
struct PoolDesc {
    window_h: u32,
    window_w: u32,
    stride_y: u32,
    stride_x: u32,
}
`

// fillShader overwrites every element with a constant.
const fillShader = descStruct + `
@group(0) @binding(0) var<storage, read_write> dest: array<f32>;
@group(0) @binding(1) var<uniform> desc: TensorDesc;

struct Params {
    value: f32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let total = desc.n * desc.k * desc.nr * desc.nc;
    if (gid.x < total) {
        dest[gid.x] = params.value;
    }
}
`

// scaleShader multiplies every element by a constant.
const scaleShader = descStruct + `
@group(0) @binding(0) var<storage, read_write> dest: array<f32>;
@group(0) @binding(1) var<uniform> desc: TensorDesc;

struct Params {
    value: f32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let total = desc.n * desc.k * desc.nr * desc.nc;
    if (gid.x < total) {
        dest[gid.x] = dest[gid.x] * params.value;
    }
}
`

// broadcastAddShader computes dest = beta*dest + alpha*src, where any axis
// of src equal to 1 is broadcast across the matching axis of dest.
const broadcastAddShader = descStruct + `
@group(0) @binding(0) var<storage, read_write> dest: array<f32>;
@group(0) @binding(1) var<storage, read> src: array<f32>;
@group(0) @binding(2) var<uniform> dest_desc: TensorDesc;
@group(0) @binding(3) var<uniform> src_desc: TensorDesc;

struct Params {
    alpha: f32,
    beta: f32,
}
@group(0) @binding(4) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let total = dest_desc.n * dest_desc.k * dest_desc.nr * dest_desc.nc;
    let idx = gid.x;
    if (idx >= total) {
        return;
    }

    let c = idx % dest_desc.nc;
    let r = (idx / dest_desc.nc) % dest_desc.nr;
    let k = (idx / (dest_desc.nc * dest_desc.nr)) % dest_desc.k;
    let n = idx / (dest_desc.nc * dest_desc.nr * dest_desc.k);

    let sn = select(n, 0u, src_desc.n == 1u);
    let sk = select(k, 0u, src_desc.k == 1u);
    let sr = select(r, 0u, src_desc.nr == 1u);
    let sc = select(c, 0u, src_desc.nc == 1u);

    let si = ((sn * src_desc.k + sk) * src_desc.nr + sr) * src_desc.nc + sc;
    dest[idx] = params.beta * dest[idx] + params.alpha * src[si];
}
`

// sigmoidShader applies dest = 1 / (1 + exp(-src)).
const sigmoidShader = descStruct + `
@group(0) @binding(0) var<storage, read> src: array<f32>;
@group(0) @binding(1) var<storage, read_write> dest: array<f32>;
@group(0) @binding(2) var<uniform> desc: TensorDesc;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let total = desc.n * desc.k * desc.nr * desc.nc;
    if (gid.x < total) {
        dest[gid.x] = 1.0 / (1.0 + exp(-src[gid.x]));
    }
}
`

// reluShader applies dest = max(0, src).
const reluShader = descStruct + `
@group(0) @binding(0) var<storage, read> src: array<f32>;
@group(0) @binding(1) var<storage, read_write> dest: array<f32>;
@group(0) @binding(2) var<uniform> desc: TensorDesc;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let total = desc.n * desc.k * desc.nr * desc.nc;
    if (gid.x < total) {
        dest[gid.x] = max(0.0, src[gid.x]);
    }
}
`

// tanhShader applies dest = tanh(src).
const tanhShader = descStruct + `
@group(0) @binding(0) var<storage, read> src: array<f32>;
@group(0) @binding(1) var<storage, read_write> dest: array<f32>;
@group(0) @binding(2) var<uniform> desc: TensorDesc;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let total = desc.n * desc.k * desc.nr * desc.nc;
    if (gid.x < total) {
        dest[gid.x] = tanh(src[gid.x]);
    }
}
`

// sigmoidGradShader accumulates grad += gi * dest * (1 - dest), the sigmoid
// derivative expressed in terms of the forward output.
const sigmoidGradShader = descStruct + `
@group(0) @binding(0) var<storage, read_write> grad: array<f32>;
@group(0) @binding(1) var<storage, read> dest: array<f32>;
@group(0) @binding(2) var<storage, read> gi: array<f32>;
@group(0) @binding(3) var<uniform> desc: TensorDesc;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let total = desc.n * desc.k * desc.nr * desc.nc;
    if (gid.x < total) {
        let d = dest[gid.x];
        grad[gid.x] = grad[gid.x] + gi[gid.x] * d * (1.0 - d);
    }
}
`

// reluGradShader accumulates grad += gi where dest > 0.
const reluGradShader = descStruct + `
@group(0) @binding(0) var<storage, read_write> grad: array<f32>;
@group(0) @binding(1) var<storage, read> dest: array<f32>;
@group(0) @binding(2) var<storage, read> gi: array<f32>;
@group(0) @binding(3) var<uniform> desc: TensorDesc;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let total = desc.n * desc.k * desc.nr * desc.nc;
    if (gid.x < total) {
        if (dest[gid.x] > 0.0) {
            grad[gid.x] = grad[gid.x] + gi[gid.x];
        }
    }
}
`

// tanhGradShader accumulates grad += gi * (1 - dest*dest).
const tanhGradShader = descStruct + `
@group(0) @binding(0) var<storage, read_write> grad: array<f32>;
@group(0) @binding(1) var<storage, read> dest: array<f32>;
@group(0) @binding(2) var<storage, read> gi: array<f32>;
@group(0) @binding(3) var<uniform> desc: TensorDesc;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let total = desc.n * desc.k * desc.nr * desc.nc;
    if (gid.x < total) {
        let d = dest[gid.x];
        grad[gid.x] = grad[gid.x] + gi[gid.x] * (1.0 - d * d);
    }
}
`

// softmaxShader computes the normalized exponential over the channel axis,
// independently for every (sample, row, column) location. One thread per
// location.
const softmaxShader = descStruct + `
@group(0) @binding(0) var<storage, read> src: array<f32>;
@group(0) @binding(1) var<storage, read_write> dest: array<f32>;
@group(0) @binding(2) var<uniform> desc: TensorDesc;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let locations = desc.n * desc.nr * desc.nc;
    let loc = gid.x;
    if (loc >= locations) {
        return;
    }

    let c = loc % desc.nc;
    let r = (loc / desc.nc) % desc.nr;
    let n = loc / (desc.nc * desc.nr);

    let start = (n * desc.k * desc.nr + r) * desc.nc + c;
    let step = desc.nr * desc.nc;

    var m: f32 = src[start];
    for (var k: u32 = 1u; k < desc.k; k = k + 1u) {
        m = max(m, src[start + k * step]);
    }

    var sum: f32 = 0.0;
    for (var k: u32 = 0u; k < desc.k; k = k + 1u) {
        sum = sum + exp(src[start + k * step] - m);
    }

    for (var k: u32 = 0u; k < desc.k; k = k + 1u) {
        let i = start + k * step;
        dest[i] = exp(src[i] - m) / sum;
    }
}
`

// softmaxGradShader assigns grad = dest * (gi - dot(gi, dest)) per spatial
// location, the Jacobian-vector product of softmax.
const softmaxGradShader = descStruct + `
@group(0) @binding(0) var<storage, read_write> grad: array<f32>;
@group(0) @binding(1) var<storage, read> dest: array<f32>;
@group(0) @binding(2) var<storage, read> gi: array<f32>;
@group(0) @binding(3) var<uniform> desc: TensorDesc;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let locations = desc.n * desc.nr * desc.nc;
    let loc = gid.x;
    if (loc >= locations) {
        return;
    }

    let c = loc % desc.nc;
    let r = (loc / desc.nc) % desc.nr;
    let n = loc / (desc.nc * desc.nr);

    let start = (n * desc.k * desc.nr + r) * desc.nc + c;
    let step = desc.nr * desc.nc;

    var s: f32 = 0.0;
    for (var k: u32 = 0u; k < desc.k; k = k + 1u) {
        let i = start + k * step;
        s = s + gi[i] * dest[i];
    }

    for (var k: u32 = 0u; k < desc.k; k = k + 1u) {
        let i = start + k * step;
        grad[i] = dest[i] * (gi[i] - s);
    }
}
`

// biasGradShader reduces gi over samples, rows and columns, one thread per
// channel: the adjoint of a per-channel broadcast add.
const biasGradShader = descStruct + `
@group(0) @binding(0) var<storage, read_write> grad: array<f32>;
@group(0) @binding(1) var<storage, read> gi: array<f32>;
@group(0) @binding(2) var<uniform> gi_desc: TensorDesc;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let k = gid.x;
    if (k >= gi_desc.k) {
        return;
    }

    var sum: f32 = 0.0;
    for (var n: u32 = 0u; n < gi_desc.n; n = n + 1u) {
        let plane = (n * gi_desc.k + k) * gi_desc.nr * gi_desc.nc;
        for (var i: u32 = 0u; i < gi_desc.nr * gi_desc.nc; i = i + 1u) {
            sum = sum + gi[plane + i];
        }
    }
    grad[k] = sum;
}
`

// convForwardDirectShader convolves filters over data with one thread per
// output element. No workspace required.
const convForwardDirectShader = descStruct + convStruct + `
@group(0) @binding(0) var<storage, read> data: array<f32>;
@group(0) @binding(1) var<storage, read> filters: array<f32>;
@group(0) @binding(2) var<storage, read_write> output: array<f32>;
@group(0) @binding(3) var<uniform> data_desc: TensorDesc;
@group(0) @binding(4) var<uniform> filter_desc: TensorDesc;
@group(0) @binding(5) var<uniform> conv: ConvDesc;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let total = data_desc.n * filter_desc.n * conv.out_nr * conv.out_nc;
    let idx = gid.x;
    if (idx >= total) {
        return;
    }

    let ocol = idx % conv.out_nc;
    let orow = (idx / conv.out_nc) % conv.out_nr;
    let f = (idx / (conv.out_nc * conv.out_nr)) % filter_desc.n;
    let n = idx / (conv.out_nc * conv.out_nr * filter_desc.n);

    var sum: f32 = 0.0;
    for (var k: u32 = 0u; k < data_desc.k; k = k + 1u) {
        for (var fr: u32 = 0u; fr < filter_desc.nr; fr = fr + 1u) {
            for (var fc: u32 = 0u; fc < filter_desc.nc; fc = fc + 1u) {
                let r = i32(orow * conv.stride_y + fr) - i32(conv.pad_y);
                let c = i32(ocol * conv.stride_x + fc) - i32(conv.pad_x);
                if (r >= 0 && r < i32(data_desc.nr) && c >= 0 && c < i32(data_desc.nc)) {
                    let di = ((n * data_desc.k + k) * data_desc.nr + u32(r)) * data_desc.nc + u32(c);
                    let fi = ((f * filter_desc.k + k) * filter_desc.nr + fr) * filter_desc.nc + fc;
                    sum = sum + data[di] * filters[fi];
                }
            }
        }
    }
    output[idx] = sum;
}
`

// im2colShader unrolls input patches into the column-matrix workspace:
// cols[(n, orow, ocol), (k, fr, fc)], one thread per workspace element.
// Out-of-bounds positions (zero padding) write 0.
const im2colShader = descStruct + convStruct + `
@group(0) @binding(0) var<storage, read> data: array<f32>;
@group(0) @binding(1) var<storage, read_write> cols: array<f32>;
@group(0) @binding(2) var<uniform> data_desc: TensorDesc;
@group(0) @binding(3) var<uniform> filter_desc: TensorDesc;
@group(0) @binding(4) var<uniform> conv: ConvDesc;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let col_width = data_desc.k * filter_desc.nr * filter_desc.nc;
    let total = data_desc.n * conv.out_nr * conv.out_nc * col_width;
    let idx = gid.x;
    if (idx >= total) {
        return;
    }

    let cw = idx % col_width;
    let row = idx / col_width;

    let ocol = row % conv.out_nc;
    let orow = (row / conv.out_nc) % conv.out_nr;
    let n = row / (conv.out_nc * conv.out_nr);

    let fc = cw % filter_desc.nc;
    let fr = (cw / filter_desc.nc) % filter_desc.nr;
    let k = cw / (filter_desc.nc * filter_desc.nr);

    let r = i32(orow * conv.stride_y + fr) - i32(conv.pad_y);
    let c = i32(ocol * conv.stride_x + fc) - i32(conv.pad_x);

    var v: f32 = 0.0;
    if (r >= 0 && r < i32(data_desc.nr) && c >= 0 && c < i32(data_desc.nc)) {
        v = data[((n * data_desc.k + k) * data_desc.nr + u32(r)) * data_desc.nc + u32(c)];
    }
    cols[idx] = v;
}
`

// convForwardIm2colShader multiplies the filter matrix against the unrolled
// column matrix. Filters are already laid out as [num_filters, col_width].
const convForwardIm2colShader = descStruct + convStruct + `
@group(0) @binding(0) var<storage, read> cols: array<f32>;
@group(0) @binding(1) var<storage, read> filters: array<f32>;
@group(0) @binding(2) var<storage, read_write> output: array<f32>;
@group(0) @binding(3) var<uniform> data_desc: TensorDesc;
@group(0) @binding(4) var<uniform> filter_desc: TensorDesc;
@group(0) @binding(5) var<uniform> conv: ConvDesc;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let total = data_desc.n * filter_desc.n * conv.out_nr * conv.out_nc;
    let idx = gid.x;
    if (idx >= total) {
        return;
    }

    let ocol = idx % conv.out_nc;
    let orow = (idx / conv.out_nc) % conv.out_nr;
    let f = (idx / (conv.out_nc * conv.out_nr)) % filter_desc.n;
    let n = idx / (conv.out_nc * conv.out_nr * filter_desc.n);

    let col_width = data_desc.k * filter_desc.nr * filter_desc.nc;
    let row = (n * conv.out_nr + orow) * conv.out_nc + ocol;

    var sum: f32 = 0.0;
    for (var cw: u32 = 0u; cw < col_width; cw = cw + 1u) {
        sum = sum + filters[f * col_width + cw] * cols[row * col_width + cw];
    }
    output[idx] = sum;
}
`

// convBackwardDataShader accumulates the gradient with respect to the input
// data: one thread per input element, summing every output position whose
// receptive field covers it. Adds into grad.
const convBackwardDataShader = descStruct + convStruct + `
@group(0) @binding(0) var<storage, read> gi: array<f32>;
@group(0) @binding(1) var<storage, read> filters: array<f32>;
@group(0) @binding(2) var<storage, read_write> grad: array<f32>;
@group(0) @binding(3) var<uniform> data_desc: TensorDesc;
@group(0) @binding(4) var<uniform> filter_desc: TensorDesc;
@group(0) @binding(5) var<uniform> conv: ConvDesc;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let total = data_desc.n * data_desc.k * data_desc.nr * data_desc.nc;
    let idx = gid.x;
    if (idx >= total) {
        return;
    }

    let c = idx % data_desc.nc;
    let r = (idx / data_desc.nc) % data_desc.nr;
    let k = (idx / (data_desc.nc * data_desc.nr)) % data_desc.k;
    let n = idx / (data_desc.nc * data_desc.nr * data_desc.k);

    var sum: f32 = 0.0;
    for (var f: u32 = 0u; f < filter_desc.n; f = f + 1u) {
        for (var fr: u32 = 0u; fr < filter_desc.nr; fr = fr + 1u) {
            let rr = i32(r) + i32(conv.pad_y) - i32(fr);
            if (rr < 0 || u32(rr) % conv.stride_y != 0u) {
                continue;
            }
            let orow = u32(rr) / conv.stride_y;
            if (orow >= conv.out_nr) {
                continue;
            }
            for (var fc: u32 = 0u; fc < filter_desc.nc; fc = fc + 1u) {
                let cc = i32(c) + i32(conv.pad_x) - i32(fc);
                if (cc < 0 || u32(cc) % conv.stride_x != 0u) {
                    continue;
                }
                let ocol = u32(cc) / conv.stride_x;
                if (ocol >= conv.out_nc) {
                    continue;
                }
                let gidx = ((n * filter_desc.n + f) * conv.out_nr + orow) * conv.out_nc + ocol;
                let fidx = ((f * filter_desc.k + k) * filter_desc.nr + fr) * filter_desc.nc + fc;
                sum = sum + gi[gidx] * filters[fidx];
            }
        }
    }
    grad[idx] = grad[idx] + sum;
}
`

// convBackwardFiltersDirectShader assigns the gradient with respect to the
// filter weights: one thread per weight, summing over samples and output
// positions.
const convBackwardFiltersDirectShader = descStruct + convStruct + `
@group(0) @binding(0) var<storage, read> gi: array<f32>;
@group(0) @binding(1) var<storage, read> data: array<f32>;
@group(0) @binding(2) var<storage, read_write> fgrad: array<f32>;
@group(0) @binding(3) var<uniform> data_desc: TensorDesc;
@group(0) @binding(4) var<uniform> filter_desc: TensorDesc;
@group(0) @binding(5) var<uniform> conv: ConvDesc;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let total = filter_desc.n * filter_desc.k * filter_desc.nr * filter_desc.nc;
    let idx = gid.x;
    if (idx >= total) {
        return;
    }

    let fc = idx % filter_desc.nc;
    let fr = (idx / filter_desc.nc) % filter_desc.nr;
    let k = (idx / (filter_desc.nc * filter_desc.nr)) % filter_desc.k;
    let f = idx / (filter_desc.nc * filter_desc.nr * filter_desc.k);

    var sum: f32 = 0.0;
    for (var n: u32 = 0u; n < data_desc.n; n = n + 1u) {
        for (var orow: u32 = 0u; orow < conv.out_nr; orow = orow + 1u) {
            let r = i32(orow * conv.stride_y + fr) - i32(conv.pad_y);
            if (r < 0 || r >= i32(data_desc.nr)) {
                continue;
            }
            for (var ocol: u32 = 0u; ocol < conv.out_nc; ocol = ocol + 1u) {
                let c = i32(ocol * conv.stride_x + fc) - i32(conv.pad_x);
                if (c < 0 || c >= i32(data_desc.nc)) {
                    continue;
                }
                let gidx = ((n * filter_desc.n + f) * conv.out_nr + orow) * conv.out_nc + ocol;
                let didx = ((n * data_desc.k + k) * data_desc.nr + u32(r)) * data_desc.nc + u32(c);
                sum = sum + gi[gidx] * data[didx];
            }
        }
    }
    fgrad[idx] = sum;
}
`

// convBackwardFiltersIm2colShader assigns filter gradients from the unrolled
// column matrix: fgrad[f, cw] = sum over rows of gi * cols. Shares the
// forward pass's workspace layout.
const convBackwardFiltersIm2colShader = descStruct + convStruct + `
@group(0) @binding(0) var<storage, read> gi: array<f32>;
@group(0) @binding(1) var<storage, read> cols: array<f32>;
@group(0) @binding(2) var<storage, read_write> fgrad: array<f32>;
@group(0) @binding(3) var<uniform> data_desc: TensorDesc;
@group(0) @binding(4) var<uniform> filter_desc: TensorDesc;
@group(0) @binding(5) var<uniform> conv: ConvDesc;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let col_width = data_desc.k * filter_desc.nr * filter_desc.nc;
    let total = filter_desc.n * col_width;
    let idx = gid.x;
    if (idx >= total) {
        return;
    }

    let cw = idx % col_width;
    let f = idx / col_width;

    let out_plane = conv.out_nr * conv.out_nc;
    let rows = data_desc.n * out_plane;

    var sum: f32 = 0.0;
    for (var row: u32 = 0u; row < rows; row = row + 1u) {
        let n = row / out_plane;
        let o = row % out_plane;
        let gidx = (n * filter_desc.n + f) * out_plane + o;
        sum = sum + gi[gidx] * cols[row * col_width + cw];
    }
    fgrad[idx] = sum;
}
`

// maxPoolForwardShader takes the maximum over each boundary-clipped window,
// one thread per output element. Output dims use floor division of the
// input dims by the strides.
const maxPoolForwardShader = descStruct + poolStruct + `
@group(0) @binding(0) var<storage, read> src: array<f32>;
@group(0) @binding(1) var<storage, read_write> dest: array<f32>;
@group(0) @binding(2) var<uniform> src_desc: TensorDesc;
@group(0) @binding(3) var<uniform> pool: PoolDesc;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let out_nr = src_desc.nr / pool.stride_y;
    let out_nc = src_desc.nc / pool.stride_x;
    let total = src_desc.n * src_desc.k * out_nr * out_nc;
    let idx = gid.x;
    if (idx >= total) {
        return;
    }

    let ocol = idx % out_nc;
    let orow = (idx / out_nc) % out_nr;
    let k = (idx / (out_nc * out_nr)) % src_desc.k;
    let n = idx / (out_nc * out_nr * src_desc.k);

    let r0 = orow * pool.stride_y;
    let c0 = ocol * pool.stride_x;
    let r1 = min(r0 + pool.window_h, src_desc.nr);
    let c1 = min(c0 + pool.window_w, src_desc.nc);

    let plane = (n * src_desc.k + k) * src_desc.nr;

    var best: f32 = -3.4028235e38;
    for (var r: u32 = r0; r < r1; r = r + 1u) {
        for (var c: u32 = c0; c < c1; c = c + 1u) {
            let v = src[(plane + r) * src_desc.nc + c];
            if (v > best) {
                best = v;
            }
        }
    }
    dest[idx] = best;
}
`

// maxPoolBackwardShader accumulates pooling gradients: one thread per input
// element, which re-scans every window covering it and takes the gradient
// only when it is that window's argmax (first occurrence in row-major scan,
// matching the forward kernel's strict-greater update).
const maxPoolBackwardShader = descStruct + poolStruct + `
@group(0) @binding(0) var<storage, read> gi: array<f32>;
@group(0) @binding(1) var<storage, read> src: array<f32>;
@group(0) @binding(2) var<storage, read_write> grad: array<f32>;
@group(0) @binding(3) var<uniform> src_desc: TensorDesc;
@group(0) @binding(4) var<uniform> pool: PoolDesc;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let total = src_desc.n * src_desc.k * src_desc.nr * src_desc.nc;
    let idx = gid.x;
    if (idx >= total) {
        return;
    }

    let c = idx % src_desc.nc;
    let r = (idx / src_desc.nc) % src_desc.nr;
    let k = (idx / (src_desc.nc * src_desc.nr)) % src_desc.k;
    let n = idx / (src_desc.nc * src_desc.nr * src_desc.k);

    let out_nr = src_desc.nr / pool.stride_y;
    let out_nc = src_desc.nc / pool.stride_x;
    let plane = (n * src_desc.k + k) * src_desc.nr;

    var or_min: u32 = 0u;
    if (r >= pool.window_h) {
        or_min = (r - pool.window_h) / pool.stride_y + 1u;
    }
    let or_max = min(r / pool.stride_y, out_nr - 1u);

    var oc_min: u32 = 0u;
    if (c >= pool.window_w) {
        oc_min = (c - pool.window_w) / pool.stride_x + 1u;
    }
    let oc_max = min(c / pool.stride_x, out_nc - 1u);

    var acc: f32 = 0.0;
    for (var orow: u32 = or_min; orow <= or_max; orow = orow + 1u) {
        for (var ocol: u32 = oc_min; ocol <= oc_max; ocol = ocol + 1u) {
            let r0 = orow * pool.stride_y;
            let c0 = ocol * pool.stride_x;
            let r1 = min(r0 + pool.window_h, src_desc.nr);
            let c1 = min(c0 + pool.window_w, src_desc.nc);

            var best: f32 = -3.4028235e38;
            var best_r: u32 = r0;
            var best_c: u32 = c0;
            for (var wr: u32 = r0; wr < r1; wr = wr + 1u) {
                for (var wc: u32 = c0; wc < c1; wc = wc + 1u) {
                    let v = src[(plane + wr) * src_desc.nc + wc];
                    if (v > best) {
                        best = v;
                        best_r = wr;
                        best_c = wc;
                    }
                }
            }
            if (best_r == r && best_c == c) {
                acc = acc + gi[((n * src_desc.k + k) * out_nr + orow) * out_nc + ocol];
            }
        }
    }
    grad[idx] = grad[idx] + acc;
}
`
