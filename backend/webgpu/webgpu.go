// Copyright 2026 Grava ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the public API for the Grava GPU tensor kernels,
// implemented on WebGPU compute shaders.
//
// WebGPU is a cross-platform compute API that works on Windows (D3D12),
// macOS (Metal) and Linux (Vulkan) through the wgpu-native library, with no
// CGO involved.
//
// Example:
//
//	import (
//	    "github.com/grava-ml/grava/backend/webgpu"
//	    "github.com/grava-ml/grava/tensor"
//	)
//
//	func main() {
//	    ctx, err := webgpu.New()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer ctx.Release()
//
//	    x := tensor.FromValues(1, 1, 1, 3, -1, 0, 1)
//	    y := tensor.New(1, 1, 1, 3)
//	    if err := webgpu.ReLU(ctx, y, x); err != nil {
//	        log.Fatal(err)
//	    }
//	}
package webgpu

import (
	"github.com/go-webgpu/webgpu/wgpu"

	internalwebgpu "github.com/grava-ml/grava/internal/backend/webgpu"
	"github.com/grava-ml/grava/tensor"
)

// Sentinel errors. Operations wrap these, so callers can test with
// errors.Is.
var (
	ErrUnavailable   = internalwebgpu.ErrUnavailable
	ErrDeviceFailure = internalwebgpu.ErrDeviceFailure
)

// Context owns the GPU device, queue, shader caches and buffer pool shared
// by every kernel dispatch.
type Context = internalwebgpu.Context

// TensorDescriptor is a device-resident description of a tensor's four
// dimensions, bound by kernels as a uniform.
type TensorDescriptor = internalwebgpu.TensorDescriptor

// Conv is a convolution engine with cached algorithm selection and a pooled
// workspace. See its Setup, Forward, BackwardData, BackwardFilters and
// Clear methods.
type Conv = internalwebgpu.Conv

// MaxPool is a max-pooling engine. See its Setup, Forward, Backward and
// Clear methods.
type MaxPool = internalwebgpu.MaxPool

// New creates a Context on the highest-performance available adapter.
// Returns an error wrapping ErrUnavailable if WebGPU cannot be initialized.
func New() (*Context, error) {
	return internalwebgpu.New()
}

// IsAvailable reports whether a WebGPU adapter can be acquired on this
// system.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}

// ListAdapters returns information about available GPU adapters.
func ListAdapters() ([]*wgpu.AdapterInfoGo, error) {
	return internalwebgpu.ListAdapters()
}

// NewTensorDescriptor returns an empty descriptor bound to ctx. Call
// SetSize before use and Release when done.
func NewTensorDescriptor(ctx *Context) *TensorDescriptor {
	return internalwebgpu.NewTensorDescriptor(ctx)
}

// NewConv returns an unconfigured convolution engine bound to ctx.
func NewConv(ctx *Context) *Conv {
	return internalwebgpu.NewConv(ctx)
}

// NewMaxPool returns an unconfigured max-pooling engine bound to ctx.
func NewMaxPool(ctx *Context) *MaxPool {
	return internalwebgpu.NewMaxPool(ctx)
}

// Add computes dest = beta*dest + alpha*src, broadcasting src axes of size
// 1 across dest. src and dest must not be the same tensor.
func Add(ctx *Context, beta float32, dest *tensor.Tensor, alpha float32, src *tensor.Tensor) error {
	return internalwebgpu.Add(ctx, beta, dest, alpha, src)
}

// Fill sets every element of t to value.
func Fill(ctx *Context, t *tensor.Tensor, value float32) error {
	return internalwebgpu.Fill(ctx, t, value)
}

// Scale multiplies every element of t by value.
func Scale(ctx *Context, t *tensor.Tensor, value float32) error {
	return internalwebgpu.Scale(ctx, t, value)
}

// Sigmoid applies the logistic function elementwise. In-place operation is
// supported.
func Sigmoid(ctx *Context, dest, src *tensor.Tensor) error {
	return internalwebgpu.Sigmoid(ctx, dest, src)
}

// SigmoidGradient adds gi*s'(x) into grad, where dest holds the forward
// output s(x).
func SigmoidGradient(ctx *Context, grad, dest, gi *tensor.Tensor) error {
	return internalwebgpu.SigmoidGradient(ctx, grad, dest, gi)
}

// ReLU applies max(0, x) elementwise. In-place operation is supported.
func ReLU(ctx *Context, dest, src *tensor.Tensor) error {
	return internalwebgpu.ReLU(ctx, dest, src)
}

// ReLUGradient adds gi into grad wherever the forward output in dest is
// positive.
func ReLUGradient(ctx *Context, grad, dest, gi *tensor.Tensor) error {
	return internalwebgpu.ReLUGradient(ctx, grad, dest, gi)
}

// Tanh applies the hyperbolic tangent elementwise. In-place operation is
// supported.
func Tanh(ctx *Context, dest, src *tensor.Tensor) error {
	return internalwebgpu.Tanh(ctx, dest, src)
}

// TanhGradient adds gi*(1-y*y) into grad, where dest holds the forward
// output y.
func TanhGradient(ctx *Context, grad, dest, gi *tensor.Tensor) error {
	return internalwebgpu.TanhGradient(ctx, grad, dest, gi)
}

// Softmax normalizes src over the channel axis independently at every
// (sample, row, column) location. In-place operation is supported.
func Softmax(ctx *Context, dest, src *tensor.Tensor) error {
	return internalwebgpu.Softmax(ctx, dest, src)
}

// SoftmaxGradient assigns the softmax Jacobian-vector product to grad,
// where dest holds a prior Softmax output.
func SoftmaxGradient(ctx *Context, grad, dest, gi *tensor.Tensor) error {
	return internalwebgpu.SoftmaxGradient(ctx, grad, dest, gi)
}

// ConvBiasGradient assigns the per-channel sum of gi to grad, which must be
// shaped (1, K, 1, 1).
func ConvBiasGradient(ctx *Context, grad, gi *tensor.Tensor) error {
	return internalwebgpu.ConvBiasGradient(ctx, grad, gi)
}

// ConvOutputSize returns the spatial output extent of a convolution over
// dim input positions with the given stride and filter extent.
func ConvOutputSize(dim, stride, filter int) int {
	return internalwebgpu.ConvOutputSize(dim, stride, filter)
}

// PoolOutputSize returns the spatial output extent of max pooling over dim
// input positions with the given stride.
func PoolOutputSize(dim, stride int) int {
	return internalwebgpu.PoolOutputSize(dim, stride)
}
