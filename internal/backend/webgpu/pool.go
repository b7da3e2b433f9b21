package webgpu

import (
	"fmt"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/grava-ml/grava/internal/tensor"
)

// PoolOutputSize returns the spatial output extent of max pooling over dim
// input positions with the given stride: the number of windows whose top-left
// corner lands inside the input.
func PoolOutputSize(dim, stride int) int {
	return dim / stride
}

// MaxPool is a max-pooling engine. Setup binds it to a window and stride
// geometry; Forward and Backward then apply that geometry to any tensor
// whose spatial extent covers at least one stride.
//
// A MaxPool is not safe for concurrent use.
type MaxPool struct {
	ctx *Context

	configured bool

	windowHeight, windowWidth int
	strideY, strideX          int

	poolBuf *wgpu.Buffer
}

// NewMaxPool returns an unconfigured pooling engine bound to ctx.
func NewMaxPool(ctx *Context) *MaxPool {
	return &MaxPool{ctx: ctx}
}

// Setup configures the window and stride geometry, releasing any previous
// configuration first.
func (mp *MaxPool) Setup(windowHeight, windowWidth, strideY, strideX int) (err error) {
	if windowHeight <= 0 || windowWidth <= 0 || strideY <= 0 || strideX <= 0 {
		panic(fmt.Sprintf("webgpu: MaxPool.Setup: window and strides must be positive, got (%d, %d, %d, %d)",
			windowHeight, windowWidth, strideY, strideX))
	}
	mp.Clear()
	defer recoverDevice("MaxPool.Setup", &err)

	mp.windowHeight, mp.windowWidth = windowHeight, windowWidth
	mp.strideY, mp.strideX = strideY, strideX
	mp.poolBuf = mp.ctx.createUniform(packU32(
		uint32(windowHeight), uint32(windowWidth),
		uint32(strideY), uint32(strideX),
	))
	mp.configured = true
	return nil
}

// Forward pools src and assigns the per-window maxima to dest, resizing
// dest to (samples, channels, nr/strideY, nc/strideX). Windows extending
// past the input boundary are clipped. src must span at least one stride in
// each spatial direction and must not alias dest.
func (mp *MaxPool) Forward(dest, src *tensor.Tensor) (err error) {
	mp.requireConfigured("Forward")
	if tensor.SameObject(dest, src) {
		panic("webgpu: MaxPool.Forward: dest must not alias src")
	}
	if src.Nr() < mp.strideY || src.Nc() < mp.strideX {
		panic(fmt.Sprintf("webgpu: MaxPool.Forward: src %v is smaller than the stride (%d, %d)",
			src, mp.strideY, mp.strideX))
	}
	dest.Resize(src.NumSamples(), src.K(),
		PoolOutputSize(src.Nr(), mp.strideY), PoolOutputSize(src.Nc(), mp.strideX))
	if dest.Size() == 0 {
		return nil
	}
	defer recoverDevice("MaxPool.Forward", &err)

	srcBuf := mp.ctx.uploadTensor(src)
	defer srcBuf.Release()
	destBuf := mp.ctx.createStorage(tensorByteSize(dest))
	defer destBuf.Release()

	desc, err := describe(mp.ctx, src)
	if err != nil {
		return err
	}
	defer desc.Release()

	mp.ctx.dispatch("max_pool_forward", maxPoolForwardShader,
		groups1D(dest.Size()), 1, 1, []bindBuffer{
			{srcBuf, tensorByteSize(src)},
			{destBuf, tensorByteSize(dest)},
			{desc.Handle(), 16},
			{mp.poolBuf, 16},
		})

	return mp.ctx.readback(dest, destBuf)
}

// Backward routes pooling gradients back to the input positions that won
// their windows, adding into grad. dest must be a prior Forward output for
// src, gi must be shaped like dest, and grad like src. grad must not alias
// any of the other arguments. The existing contents of grad are kept and
// summed into.
func (mp *MaxPool) Backward(gi, dest, src, grad *tensor.Tensor) (err error) {
	mp.requireConfigured("Backward")
	if tensor.SameObject(grad, gi) || tensor.SameObject(grad, dest) || tensor.SameObject(grad, src) {
		panic("webgpu: MaxPool.Backward: grad must not alias gi, dest or src")
	}
	if !tensor.HaveSameDimensions(gi, dest) {
		panic(fmt.Sprintf("webgpu: MaxPool.Backward: gi %v does not match dest %v", gi, dest))
	}
	if !tensor.HaveSameDimensions(grad, src) {
		panic(fmt.Sprintf("webgpu: MaxPool.Backward: grad %v does not match src %v", grad, src))
	}
	if dest.NumSamples() != src.NumSamples() || dest.K() != src.K() ||
		dest.Nr() != PoolOutputSize(src.Nr(), mp.strideY) ||
		dest.Nc() != PoolOutputSize(src.Nc(), mp.strideX) {
		panic(fmt.Sprintf("webgpu: MaxPool.Backward: dest %v is not the pooled shape of src %v", dest, src))
	}
	if grad.Size() == 0 {
		return nil
	}
	defer recoverDevice("MaxPool.Backward", &err)

	giBuf := mp.ctx.uploadTensor(gi)
	defer giBuf.Release()
	srcBuf := mp.ctx.uploadTensor(src)
	defer srcBuf.Release()
	gradBuf := mp.ctx.uploadTensor(grad)
	defer gradBuf.Release()

	desc, err := describe(mp.ctx, src)
	if err != nil {
		return err
	}
	defer desc.Release()

	mp.ctx.dispatch("max_pool_backward", maxPoolBackwardShader,
		groups1D(grad.Size()), 1, 1, []bindBuffer{
			{giBuf, tensorByteSize(gi)},
			{srcBuf, tensorByteSize(src)},
			{gradBuf, tensorByteSize(grad)},
			{desc.Handle(), 16},
			{mp.poolBuf, 16},
		})

	return mp.ctx.readback(grad, gradBuf)
}

// Clear releases the engine's descriptor state, leaving it unconfigured.
// Safe to call repeatedly.
func (mp *MaxPool) Clear() {
	if mp.poolBuf != nil {
		mp.poolBuf.Release()
		mp.poolBuf = nil
	}
	mp.configured = false
}

func (mp *MaxPool) requireConfigured(op string) {
	if !mp.configured {
		panic("webgpu: MaxPool." + op + ": engine is not configured, call Setup first")
	}
}
