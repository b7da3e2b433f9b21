package webgpu

import (
	"fmt"

	"github.com/grava-ml/grava/internal/tensor"
)

// runForward executes a pointwise dest = f(src) kernel. dest and src must
// have the same dimensions; dest may alias src (in-place), since the kernel
// reads from and writes to distinct device buffers.
func runForward(ctx *Context, name, code string, dest, src *tensor.Tensor) (err error) {
	if !tensor.HaveSameDimensions(dest, src) {
		panic(fmt.Sprintf("webgpu: %s: dimension mismatch %v vs %v", name, dest, src))
	}
	if dest.Size() == 0 {
		return nil
	}
	defer recoverDevice(name, &err)

	srcBuf := ctx.uploadTensor(src)
	defer srcBuf.Release()
	destBuf := ctx.createStorage(tensorByteSize(dest))
	defer destBuf.Release()

	desc, err := describe(ctx, dest)
	if err != nil {
		return err
	}
	defer desc.Release()

	ctx.dispatch(name, code, groups1D(dest.Size()), 1, 1, []bindBuffer{
		{srcBuf, tensorByteSize(src)},
		{destBuf, tensorByteSize(dest)},
		{desc.Handle(), 16},
	})

	return ctx.readback(dest, destBuf)
}

// runGradient executes a pointwise grad += gi * f'(dest) kernel. All three
// tensors must share dimensions. grad may alias gi; it must not alias dest.
func runGradient(ctx *Context, name, code string, grad, dest, gi *tensor.Tensor) (err error) {
	if tensor.SameObject(grad, dest) {
		panic(fmt.Sprintf("webgpu: %s: grad must not alias dest", name))
	}
	if !tensor.HaveSameDimensions(grad, dest) || !tensor.HaveSameDimensions(dest, gi) {
		panic(fmt.Sprintf("webgpu: %s: dimension mismatch %v, %v, %v", name, grad, dest, gi))
	}
	if grad.Size() == 0 {
		return nil
	}
	defer recoverDevice(name, &err)

	gradBuf := ctx.uploadTensor(grad)
	defer gradBuf.Release()
	destBuf := ctx.uploadTensor(dest)
	defer destBuf.Release()
	giBuf := ctx.uploadTensor(gi)
	defer giBuf.Release()

	desc, err := describe(ctx, grad)
	if err != nil {
		return err
	}
	defer desc.Release()

	ctx.dispatch(name, code, groups1D(grad.Size()), 1, 1, []bindBuffer{
		{gradBuf, tensorByteSize(grad)},
		{destBuf, tensorByteSize(dest)},
		{giBuf, tensorByteSize(gi)},
		{desc.Handle(), 16},
	})

	return ctx.readback(grad, gradBuf)
}

// Sigmoid computes dest = 1/(1+exp(-src)) elementwise. Supports in-place
// operation (dest aliasing src).
func Sigmoid(ctx *Context, dest, src *tensor.Tensor) error {
	return runForward(ctx, "sigmoid", sigmoidShader, dest, src)
}

// SigmoidGradient accumulates grad += gi * dest*(1-dest), where dest is a
// prior Sigmoid output. grad may alias gi but not dest.
func SigmoidGradient(ctx *Context, grad, dest, gi *tensor.Tensor) error {
	return runGradient(ctx, "sigmoid_gradient", sigmoidGradShader, grad, dest, gi)
}

// ReLU computes dest = max(0, src) elementwise. Supports in-place operation.
func ReLU(ctx *Context, dest, src *tensor.Tensor) error {
	return runForward(ctx, "relu", reluShader, dest, src)
}

// ReLUGradient accumulates grad += gi where dest > 0, where dest is a prior
// ReLU output. grad may alias gi but not dest.
func ReLUGradient(ctx *Context, grad, dest, gi *tensor.Tensor) error {
	return runGradient(ctx, "relu_gradient", reluGradShader, grad, dest, gi)
}

// Tanh computes dest = tanh(src) elementwise. Supports in-place operation.
func Tanh(ctx *Context, dest, src *tensor.Tensor) error {
	return runForward(ctx, "tanh", tanhShader, dest, src)
}

// TanhGradient accumulates grad += gi * (1 - dest*dest), where dest is a prior
// Tanh output. grad may alias gi but not dest.
func TanhGradient(ctx *Context, grad, dest, gi *tensor.Tensor) error {
	return runGradient(ctx, "tanh_gradient", tanhGradShader, grad, dest, gi)
}
