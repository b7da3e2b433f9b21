package webgpu

import (
	"fmt"

	"github.com/grava-ml/grava/internal/tensor"
)

// Softmax computes, for every spatial location (sample, row, column) of src,
// the normalized exponential across the channel axis, writing the result to
// dest. dest and src must have the same dimensions; in-place operation
// (dest aliasing src) is supported.
func Softmax(ctx *Context, dest, src *tensor.Tensor) (err error) {
	if !tensor.HaveSameDimensions(dest, src) {
		panic(fmt.Sprintf("webgpu: Softmax: dimension mismatch %v vs %v", dest, src))
	}
	if dest.Size() == 0 {
		return nil
	}
	defer recoverDevice("Softmax", &err)

	srcBuf := ctx.uploadTensor(src)
	defer srcBuf.Release()
	destBuf := ctx.createStorage(tensorByteSize(dest))
	defer destBuf.Release()

	desc, err := describe(ctx, dest)
	if err != nil {
		return err
	}
	defer desc.Release()

	locations := dest.NumSamples() * dest.Nr() * dest.Nc()
	ctx.dispatch("softmax", softmaxShader, groups1D(locations), 1, 1, []bindBuffer{
		{srcBuf, tensorByteSize(src)},
		{destBuf, tensorByteSize(dest)},
		{desc.Handle(), 16},
	})

	return ctx.readback(dest, destBuf)
}

// SoftmaxGradient assigns to grad the gradient of dot(gi, dest) with respect
// to the softmax input, where dest is a prior Softmax output: per location,
// grad_k = dest_k * (gi_k - sum_j gi_j*dest_j). grad may alias gi but must
// not alias dest.
func SoftmaxGradient(ctx *Context, grad, dest, gi *tensor.Tensor) (err error) {
	if tensor.SameObject(grad, dest) {
		panic("webgpu: SoftmaxGradient: grad must not alias dest")
	}
	if !tensor.HaveSameDimensions(grad, dest) || !tensor.HaveSameDimensions(dest, gi) {
		panic(fmt.Sprintf("webgpu: SoftmaxGradient: dimension mismatch %v, %v, %v", grad, dest, gi))
	}
	if grad.Size() == 0 {
		return nil
	}
	defer recoverDevice("SoftmaxGradient", &err)

	gradBuf := ctx.createStorage(tensorByteSize(grad))
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

	locations := grad.NumSamples() * grad.Nr() * grad.Nc()
	ctx.dispatch("softmax_gradient", softmaxGradShader, groups1D(locations), 1, 1, []bindBuffer{
		{gradBuf, tensorByteSize(grad)},
		{destBuf, tensorByteSize(dest)},
		{giBuf, tensorByteSize(gi)},
		{desc.Handle(), 16},
	})

	return ctx.readback(grad, gradBuf)
}
