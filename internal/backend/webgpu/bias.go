package webgpu

import (
	"fmt"

	"github.com/grava-ml/grava/internal/tensor"
)

// ConvBiasGradient assigns to grad the per-channel sum of gi over samples,
// rows and columns: the gradient of a convolution bias. grad must have
// dimensions (1, K, 1, 1) where K matches the channel count of gi, and must
// not alias gi.
func ConvBiasGradient(ctx *Context, grad, gi *tensor.Tensor) (err error) {
	if tensor.SameObject(grad, gi) {
		panic("webgpu: ConvBiasGradient: grad must not alias gi")
	}
	if grad.NumSamples() != 1 || grad.Nr() != 1 || grad.Nc() != 1 || grad.K() != gi.K() {
		panic(fmt.Sprintf("webgpu: ConvBiasGradient: grad must be (1, %d, 1, 1), got %v", gi.K(), grad))
	}
	if grad.Size() == 0 {
		return nil
	}
	defer recoverDevice("ConvBiasGradient", &err)

	gradBuf := ctx.createStorage(tensorByteSize(grad))
	defer gradBuf.Release()
	giBuf := ctx.uploadTensor(gi)
	defer giBuf.Release()

	desc, err := describe(ctx, gi)
	if err != nil {
		return err
	}
	defer desc.Release()

	ctx.dispatch("conv_bias_gradient", biasGradShader, groups1D(gi.K()), 1, 1, []bindBuffer{
		{gradBuf, tensorByteSize(grad)},
		{giBuf, tensorByteSize(gi)},
		{desc.Handle(), 16},
	})

	return ctx.readback(grad, gradBuf)
}
