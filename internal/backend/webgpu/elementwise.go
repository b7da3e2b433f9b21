package webgpu

import (
	"fmt"

	"github.com/grava-ml/grava/internal/tensor"
)

// Add computes dest = beta*dest + alpha*src with per-axis broadcasting: each
// axis of src must equal the matching axis of dest or be exactly 1, in which
// case its single value is broadcast across that whole axis of dest. The
// channel-broadcast form (src shaped (1,k,1,1)) is how per-channel biases
// are applied.
//
// src and dest must be distinct objects.
func Add(ctx *Context, beta float32, dest *tensor.Tensor, alpha float32, src *tensor.Tensor) (err error) {
	if tensor.SameObject(src, dest) {
		panic("webgpu: Add: src must not alias dest")
	}
	if !tensor.Broadcastable(src, dest) {
		panic(fmt.Sprintf("webgpu: Add: %v is not broadcastable onto %v", src, dest))
	}
	if dest.Size() == 0 {
		return nil
	}
	defer recoverDevice("Add", &err)

	destBuf := ctx.uploadTensor(dest)
	defer destBuf.Release()
	srcBuf := ctx.uploadTensor(src)
	defer srcBuf.Release()

	destDesc, err := describe(ctx, dest)
	if err != nil {
		return err
	}
	defer destDesc.Release()
	srcDesc, err := describe(ctx, src)
	if err != nil {
		return err
	}
	defer srcDesc.Release()

	params := ctx.createUniform(packU32(f32Bits(alpha), f32Bits(beta)))
	defer params.Release()

	ctx.dispatch("broadcast_add", broadcastAddShader, groups1D(dest.Size()), 1, 1, []bindBuffer{
		{destBuf, tensorByteSize(dest)},
		{srcBuf, tensorByteSize(src)},
		{destDesc.Handle(), 16},
		{srcDesc.Handle(), 16},
		{params, 16},
	})

	return ctx.readback(dest, destBuf)
}

// Fill sets every element of t to value.
func Fill(ctx *Context, t *tensor.Tensor, value float32) (err error) {
	if t.Size() == 0 {
		return nil
	}
	defer recoverDevice("Fill", &err)

	buf := ctx.uploadTensor(t)
	defer buf.Release()
	desc, err := describe(ctx, t)
	if err != nil {
		return err
	}
	defer desc.Release()

	params := ctx.createUniform(packU32(f32Bits(value)))
	defer params.Release()

	ctx.dispatch("fill", fillShader, groups1D(t.Size()), 1, 1, []bindBuffer{
		{buf, tensorByteSize(t)},
		{desc.Handle(), 16},
		{params, 16},
	})

	return ctx.readback(t, buf)
}

// Scale multiplies every element of t by value.
func Scale(ctx *Context, t *tensor.Tensor, value float32) (err error) {
	if t.Size() == 0 {
		return nil
	}
	defer recoverDevice("Scale", &err)

	buf := ctx.uploadTensor(t)
	defer buf.Release()
	desc, err := describe(ctx, t)
	if err != nil {
		return err
	}
	defer desc.Release()

	params := ctx.createUniform(packU32(f32Bits(value)))
	defer params.Release()

	ctx.dispatch("scale", scaleShader, groups1D(t.Size()), 1, 1, []bindBuffer{
		{buf, tensorByteSize(t)},
		{desc.Handle(), 16},
		{params, 16},
	})

	return ctx.readback(t, buf)
}
