package webgpu

import (
	"fmt"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/grava-ml/grava/internal/tensor"
)

// TensorDescriptor binds the shape of a 4-D tensor to a device-resident
// handle. The handle is a 16-byte uniform buffer holding the packed
// dimensions (n, k, nr, nc) and is what kernels bind to learn the layout of
// the tensors they run over.
//
// A descriptor exclusively owns its handle: it must not be copied by value.
// Transferring a *TensorDescriptor transfers ownership. Release frees the
// handle; SetSize with new dimensions replaces it.
type TensorDescriptor struct {
	ctx *Context

	n, k, nr, nc int
	handle       *wgpu.Buffer
}

// NewTensorDescriptor creates an unbound descriptor. Handle has no defined
// behavior until the first SetSize.
func NewTensorDescriptor(ctx *Context) *TensorDescriptor {
	return &TensorDescriptor{ctx: ctx}
}

// SetSize binds a shape to the descriptor, recreating the native handle when
// the dimensions change. If any argument is zero, all four dimensions are
// set to zero: the descriptor describes an explicitly empty tensor, never a
// partial one.
func (d *TensorDescriptor) SetSize(n, k, nr, nc int) (err error) {
	if n < 0 || k < 0 || nr < 0 || nc < 0 {
		return fmt.Errorf("webgpu: descriptor: negative dimension (%d,%d,%d,%d)", n, k, nr, nc)
	}
	if n == 0 || k == 0 || nr == 0 || nc == 0 {
		n, k, nr, nc = 0, 0, 0, 0
	}
	if d.handle != nil && d.n == n && d.k == k && d.nr == nr && d.nc == nc {
		return nil
	}

	defer recoverDevice("descriptor SetSize", &err)

	handle := d.ctx.createUniform(packU32(uint32(n), uint32(k), uint32(nr), uint32(nc)))
	if d.handle != nil {
		d.handle.Release()
	}
	d.handle = handle
	d.n, d.k, d.nr, d.nc = n, k, nr, nc
	return nil
}

// Size returns the last bound shape.
func (d *TensorDescriptor) Size() (n, k, nr, nc int) {
	return d.n, d.k, d.nr, d.nc
}

// Handle returns the opaque device handle for the bound shape. Valid only
// after a successful SetSize, and only until the next SetSize or Release.
func (d *TensorDescriptor) Handle() *wgpu.Buffer {
	return d.handle
}

// Release frees the native handle, returning the descriptor to its unbound
// state. Safe to call on an unbound descriptor.
func (d *TensorDescriptor) Release() {
	if d.handle != nil {
		d.handle.Release()
		d.handle = nil
	}
	d.n, d.k, d.nr, d.nc = 0, 0, 0, 0
}

// describe builds a transient descriptor for t. Callers own the result and
// must Release it after the dispatch completes.
func describe(ctx *Context, t *tensor.Tensor) (*TensorDescriptor, error) {
	d := NewTensorDescriptor(ctx)
	if err := d.SetSize(t.NumSamples(), t.K(), t.Nr(), t.Nc()); err != nil {
		return nil, err
	}
	return d, nil
}
