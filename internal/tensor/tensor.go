// Package tensor provides the 4-D tensor representation consumed by the
// GPU operation kernels.
//
// A tensor is a dense, row-major float32 array with four logical axes:
// (num_samples, k, nr, nc) = (sample, channel, row, column). Host memory is
// always allocated; device buffers are created transiently by the backend.
package tensor

import "fmt"

// Tensor is a dense 4-D float32 array with axes (sample, channel, row, column).
// The zero value is an empty tensor.
type Tensor struct {
	n, k, nr, nc int
	data         []float32
}

// New creates a tensor with the given dimensions. All elements are zero.
// If any dimension is zero the tensor is empty.
func New(n, k, nr, nc int) *Tensor {
	t := &Tensor{}
	t.Resize(n, k, nr, nc)
	return t
}

// FromValues creates an (n, k, nr, nc) tensor initialized from values in
// row-major order. Panics if len(values) does not match the shape.
func FromValues(n, k, nr, nc int, values ...float32) *Tensor {
	t := New(n, k, nr, nc)
	if len(values) != t.Size() {
		panic(fmt.Sprintf("tensor: FromValues: got %d values for shape (%d,%d,%d,%d)",
			len(values), n, k, nr, nc))
	}
	copy(t.data, values)
	return t
}

// Resize reshapes the tensor to (n, k, nr, nc), reallocating storage when the
// total element count changes. Element values are unspecified after a resize
// that changes the total size; a same-size resize keeps the existing data.
func (t *Tensor) Resize(n, k, nr, nc int) {
	if n < 0 || k < 0 || nr < 0 || nc < 0 {
		panic(fmt.Sprintf("tensor: Resize: negative dimension (%d,%d,%d,%d)", n, k, nr, nc))
	}
	size := n * k * nr * nc
	if size != len(t.data) {
		t.data = make([]float32, size)
	}
	t.n, t.k, t.nr, t.nc = n, k, nr, nc
}

// NumSamples returns the size of the sample axis.
func (t *Tensor) NumSamples() int { return t.n }

// K returns the size of the channel axis.
func (t *Tensor) K() int { return t.k }

// Nr returns the number of rows.
func (t *Tensor) Nr() int { return t.nr }

// Nc returns the number of columns.
func (t *Tensor) Nc() int { return t.nc }

// Size returns the total number of elements.
func (t *Tensor) Size() int { return len(t.data) }

// SampleSize returns the number of elements in one sample plane (k*nr*nc).
func (t *Tensor) SampleSize() int { return t.k * t.nr * t.nc }

// Data returns the backing slice in row-major (sample, channel, row, column)
// order. Mutations are visible to the tensor.
func (t *Tensor) Data() []float32 { return t.data }

// At returns the element at (n, k, r, c). Intended for tests and small
// tensors; kernels index the flat Data slice directly.
func (t *Tensor) At(n, k, r, c int) float32 {
	return t.data[((n*t.k+k)*t.nr+r)*t.nc+c]
}

// Set assigns the element at (n, k, r, c).
func (t *Tensor) Set(n, k, r, c int, v float32) {
	t.data[((n*t.k+k)*t.nr+r)*t.nc+c] = v
}

// String returns a short shape description for error messages.
func (t *Tensor) String() string {
	return fmt.Sprintf("tensor(%d,%d,%d,%d)", t.n, t.k, t.nr, t.nc)
}

// SameObject reports whether a and b are the same tensor object. Operation
// contracts that forbid aliasing are expressed in terms of this identity.
func SameObject(a, b *Tensor) bool {
	return a == b && a != nil
}

// HaveSameDimensions reports whether a and b agree on all four axes.
func HaveSameDimensions(a, b *Tensor) bool {
	return a.n == b.n && a.k == b.k && a.nr == b.nr && a.nc == b.nc
}

// Broadcastable reports whether src can be broadcast onto dest: each axis of
// src must equal the corresponding axis of dest or be exactly 1.
func Broadcastable(src, dest *Tensor) bool {
	ok := func(s, d int) bool { return s == d || s == 1 }
	return ok(src.n, dest.n) && ok(src.k, dest.k) && ok(src.nr, dest.nr) && ok(src.nc, dest.nc)
}
