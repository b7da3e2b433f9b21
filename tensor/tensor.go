// Copyright 2026 Grava ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public API for the 4-D tensors consumed by the
// Grava GPU kernels.
//
// A tensor is a dense, row-major float32 array with four logical axes
// (num_samples, k, nr, nc): sample, channel, row and column. Host memory is
// always present; device buffers are managed by the backend packages.
//
// Example:
//
//	x := tensor.New(16, 3, 224, 224)
//	bias := tensor.FromValues(1, 3, 1, 1, 0.1, 0.2, 0.3)
//	if tensor.Broadcastable(bias, x) {
//	    // bias can be added onto x with webgpu.Add
//	}
package tensor

import (
	"github.com/grava-ml/grava/internal/tensor"
)

// Tensor is a dense 4-D float32 array with axes (sample, channel, row,
// column). The zero value is an empty tensor.
type Tensor = tensor.Tensor

// New creates a tensor with the given dimensions. All elements are zero.
func New(n, k, nr, nc int) *Tensor {
	return tensor.New(n, k, nr, nc)
}

// FromValues creates an (n, k, nr, nc) tensor initialized from values in
// row-major order. Panics if len(values) does not match the shape.
func FromValues(n, k, nr, nc int, values ...float32) *Tensor {
	return tensor.FromValues(n, k, nr, nc, values...)
}

// SameObject reports whether a and b are the same tensor object.
func SameObject(a, b *Tensor) bool {
	return tensor.SameObject(a, b)
}

// HaveSameDimensions reports whether a and b agree on all four axes.
func HaveSameDimensions(a, b *Tensor) bool {
	return tensor.HaveSameDimensions(a, b)
}

// Broadcastable reports whether src can be broadcast onto dest: each axis of
// src must equal the corresponding axis of dest or be exactly 1.
func Broadcastable(src, dest *Tensor) bool {
	return tensor.Broadcastable(src, dest)
}
