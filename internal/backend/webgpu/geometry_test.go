package webgpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvOutputSize(t *testing.T) {
	// Odd filters pad by (f-1)/2, so the output is ceil(dim/stride).
	assert.Equal(t, 4, ConvOutputSize(4, 1, 3))
	assert.Equal(t, 2, ConvOutputSize(4, 2, 3))
	assert.Equal(t, 3, ConvOutputSize(5, 2, 3), "5/2 rounds up")
	assert.Equal(t, 4, ConvOutputSize(7, 2, 5), "7/2 rounds up")
	assert.Equal(t, 1, ConvOutputSize(1, 1, 1))

	// Even filters get asymmetric padding floor((f-1)/2); a 2x2 filter pads
	// by zero and slides over valid positions only.
	assert.Equal(t, 3, ConvOutputSize(4, 1, 2))
	assert.Equal(t, 2, ConvOutputSize(4, 2, 2))

	// A zero-extent input has a zero-extent output, never a negative one.
	assert.Equal(t, 0, ConvOutputSize(0, 1, 2))
	assert.Equal(t, 0, ConvOutputSize(0, 2, 2))
	assert.Equal(t, 0, ConvOutputSize(0, 2, 3))
}

func TestPoolOutputSize(t *testing.T) {
	// Pooling floors: only windows whose origin lands in the input count.
	assert.Equal(t, 2, PoolOutputSize(4, 2))
	assert.Equal(t, 2, PoolOutputSize(5, 2))
	assert.Equal(t, 1, PoolOutputSize(3, 2))
	assert.Equal(t, 7, PoolOutputSize(7, 1))
}

func TestChooseConvAlgo(t *testing.T) {
	assert.Equal(t, convAlgoDirect, chooseConvAlgo(1, 1, 0),
		"1x1 filters gain nothing from unrolling")
	assert.Equal(t, convAlgoIm2col, chooseConvAlgo(3, 3, 1024))
	assert.Equal(t, convAlgoDirect, chooseConvAlgo(3, 3, maxWorkspaceBytes+1),
		"over-cap workspace falls back to direct")
	assert.Equal(t, convAlgoIm2col, chooseConvAlgo(1, 3, 1024),
		"1-D windows still unroll")
}

func TestIm2colBytes(t *testing.T) {
	// 2 samples, 3x3 output, 4 channels, 3x3 filter window, f32.
	assert.Equal(t, uint64(2*3*3*4*3*3*4), im2colBytes(2, 3, 3, 4, 3, 3))
	assert.Equal(t, uint64(0), im2colBytes(0, 3, 3, 4, 3, 3))
}

func TestConvAlgoString(t *testing.T) {
	assert.Equal(t, "direct", convAlgoDirect.String())
	assert.Equal(t, "im2col", convAlgoIm2col.String())
}
