package webgpu

import (
	"fmt"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/grava-ml/grava/internal/tensor"
)

// convAlgo identifies a convolution kernel strategy. Direct kernels walk the
// receptive field per thread and need no scratch memory; im2col kernels
// unroll input patches into a column-matrix workspace first and trade memory
// for a tighter inner loop.
type convAlgo int

const (
	convAlgoDirect convAlgo = iota
	convAlgoIm2col
)

func (a convAlgo) String() string {
	switch a {
	case convAlgoDirect:
		return "direct"
	case convAlgoIm2col:
		return "im2col"
	default:
		return fmt.Sprintf("convAlgo(%d)", int(a))
	}
}

// maxWorkspaceBytes caps the scratch memory the algorithm selector may
// commit to. Candidates whose workspace exceeds it fall back to direct.
const maxWorkspaceBytes = 256 << 20

// ConvOutputSize returns the spatial output extent of a convolution over
// dim input positions with the given stride and filter extent, using zero
// padding of (filter-1)/2 on each side. A zero-extent input yields a
// zero-extent output.
func ConvOutputSize(dim, stride, filter int) int {
	if dim <= 0 {
		return 0
	}
	pad := (filter - 1) / 2
	out := 1 + (dim+2*pad-filter)/stride
	if out < 0 {
		return 0
	}
	return out
}

// im2colBytes is the workspace an im2col kernel needs for the given shapes:
// one f32 per (sample, output position, patch element).
func im2colBytes(n, outNr, outNc, k, fnr, fnc int) uint64 {
	return uint64(n) * uint64(outNr) * uint64(outNc) *
		uint64(k) * uint64(fnr) * uint64(fnc) * 4
}

// chooseConvAlgo picks between the direct and im2col strategies. im2col only
// pays off when the filter window is wider than a single element, and only
// when its workspace fits under the cap.
func chooseConvAlgo(fnr, fnc int, workspace uint64) convAlgo {
	if fnr*fnc > 1 && workspace <= maxWorkspaceBytes {
		return convAlgoIm2col
	}
	return convAlgoDirect
}

// Conv is a convolution engine. Setup binds it to a data/filter shape pair
// and stride, selects kernel strategies for the forward and both backward
// passes, and sizes a single shared workspace to the largest of their
// needs. Forward, BackwardData and BackwardFilters then run against that
// configuration until Clear or the next Setup.
//
// A Conv is not safe for concurrent use.
type Conv struct {
	ctx *Context

	configured bool

	dataN, dataK, dataNr, dataNc         int
	filterN, filterK, filterNr, filterNc int
	strideY, strideX                     int
	padY, padX                           int
	outNr, outNc                         int

	forwardAlgo         convAlgo
	backwardFiltersAlgo convAlgo

	dataDesc   *TensorDescriptor
	filterDesc *TensorDescriptor
	convBuf    *wgpu.Buffer

	workspace     *wgpu.Buffer
	workspaceSize uint64
}

// NewConv returns an unconfigured convolution engine bound to ctx.
func NewConv(ctx *Context) *Conv {
	return &Conv{ctx: ctx}
}

// Setup configures the engine for convolving filters over tensors shaped
// like data with the given strides. Any previous configuration is released
// first. The tensor contents are ignored here; only the shapes matter.
func (cv *Conv) Setup(data, filters *tensor.Tensor, strideY, strideX int) (err error) {
	if strideY <= 0 || strideX <= 0 {
		panic(fmt.Sprintf("webgpu: Conv.Setup: strides must be positive, got (%d, %d)", strideY, strideX))
	}
	if filters.K() != data.K() {
		panic(fmt.Sprintf("webgpu: Conv.Setup: filter channels %d do not match data channels %d",
			filters.K(), data.K()))
	}
	cv.Clear()
	defer recoverDevice("Conv.Setup", &err)

	cv.dataN, cv.dataK, cv.dataNr, cv.dataNc = data.NumSamples(), data.K(), data.Nr(), data.Nc()
	cv.filterN, cv.filterK = filters.NumSamples(), filters.K()
	cv.filterNr, cv.filterNc = filters.Nr(), filters.Nc()
	cv.strideY, cv.strideX = strideY, strideX
	cv.padY = (cv.filterNr - 1) / 2
	cv.padX = (cv.filterNc - 1) / 2
	cv.outNr = ConvOutputSize(cv.dataNr, strideY, cv.filterNr)
	cv.outNc = ConvOutputSize(cv.dataNc, strideX, cv.filterNc)

	colBytes := im2colBytes(cv.dataN, cv.outNr, cv.outNc, cv.dataK, cv.filterNr, cv.filterNc)
	cv.forwardAlgo = chooseConvAlgo(cv.filterNr, cv.filterNc, colBytes)
	cv.backwardFiltersAlgo = chooseConvAlgo(cv.filterNr, cv.filterNc, colBytes)

	cv.workspaceSize = 0
	if cv.forwardAlgo == convAlgoIm2col {
		cv.workspaceSize = colBytes
	}
	if cv.backwardFiltersAlgo == convAlgoIm2col && colBytes > cv.workspaceSize {
		cv.workspaceSize = colBytes
	}

	cv.dataDesc = NewTensorDescriptor(cv.ctx)
	if err := cv.dataDesc.SetSize(cv.dataN, cv.dataK, cv.dataNr, cv.dataNc); err != nil {
		cv.Clear()
		return err
	}
	cv.filterDesc = NewTensorDescriptor(cv.ctx)
	if err := cv.filterDesc.SetSize(cv.filterN, cv.filterK, cv.filterNr, cv.filterNc); err != nil {
		cv.Clear()
		return err
	}
	cv.convBuf = cv.ctx.createUniform(packU32(
		uint32(cv.strideY), uint32(cv.strideX),
		uint32(cv.padY), uint32(cv.padX),
		uint32(cv.outNr), uint32(cv.outNc),
	))
	if cv.workspaceSize > 0 {
		cv.workspace = cv.ctx.pool.Acquire(cv.workspaceSize,
			wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc|wgpu.BufferUsageCopyDst)
	}

	cv.configured = true
	return nil
}

// OutputSize reports the output tensor dimensions of Forward for the
// current configuration.
func (cv *Conv) OutputSize() (n, k, nr, nc int) {
	cv.requireConfigured("OutputSize")
	return cv.dataN, cv.filterN, cv.outNr, cv.outNc
}

// ForwardAlgorithm reports the strategy Setup selected for Forward.
func (cv *Conv) ForwardAlgorithm() string { return cv.forwardAlgo.String() }

// BackwardFiltersAlgorithm reports the strategy Setup selected for
// BackwardFilters.
func (cv *Conv) BackwardFiltersAlgorithm() string { return cv.backwardFiltersAlgo.String() }

// WorkspaceSize reports the shared scratch buffer size in bytes.
func (cv *Conv) WorkspaceSize() uint64 { return cv.workspaceSize }

// Forward convolves filters over data and assigns the result to output,
// resizing output to (samples, num_filters, out_nr, out_nc). data and
// filters must match the shapes given to Setup, and output must not alias
// either of them.
func (cv *Conv) Forward(output, data, filters *tensor.Tensor) (err error) {
	cv.requireConfigured("Forward")
	cv.requireShapes("Forward", data, filters)
	if tensor.SameObject(output, data) || tensor.SameObject(output, filters) {
		panic("webgpu: Conv.Forward: output must not alias data or filters")
	}
	output.Resize(cv.dataN, cv.filterN, cv.outNr, cv.outNc)
	if output.Size() == 0 {
		return nil
	}
	defer recoverDevice("Conv.Forward", &err)

	dataBuf := cv.ctx.uploadTensor(data)
	defer dataBuf.Release()
	filterBuf := cv.ctx.uploadTensor(filters)
	defer filterBuf.Release()
	outBuf := cv.ctx.createStorage(tensorByteSize(output))
	defer outBuf.Release()

	switch cv.forwardAlgo {
	case convAlgoIm2col:
		cv.runIm2col(dataBuf, tensorByteSize(data))
		cv.ctx.dispatch("conv_forward_im2col", convForwardIm2colShader,
			groups1D(output.Size()), 1, 1, []bindBuffer{
				{cv.workspace, cv.workspaceSize},
				{filterBuf, tensorByteSize(filters)},
				{outBuf, tensorByteSize(output)},
				{cv.dataDesc.Handle(), 16},
				{cv.filterDesc.Handle(), 16},
				{cv.convBuf, 32},
			})
	default:
		cv.ctx.dispatch("conv_forward_direct", convForwardDirectShader,
			groups1D(output.Size()), 1, 1, []bindBuffer{
				{dataBuf, tensorByteSize(data)},
				{filterBuf, tensorByteSize(filters)},
				{outBuf, tensorByteSize(output)},
				{cv.dataDesc.Handle(), 16},
				{cv.filterDesc.Handle(), 16},
				{cv.convBuf, 32},
			})
	}

	return cv.ctx.readback(output, outBuf)
}

// BackwardData adds the gradient of the convolution with respect to its
// input data into dataGradient. gi must be shaped like Forward's output and
// dataGradient like Setup's data tensor. The existing contents of
// dataGradient are kept and summed into.
func (cv *Conv) BackwardData(gi, filters, dataGradient *tensor.Tensor) (err error) {
	cv.requireConfigured("BackwardData")
	if tensor.SameObject(dataGradient, gi) || tensor.SameObject(dataGradient, filters) {
		panic("webgpu: Conv.BackwardData: dataGradient must not alias gi or filters")
	}
	cv.requireOutputShape("BackwardData", gi)
	cv.requireDataShape("BackwardData", dataGradient)
	cv.requireFilterShape("BackwardData", filters)
	if dataGradient.Size() == 0 {
		return nil
	}
	defer recoverDevice("Conv.BackwardData", &err)

	giBuf := cv.ctx.uploadTensor(gi)
	defer giBuf.Release()
	filterBuf := cv.ctx.uploadTensor(filters)
	defer filterBuf.Release()
	gradBuf := cv.ctx.uploadTensor(dataGradient)
	defer gradBuf.Release()

	cv.ctx.dispatch("conv_backward_data", convBackwardDataShader,
		groups1D(dataGradient.Size()), 1, 1, []bindBuffer{
			{giBuf, tensorByteSize(gi)},
			{filterBuf, tensorByteSize(filters)},
			{gradBuf, tensorByteSize(dataGradient)},
			{cv.dataDesc.Handle(), 16},
			{cv.filterDesc.Handle(), 16},
			{cv.convBuf, 32},
		})

	return cv.ctx.readback(dataGradient, gradBuf)
}

// BackwardFilters assigns the gradient of the convolution with respect to
// the filters to filtersGradient, overwriting its contents. gi must be
// shaped like Forward's output, data like Setup's data tensor, and
// filtersGradient like the filter tensor.
func (cv *Conv) BackwardFilters(gi, data, filtersGradient *tensor.Tensor) (err error) {
	cv.requireConfigured("BackwardFilters")
	if tensor.SameObject(filtersGradient, gi) || tensor.SameObject(filtersGradient, data) {
		panic("webgpu: Conv.BackwardFilters: filtersGradient must not alias gi or data")
	}
	cv.requireOutputShape("BackwardFilters", gi)
	cv.requireDataShape("BackwardFilters", data)
	cv.requireFilterShape("BackwardFilters", filtersGradient)
	if filtersGradient.Size() == 0 {
		return nil
	}
	defer recoverDevice("Conv.BackwardFilters", &err)

	giBuf := cv.ctx.uploadTensor(gi)
	defer giBuf.Release()
	fgradBuf := cv.ctx.createStorage(tensorByteSize(filtersGradient))
	defer fgradBuf.Release()

	switch cv.backwardFiltersAlgo {
	case convAlgoIm2col:
		dataBuf := cv.ctx.uploadTensor(data)
		cv.runIm2col(dataBuf, tensorByteSize(data))
		dataBuf.Release()
		cv.ctx.dispatch("conv_backward_filters_im2col", convBackwardFiltersIm2colShader,
			groups1D(filtersGradient.Size()), 1, 1, []bindBuffer{
				{giBuf, tensorByteSize(gi)},
				{cv.workspace, cv.workspaceSize},
				{fgradBuf, tensorByteSize(filtersGradient)},
				{cv.dataDesc.Handle(), 16},
				{cv.filterDesc.Handle(), 16},
				{cv.convBuf, 32},
			})
	default:
		dataBuf := cv.ctx.uploadTensor(data)
		defer dataBuf.Release()
		cv.ctx.dispatch("conv_backward_filters_direct", convBackwardFiltersDirectShader,
			groups1D(filtersGradient.Size()), 1, 1, []bindBuffer{
				{giBuf, tensorByteSize(gi)},
				{dataBuf, tensorByteSize(data)},
				{fgradBuf, tensorByteSize(filtersGradient)},
				{cv.dataDesc.Handle(), 16},
				{cv.filterDesc.Handle(), 16},
				{cv.convBuf, 32},
			})
	}

	return cv.ctx.readback(filtersGradient, fgradBuf)
}

// Clear releases the engine's descriptors and returns its workspace to the
// buffer pool, leaving it unconfigured. Safe to call repeatedly.
func (cv *Conv) Clear() {
	if cv.dataDesc != nil {
		cv.dataDesc.Release()
		cv.dataDesc = nil
	}
	if cv.filterDesc != nil {
		cv.filterDesc.Release()
		cv.filterDesc = nil
	}
	if cv.convBuf != nil {
		cv.convBuf.Release()
		cv.convBuf = nil
	}
	if cv.workspace != nil {
		cv.ctx.pool.Release(cv.workspace, cv.workspaceSize,
			wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc|wgpu.BufferUsageCopyDst)
		cv.workspace = nil
	}
	cv.workspaceSize = 0
	cv.configured = false
}

// runIm2col unrolls the data buffer into the shared workspace.
func (cv *Conv) runIm2col(dataBuf *wgpu.Buffer, dataSize uint64) {
	elems := cv.dataN * cv.outNr * cv.outNc * cv.dataK * cv.filterNr * cv.filterNc
	cv.ctx.dispatch("conv_im2col", im2colShader, groups1D(elems), 1, 1, []bindBuffer{
		{dataBuf, dataSize},
		{cv.workspace, cv.workspaceSize},
		{cv.dataDesc.Handle(), 16},
		{cv.filterDesc.Handle(), 16},
		{cv.convBuf, 32},
	})
}

func (cv *Conv) requireConfigured(op string) {
	if !cv.configured {
		panic("webgpu: Conv." + op + ": engine is not configured, call Setup first")
	}
}

func (cv *Conv) requireShapes(op string, data, filters *tensor.Tensor) {
	cv.requireDataShape(op, data)
	cv.requireFilterShape(op, filters)
}

func (cv *Conv) requireFilterShape(op string, t *tensor.Tensor) {
	if t.NumSamples() != cv.filterN || t.K() != cv.filterK ||
		t.Nr() != cv.filterNr || t.Nc() != cv.filterNc {
		panic(fmt.Sprintf("webgpu: Conv.%s: tensor %v does not match configured filter shape", op, t))
	}
}

func (cv *Conv) requireDataShape(op string, t *tensor.Tensor) {
	if t.NumSamples() != cv.dataN || t.K() != cv.dataK ||
		t.Nr() != cv.dataNr || t.Nc() != cv.dataNc {
		panic(fmt.Sprintf("webgpu: Conv.%s: tensor %v does not match configured data shape", op, t))
	}
}

func (cv *Conv) requireOutputShape(op string, t *tensor.Tensor) {
	if t.NumSamples() != cv.dataN || t.K() != cv.filterN ||
		t.Nr() != cv.outNr || t.Nc() != cv.outNc {
		panic(fmt.Sprintf("webgpu: Conv.%s: tensor %v does not match configured output shape", op, t))
	}
}
