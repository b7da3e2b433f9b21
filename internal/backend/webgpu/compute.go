package webgpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/grava-ml/grava/internal/tensor"
)

// workgroupSize is the number of threads per 1-D workgroup; must match the
// @workgroup_size attribute in shaders.go.
const workgroupSize = 256

// compileShader compiles WGSL code into a ShaderModule, caching by name.
func (c *Context) compileShader(name, code string) *wgpu.ShaderModule {
	c.mu.RLock()
	if shader, exists := c.shaders[name]; exists {
		c.mu.RUnlock()
		return shader
	}
	c.mu.RUnlock()

	shader := c.device.CreateShaderModuleWGSL(code)

	c.mu.Lock()
	c.shaders[name] = shader
	c.mu.Unlock()

	return shader
}

// getOrCreatePipeline returns a cached ComputePipeline or builds a new one.
func (c *Context) getOrCreatePipeline(name string, shader *wgpu.ShaderModule) *wgpu.ComputePipeline {
	c.mu.RLock()
	if pipeline, exists := c.pipelines[name]; exists {
		c.mu.RUnlock()
		return pipeline
	}
	c.mu.RUnlock()

	pipeline := c.device.CreateComputePipelineSimple(nil, shader, "main")

	c.mu.Lock()
	c.pipelines[name] = pipeline
	c.mu.Unlock()

	return pipeline
}

// createBuffer creates a GPU buffer initialized with data.
func (c *Context) createBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))

	buffer := c.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, size)
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mappedSlice, data)
	buffer.Unmap()

	return buffer
}

// createStorage creates an uninitialized storage buffer of the given size.
func (c *Context) createStorage(size uint64) *wgpu.Buffer {
	return c.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
}

// createUniform creates a uniform buffer with 16-byte alignment, as WebGPU
// requires for uniform struct fields.
func (c *Context) createUniform(data []byte) *wgpu.Buffer {
	size := uint64(len(data))
	alignedSize := (size + 15) &^ 15

	buffer := c.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             alignedSize,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, alignedSize)
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), alignedSize)
	copy(mappedSlice, data)
	buffer.Unmap()

	return buffer
}

// readBuffer copies a GPU buffer back to host memory through a staging
// buffer, since storage buffers cannot be mapped directly.
func (c *Context) readBuffer(srcBuffer *wgpu.Buffer, size uint64) ([]byte, error) {
	stagingBuffer := c.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer stagingBuffer.Release()

	encoder := c.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(srcBuffer, 0, stagingBuffer, 0, size)
	cmdBuffer := encoder.Finish(nil)
	c.queue.Submit(cmdBuffer)

	err := stagingBuffer.MapAsync(c.device, wgpu.MapModeRead, 0, size)
	if err != nil {
		return nil, fmt.Errorf("webgpu: failed to map staging buffer: %w: %v", ErrDeviceFailure, err)
	}

	mappedPtr := stagingBuffer.GetMappedRange(0, size)
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	result := make([]byte, size)
	copy(result, mappedSlice)

	stagingBuffer.Unmap()

	return result, nil
}

// float32Bytes views a float32 slice as raw bytes without copying.
func float32Bytes(d []float32) []byte {
	if len(d) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&d[0])), len(d)*4)
}

// uploadTensor copies a tensor's host data into a new storage buffer.
func (c *Context) uploadTensor(t *tensor.Tensor) *wgpu.Buffer {
	return c.createBuffer(float32Bytes(t.Data()), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc|wgpu.BufferUsageCopyDst)
}

// tensorByteSize returns the device byte size of a tensor's data.
func tensorByteSize(t *tensor.Tensor) uint64 {
	return uint64(t.Size()) * 4
}

// readback copies a device buffer into the tensor's host data.
func (c *Context) readback(t *tensor.Tensor, buf *wgpu.Buffer) error {
	data, err := c.readBuffer(buf, tensorByteSize(t))
	if err != nil {
		return err
	}
	copy(float32Bytes(t.Data()), data)
	return nil
}

// packU32 packs 32-bit words into a little-endian, 16-byte-aligned buffer
// for use as uniform contents.
func packU32(words ...uint32) []byte {
	size := (len(words)*4 + 15) &^ 15
	buf := make([]byte, size)
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	return buf
}

// f32Bits returns the IEEE-754 bits of v for packing into uniform words.
func f32Bits(v float32) uint32 {
	return math.Float32bits(v)
}

// bindBuffer pairs a buffer with its bound size; binding indices follow
// slice order.
type bindBuffer struct {
	buffer *wgpu.Buffer
	size   uint64
}

// dispatch executes one cached compute pipeline over the given bindings and
// workgroup grid, then blocks until the queue has accepted the work.
func (c *Context) dispatch(name, code string, groupsX, groupsY, groupsZ uint32, binds []bindBuffer) {
	shader := c.compileShader(name, code)
	pipeline := c.getOrCreatePipeline(name, shader)

	layout := pipeline.GetBindGroupLayout(0)
	entries := make([]wgpu.BindGroupEntry, len(binds))
	for i, bb := range binds {
		entries[i] = wgpu.BufferBindingEntry(uint32(i), bb.buffer, 0, bb.size)
	}
	bindGroup := c.device.CreateBindGroupSimple(layout, entries)
	defer bindGroup.Release()

	encoder := c.device.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(groupsX, groupsY, groupsZ)
	pass.End()

	cmdBuffer := encoder.Finish(nil)
	c.queue.Submit(cmdBuffer)
}

// groups1D returns the workgroup count covering total threads in one
// dimension.
func groups1D(total int) uint32 {
	return uint32((total + workgroupSize - 1) / workgroupSize)
}
