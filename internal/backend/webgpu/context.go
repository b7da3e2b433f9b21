// Package webgpu implements GPU tensor-operation kernels on top of WebGPU,
// using go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO bindings.
//
// The package exposes the primitive numerical operations used to build and
// train convolutional networks: broadcasted scaled-add, fills and scales,
// pointwise activations with gradients, per-location softmax, max pooling,
// and a convolution engine with cached algorithm selection. It never
// composes layers or computes losses; those belong to the caller.
package webgpu

import (
	"fmt"
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"
)

// Context owns the WebGPU objects shared by every kernel dispatch: the
// instance, adapter, device and queue, plus the shader and pipeline caches
// and the buffer pool engines draw workspace memory from.
//
// All work runs on the single device queue, so from the caller's view every
// operation is synchronous: when a call returns, its output tensor holds the
// result. A Context's caches are guarded, but the engines built on it
// (Conv, MaxPool) hold unguarded mutable state and must not be shared
// between goroutines.
type Context struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	// Shader and pipeline cache, keyed by kernel name.
	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex

	adapterInfo *wgpu.AdapterInfoGo

	// Pool for workspace and scratch buffers.
	pool *BufferPool
}

// New creates a Context on the highest-performance available adapter.
// Returns an error wrapping ErrUnavailable if WebGPU cannot be initialized.
func New() (ctx *Context, err error) {
	// Recover from panic if the wgpu native library is not found.
	defer func() {
		if r := recover(); r != nil {
			ctx = nil
			err = fmt.Errorf("webgpu: native library not available: %w: %v", ErrUnavailable, r)
		}
	}()

	instance, _ := wgpu.CreateInstance(nil)
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request adapter: %w: %v", ErrUnavailable, adapterErr)
	}

	adapterInfo, _ := adapter.GetInfo()

	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %w: %v", ErrUnavailable, deviceErr)
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get queue: %w", ErrUnavailable)
	}

	c := &Context{
		instance:    instance,
		adapter:     adapter,
		device:      device,
		queue:       queue,
		shaders:     make(map[string]*wgpu.ShaderModule),
		pipelines:   make(map[string]*wgpu.ComputePipeline),
		adapterInfo: adapterInfo,
	}
	c.pool = NewBufferPool(device)

	return c, nil
}

// Release frees all native resources held by the Context. The Context must
// not be used afterwards; engines created from it must be cleared first.
func (c *Context) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pool != nil {
		c.pool.Clear()
		c.pool = nil
	}

	for _, p := range c.pipelines {
		p.Release()
	}
	c.pipelines = nil

	for _, s := range c.shaders {
		s.Release()
	}
	c.shaders = nil

	if c.queue != nil {
		c.queue.Release()
		c.queue = nil
	}
	if c.device != nil {
		c.device.Release()
		c.device = nil
	}
	if c.adapter != nil {
		c.adapter.Release()
		c.adapter = nil
	}
	if c.instance != nil {
		c.instance.Release()
		c.instance = nil
	}
}

// Name returns a human-readable description of the backing adapter.
func (c *Context) Name() string {
	if c.adapterInfo != nil {
		return fmt.Sprintf("WebGPU (%s %s)", c.adapterInfo.Device, c.adapterInfo.Vendor)
	}
	return "WebGPU"
}

// AdapterInfo returns information about the GPU adapter in use.
func (c *Context) AdapterInfo() *wgpu.AdapterInfoGo {
	return c.adapterInfo
}

// PoolStats reports buffer pool usage counters.
func (c *Context) PoolStats() (allocated, released, hits, misses uint64, pooled int) {
	return c.pool.Stats()
}

// IsAvailable reports whether a WebGPU adapter can be acquired on this
// system.
func IsAvailable() (available bool) {
	// Recover from panic if the wgpu native library is not found.
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance, _ := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()

	return true
}

// ListAdapters returns information about available GPU adapters. WebGPU has
// no enumeration call, so this reports the default adapter.
func ListAdapters() (adapters []*wgpu.AdapterInfoGo, err error) {
	defer func() {
		if r := recover(); r != nil {
			adapters = nil
			err = fmt.Errorf("webgpu: native library not available: %w: %v", ErrUnavailable, r)
		}
	}()

	instance, _ := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, adapterErr := instance.RequestAdapter(nil)
	if adapterErr != nil {
		return nil, fmt.Errorf("webgpu: no adapters available: %w: %v", ErrUnavailable, adapterErr)
	}
	defer adapter.Release()

	info, _ := adapter.GetInfo()

	return []*wgpu.AdapterInfoGo{info}, nil
}
