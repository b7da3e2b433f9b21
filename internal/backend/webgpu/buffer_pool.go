package webgpu

import (
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"
)

// Buffer size categories for pooling.
type bufferClass int

const (
	smallBuffer bufferClass = iota // < 4KB
	mediumBuffer                   // 4KB - 1MB
	largeBuffer                    // > 1MB
)

const (
	smallThreshold    = 4 * 1024
	mediumThreshold   = 1024 * 1024
	maxPooledPerClass = 32
)

// pooledBuffer wraps a GPU buffer with the metadata needed for reuse.
type pooledBuffer struct {
	buffer *wgpu.Buffer
	size   uint64
	usage  wgpu.BufferUsage
}

// BufferPool recycles device buffers to avoid reallocating workspace memory
// on every engine Setup. Convolution engines acquire their scratch buffer
// here once per configuration and return it on Clear.
type BufferPool struct {
	device *wgpu.Device

	small  []*pooledBuffer
	medium []*pooledBuffer
	large  []*pooledBuffer

	mu sync.Mutex

	totalAllocated uint64
	totalReleased  uint64
	poolHits       uint64
	poolMisses     uint64
}

// NewBufferPool creates an empty pool for the given device.
func NewBufferPool(device *wgpu.Device) *BufferPool {
	return &BufferPool{device: device}
}

// Acquire returns a buffer of at least size bytes with the requested usage,
// reusing a pooled buffer when one fits.
func (p *BufferPool) Acquire(size uint64, usage wgpu.BufferUsage) *wgpu.Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	class := classify(size)
	pool := p.classSlice(class)

	for i, pb := range *pool {
		if pb.size >= size && pb.usage&usage == usage {
			buffer := pb.buffer
			*pool = append((*pool)[:i], (*pool)[i+1:]...)
			p.poolHits++
			return buffer
		}
	}

	p.poolMisses++
	p.totalAllocated++

	return p.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: usage,
		Size:  size,
	})
}

// Release returns a buffer to the pool, or frees it if the class is full.
func (p *BufferPool) Release(buffer *wgpu.Buffer, size uint64, usage wgpu.BufferUsage) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalReleased++

	class := classify(size)
	pool := p.classSlice(class)

	if len(*pool) >= maxPooledPerClass {
		buffer.Release()
		return
	}

	*pool = append(*pool, &pooledBuffer{buffer: buffer, size: size, usage: usage})
}

// Clear frees every pooled buffer. Called when the Context is released.
func (p *BufferPool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, pool := range []*[]*pooledBuffer{&p.small, &p.medium, &p.large} {
		for _, pb := range *pool {
			pb.buffer.Release()
		}
		*pool = (*pool)[:0]
	}
}

// Stats returns usage counters for the pool.
func (p *BufferPool) Stats() (allocated, released, hits, misses uint64, pooled int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.totalAllocated, p.totalReleased, p.poolHits, p.poolMisses,
		len(p.small) + len(p.medium) + len(p.large)
}

func classify(size uint64) bufferClass {
	if size < smallThreshold {
		return smallBuffer
	}
	if size < mediumThreshold {
		return mediumBuffer
	}
	return largeBuffer
}

func (p *BufferPool) classSlice(class bufferClass) *[]*pooledBuffer {
	switch class {
	case smallBuffer:
		return &p.small
	case mediumBuffer:
		return &p.medium
	default:
		return &p.large
	}
}
