// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package swgpu

import (
	"log"

	"github.com/jeffamstutz/gatling/device"
	"github.com/jeffamstutz/gatling/internal/handle"
)

// bufferData is the storage held in d.buffers, addressed only through
// a handle-wrapping bufferHandle so that use-after-free is caught
// rather than silently reading freed memory (spec.md §4.1/C1).
type bufferData struct {
	data    []byte
	visible bool
}

// bufferHandle implements device.Buffer as a thin wrapper over a
// handle.Handle into d.buffers: every method re-resolves the handle,
// so a call made after Destroy observes the freed state instead of
// stale data.
type bufferHandle struct {
	dev *Device
	h   handle.Handle
}

func (b *bufferHandle) get() *bufferData {
	v, err := b.dev.buffers.Get(b.h)
	if err != nil {
		return nil
	}
	return *v
}

func (b *bufferHandle) Destroy() {
	if err := b.dev.buffers.Free(b.h); err != nil {
		log.Printf("swgpu: double-destroy of buffer handle (ignored)")
	}
}

func (b *bufferHandle) Visible() bool {
	d := b.get()
	return d != nil && d.visible
}

func (b *bufferHandle) Bytes() []byte {
	d := b.get()
	if d == nil || !d.visible {
		return nil
	}
	return d.data
}

func (b *bufferHandle) Cap() int64 {
	d := b.get()
	if d == nil {
		return 0
	}
	return int64(len(d.data))
}

func (b *bufferHandle) Flush(off, size int64) error      { return nil }
func (b *bufferHandle) Invalidate(off, size int64) error { return nil }

// NewBuffer creates a new buffer. usg is accepted for interface parity
// with device.Device but does not affect the simulated backend's
// memory layout: every allocation is plain Go memory.
func (d *Device) NewBuffer(size int64, visible bool, usg device.Usage) (device.Buffer, error) {
	if size <= 0 {
		return nil, device.ErrNoDeviceMemory
	}
	bd := &bufferData{data: make([]byte, size), visible: visible}
	h := d.buffers.Create(bd)
	return &bufferHandle{dev: d, h: h}, nil
}
