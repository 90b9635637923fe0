// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package swgpu

import (
	"log"

	"github.com/jeffamstutz/gatling/device"
	"github.com/jeffamstutz/gatling/internal/handle"
)

// fenceData's Signalled field is all swgpu needs: Submit runs command
// buffers synchronously on the calling goroutine (there is no real
// device queue to race against), so by the time Submit returns the
// fence is already signalled.
type fenceData struct {
	signalled bool
}

type fenceHandle struct {
	dev *Device
	h   handle.Handle
}

func (f *fenceHandle) get() *fenceData {
	v, err := f.dev.fences.Get(f.h)
	if err != nil {
		return nil
	}
	return *v
}

func (f *fenceHandle) Destroy() {
	if err := f.dev.fences.Free(f.h); err != nil {
		log.Printf("swgpu: double-destroy of fence handle (ignored)")
	}
}

func (d *Device) NewFence() (device.Fence, error) {
	h := d.fences.Create(&fenceData{})
	return &fenceHandle{dev: d, h: h}, nil
}

func (d *Device) Wait(f device.Fence) error {
	fh, ok := f.(*fenceHandle)
	if !ok {
		return device.ErrNoDevice
	}
	fd := fh.get()
	if fd == nil {
		return device.ErrNoDevice
	}
	if !fd.signalled {
		// Submit always signals before returning, so reaching here
		// with an unsignalled fence means the caller passed a fence
		// that was never submitted.
		return device.ErrFatal
	}
	return nil
}

func (d *Device) Reset(f device.Fence) error {
	fh, ok := f.(*fenceHandle)
	if !ok {
		return device.ErrNoDevice
	}
	fd := fh.get()
	if fd == nil {
		return device.ErrNoDevice
	}
	fd.signalled = false
	return nil
}
