// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package device defines a Vulkan-style compute-device abstraction
// (spec.md §4.2, C2): a handle-based GPU surface restricted to
// compute dispatch, buffer/image/sampler resources and descriptor
// binding, with no render passes or graphics pipeline state (rendering
// is a Non-goal of spec.md). It generalizes driver/core.go's GPU
// interface the same way neo3's driver package generalizes a
// particular backend: concrete backends (device/swgpu) register
// themselves and are selected by name.
package device

import (
	"errors"
	"log"
	"sync"
)

// Destroyer is the interface wrapping the Destroy method. Types that
// implement it may hold memory or handles not managed by the garbage
// collector, so Destroy must be called explicitly.
type Destroyer interface {
	Destroy()
}

// Fence is a GPU-to-host synchronization primitive signalled when a
// submitted batch of command buffers has finished executing.
type Fence interface {
	Destroyer
}

// Driver is the interface a concrete backend (e.g. device/swgpu)
// implements and registers through Register.
type Driver interface {
	// Open initializes the driver. Further calls on the same receiver
	// after a successful Open have no effect and return the same
	// Device.
	Open() (Device, error)

	// Name returns the driver's name. It must not cause the driver to
	// open.
	Name() string

	// Close deinitializes the driver. Closing a driver that is not
	// open has no effect.
	Close()
}

// Sentinel errors describing failures surfaced to the caller, per
// spec.md §7's error-kind table.
var (
	// ErrNoDevice means that no suitable device could be found.
	ErrNoDevice = errors.New("device: no suitable device found")
	// ErrNoHostMemory means that host memory could not be allocated.
	ErrNoHostMemory = errors.New("device: out of host memory")
	// ErrNoDeviceMemory means that device memory could not be
	// allocated.
	ErrNoDeviceMemory = errors.New("device: out of device memory")
	// ErrFatal means that the device is in an unrecoverable state; the
	// caller must destroy every resource it created and Close the
	// driver before calling Open again.
	ErrFatal = errors.New("device: fatal error")
	// ErrUnsupportedHardware is returned by Driver.Open when the
	// opened device is missing one of Requirements' mandatory
	// features (spec.md §4.2's init contract).
	ErrUnsupportedHardware = errors.New("device: unsupported hardware")
)

// Requirements lists the feature set Driver.Open validates against
// before returning a Device, per spec.md §4.2 ("queries features...
// and fails with UnsupportedHardware if the minimum set is missing").
// Every feature set to true here is mandatory: Features.Missing
// reports each one the device lacks. ShaderClock and ShaderPrintf are
// informational only and appear in Features, not here.
type Requirements struct {
	SamplerAnisotropy    bool
	ShaderInt16          bool
	AccelerationStruct   bool
	RayTracingPipeline   bool
}

// Features reports which of Requirements' features a Device actually
// supports, plus the purely informational extras spec.md §4.2 names
// (shaderClock, printf).
type Features struct {
	SamplerAnisotropy  bool
	ShaderInt16        bool
	AccelerationStruct bool
	RayTracingPipeline bool
	ShaderClock        bool
	ShaderPrintf       bool
}

// Missing reports which of req's mandatory features are absent from
// f, for use in an ErrUnsupportedHardware context message.
func (f Features) Missing(req Requirements) []string {
	var missing []string
	if req.SamplerAnisotropy && !f.SamplerAnisotropy {
		missing = append(missing, "samplerAnisotropy")
	}
	if req.ShaderInt16 && !f.ShaderInt16 {
		missing = append(missing, "shaderInt16")
	}
	if req.AccelerationStruct && !f.AccelerationStruct {
		missing = append(missing, "accelerationStructure")
	}
	if req.RayTracingPipeline && !f.RayTracingPipeline {
		missing = append(missing, "rayTracingPipeline")
	}
	return missing
}

// Device is the main interface to an opened driver. It is used to
// create resources and to submit recorded command buffers.
type Device interface {
	// Driver returns the Driver that owns this Device.
	Driver() Driver

	// Features returns the feature set queried at Open time.
	Features() Features

	// Submit submits a batch of command buffers for execution in the
	// order given. f, if non-nil, is signalled strictly after the
	// device has drained every command in the batch (spec.md §5's
	// submission ordering guarantee). Buffers cannot be recorded into
	// again until the submission completes.
	Submit(cb []CmdBuffer, f Fence) error

	// Wait blocks the calling goroutine until f is signalled. It is
	// one of the few host operations spec.md §5 allows to block.
	Wait(f Fence) error
	// Reset clears f back to the unsignalled state.
	Reset(f Fence) error
	// NewFence creates a fence in the unsignalled state.
	NewFence() (Fence, error)

	NewCmdBuffer() (CmdBuffer, error)
	NewShaderCode(data []byte) (ShaderCode, error)
	NewDescHeap(ds []Descriptor) (DescHeap, error)
	NewDescTable(dh []DescHeap) (DescTable, error)
	NewPipeline(state *CompState) (Pipeline, error)
	NewBuffer(size int64, visible bool, usg Usage) (Buffer, error)
	NewImage(pf PixelFmt, size Dim3D, layers, levels int, usg Usage) (Image, error)
	NewSampler(spln *Sampling) (Sampler, error)

	// Limits returns the implementation's limits. They are immutable
	// for the Device's lifetime.
	Limits() Limits
}

// Drivers returns the registered drivers. Backend packages register
// themselves from an init function, so only backends whose package is
// imported are considered for selection.
func Drivers() []Driver {
	mu.Lock()
	defer mu.Unlock()
	drv := make([]Driver, len(drivers))
	copy(drv, drivers)
	return drv
}

// Register registers a Driver under its Name. A driver registered
// under a name that is already in use replaces the previous one.
func Register(drv Driver) {
	mu.Lock()
	defer mu.Unlock()
	for i := range drivers {
		if drivers[i].Name() == drv.Name() {
			drivers[i] = drv
			log.Printf("[!] device driver '%s' replaced", drv.Name())
			return
		}
	}
	drivers = append(drivers, drv)
	log.Printf("device driver '%s' registered", drv.Name())
}

var (
	mu      sync.Mutex
	drivers []Driver = make([]Driver, 0, 1)
)
