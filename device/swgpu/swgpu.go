// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package swgpu implements a pure-Go, host-memory-backed device.Driver
// (spec.md's C2, device/swgpu per SPEC_FULL.md §B). It stands in for
// the teacher's cgo Vulkan binding (driver/vk): the path tracer's
// host-side contract (handle validity, descriptor-binding validation,
// implicit layout barriers, command ordering) is fully testable
// without linking a platform Vulkan loader, and nothing in this
// exercise's environment can assume a real GPU or the Vulkan SDK
// headers are present. swgpu does not interpret SPIR-V or execute
// compute shaders: Dispatch validates and records the call (dispatch
// bounds, bound-resource layout transitions) but the actual path
// tracing math is evaluated directly against bvh.CompressedBVH by the
// traversal package, never through this device abstraction.
package swgpu

import (
	"log"

	"github.com/jeffamstutz/gatling/device"
	"github.com/jeffamstutz/gatling/internal/handle"
)

const driverName = "swgpu"

func init() {
	device.Register(&driver{})
}

// driver implements device.Driver.
type driver struct {
	dev *Device
}

func (d *driver) Name() string { return driverName }

func (d *driver) Open() (device.Device, error) {
	if d.dev != nil {
		return d.dev, nil
	}
	d.dev = newDevice()
	log.Printf("swgpu: device opened")
	return d.dev, nil
}

func (d *driver) Close() {
	if d.dev == nil {
		return
	}
	d.dev = nil
	log.Printf("swgpu: device closed")
}

// Device is swgpu's device.Device implementation: every resource kind
// is backed by a handle.Store, per spec.md §4.1/C1, and touched only
// from the single goroutine that owns it (spec.md §5's single-
// threaded-cooperative-per-device scheduling model — these stores are
// deliberately left unsynchronized).
type Device struct {
	features device.Features
	limits   device.Limits

	buffers  *handle.Store[*bufferData]
	images   *handle.Store[*imageData]
	views    *handle.Store[*imageViewData]
	samplers *handle.Store[*samplerData]
	shaders  *handle.Store[*shaderData]
	heaps    *handle.Store[*descHeapData]
	tables   *handle.Store[*descTableData]
	pipelns  *handle.Store[*pipelineData]
	fences   *handle.Store[*fenceData]
	cmdBufs  *handle.Store[*cmdBufferData]
}

func newDevice() *Device {
	return &Device{
		features: device.Features{
			SamplerAnisotropy:  true,
			ShaderInt16:        true,
			AccelerationStruct: true,
			RayTracingPipeline: true,
			ShaderClock:        true,
			ShaderPrintf:       true,
		},
		limits: device.Limits{
			MaxImage2D:                       8192,
			MaxImage3D:                       2048,
			MaxLayers:                        2048,
			MaxDescHeaps:                     4,
			MaxDBuffer:                       64,
			MaxDImage:                        64,
			MaxDConstant:                     16,
			MaxDTexture:                      64,
			MaxDSampler:                      16,
			MaxDBufferRange:                  1 << 30,
			MaxDConstantRange:                1 << 16,
			MinStorageBufferOffsetAlignment:  256,
			MaxDispatch:                      [3]int{65535, 65535, 65535},
		},
		buffers:  handle.New[*bufferData](),
		images:   handle.New[*imageData](),
		views:    handle.New[*imageViewData](),
		samplers: handle.New[*samplerData](),
		shaders:  handle.New[*shaderData](),
		heaps:    handle.New[*descHeapData](),
		tables:   handle.New[*descTableData](),
		pipelns:  handle.New[*pipelineData](),
		fences:   handle.New[*fenceData](),
		cmdBufs:  handle.New[*cmdBufferData](),
	}
}

func (d *Device) Driver() device.Driver { return &driver{dev: d} }
func (d *Device) Features() device.Features { return d.features }
func (d *Device) Limits() device.Limits     { return d.limits }

// CheckRequirements validates d's Features against req, returning
// device.ErrUnsupportedHardware when a mandatory feature is missing,
// per spec.md §4.2's init contract. Open itself never fails this way
// (swgpu unconditionally reports every feature supported), but a
// caller that wants to exercise the failure path — or a future real
// backend reporting fewer features — calls this explicitly.
func (d *Device) CheckRequirements(req device.Requirements) error {
	if missing := d.features.Missing(req); len(missing) > 0 {
		return device.ErrUnsupportedHardware
	}
	return nil
}
