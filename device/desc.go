// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package device

// ShaderCode is a compiled SPIR-V shader binary.
type ShaderCode interface {
	Destroyer
}

// ShaderFunc names an entry point within a ShaderCode.
type ShaderFunc struct {
	Code ShaderCode
	Name string
}

// Stage is a mask of programmable stages. Only SCompute is ever
// set by this abstraction, but the mask type is kept (rather than
// collapsing Descriptor.Stages to a bool) so that Descriptor mirrors
// driver.Descriptor's shape, per DESIGN.md.
type Stage int

const (
	SCompute Stage = 1 << iota
)

// DescType is the type of a descriptor.
type DescType int

const (
	// DBuffer is a read/write storage buffer.
	DBuffer DescType = iota
	// DImage is a read/write storage image.
	DImage
	// DConstant is a constant (uniform) buffer.
	DConstant
	// DTexture is a sampled image.
	DTexture
	// DSampler is an image sampler.
	DSampler
)

// Descriptor describes one reflected binding within a shader, per
// spec.md §4.7 ("the cache derives descriptor-set layout bindings by
// reflection: binding slot, descriptor type, count, read/write
// access").
type Descriptor struct {
	Type   DescType
	Stages Stage
	// Nr is the binding number; it must be unique within a DescHeap.
	Nr int
	// Len is the number of elements the binding is arrayed over (1 for
	// a non-array binding).
	Len int
}

// DescHeap is a set of descriptors of the layout given to
// Device.NewDescHeap, for use in programmable stages.
type DescHeap interface {
	Destroyer

	// New creates storage for n copies ("heap copies") of every
	// descriptor in the heap's layout. Calling New invalidates any
	// copies from a previous call, unless n equals the current Count,
	// in which case it is a no-op; New(0) frees all storage.
	New(n int) error

	// SetBuffer updates the buffer ranges bound to descriptor nr,
	// starting at array index start, of heap copy cpy. nr must name a
	// DBuffer or DConstant descriptor.
	SetBuffer(cpy, nr, start int, buf []Buffer, off, size []int64)
	// SetImage updates the image views bound to descriptor nr. nr must
	// name a DImage or DTexture descriptor.
	SetImage(cpy, nr, start int, iv []ImageView)
	// SetSampler updates the samplers bound to descriptor nr. nr must
	// name a DSampler descriptor.
	SetSampler(cpy, nr, start int, splr []Sampler)

	// Count returns the number of heap copies created by New.
	Count() int
}

// DescTable binds a set of descriptor heaps to a pipeline.
type DescTable interface {
	Destroyer
}

// CompState defines a compute pipeline: a single compute shader plus
// the descriptor table describing the resources it accesses.
type CompState struct {
	Func ShaderFunc
	Desc DescTable
	// PushConstantSize is the size, in bytes, of the pipeline's single
	// push-constant range (spec.md §6: "pipeline layout... whose size
	// equals the reflected push-constant block").
	PushConstantSize int
}

// Pipeline is a compute pipeline created from a CompState.
type Pipeline interface {
	Destroyer
}
