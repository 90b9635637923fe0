// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package shadercache implements the shader/pipeline cache (C8 of
// spec.md §4.7): on a cache miss it asks a materialcompiler.Compiler
// for a SPIR-V blob, derives a device.DescHeap/DescTable/Pipeline from
// the compiler's reflected bindings, and keys the whole thing on
// (AOV, feature flags, material-set digest). It follows
// engine/internal/shader's fixed-layout DescHeap construction
// (engine/internal/shader/desc.go), generalized from that package's
// compile-time-fixed material layout to one built at runtime from
// reflection data, since spec.md's kernel permutations are not known
// until the MaterialCompiler responds.
package shadercache

import (
	"errors"
	"log"

	"github.com/jeffamstutz/gatling/device"
	"github.com/jeffamstutz/gatling/materialcompiler"
)

// ErrCompileFailed is returned by Get when the underlying compiler
// fails and there is no previously cached entry for key to fall back
// to.
var ErrCompileFailed = errors.New("shadercache: material compile failed")

// Key identifies one compiled pipeline permutation, mirroring
// spec.md §4.7's "(aov_id, feature_flags, material_set_digest)".
type Key struct {
	AOV      materialcompiler.AOV
	Features materialcompiler.Features
	Digest   uint64
}

// Entry is one cached, fully built pipeline.
type Entry struct {
	Code     device.ShaderCode
	Heap     device.DescHeap
	Table    device.DescTable
	Pipeline device.Pipeline
	Bindings []materialcompiler.Binding
}

func (e *Entry) destroy() {
	if e == nil {
		return
	}
	if e.Pipeline != nil {
		e.Pipeline.Destroy()
	}
	if e.Table != nil {
		e.Table.Destroy()
	}
	if e.Heap != nil {
		e.Heap.Destroy()
	}
	if e.Code != nil {
		e.Code.Destroy()
	}
}

// Cache holds at most one live Entry per Key, built against a single
// device.Device. It is not safe for concurrent use, per spec.md §5's
// single-threaded-cooperative-per-device scheduling model.
type Cache struct {
	dev      device.Device
	compiler materialcompiler.Compiler
	entries  map[Key]*Entry
}

// New creates a Cache backed by dev, asking compiler to resolve
// misses.
func New(dev device.Device, compiler materialcompiler.Compiler) *Cache {
	return &Cache{dev: dev, compiler: compiler, entries: map[Key]*Entry{}}
}

// Get returns the cached pipeline for key, compiling and building it
// on a miss; a key that is already cached is returned without calling
// the compiler. On compile or build failure Get logs the failure and
// returns nil and ErrCompileFailed, storing nothing for key and leaving
// every other cached entry unchanged, per spec.md §7's "shader-cache miss for one material... previous cache
// retained" recovery policy; callers should treat the returned error
// as a per-frame warning, not a fatal condition, and fall back to a
// diffuse material for any material that can't resolve.
func (c *Cache) Get(set materialcompiler.MaterialSet, key Key) (*Entry, error) {
	if e, ok := c.entries[key]; ok {
		return e, nil
	}
	res, err := c.compiler.Compile(set, key.AOV, key.Features)
	if err != nil {
		log.Printf("shadercache: compile failed for key %+v: %v", key, err)
		return nil, ErrCompileFailed
	}
	e, err := c.build(&res)
	if err != nil {
		log.Printf("shadercache: pipeline build failed for key %+v: %v", key, err)
		return nil, ErrCompileFailed
	}
	c.entries[key] = e
	return e, nil
}

// Invalidate drops every cached entry, destroying their device
// resources. Called when a rebuild trigger (spec.md §4.7: AOV change,
// feature-flag change, material-set digest change) makes every
// existing permutation stale.
func (c *Cache) Invalidate() {
	for k, e := range c.entries {
		e.destroy()
		delete(c.entries, k)
	}
}

// descType converts a materialcompiler.BindingType to its
// device.DescType equivalent.
func descType(t materialcompiler.BindingType) device.DescType {
	switch t {
	case materialcompiler.StorageImage:
		return device.DImage
	case materialcompiler.SampledImage:
		return device.DTexture
	case materialcompiler.Sampler:
		return device.DSampler
	case materialcompiler.UniformBuffer:
		return device.DConstant
	default:
		return device.DBuffer
	}
}

// build constructs the descriptor-set layout, descriptor pool (sized
// to the reflected counts), descriptor table, pipeline layout and
// compute pipeline from a compiled result's reflection data, per
// spec.md §4.7.
func (c *Cache) build(res *materialcompiler.Result) (*Entry, error) {
	code, err := c.dev.NewShaderCode(res.SPIRV)
	if err != nil {
		return nil, err
	}
	descs := make([]device.Descriptor, len(res.Bindings))
	for i, b := range res.Bindings {
		descs[i] = device.Descriptor{
			Type:   descType(b.Type),
			Stages: device.SCompute,
			Nr:     b.Nr,
			Len:    b.Count,
		}
	}
	heap, err := c.dev.NewDescHeap(descs)
	if err != nil {
		code.Destroy()
		return nil, err
	}
	if err := heap.New(1); err != nil {
		heap.Destroy()
		code.Destroy()
		return nil, err
	}
	table, err := c.dev.NewDescTable([]device.DescHeap{heap})
	if err != nil {
		heap.Destroy()
		code.Destroy()
		return nil, err
	}
	pipe, err := c.dev.NewPipeline(&device.CompState{
		Func:             device.ShaderFunc{Code: code, Name: "main"},
		Desc:             table,
		PushConstantSize: res.PushConstantLen,
	})
	if err != nil {
		table.Destroy()
		heap.Destroy()
		code.Destroy()
		return nil, err
	}
	return &Entry{Code: code, Heap: heap, Table: table, Pipeline: pipe, Bindings: res.Bindings}, nil
}
