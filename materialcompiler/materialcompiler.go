// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package materialcompiler declares the MaterialCompiler collaborator
// consumed (not specified) by shadercache per spec.md §6: a pure
// function from a material set, AOV and feature-flag set to a
// compiled SPIR-V blob plus its reflected resource layout. The real
// implementation lives outside this exercise's scope; this package
// exists so shadercache has something concrete to depend on, the way
// engine/material.go depends on ctxt.GPU() rather than embedding a
// driver.
package materialcompiler

import "errors"

// ErrCompileFailed is returned when compilation fails for any reason;
// per spec.md §7 ("MaterialCompileFailed"), the caller treats this as
// a cache miss, retains its previous cache, and surfaces a warning.
var ErrCompileFailed = errors.New("materialcompiler: compile failed")

// Features mirrors spec.md §4.7's feature-flag set, each bit mirrored
// into the compiled shader as a `#define`.
type Features struct {
	DepthOfField             bool
	FilterImportanceSampling bool
	NextEventEstimation      bool
	ProgressiveAccumulation  bool
	DomeLightCameraVisible   bool
}

// AOV identifies the arbitrary output variable the compiled kernel
// writes (spec.md's AOV_ID #define).
type AOV int

// Binding describes one reflected SPIR-V resource binding, per
// spec.md §4.7 ("the cache derives descriptor-set layout bindings by
// reflection").
type Binding struct {
	Nr       int
	Type     BindingType
	Count    int
	ReadOnly bool
}

// BindingType enumerates the kinds of resource a reflected binding can
// describe.
type BindingType int

const (
	StorageBuffer BindingType = iota
	StorageImage
	SampledImage
	Sampler
	UniformBuffer
)

// Result is what a successful Compile call returns: a SPIR-V blob
// plus its reflected layout (bindings and push-constant size) used to
// build descriptor-set layouts, pools and pipelines.
type Result struct {
	SPIRV           []byte
	Bindings        []Binding
	PushConstantLen int
}

// MaterialSet is the input material list a compiled shader is
// specialized against; Digest identifies it for cache-keying purposes
// (spec.md's "material_set_digest").
type MaterialSet struct {
	Digest uint64
	Count  int
}

// Compiler compiles a material set, AOV and feature selection into a
// SPIR-V blob. Implementations must be pure functions of their inputs:
// the orchestrator keys its shader cache on a hash of (aov, features,
// set.Digest) and never re-invokes Compile for a key already resolved
// successfully.
type Compiler interface {
	Compile(set MaterialSet, aov AOV, features Features) (Result, error)
}
