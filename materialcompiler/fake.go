// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package materialcompiler

import "fmt"

// Fake is a deterministic Compiler used by shadercache's tests in
// place of the real collaborator: it never touches an actual SPIR-V
// toolchain, returning a small fixed binding layout and a blob whose
// bytes encode the call's inputs so tests can assert on cache-key
// behaviour without a real compiler.
type Fake struct {
	// FailDigests lists material-set digests that Compile rejects
	// with ErrCompileFailed, for exercising spec.md §7's
	// "MaterialCompileFailed... fallback to a diffuse material" path.
	FailDigests map[uint64]bool
	// Calls counts how many times Compile actually ran, so tests can
	// assert a shader cache hit avoided a redundant call.
	Calls int
}

// Compile implements Compiler.
func (f *Fake) Compile(set MaterialSet, aov AOV, features Features) (Result, error) {
	f.Calls++
	if f.FailDigests[set.Digest] {
		return Result{}, ErrCompileFailed
	}
	blob := []byte(fmt.Sprintf("spirv:aov=%d;digest=%x;dof=%v;fis=%v;nee=%v;accum=%v;dome=%v",
		aov, set.Digest, features.DepthOfField, features.FilterImportanceSampling,
		features.NextEventEstimation, features.ProgressiveAccumulation, features.DomeLightCameraVisible))
	return Result{
		SPIRV: blob,
		Bindings: []Binding{
			{Nr: 0, Type: StorageImage, Count: 1},
			{Nr: 1, Type: StorageBuffer, Count: 1},
			{Nr: 2, Type: StorageBuffer, Count: 1, ReadOnly: true},
			{Nr: 3, Type: StorageBuffer, Count: 1, ReadOnly: true},
			{Nr: 4, Type: StorageBuffer, Count: 1, ReadOnly: true},
			{Nr: 5, Type: StorageBuffer, Count: 1, ReadOnly: true},
			{Nr: 6, Type: StorageBuffer, Count: 1},
		},
		PushConstantLen: 128,
	}, nil
}
