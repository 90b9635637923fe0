// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package scenegraph

import "github.com/jeffamstutz/gatling/linear"

// MeshInstance is a single mesh placed in the scene by a local
// transform, per spec.md §4.8's per-instance "{faces, vertices,
// material_index}" walk input.
type MeshInstance struct {
	// MeshRef identifies the mesh geometry this instance draws (an
	// index into the render orchestrator's mesh table).
	MeshRef int
	// MaterialIndex selects the material applied to the whole
	// instance (spec.md's material_set indexing).
	MaterialIndex int

	local   linear.M4
	changed bool
}

// NewMeshInstance creates a MeshInstance at the identity transform.
func NewMeshInstance(meshRef, materialIndex int) *MeshInstance {
	m := &MeshInstance{MeshRef: meshRef, MaterialIndex: materialIndex}
	m.local.I()
	m.changed = true
	return m
}

// Local returns the instance's local transform.
func (m *MeshInstance) Local() *linear.M4 { return &m.local }

// Changed reports whether the instance is new or SetLocal was called
// since the last Registry.Update cleared the flag.
func (m *MeshInstance) Changed() bool { return m.changed }

// SetLocal updates the instance's local transform, marking it (and
// hence its whole subtree) dirty for the next Graph.Update.
func (m *MeshInstance) SetLocal(l linear.M4) {
	m.local = l
	m.changed = true
}

// clearChanged is called by Registry.Update after Graph.Update has
// recomputed the world transforms.
func (m *MeshInstance) clearChanged() { m.changed = false }

// Registry owns a Graph of MeshInstance nodes plus the four
// change-version counters the render orchestrator (spec.md §4.8)
// reads once per frame to decide which caches need rebuilding:
// scene state (geometry/instances), the sprim index (BVH rebuild),
// render settings (AOV/feature flags) and visibility (camera/culling).
// Insert, Remove and Update bump the scene and sprim counters
// themselves; the settings and visibility counters are bumped by the
// caller through BumpSettings and BumpVisibility. The counters are
// opaque monotonic values, never reset.
type Registry struct {
	Graph Graph

	sceneVersion    uint64
	sprimVersion    uint64
	settingsVersion uint64
	visVersion      uint64
}

// Insert adds inst to the scene graph and bumps SceneVersion and
// SprimVersion, since a newly inserted mesh instance changes both the
// instance set and the acceleration structure it participates in.
func (r *Registry) Insert(inst *MeshInstance, prev Node) Node {
	n := r.Graph.Insert(inst, prev)
	r.sceneVersion++
	r.sprimVersion++
	return n
}

// Remove removes n (and its descendants) from the scene graph,
// bumping SceneVersion and SprimVersion.
func (r *Registry) Remove(n Node) []*MeshInstance {
	insts := r.Graph.Remove(n)
	if len(insts) > 0 {
		r.sceneVersion++
		r.sprimVersion++
	}
	return insts
}

// Update recomputes world transforms for every changed instance,
// bumping SceneVersion when any instance actually moved, then clears
// each updated instance's Changed flag.
func (r *Registry) Update() {
	any := r.Graph.changed
	r.Graph.Walk(func(inst *MeshInstance, _ *linear.M4) {
		if inst.Changed() {
			any = true
		}
	})
	r.Graph.Update()
	r.Graph.Walk(func(inst *MeshInstance, _ *linear.M4) {
		inst.clearChanged()
	})
	if any {
		r.sceneVersion++
	}
}

// BumpSettings records that render settings (AOV selection, feature
// flags) changed; the render orchestrator treats a change of any
// counter as an invalidation on its next Render.
func (r *Registry) BumpSettings() { r.settingsVersion++ }

// BumpVisibility records that visibility state (camera, culling
// masks) changed.
func (r *Registry) BumpVisibility() { r.visVersion++ }

// SceneVersion returns the current scene-state version.
func (r *Registry) SceneVersion() uint64 { return r.sceneVersion }

// SprimVersion returns the current acceleration-structure version.
func (r *Registry) SprimVersion() uint64 { return r.sprimVersion }

// SettingsVersion returns the current render-settings version.
func (r *Registry) SettingsVersion() uint64 { return r.settingsVersion }

// VisibilityVersion returns the current visibility version.
func (r *Registry) VisibilityVersion() uint64 { return r.visVersion }
