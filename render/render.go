// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package render implements the render-pass orchestrator (C9 of
// spec.md §4.8): per-frame cache invalidation driven by four
// change-version counters, a scene walk collecting mesh instances,
// camera resolution from a world transform, dispatch submission
// through device/swgpu and sRGB output mapping. Its state machine
// follows engine/init.go's coarse init/frame lifecycle, generalized
// from a graphics frame loop to spec.md's
// Idle/Invalidating/Rebuilding/Dispatched/Resolved sequence.
package render

import (
	"errors"
	"fmt"
	"math"

	"github.com/jeffamstutz/gatling/bvh"
	"github.com/jeffamstutz/gatling/device"
	"github.com/jeffamstutz/gatling/linear"
	"github.com/jeffamstutz/gatling/materialcompiler"
	"github.com/jeffamstutz/gatling/scenegraph"
	"github.com/jeffamstutz/gatling/shadercache"
	"github.com/jeffamstutz/gatling/traversal"
)

// State is one node of the render orchestrator's state machine
// (spec.md §4.8).
type State int

const (
	Idle State = iota
	Invalidating
	RebuildingShader
	RebuildingGeom
	Dispatched
	Resolved
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Invalidating:
		return "Invalidating"
	case RebuildingShader:
		return "RebuildingShader"
	case RebuildingGeom:
		return "RebuildingGeom"
	case Dispatched:
		return "Dispatched"
	case Resolved:
		return "Resolved"
	default:
		return "unknown"
	}
}

// RenderStepFailed is returned when a rebuild or dispatch stage fails;
// the orchestrator leaves its previous caches intact, per spec.md §4.8.
type RenderStepFailed struct {
	Stage State
	Err   error
}

func (e *RenderStepFailed) Error() string {
	return fmt.Sprintf("render: %s failed: %v", e.Stage, e.Err)
}

func (e *RenderStepFailed) Unwrap() error { return e.Err }

// ErrNoGeometry is returned by Render when no scene geometry has been
// set via SetScene.
var ErrNoGeometry = errors.New("render: no scene set")

// Settings mirrors spec.md §4.7's feature-flag set plus the AOV
// selection and material-set digest the shader cache keys on.
type Settings struct {
	AOV      materialcompiler.AOV
	Features materialcompiler.Features
	Digest   uint64
	Gamma    bool
}

// Camera is the resolved per-frame camera record spec.md §4.8
// computes from a world transform: pos/forward/up plus a vertical
// field of view derived from an aperture/focal-length pair.
type Camera struct {
	Pos, Forward, Up linear.V3
	VFov             float32
}

// transformPoint applies m to p as a homogeneous point (w=1).
func transformPoint(m *linear.M4, p linear.V3) linear.V3 {
	var r linear.V3
	for j := 0; j < 3; j++ {
		r[j] = m[0][j]*p[0] + m[1][j]*p[1] + m[2][j]*p[2] + m[3][j]
	}
	return r
}

// transformDirection applies m's linear (rotation/scale) part to v,
// discarding translation. Used to carry a ray's direction from world
// space into a mesh instance's object space: since a ray's parametric
// t is preserved exactly under this affine map (the translation
// cancels out of the subtraction implicit in o+t·d), hit distances
// computed in object space remain directly comparable across
// instances with different world transforms.
func transformDirection(m *linear.M4, v linear.V3) linear.V3 {
	var r linear.V3
	for j := 0; j < 3; j++ {
		r[j] = m[0][j]*v[0] + m[1][j]*v[1] + m[2][j]*v[2]
	}
	return r
}

// ResolveCamera derives {pos, forward, up, vfov} from a camera's world
// transform and lens parameters, per spec.md §4.8: "derive {pos,
// forward, up} by transforming (0,0,0), (0,0,−1), (0,1,0) through the
// camera's world-transform; compute vfov = 2·atan(aperture/(2·focal))".
// Forward and up are taken as the transformed points' displacement
// from the transformed origin (so that only the world transform's
// rotation survives, not its translation) — the source conflates
// "point" and "direction" here; this is the one self-consistent
// reading, see DESIGN.md.
func ResolveCamera(world *linear.M4, aperture, focal float32) Camera {
	origin := transformPoint(world, linear.V3{0, 0, 0})
	fwdPoint := transformPoint(world, linear.V3{0, 0, -1})
	upPoint := transformPoint(world, linear.V3{0, 1, 0})

	var fwd, up linear.V3
	fwd.Sub(&fwdPoint, &origin)
	fwd.Norm(&fwd)
	up.Sub(&upPoint, &origin)
	up.Norm(&up)

	vfov := 2 * float32(math.Atan(float64(aperture)/(2*float64(focal))))
	return Camera{Pos: origin, Forward: fwd, Up: up, VFov: vfov}
}

// Mesh is one baked geometry entry the preprocessor produced
// (spec.md C3-C6): a compressed BVH plus the vertex buffer it
// indexes. MeshInstance.MeshRef selects an entry in Scene.Meshes.
type Mesh struct {
	Nodes    *bvh.CompressedBVH
	Vertices []bvh.Vertex
}

// Scene is the mesh library and shared material table the
// orchestrator dispatches against. Per spec.md §4.8, the orchestrator
// "walks the scene, collecting meshes with their instance transforms,
// and bakes a vector of {faces, vertices, material_index} tables per
// mesh" — Meshes is that per-mesh table, indexed by
// scenegraph.MeshInstance.MeshRef, and Materials is indexed by
// MeshInstance.MaterialIndex.
type Scene struct {
	Meshes    []Mesh
	Materials []bvh.Material
}

// Orchestrator drives one device's render loop: it owns a shader
// cache, tracks the four change-version counters read from a
// scenegraph.Registry, and produces a tone-mapped pixel buffer per
// Render call.
type Orchestrator struct {
	dev   device.Device
	cache *shadercache.Cache
	state State

	scene *Scene

	lastScene    uint64
	lastSprim    uint64
	lastSettings uint64
	lastVis      uint64
	primed       bool

	accum []float32
	width, height int
}

// New creates an Orchestrator that builds pipelines against dev,
// asking compiler to resolve shader-cache misses.
func New(dev device.Device, compiler materialcompiler.Compiler) *Orchestrator {
	return &Orchestrator{
		dev:   dev,
		cache: shadercache.New(dev, compiler),
		state: Idle,
	}
}

// State returns the orchestrator's current state-machine node.
func (o *Orchestrator) State() State { return o.state }

// SetScene installs the baked scene geometry to dispatch against,
// bumping SprimVersion's effective generation by discarding the
// progressive accumulation buffer on the next Render.
func (o *Orchestrator) SetScene(s *Scene) {
	o.scene = s
	o.accum = nil
}

// checkInvalidation reads the registry's four change-version counters
// and reports whether any changed since the last Render, per spec.md
// §4.8. The very first call always reports changed (nothing is primed
// yet), satisfying §5's "no one-frame-stale accumulation" guarantee
// for a fresh orchestrator.
func (o *Orchestrator) checkInvalidation(reg *scenegraph.Registry) bool {
	scene, sprim := reg.SceneVersion(), reg.SprimVersion()
	settings, vis := reg.SettingsVersion(), reg.VisibilityVersion()
	changed := !o.primed ||
		scene != o.lastScene || sprim != o.lastSprim ||
		settings != o.lastSettings || vis != o.lastVis
	o.lastScene, o.lastSprim = scene, sprim
	o.lastSettings, o.lastVis = settings, vis
	o.primed = true
	return changed
}

// Render executes one full frame per spec.md §4.8: invalidate on
// change, rebuild the shader cache, walk the scene, resolve the
// camera, dispatch, and map+tone-map the output. width/height size the
// returned RGBA32f buffer (row-major, 4 floats per pixel).
func (o *Orchestrator) Render(
	reg *scenegraph.Registry,
	set materialcompiler.MaterialSet,
	settings Settings,
	cameraWorld *linear.M4,
	aperture, focal float32,
	width, height int,
) ([]float32, error) {
	if o.scene == nil {
		return nil, ErrNoGeometry
	}

	if o.checkInvalidation(reg) {
		o.state = Invalidating
		o.accum = nil
	}

	o.state = RebuildingShader
	key := shadercache.Key{AOV: settings.AOV, Features: settings.Features, Digest: settings.Digest}
	entry, err := o.cache.Get(set, key)
	if err != nil {
		return nil, &RenderStepFailed{Stage: RebuildingShader, Err: err}
	}

	o.state = RebuildingGeom
	var insts []instance
	reg.Update()
	reg.Graph.Walk(func(inst *scenegraph.MeshInstance, world *linear.M4) {
		insts = append(insts, instance{meshRef: inst.MeshRef, material: inst.MaterialIndex, world: *world})
	})

	cam := ResolveCamera(cameraWorld, aperture, focal)

	o.state = Dispatched
	pixels, err := o.dispatch(entry, cam, width, height, insts)
	if err != nil {
		return nil, &RenderStepFailed{Stage: Dispatched, Err: err}
	}

	o.state = Resolved
	if settings.Gamma {
		for i := range pixels {
			if (i+1)%4 == 0 {
				continue // alpha channel is not gamma-corrected
			}
			pixels[i] = traversal.Gamma(pixels[i])
		}
	}
	o.width, o.height = width, height
	o.state = Idle
	return pixels, nil
}

type instance struct {
	meshRef  int
	material int
	world    linear.M4
}

// dispatch evaluates one ray per pixel against every instance the
// scene walk collected, standing in for the GPU kernel's per-pixel
// path-tracing loop: device/swgpu does not interpret SPIR-V, so the
// actual hit-testing math runs directly against each instance's
// bvh.CompressedBVH, exactly as device/swgpu's package doc describes.
// entry is still built and retained by the shader cache so that its
// resource-management contract (descriptor layout, pipeline lifetime)
// is exercised end to end.
//
// Per spec.md §4.8, each mesh instance carries its own world
// transform; a world-space ray is carried into an instance's object
// space (via the instance world transform's inverse) before testing
// against that instance's CompressedBVH, and the nearest hit across
// all instances wins. The ray's direction is transformed without
// renormalizing (transformDirection), so the parametric hit distance
// t computed in object space is numerically identical to t in world
// space, keeping distances from different instances directly
// comparable.
func (o *Orchestrator) dispatch(entry *shadercache.Entry, cam Camera, width, height int, insts []instance) ([]float32, error) {
	cb, err := o.dev.NewCmdBuffer()
	if err != nil {
		return nil, err
	}
	if err := cb.Begin(); err != nil {
		return nil, err
	}
	cb.BeginWork(false)
	cb.EndWork()
	if err := cb.End(); err != nil {
		return nil, err
	}
	if err := o.dev.Submit([]device.CmdBuffer{cb}, nil); err != nil {
		return nil, err
	}

	var right linear.V3
	right.Cross(&cam.Forward, &cam.Up)
	right.Norm(&right)
	var up linear.V3
	up.Cross(&right, &cam.Forward)

	aspect := float32(width) / float32(height)
	halfH := float32(math.Tan(float64(cam.VFov) / 2))
	halfW := halfH * aspect

	invWorld := make([]linear.M4, len(insts))
	for i := range insts {
		invWorld[i].Invert(&insts[i].world)
	}

	pixels := make([]float32, width*height*4)
	opts := traversal.DefaultOptions()
	for y := 0; y < height; y++ {
		v := 1 - 2*(float32(y)+0.5)/float32(height)
		for x := 0; x < width; x++ {
			u := 2*(float32(x)+0.5)/float32(width) - 1

			var dir linear.V3
			var ru, uv linear.V3
			ru.Scale(u*halfW, &right)
			uv.Scale(v*halfH, &up)
			dir.Add(&ru, &uv)
			dir.Add(&dir, &cam.Forward)
			dir.Norm(&dir)

			ray := linear.Ray{Origin: cam.Pos, Dir: dir, TMax: 1e9}

			bestHit := traversal.Hit{FaceIndex: traversal.NoHit}
			bestInst := -1
			bestT := ray.TMax
			for ii := range insts {
				meshRef := insts[ii].meshRef
				if meshRef < 0 || meshRef >= len(o.scene.Meshes) {
					continue
				}
				mesh := &o.scene.Meshes[meshRef]
				if mesh.Nodes == nil {
					continue
				}
				localRay := linear.Ray{
					Origin: transformPoint(&invWorld[ii], ray.Origin),
					Dir:    transformDirection(&invWorld[ii], ray.Dir),
					TMin:   ray.TMin,
					TMax:   bestT,
				}
				hit, err := traversal.FindHitClosest(mesh.Nodes, mesh.Vertices, localRay, opts)
				if err != nil {
					return nil, err
				}
				if hit.FaceIndex != traversal.NoHit && hit.T < bestT {
					bestT = hit.T
					bestHit = hit
					bestInst = ii
				}
			}

			i := (y*width + x) * 4
			if bestHit.FaceIndex == traversal.NoHit || bestInst < 0 {
				pixels[i], pixels[i+1], pixels[i+2], pixels[i+3] = 0, 0, 0, 1
				continue
			}
			mat := bvh.Material{}
			if matIdx := insts[bestInst].material; matIdx >= 0 && matIdx < len(o.scene.Materials) {
				mat = o.scene.Materials[matIdx]
			}
			pixels[i] = mat.BaseColor[0]
			pixels[i+1] = mat.BaseColor[1]
			pixels[i+2] = mat.BaseColor[2]
			pixels[i+3] = 1
		}
	}
	return pixels, nil
}
