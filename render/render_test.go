// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package render

import (
	"math"
	"testing"

	"github.com/jeffamstutz/gatling/bvh"
	"github.com/jeffamstutz/gatling/device"
	_ "github.com/jeffamstutz/gatling/device/swgpu"
	"github.com/jeffamstutz/gatling/linear"
	"github.com/jeffamstutz/gatling/materialcompiler"
	"github.com/jeffamstutz/gatling/scenegraph"
)

func openDevice(t *testing.T) device.Device {
	t.Helper()
	for _, drv := range device.Drivers() {
		if drv.Name() == "swgpu" {
			dev, err := drv.Open()
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			return dev
		}
	}
	t.Fatalf("swgpu driver not registered")
	return nil
}

func singleTriangleScene(t *testing.T) *Scene {
	t.Helper()
	verts := []bvh.Vertex{
		{Pos: linear.V3{-10, -10, 0}},
		{Pos: linear.V3{10, -10, 0}},
		{Pos: linear.V3{0, 10, 0}},
	}
	faces := []bvh.Face{{I0: 0, I1: 1, I2: 2, Material: 0}}
	bin, err := bvh.Build(faces, verts, bvh.DefaultConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	wide := bvh.Collapse(bin, bvh.DefaultCollapseConfig())
	comp, err := bvh.Compress(wide)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	return &Scene{
		Meshes:    []Mesh{{Nodes: comp, Vertices: verts}},
		Materials: []bvh.Material{{BaseColor: [3]float32{1, 0, 0}}},
	}
}

// addInstance inserts a single root-level MeshInstance referencing
// mesh 0 / material 0, identity transform — the scene walk that
// dispatch relies on requires at least one instance to trace anything.
func addInstance(reg *scenegraph.Registry) {
	inst := scenegraph.NewMeshInstance(0, 0)
	reg.Insert(inst, scenegraph.Nil)
}

// TestResolveCameraIdentity covers the identity-transform case: pos at
// the origin, looking down -Z with +Y up.
func TestResolveCameraIdentity(t *testing.T) {
	var world linear.M4
	world.I()
	cam := ResolveCamera(&world, 36, 50)
	if cam.Pos != (linear.V3{0, 0, 0}) {
		t.Fatalf("Pos = %v, want origin", cam.Pos)
	}
	if math.Abs(float64(cam.Forward[2])+1) > 1e-5 {
		t.Fatalf("Forward = %v, want (0,0,-1)", cam.Forward)
	}
	if math.Abs(float64(cam.Up[1])-1) > 1e-5 {
		t.Fatalf("Up = %v, want (0,1,0)", cam.Up)
	}
	want := 2 * math.Atan(36.0/(2*50))
	if math.Abs(float64(cam.VFov)-want) > 1e-5 {
		t.Fatalf("VFov = %v, want %v", cam.VFov, want)
	}
}

func TestResolveCameraTranslated(t *testing.T) {
	var world linear.M4
	world.I()
	world[3] = linear.V4{5, 6, 7, 1}
	cam := ResolveCamera(&world, 36, 50)
	if cam.Pos != (linear.V3{5, 6, 7}) {
		t.Fatalf("Pos = %v, want (5,6,7)", cam.Pos)
	}
	// Translation must not leak into direction vectors.
	if math.Abs(float64(cam.Forward[2])+1) > 1e-5 {
		t.Fatalf("Forward = %v, want (0,0,-1) (translation-invariant)", cam.Forward)
	}
}

func TestRenderProducesImageAndAppliesGamma(t *testing.T) {
	dev := openDevice(t)
	o := New(dev, &materialcompiler.Fake{})
	o.SetScene(singleTriangleScene(t))

	var reg scenegraph.Registry
	addInstance(&reg)
	var camWorld linear.M4
	camWorld.I()
	camWorld[3] = linear.V4{0, 0, 20, 1}

	set := materialcompiler.MaterialSet{Digest: 1, Count: 1}
	settings := Settings{Digest: 1, Gamma: true}

	pixels, err := o.Render(&reg, set, settings, &camWorld, 36, 50, 16, 16)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(pixels) != 16*16*4 {
		t.Fatalf("len(pixels) = %d, want %d", len(pixels), 16*16*4)
	}
	if o.State() != Idle {
		t.Fatalf("final state = %v, want Idle", o.State())
	}

	// The center pixel should hit the triangle and come back red
	// (gamma-corrected, so still 1.0 since BaseColor's red channel is
	// already 1).
	ci := (8*16 + 8) * 4
	if pixels[ci] < 0.9 {
		t.Fatalf("center pixel red = %v, want a hit (~1.0)", pixels[ci])
	}
	if pixels[ci+3] != 1 {
		t.Fatalf("alpha = %v, want 1", pixels[ci+3])
	}
}

// TestRenderMultiInstanceOcclusionAndMaterialSelection covers spec.md
// §4.8's "walk the scene, collecting meshes with their instance
// transforms": two instances of the same mesh, one closer to the
// camera than the other, must resolve to the nearer instance's own
// material rather than the first instance inserted or the hit face's
// own material field.
func TestRenderMultiInstanceOcclusionAndMaterialSelection(t *testing.T) {
	dev := openDevice(t)
	o := New(dev, &materialcompiler.Fake{})
	scene := singleTriangleScene(t)
	scene.Materials = []bvh.Material{
		{BaseColor: [3]float32{1, 0, 0}}, // material 0: red
		{BaseColor: [3]float32{0, 1, 0}}, // material 1: green
	}
	o.SetScene(scene)

	var reg scenegraph.Registry
	far := scenegraph.NewMeshInstance(0, 0)
	reg.Insert(far, scenegraph.Nil)

	near := scenegraph.NewMeshInstance(0, 1)
	var world linear.M4
	world.I()
	world[3] = linear.V4{0, 0, 15, 1}
	near.SetLocal(world)
	reg.Insert(near, scenegraph.Nil)

	var camWorld linear.M4
	camWorld.I()
	camWorld[3] = linear.V4{0, 0, 20, 1}

	set := materialcompiler.MaterialSet{Digest: 1, Count: 1}
	settings := Settings{Digest: 1}

	pixels, err := o.Render(&reg, set, settings, &camWorld, 36, 50, 16, 16)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	ci := (8*16 + 8) * 4
	if pixels[ci] > 0.1 || pixels[ci+1] < 0.9 {
		t.Fatalf("center pixel = (%v,%v,%v), want the nearer (green) instance to win",
			pixels[ci], pixels[ci+1], pixels[ci+2])
	}
}

func TestRenderNoSceneFails(t *testing.T) {
	dev := openDevice(t)
	o := New(dev, &materialcompiler.Fake{})
	var reg scenegraph.Registry
	var camWorld linear.M4
	camWorld.I()
	_, err := o.Render(&reg, materialcompiler.MaterialSet{}, Settings{}, &camWorld, 36, 50, 4, 4)
	if err != ErrNoGeometry {
		t.Fatalf("err = %v, want ErrNoGeometry", err)
	}
}

// TestCheckInvalidationFirstFrameAlwaysInvalidates covers spec.md §5's
// "invalidation must be observable to the very next dispatch" for a
// freshly created orchestrator: there is no "previous frame" to
// compare against, so the very first Render must still invalidate.
func TestCheckInvalidationFirstFrameAlwaysInvalidates(t *testing.T) {
	dev := openDevice(t)
	o := New(dev, &materialcompiler.Fake{})
	var reg scenegraph.Registry
	if !o.checkInvalidation(&reg) {
		t.Fatalf("first checkInvalidation call returned false, want true")
	}
	if o.checkInvalidation(&reg) {
		t.Fatalf("second checkInvalidation call on an unchanged registry returned true, want false")
	}
	reg.BumpVisibility()
	if !o.checkInvalidation(&reg) {
		t.Fatalf("checkInvalidation after BumpVisibility returned false, want true")
	}
}

// TestRebuildFailureReportsShaderStage checks that a compile failure
// surfaces from Render as a *RenderStepFailed whose Stage is
// RebuildingShader.
func TestRebuildFailureReportsShaderStage(t *testing.T) {
	dev := openDevice(t)
	fake := &materialcompiler.Fake{FailDigests: map[uint64]bool{9: true}}
	o := New(dev, fake)
	o.SetScene(singleTriangleScene(t))

	var reg scenegraph.Registry
	var camWorld linear.M4
	camWorld.I()

	_, err := o.Render(&reg, materialcompiler.MaterialSet{Digest: 9}, Settings{Digest: 9}, &camWorld, 36, 50, 4, 4)
	if err == nil {
		t.Fatalf("Render succeeded, want RenderStepFailed")
	}
	rsf, ok := err.(*RenderStepFailed)
	if !ok {
		t.Fatalf("err = %T, want *RenderStepFailed", err)
	}
	if rsf.Stage != RebuildingShader {
		t.Fatalf("Stage = %v, want RebuildingShader", rsf.Stage)
	}
}
