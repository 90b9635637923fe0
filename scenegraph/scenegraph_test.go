// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package scenegraph

import (
	"math"
	"testing"

	"github.com/jeffamstutz/gatling/linear"
)

func translation(x, y, z float32) linear.M4 {
	var m linear.M4
	m.I()
	m[3][0] = x
	m[3][1] = y
	m[3][2] = z
	return m
}

func TestInsertRemoveLen(t *testing.T) {
	var g Graph
	a := NewMeshInstance(0, 0)
	b := NewMeshInstance(1, 0)
	na := g.Insert(a, Nil)
	nb := g.Insert(b, Nil)
	if g.Len() != 2 {
		t.Fatalf("Len = %d, want 2", g.Len())
	}
	if g.Get(na) != a || g.Get(nb) != b {
		t.Fatalf("Get returned wrong instance")
	}
	removed := g.Remove(na)
	if len(removed) != 1 || removed[0] != a {
		t.Fatalf("Remove = %v, want [a]", removed)
	}
	if g.Len() != 1 {
		t.Fatalf("Len after Remove = %d, want 1", g.Len())
	}
}

func TestUpdatePropagatesToDescendants(t *testing.T) {
	var g Graph
	parent := NewMeshInstance(0, 0)
	child := NewMeshInstance(1, 0)
	np := g.Insert(parent, Nil)
	nc := g.Insert(child, np)

	parent.SetLocal(translation(1, 0, 0))
	child.SetLocal(translation(0, 2, 0))
	g.Update()

	pw := g.World(np)
	if pw[3][0] != 1 {
		t.Fatalf("parent world = %+v, want translation x=1", pw)
	}
	cw := g.World(nc)
	if cw[3][0] != 1 || cw[3][1] != 2 {
		t.Fatalf("child world = %+v, want translation (1, 2, 0)", cw)
	}
}

func TestUpdateSkipsUnchangedSubtree(t *testing.T) {
	var g Graph
	parent := NewMeshInstance(0, 0)
	child := NewMeshInstance(1, 0)
	np := g.Insert(parent, Nil)
	nc := g.Insert(child, np)
	parent.SetLocal(translation(1, 0, 0))
	g.Update()

	before := g.World(nc)[3]
	// Neither local transform changed: a second Update must leave the
	// cached world transforms exactly as they were.
	g.Update()
	after := g.World(nc)[3]
	if before != after {
		t.Fatalf("world changed on a no-op Update: %v -> %v", before, after)
	}
}

func TestRegistryVersionsBump(t *testing.T) {
	var r Registry
	if r.SceneVersion() != 0 || r.SprimVersion() != 0 {
		t.Fatalf("initial versions not zero")
	}
	inst := NewMeshInstance(0, 0)
	n := r.Insert(inst, Nil)
	if r.SceneVersion() != 1 || r.SprimVersion() != 1 {
		t.Fatalf("Insert did not bump scene/sprim version: %d %d", r.SceneVersion(), r.SprimVersion())
	}

	r.Update()
	v := r.SceneVersion()

	inst.SetLocal(translation(1, 1, 1))
	r.Update()
	if r.SceneVersion() != v+1 {
		t.Fatalf("moving an instance did not bump SceneVersion: %d -> %d", v, r.SceneVersion())
	}

	sv := r.SprimVersion()
	r.Remove(n)
	if r.SprimVersion() != sv+1 {
		t.Fatalf("Remove did not bump SprimVersion")
	}

	r.BumpSettings()
	r.BumpVisibility()
	if r.SettingsVersion() != 1 || r.VisibilityVersion() != 1 {
		t.Fatalf("settings/visibility versions did not bump")
	}
}

func TestWalkVisitsEveryInstance(t *testing.T) {
	var g Graph
	insts := []*MeshInstance{NewMeshInstance(0, 0), NewMeshInstance(1, 0), NewMeshInstance(2, 0)}
	for _, inst := range insts {
		g.Insert(inst, Nil)
	}
	g.Update()
	seen := map[int]bool{}
	g.Walk(func(inst *MeshInstance, world *linear.M4) {
		seen[inst.MeshRef] = true
		for i := 0; i < 4; i++ {
			if math.IsNaN(float64(world[i][0])) {
				t.Fatalf("world matrix contains NaN")
			}
		}
	})
	if len(seen) != 3 {
		t.Fatalf("Walk visited %d instances, want 3", len(seen))
	}
}
