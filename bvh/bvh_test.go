// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package bvh

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/jeffamstutz/gatling/linear"
)

func triangle(x, y, z float32) (Vertex, Vertex, Vertex) {
	return Vertex{Pos: linear.V3{x, y, z}},
		Vertex{Pos: linear.V3{x + 1, y, z}},
		Vertex{Pos: linear.V3{x, y + 1, z}}
}

func randomScene(n int, seed int64) ([]Face, []Vertex) {
	r := rand.New(rand.NewSource(seed))
	var verts []Vertex
	var faces []Face
	for i := 0; i < n; i++ {
		x := r.Float32()*10 - 5
		y := r.Float32()*10 - 5
		z := r.Float32()*10 - 5
		v0, v1, v2 := triangle(x, y, z)
		base := uint32(len(verts))
		verts = append(verts, v0, v1, v2)
		faces = append(faces, Face{I0: base, I1: base + 1, I2: base + 2, Material: 0})
	}
	return faces, verts
}

func TestBuildEmpty(t *testing.T) {
	bvh, err := Build(nil, nil, DefaultConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(bvh.Nodes) != 0 || len(bvh.Faces) != 0 {
		t.Fatalf("Build(empty): got %d nodes, %d faces", len(bvh.Nodes), len(bvh.Faces))
	}
}

func TestBuildDropsDegenerateFaces(t *testing.T) {
	v0, v1, v2 := triangle(0, 0, 0)
	verts := []Vertex{v0, v1, v2}
	faces := []Face{
		{I0: 0, I1: 1, I2: 2},
		{I0: 0, I1: 0, I2: 1}, // coincident indices
	}
	bvh, err := Build(faces, verts, DefaultConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(bvh.Faces) != 1 {
		t.Fatalf("Build: got %d surviving faces, want 1", len(bvh.Faces))
	}
}

func TestBuildSingleLeaf(t *testing.T) {
	faces, verts := randomScene(4, 1)
	cfg := DefaultConfig()
	cfg.LeafMaxFaceCount = 8
	bvh, err := Build(faces, verts, cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(bvh.Nodes) != 1 || !bvh.Nodes[0].IsLeaf() {
		t.Fatalf("Build: expected a single leaf root for %d faces under LeafMaxFaceCount=8", len(faces))
	}
	if int(bvh.Nodes[0].Count) != len(faces) {
		t.Fatalf("Build: root leaf holds %d faces, want %d", bvh.Nodes[0].Count, len(faces))
	}
}

// TestBuildAllFacesPresent is invariant 1 from spec.md §8: every slot
// of the reorganised face buffer lies in exactly one leaf's range (an
// input face may fill more than one slot under a spatial split).
func TestBuildAllFacesPresent(t *testing.T) {
	faces, verts := randomScene(500, 2)
	bvh, err := Build(faces, verts, DefaultConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	seen := make(map[int]int)
	for i := range bvh.Nodes {
		n := &bvh.Nodes[i]
		if !n.IsLeaf() {
			continue
		}
		for f := n.FaceStart; f < n.FaceStart+n.Count; f++ {
			seen[int(f)]++
		}
	}
	if len(seen) != len(bvh.Faces) {
		t.Fatalf("got %d distinct referenced faces, want %d", len(seen), len(bvh.Faces))
	}
	for i := 0; i < len(bvh.Faces); i++ {
		if seen[i] != 1 {
			t.Fatalf("face %d referenced %d times, want exactly 1", i, seen[i])
		}
	}
}

// TestBuildBoundsContainChildren is invariant 2: every node's AABB
// contains the union of its children's (or leaf faces') bounds.
func TestBuildBoundsContainChildren(t *testing.T) {
	faces, verts := randomScene(300, 3)
	bvh, err := Build(faces, verts, DefaultConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for i := range bvh.Nodes {
		n := &bvh.Nodes[i]
		if n.IsLeaf() {
			for f := n.FaceStart; f < n.FaceStart+n.Count; f++ {
				face := &bvh.Faces[f]
				box := faceBounds(face, verts)
				if !contains(&n.Bounds, &box) {
					t.Fatalf("leaf %d bounds do not contain face %d", i, f)
				}
			}
			continue
		}
		l, r := &bvh.Nodes[n.Left], &bvh.Nodes[n.Left+1]
		if !contains(&n.Bounds, &l.Bounds) || !contains(&n.Bounds, &r.Bounds) {
			t.Fatalf("node %d bounds do not contain both children", i)
		}
	}
}

func contains(outer, inner *linear.AABB) bool {
	for a := 0; a < 3; a++ {
		if inner.Min[a] < outer.Min[a]-1e-4 || inner.Max[a] > outer.Max[a]+1e-4 {
			return false
		}
	}
	return true
}

func TestBuildOutOfReservation(t *testing.T) {
	faces, verts := randomScene(200, 4)
	cfg := DefaultConfig()
	cfg.SpatialReserveFactor = 1.0 // no headroom for duplicates
	cfg.SpatialSplitAlpha = -1     // no overlap threshold; only the empty budget blocks spatial splits
	_, err := Build(faces, verts, cfg)
	// With zero headroom, the builder must either avoid duplicating
	// (falling back to centroid assignment) or report ErrOutOfReservation;
	// it must never silently overflow, so any returned error must be this one.
	if err != nil && !errors.Is(err, ErrOutOfReservation) {
		t.Fatalf("Build: got %v, want nil or ErrOutOfReservation", err)
	}
}

func buildChain(t *testing.T, n int, seed int64) (*BinaryBVH, *WideBVH, *CompressedBVH, []Vertex) {
	t.Helper()
	faces, verts := randomScene(n, seed)
	bin, err := Build(faces, verts, DefaultConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	wide := Collapse(bin, DefaultCollapseConfig())
	comp, err := Compress(wide)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	return bin, wide, comp, verts
}

func TestCollapseWidensFanout(t *testing.T) {
	bin, wide, _, _ := buildChain(t, 400, 5)
	if len(bin.Nodes) == 0 || len(wide.Nodes) == 0 {
		t.Fatalf("expected non-empty trees")
	}
	if len(wide.Nodes) >= len(bin.Nodes) {
		t.Fatalf("wide BVH has %d nodes, binary has %d; expected collapsing to reduce node count", len(wide.Nodes), len(bin.Nodes))
	}
}

func TestCollapseRespectsMaxLeafFaceCount(t *testing.T) {
	_, wide, _, _ := buildChain(t, 400, 6)
	cfg := DefaultCollapseConfig()
	for i := range wide.Nodes {
		for _, c := range wide.Nodes[i].Children {
			if c.Leaf && c.Count > int32(cfg.MaxLeafFaceCount) {
				t.Fatalf("leaf child has %d faces, want <= %d", c.Count, cfg.MaxLeafFaceCount)
			}
		}
	}
}

// TestCompressOutwardRounding is invariant 3 from spec.md §8: every
// decoded child AABB contains the corresponding wide-BVH child AABB.
// Compress places a node's interior children at ChildBase in rank
// order, so the walk pairs each wide node with its compressed node
// that way rather than by equal index.
func TestCompressOutwardRounding(t *testing.T) {
	_, wide, comp, _ := buildChain(t, 500, 7)
	var walk func(wi, ci int)
	walk = func(wi, ci int) {
		wn := &wide.Nodes[wi]
		cn := &comp.Nodes[ci]
		var interior []int
		var ranks [8]int
		for i, c := range wn.Children {
			ranks[i] = cn.Rank(i)
			if c.IsEmpty() {
				continue
			}
			decoded := cn.ChildBounds(i)
			if !contains(&decoded, &c.Bounds) {
				t.Fatalf("node %d slot %d: decoded bounds do not contain original child bounds", wi, i)
			}
			if !c.Leaf {
				interior = append(interior, i)
			}
		}
		sortByRank(interior, ranks)
		for k, i := range interior {
			walk(int(wn.Children[i].NodeIndex), int(cn.ChildBase)+k)
		}
	}
	walk(0, 0)
}

func TestCompressLeafFaceRangesRecoverable(t *testing.T) {
	_, _, comp, _ := buildChain(t, 300, 8)
	total := 0
	for ni := range comp.Nodes {
		n := &comp.Nodes[ni]
		order := make([]int, 8)
		for i := range order {
			order[i] = i
		}
		for i := 1; i < 8; i++ {
			for j := i; j > 0 && n.Rank(order[j-1]) > n.Rank(order[j]); j-- {
				order[j-1], order[j] = order[j], order[j-1]
			}
		}
		offset := 0
		for _, i := range order {
			if n.IsInterior(i) {
				continue
			}
			count := n.LeafCount(i)
			if count == 0 {
				continue
			}
			start := int(n.FaceBase) + offset
			if start+count > len(comp.Faces) {
				t.Fatalf("node %d slot %d: face range [%d,%d) out of bounds (len %d)", ni, i, start, start+count, len(comp.Faces))
			}
			offset += count
			total += count
		}
	}
	if total != len(comp.Faces) {
		t.Fatalf("leaf face ranges cover %d faces, want %d", total, len(comp.Faces))
	}
}

func TestCompressEmptyWideBVH(t *testing.T) {
	comp, err := Compress(&WideBVH{})
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if len(comp.Nodes) != 0 {
		t.Fatalf("Compress(empty): got %d nodes, want 0", len(comp.Nodes))
	}
}
