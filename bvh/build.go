// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package bvh

import (
	"log"
	"math"

	"github.com/jeffamstutz/gatling/linear"
)

// ref is one occurrence of a face in the builder's working set. A
// face may have more than one ref when a spatial split duplicates it
// across both children; each occurrence carries its own (possibly
// clipped) bounding box so that spatial splits actually tighten child
// bounds instead of merely repartitioning a box shared with the
// other occurrence.
type ref struct {
	face int32
	box  linear.AABB
}

func (r *ref) centroid() linear.V3 { return r.box.Center() }

// builder holds the state threaded through the recursive construction.
// Nodes and the final face order are both built post-order / append-
// only: a node's face range is only known once its leaf refs have
// actually been appended to out, which sidesteps the classic SBVH
// bookkeeping hazard of having to splice duplicated refs into a
// shared, positionally-indexed working array mid-recursion.
type builder struct {
	cfg       Config
	faces     []Face
	verts     []Vertex
	rootArea  float32
	dupBudget int
	nodes     []Node
	out       []ref
}

// Build runs the SAH/SBVH top-down construction of spec.md §4.3 over
// faces/verts, producing a binary BVH whose faces are a reorganised
// (and possibly duplicated, under spatial splitting) copy of faces.
//
// Faces with coincident vertex indices, and faces whose AABB has zero
// extent on every axis, are dropped with a logged warning, per the
// builder's contract.
func Build(faces []Face, verts []Vertex, cfg Config) (*BinaryBVH, error) {
	b := &builder{cfg: cfg, verts: verts}
	dropped := 0
	var refs []ref
	for i := range faces {
		f := faces[i]
		if f.I0 == f.I1 || f.I1 == f.I2 || f.I0 == f.I2 {
			dropped++
			continue
		}
		box := faceBounds(&f, verts)
		e := box.Extent()
		if e[0] == 0 && e[1] == 0 && e[2] == 0 {
			dropped++
			continue
		}
		b.faces = append(b.faces, f)
		refs = append(refs, ref{face: int32(len(b.faces) - 1), box: box})
	}
	if dropped > 0 {
		log.Printf("bvh: dropped %d degenerate face(s)", dropped)
	}

	n := len(refs)
	if n == 0 {
		return &BinaryBVH{Bounds: linear.EmptyAABB()}, nil
	}

	root := linear.EmptyAABB()
	for i := range refs {
		root.Union(&refs[i].box)
	}
	b.rootArea = root.SurfaceArea()
	if b.rootArea == 0 {
		b.rootArea = 1
	}
	budget := int(cfg.SpatialReserveFactor*float32(n)) - n
	if budget < 0 {
		budget = 0
	}
	b.dupBudget = budget

	b.nodes = make([]Node, 1)
	b.out = make([]ref, 0, n+budget)
	b.build(refs, 0)

	if len(b.out) > n+budget {
		return nil, ErrOutOfReservation
	}

	outFaces := make([]Face, len(b.out))
	for i, r := range b.out {
		outFaces[i] = b.faces[r.face]
	}
	return &BinaryBVH{Nodes: b.nodes, Faces: outFaces, Bounds: root}, nil
}

func faceBounds(f *Face, verts []Vertex) linear.AABB {
	box := linear.EmptyAABB()
	box.Extend(&verts[f.I0].Pos)
	box.Extend(&verts[f.I1].Pos)
	box.Extend(&verts[f.I2].Pos)
	return box
}

// build recurses over refs, writing the resulting subtree into
// nodes[nodeIdx] (already allocated by the caller, except for the
// root, which Build allocates itself).
func (b *builder) build(refs []ref, nodeIdx int32) {
	bounds := linear.EmptyAABB()
	for i := range refs {
		bounds.Union(&refs[i].box)
	}
	n := len(refs)

	binCount := b.cfg.ObjectBinCount
	if b.cfg.ObjectBinningMode == Adaptive && n < b.cfg.ObjectBinningThreshold {
		binCount = maxInt(2, binCount/4)
	}

	objCost, objAxis, objSplit, objOK := evaluateObjectSplit(refs, bounds, binCount, b.cfg.FaceIntersectionCost)
	leafCost := float32(n) * b.cfg.FaceIntersectionCost

	bestCost := float32(math.Inf(1))
	if objOK {
		bestCost = objCost
	}
	useSpatial := false
	var spAxis int
	var spSplit float32

	if objOK && n > 1 {
		overlap := overlapSurfaceArea(refs, objAxis, objSplit)
		if overlap/b.rootArea > b.cfg.SpatialSplitAlpha && b.dupBudget > 0 {
			spCost, spA, spS, spOK := evaluateSpatialSplit(refs, bounds, b.cfg.SpatialBinCount, b.cfg.FaceIntersectionCost)
			if spOK && spCost < bestCost {
				bestCost = spCost
				useSpatial = true
				spAxis, spSplit = spA, spS
			}
		}
	}

	if !objOK || n <= b.cfg.LeafMaxFaceCount || bestCost >= leafCost {
		start := int32(len(b.out))
		b.out = append(b.out, refs...)
		b.nodes[nodeIdx] = Node{Bounds: bounds, FaceStart: start, Count: int32(n)}
		return
	}

	var left, right []ref
	if useSpatial {
		left, right = b.splitSpatial(refs, spAxis, spSplit)
	} else {
		left, right = splitObject(refs, objAxis, objSplit)
	}
	if len(left) == 0 || len(right) == 0 {
		left, right = medianSplit(refs, bounds.LargestAxis())
	}

	leftIdx := int32(len(b.nodes))
	b.nodes = append(b.nodes, Node{}, Node{})
	b.nodes[nodeIdx] = Node{Bounds: bounds, Left: leftIdx, Count: 0}
	b.build(left, leftIdx)
	b.build(right, leftIdx+1)
}

// evaluateObjectSplit bins ref centroids along bounds' longest axis
// and sweeps for the SAH-minimising boundary, per spec.md §4.3 step 1.
func evaluateObjectSplit(refs []ref, bounds linear.AABB, binCount int, faceCost float32) (cost float32, axis int, splitPos float32, ok bool) {
	axis = bounds.LargestAxis()
	lo, hi := bounds.Min[axis], bounds.Max[axis]
	if hi <= lo || binCount < 2 {
		return 0, axis, 0, false
	}
	type bin struct {
		box   linear.AABB
		count int
	}
	bins := make([]bin, binCount)
	for i := range bins {
		bins[i].box = linear.EmptyAABB()
	}
	scale := float32(binCount) / (hi - lo)
	binOf := func(c float32) int {
		i := int((c - lo) * scale)
		if i < 0 {
			i = 0
		}
		if i >= binCount {
			i = binCount - 1
		}
		return i
	}
	for i := range refs {
		bi := binOf(refs[i].centroid()[axis])
		bins[bi].box.Union(&refs[i].box)
		bins[bi].count++
	}

	leftArea := make([]float32, binCount)
	leftCount := make([]int, binCount)
	box := linear.EmptyAABB()
	cnt := 0
	for i := 0; i < binCount; i++ {
		box.Union(&bins[i].box)
		cnt += bins[i].count
		leftArea[i] = box.SurfaceArea()
		leftCount[i] = cnt
	}
	box = linear.EmptyAABB()
	cnt = 0
	best := float32(math.Inf(1))
	bestSplit := -1
	for i := binCount - 1; i >= 1; i-- {
		box.Union(&bins[i].box)
		cnt += bins[i].count
		if leftCount[i-1] == 0 || cnt == 0 {
			continue
		}
		c := leftArea[i-1]*float32(leftCount[i-1]) + box.SurfaceArea()*float32(cnt)
		if c < best {
			best = c
			bestSplit = i
		}
	}
	if bestSplit < 0 {
		return 0, axis, 0, false
	}
	cost = nodeTraversalCost + faceCost*best/bounds.SurfaceArea()
	splitPos = lo + float32(bestSplit)/scale
	return cost, axis, splitPos, true
}

// overlapSurfaceArea computes the surface area of the intersection of
// the two children that an object split at (axis, pos) would produce;
// used to decide whether evaluating a spatial split is worthwhile.
func overlapSurfaceArea(refs []ref, axis int, pos float32) float32 {
	l, r := linear.EmptyAABB(), linear.EmptyAABB()
	for i := range refs {
		if refs[i].centroid()[axis] < pos {
			l.Union(&refs[i].box)
		} else {
			r.Union(&refs[i].box)
		}
	}
	if !l.Valid() || !r.Valid() {
		return 0
	}
	var ov linear.AABB
	for a := 0; a < 3; a++ {
		ov.Min[a] = max32(l.Min[a], r.Min[a])
		ov.Max[a] = min32(l.Max[a], r.Max[a])
	}
	if !ov.Valid() {
		return 0
	}
	return ov.SurfaceArea()
}

// evaluateSpatialSplit bins refs spatially (clipping each ref's box to
// bin planes rather than binning its centroid) along bounds' longest
// axis, per spec.md §4.3 step 2.
func evaluateSpatialSplit(refs []ref, bounds linear.AABB, binCount int, faceCost float32) (cost float32, axis int, splitPos float32, ok bool) {
	axis = bounds.LargestAxis()
	lo, hi := bounds.Min[axis], bounds.Max[axis]
	if hi <= lo || binCount < 2 {
		return 0, axis, 0, false
	}
	width := (hi - lo) / float32(binCount)
	type bin struct {
		box          linear.AABB
		enter, exit int
	}
	bins := make([]bin, binCount)
	for i := range bins {
		bins[i].box = linear.EmptyAABB()
	}
	clamp := func(i int) int {
		if i < 0 {
			return 0
		}
		if i >= binCount {
			return binCount - 1
		}
		return i
	}
	for i := range refs {
		b0 := clamp(int((refs[i].box.Min[axis] - lo) / width))
		b1 := clamp(int((refs[i].box.Max[axis] - lo) / width))
		bins[b0].enter++
		bins[b1].exit++
		for bi := b0; bi <= b1; bi++ {
			pos0 := lo + float32(bi)*width
			pos1 := lo + float32(bi+1)*width
			clipped := refs[i].box
			clipped.Min[axis] = max32(clipped.Min[axis], pos0)
			clipped.Max[axis] = min32(clipped.Max[axis], pos1)
			bins[bi].box.Union(&clipped)
		}
	}

	leftArea := make([]float32, binCount)
	leftCount := make([]int, binCount)
	box := linear.EmptyAABB()
	cnt := 0
	for i := 0; i < binCount; i++ {
		box.Union(&bins[i].box)
		cnt += bins[i].enter
		leftArea[i] = box.SurfaceArea()
		leftCount[i] = cnt
	}
	box = linear.EmptyAABB()
	cnt = 0
	best := float32(math.Inf(1))
	bestSplit := -1
	for i := binCount - 1; i >= 1; i-- {
		box.Union(&bins[i].box)
		cnt += bins[i].exit
		if leftCount[i-1] == 0 || cnt == 0 {
			continue
		}
		c := leftArea[i-1]*float32(leftCount[i-1]) + box.SurfaceArea()*float32(cnt)
		if c < best {
			best = c
			bestSplit = i
		}
	}
	if bestSplit < 0 {
		return 0, axis, 0, false
	}
	cost = nodeTraversalCost + faceCost*best/bounds.SurfaceArea()
	splitPos = lo + float32(bestSplit)*width
	return cost, axis, splitPos, true
}

// splitObject partitions refs by centroid[axis] < splitPos.
func splitObject(refs []ref, axis int, splitPos float32) (left, right []ref) {
	for i := range refs {
		if refs[i].centroid()[axis] < splitPos {
			left = append(left, refs[i])
		} else {
			right = append(right, refs[i])
		}
	}
	return
}

// splitSpatial partitions refs at (axis, splitPos), clipping and, for
// straddling faces, duplicating into both resulting slices. It
// consumes from b.dupBudget, falling back to a centroid-based
// assignment (no duplication) once the budget is exhausted so that
// the builder never overflows its face-buffer reservation.
func (b *builder) splitSpatial(refs []ref, axis int, splitPos float32) (left, right []ref) {
	for i := range refs {
		r := refs[i]
		switch {
		case r.box.Max[axis] <= splitPos:
			left = append(left, r)
		case r.box.Min[axis] >= splitPos:
			right = append(right, r)
		case b.dupBudget <= 0:
			if r.centroid()[axis] < splitPos {
				left = append(left, r)
			} else {
				right = append(right, r)
			}
		default:
			lr, rr := r, r
			lr.box.Max[axis] = splitPos
			rr.box.Min[axis] = splitPos
			left = append(left, lr)
			right = append(right, rr)
			b.dupBudget--
		}
	}
	return
}

// medianSplit is the degenerate-split fallback: it guarantees forward
// progress when every ref lands on one side of the chosen plane (e.g.
// coincident centroids) by splitting the slice by position instead.
func medianSplit(refs []ref, axis int) (left, right []ref) {
	mid := len(refs) / 2
	if mid == 0 {
		mid = 1
	}
	left = append([]ref{}, refs[:mid]...)
	right = append([]ref{}, refs[mid:]...)
	return
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
