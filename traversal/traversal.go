// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package traversal implements the CWBVH ray-traversal kernel of
// spec.md §4.5 (C7): find_hit_closest and find_hit_any against a
// bvh.CompressedBVH. It follows the builder packages' arena-of-indices
// style (bvh/compress.go) rather than a pointer-graph traversal, since
// the compressed node array is exactly what a real dispatch would walk
// from a storage buffer.
//
// The source kernel expresses node/face selection with GPU
// wavefront-ballot primitives and 4-wide SIMD AABB tests; this port
// keeps the same two-group (node group / face group), bounded-stack
// structure but expresses the per-child tests as a plain 8-iteration
// loop and the "active lane count" postponement trigger as a
// proportion of a node group's still-pending children, since there is
// no cooperating wavefront to ballot across on the host.
package traversal

import (
	"errors"
	"math"
	"math/bits"

	"github.com/jeffamstutz/gatling/bvh"
	"github.com/jeffamstutz/gatling/linear"
)

// NoHit is the face-index sentinel reported for a miss, per spec.md §6.
const NoHit uint32 = 0xFFFFFFFF

// TriEps is the Möller-Trumbore determinant-near-zero cull threshold.
const TriEps = 1e-7

// MaxStackSize bounds the node/face-group stack; exceeding it is a
// fatal error (spec.md §4.5, §7's HardcodedLimitReached kind).
const MaxStackSize = 64

// ErrStackOverflow is returned when a single traversal would need more
// than MaxStackSize pending groups.
var ErrStackOverflow = errors.New("traversal: stack overflow")

// Hit is the result of a successful find_hit_closest query.
type Hit struct {
	T          float32
	U, V       float32 // barycentric coordinates of the hit point
	FaceIndex  uint32
}

// Options selects compile-time kernel behaviour, mirroring the
// #define-injected constants of spec.md §6.
type Options struct {
	// Postpone enables triangle postponement (spec.md §4.5's "optional"
	// branch). It never changes the set or value of reported hits (S4);
	// it only changes the order node/face work is interleaved in.
	Postpone bool
	// PostponeRatio is the active-lane-fraction threshold below which a
	// face group is pushed back onto the stack.
	PostponeRatio float32
}

// DefaultOptions matches the shader-kernel external contract's default
// POSTPONE_RATIO (spec.md §6).
func DefaultOptions() Options {
	return Options{Postpone: true, PostponeRatio: 0.2}
}

// nodeGroup is the pending-children-of-a-node tuple of spec.md §4.5:
// mask bit i set means child slot i of the node at nodeIdx still needs
// to be visited.
type nodeGroup struct {
	nodeIdx int32
	mask    uint8
}

// faceGroup is the pending-faces-of-a-leaf tuple: mask bit i set means
// face base+i still needs the Moller-Trumbore test.
type faceGroup struct {
	base uint32
	mask uint32
}

type stackEntry struct {
	isFace bool
	node   nodeGroup
	face   faceGroup
}

// FindHitClosest returns the closest face the ray intersects, per
// spec.md invariant 2: it reports a hit iff a brute-force
// Moller-Trumbore test against every face in c would.
func FindHitClosest(c *bvh.CompressedBVH, verts []bvh.Vertex, ray linear.Ray, opts Options) (Hit, error) {
	return traverse(c, verts, ray, false, opts)
}

// FindHitAny reports whether the ray intersects any face, stopping at
// the first one found.
func FindHitAny(c *bvh.CompressedBVH, verts []bvh.Vertex, ray linear.Ray, opts Options) (bool, error) {
	hit, err := traverse(c, verts, ray, true, opts)
	if err != nil {
		return false, err
	}
	return hit.FaceIndex != NoHit, nil
}

func traverse(c *bvh.CompressedBVH, verts []bvh.Vertex, ray linear.Ray, anyHit bool, opts Options) (Hit, error) {
	hit := Hit{FaceIndex: NoHit}
	if len(c.Nodes) == 0 {
		return hit, nil
	}

	oct := ray.Octant()
	cur := nodeGroup{nodeIdx: 0, mask: testChildren(&c.Nodes[0], &ray)}
	var face faceGroup
	var stack []stackEntry

	push := func(e stackEntry) error {
		if len(stack) >= MaxStackSize {
			return ErrStackOverflow
		}
		stack = append(stack, e)
		return nil
	}

	for cur.mask != 0 || face.mask != 0 {
		if face.mask != 0 {
			postpone := opts.Postpone && activeFraction(cur.mask) < opts.PostponeRatio && cur.mask != 0
			if postpone {
				if err := push(stackEntry{isFace: true, face: face}); err != nil {
					return hit, err
				}
				face = faceGroup{}
			} else {
				found, fhit := scanFaces(c, verts, &ray, &face, anyHit)
				if found {
					hit = fhit
					if anyHit {
						return hit, nil
					}
				}
				face = faceGroup{}
			}
		} else {
			slot := pickSlot(&c.Nodes[cur.nodeIdx], cur.mask, oct)
			cur.mask &^= 1 << uint(slot)
			node := &c.Nodes[cur.nodeIdx]
			if node.IsInterior(slot) {
				childIdx := int32(node.ChildBase) + int32(interiorPos(node, slot))
				if cur.mask != 0 {
					if err := push(stackEntry{node: cur}); err != nil {
						return hit, err
					}
				}
				cur = nodeGroup{nodeIdx: childIdx, mask: testChildren(&c.Nodes[childIdx], &ray)}
			} else {
				cnt := node.LeafCount(slot)
				if cnt > 0 {
					off := faceOffset(node, slot)
					if face.mask != 0 {
						if err := push(stackEntry{isFace: true, face: face}); err != nil {
							return hit, err
						}
					}
					face = faceGroup{base: node.FaceBase + uint32(off), mask: uint32(1)<<uint(cnt) - 1}
				}
			}
		}

		if cur.mask == 0 && face.mask == 0 && len(stack) > 0 {
			e := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if e.isFace {
				face = e.face
			} else {
				cur = e.node
			}
		}
	}
	return hit, nil
}

// activeFraction stands in for a wavefront's active-lane ballot: the
// proportion of a node group's 8 child slots still pending.
func activeFraction(mask uint8) float32 {
	return float32(bits.OnesCount8(mask)) / 8
}

// testChildren performs the two 4-child AABB tests of spec.md §4.5
// (collapsed into a single 8-iteration loop, see package doc) and
// returns the hit mask over the node's 8 child slots.
func testChildren(n *bvh.CWBVHNode, ray *linear.Ray) uint8 {
	inv := ray.InvDir()
	var mask uint8
	for i := 0; i < 8; i++ {
		b := n.ChildBounds(i)
		tMinX, tMaxX := slabAxis(ray.Origin[0], inv[0], b.Min[0], b.Max[0])
		tMinY, tMaxY := slabAxis(ray.Origin[1], inv[1], b.Min[1], b.Max[1])
		tMinZ, tMaxZ := slabAxis(ray.Origin[2], inv[2], b.Min[2], b.Max[2])
		tMin := maxf(tMinX, tMinY, tMinZ, 0)
		tMax := minf(tMaxX, tMaxY, tMaxZ, ray.TMax)
		if tMin <= tMax {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

func slabAxis(origin, invDir, lo, hi float32) (tMin, tMax float32) {
	t0 := (lo - origin) * invDir
	t1 := (hi - origin) * invDir
	if invDir < 0 {
		t0, t1 = t1, t0
	}
	return t0, t1
}

func maxf(vs ...float32) float32 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minf(vs ...float32) float32 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// pickSlot selects the nearest still-pending child slot, per spec.md
// §4.5's ray-octant inversion-mask ordering: a slot's rank XORed with
// the ray's octant yields a near-to-far key.
func pickSlot(n *bvh.CWBVHNode, mask uint8, oct int) int {
	best, bestKey := -1, 1<<30
	for i := 0; i < 8; i++ {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		if key := n.Rank(i) ^ oct; key < bestKey {
			bestKey, best = key, i
		}
	}
	return best
}

// interiorPos returns slot's position among the node's interior
// children in rank order, i.e. its offset from ChildBase.
func interiorPos(n *bvh.CWBVHNode, slot int) int {
	r := n.Rank(slot)
	pos := 0
	for j := 0; j < 8; j++ {
		if j != slot && n.IsInterior(j) && n.Rank(j) < r {
			pos++
		}
	}
	return pos
}

// faceOffset returns slot's leaf face block's offset from FaceBase, by
// summing the face counts of every other leaf slot that sorts before
// it in rank order.
func faceOffset(n *bvh.CWBVHNode, slot int) int {
	r := n.Rank(slot)
	off := 0
	for j := 0; j < 8; j++ {
		if j != slot && !n.IsInterior(j) && n.Rank(j) < r {
			off += n.LeafCount(j)
		}
	}
	return off
}

// scanFaces tests every pending face in fg against ray, returning the
// closest hit found (or the first, for anyHit).
func scanFaces(c *bvh.CompressedBVH, verts []bvh.Vertex, ray *linear.Ray, fg *faceGroup, anyHit bool) (bool, Hit) {
	found := false
	var best Hit
	m := fg.mask
	for m != 0 {
		i := bits.TrailingZeros32(m)
		m &^= 1 << uint(i)
		faceIdx := fg.base + uint32(i)
		f := &c.Faces[faceIdx]
		idx := f.Indices()
		p0, p1, p2 := verts[idx[0]].Pos, verts[idx[1]].Pos, verts[idx[2]].Pos
		if t, u, v, ok := intersectTriangle(ray, &p0, &p1, &p2); ok {
			found = true
			best = Hit{T: t, U: u, V: v, FaceIndex: faceIdx}
			ray.TMax = t
			if anyHit {
				return true, best
			}
		}
	}
	return found, best
}

// intersectTriangle is the Moller-Trumbore ray-triangle test of
// spec.md §4.5: culls |det| < TriEps and requires t strictly within
// (ray.TMin, ray.TMax).
func intersectTriangle(ray *linear.Ray, p0, p1, p2 *linear.V3) (t, u, v float32, ok bool) {
	var e1, e2 linear.V3
	e1.Sub(p1, p0)
	e2.Sub(p2, p0)

	var pvec linear.V3
	pvec.Cross(&ray.Dir, &e2)
	det := e1.Dot(&pvec)
	if det > -TriEps && det < TriEps {
		return 0, 0, 0, false
	}
	invDet := 1 / det

	var tvec linear.V3
	tvec.Sub(&ray.Origin, p0)
	u = tvec.Dot(&pvec) * invDet
	if u < 0 || u > 1 {
		return 0, 0, 0, false
	}

	var qvec linear.V3
	qvec.Cross(&tvec, &e1)
	v = ray.Dir.Dot(&qvec) * invDet
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false
	}

	t = e2.Dot(&qvec) * invDet
	if t <= ray.TMin || t >= ray.TMax {
		return 0, 0, 0, false
	}
	return t, u, v, true
}

// BruteForce is a direct, non-accelerated Moller-Trumbore sweep over
// every face, used as the reference implementation invariant 2 and S3
// check find_hit_closest against.
func BruteForce(faces []bvh.Face, verts []bvh.Vertex, ray linear.Ray) Hit {
	hit := Hit{FaceIndex: NoHit}
	for i := range faces {
		idx := faces[i].Indices()
		p0, p1, p2 := verts[idx[0]].Pos, verts[idx[1]].Pos, verts[idx[2]].Pos
		if t, u, v, ok := intersectTriangle(&ray, &p0, &p1, &p2); ok {
			hit = Hit{T: t, U: u, V: v, FaceIndex: uint32(i)}
			ray.TMax = t
		}
	}
	return hit
}

// Gamma applies spec.md §4.8/invariant 7's piecewise sRGB encoding
// curve to a linear colour channel value.
func Gamma(linearVal float32) float32 {
	if linearVal <= 0.0031308 {
		return 12.92 * linearVal
	}
	return float32(1.055*math.Pow(float64(linearVal), 1/2.4) - 0.055)
}
