// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package bvh

import (
	"errors"
	"math"

	"github.com/jeffamstutz/gatling/linear"
)

// ErrLeafTooLarge is returned by Compress when a wide-BVH leaf carries
// more faces than a compressed meta byte's count field can represent.
var ErrLeafTooLarge = errors.New("bvh: leaf face count exceeds compressed node capacity")

const maxCompressedLeafFaces = 31

// CWBVHNode is the 80-byte compressed-wide-BVH node of spec.md §3,
// organised into the same five conceptual 16-byte fields: {p, e,
// imask}, {child base, face base, meta}, and three fields covering the
// six quantised-coordinate arrays. Each QLo*/QHi* array holds one byte
// per of the node's 8 child slots; on the wire this occupies the same
// 8 bytes as the two 4-byte halves spec.md describes, just addressed
// as a single array rather than a pair.
type CWBVHNode struct {
	P     linear.V3
	E     [3]uint8
	IMask uint8

	ChildBase uint32
	FaceBase  uint32
	Meta      [8]uint8

	QLoX, QLoY, QLoZ [8]uint8
	QHiX, QHiY, QHiZ [8]uint8
}

// IsInterior reports whether child slot i holds an interior child.
func (n *CWBVHNode) IsInterior(i int) bool { return n.IMask&(1<<uint(i)) != 0 }

// Rank returns slot i's traversal-order rank (0-7), set at compress
// time from the child's octant relative to the node center.
func (n *CWBVHNode) Rank(i int) int { return int(n.Meta[i] >> 5) }

// LeafCount returns the face count of slot i, valid only when
// !IsInterior(i).
func (n *CWBVHNode) LeafCount(i int) int { return int(n.Meta[i] & 0x1f) }

// QLo and QHi reconstruct slot i's quantised AABB corner, in the
// node's local (anchor-relative, pre-scale) integer units.
func (n *CWBVHNode) QLo(i int) [3]uint8 { return [3]uint8{n.QLoX[i], n.QLoY[i], n.QLoZ[i]} }
func (n *CWBVHNode) QHi(i int) [3]uint8 { return [3]uint8{n.QHiX[i], n.QHiY[i], n.QHiZ[i]} }

// Scale returns the per-axis quantisation scale 2^(e-127).
func (n *CWBVHNode) Scale() linear.V3 {
	return linear.V3{
		float32(math.Ldexp(1, int(n.E[0])-127)),
		float32(math.Ldexp(1, int(n.E[1])-127)),
		float32(math.Ldexp(1, int(n.E[2])-127)),
	}
}

// ChildBounds decodes slot i's AABB.
func (n *CWBVHNode) ChildBounds(i int) linear.AABB {
	lo, hi := n.QLo(i), n.QHi(i)
	scale := n.Scale()
	var b linear.AABB
	for a := 0; a < 3; a++ {
		b.Min[a] = n.P[a] + float32(lo[a])*scale[a]
		b.Max[a] = n.P[a] + float32(hi[a])*scale[a]
	}
	return b
}

// CompressedBVH is the output of Compress: the payload that scenefile
// writes to disk and traversal consumes directly.
type CompressedBVH struct {
	Nodes  []CWBVHNode
	Faces  []Face
	Bounds linear.AABB
}

// Compress quantises a wide BVH into a CWBVH, per spec.md §4.5. Node
// and face indices are reassigned in a depth-first walk: each node's interior
// children are placed contiguously starting at ChildBase, and each
// node's own leaf children's faces are copied into a contiguous block
// of the output face buffer starting at FaceBase, so that both are
// recoverable from a single base index plus a rank-ordered scan of
// the node's own meta bytes.
func Compress(w *WideBVH) (*CompressedBVH, error) {
	out := &CompressedBVH{Bounds: w.Bounds}
	if len(w.Nodes) == 0 {
		return out, nil
	}
	c := &compressor{wide: w, out: out}
	// The root occupies output slot 0; every other node's output slot
	// is allocated by its parent (see allocNodes) before the node
	// itself is visited, so compressNode always writes its result
	// directly into its final home and no relocation pass is needed.
	out.Nodes = make([]CWBVHNode, 1)
	if err := c.compressNode(0, 0); err != nil {
		return nil, err
	}
	return out, nil
}

type compressor struct {
	wide *WideBVH
	out  *CompressedBVH
}

// compressNode fills c.out.Nodes[outIdx] from c.wide.Nodes[wideIdx].
func (c *compressor) compressNode(wideIdx, outIdx int32) error {
	wn := &c.wide.Nodes[wideIdx]
	var n CWBVHNode
	n.P = wn.Bounds.Min
	extent := wn.Bounds.Extent()
	for a := 0; a < 3; a++ {
		n.E[a] = exponentFor(extent[a])
	}
	scale := n.Scale()
	center := wn.Bounds.Center()

	ranks := assignRanks(wn, center)

	var interior []int
	for i := 0; i < 8; i++ {
		if wn.Children[i].IsEmpty() {
			n.QLoX[i], n.QLoY[i], n.QLoZ[i] = 255, 255, 255
			n.QHiX[i], n.QHiY[i], n.QHiZ[i] = 0, 0, 0
			continue
		}
		child := &wn.Children[i]
		lo, hi := quantize(child.Bounds, n.P, scale)
		n.QLoX[i], n.QLoY[i], n.QLoZ[i] = lo[0], lo[1], lo[2]
		n.QHiX[i], n.QHiY[i], n.QHiZ[i] = hi[0], hi[1], hi[2]

		if child.Leaf {
			if child.Count > maxCompressedLeafFaces {
				return ErrLeafTooLarge
			}
			n.Meta[i] = uint8(ranks[i])<<5 | uint8(child.Count)
		} else {
			n.IMask |= 1 << uint(i)
			n.Meta[i] = uint8(ranks[i])<<5 | uint8(ranks[i])
			interior = append(interior, i)
		}
	}

	sortByRank(interior, ranks)

	// Allocate contiguous output-node slots for this node's interior
	// children, in rank order, before recursing.
	childBase := int32(len(c.out.Nodes))
	if len(interior) > 0 {
		childBase = c.allocNodes(len(interior))
		n.ChildBase = uint32(childBase)
	}

	// Copy this node's own leaf children's faces into a contiguous
	// block, in rank order, so that FaceBase plus a prefix sum of
	// earlier leaf slots' counts locates each leaf's range.
	n.FaceBase = uint32(len(c.out.Faces))
	order := make([]int, 8)
	for i := range order {
		order[i] = i
	}
	sortByRank(order, ranks)
	for _, i := range order {
		child := &wn.Children[i]
		if child.IsEmpty() || !child.Leaf {
			continue
		}
		c.out.Faces = append(c.out.Faces, c.wide.Faces[child.FaceStart:child.FaceStart+child.Count]...)
	}

	c.out.Nodes[outIdx] = n

	for k, i := range interior {
		if err := c.compressNode(wn.Children[i].NodeIndex, childBase+int32(k)); err != nil {
			return err
		}
	}
	return nil
}

// allocNodes reserves n contiguous, zero-valued node slots and
// returns the index of the first.
func (c *compressor) allocNodes(n int) int32 {
	start := int32(len(c.out.Nodes))
	c.out.Nodes = append(c.out.Nodes, make([]CWBVHNode, n)...)
	return start
}

// exponentFor returns the smallest e such that 255*2^(e-127) >= extent.
func exponentFor(extent float32) uint8 {
	if extent <= 0 {
		return 127
	}
	e := int(math.Ceil(math.Log2(float64(extent)/255))) + 127
	if e < 0 {
		e = 0
	}
	if e > 255 {
		e = 255
	}
	return uint8(e)
}

// quantize rounds box outward (min down, max up) to byte coordinates
// relative to anchor p at the given per-axis scale.
func quantize(box linear.AABB, p, scale linear.V3) (lo, hi [3]uint8) {
	for a := 0; a < 3; a++ {
		l := math.Floor(float64((box.Min[a] - p[a]) / scale[a]))
		h := math.Ceil(float64((box.Max[a] - p[a]) / scale[a]))
		lo[a] = clampByte(l)
		hi[a] = clampByte(h)
	}
	return
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// assignRanks gives each occupied child slot a unique rank in 0-7,
// preferring the octant code of its center relative to the node
// center (so that a ray-octant inversion mask at traversal time yields
// a consistent near-to-far order); collisions are resolved by
// assigning the nearest free rank.
func assignRanks(wn *WideNode, center linear.V3) [8]int {
	var ranks [8]int
	var used [8]bool
	type want struct {
		slot, rank int
	}
	var wants []want
	for i := 0; i < 8; i++ {
		if wn.Children[i].IsEmpty() {
			continue
		}
		c := wn.Children[i].Bounds.Center()
		code := 0
		if c[0] >= center[0] {
			code |= 1
		}
		if c[1] >= center[1] {
			code |= 2
		}
		if c[2] >= center[2] {
			code |= 4
		}
		wants = append(wants, want{i, code})
	}
	for _, w := range wants {
		r := w.rank
		for used[r] {
			r = (r + 1) % 8
		}
		used[r] = true
		ranks[w.slot] = r
	}
	return ranks
}

func sortByRank(order []int, ranks [8]int) {
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && ranks[order[j-1]] > ranks[order[j]]; j-- {
			order[j-1], order[j] = order[j], order[j-1]
		}
	}
}
