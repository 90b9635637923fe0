// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package bvh

import "github.com/jeffamstutz/gatling/linear"

// WideNode is an uncompressed 8-wide BVH node: the intermediate form
// between BinaryBVH and the CWBVH produced by Compress, per spec.md
// §4.4's "Wide BVH node".
type WideNode struct {
	Bounds   linear.AABB
	Children [8]WideChild
}

// WideChild describes one child slot of a WideNode. An empty slot has
// Count == 0 and Leaf == false; IsEmpty distinguishes it from a
// zero-face leaf, which cannot occur.
type WideChild struct {
	Bounds    linear.AABB
	Leaf      bool
	NodeIndex int32 // valid when !Leaf: index into WideBVH.Nodes
	FaceStart int32 // valid when Leaf
	Count     int32 // valid when Leaf; 0 means the slot is empty
}

// IsEmpty reports whether the slot holds no child.
func (c *WideChild) IsEmpty() bool { return !c.Leaf && c.Count == 0 && c.NodeIndex == 0 && c.Bounds == (linear.AABB{}) }

// WideBVH is the collapser's output.
type WideBVH struct {
	Nodes  []WideNode
	Faces  []Face
	Bounds linear.AABB
}

// CollapseConfig bounds the collapser's merging, per spec.md §4.4.
type CollapseConfig struct {
	// MaxLeafFaceCount caps the face count of a merged leaf. A binary
	// subtree is only absorbed into a wide leaf when doing so would
	// not exceed this count.
	MaxLeafFaceCount int
	// NodeTraversalCost and FaceIntersectionCost are not read by
	// Collapse: members are expanded in order of surface area alone,
	// and a subtree is absorbed into a leaf on MaxLeafFaceCount alone.
	NodeTraversalCost    float32
	FaceIntersectionCost float32
}

// DefaultCollapseConfig returns the collapser's default tunables.
func DefaultCollapseConfig() CollapseConfig {
	return CollapseConfig{
		MaxLeafFaceCount:     16,
		NodeTraversalCost:    1.0,
		FaceIntersectionCost: 1.0,
	}
}

// Collapse merges bin's binary tree into a wide BVH with up to 8
// children per node, per spec.md §4.4: starting from each binary
// interior node, it repeatedly replaces the interior member with the
// largest surface area by its two children until 8 slots are filled
// or only leaves remain. Binary leaves become leaf children; an
// interior member whose subtree holds at most MaxLeafFaceCount faces
// is folded into a single leaf child, and any other interior member
// becomes a wide child node. A leaf root yields one wide node with a
// single leaf child.
func Collapse(bin *BinaryBVH, cfg CollapseConfig) *WideBVH {
	w := &WideBVH{Faces: bin.Faces, Bounds: bin.Bounds}
	if len(bin.Nodes) == 0 {
		return w
	}
	w.Nodes = make([]WideNode, 1, len(bin.Nodes))
	if r := &bin.Nodes[0]; r.IsLeaf() {
		w.Nodes[0].Bounds = r.Bounds
		w.Nodes[0].Children[0] = WideChild{Bounds: r.Bounds, Leaf: true, FaceStart: r.FaceStart, Count: r.Count}
		return w
	}
	root := collapser{bin: bin, cfg: cfg, out: w}
	root.collapse(0, 0)
	return w
}

type collapser struct {
	bin *BinaryBVH
	cfg CollapseConfig
	out *WideBVH
}

// collapse fills out.Nodes[dst] from the binary subtree rooted at
// bin.Nodes[src], which must itself be an interior node (leaves are
// folded directly into their parent's slot by the caller).
func (c *collapser) collapse(src, dst int32) {
	node := &c.bin.Nodes[src]
	c.out.Nodes[dst].Bounds = node.Bounds

	// members holds the binary-tree indices currently occupying wide
	// child slots; it starts with the node's two direct children and
	// grows by repeatedly replacing the cheapest-to-expand interior
	// member with its own two children, up to 8 slots.
	members := []int32{node.Left, node.Left + 1}
	for len(members) < 8 {
		best := -1
		bestCost := float32(-1)
		for i, m := range members {
			if c.bin.Nodes[m].IsLeaf() {
				continue
			}
			cost := c.expandGain(m)
			if cost > bestCost {
				bestCost = cost
				best = i
			}
		}
		if best < 0 {
			break
		}
		m := members[best]
		members[best] = c.bin.Nodes[m].Left
		members = append(members, c.bin.Nodes[m].Left+1)
	}

	var interior []int32
	for i, m := range members {
		n := &c.bin.Nodes[m]
		if n.IsLeaf() {
			c.out.Nodes[dst].Children[i] = WideChild{
				Bounds:    n.Bounds,
				Leaf:      true,
				FaceStart: n.FaceStart,
				Count:     n.Count,
			}
			continue
		}
		// A member that is itself still an interior node may have a
		// small enough subtree to absorb wholesale into a single wide
		// leaf rather than becoming another level of wide node. Binary
		// leaves are appended to BinaryBVH.Faces in DFS order, so every
		// subtree's faces occupy one contiguous range.
		if start, count, ok := c.absorb(m); ok {
			c.out.Nodes[dst].Children[i] = WideChild{
				Bounds:    n.Bounds,
				Leaf:      true,
				FaceStart: start,
				Count:     count,
			}
			continue
		}
		interior = append(interior, m)
	}
	// Assign a fresh wide-node slot to each surviving interior member,
	// then recurse. Slot allocation happens up front so that children
	// can be appended to c.out.Nodes in a stable order before any
	// recursive call mutates it further.
	childNodeIdx := make(map[int32]int32, len(interior))
	for _, m := range interior {
		idx := int32(len(c.out.Nodes))
		c.out.Nodes = append(c.out.Nodes, WideNode{})
		childNodeIdx[m] = idx
	}
	for i, m := range members {
		n := &c.bin.Nodes[m]
		if n.IsLeaf() {
			continue
		}
		idx, ok := childNodeIdx[m]
		if !ok {
			continue // absorbed into a leaf child above
		}
		c.out.Nodes[dst].Children[i] = WideChild{Bounds: n.Bounds, Leaf: false, NodeIndex: idx}
	}
	for _, m := range interior {
		c.collapse(m, childNodeIdx[m])
	}
}

// expandGain estimates the benefit of replacing member m (an interior
// binary node) with its two children in the wide node's child list:
// nodes with more surface area dominate the parent's traversal cost
// and are expanded first.
func (c *collapser) expandGain(m int32) float32 {
	n := &c.bin.Nodes[m]
	return n.Bounds.SurfaceArea()
}

// absorb reports whether the binary subtree rooted at m has few
// enough faces to fold into a single wide leaf, returning its
// contiguous face range when it does.
func (c *collapser) absorb(m int32) (start, count int32, ok bool) {
	start, count = c.subtreeRange(m)
	if count == 0 || count > int32(c.cfg.MaxLeafFaceCount) {
		return 0, 0, false
	}
	return start, count, true
}

// subtreeRange returns the contiguous [start, start+count) face range
// spanned by every leaf under the binary subtree rooted at m.
func (c *collapser) subtreeRange(m int32) (start, count int32) {
	n := &c.bin.Nodes[m]
	if n.IsLeaf() {
		return n.FaceStart, n.Count
	}
	ls, lc := c.subtreeRange(n.Left)
	_, rc := c.subtreeRange(n.Left + 1)
	return ls, lc + rc
}
