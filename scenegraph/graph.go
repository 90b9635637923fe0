// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package scenegraph implements the supplemented scene-graph layer
// C9's render orchestrator walks: mesh-instance nodes with
// world-transform propagation, adapted from node/node.go's
// generation-tagged, bitmap-indexed Graph (the teacher's own
// scene-graph package) directly onto spec.md §4.8's "{faces,
// vertices, material_index}" mesh-instance model, instead of the
// teacher's generic node.Interface abstraction.
package scenegraph

import (
	"github.com/jeffamstutz/gatling/internal/bitm"
	"github.com/jeffamstutz/gatling/linear"
)

// Node identifies a mesh instance in a Graph.
type Node int

// Nil represents an invalid Node.
const Nil Node = 0

type node struct {
	next Node
	prev Node
	sub  Node
	data int
}

type nodeData struct {
	inst  *MeshInstance
	world linear.M4
	node  Node
}

// Graph is a scene graph of MeshInstance nodes, following
// node.Graph's structure: a slot-reused node table (internal/bitm)
// plus a world-transform cache refreshed by Update.
type Graph struct {
	next    Node
	world   linear.M4
	wasSet  bool
	changed bool
	nodes   []node
	nodeMap bitm.Bitm[uint32]
	data    []nodeData
	cache   struct {
		nodes   []Node
		data    []int
		changed []bool
	}
}

func (g *Graph) nodeCache() []Node {
	if g.cache.nodes == nil {
		g.cache.nodes = make([]Node, 0, 1)
	}
	return g.cache.nodes[:0]
}

func (g *Graph) dataCache() []int {
	if g.cache.data == nil {
		g.cache.data = make([]int, 0, 1)
	}
	return g.cache.data[:0]
}

func (g *Graph) changedCache() []bool {
	if g.cache.changed == nil {
		g.cache.changed = make([]bool, 0, 1)
	}
	return g.cache.changed[:0]
}

// Insert inserts inst as a descendant of prev, or as an unconnected
// root node when prev is Nil.
func (g *Graph) Insert(inst *MeshInstance, prev Node) Node {
	if inst == nil {
		panic("scenegraph: cannot insert a nil MeshInstance")
	}
	if g.nodeMap.Rem() == 0 {
		switch x := g.nodeMap.Len(); {
		case x > 0:
			cnt := 1 + (x-31)/32
			g.nodes = append(g.nodes, g.nodes...)
			g.nodeMap.Grow(cnt)
		default:
			var elems [32]node
			g.nodes = append(g.nodes, elems[:]...)
			g.nodeMap.Grow(1)
		}
	}
	idx, ok := g.nodeMap.Search()
	if !ok {
		panic("scenegraph: unexpected failure from bitm.Bitm.Search")
	}
	g.nodeMap.Set(idx)
	newn := Node(idx + 1)

	if prev != Nil {
		if sub := g.nodes[prev-1].sub; sub != Nil {
			g.nodes[newn-1].next = sub
			g.nodes[sub-1].prev = newn
		} else {
			g.nodes[newn-1].next = Nil
		}
		g.nodes[newn-1].prev = prev
		g.nodes[prev-1].sub = newn
	} else {
		if g.next != Nil {
			g.nodes[g.next-1].prev = newn
			g.nodes[newn-1].next = g.next
		} else {
			g.nodes[newn-1].next = Nil
		}
		g.nodes[newn-1].prev = Nil
		g.next = newn
	}
	g.nodes[newn-1].sub = Nil
	g.nodes[newn-1].data = len(g.data)
	var world linear.M4
	world.I()
	g.data = append(g.data, nodeData{inst, world, newn})
	return newn
}

// Remove removes a node and its descendants, returning every removed
// MeshInstance (the node itself first, then descendants, each at a
// lower index than its own descendants).
func (g *Graph) Remove(n Node) []*MeshInstance {
	if n == Nil {
		return nil
	}
	removeData := func(d int) {
		last := len(g.data) - 1
		if d < last {
			swap := g.data[last].node
			g.nodes[swap-1].data = d
			g.data[d] = g.data[last]
		}
		g.data[last] = nodeData{}
		g.data = g.data[:last]
	}
	next := g.nodes[n-1].next
	prev := g.nodes[n-1].prev
	sub := g.nodes[n-1].sub
	data := g.nodes[n-1].data
	if g.next == n {
		g.next = next
	}
	if prev != Nil {
		if g.nodes[prev-1].sub == n {
			g.nodes[prev-1].sub = next
		} else {
			g.nodes[prev-1].next = next
		}
	}
	if next != Nil {
		g.nodes[next-1].prev = prev
	}
	insts := []*MeshInstance{g.data[data].inst}
	removeData(data)
	g.nodes[n-1] = node{}
	g.nodeMap.Unset(int(n - 1))
	if sub != Nil {
		stk := append(g.nodeCache(), sub)
		for last := len(stk) - 1; last >= 0; last = len(stk) - 1 {
			cur := stk[last]
			stk = stk[:last]
			data := g.nodes[cur-1].data
			insts = append(insts, g.data[data].inst)
			removeData(data)
			if next := g.nodes[cur-1].next; next != Nil {
				stk = append(stk, next)
			}
			if sub := g.nodes[cur-1].sub; sub != Nil {
				stk = append(stk, sub)
			}
			g.nodes[cur-1] = node{}
			g.nodeMap.Unset(int(cur - 1))
		}
		g.cache.nodes = stk
	}
	return insts
}

// Get returns the MeshInstance of a given Node, or nil for Nil.
func (g *Graph) Get(n Node) *MeshInstance {
	if n == Nil {
		return nil
	}
	return g.data[g.nodes[n-1].data].inst
}

// World returns the world transform of a given Node. Nil returns the
// graph's global world. The returned matrix is not necessarily up to
// date until Update has run.
func (g *Graph) World(n Node) *linear.M4 {
	if n == Nil {
		return &g.world
	}
	return &g.data[g.nodes[n-1].data].world
}

// SetWorld sets the global world transform applied to every
// unconnected (root) node, invalidating the whole graph.
func (g *Graph) SetWorld(w linear.M4) {
	g.world = w
	g.wasSet = true
	g.changed = true
}

// Update recomputes every node's world transform whose local
// transform (or an ancestor's) changed since the last Update, per
// spec.md §4.8's per-frame scene walk.
func (g *Graph) Update() {
	for n := g.next; n != Nil; n = g.nodes[n-1].next {
		data := g.nodes[n-1].data
		changed := g.data[data].inst.Changed() || g.changed
		if changed {
			local := g.data[data].inst.Local()
			if g.wasSet {
				g.data[data].world.Mul(&g.world, local)
			} else {
				g.data[data].world = *local
			}
		}
		sub := g.nodes[n-1].sub
		if sub == Nil {
			continue
		}
		nstk := append(g.nodeCache(), sub)
		dstk := append(g.dataCache(), data)
		cstk := append(g.changedCache(), changed)
		for last := len(nstk) - 1; last >= 0; last = len(nstk) - 1 {
			nsub := nstk[last]
			nstk = nstk[:last]
			prevd := dstk[last]
			dstk = dstk[:last]
			chgd := cstk[last]
			cstk = cstk[:last]
			for {
				if next := g.nodes[nsub-1].next; next != Nil {
					nstk = append(nstk, next)
					dstk = append(dstk, prevd)
					cstk = append(cstk, chgd)
				}
				data := g.nodes[nsub-1].data
				chgd = g.data[data].inst.Changed() || chgd
				if chgd {
					prevw := &g.data[prevd].world
					local := g.data[data].inst.Local()
					g.data[data].world.Mul(prevw, local)
				}
				if sub := g.nodes[nsub-1].sub; sub != Nil {
					nsub = sub
					prevd = data
				} else {
					break
				}
			}
		}
		g.cache.nodes = nstk
		g.cache.data = dstk
		g.cache.changed = cstk
	}
	g.changed = false
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int { return len(g.data) }

// Walk visits every node's MeshInstance and up-to-date world
// transform, for the render orchestrator's per-frame mesh-instance
// collection (spec.md §4.8: "Walk the scene, collecting meshes with
// their instance transforms"). Call Update first.
func (g *Graph) Walk(f func(inst *MeshInstance, world *linear.M4)) {
	for i := range g.data {
		f(g.data[i].inst, &g.data[i].world)
	}
}
