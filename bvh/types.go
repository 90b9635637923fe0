// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package bvh implements the scene preprocessor's geometry pipeline:
// a SAH/SBVH binary-BVH builder (C3), a wide-BVH collapser (C4) and a
// CWBVH compressor (C5), as specified in spec.md §4.3-§4.5.
//
// The arena-of-indices style (nodes/faces addressed by index rather
// than pointer) follows the teacher's mesh storage
// (engine/storage.go's span-based primitive arena): cache locality and
// trivial serialisation dominate over pointer-graph convenience, per
// spec.md's DESIGN NOTES ("Pointer-graph BVH").
package bvh

import (
	"errors"

	"github.com/jeffamstutz/gatling/linear"
)

// Vertex is the 32-byte per-vertex record of spec.md §3: position,
// unit-length normal and UV.
type Vertex struct {
	Pos    linear.V3
	Normal linear.V3
	UV     [2]float32
}

// Face is the 16-byte per-face record of spec.md §3: three vertex
// indices plus a material index.
type Face struct {
	I0, I1, I2 uint32
	Material   uint32
}

// Indices returns the face's three vertex indices as an array,
// convenient for iteration.
func (f *Face) Indices() [3]uint32 { return [3]uint32{f.I0, f.I1, f.I2} }

// Material is the 32-byte per-material record of spec.md §3.
type Material struct {
	BaseColor [3]float32
	_         float32
	Emissive  [3]float32
	_         float32
}

// IsEmissive reports whether any emissive channel is positive; this
// is the importance-sampling flag derived per spec.md §3.
func (m *Material) IsEmissive() bool {
	return m.Emissive[0] > 0 || m.Emissive[1] > 0 || m.Emissive[2] > 0
}

// ObjectBinningMode selects how many centroid bins the object-split
// evaluation uses.
type ObjectBinningMode int

const (
	// Fixed uses Config.ObjectBinCount bins regardless of face count.
	Fixed ObjectBinningMode = iota
	// Adaptive scales the bin count down for small face ranges
	// (below Config.ObjectBinningThreshold), trading split quality
	// for build speed where it matters least.
	Adaptive
)

// Config exposes the builder's tunables, per spec.md §4.3.
type Config struct {
	FaceBatchSize         int
	LeafMaxFaceCount      int
	FaceIntersectionCost  float32
	ObjectBinningMode     ObjectBinningMode
	ObjectBinningThreshold int
	ObjectBinCount        int
	SpatialBinCount       int
	SpatialReserveFactor  float32
	SpatialSplitAlpha     float32
}

// DefaultConfig returns sensible builder defaults, following the
// engine.DefaultConfig convention used throughout the teacher
// (engine/engine.go).
func DefaultConfig() Config {
	return Config{
		FaceBatchSize:          256,
		LeafMaxFaceCount:       8,
		FaceIntersectionCost:   1.0,
		ObjectBinningMode:      Adaptive,
		ObjectBinningThreshold: 64,
		ObjectBinCount:         32,
		SpatialBinCount:        32,
		SpatialReserveFactor:   1.25,
		SpatialSplitAlpha:      1e-5,
	}
}

const nodeTraversalCost = 1.0

// ErrOutOfReservation is returned by Build when the SBVH's duplicated
// face count would exceed Config.SpatialReserveFactor * len(faces).
var ErrOutOfReservation = errors.New("bvh: spatial-split face reservation exceeded")

// Node is a binary-BVH node (spec.md §3's "Binary BVH node"):
// internal-or-leaf, carrying an AABB plus either two child indices or
// a face range.
type Node struct {
	Bounds linear.AABB
	// Count == 0 marks an interior node: Left and Left+1 are the
	// indices, into BinaryBVH.Nodes, of its two children.
	// Count > 0 marks a leaf: FaceStart:FaceStart+Count is the range,
	// into BinaryBVH.Faces, of its faces.
	Left      int32
	FaceStart int32
	Count     int32
}

// IsLeaf reports whether n is a leaf node.
func (n *Node) IsLeaf() bool { return n.Count > 0 }

// BinaryBVH is the builder's output: a binary BVH over a reorganised
// face buffer (spec.md §4.3's "Output").
type BinaryBVH struct {
	Nodes  []Node
	Faces  []Face
	Bounds linear.AABB
}
