// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package scenefile implements the preprocessor's on-disk scene
// format (C6 of spec.md §4.6): a fixed 256-byte header followed by
// four buffers — CWBVH nodes, faces, vertices and materials — in
// that order, all little-endian. It follows the chunked-binary style
// of gltf's GLB reader/writer (gltf/glb.go), adapted to a single
// fixed header plus flat buffers instead of GLB's JSON+BIN chunk pair.
package scenefile

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/jeffamstutz/gatling/bvh"
	"github.com/jeffamstutz/gatling/linear"
)

func newErr(reason string) error {
	return errors.New("scenefile: " + reason)
}

// HeaderSize is the fixed size, in bytes, of every scene file's header.
const HeaderSize = 256

const headerPayloadSize = 136
const headerReservedSize = HeaderSize - headerPayloadSize

// Header is the file's fixed leading record, laid out exactly per
// spec.md §6's byte-offset table: width@0, height@4, the four
// buffers' offset/size pairs@8..72, the scene AABB@72, the camera
// record@96, reserved@136. There is no magic/version field — the
// table leaves no room for one, so format identification falls to
// the offset/size self-consistency check in check() rather than a
// magic-number comparison (see check's doc comment).
type Header struct {
	Width  uint32
	Height uint32

	NodesOffset, NodesSize         uint64
	FacesOffset, FacesSize         uint64
	VerticesOffset, VerticesSize   uint64
	MaterialsOffset, MaterialsSize uint64

	RootMin, RootMax linear.V3

	CameraOrigin, CameraForward, CameraUp linear.V3
	CameraHFov                            float32

	Reserved [headerReservedSize]byte
}

// Camera is the scene file's baked camera record, derived by the
// render orchestrator (spec.md §4.8) from a camera node's transform.
type Camera struct {
	Origin, Forward, Up linear.V3
	HFov                float32
}

// Scene is the complete, in-memory payload written by Write and
// produced by Read: a compressed wide BVH plus the geometry and
// material buffers it indexes.
type Scene struct {
	Width, Height int
	Nodes         []bvh.CWBVHNode
	Faces         []bvh.Face
	Vertices      []bvh.Vertex
	Materials     []bvh.Material
	Bounds        linear.AABB
	Camera        Camera
}

// wireVertex is the 32-byte on-disk vertex layout of spec.md §4.6:
// pos.x, pos.y, pos.z, uv.u, norm.x, norm.y, norm.z, uv.v. This is not
// bvh.Vertex's own field order (position, normal, UV), so Write and
// Read convert explicitly between the two.
type wireVertex struct {
	PosX, PosY, PosZ float32
	U                float32
	NormX, NormY, NormZ float32
	V                float32
}

func toWire(v *bvh.Vertex) wireVertex {
	return wireVertex{
		PosX: v.Pos[0], PosY: v.Pos[1], PosZ: v.Pos[2],
		U:     v.UV[0],
		NormX: v.Normal[0], NormY: v.Normal[1], NormZ: v.Normal[2],
		V: v.UV[1],
	}
}

func fromWire(w *wireVertex) bvh.Vertex {
	return bvh.Vertex{
		Pos:    linear.V3{w.PosX, w.PosY, w.PosZ},
		Normal: linear.V3{w.NormX, w.NormY, w.NormZ},
		UV:     [2]float32{w.U, w.V},
	}
}

// Write serialises s to w as a complete scene file. Buffer offsets are
// assigned monotonically (nodes, faces, vertices, materials), each
// immediately following the previous buffer's exact byte length, per
// spec.md's "Vertex, face, node, material buffer offsets... are
// monotonically non-overlapping" invariant.
func Write(w io.Writer, s *Scene) error {
	const (
		nodeSize = 80
		faceSize = 16
		vertSize = 32
		matSize  = 32
	)
	h := Header{
		Width:  uint32(s.Width),
		Height: uint32(s.Height),

		RootMin: s.Bounds.Min,
		RootMax: s.Bounds.Max,

		CameraOrigin:  s.Camera.Origin,
		CameraForward: s.Camera.Forward,
		CameraUp:      s.Camera.Up,
		CameraHFov:    s.Camera.HFov,
	}
	off := uint64(HeaderSize)
	h.NodesOffset, h.NodesSize = off, uint64(len(s.Nodes))*nodeSize
	off += h.NodesSize
	h.FacesOffset, h.FacesSize = off, uint64(len(s.Faces))*faceSize
	off += h.FacesSize
	h.VerticesOffset, h.VerticesSize = off, uint64(len(s.Vertices))*vertSize
	off += h.VerticesSize
	h.MaterialsOffset, h.MaterialsSize = off, uint64(len(s.Materials))*matSize

	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return newErr("write header: " + err.Error())
	}
	if err := binary.Write(w, binary.LittleEndian, s.Nodes); err != nil {
		return newErr("write nodes: " + err.Error())
	}
	if err := binary.Write(w, binary.LittleEndian, s.Faces); err != nil {
		return newErr("write faces: " + err.Error())
	}
	wire := make([]wireVertex, len(s.Vertices))
	for i := range s.Vertices {
		wire[i] = toWire(&s.Vertices[i])
	}
	if err := binary.Write(w, binary.LittleEndian, wire); err != nil {
		return newErr("write vertices: " + err.Error())
	}
	if err := binary.Write(w, binary.LittleEndian, s.Materials); err != nil {
		return newErr("write materials: " + err.Error())
	}
	return nil
}

// Read parses a complete scene file from r, which must support
// io.Reader (the buffers are consumed sequentially; no seeking back
// is required).
func Read(r io.Reader) (*Scene, error) {
	var h Header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, newErr("read header: " + err.Error())
	}
	if err := h.check(); err != nil {
		return nil, err
	}

	s := &Scene{
		Width:  int(h.Width),
		Height: int(h.Height),
		Bounds: linear.AABB{Min: h.RootMin, Max: h.RootMax},
		Camera: Camera{
			Origin:  h.CameraOrigin,
			Forward: h.CameraForward,
			Up:      h.CameraUp,
			HFov:    h.CameraHFov,
		},
	}

	s.Nodes = make([]bvh.CWBVHNode, h.NodesSize/80)
	if err := binary.Read(r, binary.LittleEndian, s.Nodes); err != nil {
		return nil, newErr("read nodes: " + err.Error())
	}
	s.Faces = make([]bvh.Face, h.FacesSize/16)
	if err := binary.Read(r, binary.LittleEndian, s.Faces); err != nil {
		return nil, newErr("read faces: " + err.Error())
	}
	wire := make([]wireVertex, h.VerticesSize/32)
	if err := binary.Read(r, binary.LittleEndian, wire); err != nil {
		return nil, newErr("read vertices: " + err.Error())
	}
	s.Vertices = make([]bvh.Vertex, len(wire))
	for i := range wire {
		s.Vertices[i] = fromWire(&wire[i])
	}
	s.Materials = make([]bvh.Material, h.MaterialsSize/32)
	if err := binary.Read(r, binary.LittleEndian, s.Materials); err != nil {
		return nil, newErr("read materials: " + err.Error())
	}
	return s, nil
}

// check validates h's buffer layout. The header carries no magic
// number (spec.md §6's byte-offset table reserves no field for one),
// so a file that fails to parse as a scene file is instead caught
// here: any non-scene-file input overwhelmingly fails to produce four
// monotonically contiguous buffer offsets starting at HeaderSize.
func (h *Header) check() error {
	offs := []struct{ off, size uint64 }{
		{h.NodesOffset, h.NodesSize},
		{h.FacesOffset, h.FacesSize},
		{h.VerticesOffset, h.VerticesSize},
		{h.MaterialsOffset, h.MaterialsSize},
	}
	want := uint64(HeaderSize)
	for _, b := range offs {
		if b.off != want {
			return newErr("buffer offsets are not monotonically contiguous")
		}
		want += b.size
	}
	return nil
}
