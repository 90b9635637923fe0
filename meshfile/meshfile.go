// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package meshfile implements the preprocessor CLI's native input
// format: a flat binary dump of the triangle-mesh Vertex/Face buffers
// spec.md §3's Data Model already defines, independent of any
// third-party asset-interchange format. Loading a mesh through a
// glTF/OBJ/FBX importer is spec.md §1's explicit Non-goal ("mesh
// loading via third-party asset importers"); this package's wire
// format is instead lifted directly from scenefile's own buffer
// layout (scenefile/scenefile.go) so that "gp"'s input and output
// stages share one little-endian, header-plus-buffers convention
// instead of introducing a second one.
package meshfile

import (
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/jeffamstutz/gatling/bvh"
	"github.com/jeffamstutz/gatling/linear"
)

func newErr(reason string) error { return errors.New("meshfile: " + reason) }

// headerSize is the fixed size, in bytes, of every mesh file's header:
// a face count and a vertex count, each a little-endian uint32.
const headerSize = 8

type header struct {
	FaceCount uint32
	VertCount uint32
}

// wireFace is the 16-byte on-disk face layout: three vertex indices
// plus a material index, mirroring bvh.Face field-for-field.
type wireFace struct {
	I0, I1, I2 uint32
	Material   uint32
}

// wireVertex is the 32-byte on-disk vertex layout: pos.x, pos.y,
// pos.z, uv.u, norm.x, norm.y, norm.z, uv.v — the same field order
// scenefile.go's wireVertex uses, so the two packages' buffers are
// byte-compatible.
type wireVertex struct {
	PosX, PosY, PosZ float32
	U                float32
	NormX, NormY, NormZ float32
	V                float32
}

// Write serialises faces and verts to w as a complete mesh file:
// header, then the face buffer, then the vertex buffer.
func Write(w io.Writer, faces []bvh.Face, verts []bvh.Vertex) error {
	h := header{FaceCount: uint32(len(faces)), VertCount: uint32(len(verts))}
	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return newErr("write header: " + err.Error())
	}
	wf := make([]wireFace, len(faces))
	for i := range faces {
		wf[i] = wireFace{I0: faces[i].I0, I1: faces[i].I1, I2: faces[i].I2, Material: faces[i].Material}
	}
	if err := binary.Write(w, binary.LittleEndian, wf); err != nil {
		return newErr("write faces: " + err.Error())
	}
	wv := make([]wireVertex, len(verts))
	for i := range verts {
		wv[i] = wireVertex{
			PosX: verts[i].Pos[0], PosY: verts[i].Pos[1], PosZ: verts[i].Pos[2],
			U:     verts[i].UV[0],
			NormX: verts[i].Normal[0], NormY: verts[i].Normal[1], NormZ: verts[i].Normal[2],
			V: verts[i].UV[1],
		}
	}
	if err := binary.Write(w, binary.LittleEndian, wv); err != nil {
		return newErr("write vertices: " + err.Error())
	}
	return nil
}

// Read parses a complete mesh file from r.
func Read(r io.Reader) ([]bvh.Face, []bvh.Vertex, error) {
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, nil, newErr("read header: " + err.Error())
	}
	wf := make([]wireFace, h.FaceCount)
	if err := binary.Read(r, binary.LittleEndian, wf); err != nil {
		return nil, nil, newErr("read faces: " + err.Error())
	}
	wv := make([]wireVertex, h.VertCount)
	if err := binary.Read(r, binary.LittleEndian, wv); err != nil {
		return nil, nil, newErr("read vertices: " + err.Error())
	}
	if len(wf) == 0 {
		return nil, nil, newErr("no triangle faces found")
	}

	faces := make([]bvh.Face, len(wf))
	for i := range wf {
		faces[i] = bvh.Face{I0: wf[i].I0, I1: wf[i].I1, I2: wf[i].I2, Material: wf[i].Material}
	}
	verts := make([]bvh.Vertex, len(wv))
	for i := range wv {
		verts[i] = bvh.Vertex{
			Pos:    linear.V3{wv[i].PosX, wv[i].PosY, wv[i].PosZ},
			Normal: linear.V3{wv[i].NormX, wv[i].NormY, wv[i].NormZ},
			UV:     [2]float32{wv[i].U, wv[i].V},
		}
	}
	return faces, verts, nil
}

// Load opens path and reads a complete mesh file from it.
func Load(path string) ([]bvh.Face, []bvh.Vertex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, newErr("open " + path + ": " + err.Error())
	}
	defer f.Close()
	return Read(f)
}
