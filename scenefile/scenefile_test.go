// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package scenefile

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/jeffamstutz/gatling/bvh"
	"github.com/jeffamstutz/gatling/linear"
)

func sampleScene() *Scene {
	return &Scene{
		Width:  640,
		Height: 480,
		Nodes: []bvh.CWBVHNode{
			{P: linear.V3{0, 0, 0}, E: [3]uint8{127, 127, 127}, IMask: 0},
		},
		Faces: []bvh.Face{
			{I0: 0, I1: 1, I2: 2, Material: 0},
			{I0: 1, I1: 2, I2: 3, Material: 1},
		},
		Vertices: []bvh.Vertex{
			{Pos: linear.V3{0, 0, 0}, Normal: linear.V3{0, 1, 0}, UV: [2]float32{0, 0}},
			{Pos: linear.V3{1, 0, 0}, Normal: linear.V3{0, 1, 0}, UV: [2]float32{1, 0}},
			{Pos: linear.V3{0, 1, 0}, Normal: linear.V3{0, 1, 0}, UV: [2]float32{0, 1}},
			{Pos: linear.V3{1, 1, 0}, Normal: linear.V3{0, 1, 0}, UV: [2]float32{1, 1}},
		},
		Materials: []bvh.Material{
			{BaseColor: [3]float32{1, 0, 0}},
			{BaseColor: [3]float32{0, 1, 0}, Emissive: [3]float32{2, 2, 2}},
		},
		Bounds: linear.AABB{Min: linear.V3{0, 0, 0}, Max: linear.V3{1, 1, 0}},
		Camera: Camera{
			Origin:  linear.V3{0, 0, 5},
			Forward: linear.V3{0, 0, -1},
			Up:      linear.V3{0, 1, 0},
			HFov:    0.9,
		},
	}
}

// TestRoundTrip is invariant 4/5 from spec.md §8: a scene written then
// read back reproduces the same buffers byte-for-byte (field-for-
// field, since vertices are reordered on the wire).
func TestRoundTrip(t *testing.T) {
	in := sampleScene()
	var buf bytes.Buffer
	if err := Write(&buf, in); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if out.Width != in.Width || out.Height != in.Height {
		t.Fatalf("dimensions: got %dx%d, want %dx%d", out.Width, out.Height, in.Width, in.Height)
	}
	if len(out.Nodes) != len(in.Nodes) || len(out.Faces) != len(in.Faces) ||
		len(out.Vertices) != len(in.Vertices) || len(out.Materials) != len(in.Materials) {
		t.Fatalf("buffer lengths mismatch: %+v vs %+v", out, in)
	}
	for i := range in.Faces {
		if out.Faces[i] != in.Faces[i] {
			t.Fatalf("face %d: got %+v, want %+v", i, out.Faces[i], in.Faces[i])
		}
	}
	for i := range in.Vertices {
		if out.Vertices[i] != in.Vertices[i] {
			t.Fatalf("vertex %d: got %+v, want %+v", i, out.Vertices[i], in.Vertices[i])
		}
	}
	for i := range in.Materials {
		if out.Materials[i] != in.Materials[i] {
			t.Fatalf("material %d: got %+v, want %+v", i, out.Materials[i], in.Materials[i])
		}
	}
	if out.Camera != in.Camera {
		t.Fatalf("camera: got %+v, want %+v", out.Camera, in.Camera)
	}
	if out.Bounds != in.Bounds {
		t.Fatalf("bounds: got %+v, want %+v", out.Bounds, in.Bounds)
	}
}

func TestHeaderSizeIsFixed(t *testing.T) {
	in := sampleScene()
	var buf bytes.Buffer
	if err := Write(&buf, in); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data := buf.Bytes()
	if len(data) < HeaderSize {
		t.Fatalf("file shorter than header")
	}
	var h Header
	r := bytes.NewReader(data[:HeaderSize])
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		t.Fatalf("decode header: %v", err)
	}
	if h.NodesOffset != HeaderSize {
		t.Fatalf("NodesOffset: got %d, want %d", h.NodesOffset, HeaderSize)
	}
}

// TestRejectsMalformedHeader covers the no-magic-field design: an
// all-zero header has NodesOffset == 0, which fails the "buffers
// start right after the header" structural check in place of a magic
// comparison.
func TestRejectsMalformedHeader(t *testing.T) {
	buf := bytes.Repeat([]byte{0}, HeaderSize)
	if _, err := Read(bytes.NewReader(buf)); err == nil {
		t.Fatal("Read: expected error for all-zero header")
	}
}

func TestRejectsTruncatedFile(t *testing.T) {
	in := sampleScene()
	var buf bytes.Buffer
	if err := Write(&buf, in); err != nil {
		t.Fatalf("Write: %v", err)
	}
	truncated := buf.Bytes()[:HeaderSize+4]
	if _, err := Read(bytes.NewReader(truncated)); err == nil {
		t.Fatal("Read: expected error for truncated buffer section")
	}
}
