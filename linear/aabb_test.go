// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package linear

import "testing"

func TestEmptyAABBIsInvalid(t *testing.T) {
	b := EmptyAABB()
	if b.Valid() {
		t.Fatalf("EmptyAABB().Valid() = true, want false")
	}
}

func TestExtendGrowsToContainPoint(t *testing.T) {
	b := EmptyAABB()
	b.Extend(&V3{1, 2, 3})
	if !b.Valid() {
		t.Fatalf("Valid() = false after Extend")
	}
	if b.Min != (V3{1, 2, 3}) || b.Max != (V3{1, 2, 3}) {
		t.Fatalf("Min/Max = %v/%v, want both (1,2,3)", b.Min, b.Max)
	}
	b.Extend(&V3{-1, 5, 0})
	if b.Min != (V3{-1, 2, 0}) || b.Max != (V3{1, 5, 3}) {
		t.Fatalf("Min/Max = %v/%v, want (-1,2,0)/(1,5,3)", b.Min, b.Max)
	}
}

func TestUnionCombinesTwoBoxes(t *testing.T) {
	a := EmptyAABB()
	a.Extend(&V3{0, 0, 0})
	a.Extend(&V3{1, 1, 1})
	b := EmptyAABB()
	b.Extend(&V3{2, -1, 0.5})
	a.Union(&b)
	if a.Min != (V3{0, -1, 0}) || a.Max != (V3{2, 1, 1}) {
		t.Fatalf("Union Min/Max = %v/%v, want (0,-1,0)/(2,1,1)", a.Min, a.Max)
	}
}

func TestExtentAndCenter(t *testing.T) {
	b := AABB{Min: V3{0, 0, 0}, Max: V3{2, 4, 6}}
	if e := b.Extent(); e != (V3{2, 4, 6}) {
		t.Fatalf("Extent = %v, want (2,4,6)", e)
	}
	if c := b.Center(); c != (V3{1, 2, 3}) {
		t.Fatalf("Center = %v, want (1,2,3)", c)
	}
}

func TestSurfaceArea(t *testing.T) {
	b := AABB{Min: V3{0, 0, 0}, Max: V3{1, 1, 1}}
	if a := b.SurfaceArea(); a != 6 {
		t.Fatalf("SurfaceArea = %v, want 6", a)
	}
	empty := EmptyAABB()
	if a := empty.SurfaceArea(); a != 0 {
		t.Fatalf("SurfaceArea of empty box = %v, want 0", a)
	}
}

func TestLargestAxis(t *testing.T) {
	b := AABB{Min: V3{0, 0, 0}, Max: V3{1, 5, 2}}
	if a := b.LargestAxis(); a != 1 {
		t.Fatalf("LargestAxis = %d, want 1", a)
	}
	b = AABB{Min: V3{0, 0, 0}, Max: V3{9, 1, 2}}
	if a := b.LargestAxis(); a != 0 {
		t.Fatalf("LargestAxis = %d, want 0", a)
	}
}

func TestClipKeepsRequestedHalf(t *testing.T) {
	b := AABB{Min: V3{0, 0, 0}, Max: V3{10, 10, 10}}
	lo := b.Clip(0, 4, true)
	if lo.Min != (V3{0, 0, 0}) || lo.Max != (V3{4, 10, 10}) {
		t.Fatalf("Clip(keepLower) = %v, want Max.X=4", lo)
	}
	hi := b.Clip(0, 4, false)
	if hi.Min != (V3{4, 0, 0}) || hi.Max != (V3{10, 10, 10}) {
		t.Fatalf("Clip(keepUpper) = %v, want Min.X=4", hi)
	}
	// b itself must be unmodified.
	if b.Min != (V3{0, 0, 0}) || b.Max != (V3{10, 10, 10}) {
		t.Fatalf("Clip mutated receiver: %v", b)
	}
}

func TestRayOctant(t *testing.T) {
	r := Ray{Dir: V3{-1, 2, -3}}
	if o := r.Octant(); o != 1|4 {
		t.Fatalf("Octant = %d, want %d", o, 1|4)
	}
}

func TestRayIntersectAABBHitAndMiss(t *testing.T) {
	b := AABB{Min: V3{-1, -1, -1}, Max: V3{1, 1, 1}}
	hit := Ray{Origin: V3{0, 0, -5}, Dir: V3{0, 0, 1}, TMin: 0, TMax: 1e30}
	if !hit.IntersectAABB(&b) {
		t.Fatalf("expected ray through origin to hit box")
	}
	miss := Ray{Origin: V3{5, 5, -5}, Dir: V3{0, 0, 1}, TMin: 0, TMax: 1e30}
	if miss.IntersectAABB(&b) {
		t.Fatalf("expected ray past box corner to miss")
	}
	behind := Ray{Origin: V3{0, 0, -5}, Dir: V3{0, 0, 1}, TMin: 0, TMax: 1}
	if behind.IntersectAABB(&b) {
		t.Fatalf("expected short TMax to miss box beyond it")
	}
}
