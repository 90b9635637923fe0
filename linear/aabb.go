// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package linear

import "math"

// AABB is an axis-aligned bounding box defined by its
// minimum and maximum corners.
// The zero value is a degenerate box holding only the origin;
// EmptyAABB returns the inverted (empty) box that is the
// identity element of Extend/Union.
type AABB struct {
	Min V3
	Max V3
}

// EmptyAABB returns an inverted box such that Extend/Union
// with any finite point or box yields that point/box.
func EmptyAABB() AABB {
	return AABB{
		Min: V3{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32},
		Max: V3{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32},
	}
}

// Valid reports whether the box contains at least one point.
func (b *AABB) Valid() bool {
	return b.Min[0] <= b.Max[0] && b.Min[1] <= b.Max[1] && b.Min[2] <= b.Max[2]
}

// Extend grows b so that it contains p.
func (b *AABB) Extend(p *V3) {
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] {
			b.Min[i] = p[i]
		}
		if p[i] > b.Max[i] {
			b.Max[i] = p[i]
		}
	}
}

// Union sets b to contain both b and o.
func (b *AABB) Union(o *AABB) {
	if !o.Valid() {
		return
	}
	b.Extend(&o.Min)
	b.Extend(&o.Max)
}

// Extent returns the box's per-axis extent (Max - Min).
func (b *AABB) Extent() V3 {
	var e V3
	e.Sub(&b.Max, &b.Min)
	return e
}

// Center returns the box's midpoint.
func (b *AABB) Center() V3 {
	var c V3
	c.Add(&b.Min, &b.Max)
	c.Scale(0.5, &c)
	return c
}

// SurfaceArea returns the box's surface area.
// It returns 0 for an invalid (empty) box.
func (b *AABB) SurfaceArea() float32 {
	if !b.Valid() {
		return 0
	}
	e := b.Extent()
	return 2 * (e[0]*e[1] + e[1]*e[2] + e[2]*e[0])
}

// LargestAxis returns the index (0, 1 or 2) of the box's
// longest extent.
func (b *AABB) LargestAxis() int {
	e := b.Extent()
	axis := 0
	if e[1] > e[axis] {
		axis = 1
	}
	if e[2] > e[axis] {
		axis = 2
	}
	return axis
}

// Clip intersects b with a half-space bounded by the plane
// perpendicular to axis at the given position, keeping
// either the lower (keepLower true) or upper portion.
// It returns the clipped box; b is not modified.
func (b *AABB) Clip(axis int, pos float32, keepLower bool) AABB {
	c := *b
	if keepLower {
		if pos < c.Max[axis] {
			c.Max[axis] = pos
		}
	} else {
		if pos > c.Min[axis] {
			c.Min[axis] = pos
		}
	}
	return c
}

// Ray is a ray defined by an origin, a (not necessarily
// normalized) direction and a parametric range [TMin, TMax].
type Ray struct {
	Origin V3
	Dir    V3
	TMin   float32
	TMax   float32
}

// InvDir returns the component-wise reciprocal of r.Dir.
// Division by zero produces +/-Inf, which is the behavior
// relied upon by slab-test AABB intersection.
func (r *Ray) InvDir() V3 {
	return V3{1 / r.Dir[0], 1 / r.Dir[1], 1 / r.Dir[2]}
}

// Octant returns a 3-bit mask with bit i set when the ray's
// direction is negative along axis i. It is used to select
// near/far children during BVH traversal.
func (r *Ray) Octant() int {
	var o int
	if r.Dir[0] < 0 {
		o |= 1
	}
	if r.Dir[1] < 0 {
		o |= 2
	}
	if r.Dir[2] < 0 {
		o |= 4
	}
	return o
}

// IntersectAABB performs a slab test of r against b and
// returns whether the ray intersects the box within
// [r.TMin, r.TMax].
func (r *Ray) IntersectAABB(b *AABB) bool {
	inv := r.InvDir()
	tmin, tmax := r.TMin, r.TMax
	for i := 0; i < 3; i++ {
		t0 := (b.Min[i] - r.Origin[i]) * inv[i]
		t1 := (b.Max[i] - r.Origin[i]) * inv[i]
		if inv[i] < 0 {
			t0, t1 = t1, t0
		}
		if t0 > tmin {
			tmin = t0
		}
		if t1 < tmax {
			tmax = t1
		}
		if tmin > tmax {
			return false
		}
	}
	return true
}
