// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package device

import (
	"errors"
	"fmt"
	"sort"
)

// ErrBindingMismatch is returned by MergeBindings when a pipeline's
// reflected layout names a (binding, index) slot that the caller's
// Bindings does not supply, per spec.md §4.2 ("Missing slots fail with
// BindingMismatch") and §7's error-kind table ("indicates programmer
// error").
var ErrBindingMismatch = errors.New("device: binding mismatch")

// BufferBinding supplies one array slot of a DBuffer/DConstant
// descriptor.
type BufferBinding struct {
	Nr, Index int
	Buf       Buffer
	Off, Size int64
}

// ImageBinding supplies one array slot of a DImage/DTexture
// descriptor. Sampled must be true for a DTexture slot and false for
// a DImage slot; MergeBindings uses it to pick the image layout the
// binding requires (spec.md §4.2's implicit layout transitions).
type ImageBinding struct {
	Nr, Index int
	View      ImageView
	Sampled   bool
}

// SamplerBinding supplies one array slot of a DSampler descriptor.
type SamplerBinding struct {
	Nr, Index int
	Splr      Sampler
}

// Bindings is the caller-supplied resource set matched against a
// pipeline's reflected descriptor layout.
type Bindings struct {
	Buffers  []BufferBinding
	Images   []ImageBinding
	Samplers []SamplerBinding
}

// ResolvedBuffer, ResolvedImage and ResolvedSampler are one write into
// a DescHeap, produced by MergeBindings.
type ResolvedBuffer struct {
	Nr, Index int
	Buf       Buffer
	Off, Size int64
}
type ResolvedImage struct {
	Nr, Index int
	View      ImageView
	Sampled   bool
}
type ResolvedSampler struct {
	Nr, Index int
	Splr      Sampler
}

// WriteBatch is MergeBindings' output: the resolved per-type writes
// ready to hand to DescHeap.SetBuffer/SetImage/SetSampler.
type WriteBatch struct {
	Buffers  []ResolvedBuffer
	Images   []ResolvedImage
	Samplers []ResolvedSampler
}

// expectedSlot is one (binding, index) pair a descriptor layout
// requires to be filled, flattened out of a Descriptor's Len.
type expectedSlot struct {
	descIdx int // index into the layout slice, to recover Type
	nr      int
	index   int
}

// MergeBindings matches a pipeline's reflected descriptor layout
// against the caller-supplied Bindings, validating storage-buffer
// offset alignment, and returns the write-descriptor batch for
// DescHeap.
//
// Per DESIGN NOTES (spec.md §9, "deeply nested descriptor-update loops
// with quadratic scanning"): driver/vk/desc.go's typeOf resolves each
// binding with its own linear scan over the heap's descriptor list.
// Here, the layout's (binding, index) slots are flattened and sorted
// once, each of the three caller-supplied slot lists is sorted once,
// and all four lists are walked together in a single merge pass — the
// mapping from (binding, index) to caller slot is never rescanned, so
// the whole match is O(n log n) instead of O(layout × bindings).
func MergeBindings(layout []Descriptor, b Bindings, align int64) (WriteBatch, error) {
	var expected []expectedSlot
	for di, d := range layout {
		for i := 0; i < d.Len; i++ {
			expected = append(expected, expectedSlot{di, d.Nr, i})
		}
	}
	sort.Slice(expected, func(i, j int) bool { return less(expected[i].nr, expected[i].index, expected[j].nr, expected[j].index) })

	bufs := append([]BufferBinding(nil), b.Buffers...)
	sort.Slice(bufs, func(i, j int) bool { return less(bufs[i].Nr, bufs[i].Index, bufs[j].Nr, bufs[j].Index) })
	imgs := append([]ImageBinding(nil), b.Images...)
	sort.Slice(imgs, func(i, j int) bool { return less(imgs[i].Nr, imgs[i].Index, imgs[j].Nr, imgs[j].Index) })
	splrs := append([]SamplerBinding(nil), b.Samplers...)
	sort.Slice(splrs, func(i, j int) bool { return less(splrs[i].Nr, splrs[i].Index, splrs[j].Nr, splrs[j].Index) })

	var batch WriteBatch
	bi, ii, si := 0, 0, 0
	for _, e := range expected {
		switch layout[e.descIdx].Type {
		case DBuffer, DConstant:
			for bi < len(bufs) && less(bufs[bi].Nr, bufs[bi].Index, e.nr, e.index) {
				bi++
			}
			if bi >= len(bufs) || bufs[bi].Nr != e.nr || bufs[bi].Index != e.index {
				return WriteBatch{}, fmt.Errorf("%w: buffer binding %d index %d", ErrBindingMismatch, e.nr, e.index)
			}
			slot := bufs[bi]
			if align > 0 && slot.Off%align != 0 {
				return WriteBatch{}, fmt.Errorf("%w: buffer binding %d index %d offset %d not aligned to %d",
					ErrBindingMismatch, e.nr, e.index, slot.Off, align)
			}
			batch.Buffers = append(batch.Buffers, ResolvedBuffer{e.nr, e.index, slot.Buf, slot.Off, slot.Size})
		case DImage, DTexture:
			for ii < len(imgs) && less(imgs[ii].Nr, imgs[ii].Index, e.nr, e.index) {
				ii++
			}
			if ii >= len(imgs) || imgs[ii].Nr != e.nr || imgs[ii].Index != e.index {
				return WriteBatch{}, fmt.Errorf("%w: image binding %d index %d", ErrBindingMismatch, e.nr, e.index)
			}
			slot := imgs[ii]
			wantSampled := layout[e.descIdx].Type == DTexture
			if slot.Sampled != wantSampled {
				return WriteBatch{}, fmt.Errorf("%w: image binding %d index %d has wrong layout class", ErrBindingMismatch, e.nr, e.index)
			}
			batch.Images = append(batch.Images, ResolvedImage{e.nr, e.index, slot.View, slot.Sampled})
		case DSampler:
			for si < len(splrs) && less(splrs[si].Nr, splrs[si].Index, e.nr, e.index) {
				si++
			}
			if si >= len(splrs) || splrs[si].Nr != e.nr || splrs[si].Index != e.index {
				return WriteBatch{}, fmt.Errorf("%w: sampler binding %d index %d", ErrBindingMismatch, e.nr, e.index)
			}
			slot := splrs[si]
			batch.Samplers = append(batch.Samplers, ResolvedSampler{e.nr, e.index, slot.Splr})
		}
	}
	return batch, nil
}

func less(nr1, idx1, nr2, idx2 int) bool {
	if nr1 != nr2 {
		return nr1 < nr2
	}
	return idx1 < idx2
}
