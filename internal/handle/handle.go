// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package handle implements a versioned, generation-tagged handle
// store over a contiguous slab of slots.
//
// A Handle packs a slot index and a generation counter into a single
// 64-bit value. Looking up a handle whose generation does not match
// the slot's current generation fails with ErrStale rather than
// panicking or returning stale data; this is the mechanism that makes
// handles safe to hand out to callers that may outlive the resource
// they refer to (the classic ABA problem).
package handle

import (
	"errors"

	"github.com/jeffamstutz/gatling/internal/bitm"
)

// ErrStale is returned by Store.Get/Store.Free when the handle's
// generation does not match the slot's current generation, or when
// the slot was never allocated.
var ErrStale = errors.New("handle: stale or invalid handle")

const (
	genBits  = 30
	genMask  = 1<<genBits - 1
	slotBits = 32
	slotMask = 1<<slotBits - 1
)

// Handle is an opaque 64-bit reference: 32 bits of slot index, 30
// bits of generation, 2 spare bits (reserved, always zero).
type Handle uint64

// Nil is the handle that no Store ever allocates.
const Nil Handle = 0

// Slot returns the handle's slot index.
func (h Handle) Slot() uint32 { return uint32(h & slotMask) }

// Generation returns the handle's generation tag.
func (h Handle) Generation() uint32 { return uint32((h >> slotBits) & genMask) }

func pack(slot, gen uint32) Handle {
	return Handle(slot&slotMask) | Handle(gen&genMask)<<slotBits
}

// Store is a slab of fixed-stride slots of type T, each guarded by a
// generation counter. The slab never shrinks; freed slots return to a
// free list and their generation is incremented so that handles
// obtained before the free become stale.
//
// A Store is not safe for concurrent use: per spec.md §5, handle
// stores are only ever touched from the single-threaded scheduler of
// the device that owns them.
type Store[T any] struct {
	slots []slot[T]
	used  bitm.Bitm[uint32]
	free  []uint32
}

type slot[T any] struct {
	val T
	gen uint32
}

// New creates an empty store.
func New[T any]() *Store[T] { return &Store[T]{} }

// Create allocates a slot, initializes it with val and returns a
// Handle identifying it. The slab grows (amortized O(1)) whenever no
// free slot is available.
func (s *Store[T]) Create(val T) Handle {
	var idx uint32
	if len(s.free) > 0 {
		idx = s.free[len(s.free)-1]
		s.free = s.free[:len(s.free)-1]
	} else {
		idx = uint32(len(s.slots))
		s.slots = append(s.slots, slot[T]{})
		s.used.Grow(1)
	}
	s.used.Set(int(idx))
	if pack(idx, s.slots[idx].gen) == Nil {
		s.slots[idx].gen++
	}
	s.slots[idx].val = val
	return pack(idx, s.slots[idx].gen)
}

// Get returns a pointer to the value referred to by h. The pointer is
// valid only until the next Create/Free call on s, since Create may
// reallocate the backing slab.
func (s *Store[T]) Get(h Handle) (*T, error) {
	idx := h.Slot()
	if !s.valid(h) {
		return nil, ErrStale
	}
	return &s.slots[idx].val, nil
}

// Free releases the slot referred to by h, bumping its generation so
// that h (and any copy of it) becomes stale. Freeing an already-stale
// or out-of-range handle returns ErrStale and has no other effect;
// this makes double-destruction a non-fatal, idempotent error as
// required by spec.md's Lifecycle invariant.
func (s *Store[T]) Free(h Handle) error {
	if !s.valid(h) {
		return ErrStale
	}
	idx := h.Slot()
	s.used.Unset(int(idx))
	s.slots[idx].gen = (s.slots[idx].gen + 1) & genMask
	s.slots[idx].val = *new(T)
	s.free = append(s.free, idx)
	return nil
}

// valid reports whether h refers to a currently allocated slot whose
// generation matches.
func (s *Store[T]) valid(h Handle) bool {
	idx := h.Slot()
	if idx >= uint32(len(s.slots)) {
		return false
	}
	if !s.used.IsSet(int(idx)) {
		return false
	}
	return s.slots[idx].gen == h.Generation()
}

// Len returns the number of slots ever grown into the slab (including
// freed ones).
func (s *Store[T]) Len() int { return len(s.slots) }

// Live returns the number of currently allocated (non-freed) slots.
func (s *Store[T]) Live() int { return len(s.slots) - len(s.free) }
