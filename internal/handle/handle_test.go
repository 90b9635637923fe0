// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package handle

import (
	"errors"
	"testing"
)

func TestCreateGetFree(t *testing.T) {
	s := New[int]()
	h := s.Create(42)
	v, err := s.Get(h)
	if err != nil {
		t.Fatalf("Get: unexpected error %v", err)
	}
	if *v != 42 {
		t.Fatalf("Get: got %d, want 42", *v)
	}
	if err := s.Free(h); err != nil {
		t.Fatalf("Free: unexpected error %v", err)
	}
	if _, err := s.Get(h); !errors.Is(err, ErrStale) {
		t.Fatalf("Get after Free: got %v, want ErrStale", err)
	}
}

// TestABASafety is S5 from spec.md §8: allocate H1, free it, allocate
// H2 that reuses the slot. Get(H1) must report stale; Get(H2) must
// succeed.
func TestABASafety(t *testing.T) {
	s := New[string]()
	h1 := s.Create("first")
	if err := s.Free(h1); err != nil {
		t.Fatalf("Free(h1): %v", err)
	}
	h2 := s.Create("second")
	if h1.Slot() != h2.Slot() {
		t.Skip("slot was not reused; free-list reuse is not guaranteed across implementations")
	}
	if h1.Generation() == h2.Generation() {
		t.Fatal("h1 and h2 share a generation despite reusing the same slot")
	}
	if _, err := s.Get(h1); !errors.Is(err, ErrStale) {
		t.Fatalf("Get(h1): got %v, want ErrStale", err)
	}
	v, err := s.Get(h2)
	if err != nil {
		t.Fatalf("Get(h2): unexpected error %v", err)
	}
	if *v != "second" {
		t.Fatalf("Get(h2): got %q, want %q", *v, "second")
	}
}

func TestDoubleFreeIsNonFatal(t *testing.T) {
	s := New[int]()
	h := s.Create(1)
	if err := s.Free(h); err != nil {
		t.Fatalf("first Free: %v", err)
	}
	if err := s.Free(h); !errors.Is(err, ErrStale) {
		t.Fatalf("second Free: got %v, want ErrStale", err)
	}
}

func TestStaleCrossKindHandle(t *testing.T) {
	a := New[int]()
	b := New[int]()
	h := a.Create(7)
	if _, err := b.Get(h); !errors.Is(err, ErrStale) {
		t.Fatalf("Get on wrong store: got %v, want ErrStale", err)
	}
}

func TestGrowBeyondCapacity(t *testing.T) {
	s := New[int]()
	var hs []Handle
	for i := 0; i < 1000; i++ {
		hs = append(hs, s.Create(i))
	}
	for i, h := range hs {
		v, err := s.Get(h)
		if err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		if *v != i {
			t.Fatalf("Get(%d): got %d", i, *v)
		}
	}
}
