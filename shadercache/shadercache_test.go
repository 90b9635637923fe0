// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package shadercache

import (
	"testing"

	"github.com/jeffamstutz/gatling/device"
	_ "github.com/jeffamstutz/gatling/device/swgpu"
	"github.com/jeffamstutz/gatling/materialcompiler"
)

func openDevice(t *testing.T) device.Device {
	t.Helper()
	for _, drv := range device.Drivers() {
		if drv.Name() == "swgpu" {
			dev, err := drv.Open()
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			return dev
		}
	}
	t.Fatalf("swgpu driver not registered")
	return nil
}

func TestGetBuildsOnMiss(t *testing.T) {
	dev := openDevice(t)
	fake := &materialcompiler.Fake{}
	c := New(dev, fake)

	set := materialcompiler.MaterialSet{Digest: 1, Count: 2}
	key := Key{AOV: 0, Digest: 1}
	e, err := c.Get(set, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e.Pipeline == nil || e.Table == nil || e.Heap == nil || e.Code == nil {
		t.Fatalf("entry missing a device resource: %+v", e)
	}
	if fake.Calls != 1 {
		t.Fatalf("Calls = %d, want 1", fake.Calls)
	}
}

func TestGetCachesByKey(t *testing.T) {
	dev := openDevice(t)
	fake := &materialcompiler.Fake{}
	c := New(dev, fake)

	set := materialcompiler.MaterialSet{Digest: 1}
	key := Key{AOV: 0, Digest: 1}
	first, err := c.Get(set, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	second, err := c.Get(set, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if first != second {
		t.Fatalf("Get returned a different entry for an unchanged key")
	}
	if fake.Calls != 1 {
		t.Fatalf("Calls = %d, want 1 (second Get should be a cache hit)", fake.Calls)
	}
}

func TestGetRebuildsOnDigestChange(t *testing.T) {
	dev := openDevice(t)
	fake := &materialcompiler.Fake{}
	c := New(dev, fake)

	set1 := materialcompiler.MaterialSet{Digest: 1}
	set2 := materialcompiler.MaterialSet{Digest: 2}
	if _, err := c.Get(set1, Key{Digest: 1}); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := c.Get(set2, Key{Digest: 2}); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fake.Calls != 2 {
		t.Fatalf("Calls = %d, want 2 (different digests are different keys)", fake.Calls)
	}
	if len(c.entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(c.entries))
	}
}

// TestGetCompileFailureRetainsPreviousCache covers spec.md §7's
// "shader-cache miss for one material... previous cache retained"
// recovery policy.
func TestGetCompileFailureRetainsPreviousCache(t *testing.T) {
	dev := openDevice(t)
	fake := &materialcompiler.Fake{FailDigests: map[uint64]bool{2: true}}
	c := New(dev, fake)

	key1 := Key{Digest: 1}
	good, err := c.Get(materialcompiler.MaterialSet{Digest: 1}, key1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	key2 := Key{Digest: 2}
	_, err = c.Get(materialcompiler.MaterialSet{Digest: 2}, key2)
	if err != ErrCompileFailed {
		t.Fatalf("err = %v, want ErrCompileFailed", err)
	}

	// key1's entry must be untouched by key2's failure.
	again, err := c.Get(materialcompiler.MaterialSet{Digest: 1}, key1)
	if err != nil || again != good {
		t.Fatalf("previous cache entry was disturbed by an unrelated compile failure")
	}
}

func TestInvalidateDropsAllEntries(t *testing.T) {
	dev := openDevice(t)
	fake := &materialcompiler.Fake{}
	c := New(dev, fake)
	c.Get(materialcompiler.MaterialSet{Digest: 1}, Key{Digest: 1})
	c.Get(materialcompiler.MaterialSet{Digest: 2}, Key{Digest: 2})
	if len(c.entries) != 2 {
		t.Fatalf("setup: len(entries) = %d, want 2", len(c.entries))
	}
	c.Invalidate()
	if len(c.entries) != 0 {
		t.Fatalf("Invalidate left %d entries", len(c.entries))
	}
	// A rebuild after Invalidate must re-invoke the compiler.
	c.Get(materialcompiler.MaterialSet{Digest: 1}, Key{Digest: 1})
	if fake.Calls != 3 {
		t.Fatalf("Calls = %d, want 3", fake.Calls)
	}
}
