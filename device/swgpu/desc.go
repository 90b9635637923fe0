// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package swgpu

import (
	"log"

	"github.com/jeffamstutz/gatling/device"
	"github.com/jeffamstutz/gatling/internal/handle"
)

type bufWrite struct {
	buf      device.Buffer
	off, size int64
}

type imgWrite struct {
	iv device.ImageView
}

type splrWrite struct {
	splr device.Sampler
}

// copySlots holds one heap copy's bound descriptor data, keyed by
// (binding, array index). A real Vulkan backend (driver/vk/desc.go)
// writes directly into driver-owned descriptor-set memory; swgpu has
// no such memory, so it just keeps the bound values around for
// CmdBuffer.Dispatch's layout-transition walk and for tests to
// inspect.
type copySlots struct {
	buffers  map[int]map[int]bufWrite
	images   map[int]map[int]imgWrite
	samplers map[int]map[int]splrWrite
}

func newCopySlots() copySlots {
	return copySlots{
		buffers:  make(map[int]map[int]bufWrite),
		images:   make(map[int]map[int]imgWrite),
		samplers: make(map[int]map[int]splrWrite),
	}
}

type descHeapData struct {
	layout []device.Descriptor
	copies []copySlots
}

type descHeapHandle struct {
	dev *Device
	h   handle.Handle
}

func (dh *descHeapHandle) get() *descHeapData {
	v, err := dh.dev.heaps.Get(dh.h)
	if err != nil {
		return nil
	}
	return *v
}

func (dh *descHeapHandle) Destroy() {
	if err := dh.dev.heaps.Free(dh.h); err != nil {
		log.Printf("swgpu: double-destroy of descriptor heap handle (ignored)")
	}
}

func (dh *descHeapHandle) New(n int) error {
	d := dh.get()
	if d == nil {
		return device.ErrNoDevice
	}
	if n == len(d.copies) {
		return nil
	}
	if n == 0 {
		d.copies = nil
		return nil
	}
	copies := make([]copySlots, n)
	for i := range copies {
		copies[i] = newCopySlots()
	}
	d.copies = copies
	return nil
}

func (dh *descHeapHandle) SetBuffer(cpy, nr, start int, buf []device.Buffer, off, size []int64) {
	d := dh.get()
	if d == nil || cpy < 0 || cpy >= len(d.copies) {
		return
	}
	m := d.copies[cpy].buffers[nr]
	if m == nil {
		m = make(map[int]bufWrite)
		d.copies[cpy].buffers[nr] = m
	}
	for i := range buf {
		m[start+i] = bufWrite{buf: buf[i], off: off[i], size: size[i]}
	}
}

func (dh *descHeapHandle) SetImage(cpy, nr, start int, iv []device.ImageView) {
	d := dh.get()
	if d == nil || cpy < 0 || cpy >= len(d.copies) {
		return
	}
	m := d.copies[cpy].images[nr]
	if m == nil {
		m = make(map[int]imgWrite)
		d.copies[cpy].images[nr] = m
	}
	for i := range iv {
		m[start+i] = imgWrite{iv: iv[i]}
	}
}

func (dh *descHeapHandle) SetSampler(cpy, nr, start int, splr []device.Sampler) {
	d := dh.get()
	if d == nil || cpy < 0 || cpy >= len(d.copies) {
		return
	}
	m := d.copies[cpy].samplers[nr]
	if m == nil {
		m = make(map[int]splrWrite)
		d.copies[cpy].samplers[nr] = m
	}
	for i := range splr {
		m[start+i] = splrWrite{splr: splr[i]}
	}
}

func (dh *descHeapHandle) Count() int {
	d := dh.get()
	if d == nil {
		return 0
	}
	return len(d.copies)
}

func (d *Device) NewDescHeap(ds []device.Descriptor) (device.DescHeap, error) {
	seen := make(map[int]bool, len(ds))
	for _, desc := range ds {
		if seen[desc.Nr] {
			return nil, device.ErrBindingMismatch
		}
		seen[desc.Nr] = true
	}
	layout := append([]device.Descriptor(nil), ds...)
	h := d.heaps.Create(&descHeapData{layout: layout})
	return &descHeapHandle{dev: d, h: h}, nil
}

type descTableData struct {
	heaps []*descHeapHandle
}

type descTableHandle struct {
	dev *Device
	h   handle.Handle
}

func (t *descTableHandle) get() *descTableData {
	v, err := t.dev.tables.Get(t.h)
	if err != nil {
		return nil
	}
	return *v
}

func (t *descTableHandle) Destroy() {
	if err := t.dev.tables.Free(t.h); err != nil {
		log.Printf("swgpu: double-destroy of descriptor table handle (ignored)")
	}
}

func (d *Device) NewDescTable(dh []device.DescHeap) (device.DescTable, error) {
	heaps := make([]*descHeapHandle, len(dh))
	for i := range dh {
		hh, ok := dh[i].(*descHeapHandle)
		if !ok {
			return nil, device.ErrNoDevice
		}
		heaps[i] = hh
	}
	h := d.tables.Create(&descTableData{heaps: heaps})
	return &descTableHandle{dev: d, h: h}, nil
}
