// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package swgpu

import (
	"fmt"
	"log"

	"github.com/jeffamstutz/gatling/device"
	"github.com/jeffamstutz/gatling/internal/handle"
)

// block identifies which Begin*/End* pair a cmdBufferData is
// currently inside, mirroring driver/core.go's CmdBuffer usage
// contract (BeginWork/EndWork and BeginBlit/EndBlit must not nest).
type block int

const (
	blockNone block = iota
	blockWork
	blockBlit
)

type cmdBufferData struct {
	dev     *Device
	began   bool
	block   block
	pipelnH *pipelineHandle
	tableH  *descTableHandle
	heapCpy []int

	// transitions records every implicit/explicit transition applied
	// during recording, for tests to inspect (spec.md invariant 6).
	transitions []device.Transition
	barriers    []device.Barrier

	timestamps []int
}

type cmdBufferHandle struct {
	dev *Device
	h   handle.Handle
}

func (c *cmdBufferHandle) get() *cmdBufferData {
	v, err := c.dev.cmdBufs.Get(c.h)
	if err != nil {
		return nil
	}
	return *v
}

func (c *cmdBufferHandle) Destroy() {
	if err := c.dev.cmdBufs.Free(c.h); err != nil {
		log.Printf("swgpu: double-destroy of command buffer handle (ignored)")
	}
}

func (c *cmdBufferHandle) Begin() error {
	d := c.get()
	if d == nil {
		return device.ErrNoDevice
	}
	*d = cmdBufferData{dev: d.dev}
	d.began = true
	return nil
}

func (c *cmdBufferHandle) BeginWork(wait bool) {
	d := c.get()
	if d == nil || !d.began {
		return
	}
	d.block = blockWork
}

func (c *cmdBufferHandle) SetPipeline(p device.Pipeline) {
	d := c.get()
	if d == nil {
		return
	}
	ph, _ := p.(*pipelineHandle)
	d.pipelnH = ph
}

func (c *cmdBufferHandle) SetDescTable(t device.DescTable, heapCopy []int) {
	d := c.get()
	if d == nil {
		return
	}
	th, _ := t.(*descTableHandle)
	d.tableH = th
	d.heapCpy = append([]int(nil), heapCopy...)
}

func (c *cmdBufferHandle) PushConstants(data []byte) {}

// Dispatch validates the dispatch bounds against the device's limits,
// resolves the implicit image-layout transitions required by every
// currently bound DImage/DTexture slot (spec.md §4.2's "Implicit
// image-layout transitions for shader access"), and records them.
// Since swgpu does not interpret SPIR-V, no actual kernel work runs;
// the traversal package performs the equivalent math directly against
// bvh.CompressedBVH.
func (c *cmdBufferHandle) Dispatch(x, y, z int) {
	d := c.get()
	if d == nil || d.block != blockWork {
		return
	}
	lim := d.dev.limits.MaxDispatch
	if x < 0 || y < 0 || z < 0 || x > lim[0] || y > lim[1] || z > lim[2] {
		log.Printf("swgpu: dispatch(%d,%d,%d) exceeds MaxDispatch %v (ignored)", x, y, z, lim)
		return
	}
	if d.tableH == nil {
		return
	}
	td := d.tableH.get()
	if td == nil {
		return
	}
	for hi, hh := range td.heaps {
		hd := hh.get()
		if hd == nil || hi >= len(d.heapCpy) {
			continue
		}
		cpy := d.heapCpy[hi]
		if cpy < 0 || cpy >= len(hd.copies) {
			continue
		}
		slots := hd.copies[cpy]
		for _, desc := range hd.layout {
			if desc.Type != device.DImage && desc.Type != device.DTexture {
				continue
			}
			sampled := desc.Type == device.DTexture
			for _, w := range slots.images[desc.Nr] {
				vh, ok := w.iv.(*imageViewHandle)
				if !ok {
					continue
				}
				vd := vh.get()
				if vd == nil {
					continue
				}
				if tr, changed := vd.state.Resolve(w.iv, sampled); changed {
					d.transitions = append(d.transitions, tr)
				}
			}
		}
	}
}

func (c *cmdBufferHandle) EndWork() {
	d := c.get()
	if d == nil {
		return
	}
	d.block = blockNone
}

func (c *cmdBufferHandle) BeginBlit(wait bool) {
	d := c.get()
	if d == nil || !d.began {
		return
	}
	d.block = blockBlit
}

func (c *cmdBufferHandle) CopyBuffer(cp *device.BufferCopy) {
	from, ok1 := cp.From.(*bufferHandle)
	to, ok2 := cp.To.(*bufferHandle)
	if !ok1 || !ok2 {
		return
	}
	fd, td := from.get(), to.get()
	if fd == nil || td == nil {
		return
	}
	copy(td.data[cp.ToOff:cp.ToOff+cp.Size], fd.data[cp.FromOff:cp.FromOff+cp.Size])
}

func (c *cmdBufferHandle) CopyImage(cp *device.ImageCopy) {}

func (c *cmdBufferHandle) CopyBufToImg(cp *device.BufImgCopy) {}

func (c *cmdBufferHandle) CopyImgToBuf(cp *device.BufImgCopy) {}

func (c *cmdBufferHandle) Fill(buf device.Buffer, off, size int64, value byte) {
	bh, ok := buf.(*bufferHandle)
	if !ok {
		return
	}
	bd := bh.get()
	if bd == nil {
		return
	}
	region := bd.data[off : off+size]
	for i := range region {
		region[i] = value
	}
}

func (c *cmdBufferHandle) Barrier(b []device.Barrier) {
	d := c.get()
	if d == nil {
		return
	}
	d.barriers = append(d.barriers, b...)
}

func (c *cmdBufferHandle) Transition(t []device.Transition) {
	d := c.get()
	if d == nil {
		return
	}
	for _, tr := range t {
		vh, ok := tr.IView.(*imageViewHandle)
		if ok {
			if vd := vh.get(); vd != nil {
				vd.state.Layout = tr.LayoutAfter
				vd.state.Access = tr.AccessAfter
			}
		}
		d.transitions = append(d.transitions, tr)
	}
}

func (c *cmdBufferHandle) EndBlit() {
	d := c.get()
	if d == nil {
		return
	}
	d.block = blockNone
}

func (c *cmdBufferHandle) ResetTimestamps(n int) {
	d := c.get()
	if d == nil {
		return
	}
	d.timestamps = make([]int, n)
}

func (c *cmdBufferHandle) WriteTimestamp(index int) {
	d := c.get()
	if d == nil || index < 0 || index >= len(d.timestamps) {
		return
	}
	d.timestamps[index] = index + 1
}

func (c *cmdBufferHandle) CopyTimestamps(dst device.Buffer, dstOff int64, first, n int) {
	bh, ok := dst.(*bufferHandle)
	if !ok {
		return
	}
	bd := bh.get()
	if bd == nil || first < 0 || first+n > len(c.get().timestamps) {
		return
	}
	for i := 0; i < n; i++ {
		off := dstOff + int64(i)*8
		if off+8 > int64(len(bd.data)) {
			break
		}
		v := uint64(c.get().timestamps[first+i])
		for b := 0; b < 8; b++ {
			bd.data[off+int64(b)] = byte(v >> (8 * b))
		}
	}
}

func (c *cmdBufferHandle) End() error {
	d := c.get()
	if d == nil {
		return device.ErrNoDevice
	}
	if d.block != blockNone {
		return fmt.Errorf("swgpu: End called with an unterminated Begin%s block", blockName(d.block))
	}
	d.began = false
	return nil
}

func (c *cmdBufferHandle) Reset() error {
	d := c.get()
	if d == nil {
		return device.ErrNoDevice
	}
	*d = cmdBufferData{dev: d.dev}
	return nil
}

func blockName(b block) string {
	switch b {
	case blockWork:
		return "Work"
	case blockBlit:
		return "Blit"
	default:
		return ""
	}
}

func (d *Device) NewCmdBuffer() (device.CmdBuffer, error) {
	h := d.cmdBufs.Create(&cmdBufferData{dev: d})
	return &cmdBufferHandle{dev: d, h: h}, nil
}

// Submit executes every command buffer in cb, in order, on the
// calling goroutine: swgpu has no real device queue to race against,
// so by the time Submit returns, every recorded command has already
// taken effect (immediate execution at Record time for copies/fills,
// already applied when CopyBuffer/Fill/Dispatch/Transition were
// called). Submit's only remaining job is to validate that every
// buffer was properly Begin/End'd and to signal f.
func (d *Device) Submit(cb []device.CmdBuffer, f device.Fence) error {
	for _, b := range cb {
		bh, ok := b.(*cmdBufferHandle)
		if !ok {
			return device.ErrNoDevice
		}
		bd := bh.get()
		if bd == nil || bd.began {
			return fmt.Errorf("swgpu: submitted command buffer was not properly ended")
		}
	}
	if f != nil {
		fh, ok := f.(*fenceHandle)
		if !ok {
			return device.ErrNoDevice
		}
		fd := fh.get()
		if fd == nil {
			return device.ErrNoDevice
		}
		fd.signalled = true
	}
	return nil
}
