// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package swgpu

import (
	"log"

	"github.com/jeffamstutz/gatling/device"
	"github.com/jeffamstutz/gatling/internal/handle"
)

// imageData is a host-memory-backed image: no real texel format
// conversion or tiling is modelled, since nothing downstream of the
// device abstraction (the traversal kernel) reads images through it —
// only the binding/barrier contract needs to be faithful.
type imageData struct {
	pf     device.PixelFmt
	size   device.Dim3D
	layers int
	levels int
	usage  device.Usage
}

type imageHandle struct {
	dev *Device
	h   handle.Handle
}

func (im *imageHandle) get() *imageData {
	v, err := im.dev.images.Get(im.h)
	if err != nil {
		return nil
	}
	return *v
}

func (im *imageHandle) Destroy() {
	if err := im.dev.images.Free(im.h); err != nil {
		log.Printf("swgpu: double-destroy of image handle (ignored)")
	}
}

func (im *imageHandle) NewView(typ device.ViewType, layer, layers, level, levels int) (device.ImageView, error) {
	if im.get() == nil {
		return nil, device.ErrNoDevice
	}
	ivd := &imageViewData{img: im, typ: typ, layer: layer, layers: layers, level: level, levels: levels}
	h := im.dev.views.Create(ivd)
	return &imageViewHandle{dev: im.dev, h: h}, nil
}

// imageViewData carries the device.ImageState that the implicit
// layout-transition algorithm (spec.md §4.2, device.ImageState)
// mutates as the view is bound to successive dispatches.
type imageViewData struct {
	img                      *imageHandle
	typ                      device.ViewType
	layer, layers            int
	level, levels            int
	state                    device.ImageState
}

type imageViewHandle struct {
	dev *Device
	h   handle.Handle
}

func (v *imageViewHandle) get() *imageViewData {
	val, err := v.dev.views.Get(v.h)
	if err != nil {
		return nil
	}
	return *val
}

func (v *imageViewHandle) Destroy() {
	if err := v.dev.views.Free(v.h); err != nil {
		log.Printf("swgpu: double-destroy of image view handle (ignored)")
	}
}

func (d *Device) NewImage(pf device.PixelFmt, size device.Dim3D, layers, levels int, usg device.Usage) (device.Image, error) {
	if size.Width <= 0 || size.Height <= 0 {
		return nil, device.ErrNoDeviceMemory
	}
	if layers < 1 {
		layers = 1
	}
	if levels < 1 {
		levels = 1
	}
	id := &imageData{pf: pf, size: size, layers: layers, levels: levels, usage: usg}
	h := d.images.Create(id)
	return &imageHandle{dev: d, h: h}, nil
}
