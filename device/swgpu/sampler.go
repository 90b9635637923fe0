// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package swgpu

import (
	"log"

	"github.com/jeffamstutz/gatling/device"
	"github.com/jeffamstutz/gatling/internal/handle"
)

type samplerData struct {
	spln device.Sampling
}

type samplerHandle struct {
	dev *Device
	h   handle.Handle
}

func (s *samplerHandle) Destroy() {
	if err := s.dev.samplers.Free(s.h); err != nil {
		log.Printf("swgpu: double-destroy of sampler handle (ignored)")
	}
}

// NewSampler creates a new sampler. Every address mode swgpu supports
// maps onto device.AddrMode's three values directly; spec.md §4.2's
// "clamp-to-black" policy is enforced by device.AClampToBlack already
// being the only clamp variant this abstraction exposes (there is no
// separate border-color parameter to collapse).
func (d *Device) NewSampler(spln *device.Sampling) (device.Sampler, error) {
	h := d.samplers.Create(&samplerData{spln: *spln})
	return &samplerHandle{dev: d, h: h}, nil
}
