// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package swgpu

import (
	"log"

	"github.com/jeffamstutz/gatling/device"
	"github.com/jeffamstutz/gatling/internal/handle"
)

type pipelineData struct {
	state device.CompState
}

type pipelineHandle struct {
	dev *Device
	h   handle.Handle
}

func (p *pipelineHandle) Destroy() {
	if err := p.dev.pipelns.Free(p.h); err != nil {
		log.Printf("swgpu: double-destroy of pipeline handle (ignored)")
	}
}

func (d *Device) NewPipeline(state *device.CompState) (device.Pipeline, error) {
	if state == nil || state.Func.Code == nil {
		return nil, device.ErrNoDevice
	}
	h := d.pipelns.Create(&pipelineData{state: *state})
	return &pipelineHandle{dev: d, h: h}, nil
}
