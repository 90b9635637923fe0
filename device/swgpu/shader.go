// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package swgpu

import (
	"log"

	"github.com/jeffamstutz/gatling/device"
	"github.com/jeffamstutz/gatling/internal/handle"
)

// shaderData holds the raw SPIR-V bytes. swgpu never executes them;
// it only needs the byte stream to exist so that shadercache's
// reflection step (which operates on the blob before it ever reaches
// the device) has something concrete to have produced.
type shaderData struct {
	code []byte
}

type shaderHandle struct {
	dev *Device
	h   handle.Handle
}

func (s *shaderHandle) Destroy() {
	if err := s.dev.shaders.Free(s.h); err != nil {
		log.Printf("swgpu: double-destroy of shader handle (ignored)")
	}
}

func (d *Device) NewShaderCode(data []byte) (device.ShaderCode, error) {
	if len(data) == 0 {
		return nil, device.ErrNoDevice
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	h := d.shaders.Create(&shaderData{code: cp})
	return &shaderHandle{dev: d, h: h}, nil
}
