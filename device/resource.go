// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package device

// Usage is a mask indicating valid uses for a Buffer or Image.
type Usage int

// Usage flags for Buffer and Image. Graphics-only flags from
// driver.Usage (UVertexData, UIndexData, URenderTarget) are dropped:
// spec.md's Non-goals exclude rasterization, so nothing in this
// abstraction ever binds vertex/index/render-target data.
const (
	// UShaderRead marks a resource readable in shaders.
	UShaderRead Usage = 1 << iota
	// UShaderWrite marks a resource writable in shaders.
	UShaderWrite
	// UShaderConst marks a Buffer usable as constant (uniform) data.
	UShaderConst
	// UShaderSample marks an Image usable as a sampled texture.
	UShaderSample
	// UGeneric marks a resource usable for any purpose above.
	UGeneric Usage = 1<<iota - 1
)

// PixelFmt describes the format of a pixel.
type PixelFmt int

// FInternal marks backend-internal formats; client code must not
// create images using them.
const FInternal PixelFmt = 1 << 31

// IsInternal reports whether f is an internal format.
func (f PixelFmt) IsInternal() bool { return f&FInternal == FInternal }

// Pixel formats. Depth/stencil formats are dropped from driver.PixelFmt
// since there is no depth/stencil attachment in a compute-only device.
const (
	RGBA8un PixelFmt = iota
	RGBA8n
	RGBA8sRGB
	BGRA8un
	BGRA8sRGB
	RG8un
	RG8n
	R8un
	R8n
	RGBA16f
	RG16f
	R16f
	RGBA32f
	RG32f
	R32f
)

// Dim3D is a three-dimensional size.
type Dim3D struct{ Width, Height, Depth int }

// Off3D is a three-dimensional offset.
type Off3D struct{ X, Y, Z int }

// Buffer is a GPU buffer of fixed size. A larger buffer requires
// creating a new one and copying the data explicitly.
type Buffer interface {
	Destroyer

	// Visible reports whether the buffer is host visible.
	Visible() bool

	// Bytes returns a slice of length Cap backed by the buffer's
	// memory, or nil if the buffer is not host visible. The slice is
	// valid for the buffer's lifetime.
	Bytes() []byte

	// Cap returns the buffer's capacity in bytes, which may exceed the
	// size requested at creation.
	Cap() int64

	// Flush makes host writes to Bytes()[off:off+size] visible to the
	// device; Invalidate makes device writes visible to the host. Both
	// are no-ops on coherent memory, which is all device/swgpu ever
	// allocates, but are part of the contract so that a future
	// non-coherent backend has somewhere to hook in.
	Flush(off, size int64) error
	Invalidate(off, size int64) error
}

// Image is a GPU image. There is no direct CPU access to image
// memory; copying data to/from an image requires a staging buffer.
type Image interface {
	Destroyer

	// NewView creates a typed view of the image.
	NewView(typ ViewType, layer, layers, level, levels int) (ImageView, error)
}

// ViewType is the type of an ImageView.
type ViewType int

const (
	IView2D ViewType = iota
	IView3D
	IView2DArray
)

// ImageView is a typed view of an Image, the unit bound to a
// descriptor.
type ImageView interface {
	Destroyer
}

// Filter is the type of sampler filters.
type Filter int

const (
	FNearest Filter = iota
	FLinear
	// FNoMipmap forces mip level 0; valid only as a sampler's mip
	// filter.
	FNoMipmap
)

// AddrMode is the type of sampler address modes.
type AddrMode int

const (
	AWrap AddrMode = iota
	AMirror
	// AClampToBlack is the only clamp mode this abstraction exposes
	// (spec.md §4.2's "border-colour selection under a clamp-to-black
	// policy" collapses Vulkan's several clamp/border variants into
	// one).
	AClampToBlack
)

// Sampler is an image sampler.
type Sampler interface {
	Destroyer
}

// Sampling describes sampler state.
type Sampling struct {
	Min, Mag, Mipmap Filter
	AddrU, AddrV, AddrW AddrMode
	MaxAniso            int
}

// Limits describes implementation limits, trimmed from driver.Limits
// to the subset a compute-only device needs to validate §4.2's
// resource and binding contract: image dimensions, descriptor-table
// capacity and dispatch size. Graphics-only fields (MaxColorTargets,
// MaxFBSize, MaxViewports, MaxVertexIn, ...) are dropped.
type Limits struct {
	MaxImage2D int
	MaxImage3D int
	MaxLayers  int

	MaxDescHeaps      int
	MaxDBuffer        int
	MaxDImage         int
	MaxDConstant      int
	MaxDTexture       int
	MaxDSampler       int
	MaxDBufferRange   int64
	MaxDConstantRange int64

	// MinStorageBufferOffsetAlignment is the alignment §4.2's binding
	// validation checks buffer-range offsets against.
	MinStorageBufferOffsetAlignment int64

	MaxDispatch [3]int
}
