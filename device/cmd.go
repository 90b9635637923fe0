// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package device

// BufferCopy describes a buffer-to-buffer copy command.
type BufferCopy struct {
	From    Buffer
	FromOff int64
	To      Buffer
	ToOff   int64
	Size    int64
}

// ImageCopy describes an image-to-image copy command.
type ImageCopy struct {
	From      Image
	FromOff   Off3D
	FromLayer int
	FromLevel int
	To        Image
	ToOff     Off3D
	ToLayer   int
	ToLevel   int
	Size      Dim3D
}

// BufImgCopy describes a copy between a buffer and an image.
type BufImgCopy struct {
	Buf    Buffer
	BufOff int64
	// Stride[0] is the row length and Stride[1] the image height, in
	// pixels.
	Stride [2]int64
	Img    Image
	ImgOff Off3D
	Layer  int
	Level  int
	Size   Dim3D
}

// Sync is the type of a synchronization scope.
type Sync int

// Synchronization scopes. Graphics-only scopes (vertex input,
// vertex/fragment shading, color/DS output, draw, resolve) are
// dropped; only the scopes a compute dispatch or a copy can
// participate in remain.
const (
	SComputeShading Sync = 1 << iota
	SCopy
	SAll
	SNone Sync = 0
)

// Access is the type of a memory access scope.
type Access int

// Memory access scopes, trimmed to the ones a compute/copy pipeline
// produces.
const (
	AShaderRead Access = 1 << iota
	AShaderWrite
	ACopyRead
	ACopyWrite
	AAnyRead
	AAnyWrite
	ANone Access = 0
)

// Layout is the type of an image layout.
type Layout int

// Image layouts. Render-target/depth-stencil/present layouts are
// dropped: spec.md §4.2 only ever requires ShaderReadOnly (sampled
// images) or General (storage images), plus the copy layouts and an
// initial Undefined.
const (
	LUndefined Layout = iota
	LGeneral
	LCopySrc
	LCopyDst
	LShaderRead
)

// Barrier represents a synchronization barrier.
type Barrier struct {
	SyncBefore   Sync
	SyncAfter    Sync
	AccessBefore Access
	AccessAfter  Access
}

// Transition represents a layout transition on a specific image
// subresource (an ImageView).
type Transition struct {
	Barrier
	LayoutBefore Layout
	LayoutAfter  Layout
	IView        ImageView
}

// CmdBuffer is a recorded sequence of compute/copy commands. Usage,
// per spec.md §4.2's command-recording contract:
//
//	1. Begin
//	2. BeginWork / BeginBlit, then the corresponding Set*/Dispatch or
//	   Copy*/Fill commands, then EndWork / EndBlit (repeat as needed)
//	3. End, then Device.Commit
//
// Begin*/End* pairs must not nest and must be balanced before the
// final End.
type CmdBuffer interface {
	Destroyer

	// Begin prepares the command buffer for recording. It must be
	// called before any command is recorded, and again after the
	// buffer has executed or been Reset.
	Begin() error

	// BeginWork begins compute work. If wait is set, dispatches in
	// this block only start once every previously recorded command in
	// the same command buffer has completed.
	BeginWork(wait bool)
	// SetPipeline binds the compute pipeline used by subsequent
	// Dispatch calls.
	SetPipeline(p Pipeline)
	// SetDescTable binds the descriptor table used by subsequent
	// Dispatch calls.
	SetDescTable(t DescTable, heapCopy []int)
	// PushConstants updates the pipeline's single push-constant range.
	PushConstants(data []byte)
	// Dispatch records a compute dispatch of x*y*z workgroups. Before
	// the dispatch executes, the device abstraction emits any implicit
	// image-layout-transition barriers required by the currently bound
	// descriptor table (spec.md §4.2).
	Dispatch(x, y, z int)
	// EndWork ends the current compute work block.
	EndWork()

	// BeginBlit begins data-transfer commands. wait has the same
	// meaning as in BeginWork.
	BeginBlit(wait bool)
	CopyBuffer(c *BufferCopy)
	CopyImage(c *ImageCopy)
	CopyBufToImg(c *BufImgCopy)
	CopyImgToBuf(c *BufImgCopy)
	Fill(buf Buffer, off, size int64, value byte)
	// Barrier records an explicit memory barrier with no layout
	// change.
	Barrier(b []Barrier)
	// Transition records an explicit image-layout transition. Callers
	// normally do not need this directly: Dispatch inserts the
	// transitions its bound images require automatically.
	Transition(t []Transition)
	EndBlit()

	// ResetTimestamps, WriteTimestamp and CopyTimestamps record GPU
	// timing queries, per spec.md §4.2.
	ResetTimestamps(n int)
	WriteTimestamp(index int)
	CopyTimestamps(dst Buffer, dstOff int64, first, n int)

	// End finishes recording. The command buffer is ready for
	// Device.Commit on success.
	End() error

	// Reset discards the buffer's recorded commands, allowing it to be
	// recorded into again after Begin.
	Reset() error
}

// requiredLayout and requiredAccess are the declarative mappings of
// spec.md §4.2's "Implicit image-layout transitions for shader
// access": a sampled binding requires ShaderReadOnly/ShaderRead, a
// storage binding requires General/(ShaderRead|ShaderWrite).
func requiredLayout(sampled bool) Layout {
	if sampled {
		return LShaderRead
	}
	return LGeneral
}

func requiredAccess(sampled bool) Access {
	if sampled {
		return AShaderRead
	}
	return AShaderRead | AShaderWrite
}

// ImageState tracks an image's current layout and access mask across
// command recording, per spec.md's Ownership/§4.2 contract ("update
// the image's tracked layout and access mask to the new values").
// Backends embed one ImageState per bound image subresource.
type ImageState struct {
	Layout Layout
	Access Access
}

// Resolve computes the Transition required to bring s into the layout
// and access mask a shader binding of the given sampled-ness demands,
// and reports whether a transition is actually necessary. On true, it
// also advances s to the new state, per the device abstraction's
// "update the tracked layout" contract: callers must not call Resolve
// again for the same dispatch without an intervening state change.
func (s *ImageState) Resolve(iview ImageView, sampled bool) (Transition, bool) {
	wantLayout := requiredLayout(sampled)
	wantAccess := requiredAccess(sampled)
	if s.Layout == wantLayout && s.Access == wantAccess {
		return Transition{}, false
	}
	t := Transition{
		Barrier: Barrier{
			SyncBefore:   SAll,
			SyncAfter:    SComputeShading,
			AccessBefore: s.Access,
			AccessAfter:  wantAccess,
		},
		LayoutBefore: s.Layout,
		LayoutAfter:  wantLayout,
		IView:        iview,
	}
	s.Layout = wantLayout
	s.Access = wantAccess
	return t, true
}
