package vkr

import (
	vk "github.com/vulkan-go/vulkan"
)

// MemoryLocation selects which memory type class backs a resource.
type MemoryLocation int

const (
	// GpuOnly places the resource in device-local memory. Writes go
	// through the upload queue.
	GpuOnly MemoryLocation = iota
	// CpuToGpu places the resource in host-visible, host-coherent memory.
	CpuToGpu
	// GpuToCpu places the resource in host-visible cached memory for
	// read-back.
	GpuToCpu
)

// BufferUsage is the set of ways a buffer may be used. Accesses declared in
// a frame graph must be covered by the usage set the buffer was created with.
type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 1 << iota
	BufferUsageTransferDst
	BufferUsageVertex
	BufferUsageIndex
	BufferUsageStorage
	BufferUsageUniform
	BufferUsageIndirect
)

func (u BufferUsage) vk() vk.BufferUsageFlagBits {
	var f vk.BufferUsageFlagBits
	if u&BufferUsageTransferSrc != 0 {
		f |= vk.BufferUsageTransferSrcBit
	}
	if u&BufferUsageTransferDst != 0 {
		f |= vk.BufferUsageTransferDstBit
	}
	if u&BufferUsageVertex != 0 {
		f |= vk.BufferUsageVertexBufferBit
	}
	if u&BufferUsageIndex != 0 {
		f |= vk.BufferUsageIndexBufferBit
	}
	if u&BufferUsageStorage != 0 {
		f |= vk.BufferUsageStorageBufferBit
	}
	if u&BufferUsageUniform != 0 {
		f |= vk.BufferUsageUniformBufferBit
	}
	if u&BufferUsageIndirect != 0 {
		f |= vk.BufferUsageIndirectBufferBit
	}
	return f
}

// ImageUsage is the set of ways an image may be used.
type ImageUsage uint32

const (
	ImageUsageTransferSrc ImageUsage = 1 << iota
	ImageUsageTransferDst
	ImageUsageSampled
	ImageUsageStorage
	ImageUsageColorAttachment
	ImageUsageDepthStencilAttachment
)

func (u ImageUsage) vk() vk.ImageUsageFlagBits {
	var f vk.ImageUsageFlagBits
	if u&ImageUsageTransferSrc != 0 {
		f |= vk.ImageUsageTransferSrcBit
	}
	if u&ImageUsageTransferDst != 0 {
		f |= vk.ImageUsageTransferDstBit
	}
	if u&ImageUsageSampled != 0 {
		f |= vk.ImageUsageSampledBit
	}
	if u&ImageUsageStorage != 0 {
		f |= vk.ImageUsageStorageBit
	}
	if u&ImageUsageColorAttachment != 0 {
		f |= vk.ImageUsageColorAttachmentBit
	}
	if u&ImageUsageDepthStencilAttachment != 0 {
		f |= vk.ImageUsageDepthStencilAttachmentBit
	}
	return f
}

// BufferAccess labels how a pass touches a buffer.
type BufferAccess int

const (
	BufferAccessNone BufferAccess = iota
	BufferAccessIndexRead
	BufferAccessVertexRead
	BufferAccessUniformRead
	BufferAccessIndirectRead
	BufferAccessTransferRead
	BufferAccessTransferWrite
	BufferAccessShaderRead
	BufferAccessShaderWrite
)

// IsWrite reports whether the access establishes an ordering constraint
// toward later accesses.
func (a BufferAccess) IsWrite() bool {
	switch a {
	case BufferAccessTransferWrite, BufferAccessShaderWrite:
		return true
	}
	return false
}

// requiredUsage returns the usage bit a buffer must carry for the access.
func (a BufferAccess) requiredUsage() BufferUsage {
	switch a {
	case BufferAccessIndexRead:
		return BufferUsageIndex
	case BufferAccessVertexRead:
		return BufferUsageVertex
	case BufferAccessUniformRead:
		return BufferUsageUniform
	case BufferAccessIndirectRead:
		return BufferUsageIndirect
	case BufferAccessTransferRead:
		return BufferUsageTransferSrc
	case BufferAccessTransferWrite:
		return BufferUsageTransferDst
	case BufferAccessShaderRead, BufferAccessShaderWrite:
		return BufferUsageStorage
	}
	return 0
}

const allShaderStages = vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit |
	vk.PipelineStageFragmentShaderBit | vk.PipelineStageComputeShaderBit)

// barrierFlags returns the pipeline stage and access masks a barrier must
// cover for this buffer access.
func (a BufferAccess) barrierFlags() (vk.PipelineStageFlags, vk.AccessFlags) {
	switch a {
	case BufferAccessIndexRead:
		return vk.PipelineStageFlags(vk.PipelineStageVertexInputBit), vk.AccessFlags(vk.AccessIndexReadBit)
	case BufferAccessVertexRead:
		return vk.PipelineStageFlags(vk.PipelineStageVertexInputBit), vk.AccessFlags(vk.AccessVertexAttributeReadBit)
	case BufferAccessUniformRead:
		return allShaderStages, vk.AccessFlags(vk.AccessUniformReadBit)
	case BufferAccessIndirectRead:
		return vk.PipelineStageFlags(vk.PipelineStageDrawIndirectBit), vk.AccessFlags(vk.AccessIndirectCommandReadBit)
	case BufferAccessTransferRead:
		return vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.AccessFlags(vk.AccessTransferReadBit)
	case BufferAccessTransferWrite:
		return vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.AccessFlags(vk.AccessTransferWriteBit)
	case BufferAccessShaderRead:
		return allShaderStages, vk.AccessFlags(vk.AccessShaderReadBit)
	case BufferAccessShaderWrite:
		return allShaderStages, vk.AccessFlags(vk.AccessShaderWriteBit)
	}
	return 0, 0
}

// ImageAccess labels how a pass touches an image. Each access implies the
// layout the image must be in while the pass runs.
type ImageAccess int

const (
	ImageAccessNone ImageAccess = iota
	ImageAccessColorAttachmentWrite
	ImageAccessDepthStencilAttachmentWrite
	ImageAccessDepthStencilAttachmentRead
	ImageAccessTransferRead
	ImageAccessTransferWrite
	ImageAccessSampledRead
	ImageAccessStorageRead
	ImageAccessStorageWrite
)

func (a ImageAccess) IsWrite() bool {
	switch a {
	case ImageAccessColorAttachmentWrite, ImageAccessDepthStencilAttachmentWrite,
		ImageAccessTransferWrite, ImageAccessStorageWrite:
		return true
	}
	return false
}

func (a ImageAccess) requiredUsage() ImageUsage {
	switch a {
	case ImageAccessColorAttachmentWrite:
		return ImageUsageColorAttachment
	case ImageAccessDepthStencilAttachmentWrite, ImageAccessDepthStencilAttachmentRead:
		return ImageUsageDepthStencilAttachment
	case ImageAccessTransferRead:
		return ImageUsageTransferSrc
	case ImageAccessTransferWrite:
		return ImageUsageTransferDst
	case ImageAccessSampledRead:
		return ImageUsageSampled
	case ImageAccessStorageRead, ImageAccessStorageWrite:
		return ImageUsageStorage
	}
	return 0
}

// barrierFlags returns the stage mask, access mask and required layout for
// this image access.
func (a ImageAccess) barrierFlags() (vk.PipelineStageFlags, vk.AccessFlags, vk.ImageLayout) {
	const depthStages = vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit |
		vk.PipelineStageLateFragmentTestsBit)
	switch a {
	case ImageAccessColorAttachmentWrite:
		return vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit),
			vk.ImageLayoutColorAttachmentOptimal
	case ImageAccessDepthStencilAttachmentWrite:
		return depthStages,
			vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit),
			vk.ImageLayoutDepthStencilAttachmentOptimal
	case ImageAccessDepthStencilAttachmentRead:
		return depthStages,
			vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit),
			vk.ImageLayoutDepthStencilReadOnlyOptimal
	case ImageAccessTransferRead:
		return vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			vk.AccessFlags(vk.AccessTransferReadBit),
			vk.ImageLayoutTransferSrcOptimal
	case ImageAccessTransferWrite:
		return vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			vk.AccessFlags(vk.AccessTransferWriteBit),
			vk.ImageLayoutTransferDstOptimal
	case ImageAccessSampledRead:
		return allShaderStages,
			vk.AccessFlags(vk.AccessShaderReadBit),
			vk.ImageLayoutShaderReadOnlyOptimal
	case ImageAccessStorageRead:
		return allShaderStages,
			vk.AccessFlags(vk.AccessShaderReadBit),
			vk.ImageLayoutGeneral
	case ImageAccessStorageWrite:
		return allShaderStages,
			vk.AccessFlags(vk.AccessShaderWriteBit),
			vk.ImageLayoutGeneral
	}
	return 0, 0, vk.ImageLayoutUndefined
}

// QueuePreference selects which queue family a pass would like to run on.
type QueuePreference int

const (
	// QueueGraphics runs the pass on the graphics queue.
	QueueGraphics QueuePreference = iota
	// PreferAsyncCompute runs the pass on the async compute queue when the
	// device has one, and silently falls back to graphics otherwise.
	PreferAsyncCompute
	// ForceAsyncCompute requires an async compute queue; compilation fails
	// without one.
	ForceAsyncCompute
	// PreferDedicatedTransfer runs a transfer pass on the dedicated
	// transfer queue when the device has one, and silently falls back to
	// graphics otherwise. Meaningless on compute and raster passes.
	PreferDedicatedTransfer
)

// BufferRef and ImageRef are graph-local references, valid only within the
// builder that produced them. They cover both transient declarations and
// imported persistent handles.
type BufferRef struct{ index int }

type ImageRef struct{ index int }

// BufferUse declares one access a pass performs on a buffer.
type BufferUse struct {
	Buffer BufferRef
	Access BufferAccess
}

// ImageUse declares one access a pass performs on an image.
type ImageUse struct {
	Image  ImageRef
	Access ImageAccess
}

// Dispatch is a compute dispatch size, either a constant group count or an
// indirect read from a buffer.
type Dispatch struct {
	Groups         [3]uint32
	Indirect       bool
	IndirectBuffer BufferRef
	IndirectOffset uint64
}

func DispatchGroups(x, y, z uint32) Dispatch {
	return Dispatch{Groups: [3]uint32{x, y, z}}
}

func DispatchIndirect(buf BufferRef, offset uint64) Dispatch {
	return Dispatch{Indirect: true, IndirectBuffer: buf, IndirectOffset: offset}
}

// LoadOp selects what happens to an attachment at the start of a raster
// pass.
type LoadOp int

const (
	LoadOpLoad LoadOp = iota
	LoadOpClear
	LoadOpDontCare
)

func (op LoadOp) vk() vk.AttachmentLoadOp {
	switch op {
	case LoadOpClear:
		return vk.AttachmentLoadOpClear
	case LoadOpDontCare:
		return vk.AttachmentLoadOpDontCare
	}
	return vk.AttachmentLoadOpLoad
}

// ColorAttachment binds an image as a raster pass color target.
type ColorAttachment struct {
	Image ImageRef
	Load  LoadOp
	Clear [4]float32
}

// DepthStencilAttachment binds an image as the raster pass depth target.
type DepthStencilAttachment struct {
	Image        ImageRef
	Load         LoadOp
	ClearDepth   float32
	ClearStencil uint32
	ReadOnly     bool
}

// Framebuffer is the attachment set of one raster pass.
type Framebuffer struct {
	Colors       []ColorAttachment
	DepthStencil *DepthStencilAttachment
}

// transferKind tags the variants of a transfer primitive.
type transferKind int

const (
	transferBufferToBuffer transferKind = iota
	transferBufferToImage
	transferImageToImage
)

// TransferOp is one copy primitive inside a transfer pass. Construct with
// CopyBufferToBuffer, CopyBufferToImage or CopyImageToImage.
type TransferOp struct {
	kind      transferKind
	srcBuffer BufferRef
	dstBuffer BufferRef
	srcImage  ImageRef
	dstImage  ImageRef
	srcOffset uint64
	dstOffset uint64
	size      uint64
}

func CopyBufferToBuffer(src BufferRef, srcOffset uint64, dst BufferRef, dstOffset, size uint64) TransferOp {
	return TransferOp{kind: transferBufferToBuffer, srcBuffer: src, srcOffset: srcOffset, dstBuffer: dst, dstOffset: dstOffset, size: size}
}

func CopyBufferToImage(src BufferRef, srcOffset uint64, dst ImageRef) TransferOp {
	return TransferOp{kind: transferBufferToImage, srcBuffer: src, srcOffset: srcOffset, dstImage: dst}
}

func CopyImageToImage(src, dst ImageRef) TransferOp {
	return TransferOp{kind: transferImageToImage, srcImage: src, dstImage: dst}
}

// passKind tags the three pass flavors.
type passKind int

const (
	passTransfer passKind = iota
	passCompute
	passRaster
)

// graphPass is the builder's record of one declared pass, consumed by the
// compiler in declaration order.
type graphPass struct {
	name     string
	kind     passKind
	queue    QueuePreference
	buffers  []BufferUse
	images   []ImageUse
	ops      []TransferOp
	pipeline ComputePipelineHandle
	dispatch Dispatch
	push     []byte

	framebuffer Framebuffer
	callback    RasterCallback
	userData    interface{}
}

// RasterCallback records draw commands for one raster pass through the
// restricted command interface. The callback may only reference resources
// declared in the pass accesses.
type RasterCallback func(cmd RenderCommands, userData interface{})
