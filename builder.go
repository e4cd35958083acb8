package vkr

import "fmt"

// graphBuffer is one buffer slot in a frame graph: either a transient
// declaration or an imported persistent handle.
type graphBuffer struct {
	name      string
	transient *BufferDescription
	handle    BufferHandle
	usage     BufferUsage
	state     bufferState
}

// graphImage is one image slot in a frame graph. The acquired swapchain
// image appears as a slot with swapchain set; its backing image is resolved
// at record time.
type graphImage struct {
	name      string
	transient *ImageDescription
	handle    ImageHandle
	usage     ImageUsage
	format    Format
	swapchain bool
	state     imageState
}

// graph is the builder output the compiler consumes.
type graph struct {
	buffers  []graphBuffer
	images   []graphImage
	passes   []graphPass
	aliasing bool
}

// resourceResolver supplies descriptions and last-known GPU state for
// persistent handles imported into a graph. The resource store implements
// it; tests substitute fixtures.
type resourceResolver interface {
	resolveBuffer(h BufferHandle) (BufferDescription, bufferState, error)
	resolveImage(h ImageHandle) (ImageDescription, imageState, error)
	resolveComputePipeline(h ComputePipelineHandle) (ComputePipelineDescription, error)
	resolveRasterPipeline(h RasterPipelineHandle) (RasterPipelineDescription, error)
}

// GraphBuilder accumulates transient resources, persistent imports and pass
// descriptors for a single frame. Obtain one from Device.BeginFrame and
// hand it back to Device.EndFrame. The builder performs shallow validation
// as passes are added; the compiler re-checks the assembled graph.
type GraphBuilder struct {
	device   *Device
	resolver resourceResolver
	graph    graph

	importedBuffers map[BufferHandle]BufferRef
	importedImages  map[ImageHandle]ImageRef
	swapchainImage  int
}

func newGraphBuilder(device *Device, resolver resourceResolver) *GraphBuilder {
	return &GraphBuilder{
		device:          device,
		resolver:        resolver,
		importedBuffers: make(map[BufferHandle]BufferRef),
		importedImages:  make(map[ImageHandle]ImageRef),
		swapchainImage:  -1,
	}
}

// EnableAliasing lets the compiler share memory between transient resources
// with disjoint live ranges. Off by default.
func (b *GraphBuilder) EnableAliasing() {
	b.graph.aliasing = true
}

// CreateTransientBuffer declares a buffer that lives for this frame only.
func (b *GraphBuilder) CreateTransientBuffer(name string, desc BufferDescription) BufferRef {
	d := desc
	b.graph.buffers = append(b.graph.buffers, graphBuffer{
		name:      name,
		transient: &d,
		usage:     desc.Usage,
	})
	return BufferRef{index: len(b.graph.buffers) - 1}
}

// CreateTransientImage declares an image that lives for this frame only.
func (b *GraphBuilder) CreateTransientImage(name string, desc ImageDescription) ImageRef {
	d := desc
	b.graph.images = append(b.graph.images, graphImage{
		name:      name,
		transient: &d,
		usage:     desc.Usage,
		format:    desc.Format,
		state:     imageState{firstUse: true},
	})
	return ImageRef{index: len(b.graph.images) - 1}
}

// UseBuffer imports a persistent buffer into the graph. Importing the same
// handle twice yields the same ref.
func (b *GraphBuilder) UseBuffer(h BufferHandle) (BufferRef, error) {
	if ref, ok := b.importedBuffers[h]; ok {
		return ref, nil
	}
	desc, state, err := b.resolver.resolveBuffer(h)
	if err != nil {
		return BufferRef{}, err
	}
	b.graph.buffers = append(b.graph.buffers, graphBuffer{
		name:   fmt.Sprintf("buffer-%d", h.Index),
		handle: h,
		usage:  desc.Usage,
		state:  state,
	})
	ref := BufferRef{index: len(b.graph.buffers) - 1}
	b.importedBuffers[h] = ref
	return ref, nil
}

// UseImage imports a persistent image into the graph.
func (b *GraphBuilder) UseImage(h ImageHandle) (ImageRef, error) {
	if ref, ok := b.importedImages[h]; ok {
		return ref, nil
	}
	desc, state, err := b.resolver.resolveImage(h)
	if err != nil {
		return ImageRef{}, err
	}
	b.graph.images = append(b.graph.images, graphImage{
		name:   fmt.Sprintf("image-%d", h.Index),
		handle: h,
		usage:  desc.Usage,
		format: desc.Format,
		state:  state,
	})
	ref := ImageRef{index: len(b.graph.images) - 1}
	b.importedImages[h] = ref
	return ref, nil
}

// AcquireSwapchainImage returns the graph slot for this frame's swapchain
// image. The image is acquired when the frame is submitted; it starts the
// frame in an undefined layout and is transitioned for present after the
// last pass that touches it.
func (b *GraphBuilder) AcquireSwapchainImage() (ImageRef, error) {
	if b.swapchainImage >= 0 {
		return ImageRef{index: b.swapchainImage}, nil
	}
	if b.device != nil && b.device.swapchain == nil {
		return ImageRef{}, fmt.Errorf("acquire swapchain image: no swapchain configured")
	}
	var format Format
	if b.device != nil {
		format = b.device.swapchain.Format
	}
	b.graph.images = append(b.graph.images, graphImage{
		name:      "swapchain",
		swapchain: true,
		usage:     ImageUsageColorAttachment | ImageUsageTransferDst,
		format:    format,
		state:     imageState{firstUse: true},
	})
	b.swapchainImage = len(b.graph.images) - 1
	return ImageRef{index: b.swapchainImage}, nil
}

func (b *GraphBuilder) validBufferRef(ref BufferRef) bool {
	return ref.index >= 0 && ref.index < len(b.graph.buffers)
}

func (b *GraphBuilder) validImageRef(ref ImageRef) bool {
	return ref.index >= 0 && ref.index < len(b.graph.images)
}

// AddTransferPass appends a pass of copy primitives. Accesses are inferred
// from the ops: TransferRead on every source, TransferWrite on every
// destination.
func (b *GraphBuilder) AddTransferPass(name string, queue QueuePreference, ops []TransferOp) error {
	pass := graphPass{name: name, kind: passTransfer, queue: queue, ops: ops}
	for _, op := range ops {
		switch op.kind {
		case transferBufferToBuffer:
			if !b.validBufferRef(op.srcBuffer) || !b.validBufferRef(op.dstBuffer) {
				return invalidGraphf("transfer pass %q references an undeclared buffer", name)
			}
			pass.buffers = append(pass.buffers,
				BufferUse{Buffer: op.srcBuffer, Access: BufferAccessTransferRead},
				BufferUse{Buffer: op.dstBuffer, Access: BufferAccessTransferWrite})
		case transferBufferToImage:
			if !b.validBufferRef(op.srcBuffer) || !b.validImageRef(op.dstImage) {
				return invalidGraphf("transfer pass %q references an undeclared resource", name)
			}
			pass.buffers = append(pass.buffers, BufferUse{Buffer: op.srcBuffer, Access: BufferAccessTransferRead})
			pass.images = append(pass.images, ImageUse{Image: op.dstImage, Access: ImageAccessTransferWrite})
		case transferImageToImage:
			if !b.validImageRef(op.srcImage) || !b.validImageRef(op.dstImage) {
				return invalidGraphf("transfer pass %q references an undeclared image", name)
			}
			pass.images = append(pass.images,
				ImageUse{Image: op.srcImage, Access: ImageAccessTransferRead},
				ImageUse{Image: op.dstImage, Access: ImageAccessTransferWrite})
		}
	}
	b.graph.passes = append(b.graph.passes, pass)
	return nil
}

// AddComputePass appends a compute dispatch. push is copied into the pass
// and written as push constants ahead of the dispatch.
func (b *GraphBuilder) AddComputePass(name string, queue QueuePreference, pipeline ComputePipelineHandle, dispatch Dispatch, push []byte, buffers []BufferUse, images []ImageUse) error {
	if _, err := b.resolver.resolveComputePipeline(pipeline); err != nil {
		return fmt.Errorf("compute pass %q: %w", name, err)
	}
	if !dispatch.Indirect && dispatch.Groups == [3]uint32{} {
		return invalidGraphf("compute pass %q has an empty dispatch size", name)
	}
	if dispatch.Indirect && !b.validBufferRef(dispatch.IndirectBuffer) {
		return invalidGraphf("compute pass %q indirect buffer is undeclared", name)
	}
	for _, use := range buffers {
		if !b.validBufferRef(use.Buffer) {
			return invalidGraphf("compute pass %q references an undeclared buffer", name)
		}
	}
	for _, use := range images {
		if !b.validImageRef(use.Image) {
			return invalidGraphf("compute pass %q references an undeclared image", name)
		}
	}
	if dispatch.Indirect {
		buffers = append(buffers, BufferUse{Buffer: dispatch.IndirectBuffer, Access: BufferAccessIndirectRead})
	}
	b.graph.passes = append(b.graph.passes, graphPass{
		name:     name,
		kind:     passCompute,
		queue:    queue,
		pipeline: pipeline,
		dispatch: dispatch,
		push:     append([]byte(nil), push...),
		buffers:  buffers,
		images:   images,
	})
	return nil
}

// AddRasterPass appends a raster pass. The callback runs at record time
// through the restricted command interface; buffers and images list every
// resource the callback may touch beyond the attachments.
func (b *GraphBuilder) AddRasterPass(name string, fb Framebuffer, buffers []BufferUse, images []ImageUse, callback RasterCallback, userData interface{}) error {
	if len(fb.Colors) == 0 && fb.DepthStencil == nil {
		return invalidGraphf("raster pass %q has no attachments", name)
	}
	for _, att := range fb.Colors {
		if !b.validImageRef(att.Image) {
			return invalidGraphf("raster pass %q color attachment is undeclared", name)
		}
		images = append(images, ImageUse{Image: att.Image, Access: ImageAccessColorAttachmentWrite})
	}
	if ds := fb.DepthStencil; ds != nil {
		if !b.validImageRef(ds.Image) {
			return invalidGraphf("raster pass %q depth attachment is undeclared", name)
		}
		access := ImageAccessDepthStencilAttachmentWrite
		if ds.ReadOnly {
			access = ImageAccessDepthStencilAttachmentRead
		}
		images = append(images, ImageUse{Image: ds.Image, Access: access})
	}
	for _, use := range buffers {
		if !b.validBufferRef(use.Buffer) {
			return invalidGraphf("raster pass %q references an undeclared buffer", name)
		}
	}
	for _, use := range images {
		if !b.validImageRef(use.Image) {
			return invalidGraphf("raster pass %q references an undeclared image", name)
		}
	}
	b.graph.passes = append(b.graph.passes, graphPass{
		name:        name,
		kind:        passRaster,
		queue:       QueueGraphics,
		framebuffer: fb,
		callback:    callback,
		userData:    userData,
		buffers:     buffers,
		images:      images,
	})
	return nil
}
