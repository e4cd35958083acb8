package vkr

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

func (b bufferBarrier) vk(buffer vk.Buffer) vk.BufferMemoryBarrier {
	return vk.BufferMemoryBarrier{
		SType:               vk.StructureTypeBufferMemoryBarrier,
		SrcAccessMask:       b.srcAccess,
		DstAccessMask:       b.dstAccess,
		SrcQueueFamilyIndex: b.srcQueue,
		DstQueueFamilyIndex: b.dstQueue,
		Buffer:              buffer,
		Offset:              0,
		Size:                vk.DeviceSize(vk.WholeSize),
	}
}

func (b imageBarrier) vk(image vk.Image, aspect vk.ImageAspectFlags) vk.ImageMemoryBarrier {
	return vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       b.srcAccess,
		DstAccessMask:       b.dstAccess,
		OldLayout:           b.oldLayout,
		NewLayout:           b.newLayout,
		SrcQueueFamilyIndex: b.srcQueue,
		DstQueueFamilyIndex: b.dstQueue,
		Image:               image,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: vk.RemainingMipLevels,
			LayerCount: vk.RemainingArrayLayers,
		},
	}
}

// frameResources resolves every graph slot to a live vk object for one
// frame: imported handles through the store, transients by materializing
// them, the swapchain slot through the acquired image index. Transients
// are released through the retire ring when the frame's fence signals.
type frameResources struct {
	device *Device
	plan   *framePlan

	buffers []vk.Buffer
	images  []vk.Image
	views   []vk.ImageView
	extents []vk.Extent2D
	aspects []vk.ImageAspectFlags
}

func (d *Device) materializeFrame(plan *framePlan, swapchainIndex uint32) (*frameResources, error) {
	g := plan.graph
	res := &frameResources{
		device:  d,
		plan:    plan,
		buffers: make([]vk.Buffer, len(g.buffers)),
		images:  make([]vk.Image, len(g.images)),
		views:   make([]vk.ImageView, len(g.images)),
		extents: make([]vk.Extent2D, len(g.images)),
		aspects: make([]vk.ImageAspectFlags, len(g.images)),
	}

	for i := range g.buffers {
		slot := &g.buffers[i]
		if slot.transient != nil {
			buffer, err := d.createBufferResource(slot.name, *slot.transient)
			if err != nil {
				return nil, fmt.Errorf("materialize transient buffer %q: %w", slot.name, err)
			}
			d.retire.enqueue(buffer.release)
			res.buffers[i] = buffer.VKBuffer
			continue
		}
		buffer, err := d.store.getBuffer(slot.handle)
		if err != nil {
			return nil, err
		}
		res.buffers[i] = buffer.VKBuffer
	}

	for i := range g.images {
		slot := &g.images[i]
		switch {
		case slot.swapchain:
			sc := d.swapchain
			res.images[i] = sc.images[swapchainIndex]
			res.views[i] = sc.views[swapchainIndex]
			res.extents[i] = sc.Extent
			res.aspects[i] = vk.ImageAspectFlags(vk.ImageAspectColorBit)
		case slot.transient != nil:
			physical := plan.imageAlias[i]
			if physical != i {
				// Aliased onto an earlier slot with an identical
				// description and a disjoint live range.
				res.images[i] = res.images[physical]
				res.views[i] = res.views[physical]
				res.extents[i] = res.extents[physical]
				res.aspects[i] = res.aspects[physical]
				continue
			}
			image, err := d.createImageResource(slot.name, *slot.transient)
			if err != nil {
				return nil, fmt.Errorf("materialize transient image %q: %w", slot.name, err)
			}
			d.retire.enqueue(image.release)
			res.images[i] = image.VKImage
			res.views[i] = image.VKImageView
			res.extents[i] = vk.Extent2D{Width: slot.transient.Width, Height: slot.transient.Height}
			res.aspects[i] = aspectFor(slot.transient.Format)
		default:
			image, err := d.store.getImage(slot.handle)
			if err != nil {
				return nil, err
			}
			res.images[i] = image.VKImage
			res.views[i] = image.VKImageView
			res.extents[i] = vk.Extent2D{Width: image.Description.Width, Height: image.Description.Height}
			res.aspects[i] = aspectFor(image.Description.Format)
		}
	}
	return res, nil
}

// recordedBatch is one command buffer's worth of consecutive passes on a
// single queue family, ready for submission.
type recordedBatch struct {
	family uint32
	cmd    *CommandBuffer
}

type passBatch struct {
	family uint32
	passes []int
	// ownership releases recorded after the batch's own passes, on
	// behalf of later batches acquiring on another family.
	releaseBuffers []bufferBarrier
	releaseImages  []imageBarrier
}

func splitBatches(plan *framePlan) []passBatch {
	var batches []passBatch
	for i := range plan.passes {
		family := plan.passes[i].family
		if len(batches) == 0 || batches[len(batches)-1].family != family {
			batches = append(batches, passBatch{family: family})
		}
		last := &batches[len(batches)-1]
		last.passes = append(last.passes, i)
	}

	// An ownership transfer needs its release half on the source queue.
	// Attach each release to the most recent earlier batch of the source
	// family; transfers whose source queue ran in a previous frame have no
	// batch here and are demoted to plain barriers at record time.
	batchOf := make([]int, len(plan.passes))
	for bi := range batches {
		for _, pi := range batches[bi].passes {
			batchOf[pi] = bi
		}
	}
	for pi := range plan.passes {
		pp := &plan.passes[pi]
		for _, rb := range pp.releaseBuffers {
			if bi, ok := latestBatchBefore(batches, batchOf[pi], rb.srcQueue); ok {
				batches[bi].releaseBuffers = append(batches[bi].releaseBuffers, rb)
			}
		}
		for _, rb := range pp.releaseImages {
			if bi, ok := latestBatchBefore(batches, batchOf[pi], rb.srcQueue); ok {
				batches[bi].releaseImages = append(batches[bi].releaseImages, rb)
			}
		}
	}
	return batches
}

func latestBatchBefore(batches []passBatch, limit int, family uint32) (int, bool) {
	for bi := limit - 1; bi >= 0; bi-- {
		if batches[bi].family == family {
			return bi, true
		}
	}
	return 0, false
}

func hasSourceBatch(batches []passBatch, limit int, family uint32) bool {
	_, ok := latestBatchBefore(batches, limit, family)
	return ok
}

// recordFrame records the plan into one command buffer per batch. The
// final present transitions always land on a graphics batch, appended when
// the plan's last batch runs elsewhere.
func (d *Device) recordFrame(plan *framePlan, res *frameResources, slot *frameSlot) ([]recordedBatch, error) {
	set := d.bindless.set(slot.index)
	batches := splitBatches(plan)
	if len(plan.final) > 0 {
		if len(batches) == 0 || batches[len(batches)-1].family != d.GraphicsQueue.Family {
			batches = append(batches, passBatch{family: d.GraphicsQueue.Family})
		}
	}

	recorded := make([]recordedBatch, 0, len(batches))
	for bi := range batches {
		batch := &batches[bi]
		cmd, err := slot.commandBuffer(batch.family)
		if err != nil {
			return nil, err
		}
		if err := cmd.BeginOneTime(); err != nil {
			return nil, err
		}
		for _, pi := range batch.passes {
			pp := &plan.passes[pi]
			bufBarriers := demoteBufferTransfers(pp.bufferBarriers, batches, bi)
			imgBarriers := demoteImageTransfers(pp.imageBarriers, batches, bi)
			d.recordBarriers(cmd, res, bufBarriers, imgBarriers)
			if err := d.recordPass(cmd, pp, res, set); err != nil {
				return nil, err
			}
		}
		if bi == len(batches)-1 {
			d.recordBarriers(cmd, res, nil, plan.final)
		}
		d.recordBarriers(cmd, res, batch.releaseBuffers, batch.releaseImages)
		if err := cmd.End(); err != nil {
			return nil, err
		}
		recorded = append(recorded, recordedBatch{family: batch.family, cmd: cmd})
	}
	return recorded, nil
}

func demoteBufferTransfers(barriers []bufferBarrier, batches []passBatch, bi int) []bufferBarrier {
	out := append([]bufferBarrier(nil), barriers...)
	for i := range out {
		if out[i].srcQueue != vk.QueueFamilyIgnored && !hasSourceBatch(batches, bi, out[i].srcQueue) {
			out[i].srcQueue = vk.QueueFamilyIgnored
			out[i].dstQueue = vk.QueueFamilyIgnored
		}
	}
	return out
}

func demoteImageTransfers(barriers []imageBarrier, batches []passBatch, bi int) []imageBarrier {
	out := append([]imageBarrier(nil), barriers...)
	for i := range out {
		if out[i].srcQueue != vk.QueueFamilyIgnored && !hasSourceBatch(batches, bi, out[i].srcQueue) {
			out[i].srcQueue = vk.QueueFamilyIgnored
			out[i].dstQueue = vk.QueueFamilyIgnored
		}
	}
	return out
}

// recordBarriers batches all pending transitions for one pass into a
// single vkCmdPipelineBarrier.
func (d *Device) recordBarriers(cmd *CommandBuffer, res *frameResources, bufs []bufferBarrier, imgs []imageBarrier) {
	if len(bufs) == 0 && len(imgs) == 0 {
		return
	}
	var srcStage, dstStage vk.PipelineStageFlags
	vkBufs := make([]vk.BufferMemoryBarrier, len(bufs))
	for i, b := range bufs {
		srcStage |= b.srcStage
		dstStage |= b.dstStage
		vkBufs[i] = b.vk(res.buffers[b.buffer.index])
	}
	vkImgs := make([]vk.ImageMemoryBarrier, len(imgs))
	for i, b := range imgs {
		srcStage |= b.srcStage
		dstStage |= b.dstStage
		vkImgs[i] = b.vk(res.images[b.image.index], res.aspects[b.image.index])
	}
	vk.CmdPipelineBarrier(cmd.VKCommandBuffer, srcStage, dstStage, 0,
		0, nil, uint32(len(vkBufs)), vkBufs, uint32(len(vkImgs)), vkImgs)
}

func (d *Device) recordPass(cmd *CommandBuffer, pp *passPlan, res *frameResources, set vk.DescriptorSet) error {
	switch pp.pass.kind {
	case passTransfer:
		return d.recordTransfer(cmd, pp, res)
	case passCompute:
		return d.recordCompute(cmd, pp, res, set)
	default:
		return d.recordRaster(cmd, pp, res, set)
	}
}

func (d *Device) recordTransfer(cmd *CommandBuffer, pp *passPlan, res *frameResources) error {
	g := res.plan.graph
	for _, op := range pp.pass.ops {
		switch op.kind {
		case transferBufferToBuffer:
			vk.CmdCopyBuffer(cmd.VKCommandBuffer,
				res.buffers[op.srcBuffer.index], res.buffers[op.dstBuffer.index], 1,
				[]vk.BufferCopy{{
					SrcOffset: vk.DeviceSize(op.srcOffset),
					DstOffset: vk.DeviceSize(op.dstOffset),
					Size:      vk.DeviceSize(op.size),
				}})
		case transferBufferToImage:
			dst := &g.images[op.dstImage.index]
			extent := res.extents[op.dstImage.index]
			depth, layers := imageDepthLayers(dst)
			vk.CmdCopyBufferToImage(cmd.VKCommandBuffer,
				res.buffers[op.srcBuffer.index], res.images[op.dstImage.index],
				vk.ImageLayoutTransferDstOptimal, 1,
				[]vk.BufferImageCopy{{
					BufferOffset: vk.DeviceSize(op.srcOffset),
					ImageSubresource: vk.ImageSubresourceLayers{
						AspectMask: res.aspects[op.dstImage.index],
						LayerCount: layers,
					},
					ImageExtent: vk.Extent3D{Width: extent.Width, Height: extent.Height, Depth: depth},
				}})
		case transferImageToImage:
			src := &g.images[op.srcImage.index]
			extent := res.extents[op.srcImage.index]
			depth, layers := imageDepthLayers(src)
			vk.CmdCopyImage(cmd.VKCommandBuffer,
				res.images[op.srcImage.index], vk.ImageLayoutTransferSrcOptimal,
				res.images[op.dstImage.index], vk.ImageLayoutTransferDstOptimal, 1,
				[]vk.ImageCopy{{
					SrcSubresource: vk.ImageSubresourceLayers{AspectMask: res.aspects[op.srcImage.index], LayerCount: layers},
					DstSubresource: vk.ImageSubresourceLayers{AspectMask: res.aspects[op.dstImage.index], LayerCount: layers},
					Extent:         vk.Extent3D{Width: extent.Width, Height: extent.Height, Depth: depth},
				}})
		}
	}
	return nil
}

func imageDepthLayers(img *graphImage) (uint32, uint32) {
	if img.transient != nil {
		return img.transient.Depth, img.transient.ArrayLayers
	}
	return 1, 1
}

func (d *Device) recordCompute(cmd *CommandBuffer, pp *passPlan, res *frameResources, set vk.DescriptorSet) error {
	pipeline, err := d.store.getComputePipeline(pp.pass.pipeline)
	if err != nil {
		return fmt.Errorf("pass %q: %w", pp.pass.name, err)
	}
	vk.CmdBindPipeline(cmd.VKCommandBuffer, vk.PipelineBindPointCompute, pipeline.VKPipeline)
	vk.CmdBindDescriptorSets(cmd.VKCommandBuffer, vk.PipelineBindPointCompute,
		d.VKPipelineLayout, 0, 1, []vk.DescriptorSet{set}, 0, nil)
	if len(pp.pass.push) > 0 {
		vk.CmdPushConstants(cmd.VKCommandBuffer, d.VKPipelineLayout,
			vk.ShaderStageFlags(vk.ShaderStageAllGraphics|vk.ShaderStageComputeBit),
			0, uint32(len(pp.pass.push)), unsafe.Pointer(&pp.pass.push[0]))
	}
	dispatch := pp.pass.dispatch
	if dispatch.Indirect {
		vk.CmdDispatchIndirect(cmd.VKCommandBuffer,
			res.buffers[dispatch.IndirectBuffer.index], vk.DeviceSize(dispatch.IndirectOffset))
		return nil
	}
	vk.CmdDispatch(cmd.VKCommandBuffer, dispatch.Groups[0], dispatch.Groups[1], dispatch.Groups[2])
	return nil
}

func (d *Device) recordRaster(cmd *CommandBuffer, pp *passPlan, res *frameResources, set vk.DescriptorSet) error {
	pass := pp.pass
	renderPass, err := d.renderPasses.passFor(pp.fbLayout, &pass.framebuffer)
	if err != nil {
		return fmt.Errorf("pass %q: %w", pass.name, err)
	}

	attachments := make([]vk.ImageView, 0, len(pass.framebuffer.Colors)+1)
	clears := make([]vk.ClearValue, 0, cap(attachments))
	extent := vk.Extent2D{}
	for _, att := range pass.framebuffer.Colors {
		attachments = append(attachments, res.views[att.Image.index])
		var clear vk.ClearValue
		clear.SetColor([]float32{att.Clear[0], att.Clear[1], att.Clear[2], att.Clear[3]})
		clears = append(clears, clear)
		extent = res.extents[att.Image.index]
	}
	if ds := pass.framebuffer.DepthStencil; ds != nil {
		attachments = append(attachments, res.views[ds.Image.index])
		var clear vk.ClearValue
		clear.SetDepthStencil(ds.ClearDepth, ds.ClearStencil)
		clears = append(clears, clear)
		if extent.Width == 0 {
			extent = res.extents[ds.Image.index]
		}
	}

	fbInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderPass,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}
	var framebuffer vk.Framebuffer
	if err := vkResult(vk.CreateFramebuffer(d.VKDevice, &fbInfo, nil, &framebuffer)); err != nil {
		return fmt.Errorf("pass %q framebuffer: %w", pass.name, err)
	}
	d.retire.enqueue(func() {
		vk.DestroyFramebuffer(d.VKDevice, framebuffer, nil)
	})

	beginInfo := vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      renderPass,
		Framebuffer:     framebuffer,
		RenderArea:      vk.Rect2D{Extent: extent},
		ClearValueCount: uint32(len(clears)),
		PClearValues:    clears,
	}
	vk.CmdBeginRenderPass(cmd.VKCommandBuffer, &beginInfo, vk.SubpassContentsInline)
	vk.CmdBindDescriptorSets(cmd.VKCommandBuffer, vk.PipelineBindPointGraphics,
		d.VKPipelineLayout, 0, 1, []vk.DescriptorSet{set}, 0, nil)

	rc := &renderCommands{device: d, res: res, plan: pp, cmd: cmd.VKCommandBuffer, extent: extent}
	rc.SetViewport(0, 0, float32(extent.Width), float32(extent.Height))
	rc.SetScissor(0, 0, extent.Width, extent.Height)
	if pass.callback != nil {
		pass.callback(rc, pass.userData)
	}

	vk.CmdEndRenderPass(cmd.VKCommandBuffer)
	return rc.err
}

// IndexType selects the element width of a bound index buffer.
type IndexType int

const (
	IndexUint32 IndexType = iota
	IndexUint16
)

// RenderCommands is the restricted command interface handed to raster
// callbacks. It can only touch resources declared in the pass accesses and
// pipelines created ahead of the frame; bindless slot queries feed shader
// indices through push constants.
type RenderCommands interface {
	BindPipeline(h RasterPipelineHandle) error
	PushConstants(data []byte) error
	BindVertexBuffer(binding uint32, buf BufferRef, offset uint64) error
	BindIndexBuffer(buf BufferRef, offset uint64, kind IndexType) error
	SetViewport(x, y, width, height float32)
	SetScissor(x, y int32, width, height uint32)

	StorageBufferSlot(h BufferHandle) (uint32, error)
	SampledImageSlot(h ImageHandle) (uint32, error)
	StorageImageSlot(h ImageHandle) (uint32, error)
	SamplerSlot(h SamplerHandle) (uint32, error)

	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	DrawIndirect(buf BufferRef, offset uint64, drawCount, stride uint32) error
	DrawIndexedIndirect(buf BufferRef, offset uint64, drawCount, stride uint32) error
}

type renderCommands struct {
	device *Device
	res    *frameResources
	plan   *passPlan
	cmd    vk.CommandBuffer
	extent vk.Extent2D
	err    error
}

// fail latches the first callback error so the frame submission can
// report it.
func (rc *renderCommands) fail(err error) error {
	if err != nil && rc.err == nil {
		rc.err = err
	}
	return err
}

func (rc *renderCommands) declaredBuffer(buf BufferRef, access BufferAccess) error {
	for _, use := range rc.plan.pass.buffers {
		if use.Buffer == buf && use.Access == access {
			return nil
		}
	}
	return invalidGraphf("pass %q: buffer bound by the callback was not declared", rc.plan.pass.name)
}

func (rc *renderCommands) BindPipeline(h RasterPipelineHandle) error {
	pipeline, err := rc.device.store.getRasterPipeline(h)
	if err != nil {
		return rc.fail(err)
	}
	prototype, err := rc.device.renderPasses.prototypeFor(rc.plan.fbLayout)
	if err != nil {
		return rc.fail(err)
	}
	variant, err := rc.device.variantFor(pipeline, rc.plan.fbLayout, prototype)
	if err != nil {
		return rc.fail(err)
	}
	vk.CmdBindPipeline(rc.cmd, vk.PipelineBindPointGraphics, variant)
	return nil
}

func (rc *renderCommands) PushConstants(data []byte) error {
	if len(data) == 0 || len(data) > maxPushConstantBytes {
		return rc.fail(fmt.Errorf("push constants must be 1 to %d bytes, got %d", maxPushConstantBytes, len(data)))
	}
	vk.CmdPushConstants(rc.cmd, rc.device.VKPipelineLayout,
		vk.ShaderStageFlags(vk.ShaderStageAllGraphics|vk.ShaderStageComputeBit),
		0, uint32(len(data)), unsafe.Pointer(&data[0]))
	return nil
}

func (rc *renderCommands) BindVertexBuffer(binding uint32, buf BufferRef, offset uint64) error {
	if err := rc.declaredBuffer(buf, BufferAccessVertexRead); err != nil {
		return rc.fail(err)
	}
	vk.CmdBindVertexBuffers(rc.cmd, binding, 1,
		[]vk.Buffer{rc.res.buffers[buf.index]}, []vk.DeviceSize{vk.DeviceSize(offset)})
	return nil
}

func (rc *renderCommands) BindIndexBuffer(buf BufferRef, offset uint64, kind IndexType) error {
	if err := rc.declaredBuffer(buf, BufferAccessIndexRead); err != nil {
		return rc.fail(err)
	}
	indexType := vk.IndexTypeUint32
	if kind == IndexUint16 {
		indexType = vk.IndexTypeUint16
	}
	vk.CmdBindIndexBuffer(rc.cmd, rc.res.buffers[buf.index], vk.DeviceSize(offset), indexType)
	return nil
}

func (rc *renderCommands) SetViewport(x, y, width, height float32) {
	vk.CmdSetViewport(rc.cmd, 0, 1, []vk.Viewport{{
		X: x, Y: y, Width: width, Height: height, MinDepth: 0, MaxDepth: 1,
	}})
}

func (rc *renderCommands) SetScissor(x, y int32, width, height uint32) {
	vk.CmdSetScissor(rc.cmd, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: x, Y: y},
		Extent: vk.Extent2D{Width: width, Height: height},
	}})
}

func (rc *renderCommands) StorageBufferSlot(h BufferHandle) (uint32, error) {
	buffer, err := rc.device.store.getBuffer(h)
	if err != nil {
		return 0, rc.fail(err)
	}
	if buffer.slot < 0 {
		return 0, rc.fail(fmt.Errorf("buffer %q has no storage slot", buffer.Name))
	}
	return uint32(buffer.slot), nil
}

func (rc *renderCommands) SampledImageSlot(h ImageHandle) (uint32, error) {
	image, err := rc.device.store.getImage(h)
	if err != nil {
		return 0, rc.fail(err)
	}
	if image.sampledSlot < 0 {
		return 0, rc.fail(fmt.Errorf("image %q has no sampled slot", image.Name))
	}
	return uint32(image.sampledSlot), nil
}

func (rc *renderCommands) StorageImageSlot(h ImageHandle) (uint32, error) {
	image, err := rc.device.store.getImage(h)
	if err != nil {
		return 0, rc.fail(err)
	}
	if image.storageSlot < 0 {
		return 0, rc.fail(fmt.Errorf("image %q has no storage slot", image.Name))
	}
	return uint32(image.storageSlot), nil
}

func (rc *renderCommands) SamplerSlot(h SamplerHandle) (uint32, error) {
	sampler, err := rc.device.store.getSampler(h)
	if err != nil {
		return 0, rc.fail(err)
	}
	return uint32(sampler.slot), nil
}

func (rc *renderCommands) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(rc.cmd, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (rc *renderCommands) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(rc.cmd, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (rc *renderCommands) DrawIndirect(buf BufferRef, offset uint64, drawCount, stride uint32) error {
	if err := rc.declaredBuffer(buf, BufferAccessIndirectRead); err != nil {
		return rc.fail(err)
	}
	vk.CmdDrawIndirect(rc.cmd, rc.res.buffers[buf.index], vk.DeviceSize(offset), drawCount, stride)
	return nil
}

func (rc *renderCommands) DrawIndexedIndirect(buf BufferRef, offset uint64, drawCount, stride uint32) error {
	if err := rc.declaredBuffer(buf, BufferAccessIndirectRead); err != nil {
		return rc.fail(err)
	}
	vk.CmdDrawIndexedIndirect(rc.cmd, rc.res.buffers[buf.index], vk.DeviceSize(offset), drawCount, stride)
	return nil
}
