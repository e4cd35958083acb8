package vkr

import (
	"fmt"
	"sync"

	vk "github.com/vulkan-go/vulkan"
)

const defaultStagingSize = 16 << 20

type bufferUpload struct {
	handle BufferHandle
	offset uint64
	data   []byte
}

type imageUpload struct {
	handle ImageHandle
	data   []byte
}

// uploadQueue accumulates WriteBuffer and WriteImage payloads between
// frames. Host-visible buffers are written through the persistent mapping
// immediately; everything else is staged and copied at the head of the
// next submitted frame.
type uploadQueue struct {
	device      *Device
	stagingSize uint64

	mu      sync.Mutex
	buffers []bufferUpload
	images  []imageUpload
	total   uint64
}

func newUploadQueue(device *Device, stagingSize uint64) *uploadQueue {
	if stagingSize == 0 {
		stagingSize = defaultStagingSize
	}
	return &uploadQueue{device: device, stagingSize: stagingSize}
}

// WriteBuffer schedules data into the buffer at the given offset. For
// host-visible buffers the copy happens now; for device-local buffers the
// data lands before the next frame's first pass runs.
func (d *Device) WriteBuffer(h BufferHandle, offset uint64, data []byte) error {
	if err := d.checkAlive(); err != nil {
		return err
	}
	buffer, err := d.store.getBuffer(h)
	if err != nil {
		return err
	}
	if offset+uint64(len(data)) > buffer.Description.Size {
		return fmt.Errorf("write buffer %q: range [%d, %d) exceeds size %d",
			buffer.Name, offset, offset+uint64(len(data)), buffer.Description.Size)
	}
	if host := buffer.Bytes(); host != nil {
		copy(host[offset:], data)
		return nil
	}
	if buffer.Description.Usage&BufferUsageTransferDst == 0 {
		return fmt.Errorf("write buffer %q: device-local target lacks TransferDst usage", buffer.Name)
	}
	d.uploads.mu.Lock()
	d.uploads.buffers = append(d.uploads.buffers, bufferUpload{
		handle: h,
		offset: offset,
		data:   append([]byte(nil), data...),
	})
	d.uploads.total += uint64(len(data))
	d.uploads.mu.Unlock()
	return nil
}

// ReadBuffer copies from a host-visible buffer into data. The caller is
// responsible for frame ordering; typically WaitIdle or a completed frame
// separates the producing pass from the read.
func (d *Device) ReadBuffer(h BufferHandle, offset uint64, data []byte) error {
	if err := d.checkAlive(); err != nil {
		return err
	}
	buffer, err := d.store.getBuffer(h)
	if err != nil {
		return err
	}
	if offset+uint64(len(data)) > buffer.Description.Size {
		return fmt.Errorf("read buffer %q: range [%d, %d) exceeds size %d",
			buffer.Name, offset, offset+uint64(len(data)), buffer.Description.Size)
	}
	host := buffer.Bytes()
	if host == nil {
		return fmt.Errorf("read buffer %q: not host-visible", buffer.Name)
	}
	copy(data, host[offset:])
	return nil
}

// WriteImage schedules tightly packed texel data for the image's base mip
// level across all array layers. The data lands before the next frame's
// first pass runs.
func (d *Device) WriteImage(h ImageHandle, data []byte) error {
	if err := d.checkAlive(); err != nil {
		return err
	}
	image, err := d.store.getImage(h)
	if err != nil {
		return err
	}
	if image.Description.Usage&ImageUsageTransferDst == 0 {
		return fmt.Errorf("write image %q: target lacks TransferDst usage", image.Name)
	}
	d.uploads.mu.Lock()
	d.uploads.images = append(d.uploads.images, imageUpload{
		handle: h,
		data:   append([]byte(nil), data...),
	})
	d.uploads.total += uint64(len(data))
	d.uploads.mu.Unlock()
	return nil
}

func (u *uploadQueue) pending() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.buffers) > 0 || len(u.images) > 0
}

// flush records all queued copies into cmd on the graphics queue and
// retires the staging buffer through the frame's deferred queue. Target
// states in the store are advanced to transfer-write so the following
// graph compilation sees the copies.
func (u *uploadQueue) flush(cmd *CommandBuffer) error {
	u.mu.Lock()
	buffers := u.buffers
	images := u.images
	total := u.total
	u.buffers = nil
	u.images = nil
	u.total = 0
	u.mu.Unlock()

	if len(buffers) == 0 && len(images) == 0 {
		return nil
	}

	d := u.device
	size := total
	if size < u.stagingSize {
		size = u.stagingSize
	}
	staging, err := d.createBufferResource("upload-staging", BufferDescription{
		Size:     size,
		Usage:    BufferUsageTransferSrc,
		Location: CpuToGpu,
	})
	if err != nil {
		return fmt.Errorf("upload flush: %w", err)
	}
	d.retire.enqueue(staging.release)
	host := staging.Bytes()

	// Texel offsets must honor the 4 byte transfer alignment plus the
	// texel size for image copies; 16 covers every format in use.
	var arena BumpAllocator
	arena.Size = size

	family := d.GraphicsQueue.Family

	for _, up := range buffers {
		stagingOffset, ok := arena.Allocate(uint64(len(up.data)), 16)
		if !ok {
			return fmt.Errorf("upload flush: staging arena exhausted at %d bytes", total)
		}
		copy(host[stagingOffset:], up.data)

		target, err := d.store.getBuffer(up.handle)
		if err != nil {
			return fmt.Errorf("upload flush: %w", err)
		}
		barrier := u.bufferPreBarrier(target)
		vk.CmdPipelineBarrier(cmd.VKCommandBuffer,
			vk.PipelineStageFlags(barrier.srcStage), vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			0, 0, nil, 1, []vk.BufferMemoryBarrier{barrier.vk(target.VKBuffer)}, 0, nil)
		vk.CmdCopyBuffer(cmd.VKCommandBuffer, staging.VKBuffer, target.VKBuffer, 1, []vk.BufferCopy{{
			SrcOffset: vk.DeviceSize(stagingOffset),
			DstOffset: vk.DeviceSize(up.offset),
			Size:      vk.DeviceSize(len(up.data)),
		}})
		target.state = bufferState{
			stage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			access: vk.AccessFlags(vk.AccessTransferWriteBit),
			write:  true,
			queue:  family,
		}
	}

	for _, up := range images {
		stagingOffset, ok := arena.Allocate(uint64(len(up.data)), 16)
		if !ok {
			return fmt.Errorf("upload flush: staging arena exhausted at %d bytes", total)
		}
		copy(host[stagingOffset:], up.data)

		target, err := d.store.getImage(up.handle)
		if err != nil {
			return fmt.Errorf("upload flush: %w", err)
		}
		desc := target.Description
		barrier := u.imagePreBarrier(target)
		vk.CmdPipelineBarrier(cmd.VKCommandBuffer,
			vk.PipelineStageFlags(barrier.srcStage), vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier.vk(target.VKImage, aspectFor(desc.Format))})
		vk.CmdCopyBufferToImage(cmd.VKCommandBuffer, staging.VKBuffer, target.VKImage,
			vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{{
				BufferOffset: vk.DeviceSize(stagingOffset),
				ImageSubresource: vk.ImageSubresourceLayers{
					AspectMask: vk.ImageAspectFlags(aspectFor(desc.Format)),
					LayerCount: desc.ArrayLayers,
				},
				ImageExtent: vk.Extent3D{Width: desc.Width, Height: desc.Height, Depth: desc.Depth},
			}})
		target.state = imageState{
			stage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			access: vk.AccessFlags(vk.AccessTransferWriteBit),
			write:  true,
			queue:  family,
			layout: vk.ImageLayoutTransferDstOptimal,
		}
	}

	d.Debug.Verbosef("uploaded %d bytes in %d buffer and %d image copies",
		total, len(buffers), len(images))
	return nil
}

func (u *uploadQueue) bufferPreBarrier(target *Buffer) bufferBarrier {
	b := bufferBarrier{
		srcStage:  target.state.stage,
		srcAccess: target.state.access,
		dstStage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		dstAccess: vk.AccessFlags(vk.AccessTransferWriteBit),
		srcQueue:  vk.QueueFamilyIgnored,
		dstQueue:  vk.QueueFamilyIgnored,
	}
	if b.srcStage == 0 {
		b.srcStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	return b
}

func (u *uploadQueue) imagePreBarrier(target *Image) imageBarrier {
	b := imageBarrier{
		srcStage:  target.state.stage,
		srcAccess: target.state.access,
		dstStage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		dstAccess: vk.AccessFlags(vk.AccessTransferWriteBit),
		oldLayout: target.state.layout,
		newLayout: vk.ImageLayoutTransferDstOptimal,
		srcQueue:  vk.QueueFamilyIgnored,
		dstQueue:  vk.QueueFamilyIgnored,
	}
	if b.srcStage == 0 {
		b.srcStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	if target.state.firstUse {
		b.oldLayout = vk.ImageLayoutUndefined
	}
	return b
}
