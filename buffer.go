package vkr

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// BufferDescription is the plain-data recipe for a buffer.
type BufferDescription struct {
	Size     uint64
	Usage    BufferUsage
	Location MemoryLocation
}

// Buffer is a device-owned buffer together with its placed memory. Obtained
// through Device.CreateBuffer and addressed by handle afterwards.
type Buffer struct {
	Device      *Device
	VKBuffer    vk.Buffer
	Name        string
	Description BufferDescription

	allocation deviceAllocation
	// storage bindless slot, negative when the buffer has no Storage usage.
	slot int32
	// state carries visibility tracking across frames.
	state bufferState
}

func (d *Device) createBufferResource(name string, desc BufferDescription) (*Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("create buffer %q: zero size", name)
	}
	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       vk.BufferUsageFlags(desc.Usage.vk()),
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := vkResult(vk.CreateBuffer(d.VKDevice, &info, nil, &buffer)); err != nil {
		return nil, fmt.Errorf("create buffer %q: %w", name, err)
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.VKDevice, buffer, &req)
	req.Deref()

	allocation, err := d.allocator.allocate(req, desc.Location)
	if err != nil {
		vk.DestroyBuffer(d.VKDevice, buffer, nil)
		return nil, fmt.Errorf("create buffer %q: %w", name, err)
	}
	if err := vkResult(vk.BindBufferMemory(d.VKDevice, buffer, allocation.block.memory.VKDeviceMemory, vk.DeviceSize(allocation.alloc.Offset))); err != nil {
		d.allocator.free(allocation)
		vk.DestroyBuffer(d.VKDevice, buffer, nil)
		return nil, fmt.Errorf("bind buffer %q: %w", name, err)
	}

	return &Buffer{
		Device:      d,
		VKBuffer:    buffer,
		Name:        name,
		Description: desc,
		allocation:  allocation,
		slot:        -1,
	}, nil
}

// Bytes returns the host-visible window of the buffer, or nil for GpuOnly
// buffers.
func (b *Buffer) Bytes() []byte {
	data := b.allocation.bytes()
	if data == nil {
		return nil
	}
	return data[:b.Description.Size]
}

// release destroys the GPU object and frees its memory. Called from the
// retire queue once no in-flight frame references the buffer.
func (b *Buffer) release() {
	vk.DestroyBuffer(b.Device.VKDevice, b.VKBuffer, nil)
	b.Device.allocator.free(b.allocation)
}
