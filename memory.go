package vkr

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// DeviceMemory wraps one vk.DeviceMemory allocation.
type DeviceMemory struct {
	Device         *Device
	VKDeviceMemory vk.DeviceMemory
	Size           uint64
	MapCount       int32
	Ptr            unsafe.Pointer
}

// IsMapped returns true if the memory is currently mapped.
func (d *DeviceMemory) IsMapped() bool {
	return atomic.LoadInt32(&d.MapCount) > 0
}

// Map maps the entirety of this memory.
func (d *DeviceMemory) Map() (unsafe.Pointer, error) {
	var res unsafe.Pointer
	err := vkResult(vk.MapMemory(d.Device.VKDevice, d.VKDeviceMemory, 0, vk.DeviceSize(d.Size), 0, &res))
	if err != nil {
		return nil, err
	}
	atomic.AddInt32(&d.MapCount, 1)
	d.Ptr = res
	return res, nil
}

// Unmap unmaps this memory.
func (d *DeviceMemory) Unmap() {
	d.Ptr = nil
	vk.UnmapMemory(d.Device.VKDevice, d.VKDeviceMemory)
	atomic.AddInt32(&d.MapCount, -1)
}

// MapCopyUnmap maps the memory, copies data to offset, and unmaps.
func (d *DeviceMemory) MapCopyUnmap(data []byte, offset uint64) error {
	ptr, err := d.Map()
	if err != nil {
		return err
	}
	copy(bytesAt(ptr, offset, len(data)), data)
	d.Unmap()
	return nil
}

// Destroy frees the memory.
func (d *DeviceMemory) Destroy() {
	vk.FreeMemory(d.Device.VKDevice, d.VKDeviceMemory, nil)
}

func memoryPropertiesFor(location MemoryLocation) vk.MemoryPropertyFlagBits {
	switch location {
	case CpuToGpu:
		return vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	case GpuToCpu:
		return vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit | vk.MemoryPropertyHostCachedBit
	default:
		return vk.MemoryPropertyDeviceLocalBit
	}
}

// memoryBlock is one vk allocation shared by many resources through a
// LinearAllocator. Host-visible blocks stay persistently mapped.
type memoryBlock struct {
	memory    *DeviceMemory
	typeIndex uint32
	props     vk.MemoryPropertyFlagBits
	allocator LinearAllocator
	mapped    unsafe.Pointer
}

// deviceAllocation is a placed sub-range of a memory block.
type deviceAllocation struct {
	block *memoryBlock
	alloc *Allocation
}

func (a deviceAllocation) valid() bool {
	return a.block != nil
}

// bytes returns the host-visible window of the allocation, or nil for
// device-local memory.
func (a deviceAllocation) bytes() []byte {
	if a.block == nil || a.block.mapped == nil {
		return nil
	}
	return bytesAt(a.block.mapped, a.alloc.Offset, int(a.alloc.Size))
}

// deviceAllocator sub-allocates resource memory from large per-type blocks.
type deviceAllocator struct {
	device    *Device
	blockSize uint64
	blocks    []*memoryBlock
}

const defaultMemoryBlockSize = 64 << 20

func newDeviceAllocator(device *Device, blockSize uint64) *deviceAllocator {
	if blockSize == 0 {
		blockSize = defaultMemoryBlockSize
	}
	return &deviceAllocator{device: device, blockSize: blockSize}
}

func (da *deviceAllocator) findTypeIndex(typeBits uint32, props vk.MemoryPropertyFlagBits) (uint32, bool) {
	var memProps vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(da.device.PhysicalDevice.VKPhysicalDevice, &memProps)
	memProps.Deref()
	for i := uint32(0); i < memProps.MemoryTypeCount; i++ {
		if typeBits&(1<<i) == 0 {
			continue
		}
		memProps.MemoryTypes[i].Deref()
		flags := vk.MemoryPropertyFlagBits(memProps.MemoryTypes[i].PropertyFlags)
		if flags&props == props {
			return i, true
		}
	}
	return 0, false
}

// allocate places size bytes of a resource with the given requirements into
// a block of suitable memory, growing a new block when none fits.
func (da *deviceAllocator) allocate(req vk.MemoryRequirements, location MemoryLocation) (deviceAllocation, error) {
	props := memoryPropertiesFor(location)
	typeIndex, ok := da.findTypeIndex(req.MemoryTypeBits, props)
	if !ok && location == GpuToCpu {
		// Not every device exposes a cached read-back type.
		props = vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
		typeIndex, ok = da.findTypeIndex(req.MemoryTypeBits, props)
	}
	if !ok {
		return deviceAllocation{}, fmt.Errorf("allocate: no memory type matches bits %#x props %#x: %w", req.MemoryTypeBits, props, ErrOutOfMemory)
	}

	for _, block := range da.blocks {
		if block.typeIndex != typeIndex {
			continue
		}
		if alloc := block.allocator.Allocate(uint64(req.Size), uint64(req.Alignment)); alloc != nil {
			return deviceAllocation{block: block, alloc: alloc}, nil
		}
	}

	blockSize := da.blockSize
	if uint64(req.Size) > blockSize {
		blockSize = uint64(req.Size)
	}
	block, err := da.newBlock(blockSize, typeIndex, props)
	if err != nil {
		return deviceAllocation{}, err
	}
	alloc := block.allocator.Allocate(uint64(req.Size), uint64(req.Alignment))
	if alloc == nil {
		return deviceAllocation{}, ErrOutOfMemory
	}
	return deviceAllocation{block: block, alloc: alloc}, nil
}

func (da *deviceAllocator) newBlock(size uint64, typeIndex uint32, props vk.MemoryPropertyFlagBits) (*memoryBlock, error) {
	info := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: typeIndex,
	}
	var mem vk.DeviceMemory
	if err := vkResult(vk.AllocateMemory(da.device.VKDevice, &info, nil, &mem)); err != nil {
		return nil, fmt.Errorf("allocate memory block: %w", err)
	}
	block := &memoryBlock{
		memory:    &DeviceMemory{Device: da.device, VKDeviceMemory: mem, Size: size},
		typeIndex: typeIndex,
		props:     props,
		allocator: LinearAllocator{Size: size},
	}
	if props&vk.MemoryPropertyHostVisibleBit != 0 {
		ptr, err := block.memory.Map()
		if err != nil {
			block.memory.Destroy()
			return nil, err
		}
		block.mapped = ptr
	}
	da.blocks = append(da.blocks, block)
	return block, nil
}

func (da *deviceAllocator) free(a deviceAllocation) {
	if a.block == nil {
		return
	}
	a.block.allocator.Free(a.alloc)
}

func (da *deviceAllocator) destroy() {
	for _, block := range da.blocks {
		if block.mapped != nil {
			block.memory.Unmap()
		}
		block.memory.Destroy()
	}
	da.blocks = nil
}
