package vkr

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// CommandPool wraps a vk.CommandPool bound to one queue family.
type CommandPool struct {
	Device        *Device
	VKCommandPool vk.CommandPool
	QueueFamily   uint32
}

func (d *Device) createCommandPool(queueFamily uint32) (*CommandPool, error) {
	info := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: queueFamily,
	}
	var pool vk.CommandPool
	if err := vkResult(vk.CreateCommandPool(d.VKDevice, &info, nil, &pool)); err != nil {
		return nil, fmt.Errorf("create command pool: %w", err)
	}
	return &CommandPool{Device: d, VKCommandPool: pool, QueueFamily: queueFamily}, nil
}

// Reset recycles every command buffer allocated from the pool.
func (p *CommandPool) Reset() error {
	return vkResult(vk.ResetCommandPool(p.Device.VKDevice, p.VKCommandPool, 0))
}

// AllocateBuffers allocates primary command buffers from the pool.
func (p *CommandPool) AllocateBuffers(count int) ([]*CommandBuffer, error) {
	info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.VKCommandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(count),
	}
	buffers := make([]vk.CommandBuffer, count)
	if err := vkResult(vk.AllocateCommandBuffers(p.Device.VKDevice, &info, buffers)); err != nil {
		return nil, fmt.Errorf("allocate command buffers: %w", err)
	}
	ret := make([]*CommandBuffer, count)
	for i, cb := range buffers {
		ret[i] = &CommandBuffer{Device: p.Device, Pool: p, VKCommandBuffer: cb}
	}
	return ret, nil
}

func (p *CommandPool) Destroy() {
	vk.DestroyCommandPool(p.Device.VKDevice, p.VKCommandPool, nil)
}

// CommandBuffer wraps a primary vk.CommandBuffer.
type CommandBuffer struct {
	Device          *Device
	Pool            *CommandPool
	VKCommandBuffer vk.CommandBuffer
}

// BeginOneTime starts recording for a single submission.
func (c *CommandBuffer) BeginOneTime() error {
	info := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	return vkResult(vk.BeginCommandBuffer(c.VKCommandBuffer, &info))
}

func (c *CommandBuffer) End() error {
	return vkResult(vk.EndCommandBuffer(c.VKCommandBuffer))
}
