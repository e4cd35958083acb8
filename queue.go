package vkr

import (
	vk "github.com/vulkan-go/vulkan"
)

// Queue wraps one device queue.
type Queue struct {
	Device  *Device
	VKQueue vk.Queue
	Family  uint32
}

func (d *Device) deviceQueue(family uint32) *Queue {
	var queue vk.Queue
	vk.GetDeviceQueue(d.VKDevice, family, 0, &queue)
	return &Queue{Device: d, VKQueue: queue, Family: family}
}

// submit describes one queue submission: command buffers plus the binary
// semaphores ordering it against other submissions.
type submit struct {
	commandBuffers []vk.CommandBuffer
	waits          []vk.Semaphore
	waitStages     []vk.PipelineStageFlags
	signals        []vk.Semaphore
}

// Submit enqueues work, signaling fence on completion when non-nil.
func (q *Queue) Submit(s submit, fence *Fence) error {
	info := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		CommandBufferCount:   uint32(len(s.commandBuffers)),
		PCommandBuffers:      s.commandBuffers,
		WaitSemaphoreCount:   uint32(len(s.waits)),
		PWaitSemaphores:      s.waits,
		PWaitDstStageMask:    s.waitStages,
		SignalSemaphoreCount: uint32(len(s.signals)),
		PSignalSemaphores:    s.signals,
	}
	vkFence := vk.NullFence
	if fence != nil {
		vkFence = fence.VKFence
	}
	return vkResult(vk.QueueSubmit(q.VKQueue, 1, []vk.SubmitInfo{info}, vkFence))
}

// WaitIdle blocks until the queue has drained.
func (q *Queue) WaitIdle() error {
	return vkResult(vk.QueueWaitIdle(q.VKQueue))
}
