package vkr

import (
	"fmt"
	"time"

	vk "github.com/vulkan-go/vulkan"
)

// Fence wraps a vk.Fence.
type Fence struct {
	Device  *Device
	VKFence vk.Fence
}

// createFence creates a fence, optionally in the signaled state so the
// first frame's wait returns immediately.
func (d *Device) createFence(signaled bool) (*Fence, error) {
	info := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if err := vkResult(vk.CreateFence(d.VKDevice, &info, nil, &fence)); err != nil {
		return nil, fmt.Errorf("create fence: %w", err)
	}
	return &Fence{Device: d, VKFence: fence}, nil
}

// Wait blocks until the fence signals or the timeout elapses.
func (f *Fence) Wait(timeout time.Duration) error {
	ret := vk.WaitForFences(f.Device.VKDevice, 1, []vk.Fence{f.VKFence}, vk.True, uint64(timeout.Nanoseconds()))
	if ret == vk.Timeout {
		return ErrTimeout
	}
	return vkResult(ret)
}

// Reset returns the fence to the unsignaled state.
func (f *Fence) Reset() error {
	return vkResult(vk.ResetFences(f.Device.VKDevice, 1, []vk.Fence{f.VKFence}))
}

func (f *Fence) Destroy() {
	vk.DestroyFence(f.Device.VKDevice, f.VKFence, nil)
}
