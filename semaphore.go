package vkr

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// Semaphore wraps a binary vk.Semaphore.
type Semaphore struct {
	Device      *Device
	VKSemaphore vk.Semaphore
}

func (d *Device) createSemaphore() (*Semaphore, error) {
	info := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if err := vkResult(vk.CreateSemaphore(d.VKDevice, &info, nil, &semaphore)); err != nil {
		return nil, fmt.Errorf("create semaphore: %w", err)
	}
	return &Semaphore{Device: d, VKSemaphore: semaphore}, nil
}

func (s *Semaphore) Destroy() {
	vk.DestroySemaphore(s.Device.VKDevice, s.VKSemaphore, nil)
}
