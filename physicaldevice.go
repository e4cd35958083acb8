package vkr

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// PhysicalDevice is one hardware device known to the instance.
type PhysicalDevice struct {
	Index                      int
	DeviceName                 string
	VKPhysicalDevice           vk.PhysicalDevice
	VKPhysicalDeviceProperties vk.PhysicalDeviceProperties
}

// DeviceInfo is the plain-data summary handed to device scoring functions.
type DeviceInfo struct {
	Index           int
	Name            string
	Type            vk.PhysicalDeviceType
	SupportsPresent bool
	HasAsyncCompute bool
	HasTransfer     bool
}

// ScoreFunc ranks candidate devices. The device with the highest positive
// score wins; zero or negative disqualifies.
type ScoreFunc func(info DeviceInfo) int

// DefaultDeviceScore prefers discrete GPUs, then integrated, and requires
// present support when a surface is in play.
func DefaultDeviceScore(info DeviceInfo) int {
	score := 10
	switch info.Type {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		score = 1000
	case vk.PhysicalDeviceTypeIntegratedGpu:
		score = 100
	}
	if info.HasAsyncCompute {
		score += 10
	}
	if info.HasTransfer {
		score += 5
	}
	return score
}

// PhysicalDevices enumerates the hardware devices of the instance.
func (i *Instance) PhysicalDevices() ([]*PhysicalDevice, error) {
	var count uint32
	if err := vkResult(vk.EnumeratePhysicalDevices(i.VKInstance, &count, nil)); err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	if count == 0 {
		return nil, nil
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := vkResult(vk.EnumeratePhysicalDevices(i.VKInstance, &count, devices)); err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}

	ret := make([]*PhysicalDevice, count)
	for idx, device := range devices {
		pd := &PhysicalDevice{Index: idx, VKPhysicalDevice: device}
		vk.GetPhysicalDeviceProperties(device, &pd.VKPhysicalDeviceProperties)
		pd.VKPhysicalDeviceProperties.Deref()
		pd.DeviceName = vk.ToString(pd.VKPhysicalDeviceProperties.DeviceName[:])
		ret[idx] = pd
	}
	return ret, nil
}

// QueueFamilies returns the queue families of the device.
func (p *PhysicalDevice) QueueFamilies() QueueFamilySlice {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(p.VKPhysicalDevice, &count, nil)
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(p.VKPhysicalDevice, &count, props)

	families := make(QueueFamilySlice, count)
	for i := range props {
		props[i].Deref()
		families[i] = &QueueFamily{
			Index:                   i,
			PhysicalDevice:          p,
			VKQueueFamilyProperties: props[i],
		}
	}
	return families
}

func (p *PhysicalDevice) info(surface vk.Surface) DeviceInfo {
	families := p.QueueFamilies()
	info := DeviceInfo{
		Index:           p.Index,
		Name:            p.DeviceName,
		Type:            p.VKPhysicalDeviceProperties.DeviceType,
		HasAsyncCompute: len(families.FilterAsyncCompute()) > 0,
		HasTransfer:     len(families.FilterDedicatedTransfer()) > 0,
	}
	if surface != vk.NullSurface {
		info.SupportsPresent = len(families.FilterGraphicsAndPresent(surface)) > 0
	}
	return info
}

// SupportedDevices summarizes every physical device, with present support
// evaluated against surface when one is given.
func (i *Instance) SupportedDevices(surface vk.Surface) ([]DeviceInfo, error) {
	devices, err := i.PhysicalDevices()
	if err != nil {
		return nil, err
	}
	infos := make([]DeviceInfo, len(devices))
	for idx, pd := range devices {
		infos[idx] = pd.info(surface)
	}
	return infos, nil
}

// selectDevice applies a scoring function over all devices.
func (i *Instance) selectDevice(score ScoreFunc, surface vk.Surface) (*PhysicalDevice, error) {
	if score == nil {
		score = DefaultDeviceScore
	}
	devices, err := i.PhysicalDevices()
	if err != nil {
		return nil, err
	}
	var best *PhysicalDevice
	bestScore := 0
	for _, pd := range devices {
		if s := score(pd.info(surface)); s > bestScore {
			best = pd
			bestScore = s
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no suitable physical device")
	}
	return best, nil
}
