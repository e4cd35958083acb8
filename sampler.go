package vkr

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// SamplerDescription is the plain-data recipe for an immutable sampler.
type SamplerDescription struct {
	AddressModeU vk.SamplerAddressMode
	AddressModeV vk.SamplerAddressMode
	AddressModeW vk.SamplerAddressMode
	MinFilter    vk.Filter
	MagFilter    vk.Filter
	MipmapMode   vk.SamplerMipmapMode
	LodMin       float32
	LodMax       float32
	// MaxAnisotropy zero disables anisotropic filtering.
	MaxAnisotropy float32
	BorderColor   vk.BorderColor
	Unnormalized  bool
}

// DefaultSamplerDescription is a repeat-wrapped linear sampler.
func DefaultSamplerDescription() SamplerDescription {
	return SamplerDescription{
		MinFilter:  vk.FilterLinear,
		MagFilter:  vk.FilterLinear,
		MipmapMode: vk.SamplerMipmapModeLinear,
		LodMax:     vk.LodClampNone,
	}
}

// Sampler is a device-owned immutable sampler.
type Sampler struct {
	Device      *Device
	VKSampler   vk.Sampler
	Name        string
	Description SamplerDescription

	slot int32
}

func (d *Device) createSamplerResource(name string, desc SamplerDescription) (*Sampler, error) {
	info := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               desc.MagFilter,
		MinFilter:               desc.MinFilter,
		MipmapMode:              desc.MipmapMode,
		AddressModeU:            desc.AddressModeU,
		AddressModeV:            desc.AddressModeV,
		AddressModeW:            desc.AddressModeW,
		MinLod:                  desc.LodMin,
		MaxLod:                  desc.LodMax,
		BorderColor:             desc.BorderColor,
		UnnormalizedCoordinates: vkBool(desc.Unnormalized),
	}
	if desc.MaxAnisotropy > 0 {
		info.AnisotropyEnable = vk.True
		info.MaxAnisotropy = desc.MaxAnisotropy
	}
	var sampler vk.Sampler
	if err := vkResult(vk.CreateSampler(d.VKDevice, &info, nil, &sampler)); err != nil {
		return nil, fmt.Errorf("create sampler %q: %w", name, err)
	}
	return &Sampler{
		Device:      d,
		VKSampler:   sampler,
		Name:        name,
		Description: desc,
		slot:        -1,
	}, nil
}

func (s *Sampler) release() {
	vk.DestroySampler(s.Device.VKDevice, s.VKSampler, nil)
}

func vkBool(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}
