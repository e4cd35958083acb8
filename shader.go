package vkr

import (
	"fmt"
	"os"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// ShaderStage names a SPIR-V entry point. Code is the raw SPIR-V binary.
type ShaderStage struct {
	Code       []byte
	EntryPoint string
}

// LoadShaderStage reads a SPIR-V binary from disk.
func LoadShaderStage(file, entryPoint string) (ShaderStage, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return ShaderStage{}, fmt.Errorf("load shader %q: %w", file, err)
	}
	return ShaderStage{Code: data, EntryPoint: entryPoint}, nil
}

func (d *Device) createShaderModule(stage ShaderStage) (vk.ShaderModule, error) {
	if len(stage.Code) == 0 || len(stage.Code)%4 != 0 {
		return vk.NullShaderModule, fmt.Errorf("shader code size %d is not a SPIR-V binary", len(stage.Code))
	}
	var module vk.ShaderModule
	err := vkResult(vk.CreateShaderModule(d.VKDevice, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(stage.Code)),
		PCode:    sliceUint32(stage.Code),
	}, nil, &module))
	if err != nil {
		return vk.NullShaderModule, fmt.Errorf("create shader module: %w", err)
	}
	return module, nil
}

func (d *Device) shaderStageInfo(module vk.ShaderModule, stage vk.ShaderStageFlagBits, entryPoint string) vk.PipelineShaderStageCreateInfo {
	if entryPoint == "" {
		entryPoint = "main"
	}
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  stage,
		Module: module,
		PName:  safeString(entryPoint),
	}
}

func sliceUint32(data []byte) []uint32 {
	return unsafe.Slice((*uint32)(unsafe.Pointer(unsafe.SliceData(data))), len(data)/4)
}

func safeString(s string) string {
	if len(s) == 0 {
		return "\x00"
	}
	if s[len(s)-1] != '\x00' {
		return s + "\x00"
	}
	return s
}
