package vkr

import (
	"fmt"
	"sync"

	vk "github.com/vulkan-go/vulkan"
)

// maxPushConstantBytes is the size of the push constant range every
// pipeline layout in the package declares. 128 bytes is the portable
// minimum.
const maxPushConstantBytes = 128

// ComputePipelineDescription is the plain-data recipe for a compute
// pipeline.
type ComputePipelineDescription struct {
	Shader ShaderStage
}

// ComputePipeline is an immutable compute pipeline addressed by handle.
type ComputePipeline struct {
	Device      *Device
	VKPipeline  vk.Pipeline
	Name        string
	Description ComputePipelineDescription

	module vk.ShaderModule
}

func (d *Device) createComputePipelineResource(name string, desc ComputePipelineDescription) (*ComputePipeline, error) {
	module, err := d.createShaderModule(desc.Shader)
	if err != nil {
		return nil, fmt.Errorf("compute pipeline %q: %w", name, err)
	}
	info := vk.ComputePipelineCreateInfo{
		SType:  vk.StructureTypeComputePipelineCreateInfo,
		Stage:  d.shaderStageInfo(module, vk.ShaderStageComputeBit, desc.Shader.EntryPoint),
		Layout: d.VKPipelineLayout,
	}
	pipelines := make([]vk.Pipeline, 1)
	err = vkResult(vk.CreateComputePipelines(d.VKDevice, d.pipelines.VKCache, 1,
		[]vk.ComputePipelineCreateInfo{info}, nil, pipelines))
	if err != nil {
		vk.DestroyShaderModule(d.VKDevice, module, nil)
		return nil, fmt.Errorf("compute pipeline %q: %w", name, err)
	}
	return &ComputePipeline{
		Device:      d,
		VKPipeline:  pipelines[0],
		Name:        name,
		Description: desc,
		module:      module,
	}, nil
}

func (p *ComputePipeline) release() {
	vk.DestroyPipeline(p.Device.VKDevice, p.VKPipeline, nil)
	vk.DestroyShaderModule(p.Device.VKDevice, p.module, nil)
}

// VertexBinding describes one vertex buffer binding of a raster pipeline.
type VertexBinding struct {
	Binding     uint32
	Stride      uint32
	PerInstance bool
}

// VertexAttribute describes one vertex attribute.
type VertexAttribute struct {
	Location uint32
	Binding  uint32
	Format   Format
	Offset   uint32
}

// RasterPipelineDescription is the plain-data recipe for a raster pipeline.
// The framebuffer layout is deliberately absent: concrete pipeline variants
// are built on demand against the attachment formats of the passes the
// pipeline is bound in.
type RasterPipelineDescription struct {
	VertexShader     ShaderStage
	FragmentShader   *ShaderStage
	VertexBindings   []VertexBinding
	VertexAttributes []VertexAttribute

	Topology  vk.PrimitiveTopology
	PolygonMode vk.PolygonMode
	CullMode  vk.CullModeFlagBits
	FrontFace vk.FrontFace

	DepthTest    bool
	DepthWrite   bool
	DepthCompare vk.CompareOp

	// AlphaBlend enables standard src-alpha blending on every color
	// attachment.
	AlphaBlend bool
}

// DefaultRasterPipelineDescription fills the fixed-function state most
// pipelines want: triangle list, back-face culling, depth less.
func DefaultRasterPipelineDescription() RasterPipelineDescription {
	return RasterPipelineDescription{
		Topology:     vk.PrimitiveTopologyTriangleList,
		PolygonMode:  vk.PolygonModeFill,
		CullMode:     vk.CullModeBackBit,
		FrontFace:    vk.FrontFaceCounterClockwise,
		DepthTest:    true,
		DepthWrite:   true,
		DepthCompare: vk.CompareOpLess,
	}
}

// RasterPipeline is an immutable raster pipeline addressed by handle. Its
// concrete vk pipelines are created lazily per framebuffer layout.
type RasterPipeline struct {
	Device      *Device
	Name        string
	Description RasterPipelineDescription

	vertexModule   vk.ShaderModule
	fragmentModule vk.ShaderModule
	variants       map[string]vk.Pipeline
}

func (d *Device) createRasterPipelineResource(name string, desc RasterPipelineDescription) (*RasterPipeline, error) {
	vmod, err := d.createShaderModule(desc.VertexShader)
	if err != nil {
		return nil, fmt.Errorf("raster pipeline %q vertex: %w", name, err)
	}
	fmod := vk.NullShaderModule
	if desc.FragmentShader != nil {
		fmod, err = d.createShaderModule(*desc.FragmentShader)
		if err != nil {
			vk.DestroyShaderModule(d.VKDevice, vmod, nil)
			return nil, fmt.Errorf("raster pipeline %q fragment: %w", name, err)
		}
	}
	return &RasterPipeline{
		Device:         d,
		Name:           name,
		Description:    desc,
		vertexModule:   vmod,
		fragmentModule: fmod,
		variants:       make(map[string]vk.Pipeline),
	}, nil
}

func (p *RasterPipeline) release() {
	for _, pipeline := range p.variants {
		vk.DestroyPipeline(p.Device.VKDevice, pipeline, nil)
	}
	vk.DestroyShaderModule(p.Device.VKDevice, p.vertexModule, nil)
	if p.fragmentModule != vk.NullShaderModule {
		vk.DestroyShaderModule(p.Device.VKDevice, p.fragmentModule, nil)
	}
}

// pipelineCache guards the shared vk pipeline cache and the lazy raster
// variants. Lookups are read-mostly.
type pipelineCache struct {
	mu      sync.Mutex
	VKCache vk.PipelineCache
}

func (d *Device) createPipelineCache() (*pipelineCache, error) {
	info := vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}
	var cache vk.PipelineCache
	if err := vkResult(vk.CreatePipelineCache(d.VKDevice, &info, nil, &cache)); err != nil {
		return nil, fmt.Errorf("create pipeline cache: %w", err)
	}
	return &pipelineCache{VKCache: cache}, nil
}

func (c *pipelineCache) destroy(d *Device) {
	vk.DestroyPipelineCache(d.VKDevice, c.VKCache, nil)
}

// variantFor returns the vk pipeline of p for the given framebuffer layout,
// building and caching it on first use.
func (d *Device) variantFor(p *RasterPipeline, layout framebufferLayout, renderPass vk.RenderPass) (vk.Pipeline, error) {
	d.pipelines.mu.Lock()
	defer d.pipelines.mu.Unlock()

	key := layout.key()
	if pipeline, ok := p.variants[key]; ok {
		return pipeline, nil
	}

	desc := &p.Description
	stages := []vk.PipelineShaderStageCreateInfo{
		d.shaderStageInfo(p.vertexModule, vk.ShaderStageVertexBit, desc.VertexShader.EntryPoint),
	}
	if p.fragmentModule != vk.NullShaderModule {
		stages = append(stages, d.shaderStageInfo(p.fragmentModule, vk.ShaderStageFragmentBit, desc.FragmentShader.EntryPoint))
	}

	bindings := make([]vk.VertexInputBindingDescription, len(desc.VertexBindings))
	for i, b := range desc.VertexBindings {
		rate := vk.VertexInputRateVertex
		if b.PerInstance {
			rate = vk.VertexInputRateInstance
		}
		bindings[i] = vk.VertexInputBindingDescription{
			Binding:   b.Binding,
			Stride:    b.Stride,
			InputRate: rate,
		}
	}
	attributes := make([]vk.VertexInputAttributeDescription, len(desc.VertexAttributes))
	for i, a := range desc.VertexAttributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  a.Binding,
			Format:   a.Format,
			Offset:   a.Offset,
		}
	}
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: desc.Topology,
	}

	// Viewport and scissor are dynamic; the recorder sets them to the
	// framebuffer extent at pass start.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}
	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	raster := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: desc.PolygonMode,
		CullMode:    vk.CullModeFlags(desc.CullMode),
		FrontFace:   desc.FrontFace,
		LineWidth:   1.0,
	}
	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
	}

	blendAttachments := make([]vk.PipelineColorBlendAttachmentState, len(layout.colorFormats))
	for i := range blendAttachments {
		state := vk.PipelineColorBlendAttachmentState{
			ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit |
				vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit),
		}
		if desc.AlphaBlend {
			state.BlendEnable = vk.True
			state.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
			state.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
			state.ColorBlendOp = vk.BlendOpAdd
			state.SrcAlphaBlendFactor = vk.BlendFactorOne
			state.DstAlphaBlendFactor = vk.BlendFactorZero
			state.AlphaBlendOp = vk.BlendOpAdd
		}
		blendAttachments[i] = state
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:  vkBool(desc.DepthTest && layout.hasDepth),
		DepthWriteEnable: vkBool(desc.DepthWrite && layout.hasDepth),
		DepthCompareOp:   desc.DepthCompare,
		MaxDepthBounds:   1.0,
	}

	info := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &raster,
		PMultisampleState:   &multisample,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              d.VKPipelineLayout,
		RenderPass:          renderPass,
	}

	pipelines := make([]vk.Pipeline, 1)
	err := vkResult(vk.CreateGraphicsPipelines(d.VKDevice, d.pipelines.VKCache, 1,
		[]vk.GraphicsPipelineCreateInfo{info}, nil, pipelines))
	if err != nil {
		return vk.NullPipeline, fmt.Errorf("raster pipeline %q variant: %w", p.Name, err)
	}
	p.variants[key] = pipelines[0]
	return pipelines[0], nil
}
