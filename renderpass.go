package vkr

import (
	"fmt"
	"sync"

	vk "github.com/vulkan-go/vulkan"
)

// renderPassCache builds and caches vk render passes for the attachment
// layouts raster passes declare. Attachments enter and leave in their
// optimal attachment layout; the graph's barriers own every transition, so
// render passes never change layouts themselves.
//
// The cache key covers formats plus load ops: load ops live inside the
// render pass, while pipelines only care about formats and are built
// against the format-keyed prototype pass (render pass compatibility makes
// that valid).
type renderPassCache struct {
	mu     sync.Mutex
	device *Device
	passes map[string]vk.RenderPass
	// prototype passes keyed by format layout only, used for pipeline
	// creation.
	prototypes map[string]vk.RenderPass
}

func newRenderPassCache(device *Device) *renderPassCache {
	return &renderPassCache{
		device:     device,
		passes:     make(map[string]vk.RenderPass),
		prototypes: make(map[string]vk.RenderPass),
	}
}

func renderPassKey(layout framebufferLayout, fb *Framebuffer) string {
	key := []byte(layout.key())
	key = append(key, 0xff)
	for _, att := range fb.Colors {
		key = append(key, byte(att.Load))
	}
	if fb.DepthStencil != nil {
		key = append(key, 0xfe, byte(fb.DepthStencil.Load))
	}
	return string(key)
}

// passFor returns the render pass for one raster pass declaration.
func (c *renderPassCache) passFor(layout framebufferLayout, fb *Framebuffer) (vk.RenderPass, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := renderPassKey(layout, fb)
	if rp, ok := c.passes[key]; ok {
		return rp, nil
	}
	rp, err := c.build(layout, fb)
	if err != nil {
		return vk.NullRenderPass, err
	}
	c.passes[key] = rp
	return rp, nil
}

// prototypeFor returns a load-op-agnostic render pass compatible with every
// concrete pass of the same format layout. Pipelines are created against
// it.
func (c *renderPassCache) prototypeFor(layout framebufferLayout) (vk.RenderPass, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := layout.key()
	if rp, ok := c.prototypes[key]; ok {
		return rp, nil
	}
	fb := Framebuffer{Colors: make([]ColorAttachment, len(layout.colorFormats))}
	for i := range fb.Colors {
		fb.Colors[i].Load = LoadOpDontCare
	}
	if layout.hasDepth {
		fb.DepthStencil = &DepthStencilAttachment{Load: LoadOpDontCare}
	}
	rp, err := c.build(layout, &fb)
	if err != nil {
		return vk.NullRenderPass, err
	}
	c.prototypes[key] = rp
	return rp, nil
}

func (c *renderPassCache) build(layout framebufferLayout, fb *Framebuffer) (vk.RenderPass, error) {
	var attachments []vk.AttachmentDescription
	var colorRefs []vk.AttachmentReference

	for i, format := range layout.colorFormats {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         format,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         fb.Colors[i].Load.vk(),
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
		})
		colorRefs = append(colorRefs, vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorRefs)),
		PColorAttachments:    colorRefs,
	}

	if layout.hasDepth {
		depthLayout := vk.ImageLayoutDepthStencilAttachmentOptimal
		if fb.DepthStencil != nil && fb.DepthStencil.ReadOnly {
			depthLayout = vk.ImageLayoutDepthStencilReadOnlyOptimal
		}
		load := LoadOpDontCare
		if fb.DepthStencil != nil {
			load = fb.DepthStencil.Load
		}
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         layout.depthFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         load.vk(),
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  depthLayout,
			FinalLayout:    depthLayout,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(len(attachments) - 1),
			Layout:     depthLayout,
		}
	}

	info := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}
	var renderPass vk.RenderPass
	if err := vkResult(vk.CreateRenderPass(c.device.VKDevice, &info, nil, &renderPass)); err != nil {
		return vk.NullRenderPass, fmt.Errorf("create render pass: %w", err)
	}
	return renderPass, nil
}

func (c *renderPassCache) destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rp := range c.passes {
		vk.DestroyRenderPass(c.device.VKDevice, rp, nil)
	}
	for _, rp := range c.prototypes {
		vk.DestroyRenderPass(c.device.VKDevice, rp, nil)
	}
	c.passes = make(map[string]vk.RenderPass)
	c.prototypes = make(map[string]vk.RenderPass)
}
