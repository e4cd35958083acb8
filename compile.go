package vkr

import (
	vk "github.com/vulkan-go/vulkan"
)

// bufferState is the last-state tuple tracked per buffer: the stage and
// access masks of the most recent use, whether it wrote, and the queue
// family it ran on.
type bufferState struct {
	stage  vk.PipelineStageFlags
	access vk.AccessFlags
	write  bool
	queue  uint32
}

// imageState extends bufferState with the current image layout. firstUse
// marks an image with no GPU history; its first barrier transitions from
// Undefined.
type imageState struct {
	stage    vk.PipelineStageFlags
	access   vk.AccessFlags
	write    bool
	queue    uint32
	layout   vk.ImageLayout
	firstUse bool
}

// queueCaps describes the queue families compilation may target. When the
// device has no async compute or dedicated transfer family the respective
// fields repeat the graphics family.
type queueCaps struct {
	graphicsFamily  uint32
	computeFamily   uint32
	transferFamily  uint32
	hasAsyncCompute bool
	hasTransfer     bool
}

// bufferBarrier is one planned buffer memory barrier. Queue fields are
// QueueFamilyIgnored unless the barrier transfers ownership.
type bufferBarrier struct {
	buffer    BufferRef
	srcStage  vk.PipelineStageFlags
	dstStage  vk.PipelineStageFlags
	srcAccess vk.AccessFlags
	dstAccess vk.AccessFlags
	srcQueue  uint32
	dstQueue  uint32
}

// imageBarrier is one planned image memory barrier with its layout
// transition.
type imageBarrier struct {
	image     ImageRef
	srcStage  vk.PipelineStageFlags
	dstStage  vk.PipelineStageFlags
	srcAccess vk.AccessFlags
	dstAccess vk.AccessFlags
	oldLayout vk.ImageLayout
	newLayout vk.ImageLayout
	srcQueue  uint32
	dstQueue  uint32
}

// framebufferLayout is the attachment format signature of a raster pass.
// Pipelines are resolved against it and render passes are cached by it.
type framebufferLayout struct {
	colorFormats []Format
	depthFormat  Format
	hasDepth     bool
}

func (l framebufferLayout) key() string {
	key := make([]byte, 0, len(l.colorFormats)*4+5)
	for _, f := range l.colorFormats {
		key = append(key, byte(f), byte(f>>8), byte(f>>16), byte(f>>24))
	}
	if l.hasDepth {
		key = append(key, 1, byte(l.depthFormat), byte(l.depthFormat>>8), byte(l.depthFormat>>16), byte(l.depthFormat>>24))
	}
	return string(key)
}

// passPlan is the compiled form of one pass: its resolved queue family and
// the barrier batch recorded immediately before its commands. Release
// barriers belong to the tail of the previous submission batch when the
// pass changed queue families.
type passPlan struct {
	pass           *graphPass
	family         uint32
	bufferBarriers []bufferBarrier
	imageBarriers  []imageBarrier
	releaseBuffers []bufferBarrier
	releaseImages  []imageBarrier
	fbLayout       framebufferLayout
}

// framePlan is the compiler output the recorder walks.
type framePlan struct {
	graph  *graph
	passes []passPlan
	// final transitions moving swapchain images to the present layout.
	final []imageBarrier
	// physical slot per image; differs from the slot's own index only for
	// aliased transients.
	imageAlias []int
	// states written back to the store for imported resources at submit.
	bufferStates []bufferState
	imageStates  []imageState
	// live interval per image, in pass indices. Swapchain handling and
	// aliasing both read these.
	imageFirstPass []int
	imageLastPass  []int
}

// compileGraph turns a declared graph into a frame plan: it validates
// accesses against usage sets, assigns queue families, walks passes in
// declaration order synthesizing one barrier batch per pass, materializes
// transient aliasing, and appends the final present transitions.
func compileGraph(g *graph, caps queueCaps) (*framePlan, error) {
	plan := &framePlan{
		graph:          g,
		passes:         make([]passPlan, 0, len(g.passes)),
		imageAlias:     make([]int, len(g.images)),
		bufferStates:   make([]bufferState, len(g.buffers)),
		imageStates:    make([]imageState, len(g.images)),
		imageFirstPass: make([]int, len(g.images)),
		imageLastPass:  make([]int, len(g.images)),
	}
	for i := range g.buffers {
		plan.bufferStates[i] = g.buffers[i].state
	}
	for i := range g.images {
		plan.imageAlias[i] = i
		plan.imageStates[i] = g.images[i].state
		plan.imageFirstPass[i] = -1
		plan.imageLastPass[i] = -1
	}

	for pi := range g.passes {
		pass := &g.passes[pi]

		family, err := resolvePassFamily(pass, caps)
		if err != nil {
			return nil, err
		}
		pp := passPlan{pass: pass, family: family}

		for _, use := range pass.buffers {
			buf := &g.buffers[use.Buffer.index]
			if need := use.Access.requiredUsage(); buf.usage&need == 0 {
				return nil, invalidGraphf("pass %q: buffer %q lacks usage for access", pass.name, buf.name)
			}
			if barrier, release, ok := nextBufferState(&plan.bufferStates[use.Buffer.index], use, family); ok {
				pp.bufferBarriers = append(pp.bufferBarriers, barrier)
				if release {
					pp.releaseBuffers = append(pp.releaseBuffers, barrier)
				}
			}
		}
		for _, use := range pass.images {
			img := &g.images[use.Image.index]
			if need := use.Access.requiredUsage(); img.usage&need == 0 {
				return nil, invalidGraphf("pass %q: image %q lacks usage for access", pass.name, img.name)
			}
			if plan.imageFirstPass[use.Image.index] < 0 {
				plan.imageFirstPass[use.Image.index] = pi
			}
			plan.imageLastPass[use.Image.index] = pi
			if barrier, release, ok := nextImageState(&plan.imageStates[use.Image.index], use, family); ok {
				pp.imageBarriers = append(pp.imageBarriers, barrier)
				if release {
					pp.releaseImages = append(pp.releaseImages, barrier)
				}
			}
		}

		if pass.kind == passRaster {
			pp.fbLayout = resolveFramebufferLayout(g, pass)
		}
		plan.passes = append(plan.passes, pp)
	}

	if g.aliasing {
		aliasTransientImages(g, plan)
	}

	for i := range g.images {
		if !g.images[i].swapchain {
			continue
		}
		state := plan.imageStates[i]
		old := state.layout
		srcStage := state.stage
		srcAccess := state.access
		if state.firstUse {
			old = vk.ImageLayoutUndefined
			srcStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
			srcAccess = 0
		}
		plan.final = append(plan.final, imageBarrier{
			image:     ImageRef{index: i},
			srcStage:  srcStage,
			dstStage:  vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
			srcAccess: srcAccess,
			dstAccess: vk.AccessFlags(vk.AccessMemoryReadBit),
			oldLayout: old,
			newLayout: vk.ImageLayoutPresentSrc,
			srcQueue:  vk.QueueFamilyIgnored,
			dstQueue:  vk.QueueFamilyIgnored,
		})
		plan.imageStates[i].layout = vk.ImageLayoutPresentSrc
		plan.imageStates[i].firstUse = false
	}

	return plan, nil
}

func resolvePassFamily(pass *graphPass, caps queueCaps) (uint32, error) {
	switch pass.kind {
	case passRaster:
		return caps.graphicsFamily, nil
	case passCompute:
		switch pass.queue {
		case PreferAsyncCompute:
			if caps.hasAsyncCompute {
				return caps.computeFamily, nil
			}
			return caps.graphicsFamily, nil
		case ForceAsyncCompute:
			if !caps.hasAsyncCompute {
				return 0, invalidGraphf("pass %q requires an async compute queue", pass.name)
			}
			return caps.computeFamily, nil
		}
		return caps.graphicsFamily, nil
	default:
		if pass.queue != QueueGraphics && caps.hasTransfer {
			return caps.transferFamily, nil
		}
		return caps.graphicsFamily, nil
	}
}

// nextBufferState advances a buffer's last-state tuple for one use. It
// returns the barrier to batch before the pass, whether that barrier is a
// queue ownership transfer needing a matching release, and whether a
// barrier is needed at all. Read-after-read widens the tracked masks
// without a barrier.
func nextBufferState(state *bufferState, use BufferUse, family uint32) (bufferBarrier, bool, bool) {
	dstStage, dstAccess := use.Access.barrierFlags()
	write := use.Access.IsWrite()

	if state.stage == 0 {
		// First GPU use. Nothing to wait on.
		*state = bufferState{stage: dstStage, access: dstAccess, write: write, queue: family}
		return bufferBarrier{}, false, false
	}
	if !state.write && !write {
		state.stage |= dstStage
		state.access |= dstAccess
		state.queue = family
		return bufferBarrier{}, false, false
	}

	barrier := bufferBarrier{
		buffer:    use.Buffer,
		srcStage:  state.stage,
		dstStage:  dstStage,
		srcAccess: state.access,
		dstAccess: dstAccess,
		srcQueue:  vk.QueueFamilyIgnored,
		dstQueue:  vk.QueueFamilyIgnored,
	}
	release := false
	if state.queue != family {
		barrier.srcQueue = state.queue
		barrier.dstQueue = family
		release = true
	}
	*state = bufferState{stage: dstStage, access: dstAccess, write: write, queue: family}
	return barrier, release, true
}

// nextImageState is the image version of nextBufferState: a layout change
// forces a barrier even between reads.
func nextImageState(state *imageState, use ImageUse, family uint32) (imageBarrier, bool, bool) {
	dstStage, dstAccess, layout := use.Access.barrierFlags()
	write := use.Access.IsWrite()

	if state.firstUse {
		barrier := imageBarrier{
			image:     use.Image,
			srcStage:  vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
			dstStage:  dstStage,
			srcAccess: 0,
			dstAccess: dstAccess,
			oldLayout: vk.ImageLayoutUndefined,
			newLayout: layout,
			srcQueue:  vk.QueueFamilyIgnored,
			dstQueue:  vk.QueueFamilyIgnored,
		}
		*state = imageState{stage: dstStage, access: dstAccess, write: write, queue: family, layout: layout}
		return barrier, false, true
	}
	if !state.write && !write && state.layout == layout {
		state.stage |= dstStage
		state.access |= dstAccess
		state.queue = family
		return imageBarrier{}, false, false
	}

	barrier := imageBarrier{
		image:     use.Image,
		srcStage:  state.stage,
		dstStage:  dstStage,
		srcAccess: state.access,
		dstAccess: dstAccess,
		oldLayout: state.layout,
		newLayout: layout,
		srcQueue:  vk.QueueFamilyIgnored,
		dstQueue:  vk.QueueFamilyIgnored,
	}
	release := false
	if state.queue != family && (state.write || write) {
		barrier.srcQueue = state.queue
		barrier.dstQueue = family
		release = true
	}
	*state = imageState{stage: dstStage, access: dstAccess, write: write, queue: family, layout: layout}
	return barrier, release, true
}

func resolveFramebufferLayout(g *graph, pass *graphPass) framebufferLayout {
	var layout framebufferLayout
	for _, att := range pass.framebuffer.Colors {
		layout.colorFormats = append(layout.colorFormats, g.images[att.Image.index].format)
	}
	if ds := pass.framebuffer.DepthStencil; ds != nil {
		layout.hasDepth = true
		layout.depthFormat = g.images[ds.Image.index].format
	}
	return layout
}

// aliasTransientImages assigns transient images with disjoint live ranges
// and identical descriptions to shared physical slots. The Undefined
// transition every materialized transient already starts with keeps reads
// from observing the previous occupant.
func aliasTransientImages(g *graph, plan *framePlan) {
	type slot struct {
		owner    int
		desc     ImageDescription
		lastPass int
	}
	var slots []slot
	for i := range g.images {
		if g.images[i].transient == nil || plan.imageFirstPass[i] < 0 {
			continue
		}
		assigned := false
		for si := range slots {
			if slots[si].lastPass < plan.imageFirstPass[i] && slots[si].desc == *g.images[i].transient {
				plan.imageAlias[i] = slots[si].owner
				slots[si].lastPass = plan.imageLastPass[i]
				assigned = true
				break
			}
		}
		if !assigned {
			slots = append(slots, slot{owner: i, desc: *g.images[i].transient, lastPass: plan.imageLastPass[i]})
		}
	}
}
