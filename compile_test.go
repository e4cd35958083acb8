package vkr

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

// fixtureResolver serves handle lookups for builder and compiler tests
// without a live device.
type fixtureResolver struct {
	buffers map[BufferHandle]fixtureBuffer
	images  map[ImageHandle]fixtureImage
}

type fixtureBuffer struct {
	desc  BufferDescription
	state bufferState
}

type fixtureImage struct {
	desc  ImageDescription
	state imageState
}

func (r *fixtureResolver) resolveBuffer(h BufferHandle) (BufferDescription, bufferState, error) {
	f, ok := r.buffers[h]
	if !ok {
		return BufferDescription{}, bufferState{}, ErrInvalidHandle
	}
	return f.desc, f.state, nil
}

func (r *fixtureResolver) resolveImage(h ImageHandle) (ImageDescription, imageState, error) {
	f, ok := r.images[h]
	if !ok {
		return ImageDescription{}, imageState{}, ErrInvalidHandle
	}
	return f.desc, f.state, nil
}

func (r *fixtureResolver) resolveComputePipeline(h ComputePipelineHandle) (ComputePipelineDescription, error) {
	return ComputePipelineDescription{}, nil
}

func (r *fixtureResolver) resolveRasterPipeline(h RasterPipelineHandle) (RasterPipelineDescription, error) {
	return RasterPipelineDescription{}, nil
}

func newTestBuilder() *GraphBuilder {
	return newGraphBuilder(nil, &fixtureResolver{
		buffers: map[BufferHandle]fixtureBuffer{},
		images:  map[ImageHandle]fixtureImage{},
	})
}

var (
	singleQueue = queueCaps{graphicsFamily: 0, computeFamily: 0, transferFamily: 0}
	threeQueues = queueCaps{graphicsFamily: 0, computeFamily: 1, transferFamily: 2, hasAsyncCompute: true, hasTransfer: true}
)

func compileOrFail(t *testing.T, b *GraphBuilder, caps queueCaps) *framePlan {
	t.Helper()
	plan, err := compileGraph(&b.graph, caps)
	require.NoError(t, err)
	return plan
}

func testComputePipeline() ComputePipelineHandle {
	return ComputePipelineHandle{Handle{Index: 1, Generation: 1}}
}

func TestClearAndPresentBarrierPair(t *testing.T) {
	b := newTestBuilder()
	sc, err := b.AcquireSwapchainImage()
	require.NoError(t, err)
	require.NoError(t, b.AddRasterPass("clear", Framebuffer{
		Colors: []ColorAttachment{{Image: sc, Load: LoadOpClear, Clear: [4]float32{0.1, 0.2, 0.3, 1}}},
	}, nil, nil, nil, nil))

	plan := compileOrFail(t, b, singleQueue)
	require.Len(t, plan.passes, 1)

	require.Len(t, plan.passes[0].imageBarriers, 1)
	barrier := plan.passes[0].imageBarriers[0]
	assert.Equal(t, vk.ImageLayoutUndefined, barrier.oldLayout)
	assert.Equal(t, vk.ImageLayoutColorAttachmentOptimal, barrier.newLayout)

	require.Len(t, plan.final, 1)
	final := plan.final[0]
	assert.Equal(t, vk.ImageLayoutColorAttachmentOptimal, final.oldLayout)
	assert.Equal(t, vk.ImageLayoutPresentSrc, final.newLayout)
}

func TestUnusedSwapchainImageStillPresents(t *testing.T) {
	b := newTestBuilder()
	_, err := b.AcquireSwapchainImage()
	require.NoError(t, err)

	plan := compileOrFail(t, b, singleQueue)
	require.Len(t, plan.final, 1)
	assert.Equal(t, vk.ImageLayoutUndefined, plan.final[0].oldLayout)
	assert.Equal(t, vk.ImageLayoutPresentSrc, plan.final[0].newLayout)
}

func TestUploadedBuffersBarrierBeforeDraw(t *testing.T) {
	resolver := &fixtureResolver{
		buffers: map[BufferHandle]fixtureBuffer{},
		images:  map[ImageHandle]fixtureImage{},
	}
	uploaded := bufferState{
		stage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		access: vk.AccessFlags(vk.AccessTransferWriteBit),
		write:  true,
		queue:  0,
	}
	vertices := BufferHandle{Handle{Index: 1, Generation: 1}}
	indices := BufferHandle{Handle{Index: 2, Generation: 1}}
	resolver.buffers[vertices] = fixtureBuffer{desc: BufferDescription{Size: 144, Usage: BufferUsageVertex | BufferUsageTransferDst}, state: uploaded}
	resolver.buffers[indices] = fixtureBuffer{desc: BufferDescription{Size: 12, Usage: BufferUsageIndex | BufferUsageTransferDst}, state: uploaded}

	b := newGraphBuilder(nil, resolver)
	vref, err := b.UseBuffer(vertices)
	require.NoError(t, err)
	iref, err := b.UseBuffer(indices)
	require.NoError(t, err)
	target := b.CreateTransientImage("color", ImageDescription{
		Kind: ImageKind2D, Width: 640, Height: 480,
		Format: vk.FormatB8g8r8a8Unorm, Usage: ImageUsageColorAttachment,
	})
	require.NoError(t, b.AddRasterPass("triangle", Framebuffer{
		Colors: []ColorAttachment{{Image: target, Load: LoadOpClear}},
	}, []BufferUse{
		{Buffer: vref, Access: BufferAccessVertexRead},
		{Buffer: iref, Access: BufferAccessIndexRead},
	}, nil, nil, nil))

	plan := compileOrFail(t, b, singleQueue)
	require.Len(t, plan.passes, 1)
	require.Len(t, plan.passes[0].bufferBarriers, 2)
	for _, barrier := range plan.passes[0].bufferBarriers {
		assert.Equal(t, vk.AccessFlags(vk.AccessTransferWriteBit), barrier.srcAccess)
		assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTransferBit), barrier.srcStage)
	}
}

func TestPingPongComputeBarriers(t *testing.T) {
	b := newTestBuilder()
	bufA := b.CreateTransientBuffer("a", BufferDescription{Size: 4096, Usage: BufferUsageStorage})
	bufB := b.CreateTransientBuffer("b", BufferDescription{Size: 4096, Usage: BufferUsageStorage})

	pipeline := testComputePipeline()
	require.NoError(t, b.AddComputePass("seed", QueueGraphics, pipeline, DispatchGroups(64, 1, 1), nil,
		[]BufferUse{{Buffer: bufA, Access: BufferAccessShaderWrite}}, nil))
	require.NoError(t, b.AddComputePass("forward", QueueGraphics, pipeline, DispatchGroups(64, 1, 1), nil,
		[]BufferUse{
			{Buffer: bufA, Access: BufferAccessShaderRead},
			{Buffer: bufB, Access: BufferAccessShaderWrite},
		}, nil))
	require.NoError(t, b.AddComputePass("back", QueueGraphics, pipeline, DispatchGroups(64, 1, 1), nil,
		[]BufferUse{
			{Buffer: bufB, Access: BufferAccessShaderRead},
			{Buffer: bufA, Access: BufferAccessShaderWrite},
		}, nil))

	plan := compileOrFail(t, b, singleQueue)
	require.Len(t, plan.passes, 3)

	// First touch of each buffer needs no barrier.
	assert.Empty(t, plan.passes[0].bufferBarriers)
	// Pass two: write-to-read hazard on A only; B is first touched here.
	require.Len(t, plan.passes[1].bufferBarriers, 1)
	assert.Equal(t, bufA, plan.passes[1].bufferBarriers[0].buffer)
	// Pass three: hazards on both.
	assert.Len(t, plan.passes[2].bufferBarriers, 2)
}

func TestReadAfterReadWidensWithoutBarrier(t *testing.T) {
	b := newTestBuilder()
	img := b.CreateTransientImage("lut", ImageDescription{
		Kind: ImageKind2D, Width: 256, Height: 256,
		Format: vk.FormatR8g8b8a8Unorm, Usage: ImageUsageSampled | ImageUsageStorage,
	})
	pipeline := testComputePipeline()
	require.NoError(t, b.AddComputePass("first", QueueGraphics, pipeline, DispatchGroups(1, 1, 1), nil, nil,
		[]ImageUse{{Image: img, Access: ImageAccessStorageRead}}))
	require.NoError(t, b.AddComputePass("second", QueueGraphics, pipeline, DispatchGroups(1, 1, 1), nil, nil,
		[]ImageUse{{Image: img, Access: ImageAccessStorageRead}}))

	plan := compileOrFail(t, b, singleQueue)
	// The first use transitions from Undefined; the second is a read of a
	// read in the same layout.
	require.Len(t, plan.passes[0].imageBarriers, 1)
	assert.Empty(t, plan.passes[1].imageBarriers)
}

func TestLayoutChangeBetweenReadsForcesBarrier(t *testing.T) {
	b := newTestBuilder()
	img := b.CreateTransientImage("tex", ImageDescription{
		Kind: ImageKind2D, Width: 64, Height: 64,
		Format: vk.FormatR8g8b8a8Unorm, Usage: ImageUsageSampled | ImageUsageStorage,
	})
	pipeline := testComputePipeline()
	require.NoError(t, b.AddComputePass("general", QueueGraphics, pipeline, DispatchGroups(1, 1, 1), nil, nil,
		[]ImageUse{{Image: img, Access: ImageAccessStorageRead}}))
	require.NoError(t, b.AddComputePass("sampled", QueueGraphics, pipeline, DispatchGroups(1, 1, 1), nil, nil,
		[]ImageUse{{Image: img, Access: ImageAccessSampledRead}}))

	plan := compileOrFail(t, b, singleQueue)
	require.Len(t, plan.passes[1].imageBarriers, 1)
	barrier := plan.passes[1].imageBarriers[0]
	assert.Equal(t, vk.ImageLayoutGeneral, barrier.oldLayout)
	assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, barrier.newLayout)
}

func TestReadAndWriteInOnePassYieldTwoBarriers(t *testing.T) {
	b := newTestBuilder()
	buf := b.CreateTransientBuffer("scratch", BufferDescription{Size: 1024, Usage: BufferUsageStorage})
	pipeline := testComputePipeline()
	require.NoError(t, b.AddComputePass("seed", QueueGraphics, pipeline, DispatchGroups(1, 1, 1), nil,
		[]BufferUse{{Buffer: buf, Access: BufferAccessShaderWrite}}, nil))
	require.NoError(t, b.AddComputePass("inplace", QueueGraphics, pipeline, DispatchGroups(1, 1, 1), nil,
		[]BufferUse{
			{Buffer: buf, Access: BufferAccessShaderRead},
			{Buffer: buf, Access: BufferAccessShaderWrite},
		}, nil))

	plan := compileOrFail(t, b, singleQueue)
	// Write-to-read, then read-to-write, both batched before the pass.
	assert.Len(t, plan.passes[1].bufferBarriers, 2)
}

func TestTransientImageAliasing(t *testing.T) {
	desc := ImageDescription{
		Kind: ImageKind2D, Width: 1920, Height: 1080,
		Format: vk.FormatR16g16b16a16Sfloat, Usage: ImageUsageStorage,
	}
	pipeline := testComputePipeline()

	b := newTestBuilder()
	b.EnableAliasing()
	first := b.CreateTransientImage("blur-x", desc)
	second := b.CreateTransientImage("blur-y", desc)
	require.NoError(t, b.AddComputePass("one", QueueGraphics, pipeline, DispatchGroups(1, 1, 1), nil, nil,
		[]ImageUse{{Image: first, Access: ImageAccessStorageWrite}}))
	require.NoError(t, b.AddComputePass("two", QueueGraphics, pipeline, DispatchGroups(1, 1, 1), nil, nil,
		[]ImageUse{{Image: second, Access: ImageAccessStorageWrite}}))

	plan := compileOrFail(t, b, singleQueue)
	assert.Equal(t, plan.imageAlias[first.index], plan.imageAlias[second.index],
		"disjoint transients with identical descriptions share a slot")
	// The aliased image still starts from Undefined, so stale contents
	// cannot leak through.
	require.Len(t, plan.passes[1].imageBarriers, 1)
	assert.Equal(t, vk.ImageLayoutUndefined, plan.passes[1].imageBarriers[0].oldLayout)
}

func TestOverlappingTransientsDoNotAlias(t *testing.T) {
	desc := ImageDescription{
		Kind: ImageKind2D, Width: 512, Height: 512,
		Format: vk.FormatR8g8b8a8Unorm, Usage: ImageUsageStorage,
	}
	pipeline := testComputePipeline()

	b := newTestBuilder()
	b.EnableAliasing()
	first := b.CreateTransientImage("src", desc)
	second := b.CreateTransientImage("dst", desc)
	require.NoError(t, b.AddComputePass("copy", QueueGraphics, pipeline, DispatchGroups(1, 1, 1), nil, nil,
		[]ImageUse{
			{Image: first, Access: ImageAccessStorageRead},
			{Image: second, Access: ImageAccessStorageWrite},
		}))

	plan := compileOrFail(t, b, singleQueue)
	assert.NotEqual(t, plan.imageAlias[first.index], plan.imageAlias[second.index])
}

func TestAliasingOffByDefault(t *testing.T) {
	desc := ImageDescription{
		Kind: ImageKind2D, Width: 128, Height: 128,
		Format: vk.FormatR8g8b8a8Unorm, Usage: ImageUsageStorage,
	}
	pipeline := testComputePipeline()

	b := newTestBuilder()
	first := b.CreateTransientImage("a", desc)
	second := b.CreateTransientImage("b", desc)
	require.NoError(t, b.AddComputePass("one", QueueGraphics, pipeline, DispatchGroups(1, 1, 1), nil, nil,
		[]ImageUse{{Image: first, Access: ImageAccessStorageWrite}}))
	require.NoError(t, b.AddComputePass("two", QueueGraphics, pipeline, DispatchGroups(1, 1, 1), nil, nil,
		[]ImageUse{{Image: second, Access: ImageAccessStorageWrite}}))

	plan := compileOrFail(t, b, singleQueue)
	assert.NotEqual(t, plan.imageAlias[first.index], plan.imageAlias[second.index])
}

func TestCompilationIsDeterministic(t *testing.T) {
	build := func() *GraphBuilder {
		b := newTestBuilder()
		pipeline := testComputePipeline()
		buf := b.CreateTransientBuffer("data", BufferDescription{Size: 256, Usage: BufferUsageStorage})
		img := b.CreateTransientImage("out", ImageDescription{
			Kind: ImageKind2D, Width: 32, Height: 32,
			Format: vk.FormatR8g8b8a8Unorm, Usage: ImageUsageStorage,
		})
		_ = b.AddComputePass("fill", QueueGraphics, pipeline, DispatchGroups(4, 4, 1), nil,
			[]BufferUse{{Buffer: buf, Access: BufferAccessShaderWrite}},
			[]ImageUse{{Image: img, Access: ImageAccessStorageWrite}})
		_ = b.AddComputePass("mix", QueueGraphics, pipeline, DispatchGroups(4, 4, 1), nil,
			[]BufferUse{{Buffer: buf, Access: BufferAccessShaderRead}},
			[]ImageUse{{Image: img, Access: ImageAccessStorageRead}})
		return b
	}

	one := compileOrFail(t, build(), threeQueues)
	two := compileOrFail(t, build(), threeQueues)

	require.Equal(t, len(one.passes), len(two.passes))
	for i := range one.passes {
		assert.Equal(t, one.passes[i].family, two.passes[i].family)
		assert.True(t, reflect.DeepEqual(one.passes[i].bufferBarriers, two.passes[i].bufferBarriers))
		assert.True(t, reflect.DeepEqual(one.passes[i].imageBarriers, two.passes[i].imageBarriers))
	}
	assert.True(t, reflect.DeepEqual(one.imageAlias, two.imageAlias))
	assert.True(t, reflect.DeepEqual(one.final, two.final))
}

func TestMissingUsageIsRejected(t *testing.T) {
	b := newTestBuilder()
	buf := b.CreateTransientBuffer("vertices", BufferDescription{Size: 64, Usage: BufferUsageVertex})
	pipeline := testComputePipeline()
	require.NoError(t, b.AddComputePass("bad", QueueGraphics, pipeline, DispatchGroups(1, 1, 1), nil,
		[]BufferUse{{Buffer: buf, Access: BufferAccessShaderWrite}}, nil))

	_, err := compileGraph(&b.graph, singleQueue)
	var invalid *InvalidGraphError
	require.ErrorAs(t, err, &invalid)
}

func TestInvalidPresentingGraphRejectedAtCompile(t *testing.T) {
	// Validation runs entirely host-side, so a frame that references the
	// swapchain image can still be rejected before any image is acquired.
	b := newTestBuilder()
	sc, err := b.AcquireSwapchainImage()
	require.NoError(t, err)
	require.NoError(t, b.AddRasterPass("clear", Framebuffer{
		Colors: []ColorAttachment{{Image: sc, Load: LoadOpClear}},
	}, nil, nil, nil, nil))

	buf := b.CreateTransientBuffer("sim", BufferDescription{Size: 64, Usage: BufferUsageStorage})
	require.NoError(t, b.AddComputePass("sim", ForceAsyncCompute, testComputePipeline(), DispatchGroups(1, 1, 1), nil,
		[]BufferUse{{Buffer: buf, Access: BufferAccessShaderWrite}}, nil))

	_, err = compileGraph(&b.graph, singleQueue)
	var invalid *InvalidGraphError
	require.ErrorAs(t, err, &invalid)
}

func TestForceAsyncComputeRequiresQueue(t *testing.T) {
	b := newTestBuilder()
	buf := b.CreateTransientBuffer("data", BufferDescription{Size: 64, Usage: BufferUsageStorage})
	pipeline := testComputePipeline()
	require.NoError(t, b.AddComputePass("sim", ForceAsyncCompute, pipeline, DispatchGroups(1, 1, 1), nil,
		[]BufferUse{{Buffer: buf, Access: BufferAccessShaderWrite}}, nil))

	_, err := compileGraph(&b.graph, singleQueue)
	var invalid *InvalidGraphError
	require.ErrorAs(t, err, &invalid)

	plan := compileOrFail(t, b, threeQueues)
	assert.Equal(t, uint32(1), plan.passes[0].family)
}

func TestPreferAsyncComputeFallsBack(t *testing.T) {
	b := newTestBuilder()
	buf := b.CreateTransientBuffer("data", BufferDescription{Size: 64, Usage: BufferUsageStorage})
	pipeline := testComputePipeline()
	require.NoError(t, b.AddComputePass("sim", PreferAsyncCompute, pipeline, DispatchGroups(1, 1, 1), nil,
		[]BufferUse{{Buffer: buf, Access: BufferAccessShaderWrite}}, nil))

	plan := compileOrFail(t, b, singleQueue)
	assert.Equal(t, uint32(0), plan.passes[0].family)

	plan = compileOrFail(t, b, threeQueues)
	assert.Equal(t, uint32(1), plan.passes[0].family)
}

func TestTransferPassPrefersDedicatedQueue(t *testing.T) {
	b := newTestBuilder()
	src := b.CreateTransientBuffer("src", BufferDescription{Size: 64, Usage: BufferUsageTransferSrc})
	dst := b.CreateTransientBuffer("dst", BufferDescription{Size: 64, Usage: BufferUsageTransferDst})
	require.NoError(t, b.AddTransferPass("copy", PreferDedicatedTransfer, []TransferOp{
		CopyBufferToBuffer(src, 0, dst, 0, 64),
	}))

	plan := compileOrFail(t, b, threeQueues)
	assert.Equal(t, uint32(2), plan.passes[0].family)

	plan = compileOrFail(t, b, singleQueue)
	assert.Equal(t, uint32(0), plan.passes[0].family)
}

func TestCrossQueueWriteTransfersOwnership(t *testing.T) {
	b := newTestBuilder()
	buf := b.CreateTransientBuffer("particles", BufferDescription{
		Size: 4096, Usage: BufferUsageStorage | BufferUsageVertex,
	})
	pipeline := testComputePipeline()
	require.NoError(t, b.AddComputePass("simulate", ForceAsyncCompute, pipeline, DispatchGroups(64, 1, 1), nil,
		[]BufferUse{{Buffer: buf, Access: BufferAccessShaderWrite}}, nil))
	target := b.CreateTransientImage("color", ImageDescription{
		Kind: ImageKind2D, Width: 640, Height: 480,
		Format: vk.FormatB8g8r8a8Unorm, Usage: ImageUsageColorAttachment,
	})
	require.NoError(t, b.AddRasterPass("draw", Framebuffer{
		Colors: []ColorAttachment{{Image: target, Load: LoadOpClear}},
	}, []BufferUse{{Buffer: buf, Access: BufferAccessVertexRead}}, nil, nil, nil))

	plan := compileOrFail(t, b, threeQueues)
	require.Len(t, plan.passes, 2)
	require.Len(t, plan.passes[1].bufferBarriers, 1)
	barrier := plan.passes[1].bufferBarriers[0]
	assert.Equal(t, uint32(1), barrier.srcQueue)
	assert.Equal(t, uint32(0), barrier.dstQueue)
	// The acquire half is duplicated as a release on the source queue.
	require.Len(t, plan.passes[1].releaseBuffers, 1)
	assert.Equal(t, barrier, plan.passes[1].releaseBuffers[0])
}

func TestCrossQueueReadAfterReadSkipsTransfer(t *testing.T) {
	b := newTestBuilder()
	img := b.CreateTransientImage("tex", ImageDescription{
		Kind: ImageKind2D, Width: 64, Height: 64,
		Format: vk.FormatR8g8b8a8Unorm, Usage: ImageUsageSampled,
	})
	pipeline := testComputePipeline()
	require.NoError(t, b.AddComputePass("one", ForceAsyncCompute, pipeline, DispatchGroups(1, 1, 1), nil, nil,
		[]ImageUse{{Image: img, Access: ImageAccessSampledRead}}))
	require.NoError(t, b.AddComputePass("two", QueueGraphics, pipeline, DispatchGroups(1, 1, 1), nil, nil,
		[]ImageUse{{Image: img, Access: ImageAccessSampledRead}}))

	plan := compileOrFail(t, b, threeQueues)
	// Reads on both queues, same layout: no second barrier and no
	// ownership transfer.
	assert.Empty(t, plan.passes[1].imageBarriers)
	assert.Empty(t, plan.passes[1].releaseImages)
}

func TestErrorKindsUnwrap(t *testing.T) {
	err := invalidGraphf("pass %q broken", "shadow")
	var invalid *InvalidGraphError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Error(), "shadow")

	backend := vkResult(vk.ErrorDeviceLost)
	assert.True(t, errors.Is(backend, ErrDeviceLost))
	assert.NoError(t, vkResult(vk.Success))
	assert.NoError(t, vkResult(vk.Suboptimal))
}
