package vkr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

func TestUseBufferDeduplicatesImports(t *testing.T) {
	resolver := &fixtureResolver{
		buffers: map[BufferHandle]fixtureBuffer{},
		images:  map[ImageHandle]fixtureImage{},
	}
	h := BufferHandle{Handle{Index: 7, Generation: 3}}
	resolver.buffers[h] = fixtureBuffer{desc: BufferDescription{Size: 64, Usage: BufferUsageStorage}}

	b := newGraphBuilder(nil, resolver)
	first, err := b.UseBuffer(h)
	require.NoError(t, err)
	second, err := b.UseBuffer(h)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, b.graph.buffers, 1)
}

func TestUseBufferRejectsUnknownHandle(t *testing.T) {
	b := newTestBuilder()
	_, err := b.UseBuffer(BufferHandle{Handle{Index: 99, Generation: 1}})
	require.ErrorIs(t, err, ErrInvalidHandle)
}

func TestAcquireSwapchainImageIsIdempotent(t *testing.T) {
	b := newTestBuilder()
	first, err := b.AcquireSwapchainImage()
	require.NoError(t, err)
	second, err := b.AcquireSwapchainImage()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, b.graph.images, 1)
}

func TestComputePassRejectsEmptyDispatch(t *testing.T) {
	b := newTestBuilder()
	buf := b.CreateTransientBuffer("data", BufferDescription{Size: 64, Usage: BufferUsageStorage})
	err := b.AddComputePass("noop", QueueGraphics, testComputePipeline(), Dispatch{}, nil,
		[]BufferUse{{Buffer: buf, Access: BufferAccessShaderWrite}}, nil)
	var invalid *InvalidGraphError
	require.ErrorAs(t, err, &invalid)
}

func TestComputePassRejectsUndeclaredBuffer(t *testing.T) {
	b := newTestBuilder()
	err := b.AddComputePass("stray", QueueGraphics, testComputePipeline(), DispatchGroups(1, 1, 1), nil,
		[]BufferUse{{Buffer: BufferRef{index: 5}, Access: BufferAccessShaderWrite}}, nil)
	var invalid *InvalidGraphError
	require.ErrorAs(t, err, &invalid)
}

func TestIndirectDispatchDeclaresIndirectRead(t *testing.T) {
	b := newTestBuilder()
	args := b.CreateTransientBuffer("args", BufferDescription{Size: 12, Usage: BufferUsageIndirect})
	buf := b.CreateTransientBuffer("data", BufferDescription{Size: 64, Usage: BufferUsageStorage})
	require.NoError(t, b.AddComputePass("sim", QueueGraphics, testComputePipeline(),
		DispatchIndirect(args, 0), nil,
		[]BufferUse{{Buffer: buf, Access: BufferAccessShaderWrite}}, nil))

	pass := b.graph.passes[0]
	found := false
	for _, use := range pass.buffers {
		if use.Buffer == args && use.Access == BufferAccessIndirectRead {
			found = true
		}
	}
	assert.True(t, found, "indirect buffer is declared as an access")
}

func TestRasterPassRequiresAttachments(t *testing.T) {
	b := newTestBuilder()
	err := b.AddRasterPass("empty", Framebuffer{}, nil, nil, nil, nil)
	var invalid *InvalidGraphError
	require.ErrorAs(t, err, &invalid)
}

func TestRasterPassDeclaresAttachmentAccesses(t *testing.T) {
	b := newTestBuilder()
	color := b.CreateTransientImage("color", ImageDescription{
		Kind: ImageKind2D, Width: 64, Height: 64,
		Format: vk.FormatB8g8r8a8Unorm, Usage: ImageUsageColorAttachment,
	})
	depth := b.CreateTransientImage("depth", ImageDescription{
		Kind: ImageKind2D, Width: 64, Height: 64,
		Format: vk.FormatD32Sfloat, Usage: ImageUsageDepthStencilAttachment,
	})
	require.NoError(t, b.AddRasterPass("scene", Framebuffer{
		Colors:       []ColorAttachment{{Image: color, Load: LoadOpClear}},
		DepthStencil: &DepthStencilAttachment{Image: depth, Load: LoadOpClear, ClearDepth: 1},
	}, nil, nil, nil, nil))

	pass := b.graph.passes[0]
	require.Len(t, pass.images, 2)
	assert.Equal(t, ImageAccessColorAttachmentWrite, pass.images[0].Access)
	assert.Equal(t, ImageAccessDepthStencilAttachmentWrite, pass.images[1].Access)
}

func TestReadOnlyDepthUsesReadAccess(t *testing.T) {
	b := newTestBuilder()
	color := b.CreateTransientImage("color", ImageDescription{
		Kind: ImageKind2D, Width: 64, Height: 64,
		Format: vk.FormatB8g8r8a8Unorm, Usage: ImageUsageColorAttachment,
	})
	depth := b.CreateTransientImage("depth", ImageDescription{
		Kind: ImageKind2D, Width: 64, Height: 64,
		Format: vk.FormatD32Sfloat, Usage: ImageUsageDepthStencilAttachment,
	})
	require.NoError(t, b.AddRasterPass("overlay", Framebuffer{
		Colors:       []ColorAttachment{{Image: color, Load: LoadOpLoad}},
		DepthStencil: &DepthStencilAttachment{Image: depth, Load: LoadOpLoad, ReadOnly: true},
	}, nil, nil, nil, nil))

	pass := b.graph.passes[0]
	assert.Equal(t, ImageAccessDepthStencilAttachmentRead, pass.images[1].Access)
}

func TestTransferPassInfersAccesses(t *testing.T) {
	b := newTestBuilder()
	src := b.CreateTransientBuffer("src", BufferDescription{Size: 64, Usage: BufferUsageTransferSrc})
	img := b.CreateTransientImage("tex", ImageDescription{
		Kind: ImageKind2D, Width: 4, Height: 4,
		Format: vk.FormatR8g8b8a8Unorm, Usage: ImageUsageTransferDst | ImageUsageSampled,
	})
	require.NoError(t, b.AddTransferPass("upload", QueueGraphics, []TransferOp{
		CopyBufferToImage(src, 0, img),
	}))

	pass := b.graph.passes[0]
	require.Len(t, pass.buffers, 1)
	assert.Equal(t, BufferAccessTransferRead, pass.buffers[0].Access)
	require.Len(t, pass.images, 1)
	assert.Equal(t, ImageAccessTransferWrite, pass.images[0].Access)
}
