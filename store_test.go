package vkr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

// testTable builds a bindless table that never touches the device;
// descriptor writes only accumulate host-side until flushWrites.
func testTable() *bindlessTable {
	config := DefaultBindlessConfig()
	return &bindlessTable{
		config:         config,
		sampledImages:  indexPool{limit: int32(config.SampledImages)},
		storageImages:  indexPool{limit: int32(config.StorageImages)},
		storageBuffers: indexPool{limit: int32(config.StorageBuffers)},
		samplers:       indexPool{limit: int32(config.Samplers)},
		pending:        make([][]vk.WriteDescriptorSet, 2),
	}
}

func testStore() *resourceStore {
	return newResourceStore(testTable())
}

func TestStoreRoundTripBuffer(t *testing.T) {
	s := testStore()
	buf := &Buffer{Name: "ssbo", Description: BufferDescription{Size: 256, Usage: BufferUsageStorage}, slot: -1}

	h, err := s.addBuffer(buf)
	require.NoError(t, err)
	require.True(t, h.IsValid())
	assert.GreaterOrEqual(t, buf.slot, int32(0), "storage usage assigns a bindless slot")

	got, err := s.getBuffer(h)
	require.NoError(t, err)
	assert.Same(t, buf, got)

	removed, err := s.removeBuffer(h)
	require.NoError(t, err)
	assert.Same(t, buf, removed)

	_, err = s.getBuffer(h)
	require.ErrorIs(t, err, ErrInvalidHandle)
}

func TestStoreNonStorageBufferGetsNoSlot(t *testing.T) {
	s := testStore()
	buf := &Buffer{Name: "vbo", Description: BufferDescription{Size: 64, Usage: BufferUsageVertex}, slot: -1}
	_, err := s.addBuffer(buf)
	require.NoError(t, err)
	assert.Equal(t, int32(-1), buf.slot)
	assert.Equal(t, 0, s.table.storageBuffers.used())
}

func TestStoreImageSlotsFollowUsage(t *testing.T) {
	s := testStore()
	img := &Image{
		Name:        "gbuffer",
		Description: ImageDescription{Kind: ImageKind2D, Width: 4, Height: 4, Format: vk.FormatR8g8b8a8Unorm, Usage: ImageUsageSampled | ImageUsageStorage},
		sampledSlot: -1,
		storageSlot: -1,
	}
	_, err := s.addImage(img)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, img.sampledSlot, int32(0))
	assert.GreaterOrEqual(t, img.storageSlot, int32(0))
	assert.Equal(t, 1, s.table.sampledImages.used())
	assert.Equal(t, 1, s.table.storageImages.used())
}

// Creating then destroying resources leaves handle-map occupancy and slot
// occupancy unchanged once the deferred releases have run.
func TestCreateDestroyLeavesOccupancyUnchanged(t *testing.T) {
	s := testStore()
	ring := newRetireRing(2)

	baseBuffers, baseImages, _ := s.liveCounts()
	baseSlots := s.table.storageBuffers.used()

	for i := 0; i < 8; i++ {
		buf := &Buffer{Name: "tmp", Description: BufferDescription{Size: 64, Usage: BufferUsageStorage}, slot: -1}
		h, err := s.addBuffer(buf)
		require.NoError(t, err)

		removed, err := s.removeBuffer(h)
		require.NoError(t, err)
		slot := removed.slot
		ring.enqueue(func() {
			s.table.releaseSlot(partitionStorageBuffer, slot)
		})
	}

	// Handles die immediately; slots stay occupied until retirement.
	buffers, images, _ := s.liveCounts()
	assert.Equal(t, baseBuffers, buffers)
	assert.Equal(t, baseImages, images)
	assert.Equal(t, baseSlots+8, s.table.storageBuffers.used())

	ring.drainAll()
	assert.Equal(t, baseSlots, s.table.storageBuffers.used())
}

func TestStaleHandleIsRejectedAfterReuse(t *testing.T) {
	s := testStore()
	first := &Buffer{Name: "first", Description: BufferDescription{Size: 16, Usage: BufferUsageUniform}, slot: -1}
	h1, err := s.addBuffer(first)
	require.NoError(t, err)
	_, err = s.removeBuffer(h1)
	require.NoError(t, err)

	second := &Buffer{Name: "second", Description: BufferDescription{Size: 16, Usage: BufferUsageUniform}, slot: -1}
	h2, err := s.addBuffer(second)
	require.NoError(t, err)

	// The index is recycled with a new generation; the old handle stays
	// dead.
	assert.Equal(t, h1.Index, h2.Index)
	assert.NotEqual(t, h1.Generation, h2.Generation)
	_, err = s.getBuffer(h1)
	require.ErrorIs(t, err, ErrInvalidHandle)
	got, err := s.getBuffer(h2)
	require.NoError(t, err)
	assert.Same(t, second, got)
}

func TestWriteBackStatesSkipsDeadHandles(t *testing.T) {
	s := testStore()
	live := &Buffer{Name: "live", Description: BufferDescription{Size: 16, Usage: BufferUsageStorage}, slot: -1}
	hLive, err := s.addBuffer(live)
	require.NoError(t, err)
	dead := &Buffer{Name: "dead", Description: BufferDescription{Size: 16, Usage: BufferUsageStorage}, slot: -1}
	hDead, err := s.addBuffer(dead)
	require.NoError(t, err)
	_, err = s.removeBuffer(hDead)
	require.NoError(t, err)

	g := &graph{buffers: []graphBuffer{
		{handle: hLive},
		{handle: hDead},
	}}
	written := bufferState{
		stage:  vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
		access: vk.AccessFlags(vk.AccessShaderWriteBit),
		write:  true,
	}
	plan := &framePlan{bufferStates: []bufferState{written, written}}

	s.writeBackStates(g, plan)
	assert.Equal(t, written, live.state)
	assert.Equal(t, bufferState{}, dead.state)
}

func TestStoreResolvesForBuilder(t *testing.T) {
	s := testStore()
	buf := &Buffer{
		Name:        "mesh",
		Description: BufferDescription{Size: 128, Usage: BufferUsageVertex},
		slot:        -1,
		state: bufferState{
			stage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			access: vk.AccessFlags(vk.AccessTransferWriteBit),
			write:  true,
		},
	}
	h, err := s.addBuffer(buf)
	require.NoError(t, err)

	desc, state, err := s.resolveBuffer(h)
	require.NoError(t, err)
	assert.Equal(t, buf.Description, desc)
	assert.Equal(t, buf.state, state)
}

func TestConcurrentCreateAndDeferredSlotRelease(t *testing.T) {
	s := testStore()
	ring := newRetireRing(2)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			buf := &Buffer{Name: "worker", Description: BufferDescription{Size: 64, Usage: BufferUsageStorage}, slot: -1}
			h, err := s.addBuffer(buf)
			if err != nil {
				continue
			}
			removed, err := s.removeBuffer(h)
			if err != nil {
				continue
			}
			slot := removed.slot
			ring.enqueue(func() {
				s.table.releaseSlot(partitionStorageBuffer, slot)
			})
		}
	}()

	// Drain concurrently with the creating goroutine, the way the frame
	// scheduler retires a slot while another thread creates resources.
	for i := 0; i < 200; i++ {
		ring.advance(i % 2)
		ring.drain(i % 2)
	}
	<-done
	ring.drain(0)
	ring.drain(1)

	bufs, _, _ := s.liveCounts()
	assert.Equal(t, 0, bufs)
	assert.Equal(t, 0, s.table.storageBuffers.used())
}
