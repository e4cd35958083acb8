package vkr

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

func TestIndexPoolRecyclesSlots(t *testing.T) {
	p := indexPool{limit: 3}

	a, ok := p.acquire()
	require.True(t, ok)
	b, ok := p.acquire()
	require.True(t, ok)
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, p.used())

	p.release(a)
	assert.Equal(t, 1, p.used())
	c, ok := p.acquire()
	require.True(t, ok)
	assert.Equal(t, a, c, "released slot is reused before new indices")
}

func TestIndexPoolExhausts(t *testing.T) {
	p := indexPool{limit: 2}
	_, ok := p.acquire()
	require.True(t, ok)
	_, ok = p.acquire()
	require.True(t, ok)
	_, ok = p.acquire()
	assert.False(t, ok)
}

func TestAssignBufferQueuesDescriptorWrite(t *testing.T) {
	table := testTable()
	slot, err := table.assignBuffer(vk.NullBuffer, 512)
	require.NoError(t, err)
	assert.Equal(t, int32(0), slot)

	require.Len(t, table.pending[0], 1)
	require.Len(t, table.pending[1], 1, "every frame slot's set gets the write")
	write := table.pending[0][0]
	assert.Equal(t, uint32(partitionStorageBuffer), write.DstBinding)
	assert.Equal(t, uint32(slot), write.DstArrayElement)
	assert.Equal(t, vk.DescriptorTypeStorageBuffer, write.DescriptorType)
	require.Len(t, write.PBufferInfo, 1)
	assert.Equal(t, vk.DeviceSize(512), write.PBufferInfo[0].Range)
}

func TestAssignImagePartitionsDifferInLayout(t *testing.T) {
	table := testTable()

	_, err := table.assignImage(vk.NullImageView, partitionSampledImage)
	require.NoError(t, err)
	_, err = table.assignImage(vk.NullImageView, partitionStorageImage)
	require.NoError(t, err)

	require.Len(t, table.pending[0], 2)
	sampled, storage := table.pending[0][0], table.pending[0][1]
	assert.Equal(t, vk.DescriptorTypeSampledImage, sampled.DescriptorType)
	assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, sampled.PImageInfo[0].ImageLayout)
	assert.Equal(t, vk.DescriptorTypeStorageImage, storage.DescriptorType)
	assert.Equal(t, vk.ImageLayoutGeneral, storage.PImageInfo[0].ImageLayout)
}

func TestPartitionsAllocateIndependently(t *testing.T) {
	table := testTable()
	bufSlot, err := table.assignBuffer(vk.NullBuffer, 16)
	require.NoError(t, err)
	imgSlot, err := table.assignImage(vk.NullImageView, partitionSampledImage)
	require.NoError(t, err)
	samplerSlot, err := table.assignSampler(vk.NullSampler)
	require.NoError(t, err)

	// Each partition starts at zero; indices only collide across
	// partitions, never within one.
	assert.Equal(t, int32(0), bufSlot)
	assert.Equal(t, int32(0), imgSlot)
	assert.Equal(t, int32(0), samplerSlot)
	assert.Equal(t, 1, table.storageBuffers.used())
	assert.Equal(t, 1, table.sampledImages.used())
	assert.Equal(t, 1, table.samplers.used())
}

func TestPartitionCapacityIsEnforced(t *testing.T) {
	table := &bindlessTable{
		config:         BindlessConfig{StorageBuffers: 1},
		storageBuffers: indexPool{limit: 1},
		pending:        make([][]vk.WriteDescriptorSet, 1),
	}
	_, err := table.assignBuffer(vk.NullBuffer, 16)
	require.NoError(t, err)
	_, err = table.assignBuffer(vk.NullBuffer, 16)
	require.Error(t, err)
}

func TestReleaseSlotReturnsToPartition(t *testing.T) {
	table := testTable()
	slot, err := table.assignSampler(vk.NullSampler)
	require.NoError(t, err)
	require.Equal(t, 1, table.samplers.used())

	table.releaseSlot(partitionSampler, slot)
	assert.Equal(t, 0, table.samplers.used())
}

func TestTakeWritesDrainsOneSlotOnly(t *testing.T) {
	table := testTable()
	_, err := table.assignBuffer(vk.NullBuffer, 64)
	require.NoError(t, err)

	writes := table.takeWrites(0)
	require.Len(t, writes, 1)
	assert.Empty(t, table.takeWrites(0), "a drained slot stays empty until new writes queue")
	assert.Len(t, table.takeWrites(1), 1, "the other slot's backlog is untouched")
}

func TestConcurrentAssignAndRelease(t *testing.T) {
	table := testTable()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				slot, err := table.assignSampler(vk.NullSampler)
				if err != nil {
					continue
				}
				table.releaseSlot(partitionSampler, slot)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, table.samplers.used())
}
