package vkr

import (
	"testing"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testUploadDevice() *Device {
	d := &Device{}
	d.store = newResourceStore(testTable())
	d.uploads = newUploadQueue(d, 0)
	return d
}

// hostBacked builds a buffer whose allocation points at plain test memory,
// standing in for a persistently mapped host-visible block.
func hostBacked(name string, backing []byte, usage BufferUsage) *Buffer {
	block := &memoryBlock{mapped: unsafe.Pointer(&backing[0])}
	return &Buffer{
		Name:        name,
		Description: BufferDescription{Size: uint64(len(backing)), Usage: usage, Location: CpuToGpu},
		allocation:  deviceAllocation{block: block, alloc: &Allocation{Offset: 0, Size: uint64(len(backing))}},
		slot:        -1,
	}
}

func TestWriteBufferHostVisibleCopiesImmediately(t *testing.T) {
	d := testUploadDevice()
	backing := make([]byte, 64)
	h, err := d.store.addBuffer(hostBacked("staged", backing, BufferUsageUniform))
	require.NoError(t, err)

	require.NoError(t, d.WriteBuffer(h, 8, []byte{1, 2, 3}))

	assert.Equal(t, []byte{1, 2, 3}, backing[8:11])
	assert.False(t, d.uploads.pending(), "host-visible writes bypass staging")
}

func TestWriteBufferDeviceLocalQueuesSnapshot(t *testing.T) {
	d := testUploadDevice()
	buf := &Buffer{
		Name:        "mesh",
		Description: BufferDescription{Size: 64, Usage: BufferUsageVertex | BufferUsageTransferDst},
		slot:        -1,
	}
	h, err := d.store.addBuffer(buf)
	require.NoError(t, err)

	data := []byte{9, 9, 9}
	require.NoError(t, d.WriteBuffer(h, 0, data))
	data[0] = 0

	require.True(t, d.uploads.pending())
	d.uploads.mu.Lock()
	defer d.uploads.mu.Unlock()
	require.Len(t, d.uploads.buffers, 1)
	assert.Equal(t, []byte{9, 9, 9}, d.uploads.buffers[0].data, "queued data is a snapshot")
	assert.Equal(t, uint64(3), d.uploads.total)
}

func TestWriteBufferRejectsOutOfRange(t *testing.T) {
	d := testUploadDevice()
	backing := make([]byte, 16)
	h, err := d.store.addBuffer(hostBacked("small", backing, BufferUsageUniform))
	require.NoError(t, err)

	assert.Error(t, d.WriteBuffer(h, 8, make([]byte, 9)))
	assert.NoError(t, d.WriteBuffer(h, 8, make([]byte, 8)))
}

func TestWriteBufferRequiresTransferDst(t *testing.T) {
	d := testUploadDevice()
	buf := &Buffer{
		Name:        "gpuonly",
		Description: BufferDescription{Size: 64, Usage: BufferUsageVertex},
		slot:        -1,
	}
	h, err := d.store.addBuffer(buf)
	require.NoError(t, err)

	assert.Error(t, d.WriteBuffer(h, 0, []byte{1}))
	assert.False(t, d.uploads.pending())
}

func TestWriteImageRequiresTransferDst(t *testing.T) {
	d := testUploadDevice()
	img := &Image{
		Name:        "tex",
		Description: ImageDescription{Width: 4, Height: 4, Format: vk.FormatR8g8b8a8Unorm, Usage: ImageUsageSampled},
		sampledSlot: -1,
		storageSlot: -1,
	}
	h, err := d.store.addImage(img)
	require.NoError(t, err)

	assert.Error(t, d.WriteImage(h, make([]byte, 64)))

	img2 := &Image{
		Name:        "tex2",
		Description: ImageDescription{Width: 4, Height: 4, Format: vk.FormatR8g8b8a8Unorm, Usage: ImageUsageSampled | ImageUsageTransferDst},
		sampledSlot: -1,
		storageSlot: -1,
	}
	h2, err := d.store.addImage(img2)
	require.NoError(t, err)

	require.NoError(t, d.WriteImage(h2, make([]byte, 64)))
	assert.True(t, d.uploads.pending())
}

func TestReadBuffer(t *testing.T) {
	d := testUploadDevice()
	backing := []byte{0, 1, 2, 3, 4, 5, 6, 7}
	h, err := d.store.addBuffer(hostBacked("readback", backing, BufferUsageTransferDst))
	require.NoError(t, err)

	out := make([]byte, 4)
	require.NoError(t, d.ReadBuffer(h, 2, out))
	assert.Equal(t, []byte{2, 3, 4, 5}, out)

	assert.Error(t, d.ReadBuffer(h, 6, make([]byte, 4)), "range past the end")

	gpu := &Buffer{Name: "gpu", Description: BufferDescription{Size: 8, Usage: BufferUsageStorage}, slot: -1}
	hg, err := d.store.addBuffer(gpu)
	require.NoError(t, err)
	assert.Error(t, d.ReadBuffer(hg, 0, out), "device-local buffers are not readable")
}
