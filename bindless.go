package vkr

import (
	"fmt"
	"sync"

	vk "github.com/vulkan-go/vulkan"
)

// indexPool hands out dense integer binding slots with free-list recycling.
type indexPool struct {
	next  int32
	limit int32
	free  []int32
}

func (p *indexPool) acquire() (int32, bool) {
	if n := len(p.free); n > 0 {
		idx := p.free[n-1]
		p.free = p.free[:n-1]
		return idx, true
	}
	if p.next >= p.limit {
		return -1, false
	}
	idx := p.next
	p.next++
	return idx, true
}

func (p *indexPool) release(idx int32) {
	if idx >= 0 {
		p.free = append(p.free, idx)
	}
}

func (p *indexPool) used() int {
	return int(p.next) - len(p.free)
}

// bindingPartition selects one of the four bindless arrays. The constant
// values are the descriptor set binding numbers shaders see.
type bindingPartition int32

const (
	partitionSampledImage bindingPartition = iota
	partitionStorageImage
	partitionStorageBuffer
	partitionSampler
)

// BindlessConfig sets the capacity of each bindless partition.
type BindlessConfig struct {
	SampledImages  uint32
	StorageImages  uint32
	StorageBuffers uint32
	Samplers       uint32
}

func DefaultBindlessConfig() BindlessConfig {
	return BindlessConfig{
		SampledImages:  1024,
		StorageImages:  1024,
		StorageBuffers: 1024,
		Samplers:       128,
	}
}

// bindlessTable owns the descriptor sets shaders index into, one per frame
// slot so a set is only ever rewritten after the fence of the last frame
// that bound it has signaled. Slots are assigned when resources are created
// and recycled only after the owning resource's deferred destruction
// executes, so no slot ever aliases a live and a dead resource. Descriptor
// writes accumulate host-side per set and each frame flushes its own set's
// backlog before submission.
//
// Slot assignment happens on resource creation from any thread; slot
// release runs on the frame scheduler thread when retire queues drain. The
// table's mutex covers both, plus the pending write lists.
type bindlessTable struct {
	device *Device
	config BindlessConfig

	VKLayout vk.DescriptorSetLayout
	VKPool   vk.DescriptorPool
	VKSets   []vk.DescriptorSet

	mu             sync.Mutex
	sampledImages  indexPool
	storageImages  indexPool
	storageBuffers indexPool
	samplers       indexPool

	pending [][]vk.WriteDescriptorSet
}

func (d *Device) createBindlessTable(config BindlessConfig, sets int) (*bindlessTable, error) {
	t := &bindlessTable{
		device:         d,
		config:         config,
		sampledImages:  indexPool{limit: int32(config.SampledImages)},
		storageImages:  indexPool{limit: int32(config.StorageImages)},
		storageBuffers: indexPool{limit: int32(config.StorageBuffers)},
		samplers:       indexPool{limit: int32(config.Samplers)},
		pending:        make([][]vk.WriteDescriptorSet, sets),
	}

	stages := vk.ShaderStageFlags(vk.ShaderStageAllGraphics | vk.ShaderStageComputeBit)
	bindings := []vk.DescriptorSetLayoutBinding{
		{Binding: uint32(partitionSampledImage), DescriptorType: vk.DescriptorTypeSampledImage, DescriptorCount: config.SampledImages, StageFlags: stages},
		{Binding: uint32(partitionStorageImage), DescriptorType: vk.DescriptorTypeStorageImage, DescriptorCount: config.StorageImages, StageFlags: stages},
		{Binding: uint32(partitionStorageBuffer), DescriptorType: vk.DescriptorTypeStorageBuffer, DescriptorCount: config.StorageBuffers, StageFlags: stages},
		{Binding: uint32(partitionSampler), DescriptorType: vk.DescriptorTypeSampler, DescriptorCount: config.Samplers, StageFlags: stages},
	}
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	if err := vkResult(vk.CreateDescriptorSetLayout(d.VKDevice, &layoutInfo, nil, &t.VKLayout)); err != nil {
		return nil, fmt.Errorf("create bindless layout: %w", err)
	}

	n := uint32(sets)
	poolSizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeSampledImage, DescriptorCount: config.SampledImages * n},
		{Type: vk.DescriptorTypeStorageImage, DescriptorCount: config.StorageImages * n},
		{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: config.StorageBuffers * n},
		{Type: vk.DescriptorTypeSampler, DescriptorCount: config.Samplers * n},
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       n,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	if err := vkResult(vk.CreateDescriptorPool(d.VKDevice, &poolInfo, nil, &t.VKPool)); err != nil {
		vk.DestroyDescriptorSetLayout(d.VKDevice, t.VKLayout, nil)
		return nil, fmt.Errorf("create bindless pool: %w", err)
	}

	t.VKSets = make([]vk.DescriptorSet, sets)
	for i := range t.VKSets {
		allocInfo := vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     t.VKPool,
			DescriptorSetCount: 1,
			PSetLayouts:        []vk.DescriptorSetLayout{t.VKLayout},
		}
		if err := vkResult(vk.AllocateDescriptorSets(d.VKDevice, &allocInfo, &t.VKSets[i])); err != nil {
			vk.DestroyDescriptorPool(d.VKDevice, t.VKPool, nil)
			vk.DestroyDescriptorSetLayout(d.VKDevice, t.VKLayout, nil)
			return nil, fmt.Errorf("allocate bindless set %d: %w", i, err)
		}
	}
	return t, nil
}

// queueWrite appends one descriptor update to every per-set backlog. Each
// frame slot flushes its own backlog against its own set.
func (t *bindlessTable) queueWrite(write vk.WriteDescriptorSet) {
	for i := range t.pending {
		if i < len(t.VKSets) {
			write.DstSet = t.VKSets[i]
		}
		t.pending[i] = append(t.pending[i], write)
	}
}

func (t *bindlessTable) pool(partition bindingPartition) *indexPool {
	switch partition {
	case partitionSampledImage:
		return &t.sampledImages
	case partitionStorageImage:
		return &t.storageImages
	case partitionStorageBuffer:
		return &t.storageBuffers
	default:
		return &t.samplers
	}
}

func (t *bindlessTable) assignBuffer(buffer vk.Buffer, size uint64) (int32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	slot, ok := t.storageBuffers.acquire()
	if !ok {
		return -1, fmt.Errorf("storage buffer partition full (%d slots)", t.config.StorageBuffers)
	}
	t.queueWrite(vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstBinding:      uint32(partitionStorageBuffer),
		DstArrayElement: uint32(slot),
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeStorageBuffer,
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: buffer,
			Offset: 0,
			Range:  vk.DeviceSize(size),
		}},
	})
	return slot, nil
}

func (t *bindlessTable) assignImage(view vk.ImageView, partition bindingPartition) (int32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pool := t.pool(partition)
	slot, ok := pool.acquire()
	if !ok {
		return -1, fmt.Errorf("image partition %d full", partition)
	}
	dtype := vk.DescriptorTypeSampledImage
	layout := vk.ImageLayoutShaderReadOnlyOptimal
	if partition == partitionStorageImage {
		dtype = vk.DescriptorTypeStorageImage
		layout = vk.ImageLayoutGeneral
	}
	t.queueWrite(vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstBinding:      uint32(partition),
		DstArrayElement: uint32(slot),
		DescriptorCount: 1,
		DescriptorType:  dtype,
		PImageInfo: []vk.DescriptorImageInfo{{
			ImageView:   view,
			ImageLayout: layout,
		}},
	})
	return slot, nil
}

func (t *bindlessTable) assignSampler(sampler vk.Sampler) (int32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	slot, ok := t.samplers.acquire()
	if !ok {
		return -1, fmt.Errorf("sampler partition full (%d slots)", t.config.Samplers)
	}
	t.queueWrite(vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstBinding:      uint32(partitionSampler),
		DstArrayElement: uint32(slot),
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeSampler,
		PImageInfo: []vk.DescriptorImageInfo{{
			Sampler: sampler,
		}},
	})
	return slot, nil
}

func (t *bindlessTable) releaseSlot(partition bindingPartition, slot int32) {
	t.mu.Lock()
	t.pool(partition).release(slot)
	t.mu.Unlock()
}

// takeWrites drains the pending backlog of one frame slot's set.
func (t *bindlessTable) takeWrites(slot int) []vk.WriteDescriptorSet {
	t.mu.Lock()
	defer t.mu.Unlock()
	writes := t.pending[slot]
	t.pending[slot] = nil
	return writes
}

// set returns the descriptor set bound by the given frame slot.
func (t *bindlessTable) set(slot int) vk.DescriptorSet {
	return t.VKSets[slot]
}

// flushWrites pushes the slot's accumulated descriptor updates to its
// set. Called once per frame before command buffer submission; the slot
// fence has signaled by then, so no pending command buffer still binds
// this set.
func (t *bindlessTable) flushWrites(slot int) {
	writes := t.takeWrites(slot)
	if len(writes) == 0 {
		return
	}
	vk.UpdateDescriptorSets(t.device.VKDevice, uint32(len(writes)), writes, 0, nil)
}

func (t *bindlessTable) destroy() {
	vk.DestroyDescriptorPool(t.device.VKDevice, t.VKPool, nil)
	vk.DestroyDescriptorSetLayout(t.device.VKDevice, t.VKLayout, nil)
}
