package vkr

import (
	"fmt"
	"sync"
)

const defaultHandleCapacity = 1 << 20

// resourceStore maps handles to live resource records and owns the bindless
// binding slots. It is the one piece of shared mutable state between the
// frame scheduler and code holding handles on other threads, so every entry
// point takes the lock.
type resourceStore struct {
	mu    sync.Mutex
	table *bindlessTable

	bufferPool  *handlePool
	buffers     []*Buffer
	imagePool   *handlePool
	images      []*Image
	samplerPool *handlePool
	samplers    []*Sampler

	computePool      *handlePool
	computePipelines []*ComputePipeline
	rasterPool       *handlePool
	rasterPipelines  []*RasterPipeline
}

func newResourceStore(table *bindlessTable) *resourceStore {
	return &resourceStore{
		table:       table,
		bufferPool:  newHandlePool(defaultHandleCapacity),
		buffers:     []*Buffer{nil},
		imagePool:   newHandlePool(defaultHandleCapacity),
		images:      []*Image{nil},
		samplerPool: newHandlePool(defaultHandleCapacity),
		samplers:    []*Sampler{nil},
		computePool: newHandlePool(defaultHandleCapacity),
		computePipelines: []*ComputePipeline{nil},
		rasterPool:      newHandlePool(defaultHandleCapacity),
		rasterPipelines: []*RasterPipeline{nil},
	}
}

func (s *resourceStore) addBuffer(b *Buffer) (BufferHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table != nil && b.Description.Usage&BufferUsageStorage != 0 {
		slot, err := s.table.assignBuffer(b.VKBuffer, b.Description.Size)
		if err != nil {
			return BufferHandle{}, err
		}
		b.slot = slot
	}
	h, ok := s.bufferPool.Allocate()
	if !ok {
		return BufferHandle{}, fmt.Errorf("buffer store full")
	}
	putAt(&s.buffers, h.Index, b)
	return BufferHandle{h}, nil
}

func (s *resourceStore) getBuffer(h BufferHandle) (*Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.bufferPool.Valid(h.Handle) {
		return nil, fmt.Errorf("buffer %v: %w", h.Handle, ErrInvalidHandle)
	}
	return s.buffers[h.Index], nil
}

// removeBuffer invalidates the handle immediately and returns the record so
// the caller can queue its GPU release. The bindless slot stays occupied
// until that release runs.
func (s *resourceStore) removeBuffer(h BufferHandle) (*Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.bufferPool.Release(h.Handle) {
		return nil, fmt.Errorf("destroy buffer %v: %w", h.Handle, ErrInvalidHandle)
	}
	b := s.buffers[h.Index]
	s.buffers[h.Index] = nil
	return b, nil
}

func (s *resourceStore) addImage(i *Image) (ImageHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table != nil && i.Description.Usage&ImageUsageSampled != 0 {
		slot, err := s.table.assignImage(i.VKImageView, partitionSampledImage)
		if err != nil {
			return ImageHandle{}, err
		}
		i.sampledSlot = slot
	}
	if s.table != nil && i.Description.Usage&ImageUsageStorage != 0 {
		slot, err := s.table.assignImage(i.VKImageView, partitionStorageImage)
		if err != nil {
			return ImageHandle{}, err
		}
		i.storageSlot = slot
	}
	h, ok := s.imagePool.Allocate()
	if !ok {
		return ImageHandle{}, fmt.Errorf("image store full")
	}
	putAt(&s.images, h.Index, i)
	return ImageHandle{h}, nil
}

func (s *resourceStore) getImage(h ImageHandle) (*Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.imagePool.Valid(h.Handle) {
		return nil, fmt.Errorf("image %v: %w", h.Handle, ErrInvalidHandle)
	}
	return s.images[h.Index], nil
}

func (s *resourceStore) removeImage(h ImageHandle) (*Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.imagePool.Release(h.Handle) {
		return nil, fmt.Errorf("destroy image %v: %w", h.Handle, ErrInvalidHandle)
	}
	i := s.images[h.Index]
	s.images[h.Index] = nil
	return i, nil
}

func (s *resourceStore) addSampler(sm *Sampler) (SamplerHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table != nil {
		slot, err := s.table.assignSampler(sm.VKSampler)
		if err != nil {
			return SamplerHandle{}, err
		}
		sm.slot = slot
	}
	h, ok := s.samplerPool.Allocate()
	if !ok {
		return SamplerHandle{}, fmt.Errorf("sampler store full")
	}
	putAt(&s.samplers, h.Index, sm)
	return SamplerHandle{h}, nil
}

func (s *resourceStore) getSampler(h SamplerHandle) (*Sampler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.samplerPool.Valid(h.Handle) {
		return nil, fmt.Errorf("sampler %v: %w", h.Handle, ErrInvalidHandle)
	}
	return s.samplers[h.Index], nil
}

func (s *resourceStore) removeSampler(h SamplerHandle) (*Sampler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.samplerPool.Release(h.Handle) {
		return nil, fmt.Errorf("destroy sampler %v: %w", h.Handle, ErrInvalidHandle)
	}
	sm := s.samplers[h.Index]
	s.samplers[h.Index] = nil
	return sm, nil
}

func (s *resourceStore) addComputePipeline(p *ComputePipeline) (ComputePipelineHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.computePool.Allocate()
	if !ok {
		return ComputePipelineHandle{}, fmt.Errorf("compute pipeline store full")
	}
	putAt(&s.computePipelines, h.Index, p)
	return ComputePipelineHandle{h}, nil
}

func (s *resourceStore) getComputePipeline(h ComputePipelineHandle) (*ComputePipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.computePool.Valid(h.Handle) {
		return nil, fmt.Errorf("compute pipeline %v: %w", h.Handle, ErrInvalidHandle)
	}
	return s.computePipelines[h.Index], nil
}

func (s *resourceStore) removeComputePipeline(h ComputePipelineHandle) (*ComputePipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.computePool.Release(h.Handle) {
		return nil, fmt.Errorf("destroy compute pipeline %v: %w", h.Handle, ErrInvalidHandle)
	}
	p := s.computePipelines[h.Index]
	s.computePipelines[h.Index] = nil
	return p, nil
}

func (s *resourceStore) addRasterPipeline(p *RasterPipeline) (RasterPipelineHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.rasterPool.Allocate()
	if !ok {
		return RasterPipelineHandle{}, fmt.Errorf("raster pipeline store full")
	}
	putAt(&s.rasterPipelines, h.Index, p)
	return RasterPipelineHandle{h}, nil
}

func (s *resourceStore) getRasterPipeline(h RasterPipelineHandle) (*RasterPipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.rasterPool.Valid(h.Handle) {
		return nil, fmt.Errorf("raster pipeline %v: %w", h.Handle, ErrInvalidHandle)
	}
	return s.rasterPipelines[h.Index], nil
}

func (s *resourceStore) removeRasterPipeline(h RasterPipelineHandle) (*RasterPipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.rasterPool.Release(h.Handle) {
		return nil, fmt.Errorf("destroy raster pipeline %v: %w", h.Handle, ErrInvalidHandle)
	}
	p := s.rasterPipelines[h.Index]
	s.rasterPipelines[h.Index] = nil
	return p, nil
}

// resolveBuffer implements resourceResolver for the graph builder.
func (s *resourceStore) resolveBuffer(h BufferHandle) (BufferDescription, bufferState, error) {
	b, err := s.getBuffer(h)
	if err != nil {
		return BufferDescription{}, bufferState{}, err
	}
	return b.Description, b.state, nil
}

func (s *resourceStore) resolveImage(h ImageHandle) (ImageDescription, imageState, error) {
	i, err := s.getImage(h)
	if err != nil {
		return ImageDescription{}, imageState{}, err
	}
	return i.Description, i.state, nil
}

func (s *resourceStore) resolveComputePipeline(h ComputePipelineHandle) (ComputePipelineDescription, error) {
	p, err := s.getComputePipeline(h)
	if err != nil {
		return ComputePipelineDescription{}, err
	}
	return p.Description, nil
}

func (s *resourceStore) resolveRasterPipeline(h RasterPipelineHandle) (RasterPipelineDescription, error) {
	p, err := s.getRasterPipeline(h)
	if err != nil {
		return RasterPipelineDescription{}, err
	}
	return p.Description, nil
}

// writeBackStates commits the compiler's final resource states to the
// records of imported persistent resources. Called once the frame's
// command buffers are submitted.
func (s *resourceStore) writeBackStates(g *graph, plan *framePlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range g.buffers {
		gb := &g.buffers[i]
		if gb.handle.IsValid() && s.bufferPool.Valid(gb.handle.Handle) {
			s.buffers[gb.handle.Index].state = plan.bufferStates[i]
		}
	}
	for i := range g.images {
		gi := &g.images[i]
		if gi.handle.IsValid() && s.imagePool.Valid(gi.handle.Handle) {
			s.images[gi.handle.Index].state = plan.imageStates[i]
		}
	}
}

// liveCounts reports the number of live records per pool.
func (s *resourceStore) liveCounts() (buffers, images, samplers int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bufferPool.Live(), s.imagePool.Live(), s.samplerPool.Live()
}

func putAt[T any](sl *[]T, index uint32, value T) {
	for uint32(len(*sl)) <= index {
		var zero T
		*sl = append(*sl, zero)
	}
	(*sl)[index] = value
}
