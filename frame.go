package vkr

import (
	"errors"
	"fmt"
	"time"

	vk "github.com/vulkan-go/vulkan"
)

// frameTimeout bounds every blocking wait in the frame loop. A fence or
// acquire that does not signal within it is treated as a lost device.
const frameTimeout = time.Second

// frameSlot is the per-frame-in-flight bundle: the fence gating reuse,
// the swapchain acquire and render-complete semaphores, command pools per
// queue family, and a pool of inter-batch semaphores.
type frameSlot struct {
	device  *Device
	index   int
	fence   *Fence
	acquire *Semaphore
	done    *Semaphore

	pools   map[uint32]*CommandPool
	buffers map[uint32][]*CommandBuffer
	used    map[uint32]int

	semaphores []*Semaphore
	semUsed    int
}

// frameRing cycles the slots and tracks the frame currently being built.
type frameRing struct {
	device  *Device
	slots   []*frameSlot
	index   uint64
	builder *GraphBuilder
	// swapchain image acquired for the frame being built, -1 outside a
	// frame or when the frame does not present.
	imageIndex int
}

func (d *Device) createFrameRing() (*frameRing, error) {
	ring := &frameRing{device: d, imageIndex: -1}
	for i := 0; i < d.framesInFlight; i++ {
		slot := &frameSlot{
			device:  d,
			index:   i,
			pools:   make(map[uint32]*CommandPool),
			buffers: make(map[uint32][]*CommandBuffer),
			used:    make(map[uint32]int),
		}
		var err error
		if slot.fence, err = d.createFence(true); err != nil {
			ring.destroy()
			return nil, err
		}
		if slot.acquire, err = d.createSemaphore(); err != nil {
			ring.destroy()
			return nil, err
		}
		if slot.done, err = d.createSemaphore(); err != nil {
			ring.destroy()
			return nil, err
		}
		ring.slots = append(ring.slots, slot)
	}
	return ring, nil
}

func (r *frameRing) current() *frameSlot {
	return r.slots[r.index%uint64(len(r.slots))]
}

func (r *frameRing) destroy() {
	for _, slot := range r.slots {
		if slot.fence != nil {
			slot.fence.Destroy()
		}
		if slot.acquire != nil {
			slot.acquire.Destroy()
		}
		if slot.done != nil {
			slot.done.Destroy()
		}
		for _, sem := range slot.semaphores {
			sem.Destroy()
		}
		for _, pool := range slot.pools {
			pool.Destroy()
		}
	}
	r.slots = nil
}

// commandBuffer hands out a recycled command buffer for the family,
// allocating pool and buffer on first use.
func (s *frameSlot) commandBuffer(family uint32) (*CommandBuffer, error) {
	pool, ok := s.pools[family]
	if !ok {
		var err error
		pool, err = s.device.createCommandPool(family)
		if err != nil {
			return nil, err
		}
		s.pools[family] = pool
	}
	if s.used[family] < len(s.buffers[family]) {
		cmd := s.buffers[family][s.used[family]]
		s.used[family]++
		return cmd, nil
	}
	cmds, err := pool.AllocateBuffers(1)
	if err != nil {
		return nil, err
	}
	s.buffers[family] = append(s.buffers[family], cmds[0])
	s.used[family]++
	return cmds[0], nil
}

// semaphore hands out a recycled inter-batch semaphore. Reuse is safe
// because the slot's fence has signaled since the last frame used them.
func (s *frameSlot) semaphore() (*Semaphore, error) {
	if s.semUsed < len(s.semaphores) {
		sem := s.semaphores[s.semUsed]
		s.semUsed++
		return sem, nil
	}
	sem, err := s.device.createSemaphore()
	if err != nil {
		return nil, err
	}
	s.semaphores = append(s.semaphores, sem)
	s.semUsed++
	return sem, nil
}

func (s *frameSlot) reset() error {
	for family, pool := range s.pools {
		if err := pool.Reset(); err != nil {
			return err
		}
		s.used[family] = 0
	}
	s.semUsed = 0
	return nil
}

// BeginFrame blocks until the frame slot's previous submission has
// retired, releases everything that submission deferred, and returns a
// fresh graph builder for the new frame.
func (d *Device) BeginFrame() (*GraphBuilder, error) {
	if err := d.checkAlive(); err != nil {
		return nil, err
	}
	if d.frames.builder != nil {
		return nil, fmt.Errorf("begin frame: previous frame was not submitted")
	}

	slot := d.frames.current()
	if err := slot.fence.Wait(frameTimeout); err != nil {
		if errors.Is(err, ErrTimeout) {
			d.lost.Store(true)
			return nil, fmt.Errorf("frame fence wait timed out: %w", ErrDeviceLost)
		}
		return nil, d.poisonOnLoss(err)
	}

	if n := d.retire.drain(slot.index); n > 0 {
		d.Debug.Verbosef("retired %d deferred releases", n)
	}
	d.retire.advance(slot.index)

	if err := slot.reset(); err != nil {
		return nil, err
	}

	d.frames.builder = newGraphBuilder(d, d.store)
	d.frames.imageIndex = -1
	return d.frames.builder, nil
}

// EndFrame compiles the frame's graph, records and submits it, and
// presents when the frame acquired the swapchain image. An
// ErrSwapchainOutOfDate return leaves the graph unsubmitted, though
// staged uploads still run; the caller reconfigures the swapchain and
// builds the next frame.
func (d *Device) EndFrame(builder *GraphBuilder) error {
	if err := d.checkAlive(); err != nil {
		return err
	}
	if builder == nil || builder != d.frames.builder {
		return fmt.Errorf("end frame: builder does not belong to the open frame")
	}
	d.frames.builder = nil
	slot := d.frames.current()

	// Uploads land in their own submission ahead of the graph so the
	// compiled barriers observe post-copy states.
	var uploadCmd *CommandBuffer
	if d.uploads.pending() {
		cmd, err := slot.commandBuffer(d.GraphicsQueue.Family)
		if err != nil {
			return err
		}
		if err := cmd.BeginOneTime(); err != nil {
			return err
		}
		if err := d.uploads.flush(cmd); err != nil {
			return err
		}
		if err := cmd.End(); err != nil {
			return err
		}
		uploadCmd = cmd
	}

	// Compile before touching the swapchain: a rejected graph must not
	// leave a pending signal on the slot's acquire semaphore.
	builder.refreshImportedStates()
	plan, err := compileGraph(&builder.graph, d.queueCaps())
	if err != nil {
		return d.abortFrame(slot, uploadCmd, err)
	}

	presenting := builder.swapchainImage >= 0
	if presenting {
		index, err := d.swapchain.acquire(slot.acquire, frameTimeout)
		if err != nil {
			if errors.Is(err, ErrSwapchainOutOfDate) {
				return d.abortFrame(slot, uploadCmd, ErrSwapchainOutOfDate)
			}
			if errors.Is(err, ErrTimeout) {
				d.lost.Store(true)
				return fmt.Errorf("swapchain acquire timed out: %w", ErrDeviceLost)
			}
			return d.poisonOnLoss(err)
		}
		d.frames.imageIndex = int(index)
	}

	d.bindless.flushWrites(slot.index)

	imageIndex := uint32(0)
	if d.frames.imageIndex >= 0 {
		imageIndex = uint32(d.frames.imageIndex)
	}
	res, err := d.materializeFrame(plan, imageIndex)
	if err != nil {
		return err
	}
	batches, err := d.recordFrame(plan, res, slot)
	if err != nil {
		return err
	}

	if err := slot.fence.Reset(); err != nil {
		return err
	}

	// Past this point the slot fence is unsignaled. A failed submission
	// would leave it that way forever, so any error here retires the
	// device rather than stranding the next BeginFrame on the fence.
	var wait *Semaphore
	waitStage := vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	if uploadCmd != nil {
		sem, err := slot.semaphore()
		if err != nil {
			return d.frameSubmitFailed(err)
		}
		s := submit{commandBuffers: []vk.CommandBuffer{uploadCmd.VKCommandBuffer}, signals: []vk.Semaphore{sem.VKSemaphore}}
		if presenting && len(batches) == 0 {
			s.waits = []vk.Semaphore{slot.acquire.VKSemaphore}
			s.waitStages = []vk.PipelineStageFlags{waitStage}
		}
		fence := (*Fence)(nil)
		if len(batches) == 0 {
			fence = slot.fence
		}
		if err := d.GraphicsQueue.Submit(s, fence); err != nil {
			return d.frameSubmitFailed(err)
		}
		wait = sem
	}

	for bi, batch := range batches {
		s := submit{commandBuffers: []vk.CommandBuffer{batch.cmd.VKCommandBuffer}}
		if wait != nil {
			s.waits = append(s.waits, wait.VKSemaphore)
			s.waitStages = append(s.waitStages, waitStage)
		}
		if bi == 0 && presenting {
			s.waits = append(s.waits, slot.acquire.VKSemaphore)
			s.waitStages = append(s.waitStages, vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit))
		}
		last := bi == len(batches)-1
		var fence *Fence
		if last {
			fence = slot.fence
			if presenting {
				s.signals = append(s.signals, slot.done.VKSemaphore)
			}
		} else {
			sem, err := slot.semaphore()
			if err != nil {
				return d.frameSubmitFailed(err)
			}
			s.signals = append(s.signals, sem.VKSemaphore)
			wait = sem
		}
		if err := d.queueFor(batch.family).Submit(s, fence); err != nil {
			return d.frameSubmitFailed(err)
		}
	}

	if uploadCmd == nil && len(batches) == 0 {
		// Nothing was submitted; keep the slot fence signaled for the
		// next frame.
		if err := vkResult(vk.QueueSubmit(d.GraphicsQueue.VKQueue, 0, nil, slot.fence.VKFence)); err != nil {
			return d.frameSubmitFailed(err)
		}
	}

	d.store.writeBackStates(&builder.graph, plan)
	d.frames.index++

	if presenting {
		err := d.swapchain.present(d.GraphicsQueue, imageIndex, slot.done)
		if err != nil && !errors.Is(err, ErrSwapchainOutOfDate) && !errors.Is(err, ErrSwapchainSuboptimal) {
			return d.poisonOnLoss(err)
		}
		return err
	}
	return nil
}

// abortFrame unwinds EndFrame before anything was recorded against the
// frame's graph. Staged uploads were already written into uploadCmd and
// the store's tracked states advanced to match, so the copies still run
// in their own submission; the slot fence ends the frame signaled either
// way and d.frames.index stays put, so the next BeginFrame reuses the
// slot.
func (d *Device) abortFrame(slot *frameSlot, uploadCmd *CommandBuffer, cause error) error {
	if uploadCmd == nil {
		return cause
	}
	if err := slot.fence.Reset(); err != nil {
		return err
	}
	s := submit{commandBuffers: []vk.CommandBuffer{uploadCmd.VKCommandBuffer}}
	if err := d.GraphicsQueue.Submit(s, slot.fence); err != nil {
		return d.frameSubmitFailed(err)
	}
	return cause
}

// frameSubmitFailed retires the device after a submission failure that
// left the slot fence unsignaled. The fence cannot be signaled from the
// host, so the frame ring can never make progress again.
func (d *Device) frameSubmitFailed(err error) error {
	d.lost.Store(true)
	return fmt.Errorf("frame submission failed: %w", err)
}

// refreshImportedStates re-reads the store's tracked state for every
// imported resource. Uploads flushed after the handle was imported may
// have advanced it.
func (b *GraphBuilder) refreshImportedStates() {
	for h, ref := range b.importedBuffers {
		if _, state, err := b.resolver.resolveBuffer(h); err == nil {
			b.graph.buffers[ref.index].state = state
		}
	}
	for h, ref := range b.importedImages {
		if _, state, err := b.resolver.resolveImage(h); err == nil {
			b.graph.images[ref.index].state = state
		}
	}
}
