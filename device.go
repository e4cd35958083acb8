package vkr

import (
	"errors"
	"fmt"
	"sync/atomic"

	vk "github.com/vulkan-go/vulkan"
)

// DeviceConfig configures logical device creation.
type DeviceConfig struct {
	// Score ranks physical devices; nil means DefaultDeviceScore.
	Score ScoreFunc
	// Surface, when set, requires present support on the graphics queue
	// and enables the swapchain extension.
	Surface vk.Surface
	// FramesInFlight bounds how many frames may be on the GPU at once.
	// Zero means 3.
	FramesInFlight int
	Bindless       BindlessConfig
	// Extensions lists extra device extensions.
	Extensions []string
	// MemoryBlockSize overrides the allocator block size. Zero keeps the
	// default.
	MemoryBlockSize uint64
	// StagingSize bounds per-frame upload staging memory. Zero means 16 MiB.
	StagingSize uint64
}

// Device owns the logical device, its queues, the resource store, the
// bindless table and the per-frame machinery. All frame operations are
// driven from a single thread; resource creation and destruction may
// happen from any thread.
type Device struct {
	Instance       *Instance
	PhysicalDevice *PhysicalDevice
	VKDevice       vk.Device
	Debug          *DebugChannel

	GraphicsQueue *Queue
	// ComputeQueue is nil when the device has no async compute family.
	ComputeQueue *Queue
	// TransferQueue is nil when the device has no dedicated transfer
	// family.
	TransferQueue *Queue

	// VKPipelineLayout is the single layout every pipeline uses: the
	// bindless set plus one push constant range.
	VKPipelineLayout vk.PipelineLayout

	framesInFlight int
	surface        vk.Surface
	allocator      *deviceAllocator
	bindless       *bindlessTable
	store          *resourceStore
	pipelines      *pipelineCache
	renderPasses   *renderPassCache
	retire         *retireRing
	uploads        *uploadQueue
	swapchain      *Swapchain
	frames         *frameRing

	// lost poisons the device after DeviceLost; all further operations
	// fail fast.
	lost atomic.Bool
}

// CreateDevice selects a physical device with the config's scoring
// function and creates the logical device around it.
func (i *Instance) CreateDevice(config DeviceConfig) (*Device, error) {
	pd, err := i.selectDevice(config.Score, config.Surface)
	if err != nil {
		return nil, err
	}
	return i.createDeviceOn(pd, config)
}

// CreateDeviceAt creates the logical device on the physical device at the
// given enumeration index, bypassing scoring.
func (i *Instance) CreateDeviceAt(index int, config DeviceConfig) (*Device, error) {
	devices, err := i.PhysicalDevices()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(devices) {
		return nil, fmt.Errorf("physical device index %d out of range", index)
	}
	return i.createDeviceOn(devices[index], config)
}

func (i *Instance) createDeviceOn(pd *PhysicalDevice, config DeviceConfig) (*Device, error) {
	families := pd.QueueFamilies()

	graphics := families.FilterGraphics()
	if config.Surface != vk.NullSurface {
		graphics = families.FilterGraphicsAndPresent(config.Surface)
	}
	if len(graphics) == 0 {
		return nil, fmt.Errorf("device %q has no usable graphics queue", pd.DeviceName)
	}
	graphicsFamily := uint32(graphics[0].Index)

	queueFamilies := []uint32{graphicsFamily}
	var computeFamily, transferFamily uint32
	hasAsyncCompute, hasTransfer := false, false
	if async := families.FilterAsyncCompute(); len(async) > 0 {
		computeFamily = uint32(async[0].Index)
		hasAsyncCompute = true
		queueFamilies = append(queueFamilies, computeFamily)
	}
	if transfer := families.FilterDedicatedTransfer(); len(transfer) > 0 {
		transferFamily = uint32(transfer[0].Index)
		hasTransfer = true
		queueFamilies = append(queueFamilies, transferFamily)
	}

	priorities := []float32{1.0}
	queueInfos := make([]vk.DeviceQueueCreateInfo, len(queueFamilies))
	for idx, family := range queueFamilies {
		queueInfos[idx] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: priorities,
		}
	}

	extensions := append([]string(nil), config.Extensions...)
	if config.Surface != vk.NullSurface {
		extensions = append(extensions, "VK_KHR_swapchain")
	}

	createInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}

	device := &Device{
		Instance:       i,
		PhysicalDevice: pd,
		Debug:          i.Debug,
		surface:        config.Surface,
		framesInFlight: config.FramesInFlight,
	}
	if device.framesInFlight <= 0 {
		device.framesInFlight = 3
	}
	if err := vkResult(vk.CreateDevice(pd.VKPhysicalDevice, &createInfo, nil, &device.VKDevice)); err != nil {
		return nil, fmt.Errorf("create device on %q: %w", pd.DeviceName, err)
	}

	device.GraphicsQueue = device.deviceQueue(graphicsFamily)
	if hasAsyncCompute {
		device.ComputeQueue = device.deviceQueue(computeFamily)
	}
	if hasTransfer {
		device.TransferQueue = device.deviceQueue(transferFamily)
	}

	device.allocator = newDeviceAllocator(device, config.MemoryBlockSize)

	bindlessConfig := config.Bindless
	if bindlessConfig == (BindlessConfig{}) {
		bindlessConfig = DefaultBindlessConfig()
	}
	bindless, err := device.createBindlessTable(bindlessConfig, device.framesInFlight)
	if err != nil {
		device.Destroy()
		return nil, err
	}
	device.bindless = bindless
	device.store = newResourceStore(bindless)

	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{bindless.VKLayout},
		PushConstantRangeCount: 1,
		PPushConstantRanges: []vk.PushConstantRange{{
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageAllGraphics | vk.ShaderStageComputeBit),
			Size:       maxPushConstantBytes,
		}},
	}
	if err := vkResult(vk.CreatePipelineLayout(device.VKDevice, &layoutInfo, nil, &device.VKPipelineLayout)); err != nil {
		device.Destroy()
		return nil, fmt.Errorf("create pipeline layout: %w", err)
	}

	if device.pipelines, err = device.createPipelineCache(); err != nil {
		device.Destroy()
		return nil, err
	}
	device.renderPasses = newRenderPassCache(device)
	device.retire = newRetireRing(device.framesInFlight)
	device.uploads = newUploadQueue(device, config.StagingSize)

	if device.frames, err = device.createFrameRing(); err != nil {
		device.Destroy()
		return nil, err
	}

	device.Debug.Infof("device created on %q (graphics family %d, async compute %v, dedicated transfer %v)",
		pd.DeviceName, graphicsFamily, hasAsyncCompute, hasTransfer)
	return device, nil
}

// queueCaps summarizes the compilation-relevant queue topology.
func (d *Device) queueCaps() queueCaps {
	caps := queueCaps{
		graphicsFamily: d.GraphicsQueue.Family,
		computeFamily:  d.GraphicsQueue.Family,
		transferFamily: d.GraphicsQueue.Family,
	}
	if d.ComputeQueue != nil {
		caps.computeFamily = d.ComputeQueue.Family
		caps.hasAsyncCompute = true
	}
	if d.TransferQueue != nil {
		caps.transferFamily = d.TransferQueue.Family
		caps.hasTransfer = true
	}
	return caps
}

func (d *Device) queueFor(family uint32) *Queue {
	switch {
	case d.ComputeQueue != nil && family == d.ComputeQueue.Family:
		return d.ComputeQueue
	case d.TransferQueue != nil && family == d.TransferQueue.Family:
		return d.TransferQueue
	default:
		return d.GraphicsQueue
	}
}

func (d *Device) checkAlive() error {
	if d.lost.Load() {
		return fmt.Errorf("device is poisoned: %w", ErrDeviceLost)
	}
	return nil
}

func (d *Device) poisonOnLoss(err error) error {
	if err != nil && isDeviceLost(err) {
		d.lost.Store(true)
	}
	return err
}

// CreateBuffer creates a buffer and returns its handle. Storage buffers
// receive a bindless slot.
func (d *Device) CreateBuffer(name string, desc BufferDescription) (BufferHandle, error) {
	if err := d.checkAlive(); err != nil {
		return BufferHandle{}, err
	}
	buffer, err := d.createBufferResource(name, desc)
	if err != nil {
		return BufferHandle{}, err
	}
	h, err := d.store.addBuffer(buffer)
	if err != nil {
		buffer.release()
		return BufferHandle{}, err
	}
	d.Debug.Verbosef("buffer %q created (%d bytes)", name, desc.Size)
	return h, nil
}

// DestroyBuffer invalidates the handle now and releases the GPU object
// once every frame that may reference it has retired.
func (d *Device) DestroyBuffer(h BufferHandle) error {
	buffer, err := d.store.removeBuffer(h)
	if err != nil {
		return err
	}
	slot := buffer.slot
	d.retire.enqueue(func() {
		buffer.release()
		if slot >= 0 {
			d.bindless.releaseSlot(partitionStorageBuffer, slot)
		}
	})
	return nil
}

func (d *Device) CreateImage(name string, desc ImageDescription) (ImageHandle, error) {
	if err := d.checkAlive(); err != nil {
		return ImageHandle{}, err
	}
	image, err := d.createImageResource(name, desc)
	if err != nil {
		return ImageHandle{}, err
	}
	h, err := d.store.addImage(image)
	if err != nil {
		image.release()
		return ImageHandle{}, err
	}
	d.Debug.Verbosef("image %q created (%dx%d, format %d)", name, desc.Width, desc.Height, desc.Format)
	return h, nil
}

func (d *Device) DestroyImage(h ImageHandle) error {
	image, err := d.store.removeImage(h)
	if err != nil {
		return err
	}
	sampledSlot, storageSlot := image.sampledSlot, image.storageSlot
	d.retire.enqueue(func() {
		image.release()
		if sampledSlot >= 0 {
			d.bindless.releaseSlot(partitionSampledImage, sampledSlot)
		}
		if storageSlot >= 0 {
			d.bindless.releaseSlot(partitionStorageImage, storageSlot)
		}
	})
	return nil
}

func (d *Device) CreateSampler(name string, desc SamplerDescription) (SamplerHandle, error) {
	if err := d.checkAlive(); err != nil {
		return SamplerHandle{}, err
	}
	sampler, err := d.createSamplerResource(name, desc)
	if err != nil {
		return SamplerHandle{}, err
	}
	h, err := d.store.addSampler(sampler)
	if err != nil {
		sampler.release()
		return SamplerHandle{}, err
	}
	return h, nil
}

func (d *Device) DestroySampler(h SamplerHandle) error {
	sampler, err := d.store.removeSampler(h)
	if err != nil {
		return err
	}
	slot := sampler.slot
	d.retire.enqueue(func() {
		sampler.release()
		if slot >= 0 {
			d.bindless.releaseSlot(partitionSampler, slot)
		}
	})
	return nil
}

func (d *Device) CreateComputePipeline(name string, desc ComputePipelineDescription) (ComputePipelineHandle, error) {
	if err := d.checkAlive(); err != nil {
		return ComputePipelineHandle{}, err
	}
	pipeline, err := d.createComputePipelineResource(name, desc)
	if err != nil {
		return ComputePipelineHandle{}, err
	}
	return d.store.addComputePipeline(pipeline)
}

func (d *Device) DestroyComputePipeline(h ComputePipelineHandle) error {
	pipeline, err := d.store.removeComputePipeline(h)
	if err != nil {
		return err
	}
	d.retire.enqueue(pipeline.release)
	return nil
}

func (d *Device) CreateRasterPipeline(name string, desc RasterPipelineDescription) (RasterPipelineHandle, error) {
	if err := d.checkAlive(); err != nil {
		return RasterPipelineHandle{}, err
	}
	pipeline, err := d.createRasterPipelineResource(name, desc)
	if err != nil {
		return RasterPipelineHandle{}, err
	}
	return d.store.addRasterPipeline(pipeline)
}

func (d *Device) DestroyRasterPipeline(h RasterPipelineHandle) error {
	pipeline, err := d.store.removeRasterPipeline(h)
	if err != nil {
		return err
	}
	d.retire.enqueue(pipeline.release)
	return nil
}

// StorageBufferSlot returns the bindless table index shaders use to
// address the buffer. The buffer must have been created with Storage usage.
func (d *Device) StorageBufferSlot(h BufferHandle) (uint32, error) {
	buffer, err := d.store.getBuffer(h)
	if err != nil {
		return 0, err
	}
	if buffer.slot < 0 {
		return 0, fmt.Errorf("buffer %q has no storage slot", buffer.Name)
	}
	return uint32(buffer.slot), nil
}

// SampledImageSlot returns the bindless table index for sampling the image.
func (d *Device) SampledImageSlot(h ImageHandle) (uint32, error) {
	image, err := d.store.getImage(h)
	if err != nil {
		return 0, err
	}
	if image.sampledSlot < 0 {
		return 0, fmt.Errorf("image %q has no sampled slot", image.Name)
	}
	return uint32(image.sampledSlot), nil
}

// StorageImageSlot returns the bindless table index for storage access to
// the image.
func (d *Device) StorageImageSlot(h ImageHandle) (uint32, error) {
	image, err := d.store.getImage(h)
	if err != nil {
		return 0, err
	}
	if image.storageSlot < 0 {
		return 0, fmt.Errorf("image %q has no storage slot", image.Name)
	}
	return uint32(image.storageSlot), nil
}

// SamplerSlot returns the bindless table index of the sampler.
func (d *Device) SamplerSlot(h SamplerHandle) (uint32, error) {
	sampler, err := d.store.getSampler(h)
	if err != nil {
		return 0, err
	}
	return uint32(sampler.slot), nil
}

// WaitIdle drains all queues and releases everything pending destruction.
func (d *Device) WaitIdle() error {
	if err := d.poisonOnLoss(vkResult(vk.DeviceWaitIdle(d.VKDevice))); err != nil {
		return err
	}
	d.retire.drainAll()
	return nil
}

// Destroy tears the device down. The caller must stop submitting frames
// first.
func (d *Device) Destroy() {
	if d.VKDevice != nil {
		vk.DeviceWaitIdle(d.VKDevice)
	}
	if d.retire != nil {
		d.retire.drainAll()
	}
	if d.frames != nil {
		d.frames.destroy()
	}
	if d.swapchain != nil {
		d.swapchain.Destroy()
	}
	if d.renderPasses != nil {
		d.renderPasses.destroy()
	}
	if d.pipelines != nil {
		d.pipelines.destroy(d)
	}
	if d.VKPipelineLayout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(d.VKDevice, d.VKPipelineLayout, nil)
	}
	if d.bindless != nil {
		d.bindless.destroy()
	}
	if d.allocator != nil {
		d.allocator.destroy()
	}
	if d.VKDevice != nil {
		vk.DestroyDevice(d.VKDevice, nil)
	}
}

func isDeviceLost(err error) bool {
	return errors.Is(err, ErrDeviceLost)
}
