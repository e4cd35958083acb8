package vkr

import (
	"fmt"
	"time"

	vk "github.com/vulkan-go/vulkan"
)

// SwapchainConfig controls swapchain creation and rebuilds.
type SwapchainConfig struct {
	// Width and Height are used when the surface does not report a fixed
	// extent.
	Width  uint32
	Height uint32
	// ImageCount is the desired number of swapchain images. Zero means
	// the surface minimum plus one.
	ImageCount int
	// VSync forces FIFO presentation. Off, mailbox is preferred when the
	// surface offers it.
	VSync bool
	// Format is the preferred surface format. Zero picks B8G8R8A8 unorm
	// when available, the first reported format otherwise.
	Format Format
}

// Swapchain wraps the presentation images for a surface. Acquire and
// present are driven by the frame loop; user code only reaches the
// swapchain image through GraphBuilder.AcquireSwapchainImage.
type Swapchain struct {
	Device      *Device
	VKSwapchain vk.Swapchain
	Format      Format
	Extent      vk.Extent2D

	config SwapchainConfig
	images []vk.Image
	views  []vk.ImageView
}

func (p *PhysicalDevice) surfaceCapabilities(surface vk.Surface) (vk.SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	if err := vkResult(vk.GetPhysicalDeviceSurfaceCapabilities(p.VKPhysicalDevice, surface, &caps)); err != nil {
		return caps, fmt.Errorf("query surface capabilities: %w", err)
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	return caps, nil
}

func (p *PhysicalDevice) surfaceFormats(surface vk.Surface) ([]vk.SurfaceFormat, error) {
	var count uint32
	if err := vkResult(vk.GetPhysicalDeviceSurfaceFormats(p.VKPhysicalDevice, surface, &count, nil)); err != nil {
		return nil, fmt.Errorf("query surface formats: %w", err)
	}
	formats := make([]vk.SurfaceFormat, count)
	if err := vkResult(vk.GetPhysicalDeviceSurfaceFormats(p.VKPhysicalDevice, surface, &count, formats)); err != nil {
		return nil, fmt.Errorf("query surface formats: %w", err)
	}
	for i := range formats {
		formats[i].Deref()
	}
	return formats, nil
}

func (p *PhysicalDevice) surfacePresentModes(surface vk.Surface) ([]vk.PresentMode, error) {
	var count uint32
	if err := vkResult(vk.GetPhysicalDeviceSurfacePresentModes(p.VKPhysicalDevice, surface, &count, nil)); err != nil {
		return nil, fmt.Errorf("query present modes: %w", err)
	}
	modes := make([]vk.PresentMode, count)
	if err := vkResult(vk.GetPhysicalDeviceSurfacePresentModes(p.VKPhysicalDevice, surface, &count, modes)); err != nil {
		return nil, fmt.Errorf("query present modes: %w", err)
	}
	return modes, nil
}

// ConfigureSwapchain creates the swapchain, or rebuilds it after a resize
// or an out-of-date result. Rebuilding waits for the device to go idle.
func (d *Device) ConfigureSwapchain(config SwapchainConfig) error {
	if err := d.checkAlive(); err != nil {
		return err
	}
	if d.surface == vk.NullSurface {
		return fmt.Errorf("configure swapchain: device was created without a surface")
	}

	caps, err := d.PhysicalDevice.surfaceCapabilities(d.surface)
	if err != nil {
		return err
	}
	formats, err := d.PhysicalDevice.surfaceFormats(d.surface)
	if err != nil {
		return err
	}
	modes, err := d.PhysicalDevice.surfacePresentModes(d.surface)
	if err != nil {
		return err
	}
	if len(formats) == 0 {
		return fmt.Errorf("configure swapchain: surface reports no formats: %w", ErrUnsupportedFormat)
	}

	wanted := config.Format
	if wanted == 0 {
		wanted = vk.FormatB8g8r8a8Unorm
	}
	surfaceFormat := formats[0]
	for _, f := range formats {
		if f.Format == wanted {
			surfaceFormat = f
			break
		}
	}

	presentMode := vk.PresentModeFifo
	if !config.VSync {
		for _, m := range modes {
			if m == vk.PresentModeMailbox {
				presentMode = m
				break
			}
		}
	}

	extent := caps.CurrentExtent
	if extent.Width == vk.MaxUint32 {
		extent = vk.Extent2D{Width: config.Width, Height: config.Height}
		if extent.Width < caps.MinImageExtent.Width {
			extent.Width = caps.MinImageExtent.Width
		}
		if extent.Height < caps.MinImageExtent.Height {
			extent.Height = caps.MinImageExtent.Height
		}
	}

	imageCount := uint32(config.ImageCount)
	if imageCount == 0 {
		imageCount = caps.MinImageCount + 1
	}
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	old := vk.Swapchain(vk.NullSwapchain)
	if d.swapchain != nil {
		// Rebuilds happen between frames; idle the device so the old
		// images are no longer referenced.
		vk.DeviceWaitIdle(d.VKDevice)
		old = d.swapchain.VKSwapchain
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.surface,
		MinImageCount:    imageCount,
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     old,
	}

	var handle vk.Swapchain
	if err := vkResult(vk.CreateSwapchain(d.VKDevice, &createInfo, nil, &handle)); err != nil {
		return fmt.Errorf("create swapchain: %w", err)
	}

	if d.swapchain != nil {
		d.retire.drainAll()
		d.swapchain.destroyViews()
		vk.DestroySwapchain(d.VKDevice, old, nil)
		d.swapchain = nil
	}

	sc := &Swapchain{
		Device:      d,
		VKSwapchain: handle,
		Format:      surfaceFormat.Format,
		Extent:      extent,
		config:      config,
	}
	if err := sc.fetchImages(); err != nil {
		vk.DestroySwapchain(d.VKDevice, handle, nil)
		return err
	}
	d.swapchain = sc
	d.Debug.Infof("swapchain configured: %dx%d, %d images, format %d",
		extent.Width, extent.Height, len(sc.images), surfaceFormat.Format)
	return nil
}

func (s *Swapchain) fetchImages() error {
	var count uint32
	if err := vkResult(vk.GetSwapchainImages(s.Device.VKDevice, s.VKSwapchain, &count, nil)); err != nil {
		return fmt.Errorf("query swapchain images: %w", err)
	}
	s.images = make([]vk.Image, count)
	if err := vkResult(vk.GetSwapchainImages(s.Device.VKDevice, s.VKSwapchain, &count, s.images)); err != nil {
		return fmt.Errorf("query swapchain images: %w", err)
	}
	s.views = make([]vk.ImageView, count)
	for i, image := range s.images {
		viewInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    image,
			ViewType: vk.ImageViewType2d,
			Format:   s.Format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}
		if err := vkResult(vk.CreateImageView(s.Device.VKDevice, &viewInfo, nil, &s.views[i])); err != nil {
			s.destroyViews()
			return fmt.Errorf("create swapchain image view: %w", err)
		}
	}
	return nil
}

// acquire blocks until a swapchain image is available and returns its
// index. The semaphore signals when the image is safe to write.
func (s *Swapchain) acquire(signal *Semaphore, timeout time.Duration) (uint32, error) {
	var index uint32
	ret := vk.AcquireNextImage(s.Device.VKDevice, s.VKSwapchain, uint64(timeout.Nanoseconds()), signal.VKSemaphore, vk.NullFence, &index)
	if ret == vk.ErrorOutOfDate {
		return 0, ErrSwapchainOutOfDate
	}
	if err := vkResult(ret); err != nil {
		return 0, fmt.Errorf("acquire swapchain image: %w", err)
	}
	return index, nil
}

// present queues the image for display once wait signals.
func (s *Swapchain) present(queue *Queue, index uint32, wait *Semaphore) error {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{wait.VKSemaphore},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.VKSwapchain},
		PImageIndices:      []uint32{index},
	}
	ret := vk.QueuePresent(queue.VKQueue, &presentInfo)
	if ret == vk.ErrorOutOfDate {
		return ErrSwapchainOutOfDate
	}
	if ret == vk.Suboptimal {
		return ErrSwapchainSuboptimal
	}
	if err := vkResult(ret); err != nil {
		return fmt.Errorf("present: %w", err)
	}
	return nil
}

func (s *Swapchain) destroyViews() {
	for _, view := range s.views {
		vk.DestroyImageView(s.Device.VKDevice, view, nil)
	}
	s.views = nil
}

func (s *Swapchain) Destroy() {
	s.destroyViews()
	if s.VKSwapchain != vk.NullSwapchain {
		vk.DestroySwapchain(s.Device.VKDevice, s.VKSwapchain, nil)
		s.VKSwapchain = vk.NullSwapchain
	}
}
