package vkr

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// Format aliases the raw Vulkan format so descriptions stay plain data
// while callers keep access to the full format namespace.
type Format = vk.Format

// ImageKind selects the dimensionality of an image.
type ImageKind int

const (
	ImageKind1D ImageKind = iota
	ImageKind2D
	ImageKind3D
	ImageKindCube
)

// ImageDescription is the plain-data recipe for an image. It is comparable;
// transient aliasing relies on that.
type ImageDescription struct {
	Kind        ImageKind
	Width       uint32
	Height      uint32
	Depth       uint32
	Format      Format
	MipLevels   uint32
	ArrayLayers uint32
	Usage       ImageUsage
	Location    MemoryLocation
}

func (d *ImageDescription) normalize() {
	if d.Depth == 0 {
		d.Depth = 1
	}
	if d.MipLevels == 0 {
		d.MipLevels = 1
	}
	if d.ArrayLayers == 0 {
		d.ArrayLayers = 1
	}
	if d.Kind == ImageKindCube && d.ArrayLayers < 6 {
		d.ArrayLayers = 6
	}
}

// IsDepthFormat reports whether f has a depth aspect.
func IsDepthFormat(f Format) bool {
	switch f {
	case vk.FormatD16Unorm, vk.FormatD32Sfloat, vk.FormatD16UnormS8Uint,
		vk.FormatD24UnormS8Uint, vk.FormatD32SfloatS8Uint, vk.FormatX8D24UnormPack32:
		return true
	}
	return false
}

func aspectFor(f Format) vk.ImageAspectFlags {
	if IsDepthFormat(f) {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

// Image is a device-owned image, its default full-range view, and its
// placed memory.
type Image struct {
	Device      *Device
	VKImage     vk.Image
	VKImageView vk.ImageView
	Name        string
	Description ImageDescription

	allocation deviceAllocation
	// bindless slots, negative when the corresponding usage is absent.
	sampledSlot int32
	storageSlot int32
	// state carries layout and visibility across frames.
	state imageState
}

func (d *Device) createImageResource(name string, desc ImageDescription) (*Image, error) {
	desc.normalize()
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("create image %q: zero extent", name)
	}

	imageType := vk.ImageType2d
	switch desc.Kind {
	case ImageKind1D:
		imageType = vk.ImageType1d
	case ImageKind3D:
		imageType = vk.ImageType3d
	}
	var flags vk.ImageCreateFlags
	if desc.Kind == ImageKindCube {
		flags = vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}

	info := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		Flags:     flags,
		ImageType: imageType,
		Format:    desc.Format,
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  desc.Depth,
		},
		MipLevels:     desc.MipLevels,
		ArrayLayers:   desc.ArrayLayers,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(desc.Usage.vk()),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var image vk.Image
	if err := vkResult(vk.CreateImage(d.VKDevice, &info, nil, &image)); err != nil {
		return nil, fmt.Errorf("create image %q: %w", name, err)
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.VKDevice, image, &req)
	req.Deref()

	allocation, err := d.allocator.allocate(req, desc.Location)
	if err != nil {
		vk.DestroyImage(d.VKDevice, image, nil)
		return nil, fmt.Errorf("create image %q: %w", name, err)
	}
	if err := vkResult(vk.BindImageMemory(d.VKDevice, image, allocation.block.memory.VKDeviceMemory, vk.DeviceSize(allocation.alloc.Offset))); err != nil {
		d.allocator.free(allocation)
		vk.DestroyImage(d.VKDevice, image, nil)
		return nil, fmt.Errorf("bind image %q: %w", name, err)
	}

	view, err := d.createImageView(image, desc)
	if err != nil {
		d.allocator.free(allocation)
		vk.DestroyImage(d.VKDevice, image, nil)
		return nil, fmt.Errorf("create image view %q: %w", name, err)
	}

	return &Image{
		Device:      d,
		VKImage:     image,
		VKImageView: view,
		Name:        name,
		Description: desc,
		allocation:  allocation,
		sampledSlot: -1,
		storageSlot: -1,
		state:       imageState{firstUse: true, layout: vk.ImageLayoutUndefined},
	}, nil
}

func (d *Device) createImageView(image vk.Image, desc ImageDescription) (vk.ImageView, error) {
	viewType := vk.ImageViewType2d
	switch desc.Kind {
	case ImageKind1D:
		viewType = vk.ImageViewType1d
	case ImageKind3D:
		viewType = vk.ImageViewType3d
	case ImageKindCube:
		viewType = vk.ImageViewTypeCube
	}
	info := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: viewType,
		Format:   desc.Format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspectFor(desc.Format),
			LevelCount: desc.MipLevels,
			LayerCount: desc.ArrayLayers,
		},
	}
	var view vk.ImageView
	if err := vkResult(vk.CreateImageView(d.VKDevice, &info, nil, &view)); err != nil {
		return vk.NullImageView, err
	}
	return view, nil
}

func (i *Image) release() {
	vk.DestroyImageView(i.Device.VKDevice, i.VKImageView, nil)
	vk.DestroyImage(i.Device.VKDevice, i.VKImage, nil)
	i.Device.allocator.free(i.allocation)
}
