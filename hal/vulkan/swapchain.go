package vulkan

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/S96/ForgeVk/hal"
)

// CreateSwapchain creates a swapchain. Two or more queue families select
// concurrent sharing.
func (d *Device) CreateSwapchain(desc hal.SwapchainDesc) (hal.Swapchain, error) {
	sharing := vk.SharingModeExclusive
	var families []uint32
	if len(desc.QueueFamilies) > 1 {
		sharing = vk.SharingModeConcurrent
		families = desc.QueueFamilies
	}
	old := vk.NullSwapchain
	if desc.Old != 0 {
		old = d.swapchains.get(desc.Old)
	}
	var sc vk.Swapchain
	ret := vk.CreateSwapchain(d.handle, &vk.SwapchainCreateInfo{
		SType:                 vk.StructureTypeSwapchainCreateInfo,
		Surface:               d.inst.surfaces.get(desc.Surface),
		MinImageCount:         desc.MinImageCount,
		ImageFormat:           desc.Format.Format,
		ImageColorSpace:       desc.Format.ColorSpace,
		ImageExtent:           desc.Extent,
		ImageArrayLayers:      1,
		ImageUsage:            desc.Usage,
		ImageSharingMode:      sharing,
		QueueFamilyIndexCount: uint32(len(families)),
		PQueueFamilyIndices:   families,
		PreTransform:          desc.PreTransform,
		CompositeAlpha:        desc.CompositeAlpha,
		PresentMode:           desc.PresentMode,
		Clipped:               vk.True,
		OldSwapchain:          old,
	}, nil, &sc)
	if isError(ret) {
		return 0, newError("vkCreateSwapchainKHR", ret)
	}
	return d.swapchains.put(sc), nil
}

// SwapchainImages returns the presentable images. They are owned by the
// swapchain and must not be destroyed.
func (d *Device) SwapchainImages(h hal.Swapchain) ([]hal.Image, error) {
	if images, ok := d.scImages[h]; ok {
		return images, nil
	}
	sc := d.swapchains.get(h)
	var count uint32
	ret := vk.GetSwapchainImages(d.handle, sc, &count, nil)
	if isError(ret) {
		return nil, newError("vkGetSwapchainImagesKHR", ret)
	}
	images := make([]vk.Image, count)
	ret = vk.GetSwapchainImages(d.handle, sc, &count, images)
	if isError(ret) {
		return nil, newError("vkGetSwapchainImagesKHR", ret)
	}
	out := make([]hal.Image, count)
	for i, img := range images {
		out[i] = d.images.put(img)
	}
	d.scImages[h] = out
	return out, nil
}

func (d *Device) DestroySwapchain(h hal.Swapchain) {
	sc, ok := d.swapchains.take(h)
	if !ok {
		return
	}
	for _, img := range d.scImages[h] {
		d.images.take(img)
	}
	delete(d.scImages, h)
	vk.DestroySwapchain(d.handle, sc, nil)
}

// AcquireNextImage waits without timeout for the next presentable image.
// The raw result is returned so callers can react to out of date and
// suboptimal swapchains.
func (d *Device) AcquireNextImage(h hal.Swapchain, signal hal.Semaphore) (uint32, vk.Result) {
	var index uint32
	ret := vk.AcquireNextImage(d.handle, d.swapchains.get(h), vk.MaxUint64,
		d.semaphores.get(signal), vk.NullFence, &index)
	return index, ret
}

func (d *Device) QueuePresent(q hal.Queue, h hal.Swapchain, index uint32, wait hal.Semaphore) vk.Result {
	return vk.QueuePresent(d.queue(q), &vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{d.semaphores.get(wait)},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{d.swapchains.get(h)},
		PImageIndices:      []uint32{index},
	})
}
