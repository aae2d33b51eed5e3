package forgevk

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/S96/ForgeVk/hal"
)

// FindMemoryType returns the first memory type index allowed by typeBits
// whose property flags include all of want.
func FindMemoryType(props vk.PhysicalDeviceMemoryProperties, typeBits uint32, want vk.MemoryPropertyFlags) (uint32, error) {
	count := props.MemoryTypeCount
	if count > vk.MaxMemoryTypes {
		count = vk.MaxMemoryTypes
	}
	for i := uint32(0); i < count; i++ {
		if typeBits&(1<<i) == 0 {
			continue
		}
		if props.MemoryTypes[i].PropertyFlags&want == want {
			return i, nil
		}
	}
	return 0, markf(ErrNoSuitableMemory, nil, "type bits %#x, properties %#x", typeBits, want)
}

// Buffer is a buffer together with the memory bound to it. Destroy releases
// both.
type Buffer struct {
	Handle hal.Buffer
	Memory hal.Memory
	Size   vk.DeviceSize
	Usage  vk.BufferUsageFlags

	dev hal.Device
}

// Destroy destroys the buffer and frees its memory. Calling it again is a
// no-op.
func (b *Buffer) Destroy() {
	if b == nil || b.dev == nil {
		return
	}
	b.dev.DestroyBuffer(b.Handle)
	b.dev.FreeMemory(b.Memory)
	b.dev = nil
	b.Handle, b.Memory = 0, 0
}

func (b *Buffer) recordCopy(dev hal.Device, cb hal.CommandBuffer, staging hal.Buffer, size vk.DeviceSize) {
	dev.CmdCopyBuffer(cb, staging, b.Handle, size)
}

func (b *Buffer) capacity() vk.DeviceSize {
	return b.Size
}

// Image is a 2D image together with the memory bound to it.
type Image struct {
	Handle hal.Image
	Memory hal.Memory
	Format vk.Format
	Width  uint32
	Height uint32

	dev hal.Device
}

// Destroy destroys the image and frees its memory. Calling it again is a
// no-op.
func (img *Image) Destroy() {
	if img == nil || img.dev == nil {
		return
	}
	img.dev.DestroyImage(img.Handle)
	img.dev.FreeMemory(img.Memory)
	img.dev = nil
	img.Handle, img.Memory = 0, 0
}

// recordCopy expects the image in transfer-destination layout.
func (img *Image) recordCopy(dev hal.Device, cb hal.CommandBuffer, staging hal.Buffer, size vk.DeviceSize) {
	dev.CmdCopyBufferToImage(cb, staging, img.Handle, img.Width, img.Height)
}

func (img *Image) capacity() vk.DeviceSize {
	return vk.DeviceSize(img.Width) * vk.DeviceSize(img.Height) * vk.DeviceSize(formatSize(img.Format))
}

// StagingTarget is a device-local destination for UploadViaStaging.
type StagingTarget interface {
	recordCopy(dev hal.Device, cb hal.CommandBuffer, staging hal.Buffer, size vk.DeviceSize)
	capacity() vk.DeviceSize
}

// formatSize returns bytes per texel of the color formats uploaded from the
// host.
func formatSize(f vk.Format) int {
	switch f {
	case vk.FormatR8Unorm:
		return 1
	case vk.FormatR8g8Unorm:
		return 2
	case vk.FormatR32g32b32a32Sfloat:
		return 16
	default:
		return 4
	}
}

// AllocateMemory allocates memory matching req with at least the want
// property flags.
func (m *ResourceManager) AllocateMemory(req vk.MemoryRequirements, want vk.MemoryPropertyFlags) (hal.Memory, error) {
	index, err := FindMemoryType(m.ctx.MemoryProperties, req.MemoryTypeBits, want)
	if err != nil {
		return 0, err
	}
	mem, err := m.ctx.Device.AllocateMemory(req.Size, index)
	if err != nil {
		return 0, markf(ErrMemoryAllocation, err, "allocate %d bytes from type %d", req.Size, index)
	}
	return mem, nil
}

// CreateBuffer creates a buffer with memory of the given properties bound
// to it. On failure nothing is left allocated.
func (m *ResourceManager) CreateBuffer(size vk.DeviceSize, usage vk.BufferUsageFlags, props vk.MemoryPropertyFlags) (_ *Buffer, err error) {
	dev := m.ctx.Device
	handle, err := dev.CreateBuffer(size, usage)
	if err != nil {
		return nil, markf(ErrResourceCreation, err, "create buffer of %d bytes", size)
	}
	defer func() {
		if err != nil {
			dev.DestroyBuffer(handle)
		}
	}()
	mem, err := m.AllocateMemory(dev.BufferRequirements(handle), props)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			dev.FreeMemory(mem)
		}
	}()
	if err = dev.BindBufferMemory(handle, mem); err != nil {
		return nil, markf(ErrResourceCreation, err, "bind buffer memory")
	}
	return &Buffer{Handle: handle, Memory: mem, Size: size, Usage: usage, dev: dev}, nil
}

// CreateImage creates a 2D image with memory of the given properties bound
// to it. On failure nothing is left allocated.
func (m *ResourceManager) CreateImage(width, height uint32, format vk.Format, tiling vk.ImageTiling,
	usage vk.ImageUsageFlags, props vk.MemoryPropertyFlags) (_ *Image, err error) {

	dev := m.ctx.Device
	handle, err := dev.CreateImage(hal.ImageDesc{
		Width:  width,
		Height: height,
		Format: format,
		Tiling: tiling,
		Usage:  usage,
	})
	if err != nil {
		return nil, markf(ErrResourceCreation, err, "create %dx%d image", width, height)
	}
	defer func() {
		if err != nil {
			dev.DestroyImage(handle)
		}
	}()
	mem, err := m.AllocateMemory(dev.ImageRequirements(handle), props)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			dev.FreeMemory(mem)
		}
	}()
	if err = dev.BindImageMemory(handle, mem); err != nil {
		return nil, markf(ErrResourceCreation, err, "bind image memory")
	}
	return &Image{Handle: handle, Memory: mem, Format: format, Width: width, Height: height, dev: dev}, nil
}
