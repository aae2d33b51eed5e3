// Package hal is the narrow driver surface the renderer talks to.
//
// Enum and flag values are the vulkan-go types so that create-info structs
// which carry no object handles can be passed through unchanged. Objects are
// referred to by opaque handles; the backend owns the mapping to native
// Vulkan handles.
package hal

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// Opaque object handles. The zero value is the null handle.
type (
	Adapter             uint64
	Surface             uint64
	Queue               uint64
	Buffer              uint64
	Image               uint64
	ImageView           uint64
	Memory              uint64
	Sampler             uint64
	ShaderModule        uint64
	RenderPass          uint64
	Framebuffer         uint64
	DescriptorSetLayout uint64
	DescriptorPool      uint64
	DescriptorSet       uint64
	PipelineLayout      uint64
	Pipeline            uint64
	CommandPool         uint64
	CommandBuffer       uint64
	Semaphore           uint64
	Swapchain           uint64
)

// ResultError is a non-success result reported by the driver.
type ResultError struct {
	Op     string
	Result vk.Result
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("%s: vulkan error: %s (%d)", e.Op, vk.Error(e.Result), e.Result)
}

// SurfaceProvider creates a native presentation surface for an instance.
// *glfw.Window satisfies it.
type SurfaceProvider interface {
	CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error)
}

// AdapterInfo is the subset of physical device properties the renderer reads.
type AdapterInfo struct {
	Name                 string
	Type                 vk.PhysicalDeviceType
	SamplerAnisotropy    bool
	MaxSamplerAnisotropy float32
}

// DeviceDesc describes a logical device with one queue per family.
type DeviceDesc struct {
	QueueFamilies     []uint32
	Extensions        []string
	Layers            []string
	SamplerAnisotropy bool
}

// ImageDesc describes a single-mip 2D image.
type ImageDesc struct {
	Width, Height uint32
	Format        vk.Format
	Tiling        vk.ImageTiling
	Usage         vk.ImageUsageFlags
}

// FramebufferDesc pairs a render pass with its attachments.
type FramebufferDesc struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Extent      vk.Extent2D
}

// GraphicsPipelineDesc carries the fixed-function state of a graphics
// pipeline. Handle-free state structs are the vulkan-go types.
type GraphicsPipelineDesc struct {
	Layout         PipelineLayout
	RenderPass     RenderPass
	VertexShader   ShaderModule
	FragmentShader ShaderModule
	EntryPoint     string

	VertexBindings   []vk.VertexInputBindingDescription
	VertexAttributes []vk.VertexInputAttributeDescription
	Topology         vk.PrimitiveTopology
	Viewport         vk.Viewport
	Scissor          vk.Rect2D
	Rasterization    vk.PipelineRasterizationStateCreateInfo
	Samples          vk.SampleCountFlagBits
	DepthStencil     vk.PipelineDepthStencilStateCreateInfo
	ColorBlend       vk.PipelineColorBlendAttachmentState
}

// DescriptorWrite updates one binding of a descriptor set. Buffer and Range
// are used for buffer descriptors, View, Sampler and ImageLayout for image
// descriptors.
type DescriptorWrite struct {
	Binding     uint32
	Type        vk.DescriptorType
	Buffer      Buffer
	Range       vk.DeviceSize
	View        ImageView
	Sampler     Sampler
	ImageLayout vk.ImageLayout
}

// ImageBarrier is an image memory barrier without queue ownership transfer.
type ImageBarrier struct {
	Image     Image
	OldLayout vk.ImageLayout
	NewLayout vk.ImageLayout
	SrcAccess vk.AccessFlags
	DstAccess vk.AccessFlags
	Aspect    vk.ImageAspectFlags
}

// RenderPassBegin describes a render pass instance over the full extent.
type RenderPassBegin struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Extent      vk.Extent2D
	ClearValues []vk.ClearValue
}

// SubmitDesc submits one command buffer. Zero semaphores are omitted.
type SubmitDesc struct {
	CommandBuffer CommandBuffer
	Wait          Semaphore
	WaitStage     vk.PipelineStageFlags
	Signal        Semaphore
}

// SwapchainDesc describes a swapchain. Two or more QueueFamilies select
// concurrent sharing.
type SwapchainDesc struct {
	Surface        Surface
	MinImageCount  uint32
	Format         vk.SurfaceFormat
	Extent         vk.Extent2D
	Usage          vk.ImageUsageFlags
	PreTransform   vk.SurfaceTransformFlagBits
	CompositeAlpha vk.CompositeAlphaFlagBits
	PresentMode    vk.PresentMode
	QueueFamilies  []uint32
	Old            Swapchain
}

// Instance is the connection to the driver and the physical adapters it
// exposes.
type Instance interface {
	Adapters() ([]Adapter, error)
	AdapterInfo(a Adapter) AdapterInfo
	DeviceExtensions(a Adapter) ([]string, error)
	QueueFamilies(a Adapter) []vk.QueueFamilyProperties
	MemoryProperties(a Adapter) vk.PhysicalDeviceMemoryProperties
	FormatProperties(a Adapter, format vk.Format) vk.FormatProperties

	SurfaceSupport(a Adapter, family uint32, s Surface) (bool, error)
	SurfaceCapabilities(a Adapter, s Surface) (vk.SurfaceCapabilities, error)
	SurfaceFormats(a Adapter, s Surface) ([]vk.SurfaceFormat, error)
	PresentModes(a Adapter, s Surface) ([]vk.PresentMode, error)

	CreateDevice(a Adapter, desc DeviceDesc) (Device, error)
	DestroySurface(s Surface)
	Destroy()
}

// Device is a logical device. Methods that record into a command buffer are
// prefixed with Cmd.
type Device interface {
	Queue(family uint32) Queue
	WaitIdle() error
	QueueWaitIdle(q Queue) error

	CreateBuffer(size vk.DeviceSize, usage vk.BufferUsageFlags) (Buffer, error)
	BufferRequirements(b Buffer) vk.MemoryRequirements
	BindBufferMemory(b Buffer, m Memory) error
	DestroyBuffer(b Buffer)

	CreateImage(desc ImageDesc) (Image, error)
	ImageRequirements(img Image) vk.MemoryRequirements
	BindImageMemory(img Image, m Memory) error
	DestroyImage(img Image)

	AllocateMemory(size vk.DeviceSize, typeIndex uint32) (Memory, error)
	MapMemory(m Memory, size vk.DeviceSize) ([]byte, error)
	UnmapMemory(m Memory)
	FreeMemory(m Memory)

	CreateImageView(img Image, format vk.Format, aspect vk.ImageAspectFlags) (ImageView, error)
	DestroyImageView(v ImageView)
	CreateSampler(info vk.SamplerCreateInfo) (Sampler, error)
	DestroySampler(s Sampler)

	CreateShaderModule(code []byte) (ShaderModule, error)
	DestroyShaderModule(m ShaderModule)
	CreateRenderPass(info vk.RenderPassCreateInfo) (RenderPass, error)
	DestroyRenderPass(rp RenderPass)
	CreateFramebuffer(desc FramebufferDesc) (Framebuffer, error)
	DestroyFramebuffer(fb Framebuffer)

	CreateDescriptorSetLayout(bindings []vk.DescriptorSetLayoutBinding) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(l DescriptorSetLayout)
	CreateDescriptorPool(maxSets uint32, sizes []vk.DescriptorPoolSize) (DescriptorPool, error)
	DestroyDescriptorPool(p DescriptorPool)
	AllocateDescriptorSet(p DescriptorPool, l DescriptorSetLayout) (DescriptorSet, error)
	UpdateDescriptorSet(set DescriptorSet, writes []DescriptorWrite)

	CreatePipelineLayout(sets []DescriptorSetLayout) (PipelineLayout, error)
	DestroyPipelineLayout(l PipelineLayout)
	CreateGraphicsPipeline(desc GraphicsPipelineDesc) (Pipeline, error)
	DestroyPipeline(p Pipeline)

	CreateCommandPool(family uint32, flags vk.CommandPoolCreateFlags) (CommandPool, error)
	DestroyCommandPool(p CommandPool)
	AllocateCommandBuffers(p CommandPool, count uint32) ([]CommandBuffer, error)
	FreeCommandBuffers(p CommandPool, cbs []CommandBuffer)
	BeginCommandBuffer(cb CommandBuffer, usage vk.CommandBufferUsageFlags) error
	EndCommandBuffer(cb CommandBuffer) error

	CmdPipelineBarrier(cb CommandBuffer, src, dst vk.PipelineStageFlags, b ImageBarrier)
	CmdCopyBuffer(cb CommandBuffer, src, dst Buffer, size vk.DeviceSize)
	CmdCopyBufferToImage(cb CommandBuffer, src Buffer, dst Image, width, height uint32)
	CmdBeginRenderPass(cb CommandBuffer, begin RenderPassBegin)
	CmdEndRenderPass(cb CommandBuffer)
	CmdBindPipeline(cb CommandBuffer, p Pipeline)
	CmdBindVertexBuffer(cb CommandBuffer, b Buffer)
	CmdBindIndexBuffer(cb CommandBuffer, b Buffer, indexType vk.IndexType)
	CmdBindDescriptorSet(cb CommandBuffer, layout PipelineLayout, set DescriptorSet)
	CmdDrawIndexed(cb CommandBuffer, indexCount uint32)

	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)
	QueueSubmit(q Queue, submit SubmitDesc) error

	CreateSwapchain(desc SwapchainDesc) (Swapchain, error)
	SwapchainImages(sc Swapchain) ([]Image, error)
	DestroySwapchain(sc Swapchain)
	// AcquireNextImage and QueuePresent return the raw result so callers can
	// react to out-of-date and suboptimal swapchains.
	AcquireNextImage(sc Swapchain, signal Semaphore) (uint32, vk.Result)
	QueuePresent(q Queue, sc Swapchain, index uint32, wait Semaphore) vk.Result

	Destroy()
}
