// Package haltest provides an in-memory hal implementation for tests. It
// hands out handles, counts live objects per kind and records the commands
// and submissions it receives.
package haltest

import (
	"fmt"
	"math"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/S96/ForgeVk/hal"
)

// Object kinds reported by Live.
const (
	KindBuffer              = "buffer"
	KindImage               = "image"
	KindMemory              = "memory"
	KindImageView           = "image-view"
	KindSampler             = "sampler"
	KindShaderModule        = "shader-module"
	KindRenderPass          = "render-pass"
	KindFramebuffer         = "framebuffer"
	KindDescriptorSetLayout = "descriptor-set-layout"
	KindDescriptorPool      = "descriptor-pool"
	KindPipelineLayout      = "pipeline-layout"
	KindPipeline            = "pipeline"
	KindCommandPool         = "command-pool"
	KindCommandBuffer       = "command-buffer"
	KindSemaphore           = "semaphore"
	KindSwapchain           = "swapchain"
)

// Adapter is the configuration of one fake physical device.
type Adapter struct {
	Info          hal.AdapterInfo
	Extensions    []string
	Families      []vk.QueueFamilyProperties
	PresentFamily map[uint32]bool
	Capabilities  vk.SurfaceCapabilities
	Formats       []vk.SurfaceFormat
	PresentModes  []vk.PresentMode
	Memory        vk.PhysicalDeviceMemoryProperties
	// OptimalFeatures lists optimal-tiling features per format.
	OptimalFeatures map[vk.Format]vk.FormatFeatureFlags
}

// DefaultAdapter returns a discrete adapter with a single graphics+present
// queue family, a 2-image minimum and a fixed 100x100 surface.
func DefaultAdapter() *Adapter {
	return &Adapter{
		Info: hal.AdapterInfo{
			Name:                 "haltest",
			Type:                 vk.PhysicalDeviceTypeDiscreteGpu,
			SamplerAnisotropy:    true,
			MaxSamplerAnisotropy: 16,
		},
		Extensions: []string{"VK_KHR_swapchain"},
		Families: []vk.QueueFamilyProperties{
			{QueueFlags: vk.QueueFlags(vk.QueueGraphicsBit | vk.QueueTransferBit), QueueCount: 1},
		},
		PresentFamily: map[uint32]bool{0: true},
		Capabilities: vk.SurfaceCapabilities{
			MinImageCount:           2,
			MaxImageCount:           8,
			CurrentExtent:           vk.Extent2D{Width: 100, Height: 100},
			MinImageExtent:          vk.Extent2D{Width: 1, Height: 1},
			MaxImageExtent:          vk.Extent2D{Width: 4096, Height: 4096},
			CurrentTransform:        vk.SurfaceTransformIdentityBit,
			SupportedCompositeAlpha: vk.CompositeAlphaFlags(vk.CompositeAlphaOpaqueBit),
		},
		Formats: []vk.SurfaceFormat{
			{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
		},
		PresentModes: []vk.PresentMode{vk.PresentModeFifo},
		Memory: MemoryTypes(
			vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
			vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit),
		),
		OptimalFeatures: map[vk.Format]vk.FormatFeatureFlags{
			vk.FormatD32Sfloat: vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit),
		},
	}
}

// MemoryTypes builds a memory property table with one heap and the given
// memory types in order.
func MemoryTypes(flags ...vk.MemoryPropertyFlags) vk.PhysicalDeviceMemoryProperties {
	var props vk.PhysicalDeviceMemoryProperties
	props.MemoryHeapCount = 1
	props.MemoryHeaps[0] = vk.MemoryHeap{Size: 1 << 30}
	props.MemoryTypeCount = uint32(len(flags))
	for i, f := range flags {
		props.MemoryTypes[i] = vk.MemoryType{PropertyFlags: f, HeapIndex: 0}
	}
	return props
}

// Instance is a fake hal.Instance over a fixed adapter list.
type Instance struct {
	AdapterList []*Adapter
	// AdaptersErr is returned from Adapters when set.
	AdaptersErr error
	// CreateDeviceResult makes CreateDevice fail when not vk.Success.
	CreateDeviceResult vk.Result
	// DeviceFail seeds Device.Fail of devices created by CreateDevice.
	DeviceFail map[string]vk.Result

	Device    *Device
	Destroyed bool
	surfaces  map[hal.Surface]bool
	next      uint64
}

// NewInstance returns an instance exposing the given adapters.
func NewInstance(adapters ...*Adapter) *Instance {
	return &Instance{
		AdapterList: adapters,
		surfaces:    make(map[hal.Surface]bool),
	}
}

// NewSurface registers a live surface.
func (i *Instance) NewSurface() hal.Surface {
	i.next++
	s := hal.Surface(i.next)
	i.surfaces[s] = true
	return s
}

// LiveSurfaces reports the number of surfaces not yet destroyed.
func (i *Instance) LiveSurfaces() int {
	return len(i.surfaces)
}

func (i *Instance) adapter(a hal.Adapter) *Adapter {
	idx := int(a) - 1
	if idx < 0 || idx >= len(i.AdapterList) {
		panic(fmt.Sprintf("haltest: unknown adapter %d", a))
	}
	return i.AdapterList[idx]
}

func (i *Instance) Adapters() ([]hal.Adapter, error) {
	if i.AdaptersErr != nil {
		return nil, i.AdaptersErr
	}
	out := make([]hal.Adapter, len(i.AdapterList))
	for n := range i.AdapterList {
		out[n] = hal.Adapter(n + 1)
	}
	return out, nil
}

func (i *Instance) AdapterInfo(a hal.Adapter) hal.AdapterInfo {
	return i.adapter(a).Info
}

func (i *Instance) DeviceExtensions(a hal.Adapter) ([]string, error) {
	return i.adapter(a).Extensions, nil
}

func (i *Instance) QueueFamilies(a hal.Adapter) []vk.QueueFamilyProperties {
	return i.adapter(a).Families
}

func (i *Instance) MemoryProperties(a hal.Adapter) vk.PhysicalDeviceMemoryProperties {
	return i.adapter(a).Memory
}

func (i *Instance) FormatProperties(a hal.Adapter, format vk.Format) vk.FormatProperties {
	return vk.FormatProperties{OptimalTilingFeatures: i.adapter(a).OptimalFeatures[format]}
}

func (i *Instance) SurfaceSupport(a hal.Adapter, family uint32, s hal.Surface) (bool, error) {
	return i.adapter(a).PresentFamily[family], nil
}

func (i *Instance) SurfaceCapabilities(a hal.Adapter, s hal.Surface) (vk.SurfaceCapabilities, error) {
	return i.adapter(a).Capabilities, nil
}

func (i *Instance) SurfaceFormats(a hal.Adapter, s hal.Surface) ([]vk.SurfaceFormat, error) {
	return i.adapter(a).Formats, nil
}

func (i *Instance) PresentModes(a hal.Adapter, s hal.Surface) ([]vk.PresentMode, error) {
	return i.adapter(a).PresentModes, nil
}

func (i *Instance) CreateDevice(a hal.Adapter, desc hal.DeviceDesc) (hal.Device, error) {
	if i.CreateDeviceResult != vk.Success {
		return nil, &hal.ResultError{Op: "vkCreateDevice", Result: i.CreateDeviceResult}
	}
	i.Device = NewDevice(i.adapter(a))
	i.Device.Desc = desc
	for op, r := range i.DeviceFail {
		i.Device.Fail[op] = r
	}
	return i.Device, nil
}

func (i *Instance) DestroySurface(s hal.Surface) {
	delete(i.surfaces, s)
}

func (i *Instance) Destroy() {
	i.Destroyed = true
}

// Barrier is a recorded pipeline barrier.
type Barrier struct {
	Src, Dst vk.PipelineStageFlags
	hal.ImageBarrier
}

// Device is a fake hal.Device.
type Device struct {
	Adapter *Adapter
	Desc    hal.DeviceDesc

	// Fail maps an operation name such as "AllocateMemory" to the result it
	// should fail with.
	Fail map[string]vk.Result
	// AcquireResults and PresentResults are consumed one per call; an empty
	// queue yields vk.Success.
	AcquireResults []vk.Result
	PresentResults []vk.Result

	Barriers      []Barrier
	Submits       []hal.SubmitDesc
	Presents      []uint32
	WaitIdleCalls int
	Commands      map[hal.CommandBuffer][]string
	RenderPasses  map[hal.RenderPass]vk.RenderPassCreateInfo
	Pipelines     map[hal.Pipeline]hal.GraphicsPipelineDesc
	Swapchains    map[hal.Swapchain]hal.SwapchainDesc
	Samplers      map[hal.Sampler]vk.SamplerCreateInfo
	Descriptors   map[hal.DescriptorSet][]hal.DescriptorWrite
	Destroyed     bool
	// Misuse collects double frees and operations on unknown handles.
	Misuse []string

	next      uint64
	live      map[uint64]string
	memory    map[hal.Memory][]byte
	mapped    map[hal.Memory]bool
	bound     map[uint64]hal.Memory
	sizes     map[uint64]vk.DeviceSize
	scImages  map[hal.Swapchain][]hal.Image
	nextImage map[hal.Swapchain]uint32
	recording map[hal.CommandBuffer]bool
	cbPool    map[hal.CommandBuffer]hal.CommandPool
}

// NewDevice returns a fake device for the adapter.
func NewDevice(a *Adapter) *Device {
	return &Device{
		Adapter:      a,
		Fail:         make(map[string]vk.Result),
		Commands:     make(map[hal.CommandBuffer][]string),
		RenderPasses: make(map[hal.RenderPass]vk.RenderPassCreateInfo),
		Pipelines:    make(map[hal.Pipeline]hal.GraphicsPipelineDesc),
		Swapchains:   make(map[hal.Swapchain]hal.SwapchainDesc),
		Samplers:     make(map[hal.Sampler]vk.SamplerCreateInfo),
		Descriptors:  make(map[hal.DescriptorSet][]hal.DescriptorWrite),
		live:         make(map[uint64]string),
		memory:       make(map[hal.Memory][]byte),
		mapped:       make(map[hal.Memory]bool),
		bound:        make(map[uint64]hal.Memory),
		sizes:        make(map[uint64]vk.DeviceSize),
		scImages:     make(map[hal.Swapchain][]hal.Image),
		nextImage:    make(map[hal.Swapchain]uint32),
		recording:    make(map[hal.CommandBuffer]bool),
		cbPool:       make(map[hal.CommandBuffer]hal.CommandPool),
	}
}

// Live reports the number of live objects of a kind.
func (d *Device) Live(kind string) int {
	n := 0
	for _, k := range d.live {
		if k == kind {
			n++
		}
	}
	return n
}

// LiveTotal reports the number of live objects of every kind.
func (d *Device) LiveTotal() int {
	return len(d.live)
}

// IsLive reports whether a handle is live.
func (d *Device) IsLive(h uint64) bool {
	_, ok := d.live[h]
	return ok
}

// BoundMemory returns the memory bound to a buffer or image handle.
func (d *Device) BoundMemory(h uint64) hal.Memory {
	return d.bound[h]
}

// MemoryContents returns the backing bytes of an allocation.
func (d *Device) MemoryContents(m hal.Memory) []byte {
	return d.memory[m]
}

// Images returns the images of a swapchain.
func (d *Device) Images(sc hal.Swapchain) []hal.Image {
	return d.scImages[sc]
}

func (d *Device) fail(op string) error {
	if r, ok := d.Fail[op]; ok && r != vk.Success {
		return errors.WithStack(&hal.ResultError{Op: op, Result: r})
	}
	return nil
}

func (d *Device) alloc(kind string) uint64 {
	d.next++
	d.live[d.next] = kind
	return d.next
}

func (d *Device) release(kind string, h uint64) {
	if h == 0 {
		return
	}
	k, ok := d.live[h]
	if !ok || k != kind {
		d.Misuse = append(d.Misuse, fmt.Sprintf("destroy %s %d: not live", kind, h))
		return
	}
	delete(d.live, h)
}

func (d *Device) check(kind string, h uint64, op string) {
	if k, ok := d.live[h]; !ok || k != kind {
		d.Misuse = append(d.Misuse, fmt.Sprintf("%s: %s %d not live", op, kind, h))
	}
}

func (d *Device) record(cb hal.CommandBuffer, format string, args ...interface{}) {
	if !d.recording[cb] {
		d.Misuse = append(d.Misuse, fmt.Sprintf("command buffer %d not recording", cb))
	}
	d.Commands[cb] = append(d.Commands[cb], fmt.Sprintf(format, args...))
}

func (d *Device) Queue(family uint32) hal.Queue {
	return hal.Queue(family + 1)
}

func (d *Device) WaitIdle() error {
	d.WaitIdleCalls++
	return d.fail("WaitIdle")
}

func (d *Device) QueueWaitIdle(q hal.Queue) error {
	return d.fail("QueueWaitIdle")
}

func (d *Device) CreateBuffer(size vk.DeviceSize, usage vk.BufferUsageFlags) (hal.Buffer, error) {
	if err := d.fail("CreateBuffer"); err != nil {
		return 0, err
	}
	b := d.alloc(KindBuffer)
	d.sizes[b] = size
	return hal.Buffer(b), nil
}

func (d *Device) BufferRequirements(b hal.Buffer) vk.MemoryRequirements {
	return vk.MemoryRequirements{Size: align(d.sizes[uint64(b)], 16), Alignment: 16, MemoryTypeBits: math.MaxUint32}
}

func (d *Device) BindBufferMemory(b hal.Buffer, m hal.Memory) error {
	if err := d.fail("BindBufferMemory"); err != nil {
		return err
	}
	d.check(KindBuffer, uint64(b), "BindBufferMemory")
	d.bound[uint64(b)] = m
	return nil
}

func (d *Device) DestroyBuffer(b hal.Buffer) {
	d.release(KindBuffer, uint64(b))
	delete(d.bound, uint64(b))
	delete(d.sizes, uint64(b))
}

func (d *Device) CreateImage(desc hal.ImageDesc) (hal.Image, error) {
	if err := d.fail("CreateImage"); err != nil {
		return 0, err
	}
	img := d.alloc(KindImage)
	d.sizes[img] = vk.DeviceSize(desc.Width) * vk.DeviceSize(desc.Height) * 4
	return hal.Image(img), nil
}

func (d *Device) ImageRequirements(img hal.Image) vk.MemoryRequirements {
	return vk.MemoryRequirements{Size: align(d.sizes[uint64(img)], 256), Alignment: 256, MemoryTypeBits: math.MaxUint32}
}

func (d *Device) BindImageMemory(img hal.Image, m hal.Memory) error {
	if err := d.fail("BindImageMemory"); err != nil {
		return err
	}
	d.check(KindImage, uint64(img), "BindImageMemory")
	d.bound[uint64(img)] = m
	return nil
}

func (d *Device) DestroyImage(img hal.Image) {
	d.release(KindImage, uint64(img))
	delete(d.bound, uint64(img))
	delete(d.sizes, uint64(img))
}

func (d *Device) AllocateMemory(size vk.DeviceSize, typeIndex uint32) (hal.Memory, error) {
	if err := d.fail("AllocateMemory"); err != nil {
		return 0, err
	}
	if typeIndex >= d.Adapter.Memory.MemoryTypeCount {
		d.Misuse = append(d.Misuse, fmt.Sprintf("AllocateMemory: type index %d out of range", typeIndex))
	}
	m := hal.Memory(d.alloc(KindMemory))
	d.memory[m] = make([]byte, size)
	return m, nil
}

func (d *Device) MapMemory(m hal.Memory, size vk.DeviceSize) ([]byte, error) {
	if err := d.fail("MapMemory"); err != nil {
		return nil, err
	}
	d.check(KindMemory, uint64(m), "MapMemory")
	if d.mapped[m] {
		d.Misuse = append(d.Misuse, fmt.Sprintf("MapMemory: memory %d already mapped", m))
	}
	d.mapped[m] = true
	buf := d.memory[m]
	if vk.DeviceSize(len(buf)) < size {
		d.Misuse = append(d.Misuse, fmt.Sprintf("MapMemory: size %d exceeds allocation", size))
		return buf, nil
	}
	return buf[:size], nil
}

func (d *Device) UnmapMemory(m hal.Memory) {
	delete(d.mapped, m)
}

func (d *Device) FreeMemory(m hal.Memory) {
	d.release(KindMemory, uint64(m))
	delete(d.memory, m)
	delete(d.mapped, m)
}

// Mapped reports whether an allocation is currently mapped.
func (d *Device) Mapped(m hal.Memory) bool {
	return d.mapped[m]
}

func (d *Device) CreateImageView(img hal.Image, format vk.Format, aspect vk.ImageAspectFlags) (hal.ImageView, error) {
	if err := d.fail("CreateImageView"); err != nil {
		return 0, err
	}
	return hal.ImageView(d.alloc(KindImageView)), nil
}

func (d *Device) DestroyImageView(v hal.ImageView) {
	d.release(KindImageView, uint64(v))
}

func (d *Device) CreateSampler(info vk.SamplerCreateInfo) (hal.Sampler, error) {
	if err := d.fail("CreateSampler"); err != nil {
		return 0, err
	}
	s := hal.Sampler(d.alloc(KindSampler))
	d.Samplers[s] = info
	return s, nil
}

func (d *Device) DestroySampler(s hal.Sampler) {
	d.release(KindSampler, uint64(s))
}

func (d *Device) CreateShaderModule(code []byte) (hal.ShaderModule, error) {
	if err := d.fail("CreateShaderModule"); err != nil {
		return 0, err
	}
	return hal.ShaderModule(d.alloc(KindShaderModule)), nil
}

func (d *Device) DestroyShaderModule(m hal.ShaderModule) {
	d.release(KindShaderModule, uint64(m))
}

func (d *Device) CreateRenderPass(info vk.RenderPassCreateInfo) (hal.RenderPass, error) {
	if err := d.fail("CreateRenderPass"); err != nil {
		return 0, err
	}
	rp := hal.RenderPass(d.alloc(KindRenderPass))
	d.RenderPasses[rp] = info
	return rp, nil
}

func (d *Device) DestroyRenderPass(rp hal.RenderPass) {
	d.release(KindRenderPass, uint64(rp))
}

func (d *Device) CreateFramebuffer(desc hal.FramebufferDesc) (hal.Framebuffer, error) {
	if err := d.fail("CreateFramebuffer"); err != nil {
		return 0, err
	}
	d.check(KindRenderPass, uint64(desc.RenderPass), "CreateFramebuffer")
	for _, v := range desc.Attachments {
		d.check(KindImageView, uint64(v), "CreateFramebuffer")
	}
	return hal.Framebuffer(d.alloc(KindFramebuffer)), nil
}

func (d *Device) DestroyFramebuffer(fb hal.Framebuffer) {
	d.release(KindFramebuffer, uint64(fb))
}

func (d *Device) CreateDescriptorSetLayout(bindings []vk.DescriptorSetLayoutBinding) (hal.DescriptorSetLayout, error) {
	if err := d.fail("CreateDescriptorSetLayout"); err != nil {
		return 0, err
	}
	return hal.DescriptorSetLayout(d.alloc(KindDescriptorSetLayout)), nil
}

func (d *Device) DestroyDescriptorSetLayout(l hal.DescriptorSetLayout) {
	d.release(KindDescriptorSetLayout, uint64(l))
}

func (d *Device) CreateDescriptorPool(maxSets uint32, sizes []vk.DescriptorPoolSize) (hal.DescriptorPool, error) {
	if err := d.fail("CreateDescriptorPool"); err != nil {
		return 0, err
	}
	return hal.DescriptorPool(d.alloc(KindDescriptorPool)), nil
}

func (d *Device) DestroyDescriptorPool(p hal.DescriptorPool) {
	d.release(KindDescriptorPool, uint64(p))
}

func (d *Device) AllocateDescriptorSet(p hal.DescriptorPool, l hal.DescriptorSetLayout) (hal.DescriptorSet, error) {
	if err := d.fail("AllocateDescriptorSet"); err != nil {
		return 0, err
	}
	d.check(KindDescriptorPool, uint64(p), "AllocateDescriptorSet")
	d.next++
	return hal.DescriptorSet(d.next), nil
}

func (d *Device) UpdateDescriptorSet(set hal.DescriptorSet, writes []hal.DescriptorWrite) {
	d.Descriptors[set] = append([]hal.DescriptorWrite(nil), writes...)
}

func (d *Device) CreatePipelineLayout(sets []hal.DescriptorSetLayout) (hal.PipelineLayout, error) {
	if err := d.fail("CreatePipelineLayout"); err != nil {
		return 0, err
	}
	return hal.PipelineLayout(d.alloc(KindPipelineLayout)), nil
}

func (d *Device) DestroyPipelineLayout(l hal.PipelineLayout) {
	d.release(KindPipelineLayout, uint64(l))
}

func (d *Device) CreateGraphicsPipeline(desc hal.GraphicsPipelineDesc) (hal.Pipeline, error) {
	if err := d.fail("CreateGraphicsPipeline"); err != nil {
		return 0, err
	}
	d.check(KindShaderModule, uint64(desc.VertexShader), "CreateGraphicsPipeline")
	d.check(KindShaderModule, uint64(desc.FragmentShader), "CreateGraphicsPipeline")
	d.check(KindRenderPass, uint64(desc.RenderPass), "CreateGraphicsPipeline")
	p := hal.Pipeline(d.alloc(KindPipeline))
	d.Pipelines[p] = desc
	return p, nil
}

func (d *Device) DestroyPipeline(p hal.Pipeline) {
	d.release(KindPipeline, uint64(p))
}

func (d *Device) CreateCommandPool(family uint32, flags vk.CommandPoolCreateFlags) (hal.CommandPool, error) {
	if err := d.fail("CreateCommandPool"); err != nil {
		return 0, err
	}
	return hal.CommandPool(d.alloc(KindCommandPool)), nil
}

func (d *Device) DestroyCommandPool(p hal.CommandPool) {
	// Buffers still allocated from the pool are freed with it.
	for cb, pool := range d.cbPool {
		if pool == p {
			d.release(KindCommandBuffer, uint64(cb))
			delete(d.cbPool, cb)
		}
	}
	d.release(KindCommandPool, uint64(p))
}

func (d *Device) AllocateCommandBuffers(p hal.CommandPool, count uint32) ([]hal.CommandBuffer, error) {
	if err := d.fail("AllocateCommandBuffers"); err != nil {
		return nil, err
	}
	d.check(KindCommandPool, uint64(p), "AllocateCommandBuffers")
	out := make([]hal.CommandBuffer, count)
	for i := range out {
		out[i] = hal.CommandBuffer(d.alloc(KindCommandBuffer))
		d.cbPool[out[i]] = p
	}
	return out, nil
}

func (d *Device) FreeCommandBuffers(p hal.CommandPool, cbs []hal.CommandBuffer) {
	for _, cb := range cbs {
		d.release(KindCommandBuffer, uint64(cb))
		delete(d.cbPool, cb)
		delete(d.Commands, cb)
		delete(d.recording, cb)
	}
}

func (d *Device) BeginCommandBuffer(cb hal.CommandBuffer, usage vk.CommandBufferUsageFlags) error {
	if err := d.fail("BeginCommandBuffer"); err != nil {
		return err
	}
	d.check(KindCommandBuffer, uint64(cb), "BeginCommandBuffer")
	d.recording[cb] = true
	d.Commands[cb] = nil
	return nil
}

func (d *Device) EndCommandBuffer(cb hal.CommandBuffer) error {
	if err := d.fail("EndCommandBuffer"); err != nil {
		return err
	}
	if !d.recording[cb] {
		d.Misuse = append(d.Misuse, fmt.Sprintf("EndCommandBuffer: %d not recording", cb))
	}
	d.recording[cb] = false
	return nil
}

func (d *Device) CmdPipelineBarrier(cb hal.CommandBuffer, src, dst vk.PipelineStageFlags, b hal.ImageBarrier) {
	d.record(cb, "barrier %d->%d", b.OldLayout, b.NewLayout)
	d.Barriers = append(d.Barriers, Barrier{Src: src, Dst: dst, ImageBarrier: b})
}

func (d *Device) CmdCopyBuffer(cb hal.CommandBuffer, src, dst hal.Buffer, size vk.DeviceSize) {
	d.record(cb, "copy-buffer %d->%d size=%d", src, dst, size)
	// Copies are applied immediately; the one-shot path waits for idle.
	from, to := d.memory[d.bound[uint64(src)]], d.memory[d.bound[uint64(dst)]]
	copy(to, from[:min(int(size), len(from))])
}

func (d *Device) CmdCopyBufferToImage(cb hal.CommandBuffer, src hal.Buffer, dst hal.Image, width, height uint32) {
	d.record(cb, "copy-buffer-to-image %d->%d %dx%d", src, dst, width, height)
}

func (d *Device) CmdBeginRenderPass(cb hal.CommandBuffer, begin hal.RenderPassBegin) {
	d.check(KindFramebuffer, uint64(begin.Framebuffer), "CmdBeginRenderPass")
	d.record(cb, "begin-render-pass fb=%d clears=%d", begin.Framebuffer, len(begin.ClearValues))
}

func (d *Device) CmdEndRenderPass(cb hal.CommandBuffer) {
	d.record(cb, "end-render-pass")
}

func (d *Device) CmdBindPipeline(cb hal.CommandBuffer, p hal.Pipeline) {
	d.record(cb, "bind-pipeline %d", p)
}

func (d *Device) CmdBindVertexBuffer(cb hal.CommandBuffer, b hal.Buffer) {
	d.record(cb, "bind-vertex-buffer %d", b)
}

func (d *Device) CmdBindIndexBuffer(cb hal.CommandBuffer, b hal.Buffer, indexType vk.IndexType) {
	d.record(cb, "bind-index-buffer %d", b)
}

func (d *Device) CmdBindDescriptorSet(cb hal.CommandBuffer, layout hal.PipelineLayout, set hal.DescriptorSet) {
	d.record(cb, "bind-descriptor-set %d", set)
}

func (d *Device) CmdDrawIndexed(cb hal.CommandBuffer, indexCount uint32) {
	d.record(cb, "draw-indexed %d", indexCount)
}

func (d *Device) CreateSemaphore() (hal.Semaphore, error) {
	if err := d.fail("CreateSemaphore"); err != nil {
		return 0, err
	}
	return hal.Semaphore(d.alloc(KindSemaphore)), nil
}

func (d *Device) DestroySemaphore(s hal.Semaphore) {
	d.release(KindSemaphore, uint64(s))
}

func (d *Device) QueueSubmit(q hal.Queue, submit hal.SubmitDesc) error {
	if err := d.fail("QueueSubmit"); err != nil {
		return err
	}
	d.check(KindCommandBuffer, uint64(submit.CommandBuffer), "QueueSubmit")
	if d.recording[submit.CommandBuffer] {
		d.Misuse = append(d.Misuse, fmt.Sprintf("QueueSubmit: %d still recording", submit.CommandBuffer))
	}
	d.Submits = append(d.Submits, submit)
	return nil
}

func (d *Device) CreateSwapchain(desc hal.SwapchainDesc) (hal.Swapchain, error) {
	if err := d.fail("CreateSwapchain"); err != nil {
		return 0, err
	}
	if desc.Old != 0 {
		d.check(KindSwapchain, uint64(desc.Old), "CreateSwapchain")
	}
	sc := hal.Swapchain(d.alloc(KindSwapchain))
	d.Swapchains[sc] = desc
	images := make([]hal.Image, desc.MinImageCount)
	for i := range images {
		d.next++
		images[i] = hal.Image(d.next)
	}
	d.scImages[sc] = images
	return sc, nil
}

func (d *Device) SwapchainImages(sc hal.Swapchain) ([]hal.Image, error) {
	if err := d.fail("SwapchainImages"); err != nil {
		return nil, err
	}
	return d.scImages[sc], nil
}

func (d *Device) DestroySwapchain(sc hal.Swapchain) {
	d.release(KindSwapchain, uint64(sc))
	delete(d.scImages, sc)
}

func (d *Device) AcquireNextImage(sc hal.Swapchain, signal hal.Semaphore) (uint32, vk.Result) {
	d.check(KindSwapchain, uint64(sc), "AcquireNextImage")
	if len(d.AcquireResults) > 0 {
		r := d.AcquireResults[0]
		d.AcquireResults = d.AcquireResults[1:]
		if r != vk.Success && r != vk.Suboptimal {
			return 0, r
		}
		return d.advance(sc), r
	}
	return d.advance(sc), vk.Success
}

func (d *Device) advance(sc hal.Swapchain) uint32 {
	n := uint32(len(d.scImages[sc]))
	if n == 0 {
		return 0
	}
	idx := d.nextImage[sc] % n
	d.nextImage[sc] = idx + 1
	return idx
}

func (d *Device) QueuePresent(q hal.Queue, sc hal.Swapchain, index uint32, wait hal.Semaphore) vk.Result {
	d.check(KindSwapchain, uint64(sc), "QueuePresent")
	d.Presents = append(d.Presents, index)
	if len(d.PresentResults) > 0 {
		r := d.PresentResults[0]
		d.PresentResults = d.PresentResults[1:]
		return r
	}
	return vk.Success
}

func (d *Device) Destroy() {
	d.Destroyed = true
}

func align(size, to vk.DeviceSize) vk.DeviceSize {
	if size == 0 {
		return to
	}
	return (size + to - 1) / to * to
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
