package vulkan

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/S96/ForgeVk/hal"
)

// Device is a hal.Device backed by a vk.Device. Every object it creates is
// kept in a handle table until destroyed.
type Device struct {
	inst   *Instance
	handle vk.Device
	queues map[uint32]vk.Queue

	buffers     *table[hal.Buffer, vk.Buffer]
	images      *table[hal.Image, vk.Image]
	memory      *table[hal.Memory, vk.DeviceMemory]
	views       *table[hal.ImageView, vk.ImageView]
	samplers    *table[hal.Sampler, vk.Sampler]
	modules     *table[hal.ShaderModule, vk.ShaderModule]
	renderPass  *table[hal.RenderPass, vk.RenderPass]
	framebuffer *table[hal.Framebuffer, vk.Framebuffer]
	setLayouts  *table[hal.DescriptorSetLayout, vk.DescriptorSetLayout]
	descPools   *table[hal.DescriptorPool, vk.DescriptorPool]
	sets        *table[hal.DescriptorSet, vk.DescriptorSet]
	pipeLayouts *table[hal.PipelineLayout, vk.PipelineLayout]
	pipelines   *table[hal.Pipeline, vk.Pipeline]
	cmdPools    *table[hal.CommandPool, vk.CommandPool]
	cmdBuffers  *table[hal.CommandBuffer, vk.CommandBuffer]
	semaphores  *table[hal.Semaphore, vk.Semaphore]
	swapchains  *table[hal.Swapchain, vk.Swapchain]

	setPool  map[hal.DescriptorSet]hal.DescriptorPool
	cbPool   map[hal.CommandBuffer]hal.CommandPool
	scImages map[hal.Swapchain][]hal.Image
}

var _ hal.Device = (*Device)(nil)

func newDevice(inst *Instance, handle vk.Device) *Device {
	return &Device{
		inst:        inst,
		handle:      handle,
		queues:      make(map[uint32]vk.Queue),
		buffers:     newTable[hal.Buffer, vk.Buffer](),
		images:      newTable[hal.Image, vk.Image](),
		memory:      newTable[hal.Memory, vk.DeviceMemory](),
		views:       newTable[hal.ImageView, vk.ImageView](),
		samplers:    newTable[hal.Sampler, vk.Sampler](),
		modules:     newTable[hal.ShaderModule, vk.ShaderModule](),
		renderPass:  newTable[hal.RenderPass, vk.RenderPass](),
		framebuffer: newTable[hal.Framebuffer, vk.Framebuffer](),
		setLayouts:  newTable[hal.DescriptorSetLayout, vk.DescriptorSetLayout](),
		descPools:   newTable[hal.DescriptorPool, vk.DescriptorPool](),
		sets:        newTable[hal.DescriptorSet, vk.DescriptorSet](),
		pipeLayouts: newTable[hal.PipelineLayout, vk.PipelineLayout](),
		pipelines:   newTable[hal.Pipeline, vk.Pipeline](),
		cmdPools:    newTable[hal.CommandPool, vk.CommandPool](),
		cmdBuffers:  newTable[hal.CommandBuffer, vk.CommandBuffer](),
		semaphores:  newTable[hal.Semaphore, vk.Semaphore](),
		swapchains:  newTable[hal.Swapchain, vk.Swapchain](),
		setPool:     make(map[hal.DescriptorSet]hal.DescriptorPool),
		cbPool:      make(map[hal.CommandBuffer]hal.CommandPool),
		scImages:    make(map[hal.Swapchain][]hal.Image),
	}
}

// Queue returns the queue of a family the device was created with. Queue
// handles are the family index plus one.
func (d *Device) Queue(family uint32) hal.Queue {
	return hal.Queue(family + 1)
}

func (d *Device) queue(q hal.Queue) vk.Queue {
	return d.queues[uint32(q)-1]
}

func (d *Device) WaitIdle() error {
	return newError("vkDeviceWaitIdle", vk.DeviceWaitIdle(d.handle))
}

func (d *Device) QueueWaitIdle(q hal.Queue) error {
	return newError("vkQueueWaitIdle", vk.QueueWaitIdle(d.queue(q)))
}

func (d *Device) CreateBuffer(size vk.DeviceSize, usage vk.BufferUsageFlags) (hal.Buffer, error) {
	var buffer vk.Buffer
	ret := vk.CreateBuffer(d.handle, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}, nil, &buffer)
	if isError(ret) {
		return 0, newError("vkCreateBuffer", ret)
	}
	return d.buffers.put(buffer), nil
}

func (d *Device) BufferRequirements(b hal.Buffer) vk.MemoryRequirements {
	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.handle, d.buffers.get(b), &req)
	req.Deref()
	return req
}

func (d *Device) BindBufferMemory(b hal.Buffer, m hal.Memory) error {
	ret := vk.BindBufferMemory(d.handle, d.buffers.get(b), d.memory.get(m), 0)
	return newError("vkBindBufferMemory", ret)
}

func (d *Device) DestroyBuffer(b hal.Buffer) {
	if buffer, ok := d.buffers.take(b); ok {
		vk.DestroyBuffer(d.handle, buffer, nil)
	}
}

func (d *Device) CreateImage(desc hal.ImageDesc) (hal.Image, error) {
	var img vk.Image
	ret := vk.CreateImage(d.handle, &vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     vk.ImageType2d,
		Format:        desc.Format,
		Extent:        vk.Extent3D{Width: desc.Width, Height: desc.Height, Depth: 1},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        desc.Tiling,
		Usage:         desc.Usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, nil, &img)
	if isError(ret) {
		return 0, newError("vkCreateImage", ret)
	}
	return d.images.put(img), nil
}

func (d *Device) ImageRequirements(img hal.Image) vk.MemoryRequirements {
	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.handle, d.images.get(img), &req)
	req.Deref()
	return req
}

func (d *Device) BindImageMemory(img hal.Image, m hal.Memory) error {
	ret := vk.BindImageMemory(d.handle, d.images.get(img), d.memory.get(m), 0)
	return newError("vkBindImageMemory", ret)
}

func (d *Device) DestroyImage(img hal.Image) {
	if image, ok := d.images.take(img); ok {
		vk.DestroyImage(d.handle, image, nil)
	}
}

func (d *Device) AllocateMemory(size vk.DeviceSize, typeIndex uint32) (hal.Memory, error) {
	var mem vk.DeviceMemory
	ret := vk.AllocateMemory(d.handle, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  size,
		MemoryTypeIndex: typeIndex,
	}, nil, &mem)
	if isError(ret) {
		return 0, newError("vkAllocateMemory", ret)
	}
	return d.memory.put(mem), nil
}

// MapMemory maps the first size bytes of an allocation. The returned slice
// aliases device memory and is valid until UnmapMemory.
func (d *Device) MapMemory(m hal.Memory, size vk.DeviceSize) ([]byte, error) {
	var p unsafe.Pointer
	ret := vk.MapMemory(d.handle, d.memory.get(m), 0, size, 0, &p)
	if isError(ret) {
		return nil, newError("vkMapMemory", ret)
	}
	return unsafe.Slice((*byte)(p), int(size)), nil
}

func (d *Device) UnmapMemory(m hal.Memory) {
	vk.UnmapMemory(d.handle, d.memory.get(m))
}

func (d *Device) FreeMemory(m hal.Memory) {
	if mem, ok := d.memory.take(m); ok {
		vk.FreeMemory(d.handle, mem, nil)
	}
}

func (d *Device) CreateImageView(img hal.Image, format vk.Format, aspect vk.ImageAspectFlags) (hal.ImageView, error) {
	var view vk.ImageView
	ret := vk.CreateImageView(d.handle, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    d.images.get(img),
		ViewType: vk.ImageViewType2d,
		Format:   format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: 1,
			LayerCount: 1,
		},
	}, nil, &view)
	if isError(ret) {
		return 0, newError("vkCreateImageView", ret)
	}
	return d.views.put(view), nil
}

func (d *Device) DestroyImageView(v hal.ImageView) {
	if view, ok := d.views.take(v); ok {
		vk.DestroyImageView(d.handle, view, nil)
	}
}

func (d *Device) CreateSampler(info vk.SamplerCreateInfo) (hal.Sampler, error) {
	info.SType = vk.StructureTypeSamplerCreateInfo
	var s vk.Sampler
	ret := vk.CreateSampler(d.handle, &info, nil, &s)
	if isError(ret) {
		return 0, newError("vkCreateSampler", ret)
	}
	return d.samplers.put(s), nil
}

func (d *Device) DestroySampler(s hal.Sampler) {
	if sampler, ok := d.samplers.take(s); ok {
		vk.DestroySampler(d.handle, sampler, nil)
	}
}

func (d *Device) CreateDescriptorSetLayout(bindings []vk.DescriptorSetLayoutBinding) (hal.DescriptorSetLayout, error) {
	var l vk.DescriptorSetLayout
	ret := vk.CreateDescriptorSetLayout(d.handle, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}, nil, &l)
	if isError(ret) {
		return 0, newError("vkCreateDescriptorSetLayout", ret)
	}
	return d.setLayouts.put(l), nil
}

func (d *Device) DestroyDescriptorSetLayout(l hal.DescriptorSetLayout) {
	if layout, ok := d.setLayouts.take(l); ok {
		vk.DestroyDescriptorSetLayout(d.handle, layout, nil)
	}
}

func (d *Device) CreateDescriptorPool(maxSets uint32, sizes []vk.DescriptorPoolSize) (hal.DescriptorPool, error) {
	var p vk.DescriptorPool
	ret := vk.CreateDescriptorPool(d.handle, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}, nil, &p)
	if isError(ret) {
		return 0, newError("vkCreateDescriptorPool", ret)
	}
	return d.descPools.put(p), nil
}

// DestroyDescriptorPool destroys a pool and forgets the sets allocated from
// it.
func (d *Device) DestroyDescriptorPool(p hal.DescriptorPool) {
	pool, ok := d.descPools.take(p)
	if !ok {
		return
	}
	for set, owner := range d.setPool {
		if owner == p {
			d.sets.take(set)
			delete(d.setPool, set)
		}
	}
	vk.DestroyDescriptorPool(d.handle, pool, nil)
}

func (d *Device) AllocateDescriptorSet(p hal.DescriptorPool, l hal.DescriptorSetLayout) (hal.DescriptorSet, error) {
	var set vk.DescriptorSet
	ret := vk.AllocateDescriptorSets(d.handle, &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     d.descPools.get(p),
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{d.setLayouts.get(l)},
	}, &set)
	if isError(ret) {
		return 0, newError("vkAllocateDescriptorSets", ret)
	}
	h := d.sets.put(set)
	d.setPool[h] = p
	return h, nil
}

func (d *Device) UpdateDescriptorSet(set hal.DescriptorSet, writes []hal.DescriptorWrite) {
	dst := d.sets.get(set)
	out := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		ws := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          dst,
			DstBinding:      w.Binding,
			DescriptorCount: 1,
			DescriptorType:  w.Type,
		}
		switch w.Type {
		case vk.DescriptorTypeUniformBuffer:
			ws.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: d.buffers.get(w.Buffer),
				Range:  w.Range,
			}}
		default:
			ws.PImageInfo = []vk.DescriptorImageInfo{{
				Sampler:     d.samplers.get(w.Sampler),
				ImageView:   d.views.get(w.View),
				ImageLayout: w.ImageLayout,
			}}
		}
		out = append(out, ws)
	}
	vk.UpdateDescriptorSets(d.handle, uint32(len(out)), out, 0, nil)
}

func (d *Device) CreateSemaphore() (hal.Semaphore, error) {
	var s vk.Semaphore
	ret := vk.CreateSemaphore(d.handle, &vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}, nil, &s)
	if isError(ret) {
		return 0, newError("vkCreateSemaphore", ret)
	}
	return d.semaphores.put(s), nil
}

func (d *Device) DestroySemaphore(s hal.Semaphore) {
	if sem, ok := d.semaphores.take(s); ok {
		vk.DestroySemaphore(d.handle, sem, nil)
	}
}

// Destroy destroys the logical device. Objects still in the handle tables
// are reported and left to the driver.
func (d *Device) Destroy() {
	if d.handle == nil {
		return
	}
	if n := d.Leaked(); n > 0 {
		d.inst.log.Warn("device destroyed with live objects", "count", n)
	}
	vk.DestroyDevice(d.handle, nil)
	d.handle = nil
}

// Leaked reports the number of objects created and not yet destroyed.
func (d *Device) Leaked() int {
	return d.buffers.len() + d.images.len() + d.memory.len() + d.views.len() +
		d.samplers.len() + d.modules.len() + d.renderPass.len() + d.framebuffer.len() +
		d.setLayouts.len() + d.descPools.len() + d.pipeLayouts.len() + d.pipelines.len() +
		d.cmdPools.len() + d.cmdBuffers.len() + d.semaphores.len() + d.swapchains.len()
}
