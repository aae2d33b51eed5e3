package vulkan

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/S96/ForgeVk/hal"
)

func (d *Device) CreateCommandPool(family uint32, flags vk.CommandPoolCreateFlags) (hal.CommandPool, error) {
	var pool vk.CommandPool
	ret := vk.CreateCommandPool(d.handle, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: family,
		Flags:            flags,
	}, nil, &pool)
	if isError(ret) {
		return 0, newError("vkCreateCommandPool", ret)
	}
	return d.cmdPools.put(pool), nil
}

// DestroyCommandPool destroys a pool together with the command buffers
// still allocated from it.
func (d *Device) DestroyCommandPool(p hal.CommandPool) {
	pool, ok := d.cmdPools.take(p)
	if !ok {
		return
	}
	for cb, owner := range d.cbPool {
		if owner == p {
			d.cmdBuffers.take(cb)
			delete(d.cbPool, cb)
		}
	}
	vk.DestroyCommandPool(d.handle, pool, nil)
}

func (d *Device) AllocateCommandBuffers(p hal.CommandPool, count uint32) ([]hal.CommandBuffer, error) {
	buffers := make([]vk.CommandBuffer, count)
	ret := vk.AllocateCommandBuffers(d.handle, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.cmdPools.get(p),
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	}, buffers)
	if isError(ret) {
		return nil, newError("vkAllocateCommandBuffers", ret)
	}
	out := make([]hal.CommandBuffer, count)
	for i, cb := range buffers {
		out[i] = d.cmdBuffers.put(cb)
		d.cbPool[out[i]] = p
	}
	return out, nil
}

func (d *Device) FreeCommandBuffers(p hal.CommandPool, cbs []hal.CommandBuffer) {
	buffers := make([]vk.CommandBuffer, 0, len(cbs))
	for _, h := range cbs {
		if cb, ok := d.cmdBuffers.take(h); ok {
			buffers = append(buffers, cb)
			delete(d.cbPool, h)
		}
	}
	if len(buffers) == 0 {
		return
	}
	vk.FreeCommandBuffers(d.handle, d.cmdPools.get(p), uint32(len(buffers)), buffers)
}

func (d *Device) BeginCommandBuffer(cb hal.CommandBuffer, usage vk.CommandBufferUsageFlags) error {
	ret := vk.BeginCommandBuffer(d.cmdBuffers.get(cb), &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: usage,
	})
	return newError("vkBeginCommandBuffer", ret)
}

func (d *Device) EndCommandBuffer(cb hal.CommandBuffer) error {
	return newError("vkEndCommandBuffer", vk.EndCommandBuffer(d.cmdBuffers.get(cb)))
}

func (d *Device) CmdPipelineBarrier(cb hal.CommandBuffer, src, dst vk.PipelineStageFlags, b hal.ImageBarrier) {
	vk.CmdPipelineBarrier(d.cmdBuffers.get(cb), src, dst, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       b.SrcAccess,
		DstAccessMask:       b.DstAccess,
		OldLayout:           b.OldLayout,
		NewLayout:           b.NewLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               d.images.get(b.Image),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: b.Aspect,
			LevelCount: 1,
			LayerCount: 1,
		},
	}})
}

func (d *Device) CmdCopyBuffer(cb hal.CommandBuffer, src, dst hal.Buffer, size vk.DeviceSize) {
	vk.CmdCopyBuffer(d.cmdBuffers.get(cb), d.buffers.get(src), d.buffers.get(dst), 1,
		[]vk.BufferCopy{{Size: size}})
}

func (d *Device) CmdCopyBufferToImage(cb hal.CommandBuffer, src hal.Buffer, dst hal.Image, width, height uint32) {
	vk.CmdCopyBufferToImage(d.cmdBuffers.get(cb), d.buffers.get(src), d.images.get(dst),
		vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{{
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LayerCount: 1,
			},
			ImageExtent: vk.Extent3D{Width: width, Height: height, Depth: 1},
		}})
}

func (d *Device) CmdBeginRenderPass(cb hal.CommandBuffer, begin hal.RenderPassBegin) {
	vk.CmdBeginRenderPass(d.cmdBuffers.get(cb), &vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      d.renderPass.get(begin.RenderPass),
		Framebuffer:     d.framebuffer.get(begin.Framebuffer),
		RenderArea:      vk.Rect2D{Extent: begin.Extent},
		ClearValueCount: uint32(len(begin.ClearValues)),
		PClearValues:    begin.ClearValues,
	}, vk.SubpassContentsInline)
}

func (d *Device) CmdEndRenderPass(cb hal.CommandBuffer) {
	vk.CmdEndRenderPass(d.cmdBuffers.get(cb))
}

func (d *Device) CmdBindPipeline(cb hal.CommandBuffer, p hal.Pipeline) {
	vk.CmdBindPipeline(d.cmdBuffers.get(cb), vk.PipelineBindPointGraphics, d.pipelines.get(p))
}

func (d *Device) CmdBindVertexBuffer(cb hal.CommandBuffer, b hal.Buffer) {
	vk.CmdBindVertexBuffers(d.cmdBuffers.get(cb), 0, 1,
		[]vk.Buffer{d.buffers.get(b)}, []vk.DeviceSize{0})
}

func (d *Device) CmdBindIndexBuffer(cb hal.CommandBuffer, b hal.Buffer, indexType vk.IndexType) {
	vk.CmdBindIndexBuffer(d.cmdBuffers.get(cb), d.buffers.get(b), 0, indexType)
}

func (d *Device) CmdBindDescriptorSet(cb hal.CommandBuffer, layout hal.PipelineLayout, set hal.DescriptorSet) {
	vk.CmdBindDescriptorSets(d.cmdBuffers.get(cb), vk.PipelineBindPointGraphics,
		d.pipeLayouts.get(layout), 0, 1, []vk.DescriptorSet{d.sets.get(set)}, 0, nil)
}

func (d *Device) CmdDrawIndexed(cb hal.CommandBuffer, indexCount uint32) {
	vk.CmdDrawIndexed(d.cmdBuffers.get(cb), indexCount, 1, 0, 0, 0)
}

// QueueSubmit submits one command buffer. Wait and Signal are optional.
func (d *Device) QueueSubmit(q hal.Queue, submit hal.SubmitDesc) error {
	info := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{d.cmdBuffers.get(submit.CommandBuffer)},
	}
	if submit.Wait != 0 {
		info.WaitSemaphoreCount = 1
		info.PWaitSemaphores = []vk.Semaphore{d.semaphores.get(submit.Wait)}
		info.PWaitDstStageMask = []vk.PipelineStageFlags{submit.WaitStage}
	}
	if submit.Signal != 0 {
		info.SignalSemaphoreCount = 1
		info.PSignalSemaphores = []vk.Semaphore{d.semaphores.get(submit.Signal)}
	}
	ret := vk.QueueSubmit(d.queue(q), 1, []vk.SubmitInfo{info}, vk.NullFence)
	return newError("vkQueueSubmit", ret)
}
