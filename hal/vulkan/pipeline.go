package vulkan

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/S96/ForgeVk/hal"
)

// CreateShaderModule wraps SPIR-V bytecode. len(code) must be a multiple
// of four.
func (d *Device) CreateShaderModule(code []byte) (hal.ShaderModule, error) {
	var module vk.ShaderModule
	ret := vk.CreateShaderModule(d.handle, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    sliceUint32(code),
	}, nil, &module)
	if isError(ret) {
		return 0, newError("vkCreateShaderModule", ret)
	}
	return d.modules.put(module), nil
}

func (d *Device) DestroyShaderModule(m hal.ShaderModule) {
	if module, ok := d.modules.take(m); ok {
		vk.DestroyShaderModule(d.handle, module, nil)
	}
}

func (d *Device) CreateRenderPass(info vk.RenderPassCreateInfo) (hal.RenderPass, error) {
	info.SType = vk.StructureTypeRenderPassCreateInfo
	var rp vk.RenderPass
	ret := vk.CreateRenderPass(d.handle, &info, nil, &rp)
	if isError(ret) {
		return 0, newError("vkCreateRenderPass", ret)
	}
	return d.renderPass.put(rp), nil
}

func (d *Device) DestroyRenderPass(rp hal.RenderPass) {
	if pass, ok := d.renderPass.take(rp); ok {
		vk.DestroyRenderPass(d.handle, pass, nil)
	}
}

func (d *Device) CreateFramebuffer(desc hal.FramebufferDesc) (hal.Framebuffer, error) {
	attachments := make([]vk.ImageView, len(desc.Attachments))
	for i, v := range desc.Attachments {
		attachments[i] = d.views.get(v)
	}
	var fb vk.Framebuffer
	ret := vk.CreateFramebuffer(d.handle, &vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      d.renderPass.get(desc.RenderPass),
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           desc.Extent.Width,
		Height:          desc.Extent.Height,
		Layers:          1,
	}, nil, &fb)
	if isError(ret) {
		return 0, newError("vkCreateFramebuffer", ret)
	}
	return d.framebuffer.put(fb), nil
}

func (d *Device) DestroyFramebuffer(fb hal.Framebuffer) {
	if f, ok := d.framebuffer.take(fb); ok {
		vk.DestroyFramebuffer(d.handle, f, nil)
	}
}

func (d *Device) CreatePipelineLayout(sets []hal.DescriptorSetLayout) (hal.PipelineLayout, error) {
	layouts := make([]vk.DescriptorSetLayout, len(sets))
	for i, l := range sets {
		layouts[i] = d.setLayouts.get(l)
	}
	var layout vk.PipelineLayout
	ret := vk.CreatePipelineLayout(d.handle, &vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(layouts)),
		PSetLayouts:    layouts,
	}, nil, &layout)
	if isError(ret) {
		return 0, newError("vkCreatePipelineLayout", ret)
	}
	return d.pipeLayouts.put(layout), nil
}

func (d *Device) DestroyPipelineLayout(l hal.PipelineLayout) {
	if layout, ok := d.pipeLayouts.take(l); ok {
		vk.DestroyPipelineLayout(d.handle, layout, nil)
	}
}

// CreateGraphicsPipeline builds a single-subpass pipeline with one color
// attachment and a static viewport and scissor.
func (d *Device) CreateGraphicsPipeline(desc hal.GraphicsPipelineDesc) (hal.Pipeline, error) {
	entry := safeString(desc.EntryPoint)
	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: d.modules.get(desc.VertexShader),
			PName:  entry,
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: d.modules.get(desc.FragmentShader),
			PName:  entry,
		},
	}
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(desc.VertexBindings)),
		PVertexBindingDescriptions:      desc.VertexBindings,
		VertexAttributeDescriptionCount: uint32(len(desc.VertexAttributes)),
		PVertexAttributeDescriptions:    desc.VertexAttributes,
	}
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               desc.Topology,
		PrimitiveRestartEnable: vk.False,
	}
	viewport := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports:    []vk.Viewport{desc.Viewport},
		ScissorCount:  1,
		PScissors:     []vk.Rect2D{desc.Scissor},
	}
	raster := desc.Rasterization
	raster.SType = vk.StructureTypePipelineRasterizationStateCreateInfo
	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: desc.Samples,
		SampleShadingEnable:  vk.False,
		MinSampleShading:     1.0,
	}
	depth := desc.DepthStencil
	depth.SType = vk.StructureTypePipelineDepthStencilStateCreateInfo
	blend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{desc.ColorBlend},
	}

	info := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewport,
		PRasterizationState: &raster,
		PMultisampleState:   &multisample,
		PDepthStencilState:  &depth,
		PColorBlendState:    &blend,
		Layout:              d.pipeLayouts.get(desc.Layout),
		RenderPass:          d.renderPass.get(desc.RenderPass),
		Subpass:             0,
	}
	pipelines := make([]vk.Pipeline, 1)
	ret := vk.CreateGraphicsPipelines(d.handle, nil, 1, []vk.GraphicsPipelineCreateInfo{info}, nil, pipelines)
	if isError(ret) {
		return 0, newError("vkCreateGraphicsPipelines", ret)
	}
	return d.pipelines.put(pipelines[0]), nil
}

func (d *Device) DestroyPipeline(p hal.Pipeline) {
	if pipeline, ok := d.pipelines.take(p); ok {
		vk.DestroyPipeline(d.handle, pipeline, nil)
	}
}

func sliceUint32(data []byte) []uint32 {
	if len(data) == 0 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}
