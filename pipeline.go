package forgevk

import (
	"encoding/binary"

	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/exp/slog"

	"github.com/S96/ForgeVk/hal"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic = 0x07230203

// ShaderSet holds precompiled SPIR-V for the two graphics stages.
type ShaderSet struct {
	Vertex   []byte
	Fragment []byte
}

// ValidateSPIRV checks size, alignment and the magic number of a module.
func ValidateSPIRV(code []byte) error {
	if len(code) < 20 || len(code)%4 != 0 {
		return markf(ErrShaderModule, nil, "bytecode size %d is not a SPIR-V module", len(code))
	}
	if binary.LittleEndian.Uint32(code) != SPIRVMagic {
		return markf(ErrShaderModule, nil, "bad SPIR-V magic %#x", binary.LittleEndian.Uint32(code))
	}
	return nil
}

// PipelineBuilder builds the render pass and graphics pipeline. The
// descriptor set layout and pipeline layout do not depend on the swapchain
// and live as long as the builder; render passes and pipelines are built
// per swapchain and owned by the caller.
type PipelineBuilder struct {
	SetLayout      hal.DescriptorSetLayout
	PipelineLayout hal.PipelineLayout

	ctx     *DeviceContext
	shaders ShaderSet
	log     *slog.Logger

	inputAssembly vk.PrimitiveTopology
	rasterizer    vk.PipelineRasterizationStateCreateInfo
	depthStencil  vk.PipelineDepthStencilStateCreateInfo
	colorBlend    vk.PipelineColorBlendAttachmentState
}

// NewPipelineBuilder validates the shaders and creates the descriptor set
// and pipeline layouts.
func NewPipelineBuilder(ctx *DeviceContext, shaders ShaderSet, opts ...Option) (_ *PipelineBuilder, err error) {
	o := buildOptions(opts)
	if err := ValidateSPIRV(shaders.Vertex); err != nil {
		return nil, markf(ErrShaderModule, err, "vertex shader")
	}
	if err := ValidateSPIRV(shaders.Fragment); err != nil {
		return nil, markf(ErrShaderModule, err, "fragment shader")
	}
	b := &PipelineBuilder{
		ctx:           ctx,
		shaders:       shaders,
		log:           o.log,
		inputAssembly: vk.PrimitiveTopologyTriangleList,
		rasterizer: vk.PipelineRasterizationStateCreateInfo{
			DepthClampEnable:        vk.False,
			RasterizerDiscardEnable: vk.False,
			PolygonMode:             vk.PolygonModeFill,
			LineWidth:               1,
			CullMode:                vk.CullModeFlags(vk.CullModeBackBit),
			FrontFace:               vk.FrontFaceClockwise,
			DepthBiasEnable:         vk.False,
		},
		depthStencil: vk.PipelineDepthStencilStateCreateInfo{
			DepthTestEnable:       vk.True,
			DepthWriteEnable:      vk.True,
			DepthCompareOp:        vk.CompareOpLess,
			DepthBoundsTestEnable: vk.False,
			StencilTestEnable:     vk.False,
			MaxDepthBounds:        1,
		},
		colorBlend: vk.PipelineColorBlendAttachmentState{
			BlendEnable: vk.False,
			ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
				vk.ColorComponentBBit | vk.ColorComponentABit),
		},
	}
	defer func() {
		if err != nil {
			b.Destroy()
		}
	}()

	dev := ctx.Device
	b.SetLayout, err = dev.CreateDescriptorSetLayout(DescriptorBindings())
	if err != nil {
		return nil, markf(ErrPipelineCreation, err, "create descriptor set layout")
	}
	b.PipelineLayout, err = dev.CreatePipelineLayout([]hal.DescriptorSetLayout{b.SetLayout})
	if err != nil {
		return nil, markf(ErrPipelineCreation, err, "create pipeline layout")
	}
	return b, nil
}

// Destroy destroys the pipeline layout and the descriptor set layout.
func (b *PipelineBuilder) Destroy() {
	dev := b.ctx.Device
	if b.PipelineLayout != 0 {
		dev.DestroyPipelineLayout(b.PipelineLayout)
		b.PipelineLayout = 0
	}
	if b.SetLayout != 0 {
		dev.DestroyDescriptorSetLayout(b.SetLayout)
		b.SetLayout = 0
	}
}

// DescriptorBindings returns the uniform buffer binding for the vertex
// stage and the combined image sampler binding for the fragment stage.
func DescriptorBindings() []vk.DescriptorSetLayoutBinding {
	return []vk.DescriptorSetLayoutBinding{
		{
			Binding:         0,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit),
		},
		{
			Binding:         1,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		},
	}
}

// RenderPassInfo describes one subpass writing a presentable color
// attachment and a depth attachment.
func RenderPassInfo(colorFormat, depthFormat vk.Format) vk.RenderPassCreateInfo {
	attachments := []vk.AttachmentDescription{
		{
			Format:         colorFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutPresentSrc,
		},
		{
			Format:         depthFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		},
	}
	colorRef := []vk.AttachmentReference{{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}
	depthRef := &vk.AttachmentReference{
		Attachment: 1,
		Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
	}
	return vk.RenderPassCreateInfo{
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses: []vk.SubpassDescription{{
			PipelineBindPoint:       vk.PipelineBindPointGraphics,
			ColorAttachmentCount:    1,
			PColorAttachments:       colorRef,
			PDepthStencilAttachment: depthRef,
		}},
		DependencyCount: 1,
		PDependencies: []vk.SubpassDependency{{
			SrcSubpass:    vk.SubpassExternal,
			DstSubpass:    0,
			SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			SrcAccessMask: 0,
			DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit),
		}},
	}
}

// BuildRenderPass creates the render pass for a swapchain format and depth
// format.
func (b *PipelineBuilder) BuildRenderPass(colorFormat, depthFormat vk.Format) (hal.RenderPass, error) {
	rp, err := b.ctx.Device.CreateRenderPass(RenderPassInfo(colorFormat, depthFormat))
	if err != nil {
		return 0, markf(ErrPipelineCreation, err, "create render pass")
	}
	return rp, nil
}

// BuildPipeline creates the graphics pipeline for a render pass with a
// fixed viewport and scissor covering extent. Shader modules are created
// for the build and destroyed before it returns.
func (b *PipelineBuilder) BuildPipeline(rp hal.RenderPass, extent vk.Extent2D) (hal.Pipeline, error) {
	dev := b.ctx.Device
	vert, err := dev.CreateShaderModule(b.shaders.Vertex)
	if err != nil {
		return 0, markf(ErrShaderModule, err, "create vertex shader module")
	}
	defer dev.DestroyShaderModule(vert)
	frag, err := dev.CreateShaderModule(b.shaders.Fragment)
	if err != nil {
		return 0, markf(ErrShaderModule, err, "create fragment shader module")
	}
	defer dev.DestroyShaderModule(frag)

	p, err := dev.CreateGraphicsPipeline(hal.GraphicsPipelineDesc{
		Layout:           b.PipelineLayout,
		RenderPass:       rp,
		VertexShader:     vert,
		FragmentShader:   frag,
		EntryPoint:       "main",
		VertexBindings:   []vk.VertexInputBindingDescription{VertexBinding()},
		VertexAttributes: VertexAttributes(),
		Topology:         b.inputAssembly,
		Viewport: vk.Viewport{
			Width:    float32(extent.Width),
			Height:   float32(extent.Height),
			MinDepth: 0,
			MaxDepth: 1,
		},
		Scissor:       vk.Rect2D{Extent: extent},
		Rasterization: b.rasterizer,
		Samples:       vk.SampleCount1Bit,
		DepthStencil:  b.depthStencil,
		ColorBlend:    b.colorBlend,
	})
	if err != nil {
		return 0, markf(ErrPipelineCreation, err, "create graphics pipeline")
	}
	b.log.Debug("pipeline built", "width", extent.Width, "height", extent.Height)
	return p, nil
}
