package forgevk

import (
	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/exp/slog"

	"github.com/S96/ForgeVk/hal"
)

// SwapchainState is the lifecycle state of a Swapchain.
type SwapchainState int

const (
	SwapchainUninitialized SwapchainState = iota
	SwapchainActive
	SwapchainStale
	SwapchainTornDown
)

func (s SwapchainState) String() string {
	switch s {
	case SwapchainUninitialized:
		return "uninitialized"
	case SwapchainActive:
		return "active"
	case SwapchainStale:
		return "stale"
	case SwapchainTornDown:
		return "torn down"
	}
	return "unknown"
}

// PreferredSurfaceFormat is chosen whenever the surface offers it.
var PreferredSurfaceFormat = vk.SurfaceFormat{
	Format:     vk.FormatB8g8r8a8Unorm,
	ColorSpace: vk.ColorSpaceSrgbNonlinear,
}

// ChooseSurfaceFormat picks the preferred format if listed, or the first
// one. A single undefined entry means the surface has no preference.
func ChooseSurfaceFormat(formats []vk.SurfaceFormat) vk.SurfaceFormat {
	if len(formats) == 0 {
		return PreferredSurfaceFormat
	}
	if len(formats) == 1 && formats[0].Format == vk.FormatUndefined {
		return PreferredSurfaceFormat
	}
	for _, f := range formats {
		if f.Format == PreferredSurfaceFormat.Format && f.ColorSpace == PreferredSurfaceFormat.ColorSpace {
			return f
		}
	}
	return formats[0]
}

// ChoosePresentMode prefers mailbox, then immediate, then FIFO, which is
// always available.
func ChoosePresentMode(modes []vk.PresentMode) vk.PresentMode {
	best := vk.PresentModeFifo
	for _, m := range modes {
		if m == vk.PresentModeMailbox {
			return m
		}
		if m == vk.PresentModeImmediate {
			best = m
		}
	}
	return best
}

// ChooseExtent returns the surface's current extent, or the window size
// clamped to the supported range when the surface leaves it to the
// swapchain.
func ChooseExtent(caps vk.SurfaceCapabilities, width, height int) vk.Extent2D {
	if caps.CurrentExtent.Width != vk.MaxUint32 {
		return caps.CurrentExtent
	}
	return vk.Extent2D{
		Width:  clamp(uint32(width), caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(uint32(height), caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

// ImageCount requests one image above the minimum, bounded by the maximum
// when the surface reports one.
func ImageCount(caps vk.SurfaceCapabilities) uint32 {
	n := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && n > caps.MaxImageCount {
		n = caps.MaxImageCount
	}
	return n
}

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func compositeAlpha(supported vk.CompositeAlphaFlags) vk.CompositeAlphaFlagBits {
	for _, bit := range []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	} {
		if supported&vk.CompositeAlphaFlags(bit) != 0 {
			return bit
		}
	}
	return vk.CompositeAlphaOpaqueBit
}

// FramebufferSizer reports the drawable size of the window in pixels.
type FramebufferSizer interface {
	FramebufferSize() (width, height int)
}

// Scene is the geometry and bindings the recorded command buffers draw.
type Scene struct {
	VertexBuffer *Buffer
	IndexBuffer  *Buffer
	IndexCount   uint32
	Descriptors  *Descriptors
}

// Swapchain owns the presentable images and everything that depends on
// their format or extent: image views, render pass, pipeline, depth target,
// framebuffers and the prerecorded command buffers.
type Swapchain struct {
	Handle      hal.Swapchain
	Format      vk.SurfaceFormat
	PresentMode vk.PresentMode
	Extent      vk.Extent2D

	Images         []hal.Image
	Views          []hal.ImageView
	RenderPass     hal.RenderPass
	Pipeline       hal.Pipeline
	DepthFormat    vk.Format
	Depth          *Image
	DepthView      hal.ImageView
	Framebuffers   []hal.Framebuffer
	CommandBuffers []hal.CommandBuffer

	ctx    *DeviceContext
	res    *ResourceManager
	pipes  *PipelineBuilder
	scene  *Scene
	window FramebufferSizer
	state  SwapchainState
	log    *slog.Logger
}

// NewSwapchain prepares a swapchain manager. Create builds the first
// swapchain.
func NewSwapchain(ctx *DeviceContext, res *ResourceManager, pipes *PipelineBuilder,
	scene *Scene, window FramebufferSizer, opts ...Option) *Swapchain {

	o := buildOptions(opts)
	return &Swapchain{
		ctx:    ctx,
		res:    res,
		pipes:  pipes,
		scene:  scene,
		window: window,
		log:    o.log,
	}
}

// State reports the lifecycle state.
func (s *Swapchain) State() SwapchainState {
	return s.state
}

// Create builds the swapchain and its dependents. A zero-sized surface
// leaves the swapchain stale with no handle.
func (s *Swapchain) Create() error {
	if s.state != SwapchainUninitialized {
		return markf(ErrSwapchainCreation, nil, "create in state %s", s.state)
	}
	handle, err := s.createHandle(0)
	if err != nil {
		return err
	}
	if handle == 0 {
		// Minimized at startup; the first Tick builds it.
		s.state = SwapchainStale
		return nil
	}
	s.Handle = handle
	if err := s.buildDependents(); err != nil {
		return err
	}
	s.state = SwapchainActive
	return nil
}

// Invalidate handles a resize notification. Zero sizes come from a
// minimized window and are ignored.
func (s *Swapchain) Invalidate(width, height int) {
	if width == 0 || height == 0 {
		return
	}
	s.MarkStale()
}

// MarkStale flags the swapchain for recreation.
func (s *Swapchain) MarkStale() {
	if s.state == SwapchainActive {
		s.state = SwapchainStale
	}
}

// Recreate replaces the swapchain. The new swapchain is created against the
// old one, the device is drained, the old dependents and swapchain are
// released and the dependents are rebuilt. While the surface has a zero
// extent the swapchain stays stale and nothing is released.
func (s *Swapchain) Recreate() error {
	if s.state == SwapchainTornDown || s.state == SwapchainUninitialized {
		return markf(ErrSwapchainCreation, nil, "recreate in state %s", s.state)
	}
	old := s.Handle
	handle, err := s.createHandle(old)
	if err != nil {
		return err
	}
	if handle == 0 {
		s.state = SwapchainStale
		return nil
	}
	if err := s.ctx.Device.WaitIdle(); err != nil {
		s.ctx.Device.DestroySwapchain(handle)
		return markf(ErrSwapchainCreation, err, "wait idle before recreate")
	}
	s.releaseDependents()
	if old != 0 {
		s.ctx.Device.DestroySwapchain(old)
	}
	s.Handle = handle
	if err := s.buildDependents(); err != nil {
		return err
	}
	s.state = SwapchainActive
	s.log.Info("swapchain recreated", "width", s.Extent.Width, "height", s.Extent.Height)
	return nil
}

// Destroy releases the dependents and the swapchain. It is idempotent.
func (s *Swapchain) Destroy() {
	if s.state == SwapchainTornDown {
		return
	}
	s.releaseDependents()
	if s.Handle != 0 {
		s.ctx.Device.DestroySwapchain(s.Handle)
		s.Handle = 0
	}
	s.state = SwapchainTornDown
}

// createHandle negotiates format, mode, extent and image count and creates
// a swapchain. It returns a zero handle without error when the surface is
// currently zero-sized.
func (s *Swapchain) createHandle(old hal.Swapchain) (hal.Swapchain, error) {
	inst, adapter, surface := s.ctx.Instance, s.ctx.Adapter, s.ctx.Surface
	caps, err := inst.SurfaceCapabilities(adapter, surface)
	if err != nil {
		return 0, markf(ErrSwapchainCreation, err, "query surface capabilities")
	}
	formats, err := inst.SurfaceFormats(adapter, surface)
	if err != nil {
		return 0, markf(ErrSwapchainCreation, err, "query surface formats")
	}
	modes, err := inst.PresentModes(adapter, surface)
	if err != nil {
		return 0, markf(ErrSwapchainCreation, err, "query present modes")
	}

	width, height := 0, 0
	if s.window != nil {
		width, height = s.window.FramebufferSize()
	}
	extent := ChooseExtent(caps, width, height)
	if extent.Width == 0 || extent.Height == 0 {
		s.log.Debug("surface has zero extent, deferring swapchain")
		return 0, nil
	}
	format := ChooseSurfaceFormat(formats)
	mode := ChoosePresentMode(modes)
	count := ImageCount(caps)

	var families []uint32
	if s.ctx.Families.Separate() {
		families = s.ctx.Families.Unique()
	}
	handle, err := s.ctx.Device.CreateSwapchain(hal.SwapchainDesc{
		Surface:        surface,
		MinImageCount:  count,
		Format:         format,
		Extent:         extent,
		Usage:          vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:   caps.CurrentTransform,
		CompositeAlpha: compositeAlpha(caps.SupportedCompositeAlpha),
		PresentMode:    mode,
		QueueFamilies:  families,
		Old:            old,
	})
	if err != nil {
		return 0, markf(ErrSwapchainCreation, err, "create swapchain")
	}
	s.Format, s.PresentMode, s.Extent = format, mode, extent
	s.log.Info("swapchain created",
		"format", format.Format,
		"color_space", format.ColorSpace,
		"present_mode", mode,
		"width", extent.Width,
		"height", extent.Height,
		"min_images", count)
	return handle, nil
}

// buildDependents creates views, render pass, pipeline, depth target,
// framebuffers and command buffers for the current handle.
func (s *Swapchain) buildDependents() error {
	dev := s.ctx.Device
	images, err := dev.SwapchainImages(s.Handle)
	if err != nil {
		return markf(ErrSwapchainCreation, err, "get swapchain images")
	}
	s.Images = images
	for _, img := range images {
		v, err := s.res.CreateImageView(img, s.Format.Format, vk.ImageAspectFlags(vk.ImageAspectColorBit))
		if err != nil {
			return err
		}
		s.Views = append(s.Views, v)
	}

	if s.DepthFormat, err = s.res.FindDepthFormat(); err != nil {
		return err
	}
	if s.RenderPass, err = s.pipes.BuildRenderPass(s.Format.Format, s.DepthFormat); err != nil {
		return err
	}
	if s.Pipeline, err = s.pipes.BuildPipeline(s.RenderPass, s.Extent); err != nil {
		return err
	}
	if err := s.buildDepth(); err != nil {
		return err
	}
	for _, v := range s.Views {
		fb, err := dev.CreateFramebuffer(hal.FramebufferDesc{
			RenderPass:  s.RenderPass,
			Attachments: []hal.ImageView{v, s.DepthView},
			Extent:      s.Extent,
		})
		if err != nil {
			return markf(ErrSwapchainCreation, err, "create framebuffer")
		}
		s.Framebuffers = append(s.Framebuffers, fb)
	}
	return s.record()
}

func (s *Swapchain) buildDepth() error {
	depth, err := s.res.CreateImage(s.Extent.Width, s.Extent.Height, s.DepthFormat, vk.ImageTilingOptimal,
		vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return err
	}
	s.Depth = depth
	if s.DepthView, err = s.res.CreateImageView(depth.Handle, s.DepthFormat, vk.ImageAspectFlags(vk.ImageAspectDepthBit)); err != nil {
		return err
	}
	return s.res.TransitionImageLayout(depth.Handle, s.DepthFormat,
		vk.ImageLayoutUndefined, vk.ImageLayoutDepthStencilAttachmentOptimal)
}

// record allocates one command buffer per framebuffer and records the draw
// of the scene into it.
func (s *Swapchain) record() error {
	cbs, err := s.res.AllocateCommandBuffers(len(s.Framebuffers))
	if err != nil {
		return err
	}
	s.CommandBuffers = cbs
	dev := s.ctx.Device
	clear := []vk.ClearValue{
		vk.NewClearValue([]float32{0, 0, 0, 1}),
		vk.NewClearDepthStencil(1, 0),
	}
	for i, cb := range cbs {
		if err := dev.BeginCommandBuffer(cb, vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit)); err != nil {
			return markf(ErrSwapchainCreation, err, "begin command buffer %d", i)
		}
		dev.CmdBeginRenderPass(cb, hal.RenderPassBegin{
			RenderPass:  s.RenderPass,
			Framebuffer: s.Framebuffers[i],
			Extent:      s.Extent,
			ClearValues: clear,
		})
		dev.CmdBindPipeline(cb, s.Pipeline)
		if s.scene != nil {
			dev.CmdBindVertexBuffer(cb, s.scene.VertexBuffer.Handle)
			dev.CmdBindIndexBuffer(cb, s.scene.IndexBuffer.Handle, vk.IndexTypeUint32)
			dev.CmdBindDescriptorSet(cb, s.pipes.PipelineLayout, s.scene.Descriptors.Set)
			dev.CmdDrawIndexed(cb, s.scene.IndexCount)
		}
		dev.CmdEndRenderPass(cb)
		if err := dev.EndCommandBuffer(cb); err != nil {
			return markf(ErrSwapchainCreation, err, "end command buffer %d", i)
		}
	}
	return nil
}

// releaseDependents destroys everything buildDependents created, in reverse
// dependency order. Partially built state is handled.
func (s *Swapchain) releaseDependents() {
	dev := s.ctx.Device
	s.res.FreeCommandBuffers(s.CommandBuffers)
	s.CommandBuffers = nil
	for _, fb := range s.Framebuffers {
		dev.DestroyFramebuffer(fb)
	}
	s.Framebuffers = nil
	if s.DepthView != 0 {
		dev.DestroyImageView(s.DepthView)
		s.DepthView = 0
	}
	s.Depth.Destroy()
	s.Depth = nil
	if s.Pipeline != 0 {
		dev.DestroyPipeline(s.Pipeline)
		s.Pipeline = 0
	}
	if s.RenderPass != 0 {
		dev.DestroyRenderPass(s.RenderPass)
		s.RenderPass = 0
	}
	for _, v := range s.Views {
		dev.DestroyImageView(v)
	}
	s.Views = nil
	s.Images = nil
}
