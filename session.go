package forgevk

import (
	"context"
	"image"

	"golang.org/x/exp/slog"

	"github.com/S96/ForgeVk/hal"
)

// Window is the presentation window a session renders into.
type Window interface {
	FramebufferSizer
	ShouldClose() bool
	PollEvents()
}

// Assets is the input a session is built from.
type Assets struct {
	Shaders ShaderSet
	Texture *image.RGBA
	// Mesh defaults to QuadMesh when empty.
	Mesh Mesh
}

// Session wires the components of a renderer together and runs the frame
// loop.
type Session struct {
	Context   *DeviceContext
	Resources *ResourceManager
	Pipelines *PipelineBuilder
	Swapchain *Swapchain
	Frames    *FrameExecutor

	Scene    *Scene
	Texture  *Texture
	Uniforms *UniformBuffer

	window Window
	log    *slog.Logger
}

// NewSession takes ownership of inst and surface and builds every resource
// needed to render assets. On failure everything created so far is released,
// including the instance and surface.
func NewSession(inst hal.Instance, surface hal.Surface, win Window, assets Assets, opts ...Option) (_ *Session, err error) {
	o := buildOptions(opts)
	s := &Session{
		Context: NewDeviceContext(inst, surface, o.layers, opts...),
		window:  win,
		log:     o.log,
	}
	defer func() {
		if err != nil {
			s.Context.Destroy()
		}
	}()
	if assets.Texture == nil {
		return nil, markf(ErrResourceCreation, nil, "no texture")
	}
	mesh := assets.Mesh
	if len(mesh.Vertices) == 0 || len(mesh.Indices) == 0 {
		mesh = QuadMesh()
	}

	ctx := s.Context
	adapter, err := ctx.SelectAdapter()
	if err != nil {
		return nil, err
	}
	if err := ctx.CreateDeviceAndQueues(adapter); err != nil {
		return nil, err
	}

	if s.Resources, err = NewResourceManager(ctx, opts...); err != nil {
		return nil, err
	}
	ctx.OnTeardown("resources", s.Resources.Destroy)

	s.Scene = &Scene{IndexCount: uint32(len(mesh.Indices))}
	if s.Scene.VertexBuffer, err = s.Resources.CreateVertexBuffer(mesh.Vertices); err != nil {
		return nil, err
	}
	ctx.OnTeardown("vertex buffer", s.Scene.VertexBuffer.Destroy)
	if s.Scene.IndexBuffer, err = s.Resources.CreateIndexBuffer(mesh.Indices); err != nil {
		return nil, err
	}
	ctx.OnTeardown("index buffer", s.Scene.IndexBuffer.Destroy)

	if s.Texture, err = s.Resources.CreateTexture(assets.Texture); err != nil {
		return nil, err
	}
	ctx.OnTeardown("texture", s.Texture.Destroy)
	if s.Uniforms, err = s.Resources.CreateUniformBuffer(UniformSize); err != nil {
		return nil, err
	}
	ctx.OnTeardown("uniform buffer", s.Uniforms.Destroy)

	if s.Pipelines, err = NewPipelineBuilder(ctx, assets.Shaders, opts...); err != nil {
		return nil, err
	}
	ctx.OnTeardown("pipeline layouts", s.Pipelines.Destroy)
	if s.Scene.Descriptors, err = NewDescriptors(ctx, s.Pipelines.SetLayout); err != nil {
		return nil, err
	}
	ctx.OnTeardown("descriptors", s.Scene.Descriptors.Destroy)
	s.Scene.Descriptors.Write(s.Uniforms, s.Texture)

	s.Swapchain = NewSwapchain(ctx, s.Resources, s.Pipelines, s.Scene, win, opts...)
	ctx.OnTeardown("swapchain", s.Swapchain.Destroy)
	if err := s.Swapchain.Create(); err != nil {
		return nil, err
	}

	if s.Frames, err = NewFrameExecutor(ctx, s.Swapchain, s.Uniforms, opts...); err != nil {
		return nil, err
	}
	ctx.OnTeardown("frame sync", s.Frames.Destroy)
	s.log.Info("session ready",
		"images", len(s.Swapchain.Images),
		"vertices", len(mesh.Vertices),
		"indices", len(mesh.Indices))
	return s, nil
}

// Run polls window events and renders until the window asks to close or ctx
// is cancelled. The device is idle when Run returns.
func (s *Session) Run(ctx context.Context) error {
	defer func() {
		if err := s.Context.Device.WaitIdle(); err != nil {
			s.log.Warn("wait idle after run", "err", err)
		}
	}()
	for !s.window.ShouldClose() {
		select {
		case <-ctx.Done():
			s.log.Info("run cancelled", "frames", s.Frames.Frames())
			return nil
		default:
		}
		s.window.PollEvents()
		if err := s.Frames.Tick(); err != nil {
			return err
		}
	}
	s.log.Info("window closed", "frames", s.Frames.Frames())
	return nil
}

// Resize forwards a framebuffer resize to the swapchain.
func (s *Session) Resize(width, height int) {
	s.log.Debug("resize", "width", width, "height", height)
	s.Swapchain.Invalidate(width, height)
}

// Destroy releases every resource, the device, the surface and the
// instance.
func (s *Session) Destroy() {
	s.Context.Destroy()
}
