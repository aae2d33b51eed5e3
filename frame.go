package forgevk

import (
	"time"

	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/exp/slog"

	"github.com/S96/ForgeVk/hal"
)

// FrameExecutor drives one frame per Tick: it refreshes the uniforms,
// acquires an image, submits its prerecorded command buffer and presents
// it. A single pair of semaphores orders acquire, render and present.
type FrameExecutor struct {
	ImageAvailable hal.Semaphore
	RenderFinished hal.Semaphore

	ctx       *DeviceContext
	swapchain *Swapchain
	ubo       *UniformBuffer
	now       func() time.Time
	start     time.Time
	frames    uint64
	log       *slog.Logger
}

// NewFrameExecutor creates the frame semaphores. Animation time starts now.
func NewFrameExecutor(ctx *DeviceContext, sc *Swapchain, ubo *UniformBuffer, opts ...Option) (*FrameExecutor, error) {
	o := buildOptions(opts)
	f := &FrameExecutor{
		ctx:       ctx,
		swapchain: sc,
		ubo:       ubo,
		now:       o.now,
		log:       o.log,
	}
	var err error
	if f.ImageAvailable, err = ctx.Device.CreateSemaphore(); err != nil {
		return nil, markf(ErrResourceCreation, err, "create image available semaphore")
	}
	if f.RenderFinished, err = ctx.Device.CreateSemaphore(); err != nil {
		ctx.Device.DestroySemaphore(f.ImageAvailable)
		return nil, markf(ErrResourceCreation, err, "create render finished semaphore")
	}
	f.start = f.now()
	return f, nil
}

// Frames reports the number of frames presented.
func (f *FrameExecutor) Frames() uint64 {
	return f.frames
}

// Tick renders and presents one frame. An out of date swapchain is rebuilt
// and the frame is skipped; surface loss and any other driver failure is
// returned.
func (f *FrameExecutor) Tick() error {
	sc := f.swapchain
	if sc.State() == SwapchainStale {
		if err := sc.Recreate(); err != nil {
			return err
		}
		if sc.State() != SwapchainActive {
			return nil
		}
	}
	dev := f.ctx.Device

	// The previous frame reads the uniform buffer until the device drains.
	if err := dev.WaitIdle(); err != nil {
		return markf(ErrSubmit, err, "wait for previous frame")
	}
	ubo := ComputeUniforms(f.now().Sub(f.start), sc.Extent)
	f.ubo.Write(ubo.Bytes())

	index, res := dev.AcquireNextImage(sc.Handle, f.ImageAvailable)
	switch res {
	case vk.Success, vk.Suboptimal:
	case vk.ErrorOutOfDate:
		f.log.Debug("acquire: swapchain out of date")
		sc.MarkStale()
		return sc.Recreate()
	case vk.ErrorSurfaceLost:
		return markf(ErrSurfaceLost, resultError("vkAcquireNextImageKHR", res), "acquire image")
	default:
		return markf(ErrSwapchainAcquire, resultError("vkAcquireNextImageKHR", res), "acquire image")
	}
	if int(index) >= len(sc.CommandBuffers) {
		return markf(ErrSwapchainAcquire, nil, "acquired image %d of %d", index, len(sc.CommandBuffers))
	}

	err := dev.QueueSubmit(f.ctx.GraphicsQueue, hal.SubmitDesc{
		CommandBuffer: sc.CommandBuffers[index],
		Wait:          f.ImageAvailable,
		WaitStage:     vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		Signal:        f.RenderFinished,
	})
	if err != nil {
		return markf(ErrSubmit, err, "submit frame %d", f.frames)
	}

	res = dev.QueuePresent(f.ctx.PresentQueue, sc.Handle, index, f.RenderFinished)
	switch res {
	case vk.Success:
	case vk.ErrorOutOfDate, vk.Suboptimal:
		f.log.Debug("present: swapchain needs recreation", "result", res)
		f.frames++
		sc.MarkStale()
		return sc.Recreate()
	case vk.ErrorSurfaceLost:
		return markf(ErrSurfaceLost, resultError("vkQueuePresentKHR", res), "present image %d", index)
	default:
		return markf(ErrPresent, resultError("vkQueuePresentKHR", res), "present image %d", index)
	}
	f.frames++
	return nil
}

// Destroy destroys the semaphores. The device must be idle.
func (f *FrameExecutor) Destroy() {
	if f.ImageAvailable != 0 {
		f.ctx.Device.DestroySemaphore(f.ImageAvailable)
		f.ImageAvailable = 0
	}
	if f.RenderFinished != 0 {
		f.ctx.Device.DestroySemaphore(f.RenderFinished)
		f.RenderFinished = 0
	}
}

func resultError(op string, res vk.Result) error {
	return &hal.ResultError{Op: op, Result: res}
}
