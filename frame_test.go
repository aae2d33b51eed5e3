package forgevk

import (
	"bytes"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/S96/ForgeVk/hal/haltest"
)

func TestTick(t *testing.T) {
	s, inst, _ := newSession(t)
	dev := inst.Device
	f := s.Frames
	sc := s.Swapchain
	setupSubmits := len(dev.Submits)

	n := len(sc.Images)
	for i := 0; i < n+1; i++ {
		if err := f.Tick(); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	if f.Frames() != uint64(n+1) {
		t.Errorf("frames = %d, want %d", f.Frames(), n+1)
	}
	for i, idx := range dev.Presents {
		if want := uint32(i % n); idx != want {
			t.Errorf("present %d: image %d, want %d", i, idx, want)
		}
	}

	frames := dev.Submits[setupSubmits:]
	if len(frames) != n+1 {
		t.Fatalf("frame submits = %d, want %d", len(frames), n+1)
	}
	for i, sub := range frames {
		if sub.CommandBuffer != sc.CommandBuffers[dev.Presents[i]] {
			t.Errorf("submit %d used command buffer %d", i, sub.CommandBuffer)
		}
		if sub.Wait != f.ImageAvailable || sub.Signal != f.RenderFinished ||
			sub.WaitStage != vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit) {
			t.Errorf("submit %d sync = %+v", i, sub)
		}
	}
	checkNoMisuse(t, dev)
}

func TestTickWritesUniforms(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	s, inst, _ := newSession(t, WithClock(func() time.Time { return now }))
	dev := inst.Device

	now = start.Add(1500 * time.Millisecond)
	if err := s.Frames.Tick(); err != nil {
		t.Fatal(err)
	}
	want := ComputeUniforms(1500*time.Millisecond, s.Swapchain.Extent)
	got := dev.MemoryContents(s.Uniforms.Memory)[:UniformSize]
	if !bytes.Equal(got, want.Bytes()) {
		t.Error("uniform buffer does not hold the transforms for the elapsed time")
	}
}

func TestTickAcquireResults(t *testing.T) {
	tests := []struct {
		name      string
		result    vk.Result
		err       error
		frames    uint64
		recreated bool
	}{
		{"suboptimal presents", vk.Suboptimal, nil, 1, false},
		{"out of date recreates", vk.ErrorOutOfDate, nil, 0, true},
		{"surface lost", vk.ErrorSurfaceLost, ErrSurfaceLost, 0, false},
		{"device lost", vk.ErrorDeviceLost, ErrSwapchainAcquire, 0, false},
		{"timeout", vk.Timeout, ErrSwapchainAcquire, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, inst, _ := newSession(t)
			dev := inst.Device
			old := s.Swapchain.Handle
			dev.AcquireResults = []vk.Result{tt.result}

			err := s.Frames.Tick()
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("err = %v, want %v", err, tt.err)
				}
			} else if err != nil {
				t.Fatal(err)
			}
			if s.Frames.Frames() != tt.frames {
				t.Errorf("frames = %d, want %d", s.Frames.Frames(), tt.frames)
			}
			if recreated := s.Swapchain.Handle != old; recreated != tt.recreated {
				t.Errorf("recreated = %v, want %v", recreated, tt.recreated)
			}
			if tt.recreated && len(dev.Presents) != 0 {
				t.Error("frame presented after out of date acquire")
			}
			if s.Swapchain.State() != SwapchainActive {
				t.Errorf("state = %s", s.Swapchain.State())
			}
			checkNoMisuse(t, dev)
		})
	}
}

func TestTickPresentResults(t *testing.T) {
	tests := []struct {
		name      string
		result    vk.Result
		err       error
		frames    uint64
		recreated bool
	}{
		{"success", vk.Success, nil, 1, false},
		{"suboptimal recreates", vk.Suboptimal, nil, 1, true},
		{"out of date recreates", vk.ErrorOutOfDate, nil, 1, true},
		{"surface lost", vk.ErrorSurfaceLost, ErrSurfaceLost, 0, false},
		{"device lost", vk.ErrorDeviceLost, ErrPresent, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, inst, _ := newSession(t)
			dev := inst.Device
			old := s.Swapchain.Handle
			dev.PresentResults = []vk.Result{tt.result}

			err := s.Frames.Tick()
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("err = %v, want %v", err, tt.err)
				}
			} else if err != nil {
				t.Fatal(err)
			}
			if s.Frames.Frames() != tt.frames {
				t.Errorf("frames = %d, want %d", s.Frames.Frames(), tt.frames)
			}
			if recreated := s.Swapchain.Handle != old; recreated != tt.recreated {
				t.Errorf("recreated = %v, want %v", recreated, tt.recreated)
			}

			// The next frame renders normally.
			if tt.err == nil {
				if err := s.Frames.Tick(); err != nil {
					t.Fatal(err)
				}
			}
			checkNoMisuse(t, dev)
		})
	}
}

func TestTickDriverFailures(t *testing.T) {
	for _, op := range []string{"WaitIdle", "QueueSubmit"} {
		t.Run(op, func(t *testing.T) {
			s, inst, _ := newSession(t)
			dev := inst.Device
			dev.Fail[op] = vk.ErrorDeviceLost
			if err := s.Frames.Tick(); !errors.Is(err, ErrSubmit) {
				t.Fatalf("err = %v, want ErrSubmit", err)
			}
			if len(dev.Presents) != 0 || s.Frames.Frames() != 0 {
				t.Error("failed frame was presented")
			}
		})
	}
}

func TestTickResize(t *testing.T) {
	s, inst, _ := newSession(t)
	dev := inst.Device
	old := s.Swapchain.Handle

	s.Resize(120, 80)
	if err := s.Frames.Tick(); err != nil {
		t.Fatal(err)
	}
	if s.Swapchain.Handle == old {
		t.Error("swapchain not recreated after resize")
	}
	if s.Frames.Frames() != 1 || len(dev.Presents) != 1 {
		t.Errorf("frames %d, presents %d; want 1 each", s.Frames.Frames(), len(dev.Presents))
	}
}

func TestTickMinimized(t *testing.T) {
	a := haltest.DefaultAdapter()
	a.Capabilities.CurrentExtent = vk.Extent2D{Width: vk.MaxUint32, Height: vk.MaxUint32}
	a.Capabilities.MinImageExtent = vk.Extent2D{}
	inst := haltest.NewInstance(a)
	win := &fakeWindow{width: 100, height: 100, closeAfter: -1}
	s, err := NewSession(inst, inst.NewSurface(), win, Assets{Shaders: testShaders(), Texture: testTexture(2, 2)})
	if err != nil {
		t.Fatal(err)
	}
	dev := inst.Device

	win.width, win.height = 0, 0
	s.Swapchain.MarkStale()
	for i := 0; i < 3; i++ {
		if err := s.Frames.Tick(); err != nil {
			t.Fatal(err)
		}
	}
	if len(dev.Presents) != 0 || s.Frames.Frames() != 0 {
		t.Error("frames rendered while minimized")
	}
	if s.Swapchain.State() != SwapchainStale {
		t.Errorf("state = %s, want stale", s.Swapchain.State())
	}

	win.width, win.height = 50, 50
	if err := s.Frames.Tick(); err != nil {
		t.Fatal(err)
	}
	if s.Frames.Frames() != 1 || s.Swapchain.Extent.Width != 50 {
		t.Errorf("frames %d, extent %+v after restore", s.Frames.Frames(), s.Swapchain.Extent)
	}
	checkNoMisuse(t, dev)
}

func TestFrameExecutorSemaphoreFailure(t *testing.T) {
	s, inst, _ := newSession(t)
	dev := inst.Device
	before := dev.Live(haltest.KindSemaphore)

	dev.Fail["CreateSemaphore"] = vk.ErrorOutOfHostMemory
	if _, err := NewFrameExecutor(s.Context, s.Swapchain, s.Uniforms); !errors.Is(err, ErrResourceCreation) {
		t.Fatalf("err = %v, want ErrResourceCreation", err)
	}
	if dev.Live(haltest.KindSemaphore) != before {
		t.Error("semaphore leaked")
	}

	s.Frames.Destroy()
	s.Frames.Destroy()
	if dev.Live(haltest.KindSemaphore) != 0 {
		t.Error("semaphores not destroyed")
	}
	checkNoMisuse(t, dev)
}
