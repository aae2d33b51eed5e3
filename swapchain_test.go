package forgevk

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/S96/ForgeVk/hal/haltest"
)

func TestChooseSurfaceFormat(t *testing.T) {
	srgb := vk.SurfaceFormat{Format: vk.FormatB8g8r8a8Srgb, ColorSpace: vk.ColorSpaceSrgbNonlinear}
	rgba := vk.SurfaceFormat{Format: vk.FormatR8g8b8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear}
	tests := []struct {
		name    string
		formats []vk.SurfaceFormat
		want    vk.SurfaceFormat
	}{
		{"empty", nil, PreferredSurfaceFormat},
		{"undefined", []vk.SurfaceFormat{{Format: vk.FormatUndefined}}, PreferredSurfaceFormat},
		{"preferred listed", []vk.SurfaceFormat{srgb, PreferredSurfaceFormat}, PreferredSurfaceFormat},
		{"fallback first", []vk.SurfaceFormat{rgba, srgb}, rgba},
		{"color space must match", []vk.SurfaceFormat{
			srgb, {Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpace(1000104002)},
		}, srgb},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChooseSurfaceFormat(tt.formats); got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestChoosePresentMode(t *testing.T) {
	tests := []struct {
		modes []vk.PresentMode
		want  vk.PresentMode
	}{
		{nil, vk.PresentModeFifo},
		{[]vk.PresentMode{vk.PresentModeFifo}, vk.PresentModeFifo},
		{[]vk.PresentMode{vk.PresentModeFifo, vk.PresentModeImmediate}, vk.PresentModeImmediate},
		{[]vk.PresentMode{vk.PresentModeImmediate, vk.PresentModeMailbox, vk.PresentModeFifo}, vk.PresentModeMailbox},
		{[]vk.PresentMode{vk.PresentModeFifoRelaxed}, vk.PresentModeFifo},
	}
	for _, tt := range tests {
		if got := ChoosePresentMode(tt.modes); got != tt.want {
			t.Errorf("ChoosePresentMode(%v) = %d, want %d", tt.modes, got, tt.want)
		}
	}
}

func TestChooseExtent(t *testing.T) {
	fixed := vk.SurfaceCapabilities{CurrentExtent: vk.Extent2D{Width: 640, Height: 480}}
	free := vk.SurfaceCapabilities{
		CurrentExtent:  vk.Extent2D{Width: vk.MaxUint32, Height: vk.MaxUint32},
		MinImageExtent: vk.Extent2D{Width: 16, Height: 16},
		MaxImageExtent: vk.Extent2D{Width: 1024, Height: 768},
	}
	tests := []struct {
		name          string
		caps          vk.SurfaceCapabilities
		width, height int
		want          vk.Extent2D
	}{
		{"surface decides", fixed, 10, 10, vk.Extent2D{Width: 640, Height: 480}},
		{"window size", free, 800, 600, vk.Extent2D{Width: 800, Height: 600}},
		{"clamped low", free, 1, 2, vk.Extent2D{Width: 16, Height: 16}},
		{"clamped high", free, 4000, 3000, vk.Extent2D{Width: 1024, Height: 768}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChooseExtent(tt.caps, tt.width, tt.height); got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestImageCount(t *testing.T) {
	tests := []struct {
		min, max, want uint32
	}{
		{2, 8, 3},
		{2, 2, 2},
		{2, 0, 3},
		{1, 3, 2},
		{3, 3, 3},
	}
	for _, tt := range tests {
		caps := vk.SurfaceCapabilities{MinImageCount: tt.min, MaxImageCount: tt.max}
		if got := ImageCount(caps); got != tt.want {
			t.Errorf("ImageCount(min=%d, max=%d) = %d, want %d", tt.min, tt.max, got, tt.want)
		}
	}
}

func TestCompositeAlpha(t *testing.T) {
	tests := []struct {
		supported vk.CompositeAlphaFlagBits
		want      vk.CompositeAlphaFlagBits
	}{
		{vk.CompositeAlphaOpaqueBit | vk.CompositeAlphaInheritBit, vk.CompositeAlphaOpaqueBit},
		{vk.CompositeAlphaInheritBit, vk.CompositeAlphaInheritBit},
		{vk.CompositeAlphaPostMultipliedBit | vk.CompositeAlphaPreMultipliedBit, vk.CompositeAlphaPreMultipliedBit},
		{0, vk.CompositeAlphaOpaqueBit},
	}
	for _, tt := range tests {
		if got := compositeAlpha(vk.CompositeAlphaFlags(tt.supported)); got != tt.want {
			t.Errorf("compositeAlpha(%#x) = %#x, want %#x", tt.supported, got, tt.want)
		}
	}
}

func TestSwapchainCreate(t *testing.T) {
	s, inst, _ := newSession(t)
	sc := s.Swapchain
	dev := inst.Device

	if sc.State() != SwapchainActive {
		t.Fatalf("state = %s", sc.State())
	}
	n := int(ImageCount(dev.Adapter.Capabilities))
	if len(sc.Images) != n || len(sc.Views) != n || len(sc.Framebuffers) != n || len(sc.CommandBuffers) != n {
		t.Errorf("images %d, views %d, framebuffers %d, command buffers %d; want %d each",
			len(sc.Images), len(sc.Views), len(sc.Framebuffers), len(sc.CommandBuffers), n)
	}
	if sc.Extent != (vk.Extent2D{Width: 100, Height: 100}) {
		t.Errorf("extent = %+v", sc.Extent)
	}
	if sc.Format != PreferredSurfaceFormat || sc.PresentMode != vk.PresentModeFifo || sc.DepthFormat != vk.FormatD32Sfloat {
		t.Errorf("format %+v, mode %d, depth %d", sc.Format, sc.PresentMode, sc.DepthFormat)
	}

	desc := dev.Swapchains[sc.Handle]
	if desc.Old != 0 || desc.QueueFamilies != nil || desc.CompositeAlpha != vk.CompositeAlphaOpaqueBit {
		t.Errorf("swapchain desc = %+v", desc)
	}
	if got := dev.RenderPasses[sc.RenderPass].AttachmentCount; got != 2 {
		t.Errorf("render pass attachments = %d", got)
	}
	// The depth target is transitioned once at creation.
	last := dev.Barriers[len(dev.Barriers)-1]
	if last.Image != sc.Depth.Handle || last.NewLayout != vk.ImageLayoutDepthStencilAttachmentOptimal {
		t.Errorf("depth barrier = %+v", last)
	}

	if err := sc.Create(); !errors.Is(err, ErrSwapchainCreation) {
		t.Errorf("second Create err = %v", err)
	}
	checkNoMisuse(t, dev)
}

func TestSwapchainRecordedCommands(t *testing.T) {
	s, inst, _ := newSession(t)
	sc := s.Swapchain
	for i, cb := range sc.CommandBuffers {
		want := []string{
			fmt.Sprintf("begin-render-pass fb=%d clears=2", sc.Framebuffers[i]),
			fmt.Sprintf("bind-pipeline %d", sc.Pipeline),
			fmt.Sprintf("bind-vertex-buffer %d", s.Scene.VertexBuffer.Handle),
			fmt.Sprintf("bind-index-buffer %d", s.Scene.IndexBuffer.Handle),
			fmt.Sprintf("bind-descriptor-set %d", s.Scene.Descriptors.Set),
			fmt.Sprintf("draw-indexed %d", len(QuadMesh().Indices)),
			"end-render-pass",
		}
		if got := inst.Device.Commands[cb]; !reflect.DeepEqual(got, want) {
			t.Errorf("command buffer %d:\n got %q\nwant %q", i, got, want)
		}
	}
}

func TestSwapchainRecreate(t *testing.T) {
	s, inst, _ := newSession(t)
	sc := s.Swapchain
	dev := inst.Device
	before := liveCounts(dev)

	for i := 0; i < 2; i++ {
		old := sc.Handle
		sc.MarkStale()
		if sc.State() != SwapchainStale {
			t.Fatalf("state = %s after MarkStale", sc.State())
		}
		if err := sc.Recreate(); err != nil {
			t.Fatal(err)
		}
		if sc.State() != SwapchainActive {
			t.Fatalf("state = %s after Recreate", sc.State())
		}
		if sc.Handle == old {
			t.Error("handle not replaced")
		}
		if got := dev.Swapchains[sc.Handle].Old; got != old {
			t.Errorf("new swapchain created against %d, want %d", got, old)
		}
		if dev.IsLive(uint64(old)) {
			t.Error("old swapchain still live")
		}
	}

	if after := liveCounts(dev); !reflect.DeepEqual(before, after) {
		t.Errorf("live objects changed across recreation:\nbefore %v\n after %v", before, after)
	}
	if dev.Live(haltest.KindSwapchain) != 1 {
		t.Errorf("live swapchains = %d", dev.Live(haltest.KindSwapchain))
	}
	checkNoMisuse(t, dev)
}

func TestSwapchainInvalidate(t *testing.T) {
	s, _, _ := newSession(t)
	sc := s.Swapchain

	sc.Invalidate(0, 300)
	sc.Invalidate(300, 0)
	if sc.State() != SwapchainActive {
		t.Errorf("zero size invalidated swapchain: %s", sc.State())
	}
	sc.Invalidate(300, 200)
	if sc.State() != SwapchainStale {
		t.Errorf("state = %s, want stale", sc.State())
	}
}

func TestSwapchainZeroExtentDefers(t *testing.T) {
	a := haltest.DefaultAdapter()
	a.Capabilities.CurrentExtent = vk.Extent2D{Width: vk.MaxUint32, Height: vk.MaxUint32}
	a.Capabilities.MinImageExtent = vk.Extent2D{}
	inst := haltest.NewInstance(a)
	win := &fakeWindow{width: 100, height: 100, closeAfter: -1}
	s, err := NewSession(inst, inst.NewSurface(), win, Assets{Shaders: testShaders(), Texture: testTexture(2, 2)})
	if err != nil {
		t.Fatal(err)
	}
	sc := s.Swapchain
	dev := inst.Device
	handle := sc.Handle
	before := liveCounts(dev)

	win.width, win.height = 0, 0
	sc.MarkStale()
	if err := sc.Recreate(); err != nil {
		t.Fatal(err)
	}
	if sc.State() != SwapchainStale || sc.Handle != handle {
		t.Errorf("state %s, handle %d; want stale with handle %d", sc.State(), sc.Handle, handle)
	}
	if after := liveCounts(dev); !reflect.DeepEqual(before, after) {
		t.Errorf("deferred recreate changed live objects: %v -> %v", before, after)
	}

	win.width, win.height = 64, 48
	if err := sc.Recreate(); err != nil {
		t.Fatal(err)
	}
	if sc.State() != SwapchainActive || sc.Extent != (vk.Extent2D{Width: 64, Height: 48}) {
		t.Errorf("state %s, extent %+v", sc.State(), sc.Extent)
	}
	if sc.Depth.Width != 64 || sc.Depth.Height != 48 {
		t.Errorf("depth target %dx%d", sc.Depth.Width, sc.Depth.Height)
	}
	checkNoMisuse(t, dev)
}

func TestSwapchainCreateMinimized(t *testing.T) {
	a := haltest.DefaultAdapter()
	a.Capabilities.CurrentExtent = vk.Extent2D{Width: vk.MaxUint32, Height: vk.MaxUint32}
	a.Capabilities.MinImageExtent = vk.Extent2D{}
	inst := haltest.NewInstance(a)
	win := &fakeWindow{closeAfter: -1}
	s, err := NewSession(inst, inst.NewSurface(), win, Assets{Shaders: testShaders(), Texture: testTexture(2, 2)})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Destroy()
	sc := s.Swapchain
	dev := inst.Device

	if sc.State() != SwapchainStale || sc.Handle != 0 {
		t.Fatalf("state %s, handle %d; want stale with no handle", sc.State(), sc.Handle)
	}
	for _, kind := range []string{haltest.KindSwapchain, haltest.KindFramebuffer, haltest.KindPipeline, haltest.KindRenderPass} {
		if n := dev.Live(kind); n != 0 {
			t.Errorf("live %s = %d while minimized", kind, n)
		}
	}
	if len(sc.Images) != 0 || len(sc.CommandBuffers) != 0 {
		t.Error("dependents built without a swapchain")
	}

	if err := s.Frames.Tick(); err != nil {
		t.Fatal(err)
	}
	if len(dev.Presents) != 0 || sc.State() != SwapchainStale {
		t.Errorf("presents %d, state %s while minimized", len(dev.Presents), sc.State())
	}

	win.width, win.height = 100, 100
	if err := s.Frames.Tick(); err != nil {
		t.Fatal(err)
	}
	if sc.State() != SwapchainActive || sc.Handle == 0 {
		t.Fatalf("state %s, handle %d after restore", sc.State(), sc.Handle)
	}
	if desc := dev.Swapchains[sc.Handle]; desc.Old != 0 {
		t.Errorf("first swapchain created against %d", desc.Old)
	}
	if s.Frames.Frames() != 1 || len(sc.CommandBuffers) != len(sc.Images) {
		t.Errorf("frames %d, command buffers %d for %d images", s.Frames.Frames(), len(sc.CommandBuffers), len(sc.Images))
	}
	checkNoMisuse(t, dev)
}

func TestSwapchainSeparateFamilies(t *testing.T) {
	a := haltest.DefaultAdapter()
	a.Families = []vk.QueueFamilyProperties{
		{QueueFlags: vk.QueueFlags(vk.QueueGraphicsBit), QueueCount: 1},
		{QueueFlags: vk.QueueFlags(vk.QueueComputeBit), QueueCount: 1},
	}
	a.PresentFamily = map[uint32]bool{1: true}
	inst := haltest.NewInstance(a)
	win := &fakeWindow{width: 100, height: 100, closeAfter: -1}
	s, err := NewSession(inst, inst.NewSurface(), win, Assets{Shaders: testShaders(), Texture: testTexture(2, 2)})
	if err != nil {
		t.Fatal(err)
	}
	desc := inst.Device.Swapchains[s.Swapchain.Handle]
	if !reflect.DeepEqual(desc.QueueFamilies, []uint32{0, 1}) {
		t.Errorf("queue families = %v, want [0 1]", desc.QueueFamilies)
	}
}

func TestSwapchainRecreateFailure(t *testing.T) {
	s, inst, _ := newSession(t)
	sc := s.Swapchain
	dev := inst.Device

	dev.Fail["CreateSwapchain"] = vk.ErrorInitializationFailed
	sc.MarkStale()
	if err := sc.Recreate(); !errors.Is(err, ErrSwapchainCreation) {
		t.Fatalf("err = %v, want ErrSwapchainCreation", err)
	}
	if sc.State() != SwapchainStale {
		t.Errorf("state = %s, want stale", sc.State())
	}
	delete(dev.Fail, "CreateSwapchain")

	dev.Fail["WaitIdle"] = vk.ErrorDeviceLost
	if err := sc.Recreate(); !errors.Is(err, ErrSwapchainCreation) {
		t.Fatalf("err = %v, want ErrSwapchainCreation", err)
	}
	if dev.Live(haltest.KindSwapchain) != 1 {
		t.Errorf("live swapchains = %d after failed drain", dev.Live(haltest.KindSwapchain))
	}
	delete(dev.Fail, "WaitIdle")

	if err := sc.Recreate(); err != nil {
		t.Fatal(err)
	}
	if sc.State() != SwapchainActive {
		t.Errorf("state = %s", sc.State())
	}
	checkNoMisuse(t, dev)
}

func TestSwapchainDestroy(t *testing.T) {
	s, inst, _ := newSession(t)
	sc := s.Swapchain
	dev := inst.Device

	sc.Destroy()
	sc.Destroy()
	if sc.State() != SwapchainTornDown {
		t.Errorf("state = %s", sc.State())
	}
	for _, kind := range []string{haltest.KindSwapchain, haltest.KindFramebuffer, haltest.KindRenderPass, haltest.KindPipeline} {
		if dev.Live(kind) != 0 {
			t.Errorf("%s still live", kind)
		}
	}
	// Only the texture view remains.
	if dev.Live(haltest.KindImageView) != 1 {
		t.Errorf("live views = %d, want 1", dev.Live(haltest.KindImageView))
	}
	if err := sc.Recreate(); !errors.Is(err, ErrSwapchainCreation) {
		t.Errorf("Recreate after Destroy err = %v", err)
	}
	sc.MarkStale()
	if sc.State() != SwapchainTornDown {
		t.Errorf("MarkStale revived a destroyed swapchain")
	}
	checkNoMisuse(t, dev)
}

func TestSwapchainStateString(t *testing.T) {
	for s, want := range map[SwapchainState]string{
		SwapchainUninitialized: "uninitialized",
		SwapchainActive:        "active",
		SwapchainStale:         "stale",
		SwapchainTornDown:      "torn down",
		SwapchainState(42):     "unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(s), got, want)
		}
	}
}
