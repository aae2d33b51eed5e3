package forgevk

import (
	"encoding/binary"
	"image"
	"image/color"
	"testing"

	"github.com/S96/ForgeVk/hal/haltest"
)

// spirv returns a minimal module that passes ValidateSPIRV.
func spirv() []byte {
	code := make([]byte, 20)
	binary.LittleEndian.PutUint32(code, SPIRVMagic)
	return code
}

func testShaders() ShaderSet {
	return ShaderSet{Vertex: spirv(), Fragment: spirv()}
}

func testTexture(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xff})
		}
	}
	return img
}

type fakeWindow struct {
	width, height int
	// closeAfter is the number of polls after which ShouldClose reports
	// true. Negative never closes.
	closeAfter int
	polls      int
}

func (w *fakeWindow) FramebufferSize() (int, int) { return w.width, w.height }

func (w *fakeWindow) ShouldClose() bool {
	return w.closeAfter >= 0 && w.polls >= w.closeAfter
}

func (w *fakeWindow) PollEvents() { w.polls++ }

// newContext returns a context with a device created on the first suitable
// adapter.
func newContext(t *testing.T, adapters ...*haltest.Adapter) (*DeviceContext, *haltest.Instance) {
	t.Helper()
	if len(adapters) == 0 {
		adapters = []*haltest.Adapter{haltest.DefaultAdapter()}
	}
	inst := haltest.NewInstance(adapters...)
	ctx := NewDeviceContext(inst, inst.NewSurface(), nil)
	a, err := ctx.SelectAdapter()
	if err != nil {
		t.Fatalf("SelectAdapter: %v", err)
	}
	if err := ctx.CreateDeviceAndQueues(a); err != nil {
		t.Fatalf("CreateDeviceAndQueues: %v", err)
	}
	return ctx, inst
}

func newResources(t *testing.T, adapters ...*haltest.Adapter) (*ResourceManager, *haltest.Device) {
	t.Helper()
	ctx, inst := newContext(t, adapters...)
	res, err := NewResourceManager(ctx)
	if err != nil {
		t.Fatalf("NewResourceManager: %v", err)
	}
	return res, inst.Device
}

// newSession builds a session over a default adapter and a 100x100 window
// that never closes.
func newSession(t *testing.T, opts ...Option) (*Session, *haltest.Instance, *fakeWindow) {
	t.Helper()
	inst := haltest.NewInstance(haltest.DefaultAdapter())
	win := &fakeWindow{width: 100, height: 100, closeAfter: -1}
	s, err := NewSession(inst, inst.NewSurface(), win, Assets{
		Shaders: testShaders(),
		Texture: testTexture(4, 4),
	}, opts...)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s, inst, win
}

// liveCounts snapshots live object counts per kind.
func liveCounts(dev *haltest.Device) map[string]int {
	out := make(map[string]int)
	for _, k := range []string{
		haltest.KindBuffer, haltest.KindImage, haltest.KindMemory, haltest.KindImageView,
		haltest.KindSampler, haltest.KindShaderModule, haltest.KindRenderPass, haltest.KindFramebuffer,
		haltest.KindDescriptorSetLayout, haltest.KindDescriptorPool, haltest.KindPipelineLayout,
		haltest.KindPipeline, haltest.KindCommandPool, haltest.KindCommandBuffer,
		haltest.KindSemaphore, haltest.KindSwapchain,
	} {
		out[k] = dev.Live(k)
	}
	return out
}

func checkNoMisuse(t *testing.T, dev *haltest.Device) {
	t.Helper()
	for _, m := range dev.Misuse {
		t.Errorf("misuse: %s", m)
	}
}
