package forgevk

import (
	"bytes"
	"image"
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/S96/ForgeVk/hal/haltest"
)

func TestCreateTexture(t *testing.T) {
	res, dev := newResources(t)
	tex, err := res.CreateTexture(testTexture(4, 2))
	if err != nil {
		t.Fatal(err)
	}
	if tex.Image.Width != 4 || tex.Image.Height != 2 || tex.Image.Format != TextureFormat {
		t.Errorf("image = %+v", tex.Image)
	}

	wantLayouts := [][2]vk.ImageLayout{
		{vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal},
		{vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal},
	}
	if len(dev.Barriers) != len(wantLayouts) {
		t.Fatalf("barriers = %d, want %d", len(dev.Barriers), len(wantLayouts))
	}
	for i, b := range dev.Barriers {
		if b.OldLayout != wantLayouts[i][0] || b.NewLayout != wantLayouts[i][1] || b.Image != tex.Image.Handle {
			t.Errorf("barrier %d = %+v", i, b)
		}
	}

	info := dev.Samplers[tex.Sampler]
	if info.AnisotropyEnable != vk.True || info.MaxAnisotropy != MaxAnisotropy {
		t.Errorf("sampler anisotropy = %v/%v", info.AnisotropyEnable, info.MaxAnisotropy)
	}
	if info.AddressModeU != vk.SamplerAddressModeRepeat || info.MagFilter != vk.FilterLinear {
		t.Errorf("sampler = %+v", info)
	}

	want := map[string]int{
		haltest.KindImage:         1,
		haltest.KindMemory:        1,
		haltest.KindImageView:     1,
		haltest.KindSampler:       1,
		haltest.KindBuffer:        0,
		haltest.KindCommandBuffer: 0,
	}
	for kind, n := range want {
		if got := dev.Live(kind); got != n {
			t.Errorf("live %s = %d, want %d", kind, got, n)
		}
	}

	tex.Destroy()
	tex.Destroy()
	for _, kind := range []string{haltest.KindImage, haltest.KindMemory, haltest.KindImageView, haltest.KindSampler} {
		if dev.Live(kind) != 0 {
			t.Errorf("%s live after Destroy", kind)
		}
	}
	checkNoMisuse(t, dev)
}

func TestCreateTextureAnisotropyLimit(t *testing.T) {
	a := haltest.DefaultAdapter()
	a.Info.MaxSamplerAnisotropy = 4
	res, dev := newResources(t, a)
	tex, err := res.CreateTexture(testTexture(2, 2))
	if err != nil {
		t.Fatal(err)
	}
	if got := dev.Samplers[tex.Sampler].MaxAnisotropy; got != 4 {
		t.Errorf("max anisotropy = %v, want 4", got)
	}
}

func TestCreateTextureFailure(t *testing.T) {
	res, dev := newResources(t)
	if _, err := res.CreateTexture(image.NewRGBA(image.Rect(0, 0, 0, 4))); !errors.Is(err, ErrResourceCreation) {
		t.Errorf("empty texture err = %v", err)
	}

	dev.Fail["CreateSampler"] = vk.ErrorOutOfHostMemory
	if _, err := res.CreateTexture(testTexture(2, 2)); !errors.Is(err, ErrResourceCreation) {
		t.Fatalf("err = %v, want ErrResourceCreation", err)
	}
	for _, kind := range []string{haltest.KindImage, haltest.KindMemory, haltest.KindImageView, haltest.KindBuffer} {
		if dev.Live(kind) != 0 {
			t.Errorf("%s leaked after failed texture", kind)
		}
	}
	checkNoMisuse(t, dev)
}

func TestTightPixels(t *testing.T) {
	img := testTexture(4, 4)
	if got := tightPixels(img); &got[0] != &img.Pix[0] {
		t.Error("tightly packed image was copied")
	}

	sub := img.SubImage(image.Rect(1, 1, 3, 3)).(*image.RGBA)
	got := tightPixels(sub)
	if len(got) != 2*2*4 {
		t.Fatalf("len = %d, want 16", len(got))
	}
	want := append(append([]byte(nil), img.Pix[img.PixOffset(1, 1):img.PixOffset(3, 1)]...),
		img.Pix[img.PixOffset(1, 2):img.PixOffset(3, 2)]...)
	if !bytes.Equal(got, want) {
		t.Errorf("pixels = %v, want %v", got, want)
	}
}

func TestDescriptors(t *testing.T) {
	res, dev := newResources(t)
	ctx := res.ctx
	pipes, err := NewPipelineBuilder(ctx, testShaders())
	if err != nil {
		t.Fatal(err)
	}
	ubo, err := res.CreateUniformBuffer(UniformSize)
	if err != nil {
		t.Fatal(err)
	}
	tex, err := res.CreateTexture(testTexture(2, 2))
	if err != nil {
		t.Fatal(err)
	}

	d, err := NewDescriptors(ctx, pipes.SetLayout)
	if err != nil {
		t.Fatal(err)
	}
	d.Write(ubo, tex)
	writes := dev.Descriptors[d.Set]
	if len(writes) != 2 {
		t.Fatalf("writes = %d, want 2", len(writes))
	}
	if w := writes[0]; w.Binding != 0 || w.Type != vk.DescriptorTypeUniformBuffer || w.Buffer != ubo.Handle || w.Range != UniformSize {
		t.Errorf("uniform write = %+v", w)
	}
	if w := writes[1]; w.Binding != 1 || w.Type != vk.DescriptorTypeCombinedImageSampler ||
		w.View != tex.View || w.Sampler != tex.Sampler || w.ImageLayout != vk.ImageLayoutShaderReadOnlyOptimal {
		t.Errorf("sampler write = %+v", w)
	}

	d.Destroy()
	d.Destroy()
	if dev.Live(haltest.KindDescriptorPool) != 0 {
		t.Error("descriptor pool still live")
	}
	checkNoMisuse(t, dev)
}

func TestDescriptorsAllocateFailure(t *testing.T) {
	res, dev := newResources(t)
	dev.Fail["AllocateDescriptorSet"] = vk.ErrorOutOfDeviceMemory
	if _, err := NewDescriptors(res.ctx, 1); !errors.Is(err, ErrResourceCreation) {
		t.Fatalf("err = %v, want ErrResourceCreation", err)
	}
	if dev.Live(haltest.KindDescriptorPool) != 0 {
		t.Error("pool leaked")
	}
}
