package forgevk

import (
	"image"

	vk "github.com/vulkan-go/vulkan"

	"github.com/S96/ForgeVk/hal"
)

// TextureFormat is the format of sampled textures uploaded from RGBA8
// pixels.
const TextureFormat = vk.FormatR8g8b8a8Unorm

// MaxAnisotropy caps sampler anisotropy below the device limit.
const MaxAnisotropy = 16

// Texture is a sampled image with its view and sampler.
type Texture struct {
	Image   *Image
	View    hal.ImageView
	Sampler hal.Sampler

	dev hal.Device
}

// Destroy releases the sampler, the view and the image with its memory.
func (t *Texture) Destroy() {
	if t == nil || t.dev == nil {
		return
	}
	t.dev.DestroySampler(t.Sampler)
	t.dev.DestroyImageView(t.View)
	t.Image.Destroy()
	t.dev = nil
}

// CreateTexture uploads pixels into a device-local image and leaves it in
// shader-read layout.
func (m *ResourceManager) CreateTexture(pixels *image.RGBA) (_ *Texture, err error) {
	b := pixels.Bounds()
	w, h := uint32(b.Dx()), uint32(b.Dy())
	if w == 0 || h == 0 {
		return nil, markf(ErrResourceCreation, nil, "empty texture %dx%d", w, h)
	}
	img, err := m.CreateImage(w, h, TextureFormat, vk.ImageTilingOptimal,
		vk.ImageUsageFlags(vk.ImageUsageTransferDstBit|vk.ImageUsageSampledBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return nil, err
	}
	tex := &Texture{Image: img, dev: m.ctx.Device}
	defer func() {
		if err != nil {
			tex.Destroy()
		}
	}()

	if err = m.TransitionImageLayout(img.Handle, TextureFormat,
		vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal); err != nil {
		return nil, err
	}
	if err = m.UploadViaStaging(tightPixels(pixels), img); err != nil {
		return nil, err
	}
	if err = m.TransitionImageLayout(img.Handle, TextureFormat,
		vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal); err != nil {
		return nil, err
	}
	if tex.View, err = m.CreateImageView(img.Handle, TextureFormat, vk.ImageAspectFlags(vk.ImageAspectColorBit)); err != nil {
		return nil, err
	}
	if tex.Sampler, err = m.CreateSampler(); err != nil {
		return nil, err
	}
	m.log.Debug("texture created", "width", w, "height", h)
	return tex, nil
}

// CreateSampler creates a linear, repeating, anisotropic sampler.
func (m *ResourceManager) CreateSampler() (hal.Sampler, error) {
	anisotropy := float32(MaxAnisotropy)
	if limit := m.ctx.Info.MaxSamplerAnisotropy; limit > 0 && limit < anisotropy {
		anisotropy = limit
	}
	s, err := m.ctx.Device.CreateSampler(vk.SamplerCreateInfo{
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		AddressModeU:            vk.SamplerAddressModeRepeat,
		AddressModeV:            vk.SamplerAddressModeRepeat,
		AddressModeW:            vk.SamplerAddressModeRepeat,
		AnisotropyEnable:        vk.True,
		MaxAnisotropy:           anisotropy,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
	})
	if err != nil {
		return 0, markf(ErrResourceCreation, err, "create sampler")
	}
	return s, nil
}

// tightPixels returns the pixel rows without stride padding.
func tightPixels(img *image.RGBA) []byte {
	b := img.Bounds()
	row := b.Dx() * 4
	if img.Stride == row && len(img.Pix) == row*b.Dy() {
		return img.Pix
	}
	out := make([]byte, 0, row*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		out = append(out, img.Pix[off:off+row]...)
	}
	return out
}
