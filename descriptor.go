package forgevk

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/S96/ForgeVk/hal"
)

// Descriptors owns a descriptor pool sized for exactly one set and the set
// allocated from it.
type Descriptors struct {
	Pool hal.DescriptorPool
	Set  hal.DescriptorSet

	dev hal.Device
}

// NewDescriptors creates the pool and allocates one set with layout.
func NewDescriptors(ctx *DeviceContext, layout hal.DescriptorSetLayout) (*Descriptors, error) {
	dev := ctx.Device
	pool, err := dev.CreateDescriptorPool(1, []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1},
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: 1},
	})
	if err != nil {
		return nil, markf(ErrResourceCreation, err, "create descriptor pool")
	}
	set, err := dev.AllocateDescriptorSet(pool, layout)
	if err != nil {
		dev.DestroyDescriptorPool(pool)
		return nil, markf(ErrResourceCreation, err, "allocate descriptor set")
	}
	return &Descriptors{Pool: pool, Set: set, dev: dev}, nil
}

// Write points binding 0 at the uniform buffer and binding 1 at the
// texture. The set is rewritten in place.
func (d *Descriptors) Write(ubo *UniformBuffer, tex *Texture) {
	d.dev.UpdateDescriptorSet(d.Set, []hal.DescriptorWrite{
		{
			Binding: 0,
			Type:    vk.DescriptorTypeUniformBuffer,
			Buffer:  ubo.Handle,
			Range:   ubo.Size,
		},
		{
			Binding:     1,
			Type:        vk.DescriptorTypeCombinedImageSampler,
			View:        tex.View,
			Sampler:     tex.Sampler,
			ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
		},
	})
}

// Destroy destroys the pool, which frees the set.
func (d *Descriptors) Destroy() {
	if d == nil || d.Pool == 0 {
		return
	}
	d.dev.DestroyDescriptorPool(d.Pool)
	d.Pool, d.Set = 0, 0
}
