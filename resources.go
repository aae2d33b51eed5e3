package forgevk

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/exp/slog"

	"github.com/S96/ForgeVk/hal"
)

// DepthFormats is the depth format preference order.
var DepthFormats = []vk.Format{
	vk.FormatD32Sfloat,
	vk.FormatD32SfloatS8Uint,
	vk.FormatD24UnormS8Uint,
}

// ResourceManager creates memory-backed resources and runs setup-time
// transfers. It owns the command pool; other components allocate command
// buffers through it.
type ResourceManager struct {
	ctx  *DeviceContext
	pool hal.CommandPool
	log  *slog.Logger
}

// NewResourceManager creates the command pool on the graphics family.
func NewResourceManager(ctx *DeviceContext, opts ...Option) (*ResourceManager, error) {
	o := buildOptions(opts)
	pool, err := ctx.Device.CreateCommandPool(ctx.Families.Graphics,
		vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit))
	if err != nil {
		return nil, markf(ErrResourceCreation, err, "create command pool")
	}
	return &ResourceManager{ctx: ctx, pool: pool, log: o.log}, nil
}

// Destroy destroys the command pool and every buffer still allocated from
// it.
func (m *ResourceManager) Destroy() {
	if m.pool != 0 {
		m.ctx.Device.DestroyCommandPool(m.pool)
		m.pool = 0
	}
}

// AllocateCommandBuffers allocates primary command buffers from the pool.
func (m *ResourceManager) AllocateCommandBuffers(n int) ([]hal.CommandBuffer, error) {
	cbs, err := m.ctx.Device.AllocateCommandBuffers(m.pool, uint32(n))
	if err != nil {
		return nil, markf(ErrResourceCreation, err, "allocate %d command buffers", n)
	}
	return cbs, nil
}

// FreeCommandBuffers returns command buffers to the pool.
func (m *ResourceManager) FreeCommandBuffers(cbs []hal.CommandBuffer) {
	if len(cbs) == 0 {
		return
	}
	m.ctx.Device.FreeCommandBuffers(m.pool, cbs)
}

// OneShot records a single-use command buffer with record, submits it to
// the graphics queue and waits for the queue to go idle. The command buffer
// is released on every path.
func (m *ResourceManager) OneShot(record func(cb hal.CommandBuffer) error) error {
	dev := m.ctx.Device
	cbs, err := m.AllocateCommandBuffers(1)
	if err != nil {
		return err
	}
	defer m.FreeCommandBuffers(cbs)
	cb := cbs[0]

	if err := dev.BeginCommandBuffer(cb, vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)); err != nil {
		return markf(ErrSubmit, err, "begin one-shot commands")
	}
	if err := record(cb); err != nil {
		// The buffer is freed in the recording state, which is allowed.
		return err
	}
	if err := dev.EndCommandBuffer(cb); err != nil {
		return markf(ErrSubmit, err, "end one-shot commands")
	}
	if err := dev.QueueSubmit(m.ctx.GraphicsQueue, hal.SubmitDesc{CommandBuffer: cb}); err != nil {
		return markf(ErrSubmit, err, "submit one-shot commands")
	}
	if err := dev.QueueWaitIdle(m.ctx.GraphicsQueue); err != nil {
		return markf(ErrSubmit, err, "wait for one-shot commands")
	}
	return nil
}

// UploadViaStaging copies src into dst through a temporary host-visible
// buffer and a one-shot transfer. It blocks until the transfer completes.
// Images must already be in transfer-destination layout.
func (m *ResourceManager) UploadViaStaging(src []byte, dst StagingTarget) error {
	size := vk.DeviceSize(len(src))
	if size == 0 {
		return nil
	}
	if size > dst.capacity() {
		return markf(ErrResourceCreation, nil, "upload of %d bytes exceeds destination size %d", size, dst.capacity())
	}
	staging, err := m.CreateBuffer(size,
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return err
	}
	defer staging.Destroy()

	dev := m.ctx.Device
	data, err := dev.MapMemory(staging.Memory, size)
	if err != nil {
		return markf(ErrMemoryAllocation, err, "map staging memory")
	}
	copy(data, src)
	dev.UnmapMemory(staging.Memory)

	m.log.Debug("staged upload", "bytes", size)
	return m.OneShot(func(cb hal.CommandBuffer) error {
		dst.recordCopy(dev, cb, staging.Handle, size)
		return nil
	})
}

type transition struct {
	srcAccess, dstAccess vk.AccessFlags
	srcStage, dstStage   vk.PipelineStageFlags
}

type layoutPair struct {
	from, to vk.ImageLayout
}

// transitions is the closed set of layout changes the renderer performs.
var transitions = map[layoutPair]transition{
	{vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal}: {
		srcAccess: 0,
		dstAccess: vk.AccessFlags(vk.AccessTransferWriteBit),
		srcStage:  vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		dstStage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
	},
	{vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal}: {
		srcAccess: vk.AccessFlags(vk.AccessTransferWriteBit),
		dstAccess: vk.AccessFlags(vk.AccessShaderReadBit),
		srcStage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		dstStage:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
	},
	{vk.ImageLayoutUndefined, vk.ImageLayoutDepthStencilAttachmentOptimal}: {
		srcAccess: 0,
		dstAccess: vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit),
		srcStage:  vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		dstStage:  vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit),
	},
}

func lookupTransition(from, to vk.ImageLayout) (transition, error) {
	t, ok := transitions[layoutPair{from, to}]
	if !ok {
		return t, markf(ErrUnsupportedTransition, nil, "layout %d to %d", from, to)
	}
	return t, nil
}

// TransitionImageLayout moves img between layouts with a single barrier in
// a one-shot command buffer.
func (m *ResourceManager) TransitionImageLayout(img hal.Image, format vk.Format, from, to vk.ImageLayout) error {
	t, err := lookupTransition(from, to)
	if err != nil {
		return err
	}
	aspect := vk.ImageAspectFlags(vk.ImageAspectColorBit)
	if to == vk.ImageLayoutDepthStencilAttachmentOptimal {
		aspect = vk.ImageAspectFlags(vk.ImageAspectDepthBit)
		if HasStencil(format) {
			aspect |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
		}
	}
	m.log.Debug("layout transition", "image", img, "from", from, "to", to)
	return m.OneShot(func(cb hal.CommandBuffer) error {
		m.ctx.Device.CmdPipelineBarrier(cb, t.srcStage, t.dstStage, hal.ImageBarrier{
			Image:     img,
			OldLayout: from,
			NewLayout: to,
			SrcAccess: t.srcAccess,
			DstAccess: t.dstAccess,
			Aspect:    aspect,
		})
		return nil
	})
}

// HasStencil reports whether a depth format carries a stencil component.
func HasStencil(f vk.Format) bool {
	return f == vk.FormatD32SfloatS8Uint || f == vk.FormatD24UnormS8Uint
}

// FindSupportedFormat returns the first candidate supporting features with
// the given tiling. All candidates are checked before failing.
func (m *ResourceManager) FindSupportedFormat(candidates []vk.Format, tiling vk.ImageTiling, features vk.FormatFeatureFlags) (vk.Format, error) {
	for _, f := range candidates {
		props := m.ctx.Instance.FormatProperties(m.ctx.Adapter, f)
		supported := props.OptimalTilingFeatures
		if tiling == vk.ImageTilingLinear {
			supported = props.LinearTilingFeatures
		}
		if supported&features == features {
			return f, nil
		}
	}
	return vk.FormatUndefined, markf(ErrNoSupportedFormat, nil, "none of %d candidates support features %#x", len(candidates), features)
}

// FindDepthFormat picks the depth attachment format.
func (m *ResourceManager) FindDepthFormat() (vk.Format, error) {
	return m.FindSupportedFormat(DepthFormats, vk.ImageTilingOptimal,
		vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit))
}

// CreateImageView creates a 2D view over the first mip and layer.
func (m *ResourceManager) CreateImageView(img hal.Image, format vk.Format, aspect vk.ImageAspectFlags) (hal.ImageView, error) {
	v, err := m.ctx.Device.CreateImageView(img, format, aspect)
	if err != nil {
		return 0, markf(ErrResourceCreation, err, "create image view")
	}
	return v, nil
}

// CreateDeviceLocalBuffer creates a device-local buffer with usage and fills
// it with data through a staging upload.
func (m *ResourceManager) CreateDeviceLocalBuffer(data []byte, usage vk.BufferUsageFlags) (*Buffer, error) {
	buf, err := m.CreateBuffer(vk.DeviceSize(len(data)),
		usage|vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return nil, err
	}
	if err := m.UploadViaStaging(data, buf); err != nil {
		buf.Destroy()
		return nil, err
	}
	return buf, nil
}

// CreateVertexBuffer uploads vertices into an immutable device-local buffer.
func (m *ResourceManager) CreateVertexBuffer(vertices []Vertex) (*Buffer, error) {
	if len(vertices) == 0 {
		return nil, markf(ErrResourceCreation, nil, "empty vertex data")
	}
	return m.CreateDeviceLocalBuffer(VertexBytes(vertices), vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit))
}

// CreateIndexBuffer uploads 32-bit indices into an immutable device-local
// buffer.
func (m *ResourceManager) CreateIndexBuffer(indices []uint32) (*Buffer, error) {
	if len(indices) == 0 {
		return nil, markf(ErrResourceCreation, nil, "empty index data")
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(&indices[0])), len(indices)*4)
	return m.CreateDeviceLocalBuffer(data, vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit))
}

// UniformBuffer is a host-visible uniform buffer mapped for its whole
// lifetime.
type UniformBuffer struct {
	*Buffer
	data []byte
}

// CreateUniformBuffer creates and maps a host-coherent uniform buffer.
func (m *ResourceManager) CreateUniformBuffer(size vk.DeviceSize) (*UniformBuffer, error) {
	buf, err := m.CreateBuffer(size,
		vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return nil, err
	}
	data, err := m.ctx.Device.MapMemory(buf.Memory, size)
	if err != nil {
		buf.Destroy()
		return nil, markf(ErrMemoryAllocation, err, "map uniform buffer")
	}
	return &UniformBuffer{Buffer: buf, data: data}, nil
}

// Write copies p to the start of the mapped range.
func (u *UniformBuffer) Write(p []byte) {
	copy(u.data, p)
}

// Destroy unmaps, destroys and frees the buffer.
func (u *UniformBuffer) Destroy() {
	if u == nil || u.Buffer == nil || u.dev == nil {
		return
	}
	u.dev.UnmapMemory(u.Memory)
	u.data = nil
	u.Buffer.Destroy()
}
