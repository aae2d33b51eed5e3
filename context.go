package forgevk

import (
	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/exp/slog"

	"github.com/S96/ForgeVk/hal"
)

// SwapchainExtension is the device extension every adapter must expose.
const SwapchainExtension = "VK_KHR_swapchain"

// QueueFamilies holds the queue family indices used by the device. Graphics
// and Present are equal when one family can do both.
type QueueFamilies struct {
	Graphics uint32
	Present  uint32
}

// Separate is true when presentation needs its own family.
func (q QueueFamilies) Separate() bool {
	return q.Graphics != q.Present
}

// Unique returns the distinct family indices, graphics first.
func (q QueueFamilies) Unique() []uint32 {
	if q.Separate() {
		return []uint32{q.Graphics, q.Present}
	}
	return []uint32{q.Graphics}
}

// DeviceContext owns the driver connection, the target surface and the
// logical device. Every other component receives it by reference. It is
// created first and destroyed last.
type DeviceContext struct {
	Instance hal.Instance
	Surface  hal.Surface
	Adapter  hal.Adapter
	Device   hal.Device

	Families      QueueFamilies
	GraphicsQueue hal.Queue
	PresentQueue  hal.Queue

	Info             hal.AdapterInfo
	MemoryProperties vk.PhysicalDeviceMemoryProperties

	layers   []string
	teardown []teardownFunc
	log      *slog.Logger
}

type teardownFunc struct {
	name string
	fn   func()
}

// NewDeviceContext takes ownership of an instance and a surface created on
// it. layers are enabled on the logical device.
func NewDeviceContext(inst hal.Instance, surface hal.Surface, layers []string, opts ...Option) *DeviceContext {
	o := buildOptions(opts)
	return &DeviceContext{
		Instance: inst,
		Surface:  surface,
		layers:   layers,
		log:      o.log,
	}
}

// SelectAdapter returns the first adapter, in enumeration order, that
// exposes the swapchain extension, can present at least one format and mode
// to the surface and supports anisotropic sampling.
func (c *DeviceContext) SelectAdapter() (hal.Adapter, error) {
	adapters, err := c.Instance.Adapters()
	if err != nil {
		return 0, markf(ErrNoAdapter, err, "enumerate adapters")
	}
	if len(adapters) == 0 {
		return 0, markf(ErrNoAdapter, nil, "no adapters available")
	}
	for _, a := range adapters {
		ok, reason := c.suitable(a)
		info := c.Instance.AdapterInfo(a)
		if !ok {
			c.log.Debug("adapter rejected", "name", info.Name, "reason", reason)
			continue
		}
		c.Adapter = a
		c.Info = info
		c.log.Info("adapter selected", "name", info.Name, "type", info.Type)
		return a, nil
	}
	return 0, markf(ErrNoAdapter, nil, "none of %d adapters qualify", len(adapters))
}

func (c *DeviceContext) suitable(a hal.Adapter) (bool, string) {
	exts, err := c.Instance.DeviceExtensions(a)
	if err != nil {
		return false, err.Error()
	}
	if missing := missingNames([]string{SwapchainExtension}, exts); len(missing) > 0 {
		return false, "missing extensions"
	}
	formats, err := c.Instance.SurfaceFormats(a, c.Surface)
	if err != nil || len(formats) == 0 {
		return false, "no surface formats"
	}
	modes, err := c.Instance.PresentModes(a, c.Surface)
	if err != nil || len(modes) == 0 {
		return false, "no present modes"
	}
	if !c.Instance.AdapterInfo(a).SamplerAnisotropy {
		return false, "no anisotropic sampling"
	}
	return true, ""
}

// FindQueueFamilies returns the first graphics family and the first family
// able to present to the surface.
func (c *DeviceContext) FindQueueFamilies(a hal.Adapter) (QueueFamilies, error) {
	var (
		q                         QueueFamilies
		haveGraphics, havePresent bool
	)
	for i, props := range c.Instance.QueueFamilies(a) {
		family := uint32(i)
		if props.QueueCount == 0 {
			continue
		}
		if !haveGraphics && props.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			q.Graphics = family
			haveGraphics = true
		}
		if !havePresent {
			ok, err := c.Instance.SurfaceSupport(a, family, c.Surface)
			if err != nil {
				return q, markf(ErrQueueUnavailable, err, "query present support of family %d", family)
			}
			if ok {
				q.Present = family
				havePresent = true
			}
		}
		if haveGraphics && havePresent {
			return q, nil
		}
	}
	switch {
	case !haveGraphics:
		return q, markf(ErrQueueUnavailable, nil, "no graphics queue family")
	default:
		return q, markf(ErrQueueUnavailable, nil, "no queue family can present to the surface")
	}
}

// CreateDeviceAndQueues creates the logical device with one queue per
// distinct family and fetches the graphics and present queues.
func (c *DeviceContext) CreateDeviceAndQueues(a hal.Adapter) error {
	families, err := c.FindQueueFamilies(a)
	if err != nil {
		return err
	}
	dev, err := c.Instance.CreateDevice(a, hal.DeviceDesc{
		QueueFamilies:     families.Unique(),
		Extensions:        []string{SwapchainExtension},
		Layers:            c.layers,
		SamplerAnisotropy: true,
	})
	if err != nil {
		return markf(ErrDeviceCreation, err, "create device")
	}
	c.Adapter = a
	c.Info = c.Instance.AdapterInfo(a)
	c.Device = dev
	c.Families = families
	c.GraphicsQueue = dev.Queue(families.Graphics)
	c.PresentQueue = dev.Queue(families.Present)
	c.MemoryProperties = c.Instance.MemoryProperties(a)
	c.log.Info("device created",
		"graphics_family", families.Graphics,
		"present_family", families.Present)
	return nil
}

// OnTeardown registers fn to run during Destroy, before the device is
// destroyed. Functions run in reverse registration order.
func (c *DeviceContext) OnTeardown(name string, fn func()) {
	c.teardown = append(c.teardown, teardownFunc{name: name, fn: fn})
}

// Destroy waits for the device to go idle, runs the registered teardown
// functions in reverse order and then destroys the device, the surface and
// the instance. It is safe to call more than once.
func (c *DeviceContext) Destroy() {
	if c.Device != nil {
		if err := c.Device.WaitIdle(); err != nil {
			c.log.Warn("wait idle before teardown", "err", err)
		}
	}
	for i := len(c.teardown) - 1; i >= 0; i-- {
		c.log.Debug("teardown", "component", c.teardown[i].name)
		c.teardown[i].fn()
	}
	c.teardown = nil
	if c.Device != nil {
		c.Device.Destroy()
		c.Device = nil
	}
	if c.Instance != nil {
		if c.Surface != 0 {
			c.Instance.DestroySurface(c.Surface)
			c.Surface = 0
		}
		c.Instance.Destroy()
		c.Instance = nil
	}
	c.log.Info("device context destroyed")
}

// missingNames returns the entries of required absent from actual.
func missingNames(required, actual []string) []string {
	var missing []string
	for _, req := range required {
		found := false
		for _, act := range actual {
			if req == act {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, req)
		}
	}
	return missing
}
