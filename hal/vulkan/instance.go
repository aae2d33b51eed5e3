// Package vulkan implements hal on top of the vulkan-go bindings.
package vulkan

import (
	"context"
	"os"
	"runtime"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/exp/slog"

	"github.com/S96/ForgeVk/hal"
)

// portabilityEnumeration is VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR.
const portabilityEnumeration = vk.InstanceCreateFlags(0x00000001)

const portabilityExtension = "VK_KHR_portability_enumeration"

// Config describes the instance to create.
type Config struct {
	AppName string
	// Extensions are required instance extensions, usually the ones the
	// windowing system needs.
	Extensions []string
	// Layers are enabled when present; missing layers are logged.
	Layers []string
	// Debug installs a debug report callback.
	Debug bool
	Log   *slog.Logger
}

// Instance is a hal.Instance backed by a vk.Instance.
type Instance struct {
	handle   vk.Instance
	debug    vk.DebugReportCallback
	gpus     []vk.PhysicalDevice
	surfaces *table[hal.Surface, vk.Surface]
	log      *slog.Logger
}

var _ hal.Instance = (*Instance)(nil)

// NewInstance creates the instance and enumerates physical devices. The
// loader must already be initialized with vk.Init.
func NewInstance(cfg Config) (*Instance, error) {
	log := reportLogger(cfg.Log)
	actual, err := InstanceExtensions()
	if err != nil {
		return nil, err
	}
	required := append([]string(nil), cfg.Extensions...)
	if cfg.Debug {
		required = append(required, "VK_EXT_debug_report")
	}
	var flags vk.InstanceCreateFlags
	if runtime.GOOS == "darwin" {
		flags = portabilityEnumeration
		required = append(required, portabilityExtension)
	}
	extensions, missing := checkExisting(actual, required)
	if len(missing) > 0 {
		return nil, errors.Newf("missing instance extensions: %v", missing)
	}

	var layers []string
	if len(cfg.Layers) > 0 {
		available, err := ValidationLayers()
		if err != nil {
			return nil, err
		}
		layers, missing = checkExisting(available, cfg.Layers)
		if len(missing) > 0 {
			log.Warn("validation layers unavailable", "layers", missing)
		}
	}
	log.Debug("creating instance", "extensions", extensions, "layers", layers)

	var instance vk.Instance
	ret := vk.CreateInstance(&vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:              vk.StructureTypeApplicationInfo,
			ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
			ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
			PApplicationName:   safeString(cfg.AppName),
			PEngineName:        "forgevk\x00",
		},
		Flags:                   flags,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     safeStrings(layers),
	}, nil, &instance)
	if isError(ret) {
		return nil, newError("vkCreateInstance", ret)
	}
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, errors.Wrap(err, "init instance")
	}
	i := &Instance{
		handle:   instance,
		surfaces: newTable[hal.Surface, vk.Surface](),
		log:      log,
	}

	if cfg.Debug {
		ret := vk.CreateDebugReportCallback(instance, &vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: i.debugReport,
		}, nil, &i.debug)
		if isError(ret) {
			i.Destroy()
			return nil, newError("vkCreateDebugReportCallbackEXT", ret)
		}
		log.Debug("debug report callback installed")
	}

	var count uint32
	ret = vk.EnumeratePhysicalDevices(instance, &count, nil)
	if isError(ret) {
		i.Destroy()
		return nil, newError("vkEnumeratePhysicalDevices", ret)
	}
	i.gpus = make([]vk.PhysicalDevice, count)
	ret = vk.EnumeratePhysicalDevices(instance, &count, i.gpus)
	if isError(ret) {
		i.Destroy()
		return nil, newError("vkEnumeratePhysicalDevices", ret)
	}
	return i, nil
}

// Handle returns the underlying instance.
func (i *Instance) Handle() vk.Instance {
	return i.handle
}

// CreateSurface asks the window system for a surface on this instance.
func (i *Instance) CreateSurface(p hal.SurfaceProvider) (hal.Surface, error) {
	ptr, err := p.CreateWindowSurface(i.handle, nil)
	if err != nil {
		return 0, errors.Wrap(err, "create window surface")
	}
	s := vk.SurfaceFromPointer(ptr)
	if s == vk.NullSurface {
		return 0, errors.New("window system returned a null surface")
	}
	return i.surfaces.put(s), nil
}

// reportLogger returns l, or a stderr logger when l is nil.
func reportLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func (i *Instance) debugReport(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
	object uint64, location uint, messageCode int32, pLayerPrefix string,
	pMessage string, pUserData unsafe.Pointer) vk.Bool32 {

	level := slog.LevelInfo
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		level = slog.LevelError
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit|vk.DebugReportPerformanceWarningBit) != 0:
		level = slog.LevelWarn
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		level = slog.LevelDebug
	}
	i.log.Log(context.Background(), level, "Validation Layer: "+pMessage,
		"layer", pLayerPrefix,
		"code", messageCode)
	return vk.Bool32(vk.False)
}

func (i *Instance) gpu(a hal.Adapter) vk.PhysicalDevice {
	idx := int(a) - 1
	if idx < 0 || idx >= len(i.gpus) {
		return nil
	}
	return i.gpus[idx]
}

func (i *Instance) Adapters() ([]hal.Adapter, error) {
	out := make([]hal.Adapter, len(i.gpus))
	for n := range i.gpus {
		out[n] = hal.Adapter(n + 1)
	}
	return out, nil
}

func (i *Instance) AdapterInfo(a hal.Adapter) hal.AdapterInfo {
	gpu := i.gpu(a)
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(gpu, &props)
	props.Deref()
	props.Limits.Deref()
	var features vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(gpu, &features)
	features.Deref()
	return hal.AdapterInfo{
		Name:                 vk.ToString(props.DeviceName[:]),
		Type:                 props.DeviceType,
		SamplerAnisotropy:    features.SamplerAnisotropy == vk.True,
		MaxSamplerAnisotropy: props.Limits.MaxSamplerAnisotropy,
	}
}

func (i *Instance) DeviceExtensions(a hal.Adapter) ([]string, error) {
	return DeviceExtensions(i.gpu(a))
}

func (i *Instance) QueueFamilies(a hal.Adapter) []vk.QueueFamilyProperties {
	gpu := i.gpu(a)
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, nil)
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, props)
	for n := range props {
		props[n].Deref()
	}
	return props
}

func (i *Instance) MemoryProperties(a hal.Adapter) vk.PhysicalDeviceMemoryProperties {
	var props vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(i.gpu(a), &props)
	props.Deref()
	for n := uint32(0); n < props.MemoryTypeCount; n++ {
		props.MemoryTypes[n].Deref()
	}
	for n := uint32(0); n < props.MemoryHeapCount; n++ {
		props.MemoryHeaps[n].Deref()
	}
	return props
}

func (i *Instance) FormatProperties(a hal.Adapter, format vk.Format) vk.FormatProperties {
	var props vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(i.gpu(a), format, &props)
	props.Deref()
	return props
}

func (i *Instance) SurfaceSupport(a hal.Adapter, family uint32, s hal.Surface) (bool, error) {
	var supported vk.Bool32
	ret := vk.GetPhysicalDeviceSurfaceSupport(i.gpu(a), family, i.surfaces.get(s), &supported)
	if isError(ret) {
		return false, newError("vkGetPhysicalDeviceSurfaceSupportKHR", ret)
	}
	return supported.B(), nil
}

func (i *Instance) SurfaceCapabilities(a hal.Adapter, s hal.Surface) (vk.SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	ret := vk.GetPhysicalDeviceSurfaceCapabilities(i.gpu(a), i.surfaces.get(s), &caps)
	if isError(ret) {
		return caps, newError("vkGetPhysicalDeviceSurfaceCapabilitiesKHR", ret)
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	return caps, nil
}

func (i *Instance) SurfaceFormats(a hal.Adapter, s hal.Surface) ([]vk.SurfaceFormat, error) {
	gpu, surface := i.gpu(a), i.surfaces.get(s)
	var count uint32
	ret := vk.GetPhysicalDeviceSurfaceFormats(gpu, surface, &count, nil)
	if isError(ret) {
		return nil, newError("vkGetPhysicalDeviceSurfaceFormatsKHR", ret)
	}
	formats := make([]vk.SurfaceFormat, count)
	ret = vk.GetPhysicalDeviceSurfaceFormats(gpu, surface, &count, formats)
	if isError(ret) {
		return nil, newError("vkGetPhysicalDeviceSurfaceFormatsKHR", ret)
	}
	for n := range formats {
		formats[n].Deref()
	}
	return formats, nil
}

func (i *Instance) PresentModes(a hal.Adapter, s hal.Surface) ([]vk.PresentMode, error) {
	gpu, surface := i.gpu(a), i.surfaces.get(s)
	var count uint32
	ret := vk.GetPhysicalDeviceSurfacePresentModes(gpu, surface, &count, nil)
	if isError(ret) {
		return nil, newError("vkGetPhysicalDeviceSurfacePresentModesKHR", ret)
	}
	modes := make([]vk.PresentMode, count)
	ret = vk.GetPhysicalDeviceSurfacePresentModes(gpu, surface, &count, modes)
	if isError(ret) {
		return nil, newError("vkGetPhysicalDeviceSurfacePresentModesKHR", ret)
	}
	return modes, nil
}

// CreateDevice creates a logical device with one queue per family.
func (i *Instance) CreateDevice(a hal.Adapter, desc hal.DeviceDesc) (hal.Device, error) {
	gpu := i.gpu(a)
	queueInfos := make([]vk.DeviceQueueCreateInfo, len(desc.QueueFamilies))
	for n, family := range desc.QueueFamilies {
		queueInfos[n] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}
	features := vk.PhysicalDeviceFeatures{}
	if desc.SamplerAnisotropy {
		features.SamplerAnisotropy = vk.True
	}
	extensions := desc.Extensions
	if runtime.GOOS == "darwin" {
		if actual, err := DeviceExtensions(gpu); err == nil {
			if have, _ := checkExisting(actual, []string{"VK_KHR_portability_subset"}); len(have) > 0 {
				extensions = append(append([]string(nil), extensions...), have...)
			}
		}
	}

	var device vk.Device
	ret := vk.CreateDevice(gpu, &vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
		EnabledLayerCount:       uint32(len(desc.Layers)),
		PpEnabledLayerNames:     safeStrings(desc.Layers),
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{features},
	}, nil, &device)
	if isError(ret) {
		return nil, newError("vkCreateDevice", ret)
	}
	d := newDevice(i, device)
	for _, family := range desc.QueueFamilies {
		var q vk.Queue
		vk.GetDeviceQueue(device, family, 0, &q)
		d.queues[family] = q
	}
	return d, nil
}

func (i *Instance) DestroySurface(s hal.Surface) {
	if surface, ok := i.surfaces.take(s); ok {
		vk.DestroySurface(i.handle, surface, nil)
	}
}

// Destroy destroys the debug callback and the instance. Surfaces and
// devices must already be destroyed.
func (i *Instance) Destroy() {
	if i.handle == nil {
		return
	}
	if i.debug != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(i.handle, i.debug, nil)
		i.debug = vk.NullDebugReportCallback
	}
	vk.DestroyInstance(i.handle, nil)
	i.handle = nil
}
