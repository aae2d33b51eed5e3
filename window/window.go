// Package window opens a glfw window suitable for Vulkan presentation.
package window

import (
	"runtime"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"
)

// Init initializes glfw and the Vulkan loader. It must be called from the
// main thread, which must stay locked for the life of the process.
func Init() error {
	runtime.LockOSThread()
	if err := glfw.Init(); err != nil {
		return errors.Wrap(err, "init glfw")
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return errors.New("glfw: vulkan loader not found")
	}
	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	if err := vk.Init(); err != nil {
		glfw.Terminate()
		return errors.Wrap(err, "init vulkan loader")
	}
	return nil
}

// Terminate releases glfw.
func Terminate() {
	glfw.Terminate()
}

// Window is a resizable window without a client API.
type Window struct {
	w        *glfw.Window
	onResize func(width, height int)
}

// New opens a window. width and height are in screen coordinates.
func New(title string, width, height int) (*Window, error) {
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.Visible, glfw.True)
	w, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "create window %dx%d", width, height)
	}
	win := &Window{w: w}
	w.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		if win.onResize != nil {
			win.onResize(width, height)
		}
	})
	return win, nil
}

// RequiredExtensions lists the instance extensions needed to present to
// the window.
func (w *Window) RequiredExtensions() []string {
	return w.w.GetRequiredInstanceExtensions()
}

// CreateWindowSurface creates a VkSurfaceKHR for the window on instance.
func (w *Window) CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error) {
	return w.w.CreateWindowSurface(instance, allocCallbacks)
}

// FramebufferSize reports the drawable size in pixels. It is 0x0 while the
// window is minimized.
func (w *Window) FramebufferSize() (int, int) {
	return w.w.GetFramebufferSize()
}

func (w *Window) ShouldClose() bool {
	return w.w.ShouldClose()
}

// PollEvents processes pending window events, invoking callbacks.
func (w *Window) PollEvents() {
	glfw.PollEvents()
}

// SetResizeCallback registers fn to run on framebuffer resizes, including
// to 0x0 on minimize.
func (w *Window) SetResizeCallback(fn func(width, height int)) {
	w.onResize = fn
}

// Destroy closes the window.
func (w *Window) Destroy() {
	if w.w != nil {
		w.w.Destroy()
		w.w = nil
	}
}
