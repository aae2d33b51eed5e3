package forgevk

import (
	"github.com/cockroachdb/errors"
)

// Error kinds. Every error returned by this package is marked with exactly
// one of them; match with errors.Is.
var (
	ErrNoAdapter        = errors.New("no suitable adapter")
	ErrQueueUnavailable = errors.New("queue family unavailable")
	ErrDeviceCreation   = errors.New("device creation failed")

	ErrNoSuitableMemory      = errors.New("no suitable memory type")
	ErrResourceCreation      = errors.New("resource creation failed")
	ErrMemoryAllocation      = errors.New("memory allocation failed")
	ErrUnsupportedTransition = errors.New("unsupported layout transition")
	ErrNoSupportedFormat     = errors.New("no supported format")

	ErrShaderModule     = errors.New("shader module creation failed")
	ErrPipelineCreation = errors.New("pipeline creation failed")

	ErrSwapchainCreation = errors.New("swapchain creation failed")
	ErrSurfaceLost       = errors.New("surface lost")
	ErrSwapchainAcquire  = errors.New("swapchain image acquisition failed")
	ErrSubmit            = errors.New("queue submission failed")
	ErrPresent           = errors.New("presentation failed")
)

// markf wraps cause with a message and marks the result with kind. A nil
// cause produces a fresh error.
func markf(kind, cause error, format string, args ...interface{}) error {
	var err error
	if cause == nil {
		err = errors.Newf(format, args...)
	} else {
		err = errors.Wrapf(cause, format, args...)
	}
	return errors.Mark(errors.Wrap(err, kind.Error()), kind)
}
