package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/S96/ForgeVk/hal"
)

func isError(ret vk.Result) bool {
	return ret != vk.Success
}

// newError wraps a non-success result with the failing call and a stack
// trace. It returns nil for vk.Success.
func newError(op string, ret vk.Result) error {
	if !isError(ret) {
		return nil
	}
	return errors.WithStack(&hal.ResultError{Op: op, Result: ret})
}
