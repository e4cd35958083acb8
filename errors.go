package vkr

import (
	"errors"
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// Error kinds surfaced by the package. Device and builder operations wrap
// these with fmt.Errorf and %w, so callers match with errors.Is.
var (
	ErrOutOfMemory         = errors.New("out of host or device memory")
	ErrDeviceLost          = errors.New("device lost")
	ErrInvalidHandle       = errors.New("invalid handle")
	ErrUnsupportedFormat   = errors.New("unsupported format")
	ErrSwapchainOutOfDate  = errors.New("swapchain out of date")
	ErrSwapchainSuboptimal = errors.New("swapchain suboptimal")
	ErrTimeout             = errors.New("timeout")
)

// InvalidGraphError reports a frame graph the compiler rejected. The frame
// is discarded and no GPU work is recorded; device state is unchanged.
type InvalidGraphError struct {
	Reason string
}

func (e *InvalidGraphError) Error() string {
	return "invalid graph: " + e.Reason
}

func invalidGraphf(format string, args ...interface{}) error {
	return &InvalidGraphError{Reason: fmt.Sprintf(format, args...)}
}

// BackendError carries a raw Vulkan result code for failures that have no
// more specific kind.
type BackendError struct {
	Code vk.Result
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("vulkan error (code %d)", e.Code)
}

// vkResult converts a Vulkan result code to one of the package error kinds.
// Success codes, including Suboptimal, map to nil; callers that care about
// Suboptimal inspect the code directly.
func vkResult(ret vk.Result) error {
	switch ret {
	case vk.Success, vk.Suboptimal:
		return nil
	case vk.Timeout:
		return ErrTimeout
	case vk.ErrorOutOfHostMemory, vk.ErrorOutOfDeviceMemory:
		return ErrOutOfMemory
	case vk.ErrorDeviceLost:
		return ErrDeviceLost
	case vk.ErrorOutOfDate:
		return ErrSwapchainOutOfDate
	case vk.ErrorFormatNotSupported:
		return ErrUnsupportedFormat
	default:
		return &BackendError{Code: ret}
	}
}
