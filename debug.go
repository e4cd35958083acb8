package vkr

import (
	"fmt"
	"log"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// DebugSeverity classifies debug channel messages.
type DebugSeverity int

const (
	DebugVerbose DebugSeverity = iota
	DebugInfo
	DebugWarning
	DebugError
)

func (s DebugSeverity) String() string {
	switch s {
	case DebugVerbose:
		return "VERBOSE"
	case DebugInfo:
		return "INFO"
	case DebugWarning:
		return "WARNING"
	default:
		return "ERROR"
	}
}

// DebugFunc receives debug channel messages.
type DebugFunc func(severity DebugSeverity, message string)

// DebugChannel is the callback log sink the runtime reports through.
// Validation layer output is forwarded into the same channel when the
// debug report extension is enabled.
type DebugChannel struct {
	sink DebugFunc
}

// NewDebugChannel wraps a sink; a nil sink logs through the standard log
// package.
func NewDebugChannel(sink DebugFunc) *DebugChannel {
	if sink == nil {
		sink = func(severity DebugSeverity, message string) {
			log.Printf("%s: %s", severity, message)
		}
	}
	return &DebugChannel{sink: sink}
}

func (c *DebugChannel) Verbosef(format string, args ...interface{}) {
	c.emit(DebugVerbose, format, args...)
}

func (c *DebugChannel) Infof(format string, args ...interface{}) {
	c.emit(DebugInfo, format, args...)
}

func (c *DebugChannel) Warningf(format string, args ...interface{}) {
	c.emit(DebugWarning, format, args...)
}

func (c *DebugChannel) Errorf(format string, args ...interface{}) {
	c.emit(DebugError, format, args...)
}

func (c *DebugChannel) emit(severity DebugSeverity, format string, args ...interface{}) {
	if c == nil {
		return
	}
	c.sink(severity, fmt.Sprintf(format, args...))
}

// reportCallback adapts VK_EXT_debug_report messages onto a DebugChannel.
func reportCallback(channel *DebugChannel) vk.DebugReportCallbackFunc {
	return func(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
		object uint64, location uint, messageCode int32, pLayerPrefix string,
		pMessage string, pUserData unsafe.Pointer) vk.Bool32 {

		severity := DebugInfo
		switch {
		case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
			severity = DebugError
		case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0,
			flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
			severity = DebugWarning
		case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
			severity = DebugVerbose
		}
		channel.emit(severity, "[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
		return vk.Bool32(vk.False)
	}
}
