package vkr

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// Version is a semantic version triple.
type Version struct {
	Major int
	Minor int
	Patch int
}

// VKVersion returns the packed Vulkan representation.
func (v Version) VKVersion() uint32 {
	return vk.MakeVersion(v.Major, v.Minor, v.Patch)
}

// App describes the application to Vulkan and carries instance-level
// configuration.
type App struct {
	Name       string
	EngineName string
	Version    Version
	// APIVersion is the minimum Vulkan API version, defaulting to 1.1.
	APIVersion Version

	EnabledLayers     []string
	EnabledExtensions []string

	// Debug receives runtime and validation messages. Nil means the
	// standard log package.
	Debug *DebugChannel
}

// SupportedLayers returns the instance layers the loader knows about.
// Vulkan must be initialized first.
func SupportedLayers() ([]string, error) {
	var count uint32
	if err := vkResult(vk.EnumerateInstanceLayerProperties(&count, nil)); err != nil {
		return nil, err
	}
	props := make([]vk.LayerProperties, count)
	if err := vkResult(vk.EnumerateInstanceLayerProperties(&count, props)); err != nil {
		return nil, err
	}
	names := make([]string, 0, count)
	for _, layer := range props {
		layer.Deref()
		names = append(names, vk.ToString(layer.LayerName[:]))
	}
	return names, nil
}

// SupportedExtensions returns the instance extensions the loader knows
// about.
func SupportedExtensions() ([]string, error) {
	var count uint32
	if err := vkResult(vk.EnumerateInstanceExtensionProperties("", &count, nil)); err != nil {
		return nil, err
	}
	props := make([]vk.ExtensionProperties, count)
	if err := vkResult(vk.EnumerateInstanceExtensionProperties("", &count, props)); err != nil {
		return nil, err
	}
	names := make([]string, 0, count)
	for _, ext := range props {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, nil
}

// EnableLayer enables a layer if the loader supports it.
func (a *App) EnableLayer(layer string) error {
	layers, err := SupportedLayers()
	if err != nil {
		return fmt.Errorf("enumerate layers: %w", err)
	}
	for _, l := range layers {
		if l == layer {
			a.EnabledLayers = append(a.EnabledLayers, layer)
			return nil
		}
	}
	return fmt.Errorf("layer %q not supported", layer)
}

// EnableExtension enables an instance extension.
func (a *App) EnableExtension(extension string) {
	a.EnabledExtensions = append(a.EnabledExtensions, extension)
}

// EnableValidation turns on the Khronos validation layer and routes its
// output into the debug channel.
func (a *App) EnableValidation() error {
	if err := a.EnableLayer("VK_LAYER_KHRONOS_validation"); err != nil {
		return err
	}
	a.EnableExtension("VK_EXT_debug_report")
	return nil
}

// Instance is the Vulkan runtime instance.
type Instance struct {
	VKInstance vk.Instance
	Debug      *DebugChannel

	debugReport vk.DebugReportCallback
}

// NewInstance initializes Vulkan and creates the instance. The caller loads
// the proc addr source first (for windowed apps, glfw provides it).
func NewInstance(app *App) (*Instance, error) {
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("init vulkan: %w", err)
	}

	if app.APIVersion.Major < 1 {
		app.APIVersion = Version{Major: 1, Minor: 1}
	}
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         app.APIVersion.VKVersion(),
		ApplicationVersion: app.Version.VKVersion(),
		PApplicationName:   safeString(app.Name),
		PEngineName:        safeString(app.EngineName),
	}

	extensions := safeStrings(app.EnabledExtensions)
	layers := safeStrings(app.EnabledLayers)
	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}

	instance := &Instance{Debug: app.Debug}
	if instance.Debug == nil {
		instance.Debug = NewDebugChannel(nil)
	}
	if err := vkResult(vk.CreateInstance(&createInfo, nil, &instance.VKInstance)); err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	vk.InitInstance(instance.VKInstance)

	for _, ext := range app.EnabledExtensions {
		if ext == "VK_EXT_debug_report" {
			instance.installDebugReport()
			break
		}
	}
	return instance, nil
}

func (i *Instance) installDebugReport() {
	ret := vk.CreateDebugReportCallback(i.VKInstance, &vk.DebugReportCallbackCreateInfo{
		SType: vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags: vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit |
			vk.DebugReportPerformanceWarningBit),
		PfnCallback: reportCallback(i.Debug),
	}, nil, &i.debugReport)
	if err := vkResult(ret); err != nil {
		i.Debug.Warningf("debug report callback unavailable: %v", err)
	}
}

func (i *Instance) Destroy() {
	if i.debugReport != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(i.VKInstance, i.debugReport, nil)
	}
	vk.DestroyInstance(i.VKInstance, nil)
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = safeString(s)
	}
	return out
}
