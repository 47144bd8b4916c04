//go:build linux || darwin || freebsd

package vulkan

import (
	"fmt"
	"runtime"

	"github.com/ebitengine/purego"
)

// loadLibrary locates and opens the Vulkan loader for this platform.
func loadLibrary() (uintptr, error) {
	var candidates []string
	switch runtime.GOOS {
	case "darwin":
		candidates = []string{
			"libvulkan.dylib",
			"libvulkan.1.dylib",
			"libMoltenVK.dylib",
			"/usr/local/lib/libvulkan.dylib",
		}
	default:
		candidates = []string{
			"libvulkan.so.1",
			"libvulkan.so",
		}
	}

	var lastErr error
	for _, name := range candidates {
		lib, err := purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_LOCAL)
		if err == nil {
			return lib, nil
		}
		lastErr = err
	}
	return 0, fmt.Errorf("%w: %v", ErrVulkanNotAvailable, lastErr)
}

// registerFunctions binds the Vulkan entry points used by this package.
func registerFunctions(lib uintptr) {
	purego.RegisterLibFunc(&vkCreateInstance, lib, "vkCreateInstance")
	purego.RegisterLibFunc(&vkDestroyInstance, lib, "vkDestroyInstance")
	purego.RegisterLibFunc(&vkEnumeratePhysicalDevices, lib, "vkEnumeratePhysicalDevices")
	purego.RegisterLibFunc(&vkGetPhysicalDeviceProperties, lib, "vkGetPhysicalDeviceProperties")
	purego.RegisterLibFunc(&vkGetPhysicalDeviceMemoryProperties, lib, "vkGetPhysicalDeviceMemoryProperties")
	purego.RegisterLibFunc(&vkGetPhysicalDeviceQueueFamilyProperties, lib, "vkGetPhysicalDeviceQueueFamilyProperties")
	purego.RegisterLibFunc(&vkCreateDevice, lib, "vkCreateDevice")
	purego.RegisterLibFunc(&vkDestroyDevice, lib, "vkDestroyDevice")
	purego.RegisterLibFunc(&vkGetDeviceQueue, lib, "vkGetDeviceQueue")
	purego.RegisterLibFunc(&vkCreateBuffer, lib, "vkCreateBuffer")
	purego.RegisterLibFunc(&vkDestroyBuffer, lib, "vkDestroyBuffer")
	purego.RegisterLibFunc(&vkGetBufferMemoryRequirements, lib, "vkGetBufferMemoryRequirements")
	purego.RegisterLibFunc(&vkAllocateMemory, lib, "vkAllocateMemory")
	purego.RegisterLibFunc(&vkFreeMemory, lib, "vkFreeMemory")
	purego.RegisterLibFunc(&vkBindBufferMemory, lib, "vkBindBufferMemory")
	purego.RegisterLibFunc(&vkMapMemory, lib, "vkMapMemory")
	purego.RegisterLibFunc(&vkUnmapMemory, lib, "vkUnmapMemory")
	purego.RegisterLibFunc(&vkDeviceWaitIdle, lib, "vkDeviceWaitIdle")
}
