//go:build !linux && !darwin && !freebsd

package vulkan

// Platforms without a dlopen-style loader fall back to host memory.

func loadLibrary() (uintptr, error) {
	return 0, ErrVulkanNotAvailable
}

func registerFunctions(lib uintptr) {}
