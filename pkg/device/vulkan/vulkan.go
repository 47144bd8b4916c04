// Package vulkan provides cross-platform accelerator memory via Vulkan.
//
// This implementation uses purego for FFI to dynamically load the Vulkan
// library, so no CGO is required. Buffers are allocated host-visible and
// host-coherent and stay persistently mapped for their whole lifetime: the
// mapped view is what the search workers read, and what copy-in/copy-out
// operate on.
//
// Supported platforms:
//   - Linux: loads libvulkan.so.1 (Vulkan SDK or mesa)
//   - macOS: loads libvulkan.dylib (MoltenVK or Vulkan SDK)
//
// On platforms where the library cannot be found, IsAvailable reports false
// and the transfer layer falls back to host memory.
package vulkan

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"
)

// Vulkan constants
const (
	vkSuccess = 0

	vkStructureTypeApplicationInfo       = 0
	vkStructureTypeInstanceCreateInfo    = 1
	vkStructureTypeDeviceQueueCreateInfo = 2
	vkStructureTypeDeviceCreateInfo      = 3
	vkStructureTypeMemoryAllocateInfo    = 5
	vkStructureTypeBufferCreateInfo      = 12

	vkAPIVersion11 = uint32(0x00401000) // Version 1.1.0

	vkQueueComputeBit = 0x00000002

	vkBufferUsageTransferSrcBit   = 0x00000001
	vkBufferUsageTransferDstBit   = 0x00000002
	vkBufferUsageStorageBufferBit = 0x00000020

	vkSharingModeExclusive = 0

	vkMemoryPropertyHostVisibleBit  = 0x00000002
	vkMemoryPropertyHostCoherentBit = 0x00000004
	vkMemoryHeapDeviceLocalBit      = 0x00000001
)

// Vulkan handle types
type vkInstance uintptr
type vkPhysicalDevice uintptr
type vkDevice uintptr
type vkQueue uintptr
type vkBuffer uintptr
type vkDeviceMemory uintptr
type vkDeviceSize uint64
type vkResult int32

type vkApplicationInfo struct {
	SType              uint32
	PNext              uintptr
	PApplicationName   uintptr
	ApplicationVersion uint32
	PEngineName        uintptr
	EngineVersion      uint32
	APIVersion         uint32
}

type vkInstanceCreateInfo struct {
	SType                   uint32
	PNext                   uintptr
	Flags                   uint32
	PApplicationInfo        *vkApplicationInfo
	EnabledLayerCount       uint32
	PpEnabledLayerNames     uintptr
	EnabledExtensionCount   uint32
	PpEnabledExtensionNames uintptr
}

type vkPhysicalDeviceProperties struct {
	APIVersion        uint32
	DriverVersion     uint32
	VendorID          uint32
	DeviceID          uint32
	DeviceType        uint32
	DeviceName        [256]byte
	PipelineCacheUUID [16]byte
	Limits            [512]byte // VkPhysicalDeviceLimits is large
	SparseProperties  [20]byte
}

type vkMemoryType struct {
	PropertyFlags uint32
	HeapIndex     uint32
}

type vkMemoryHeap struct {
	Size  vkDeviceSize
	Flags uint32
}

type vkPhysicalDeviceMemoryProperties struct {
	MemoryTypeCount uint32
	MemoryTypes     [32]vkMemoryType
	MemoryHeapCount uint32
	MemoryHeaps     [16]vkMemoryHeap
}

type vkQueueFamilyProperties struct {
	QueueFlags                  uint32
	QueueCount                  uint32
	TimestampValidBits          uint32
	MinImageTransferGranularity [3]uint32
}

type vkDeviceQueueCreateInfo struct {
	SType            uint32
	PNext            uintptr
	Flags            uint32
	QueueFamilyIndex uint32
	QueueCount       uint32
	PQueuePriorities *float32
}

type vkDeviceCreateInfo struct {
	SType                   uint32
	PNext                   uintptr
	Flags                   uint32
	QueueCreateInfoCount    uint32
	PQueueCreateInfos       *vkDeviceQueueCreateInfo
	EnabledLayerCount       uint32
	PpEnabledLayerNames     uintptr
	EnabledExtensionCount   uint32
	PpEnabledExtensionNames uintptr
	PEnabledFeatures        uintptr
}

type vkBufferCreateInfo struct {
	SType                 uint32
	PNext                 uintptr
	Flags                 uint32
	Size                  vkDeviceSize
	Usage                 uint32
	SharingMode           uint32
	QueueFamilyIndexCount uint32
	PQueueFamilyIndices   *uint32
}

type vkMemoryRequirements struct {
	Size           vkDeviceSize
	Alignment      vkDeviceSize
	MemoryTypeBits uint32
}

type vkMemoryAllocateInfo struct {
	SType           uint32
	PNext           uintptr
	AllocationSize  vkDeviceSize
	MemoryTypeIndex uint32
}

// Vulkan function pointers (bound by the platform loader)
var (
	vulkanLib uintptr
	vulkanMu  sync.Mutex
	vulkanErr error

	vkCreateInstance                         func(pCreateInfo *vkInstanceCreateInfo, pAllocator uintptr, pInstance *vkInstance) vkResult
	vkDestroyInstance                        func(instance vkInstance, pAllocator uintptr)
	vkEnumeratePhysicalDevices               func(instance vkInstance, pPhysicalDeviceCount *uint32, pPhysicalDevices *vkPhysicalDevice) vkResult
	vkGetPhysicalDeviceProperties            func(physicalDevice vkPhysicalDevice, pProperties *vkPhysicalDeviceProperties)
	vkGetPhysicalDeviceMemoryProperties      func(physicalDevice vkPhysicalDevice, pMemoryProperties *vkPhysicalDeviceMemoryProperties)
	vkGetPhysicalDeviceQueueFamilyProperties func(physicalDevice vkPhysicalDevice, pQueueFamilyPropertyCount *uint32, pQueueFamilyProperties *vkQueueFamilyProperties)
	vkCreateDevice                           func(physicalDevice vkPhysicalDevice, pCreateInfo *vkDeviceCreateInfo, pAllocator uintptr, pDevice *vkDevice) vkResult
	vkDestroyDevice                          func(device vkDevice, pAllocator uintptr)
	vkGetDeviceQueue                         func(device vkDevice, queueFamilyIndex uint32, queueIndex uint32, pQueue *vkQueue)
	vkCreateBuffer                           func(device vkDevice, pCreateInfo *vkBufferCreateInfo, pAllocator uintptr, pBuffer *vkBuffer) vkResult
	vkDestroyBuffer                          func(device vkDevice, buffer vkBuffer, pAllocator uintptr)
	vkGetBufferMemoryRequirements            func(device vkDevice, buffer vkBuffer, pMemoryRequirements *vkMemoryRequirements)
	vkAllocateMemory                         func(device vkDevice, pAllocateInfo *vkMemoryAllocateInfo, pAllocator uintptr, pMemory *vkDeviceMemory) vkResult
	vkFreeMemory                             func(device vkDevice, memory vkDeviceMemory, pAllocator uintptr)
	vkBindBufferMemory                       func(device vkDevice, buffer vkBuffer, memory vkDeviceMemory, memoryOffset vkDeviceSize) vkResult
	vkMapMemory                              func(device vkDevice, memory vkDeviceMemory, offset vkDeviceSize, size vkDeviceSize, flags uint32, ppData *uintptr) vkResult
	vkUnmapMemory                            func(device vkDevice, memory vkDeviceMemory)
	vkDeviceWaitIdle                         func(device vkDevice) vkResult
)

// Errors
var (
	ErrVulkanNotAvailable = errors.New("vulkan: Vulkan is not available (library not found)")
	ErrDeviceCreation     = errors.New("vulkan: failed to create Vulkan device")
	ErrBufferCreation     = errors.New("vulkan: failed to create buffer")
	ErrInvalidBuffer      = errors.New("vulkan: invalid buffer")
)

// initVulkan loads the Vulkan library once and binds the function pointers.
func initVulkan() error {
	vulkanMu.Lock()
	defer vulkanMu.Unlock()

	if vulkanLib != 0 {
		return nil
	}
	if vulkanErr != nil {
		return vulkanErr
	}

	lib, err := loadLibrary()
	if err != nil {
		vulkanErr = err
		return err
	}
	vulkanLib = lib

	registerFunctions(lib)

	return nil
}

func newInstance() (vkInstance, error) {
	appName := []byte("Vantage\x00")
	engineName := []byte("Vantage Device\x00")

	appInfo := vkApplicationInfo{
		SType:              vkStructureTypeApplicationInfo,
		PApplicationName:   uintptr(unsafe.Pointer(&appName[0])),
		ApplicationVersion: 0x00010000,
		PEngineName:        uintptr(unsafe.Pointer(&engineName[0])),
		EngineVersion:      0x00010000,
		APIVersion:         vkAPIVersion11,
	}

	createInfo := vkInstanceCreateInfo{
		SType:            vkStructureTypeInstanceCreateInfo,
		PApplicationInfo: &appInfo,
	}

	var instance vkInstance
	if result := vkCreateInstance(&createInfo, 0, &instance); result != vkSuccess {
		return 0, fmt.Errorf("%w: failed to create instance (code %d)", ErrDeviceCreation, result)
	}
	return instance, nil
}

// IsAvailable checks if Vulkan is usable on this system.
func IsAvailable() bool {
	if err := initVulkan(); err != nil {
		return false
	}

	instance, err := newInstance()
	if err != nil {
		return false
	}
	defer vkDestroyInstance(instance, 0)

	var deviceCount uint32
	vkEnumeratePhysicalDevices(instance, &deviceCount, nil)

	return deviceCount > 0
}

// DeviceCount returns the number of Vulkan GPU devices.
func DeviceCount() int {
	if err := initVulkan(); err != nil {
		return 0
	}

	instance, err := newInstance()
	if err != nil {
		return 0
	}
	defer vkDestroyInstance(instance, 0)

	var deviceCount uint32
	vkEnumeratePhysicalDevices(instance, &deviceCount, nil)

	return int(deviceCount)
}

// findComputeQueueFamily finds a queue family that supports compute operations
func findComputeQueueFamily(physicalDevice vkPhysicalDevice) int32 {
	var queueFamilyCount uint32
	vkGetPhysicalDeviceQueueFamilyProperties(physicalDevice, &queueFamilyCount, nil)

	if queueFamilyCount == 0 {
		return -1
	}

	queueFamilies := make([]vkQueueFamilyProperties, queueFamilyCount)
	vkGetPhysicalDeviceQueueFamilyProperties(physicalDevice, &queueFamilyCount, &queueFamilies[0])

	for i := uint32(0); i < queueFamilyCount; i++ {
		if queueFamilies[i].QueueFlags&vkQueueComputeBit != 0 {
			return int32(i)
		}
	}

	return -1
}

// Device represents a Vulkan GPU device that can hold mirrored buffers.
type Device struct {
	instance       vkInstance
	physicalDevice vkPhysicalDevice
	device         vkDevice
	computeQueue   vkQueue
	queueFamily    uint32
	id             int
	name           string
	memory         uint64
	mu             sync.Mutex
}

// NewDevice creates a new Vulkan device handle.
func NewDevice(deviceID int) (*Device, error) {
	if err := initVulkan(); err != nil {
		return nil, ErrVulkanNotAvailable
	}

	instance, err := newInstance()
	if err != nil {
		return nil, err
	}

	var deviceCount uint32
	vkEnumeratePhysicalDevices(instance, &deviceCount, nil)
	if deviceCount == 0 || deviceID >= int(deviceCount) {
		vkDestroyInstance(instance, 0)
		return nil, fmt.Errorf("%w: no suitable GPU found or invalid device ID", ErrDeviceCreation)
	}

	physicalDevices := make([]vkPhysicalDevice, deviceCount)
	vkEnumeratePhysicalDevices(instance, &deviceCount, &physicalDevices[0])
	physicalDevice := physicalDevices[deviceID]

	var properties vkPhysicalDeviceProperties
	vkGetPhysicalDeviceProperties(physicalDevice, &properties)

	// Device name is null-terminated
	var deviceName string
	for i, b := range properties.DeviceName {
		if b == 0 {
			deviceName = string(properties.DeviceName[:i])
			break
		}
	}

	var memProperties vkPhysicalDeviceMemoryProperties
	vkGetPhysicalDeviceMemoryProperties(physicalDevice, &memProperties)

	var deviceMemory uint64
	for i := uint32(0); i < memProperties.MemoryHeapCount; i++ {
		if memProperties.MemoryHeaps[i].Flags&vkMemoryHeapDeviceLocalBit != 0 {
			deviceMemory = uint64(memProperties.MemoryHeaps[i].Size)
			break
		}
	}

	computeFamily := findComputeQueueFamily(physicalDevice)
	if computeFamily < 0 {
		vkDestroyInstance(instance, 0)
		return nil, fmt.Errorf("%w: no compute queue family found", ErrDeviceCreation)
	}

	queuePriority := float32(1.0)
	queueCreateInfo := vkDeviceQueueCreateInfo{
		SType:            vkStructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: uint32(computeFamily),
		QueueCount:       1,
		PQueuePriorities: &queuePriority,
	}

	deviceCreateInfo := vkDeviceCreateInfo{
		SType:                vkStructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos:    &queueCreateInfo,
	}

	var device vkDevice
	if result := vkCreateDevice(physicalDevice, &deviceCreateInfo, 0, &device); result != vkSuccess {
		vkDestroyInstance(instance, 0)
		return nil, fmt.Errorf("%w: failed to create logical device (code %d)", ErrDeviceCreation, result)
	}

	var computeQueue vkQueue
	vkGetDeviceQueue(device, uint32(computeFamily), 0, &computeQueue)

	return &Device{
		instance:       instance,
		physicalDevice: physicalDevice,
		device:         device,
		computeQueue:   computeQueue,
		queueFamily:    uint32(computeFamily),
		id:             deviceID,
		name:           deviceName,
		memory:         deviceMemory,
	}, nil
}

// Release frees the Vulkan device resources.
func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device != 0 {
		vkDeviceWaitIdle(d.device)
		vkDestroyDevice(d.device, 0)
	}
	if d.instance != 0 {
		vkDestroyInstance(d.instance, 0)
	}

	d.device = 0
	d.instance = 0
}

// ID returns the device ID.
func (d *Device) ID() int {
	return d.id
}

// Name returns the GPU device name.
func (d *Device) Name() string {
	return d.name
}

// MemoryMB returns the GPU memory size in megabytes.
func (d *Device) MemoryMB() int {
	return int(d.memory / (1024 * 1024))
}

// findMemoryType finds a suitable memory type for allocation
func (d *Device) findMemoryType(typeFilter uint32, properties uint32) (uint32, bool) {
	var memProperties vkPhysicalDeviceMemoryProperties
	vkGetPhysicalDeviceMemoryProperties(d.physicalDevice, &memProperties)

	for i := uint32(0); i < memProperties.MemoryTypeCount; i++ {
		if (typeFilter&(1<<i)) != 0 &&
			(memProperties.MemoryTypes[i].PropertyFlags&properties) == properties {
			return i, true
		}
	}
	return 0, false
}

// Buffer represents a persistently mapped Vulkan memory buffer.
type Buffer struct {
	buffer vkBuffer
	memory vkDeviceMemory
	mapped []byte
	size   int
	device *Device
}

// NewBuffer allocates an uninitialized device buffer of size bytes and maps
// it for host access. The mapping stays valid until Release.
func (d *Device) NewBuffer(size int) (*Buffer, error) {
	if d.device == 0 {
		return nil, ErrVulkanNotAvailable
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: cannot create empty buffer", ErrBufferCreation)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	bufferInfo := vkBufferCreateInfo{
		SType:       vkStructureTypeBufferCreateInfo,
		Size:        vkDeviceSize(size),
		Usage:       vkBufferUsageStorageBufferBit | vkBufferUsageTransferSrcBit | vkBufferUsageTransferDstBit,
		SharingMode: vkSharingModeExclusive,
	}

	var buffer vkBuffer
	if result := vkCreateBuffer(d.device, &bufferInfo, 0, &buffer); result != vkSuccess {
		return nil, fmt.Errorf("%w: failed to create buffer (code %d)", ErrBufferCreation, result)
	}

	var memReqs vkMemoryRequirements
	vkGetBufferMemoryRequirements(d.device, buffer, &memReqs)

	// Host visible + coherent so the mapped view is what search workers read
	memTypeIndex, found := d.findMemoryType(memReqs.MemoryTypeBits,
		vkMemoryPropertyHostVisibleBit|vkMemoryPropertyHostCoherentBit)
	if !found {
		vkDestroyBuffer(d.device, buffer, 0)
		return nil, fmt.Errorf("%w: no suitable memory type found", ErrBufferCreation)
	}

	allocInfo := vkMemoryAllocateInfo{
		SType:           vkStructureTypeMemoryAllocateInfo,
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memTypeIndex,
	}

	var memory vkDeviceMemory
	if result := vkAllocateMemory(d.device, &allocInfo, 0, &memory); result != vkSuccess {
		vkDestroyBuffer(d.device, buffer, 0)
		return nil, fmt.Errorf("%w: failed to allocate memory (code %d)", ErrBufferCreation, result)
	}

	if result := vkBindBufferMemory(d.device, buffer, memory, 0); result != vkSuccess {
		vkFreeMemory(d.device, memory, 0)
		vkDestroyBuffer(d.device, buffer, 0)
		return nil, fmt.Errorf("%w: failed to bind buffer memory (code %d)", ErrBufferCreation, result)
	}

	var mappedPtr uintptr
	if result := vkMapMemory(d.device, memory, 0, vkDeviceSize(size), 0, &mappedPtr); result != vkSuccess {
		vkFreeMemory(d.device, memory, 0)
		vkDestroyBuffer(d.device, buffer, 0)
		return nil, fmt.Errorf("%w: failed to map memory (code %d)", ErrBufferCreation, result)
	}

	return &Buffer{
		buffer: buffer,
		memory: memory,
		mapped: unsafe.Slice((*byte)(unsafe.Pointer(mappedPtr)), size),
		size:   size,
		device: d,
	}, nil
}

// Release unmaps and frees the buffer resources.
func (b *Buffer) Release() {
	if b.device == nil {
		return
	}
	b.device.mu.Lock()
	defer b.device.mu.Unlock()

	if b.memory != 0 {
		vkUnmapMemory(b.device.device, b.memory)
		vkFreeMemory(b.device.device, b.memory, 0)
	}
	if b.buffer != 0 {
		vkDestroyBuffer(b.device.device, b.buffer, 0)
	}
	b.buffer = 0
	b.memory = 0
	b.mapped = nil
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() int {
	return b.size
}

// Contents returns the mapped view of the buffer. The slice is valid until
// Release and is nil afterwards.
func (b *Buffer) Contents() []byte {
	return b.mapped
}
