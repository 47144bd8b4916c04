// Package device implements the transfer layer that mirrors host data into
// accelerator memory for Vantage.
//
// The index core never allocates device memory itself; it consumes the
// capability this package exposes: allocate, copy-in, copy-out, free. A
// mirror is either fully present and consistent or absent — allocation and
// copy failures surface as errors, never as partially written buffers.
//
// Architecture:
//   - Accelerator memory holds only flat data (node tables, point arrays,
//     query batches, result buffers) as raw bytes
//   - Host memory keeps everything else (metric configuration, snapshots)
//   - Search workers read mirrored buffers through their mapped views
//
// Backends:
//
//  1. **Host** (always available): process-memory buffers, search workers are
//     goroutines on the CPU.
//
//  2. **Vulkan** (cross-platform, no CGO): buffers live in host-visible,
//     host-coherent device memory via a purego FFI bridge and stay mapped for
//     worker access.
//
// Backend detection tries the preferred backend first and falls back to host,
// so a Manager is always usable.
//
// Example:
//
//	manager, err := device.NewManager(device.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer manager.Close()
//
//	buf, err := manager.Alloc(1024)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer manager.Free(buf)
//
// Thread Safety:
//
//	All Manager methods are safe for concurrent use. A Buffer's mapped view
//	may be read concurrently; writes require external coordination (the
//	dispatcher writes disjoint regions per worker).
package device

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/orneryd/vantage/pkg/device/vulkan"
)

// Errors
var (
	ErrBackendUnavailable = errors.New("device: requested backend not available")
	ErrOutOfMemory        = errors.New("device: out of device memory")
	ErrTransferFailed     = errors.New("device: buffer transfer failed")
	ErrBufferReleased     = errors.New("device: buffer already released")
)

// Backend identifies the compute backend holding mirrored buffers.
type Backend string

const (
	BackendAuto   Backend = "auto"   // Probe vulkan, fall back to host
	BackendHost   Backend = "host"   // Process memory, CPU workers
	BackendVulkan Backend = "vulkan" // Vulkan device memory via purego
)

// Config holds transfer layer configuration.
type Config struct {
	// PreferredBackend selects the compute backend (auto-detected if empty)
	PreferredBackend Backend

	// MaxMemoryMB limits mirrored memory (0 = unlimited)
	MaxMemoryMB int

	// DeviceID selects a specific device on multi-GPU systems
	DeviceID int

	// Logger receives backend detection and lifecycle events
	Logger zerolog.Logger
}

// DefaultConfig returns conservative defaults: automatic backend detection,
// no memory cap, first device.
func DefaultConfig() *Config {
	return &Config{
		PreferredBackend: BackendAuto,
		MaxMemoryMB:      0,
		DeviceID:         0,
		Logger:           zerolog.Nop(),
	}
}

// Info describes the selected compute backend.
type Info struct {
	Backend  Backend
	Name     string
	DeviceID int
	MemoryMB int
}

// Stats tracks transfer layer usage.
type Stats struct {
	Allocs         int64
	Frees          int64
	AllocFailures  int64
	ActiveBytes    int64
	BytesCopiedIn  int64
	BytesCopiedOut int64
}

// Buffer is a device-resident allocation.
//
// Contents returns the mapped device view used by search workers; Write and
// Read are the copy-in/copy-out halves of the transfer capability.
type Buffer interface {
	// Size returns the allocation size in bytes.
	Size() int
	// Contents returns the mapped device view, nil after release.
	Contents() []byte
	// Write copies src into the buffer starting at offset 0.
	Write(src []byte) error
	// Read copies the first len(dst) bytes of the buffer into dst.
	Read(dst []byte) error
}

// allocator is the per-backend allocation capability.
type allocator interface {
	alloc(size int) (Buffer, error)
	free(b Buffer)
	release()
}

// Manager owns a compute backend and accounts for every mirrored byte.
//
// It is the sole owner of accelerator-resident copies: buffers are created
// through Alloc and must be returned through Free. Exceeding the configured
// memory budget fails the allocation with ErrOutOfMemory instead of
// corrupting an existing mirror.
type Manager struct {
	config *Config
	info   Info
	log    zerolog.Logger

	backend allocator

	active atomic.Int64

	statAllocs        atomic.Int64
	statFrees         atomic.Int64
	statAllocFailures atomic.Int64
	statBytesIn       atomic.Int64
	statBytesOut      atomic.Int64

	closeOnce sync.Once
}

// NewManager selects a compute backend per config and returns a ready
// Manager. With BackendAuto the vulkan backend is probed first and host is
// the fallback, so the only error paths are an explicitly requested backend
// being unavailable.
func NewManager(config *Config) (*Manager, error) {
	if config == nil {
		config = DefaultConfig()
	}

	m := &Manager{
		config: config,
		log:    config.Logger,
	}

	backends := []Backend{BackendVulkan, BackendHost}
	switch config.PreferredBackend {
	case BackendAuto, "":
	case BackendHost:
		backends = []Backend{BackendHost}
	case BackendVulkan:
		backends = []Backend{BackendVulkan}
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrBackendUnavailable, config.PreferredBackend)
	}

	for _, b := range backends {
		info, alloc, err := openBackend(b, config.DeviceID)
		if err != nil {
			m.log.Debug().Str("backend", string(b)).Err(err).Msg("backend probe failed")
			continue
		}
		m.info = info
		m.backend = alloc
		m.log.Info().
			Str("backend", string(info.Backend)).
			Str("device", info.Name).
			Int("memory_mb", info.MemoryMB).
			Msg("compute backend selected")
		return m, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrBackendUnavailable, config.PreferredBackend)
}

// openBackend probes one backend and opens it if usable.
func openBackend(b Backend, deviceID int) (Info, allocator, error) {
	switch b {
	case BackendHost:
		return Info{Backend: BackendHost, Name: "host memory"}, hostAllocator{}, nil
	case BackendVulkan:
		if !vulkan.IsAvailable() {
			return Info{}, nil, vulkan.ErrVulkanNotAvailable
		}
		dev, err := vulkan.NewDevice(deviceID)
		if err != nil {
			return Info{}, nil, err
		}
		return Info{
			Backend:  BackendVulkan,
			Name:     dev.Name(),
			DeviceID: dev.ID(),
			MemoryMB: dev.MemoryMB(),
		}, &vulkanAllocator{dev: dev}, nil
	default:
		return Info{}, nil, fmt.Errorf("%w: %q", ErrBackendUnavailable, b)
	}
}

// Probe reports every backend usable on this system, host last.
func Probe() []Info {
	var infos []Info
	if vulkan.IsAvailable() {
		for id := 0; id < vulkan.DeviceCount(); id++ {
			dev, err := vulkan.NewDevice(id)
			if err != nil {
				continue
			}
			infos = append(infos, Info{
				Backend:  BackendVulkan,
				Name:     dev.Name(),
				DeviceID: id,
				MemoryMB: dev.MemoryMB(),
			})
			dev.Release()
		}
	}
	infos = append(infos, Info{Backend: BackendHost, Name: "host memory"})
	return infos
}

// Info returns the selected backend description.
func (m *Manager) Info() Info {
	return m.info
}

// Alloc reserves size bytes of device memory, enforcing the configured
// budget. The returned buffer's contents are uninitialized.
func (m *Manager) Alloc(size int) (Buffer, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrTransferFailed, size)
	}

	if budget := int64(m.config.MaxMemoryMB) * 1024 * 1024; budget > 0 {
		if m.active.Add(int64(size)) > budget {
			m.active.Add(-int64(size))
			m.statAllocFailures.Add(1)
			return nil, fmt.Errorf("%w: %d bytes requested, budget %d MB", ErrOutOfMemory, size, m.config.MaxMemoryMB)
		}
	} else {
		m.active.Add(int64(size))
	}

	buf, err := m.backend.alloc(size)
	if err != nil {
		m.active.Add(-int64(size))
		m.statAllocFailures.Add(1)
		return nil, err
	}

	m.statAllocs.Add(1)
	return &managedBuffer{inner: buf, m: m}, nil
}

// Upload allocates a buffer and copies data into it in one step, releasing
// the allocation on copy failure so no partial mirror survives.
func (m *Manager) Upload(data []byte) (Buffer, error) {
	buf, err := m.Alloc(len(data))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return buf, nil
	}
	if err := buf.Write(data); err != nil {
		m.Free(buf)
		return nil, err
	}
	return buf, nil
}

// Free returns a buffer to the backend. Freeing nil is a no-op.
func (m *Manager) Free(b Buffer) {
	if b == nil {
		return
	}
	mb, ok := b.(*managedBuffer)
	if !ok || mb.released.Swap(true) {
		return
	}
	// Read the size before the backend free: backends may zero the buffer
	// on release, and the accounting must see the allocated size.
	size := int64(mb.inner.Size())
	m.backend.free(mb.inner)
	m.active.Add(-size)
	m.statFrees.Add(1)
}

// Stats returns a snapshot of usage counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Allocs:         m.statAllocs.Load(),
		Frees:          m.statFrees.Load(),
		AllocFailures:  m.statAllocFailures.Load(),
		ActiveBytes:    m.active.Load(),
		BytesCopiedIn:  m.statBytesIn.Load(),
		BytesCopiedOut: m.statBytesOut.Load(),
	}
}

// Close releases the backend. Buffers must not be used afterwards.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.backend.release()
	})
}

// managedBuffer wraps a backend buffer with release tracking and transfer
// accounting.
type managedBuffer struct {
	inner    Buffer
	m        *Manager
	released atomic.Bool
}

func (b *managedBuffer) Size() int {
	return b.inner.Size()
}

func (b *managedBuffer) Contents() []byte {
	if b.released.Load() {
		return nil
	}
	return b.inner.Contents()
}

func (b *managedBuffer) Write(src []byte) error {
	if b.released.Load() {
		return ErrBufferReleased
	}
	if err := b.inner.Write(src); err != nil {
		return err
	}
	b.m.statBytesIn.Add(int64(len(src)))
	return nil
}

func (b *managedBuffer) Read(dst []byte) error {
	if b.released.Load() {
		return ErrBufferReleased
	}
	if err := b.inner.Read(dst); err != nil {
		return err
	}
	b.m.statBytesOut.Add(int64(len(dst)))
	return nil
}
