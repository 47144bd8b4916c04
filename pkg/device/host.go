package device

import (
	"fmt"

	"github.com/orneryd/vantage/pkg/device/vulkan"
)

// hostAllocator is the always-available backend: buffers are plain process
// memory and search workers read them directly.
type hostAllocator struct{}

func (hostAllocator) alloc(size int) (Buffer, error) {
	return &hostBuffer{data: make([]byte, size)}, nil
}

func (hostAllocator) free(b Buffer) {
	if hb, ok := b.(*hostBuffer); ok {
		hb.data = nil
	}
}

func (hostAllocator) release() {}

type hostBuffer struct {
	data []byte
}

func (b *hostBuffer) Size() int {
	return len(b.data)
}

func (b *hostBuffer) Contents() []byte {
	return b.data
}

func (b *hostBuffer) Write(src []byte) error {
	if len(src) > len(b.data) {
		return fmt.Errorf("%w: %d bytes into %d byte buffer", ErrTransferFailed, len(src), len(b.data))
	}
	copy(b.data, src)
	return nil
}

func (b *hostBuffer) Read(dst []byte) error {
	if len(dst) > len(b.data) {
		return fmt.Errorf("%w: %d bytes from %d byte buffer", ErrTransferFailed, len(dst), len(b.data))
	}
	copy(dst, b.data)
	return nil
}

// vulkanAllocator adapts a Vulkan device into the allocation capability.
type vulkanAllocator struct {
	dev *vulkan.Device
}

func (a *vulkanAllocator) alloc(size int) (Buffer, error) {
	if size == 0 {
		// Vulkan rejects zero-size buffers; an empty mirror needs no device
		// allocation at all
		return &hostBuffer{data: nil}, nil
	}
	buf, err := a.dev.NewBuffer(size)
	if err != nil {
		return nil, err
	}
	return &vulkanBuffer{buf: buf}, nil
}

func (a *vulkanAllocator) free(b Buffer) {
	if vb, ok := b.(*vulkanBuffer); ok {
		vb.buf.Release()
	}
}

func (a *vulkanAllocator) release() {
	a.dev.Release()
}

type vulkanBuffer struct {
	buf *vulkan.Buffer
}

func (b *vulkanBuffer) Size() int {
	return b.buf.Size()
}

func (b *vulkanBuffer) Contents() []byte {
	return b.buf.Contents()
}

func (b *vulkanBuffer) Write(src []byte) error {
	mapped := b.buf.Contents()
	if mapped == nil {
		return ErrBufferReleased
	}
	if len(src) > len(mapped) {
		return fmt.Errorf("%w: %d bytes into %d byte buffer", ErrTransferFailed, len(src), len(mapped))
	}
	copy(mapped, src)
	return nil
}

func (b *vulkanBuffer) Read(dst []byte) error {
	mapped := b.buf.Contents()
	if mapped == nil {
		return ErrBufferReleased
	}
	if len(dst) > len(mapped) {
		return fmt.Errorf("%w: %d bytes from %d byte buffer", ErrTransferFailed, len(dst), len(mapped))
	}
	copy(dst, mapped)
	return nil
}
