package memory

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// Buffer is a buffer handle together with the memory bound to it.
type Buffer struct {
	Handle core1_0.Buffer
	Memory core1_0.DeviceMemory
	Size   int

	driver core1_0.CoreDeviceDriver
	mapped []byte
}

// Map maps the whole allocation and keeps it mapped until Destroy. Repeated calls return the
// same slice. The memory must be host visible.
func (b *Buffer) Map() ([]byte, error) {
	if b.mapped != nil {
		return b.mapped, nil
	}
	if !b.Memory.Initialized() {
		return nil, errors.Wrap(errNotBound, "map buffer")
	}

	ptr, _, err := b.driver.MapMemory(b.Memory, 0, b.Size, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "map %d bytes", b.Size)
	}

	b.mapped = unsafe.Slice((*byte)(ptr), b.Size)
	return b.mapped, nil
}

// Mapped returns the persistent mapping, or nil if Map was never called.
func (b *Buffer) Mapped() []byte {
	return b.mapped
}

// Write copies data into host visible memory at offset. Host coherent memory is assumed, so
// nothing is flushed.
func (b *Buffer) Write(offset int, data []byte) error {
	if offset < 0 || offset+len(data) > b.Size {
		return errors.Newf("write of %d bytes at offset %d overflows %d byte buffer", len(data), offset, b.Size)
	}

	if b.mapped != nil {
		copy(b.mapped[offset:], data)
		return nil
	}

	ptr, _, err := b.driver.MapMemory(b.Memory, offset, len(data), 0)
	if err != nil {
		return errors.Wrapf(err, "map %d bytes at %d", len(data), offset)
	}
	defer b.driver.UnmapMemory(b.Memory)

	copy(unsafe.Slice((*byte)(ptr), len(data)), data)
	return nil
}

// Read copies size bytes out of host visible memory.
func (b *Buffer) Read(size int) ([]byte, error) {
	if size > b.Size {
		return nil, errors.Newf("read of %d bytes overflows %d byte buffer", size, b.Size)
	}

	out := make([]byte, size)
	if b.mapped != nil {
		copy(out, b.mapped)
		return out, nil
	}

	ptr, _, err := b.driver.MapMemory(b.Memory, 0, size, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "map %d bytes", size)
	}
	defer b.driver.UnmapMemory(b.Memory)

	copy(out, unsafe.Slice((*byte)(ptr), size))
	return out, nil
}

// Destroy unmaps, destroys the handle and frees the memory. It tolerates a partially created
// buffer.
func (b *Buffer) Destroy() {
	if b == nil {
		return
	}
	if b.mapped != nil {
		b.driver.UnmapMemory(b.Memory)
		b.mapped = nil
	}
	if b.Handle.Initialized() {
		b.driver.DestroyBuffer(b.Handle, nil)
		b.Handle = core1_0.Buffer{}
	}
	if b.Memory.Initialized() {
		b.driver.FreeMemory(b.Memory, nil)
		b.Memory = core1_0.DeviceMemory{}
	}
}

// Image is an image handle together with the memory bound to it.
type Image struct {
	Handle core1_0.Image
	Memory core1_0.DeviceMemory
	Spec   ImageSpec

	driver core1_0.CoreDeviceDriver
}

// ByteSize is the size of a tightly packed copy of the image, assuming 4 bytes per texel.
func (i *Image) ByteSize() int {
	return i.Spec.Width * i.Spec.Height * 4
}

func (i *Image) Destroy() {
	if i == nil {
		return
	}
	if i.Handle.Initialized() {
		i.driver.DestroyImage(i.Handle, nil)
		i.Handle = core1_0.Image{}
	}
	if i.Memory.Initialized() {
		i.driver.FreeMemory(i.Memory, nil)
		i.Memory = core1_0.DeviceMemory{}
	}
}

var errNotBound = errors.New("buffer has no bound memory")
