package gpu

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openfluke/webgpu/wgpu"
)

const storageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc

func exhausted(label string, size uint64, err error) error {
	return fmt.Errorf("buffer %s (%s): %v: %w", label, humanize.Bytes(size), err, ErrResourceExhausted)
}

// NewFloatBuffer creates a storage buffer initialised with data.
func NewFloatBuffer(label string, data []float32) (*wgpu.Buffer, error) {
	c, err := GetContext()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		data = []float32{0}
	}
	buf, err := c.Device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    label,
		Contents: wgpu.ToBytes(data),
		Usage:    storageUsage,
	})
	if err != nil {
		return nil, exhausted(label, uint64(len(data)*4), err)
	}
	return buf, nil
}

// NewEmptyBuffer creates a zeroed storage buffer of n float32 values.
func NewEmptyBuffer(label string, n int) (*wgpu.Buffer, error) {
	c, err := GetContext()
	if err != nil {
		return nil, err
	}
	if n < 1 {
		n = 1
	}
	buf, err := c.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  uint64(n * 4),
		Usage: storageUsage,
	})
	if err != nil {
		return nil, exhausted(label, uint64(n*4), err)
	}
	return buf, nil
}

// mapTimeout bounds how long a read-back waits for the device.
const mapTimeout = 5 * time.Second

// ReadBuffer copies the first n floats of src back to the host.
func ReadBuffer(src *wgpu.Buffer, n int) ([]float32, error) {
	c, err := GetContext()
	if err != nil {
		return nil, err
	}
	size := uint64(n * 4)
	staging, err := c.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "readback",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("readback buffer (%s): %v: %w", humanize.Bytes(size), err, ErrResourceExhausted)
	}
	defer staging.Destroy()

	if err := c.copyBuffer(src, staging, size); err != nil {
		return nil, err
	}
	if err := c.awaitMap(staging, size); err != nil {
		return nil, err
	}
	defer staging.Unmap()

	mapped := staging.GetMappedRange(0, uint(size))
	if mapped == nil {
		return nil, fmt.Errorf("readback: empty mapped range")
	}
	out := make([]float32, n)
	copy(out, wgpu.FromBytes[float32](mapped))
	return out, nil
}

func (c *Context) copyBuffer(src, dst *wgpu.Buffer, size uint64) error {
	enc, err := c.Device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("readback encoder: %v", err)
	}
	enc.CopyBufferToBuffer(src, 0, dst, 0, size)
	cmd, err := enc.Finish(nil)
	if err != nil {
		return fmt.Errorf("readback commands: %v", err)
	}
	c.Queue.Submit(cmd)
	return nil
}

// awaitMap maps buf for reading, polling the device until the callback
// fires or mapTimeout passes. A lost device never hangs the run.
func (c *Context) awaitMap(buf *wgpu.Buffer, size uint64) error {
	status := make(chan wgpu.BufferMapAsyncStatus, 1)
	if err := buf.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status <- s
	}); err != nil {
		return fmt.Errorf("readback map: %v", err)
	}
	deadline := time.Now().Add(mapTimeout)
	for time.Now().Before(deadline) {
		c.Device.Poll(false, nil)
		select {
		case s := <-status:
			if s != wgpu.BufferMapAsyncStatusSuccess {
				return fmt.Errorf("readback map status %v", s)
			}
			return nil
		default:
			time.Sleep(time.Millisecond)
		}
	}
	return fmt.Errorf("readback timed out after %v", mapTimeout)
}

// Scratch owns the buffers allocated while scoring one sequence. Release
// must be called before the next sequence starts.
type Scratch struct {
	bufs  []*wgpu.Buffer
	bytes uint64
}

// Upload copies data into a new scratch buffer.
func (s *Scratch) Upload(label string, data []float32) (*wgpu.Buffer, error) {
	buf, err := NewFloatBuffer(label, data)
	if err != nil {
		return nil, err
	}
	s.track(buf)
	return buf, nil
}

// Alloc creates a zeroed scratch buffer of n floats.
func (s *Scratch) Alloc(label string, n int) (*wgpu.Buffer, error) {
	buf, err := NewEmptyBuffer(label, n)
	if err != nil {
		return nil, err
	}
	s.track(buf)
	return buf, nil
}

func (s *Scratch) track(buf *wgpu.Buffer) {
	s.bufs = append(s.bufs, buf)
	s.bytes += buf.GetSize()
}

// Bytes is the total size currently held.
func (s *Scratch) Bytes() uint64 { return s.bytes }

// Len is the number of live buffers.
func (s *Scratch) Len() int { return len(s.bufs) }

// Release destroys every buffer and waits for the device to drop them.
func (s *Scratch) Release() {
	if len(s.bufs) == 0 {
		return
	}
	for _, b := range s.bufs {
		b.Destroy()
	}
	if c, err := GetContext(); err == nil {
		c.Device.Poll(true, nil)
	}
	Log("released %d scratch buffers (%s)", len(s.bufs), humanize.Bytes(s.bytes))
	s.bufs = s.bufs[:0]
	s.bytes = 0
}
