// Package gpu runs the accelerator side of attribution on WebGPU: batched
// forward kernels for the sequence models in package nn, and the L2 distance
// reduction used when scoring perturbations.
package gpu

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/openfluke/webgpu/wgpu"
)

// ErrResourceExhausted wraps accelerator allocation failures. They are not
// retried; releasing scratch buffers after every sequence is what keeps
// long runs below the device limit.
var ErrResourceExhausted = errors.New("accelerator resource exhausted")

// Debug enables verbose adapter and buffer logging.
var Debug = os.Getenv("ATTRIB_GPU_DEBUG") != ""

// AdapterHint, when set, selects the first adapter whose name or vendor
// contains it (case-insensitive).
var AdapterHint = os.Getenv("ATTRIB_GPU")

// Log prints when Debug is set.
func Log(format string, args ...any) {
	if Debug {
		log.Printf("[gpu] "+format, args...)
	}
}

// Context holds the single WebGPU context for the process.
type Context struct {
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue

	once sync.Once
	err  error
}

var ctx Context

// GetContext returns the process-wide context, initialising it on first use.
func GetContext() (*Context, error) {
	ctx.once.Do(func() {
		ctx.err = ctx.init()
	})
	if ctx.err != nil {
		return nil, ctx.err
	}
	if ctx.Device == nil || ctx.Queue == nil {
		return nil, fmt.Errorf("WebGPU device or queue not initialized")
	}
	return &ctx, nil
}

// Available reports whether an accelerator could be acquired.
func Available() bool {
	_, err := GetContext()
	return err == nil
}

func (c *Context) init() error {
	c.Instance = wgpu.CreateInstance(nil)
	if c.Instance == nil {
		return fmt.Errorf("failed to create WebGPU instance")
	}

	if hint := strings.ToLower(AdapterHint); hint != "" {
		for _, a := range c.Instance.EnumerateAdapters(nil) {
			info := a.GetInfo()
			Log("adapter: %s (vendor %s, type %d)", info.Name, info.VendorName, info.AdapterType)
			if strings.Contains(strings.ToLower(info.Name), hint) ||
				strings.Contains(strings.ToLower(info.VendorName), hint) {
				c.Adapter = a
				break
			}
		}
		if c.Adapter == nil {
			return fmt.Errorf("no adapter matches %q", AdapterHint)
		}
	}

	var err error
	for _, opts := range []*wgpu.RequestAdapterOptions{
		{PowerPreference: wgpu.PowerPreferenceHighPerformance},
		{PowerPreference: wgpu.PowerPreferenceLowPower},
		nil,
	} {
		if c.Adapter != nil {
			break
		}
		c.Adapter, err = c.Instance.RequestAdapter(opts)
		if err != nil {
			Log("adapter request failed: %v", err)
		}
	}
	if c.Adapter == nil {
		return fmt.Errorf("all adapter attempts failed: %v", err)
	}

	info := c.Adapter.GetInfo()
	Log("using adapter %s (vendor %s)", info.Name, info.VendorName)

	c.Device, err = c.Adapter.RequestDevice(nil)
	if err != nil {
		return err
	}
	c.Queue = c.Device.GetQueue()
	return nil
}
