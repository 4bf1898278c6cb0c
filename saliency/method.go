// Package saliency routes an attribution request to one of the supported
// methods and applies the post-processing shared by all of them.
package saliency

import (
	"errors"
	"fmt"
	"strings"

	"github.com/openfluke/attrib/device"
)

// ErrUnsupportedMethod is returned for an unknown method, ISM variant or
// reference policy. It is always raised before the model is called.
var ErrUnsupportedMethod = errors.New("unsupported method")

// Method names an attribution strategy.
type Method string

const (
	NaiveISM       Method = "NaiveISM"
	InputXGradient Method = "InputXGradient"
	DeepLift       Method = "DeepLift"
	GradientSHAP   Method = "GradientSHAP"
)

// Methods lists the built-in methods in a stable order.
var Methods = []Method{NaiveISM, InputXGradient, DeepLift, GradientSHAP}

// ParseMethod matches name case-insensitively against the built-in methods.
func ParseMethod(name string) (Method, error) {
	for _, m := range Methods {
		if strings.EqualFold(name, string(m)) {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedMethod, name)
}

// Key is the annotation key results are stored under.
func (m Method) Key() string { return string(m) + "_imps" }

// Reference selects the counterfactual input of the gradient methods.
type Reference string

const (
	ReferenceZero    Reference = "zero"
	ReferenceShuffle Reference = "shuffle"
	ReferenceGC      Reference = "gc"
)

// ParseReference maps a policy name; the empty string means zero.
func ParseReference(name string) (Reference, error) {
	switch r := Reference(strings.ToLower(strings.TrimSpace(name))); r {
	case "":
		return ReferenceZero, nil
	case ReferenceZero, ReferenceShuffle, ReferenceGC:
		return r, nil
	default:
		return "", fmt.Errorf("%w: reference %q", ErrUnsupportedMethod, name)
	}
}

// ISMNaive is the only ISM variant.
const ISMNaive = "naive"

// Options configures one Explain call.
type Options struct {
	Method    Method
	Reference Reference
	Device    device.Placement
	BatchSize int
	AbsValue  bool

	// ISMVariant selects the ISM flavour; empty means naive.
	ISMVariant string
	// Target is the output element attributed by gradient methods; a
	// negative value attributes the sum of all outputs.
	Target int
	// Samples is the number of baseline draws for GradientSHAP.
	Samples int
	// Steps is the number of path points for DeepLift.
	Steps int
	Seed  int64
}

// DefaultOptions mirrors the command-line defaults.
func DefaultOptions() Options {
	return Options{
		Method:    NaiveISM,
		Reference: ReferenceZero,
		BatchSize: 32,
		Target:    -1,
		Samples:   5,
		Steps:     25,
	}
}

// Validate checks everything that can be checked without the model.
func (o Options) Validate() error {
	if o.BatchSize < 1 {
		return fmt.Errorf("batch size must be positive, got %d", o.BatchSize)
	}
	if _, err := ParseReference(string(o.Reference)); err != nil {
		return err
	}
	if o.Method == NaiveISM && o.ISMVariant != "" && !strings.EqualFold(o.ISMVariant, ISMNaive) {
		return fmt.Errorf("%w: ISM variant %q", ErrUnsupportedMethod, o.ISMVariant)
	}
	if o.Method == GradientSHAP && o.Samples < 1 {
		return fmt.Errorf("GradientSHAP needs at least one sample, got %d", o.Samples)
	}
	if o.Method == DeepLift && o.Steps < 1 {
		return fmt.Errorf("DeepLift needs at least one step, got %d", o.Steps)
	}
	return nil
}
