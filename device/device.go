// Package device names the compute targets a model can be placed on and the
// single rule for reconciling them: the model is placed once, data follows it.
package device

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPlacement is returned when a model and its data cannot be reconciled on
// one compute target. No other target is ever tried as a fallback.
var ErrPlacement = errors.New("device placement")

// Placement is one of the two supported compute targets.
type Placement int

const (
	Local       Placement = iota // host CPU
	Accelerator                  // WebGPU adapter
)

func (p Placement) String() string {
	switch p {
	case Local:
		return "cpu"
	case Accelerator:
		return "accelerator"
	default:
		return fmt.Sprintf("Placement(%d)", int(p))
	}
}

// Parse maps a device identifier onto a placement. Accelerator identifiers may
// carry an ordinal suffix ("cuda:0", "gpu:1"); only the class is retained.
func Parse(id string) (Placement, error) {
	class := strings.ToLower(strings.TrimSpace(id))
	if i := strings.IndexByte(class, ':'); i >= 0 {
		class = class[:i]
	}
	switch class {
	case "", "cpu", "local", "host":
		return Local, nil
	case "gpu", "cuda", "accelerator", "webgpu", "wgpu", "metal", "vulkan":
		return Accelerator, nil
	default:
		return Local, fmt.Errorf("unknown compute target %q: %w", id, ErrPlacement)
	}
}

// Placeable is implemented by models that can move between targets.
type Placeable interface {
	Placement() Placement
	Place(Placement) error
}

// Ensure places m on target. It is a no-op when m is already there. Models
// that cannot move are accepted only when the target is Local.
func Ensure(m any, target Placement) error {
	p, ok := m.(Placeable)
	if !ok {
		if target == Local {
			return nil
		}
		return fmt.Errorf("model %T cannot be placed on %s: %w", m, target, ErrPlacement)
	}
	if p.Placement() == target {
		return nil
	}
	if err := p.Place(target); err != nil {
		if errors.Is(err, ErrPlacement) {
			return err
		}
		return fmt.Errorf("place model on %s: %w: %w", target, err, ErrPlacement)
	}
	if p.Placement() != target {
		return fmt.Errorf("model reports %s after placing on %s: %w", p.Placement(), target, ErrPlacement)
	}
	return nil
}

// Of returns where m lives; models without placement are Local.
func Of(m any) Placement {
	if p, ok := m.(Placeable); ok {
		return p.Placement()
	}
	return Local
}

// ScratchReleaser is implemented by models that hold per-call scratch buffers
// on an accelerator.
type ScratchReleaser interface {
	ReleaseScratch() error
}

// ReleaseScratch frees m's scratch buffers if it keeps any.
func ReleaseScratch(m any) error {
	if r, ok := m.(ScratchReleaser); ok {
		return r.ReleaseScratch()
	}
	return nil
}
