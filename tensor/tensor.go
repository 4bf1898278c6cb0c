// Package tensor provides the dense, row-major tensor used to move one-hot
// sequence batches, model outputs and attribution maps between packages.
package tensor

import (
	"errors"
	"fmt"

	"golang.org/x/exp/constraints"
)

// ErrShapeMismatch is returned whenever two shapes that must agree do not.
// Shapes are never broadcast or truncated to make them fit.
var ErrShapeMismatch = errors.New("shape mismatch")

// Numeric is the set of element types a Tensor can hold.
type Numeric interface {
	constraints.Integer | constraints.Float
}

// Tensor is a row-major n-dimensional array.
type Tensor[T Numeric] struct {
	Shape []int
	Data  []T
}

// New allocates a zero-filled tensor with the given shape.
func New[T Numeric](shape ...int) *Tensor[T] {
	return &Tensor[T]{
		Shape: append([]int(nil), shape...),
		Data:  make([]T, volume(shape)),
	}
}

// FromSlice wraps data without copying. It panics if the shape does not cover data exactly.
func FromSlice[T Numeric](data []T, shape ...int) *Tensor[T] {
	if volume(shape) != len(data) {
		panic(fmt.Sprintf("tensor: shape %v does not match %d elements", shape, len(data)))
	}
	return &Tensor[T]{Shape: append([]int(nil), shape...), Data: data}
}

func volume(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Size returns the number of elements.
func (t *Tensor[T]) Size() int { return len(t.Data) }

// Rank returns the number of dimensions.
func (t *Tensor[T]) Rank() int { return len(t.Shape) }

// Dim returns dimension i; negative indices count from the end.
func (t *Tensor[T]) Dim(i int) int {
	if i < 0 {
		i += len(t.Shape)
	}
	return t.Shape[i]
}

// Clone returns a deep copy.
func (t *Tensor[T]) Clone() *Tensor[T] {
	data := make([]T, len(t.Data))
	copy(data, t.Data)
	return &Tensor[T]{Shape: append([]int(nil), t.Shape...), Data: data}
}

// Reshape returns a view with a new shape, or nil if the element count differs.
func (t *Tensor[T]) Reshape(shape ...int) *Tensor[T] {
	if volume(shape) != len(t.Data) {
		return nil
	}
	return &Tensor[T]{Shape: append([]int(nil), shape...), Data: t.Data}
}

// RowSize is the number of elements in one slice along the leading axis.
func (t *Tensor[T]) RowSize() int {
	if len(t.Shape) == 0 || t.Shape[0] == 0 {
		return 0
	}
	return len(t.Data) / t.Shape[0]
}

// Row returns a view of entry i along the leading axis. The view shares storage.
func (t *Tensor[T]) Row(i int) *Tensor[T] {
	n := t.RowSize()
	return &Tensor[T]{
		Shape: append([]int(nil), t.Shape[1:]...),
		Data:  t.Data[i*n : (i+1)*n],
	}
}

// Slice returns a view of rows [start, end) along the leading axis.
func (t *Tensor[T]) Slice(start, end int) *Tensor[T] {
	n := t.RowSize()
	shape := append([]int(nil), t.Shape...)
	shape[0] = end - start
	return &Tensor[T]{Shape: shape, Data: t.Data[start*n : end*n]}
}

// SameShape reports whether two shapes are identical.
func SameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// CheckShape returns ErrShapeMismatch, annotated with what, unless got equals want.
func CheckShape(what string, got, want []int) error {
	if !SameShape(got, want) {
		return fmt.Errorf("%s: got %v, want %v: %w", what, got, want, ErrShapeMismatch)
	}
	return nil
}

// Abs replaces every element with its absolute value in place.
func (t *Tensor[T]) Abs() *Tensor[T] {
	for i, v := range t.Data {
		if v < 0 {
			t.Data[i] = -v
		}
	}
	return t
}

// Convert copies t into a tensor of another element type.
func Convert[D, S Numeric](src *Tensor[S]) *Tensor[D] {
	out := &Tensor[D]{Shape: append([]int(nil), src.Shape...), Data: make([]D, len(src.Data))}
	for i, v := range src.Data {
		out.Data[i] = D(v)
	}
	return out
}

// Stack concatenates equally shaped tensors along a new leading axis.
func Stack[T Numeric](ts ...*Tensor[T]) (*Tensor[T], error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("stack: no tensors: %w", ErrShapeMismatch)
	}
	inner := ts[0].Shape
	out := New[T](append([]int{len(ts)}, inner...)...)
	n := len(ts[0].Data)
	for i, t := range ts {
		if err := CheckShape(fmt.Sprintf("stack element %d", i), t.Shape, inner); err != nil {
			return nil, err
		}
		copy(out.Data[i*n:], t.Data)
	}
	return out, nil
}
