// Package tensorstore builds tensor descriptors over a loaded model's
// reconciled tensors, enforcing the exact-name request discipline spec §4.C
// requires: every expected tensor must be requested by exact name, a
// shape disagreement fails WrongShape, a missing name fails MissingTensor,
// and any tensor left unrequested at Done() fails UnexpectedExtraTensor.
package tensorstore

import (
	"github.com/llamacore/llamacore/internal/dtype"
	"github.com/llamacore/llamacore/internal/errs"
	"github.com/llamacore/llamacore/internal/modelfile"
)

// Tensor is a built descriptor: logical name, dtype, shape, and a borrowed
// byte slice (mmap- or arena-backed, depending on how the model loaded it).
type Tensor struct {
	Name  string
	DType dtype.DType
	Shape []int
	Data  []byte
}

// Builder requests tensors by exact name out of a loaded model.
type Builder struct {
	model     *modelfile.Model
	requested map[string]bool
}

// NewBuilder wraps a loaded model for tensor-descriptor construction.
func NewBuilder(m *modelfile.Model) *Builder {
	return &Builder{model: m, requested: make(map[string]bool, len(m.Tensors))}
}

// Request builds a descriptor for name, checking it exists and that its
// reconciled shape matches want exactly.
func (b *Builder) Request(name string, want []int) (*Tensor, error) {
	rt, ok := b.model.Tensors[name]
	if !ok {
		return nil, errs.MissingTensor{Name: name}
	}
	if !shapeEqual(rt.Shape, want) {
		return nil, errs.WrongShape{Name: name, Got: rt.Shape, Expected: want}
	}
	b.requested[name] = true
	return &Tensor{Name: name, DType: rt.DType, Shape: rt.Shape, Data: b.model.Data[name]}, nil
}

// Done verifies every tensor present in the file was requested.
func (b *Builder) Done() error {
	for name := range b.model.Tensors {
		if !b.requested[name] {
			return errs.UnexpectedExtraTensor{Name: name}
		}
	}
	return nil
}

func shapeEqual(a, b []int) bool {
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

// ArenaSize sums the descriptor overhead plus owned (non-mmap) tensor
// bytes, per spec's Σ(tensor_descriptor_overhead + (0 if mmap else bytes)).
// The overhead constant approximates the struct + shape-slice allocation
// cost of one descriptor; it does not affect correctness, only the
// capacity hint a caller might preallocate with.
const descriptorOverhead = 64

func ArenaSize(m *modelfile.Model) uint64 {
	var total uint64
	for name := range m.Tensors {
		total += descriptorOverhead
		if !m.Mmapped[name] {
			total += uint64(len(m.Data[name]))
		}
	}
	return total
}
