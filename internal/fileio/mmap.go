package fileio

import (
	"golang.org/x/sys/unix"

	"github.com/llamacore/llamacore/internal/errs"
)

// Mapping is a read-only view of an entire file's bytes, backing tensor
// data without explicit reads. The mmap outlives every tensor descriptor
// that references it; callers must Close it last.
type Mapping struct {
	data []byte
}

// Mmap maps the whole of fd (length bytes) into the process address space,
// read-only and shared, the maintained equivalent of the teacher's direct
// syscall.Mmap call.
func Mmap(fd uintptr, length int) (*Mapping, error) {
	data, err := unix.Mmap(int(fd), 0, length, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, errs.IoError{Op: "mmap", Err: err}
	}
	return &Mapping{data: data}, nil
}

// Bytes returns the mapped region.
func (m *Mapping) Bytes() []byte { return m.data }

// Close unmaps the region. Callers must have released every tensor
// descriptor that borrows from it first.
func (m *Mapping) Close() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	if err != nil {
		return errs.IoError{Op: "munmap", Err: err}
	}
	return nil
}

// Pinner asks the OS to keep a growing prefix of a mapping resident,
// advancing with GrowTo as the loader reads further into the file.
type Pinner struct {
	data   []byte
	locked int
}

// NewPinner wraps data for incremental mlock-based pinning.
func NewPinner(data []byte) *Pinner {
	return &Pinner{data: data}
}

// GrowTo pins bytes [0, n) of the underlying mapping. Calls with a smaller
// n than already pinned are no-ops; mlock is idempotent over a superset
// region, so this only ever grows the locked prefix.
func (p *Pinner) GrowTo(n int) error {
	if n <= p.locked {
		return nil
	}
	if n > len(p.data) {
		n = len(p.data)
	}
	if err := unix.Mlock(p.data[:n]); err != nil {
		return errs.IoError{Op: "mlock", Err: err}
	}
	p.locked = n
	return nil
}

// Unlock releases the pinned prefix.
func (p *Pinner) Unlock() error {
	if p.locked == 0 {
		return nil
	}
	err := unix.Munlock(p.data[:p.locked])
	p.locked = 0
	if err != nil {
		return errs.IoError{Op: "munlock", Err: err}
	}
	return nil
}
