// Package fileio wraps positioned file reads/writes and mmap/mlock
// residency pinning behind the small surface the loader and quantizer need.
package fileio

import (
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/llamacore/llamacore/internal/errs"
)

// Whence mirrors io.Seeker's constants so callers don't need to import "io".
const (
	SeekStart   = io.SeekStart
	SeekCurrent = io.SeekCurrent
	SeekEnd     = io.SeekEnd
)

// Reader provides positioned reads of little-endian primitives and raw byte
// ranges over an open file, plus tell/seek/size.
type Reader struct {
	f    *os.File
	size int64
}

// Open opens path for reading and stats its size up front.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.IoError{Op: "open", Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errs.IoError{Op: "stat", Err: err}
	}
	return &Reader{f: f, size: info.Size()}, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	if err := r.f.Close(); err != nil {
		return errs.IoError{Op: "close", Err: err}
	}
	return nil
}

// Fd exposes the file descriptor for the mmap path.
func (r *Reader) Fd() uintptr { return r.f.Fd() }

// Size returns the file's known size in bytes.
func (r *Reader) Size() int64 { return r.size }

// Tell returns the current read offset.
func (r *Reader) Tell() (int64, error) {
	off, err := r.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, errs.IoError{Op: "tell", Err: err}
	}
	return off, nil
}

// Seek repositions the read offset, as with io.Seeker.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	off, err := r.f.Seek(offset, whence)
	if err != nil {
		return 0, errs.IoError{Op: "seek", Err: err}
	}
	return off, nil
}

// ReadBytes reads exactly n bytes, failing on short read.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.f, buf); err != nil {
		return nil, errs.IoError{Op: "read", Err: err}
	}
	return buf, nil
}

// ReadU32 reads one little-endian uint32.
func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadI32 reads one little-endian int32 (used for kv_ntok in state blobs).
func (r *Reader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

// ReadU64 reads one little-endian uint64 (state blob length fields).
func (r *Reader) ReadU64() (uint64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadF32 reads one little-endian IEEE-754 float32, encoded as its bit
// pattern per spec §6's vocabulary score field.
func (r *Reader) ReadF32() (float32, error) {
	v, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// ReadLenPrefixedString reads a u32 length followed by that many bytes, the
// shape used for both vocabulary entries and tensor names.
func (r *Reader) ReadLenPrefixedString() (string, error) {
	n, err := r.ReadU32()
	if err != nil {
		return "", err
	}
	b, err := r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// AtEOF reports whether the next read would hit end of file, used by the
// loader's tensor-record scan which runs "until EOF".
func (r *Reader) AtEOF() (bool, error) {
	off, err := r.Tell()
	if err != nil {
		return false, err
	}
	return off >= r.size, nil
}
