package fileio

import (
	"encoding/binary"
	"math"
	"os"

	"github.com/llamacore/llamacore/internal/errs"
)

// Writer provides positioned writes of little-endian primitives, used by
// the quantizer to produce a GGJT-format output file.
type Writer struct {
	f *os.File
}

// Create truncates/creates path for writing.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errs.IoError{Op: "create", Err: err}
	}
	return &Writer{f: f}, nil
}

// Close releases the underlying file handle.
func (w *Writer) Close() error {
	if err := w.f.Close(); err != nil {
		return errs.IoError{Op: "close", Err: err}
	}
	return nil
}

// Tell returns the current write offset.
func (w *Writer) Tell() (int64, error) {
	off, err := w.f.Seek(0, SeekCurrent)
	if err != nil {
		return 0, errs.IoError{Op: "tell", Err: err}
	}
	return off, nil
}

// WriteBytes writes raw bytes verbatim.
func (w *Writer) WriteBytes(b []byte) error {
	if _, err := w.f.Write(b); err != nil {
		return errs.IoError{Op: "write", Err: err}
	}
	return nil
}

// WriteU32 writes one little-endian uint32.
func (w *Writer) WriteU32(v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return w.WriteBytes(b[:])
}

// WriteU64 writes one little-endian uint64.
func (w *Writer) WriteU64(v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return w.WriteBytes(b[:])
}

// WriteI32 writes one little-endian int32.
func (w *Writer) WriteI32(v int32) error { return w.WriteU32(uint32(v)) }

// WriteF32 writes one little-endian IEEE-754 float32.
func (w *Writer) WriteF32(v float32) error { return w.WriteU32(math.Float32bits(v)) }

// WriteLenPrefixedString writes a u32 length followed by the string bytes.
func (w *Writer) WriteLenPrefixedString(s string) error {
	if err := w.WriteU32(uint32(len(s))); err != nil {
		return err
	}
	return w.WriteBytes([]byte(s))
}

// WritePad writes n zero bytes, used for GGJT's 32-byte payload alignment.
func (w *Writer) WritePad(n int) error {
	if n <= 0 {
		return nil
	}
	return w.WriteBytes(make([]byte, n))
}
