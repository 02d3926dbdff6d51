// Package dtype is the tagged dtype variant shared by the loader, tensor
// store, and quantizer, per the "dynamic dispatch on dtype" design note:
// one enum with element_size/block_size accessors rather than a per-dtype
// inheritance tree.
package dtype

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

type DType uint32

const (
	F32  DType = 0
	F16  DType = 1
	Q4_0 DType = 2
	Q4_1 DType = 3
)

func (d DType) String() string {
	switch d {
	case F32:
		return "F32"
	case F16:
		return "F16"
	case Q4_0:
		return "Q4_0"
	case Q4_1:
		return "Q4_1"
	default:
		return fmt.Sprintf("dtype(%d)", uint32(d))
	}
}

// BlockSize is the number of elements one quantization block covers. F32
// and F16 are unblocked (block size 1).
func (d DType) BlockSize() int {
	switch d {
	case Q4_0, Q4_1:
		return 32
	default:
		return 1
	}
}

// TypeSize is the number of bytes one block occupies on disk: the element
// width for F32/F16, or scale(s) plus packed nibbles for the Q4 family.
func (d DType) TypeSize() int {
	switch d {
	case F32:
		return 4
	case F16:
		return 2
	case Q4_0:
		return 2 + 16 // fp16 scale + 16 bytes of packed 4-bit values
	case Q4_1:
		return 4 + 4 + 16 // fp32 scale + fp32 min + 16 bytes of packed 4-bit values
	default:
		return 0
	}
}

// Valid reports whether d is one of the four recognized dtypes.
func Valid(v uint32) bool {
	return v == uint32(F32) || v == uint32(F16) || v == uint32(Q4_0) || v == uint32(Q4_1)
}

// SizeBytes computes the on-disk byte size of nElements elements of d,
// per spec's size = element_size(dtype) * product(shape) / block_size(dtype).
func (d DType) SizeBytes(nElements int) int {
	bs := d.BlockSize()
	if bs == 0 {
		return 0
	}
	nBlocks := (nElements + bs - 1) / bs
	return nBlocks * d.TypeSize()
}

// Quantized reports whether d is one of the Q4 family.
func (d DType) Quantized() bool { return d == Q4_0 || d == Q4_1 }

// F16ToF32 decodes a little-endian IEEE-754 half-float.
func F16ToF32(bits uint16) float32 {
	return float16.Frombits(bits).Float32()
}

// F32ToF16 encodes v as a little-endian IEEE-754 half-float, rounding to
// nearest per float16.Fromfloat32.
func F32ToF16(v float32) uint16 {
	return float16.Fromfloat32(v).Bits()
}

// EncodeF16 writes v into dst[0:2] as little-endian half-float bytes.
func EncodeF16(dst []byte, v float32) {
	binary.LittleEndian.PutUint16(dst, F32ToF16(v))
}

// DecodeF16 reads a little-endian half-float from src[0:2].
func DecodeF16(src []byte) float32 {
	return F16ToF32(binary.LittleEndian.Uint16(src))
}

// ToFloat32 decodes n elements of data from dtype d into a fresh float32
// slice: F32 is a pass-through reinterpret, F16 decodes elementwise.
// Quantized inputs are not accepted here, matching the quantizer's rule
// that only F16/F32 sources may feed a dequant-then-requantize pass.
func ToFloat32(data []byte, d DType, n int) ([]float32, error) {
	switch d {
	case F32:
		out := make([]float32, n)
		for i := 0; i < n; i++ {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		}
		return out, nil
	case F16:
		out := make([]float32, n)
		for i := 0; i < n; i++ {
			out[i] = DecodeF16(data[i*2:])
		}
		return out, nil
	default:
		return nil, fmt.Errorf("ToFloat32: dtype %s is quantized, not directly convertible", d)
	}
}
