// Package quantize implements the Q4_0/Q4_1 block-quantization kernels
// and the standalone re-encode pass of spec §4.H, grounded on the
// teacher's block-oriented dequantization style in
// internal/gguf/dequant.go (fixed-size block loop, little-endian
// header fields, per-element unpack) run in the opposite direction.
package quantize

import (
	"github.com/llamacore/llamacore/internal/dtype"
)

const blockElems = 32

// histogram counts how often each of the 16 nibble values appears
// across every block a kernel call processes.
type histogram [16]int

func (h *histogram) add(other histogram) {
	for i := range h {
		h[i] += other[i]
	}
}

func clamp(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func roundToInt32(v float32) int32 {
	if v >= 0 {
		return int32(v + 0.5)
	}
	return int32(v - 0.5)
}

func packNibbles(nibbles [blockElems]uint8) [blockElems / 2]byte {
	var out [blockElems / 2]byte
	for i := 0; i < blockElems/2; i++ {
		out[i] = nibbles[2*i] | nibbles[2*i+1]<<4
	}
	return out
}

// quantizeBlockQ4_0 encodes one 32-element block as a little-endian fp16
// scale followed by 16 bytes of packed signed 4-bit values (biased by 8
// to fit the unsigned nibble range).
func quantizeBlockQ4_0(x [blockElems]float32) ([]byte, histogram) {
	var amax float32
	for _, v := range x {
		if a := abs32(v); a > amax {
			amax = a
		}
	}
	scale := amax / 7
	var nibbles [blockElems]uint8
	var hist histogram
	for i, v := range x {
		var q int32
		if scale != 0 {
			q = clamp(roundToInt32(v/scale), -8, 7)
		}
		nibbles[i] = uint8(q + 8)
		hist[nibbles[i]]++
	}
	packed := packNibbles(nibbles)

	out := make([]byte, 2+len(packed))
	dtype.EncodeF16(out[0:2], scale)
	copy(out[2:], packed[:])
	return out, hist
}

// quantizeBlockQ4_1 encodes one 32-element block as little-endian fp32
// scale and min, followed by 16 bytes of packed unsigned 4-bit values.
func quantizeBlockQ4_1(x [blockElems]float32) ([]byte, histogram) {
	min, max := x[0], x[0]
	for _, v := range x {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	scale := (max - min) / 15
	var nibbles [blockElems]uint8
	var hist histogram
	for i, v := range x {
		var q int32
		if scale != 0 {
			q = clamp(roundToInt32((v-min)/scale), 0, 15)
		}
		nibbles[i] = uint8(q)
		hist[nibbles[i]]++
	}
	packed := packNibbles(nibbles)

	out := make([]byte, 4+4+len(packed))
	putF32(out[0:4], scale)
	putF32(out[4:8], min)
	copy(out[8:], packed[:])
	return out, hist
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
