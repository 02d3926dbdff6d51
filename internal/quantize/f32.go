package quantize

import (
	"encoding/binary"
	"math"
)

func putF32(dst []byte, v float32) {
	binary.LittleEndian.PutUint32(dst, math.Float32bits(v))
}
