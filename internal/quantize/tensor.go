package quantize

import (
	"strings"

	"github.com/llamacore/llamacore/internal/dtype"
	"github.com/llamacore/llamacore/internal/errs"
)

// Eligible reports whether a tensor named name with shape shape is a
// quantization target: its name ends "weight" and it is 2-D, per spec
// §4.H's eligibility rule.
func Eligible(name string, shape []int) bool {
	return strings.HasSuffix(name, "weight") && len(shape) == 2
}

// Tensor quantizes data (nelements elements of srcDType, taken as one
// flat run of 32-element blocks regardless of row width) into target,
// returning the packed payload (whose length is the new byte size) and
// the accumulated 16-bin histogram. srcDType must be F32 or
// F16; a quantized source is rejected per spec's "quantized inputs not
// allowed -> fail" rule.
func Tensor(data []byte, srcDType dtype.DType, shape []int, target dtype.DType) ([]byte, histogram, error) {
	nElements := 1
	for _, d := range shape {
		nElements *= d
	}
	floats, err := dtype.ToFloat32(data, srcDType, nElements)
	if err != nil {
		return nil, histogram{}, err
	}
	if nElements%blockElems != 0 {
		return nil, histogram{}, errs.BadDimension{NDims: uint32(len(shape))}
	}

	nBlocks := nElements / blockElems
	blockBytes := target.TypeSize()
	out := make([]byte, nBlocks*blockBytes)
	var total histogram

	for b := 0; b < nBlocks; b++ {
		var block [blockElems]float32
		copy(block[:], floats[b*blockElems:(b+1)*blockElems])

		var encoded []byte
		var hist histogram
		switch target {
		case dtype.Q4_0:
			encoded, hist = quantizeBlockQ4_0(block)
		case dtype.Q4_1:
			encoded, hist = quantizeBlockQ4_1(block)
		default:
			return nil, histogram{}, errs.InvalidQuantizationTarget{Target: target.String()}
		}
		copy(out[b*blockBytes:], encoded)
		total.add(hist)
	}

	return out, total, nil
}
