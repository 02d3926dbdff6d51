// pipeline.go wires the standalone quantizer entry point: load with
// mmap disabled, walk tensors in on-disk order, quantize eligible ones,
// copy the rest verbatim, and write a fresh GGJT-format file.
package quantize

import (
	"github.com/llamacore/llamacore/internal/config"
	"github.com/llamacore/llamacore/internal/dtype"
	"github.com/llamacore/llamacore/internal/errs"
	"github.com/llamacore/llamacore/internal/fileio"
	"github.com/llamacore/llamacore/internal/metrics"
	"github.com/llamacore/llamacore/internal/modelfile"
)

const (
	magicGGJT  = 0x746a6767
	ggjtVersion = 1
	alignment  = 32
)

// targetDType maps the requested output ftype to the dtype the block
// kernels encode, per spec §6's ftype/dtype enums.
func targetDType(ft config.FType) (dtype.DType, error) {
	switch ft {
	case config.MostlyQ4_0:
		return dtype.Q4_0, nil
	case config.MostlyQ4_1:
		return dtype.Q4_1, nil
	default:
		return 0, errs.InvalidQuantizationTarget{Target: ft.String()}
	}
}

// Run loads inPath with mmap disabled, re-encodes every eligible
// weight tensor to targetFType, and writes outPath in GGJT format.
func Run(inPath, outPath string, targetFType config.FType) error {
	target, err := targetDType(targetFType)
	if err != nil {
		return err
	}

	params := config.Default()
	params.UseMmap = false
	m, err := modelfile.Load(inPath, params, nil)
	if err != nil {
		return err
	}
	defer m.Close()

	w, err := fileio.Create(outPath)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := writeHeader(w, m.HParams, targetFType); err != nil {
		return err
	}
	if err := writeVocabulary(w, m.Vocab); err != nil {
		return err
	}

	for _, name := range m.Order {
		rt, ok := m.Tensors[name]
		if !ok {
			continue
		}
		data := m.Data[name]
		if Eligible(name, rt.Shape) {
			quantized, hist, err := Tensor(data, rt.DType, rt.Shape, target)
			if err != nil {
				return err
			}
			metrics.RecordQuantizedBlock(target.String(), sum(hist)/blockElems)
			if err := writeTensorRecord(w, name, rt.Shape, target, quantized); err != nil {
				return err
			}
			continue
		}
		if err := writeTensorRecord(w, name, rt.Shape, rt.DType, data); err != nil {
			return err
		}
	}

	return nil
}

func sum(h histogram) int {
	n := 0
	for _, c := range h {
		n += c
	}
	return n
}

func writeHeader(w *fileio.Writer, h config.HParams, ft config.FType) error {
	if err := w.WriteU32(magicGGJT); err != nil {
		return err
	}
	if err := w.WriteU32(ggjtVersion); err != nil {
		return err
	}
	fields := []uint32{h.NVocab, h.NEmbd, h.NMult, h.NHead, h.NLayer, h.NRot, uint32(ft)}
	for _, f := range fields {
		if err := w.WriteU32(f); err != nil {
			return err
		}
	}
	return nil
}

// writeVocabulary always emits a score per entry (0 if the source
// lacked scores), per spec §4.H's "dummy zero scores" rule.
func writeVocabulary(w *fileio.Writer, v *modelfile.Vocabulary) error {
	for _, e := range v.Entries {
		if err := w.WriteU32(uint32(len(e.Token))); err != nil {
			return err
		}
		if err := w.WriteBytes(e.Token); err != nil {
			return err
		}
		if err := w.WriteF32(e.Score); err != nil {
			return err
		}
	}
	return nil
}

func writeTensorRecord(w *fileio.Writer, name string, shape []int, dt dtype.DType, payload []byte) error {
	if err := w.WriteU32(uint32(len(shape))); err != nil {
		return err
	}
	if err := w.WriteU32(uint32(len(name))); err != nil {
		return err
	}
	if err := w.WriteU32(uint32(dt)); err != nil {
		return err
	}
	for _, d := range shape {
		if err := w.WriteU32(uint32(d)); err != nil {
			return err
		}
	}
	if err := w.WriteBytes([]byte(name)); err != nil {
		return err
	}

	off, err := w.Tell()
	if err != nil {
		return err
	}
	pad := int(-off & (alignment - 1))
	if err := w.WritePad(pad); err != nil {
		return err
	}
	return w.WriteBytes(payload)
}
