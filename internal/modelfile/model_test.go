package modelfile

import (
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"github.com/llamacore/llamacore/internal/config"
	"github.com/llamacore/llamacore/internal/dtype"
	"github.com/llamacore/llamacore/internal/fileio"
)

// writeGGMLHeader writes magic + the seven hparams fields for a legacy
// ggml-format file (no version word, no scores).
func writeGGMLHeader(t *testing.T, w *fileio.Writer, h config.HParams) {
	t.Helper()
	must(t, w.WriteU32(0x6c6d6767)) // "ggml"
	must(t, w.WriteU32(h.NVocab))
	must(t, w.WriteU32(h.NEmbd))
	must(t, w.WriteU32(h.NMult))
	must(t, w.WriteU32(h.NHead))
	must(t, w.WriteU32(h.NLayer))
	must(t, w.WriteU32(h.NRot))
	must(t, w.WriteU32(uint32(h.FType)))
}

func writeVocab(t *testing.T, w *fileio.Writer, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		must(t, w.WriteLenPrefixedString("t"))
	}
}

func writeF32Tensor(t *testing.T, w *fileio.Writer, name string, shape []int, values []float32) {
	t.Helper()
	must(t, w.WriteU32(uint32(len(shape))))
	must(t, w.WriteU32(uint32(len(name))))
	must(t, w.WriteU32(uint32(dtype.F32)))
	for _, d := range shape {
		must(t, w.WriteU32(uint32(d)))
	}
	must(t, w.WriteBytes([]byte(name)))
	for _, v := range values {
		must(t, w.WriteF32(v))
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func TestLoadSingleFileGGML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.bin")

	h := config.HParams{NVocab: 2, NEmbd: 4, NMult: 4, NHead: 2, NLayer: 1, NRot: 2, FType: config.AllF32}

	w, err := fileio.Create(path)
	must(t, err)
	writeGGMLHeader(t, w, h)
	writeVocab(t, w, int(h.NVocab))
	writeF32Tensor(t, w, "norm.weight", []int{4}, []float32{1, 1, 1, 1})
	must(t, w.Close())

	params := config.Default()
	params.NParts = 1
	params.UseMmap = false

	m, err := Load(path, params, nil)
	must(t, err)
	defer m.Close()

	if m.HParams.NVocab != 2 || m.HParams.NEmbd != 4 {
		t.Errorf("HParams = %+v, want NVocab=2 NEmbd=4", m.HParams)
	}
	rt, ok := m.Tensors["norm.weight"]
	if !ok {
		t.Fatal("missing tensor norm.weight")
	}
	if rt.SplitType != SplitNone {
		t.Errorf("SplitType = %v, want SplitNone", rt.SplitType)
	}
	data := m.Data["norm.weight"]
	if len(data) != 16 {
		t.Errorf("len(data) = %d, want 16", len(data))
	}
}

func TestLoadAutoInfersSinglePart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.bin")

	h := config.HParams{NVocab: 1, NEmbd: 4, NMult: 4, NHead: 2, NLayer: 1, NRot: 2, FType: config.AllF32}

	w, err := fileio.Create(path)
	must(t, err)
	writeGGMLHeader(t, w, h)
	writeVocab(t, w, int(h.NVocab))
	writeF32Tensor(t, w, "tok_embeddings.weight", []int{4, 1}, []float32{1, 2, 3, 4})
	must(t, w.Close())

	params := config.Default()
	params.UseMmap = false
	// NParts left at the default -1 so Load must infer it.

	m, err := Load(path, params, nil)
	must(t, err)
	defer m.Close()

	if len(m.readers) != 1 {
		t.Errorf("inferred %d shard readers, want 1", len(m.readers))
	}
}

func TestLoadMultiShardColumns(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "model.bin")

	h := config.HParams{NVocab: 1, NEmbd: 8, NMult: 4, NHead: 2, NLayer: 1, NRot: 2, FType: config.AllF32}

	for i, path := range []string{base, base + ".1"} {
		w, err := fileio.Create(path)
		must(t, err)
		writeGGMLHeader(t, w, h)
		writeVocab(t, w, int(h.NVocab))
		// tok_embeddings.weight shape [2,4]: row0=[a,b], row1=[c,d] with
		// values offset by shard index so we can check the interleave.
		base0 := float32(i * 100)
		writeF32Tensor(t, w, "tok_embeddings.weight", []int{2, 4}, []float32{
			base0 + 1, base0 + 2,
			base0 + 3, base0 + 4,
			base0 + 5, base0 + 6,
			base0 + 7, base0 + 8,
		})
		must(t, w.Close())
	}

	params := config.Default()
	params.NParts = 2
	params.UseMmap = false

	m, err := Load(base, params, nil)
	must(t, err)
	defer m.Close()

	rt := m.Tensors["tok_embeddings.weight"]
	if rt.SplitType != SplitByColumns {
		t.Fatalf("SplitType = %v, want SplitByColumns", rt.SplitType)
	}
	if rt.Shape[0] != 4 || rt.Shape[1] != 4 {
		t.Fatalf("Shape = %v, want [4,4]", rt.Shape)
	}
	// floats per shard-row chunk = (2*4 elements * 4 bytes) / 4 rows / 4 bytes = 2
	data := m.Data["tok_embeddings.weight"]
	floats := bytesToFloat32s(data)
	want := []float32{1, 2, 101, 102, 3, 4, 103, 104}
	for i := range want {
		if floats[i] != want[i] {
			t.Errorf("floats[%d] = %v, want %v (full: %v)", i, floats[i], want[i], floats)
			break
		}
	}
}

func bytesToFloat32s(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(b[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out
}
