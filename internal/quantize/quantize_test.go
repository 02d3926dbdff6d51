package quantize

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/llamacore/llamacore/internal/config"
	"github.com/llamacore/llamacore/internal/dtype"
	"github.com/llamacore/llamacore/internal/fileio"
)

func TestEligible(t *testing.T) {
	cases := []struct {
		name  string
		shape []int
		want  bool
	}{
		{"layers.0.attention.wq.weight", []int{4, 4}, true},
		{"norm.weight", []int{4}, false},
		{"tok_embeddings.bias", []int{4, 4}, false},
	}
	for _, c := range cases {
		if got := Eligible(c.name, c.shape); got != c.want {
			t.Errorf("Eligible(%q, %v) = %v, want %v", c.name, c.shape, got, c.want)
		}
	}
}

func TestQuantizeBlockQ4_0RoundTripsWithinScale(t *testing.T) {
	var x [blockElems]float32
	for i := range x {
		x[i] = float32(i) - 16
	}
	encoded, hist := quantizeBlockQ4_0(x)
	if len(encoded) != dtype.Q4_0.TypeSize() {
		t.Fatalf("len(encoded) = %d, want %d", len(encoded), dtype.Q4_0.TypeSize())
	}
	total := 0
	for _, c := range hist {
		total += c
	}
	if total != blockElems {
		t.Errorf("histogram total = %d, want %d", total, blockElems)
	}
}

func TestTensorRejectsQuantizedSource(t *testing.T) {
	_, _, err := Tensor(make([]byte, 18), dtype.Q4_0, []int{32, 1}, dtype.Q4_0)
	if err == nil {
		t.Error("Tensor() with quantized source = nil error, want error")
	}
}

func TestTensorRejectsNonMultipleOf32(t *testing.T) {
	data := make([]byte, 40*4)
	_, _, err := Tensor(data, dtype.F32, []int{40, 1}, dtype.Q4_0)
	if err == nil {
		t.Error("Tensor() with non-block-aligned element count = nil error, want error")
	}
}

func TestRunProducesGGJTFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "model.bin")
	out := filepath.Join(dir, "model.ggjt")

	h := config.HParams{NVocab: 1, NEmbd: 32, NMult: 4, NHead: 2, NLayer: 0, NRot: 2, FType: config.AllF32}
	w, err := fileio.Create(in)
	if err != nil {
		t.Fatal(err)
	}
	mustWrite(t, w.WriteU32(0x6c6d6767))
	mustWrite(t, w.WriteU32(h.NVocab))
	mustWrite(t, w.WriteU32(h.NEmbd))
	mustWrite(t, w.WriteU32(h.NMult))
	mustWrite(t, w.WriteU32(h.NHead))
	mustWrite(t, w.WriteU32(h.NLayer))
	mustWrite(t, w.WriteU32(h.NRot))
	mustWrite(t, w.WriteU32(uint32(h.FType)))
	mustWrite(t, w.WriteLenPrefixedString("tok"))

	mustWrite(t, w.WriteU32(2))  // n_dims
	mustWrite(t, w.WriteU32(uint32(len("tok_embeddings.weight"))))
	mustWrite(t, w.WriteU32(uint32(dtype.F32)))
	mustWrite(t, w.WriteU32(32))
	mustWrite(t, w.WriteU32(1))
	mustWrite(t, w.WriteBytes([]byte("tok_embeddings.weight")))
	for i := 0; i < 32; i++ {
		mustWrite(t, w.WriteF32(float32(i)))
	}
	mustWrite(t, w.Close())

	if err := Run(in, out, config.MostlyQ4_0); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	r, err := fileio.Open(out)
	if err != nil {
		t.Fatalf("reopening output: %v", err)
	}
	defer r.Close()
	magic, err := r.ReadU32()
	if err != nil || magic != magicGGJT {
		t.Errorf("output magic = %x, err %v, want %x", magic, err, magicGGJT)
	}
}

func mustWrite(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func TestAbs32(t *testing.T) {
	if abs32(-3) != 3 || abs32(3) != 3 {
		t.Error("abs32 sign handling wrong")
	}
	if math.IsNaN(float64(abs32(float32(math.NaN())))) == false {
		t.Error("abs32(NaN) should remain NaN")
	}
}
