package forwardpass

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/llamacore/llamacore/internal/config"
	"github.com/llamacore/llamacore/internal/dtype"
	"github.com/llamacore/llamacore/internal/kvcache"
	"github.com/llamacore/llamacore/internal/tensorstore"
)

func f32Bytes(vs ...float32) []byte {
	buf := make([]byte, len(vs)*4)
	for i, v := range vs {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func fill(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// tinyWeights builds a minimal valid Weights for h with every weight
// matrix set to a small identity-ish pattern so Eval has something to do
// without requiring a real checkpoint.
func tinyWeights(t *testing.T, h config.HParams) *tensorstore.Weights {
	t.Helper()
	nEmbd := int(h.NEmbd)
	nVocab := int(h.NVocab)
	nFF := int(h.NFF())

	mkTensor := func(name string, shape []int, vals []float32) *tensorstore.Tensor {
		return &tensorstore.Tensor{Name: name, DType: dtype.F32, Shape: shape, Data: f32Bytes(vals...)}
	}

	embTable := make([]float32, nVocab*nEmbd)
	for v := 0; v < nVocab; v++ {
		for e := 0; e < nEmbd; e++ {
			embTable[v*nEmbd+e] = float32(v+1) * 0.1
		}
	}

	w := &tensorstore.Weights{
		TokEmbeddings: mkTensor("tok_embeddings.weight", []int{nEmbd, nVocab}, embTable),
		Norm:          mkTensor("norm.weight", []int{nEmbd}, fill(nEmbd, 1)),
		Output:        mkTensor("output.weight", []int{nEmbd, nVocab}, fill(nEmbd*nVocab, 0.01)),
	}
	w.Layers = make([]tensorstore.LayerTensors, h.NLayer)
	for i := range w.Layers {
		l := &w.Layers[i]
		l.AttentionNorm = mkTensor("attn_norm", []int{nEmbd}, fill(nEmbd, 1))
		l.WQ = mkTensor("wq", []int{nEmbd, nEmbd}, identityLike(nEmbd))
		l.WK = mkTensor("wk", []int{nEmbd, nEmbd}, identityLike(nEmbd))
		l.WV = mkTensor("wv", []int{nEmbd, nEmbd}, identityLike(nEmbd))
		l.WO = mkTensor("wo", []int{nEmbd, nEmbd}, identityLike(nEmbd))
		l.FFNNorm = mkTensor("ffn_norm", []int{nEmbd}, fill(nEmbd, 1))
		l.W1 = mkTensor("w1", []int{nEmbd, nFF}, fill(nEmbd*nFF, 0.05))
		l.W2 = mkTensor("w2", []int{nFF, nEmbd}, fill(nFF*nEmbd, 0.05))
		l.W3 = mkTensor("w3", []int{nEmbd, nFF}, fill(nEmbd*nFF, 0.05))
	}
	return w
}

func identityLike(n int) []float32 {
	out := make([]float32, n*n)
	for i := 0; i < n; i++ {
		out[i*n+i] = 1
	}
	return out
}

func TestEvalShapes(t *testing.T) {
	h := config.HParams{NVocab: 8, NEmbd: 4, NMult: 4, NHead: 2, NLayer: 2, NRot: 2, FType: config.AllF32, NCtx: 16}
	w := tinyWeights(t, h)
	cache, err := kvcache.New(int(h.NLayer), int(h.NCtx), int(h.NEmbd), dtype.F32)
	if err != nil {
		t.Fatalf("kvcache.New() error = %v", err)
	}
	p, err := New(h, w, cache)
	if err != nil {
		t.Fatalf("forwardpass.New() error = %v", err)
	}

	res, err := p.Eval([]int{1, 2, 3}, 0, false, true)
	if err != nil {
		t.Fatalf("Eval() error = %v", err)
	}
	if len(res.Logits) != int(h.NVocab) {
		t.Errorf("len(Logits) = %d, want %d", len(res.Logits), h.NVocab)
	}
	if len(res.Embedding) != int(h.NEmbd) {
		t.Errorf("len(Embedding) = %d, want %d", len(res.Embedding), h.NEmbd)
	}
	for _, v := range res.Logits {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("Logits contains NaN/Inf: %v", res.Logits)
		}
	}
	if err := cache.Advance(3); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}

	res2, err := p.Eval([]int{4}, 3, false, false)
	if err != nil {
		t.Fatalf("Eval() second call error = %v", err)
	}
	if len(res2.Logits) != int(h.NVocab) {
		t.Errorf("len(Logits) = %d, want %d", len(res2.Logits), h.NVocab)
	}
}

func TestEvalLogitsAllMatchesLastPosition(t *testing.T) {
	h := config.HParams{NVocab: 6, NEmbd: 4, NMult: 4, NHead: 2, NLayer: 1, NRot: 2, FType: config.AllF32, NCtx: 8}
	w := tinyWeights(t, h)
	cache, err := kvcache.New(int(h.NLayer), int(h.NCtx), int(h.NEmbd), dtype.F32)
	if err != nil {
		t.Fatalf("kvcache.New() error = %v", err)
	}
	p, err := New(h, w, cache)
	if err != nil {
		t.Fatalf("forwardpass.New() error = %v", err)
	}

	all, err := p.Eval([]int{1, 2}, 0, true, false)
	if err != nil {
		t.Fatalf("Eval(logitsAll) error = %v", err)
	}
	if len(all.Logits) != 2*int(h.NVocab) {
		t.Fatalf("len(Logits) = %d, want %d", len(all.Logits), 2*h.NVocab)
	}

	cache2, err := kvcache.New(int(h.NLayer), int(h.NCtx), int(h.NEmbd), dtype.F32)
	if err != nil {
		t.Fatalf("kvcache.New() error = %v", err)
	}
	p2, err := New(h, w, cache2)
	if err != nil {
		t.Fatalf("forwardpass.New() error = %v", err)
	}
	last, err := p2.Eval([]int{1, 2}, 0, false, false)
	if err != nil {
		t.Fatalf("Eval(last only) error = %v", err)
	}
	for i, v := range last.Logits {
		if got := all.Logits[int(h.NVocab)+i]; got != v {
			t.Errorf("logitsAll last-position Logits[%d] = %v, want %v", i, got, v)
		}
	}
}
