// Package forwardpass wires one eval(tokens, n_past) call: embedding
// lookup, n_layer transformer blocks (RMSNorm -> QKV -> RoPE -> cache
// write -> causal attention -> SwiGLU FFN -> residuals), and the final
// norm + output projection, per spec §4.E. It consumes internal/tensorops
// for the primitive math and internal/kvcache for cache placement.
package forwardpass

import (
	"math"

	"github.com/llamacore/llamacore/internal/config"
	"github.com/llamacore/llamacore/internal/dtype"
	"github.com/llamacore/llamacore/internal/errs"
	"github.com/llamacore/llamacore/internal/kvcache"
	"github.com/llamacore/llamacore/internal/tensorops"
	"github.com/llamacore/llamacore/internal/tensorstore"
)

const rmsEps = 1e-5

// Pass owns the decoded weight matrices and the two scratch buffers the
// per-layer blocks rotate through.
type Pass struct {
	H       config.HParams
	W       *weights
	Cache   *kvcache.Cache
	scratch [2][]float32
	// HighWater records each scratch buffer's largest observed length.
	HighWater [2]int
}

type weights struct {
	tokEmbeddings, norm, output []float32
	layers                      []layerWeights
}

type layerWeights struct {
	attnNorm, wq, wk, wv, wo []float32
	ffnNorm, w1, w2, w3      []float32
}

// New decodes w's tensors to float32 and wires them to a fresh Pass over
// cache. Tensor shapes are validated against h by tensorstore.BuildWeights
// before this is called; New does not re-check them.
func New(h config.HParams, w *tensorstore.Weights, cache *kvcache.Cache) (*Pass, error) {
	dw, err := decodeWeights(h, w)
	if err != nil {
		return nil, err
	}
	return &Pass{H: h, W: dw, Cache: cache}, nil
}

func decode(t *tensorstore.Tensor) ([]float32, error) {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return dtype.ToFloat32(t.Data, t.DType, n)
}

func decodeWeights(h config.HParams, w *tensorstore.Weights) (*weights, error) {
	dw := &weights{}
	var err error
	if dw.tokEmbeddings, err = decode(w.TokEmbeddings); err != nil {
		return nil, err
	}
	if dw.norm, err = decode(w.Norm); err != nil {
		return nil, err
	}
	if dw.output, err = decode(w.Output); err != nil {
		return nil, err
	}
	dw.layers = make([]layerWeights, len(w.Layers))
	for i, l := range w.Layers {
		lw := &dw.layers[i]
		if lw.attnNorm, err = decode(l.AttentionNorm); err != nil {
			return nil, err
		}
		if lw.wq, err = decode(l.WQ); err != nil {
			return nil, err
		}
		if lw.wk, err = decode(l.WK); err != nil {
			return nil, err
		}
		if lw.wv, err = decode(l.WV); err != nil {
			return nil, err
		}
		if lw.wo, err = decode(l.WO); err != nil {
			return nil, err
		}
		if lw.ffnNorm, err = decode(l.FFNNorm); err != nil {
			return nil, err
		}
		if lw.w1, err = decode(l.W1); err != nil {
			return nil, err
		}
		if lw.w2, err = decode(l.W2); err != nil {
			return nil, err
		}
		if lw.w3, err = decode(l.W3); err != nil {
			return nil, err
		}
	}
	return dw, nil
}

// useScratch records a buffer's high-water mark and returns it sized to n,
// reusing the backing array when it's already large enough. idx -1 means
// no scratch (the final norm/output section).
func (p *Pass) useScratch(idx, n int) []float32 {
	if idx < 0 {
		return make([]float32, n)
	}
	if n > p.HighWater[idx] {
		p.HighWater[idx] = n
	}
	if cap(p.scratch[idx]) < n {
		p.scratch[idx] = make([]float32, n)
	}
	return p.scratch[idx][:n]
}

// Result holds what one Eval call produces.
type Result struct {
	Logits    []float32 // n_vocab*N if LogitsAll, else n_vocab
	Embedding []float32 // n_embd, last position's post-norm hidden state
}

// Eval runs the forward pass for N new tokens at positions starting at
// nPast, writing their keys and values into the cache; the caller advances
// the cache's token count after this call.
func (p *Pass) Eval(tokens []int, nPast int, logitsAll bool, wantEmbedding bool) (*Result, error) {
	h := p.H
	n := len(tokens)
	nEmbd := int(h.NEmbd)
	nHead := int(h.NHead)
	headDim := int(h.HeadDim())
	nRot := int(h.NRot)
	nFF := int(h.NFF())
	nVocab := int(h.NVocab)

	if nPast+n > int(h.NCtx) {
		return nil, errs.StateMismatch{Reason: "eval would exceed n_ctx"}
	}

	inpL := make([]float32, n*nEmbd)
	for i, tok := range tokens {
		if tok < 0 || tok >= nVocab {
			return nil, errs.StateMismatch{Reason: "token id out of vocabulary range"}
		}
		copy(inpL[i*nEmbd:(i+1)*nEmbd], p.W.tokEmbeddings[tok*nEmbd:(tok+1)*nEmbd])
	}

	for l := 0; l < int(h.NLayer); l++ {
		lw := &p.W.layers[l]

		cur := p.useScratch(0, n*nEmbd)
		tensorops.RMSNorm(cur, inpL, lw.attnNorm, n, nEmbd, rmsEps)

		qcur := make([]float32, n*nEmbd)
		kcur := make([]float32, n*nEmbd)
		vcur := make([]float32, n*nEmbd)
		tensorops.MatMul(qcur, lw.wq, cur, nEmbd, nEmbd, n)
		tensorops.MatMul(kcur, lw.wk, cur, nEmbd, nEmbd, n)
		tensorops.MatMul(vcur, lw.wv, cur, nEmbd, nEmbd, n)

		for t := 0; t < n; t++ {
			tensorops.RoPE(qcur[t*nEmbd:(t+1)*nEmbd], nPast+t, nHead, headDim, nRot)
			tensorops.RoPE(kcur[t*nEmbd:(t+1)*nEmbd], nPast+t, nHead, headDim, nRot)
		}

		if err := p.Cache.WriteK(l, nPast, n, kcur); err != nil {
			return nil, err
		}
		if err := p.Cache.WriteV(l, nPast, n, vcur); err != nil {
			return nil, err
		}

		total := nPast + n
		kAll := p.Cache.ReadK(l, total)
		vAll := p.Cache.ReadV(l, total, nHead)

		attnOut := make([]float32, n*nEmbd)
		for hIdx := 0; hIdx < nHead; hIdx++ {
			scores := make([]float32, n*total)
			for t := 0; t < n; t++ {
				qv := qcur[t*nEmbd+hIdx*headDim : t*nEmbd+(hIdx+1)*headDim]
				for k := 0; k < total; k++ {
					kv := kAll[k*nEmbd+hIdx*headDim : k*nEmbd+(hIdx+1)*headDim]
					var sum float32
					for d := 0; d < headDim; d++ {
						sum += qv[d] * kv[d]
					}
					scores[t*total+k] = sum
				}
			}
			scale := float32(1.0 / math.Sqrt(float64(headDim)))
			tensorops.ScaleInPlace(scores, scale)
			tensorops.DiagMaskInfPast(scores, n, total, nPast)
			probs := make([]float32, n*total)
			tensorops.Softmax(probs, scores, n, total)

			for t := 0; t < n; t++ {
				out := attnOut[t*nEmbd+hIdx*headDim : t*nEmbd+(hIdx+1)*headDim]
				for d := 0; d < headDim; d++ {
					var sum float32
					for k := 0; k < total; k++ {
						sum += probs[t*total+k] * vAll[k*nEmbd+hIdx*headDim+d]
					}
					out[d] = sum
				}
			}
		}

		woOut := make([]float32, n*nEmbd)
		tensorops.MatMul(woOut, lw.wo, attnOut, nEmbd, nEmbd, n)

		ffIn := p.useScratch(1, n*nEmbd)
		tensorops.Add(ffIn, woOut, inpL)

		cur2 := make([]float32, n*nEmbd)
		tensorops.RMSNorm(cur2, ffIn, lw.ffnNorm, n, nEmbd, rmsEps)

		gate := make([]float32, n*nFF)
		up := make([]float32, n*nFF)
		tensorops.MatMul(gate, lw.w1, cur2, nEmbd, nFF, n)
		tensorops.MatMul(up, lw.w3, cur2, nEmbd, nFF, n)
		siluGate := make([]float32, n*nFF)
		tensorops.Silu(siluGate, gate)
		gated := make([]float32, n*nFF)
		tensorops.Mul(gated, siluGate, up)

		ffOut := make([]float32, n*nEmbd)
		tensorops.MatMul(ffOut, lw.w2, gated, nFF, nEmbd, n)

		newInpL := make([]float32, n*nEmbd)
		tensorops.Add(newInpL, ffOut, ffIn)
		inpL = newInpL
	}

	normed := p.useScratch(-1, n*nEmbd)
	tensorops.RMSNorm(normed, inpL, p.W.norm, n, nEmbd, rmsEps)

	var embedding []float32
	if wantEmbedding {
		embedding = append([]float32(nil), normed[(n-1)*nEmbd:n*nEmbd]...)
	}

	res := &Result{Embedding: embedding}
	if logitsAll {
		res.Logits = make([]float32, n*nVocab)
		tensorops.MatMul(res.Logits, p.W.output, normed, nEmbd, nVocab, n)
	} else {
		lastHidden := normed[(n-1)*nEmbd : n*nEmbd]
		res.Logits = make([]float32, nVocab)
		tensorops.MatMul(res.Logits, p.W.output, lastHidden, nEmbd, nVocab, 1)
	}
	return res, nil
}
