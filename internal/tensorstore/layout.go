package tensorstore

import (
	"fmt"

	"github.com/llamacore/llamacore/internal/config"
)

// LayerTensors are the eight per-layer descriptors spec §3 lists.
type LayerTensors struct {
	AttentionNorm *Tensor
	WQ, WK, WV, WO *Tensor
	FFNNorm       *Tensor
	W1, W2, W3    *Tensor
}

// Weights is every descriptor the forward pass needs, built by exact name
// from the model layout in spec §3.
type Weights struct {
	TokEmbeddings *Tensor
	Norm          *Tensor
	Output        *Tensor
	Layers        []LayerTensors
}

// BuildWeights requests every tensor spec §3's model layout names, in the
// shapes implied by h, and calls Done() to catch any unrequested extra
// tensor the file carried.
func BuildWeights(b *Builder, h config.HParams) (*Weights, error) {
	nEmbd := int(h.NEmbd)
	nVocab := int(h.NVocab)
	nFF := int(h.NFF())

	w := &Weights{}
	var err error
	if w.TokEmbeddings, err = b.Request("tok_embeddings.weight", []int{nEmbd, nVocab}); err != nil {
		return nil, err
	}
	if w.Norm, err = b.Request("norm.weight", []int{nEmbd}); err != nil {
		return nil, err
	}
	if w.Output, err = b.Request("output.weight", []int{nEmbd, nVocab}); err != nil {
		return nil, err
	}

	w.Layers = make([]LayerTensors, h.NLayer)
	for i := range w.Layers {
		l := &w.Layers[i]
		p := fmt.Sprintf("layers.%d.", i)
		if l.AttentionNorm, err = b.Request(p+"attention_norm.weight", []int{nEmbd}); err != nil {
			return nil, err
		}
		if l.WQ, err = b.Request(p+"attention.wq.weight", []int{nEmbd, nEmbd}); err != nil {
			return nil, err
		}
		if l.WK, err = b.Request(p+"attention.wk.weight", []int{nEmbd, nEmbd}); err != nil {
			return nil, err
		}
		if l.WV, err = b.Request(p+"attention.wv.weight", []int{nEmbd, nEmbd}); err != nil {
			return nil, err
		}
		if l.WO, err = b.Request(p+"attention.wo.weight", []int{nEmbd, nEmbd}); err != nil {
			return nil, err
		}
		if l.FFNNorm, err = b.Request(p+"ffn_norm.weight", []int{nEmbd}); err != nil {
			return nil, err
		}
		if l.W1, err = b.Request(p+"feed_forward.w1.weight", []int{nEmbd, nFF}); err != nil {
			return nil, err
		}
		if l.W2, err = b.Request(p+"feed_forward.w2.weight", []int{nFF, nEmbd}); err != nil {
			return nil, err
		}
		if l.W3, err = b.Request(p+"feed_forward.w3.weight", []int{nEmbd, nFF}); err != nil {
			return nil, err
		}
	}

	if err := b.Done(); err != nil {
		return nil, err
	}
	return w, nil
}
