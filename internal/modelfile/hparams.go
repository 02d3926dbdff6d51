package modelfile

import (
	"github.com/llamacore/llamacore/internal/config"
	"github.com/llamacore/llamacore/internal/fileio"
)

// readHParams reads the seven fixed-order u32 fields per spec §3/§6:
// n_vocab, n_embd, n_mult, n_head, n_layer, n_rot, ftype.
func readHParams(r *fileio.Reader) (config.HParams, error) {
	var h config.HParams
	nVocab, err := r.ReadU32()
	if err != nil {
		return h, err
	}
	nEmbd, err := r.ReadU32()
	if err != nil {
		return h, err
	}
	nMult, err := r.ReadU32()
	if err != nil {
		return h, err
	}
	nHead, err := r.ReadU32()
	if err != nil {
		return h, err
	}
	nLayer, err := r.ReadU32()
	if err != nil {
		return h, err
	}
	nRot, err := r.ReadU32()
	if err != nil {
		return h, err
	}
	ftype, err := r.ReadU32()
	if err != nil {
		return h, err
	}
	h.NVocab = nVocab
	h.NEmbd = nEmbd
	h.NMult = nMult
	h.NHead = nHead
	h.NLayer = nLayer
	h.NRot = nRot
	h.FType = config.FType(ftype)
	return h, nil
}

func hparamsEqual(a, b config.HParams) bool {
	return a.NVocab == b.NVocab && a.NEmbd == b.NEmbd && a.NMult == b.NMult &&
		a.NHead == b.NHead && a.NLayer == b.NLayer && a.NRot == b.NRot && a.FType == b.FType
}
