// Package config holds the hyperparameters read from a model file and the
// parameters a caller supplies when opening a session.
package config

import (
	"fmt"
	"time"

	"github.com/llamacore/llamacore/internal/errs"
)

// FType tags the quantization regime of an on-disk file.
type FType uint32

const (
	AllF32           FType = 0
	MostlyF16        FType = 1
	MostlyQ4_0       FType = 2
	MostlyQ4_1       FType = 3
	MostlyQ4_1SomeF16 FType = 4
)

func (f FType) String() string {
	switch f {
	case AllF32:
		return "all_f32"
	case MostlyF16:
		return "mostly_f16"
	case MostlyQ4_0:
		return "mostly_q4_0"
	case MostlyQ4_1:
		return "mostly_q4_1"
	case MostlyQ4_1SomeF16:
		return "mostly_q4_1_some_f16"
	default:
		return fmt.Sprintf("ftype(%d)", uint32(f))
	}
}

// HParams are the seven on-disk hyperparameters plus their derived fields.
type HParams struct {
	NVocab uint32
	NEmbd  uint32
	NMult  uint32
	NHead  uint32
	NLayer uint32
	NRot   uint32
	FType  FType

	// NCtx is per-session, not per-file, but travels with HParams so the
	// forward pass and KV-cache can be sized from one struct.
	NCtx uint32
}

// NFF is the SwiGLU hidden width, rounded up to a multiple of NMult.
func (h HParams) NFF() uint32 {
	raw := (2 * (4 * h.NEmbd)) / 3
	return roundUpToMultiple(raw, h.NMult)
}

// HeadDim is the per-head embedding width.
func (h HParams) HeadDim() uint32 {
	if h.NHead == 0 {
		return 0
	}
	return h.NEmbd / h.NHead
}

func roundUpToMultiple(v, mult uint32) uint32 {
	if mult == 0 {
		return v
	}
	return ((v + mult - 1) / mult) * mult
}

// Validate checks the invariants spec.md §3 requires of a loaded hparams
// block, following the teacher's style of sequential explicit range checks.
func (h HParams) Validate() error {
	if h.NVocab == 0 {
		return fmt.Errorf("invalid n_vocab: %d (must be positive)", h.NVocab)
	}
	if h.NEmbd == 0 {
		return fmt.Errorf("invalid n_embd: %d (must be positive)", h.NEmbd)
	}
	if h.NHead == 0 {
		return fmt.Errorf("invalid n_head: %d (must be positive)", h.NHead)
	}
	if h.NEmbd%h.NHead != 0 {
		return fmt.Errorf("n_embd(%d) not divisible by n_head(%d)", h.NEmbd, h.NHead)
	}
	if h.NLayer == 0 {
		return fmt.Errorf("invalid n_layer: %d (must be positive)", h.NLayer)
	}
	if h.NMult == 0 {
		return fmt.Errorf("invalid n_mult: %d (must be positive)", h.NMult)
	}
	if h.NRot == 0 || h.NRot > h.HeadDim() {
		return fmt.Errorf("invalid n_rot: %d (must be in (0, head_dim=%d])", h.NRot, h.HeadDim())
	}
	if h.NCtx != 0 && h.NCtx < h.NLayer {
		// n_ctx==0 is allowed here; Params.Validate is what enforces a real n_ctx.
		return nil
	}
	return nil
}

// ModelClass is the coarse size bucket inferred from n_layer, used to key
// the MEM_REQ_* tables design note §9 asks for.
type ModelClass int

const (
	ModelUnknown ModelClass = iota
	Model7B
	Model13B
	Model30B
	Model65B
)

func (m ModelClass) String() string {
	switch m {
	case Model7B:
		return "7B"
	case Model13B:
		return "13B"
	case Model30B:
		return "30B"
	case Model65B:
		return "65B"
	default:
		return "unknown"
	}
}

// ClassifyModel infers the model class from n_layer per spec.md §3.
func ClassifyModel(nLayer uint32) ModelClass {
	switch nLayer {
	case 32:
		return Model7B
	case 40:
		return Model13B
	case 60:
		return Model30B
	case 80:
		return Model65B
	default:
		return ModelUnknown
	}
}

// MemRequirements is one row of the global MEM_REQ_* table: approximate
// bytes needed for the model arena and scratch buffers at a given class
// and kv precision, mirroring the constants design note §9 calls for.
type MemRequirements struct {
	Model    uint64 // bytes for unquantized weights resident off mmap
	KVCacheF16 uint64
	Scratch  uint64
}

// memReqTable is indexed by ModelClass; entries are order-of-magnitude
// planning figures, not exact allocator bounds.
var memReqTable = map[ModelClass]MemRequirements{
	Model7B:  {Model: 14 * 1 << 30, KVCacheF16: 1 << 30, Scratch: 512 << 20},
	Model13B: {Model: 26 * 1 << 30, KVCacheF16: 2 << 30, Scratch: 640 << 20},
	Model30B: {Model: 60 * 1 << 30, KVCacheF16: 4 << 30, Scratch: 768 << 20},
	Model65B: {Model: 120 * 1 << 30, KVCacheF16: 6 << 30, Scratch: 1 << 30},
}

// MemRequirementsFor looks up the planning table for a class; unknown
// classes return the zero value.
func MemRequirementsFor(c ModelClass) MemRequirements {
	return memReqTable[c]
}

// ProgressCallback reports load progress; denominator is the total bytes
// of tensor payload data expected.
type ProgressCallback func(loadedBytes, totalBytes uint64)

// Params are the session-init parameters from spec.md §6.
type Params struct {
	NCtx             int
	NParts           int // -1 means infer from the file
	Seed             int64
	F16KV            bool
	LogitsAll        bool
	VocabOnly        bool
	UseMmap          bool
	UseMlock         bool
	Embedding        bool
	ProgressCallback ProgressCallback

	// EmbedSink is additive: when set and Embedding is true, every eval's
	// post-norm hidden state is also pushed to an external sink.
	EmbedSink EmbedSink
}

// EmbedSink receives a session's embedding output; see internal/embedexport
// for the Arrow Flight-backed implementation.
type EmbedSink interface {
	PutEmbedding(sessionID string, vec []float32) error
}

// Default returns spec.md §6's default session parameters.
func Default() Params {
	return Params{
		NCtx:      512,
		NParts:    -1,
		Seed:      0,
		UseMmap:   true,
		UseMlock:  false,
		LogitsAll: false,
		VocabOnly: false,
		Embedding: false,
	}
}

// Validate checks the session parameters, resolving Seed<=0 to the current
// time the way spec.md §6 describes ("seed (<=0 means current time)").
func (p *Params) Validate() error {
	if p.NCtx <= 0 {
		return fmt.Errorf("invalid n_ctx: %d (must be positive)", p.NCtx)
	}
	if p.NParts <= 0 && p.NParts != -1 {
		return fmt.Errorf("invalid n_parts: %d (must be positive or -1 for auto)", p.NParts)
	}
	if p.Seed <= 0 {
		p.Seed = time.Now().UnixNano()
	}
	if p.Embedding && p.EmbedSink == nil {
		// Embedding without a sink is not an error: get_embeddings() still
		// works from the session buffer per spec §4.I, export is opt-in.
		return nil
	}
	return nil
}

// ValidateAgainst cross-checks hparams and params for mutual consistency:
// InconsistentHparams when n_ctx < n_layer, Overflow when the kv-cache
// element count is zero or above 2^40.
func ValidateAgainst(h HParams, p Params) error {
	if uint32(p.NCtx) < h.NLayer {
		return errs.InconsistentHparams{Reason: fmt.Sprintf("n_ctx(%d) smaller than n_layer(%d)", p.NCtx, h.NLayer)}
	}
	total := uint64(h.NLayer) * uint64(p.NCtx) * uint64(h.NEmbd)
	if total == 0 || total > (1<<40) {
		return errs.Overflow{Reason: fmt.Sprintf("kv-cache element count %d out of range", total)}
	}
	return nil
}
