// Package session wires the loader, tensor store, KV-cache, forward
// pass, tokenizer, and sampler behind the observable surface spec §4.I
// names, generalizing the teacher's CPUEngine (internal/engine/engine_cpu.go)
// — a struct owning model+weights+tokenizer with Init/Infer entry
// points — to the session's larger surface (state serialize/deserialize,
// explicit eval/sample/tokenize split, quantize passthrough).
package session

import (
	"time"

	"github.com/llamacore/llamacore/internal/config"
	"github.com/llamacore/llamacore/internal/dtype"
	"github.com/llamacore/llamacore/internal/errs"
	"github.com/llamacore/llamacore/internal/forwardpass"
	"github.com/llamacore/llamacore/internal/kvcache"
	"github.com/llamacore/llamacore/internal/logger"
	"github.com/llamacore/llamacore/internal/metrics"
	"github.com/llamacore/llamacore/internal/modelfile"
	"github.com/llamacore/llamacore/internal/sampler"
	"github.com/llamacore/llamacore/internal/tensorstore"
	"github.com/llamacore/llamacore/internal/tokenizer"
)

// Session owns one model's arena, KV-cache, scratch, RNG, and logits —
// the resources spec §4's ownership note reserves exclusively to it. A
// Session is not safe for concurrent calls; callers serialize.
type Session struct {
	ID string

	model   *modelfile.Model
	weights *tensorstore.Weights
	cache   *kvcache.Cache
	pass    *forwardpass.Pass
	tok     *tokenizer.Tokenizer
	samp    *sampler.Sampler

	params config.Params
	hp     config.HParams
	nPast  int

	lastLogits    []float32
	lastLogitsN   int // positions represented in lastLogits
	lastEmbedding []float32
	seed          int64
}

// Init opens path, reconciles its tensors, and allocates the session's
// KV-cache and scratch, per spec §4's "session factory opens a model
// via B->C->D" data flow.
func Init(id, path string, params config.Params) (*Session, error) {
	start := time.Now()
	if err := params.Validate(); err != nil {
		return nil, err
	}

	m, err := modelfile.Load(path, params, params.ProgressCallback)
	if err != nil {
		return nil, err
	}

	h := m.HParams
	h.NCtx = uint32(params.NCtx)
	if err := config.ValidateAgainst(h, params); err != nil {
		m.Close()
		return nil, err
	}

	b := tensorstore.NewBuilder(m)
	w, err := tensorstore.BuildWeights(b, h)
	if err != nil {
		m.Close()
		return nil, err
	}

	kvDType := kvDTypeFor(params.F16KV)
	cache, err := kvcache.New(int(h.NLayer), params.NCtx, int(h.NEmbd), kvDType)
	if err != nil {
		m.Close()
		return nil, err
	}

	pass, err := forwardpass.New(h, w, cache)
	if err != nil {
		m.Close()
		return nil, err
	}

	logger.Log.Info("session initialized", "path", path, "n_vocab", h.NVocab, "n_ctx", params.NCtx)
	metrics.RecordLoad(time.Since(start))

	return &Session{
		ID:      id,
		model:   m,
		weights: w,
		cache:   cache,
		pass:    pass,
		tok:     tokenizer.New(m.Vocab),
		samp:    sampler.New(params.Seed),
		params:  params,
		hp:      h,
		seed:    params.Seed,
	}, nil
}

func kvDTypeFor(f16 bool) dtype.DType {
	if f16 {
		return dtype.F16
	}
	return dtype.F32
}

// Close releases the underlying model's file handles and mappings.
func (s *Session) Close() error { return s.model.Close() }

func (s *Session) NVocab() int { return int(s.hp.NVocab) }
func (s *Session) NCtx() int   { return s.params.NCtx }
func (s *Session) NEmbd() int  { return int(s.hp.NEmbd) }

// Eval runs the forward pass for tokens at the session's current
// position and advances it, storing the resulting logits/embedding for
// GetLogits/GetEmbeddings. nThreads is accepted for API parity with
// spec §4.I; the tensor library's internal fan-out is opaque here.
func (s *Session) Eval(tokens []int, nThreads int) error {
	start := time.Now()
	res, err := s.pass.Eval(tokens, s.nPast, s.params.LogitsAll, s.params.Embedding)
	if err != nil {
		return err
	}
	metrics.RecordEval(len(tokens), time.Since(start))
	if err := s.cache.Advance(len(tokens)); err != nil {
		return err
	}
	s.nPast += len(tokens)

	s.lastLogits = res.Logits
	if s.params.LogitsAll {
		s.lastLogitsN = len(tokens)
	} else {
		s.lastLogitsN = 1
	}
	if res.Embedding != nil {
		s.lastEmbedding = res.Embedding
		if s.params.EmbedSink != nil {
			if err := s.params.EmbedSink.PutEmbedding(s.ID, res.Embedding); err != nil {
				logger.Log.Warn("embed sink rejected embedding", "session", s.ID, "err", err)
			}
		}
	}
	return nil
}

// Tokenize writes text's segmentation into tokensOut, returning the
// written count, or its negation if tokensOut was too small (spec
// §4.I's "written_count or -written_count on overflow").
func (s *Session) Tokenize(text string, tokensOut []int, addBOS bool) (int, error) {
	start := time.Now()
	ids := s.tok.Encode(text, addBOS)
	metrics.RecordTokenizerEncode(time.Since(start))
	if len(ids) > len(tokensOut) {
		copy(tokensOut, ids)
		return -len(ids), errs.Overflow{Reason: "tokenize: output buffer too small"}
	}
	copy(tokensOut, ids)
	return len(ids), nil
}

// TokenToStr returns the vocabulary bytes for id, or nil if id is out
// of range.
func (s *Session) TokenToStr(id int) []byte {
	if id < 0 || id >= len(s.model.Vocab.Entries) {
		return nil
	}
	return s.model.Vocab.Entries[id].Token
}

// Sample draws one token from the session's last-eval logits, per spec
// §4.G. It panics-free returns id 0 if no eval has run yet.
func (s *Session) Sample(lastN []int, p sampler.Params) int {
	if len(s.lastLogits) == 0 {
		return 0
	}
	logits := s.lastLogits
	if s.lastLogitsN > 1 {
		logits = s.lastLogits[(s.lastLogitsN-1)*s.NVocab():]
	}
	start := time.Now()
	id := s.samp.Sample(logits, lastN, p)
	metrics.RecordSample(time.Since(start))
	return id
}

// GetLogits returns the raw buffer filled by the last Eval call:
// n_vocab floats, or n_vocab*N if LogitsAll was set.
func (s *Session) GetLogits() []float32 { return s.lastLogits }

// GetEmbeddings returns the last position's post-norm hidden state, or
// nil if params.Embedding was not set.
func (s *Session) GetEmbeddings() []float32 { return s.lastEmbedding }
