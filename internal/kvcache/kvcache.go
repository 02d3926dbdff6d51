// Package kvcache implements the per-session key/value cache: two
// contiguous buffers sized n_layer*n_ctx*n_embd elements, laid out
// layer-major/position-minor for K and transposed (embedding-major,
// position-minor within a layer) for V, per spec §4.D.
package kvcache

import (
	"github.com/llamacore/llamacore/internal/dtype"
	"github.com/llamacore/llamacore/internal/errs"
	"github.com/llamacore/llamacore/internal/metrics"
)

// Cache owns the session's K and V storage and the token counter n.
type Cache struct {
	NLayer, NCtx, NEmbd int
	KVDType             dtype.DType // F16 or F32
	elemSize            int

	K []byte
	V []byte
	N int // tokens currently stored
}

// New allocates a cache sized 2*n_layer*n_ctx*n_embd*sizeof(kvDType).
func New(nLayer, nCtx, nEmbd int, kvDType dtype.DType) (*Cache, error) {
	if kvDType != dtype.F16 && kvDType != dtype.F32 {
		return nil, errs.InvalidQuantizationTarget{Target: kvDType.String()}
	}
	elemSize := kvDType.TypeSize()
	total := nLayer * nCtx * nEmbd
	if total <= 0 {
		return nil, errs.AllocationFailed{Reason: "kv-cache element count is non-positive"}
	}
	byteLen := total * elemSize
	return &Cache{
		NLayer: nLayer, NCtx: nCtx, NEmbd: nEmbd,
		KVDType: kvDType, elemSize: elemSize,
		K: make([]byte, byteLen),
		V: make([]byte, byteLen),
	}, nil
}

// CapacityBytes is the total size of K plus V.
func (c *Cache) CapacityBytes() int64 { return int64(len(c.K) + len(c.V)) }

// UsedBytes is the portion of K (equivalently V) covering stored positions.
func (c *Cache) UsedBytes() int64 {
	return int64(c.N) * int64(c.NEmbd) * int64(c.elemSize)
}

func (c *Cache) kOffset(layer, pos int) int {
	return (layer*c.NCtx + pos) * c.NEmbd * c.elemSize
}

// WriteK appends N positions of RoPE'd keys for layer l starting at p, each
// position contributing n_embd floats.
func (c *Cache) WriteK(layer, p, n int, data []float32) error {
	if len(data) != n*c.NEmbd {
		return errs.StateMismatch{Reason: "WriteK: data length does not match n*n_embd"}
	}
	off := c.kOffset(layer, p)
	for i, v := range data {
		c.putElem(c.K, off+i*c.elemSize, v)
	}
	return nil
}

// ReadK returns the flat float32 slice covering layer l, positions [0, upto),
// in (head_dim, n_head, upto) row-major order ready for the caller to
// reshape/permute as spec §4.D describes.
func (c *Cache) ReadK(layer, upto int) []float32 {
	off := c.kOffset(layer, 0)
	n := upto * c.NEmbd
	out := make([]float32, n)
	for i := range out {
		out[i] = c.getElem(c.K, off+i*c.elemSize)
	}
	return out
}

// WriteV appends N positions of layer l's values starting at p. V is
// stored transposed: position advances by one element, embedding index
// advances by n_ctx elements, within the layer's base offset
// l*n_ctx*n_embd*elemSize.
func (c *Cache) WriteV(layer, p, n int, data []float32) error {
	if len(data) != n*c.NEmbd {
		return errs.StateMismatch{Reason: "WriteV: data length does not match n*n_embd"}
	}
	base := layer * c.NCtx * c.NEmbd * c.elemSize
	for pos := 0; pos < n; pos++ {
		for e := 0; e < c.NEmbd; e++ {
			off := base + (p+pos)*c.elemSize + e*c.NCtx*c.elemSize
			c.putElem(c.V, off, data[pos*c.NEmbd+e])
		}
	}
	return nil
}

// ReadV returns layer l's values for positions [0, upto) in the same
// (head_dim, n_head, upto) order ReadK uses (position-major, n_embd floats
// per position), undoing the transposed storage.
func (c *Cache) ReadV(layer, upto, nHead int) []float32 {
	headDim := c.NEmbd / nHead
	base := layer * c.NCtx * c.NEmbd * c.elemSize
	out := make([]float32, upto*c.NEmbd)
	for pos := 0; pos < upto; pos++ {
		for h := 0; h < nHead; h++ {
			for d := 0; d < headDim; d++ {
				e := h*headDim + d
				off := base + pos*c.elemSize + e*c.NCtx*c.elemSize
				out[pos*c.NEmbd+h*headDim+d] = c.getElem(c.V, off)
			}
		}
	}
	return out
}

// Advance records that n new tokens were written, enforcing 0 <= n <= n_ctx.
func (c *Cache) Advance(n int) error {
	if c.N+n > c.NCtx {
		return errs.StateMismatch{Reason: "kv cache advance exceeds n_ctx"}
	}
	c.N += n
	metrics.RecordKVCacheOccupancy(c.N, c.NCtx, c.UsedBytes())
	return nil
}

func (c *Cache) putElem(buf []byte, off int, v float32) {
	if c.KVDType == dtype.F32 {
		putF32(buf[off:], v)
	} else {
		dtype.EncodeF16(buf[off:], v)
	}
}

func (c *Cache) getElem(buf []byte, off int) float32 {
	if c.KVDType == dtype.F32 {
		return getF32(buf[off:])
	}
	return dtype.DecodeF16(buf[off:])
}
