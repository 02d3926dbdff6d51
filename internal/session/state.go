package session

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/llamacore/llamacore/internal/errs"
	"github.com/llamacore/llamacore/internal/sampler"
)

// rngBufferSize is the fixed 64 KiB RNG slot spec §6 reserves in the
// state blob. The RNG state we actually persist is just the session's
// seed, re-rendered as decimal text — math/rand's generator exposes no
// portable serialization, so exact mid-stream resumption is out of
// scope; restoring a seed reproduces the same *future* draws only if no
// draws happened between save and restore. See the design notes for
// this tradeoff.
const rngBufferSize = 64 * 1024

// GetStateSize returns the number of bytes CopyStateData writes and
// SetStateData consumes, per spec §6's session state blob.
func (s *Session) GetStateSize() uint64 {
	size := 8 + rngBufferSize // rng_len + rng buffer
	size += 8 + 8 + len(s.lastLogits)*4
	size += 8 + len(s.lastEmbedding)*4
	size += 8 + 4 + len(s.cache.K) + len(s.cache.V)
	return uint64(size)
}

// CopyStateData writes the session's RNG, logits, embedding, and
// KV-cache into dst, returning the number of bytes written.
func (s *Session) CopyStateData(dst []byte) (int, error) {
	want := int(s.GetStateSize())
	if len(dst) < want {
		return 0, errs.StateMismatch{Reason: "copy_state_data: destination buffer too small"}
	}
	off := 0

	rng := []byte(fmt.Sprintf("%d", s.seed))
	binary.LittleEndian.PutUint64(dst[off:], uint64(len(rng)))
	off += 8
	copy(dst[off:off+rngBufferSize], rng)
	off += rngBufferSize

	binary.LittleEndian.PutUint64(dst[off:], uint64(len(s.lastLogits)))
	off += 8
	binary.LittleEndian.PutUint64(dst[off:], uint64(len(s.lastLogits)))
	off += 8
	for _, v := range s.lastLogits {
		binary.LittleEndian.PutUint32(dst[off:], math.Float32bits(v))
		off += 4
	}

	binary.LittleEndian.PutUint64(dst[off:], uint64(len(s.lastEmbedding)))
	off += 8
	for _, v := range s.lastEmbedding {
		binary.LittleEndian.PutUint32(dst[off:], math.Float32bits(v))
		off += 4
	}

	kvSize := len(s.cache.K) + len(s.cache.V)
	binary.LittleEndian.PutUint64(dst[off:], uint64(kvSize))
	off += 8
	binary.LittleEndian.PutUint32(dst[off:], uint32(int32(s.cache.N)))
	off += 4
	off += copy(dst[off:], s.cache.K)
	off += copy(dst[off:], s.cache.V)

	return off, nil
}

// SetStateData restores a session's RNG, logits, embedding, and
// KV-cache from a blob previously produced by CopyStateData. The
// KV-cache size must exactly match this session's allocation.
func (s *Session) SetStateData(src []byte) (int, error) {
	off := 0
	if len(src) < 8+rngBufferSize {
		return 0, errs.StateMismatch{Reason: "set_state_data: blob too small for rng section"}
	}
	rngLen := binary.LittleEndian.Uint64(src[off:])
	off += 8
	rngText := string(src[off : off+int(rngLen)])
	off += rngBufferSize
	var seed int64
	fmt.Sscanf(rngText, "%d", &seed)
	s.seed = seed
	s.samp = sampler.New(seed)

	logitsCapacity := binary.LittleEndian.Uint64(src[off:])
	off += 8
	logitsSize := binary.LittleEndian.Uint64(src[off:])
	off += 8
	s.lastLogits = make([]float32, logitsSize)
	for i := range s.lastLogits {
		s.lastLogits[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[off:]))
		off += 4
	}
	off += int(logitsCapacity-logitsSize) * 4

	embSize := binary.LittleEndian.Uint64(src[off:])
	off += 8
	s.lastEmbedding = make([]float32, embSize)
	for i := range s.lastEmbedding {
		s.lastEmbedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[off:]))
		off += 4
	}

	kvSize := binary.LittleEndian.Uint64(src[off:])
	off += 8
	kvNTok := int32(binary.LittleEndian.Uint32(src[off:]))
	off += 4
	if int(kvSize) != len(s.cache.K)+len(s.cache.V) {
		return 0, errs.StateMismatch{Reason: "set_state_data: kv_size does not match this session's cache"}
	}
	off += copy(s.cache.K, src[off:off+len(s.cache.K)])
	off += copy(s.cache.V, src[off:off+len(s.cache.V)])
	s.cache.N = int(kvNTok)
	s.nPast = int(kvNTok)

	return off, nil
}

// GetKVCache returns the raw K and V buffers and the current token
// count, per spec §4.I's get_kv_cache.
func (s *Session) GetKVCache() (k, v []byte, nTok int) {
	return s.cache.K, s.cache.V, s.cache.N
}

// SetKVCache overwrites the session's K and V buffers and token count.
// Both slices must match this session's cache size exactly.
func (s *Session) SetKVCache(k, v []byte, nTok int) error {
	if len(k) != len(s.cache.K) || len(v) != len(s.cache.V) {
		return errs.StateMismatch{Reason: "set_kv_cache: buffer size does not match this session's cache"}
	}
	copy(s.cache.K, k)
	copy(s.cache.V, v)
	s.cache.N = nTok
	s.nPast = nTok
	return nil
}
