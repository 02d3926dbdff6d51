// Package tokenizer implements score-maximizing byte-pair segmentation
// over a vocabulary with per-token scores, per spec §4.F. Symbols form a
// doubly-linked list over the input text; a container/heap priority
// queue drives the merge loop, discarding stale entries on pop rather
// than eagerly invalidating them.
package tokenizer

import (
	"container/heap"
	"unicode/utf8"

	"github.com/llamacore/llamacore/internal/modelfile"
)

const (
	// BOS and EOS are the reserved token ids spec §6 fixes.
	BOS = 1
	EOS = 2
	// byteFallbackBase is added to a raw byte value to produce its
	// fallback token id when no vocabulary entry covers it.
	byteFallbackBase = 3
)

// symbol is one doubly-linked-list node over the source text. A
// consumed symbol (merged into its left neighbor) has n == 0.
type symbol struct {
	text       []byte
	n          int
	prev, next int // index into the symbols slice, -1 for none
}

// bigram is one priority-queue entry: the pair (left, left+1... actually
// left's successor at the time the pair was admitted) with its
// vocabulary score and the byte length it was computed over.
type bigram struct {
	left, right int // symbol indices
	score       float32
	size        int // left.n + right.n at admission time, for staleness checks
}

type bigramQueue []bigram

func (q bigramQueue) Len() int { return len(q) }

// Less orders by (score desc, left index asc), the tie-break spec §4.F
// requires for deterministic segmentation.
func (q bigramQueue) Less(i, j int) bool {
	if q[i].score != q[j].score {
		return q[i].score > q[j].score
	}
	return q[i].left < q[j].left
}
func (q bigramQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *bigramQueue) Push(x interface{}) { *q = append(*q, x.(bigram)) }
func (q *bigramQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// leadByteLen returns the UTF-8 sequence length for a lead byte per the
// standard lead-byte table: >=0xF0 -> 4, >=0xE0 -> 3, >=0xC0 -> 2, else 1.
func leadByteLen(b byte) int {
	switch {
	case b >= 0xF0:
		return 4
	case b >= 0xE0:
		return 3
	case b >= 0xC0:
		return 2
	default:
		return 1
	}
}

// Tokenizer segments text against a fixed vocabulary. It holds no
// per-call state; Encode is safe to call repeatedly and concurrently
// for distinct inputs.
type Tokenizer struct {
	vocab *modelfile.Vocabulary
}

// New borrows v for the tokenizer's lifetime, per the ownership note in
// spec §3 that the tokenizer borrows a vocabulary reference.
func New(v *modelfile.Vocabulary) *Tokenizer {
	return &Tokenizer{vocab: v}
}

// Encode segments text into vocabulary ids, optionally prepending BOS.
// Empty text yields an empty slice regardless of addBOS.
func (t *Tokenizer) Encode(text string, addBOS bool) []int {
	if text == "" {
		return nil
	}

	syms := seedSymbols([]byte(text))
	q := &bigramQueue{}
	heap.Init(q)
	for i := 0; i < len(syms)-1; i++ {
		t.tryAdmit(q, syms, i, i+1)
	}

	for q.Len() > 0 {
		bg := heap.Pop(q).(bigram)
		left, right := &syms[bg.left], &syms[bg.right]
		if left.n == 0 || right.n == 0 || bg.size != left.n+right.n {
			continue
		}
		left.text = left.text[:left.n+right.n]
		left.n += right.n
		right.n = 0
		left.next = right.next
		if right.next != -1 {
			syms[right.next].prev = bg.left
		}
		if left.prev != -1 {
			t.tryAdmit(q, syms, left.prev, bg.left)
		}
		if left.next != -1 {
			t.tryAdmit(q, syms, bg.left, left.next)
		}
	}

	var ids []int
	if addBOS {
		ids = append(ids, BOS)
	}
	for i := 0; i != -1; {
		s := &syms[i]
		if id, ok := t.vocab.Lookup(s.text[:s.n]); ok {
			ids = append(ids, id)
		} else {
			for _, b := range s.text[:s.n] {
				ids = append(ids, int(b)+byteFallbackBase)
			}
		}
		i = s.next
	}
	return ids
}

// tryAdmit pushes the pair (left, right) if its concatenation is a
// vocabulary key; otherwise it is silently dropped, per spec step 2.
func (t *Tokenizer) tryAdmit(q *bigramQueue, syms []symbol, left, right int) {
	l, r := &syms[left], &syms[right]
	concatLen := l.n + r.n
	candidate := make([]byte, concatLen)
	copy(candidate, l.text[:l.n])
	copy(candidate[l.n:], r.text[:r.n])
	id, ok := t.vocab.Lookup(candidate)
	if !ok {
		return
	}
	heap.Push(q, bigram{left: left, right: right, score: t.vocab.Entries[id].Score, size: concatLen})
}

// seedSymbols splits text into one symbol per UTF-8 character, falling
// back to the lead-byte-table length when the text is not valid UTF-8
// at that position (utf8.RuneError still needs a byte count).
func seedSymbols(text []byte) []symbol {
	syms := make([]symbol, 0, len(text))
	for i := 0; i < len(text); {
		n := leadByteLen(text[i])
		if i+n > len(text) {
			n = len(text) - i
		}
		if !utf8.Valid(text[i : i+n]) {
			n = 1
		}
		syms = append(syms, symbol{text: text[i : i+n], n: n, prev: len(syms) - 1, next: -1})
		i += n
	}
	for i := range syms {
		if i+1 < len(syms) {
			syms[i].next = i + 1
		}
	}
	return syms
}

// Decode reconstructs the best-effort source bytes for a sequence of
// ids. A vocabulary hit is emitted verbatim; an id with no vocabulary
// entry (an empty-vocabulary byte-fallback run, e.g.) is reversed via
// id-3. It is the inverse spec's byte-fallback idempotence case relies on.
func (t *Tokenizer) Decode(ids []int) []byte {
	var out []byte
	for _, id := range ids {
		switch {
		case id == BOS || id == EOS:
		case id >= 0 && id < len(t.vocab.Entries):
			out = append(out, t.vocab.Entries[id].Token...)
		case id >= byteFallbackBase:
			out = append(out, byte(id-byteFallbackBase))
		}
	}
	return out
}
