package modelfile

import "github.com/llamacore/llamacore/internal/fileio"

// VocabEntry is one (token_bytes, score) pair at a fixed id.
type VocabEntry struct {
	Token []byte
	Score float32
}

// Vocabulary is the ordered sequence of entries plus the reverse lookup
// the tokenizer needs, per spec §3. Reserved ids: 0 unused, 1 BOS, 2 EOS.
type Vocabulary struct {
	Entries []VocabEntry
	ByToken map[string]int
}

func newVocabulary(n int) *Vocabulary {
	return &Vocabulary{
		Entries: make([]VocabEntry, 0, n),
		ByToken: make(map[string]int, n),
	}
}

func (v *Vocabulary) add(token []byte, score float32) {
	id := len(v.Entries)
	v.Entries = append(v.Entries, VocabEntry{Token: token, Score: score})
	v.ByToken[string(token)] = id
}

// Size returns n_vocab.
func (v *Vocabulary) Size() int { return len(v.Entries) }

// Lookup returns the id for a token's exact byte range, if present.
func (v *Vocabulary) Lookup(token []byte) (int, bool) {
	id, ok := v.ByToken[string(token)]
	return id, ok
}

// readVocabulary reads n_vocab entries: u32 len, len bytes, and iff the
// format carries scores, an f32 score. Missing-score files get score 0.
func readVocabulary(r *fileio.Reader, nVocab int, format Format) (*Vocabulary, error) {
	v := newVocabulary(nVocab)
	for i := 0; i < nVocab; i++ {
		n, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		tok, err := r.ReadBytes(int(n))
		if err != nil {
			return nil, err
		}
		var score float32
		if format.HasScores() {
			score, err = r.ReadF32()
			if err != nil {
				return nil, err
			}
		}
		v.add(tok, score)
	}
	return v, nil
}
