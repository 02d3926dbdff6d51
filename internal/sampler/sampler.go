// Package sampler implements the temperature/top-k/top-p/repeat-penalty
// pipeline of spec §4.G: an argmax fast path when temperature is
// non-positive, otherwise penalty application, partial-sort truncation,
// softmax, and an as-is (non-renormalized) top-p cut before the final
// multinomial draw.
package sampler

import (
	"math"
	"math/rand"
	"sort"
	"time"
)

// Params mirrors the four knobs spec §4.I's sample() call takes.
type Params struct {
	TopK         int
	TopP         float32
	Temp         float32
	RepeatPenalty float32
}

// Sampler owns the RNG the multinomial draw consumes. Per the
// concurrency model, a Sampler is bound to one session and is not
// safe for concurrent Sample calls.
type Sampler struct {
	rng *rand.Rand
}

// New seeds the sampler's RNG. seed<=0 means "use the current time",
// mirroring spec §6's session seed convention.
func New(seed int64) *Sampler {
	if seed <= 0 {
		seed = time.Now().UnixNano()
	}
	return &Sampler{rng: rand.New(rand.NewSource(seed))}
}

type candidate struct {
	id    int
	score float32
}

// Sample returns one token id drawn from logits under p, penalizing any
// id present in lastN. temp<=0 takes the deterministic argmax path with
// no penalty and no randomness.
func (s *Sampler) Sample(logits []float32, lastN []int, p Params) int {
	if p.Temp <= 0 {
		return argMax(logits)
	}

	inWindow := make(map[int]struct{}, len(lastN))
	for _, id := range lastN {
		inWindow[id] = struct{}{}
	}

	cands := make([]candidate, len(logits))
	for i, raw := range logits {
		x := raw / p.Temp
		if _, penalized := inWindow[i]; penalized {
			if raw < 0 {
				x *= p.RepeatPenalty
			} else {
				x /= p.RepeatPenalty
			}
		}
		cands[i] = candidate{id: i, score: x}
	}

	sort.Slice(cands, func(i, j int) bool { return cands[i].score > cands[j].score })

	if p.TopK > 0 && p.TopK < len(cands) {
		cands = cands[:p.TopK]
	}

	probs := softmax(cands)

	if p.TopP < 1 {
		probs = topPCut(probs, p.TopP)
	}

	return drawFrom(s.rng, probs)
}

func argMax(logits []float32) int {
	best := 0
	for i, v := range logits {
		if v > logits[best] {
			best = i
		}
	}
	return best
}

// softmax normalizes cands' scores over the kept candidates only, per
// spec step 4: p_i = exp(x_i - max(x)) / sum.
func softmax(cands []candidate) []candidate {
	if len(cands) == 0 {
		return cands
	}
	maxScore := cands[0].score
	for _, c := range cands {
		if c.score > maxScore {
			maxScore = c.score
		}
	}
	var sum float32
	out := make([]candidate, len(cands))
	for i, c := range cands {
		p := float32(math.Exp(float64(c.score - maxScore)))
		out[i] = candidate{id: c.id, score: p}
		sum += p
	}
	for i := range out {
		out[i].score /= sum
	}
	return out
}

// topPCut truncates probs (already descending) just after the
// cumulative probability first reaches p, leaving the kept entries'
// values unrenormalized per spec step 5's explicit "as-is" rule.
func topPCut(probs []candidate, p float32) []candidate {
	var cum float32
	for i, c := range probs {
		cum += c.score
		if cum >= p {
			return probs[:i+1]
		}
	}
	return probs
}

// drawFrom draws one id from a discrete distribution whose weights need
// not sum to 1 (the top-p cut can leave them summing to less).
func drawFrom(rng *rand.Rand, probs []candidate) int {
	if len(probs) == 0 {
		return 0
	}
	var total float32
	for _, c := range probs {
		total += c.score
	}
	r := rng.Float32() * total
	var acc float32
	for _, c := range probs {
		acc += c.score
		if r < acc {
			return c.id
		}
	}
	return probs[len(probs)-1].id
}
