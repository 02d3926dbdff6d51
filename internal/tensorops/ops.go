// Package tensorops stands in for the external tensor-primitives library
// spec.md treats as a collaborator: matmul, rope, softmax, rms-norm, and
// the handful of elementwise ops the forward pass wires together. Weight
// tensors of shape [in, out] are stored row-major with `out` rows of `in`
// contiguous elements (row o, col i at offset o*in+i); activations of
// shape [width, n] are stored with `n` rows of `width` contiguous elements
// (token-major), mirroring nikolaydubina/llama2.go's flat []float32 layout
// and goroutine fan-out per row range.
package tensorops

import (
	"math"
	"sync"
)

// RMSNorm writes rms_norm(x) * weight into dst. x and dst are n rows of
// width floats each; weight has width floats, broadcast over every row.
func RMSNorm(dst, x []float32, weight []float32, n, width int, eps float32) {
	for row := 0; row < n; row++ {
		xr := x[row*width : row*width+width]
		dr := dst[row*width : row*width+width]
		var ss float32
		for _, v := range xr {
			ss += v * v
		}
		scale := float32(1.0 / math.Sqrt(float64(ss/float32(width)+eps)))
		for i := 0; i < width; i++ {
			dr[i] = xr[i] * scale * weight[i]
		}
	}
}

// MatMul computes dst[n][out] = W[out][in] . x[n][in] for n tokens, fanning
// out one goroutine per contiguous range of output rows across all tokens
// combined (out*n total dot products), matching the teacher corpus's
// per-range goroutine matmul pattern.
func MatMul(dst, w, x []float32, in, out, n int) {
	total := out * n
	if total == 0 {
		return
	}
	workers := 8
	if total < workers {
		workers = total
	}
	chunk := (total + workers - 1) / workers

	var wg sync.WaitGroup
	for start := 0; start < total; start += chunk {
		end := start + chunk
		if end > total {
			end = total
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for idx := start; idx < end; idx++ {
				row := idx / out
				o := idx % out
				var sum float32
				wr := w[o*in : o*in+in]
				xr := x[row*in : row*in+in]
				for i := 0; i < in; i++ {
					sum += wr[i] * xr[i]
				}
				dst[row*out+o] = sum
			}
		}(start, end)
	}
	wg.Wait()
}

// Add computes dst = a + b elementwise.
func Add(dst, a, b []float32) {
	for i := range dst {
		dst[i] = a[i] + b[i]
	}
}

// Silu applies x * sigmoid(x) elementwise.
func Silu(dst, x []float32) {
	for i, v := range x {
		dst[i] = v / (1 + float32(math.Exp(float64(-v))))
	}
}

// Mul computes dst = a ⊙ b elementwise.
func Mul(dst, a, b []float32) {
	for i := range dst {
		dst[i] = a[i] * b[i]
	}
}

// Softmax normalizes each of n rows of width floats in place into dst.
func Softmax(dst, x []float32, n, width int) {
	for row := 0; row < n; row++ {
		xr := x[row*width : row*width+width]
		dr := dst[row*width : row*width+width]
		max := xr[0]
		for _, v := range xr[1:] {
			if v > max {
				max = v
			}
		}
		var sum float32
		for i, v := range xr {
			e := float32(math.Exp(float64(v - max)))
			dr[i] = e
			sum += e
		}
		for i := range dr {
			dr[i] /= sum
		}
	}
}

// RoPE applies rotary position embedding to x in place: x holds n_head
// heads of headDim floats each for one token at absolute position pos,
// rotating only the first nRot dimensions of each head as pairs.
func RoPE(x []float32, pos int, nHead, headDim, nRot int) {
	for h := 0; h < nHead; h++ {
		base := h * headDim
		for i := 0; i < nRot; i += 2 {
			freq := 1.0 / math.Pow(10000.0, float64(i)/float64(nRot))
			theta := float64(pos) * freq
			cosT, sinT := math.Cos(theta), math.Sin(theta)
			x0, x1 := x[base+i], x[base+i+1]
			x[base+i] = float32(float64(x0)*cosT - float64(x1)*sinT)
			x[base+i+1] = float32(float64(x0)*sinT + float64(x1)*cosT)
		}
	}
}

// ScaleInPlace multiplies every element of x by s.
func ScaleInPlace(x []float32, s float32) {
	for i := range x {
		x[i] *= s
	}
}

// DiagMaskInfPast sets scores[q][k] to -Inf for every k > pastLen+q, so
// query q (0-indexed among the N new tokens, absolute position pastLen+q)
// cannot attend to future positions. scores is N rows of width columns.
func DiagMaskInfPast(scores []float32, n, width, pastLen int) {
	for q := 0; q < n; q++ {
		row := scores[q*width : q*width+width]
		limit := pastLen + q
		for k := limit + 1; k < width; k++ {
			row[k] = float32(math.Inf(-1))
		}
	}
}

// ArgMax returns the index of the largest element.
func ArgMax(x []float32) int {
	best := 0
	for i, v := range x {
		if v > x[best] {
			best = i
		}
	}
	return best
}
