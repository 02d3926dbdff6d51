// Package metrics exposes Prometheus series mirroring the session's timing
// counters and KV-cache occupancy, in addition to the Go-level counters the
// session keeps as the source of truth for its observable surface.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoadDuration tracks t_load across session inits.
	LoadDuration = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "llamacore_load_duration_seconds",
		Help: "Duration of model load calls",
	})

	// EvalDuration and EvalTokensTotal track t_eval/t_p_eval and their
	// call/token counts from spec's session state.
	EvalDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llamacore_eval_duration_seconds",
		Help:    "Duration of eval calls, split by single-token vs prompt batches",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	EvalTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llamacore_eval_tokens_total",
		Help: "Total tokens processed by eval calls",
	}, []string{"kind"})

	EvalCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llamacore_eval_calls_total",
		Help: "Total eval invocations",
	}, []string{"kind"})

	// SampleDuration tracks t_sample.
	SampleDuration = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "llamacore_sample_duration_seconds",
		Help: "Duration of sample calls",
	})

	SampleCallsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "llamacore_sample_calls_total",
		Help: "Total sample invocations",
	})

	// KVCacheUsedTokens and KVCacheCapacityTokens mirror kv.n and n_ctx.
	KVCacheUsedTokens = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "llamacore_kv_cache_used_tokens",
		Help: "Tokens currently stored in the KV cache",
	})

	KVCacheCapacityTokens = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "llamacore_kv_cache_capacity_tokens",
		Help: "KV cache capacity in tokens (n_ctx)",
	})

	KVCacheUsedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "llamacore_kv_cache_used_bytes",
		Help: "Bytes currently resident in the KV cache",
	})

	// LoaderShardsTotal counts shards reconciled per load, by split type.
	LoaderShardsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llamacore_loader_shards_total",
		Help: "Shards reconciled during model load, by split type",
	}, []string{"split_type"})

	LoaderErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llamacore_loader_errors_total",
		Help: "Load failures by error kind",
	}, []string{"kind"})

	// TokenizerEncodeDuration and QuantizeBlocksTotal round out the
	// per-component instruments the teacher's engine package exposed per
	// operation rather than only per session.
	TokenizerEncodeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "llamacore_tokenizer_encode_duration_seconds",
		Help:    "Duration of tokenizer Encode calls",
		Buckets: prometheus.DefBuckets,
	})

	QuantizeBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llamacore_quantize_blocks_total",
		Help: "Quantization blocks written, by target dtype",
	}, []string{"dtype"})
)

// RecordLoad records one model-load duration.
func RecordLoad(d time.Duration) {
	LoadDuration.Observe(d.Seconds())
}

// RecordEval records one eval call of n tokens; kind is "prompt" when n > 1
// and "decode" for single-token steps, matching the thread-count heuristic's
// batch-vs-single distinction in spec §4.E.
func RecordEval(n int, d time.Duration) {
	kind := "decode"
	if n > 1 {
		kind = "prompt"
	}
	EvalDuration.WithLabelValues(kind).Observe(d.Seconds())
	EvalTokensTotal.WithLabelValues(kind).Add(float64(n))
	EvalCallsTotal.WithLabelValues(kind).Inc()
}

// RecordSample records one sample call.
func RecordSample(d time.Duration) {
	SampleDuration.Observe(d.Seconds())
	SampleCallsTotal.Inc()
}

// RecordKVCacheOccupancy mirrors the session's kv.n/n_ctx/byte usage as gauges.
func RecordKVCacheOccupancy(usedTokens, capacityTokens int, usedBytes int64) {
	KVCacheUsedTokens.Set(float64(usedTokens))
	KVCacheCapacityTokens.Set(float64(capacityTokens))
	KVCacheUsedBytes.Set(float64(usedBytes))
}

// RecordShardReconciled increments the shard counter for a split type.
func RecordShardReconciled(splitType string) {
	LoaderShardsTotal.WithLabelValues(splitType).Inc()
}

// RecordLoadError increments the loader error counter for an error kind.
func RecordLoadError(kind string) {
	LoaderErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordTokenizerEncode records one Encode call's wall-clock duration.
func RecordTokenizerEncode(d time.Duration) {
	TokenizerEncodeDuration.Observe(d.Seconds())
}

// RecordQuantizedBlock increments the per-dtype quantized block counter.
func RecordQuantizedBlock(dtype string, n int) {
	QuantizeBlocksTotal.WithLabelValues(dtype).Add(float64(n))
}
