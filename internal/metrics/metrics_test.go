package metrics

import (
	"testing"
	"time"
)

func TestRecordLoad(t *testing.T) {
	RecordLoad(10 * time.Millisecond)
}

func TestRecordEvalDecodeVsPrompt(t *testing.T) {
	RecordEval(1, 5*time.Millisecond)
	RecordEval(128, 50*time.Millisecond)
}

func TestRecordSample(t *testing.T) {
	RecordSample(2 * time.Millisecond)
}

func TestRecordKVCacheOccupancy(t *testing.T) {
	RecordKVCacheOccupancy(3, 512, 3*8*2)
	RecordKVCacheOccupancy(0, 2048, 0)
}

func TestRecordShardReconciled(t *testing.T) {
	RecordShardReconciled("by_columns")
	RecordShardReconciled("by_rows")
	RecordShardReconciled("none")
}

func TestRecordLoadError(t *testing.T) {
	RecordLoadError("BadMagic")
	RecordLoadError("InconsistentShards")
}

func TestRecordTokenizerEncode(t *testing.T) {
	RecordTokenizerEncode(100 * time.Microsecond)
}

func TestRecordQuantizedBlock(t *testing.T) {
	RecordQuantizedBlock("Q4_0", 64)
	RecordQuantizedBlock("Q4_1", 32)
}
