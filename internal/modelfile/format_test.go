package modelfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/llamacore/llamacore/internal/errs"
	"github.com/llamacore/llamacore/internal/fileio"
)

func writeAndDetect(t *testing.T, bytes []byte) (Format, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.bin")
	if err := os.WriteFile(path, bytes, 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := fileio.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	return detectFormat(r)
}

func TestDetectFormatGGML(t *testing.T) {
	f, err := writeAndDetect(t, []byte{0x67, 0x67, 0x6d, 0x6c})
	if err != nil {
		t.Fatalf("detectFormat() error = %v", err)
	}
	if f != FormatGGML {
		t.Errorf("detectFormat() = %v, want FormatGGML", f)
	}
}

func TestDetectFormatGGMF(t *testing.T) {
	f, err := writeAndDetect(t, []byte{0x67, 0x67, 0x6d, 0x66, 0x01, 0x00, 0x00, 0x00})
	if err != nil {
		t.Fatalf("detectFormat() error = %v", err)
	}
	if f != FormatGGMF {
		t.Errorf("detectFormat() = %v, want FormatGGMF", f)
	}
}

func TestDetectFormatGGJT(t *testing.T) {
	f, err := writeAndDetect(t, []byte{0x67, 0x67, 0x6a, 0x74, 0x01, 0x00, 0x00, 0x00})
	if err != nil {
		t.Fatalf("detectFormat() error = %v", err)
	}
	if f != FormatGGJT {
		t.Errorf("detectFormat() = %v, want FormatGGJT", f)
	}
}

func TestDetectFormatBadMagic(t *testing.T) {
	_, err := writeAndDetect(t, []byte{0xde, 0xad, 0xbe, 0xef})
	if _, ok := err.(errs.BadMagic); !ok {
		t.Errorf("detectFormat() error = %v, want errs.BadMagic", err)
	}
}

func TestSplitTypeFor(t *testing.T) {
	tests := []struct {
		name  string
		nDims int
		want  SplitType
	}{
		{"norm.weight", 1, SplitNone},
		{"tok_embeddings.weight", 2, SplitByColumns},
		{"layers.0.attention.wo.weight", 2, SplitByColumns},
		{"layers.0.feed_forward.w2.weight", 2, SplitByColumns},
		{"layers.0.attention.wq.weight", 2, SplitByRows},
		{"output.weight", 2, SplitByRows},
	}
	for _, tt := range tests {
		if got := splitTypeFor(tt.name, tt.nDims); got != tt.want {
			t.Errorf("splitTypeFor(%q, %d) = %v, want %v", tt.name, tt.nDims, got, tt.want)
		}
	}
}

func TestReconcileByColumns(t *testing.T) {
	// Two shards of tok_embeddings.weight, shape [2,4] each, dtype F32.
	shards := []shard{
		{fileIdx: 0, shape: []int{2, 4}, size: 32},
		{fileIdx: 1, shape: []int{2, 4}, size: 32},
	}
	rt, err := reconcile("tok_embeddings.weight", shards)
	if err != nil {
		t.Fatalf("reconcile() error = %v", err)
	}
	if rt.SplitType != SplitByColumns {
		t.Errorf("SplitType = %v, want SplitByColumns", rt.SplitType)
	}
	want := []int{4, 4}
	if rt.Shape[0] != want[0] || rt.Shape[1] != want[1] {
		t.Errorf("Shape = %v, want %v", rt.Shape, want)
	}
}

func TestReconcileInconsistentShards(t *testing.T) {
	shards := []shard{
		{fileIdx: 0, shape: []int{2, 4}, size: 32},
		{fileIdx: 1, shape: []int{3, 4}, size: 48},
	}
	if _, err := reconcile("layers.0.attention.wq.weight", shards); err == nil {
		t.Error("reconcile() with mismatched shapes = nil error, want errs.InconsistentShards")
	} else if _, ok := err.(errs.InconsistentShards); !ok {
		t.Errorf("reconcile() error type = %T, want errs.InconsistentShards", err)
	}
}
