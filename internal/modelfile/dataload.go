package modelfile

import (
	"github.com/llamacore/llamacore/internal/errs"
	"github.com/llamacore/llamacore/internal/fileio"
)

// loadSources bundles the open per-file readers (always present) and
// mappings (present only when mmap was requested and the file qualified)
// that loadData draws tensor bytes from.
type loadSources struct {
	readers  []*fileio.Reader
	mappings []*fileio.Mapping // nil entry if that file isn't mapped
}

// mmapEligible reports whether rt can be served directly from a mapping:
// exactly one shard, and that shard's offset is at least 4-byte aligned.
// Per the open question in spec §9, 4-byte alignment is accepted even
// though GGJT nominally guarantees 32-byte alignment.
func mmapEligible(rt *ReconciledTensor, src *loadSources) bool {
	if len(rt.Shards) != 1 {
		return false
	}
	s := rt.Shards[0]
	if s.fileOff%4 != 0 {
		return false
	}
	return src.mappings[s.fileIdx] != nil
}

// loadData materializes rt's bytes: a direct mmap slice when eligible,
// otherwise an owned buffer assembled per its split type.
func loadData(rt *ReconciledTensor, src *loadSources) ([]byte, bool, error) {
	if mmapEligible(rt, src) {
		s := rt.Shards[0]
		base := src.mappings[s.fileIdx].Bytes()
		return base[s.fileOff : s.fileOff+s.size], true, nil
	}

	switch rt.SplitType {
	case SplitNone:
		s := rt.Shards[0]
		buf, err := readShardBytes(src, s)
		if err != nil {
			return nil, false, err
		}
		return buf, false, nil

	case SplitByRows:
		out := make([]byte, 0)
		for _, s := range rt.Shards {
			buf, err := readShardBytes(src, s)
			if err != nil {
				return nil, false, err
			}
			out = append(out, buf...)
		}
		return out, false, nil

	case SplitByColumns:
		bufs := make([][]byte, len(rt.Shards))
		for i, s := range rt.Shards {
			buf, err := readShardBytes(src, s)
			if err != nil {
				return nil, false, err
			}
			bufs[i] = buf
		}
		numRows := rt.Shape[1]
		if numRows == 0 {
			return nil, false, errs.Overflow{Reason: "tensor " + rt.Name + " has zero rows"}
		}
		perShardRowSize := len(bufs[0]) / numRows
		out := make([]byte, 0, len(bufs[0])*len(bufs))
		for row := 0; row < numRows; row++ {
			for _, buf := range bufs {
				start := row * perShardRowSize
				out = append(out, buf[start:start+perShardRowSize]...)
			}
		}
		return out, false, nil
	}
	return nil, false, errs.InconsistentShards{Name: rt.Name, Reason: "unknown split type"}
}

func readShardBytes(src *loadSources, s shard) ([]byte, error) {
	r := src.readers[s.fileIdx]
	if _, err := r.Seek(s.fileOff, fileio.SeekStart); err != nil {
		return nil, err
	}
	return r.ReadBytes(int(s.size))
}
