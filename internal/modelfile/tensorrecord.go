package modelfile

import (
	"github.com/llamacore/llamacore/internal/dtype"
	"github.com/llamacore/llamacore/internal/errs"
	"github.com/llamacore/llamacore/internal/fileio"
)

// shard is one file's contribution to a logical tensor.
type shard struct {
	fileIdx int
	dtype   dtype.DType
	shape   []int
	fileOff int64
	size    int64
}

// readTensorRecords scans tensor-metadata records until EOF, per spec §4.B.
// Each record is n_dims, name_len, dtype, n_dims*shape, name bytes, then
// (for GGJT) padding to a 32-byte boundary before the payload, which is
// skipped rather than read here.
func readTensorRecords(r *fileio.Reader, format Format, fileIdx int) (map[string]shard, []string, error) {
	shards := make(map[string]shard)
	order := make([]string, 0)
	for {
		eof, err := r.AtEOF()
		if err != nil {
			return nil, nil, err
		}
		if eof {
			break
		}
		nDims, err := r.ReadU32()
		if err != nil {
			return nil, nil, err
		}
		if nDims != 1 && nDims != 2 {
			return nil, nil, errs.BadDimension{NDims: nDims}
		}
		nameLen, err := r.ReadU32()
		if err != nil {
			return nil, nil, err
		}
		dt, err := r.ReadU32()
		if err != nil {
			return nil, nil, err
		}
		if !dtype.Valid(dt) {
			return nil, nil, errs.UnknownDtype{Got: dt}
		}
		shape := make([]int, nDims)
		nElements := 1
		for i := range shape {
			v, err := r.ReadU32()
			if err != nil {
				return nil, nil, err
			}
			shape[i] = int(v)
			nElements *= int(v)
		}
		nameBytes, err := r.ReadBytes(int(nameLen))
		if err != nil {
			return nil, nil, err
		}
		name := string(nameBytes)

		if format.Aligned() {
			off, err := r.Tell()
			if err != nil {
				return nil, nil, err
			}
			skip := (32 - (off % 32)) % 32
			if skip > 0 {
				if _, err := r.Seek(skip, fileio.SeekCurrent); err != nil {
					return nil, nil, err
				}
			}
		}

		fileOff, err := r.Tell()
		if err != nil {
			return nil, nil, err
		}
		size := int64(dtype.DType(dt).SizeBytes(nElements))
		if _, err := r.Seek(size, fileio.SeekCurrent); err != nil {
			return nil, nil, err
		}

		if _, dup := shards[name]; dup {
			// Duplicate names within one file are not expected; keep the
			// first and ignore the rest rather than failing the whole load.
			continue
		}
		shards[name] = shard{fileIdx: fileIdx, dtype: dtype.DType(dt), shape: shape, fileOff: fileOff, size: size}
		order = append(order, name)
	}
	return shards, order, nil
}
