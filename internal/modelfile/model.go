package modelfile

import (
	"fmt"

	"github.com/llamacore/llamacore/internal/config"
	"github.com/llamacore/llamacore/internal/errs"
	"github.com/llamacore/llamacore/internal/fileio"
	"github.com/llamacore/llamacore/internal/logger"
	"github.com/llamacore/llamacore/internal/metrics"
)

// Model is the result of loading and reconciling a (possibly multi-shard)
// model file: hparams, vocabulary, and logical tensors with their data
// already materialized per spec §4.B.
type Model struct {
	HParams config.HParams
	Vocab   *Vocabulary
	Tensors map[string]*ReconciledTensor
	Data    map[string][]byte // tensor name -> materialized bytes
	Mmapped map[string]bool   // tensor name -> served directly from a mapping
	Order   []string          // tensor names in on-disk record order

	readers  []*fileio.Reader
	mappings []*fileio.Mapping
	pinners  []*fileio.Pinner
}

// Close releases every shard's file handle and mapping. Descriptors built
// from mmap-backed tensors must not be used after Close.
func (m *Model) Close() error {
	var first error
	for _, p := range m.pinners {
		if p != nil {
			if err := p.Unlock(); err != nil && first == nil {
				first = err
			}
		}
	}
	for _, mm := range m.mappings {
		if mm != nil {
			if err := mm.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	for _, r := range m.readers {
		if r != nil {
			if err := r.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// shardPaths returns the n_parts file names: base, base.1, base.2, ...
func shardPaths(base string, nParts int) []string {
	paths := make([]string, nParts)
	paths[0] = base
	for i := 1; i < nParts; i++ {
		paths[i] = fmt.Sprintf("%s.%d", base, i)
	}
	return paths
}

// Load opens path (and, for a multi-part model, its sibling shard files),
// parses and reconciles every tensor, and materializes tensor data per
// params.UseMmap/UseMlock.
func Load(path string, params config.Params, progress config.ProgressCallback) (*Model, error) {
	r0, err := fileio.Open(path)
	if err != nil {
		return nil, err
	}
	format, err := detectFormat(r0)
	if err != nil {
		r0.Close()
		metrics.RecordLoadError(errKind(err))
		return nil, err
	}
	hp, err := readHParams(r0)
	if err != nil {
		r0.Close()
		return nil, err
	}

	nParts := params.NParts
	if nParts <= 0 {
		firstShape, err := peekFirstTensorDim0(r0, format, hp, int(hp.NVocab))
		if err != nil {
			r0.Close()
			return nil, err
		}
		if firstShape > 0 && int(hp.NEmbd)%firstShape == 0 {
			nParts = int(hp.NEmbd) / firstShape
		} else {
			nParts = 1
		}
	}
	r0.Close()

	paths := shardPaths(path, nParts)
	readers := make([]*fileio.Reader, nParts)
	perFileShards := make([]map[string]shard, nParts)
	var order []string
	var vocab *Vocabulary

	for i, p := range paths {
		r, err := fileio.Open(p)
		if err != nil {
			closeAll(readers)
			return nil, err
		}
		readers[i] = r

		fFormat, err := detectFormat(r)
		if err != nil {
			closeAll(readers)
			metrics.RecordLoadError(errKind(err))
			return nil, err
		}
		fHP, err := readHParams(r)
		if err != nil {
			closeAll(readers)
			return nil, err
		}
		if !hparamsEqual(fHP, hp) || fFormat != format {
			closeAll(readers)
			err := errs.InconsistentHparams{Reason: fmt.Sprintf("shard %q disagrees with base file", p)}
			metrics.RecordLoadError(errKind(err))
			return nil, err
		}

		v, err := readVocabulary(r, int(hp.NVocab), format)
		if err != nil {
			closeAll(readers)
			return nil, err
		}
		if i == 0 {
			vocab = v
		}

		shards, fileOrder, err := readTensorRecords(r, format, i)
		if err != nil {
			closeAll(readers)
			return nil, err
		}
		perFileShards[i] = shards
		if i == 0 {
			order = fileOrder
		}
	}

	tensors, err := reconcileAll(perFileShards, order)
	if err != nil {
		closeAll(readers)
		metrics.RecordLoadError(errKind(err))
		return nil, err
	}
	for _, rt := range tensors {
		metrics.RecordShardReconciled(rt.SplitType.String())
	}

	mappings := make([]*fileio.Mapping, nParts)
	pinners := make([]*fileio.Pinner, nParts)
	if params.UseMmap && format.Aligned() {
		for i, r := range readers {
			mp, err := fileio.Mmap(r.Fd(), int(r.Size()))
			if err != nil {
				closeAll(readers)
				return nil, err
			}
			mappings[i] = mp
			if params.UseMlock {
				pinners[i] = fileio.NewPinner(mp.Bytes())
			}
		}
	}

	src := &loadSources{readers: readers, mappings: mappings}
	data := make(map[string][]byte, len(tensors))
	mmapped := make(map[string]bool, len(tensors))
	var loaded, total int64
	for _, rt := range tensors {
		for _, s := range rt.Shards {
			total += s.size
		}
	}
	for _, name := range order {
		rt, ok := tensors[name]
		if !ok {
			continue
		}
		buf, isMmap, err := loadData(rt, src)
		if err != nil {
			closeAll(readers)
			return nil, err
		}
		data[name] = buf
		mmapped[name] = isMmap
		for _, s := range rt.Shards {
			loaded += s.size
		}
		if progress != nil {
			progress(uint64(loaded), uint64(total))
		}
		for i, p := range pinners {
			if p != nil {
				if err := p.GrowTo(int(loaded)); err != nil {
					logger.Log.Warn("mlock grow failed", "file", paths[i], "err", err)
				}
			}
		}
	}

	return &Model{
		HParams:  hp,
		Vocab:    vocab,
		Tensors:  tensors,
		Data:     data,
		Mmapped:  mmapped,
		Order:    order,
		readers:  readers,
		mappings: mappings,
		pinners:  pinners,
	}, nil
}

func closeAll(readers []*fileio.Reader) {
	for _, r := range readers {
		if r != nil {
			r.Close()
		}
	}
}

// peekFirstTensorDim0 reads just far enough past the vocabulary to learn
// the first tensor record's first dimension, taken as
// tok_embeddings.weight's (the record's name is not checked), to infer n_parts per
// spec §4.B ("n_parts is inferred as hparams.n_embd / shape_of(...)[0]").
func peekFirstTensorDim0(r *fileio.Reader, format Format, hp config.HParams, nVocab int) (int, error) {
	if _, err := readVocabulary(r, nVocab, format); err != nil {
		return 0, err
	}
	nDims, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	if nDims != 1 && nDims != 2 {
		return 0, errs.BadDimension{NDims: nDims}
	}
	nameLen, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	if _, err := r.ReadU32(); err != nil { // dtype, unused here
		return 0, err
	}
	dim0, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	if nDims == 2 {
		if _, err := r.ReadU32(); err != nil { // dim1, unused here
			return 0, err
		}
	}
	if _, err := r.ReadBytes(int(nameLen)); err != nil {
		return 0, err
	}
	return int(dim0), nil
}

func errKind(err error) string {
	switch err.(type) {
	case errs.BadMagic:
		return "BadMagic"
	case errs.UnknownDtype:
		return "UnknownDtype"
	case errs.BadDimension:
		return "BadDimension"
	case errs.MissingTensor:
		return "MissingTensor"
	case errs.UnexpectedExtraTensor:
		return "UnexpectedExtraTensor"
	case errs.WrongShape:
		return "WrongShape"
	case errs.InconsistentShards:
		return "InconsistentShards"
	case errs.InconsistentHparams:
		return "InconsistentHparams"
	case errs.IoError:
		return "IoError"
	default:
		return "Unknown"
	}
}
