package modelfile

import (
	"strings"

	"github.com/llamacore/llamacore/internal/dtype"
	"github.com/llamacore/llamacore/internal/errs"
)

// SplitType says how a logical tensor's shards are laid out across shard
// files, per spec §4.B.
type SplitType int

const (
	SplitNone SplitType = iota
	SplitByColumns
	SplitByRows
)

func (s SplitType) String() string {
	switch s {
	case SplitByColumns:
		return "by_columns"
	case SplitByRows:
		return "by_rows"
	default:
		return "none"
	}
}

// splitTypeFor classifies a tensor name. 1-D tensors are always SplitNone
// regardless of name; this takes nDims so callers can apply that rule.
func splitTypeFor(name string, nDims int) SplitType {
	if nDims == 1 {
		return SplitNone
	}
	if strings.HasPrefix(name, "tok_embeddings.") ||
		strings.HasSuffix(name, ".attention.wo.weight") ||
		strings.HasSuffix(name, ".feed_forward.w2.weight") {
		return SplitByColumns
	}
	return SplitByRows
}

// ReconciledTensor is one logical tensor after combining its shards.
type ReconciledTensor struct {
	Name      string
	DType     dtype.DType
	Shape     []int // reconciled shape
	SplitType SplitType
	Shards    []shard // in file order
}

// reconcile merges one tensor name's per-file shards into a logical tensor.
// shardsInOrder holds one shard per file that carries this tensor, in
// file order; files without it simply contribute no entry.
func reconcile(name string, shardsInOrder []shard) (*ReconciledTensor, error) {
	first := shardsInOrder[0]
	nDims := len(first.shape)
	st := splitTypeFor(name, nDims)

	for _, s := range shardsInOrder[1:] {
		if s.dtype != first.dtype {
			return nil, errs.InconsistentShards{Name: name, Reason: "dtype mismatch across shards"}
		}
		if len(s.shape) != len(first.shape) {
			return nil, errs.InconsistentShards{Name: name, Reason: "dimension-count mismatch across shards"}
		}
		for i := range s.shape {
			if s.shape[i] != first.shape[i] {
				return nil, errs.InconsistentShards{Name: name, Reason: "per-shard shape mismatch"}
			}
		}
	}

	n := len(shardsInOrder)
	var shape []int
	switch st {
	case SplitNone:
		shape = append([]int(nil), first.shape...)
	case SplitByColumns:
		shape = []int{first.shape[0] * n, first.shape[1]}
	case SplitByRows:
		shape = []int{first.shape[0], first.shape[1] * n}
	}

	return &ReconciledTensor{
		Name:      name,
		DType:     first.dtype,
		Shape:     shape,
		SplitType: st,
		Shards:    shardsInOrder,
	}, nil
}

// reconcileAll combines per-file shard maps into the logical tensor map,
// iterating names in the first file's declaration order so output is
// deterministic.
func reconcileAll(perFile []map[string]shard, order []string) (map[string]*ReconciledTensor, error) {
	result := make(map[string]*ReconciledTensor, len(order))
	for _, name := range order {
		var group []shard
		for _, fileShards := range perFile {
			if s, ok := fileShards[name]; ok {
				group = append(group, s)
			}
		}
		if len(group) == 0 {
			continue
		}
		rt, err := reconcile(name, group)
		if err != nil {
			return nil, err
		}
		result[name] = rt
	}
	return result, nil
}
