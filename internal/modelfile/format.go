package modelfile

import (
	"github.com/llamacore/llamacore/internal/errs"
	"github.com/llamacore/llamacore/internal/fileio"
)

// Magic values recognized at the start of a model file: the little-endian
// uint32 produced by reading the four ASCII bytes "ggml"/"ggmf"/"ggjt" in
// file order.
const (
	magicGGML = 0x6c6d6767 // "ggml", legacy, implicit version 0
	magicGGMF = 0x666d6767 // "ggmf", version 1, adds per-token scores
	magicGGJT = 0x746a6767 // "ggjt", version 1, 32-byte aligned payloads
)

const ggmfVersion1 = uint32(1)

// Format tags which on-disk variant a file uses, driving the two read-site
// branches spec.md §9 calls for: score presence and alignment padding.
type Format int

const (
	FormatGGML Format = iota // no scores, no padding
	FormatGGMF               // scores, no padding
	FormatGGJT               // scores, 32-byte aligned payloads
)

func (f Format) HasScores() bool { return f != FormatGGML }
func (f Format) Aligned() bool   { return f == FormatGGJT }

// detectFormat reads the magic and, for versioned magics, the version word.
func detectFormat(r *fileio.Reader) (Format, error) {
	magic, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	if magic == magicGGML {
		return FormatGGML, nil
	}
	if magic != magicGGMF && magic != magicGGJT {
		return 0, errs.BadMagic{Got: magic}
	}
	version, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	switch magic {
	case magicGGMF:
		if version != ggmfVersion1 {
			return 0, errs.BadMagic{Got: magic}
		}
		return FormatGGMF, nil
	case magicGGJT:
		if version != ggmfVersion1 {
			return 0, errs.BadMagic{Got: magic}
		}
		return FormatGGJT, nil
	default:
		return 0, errs.BadMagic{Got: magic}
	}
}
