package session

import (
	"github.com/llamacore/llamacore/internal/config"
	"github.com/llamacore/llamacore/internal/quantize"
)

// Quantize re-encodes the model at inPath into outPath at targetFType,
// per spec §4.I's quantize(in_path, out_path, target_ftype) entry
// point. It does not touch any open session.
func Quantize(inPath, outPath string, targetFType config.FType) error {
	return quantize.Run(inPath, outPath, targetFType)
}
