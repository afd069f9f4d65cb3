// Package aobscan scans binary files and segmented address spaces for byte
// patterns with wildcard positions ("array of bytes" patterns).
//
// The subpackages carry the engine: pattern compiles and matches patterns,
// view models segmented address spaces, scan runs capped, cancellable scan
// sessions. This package ties them together for the one-call case.
package aobscan

import (
	"context"

	"github.com/aobscan/aobscan/scan"
	"github.com/aobscan/aobscan/view"
)

// ScanFile opens path as a binary view (ELF, PE, Mach-O or raw), scans it
// for the given pattern and returns the outcome. A non-empty maskText
// selects the masked byte-string pattern form. The zero Config selects the
// defaults (1000 results, one run); cancel through ctx.
func ScanFile(ctx context.Context, path, patternText, maskText string, cfg scan.Config) (*scan.Outcome, error) {
	v, err := view.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = v.Close() }()

	sess, err := scan.NewSession(v, patternText, maskText, cfg)
	if err != nil {
		return nil, err
	}
	return sess.Run(ctx)
}
