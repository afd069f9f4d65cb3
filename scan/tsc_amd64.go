//go:build amd64

package scan

// cputicks returns the CPU timestamp counter. Deltas between calls give an
// elapsed cycle count; the raw value has no meaning on its own.
func cputicks() uint64
