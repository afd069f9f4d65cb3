//go:build !amd64

package scan

// cputicks is unavailable on this architecture; cycle counts report as 0.
func cputicks() uint64 {
	return 0
}
