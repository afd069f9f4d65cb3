// Package main exposes the pattern matcher over a C ABI, for embedding in
// tooling that has bytes in hand but no use for the segmented scan
// machinery. Build with:
//
//	go build -buildmode=c-shared -o libaobscan.so ./ffi
//
// The exported surface is deliberately tiny: parse a pattern into a handle,
// scan a caller-owned buffer into a caller-owned offset array with a hard
// capacity bound, free the handle.
package main

/*
#include <stddef.h>
#include <stdint.h>
*/
import "C"

import (
	"runtime/cgo"
	"unsafe"

	"github.com/aobscan/aobscan/pattern"
)

// AOBScanParse compiles a mixed hex/wildcard pattern string and returns an
// opaque handle, or 0 when the pattern is malformed. The handle must be
// released with AOBScanFree.
//
//export AOBScanParse
func AOBScanParse(text *C.char) C.uintptr_t {
	if text == nil {
		return 0
	}
	p, err := pattern.Parse(C.GoString(text))
	if err != nil {
		return 0
	}
	return C.uintptr_t(cgo.NewHandle(p))
}

// AOBScanFree releases a handle returned by AOBScanParse. Passing 0 is a
// no-op.
//
//export AOBScanFree
func AOBScanFree(handle C.uintptr_t) {
	if handle == 0 {
		return
	}
	cgo.Handle(handle).Delete()
}

// AOBScanScan scans data[0:length] for the pattern behind handle, writing
// match offsets (relative to data) into out. At most capacity offsets are
// written; scanning stops early once capacity is reached. Returns the number
// of offsets written. The caller owns both buffers.
//
//export AOBScanScan
func AOBScanScan(handle C.uintptr_t, data *C.uint8_t, length C.size_t, out *C.size_t, capacity C.size_t) C.size_t {
	if handle == 0 || data == nil || out == nil || capacity == 0 || length == 0 {
		return 0
	}
	p, ok := cgo.Handle(handle).Value().(*pattern.Pattern)
	if !ok {
		return 0
	}

	buf := unsafe.Slice((*byte)(unsafe.Pointer(data)), int(length))
	offsets := unsafe.Slice(out, int(capacity))

	var n C.size_t
	p.Find(buf, func(off int) bool {
		offsets[n] = C.size_t(off)
		n++
		return n < capacity
	})
	return n
}

func main() {}
