package scan

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aobscan/aobscan/pattern"
	"github.com/aobscan/aobscan/view"
)

// countingView wraps a View and counts ReadBytes calls.
type countingView struct {
	view.View
	reads int
}

func (c *countingView) ReadBytes(addr uint64, maxLen int) ([]byte, error) {
	c.reads++
	return c.View.ReadBytes(addr, maxLen)
}

// faultyView fails every read of the segment based at failBase.
type faultyView struct {
	view.View
	failBase uint64
}

func (f *faultyView) ReadBytes(addr uint64, maxLen int) ([]byte, error) {
	if addr == f.failBase {
		return nil, errors.New("read fault")
	}
	return f.View.ReadBytes(addr, maxLen)
}

// halfView returns at most half of every requested read, simulating an
// address space whose tail is not backed by data.
type halfView struct {
	view.View
}

func (h *halfView) ReadBytes(addr uint64, maxLen int) ([]byte, error) {
	return h.View.ReadBytes(addr, maxLen/2)
}

func TestRunFindsAcrossSegments(t *testing.T) {
	needle := []byte{0xDE, 0xAD}
	segA := make([]byte, 64)
	copy(segA[5:], needle)
	segB := make([]byte, 64)
	copy(segB[20:], needle)

	v := view.NewStatic(
		view.StaticSegment{Name: "a", Base: 0x1000, Data: segA},
		view.StaticSegment{Name: "b", Base: 0x8000, Data: segB},
	)

	sess, err := NewSession(v, "DE AD", "", Config{})
	require.NoError(t, err)

	out, err := sess.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []uint64{0x1005, 0x8014}, out.Addresses)
	assert.False(t, out.Truncated)
	assert.Equal(t, 2, out.Segments)
	assert.Equal(t, uint64(128), out.BytesScanned)
	assert.Equal(t, 1, out.Runs)
	assert.Equal(t, "DE AD", out.Pattern)
	assert.Equal(t, 2, out.PatternLen)
}

func TestRunTruncation(t *testing.T) {
	// Ten true matches, cap of three: expect the three lowest addresses.
	data := make([]byte, 100)
	for i := 0; i < 10; i++ {
		data[i*10] = 0xCC
	}
	v := view.NewStatic(view.StaticSegment{Base: 0x4000, Data: data})

	sess, err := NewSession(v, "CC", "", Config{MaxResults: 3})
	require.NoError(t, err)

	out, err := sess.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, out.Truncated)
	assert.Equal(t, []uint64{0x4000, 0x400A, 0x4014}, out.Addresses)
}

func TestRunTruncatedAtExactCap(t *testing.T) {
	// Exactly as many matches as the cap: all addresses come back, and the
	// flag still reports that the maximum was reached.
	data := make([]byte, 6)
	data[0], data[2], data[4] = 0xCC, 0xCC, 0xCC
	v := view.NewStatic(view.StaticSegment{Base: 0, Data: data})

	sess, err := NewSession(v, "CC", "", Config{MaxResults: 3})
	require.NoError(t, err)

	out, err := sess.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, out.Truncated)
	assert.Equal(t, []uint64{0, 2, 4}, out.Addresses)
}

func TestRunBelowCapNotTruncated(t *testing.T) {
	v := view.NewStatic(view.StaticSegment{Base: 0, Data: []byte{0xCC, 0x00, 0xCC}})

	sess, err := NewSession(v, "CC", "", Config{MaxResults: 3})
	require.NoError(t, err)

	out, err := sess.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, out.Truncated)
	assert.Equal(t, []uint64{0, 2}, out.Addresses)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	v := &countingView{View: view.NewStatic(
		view.StaticSegment{Base: 0x1000, Data: make([]byte, 64)},
	)}

	sess, err := NewSession(v, "AA BB", "", Config{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := sess.Run(ctx)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Zero(t, v.reads, "a pre-cancelled session must not read the address space")
}

func TestRunCancelledBetweenSegments(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	// Cancel from inside the first segment's read; the session must notice
	// at the next segment boundary and discard everything.
	v := view.NewStatic(
		view.StaticSegment{Base: 0x1000, Data: []byte{0xAA, 0xAA}},
		view.StaticSegment{Base: 0x2000, Data: []byte{0xAA, 0xAA}},
	)
	cancelling := &cancelOnFirstRead{View: v, cancel: cancel}

	sess, err := NewSession(cancelling, "AA", "", Config{})
	require.NoError(t, err)

	out, err := sess.Run(ctx)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, ErrCancelled)
}

type cancelOnFirstRead struct {
	view.View
	cancel context.CancelFunc
	done   bool
}

func (c *cancelOnFirstRead) ReadBytes(addr uint64, maxLen int) ([]byte, error) {
	if !c.done {
		c.done = true
		c.cancel()
	}
	return c.View.ReadBytes(addr, maxLen)
}

func TestRunSegmentBoundaryIsolation(t *testing.T) {
	// DE AD straddles the boundary: segment A ends with DE, segment B
	// starts with AD. Segments are scanned in isolation, so no match.
	v := view.NewStatic(
		view.StaticSegment{Base: 0x1000, Data: []byte{0x00, 0x00, 0xDE}},
		view.StaticSegment{Base: 0x1003, Data: []byte{0xAD, 0x00, 0x00}},
	)

	sess, err := NewSession(v, "DE AD", "", Config{})
	require.NoError(t, err)

	out, err := sess.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out.Addresses)
}

func TestRunRepeatRunsAccumulate(t *testing.T) {
	// A deterministic scan repeated three times reports each address three
	// times; the duplication is the documented benchmarking artifact.
	v := view.NewStatic(view.StaticSegment{Base: 0x100, Data: []byte{0xEE, 0x00, 0xEE}})

	sess, err := NewSession(v, "EE", "", Config{Runs: 3})
	require.NoError(t, err)

	out, err := sess.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, out.Runs)
	assert.Equal(t, []uint64{0x100, 0x100, 0x100, 0x102, 0x102, 0x102}, out.Addresses)
	assert.Equal(t, uint64(9), out.BytesScanned)
}

func TestRunAbandonsRunsPastCap(t *testing.T) {
	// First run exceeds the cap, so no further runs execute.
	v := view.NewStatic(view.StaticSegment{Base: 0, Data: []byte{1, 1, 1, 1, 1}})

	sess, err := NewSession(v, "01", "", Config{MaxResults: 2, Runs: 5})
	require.NoError(t, err)

	out, err := sess.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, out.Runs)
	assert.True(t, out.Truncated)
	assert.Equal(t, []uint64{0, 1}, out.Addresses)
}

func TestNewSessionCompileError(t *testing.T) {
	v := view.NewStatic(view.StaticSegment{Base: 0, Data: []byte{1}})

	tests := []struct {
		name        string
		patternText string
		maskText    string
	}{
		{name: "malformed pattern", patternText: "ZZ"},
		{name: "empty pattern", patternText: "   "},
		{name: "length mismatch", patternText: `\x41\x42`, maskText: "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSession(v, tt.patternText, tt.maskText, Config{})
			var compileErr *CompileError
			require.ErrorAs(t, err, &compileErr)
		})
	}

	// The mask length mismatch stays inspectable through the wrapper.
	_, err := NewSession(v, `\x41\x42`, "x", Config{})
	var mismatch *pattern.LengthMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 2, mismatch.PatternLen)
	assert.Equal(t, 1, mismatch.MaskLen)
}

func TestRunSkipsUnreadableSegment(t *testing.T) {
	v := &faultyView{
		View: view.NewStatic(
			view.StaticSegment{Base: 0x1000, Data: []byte{0xAB, 0xCD}},
			view.StaticSegment{Base: 0x2000, Data: []byte{0xAB, 0xCD}},
		),
		failBase: 0x1000,
	}

	sess, err := NewSession(v, "AB CD", "", Config{})
	require.NoError(t, err)

	out, err := sess.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []uint64{0x2000}, out.Addresses)
	assert.Equal(t, 1, out.Segments)
	assert.Equal(t, 1, out.SkippedSegments)
}

func TestRunShortRead(t *testing.T) {
	// Only the first half of the segment is readable; a match there is
	// still found, a match in the unreadable half is not.
	data := make([]byte, 64)
	data[4] = 0x77
	data[50] = 0x77
	v := &halfView{View: view.NewStatic(view.StaticSegment{Base: 0x100, Data: data})}

	sess, err := NewSession(v, "77", "", Config{})
	require.NoError(t, err)

	out, err := sess.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []uint64{0x104}, out.Addresses)
	assert.Equal(t, uint64(32), out.BytesScanned)
}

func TestRunTiming(t *testing.T) {
	v := view.NewStatic(view.StaticSegment{Base: 0, Data: make([]byte, 1<<16)})

	sess, err := NewSession(v, "AA BB CC", "", Config{Runs: 2})
	require.NoError(t, err)

	out, err := sess.Run(context.Background())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, out.TotalElapsed, out.Elapsed)
	assert.Positive(t, out.Elapsed)
	assert.Positive(t, out.Throughput())
}

func TestOutcomeRatios(t *testing.T) {
	out := &Outcome{}
	assert.Zero(t, out.Throughput())
	assert.Zero(t, out.CyclesPerByte())

	out.BytesScanned = 1000
	out.Cycles = 4000
	assert.InDelta(t, 4.0, out.CyclesPerByte(), 1e-9)
}

func TestNewCompiledSession(t *testing.T) {
	p, err := pattern.Parse("AA")
	require.NoError(t, err)

	v := view.NewStatic(view.StaticSegment{Base: 0x10, Data: []byte{0xAA}})
	out, err := NewCompiledSession(v, p, Config{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uint64{0x10}, out.Addresses)
	assert.Same(t, p, NewCompiledSession(v, p, Config{}).Pattern())
}
