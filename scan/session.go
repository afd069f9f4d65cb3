// Package scan drives a compiled pattern across the segments of a binary
// view, collecting absolute match addresses with a hard result cap,
// cooperative cancellation and timing instrumentation.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aobscan/aobscan/pattern"
	"github.com/aobscan/aobscan/view"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultMaxResults = 1000
	DefaultRuns       = 1
)

// ErrCancelled is returned when the session's context is cancelled before
// the scan completes. A cancelled session never returns a partial Outcome.
var ErrCancelled = errors.New("scan cancelled")

// CompileError wraps a pattern compilation failure. It is returned before
// any byte of the address space has been read.
type CompileError struct {
	Err error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile pattern: %v", e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// Config carries the per-scan parameters. The zero value selects the
// defaults: 1000 results, a single run.
type Config struct {
	// MaxResults is the hard cap on returned matches.
	MaxResults int
	// Runs repeats the full scan to accumulate timing samples. Results
	// from repeated runs accumulate before the final sort and truncation,
	// so a deterministic scan repeated N times reports each address N
	// times (or fewer, once the cap kicks in). That duplication is the
	// intended averaging behavior, not a defect.
	Runs int
}

func (c Config) withDefaults() Config {
	if c.MaxResults <= 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.Runs <= 0 {
		c.Runs = DefaultRuns
	}
	return c
}

// Outcome is the structured result of one completed scan session.
type Outcome struct {
	// Addresses holds the absolute match addresses, sorted ascending and
	// truncated to MaxResults.
	Addresses []uint64
	// Truncated is set when the result cap was reached.
	Truncated bool

	// Elapsed is the time spent strictly inside scan runs; TotalElapsed
	// covers the whole session including segment enumeration. The two
	// diverge when setup or enumeration overhead is significant.
	Elapsed      time.Duration
	TotalElapsed time.Duration
	// Cycles is the CPU timestamp-counter delta accumulated across runs,
	// zero on architectures without a cycle counter.
	Cycles uint64

	BytesScanned    uint64
	Segments        int
	SkippedSegments int
	Runs            int

	// Pattern is the canonical form of the scanned pattern, for reports.
	Pattern    string
	PatternLen int
	MaxResults int
}

// Throughput returns the scan rate in bytes per second, measured over the
// time spent inside runs.
func (o *Outcome) Throughput() float64 {
	if o.Elapsed <= 0 {
		return 0
	}
	return float64(o.BytesScanned) / o.Elapsed.Seconds()
}

// CyclesPerByte returns the cycle cost per scanned byte, or 0 when cycle
// counting is unavailable.
func (o *Outcome) CyclesPerByte() float64 {
	if o.BytesScanned == 0 {
		return 0
	}
	return float64(o.Cycles) / float64(o.BytesScanned)
}

// Session orchestrates one scan of a pattern over a view. Sessions hold no
// shared mutable state; Run is a blocking call and concurrency is the
// caller's concern.
type Session struct {
	pat  *pattern.Pattern
	view view.View
	cfg  Config
	log  zerolog.Logger
}

// NewSession compiles patternText (with the masked form selected by a
// non-empty maskText) and prepares a session over v. Compilation failures
// are reported as *CompileError before the address space is touched.
func NewSession(v view.View, patternText, maskText string, cfg Config) (*Session, error) {
	var (
		pat *pattern.Pattern
		err error
	)
	if maskText == "" {
		pat, err = pattern.Parse(patternText)
	} else {
		pat, err = pattern.ParseMasked(patternText, maskText)
	}
	if err != nil {
		return nil, &CompileError{Err: err}
	}
	return NewCompiledSession(v, pat, cfg), nil
}

// NewCompiledSession prepares a session for an already compiled pattern.
func NewCompiledSession(v view.View, pat *pattern.Pattern, cfg Config) *Session {
	return &Session{
		pat:  pat,
		view: v,
		cfg:  cfg.withDefaults(),
		log:  zerolog.Nop(),
	}
}

// WithLogger attaches a logger to the session and returns it.
func (s *Session) WithLogger(log zerolog.Logger) *Session {
	s.log = log
	return s
}

// Pattern returns the session's compiled pattern.
func (s *Session) Pattern() *pattern.Pattern {
	return s.pat
}

// Run executes the configured number of scan runs and returns the merged,
// sorted, capped outcome. Cancellation is cooperative: the context is
// checked before each run, between segments, and before merging a run's
// results. Cancellation is all-or-nothing; a cancelled call returns
// ErrCancelled and no results.
func (s *Session) Run(ctx context.Context) (*Outcome, error) {
	out := &Outcome{
		Pattern:    s.pat.String(),
		PatternLen: s.pat.Len(),
		MaxResults: s.cfg.MaxResults,
	}

	totalStart := time.Now()
	var addrs []uint64

	for run := 0; run < s.cfg.Runs; run++ {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		if len(addrs) > s.cfg.MaxResults {
			// Cap already exceeded; abandon the remaining runs.
			out.Truncated = true
			break
		}

		start := time.Now()
		startCycles := cputicks()
		sub, st, err := s.scanSegments(ctx)
		out.Cycles += cputicks() - startCycles
		out.Elapsed += time.Since(start)
		if err != nil {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}

		addrs = append(addrs, sub...)
		out.BytesScanned += st.bytes
		out.Segments = st.segments
		out.SkippedSegments = st.skipped
		out.Runs++

		s.log.Debug().
			Int("run", run).
			Int("matches", len(sub)).
			Uint64("bytes", st.bytes).
			Dur("elapsed", time.Since(start)).
			Msg("scan run complete")
	}

	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	if len(addrs) >= s.cfg.MaxResults {
		out.Truncated = true
		addrs = addrs[:s.cfg.MaxResults]
	}
	out.Addresses = addrs
	out.TotalElapsed = time.Since(totalStart)
	return out, nil
}

type runStats struct {
	bytes    uint64
	segments int
	skipped  int
}

// scanSegments performs one full pass over the view's segments, returning
// absolute match addresses in segment order. Each segment is scanned in
// isolation; a pattern straddling two segments is never reported, since
// segments are independently mapped regions. A segment that cannot be read
// is skipped without failing the pass.
func (s *Session) scanSegments(ctx context.Context) ([]uint64, runStats, error) {
	var (
		res []uint64
		st  runStats
	)
	for _, seg := range s.view.Segments() {
		if ctx.Err() != nil {
			return nil, st, ErrCancelled
		}
		if seg.Length == 0 {
			continue
		}

		buf, err := s.view.ReadBytes(seg.Base, int(seg.Length))
		if err != nil || len(buf) == 0 {
			st.skipped++
			s.log.Debug().
				Str("segment", seg.Name).
				Uint64("base", seg.Base).
				Err(err).
				Msg("segment skipped")
			continue
		}

		for _, off := range s.pat.FindAll(buf) {
			res = append(res, seg.Base+uint64(off))
		}
		st.segments++
		st.bytes += uint64(len(buf))
	}
	return res, st, nil
}
