package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/aobscan/aobscan/scan"
)

// matchResult represents a single match in JSON output.
type matchResult struct {
	Address    uint64 `json:"address"`
	AddressHex string `json:"address_hex"`
}

// summary carries the instrumentation block of the JSON output.
type summary struct {
	ElapsedMs       float64 `json:"elapsed_ms"`
	TotalElapsedMs  float64 `json:"total_elapsed_ms"`
	BytesScanned    uint64  `json:"bytes_scanned"`
	Segments        int     `json:"segments"`
	SkippedSegments int     `json:"skipped_segments"`
	Runs            int     `json:"runs"`
	ThroughputBps   float64 `json:"throughput_bps"`
	Cycles          uint64  `json:"cycles,omitempty"`
}

// jsonOutput is the complete JSON document for one scan.
type jsonOutput struct {
	Source     string        `json:"source,omitempty"`
	Pattern    string        `json:"pattern"`
	PatternLen int           `json:"pattern_length"`
	Truncated  bool          `json:"truncated"`
	MaxResults int           `json:"max_results"`
	Results    []matchResult `json:"results"`
	Summary    summary       `json:"summary"`
}

func renderJSON(w io.Writer, out *scan.Outcome, opts Options) error {
	results := make([]matchResult, len(out.Addresses))
	for i, addr := range out.Addresses {
		results[i] = matchResult{
			Address:    addr,
			AddressHex: fmt.Sprintf("0x%X", addr),
		}
	}

	doc := jsonOutput{
		Source:     opts.Source,
		Pattern:    out.Pattern,
		PatternLen: out.PatternLen,
		Truncated:  out.Truncated,
		MaxResults: out.MaxResults,
		Results:    results,
		Summary: summary{
			ElapsedMs:       float64(out.Elapsed.Microseconds()) / 1000.0,
			TotalElapsedMs:  float64(out.TotalElapsed.Microseconds()) / 1000.0,
			BytesScanned:    out.BytesScanned,
			Segments:        out.Segments,
			SkippedSegments: out.SkippedSegments,
			Runs:            out.Runs,
			ThroughputBps:   out.Throughput(),
			Cycles:          out.Cycles,
		},
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(doc)
}
