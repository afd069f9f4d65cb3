// Package report renders a scan outcome for presentation: plain text with
// optional ANSI color, JSON, or a markdown result list.
package report

import (
	"fmt"
	"io"
	"os"

	"github.com/aobscan/aobscan/scan"
)

// ColorMode controls when ANSI colors are emitted.
type ColorMode string

const (
	// ColorAuto enables color only when stdout is a terminal.
	ColorAuto ColorMode = "auto"
	// ColorAlways forces color on.
	ColorAlways ColorMode = "always"
	// ColorNever forces color off.
	ColorNever ColorMode = "never"
)

// ANSI color codes for terminal output.
const (
	ansiReset  = "\x1b[0m"
	ansiCyan   = "\x1b[36m"
	ansiYellow = "\x1b[33m"
	ansiRed    = "\x1b[31m"
	ansiDim    = "\x1b[2m"
	ansiBold   = "\x1b[1m"
)

// Options selects the renderer and its presentation knobs.
type Options struct {
	// Format is one of "text", "json" or "markdown".
	Format string
	Color  ColorMode
	// Verbose adds the throughput and cycle instrumentation footer.
	Verbose bool
	// Source names the scanned input in headers, usually a file path.
	Source string
}

// Render writes the outcome to w in the requested format.
func Render(w io.Writer, out *scan.Outcome, opts Options) error {
	switch opts.Format {
	case "json":
		return renderJSON(w, out, opts)
	case "markdown":
		return renderMarkdown(w, out, opts)
	default:
		return renderText(w, out, opts)
	}
}

func renderText(w io.Writer, out *scan.Outcome, opts Options) error {
	useColor := shouldUseColor(opts.Color)

	if out.Truncated {
		warning := fmt.Sprintf("Warning: too many results, truncated to %d.", out.MaxResults)
		if _, err := fmt.Fprintf(w, "%s\n\n", colorString(warning, ansiBold+ansiRed, useColor)); err != nil {
			return err
		}
	}

	header := fmt.Sprintf("Found %d results for `%s` in %d ms (total %d ms)",
		len(out.Addresses), out.Pattern,
		out.Elapsed.Milliseconds(), out.TotalElapsed.Milliseconds())
	if opts.Source != "" {
		header += " in " + opts.Source
	}
	if _, err := fmt.Fprintf(w, "%s:\n", colorString(header, ansiBold+ansiCyan, useColor)); err != nil {
		return err
	}

	for _, addr := range out.Addresses {
		line := fmt.Sprintf("0x%X", addr)
		if _, err := fmt.Fprintf(w, "  %s\n", colorString(line, ansiYellow, useColor)); err != nil {
			return err
		}
	}

	if opts.Verbose {
		footer := fmt.Sprintf(
			"pattern length %d, %d segments scanned (%d skipped), %d runs, 0x%X bytes = %.3f GB/s",
			out.PatternLen, out.Segments, out.SkippedSegments, out.Runs,
			out.BytesScanned, out.Throughput()/1073741824.0)
		if out.Cycles > 0 {
			footer += fmt.Sprintf(", %d cycles = %.2f cycles/byte", out.Cycles, out.CyclesPerByte())
		}
		if _, err := fmt.Fprintf(w, "%s\n", colorString(footer, ansiDim, useColor)); err != nil {
			return err
		}
	}
	return nil
}

// renderMarkdown emits the report as a markdown document: the truncation
// warning, a summary line, the pattern description and one list item per
// match address.
func renderMarkdown(w io.Writer, out *scan.Outcome, opts Options) error {
	if out.Truncated {
		if _, err := fmt.Fprintf(w, "Warning: Too many results, truncated to %d.\n\n", out.MaxResults); err != nil {
			return err
		}
	}

	source := ""
	if opts.Source != "" {
		source = " in " + opts.Source
	}
	if _, err := fmt.Fprintf(w, "Found %d results for `%s`%s in %d ms (actual %d ms):\n\n",
		len(out.Addresses), out.Pattern, source,
		out.Elapsed.Milliseconds(), out.TotalElapsed.Milliseconds()); err != nil {
		return err
	}

	if out.PatternLen > 0 {
		if _, err := fmt.Fprintf(w, "Pattern: Length %d, \"%s\"\n\n", out.PatternLen, out.Pattern); err != nil {
			return err
		}
	}

	// Addresses are navigation links so the document can be pasted into a
	// Binary Ninja markdown report.
	for _, addr := range out.Addresses {
		if _, err := fmt.Fprintf(w, "* [0x%X](binaryninja://?expr=0x%X)\n", addr, addr); err != nil {
			return err
		}
	}

	if opts.Verbose {
		if _, err := fmt.Fprintf(w, "\n0x%X bytes = %.3f GB/s = %d cycles = %.2f cycles per byte\n",
			out.BytesScanned, out.Throughput()/1073741824.0,
			out.Cycles, out.CyclesPerByte()); err != nil {
			return err
		}
	}
	return nil
}

// shouldUseColor resolves a ColorMode against the environment. NO_COLOR
// (https://no-color.org/) wins over every mode, including always.
func shouldUseColor(mode ColorMode) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}

	switch mode {
	case ColorNever:
		return false
	case ColorAlways:
		return true
	case ColorAuto:
		return isTerminal(os.Stdout)
	default:
		return false
	}
}

// isTerminal reports whether f is attached to a terminal. Pipes and
// regular files are not character devices, so redirected output stays
// plain.
func isTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// colorString brackets s in the given ANSI sequence and a reset, or
// returns it untouched when color is off.
func colorString(s, colorCode string, enabled bool) string {
	if !enabled || s == "" {
		return s
	}
	return colorCode + s + ansiReset
}
